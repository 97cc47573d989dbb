package routines

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewScheduledRoutine_AffinityAssignment(t *testing.T) {
	s := NewScheduler(4)
	defer s.Shutdown()

	r := newScheduledRoutine(s, func(ctx context.Context) {}, DefaultStackHint, noAffinity)
	assert.GreaterOrEqual(t, r.ContextID(), 0)
	assert.Less(t, r.ContextID(), s.ContextCount())

	pinned := newScheduledRoutine(s, func(ctx context.Context) {}, DefaultStackHint, 2)
	assert.Equal(t, 2, pinned.ContextID())
}

func TestScheduledRoutine_String(t *testing.T) {
	s := NewScheduler(2)
	defer s.Shutdown()

	r := newScheduledRoutine(s, func(ctx context.Context) {}, DefaultStackHint, 0)
	str := r.String()
	assert.Contains(t, str, "ScheduledRoutine")
	assert.Contains(t, str, "pending")
}

func TestScheduledRoutine_PanicRecovery(t *testing.T) {
	s := NewScheduler(2)
	defer s.Shutdown()

	id := s.Spawn(func(ctx context.Context) {
		panic("deliberate test panic")
	})

	// The routine's own goroutine recovers the panic; the routine still
	// reaches Complete and Wait still returns instead of hanging.
	waitFor(t, s, id)
}

func TestScheduledRoutine_Defer_Requeues(t *testing.T) {
	s := NewScheduler(2)
	defer s.Shutdown()

	steps := 0
	id := s.Spawn(func(ctx context.Context) {
		for steps < 5 {
			steps++
			Defer(ctx)
		}
	})

	waitFor(t, s, id)
	require.Equal(t, 5, steps)
}
