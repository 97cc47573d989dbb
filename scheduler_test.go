package routines

import (
	"context"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestScheduler_SpawnAndWait(t *testing.T) {
	s := NewScheduler(2)
	defer s.Shutdown()

	var ran int32
	id := s.Spawn(func(ctx context.Context) {
		atomic.StoreInt32(&ran, 1)
	})

	waitFor(t, s, id)
	assert.Equal(t, int32(1), atomic.LoadInt32(&ran))

	s.registryMu.Lock()
	_, stillRegistered := s.registry[id]
	s.registryMu.Unlock()
	assert.False(t, stillRegistered, "completed routine should be removed from the registry")
}

func TestScheduler_ContextCount_DefaultsToHardwareParallelism(t *testing.T) {
	s := NewScheduler(0)
	defer s.Shutdown()
	assert.GreaterOrEqual(t, s.ContextCount(), 2)
}

func TestScheduler_Wait_OnAlreadyCompletedRoutine(t *testing.T) {
	s := NewScheduler(2)
	defer s.Shutdown()

	id := s.Spawn(func(ctx context.Context) {})
	waitFor(t, s, id)

	// Waiting again, now that the routine is out of the registry entirely,
	// must return immediately rather than hang.
	waitFor(t, s, id)
}

func TestScheduler_Wait_OnSelf_Panics(t *testing.T) {
	s := NewScheduler(2)
	defer s.Shutdown()

	paniced := make(chan any, 1)
	s.Spawn(func(ctx context.Context) {
		defer func() { paniced <- recover() }()
		self := currentRoutine(ctx).ID()
		s.Wait(ctx, self)
	})

	select {
	case rec := <-paniced:
		assert.NotNil(t, rec)
	case <-time.After(waitTimeout):
		t.Fatal("self-wait did not panic")
	}
}

// TestScheduler_CrossWorkerResume pins a producer and a consumer to two
// different worker contexts and has the consumer park on a future the
// producer (running on the other worker) resolves, exercising resume()'s
// cross-context routing through workerContext.cond.
func TestScheduler_CrossWorkerResume(t *testing.T) {
	s := NewScheduler(2)
	defer s.Shutdown()

	p, f := NewLink[int, error]()
	got := make(chan int, 1)

	consumerID := s.SpawnWith(func(ctx context.Context) {
		out := f.Result(ctx)
		got <- out.Value
	}, DefaultStackHint, 0)

	producerID := s.SpawnWith(func(ctx context.Context) {
		p.Resolve(55)
	}, DefaultStackHint, 1)

	waitFor(t, s, producerID)
	waitFor(t, s, consumerID)
	assert.Equal(t, 55, <-got)
}

// TestScheduler_ParkRace_ManyFutures parks many routines, each on its own
// future, and has a single resolver routine complete them all in sequence.
// Every Result call must return exactly once regardless of whether the
// resolve lands before, during, or after the corresponding park.
func TestScheduler_ParkRace_ManyFutures(t *testing.T) {
	s := NewScheduler(4)
	defer s.Shutdown()

	const n = 100
	promises := make([]Promise[int, error], n)
	ids := make([]uint64, n)
	var sum int64
	for i := 0; i < n; i++ {
		p, f := NewLink[int, error]()
		promises[i] = p
		ids[i] = s.Spawn(func(ctx context.Context) {
			out := f.Result(ctx)
			atomic.AddInt64(&sum, int64(out.Value))
		})
	}

	resolverID := s.Spawn(func(ctx context.Context) {
		for i := range promises {
			promises[i].Resolve(1)
		}
	})

	waitFor(t, s, resolverID)
	for _, id := range ids {
		waitFor(t, s, id)
	}
	require.Equal(t, int64(n), atomic.LoadInt64(&sum))
}

// TestScheduler_ShutdownDrainsInFlightDefers spawns several routines that
// each Defer a large number of times before completing, then shuts the
// scheduler down and checks every one of them actually ran to completion —
// the ready FIFO must fully drain before Shutdown's workers exit.
func TestScheduler_ShutdownDrainsInFlightDefers(t *testing.T) {
	s := NewScheduler(4)

	const (
		routineCount = 10
		deferCount   = 1000
	)
	var completed int32
	ids := make([]uint64, routineCount)
	for i := 0; i < routineCount; i++ {
		ids[i] = s.Spawn(func(ctx context.Context) {
			for j := 0; j < deferCount; j++ {
				Defer(ctx)
			}
			atomic.AddInt32(&completed, 1)
		})
	}

	s.Shutdown()
	for _, id := range ids {
		waitFor(t, s, id)
	}

	assert.Equal(t, int32(routineCount), atomic.LoadInt32(&completed))
}

func TestScheduler_Shutdown_IsIdempotent(t *testing.T) {
	s := NewScheduler(2)
	s.Shutdown()
	assert.NotPanics(t, s.Shutdown)
}

// TestScheduler_ManyConcurrentSpawns is a light stress test: many routines
// spawned concurrently from many external goroutines, each resolving a
// shared counter, checked against the expected total.
func TestScheduler_ManyConcurrentSpawns(t *testing.T) {
	s := NewScheduler(4)
	defer s.Shutdown()

	const n = 200
	var sum int64
	var wg sync.WaitGroup
	wg.Add(n)
	for i := 0; i < n; i++ {
		i := i
		go func() {
			defer wg.Done()
			id := s.Spawn(func(ctx context.Context) {
				atomic.AddInt64(&sum, int64(i))
			})
			waitFor(t, s, id)
		}()
	}
	wg.Wait()

	expected := int64(n * (n - 1) / 2)
	require.Equal(t, expected, atomic.LoadInt64(&sum))
}

func TestDefaultScheduler_SpawnAndWait(t *testing.T) {
	done := make(chan struct{})
	id := Spawn(func(ctx context.Context) {
		close(done)
	})

	ctx, closeExt := NewExternalContext()
	defer closeExt()
	Wait(ctx, id)

	select {
	case <-done:
	default:
		t.Fatal("default scheduler routine did not run before Wait returned")
	}
}
