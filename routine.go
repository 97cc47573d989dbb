package routines

import (
	"context"
	"fmt"
	"sync/atomic"
)

// RoutineState is the lifecycle state of a routine.
type RoutineState int

const (
	// StatePending means the routine has been created but never advanced.
	StatePending RoutineState = iota
	// StateRunning means the routine is currently executing (or ready to).
	StateRunning
	// StatePendingSuspend is the window between a routine deciding to park
	// and the scheduler observing that decision.
	StatePendingSuspend
	// StateSuspended means the routine is parked, waiting to be resumed.
	StateSuspended
	// StateComplete is absorbing: the routine's body has returned.
	StateComplete
)

func (s RoutineState) String() string {
	switch s {
	case StatePending:
		return "pending"
	case StateRunning:
		return "running"
	case StatePendingSuspend:
		return "pending_suspend"
	case StateSuspended:
		return "suspended"
	case StateComplete:
		return "complete"
	default:
		return "unknown"
	}
}

// noAffinity is the sentinel context_id used by external routines and by
// spawn requests that don't care which worker they land on.
const noAffinity = -1

// routineIDCounter is the process-wide monotonic routine id source. Ids
// start at 1 and are never reused.
var routineIDCounter uint64

func nextRoutineID() uint64 {
	return atomic.AddUint64(&routineIDCounter, 1)
}

// routine is the uniform contract every schedulable (or external) unit of
// execution satisfies. It is unexported: callers only ever see the two
// concrete implementations through the Handle type and the package-level
// functions (Spawn, Defer, Wait, SuspendInto).
type routine interface {
	ID() uint64
	ContextID() int
	State() RoutineState
	IsPendingResume() bool
	SetPendingResume(bool)
	SetState(RoutineState)

	// Wait registers a completion notifier to be resolved when this routine
	// reaches a terminal state.
	Wait(p Promise[struct{}, struct{}])

	// Defer yields the stack without changing state, so the worker simply
	// requeues it as still-Running.
	Defer()

	// PendingSuspend marks the routine as about to park. Must be called
	// while still holding the lock protecting the condition being awaited.
	PendingSuspend()

	// Suspend actually yields the stack (or, for external routines, blocks
	// the host goroutine) after PendingSuspend has been called.
	Suspend()

	// Resume wakes a parked routine. Routed through the scheduler for
	// ScheduledRoutine so cross-context wakeups land on the right worker.
	Resume()

	// Advance executes one quantum of the routine's body. No-op for
	// external routines, which make progress on their own goroutine.
	Advance()
}

// routineCtxKey is the context.Context key under which the calling
// routine's Handle is stored.
type routineCtxKey struct{}

// Handle is the safe reference to a routine exposed to user code, e.g. via
// SuspendInto. A Handle never outlives its usefulness dangerously: Resume
// is always safe to call, any number of times, from any goroutine, even
// after the routine has already completed (it becomes a no-op).
type Handle struct {
	r routine
}

// ID returns the id of the routine this handle refers to.
func (h Handle) ID() uint64 {
	if h.r == nil {
		return 0
	}
	return h.r.ID()
}

// Resume wakes the routine referred to by this handle. Safe to call from
// any goroutine, any number of times.
func (h Handle) Resume() {
	if h.r == nil {
		return
	}
	h.r.Resume()
}

func (h Handle) valid() bool {
	return h.r != nil
}

// currentRoutine extracts the calling routine's Handle from ctx. It panics
// if ctx was not obtained from a routine body (via Spawn) or from
// NewExternalContext — this mirrors the source's assertion that
// current_routine() is always well-defined inside the runtime.
func currentRoutine(ctx context.Context) routine {
	h, ok := ctx.Value(routineCtxKey{}).(Handle)
	if !ok || !h.valid() {
		panic(fmt.Sprintf("routines: %v was not obtained from Spawn or NewExternalContext", ctx))
	}
	return h.r
}

func withRoutine(ctx context.Context, r routine) context.Context {
	return context.WithValue(ctx, routineCtxKey{}, Handle{r: r})
}

// Defer yields the current routine back to its worker without parking it;
// the worker simply requeues it and keeps running it later. Calling Defer
// from a context not obtained from Spawn or NewExternalContext panics.
func Defer(ctx context.Context) {
	currentRoutine(ctx).Defer()
}

// SuspendInto records the current routine into *slot and parks it. Use this
// to build custom suspension primitives on top of the suspended-routine
// queue (see Park/WakeAll in suspended_queue.go): record the waiter,
// release whatever lock is guarding the condition, then call SuspendInto.
func SuspendInto(ctx context.Context, slot *Handle) {
	r := currentRoutine(ctx)
	*slot = Handle{r: r}
	r.Suspend()
}
