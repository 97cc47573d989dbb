package routines

import (
	"context"
	"fmt"
	"runtime/debug"
	"sync"

	"github.com/maumercado/go-routines/internal/logger"
	"github.com/maumercado/go-routines/internal/metrics"
)

// DefaultStackHint is the stack size recorded on routines spawned without
// an explicit one. Goroutines grow their stacks on demand, so neither this
// value nor SpawnWith's stackBytes parameter ever sizes an allocation —
// both are carried purely as log/diagnostic fields.
const DefaultStackHint = 1 << 20

// ScheduledRoutine is a routine driven by one dedicated goroutine, pinned
// to one worker context. A pair of unbuffered channels forms the
// resume/yield handshake that turns the goroutine into a coroutine: Advance
// sends on resumeCh and waits on yieldCh; the routine's body yields by
// sending on yieldCh and waiting on resumeCh, from inside Defer/Suspend.
// Exactly one side runs at a time, which is what makes the scheduling
// cooperative.
type ScheduledRoutine struct {
	id        uint64
	contextID int
	stackHint int
	scheduler *Scheduler

	mu              sync.Mutex
	state           RoutineState
	isPendingResume bool

	waitMu       sync.Mutex
	waitPromises []Promise[struct{}, struct{}]

	resumeCh chan struct{}
	yieldCh  chan struct{}
}

// newScheduledRoutine allocates a routine and starts its backing goroutine.
// The goroutine blocks immediately on the first resume signal — f does not
// begin executing until the first call to Advance.
func newScheduledRoutine(s *Scheduler, f RoutineFunc, stackHint, contextID int) *ScheduledRoutine {
	id := nextRoutineID()
	if contextID == noAffinity {
		contextID = int(id % uint64(s.ContextCount()))
	}
	r := &ScheduledRoutine{
		id:        id,
		contextID: contextID,
		stackHint: stackHint,
		scheduler: s,
		state:     StatePending,
		resumeCh:  make(chan struct{}),
		yieldCh:   make(chan struct{}),
	}
	go r.run(f)
	return r
}

func (r *ScheduledRoutine) run(f RoutineFunc) {
	<-r.resumeCh
	ctx := withRoutine(context.Background(), r)
	func() {
		defer func() {
			if rec := recover(); rec != nil {
				metrics.RoutinesPanicked.Inc()
				logger.WithRoutine(r.id).Error().
					Interface("panic", rec).
					Str("stack", string(debug.Stack())).
					Msg("routine body panicked")
			}
		}()
		f(ctx)
	}()
	r.mu.Lock()
	r.state = StateComplete
	r.mu.Unlock()
	close(r.yieldCh)
}

// yield is the single handshake point used by both Defer and Suspend:
// signal the worker that this quantum has ended, then block until the next
// Advance wakes this goroutine back up.
func (r *ScheduledRoutine) yield() {
	r.yieldCh <- struct{}{}
	<-r.resumeCh
}

func (r *ScheduledRoutine) ID() uint64     { return r.id }
func (r *ScheduledRoutine) ContextID() int { return r.contextID }

func (r *ScheduledRoutine) State() RoutineState {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.state
}

func (r *ScheduledRoutine) SetState(s RoutineState) {
	r.mu.Lock()
	r.state = s
	r.mu.Unlock()
}

func (r *ScheduledRoutine) IsPendingResume() bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.isPendingResume
}

func (r *ScheduledRoutine) SetPendingResume(v bool) {
	r.mu.Lock()
	r.isPendingResume = v
	r.mu.Unlock()
}

func (r *ScheduledRoutine) Wait(p Promise[struct{}, struct{}]) {
	r.waitMu.Lock()
	r.waitPromises = append(r.waitPromises, p)
	r.waitMu.Unlock()
}

// resolveWaitPromises fires every registered completion notifier. Called by
// the worker loop once it observes this routine in StateComplete, after the
// routine has been removed from the registry.
func (r *ScheduledRoutine) resolveWaitPromises() {
	r.waitMu.Lock()
	promises := r.waitPromises
	r.waitPromises = nil
	r.waitMu.Unlock()
	for _, p := range promises {
		p.Resolve(struct{}{})
	}
}

// Defer yields the stack without changing state; the worker observes a
// non-terminal, non-pending-suspend state and simply requeues it.
func (r *ScheduledRoutine) Defer() {
	r.yield()
}

// PendingSuspend marks the routine as about to park, without yet yielding
// the stack. Used by Park (suspended_queue.go) while still holding the
// lock protecting the condition being awaited.
func (r *ScheduledRoutine) PendingSuspend() {
	r.SetState(StatePendingSuspend)
}

// Suspend marks the routine pending-suspend (redundantly, if PendingSuspend
// already ran) and yields the stack.
func (r *ScheduledRoutine) Suspend() {
	r.SetState(StatePendingSuspend)
	r.yield()
}

// Resume is delegated to the scheduler so cross-context wakeups route to
// the context that actually owns this routine's goroutine.
func (r *ScheduledRoutine) Resume() {
	r.scheduler.resume(r)
}

// Advance executes one quantum of the routine's body: installs Running,
// clears any latched pending-resume, wakes the backing goroutine, and
// blocks until it yields or returns.
func (r *ScheduledRoutine) Advance() {
	r.mu.Lock()
	r.isPendingResume = false
	r.state = StateRunning
	r.mu.Unlock()

	r.resumeCh <- struct{}{}
	<-r.yieldCh
}

func (r *ScheduledRoutine) String() string {
	return fmt.Sprintf("ScheduledRoutine{id=%d, context=%d, state=%s}", r.id, r.contextID, r.State())
}
