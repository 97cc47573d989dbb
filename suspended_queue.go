package routines

import (
	"context"
	"time"

	"github.com/maumercado/go-routines/internal/metrics"
)

// parkedWaiter pairs a waiting routine with the moment it parked, so
// WakeAll can report how long each waiter actually sat before being
// resumed.
type parkedWaiter struct {
	r        routine
	parkedAt time.Time
}

// ParkQueue is an intrusive-style FIFO of parked routines, used by any
// condition-like object that must suspend callers and later wake them in
// park order (Future/Promise is built directly on top of it). A ParkQueue
// has no lock of its own: it is protected by whatever lock guards the data
// structure it lives inside (e.g. the future cell's mutex) — every method
// here assumes the caller already holds that lock.
type ParkQueue struct {
	waiters []parkedWaiter
}

// Park publishes the calling routine as a waiter on q and parks it. The
// caller must hold the lock protecting q (and whatever condition q is
// guarding) when calling Park; unlock is invoked after the waiter has been
// published and marked pending-suspend, but strictly before the routine
// actually yields its stack. This ordering is what closes the race window
// between "decided to park" and "actually parked": a concurrent Wake sees
// either a routine that isn't a waiter yet (and hasn't raced) or a waiter
// it can safely wake, possibly before the park has completed (handled by
// the pending-resume latch in scheduler.go).
func Park(ctx context.Context, q *ParkQueue, unlock func()) {
	r := currentRoutine(ctx)
	r.PendingSuspend()
	q.waiters = append(q.waiters, parkedWaiter{r: r, parkedAt: time.Now()})
	unlock()
	r.Suspend()
}

// WakeAll atomically detaches every waiter currently on q and resumes each
// in FIFO order, recording how long each one spent parked. The caller must
// hold the lock protecting q.
func WakeAll(q *ParkQueue) {
	waiters := q.waiters
	q.waiters = nil
	for _, w := range waiters {
		metrics.ParkLatency.Observe(time.Since(w.parkedAt).Seconds())
		w.r.Resume()
	}
}

// Len reports how many routines are currently parked on q. The caller must
// hold the lock protecting q.
func (q *ParkQueue) Len() int {
	return len(q.waiters)
}
