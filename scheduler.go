package routines

import (
	"context"
	"runtime"
	"strconv"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/maumercado/go-routines/internal/config"
	"github.com/maumercado/go-routines/internal/logger"
	"github.com/maumercado/go-routines/internal/metrics"
)

// RoutineFunc is the body of a spawned routine. ctx carries the routine's
// own Handle (see currentRoutine) and must be threaded into Defer,
// SuspendInto, Wait and Future.Result whenever the body suspends itself.
type RoutineFunc func(ctx context.Context)

// workerContext is one worker's private ready FIFO and suspended set, plus
// the condvar routines and the scheduler wait/wake on. Everything here is
// guarded by mu, and cond is built on mu so queue/suspend/resume can
// release the lock and notify in one step.
type workerContext struct {
	id    int
	label string

	mu      sync.Mutex
	cond    *sync.Cond
	running bool

	ready     []routine
	suspended map[uint64]routine
}

func newWorkerContext(id int) *workerContext {
	c := &workerContext{
		id:        id,
		label:     "ctx-" + uuid.NewString()[:8],
		running:   true,
		suspended: make(map[uint64]routine),
	}
	c.cond = sync.NewCond(&c.mu)
	return c
}

// Scheduler owns a fixed pool of worker contexts and the process-wide
// registry of live routines. Most programs never construct one directly —
// Spawn/Wait/Shutdown delegate to a lazily-initialized default instance —
// but tests and embedders that need isolation can call NewScheduler
// explicitly instead of relying on the package-level singleton.
type Scheduler struct {
	cfg      config.SchedulerConfig
	contexts []*workerContext

	registryMu sync.Mutex
	registry   map[uint64]routine

	wg       sync.WaitGroup
	stopOnce sync.Once

	statsStop chan struct{}
	statsWG   sync.WaitGroup
}

// NewScheduler starts a scheduler with workerCount worker goroutines. A
// workerCount <= 0 uses runtime.GOMAXPROCS(0), with a floor of 2 — the same
// default the package-level singleton uses.
func NewScheduler(workerCount int) *Scheduler {
	return newSchedulerWithConfig(config.SchedulerConfig{
		WorkerCount:      workerCount,
		DefaultStackHint: DefaultStackHint,
		ShutdownTimeout:  10 * time.Second,
		MetricsEnabled:   true,
	})
}

func newSchedulerWithConfig(cfg config.SchedulerConfig) *Scheduler {
	n := cfg.WorkerCount
	if n <= 0 {
		n = runtime.GOMAXPROCS(0)
		if n < 2 {
			n = 2
		}
	}
	if cfg.DefaultStackHint <= 0 {
		cfg.DefaultStackHint = DefaultStackHint
	}
	if cfg.ShutdownTimeout <= 0 {
		cfg.ShutdownTimeout = 10 * time.Second
	}

	s := &Scheduler{
		cfg:       cfg,
		contexts:  make([]*workerContext, n),
		registry:  make(map[uint64]routine),
		statsStop: make(chan struct{}),
	}
	for i := 0; i < n; i++ {
		s.contexts[i] = newWorkerContext(i)
	}

	s.wg.Add(n)
	for i := 0; i < n; i++ {
		go s.run(s.contexts[i])
	}

	if cfg.MetricsEnabled {
		metrics.ActiveContexts.Set(float64(n))
		s.statsWG.Add(1)
		go s.reportStats()
	}

	logger.WithComponent("scheduler").Info().Int("workers", n).Msg("scheduler started")
	return s
}

var (
	defaultScheduler *Scheduler
	defaultOnce      sync.Once
)

// getScheduler returns the process-wide default scheduler, building it from
// internal/config.Load on first use.
func getScheduler() *Scheduler {
	defaultOnce.Do(func() {
		cfg, err := config.Load()
		if err != nil {
			logger.WithComponent("scheduler").Warn().Err(err).Msg("failed to load config, using built-in defaults")
			cfg = &config.Config{
				LogLevel:  "info",
				LogPretty: true,
				Scheduler: config.SchedulerConfig{
					DefaultStackHint: DefaultStackHint,
					ShutdownTimeout:  10 * time.Second,
					MetricsEnabled:   true,
				},
			}
		}
		logger.Init(cfg.LogLevel, cfg.LogPretty)
		defaultScheduler = newSchedulerWithConfig(cfg.Scheduler)
	})
	return defaultScheduler
}

// ContextCount returns the number of worker contexts s runs.
func (s *Scheduler) ContextCount() int { return len(s.contexts) }

// Spawn starts f as a new routine with the scheduler's default stack hint
// and no affinity preference, returning its id.
func (s *Scheduler) Spawn(f RoutineFunc) uint64 {
	return s.SpawnWith(f, s.cfg.DefaultStackHint, noAffinity)
}

// SpawnWith starts f with an explicit stack size hint and worker affinity.
// affinity of noAffinity (-1) lets the scheduler assign a context via
// id mod ContextCount(); any other value must be a valid context index and
// pins the routine to that worker for its whole lifetime.
func (s *Scheduler) SpawnWith(f RoutineFunc, stackBytes, affinity int) uint64 {
	if stackBytes <= 0 {
		stackBytes = s.cfg.DefaultStackHint
	}
	r := newScheduledRoutine(s, f, stackBytes, affinity)

	s.registryMu.Lock()
	s.registry[r.id] = r
	s.registryMu.Unlock()

	metrics.RoutinesSpawned.Inc()
	logger.WithRoutine(r.id).Debug().
		Int("context_id", r.contextID).
		Int("stack_hint", r.stackHint).
		Msg("routine spawned")
	s.queue(r)
	return r.id
}

// queue appends r to its context's ready FIFO, notifying the context's
// condvar only when the FIFO just became non-empty — if it already held
// routines, a previous push already woke (or will wake) the worker.
func (s *Scheduler) queue(r routine) {
	c := s.contexts[r.ContextID()]
	c.mu.Lock()
	c.ready = append(c.ready, r)
	becameNonEmpty := len(c.ready) == 1
	c.mu.Unlock()
	if becameNonEmpty {
		c.cond.Broadcast()
	}
}

// suspend moves r from Running/PendingSuspend into the context's suspended
// set, unless a resume already raced in and latched is_pending_resume —
// in that case the suspend is immediately undone and r goes straight back
// onto the ready FIFO, closing the race window Park/Resume are built
// around.
func (s *Scheduler) suspend(r routine) {
	c := s.contexts[r.ContextID()]
	c.mu.Lock()
	r.SetState(StateSuspended)
	if r.IsPendingResume() {
		r.SetPendingResume(false)
		c.ready = append(c.ready, r)
		c.mu.Unlock()
		c.cond.Broadcast()
		return
	}
	c.suspended[r.ID()] = r
	c.mu.Unlock()
}

// resume wakes a suspended routine by moving it back onto its context's
// ready FIFO. If r hasn't actually reached the suspended set yet (the
// worker is still between PendingSuspend and suspend()), the resume is
// latched on r itself and consumed by the eventual suspend call instead.
func (s *Scheduler) resume(r routine) {
	c := s.contexts[r.ContextID()]
	c.mu.Lock()
	if _, ok := c.suspended[r.ID()]; ok {
		delete(c.suspended, r.ID())
		c.ready = append(c.ready, r)
		c.mu.Unlock()
		c.cond.Broadcast()
		return
	}
	r.SetPendingResume(true)
	c.mu.Unlock()
}

// Wait blocks the calling routine (ctx must come from Spawn or
// NewExternalContext) until the routine identified by id reaches a
// terminal state. Waiting on an id that has already completed, or that was
// never spawned on this scheduler, returns immediately. A routine waiting
// on itself would deadlock, so it is treated as a programming error and
// panics.
func (s *Scheduler) Wait(ctx context.Context, id uint64) {
	caller := currentRoutine(ctx)
	if caller.ID() == id {
		panic("routines: a routine cannot wait on itself")
	}

	// registryMu stays held across the lookup and the wait-promise
	// registration: the worker completion path (see run, below) removes the
	// routine from the registry under this same lock before draining its
	// wait list, so a lookup that still finds the target is guaranteed to
	// register its promise before the drain runs. Releasing the lock between
	// the lookup and target.Wait(p) would let the drain slip into the gap,
	// leaving this promise registered on an already-drained routine and
	// f.Result(ctx) parked forever.
	s.registryMu.Lock()
	target, ok := s.registry[id]
	if !ok {
		s.registryMu.Unlock()
		return
	}
	p, f := NewLink[struct{}, struct{}]()
	target.Wait(p)
	s.registryMu.Unlock()

	f.Result(ctx)
}

// run is the worker loop for one context: pop the next ready routine (or
// block on the condvar until one arrives, or shutdown has been requested
// and both the ready FIFO and the suspended set have drained), advance it
// exactly one quantum, then route it by the state it left in. The lock is
// held only across the pop and the post-advance queue/suspend decision,
// never across Advance itself, so one routine's quantum never blocks
// another worker's unrelated queue/resume calls.
func (s *Scheduler) run(c *workerContext) {
	defer s.wg.Done()
	log := logger.WithContext(c.id).With().Str("context_label", c.label).Logger()

	for {
		c.mu.Lock()
		for len(c.ready) == 0 {
			if !c.running && len(c.suspended) == 0 {
				c.mu.Unlock()
				return
			}
			c.cond.Wait()
		}
		r := c.ready[0]
		c.ready = c.ready[1:]
		depth := len(c.ready)
		c.mu.Unlock()

		if s.cfg.MetricsEnabled {
			metrics.SetReadyQueueDepth(strconv.Itoa(c.id), float64(depth))
		}

		r.Advance()

		switch r.State() {
		case StateComplete:
			s.registryMu.Lock()
			delete(s.registry, r.ID())
			s.registryMu.Unlock()
			if sr, ok := r.(*ScheduledRoutine); ok {
				sr.resolveWaitPromises()
			}
			metrics.RoutinesCompleted.Inc()
			log.Debug().Uint64("routine_id", r.ID()).Msg("routine completed")
		case StatePendingSuspend:
			s.suspend(r)
		default:
			s.queue(r)
		}
	}
}

// reportStats periodically scans every context's suspended-set size into
// the metrics gauges; ready-queue depth is cheap enough to update inline on
// every dequeue (see run), but suspended depth has no single choke point to
// hook, so it's sampled on a ticker instead.
func (s *Scheduler) reportStats() {
	defer s.statsWG.Done()
	ticker := time.NewTicker(2 * time.Second)
	defer ticker.Stop()
	log := logger.WithComponent("scheduler")

	for {
		select {
		case <-s.statsStop:
			return
		case <-ticker.C:
			total := 0
			for _, c := range s.contexts {
				c.mu.Lock()
				depth := len(c.suspended)
				c.mu.Unlock()
				total += depth
				metrics.SetSuspendedDepth(strconv.Itoa(c.id), float64(depth))
			}
			log.Debug().Int("total_suspended", total).Msg("scheduler stats tick")
		}
	}
}

// Shutdown asks every worker to stop once its context's ready FIFO *and*
// suspended set have both drained, then waits up to cfg.ShutdownTimeout for
// all worker goroutines to exit. A routine left parked in a suspended set
// with nothing to ever resume it means that context's worker never exits on
// its own; Shutdown still returns once the timeout elapses, logging a
// warning, rather than blocking its caller forever. Safe to call more than
// once; only the first call has any effect.
func (s *Scheduler) Shutdown() {
	s.stopOnce.Do(func() {
		for _, c := range s.contexts {
			c.mu.Lock()
			c.running = false
			c.mu.Unlock()
			c.cond.Broadcast()
		}

		done := make(chan struct{})
		go func() {
			s.wg.Wait()
			close(done)
		}()
		select {
		case <-done:
		case <-time.After(s.cfg.ShutdownTimeout):
			logger.WithComponent("scheduler").Warn().Msg("shutdown timed out waiting for workers to drain")
		}

		close(s.statsStop)
		s.statsWG.Wait()
		metrics.ActiveContexts.Set(0)
	})
}

// --- package-level convenience API, delegating to the default scheduler ---

// Spawn starts f as a new routine on the default scheduler.
func Spawn(f RoutineFunc) uint64 { return getScheduler().Spawn(f) }

// SpawnWith starts f on the default scheduler with an explicit stack hint
// and worker affinity.
func SpawnWith(f RoutineFunc, stackBytes, affinity int) uint64 {
	return getScheduler().SpawnWith(f, stackBytes, affinity)
}

// Wait blocks the calling routine until the routine identified by id
// completes, on the default scheduler.
func Wait(ctx context.Context, id uint64) { getScheduler().Wait(ctx, id) }

// Shutdown stops the default scheduler's workers.
func Shutdown() { getScheduler().Shutdown() }

// NewExternalContext wraps context.Background in a fresh ExternalRoutine,
// letting a host goroutine that never went through Spawn call Wait,
// Future.Result and other suspension primitives. The returned close func
// marks the routine Complete and resolves anything waiting on it; callers
// should defer it once they're done participating:
//
//	ctx, done := routines.NewExternalContext()
//	defer done()
func NewExternalContext() (context.Context, func()) {
	return WithExternalRoutine(context.Background())
}

// WithExternalRoutine is like NewExternalContext but wraps an existing
// parent context instead of context.Background.
func WithExternalRoutine(parent context.Context) (context.Context, func()) {
	r := NewExternalRoutine()
	return withRoutine(parent, r), r.Close
}
