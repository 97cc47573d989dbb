// Package routines implements a user-space stackful coroutine runtime.
//
// The runtime multiplexes cooperatively-scheduled tasks ("routines") onto a
// fixed pool of worker goroutines ("contexts"), provides synchronous-style
// suspension points backed by one-shot completion objects ("futures" and
// their resolver halves, "promises"), and lets goroutines that never went
// through Spawn ("external routines") participate in the same waiting
// primitives.
//
// # Quick start
//
//	id := routines.Spawn(func(ctx context.Context) {
//	    // do work
//	})
//
//	// Wait and Future.Result both park the calling routine, so a host
//	// goroutine that never went through Spawn needs an external context.
//	ctx, done := routines.NewExternalContext()
//	defer done()
//	routines.Wait(ctx, id)
//
// # Futures
//
//	p, f := routines.NewLink[int, error]()
//	go func() {
//	    p.Resolve(42)
//	}()
//	out := f.Result(ctx) // blocks until resolved
package routines
