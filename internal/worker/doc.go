// Package worker provides a fixed-size goroutine pool with graceful shutdown.
//
// A Pool starts a fixed number of workers as soon as it is created. Every
// worker pulls jobs from one shared queue and runs them one at a time. The
// pool is never resized.
//
// # Basic Usage
//
//	pool, err := worker.New(4)
//	if err != nil {
//	    return err // worker.ErrInvalidSize
//	}
//	defer pool.Stop()
//
//	err = pool.Submit(worker.Func(func() {
//	    // do work
//	}))
//	if errors.Is(err, worker.ErrPoolClosed) {
//	    // shutdown already began
//	}
//
// # Failures
//
// A job that returns an error or panics does not stop its worker. The failure
// is wrapped in a *JobError, logged, counted and passed to PoolConfig.OnError.
//
// # Graceful Shutdown
//
// Stop rejects new submissions, closes the queue and joins every worker in
// id order. Jobs already running always finish. Jobs still queued are run in
// ShutdownDrain mode (the default) or dropped and counted in ShutdownDiscard
// mode. Stop is safe to call more than once; every worker is joined exactly
// once. A job must not call Submit or Stop on its own pool.
package worker
