package executor

import (
	"context"
	"time"
)

// dispatchLoop is the executor's single dispatcher goroutine. It sweeps
// expired in-progress runs back to pending, then — if a concurrency
// slot is free — pops the next pending run and spawns an independent
// worker for it. It never blocks on a worker; it only waits for either
// its idle interval or the queue's push-notify channel between sweeps.
func (e *Executor) dispatchLoop(ctx context.Context) {
	for {
		if ctx.Err() != nil {
			return
		}

		if err := e.sweepOnce(); err != nil {
			e.logger.Error("dispatcher sweep failed", "error", err)
			select {
			case <-ctx.Done():
				return
			case <-time.After(e.cfg.DispatcherErrorBackoff):
			}
			continue
		}

		notify := e.queue.NotifyChannel()
		select {
		case <-ctx.Done():
			return
		case <-notify:
		case <-time.After(e.cfg.DispatcherIdleInterval):
		}
	}
}

// sweepOnce performs one requeue-then-dispatch pass. It touches only the
// queue, whose operations cannot fail, so it currently always returns
// nil; dispatchLoop still routes a non-nil error to its backoff path
// rather than exiting.
func (e *Executor) sweepOnce() error {
	expired := e.queue.RequeueExpired()
	if len(expired) > 0 {
		e.logger.Warn("requeued expired runs", "count", len(expired), "run_ids", expired)
		e.cfg.Metrics.addRequeued(len(expired))
	}
	e.cfg.Metrics.setQueueDepths(e.queue.PendingLen(), e.queue.InProgressLen())

	if len(e.sem) >= cap(e.sem) {
		return nil
	}

	id, ok := e.queue.PopPending()
	if !ok {
		return nil
	}

	e.cfg.Metrics.incDispatched()
	e.wg.Add(1)
	go func() {
		defer e.wg.Done()
		// Workers run on the Start ctx, not the dispatcher's cancellable
		// layer: Stop stops dispatch but drains in-flight runs.
		e.runWorker(e.workerCtx, id)
	}()

	return nil
}
