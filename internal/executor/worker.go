package executor

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/shaiso/flowengine/internal/domain"
	"github.com/shaiso/flowengine/internal/flow"
)

// runWorker drives one flow run to completion. It is the only place a
// run's status leaves Pending, and the only writer of that run's
// elements: element ordering and monotonic status progression fall out
// of there being exactly one worker goroutine per run id at steady state.
func (e *Executor) runWorker(ctx context.Context, id uuid.UUID) {
	e.sem <- struct{}{}
	defer func() { <-e.sem }()

	start := time.Now()
	outcome := "failed"
	defer func() {
		e.cfg.Metrics.observeWorker(outcome, time.Since(start).Seconds())
	}()

	logger := e.logger.With("run_id", id)

	run, err := e.store.GetRun(ctx, id)
	if err != nil {
		logger.Warn("worker: run vanished before start", "error", err)
		e.queue.PopInProgress(id)
		outcome = "vanished"
		return
	}
	if run.Status != domain.StatusPending {
		logger.Info("worker: run is no longer pending, skipping", "error", domain.ErrRunNotPending, "status", run.Status)
		outcome = "skipped"
		return
	}

	f, err := e.registry.Get(run.FlowName)
	if err != nil {
		logger.Error("worker: flow not registered", "flow_name", run.FlowName)
		msg := fmt.Sprintf("flow type '%s' not found", run.FlowName)
		_ = e.store.UpdateRunErrorMessage(ctx, id, msg)
		_ = e.store.UpdateRunStatus(ctx, id, domain.StatusFailed)
		e.queue.PopInProgress(id)
		e.cfg.Metrics.incFinished(run.FlowName, "failed")
		outcome = "failed"
		return
	}

	runCtx, cancel := context.WithCancelCause(ctx)
	e.cancels.Store(id, cancel)
	defer func() {
		e.cancels.Delete(id)
		cancel(nil)
	}()

	e.queue.ResetHeartbeat(id)
	if err := e.store.UpdateRunStatus(ctx, id, domain.StatusRunning); err != nil {
		logger.Error("worker: failed to mark run running", "error", err)
	}

	rc := flow.NewRunContext()
	runErr := e.driveFlow(runCtx, id, f, run.Input, rc)

	outcome = e.finalize(ctx, id, run.FlowName, rc, runErr, logger)
}

// driveFlow recovers a panicking Flow rather than letting it take down
// the dispatcher, turning it into an ordinary runtime error.
func (e *Executor) driveFlow(ctx context.Context, id uuid.UUID, f flow.Flow, input any, rc *flow.RunContext) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("flow panicked: %v", r)
		}
	}()

	emit := func(element any) error {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		if _, saveErr := e.store.SaveElement(ctx, &domain.FlowElement{FlowRunID: id, Content: element}); saveErr != nil {
			return fmt.Errorf("save element: %w", saveErr)
		}
		e.queue.ResetHeartbeat(id)
		return nil
	}

	return f.Run(ctx, input, rc, emit)
}

// finalize reifies runErr into the run's terminal status and returns the
// outcome label used for metrics.
func (e *Executor) finalize(ctx context.Context, id uuid.UUID, flowName string, rc *flow.RunContext, runErr error, logger *slog.Logger) string {
	defer e.queue.PopInProgress(id)

	switch {
	case runErr == nil:
		if result, ok := rc.Result(); ok {
			if err := e.store.SaveResult(ctx, id, result); err != nil {
				logger.Error("worker: failed to save result", "error", err)
			}
		}
		if err := e.store.UpdateRunStatus(ctx, id, domain.StatusCompleted); err != nil {
			logger.Error("worker: failed to mark run completed", "error", err)
		}
		e.cfg.Metrics.incFinished(flowName, "completed")
		return "completed"

	case errors.Is(runErr, context.Canceled) || errors.Is(runErr, domain.ErrCancelled):
		if err := e.store.UpdateRunStatus(ctx, id, domain.StatusCanceled); err != nil {
			logger.Error("worker: failed to mark run canceled", "error", err)
		}
		e.cfg.Metrics.incFinished(flowName, "canceled")
		return "canceled"

	default:
		if err := e.store.UpdateRunErrorMessage(ctx, id, runErr.Error()); err != nil {
			logger.Error("worker: failed to save error message", "error", err)
		}
		if err := e.store.UpdateRunStatus(ctx, id, domain.StatusFailed); err != nil {
			logger.Error("worker: failed to mark run failed", "error", err)
		}
		e.cfg.Metrics.incFinished(flowName, "failed")
		return "failed"
	}
}
