// Package executor couples the flow store, flow queue, and flow registry
// with a background dispatcher and a bounded pool of per-run workers. It
// is the component external callers interact with: Submit a run, poll its
// status, read its elements and result, or cancel it.
package executor

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/shaiso/flowengine/internal/domain"
	"github.com/shaiso/flowengine/internal/flowqueue"
	"github.com/shaiso/flowengine/internal/flowstore"
	"github.com/shaiso/flowengine/internal/registry"
)

// Default configuration values.
const (
	defaultMaxConcurrent          = 5
	defaultDispatcherIdleInterval = 100 * time.Millisecond
	defaultDispatcherErrorBackoff = 1000 * time.Millisecond
)

// Config configures an Executor. The visibility timeout is a queue
// concern, configured on flowqueue.Config instead.
type Config struct {
	// MaxConcurrent bounds simultaneous workers. Default 5.
	MaxConcurrent int

	// DispatcherIdleInterval is how long the dispatcher waits after each
	// RequeueExpired/PopPending sweep (which dispatches at most one run)
	// unless a PushPending wakes it sooner. Default 100ms.
	DispatcherIdleInterval time.Duration

	// DispatcherErrorBackoff is the sleep after a transient dispatcher
	// error before retrying. Default 1000ms.
	DispatcherErrorBackoff time.Duration

	// Logger receives structured logs. Default slog.Default().
	Logger *slog.Logger

	// Metrics, if non-nil, is fed Prometheus observations. Optional.
	Metrics *Metrics
}

func (c Config) withDefaults() Config {
	if c.MaxConcurrent <= 0 {
		c.MaxConcurrent = defaultMaxConcurrent
	}
	if c.DispatcherIdleInterval <= 0 {
		c.DispatcherIdleInterval = defaultDispatcherIdleInterval
	}
	if c.DispatcherErrorBackoff <= 0 {
		c.DispatcherErrorBackoff = defaultDispatcherErrorBackoff
	}
	if c.Logger == nil {
		c.Logger = slog.Default()
	}
	return c
}

// Executor is the queued executor: a dispatcher goroutine plus a bounded
// pool of per-run worker goroutines, driving Flow implementations looked
// up in a Registry and persisted through a Store.
type Executor struct {
	store    flowstore.Store
	queue    *flowqueue.Queue
	registry *registry.Registry
	cfg      Config

	sem     chan struct{}
	cancels sync.Map // uuid.UUID -> context.CancelCauseFunc

	logger *slog.Logger

	// workerCtx is the ctx passed to Start, before the dispatcher's own
	// cancellable layer: workers derive their run contexts from it so
	// that Stop halts dispatch without force-cancelling in-flight runs.
	workerCtx  context.Context
	cancelFunc context.CancelFunc
	wg         sync.WaitGroup
	stopped    bool
	stoppedMu  sync.RWMutex
}

// New creates an Executor. It does not start the dispatcher; call Start.
func New(store flowstore.Store, queue *flowqueue.Queue, reg *registry.Registry, cfg Config) *Executor {
	cfg = cfg.withDefaults()
	return &Executor{
		store:    store,
		queue:    queue,
		registry: reg,
		cfg:      cfg,
		sem:      make(chan struct{}, cfg.MaxConcurrent),
		logger:   cfg.Logger,
	}
}

// Start launches the dispatcher goroutine. Safe to call once; calling it
// again after Stop is not supported.
func (e *Executor) Start(ctx context.Context) {
	e.workerCtx = ctx
	ctx, cancel := context.WithCancel(ctx)
	e.cancelFunc = cancel

	e.logger.Info("starting executor",
		"max_concurrent", e.cfg.MaxConcurrent,
		"visibility_timeout", e.queue.VisibilityTimeout(),
	)

	e.wg.Add(1)
	go func() {
		defer e.wg.Done()
		e.dispatchLoop(ctx)
	}()
}

// Stop initiates graceful shutdown: it cancels the dispatcher's context
// and waits for it and all in-flight workers to exit. Workers are not
// force-cancelled; they run to completion unless the ctx passed to Start
// is itself cancelled, in which case their next emit call observes it.
// Stop returns early if its own ctx expires before the drain finishes.
func (e *Executor) Stop(ctx context.Context) {
	e.stoppedMu.Lock()
	e.stopped = true
	e.stoppedMu.Unlock()

	e.logger.Info("stopping executor...")

	if e.cancelFunc != nil {
		e.cancelFunc()
	}

	done := make(chan struct{})
	go func() {
		e.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		e.logger.Info("executor stopped")
	case <-ctx.Done():
		e.logger.Warn("executor stop gave up waiting for in-flight workers", "error", ctx.Err())
	}
}

func (e *Executor) isStopped() bool {
	e.stoppedMu.RLock()
	defer e.stoppedMu.RUnlock()
	return e.stopped
}

// Submit creates a Pending run for flowName and enqueues it. It does not
// block on dispatch.
func (e *Executor) Submit(ctx context.Context, flowName string, input any, userID string) (uuid.UUID, error) {
	if e.isStopped() {
		return uuid.Nil, domain.ErrExecutorStopped
	}
	if !e.registry.Has(flowName) {
		return uuid.Nil, fmt.Errorf("submit: %w: %s", domain.ErrUnknownFlow, flowName)
	}

	run := domain.NewFlowRun(flowName, input, userID)
	id, err := e.store.SaveRun(ctx, run)
	if err != nil {
		return uuid.Nil, fmt.Errorf("submit: save run: %w", err)
	}

	e.queue.PushPending(id)
	return id, nil
}

// GetStatus returns the run's stored status, or StatusPending if the run
// is not yet visible to the store (tolerates a caller racing Submit).
func (e *Executor) GetStatus(ctx context.Context, runID uuid.UUID) domain.FlowRunStatus {
	run, err := e.store.GetRun(ctx, runID)
	if err != nil {
		return domain.StatusPending
	}
	return run.Status
}

// GetElements returns the run's elements in emission order.
func (e *Executor) GetElements(ctx context.Context, runID uuid.UUID) ([]*domain.FlowElement, error) {
	return e.store.GetElements(ctx, runID)
}

// GetResult returns the run's result and whether one was ever set.
func (e *Executor) GetResult(ctx context.Context, runID uuid.UUID) (any, bool) {
	result, err := e.store.GetResult(ctx, runID)
	if err != nil {
		return nil, false
	}
	return result, true
}

// Cancel signals the run's cancellation handle, if one is currently
// registered (i.e. a worker is actively running it). Returns true if a
// handle was found and signalled. A still-pending run has no handle, so
// Cancel returns false for it, persists nothing, and leaves its id in the
// queue: the run stays Pending and is executed when it is popped.
func (e *Executor) Cancel(ctx context.Context, runID uuid.UUID) bool {
	v, ok := e.cancels.Load(runID)
	if !ok {
		return false
	}
	cancel := v.(context.CancelCauseFunc)
	cancel(domain.ErrCancelled)

	if err := e.store.UpdateRunStatus(ctx, runID, domain.StatusCanceled); err != nil {
		e.logger.Error("cancel: failed to persist canceled status", "run_id", runID, "error", err)
	}
	return true
}
