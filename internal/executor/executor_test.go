package executor

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"

	"github.com/shaiso/flowengine/internal/domain"
	"github.com/shaiso/flowengine/internal/flow"
	"github.com/shaiso/flowengine/internal/flowqueue"
	"github.com/shaiso/flowengine/internal/flowstore/memstore"
	"github.com/shaiso/flowengine/internal/registry"
)

// funcFlow adapts a plain function to flow.Flow for test fixtures.
type funcFlow struct {
	name string
	run  func(ctx context.Context, input any, rc *flow.RunContext, emit flow.EmitFunc) error
}

func (f *funcFlow) Name() string { return f.name }
func (f *funcFlow) Run(ctx context.Context, input any, rc *flow.RunContext, emit flow.EmitFunc) error {
	return f.run(ctx, input, rc, emit)
}

func echoFlow() *funcFlow {
	return &funcFlow{
		name: "echo",
		run: func(ctx context.Context, input any, rc *flow.RunContext, emit flow.EmitFunc) error {
			if err := emit("a"); err != nil {
				return err
			}
			if err := emit("b"); err != nil {
				return err
			}
			rc.SetResult("done")
			return nil
		},
	}
}

func boomFlow() *funcFlow {
	return &funcFlow{
		name: "boom",
		run: func(ctx context.Context, input any, rc *flow.RunContext, emit flow.EmitFunc) error {
			return errors.New("boom: deliberate failure")
		},
	}
}

// waitFlow blocks on a channel before emitting, so a test can hold it
// "running" for as long as it needs.
func waitFlow(name string, release <-chan struct{}, started chan<- struct{}) *funcFlow {
	return &funcFlow{
		name: name,
		run: func(ctx context.Context, input any, rc *flow.RunContext, emit flow.EmitFunc) error {
			if started != nil {
				close(started)
			}
			select {
			case <-release:
			case <-ctx.Done():
				return ctx.Err()
			}
			return emit("released")
		},
	}
}

func newTestExecutor(t *testing.T, maxConcurrent int, visibilityTimeout time.Duration) (*Executor, *memstore.Store, *flowqueue.Queue, *registry.Registry) {
	t.Helper()
	store := memstore.New()
	queue := flowqueue.New(flowqueue.Config{VisibilityTimeout: visibilityTimeout})
	reg := registry.New()

	exec := New(store, queue, reg, Config{
		MaxConcurrent:          maxConcurrent,
		DispatcherIdleInterval: 5 * time.Millisecond,
		DispatcherErrorBackoff: 20 * time.Millisecond,
	})
	return exec, store, queue, reg
}

func waitForStatus(t *testing.T, exec *Executor, id uuid.UUID, want domain.FlowRunStatus, timeout time.Duration) {
	t.Helper()
	deadline := time.Now().Add(timeout)
	for time.Now().Before(deadline) {
		if got := exec.GetStatus(context.Background(), id); got == want {
			return
		}
		time.Sleep(2 * time.Millisecond)
	}
	t.Fatalf("run %s did not reach status %s within %s (last status %s)", id, want, timeout, exec.GetStatus(context.Background(), id))
}

// happy path: submit, drain to Completed, elements and result survive.
func TestExecutor_HappyPath(t *testing.T) {
	exec, _, _, reg := newTestExecutor(t, 2, time.Second)
	reg.Register(echoFlow())

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	exec.Start(ctx)
	defer exec.Stop(context.Background())

	id, err := exec.Submit(context.Background(), "echo", nil, "user-1")
	if err != nil {
		t.Fatalf("Submit: %v", err)
	}

	waitForStatus(t, exec, id, domain.StatusCompleted, time.Second)

	elems, err := exec.GetElements(context.Background(), id)
	if err != nil {
		t.Fatalf("GetElements: %v", err)
	}
	if len(elems) != 2 || elems[0].Content != "a" || elems[1].Content != "b" {
		t.Fatalf("unexpected elements: %v", elems)
	}

	result, ok := exec.GetResult(context.Background(), id)
	if !ok || result != "done" {
		t.Fatalf("unexpected result: %v, %v", result, ok)
	}
}

// concurrency cap: with max_concurrent=1, two submissions never run
// simultaneously.
func TestExecutor_ConcurrencyCap(t *testing.T) {
	exec, _, _, reg := newTestExecutor(t, 1, time.Second)

	var active int32
	var maxObserved int32
	reg.Register(&funcFlow{
		name: "slow",
		run: func(ctx context.Context, input any, rc *flow.RunContext, emit flow.EmitFunc) error {
			n := atomic.AddInt32(&active, 1)
			for {
				old := atomic.LoadInt32(&maxObserved)
				if n <= old || atomic.CompareAndSwapInt32(&maxObserved, old, n) {
					break
				}
			}
			time.Sleep(30 * time.Millisecond)
			atomic.AddInt32(&active, -1)
			return nil
		},
	})

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	exec.Start(ctx)
	defer exec.Stop(context.Background())

	var ids []uuid.UUID
	for i := 0; i < 4; i++ {
		id, err := exec.Submit(context.Background(), "slow", nil, "")
		if err != nil {
			t.Fatalf("Submit: %v", err)
		}
		ids = append(ids, id)
	}

	for _, id := range ids {
		waitForStatus(t, exec, id, domain.StatusCompleted, 2*time.Second)
	}

	if got := atomic.LoadInt32(&maxObserved); got > 1 {
		t.Fatalf("expected at most 1 concurrently active worker, observed %d", got)
	}
}

// visibility-timeout requeue: a run that stalls past the visibility
// timeout is requeued and handed to a second worker, whose preflight
// sees the run is already Running and exits without action; the first
// worker finishes the run exactly once with its elements intact.
func TestExecutor_VisibilityTimeoutRequeue(t *testing.T) {
	store := memstore.New()
	queue := flowqueue.New(flowqueue.Config{VisibilityTimeout: 30 * time.Millisecond})
	reg := registry.New()
	metrics := NewMetrics(prometheus.NewRegistry())

	exec := New(store, queue, reg, Config{
		MaxConcurrent:          2,
		DispatcherIdleInterval: 5 * time.Millisecond,
		Metrics:                metrics,
	})

	var attempts int32
	reg.Register(&funcFlow{
		name: "stuck",
		run: func(ctx context.Context, input any, rc *flow.RunContext, emit flow.EmitFunc) error {
			atomic.AddInt32(&attempts, 1)
			// Stall well past the visibility timeout without emitting, so
			// the heartbeat goes stale and the dispatcher requeues the run.
			time.Sleep(150 * time.Millisecond)
			return emit("recovered")
		},
	})

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	exec.Start(ctx)
	defer exec.Stop(context.Background())

	id, err := exec.Submit(context.Background(), "stuck", nil, "")
	if err != nil {
		t.Fatalf("Submit: %v", err)
	}

	waitForStatus(t, exec, id, domain.StatusCompleted, 2*time.Second)

	// The stall spans several visibility timeouts, so at least one second
	// worker was dispatched for the same id...
	if got := testutil.ToFloat64(metrics.RunsDispatchedTotal); got < 2 {
		t.Fatalf("expected at least 2 dispatches after requeue, got %v", got)
	}
	// ...but its preflight refused to run the flow a second time.
	if got := atomic.LoadInt32(&attempts); got != 1 {
		t.Fatalf("expected exactly 1 flow invocation, got %d", got)
	}

	elems, err := exec.GetElements(context.Background(), id)
	if err != nil {
		t.Fatalf("GetElements: %v", err)
	}
	if len(elems) != 1 || elems[0].Content != "recovered" {
		t.Fatalf("unexpected elements: %v", elems)
	}
}

// cancellation: Cancel on a running run causes it to end Canceled.
func TestExecutor_Cancellation(t *testing.T) {
	exec, _, _, reg := newTestExecutor(t, 2, time.Second)

	release := make(chan struct{})
	started := make(chan struct{})
	reg.Register(waitFlow("wait", release, started))
	defer close(release)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	exec.Start(ctx)
	defer exec.Stop(context.Background())

	id, err := exec.Submit(context.Background(), "wait", nil, "")
	if err != nil {
		t.Fatalf("Submit: %v", err)
	}

	select {
	case <-started:
	case <-time.After(time.Second):
		t.Fatal("flow never started")
	}

	if !exec.Cancel(context.Background(), id) {
		t.Fatal("expected Cancel to find a live handle")
	}

	waitForStatus(t, exec, id, domain.StatusCanceled, time.Second)
}

// flow error: a Flow returning a non-cancellation error ends Failed with
// an error message.
func TestExecutor_FlowError(t *testing.T) {
	exec, store, _, reg := newTestExecutor(t, 2, time.Second)
	reg.Register(boomFlow())

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	exec.Start(ctx)
	defer exec.Stop(context.Background())

	id, err := exec.Submit(context.Background(), "boom", nil, "")
	if err != nil {
		t.Fatalf("Submit: %v", err)
	}

	waitForStatus(t, exec, id, domain.StatusFailed, time.Second)

	run, err := store.GetRun(context.Background(), id)
	if err != nil {
		t.Fatalf("GetRun: %v", err)
	}
	if run.ErrorMessage == "" {
		t.Fatal("expected a non-empty error message")
	}
}

// unknown flow: Submit fails immediately; nothing is persisted or queued.
func TestExecutor_UnknownFlow(t *testing.T) {
	exec, store, queue, _ := newTestExecutor(t, 2, time.Second)

	_, err := exec.Submit(context.Background(), "does-not-exist", nil, "")
	if !errors.Is(err, domain.ErrUnknownFlow) {
		t.Fatalf("expected ErrUnknownFlow, got %v", err)
	}

	if queue.PendingLen() != 0 {
		t.Fatalf("expected nothing enqueued, got pending len %d", queue.PendingLen())
	}

	runs, err := store.ListRunsForUser(context.Background(), "", 10)
	if err != nil {
		t.Fatalf("ListRunsForUser: %v", err)
	}
	if len(runs) != 0 {
		t.Fatalf("expected no runs persisted, got %d", len(runs))
	}
}

// GetStatus on a never-submitted id returns Pending rather than erroring,
// tolerating a caller racing a concurrent Submit.
func TestExecutor_GetStatus_UnknownIDIsPending(t *testing.T) {
	exec, _, _, _ := newTestExecutor(t, 1, time.Second)
	if got := exec.GetStatus(context.Background(), uuid.New()); got != domain.StatusPending {
		t.Fatalf("expected StatusPending, got %s", got)
	}
}

// Cancel on an id with no live handle (here, one never submitted)
// returns false.
func TestExecutor_Cancel_NoLiveHandle(t *testing.T) {
	exec, _, _, reg := newTestExecutor(t, 1, time.Second)
	reg.Register(echoFlow())

	if exec.Cancel(context.Background(), uuid.New()) {
		t.Fatal("expected Cancel on unknown id to return false")
	}
}

// Stop drains an in-flight worker rather than force-cancelling it.
func TestExecutor_Stop_DrainsInFlightWorker(t *testing.T) {
	exec, _, _, reg := newTestExecutor(t, 1, time.Second)

	release := make(chan struct{})
	started := make(chan struct{})
	reg.Register(waitFlow("wait", release, started))

	ctx := context.Background()
	exec.Start(ctx)

	id, err := exec.Submit(ctx, "wait", nil, "")
	if err != nil {
		t.Fatalf("Submit: %v", err)
	}

	select {
	case <-started:
	case <-time.After(time.Second):
		t.Fatal("flow never started")
	}

	var stopped sync.WaitGroup
	stopped.Add(1)
	go func() {
		defer stopped.Done()
		exec.Stop(ctx)
	}()

	// Give Stop a moment to return were it (incorrectly) not draining.
	time.Sleep(20 * time.Millisecond)
	close(release)
	stopped.Wait()

	waitForStatus(t, exec, id, domain.StatusCompleted, time.Second)
}
