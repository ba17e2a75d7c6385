// Package flowqueue tracks which flow runs are waiting to be dispatched
// and which are currently owned by a worker.
//
// The queue holds only run ids — never run payloads, which stay in the
// flow store. It guarantees that the pop-pending / push-in-progress
// hand-off is externally indivisible, and that a run whose worker stops
// heartbeating is eventually handed to a fresh worker.
package flowqueue

import (
	"sync"
	"time"

	"github.com/google/uuid"
)

// defaultVisibilityTimeout is the reference duration after which an
// in-progress run with no heartbeat is considered stuck.
const defaultVisibilityTimeout = 30 * time.Second

// Config configures a Queue.
type Config struct {
	// VisibilityTimeout is the threshold RequeueExpired uses. Default 30s.
	VisibilityTimeout time.Duration
}

// entry is one in-progress run's bookkeeping.
type entry struct {
	lastHeartbeat time.Time
}

// Queue is the in-memory reference implementation of the flow queue.
//
// All six operations are serialized behind a single mutex; none of them
// wait on a worker, so callers never block on anything but the mutex
// itself.
type Queue struct {
	mu                sync.Mutex
	pending           []uuid.UUID
	inProgress        map[uuid.UUID]*entry
	visibilityTimeout time.Duration

	notifyMu sync.Mutex
	notifyCh chan struct{}
}

// New creates an empty Queue.
func New(cfg Config) *Queue {
	vt := cfg.VisibilityTimeout
	if vt <= 0 {
		vt = defaultVisibilityTimeout
	}
	return &Queue{
		inProgress:        make(map[uuid.UUID]*entry),
		visibilityTimeout: vt,
		notifyCh:          make(chan struct{}),
	}
}

// PushPending enqueues id at the tail of the pending FIFO.
func (q *Queue) PushPending(id uuid.UUID) {
	q.mu.Lock()
	q.pending = append(q.pending, id)
	q.mu.Unlock()
	q.notifyPush()
}

// PopPending atomically dequeues the head of pending and moves it to
// in-progress with last_heartbeat = now. Returns (uuid.Nil, false) if
// pending is empty; in-progress is left untouched in that case.
func (q *Queue) PopPending() (uuid.UUID, bool) {
	q.mu.Lock()
	defer q.mu.Unlock()

	if len(q.pending) == 0 {
		return uuid.Nil, false
	}

	id := q.pending[0]
	q.pending = q.pending[1:]
	q.inProgress[id] = &entry{lastHeartbeat: time.Now()}
	return id, true
}

// PushInProgress inserts id into in-progress with last_heartbeat = now.
// Exposed mainly for symmetry with PopPending and for tests that need to
// seed an in-progress entry directly.
func (q *Queue) PushInProgress(id uuid.UUID) {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.inProgress[id] = &entry{lastHeartbeat: time.Now()}
}

// PopInProgress removes id from in-progress and forgets its heartbeat.
// Idempotent: no error if id is absent.
func (q *Queue) PopInProgress(id uuid.UUID) {
	q.mu.Lock()
	defer q.mu.Unlock()
	delete(q.inProgress, id)
}

// ResetHeartbeat sets last_heartbeat = now if id is in-progress; no-op
// otherwise.
func (q *Queue) ResetHeartbeat(id uuid.UUID) {
	q.mu.Lock()
	defer q.mu.Unlock()
	if e, ok := q.inProgress[id]; ok {
		e.lastHeartbeat = time.Now()
	}
}

// RequeueExpired moves every in-progress id whose last heartbeat is older
// than the visibility timeout back to the tail of pending. Returns the
// requeued ids for logging/metrics; order among them is unspecified.
//
// TODO: this walks the whole in-progress map on every call. Fine at the
// sizes this component targets; swap for a container/heap min-heap keyed
// by lastHeartbeat if that ever shows up in profiling.
func (q *Queue) RequeueExpired() []uuid.UUID {
	q.mu.Lock()
	defer q.mu.Unlock()

	now := time.Now()
	var expired []uuid.UUID
	for id, e := range q.inProgress {
		if now.Sub(e.lastHeartbeat) > q.visibilityTimeout {
			expired = append(expired, id)
		}
	}

	for _, id := range expired {
		delete(q.inProgress, id)
		q.pending = append(q.pending, id)
	}

	return expired
}

// VisibilityTimeout returns the configured expiry threshold.
func (q *Queue) VisibilityTimeout() time.Duration {
	return q.visibilityTimeout
}

// PendingLen returns the current pending FIFO length. For metrics/tests.
func (q *Queue) PendingLen() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.pending)
}

// InProgressLen returns the current in-progress set size. For metrics/tests.
func (q *Queue) InProgressLen() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.inProgress)
}

// NotifyChannel returns a channel that is closed the next time
// PushPending is called. Callers must re-fetch it after each receive —
// it is a one-shot wake-up signal, not a persistent subscription. This
// lets the dispatcher skip its idle sleep when work is already waiting,
// without requiring a correctness dependency on timely delivery: the
// dispatcher's periodic poll is still the source of truth.
func (q *Queue) NotifyChannel() <-chan struct{} {
	q.notifyMu.Lock()
	defer q.notifyMu.Unlock()
	return q.notifyCh
}

func (q *Queue) notifyPush() {
	q.notifyMu.Lock()
	defer q.notifyMu.Unlock()
	close(q.notifyCh)
	q.notifyCh = make(chan struct{})
}
