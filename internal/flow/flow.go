// Package flow defines the contract user code implements to be run by
// the queued executor: a named procedure that consumes an opaque input,
// emits zero or more elements, and optionally sets one terminal result.
package flow

import (
	"context"
	"sync"
)

// EmitFunc is how a Flow hands one intermediate element back to its
// worker. The worker persists the element and resets the run's
// heartbeat before returning control to the Flow, so emit doubles as a
// liveness signal and a cancellation point: it returns ctx.Err() if the
// run's context has already been cancelled.
type EmitFunc func(element any) error

// Flow is the type-erased procedure the executor drives. Strongly-typed
// authors should implement one via TypedFlow rather than this interface
// directly — see TypedFlow's doc comment.
type Flow interface {
	// Name is the registry key this Flow is looked up by.
	Name() string

	// Run executes the flow for one input, producing elements via emit
	// and optionally calling rc.SetResult before returning. Run must be
	// cooperatively cancellable: it should check ctx.Err() at its own
	// suspension points in addition to relying on emit's check.
	Run(ctx context.Context, input any, rc *RunContext, emit EmitFunc) error
}

// RunContext is handed to a Flow for the duration of one run. It holds
// the at-most-once result the Flow may set; a read accessor is used only
// by the worker after Run returns.
type RunContext struct {
	mu        sync.Mutex
	result    any
	hasResult bool
}

// NewRunContext creates an empty RunContext.
func NewRunContext() *RunContext {
	return &RunContext{}
}

// SetResult records the run's terminal result. If called more than
// once, the last call wins.
func (rc *RunContext) SetResult(v any) {
	rc.mu.Lock()
	defer rc.mu.Unlock()
	rc.result = v
	rc.hasResult = true
}

// Result returns the value set by SetResult and whether one was ever
// set. Intended for the worker's use after Run returns.
func (rc *RunContext) Result() (any, bool) {
	rc.mu.Lock()
	defer rc.mu.Unlock()
	return rc.result, rc.hasResult
}
