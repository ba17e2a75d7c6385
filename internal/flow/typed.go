package flow

import (
	"context"
	"fmt"
)

// TypedRunContext is the strongly-typed counterpart of RunContext,
// handed to a TypedFunc so it can set its result without any type
// assertions of its own.
type TypedRunContext[Res any] struct {
	rc *RunContext
}

// SetResult records the run's terminal result.
func (t TypedRunContext[Res]) SetResult(v Res) {
	t.rc.SetResult(v)
}

// TypedFunc is a strongly-typed flow body: it receives its input already
// downcast and a typed emit, and optionally calls rc.SetResult before
// returning. Returning a Res value directly (rather than relying on
// SetResult) is deliberately not supported — it would make "no result"
// indistinguishable from "the zero value of Res" for non-comparable
// result types (slices, maps, funcs).
type TypedFunc[In, El, Res any] func(ctx context.Context, input In, rc TypedRunContext[Res], emit func(El) error) error

// TypedFlow adapts a TypedFunc to the erased Flow interface so the
// executor never needs to know about generics. This is the only place
// in the codebase generics appear for flow authoring: Submit, the
// registry, the queue, and the executor all work against the opaque
// Flow/any boundary, and a typed author's down-cast/up-cast happens
// exactly once, here, at the edge.
type TypedFlow[In, El, Res any] struct {
	FlowName string
	Fn       TypedFunc[In, El, Res]
}

// NewTypedFlow builds a TypedFlow. It is usually registered with
// registry.Registry.Register(NewTypedFlow(...)).
func NewTypedFlow[In, El, Res any](name string, fn TypedFunc[In, El, Res]) *TypedFlow[In, El, Res] {
	return &TypedFlow[In, El, Res]{FlowName: name, Fn: fn}
}

// Name implements Flow.
func (f *TypedFlow[In, El, Res]) Name() string { return f.FlowName }

// Run implements Flow: it downcasts input, upcasts every emitted
// element, and delegates result-setting to the typed wrapper around rc.
func (f *TypedFlow[In, El, Res]) Run(ctx context.Context, input any, rc *RunContext, emit EmitFunc) error {
	typedInput, ok := input.(In)
	if !ok {
		var zero In
		return fmt.Errorf("flow %q: input type mismatch: expected %T, got %T", f.FlowName, zero, input)
	}

	typedEmit := func(el El) error {
		return emit(el)
	}

	return f.Fn(ctx, typedInput, TypedRunContext[Res]{rc: rc}, typedEmit)
}
