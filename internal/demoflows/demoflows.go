// Package demoflows provides the couple of demonstration Flow
// implementations cmd/flowengine registers at startup. They exist to
// give the engine something runnable out of the box; production flow
// bodies are user code supplied at the Flow/TypedFlow boundary.
package demoflows

import (
	"context"
	"fmt"
	"time"

	"github.com/shaiso/flowengine/internal/flow"
)

// EchoInput is the input to the "echo" flow.
type EchoInput struct {
	Message string `json:"message"`
	Repeat  int    `json:"repeat"`
}

// Echo emits Message Repeat times (default 1) and sets a summary result.
func Echo() *flow.TypedFlow[EchoInput, string, string] {
	return flow.NewTypedFlow("echo", func(ctx context.Context, input EchoInput, rc flow.TypedRunContext[string], emit func(string) error) error {
		repeat := input.Repeat
		if repeat <= 0 {
			repeat = 1
		}
		for i := 0; i < repeat; i++ {
			if err := emit(input.Message); err != nil {
				return err
			}
		}
		rc.SetResult(fmt.Sprintf("emitted %q %d time(s)", input.Message, repeat))
		return nil
	})
}

// CountdownInput is the input to the "countdown" flow.
type CountdownInput struct {
	From int `json:"from"`
}

// Countdown emits From, From-1, ..., 1 with a short pause between each
// element, then sets the result "liftoff". It is the demonstration flow
// used to exercise cancellation and heartbeats, since each emit is a
// real suspension point.
func Countdown() *flow.TypedFlow[CountdownInput, int, string] {
	return flow.NewTypedFlow("countdown", func(ctx context.Context, input CountdownInput, rc flow.TypedRunContext[string], emit func(int) error) error {
		for n := input.From; n > 0; n-- {
			if err := emit(n); err != nil {
				return err
			}
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-time.After(50 * time.Millisecond):
			}
		}
		rc.SetResult("liftoff")
		return nil
	})
}
