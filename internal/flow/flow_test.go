package flow

import (
	"context"
	"errors"
	"testing"
)

func TestRunContext_SetResult_LastWriteWins(t *testing.T) {
	rc := NewRunContext()
	rc.SetResult("first")
	rc.SetResult("second")

	got, ok := rc.Result()
	if !ok {
		t.Fatal("expected a result to be set")
	}
	if got != "second" {
		t.Fatalf("expected last write to win, got %v", got)
	}
}

func TestRunContext_NoResult(t *testing.T) {
	rc := NewRunContext()
	if _, ok := rc.Result(); ok {
		t.Fatal("expected no result on a fresh RunContext")
	}
}

type echoInput struct{ Msg string }

func TestTypedFlow_EmitsAndSetsResult(t *testing.T) {
	tf := NewTypedFlow("echo", func(ctx context.Context, input echoInput, rc TypedRunContext[string], emit func(string) error) error {
		if err := emit("a"); err != nil {
			return err
		}
		if err := emit("b"); err != nil {
			return err
		}
		rc.SetResult("done: " + input.Msg)
		return nil
	})

	rc := NewRunContext()
	var got []any
	err := tf.Run(context.Background(), echoInput{Msg: "x"}, rc, func(el any) error {
		got = append(got, el)
		return nil
	})
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if len(got) != 2 || got[0] != "a" || got[1] != "b" {
		t.Fatalf("unexpected elements: %v", got)
	}
	result, ok := rc.Result()
	if !ok || result != "done: x" {
		t.Fatalf("unexpected result: %v, %v", result, ok)
	}
}

func TestTypedFlow_InputTypeMismatch(t *testing.T) {
	tf := NewTypedFlow("echo", func(ctx context.Context, input echoInput, rc TypedRunContext[string], emit func(string) error) error {
		return nil
	})

	rc := NewRunContext()
	err := tf.Run(context.Background(), "not an echoInput", rc, func(el any) error { return nil })
	if err == nil {
		t.Fatal("expected a type mismatch error")
	}
}

func TestTypedFlow_PropagatesFlowError(t *testing.T) {
	wantErr := errors.New("boom")
	tf := NewTypedFlow("boom", func(ctx context.Context, input echoInput, rc TypedRunContext[string], emit func(string) error) error {
		if err := emit("first"); err != nil {
			return err
		}
		return wantErr
	})

	rc := NewRunContext()
	var got []any
	err := tf.Run(context.Background(), echoInput{}, rc, func(el any) error {
		got = append(got, el)
		return nil
	})
	if !errors.Is(err, wantErr) {
		t.Fatalf("expected wrapped wantErr, got %v", err)
	}
	if len(got) != 1 || got[0] != "first" {
		t.Fatalf("expected the element before the error to survive, got %v", got)
	}
}

func TestTypedFlow_EmitPropagatesCancellation(t *testing.T) {
	tf := NewTypedFlow("wait", func(ctx context.Context, input echoInput, rc TypedRunContext[string], emit func(string) error) error {
		return emit("x")
	})

	rc := NewRunContext()
	err := tf.Run(context.Background(), echoInput{}, rc, func(el any) error {
		return context.Canceled
	})
	if !errors.Is(err, context.Canceled) {
		t.Fatalf("expected context.Canceled, got %v", err)
	}
}
