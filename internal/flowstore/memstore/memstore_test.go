package memstore

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/shaiso/flowengine/internal/domain"
)

func TestSaveAndGetRun(t *testing.T) {
	ctx := context.Background()
	s := New()

	run := domain.NewFlowRun("echo", map[string]any{"msg": "x"}, "user-1")
	id, err := s.SaveRun(ctx, run)
	if err != nil {
		t.Fatalf("SaveRun: %v", err)
	}

	got, err := s.GetRun(ctx, id)
	if err != nil {
		t.Fatalf("GetRun: %v", err)
	}
	if got.Status != domain.StatusPending {
		t.Fatalf("expected StatusPending, got %s", got.Status)
	}
}

func TestGetRun_NotFound(t *testing.T) {
	s := New()
	if _, err := s.GetRun(context.Background(), uuid.New()); err != domain.ErrNotFound {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}

func TestUpdateRunStatus_SetsCompletedAt(t *testing.T) {
	ctx := context.Background()
	s := New()
	run := domain.NewFlowRun("echo", nil, "")
	id, _ := s.SaveRun(ctx, run)

	if err := s.UpdateRunStatus(ctx, id, domain.StatusCompleted); err != nil {
		t.Fatalf("UpdateRunStatus: %v", err)
	}

	got, _ := s.GetRun(ctx, id)
	if got.Status != domain.StatusCompleted {
		t.Fatalf("expected StatusCompleted, got %s", got.Status)
	}
	if got.CompletedAt == nil {
		t.Fatal("expected CompletedAt to be set")
	}
}

func TestUpdateRunStatus_TerminalIsSticky(t *testing.T) {
	ctx := context.Background()
	s := New()
	run := domain.NewFlowRun("echo", nil, "")
	id, _ := s.SaveRun(ctx, run)

	if err := s.UpdateRunStatus(ctx, id, domain.StatusFailed); err != nil {
		t.Fatalf("UpdateRunStatus: %v", err)
	}
	if err := s.UpdateRunStatus(ctx, id, domain.StatusCompleted); err != nil {
		t.Fatalf("UpdateRunStatus: %v", err)
	}

	got, _ := s.GetRun(ctx, id)
	if got.Status != domain.StatusFailed {
		t.Fatalf("expected status to stay Failed, got %s", got.Status)
	}
}

func TestSaveElement_OrderPreserved(t *testing.T) {
	ctx := context.Background()
	s := New()
	run := domain.NewFlowRun("echo", nil, "")
	id, _ := s.SaveRun(ctx, run)

	for _, content := range []string{"a", "b", "c"} {
		_, err := s.SaveElement(ctx, &domain.FlowElement{FlowRunID: id, Content: content})
		if err != nil {
			t.Fatalf("SaveElement: %v", err)
		}
	}

	elems, err := s.GetElements(ctx, id)
	if err != nil {
		t.Fatalf("GetElements: %v", err)
	}
	if len(elems) != 3 {
		t.Fatalf("expected 3 elements, got %d", len(elems))
	}
	for i, want := range []string{"a", "b", "c"} {
		if elems[i].Content != want {
			t.Fatalf("element %d: got %v, want %v", i, elems[i].Content, want)
		}
	}
}

func TestSaveElement_SameTimestampTiebreakBySeq(t *testing.T) {
	ctx := context.Background()
	s := New()
	run := domain.NewFlowRun("echo", nil, "")
	id, _ := s.SaveRun(ctx, run)

	now := time.Now().UTC()
	for _, content := range []string{"a", "b", "c"} {
		_, err := s.SaveElement(ctx, &domain.FlowElement{
			FlowRunID: id,
			Content:   content,
			CreatedAt: now,
		})
		if err != nil {
			t.Fatalf("SaveElement: %v", err)
		}
	}

	elems, err := s.GetElements(ctx, id)
	if err != nil {
		t.Fatalf("GetElements: %v", err)
	}
	for i, want := range []string{"a", "b", "c"} {
		if elems[i].Content != want {
			t.Fatalf("element %d: got %v, want %v (seq tiebreak failed)", i, elems[i].Content, want)
		}
	}
}

func TestGetElements_UnknownRunReturnsEmpty(t *testing.T) {
	s := New()
	elems, err := s.GetElements(context.Background(), uuid.New())
	if err != nil {
		t.Fatalf("GetElements: %v", err)
	}
	if len(elems) != 0 {
		t.Fatalf("expected empty slice, got %v", elems)
	}
}

func TestSaveAndGetResult(t *testing.T) {
	ctx := context.Background()
	s := New()
	run := domain.NewFlowRun("echo", nil, "")
	id, _ := s.SaveRun(ctx, run)

	if _, err := s.GetResult(ctx, id); err != domain.ErrNotFound {
		t.Fatalf("expected ErrNotFound before SetResult, got %v", err)
	}

	if err := s.SaveResult(ctx, id, map[string]any{"text": "done"}); err != nil {
		t.Fatalf("SaveResult: %v", err)
	}

	result, err := s.GetResult(ctx, id)
	if err != nil {
		t.Fatalf("GetResult: %v", err)
	}
	if result.(map[string]any)["text"] != "done" {
		t.Fatalf("unexpected result: %v", result)
	}

	run2, _ := s.GetRun(ctx, id)
	if run2.Result == nil {
		t.Fatal("expected SaveResult to mirror onto the run record")
	}
}

func TestListRunsForUser_OrderedAndLimited(t *testing.T) {
	ctx := context.Background()
	s := New()

	base := time.Now().UTC()
	for i := 0; i < 5; i++ {
		run := domain.NewFlowRun("echo", nil, "user-1")
		run.CreatedAt = base.Add(time.Duration(i) * time.Second)
		_, _ = s.SaveRun(ctx, run)
	}
	// A different user's run must not leak into the results.
	other := domain.NewFlowRun("echo", nil, "user-2")
	_, _ = s.SaveRun(ctx, other)

	runs, err := s.ListRunsForUser(ctx, "user-1", 3)
	if err != nil {
		t.Fatalf("ListRunsForUser: %v", err)
	}
	if len(runs) != 3 {
		t.Fatalf("expected 3 runs, got %d", len(runs))
	}
	for i := 0; i < len(runs)-1; i++ {
		if runs[i].CreatedAt.Before(runs[i+1].CreatedAt) {
			t.Fatal("expected runs ordered by CreatedAt descending")
		}
	}
}
