// Package memstore is the in-memory reference implementation of
// flowstore.Store. It does not survive a process restart; see
// flowstore/pgstore for a durable alternative behind the same
// interface.
package memstore

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/shaiso/flowengine/internal/domain"
)

// Store guards runs, elements, and results with a single mutex. Lock
// hold times are a handful of map operations, so one mutex for all three
// logical tables is simpler than splitting it without being a measurable
// contention cost.
type Store struct {
	mu      sync.RWMutex
	runs    map[uuid.UUID]*domain.FlowRun
	elems   map[uuid.UUID][]*domain.FlowElement
	nextSeq map[uuid.UUID]int64
}

// New creates an empty Store.
func New() *Store {
	return &Store{
		runs:    make(map[uuid.UUID]*domain.FlowRun),
		elems:   make(map[uuid.UUID][]*domain.FlowElement),
		nextSeq: make(map[uuid.UUID]int64),
	}
}

// SaveRun inserts run, copying it so later mutation by the caller cannot
// reach into the store's state.
func (s *Store) SaveRun(_ context.Context, run *domain.FlowRun) (uuid.UUID, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	cp := *run
	s.runs[run.ID] = &cp
	return run.ID, nil
}

// GetRun returns a copy of the run record.
func (s *Store) GetRun(_ context.Context, id uuid.UUID) (*domain.FlowRun, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	run, ok := s.runs[id]
	if !ok {
		return nil, domain.ErrNotFound
	}
	cp := *run
	return &cp, nil
}

// ListRunsForUser returns up to limit runs for userID, newest first.
func (s *Store) ListRunsForUser(_ context.Context, userID string, limit int) ([]*domain.FlowRun, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	matches := make([]*domain.FlowRun, 0, len(s.runs))
	for _, run := range s.runs {
		if run.UserID == userID {
			cp := *run
			matches = append(matches, &cp)
		}
	}

	sort.Slice(matches, func(i, j int) bool {
		return matches[i].CreatedAt.After(matches[j].CreatedAt)
	})

	if limit > 0 && len(matches) > limit {
		matches = matches[:limit]
	}
	return matches, nil
}

// UpdateRunStatus transitions a run's status. A no-op if the run is
// missing or already terminal.
func (s *Store) UpdateRunStatus(_ context.Context, id uuid.UUID, status domain.FlowRunStatus) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	run, ok := s.runs[id]
	if !ok {
		return nil
	}
	if run.Status.IsTerminal() {
		return nil
	}

	run.Status = status
	if status.IsTerminal() {
		now := time.Now().UTC()
		run.CompletedAt = &now
	}
	return nil
}

// UpdateRunCompletionTime sets CompletedAt. A no-op if the run is missing.
func (s *Store) UpdateRunCompletionTime(_ context.Context, id uuid.UUID, t time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	run, ok := s.runs[id]
	if !ok {
		return nil
	}
	run.CompletedAt = &t
	return nil
}

// UpdateRunErrorMessage sets ErrorMessage. A no-op if the run is missing.
func (s *Store) UpdateRunErrorMessage(_ context.Context, id uuid.UUID, msg string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	run, ok := s.runs[id]
	if !ok {
		return nil
	}
	run.ErrorMessage = msg
	return nil
}

// SaveElement appends element to its run's sequence, assigning Seq.
// A no-op (returning the zero id) if the run does not exist.
func (s *Store) SaveElement(_ context.Context, element *domain.FlowElement) (uuid.UUID, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.runs[element.FlowRunID]; !ok {
		return uuid.Nil, nil
	}

	if element.ID == uuid.Nil {
		element.ID = uuid.New()
	}
	if element.CreatedAt.IsZero() {
		element.CreatedAt = time.Now().UTC()
	}
	element.Seq = s.nextSeq[element.FlowRunID]
	s.nextSeq[element.FlowRunID]++

	cp := *element
	s.elems[element.FlowRunID] = append(s.elems[element.FlowRunID], &cp)
	return element.ID, nil
}

// GetElements returns all elements for runID ordered by (CreatedAt, Seq).
func (s *Store) GetElements(_ context.Context, runID uuid.UUID) ([]*domain.FlowElement, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	src := s.elems[runID]
	out := make([]*domain.FlowElement, len(src))
	for i, e := range src {
		cp := *e
		out[i] = &cp
	}
	sort.SliceStable(out, func(i, j int) bool {
		if out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return out[i].Seq < out[j].Seq
		}
		return out[i].CreatedAt.Before(out[j].CreatedAt)
	})
	return out, nil
}

// SaveResult records result and mirrors it onto the run. A no-op if the
// run is missing.
func (s *Store) SaveResult(_ context.Context, runID uuid.UUID, result any) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	run, ok := s.runs[runID]
	if !ok {
		return nil
	}
	run.Result = result
	return nil
}

// GetResult returns the run's result, or domain.ErrNotFound if the run
// is missing or never received one.
func (s *Store) GetResult(_ context.Context, runID uuid.UUID) (any, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	run, ok := s.runs[runID]
	if !ok || run.Result == nil {
		return nil, domain.ErrNotFound
	}
	return run.Result, nil
}
