// Package flowstore defines the authoritative state of flow runs,
// elements, and results, and the contract both the queue and the
// executor consult.
//
// The default implementation, memstore.Store, is in-memory and does not
// survive a process restart — that is a deliberate Non-goal of the
// core. A durable implementation satisfying the same interface lives in
// pgstore for operators who need runs to outlive the process.
package flowstore

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/shaiso/flowengine/internal/domain"
)

// Store is the contract the queued executor and external readers use to
// persist and query flow runs, their elements, and their results.
//
// All operations are total given a consistent store: writes never error
// on a missing id (they no-op), reads return domain.ErrNotFound.
// Implementations must be safe for concurrent use.
type Store interface {
	// SaveRun inserts a new run. The id must be unique. Returns the id.
	SaveRun(ctx context.Context, run *domain.FlowRun) (uuid.UUID, error)

	// GetRun returns the run record, or domain.ErrNotFound.
	GetRun(ctx context.Context, id uuid.UUID) (*domain.FlowRun, error)

	// ListRunsForUser returns up to limit runs for userID, ordered by
	// CreatedAt descending.
	ListRunsForUser(ctx context.Context, userID string, limit int) ([]*domain.FlowRun, error)

	// UpdateRunStatus atomically transitions a run's status. If the new
	// status is terminal, CompletedAt is set to now. Transitions from a
	// terminal status are silently ignored.
	UpdateRunStatus(ctx context.Context, id uuid.UUID, status domain.FlowRunStatus) error

	// UpdateRunCompletionTime sets CompletedAt directly.
	UpdateRunCompletionTime(ctx context.Context, id uuid.UUID, t time.Time) error

	// UpdateRunErrorMessage sets ErrorMessage.
	UpdateRunErrorMessage(ctx context.Context, id uuid.UUID, msg string) error

	// SaveElement appends an element to its run's ordered sequence,
	// assigning Seq. Returns the element id.
	SaveElement(ctx context.Context, element *domain.FlowElement) (uuid.UUID, error)

	// GetElements returns all elements for runID ordered by
	// (CreatedAt, Seq) ascending. Returns an empty slice if the run has
	// no elements or does not exist.
	GetElements(ctx context.Context, runID uuid.UUID) ([]*domain.FlowElement, error)

	// SaveResult records the terminal result payload and mirrors it onto
	// the run record.
	SaveResult(ctx context.Context, runID uuid.UUID, result any) error

	// GetResult returns the result payload, or domain.ErrNotFound.
	GetResult(ctx context.Context, runID uuid.UUID) (any, error)
}
