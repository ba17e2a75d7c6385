package domain

import (
	"time"

	"github.com/google/uuid"
)

// FlowElement is one intermediate value emitted by a Flow while a run is
// in progress.
//
// Elements belonging to a run form an ordered sequence by (CreatedAt, Seq);
// Seq is the tiebreak for elements whose CreatedAt collides at clock
// resolution.
type FlowElement struct {
	// ID uniquely identifies the element.
	ID uuid.UUID `json:"id"`

	// FlowRunID is the owning run.
	FlowRunID uuid.UUID `json:"flow_run_id"`

	// Seq is a monotonically increasing per-run sequence number assigned
	// by the store at append time.
	Seq int64 `json:"seq"`

	// CreatedAt is the emission timestamp (UTC).
	CreatedAt time.Time `json:"created_at"`

	// Content is the opaque payload produced by the Flow.
	Content any `json:"content"`
}
