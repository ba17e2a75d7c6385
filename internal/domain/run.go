package domain

import (
	"time"

	"github.com/google/uuid"
)

// FlowRun is one submission of a registered Flow.
//
// A run is created by Executor.Submit, dispatched at most once at a time
// by the queued executor, and ends in exactly one terminal status.
type FlowRun struct {
	// ID uniquely identifies the run, assigned at submission.
	ID uuid.UUID `json:"id"`

	// FlowName is the registry key of the Flow this run executes.
	FlowName string `json:"flow_name"`

	// UserID is an opaque caller-supplied identifier, used only for filtering.
	UserID string `json:"user_id,omitempty"`

	// Status is the current lifecycle state.
	Status FlowRunStatus `json:"status"`

	// Input is the opaque payload passed to the Flow. Immutable once set.
	Input any `json:"input,omitempty"`

	// Result is set at most once, only when Status becomes Completed.
	Result any `json:"result,omitempty"`

	// ErrorMessage is set only when Status becomes Failed.
	ErrorMessage string `json:"error_message,omitempty"`

	// CreatedAt is the submission timestamp (UTC).
	CreatedAt time.Time `json:"created_at"`

	// CompletedAt is set iff Status is terminal.
	CompletedAt *time.Time `json:"completed_at,omitempty"`
}

// IsFinished reports whether the run has reached a terminal status.
func (r *FlowRun) IsFinished() bool {
	return r.Status.IsTerminal()
}

// NewFlowRun builds a Pending run ready for SaveRun.
func NewFlowRun(flowName string, input any, userID string) *FlowRun {
	return &FlowRun{
		ID:        uuid.New(),
		FlowName:  flowName,
		UserID:    userID,
		Status:    StatusPending,
		Input:     input,
		CreatedAt: time.Now().UTC(),
	}
}
