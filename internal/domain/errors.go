package domain

import "errors"

// Sentinel errors shared across the flow store, queue, registry, and
// executor. Call sites wrap these with fmt.Errorf("...: %w", err) and
// inspect them with errors.Is.
var (
	// ErrNotFound — no run, result, or other record exists for the given id.
	ErrNotFound = errors.New("not found")

	// ErrAlreadyExists — a record with this id already exists.
	ErrAlreadyExists = errors.New("already exists")

	// ErrUnknownFlow — the submitted flow_name has no registered Flow.
	ErrUnknownFlow = errors.New("unknown flow")

	// ErrRunNotPending — a worker's preflight check found the run was not
	// Pending when it expected to start executing it.
	ErrRunNotPending = errors.New("run is not pending")

	// ErrCancelled — a run ended because its cancellation handle fired.
	// Distinguished from a Flow runtime error: it is reified as Canceled,
	// never as Failed.
	ErrCancelled = errors.New("run cancelled")

	// ErrExecutorStopped — an operation was attempted after Stop was called.
	ErrExecutorStopped = errors.New("executor stopped")
)
