// Package syncer implements the workflow-chat synchronization state machine
// and the conflict detector and resolver.
package syncer

import "errors"

// Validation errors: caller mistakes, reported synchronously with state
// unchanged. Safe to retry after correction.
var (
	// ErrInvalidChangeEvent indicates a malformed change event (missing id,
	// type, payload, or a payload that does not match the change type).
	ErrInvalidChangeEvent = errors.New("invalid change event")

	// ErrConflictNotFound indicates the conflict id is unknown or already resolved.
	ErrConflictNotFound = errors.New("conflict not found")

	// ErrMergeNotPossible indicates a merge resolution was requested for
	// changes touching overlapping fields; re-resolve with visual or chat.
	ErrMergeNotPossible = errors.New("merge not possible")

	// ErrSyncDisabled indicates a change was recorded while sync is disabled.
	ErrSyncDisabled = errors.New("sync is disabled")

	// ErrUnknownEntity indicates a change references a node or edge that
	// does not exist in the canonical graph.
	ErrUnknownEntity = errors.New("unknown entity")

	// ErrInvalidResolution indicates an unrecognized resolution strategy.
	ErrInvalidResolution = errors.New("invalid resolution")
)

// ErrStateInconsistent indicates the canonical graph diverged from an open
// conflict, so neither side of it can be honored anymore. The machine enters
// the error status; the next successful operation or an enable cycle settles
// it. Not a validation error.
var ErrStateInconsistent = errors.New("sync state inconsistent")

// IsValidationError checks if an error is a caller mistake rather than an
// internal failure.
func IsValidationError(err error) bool {
	return errors.Is(err, ErrInvalidChangeEvent) ||
		errors.Is(err, ErrConflictNotFound) ||
		errors.Is(err, ErrMergeNotPossible) ||
		errors.Is(err, ErrSyncDisabled) ||
		errors.Is(err, ErrUnknownEntity) ||
		errors.Is(err, ErrInvalidResolution)
}
