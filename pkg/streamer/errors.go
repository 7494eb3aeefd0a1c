// Package streamer bridges one workflow execution run to conversational output.
package streamer

import "errors"

var (
	// ErrExecutionAlreadyActive indicates a start was attempted while an
	// execution is already starting or running for the session.
	ErrExecutionAlreadyActive = errors.New("execution already active")

	// ErrExecutionNotActive indicates a command was issued against a
	// terminal or missing execution.
	ErrExecutionNotActive = errors.New("execution not active")

	// ErrUnknownCommand indicates an unrecognized chat command type.
	ErrUnknownCommand = errors.New("unknown command")

	// ErrUnsupportedFormat indicates an unrecognized export format.
	ErrUnsupportedFormat = errors.New("unsupported export format")
)

// IsValidationError checks if an error is a caller mistake rather than an
// internal failure.
func IsValidationError(err error) bool {
	return errors.Is(err, ErrExecutionAlreadyActive) ||
		errors.Is(err, ErrExecutionNotActive) ||
		errors.Is(err, ErrUnknownCommand) ||
		errors.Is(err, ErrUnsupportedFormat)
}
