// Package protocol defines the boundary interfaces to external collaborators:
// the execution engine, the natural-language command interpreter, and the
// append-only journal sink. The synchronization core depends only on these
// interfaces, never on concrete collaborator implementations.
package protocol

import (
	"context"

	"github.com/flowsync-io/flowsync/pkg/events"
	"github.com/flowsync-io/flowsync/pkg/models"
)

// EngineEventCallback receives step-level events as the engine produces them.
// Delivery is at-least-once: the same event id may be delivered more than once.
type EngineEventCallback func(ctx context.Context, event events.ExecutionEvent) error

// ExecutionEngine is the black box that runs a journey definition and emits
// step events. The engine guarantees step order but not exactly-once delivery.
type ExecutionEngine interface {
	// StartExecution begins running the journey and returns once event
	// forwarding is wired up. Progress is reported through the callback.
	StartExecution(ctx context.Context, executionID string, journey *models.Workflow, callback EngineEventCallback) error

	// Pause suspends the running execution after the current step.
	Pause(ctx context.Context, executionID string) error

	// Resume continues a paused execution.
	Resume(ctx context.Context, executionID string) error

	// Stop terminates the execution. The engine emits no further events
	// for this execution after Stop returns.
	Stop(ctx context.Context, executionID string) error

	// Retry re-runs the step that most recently failed.
	Retry(ctx context.Context, executionID string, stepID string) error

	// Skip marks the failed step as skipped and continues with the next one.
	Skip(ctx context.Context, executionID string, stepID string) error
}
