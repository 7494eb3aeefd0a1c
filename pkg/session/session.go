// Package session ties one workflow-chat pairing together: the sync state
// machine, the execution streamer, and the command interpreter, addressed by
// session id through a registry.
package session

import (
	"context"
	"fmt"
	"log/slog"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/flowsync-io/flowsync/pkg/models"
	"github.com/flowsync-io/flowsync/pkg/otelhelper"
	"github.com/flowsync-io/flowsync/pkg/protocol"
	"github.com/flowsync-io/flowsync/pkg/streamer"
	"github.com/flowsync-io/flowsync/pkg/syncer"
)

// Session owns the per-session collaborators. All mutating entry points go
// through here so cross-cutting concerns (tracing, activity tracking) are
// applied uniformly.
type Session struct {
	ID          string
	WorkspaceID string

	workflow    *models.Workflow
	machine     *syncer.Machine
	streamer    *streamer.Streamer
	interpreter protocol.CommandInterpreter
	logger      *slog.Logger
	tracer      trace.Tracer // optional

	lastActive atomic.Int64 // unix nanos
}

// ChatReply is the outcome of one chat message. Recognized is false when the
// interpreter did not classify the text as a command; that is data, not an
// error.
type ChatReply struct {
	Recognized bool                          `json:"recognized"`
	Command    *models.ParsedCommand         `json:"command,omitempty"`
	Conflict   *models.SyncConflict          `json:"conflict,omitempty"`
	Message    *models.ConversationalMessage `json:"message,omitempty"`
	Text       string                        `json:"text,omitempty"`
}

func (s *Session) touch() {
	s.lastActive.Store(time.Now().UnixNano())
}

// LastActive reports the time of the most recent operation on this session.
func (s *Session) LastActive() time.Time {
	return time.Unix(0, s.lastActive.Load())
}

// EnableSync activates workflow-chat synchronization.
func (s *Session) EnableSync(ctx context.Context) {
	s.touch()
	s.machine.Enable(ctx)
}

// DisableSync deactivates synchronization and discards pending conflicts.
func (s *Session) DisableSync(ctx context.Context) {
	s.touch()
	s.machine.Disable(ctx)
}

// RecordVisualChange feeds a mutation from the visual editor into the sync machine.
func (s *Session) RecordVisualChange(ctx context.Context, change *models.ChangeEvent) (*models.SyncConflict, error) {
	s.touch()

	ctx, span := s.startSpan(ctx, "session.record_visual_change",
		attribute.String(otelhelper.ChangeIDKey, change.ID),
		attribute.String(otelhelper.ChangeTypeKey, string(change.Type)),
	)
	defer span.End()

	conflict, err := s.machine.RecordVisualChange(ctx, change)
	if err != nil {
		otelhelper.SetError(span, err)
	}

	return conflict, err
}

// ResolveConflict settles a pending conflict with the given strategy.
func (s *Session) ResolveConflict(ctx context.Context, conflictID string, resolution models.Resolution) error {
	s.touch()

	ctx, span := s.startSpan(ctx, "session.resolve_conflict",
		attribute.String(otelhelper.ConflictIDKey, conflictID),
	)
	defer span.End()

	if err := s.machine.ResolveConflict(ctx, conflictID, resolution); err != nil {
		otelhelper.SetError(span, err)

		return err
	}

	return nil
}

// SyncState returns a read-only snapshot of the synchronization state.
func (s *Session) SyncState() models.SyncState {
	return s.machine.State()
}

// SubscribeSync registers a synchronous listener for sync state changes.
func (s *Session) SubscribeSync(callback syncer.Subscriber) func() {
	return s.machine.Subscribe(callback)
}

// StartExecution launches a new streamed execution of the session's workflow.
func (s *Session) StartExecution(ctx context.Context, userID string) (string, error) {
	s.touch()

	executionID := uuid.New().String()

	ctx, span := s.startSpan(ctx, "session.start_execution",
		attribute.String(otelhelper.ExecutionIDKey, executionID),
	)
	defer span.End()

	if err := s.streamer.StartWorkflowStreaming(ctx, executionID, s.WorkspaceID, userID, s.workflow); err != nil {
		otelhelper.SetError(span, err)

		return "", err
	}

	return executionID, nil
}

// Execution returns a snapshot of the current execution, or nil.
func (s *Session) Execution() *models.WorkflowExecution {
	return s.streamer.Execution()
}

// ExportLog renders the current execution's message buffer.
func (s *Session) ExportLog(format streamer.ExportFormat) ([]byte, error) {
	s.touch()

	return s.streamer.ExportLog(format)
}

// HandleChatMessage interprets free text and routes the resulting command:
// execution control goes to the streamer, graph edits become chat changes in
// the sync machine, status requests are answered from the representation.
func (s *Session) HandleChatMessage(ctx context.Context, actorID, text string) (*ChatReply, error) {
	s.touch()

	ctx, span := s.startSpan(ctx, "session.handle_chat_message")
	defer span.End()

	command, ok := s.interpreter.Parse(ctx, text)
	if !ok {
		s.logger.DebugContext(ctx, "Chat text not recognized as command")

		return &ChatReply{
			Recognized: false,
			Text:       "I couldn't interpret that as a workflow command.",
		}, nil
	}

	span.SetAttributes(attribute.String(otelhelper.CommandKey, string(command.Type)))

	reply, err := s.dispatchCommand(ctx, actorID, command)
	if err != nil {
		otelhelper.SetError(span, err)

		return nil, err
	}

	return reply, nil
}

func (s *Session) dispatchCommand(ctx context.Context, actorID string, command *models.ParsedCommand) (*ChatReply, error) {
	if command.Type == models.CommandTypeShowStatus {
		return &ChatReply{
			Recognized: true,
			Command:    command,
			Text:       s.statusText(),
		}, nil
	}

	if command.Type.IsExecutionControl() {
		return s.dispatchExecutionCommand(ctx, actorID, command)
	}

	change, err := s.commandToChange(actorID, command)
	if err != nil {
		return nil, err
	}

	conflict, err := s.machine.RecordChatChange(ctx, change)
	if err != nil {
		return nil, err
	}

	reply := &ChatReply{Recognized: true, Command: command, Conflict: conflict}
	if conflict != nil {
		reply.Text = "That change conflicts with a recent visual edit: " + conflict.Description
	} else {
		reply.Text = fmt.Sprintf("Applied %s.", command.Type)
	}

	return reply, nil
}

func (s *Session) dispatchExecutionCommand(ctx context.Context, actorID string, command *models.ParsedCommand) (*ChatReply, error) {
	if command.Type == models.CommandTypeRun {
		executionID, err := s.StartExecution(ctx, actorID)
		if err != nil {
			return nil, err
		}

		return &ChatReply{
			Recognized: true,
			Command:    command,
			Text:       "Execution " + executionID + " started.",
		}, nil
	}

	execution := s.streamer.Execution()
	if execution == nil {
		return nil, fmt.Errorf("%w: no execution in this session", streamer.ErrExecutionNotActive)
	}

	parameters := command.Parameters
	if command.TargetEntity != "" {
		if parameters == nil {
			parameters = map[string]any{}
		}

		parameters["step_id"] = command.TargetEntity
	}

	message, err := s.streamer.HandleChatCommand(ctx, execution.ID, command.Type, parameters)
	if err != nil {
		return nil, err
	}

	reply := &ChatReply{Recognized: true, Command: command, Message: message}
	if message != nil {
		reply.Text = message.Content
	}

	return reply, nil
}

// commandToChange translates a graph-editing command into a pending chat change.
func (s *Session) commandToChange(actorID string, command *models.ParsedCommand) (*models.ChangeEvent, error) {
	change := &models.ChangeEvent{
		ID:        uuid.New().String(),
		Timestamp: time.Now().UnixMilli(),
		Source:    models.ChangeSourceChat,
		ActorID:   actorID,
		Status:    models.ChangeStatusPending,
	}

	switch command.Type {
	case models.CommandTypeAddNode:
		nodeType := stringParameter(command.Parameters, "node_type")
		name := stringParameter(command.Parameters, "name")

		if name == "" {
			name = nodeType
		}

		change.Type = models.ChangeTypeNodeAdded
		change.Payload = models.NodeAddedPayload{Node: models.WorkflowNode{
			ID:      uuid.New().String(),
			Type:    nodeType,
			Name:    name,
			Enabled: true,
		}}
	case models.CommandTypeRemoveNode:
		change.Type = models.ChangeTypeNodeRemoved
		change.Payload = models.NodeRemovedPayload{NodeID: command.TargetEntity}
	case models.CommandTypeModifyNode:
		field := stringParameter(command.Parameters, "field")

		change.Type = models.ChangeTypeNodeModified
		change.Payload = models.NodeModifiedPayload{
			NodeID: command.TargetEntity,
			Fields: map[string]any{field: command.Parameters["value"]},
		}
	case models.CommandTypeConnect:
		change.Type = models.ChangeTypeEdgeAdded
		change.Payload = models.EdgeAddedPayload{Connection: models.Connection{
			ID:         uuid.New().String(),
			SourceNode: stringParameter(command.Parameters, "source"),
			TargetNode: stringParameter(command.Parameters, "target"),
		}}
	case models.CommandTypeDisconnect:
		change.Type = models.ChangeTypeEdgeRemoved
		change.Payload = models.EdgeRemovedPayload{EdgeID: command.TargetEntity}
	default:
		return nil, fmt.Errorf("%w: %s is not a graph command", syncer.ErrInvalidChangeEvent, command.Type)
	}

	return change, nil
}

func (s *Session) statusText() string {
	representation := s.machine.Representation()
	if representation == nil {
		return "Synchronization is disabled for this session."
	}

	return fmt.Sprintf("Workflow has %d blocks and %d connections, execution state: %s.",
		len(representation.BlockSummaries),
		len(representation.ConnectionSummaries),
		representation.ExecutionState,
	)
}

// ExpireStaleChanges closes the conflict window for changes older than maxAge.
func (s *Session) ExpireStaleChanges(maxAge time.Duration) {
	s.machine.ExpireStale(maxAge)
}

// Close tears the session down: a running execution is stopped best-effort
// and synchronization is disabled, unregistering all subscribers.
func (s *Session) Close(ctx context.Context) {
	if execution := s.streamer.Execution(); execution != nil && !execution.Status.IsTerminal() {
		if _, err := s.streamer.HandleChatCommand(ctx, execution.ID, models.CommandTypeStop, nil); err != nil {
			s.logger.WarnContext(ctx, "Failed to stop execution on close",
				"execution_id", execution.ID, "error", err)
		}
	}

	s.machine.Disable(ctx)

	s.logger.InfoContext(ctx, "Session closed")
}

// nolint:spancheck // spans are closed by the callers
func (s *Session) startSpan(ctx context.Context, name string, attrs ...attribute.KeyValue) (context.Context, trace.Span) {
	if s.tracer == nil {
		return ctx, trace.SpanFromContext(ctx)
	}

	attrs = append(attrs, attribute.String(otelhelper.SessionIDKey, s.ID))

	return otelhelper.StartSpan(ctx, s.tracer, name, attrs...)
}

func stringParameter(parameters map[string]any, key string) string {
	if parameters == nil {
		return ""
	}

	value, _ := parameters[key].(string)

	return value
}
