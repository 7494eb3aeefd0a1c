package streamer

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/flowsync-io/flowsync/pkg/eventbus"
	"github.com/flowsync-io/flowsync/pkg/events"
	"github.com/flowsync-io/flowsync/pkg/journal"
	"github.com/flowsync-io/flowsync/pkg/models"
	"github.com/flowsync-io/flowsync/pkg/protocol"
)

// DefaultMaxMessages caps the conversational buffer; oldest messages are
// evicted first once the cap is reached.
const DefaultMaxMessages = 200

type Config struct {
	MaxMessages int
}

func (c Config) withDefaults() Config {
	if c.MaxMessages <= 0 {
		c.MaxMessages = DefaultMaxMessages
	}

	return c
}

// Streamer manages zero-or-one active execution per session, translating
// engine step events into conversational messages and metrics updates.
type Streamer struct {
	mu sync.Mutex

	sessionID string
	config    Config
	logger    *slog.Logger

	engine    protocol.ExecutionEngine
	journal   journal.Journal         // optional
	publisher eventbus.EventPublisher // optional

	execution     *models.WorkflowExecution
	seen          map[string]struct{} // engine event ids already processed
	memorySamples int                 // count behind the running memory average
}

func NewStreamer(
	sessionID string,
	config Config,
	logger *slog.Logger,
	engine protocol.ExecutionEngine,
	jrnl journal.Journal,
	publisher eventbus.EventPublisher,
) *Streamer {
	return &Streamer{
		sessionID: sessionID,
		config:    config.withDefaults(),
		logger: logger.With(
			"module", "execution_streamer",
			"session_id", sessionID,
		),
		engine:    engine,
		journal:   jrnl,
		publisher: publisher,
	}
}

// StartWorkflowStreaming creates the execution in the starting state and
// wires up event forwarding from the engine. It returns once streaming is
// initialized; it does not wait for completion.
func (s *Streamer) StartWorkflowStreaming(
	ctx context.Context,
	executionID, workspaceID, userID string,
	journey *models.Workflow,
) error {
	s.mu.Lock()

	if s.execution != nil && !s.execution.Status.IsTerminal() {
		s.mu.Unlock()

		return fmt.Errorf("%w: execution %s is %s", ErrExecutionAlreadyActive, s.execution.ID, s.execution.Status)
	}

	s.execution = &models.WorkflowExecution{
		ID:          executionID,
		JourneyID:   journey.ID,
		WorkspaceID: workspaceID,
		UserID:      userID,
		StartTime:   time.Now().UTC(),
		Status:      models.ExecutionStatusIdle,
		Messages:    []models.ConversationalMessage{},
	}
	s.seen = make(map[string]struct{})
	s.memorySamples = 0

	s.appendMessageLocked(ctx, models.MessageTypeSystem,
		fmt.Sprintf("Starting execution of %q", journey.Name), models.MessageMetadata{})
	s.transitionLocked(ctx, models.ExecutionStatusStarting)
	s.mu.Unlock()

	s.logger.InfoContext(ctx, "Workflow streaming started",
		"execution_id", executionID,
		"journey_id", journey.ID,
	)

	if err := s.engine.StartExecution(ctx, executionID, journey, s.HandleExecutionEvent); err != nil {
		// The run never reached the engine. Fail it terminally so the session
		// is free to start another execution.
		s.mu.Lock()
		if s.execution != nil && s.execution.ID == executionID && !s.execution.Status.IsTerminal() {
			s.handleTerminal(ctx, models.ExecutionStatusFailed, models.MessageTypeError,
				"Execution failed to start: "+err.Error())
		}
		s.mu.Unlock()

		return fmt.Errorf("starting execution %s: %w", executionID, err)
	}

	return nil
}

// HandleExecutionEvent translates one engine event into a status transition,
// a conversational message, and a metrics update. Duplicate deliveries of the
// same event id are dropped silently.
func (s *Streamer) HandleExecutionEvent(ctx context.Context, event events.ExecutionEvent) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.execution == nil || s.execution.ID != event.ExecutionID {
		return nil
	}

	if s.execution.Status.IsTerminal() {
		return nil
	}

	if _, dup := s.seen[event.ID]; dup {
		return nil
	}

	s.seen[event.ID] = struct{}{}

	switch event.Type {
	case events.StepStartedEvent:
		s.handleStepStarted(ctx, event)
	case events.StepCompletedEvent:
		s.handleStepCompleted(ctx, event)
	case events.StepFailedEvent:
		s.handleStepFailed(ctx, event)
	case events.StepSkippedEvent:
		s.handleStepSkipped(ctx, event)
	case events.ExecutionCompletedEvent:
		s.handleTerminal(ctx, models.ExecutionStatusCompleted, models.MessageTypeResult, "Execution completed")
	case events.ExecutionFailedEvent:
		message := "Execution failed"
		if event.Failure != nil {
			message = "Execution failed: " + event.Failure.Message
		}

		s.handleTerminal(ctx, models.ExecutionStatusFailed, models.MessageTypeError, message)
	case events.ExecutionPausedEvent:
		s.transitionLocked(ctx, models.ExecutionStatusPaused)
		s.appendMessageLocked(ctx, models.MessageTypeSystem, "Execution paused", models.MessageMetadata{})
	case events.ExecutionResumedEvent:
		s.transitionLocked(ctx, models.ExecutionStatusRunning)
		s.appendMessageLocked(ctx, models.MessageTypeSystem, "Execution resumed", models.MessageMetadata{})
	default:
		s.logger.WarnContext(ctx, "Unknown engine event type", "event_type", string(event.Type))
	}

	return nil
}

func (s *Streamer) handleStepStarted(ctx context.Context, event events.ExecutionEvent) {
	s.transitionLocked(ctx, models.ExecutionStatusRunning)

	if event.Step == nil {
		return
	}

	s.execution.CurrentStep = event.Step.Index
	if event.Step.Total > s.execution.Metrics.TotalSteps {
		s.execution.Metrics.TotalSteps = event.Step.Total
	}

	s.appendMessageLocked(ctx, models.MessageTypeProgress,
		fmt.Sprintf("Step %d/%d: %s", event.Step.Index+1, event.Step.Total, event.Step.Name),
		models.MessageMetadata{
			StepID:   event.Step.ID,
			Progress: progressData(s.execution, event),
		})
}

func (s *Streamer) handleStepCompleted(ctx context.Context, event events.ExecutionEvent) {
	metrics := &s.execution.Metrics
	metrics.CompletedSteps++
	s.ensureStepAccounting()

	if event.Usage != nil {
		s.foldUsageLocked(event.Usage)
	}

	if event.Step != nil {
		// Running mean, O(1) per update.
		n := float64(metrics.CompletedSteps)
		metrics.AverageStepTime = (metrics.AverageStepTime*(n-1) + float64(event.Step.DurationMs)) / n

		s.appendMessageLocked(ctx, models.MessageTypeProgress,
			fmt.Sprintf("%s finished in %dms", event.Step.Name, event.Step.DurationMs),
			models.MessageMetadata{
				StepID:          event.Step.ID,
				ExecutionTimeMs: event.Step.DurationMs,
				Progress:        progressData(s.execution, event),
			})
	}

	s.broadcastMetricsLocked(ctx)
}

func (s *Streamer) handleStepFailed(ctx context.Context, event events.ExecutionEvent) {
	s.execution.Metrics.FailedSteps++
	s.ensureStepAccounting()

	metadata := models.MessageMetadata{UserActionRequired: true}
	content := "Step failed"

	if event.Step != nil {
		metadata.StepID = event.Step.ID
		content = fmt.Sprintf("Step %s failed", event.Step.Name)
	}

	if event.Failure != nil {
		content = fmt.Sprintf("%s: %s", content, event.Failure.Message)
		metadata.CanRetry = event.Failure.CanRetry
		metadata.CanSkip = event.Failure.CanSkip
		metadata.CanDebug = event.Failure.CanDebug
	}

	// A step failure is not terminal by itself: the run sits in the error
	// state until the user retries, skips, stops, or the engine reports a
	// terminal failure.
	s.transitionLocked(ctx, models.ExecutionStatusError)
	s.appendMessageLocked(ctx, models.MessageTypeError, content, metadata)
	s.broadcastMetricsLocked(ctx)
}

func (s *Streamer) handleStepSkipped(ctx context.Context, event events.ExecutionEvent) {
	s.execution.Metrics.SkippedSteps++
	s.ensureStepAccounting()

	content := "Step skipped"
	metadata := models.MessageMetadata{}

	if event.Step != nil {
		content = fmt.Sprintf("Step %s skipped", event.Step.Name)
		metadata.StepID = event.Step.ID
	}

	s.transitionLocked(ctx, models.ExecutionStatusRunning)
	s.appendMessageLocked(ctx, models.MessageTypeWarning, content, metadata)
	s.broadcastMetricsLocked(ctx)
}

func (s *Streamer) handleTerminal(ctx context.Context, status models.ExecutionStatus, messageType models.MessageType, content string) {
	s.transitionLocked(ctx, status)
	s.appendMessageLocked(ctx, messageType, content, models.MessageMetadata{})
	s.broadcastMetricsLocked(ctx)
}

// foldUsageLocked folds one step's resource sample into the running metrics.
// Engines report only what they observe; absent sections leave the
// corresponding counters untouched.
func (s *Streamer) foldUsageLocked(usage *events.UsageInfo) {
	memory := &s.execution.Metrics.MemoryUsage
	if usage.MemoryBytes > 0 {
		s.memorySamples++
		memory.Current = usage.MemoryBytes

		if usage.MemoryBytes > memory.Peak {
			memory.Peak = usage.MemoryBytes
		}

		n := float64(s.memorySamples)
		memory.Average = (memory.Average*(n-1) + float64(usage.MemoryBytes)) / n
	}

	network := &s.execution.Metrics.NetworkUsage
	if usage.RequestCount > 0 {
		previous := float64(network.RequestCount)
		added := float64(usage.RequestCount)
		network.AverageResponseTime = (network.AverageResponseTime*previous + usage.ResponseTimeMs*added) / (previous + added)
		network.RequestCount += usage.RequestCount
	}

	network.TotalDataTransferred += usage.BytesTransferred
}

// ensureStepAccounting keeps completed+failed+skipped <= total even when the
// engine under-reports the step count.
func (s *Streamer) ensureStepAccounting() {
	metrics := &s.execution.Metrics

	settled := metrics.CompletedSteps + metrics.FailedSteps + metrics.SkippedSteps
	if settled > metrics.TotalSteps {
		metrics.TotalSteps = settled
	}
}

// HandleChatCommand dispatches one execution-control command. Each command
// produces exactly one conversational message describing the outcome.
func (s *Streamer) HandleChatCommand(
	ctx context.Context,
	executionID string,
	command models.CommandType,
	parameters map[string]any,
) (*models.ConversationalMessage, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.execution == nil || s.execution.ID != executionID || s.execution.Status.IsTerminal() {
		return nil, fmt.Errorf("%w: %s", ErrExecutionNotActive, executionID)
	}

	var (
		message *models.ConversationalMessage
		err     error
	)

	switch command {
	case models.CommandTypePause:
		err = s.engine.Pause(ctx, executionID)
		if err == nil {
			s.transitionLocked(ctx, models.ExecutionStatusPaused)
			message = s.appendMessageLocked(ctx, models.MessageTypeSystem, "Execution paused by user", models.MessageMetadata{})
		}
	case models.CommandTypeResume:
		err = s.engine.Resume(ctx, executionID)
		if err == nil {
			s.transitionLocked(ctx, models.ExecutionStatusRunning)
			message = s.appendMessageLocked(ctx, models.MessageTypeSystem, "Execution resumed by user", models.MessageMetadata{})
		}
	case models.CommandTypeStop:
		err = s.engine.Stop(ctx, executionID)
		if err == nil {
			s.transitionLocked(ctx, models.ExecutionStatusStopped)
			message = s.appendMessageLocked(ctx, models.MessageTypeSystem, "Execution stopped by user", models.MessageMetadata{})
		}
	case models.CommandTypeRetry:
		stepID := stringParameter(parameters, "step_id")

		err = s.engine.Retry(ctx, executionID, stepID)
		if err == nil {
			s.transitionLocked(ctx, models.ExecutionStatusRunning)
			message = s.appendMessageLocked(ctx, models.MessageTypeSystem, "Retrying failed step", models.MessageMetadata{StepID: stepID})
		}
	case models.CommandTypeSkip:
		stepID := stringParameter(parameters, "step_id")

		err = s.engine.Skip(ctx, executionID, stepID)
		if err == nil {
			s.transitionLocked(ctx, models.ExecutionStatusRunning)
			message = s.appendMessageLocked(ctx, models.MessageTypeWarning, "Skipping failed step", models.MessageMetadata{StepID: stepID})
		}
	case models.CommandTypeDebug:
		metrics := s.execution.Metrics
		message = s.appendMessageLocked(ctx, models.MessageTypeSystem,
			fmt.Sprintf("Debug: status=%s step=%d completed=%d failed=%d skipped=%d avg=%.1fms",
				s.execution.Status, s.execution.CurrentStep,
				metrics.CompletedSteps, metrics.FailedSteps, metrics.SkippedSteps,
				metrics.AverageStepTime),
			models.MessageMetadata{CanDebug: true})
	default:
		return nil, fmt.Errorf("%w: %s", ErrUnknownCommand, command)
	}

	if err != nil {
		message = s.appendMessageLocked(ctx, models.MessageTypeError,
			fmt.Sprintf("Command %s failed: %v", command, err), models.MessageMetadata{})

		return message, nil
	}

	return message, nil
}

// Execution returns a read-only snapshot of the current execution, or nil.
func (s *Streamer) Execution() *models.WorkflowExecution {
	s.mu.Lock()
	defer s.mu.Unlock()

	return s.executionSnapshotLocked()
}

func (s *Streamer) executionSnapshotLocked() *models.WorkflowExecution {
	if s.execution == nil {
		return nil
	}

	clone := *s.execution
	clone.Messages = make([]models.ConversationalMessage, len(s.execution.Messages))
	copy(clone.Messages, s.execution.Messages)

	return &clone
}

// transitionLocked moves the execution to the given status, stamping EndTime
// exactly once on the first terminal transition.
func (s *Streamer) transitionLocked(ctx context.Context, status models.ExecutionStatus) {
	if s.execution.Status == status {
		return
	}

	s.execution.Status = status

	if status.IsTerminal() && s.execution.EndTime == nil {
		now := time.Now().UTC()
		s.execution.EndTime = &now
	}

	s.journalAppend(ctx, journal.EntryExecutionTransition, map[string]string{
		"execution_id": s.execution.ID,
		"status":       string(status),
	})

	s.broadcast(ctx, events.ExecutionStatusChanged{
		BaseEvent:   events.NewBaseEvent(events.ExecutionStatusChangedEvent, s.sessionID),
		ExecutionID: s.execution.ID,
		Status:      status,
	})
}

func (s *Streamer) appendMessageLocked(
	ctx context.Context,
	messageType models.MessageType,
	content string,
	metadata models.MessageMetadata,
) *models.ConversationalMessage {
	message := models.ConversationalMessage{
		ID:        uuid.New().String(),
		Type:      messageType,
		Content:   content,
		Timestamp: time.Now().UTC(),
		Metadata:  metadata,
	}

	s.execution.Messages = append(s.execution.Messages, message)

	// FIFO eviction, oldest first.
	if overflow := len(s.execution.Messages) - s.config.MaxMessages; overflow > 0 {
		s.execution.Messages = s.execution.Messages[overflow:]
	}

	s.journalAppend(ctx, journal.EntryMessageAppended, message)

	s.broadcast(ctx, events.MessageAppended{
		BaseEvent:   events.NewBaseEvent(events.MessageAppendedEvent, s.sessionID),
		ExecutionID: s.execution.ID,
		Message:     message,
	})

	return &message
}

func (s *Streamer) broadcastMetricsLocked(ctx context.Context) {
	s.broadcast(ctx, events.ExecutionMetricsUpdated{
		BaseEvent:   events.NewBaseEvent(events.ExecutionMetricsUpdatedEvent, s.sessionID),
		ExecutionID: s.execution.ID,
		Metrics:     s.execution.Metrics,
	})
}

func (s *Streamer) broadcast(ctx context.Context, event eventbus.Event) {
	if s.publisher == nil {
		return
	}

	if err := s.publisher.Publish(ctx, s.sessionID, event); err != nil {
		s.logger.WarnContext(ctx, "Failed to broadcast event", "event_type", string(event.GetType()), "error", err)
	}
}

func (s *Streamer) journalAppend(ctx context.Context, kind journal.EntryKind, data any) {
	if s.journal == nil {
		return
	}

	payload, err := json.Marshal(data)
	if err != nil {
		s.logger.WarnContext(ctx, "Failed to marshal journal entry", "kind", string(kind), "error", err)

		return
	}

	entry := journal.Entry{
		ID:        uuid.New().String(),
		Kind:      kind,
		SessionID: s.sessionID,
		Timestamp: time.Now().UTC(),
		Data:      payload,
	}

	if err := s.journal.Append(ctx, entry); err != nil {
		s.logger.WarnContext(ctx, "Failed to append journal entry", "kind", string(kind), "error", err)
	}
}

func progressData(execution *models.WorkflowExecution, event events.ExecutionEvent) *models.ProgressData {
	if event.Progress == nil {
		return nil
	}

	return &models.ProgressData{
		Percent:                event.Progress.Percent,
		CurrentStep:            execution.CurrentStep,
		TotalSteps:             execution.Metrics.TotalSteps,
		EstimatedTimeRemaining: event.Progress.EstimatedTimeRemainingMs,
	}
}

func stringParameter(parameters map[string]any, key string) string {
	if parameters == nil {
		return ""
	}

	value, _ := parameters[key].(string)

	return value
}
