// Package events defines the broadcast event types published to chat session topics.
package events

import (
	"time"

	"github.com/google/uuid"

	"github.com/flowsync-io/flowsync/pkg/models"
)

type EventType string

// Topic naming for the broadcast layer. Each session has its own topic.
const TopicPrefix = "flowsync.sessions."

// SessionTopic returns the broadcast topic for a session id.
func SessionTopic(sessionID string) string {
	return TopicPrefix + sessionID
}

const EventKeyMetadataKey = "key"
const EventTypeMetadataKey = "event_type"

const (
	// Synchronization events.
	RepresentationUpdatedEvent EventType = "sync.representation.updated"
	ConflictRaisedEvent        EventType = "sync.conflict.raised"
	ConflictResolvedEvent      EventType = "sync.conflict.resolved"
	SyncStatusChangedEvent     EventType = "sync.status.changed"

	// Execution streaming events.
	MessageAppendedEvent         EventType = "execution.message.appended"
	ExecutionStatusChangedEvent  EventType = "execution.status.changed"
	ExecutionMetricsUpdatedEvent EventType = "execution.metrics.updated"
)

type BaseEvent struct {
	ID        string    `json:"id"`
	Type      EventType `json:"type"`
	Timestamp time.Time `json:"timestamp"`
	SessionID string    `json:"session_id"`
}

func NewBaseEvent(eventType EventType, sessionID string) BaseEvent {
	return BaseEvent{
		ID:        uuid.New().String(),
		Type:      eventType,
		Timestamp: time.Now().UTC(),
		SessionID: sessionID,
	}
}

// RepresentationUpdated is published after every accepted change.
type RepresentationUpdated struct {
	BaseEvent

	WorkflowID     string                 `json:"workflow_id"`
	Representation *models.Representation `json:"representation"`
}

func (e RepresentationUpdated) GetType() EventType {
	return RepresentationUpdatedEvent
}

type ConflictRaised struct {
	BaseEvent

	Conflict *models.SyncConflict `json:"conflict"`
}

func (e ConflictRaised) GetType() EventType {
	return ConflictRaisedEvent
}

type ConflictResolved struct {
	BaseEvent

	ConflictID string            `json:"conflict_id"`
	Resolution models.Resolution `json:"resolution"`
}

func (e ConflictResolved) GetType() EventType {
	return ConflictResolvedEvent
}

type SyncStatusChanged struct {
	BaseEvent

	Status models.SyncStatus `json:"status"`
}

func (e SyncStatusChanged) GetType() EventType {
	return SyncStatusChangedEvent
}

type MessageAppended struct {
	BaseEvent

	ExecutionID string                       `json:"execution_id"`
	Message     models.ConversationalMessage `json:"message"`
}

func (e MessageAppended) GetType() EventType {
	return MessageAppendedEvent
}

type ExecutionStatusChanged struct {
	BaseEvent

	ExecutionID string                 `json:"execution_id"`
	Status      models.ExecutionStatus `json:"status"`
}

func (e ExecutionStatusChanged) GetType() EventType {
	return ExecutionStatusChangedEvent
}

type ExecutionMetricsUpdated struct {
	BaseEvent

	ExecutionID string                    `json:"execution_id"`
	Metrics     models.PerformanceMetrics `json:"metrics"`
}

func (e ExecutionMetricsUpdated) GetType() EventType {
	return ExecutionMetricsUpdatedEvent
}
