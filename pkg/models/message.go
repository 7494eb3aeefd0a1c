package models

import "time"

// MessageType classifies a conversational message.
type MessageType string

const (
	MessageTypeSystem   MessageType = "system"
	MessageTypeProgress MessageType = "progress"
	MessageTypeResult   MessageType = "result"
	MessageTypeError    MessageType = "error"
	MessageTypeWarning  MessageType = "warning"
)

// ConversationalMessage is one chat line produced while bridging an execution.
// Messages are append-only; the buffer evicts from the front when full.
type ConversationalMessage struct {
	ID        string          `json:"id"`
	Type      MessageType     `json:"type"`
	Content   string          `json:"content"`
	Timestamp time.Time       `json:"timestamp"`
	Metadata  MessageMetadata `json:"metadata"`
}

// MessageMetadata carries step context and the actions available to the user.
type MessageMetadata struct {
	StepID             string        `json:"step_id,omitempty"`
	ExecutionTimeMs    int64         `json:"execution_time_ms,omitempty"`
	UserActionRequired bool          `json:"user_action_required,omitempty"`
	CanRetry           bool          `json:"can_retry,omitempty"`
	CanSkip            bool          `json:"can_skip,omitempty"`
	CanDebug           bool          `json:"can_debug,omitempty"`
	Progress           *ProgressData `json:"progress,omitempty"`
}

// ProgressData reports completion of the overall run at the time of the message.
type ProgressData struct {
	Percent                float64 `json:"percent"`
	CurrentStep            int     `json:"current_step"`
	TotalSteps             int     `json:"total_steps"`
	EstimatedTimeRemaining int64   `json:"estimated_time_remaining_ms,omitempty"`
}
