package events

import "time"

// EngineEventType identifies a step-level event emitted by the execution engine.
type EngineEventType string

const (
	StepStartedEvent        EngineEventType = "step.started"
	StepCompletedEvent      EngineEventType = "step.completed"
	StepFailedEvent         EngineEventType = "step.failed"
	StepSkippedEvent        EngineEventType = "step.skipped"
	ExecutionCompletedEvent EngineEventType = "execution.completed"
	ExecutionFailedEvent    EngineEventType = "execution.failed"
	ExecutionPausedEvent    EngineEventType = "execution.paused"
	ExecutionResumedEvent   EngineEventType = "execution.resumed"
)

// ExecutionEvent is one event from the execution engine collaborator.
// Delivery is at-least-once: consumers must deduplicate by ID. The typed
// sections below are populated according to Type.
type ExecutionEvent struct {
	ID          string          `json:"id"`
	Type        EngineEventType `json:"type"`
	ExecutionID string          `json:"execution_id"`
	Timestamp   time.Time       `json:"timestamp"`

	Step     *StepInfo     `json:"step,omitempty"`     // step.* events
	Failure  *FailureInfo  `json:"failure,omitempty"`  // step.failed, execution.failed
	Progress *ProgressInfo `json:"progress,omitempty"` // step.* events
	Usage    *UsageInfo    `json:"usage,omitempty"`    // step.completed
}

// StepInfo describes the step an event refers to.
type StepInfo struct {
	ID         string `json:"id"`
	Name       string `json:"name"`
	Index      int    `json:"index"`
	Total      int    `json:"total"`
	DurationMs int64  `json:"duration_ms,omitempty"`
	Output     any    `json:"output,omitempty"`
}

// FailureInfo carries the engine's failure report and which recovery
// actions it considers viable.
type FailureInfo struct {
	Message  string `json:"message"`
	Code     string `json:"code,omitempty"`
	CanRetry bool   `json:"can_retry"`
	CanSkip  bool   `json:"can_skip"`
	CanDebug bool   `json:"can_debug"`
}

// UsageInfo samples the resources one step consumed. Engines report what
// they can observe; an engine that performs no network I/O leaves the
// network fields zero.
type UsageInfo struct {
	MemoryBytes      int64   `json:"memory_bytes,omitempty"`
	RequestCount     int     `json:"request_count,omitempty"`
	BytesTransferred int64   `json:"bytes_transferred,omitempty"`
	ResponseTimeMs   float64 `json:"response_time_ms,omitempty"`
}

// ProgressInfo reports overall run progress as estimated by the engine.
type ProgressInfo struct {
	Percent                  float64 `json:"percent"`
	EstimatedTimeRemainingMs int64   `json:"estimated_time_remaining_ms,omitempty"`
}
