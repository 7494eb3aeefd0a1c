package models

import "time"

// ExecutionStatus is the lifecycle state of one execution run.
type ExecutionStatus string

const (
	ExecutionStatusIdle      ExecutionStatus = "idle"
	ExecutionStatusStarting  ExecutionStatus = "starting"
	ExecutionStatusRunning   ExecutionStatus = "running"
	ExecutionStatusPaused    ExecutionStatus = "paused"
	ExecutionStatusCompleted ExecutionStatus = "completed"
	ExecutionStatusFailed    ExecutionStatus = "failed"
	ExecutionStatusStopped   ExecutionStatus = "stopped"
	ExecutionStatusError     ExecutionStatus = "error"
)

// IsTerminal reports whether no further transitions are possible.
func (s ExecutionStatus) IsTerminal() bool {
	switch s {
	case ExecutionStatusCompleted, ExecutionStatusFailed, ExecutionStatusStopped:
		return true
	default:
		return false
	}
}

// WorkflowExecution tracks one execution run bridged to conversational output.
type WorkflowExecution struct {
	ID          string                  `json:"id"`
	JourneyID   string                  `json:"journey_id"`
	WorkspaceID string                  `json:"workspace_id"`
	UserID      string                  `json:"user_id"`
	StartTime   time.Time               `json:"start_time"`
	EndTime     *time.Time              `json:"end_time,omitempty"`
	CurrentStep int                     `json:"current_step"`
	Status      ExecutionStatus         `json:"status"`
	Messages    []ConversationalMessage `json:"messages"`
	Metrics     PerformanceMetrics      `json:"performance_metrics"`
}

// PerformanceMetrics keeps running counters for one execution.
// Invariant: CompletedSteps + FailedSteps + SkippedSteps <= TotalSteps.
// AverageStepTime is an incrementally updated running mean.
type PerformanceMetrics struct {
	AverageStepTime float64      `json:"average_step_time_ms"`
	TotalSteps      int          `json:"total_steps"`
	CompletedSteps  int          `json:"completed_steps"`
	FailedSteps     int          `json:"failed_steps"`
	SkippedSteps    int          `json:"skipped_steps"`
	MemoryUsage     MemoryUsage  `json:"memory_usage"`
	NetworkUsage    NetworkUsage `json:"network_usage"`
}

type MemoryUsage struct {
	Current int64   `json:"current"`
	Peak    int64   `json:"peak"`
	Average float64 `json:"average"`
}

type NetworkUsage struct {
	RequestCount         int     `json:"request_count"`
	TotalDataTransferred int64   `json:"total_data_transferred"`
	AverageResponseTime  float64 `json:"average_response_time_ms"`
}
