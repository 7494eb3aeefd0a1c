package models

// CommandType identifies a structured command parsed from chat text.
type CommandType string

const (
	// Execution control commands dispatched to the streamer.
	CommandTypeRun    CommandType = "run"
	CommandTypePause  CommandType = "pause"
	CommandTypeResume CommandType = "resume"
	CommandTypeStop   CommandType = "stop"
	CommandTypeRetry  CommandType = "retry"
	CommandTypeSkip   CommandType = "skip"
	CommandTypeDebug  CommandType = "debug"

	// Graph editing commands recorded as chat changes.
	CommandTypeAddNode     CommandType = "add_node"
	CommandTypeRemoveNode  CommandType = "remove_node"
	CommandTypeModifyNode  CommandType = "modify_node"
	CommandTypeConnect     CommandType = "connect"
	CommandTypeDisconnect  CommandType = "disconnect"
	CommandTypeShowStatus  CommandType = "show_status"
)

// IsExecutionControl reports whether the command is handled by the streamer
// rather than recorded as a graph change.
func (t CommandType) IsExecutionControl() bool {
	switch t {
	case CommandTypeRun, CommandTypePause, CommandTypeResume, CommandTypeStop,
		CommandTypeRetry, CommandTypeSkip, CommandTypeDebug:
		return true
	default:
		return false
	}
}

// ParsedCommand is the normalized output of the command interpreter boundary.
type ParsedCommand struct {
	Type         CommandType    `json:"type"`
	TargetEntity string         `json:"target_entity,omitempty"`
	Parameters   map[string]any `json:"parameters,omitempty"`
}
