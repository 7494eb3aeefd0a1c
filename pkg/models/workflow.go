// Package models defines the core domain models for workflow-chat synchronization.
package models

import "time"

// ExecutionState is the coarse execution status shown in the chat representation.
type ExecutionState string

const (
	ExecutionStateIdle    ExecutionState = "idle"
	ExecutionStateRunning ExecutionState = "running"
	ExecutionStatePaused  ExecutionState = "paused"
	ExecutionStateError   ExecutionState = "error"
)

// Workflow is the canonical graph edited by both the visual editor and chat commands.
type Workflow struct {
	ID             string         `json:"id"`
	Name           string         `json:"name"        validate:"required,min=1"`
	Description    string         `json:"description"`
	Nodes          []*WorkflowNode `json:"nodes"`
	Connections    []*Connection  `json:"connections"`
	Variables      map[string]any `json:"variables,omitempty"`
	Metadata       map[string]any `json:"metadata,omitempty"`
	ExecutionState ExecutionState `json:"execution_state"`
	Owner          string         `json:"owner"`
	CreatedAt      time.Time      `json:"created_at"`
	UpdatedAt      time.Time      `json:"updated_at"`
}

// WorkflowNode is a block in the workflow graph.
type WorkflowNode struct {
	ID          string         `json:"id"          validate:"required"`
	Type        string         `json:"type"        validate:"required"`
	Name        string         `json:"name"        validate:"required,min=1"`
	Description string         `json:"description"`
	Config      map[string]any `json:"config,omitempty"`
	PositionX   int            `json:"position_x"`
	PositionY   int            `json:"position_y"`
	Enabled     bool           `json:"enabled"`
	Active      bool           `json:"active"` // currently executing
}

// Connection is an edge between two nodes.
type Connection struct {
	ID         string `json:"id"          validate:"required"`
	SourceNode string `json:"source_node" validate:"required"`
	TargetNode string `json:"target_node" validate:"required"`
	SourcePort string `json:"source_port,omitempty"`
	TargetPort string `json:"target_port,omitempty"`
}

// NodeByID returns the node with the given id, or nil.
func (w *Workflow) NodeByID(id string) *WorkflowNode {
	for _, node := range w.Nodes {
		if node.ID == id {
			return node
		}
	}

	return nil
}

// ConnectionByID returns the connection with the given id, or nil.
func (w *Workflow) ConnectionByID(id string) *Connection {
	for _, conn := range w.Connections {
		if conn.ID == id {
			return conn
		}
	}

	return nil
}
