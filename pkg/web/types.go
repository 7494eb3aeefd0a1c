// Package web provides HTTP request and response types for the session API.
package web

import (
	"encoding/json"

	"github.com/flowsync-io/flowsync/pkg/models"
)

// OpenSessionRequest represents the request body for opening a sync session.
type OpenSessionRequest struct {
	SessionID   string          `json:"session_id"   validate:"required,min=1"`
	WorkspaceID string          `json:"workspace_id"`
	Workflow    models.Workflow `json:"workflow"     validate:"required"`
}

// RecordChangeRequest represents a raw change event arriving over the
// boundary. Data is validated against the payload schema for Type before
// being decoded into the typed payload.
type RecordChangeRequest struct {
	ID        string            `json:"id"        validate:"required"`
	Type      models.ChangeType `json:"type"      validate:"required"`
	Timestamp int64             `json:"timestamp" validate:"required"`
	ActorID   string            `json:"actor_id"`
	Data      json.RawMessage   `json:"data"      validate:"required"`
}

// ToChangeEvent validates and decodes the raw payload.
func (r RecordChangeRequest) ToChangeEvent() (*models.ChangeEvent, error) {
	if err := models.ValidateChangePayload(r.Type, r.Data); err != nil {
		return nil, err
	}

	payload, err := models.DecodeChangePayload(r.Type, r.Data)
	if err != nil {
		return nil, err
	}

	return &models.ChangeEvent{
		ID:        r.ID,
		Type:      r.Type,
		Timestamp: r.Timestamp,
		ActorID:   r.ActorID,
		Payload:   payload,
	}, nil
}

// ResolveConflictRequest represents the request body for resolving a conflict.
type ResolveConflictRequest struct {
	Resolution models.Resolution `json:"resolution" validate:"required,oneof=visual chat merge"`
}

// StartExecutionRequest represents the request body for starting an execution.
type StartExecutionRequest struct {
	UserID string `json:"user_id" validate:"required"`
}

// ChatMessageRequest represents one chat message sent into a session.
type ChatMessageRequest struct {
	ActorID string `json:"actor_id" validate:"required"`
	Text    string `json:"text"     validate:"required,min=1"`
}

// RecordChangeResponse reports the outcome of recording a change: either it
// was applied or a conflict now awaits resolution.
type RecordChangeResponse struct {
	Applied  bool                 `json:"applied"`
	Conflict *models.SyncConflict `json:"conflict,omitempty"`
}
