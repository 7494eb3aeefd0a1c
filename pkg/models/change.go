package models

import (
	"encoding/json"
	"fmt"
)

// ChangeType identifies the kind of mutation a ChangeEvent describes.
type ChangeType string

const (
	ChangeTypeNodeAdded             ChangeType = "node_added"
	ChangeTypeNodeRemoved           ChangeType = "node_removed"
	ChangeTypeNodeModified          ChangeType = "node_modified"
	ChangeTypeEdgeAdded             ChangeType = "edge_added"
	ChangeTypeEdgeRemoved           ChangeType = "edge_removed"
	ChangeTypeExecutionStateChanged ChangeType = "execution_state_changed"
)

// IsStructural reports whether the change alters graph topology.
func (t ChangeType) IsStructural() bool {
	switch t {
	case ChangeTypeNodeAdded, ChangeTypeNodeRemoved, ChangeTypeEdgeAdded, ChangeTypeEdgeRemoved:
		return true
	default:
		return false
	}
}

// ChangeSource identifies which side of the pairing produced a change.
type ChangeSource string

const (
	ChangeSourceVisual ChangeSource = "visual"
	ChangeSourceChat   ChangeSource = "chat"
)

// ChangeStatus tracks the two-phase apply of a change: recorded as pending,
// then either applied to the canonical graph or rejected by conflict handling.
type ChangeStatus string

const (
	ChangeStatusPending  ChangeStatus = "pending"
	ChangeStatusApplied  ChangeStatus = "applied"
	ChangeStatusRejected ChangeStatus = "rejected"
)

// ChangePayload is the typed payload of a ChangeEvent. Each ChangeType has
// exactly one payload variant.
type ChangePayload interface {
	// TargetEntity returns the node or edge id the change touches, or ""
	// for global concerns such as execution state.
	TargetEntity() string
}

// NodeAddedPayload carries the full definition of the new node.
type NodeAddedPayload struct {
	Node WorkflowNode `json:"node" validate:"required"`
}

func (p NodeAddedPayload) TargetEntity() string { return p.Node.ID }

type NodeRemovedPayload struct {
	NodeID string `json:"node_id" validate:"required"`
}

func (p NodeRemovedPayload) TargetEntity() string { return p.NodeID }

// NodeModifiedPayload carries a partial update: only the listed fields change.
type NodeModifiedPayload struct {
	NodeID string         `json:"node_id" validate:"required"`
	Fields map[string]any `json:"fields"  validate:"required,min=1"`
}

func (p NodeModifiedPayload) TargetEntity() string { return p.NodeID }

type EdgeAddedPayload struct {
	Connection Connection `json:"connection" validate:"required"`
}

func (p EdgeAddedPayload) TargetEntity() string { return p.Connection.ID }

type EdgeRemovedPayload struct {
	EdgeID string `json:"edge_id" validate:"required"`
}

func (p EdgeRemovedPayload) TargetEntity() string { return p.EdgeID }

type ExecutionStateChangedPayload struct {
	State ExecutionState `json:"state" validate:"required"`
}

// Execution-state changes are a global concern, not tied to a single entity.
func (p ExecutionStateChangedPayload) TargetEntity() string { return "" }

// ChangeEvent records one observed mutation from either the visual editor or
// the chat side. Payload is a tagged union keyed by Type.
type ChangeEvent struct {
	ID        string        `json:"id"        validate:"required"`
	Type      ChangeType    `json:"type"      validate:"required"`
	Timestamp int64         `json:"timestamp" validate:"required"` // unix ms
	Source    ChangeSource  `json:"source"    validate:"required,oneof=visual chat"`
	ActorID   string        `json:"actor_id"`
	Status    ChangeStatus  `json:"status"`
	Payload   ChangePayload `json:"-"`
}

// TargetEntity returns the entity id the change touches, or "" for global changes.
func (c *ChangeEvent) TargetEntity() string {
	if c.Payload == nil {
		return ""
	}

	return c.Payload.TargetEntity()
}

type changeEventJSON struct {
	ID        string          `json:"id"`
	Type      ChangeType      `json:"type"`
	Timestamp int64           `json:"timestamp"`
	Source    ChangeSource    `json:"source"`
	ActorID   string          `json:"actor_id,omitempty"`
	Status    ChangeStatus    `json:"status,omitempty"`
	Data      json.RawMessage `json:"data,omitempty"`
}

// MarshalJSON encodes the payload under the "data" key.
func (c ChangeEvent) MarshalJSON() ([]byte, error) {
	out := changeEventJSON{
		ID:        c.ID,
		Type:      c.Type,
		Timestamp: c.Timestamp,
		Source:    c.Source,
		ActorID:   c.ActorID,
		Status:    c.Status,
	}

	if c.Payload != nil {
		data, err := json.Marshal(c.Payload)
		if err != nil {
			return nil, err
		}

		out.Data = data
	}

	return json.Marshal(out)
}

// UnmarshalJSON decodes the "data" key into the payload variant matching Type.
func (c *ChangeEvent) UnmarshalJSON(data []byte) error {
	var raw changeEventJSON
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}

	c.ID = raw.ID
	c.Type = raw.Type
	c.Timestamp = raw.Timestamp
	c.Source = raw.Source
	c.ActorID = raw.ActorID
	c.Status = raw.Status

	if len(raw.Data) == 0 {
		c.Payload = nil

		return nil
	}

	payload, err := DecodeChangePayload(raw.Type, raw.Data)
	if err != nil {
		return err
	}

	c.Payload = payload

	return nil
}

// DecodeChangePayload decodes a raw payload into the variant for the given change type.
func DecodeChangePayload(changeType ChangeType, data json.RawMessage) (ChangePayload, error) {
	var (
		payload ChangePayload
		err     error
	)

	switch changeType {
	case ChangeTypeNodeAdded:
		var p NodeAddedPayload

		err = json.Unmarshal(data, &p)
		payload = p
	case ChangeTypeNodeRemoved:
		var p NodeRemovedPayload

		err = json.Unmarshal(data, &p)
		payload = p
	case ChangeTypeNodeModified:
		var p NodeModifiedPayload

		err = json.Unmarshal(data, &p)
		payload = p
	case ChangeTypeEdgeAdded:
		var p EdgeAddedPayload

		err = json.Unmarshal(data, &p)
		payload = p
	case ChangeTypeEdgeRemoved:
		var p EdgeRemovedPayload

		err = json.Unmarshal(data, &p)
		payload = p
	case ChangeTypeExecutionStateChanged:
		var p ExecutionStateChangedPayload

		err = json.Unmarshal(data, &p)
		payload = p
	default:
		return nil, fmt.Errorf("unknown change type: %s", changeType)
	}

	if err != nil {
		return nil, fmt.Errorf("decode %s payload: %w", changeType, err)
	}

	return payload, nil
}
