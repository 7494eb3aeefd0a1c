package models

import "time"

// ConflictType classifies a pair of colliding concurrent changes.
type ConflictType string

const (
	ConflictTypeConcurrentBlockModification ConflictType = "concurrent_block_modification"
	ConflictTypeConcurrentConnectionChange  ConflictType = "concurrent_connection_change"
	ConflictTypeExecutionStateConflict      ConflictType = "execution_state_conflict"
	ConflictTypeStructuralConflict          ConflictType = "structural_conflict"
)

// Resolution is the strategy used to settle a conflict.
type Resolution string

const (
	ResolutionVisual Resolution = "visual"
	ResolutionChat   Resolution = "chat"
	ResolutionMerge  Resolution = "merge"
)

// SyncConflict pairs exactly one visual and one chat change that collided
// within the conflict window. Resolution is terminal.
type SyncConflict struct {
	ID                  string       `json:"id"`
	Type                ConflictType `json:"type"`
	Timestamp           time.Time    `json:"timestamp"`
	Description         string       `json:"description"`
	VisualChange        *ChangeEvent `json:"visual_change"`
	ChatChange          *ChangeEvent `json:"chat_change"`
	SuggestedResolution Resolution   `json:"suggested_resolution,omitempty"`
	AutoResolvable      bool         `json:"auto_resolvable"`
}

// SyncStatus is the state of a workflow-chat synchronization pairing.
type SyncStatus string

const (
	SyncStatusDisabled SyncStatus = "disabled"
	SyncStatusIdle     SyncStatus = "idle"
	SyncStatusSyncing  SyncStatus = "syncing"
	SyncStatusConflict SyncStatus = "conflict"
	SyncStatusError    SyncStatus = "error"
)

// SyncState holds the synchronization status of one active pairing.
// Invariant: Status == SyncStatusConflict exactly when Conflicts is non-empty.
type SyncState struct {
	Enabled        bool            `json:"enabled"`
	Status         SyncStatus      `json:"status"`
	Conflicts      []*SyncConflict `json:"conflicts"`
	Representation *Representation `json:"representation,omitempty"`
}
