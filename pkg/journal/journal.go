// Package journal provides the append-only event journal abstraction.
// The synchronization core treats persistence as a sink: entries are appended
// as they happen and only ever read back for replay or inspection.
package journal

import (
	"context"
	"encoding/json"
	"time"
)

// EntryKind classifies a journal entry.
type EntryKind string

const (
	EntryChangeRecorded      EntryKind = "change_recorded"
	EntryConflictRaised      EntryKind = "conflict_raised"
	EntryConflictResolved    EntryKind = "conflict_resolved"
	EntryExecutionTransition EntryKind = "execution_transition"
	EntryMessageAppended     EntryKind = "message_appended"
)

// Entry is one immutable journal record.
type Entry struct {
	ID        string          `json:"id"`
	Kind      EntryKind       `json:"kind"`
	SessionID string          `json:"session_id"`
	Timestamp time.Time       `json:"timestamp"`
	Data      json.RawMessage `json:"data,omitempty"`
}

// Journal is an append-only sink for session events.
type Journal interface {
	Append(ctx context.Context, entry Entry) error
	// Entries returns up to limit entries for a session in append order.
	// limit <= 0 means no limit.
	Entries(ctx context.Context, sessionID string, limit int) ([]Entry, error)
	HealthCheck(ctx context.Context) error
	Close(ctx context.Context) error
}
