package file

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/flowsync-io/flowsync/pkg/journal"
)

func testEntry(id, sessionID string, kind journal.EntryKind) journal.Entry {
	return journal.Entry{
		ID:        id,
		Kind:      kind,
		SessionID: sessionID,
		Timestamp: time.Now().UTC().Truncate(time.Millisecond),
		Data:      json.RawMessage(`{"change_id":"` + id + `"}`),
	}
}

func TestAppendAndEntries(t *testing.T) {
	jrnl := NewJournal(t.TempDir())

	require.NoError(t, jrnl.Append(t.Context(), testEntry("e1", "s1", journal.EntryChangeRecorded)))
	require.NoError(t, jrnl.Append(t.Context(), testEntry("e2", "s1", journal.EntryConflictRaised)))
	require.NoError(t, jrnl.Append(t.Context(), testEntry("e3", "s2", journal.EntryChangeRecorded)))

	entries, err := jrnl.Entries(t.Context(), "s1", 0)
	require.NoError(t, err)
	require.Len(t, entries, 2, "sessions are isolated")

	assert.Equal(t, "e1", entries[0].ID)
	assert.Equal(t, "e2", entries[1].ID)
	assert.Equal(t, journal.EntryConflictRaised, entries[1].Kind)
	assert.JSONEq(t, `{"change_id":"e1"}`, string(entries[0].Data))
}

func TestEntriesLimit(t *testing.T) {
	jrnl := NewJournal(t.TempDir())

	for _, id := range []string{"e1", "e2", "e3"} {
		require.NoError(t, jrnl.Append(t.Context(), testEntry(id, "s1", journal.EntryChangeRecorded)))
	}

	entries, err := jrnl.Entries(t.Context(), "s1", 2)
	require.NoError(t, err)
	require.Len(t, entries, 2)
	assert.Equal(t, "e1", entries[0].ID, "entries come back in append order")
}

func TestEntriesUnknownSession(t *testing.T) {
	jrnl := NewJournal(t.TempDir())

	entries, err := jrnl.Entries(t.Context(), "missing", 0)
	require.NoError(t, err)
	assert.Empty(t, entries)
}

func TestNewJournalStripsScheme(t *testing.T) {
	dir := t.TempDir()
	jrnl := NewJournal("file://" + dir)

	require.NoError(t, jrnl.Append(t.Context(), testEntry("e1", "s1", journal.EntryChangeRecorded)))

	entries, err := jrnl.Entries(t.Context(), "s1", 0)
	require.NoError(t, err)
	require.Len(t, entries, 1)
}

func TestHealthCheck(t *testing.T) {
	dir := t.TempDir()
	jrnl := NewJournal(dir)

	require.NoError(t, jrnl.HealthCheck(t.Context()))

	missing := NewJournal(dir + "/does-not-exist")
	require.Error(t, missing.HealthCheck(t.Context()))
}
