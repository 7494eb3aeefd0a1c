// Package file provides a file-based journal implementation, one JSONL file per session.
package file

import (
	"bufio"
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"github.com/flowsync-io/flowsync/pkg/journal"
)

// Journal implements journal.Journal on the local file system.
type Journal struct {
	root string
	mu   sync.Mutex
}

// NewJournal creates a journal rooted at the given directory.
func NewJournal(root string) *Journal {
	cleanRoot := strings.Replace(root, "file://", "", 1)

	return &Journal{root: cleanRoot}
}

func (j *Journal) sessionPath(sessionID string) string {
	return filepath.Join(j.root, sessionID+".jsonl")
}

func (j *Journal) Append(_ context.Context, entry journal.Entry) error {
	j.mu.Lock()
	defer j.mu.Unlock()

	if err := os.MkdirAll(j.root, 0o755); err != nil {
		return fmt.Errorf("create journal root: %w", err)
	}

	line, err := json.Marshal(entry)
	if err != nil {
		return fmt.Errorf("marshal journal entry: %w", err)
	}

	f, err := os.OpenFile(j.sessionPath(entry.SessionID), os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		return fmt.Errorf("open journal file: %w", err)
	}
	defer f.Close()

	if _, err := f.Write(append(line, '\n')); err != nil {
		return fmt.Errorf("append journal entry: %w", err)
	}

	return nil
}

func (j *Journal) Entries(_ context.Context, sessionID string, limit int) ([]journal.Entry, error) {
	j.mu.Lock()
	defer j.mu.Unlock()

	f, err := os.Open(j.sessionPath(sessionID))
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}

		return nil, fmt.Errorf("open journal file: %w", err)
	}
	defer f.Close()

	var entries []journal.Entry

	scanner := bufio.NewScanner(f)
	for scanner.Scan() {
		var entry journal.Entry
		if err := json.Unmarshal(scanner.Bytes(), &entry); err != nil {
			return nil, fmt.Errorf("decode journal entry: %w", err)
		}

		entries = append(entries, entry)

		if limit > 0 && len(entries) >= limit {
			break
		}
	}

	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("read journal file: %w", err)
	}

	return entries, nil
}

func (j *Journal) HealthCheck(_ context.Context) error {
	if _, err := os.Stat(j.root); os.IsNotExist(err) {
		return os.ErrNotExist
	}

	return nil
}

func (j *Journal) Close(_ context.Context) error {
	return nil
}
