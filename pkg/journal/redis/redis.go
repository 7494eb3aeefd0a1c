// Package redis provides a journal implementation backed by Redis Streams.
package redis

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	goredis "github.com/redis/go-redis/v9"

	"github.com/flowsync-io/flowsync/pkg/journal"
)

const streamKeyPrefix = "flowsync:journal:"

// Journal appends session entries to one Redis stream per session.
type Journal struct {
	client goredis.UniversalClient
}

// NewJournal creates a Redis Streams journal from a connection URL.
func NewJournal(url string) (*Journal, error) {
	opts, err := goredis.ParseURL(url)
	if err != nil {
		return nil, fmt.Errorf("parse redis url: %w", err)
	}

	return &Journal{client: goredis.NewClient(opts)}, nil
}

// NewJournalWithClient wraps an existing client, used by tests.
func NewJournalWithClient(client goredis.UniversalClient) *Journal {
	return &Journal{client: client}
}

func streamKey(sessionID string) string {
	return streamKeyPrefix + sessionID
}

func (j *Journal) Append(ctx context.Context, entry journal.Entry) error {
	data, err := json.Marshal(entry)
	if err != nil {
		return fmt.Errorf("marshal journal entry: %w", err)
	}

	err = j.client.XAdd(ctx, &goredis.XAddArgs{
		Stream: streamKey(entry.SessionID),
		Values: map[string]any{
			"id":        entry.ID,
			"kind":      string(entry.Kind),
			"timestamp": entry.Timestamp.UTC().Format(time.RFC3339Nano),
			"entry":     string(data),
		},
	}).Err()
	if err != nil {
		return fmt.Errorf("append to stream %s: %w", streamKey(entry.SessionID), err)
	}

	return nil
}

func (j *Journal) Entries(ctx context.Context, sessionID string, limit int) ([]journal.Entry, error) {
	var (
		messages []goredis.XMessage
		err      error
	)

	if limit > 0 {
		messages, err = j.client.XRangeN(ctx, streamKey(sessionID), "-", "+", int64(limit)).Result()
	} else {
		messages, err = j.client.XRange(ctx, streamKey(sessionID), "-", "+").Result()
	}

	if err != nil {
		return nil, fmt.Errorf("read stream %s: %w", streamKey(sessionID), err)
	}

	entries := make([]journal.Entry, 0, len(messages))

	for _, msg := range messages {
		raw, ok := msg.Values["entry"].(string)
		if !ok {
			return nil, fmt.Errorf("stream %s message %s has no entry field", streamKey(sessionID), msg.ID)
		}

		var entry journal.Entry
		if err := json.Unmarshal([]byte(raw), &entry); err != nil {
			return nil, fmt.Errorf("decode journal entry %s: %w", msg.ID, err)
		}

		entries = append(entries, entry)
	}

	return entries, nil
}

func (j *Journal) HealthCheck(ctx context.Context) error {
	return j.client.Ping(ctx).Err()
}

func (j *Journal) Close(_ context.Context) error {
	return j.client.Close()
}
