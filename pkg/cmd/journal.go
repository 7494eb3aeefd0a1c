package cmd

import (
	"fmt"
	"strings"

	"github.com/flowsync-io/flowsync/pkg/journal"
	filejournal "github.com/flowsync-io/flowsync/pkg/journal/file"
	redisjournal "github.com/flowsync-io/flowsync/pkg/journal/redis"
)

// NewJournal creates a journal from a URL. Supported schemes are redis:// and
// file://; an empty URL disables journaling.
func NewJournal(url string) journal.Journal {
	switch {
	case url == "":
		return nil
	case strings.HasPrefix(url, "redis://"):
		jrnl, err := redisjournal.NewJournal(url)
		if err != nil {
			panic(fmt.Errorf("failed to create Redis journal: %w", err))
		}

		return jrnl
	case strings.HasPrefix(url, "file://"):
		return filejournal.NewJournal(strings.TrimPrefix(url, "file://"))
	default:
		panic("Unsupported journal URL: " + url)
	}
}
