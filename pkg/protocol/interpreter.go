package protocol

import (
	"context"

	"github.com/flowsync-io/flowsync/pkg/models"
)

// CommandInterpreter is the natural-language parsing black box. Parse returns
// the structured command and true, or nil and false when the text is not a
// command. "Not a command" is data, not an error.
type CommandInterpreter interface {
	Parse(ctx context.Context, text string) (*models.ParsedCommand, bool)
}
