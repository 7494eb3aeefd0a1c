// Package interpreter provides a rule-based reference implementation of the
// command interpreter boundary. Production deployments plug in an external
// NLP service behind the same interface; this implementation covers the
// structured phrasings the chat surface emits itself.
package interpreter

import (
	"context"
	"regexp"
	"strings"

	"github.com/flowsync-io/flowsync/pkg/models"
)

type RuleBased struct{}

func NewRuleBased() *RuleBased {
	return &RuleBased{}
}

var (
	addNodePattern    = regexp.MustCompile(`^add\s+(?:a\s+|an\s+)?(\S+)\s+(?:node|block|step)(?:\s+(?:called|named)\s+(.+))?$`)
	removeNodePattern = regexp.MustCompile(`^(?:remove|delete)\s+(?:node|block|step)\s+(\S+)$`)
	modifyNodePattern = regexp.MustCompile(`^(?:set|change)\s+(?:node|block|step)\s+(\S+)\s+(\S+)\s+(?:to\s+)?(.+)$`)
	connectPattern    = regexp.MustCompile(`^connect\s+(\S+)\s+(?:to|->)\s+(\S+)$`)
	disconnectPattern = regexp.MustCompile(`^disconnect\s+(\S+)$`)
)

// Single-word execution control commands with a few common synonyms.
var controlCommands = map[string]models.CommandType{
	"run":      models.CommandTypeRun,
	"execute":  models.CommandTypeRun,
	"start":    models.CommandTypeRun,
	"pause":    models.CommandTypePause,
	"resume":   models.CommandTypeResume,
	"continue": models.CommandTypeResume,
	"stop":     models.CommandTypeStop,
	"cancel":   models.CommandTypeStop,
	"retry":    models.CommandTypeRetry,
	"skip":     models.CommandTypeSkip,
	"debug":    models.CommandTypeDebug,
}

// Parse normalizes free text into a structured command. The second return
// value is false when the text is not recognized as a command. Matching is
// case-insensitive; free-form values such as node names keep their original
// casing.
func (r *RuleBased) Parse(_ context.Context, text string) (*models.ParsedCommand, bool) {
	trimmed := strings.TrimSpace(text)
	normalized := strings.ToLower(trimmed)

	if normalized == "" {
		return nil, false
	}

	// Lowercasing can change byte offsets for some scripts; fall back to the
	// normalized text when extracting submatches would misalign.
	source := trimmed
	if len(normalized) != len(trimmed) {
		source = normalized
	}

	fields := strings.Fields(normalized)

	if commandType, ok := controlCommands[fields[0]]; ok {
		cmd := &models.ParsedCommand{Type: commandType}
		if len(fields) > 1 {
			cmd.TargetEntity = fields[len(fields)-1]
		}

		return cmd, true
	}

	if normalized == "status" || normalized == "show status" || normalized == "show workflow" {
		return &models.ParsedCommand{Type: models.CommandTypeShowStatus}, true
	}

	if m := submatches(addNodePattern, normalized, source); m != nil {
		params := map[string]any{"node_type": strings.ToLower(m[1])}
		if m[2] != "" {
			params["name"] = strings.TrimSpace(m[2])
		}

		return &models.ParsedCommand{Type: models.CommandTypeAddNode, Parameters: params}, true
	}

	if m := submatches(removeNodePattern, normalized, source); m != nil {
		return &models.ParsedCommand{Type: models.CommandTypeRemoveNode, TargetEntity: strings.ToLower(m[1])}, true
	}

	if m := submatches(modifyNodePattern, normalized, source); m != nil {
		return &models.ParsedCommand{
			Type:         models.CommandTypeModifyNode,
			TargetEntity: strings.ToLower(m[1]),
			Parameters:   map[string]any{"field": strings.ToLower(m[2]), "value": strings.TrimSpace(m[3])},
		}, true
	}

	if m := submatches(connectPattern, normalized, source); m != nil {
		return &models.ParsedCommand{
			Type:       models.CommandTypeConnect,
			Parameters: map[string]any{"source": strings.ToLower(m[1]), "target": strings.ToLower(m[2])},
		}, true
	}

	if m := submatches(disconnectPattern, normalized, source); m != nil {
		return &models.ParsedCommand{Type: models.CommandTypeDisconnect, TargetEntity: strings.ToLower(m[1])}, true
	}

	return nil, false
}

// submatches matches the pattern against the normalized text and extracts the
// capture groups from source, preserving the user's casing.
func submatches(pattern *regexp.Regexp, normalized, source string) []string {
	loc := pattern.FindStringSubmatchIndex(normalized)
	if loc == nil {
		return nil
	}

	groups := make([]string, len(loc)/2)

	for i := range groups {
		start, end := loc[2*i], loc[2*i+1]
		if start < 0 {
			continue
		}

		groups[i] = source[start:end]
	}

	return groups
}
