package models

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/xeipuuv/gojsonschema"
)

// Payload schemas, one per change type. Raw change payloads arriving over the
// boundary are validated against these before being decoded.
var changePayloadSchemas = map[ChangeType]map[string]any{
	ChangeTypeNodeAdded: {
		"type":     "object",
		"required": []string{"node"},
		"properties": map[string]any{
			"node": map[string]any{
				"type":     "object",
				"required": []string{"id", "type", "name"},
			},
		},
	},
	ChangeTypeNodeRemoved: {
		"type":     "object",
		"required": []string{"node_id"},
		"properties": map[string]any{
			"node_id": map[string]any{"type": "string", "minLength": 1},
		},
	},
	ChangeTypeNodeModified: {
		"type":     "object",
		"required": []string{"node_id", "fields"},
		"properties": map[string]any{
			"node_id": map[string]any{"type": "string", "minLength": 1},
			"fields":  map[string]any{"type": "object", "minProperties": 1},
		},
	},
	ChangeTypeEdgeAdded: {
		"type":     "object",
		"required": []string{"connection"},
		"properties": map[string]any{
			"connection": map[string]any{
				"type":     "object",
				"required": []string{"id", "source_node", "target_node"},
			},
		},
	},
	ChangeTypeEdgeRemoved: {
		"type":     "object",
		"required": []string{"edge_id"},
		"properties": map[string]any{
			"edge_id": map[string]any{"type": "string", "minLength": 1},
		},
	},
	ChangeTypeExecutionStateChanged: {
		"type":     "object",
		"required": []string{"state"},
		"properties": map[string]any{
			"state": map[string]any{
				"type": "string",
				"enum": []string{"idle", "running", "paused", "error"},
			},
		},
	},
}

// ValidateChangePayload checks a raw payload against the schema for its change type.
func ValidateChangePayload(changeType ChangeType, data json.RawMessage) error {
	schema, ok := changePayloadSchemas[changeType]
	if !ok {
		return fmt.Errorf("unknown change type: %s", changeType)
	}

	schemaLoader := gojsonschema.NewGoLoader(schema)
	dataLoader := gojsonschema.NewBytesLoader(data)

	result, err := gojsonschema.Validate(schemaLoader, dataLoader)
	if err != nil {
		return fmt.Errorf("payload schema validation: %w", err)
	}

	if !result.Valid() {
		details := make([]string, 0, len(result.Errors()))
		for _, desc := range result.Errors() {
			details = append(details, desc.String())
		}

		return fmt.Errorf("invalid %s payload: %s", changeType, strings.Join(details, "; "))
	}

	return nil
}
