// Package snapshot derives the chat-displayable summary of a workflow graph.
package snapshot

import (
	"fmt"

	"github.com/flowsync-io/flowsync/pkg/models"
)

// BuildRepresentation derives a Representation from the current graph.
// It is a pure function: the result holds no references into the graph's
// mutable structures, and an empty graph yields an empty representation.
// Runs in O(nodes + edges).
func BuildRepresentation(workflow *models.Workflow) *models.Representation {
	if workflow == nil {
		return &models.Representation{
			BlockSummaries:      []models.BlockSummary{},
			ConnectionSummaries: []models.ConnectionSummary{},
			ExecutionState:      models.ExecutionStateIdle,
		}
	}

	blocks := make([]models.BlockSummary, 0, len(workflow.Nodes))
	for _, node := range workflow.Nodes {
		blocks = append(blocks, models.BlockSummary{
			ID:          node.ID,
			Name:        node.Name,
			Type:        node.Type,
			Description: node.Description,
			IsActive:    node.Active,
			IsEnabled:   node.Enabled,
		})
	}

	nodeNames := make(map[string]string, len(workflow.Nodes))
	for _, node := range workflow.Nodes {
		nodeNames[node.ID] = node.Name
	}

	connections := make([]models.ConnectionSummary, 0, len(workflow.Connections))
	for _, conn := range workflow.Connections {
		connections = append(connections, models.ConnectionSummary{
			ID:          conn.ID,
			Description: describeConnection(conn, nodeNames),
		})
	}

	state := workflow.ExecutionState
	if state == "" {
		state = models.ExecutionStateIdle
	}

	return &models.Representation{
		BlockSummaries:      blocks,
		ConnectionSummaries: connections,
		ExecutionState:      state,
	}
}

func describeConnection(conn *models.Connection, nodeNames map[string]string) string {
	source := nodeNames[conn.SourceNode]
	if source == "" {
		source = conn.SourceNode
	}

	target := nodeNames[conn.TargetNode]
	if target == "" {
		target = conn.TargetNode
	}

	return fmt.Sprintf("%s -> %s", source, target)
}
