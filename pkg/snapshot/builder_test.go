package snapshot

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/flowsync-io/flowsync/pkg/models"
)

func testWorkflow() *models.Workflow {
	return &models.Workflow{
		ID:   "wf-1",
		Name: "Order Pipeline",
		Nodes: []*models.WorkflowNode{
			{
				ID:          "n1",
				Type:        "http_request",
				Name:        "Fetch Orders",
				Description: "Pulls open orders",
				Enabled:     true,
				Active:      true,
			},
			{
				ID:      "n2",
				Type:    "transform",
				Name:    "Normalize",
				Enabled: false,
			},
		},
		Connections: []*models.Connection{
			{ID: "e1", SourceNode: "n1", TargetNode: "n2"},
		},
		ExecutionState: models.ExecutionStateRunning,
	}
}

func TestBuildRepresentation(t *testing.T) {
	rep := BuildRepresentation(testWorkflow())
	require.NotNil(t, rep)

	require.Len(t, rep.BlockSummaries, 2)
	assert.Equal(t, "n1", rep.BlockSummaries[0].ID)
	assert.Equal(t, "Fetch Orders", rep.BlockSummaries[0].Name)
	assert.True(t, rep.BlockSummaries[0].IsActive)
	assert.True(t, rep.BlockSummaries[0].IsEnabled)
	assert.False(t, rep.BlockSummaries[1].IsEnabled)

	require.Len(t, rep.ConnectionSummaries, 1)
	assert.Equal(t, "e1", rep.ConnectionSummaries[0].ID)
	assert.Equal(t, "Fetch Orders -> Normalize", rep.ConnectionSummaries[0].Description)

	assert.Equal(t, models.ExecutionStateRunning, rep.ExecutionState)
}

func TestBuildRepresentation_EmptyGraph(t *testing.T) {
	rep := BuildRepresentation(&models.Workflow{ID: "wf-empty"})
	require.NotNil(t, rep)

	assert.Empty(t, rep.BlockSummaries)
	assert.Empty(t, rep.ConnectionSummaries)
	assert.Equal(t, models.ExecutionStateIdle, rep.ExecutionState)
}

func TestBuildRepresentation_NilWorkflow(t *testing.T) {
	rep := BuildRepresentation(nil)
	require.NotNil(t, rep)
	assert.Empty(t, rep.BlockSummaries)
}

func TestBuildRepresentation_DefensiveCopy(t *testing.T) {
	workflow := testWorkflow()
	rep := BuildRepresentation(workflow)

	// Mutating the graph after building must not change the representation.
	workflow.Nodes[0].Name = "Renamed"
	workflow.Connections[0].TargetNode = "n9"

	assert.Equal(t, "Fetch Orders", rep.BlockSummaries[0].Name)
	assert.Equal(t, "Fetch Orders -> Normalize", rep.ConnectionSummaries[0].Description)
}

func TestBuildRepresentation_UnknownNodeInConnection(t *testing.T) {
	workflow := &models.Workflow{
		Connections: []*models.Connection{
			{ID: "e1", SourceNode: "ghost-a", TargetNode: "ghost-b"},
		},
	}

	rep := BuildRepresentation(workflow)
	require.Len(t, rep.ConnectionSummaries, 1)
	assert.Equal(t, "ghost-a -> ghost-b", rep.ConnectionSummaries[0].Description)
}
