package syncer

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/flowsync-io/flowsync/pkg/models"
)

func visualChange(changeType models.ChangeType, payload models.ChangePayload, at int64) *models.ChangeEvent {
	return &models.ChangeEvent{
		ID:        "v-" + string(changeType),
		Type:      changeType,
		Timestamp: at,
		Source:    models.ChangeSourceVisual,
		Payload:   payload,
	}
}

func chatChange(changeType models.ChangeType, payload models.ChangePayload, at int64) *models.ChangeEvent {
	return &models.ChangeEvent{
		ID:        "c-" + string(changeType),
		Type:      changeType,
		Timestamp: at,
		Source:    models.ChangeSourceChat,
		Payload:   payload,
	}
}

func TestDetect_ConcurrentBlockModification(t *testing.T) {
	detector := NewDetector(0)

	visual := visualChange(models.ChangeTypeNodeModified,
		models.NodeModifiedPayload{NodeID: "n1", Fields: map[string]any{"name": "A"}}, 1000)
	chat := chatChange(models.ChangeTypeNodeModified,
		models.NodeModifiedPayload{NodeID: "n1", Fields: map[string]any{"description": "B"}}, 1500)

	conflict := detector.Detect(visual, chat)
	require.NotNil(t, conflict)

	assert.Equal(t, models.ConflictTypeConcurrentBlockModification, conflict.Type)
	assert.True(t, conflict.AutoResolvable, "disjoint field sets should be auto resolvable")
	assert.Equal(t, models.ResolutionChat, conflict.SuggestedResolution, "chat is strictly newer")
	assert.NotEmpty(t, conflict.ID)
	assert.NotEmpty(t, conflict.Description)
}

func TestDetect_OverlappingFieldsNotAutoResolvable(t *testing.T) {
	detector := NewDetector(0)

	visual := visualChange(models.ChangeTypeNodeModified,
		models.NodeModifiedPayload{NodeID: "n1", Fields: map[string]any{"name": "A"}}, 1000)
	chat := chatChange(models.ChangeTypeNodeModified,
		models.NodeModifiedPayload{NodeID: "n1", Fields: map[string]any{"name": "B"}}, 1000)

	conflict := detector.Detect(visual, chat)
	require.NotNil(t, conflict)

	assert.False(t, conflict.AutoResolvable)
	assert.Equal(t, models.ResolutionVisual, conflict.SuggestedResolution, "equal timestamps prefer visual")
}

func TestDetect_ModificationBeatsStructuralClassification(t *testing.T) {
	detector := NewDetector(0)

	// Removal vs modification of the same node: the modification rule wins
	// because it is checked first.
	visual := visualChange(models.ChangeTypeNodeRemoved,
		models.NodeRemovedPayload{NodeID: "n1"}, 1000)
	chat := chatChange(models.ChangeTypeNodeModified,
		models.NodeModifiedPayload{NodeID: "n1", Fields: map[string]any{"name": "B"}}, 1200)

	conflict := detector.Detect(visual, chat)
	require.NotNil(t, conflict)
	assert.Equal(t, models.ConflictTypeConcurrentBlockModification, conflict.Type)
	assert.False(t, conflict.AutoResolvable, "removal vs modification is never auto resolvable")
}

func TestDetect_ConcurrentConnectionChange(t *testing.T) {
	detector := NewDetector(0)

	visual := visualChange(models.ChangeTypeEdgeRemoved,
		models.EdgeRemovedPayload{EdgeID: "e1"}, 1000)
	chat := chatChange(models.ChangeTypeEdgeRemoved,
		models.EdgeRemovedPayload{EdgeID: "e1"}, 1100)

	conflict := detector.Detect(visual, chat)
	require.NotNil(t, conflict)
	assert.Equal(t, models.ConflictTypeConcurrentConnectionChange, conflict.Type)
	assert.False(t, conflict.AutoResolvable)
}

func TestDetect_ExecutionStateConflict(t *testing.T) {
	detector := NewDetector(0)

	visual := visualChange(models.ChangeTypeExecutionStateChanged,
		models.ExecutionStateChangedPayload{State: models.ExecutionStatePaused}, 1000)
	chat := chatChange(models.ChangeTypeExecutionStateChanged,
		models.ExecutionStateChangedPayload{State: models.ExecutionStateRunning}, 1100)

	conflict := detector.Detect(visual, chat)
	require.NotNil(t, conflict)
	assert.Equal(t, models.ConflictTypeExecutionStateConflict, conflict.Type)
}

func TestDetect_ExecutionStateOnlyCollidesWithItself(t *testing.T) {
	detector := NewDetector(0)

	visual := visualChange(models.ChangeTypeExecutionStateChanged,
		models.ExecutionStateChangedPayload{State: models.ExecutionStatePaused}, 1000)
	chat := chatChange(models.ChangeTypeNodeModified,
		models.NodeModifiedPayload{NodeID: "n1", Fields: map[string]any{"name": "B"}}, 1000)

	assert.Nil(t, detector.Detect(visual, chat))
}

func TestDetect_OutsideWindow(t *testing.T) {
	detector := NewDetector(2 * time.Second)

	visual := visualChange(models.ChangeTypeNodeModified,
		models.NodeModifiedPayload{NodeID: "n1", Fields: map[string]any{"name": "A"}}, 1000)
	chat := chatChange(models.ChangeTypeNodeModified,
		models.NodeModifiedPayload{NodeID: "n1", Fields: map[string]any{"name": "B"}}, 3500)

	assert.Nil(t, detector.Detect(visual, chat), "2500ms apart is outside the 2000ms window")
}

func TestDetect_ExactlyAtWindowBoundary(t *testing.T) {
	detector := NewDetector(2 * time.Second)

	visual := visualChange(models.ChangeTypeNodeModified,
		models.NodeModifiedPayload{NodeID: "n1", Fields: map[string]any{"name": "A"}}, 1000)
	chat := chatChange(models.ChangeTypeNodeModified,
		models.NodeModifiedPayload{NodeID: "n1", Fields: map[string]any{"name": "B"}}, 3000)

	assert.NotNil(t, detector.Detect(visual, chat), "boundary is inclusive")
}

func TestDetect_DifferentTargets(t *testing.T) {
	detector := NewDetector(0)

	visual := visualChange(models.ChangeTypeNodeModified,
		models.NodeModifiedPayload{NodeID: "n1", Fields: map[string]any{"name": "A"}}, 1000)
	chat := chatChange(models.ChangeTypeNodeModified,
		models.NodeModifiedPayload{NodeID: "n2", Fields: map[string]any{"name": "B"}}, 1000)

	assert.Nil(t, detector.Detect(visual, chat))
}

func TestDetect_NodeAndEdgeIDSpacesAreSeparate(t *testing.T) {
	detector := NewDetector(0)

	// Same raw id in different id spaces must not collide.
	visual := visualChange(models.ChangeTypeNodeRemoved,
		models.NodeRemovedPayload{NodeID: "x1"}, 1000)
	chat := chatChange(models.ChangeTypeEdgeRemoved,
		models.EdgeRemovedPayload{EdgeID: "x1"}, 1000)

	assert.Nil(t, detector.Detect(visual, chat))
}

func TestDetect_NilChanges(t *testing.T) {
	detector := NewDetector(0)

	assert.Nil(t, detector.Detect(nil, chatChange(models.ChangeTypeNodeRemoved,
		models.NodeRemovedPayload{NodeID: "n1"}, 1000)))
	assert.Nil(t, detector.Detect(visualChange(models.ChangeTypeNodeRemoved,
		models.NodeRemovedPayload{NodeID: "n1"}, 1000), nil))
}
