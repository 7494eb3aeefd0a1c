package models

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestChangeEventJSON_PayloadUnderDataKey(t *testing.T) {
	change := ChangeEvent{
		ID:        "ch-1",
		Type:      ChangeTypeNodeModified,
		Timestamp: 1700000000000,
		Source:    ChangeSourceVisual,
		ActorID:   "user-1",
		Status:    ChangeStatusPending,
		Payload:   NodeModifiedPayload{NodeID: "n1", Fields: map[string]any{"name": "New Name"}},
	}

	data, err := json.Marshal(change)
	require.NoError(t, err)

	var raw map[string]json.RawMessage
	require.NoError(t, json.Unmarshal(data, &raw))
	require.Contains(t, raw, "data")
	assert.NotContains(t, raw, "payload")

	var decoded ChangeEvent
	require.NoError(t, json.Unmarshal(data, &decoded))

	assert.Equal(t, change.ID, decoded.ID)
	assert.Equal(t, change.Type, decoded.Type)
	assert.Equal(t, change.Timestamp, decoded.Timestamp)
	assert.Equal(t, change.Source, decoded.Source)

	payload, ok := decoded.Payload.(NodeModifiedPayload)
	require.True(t, ok)
	assert.Equal(t, "n1", payload.NodeID)
	assert.Equal(t, "New Name", payload.Fields["name"])
}

func TestChangeEventJSON_AllPayloadVariants(t *testing.T) {
	cases := []struct {
		changeType ChangeType
		payload    ChangePayload
		target     string
	}{
		{ChangeTypeNodeAdded, NodeAddedPayload{Node: WorkflowNode{ID: "n9", Type: "log", Name: "Log"}}, "n9"},
		{ChangeTypeNodeRemoved, NodeRemovedPayload{NodeID: "n1"}, "n1"},
		{ChangeTypeNodeModified, NodeModifiedPayload{NodeID: "n1", Fields: map[string]any{"enabled": false}}, "n1"},
		{ChangeTypeEdgeAdded, EdgeAddedPayload{Connection: Connection{ID: "e9", SourceNode: "n1", TargetNode: "n2"}}, "e9"},
		{ChangeTypeEdgeRemoved, EdgeRemovedPayload{EdgeID: "e1"}, "e1"},
		{ChangeTypeExecutionStateChanged, ExecutionStateChangedPayload{State: ExecutionStateRunning}, ""},
	}

	for _, tc := range cases {
		t.Run(string(tc.changeType), func(t *testing.T) {
			change := ChangeEvent{
				ID:        "ch-1",
				Type:      tc.changeType,
				Timestamp: 1700000000000,
				Source:    ChangeSourceChat,
				Payload:   tc.payload,
			}

			assert.Equal(t, tc.target, change.TargetEntity())

			data, err := json.Marshal(change)
			require.NoError(t, err)

			var decoded ChangeEvent
			require.NoError(t, json.Unmarshal(data, &decoded))
			assert.Equal(t, tc.target, decoded.TargetEntity())
		})
	}
}

func TestChangeEventJSON_UnknownType(t *testing.T) {
	var decoded ChangeEvent

	err := json.Unmarshal([]byte(`{"id":"ch-1","type":"teleport","timestamp":1,"source":"chat","data":{}}`), &decoded)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "unknown change type")
}

func TestValidateChangePayload(t *testing.T) {
	cases := []struct {
		name       string
		changeType ChangeType
		data       string
		valid      bool
	}{
		{"valid node removal", ChangeTypeNodeRemoved, `{"node_id":"n1"}`, true},
		{"empty node id", ChangeTypeNodeRemoved, `{"node_id":""}`, false},
		{"missing node id", ChangeTypeNodeRemoved, `{}`, false},
		{"valid modification", ChangeTypeNodeModified, `{"node_id":"n1","fields":{"name":"X"}}`, true},
		{"empty field set", ChangeTypeNodeModified, `{"node_id":"n1","fields":{}}`, false},
		{"valid node addition", ChangeTypeNodeAdded, `{"node":{"id":"n9","type":"log","name":"Log"}}`, true},
		{"node missing name", ChangeTypeNodeAdded, `{"node":{"id":"n9","type":"log"}}`, false},
		{"valid edge addition", ChangeTypeEdgeAdded, `{"connection":{"id":"e9","source_node":"n1","target_node":"n2"}}`, true},
		{"valid execution state", ChangeTypeExecutionStateChanged, `{"state":"paused"}`, true},
		{"unknown execution state", ChangeTypeExecutionStateChanged, `{"state":"warp"}`, false},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			err := ValidateChangePayload(tc.changeType, json.RawMessage(tc.data))
			if tc.valid {
				require.NoError(t, err)
			} else {
				require.Error(t, err)
			}
		})
	}
}

func TestValidateChangePayload_UnknownType(t *testing.T) {
	err := ValidateChangePayload(ChangeType("teleport"), json.RawMessage(`{}`))
	require.Error(t, err)
}
