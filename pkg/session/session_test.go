package session

import (
	"context"
	"log/slog"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/flowsync-io/flowsync/pkg/interpreter"
	"github.com/flowsync-io/flowsync/pkg/models"
	"github.com/flowsync-io/flowsync/pkg/protocol"
)

// stubEngine acknowledges control calls without running anything.
type stubEngine struct {
	started int
}

func (e *stubEngine) StartExecution(
	_ context.Context, _ string, _ *models.Workflow, _ protocol.EngineEventCallback,
) error {
	e.started++

	return nil
}

func (e *stubEngine) Pause(_ context.Context, _ string) error    { return nil }
func (e *stubEngine) Resume(_ context.Context, _ string) error   { return nil }
func (e *stubEngine) Stop(_ context.Context, _ string) error     { return nil }
func (e *stubEngine) Retry(_ context.Context, _, _ string) error { return nil }
func (e *stubEngine) Skip(_ context.Context, _, _ string) error  { return nil }

func testWorkflow() *models.Workflow {
	return &models.Workflow{
		ID:   "wf-1",
		Name: "Order Pipeline",
		Nodes: []*models.WorkflowNode{
			{ID: "n1", Type: "http_request", Name: "Fetch Orders", Enabled: true},
			{ID: "n2", Type: "transform", Name: "Normalize", Enabled: true},
		},
		Connections: []*models.Connection{
			{ID: "e1", SourceNode: "n1", TargetNode: "n2"},
		},
	}
}

func newTestRegistry() (*Registry, *stubEngine) {
	engine := &stubEngine{}

	return NewRegistry(Dependencies{
		Logger:      slog.New(slog.DiscardHandler),
		Engine:      engine,
		Interpreter: interpreter.NewRuleBased(),
	}), engine
}

func openTestSession(t *testing.T) (*Session, *stubEngine) {
	t.Helper()

	registry, engine := newTestRegistry()

	sess, err := registry.Open(t.Context(), "session-1", "ws-1", testWorkflow())
	require.NoError(t, err)

	return sess, engine
}

func TestRegistry_OpenEnablesSync(t *testing.T) {
	sess, _ := openTestSession(t)

	state := sess.SyncState()
	assert.True(t, state.Enabled)
	assert.Equal(t, models.SyncStatusIdle, state.Status)
	require.NotNil(t, state.Representation)
	assert.Len(t, state.Representation.BlockSummaries, 2)
}

func TestRegistry_DuplicateOpen(t *testing.T) {
	registry, _ := newTestRegistry()

	_, err := registry.Open(t.Context(), "session-1", "ws-1", testWorkflow())
	require.NoError(t, err)

	_, err = registry.Open(t.Context(), "session-1", "ws-1", testWorkflow())
	require.ErrorIs(t, err, ErrSessionExists)
	assert.Equal(t, 1, registry.Len())
}

func TestRegistry_GetAndClose(t *testing.T) {
	registry, _ := newTestRegistry()

	opened, err := registry.Open(t.Context(), "session-1", "ws-1", testWorkflow())
	require.NoError(t, err)

	got, err := registry.Get("session-1")
	require.NoError(t, err)
	assert.Same(t, opened, got)

	require.NoError(t, registry.Close(t.Context(), "session-1"))
	assert.False(t, opened.SyncState().Enabled, "close disables sync synchronously")

	_, err = registry.Get("session-1")
	require.ErrorIs(t, err, ErrSessionNotFound)

	err = registry.Close(t.Context(), "session-1")
	require.ErrorIs(t, err, ErrSessionNotFound)
}

func TestRegistry_SweepClosesIdleSessions(t *testing.T) {
	registry, _ := newTestRegistry()

	sess, err := registry.Open(t.Context(), "session-1", "ws-1", testWorkflow())
	require.NoError(t, err)

	// Fresh session survives the sweep.
	registry.Sweep(t.Context(), time.Hour, time.Second)
	assert.Equal(t, 1, registry.Len())

	// Backdate the last activity; now the sweep reaps it.
	sess.lastActive.Store(time.Now().Add(-2 * time.Hour).UnixNano())
	registry.Sweep(t.Context(), time.Hour, time.Second)
	assert.Equal(t, 0, registry.Len())
}

func TestHandleChatMessage_NotACommand(t *testing.T) {
	sess, _ := openTestSession(t)

	reply, err := sess.HandleChatMessage(t.Context(), "user-1", "what a lovely day")
	require.NoError(t, err)
	assert.False(t, reply.Recognized)
	assert.NotEmpty(t, reply.Text)
}

func TestHandleChatMessage_GraphCommandApplies(t *testing.T) {
	sess, _ := openTestSession(t)

	reply, err := sess.HandleChatMessage(t.Context(), "user-1", "set node n1 name to Ingest Orders")
	require.NoError(t, err)
	require.True(t, reply.Recognized)
	assert.Nil(t, reply.Conflict)
	assert.Equal(t, models.CommandTypeModifyNode, reply.Command.Type)

	assert.Equal(t, "Ingest Orders", sess.workflow.NodeByID("n1").Name)
	assert.Equal(t, "Ingest Orders", sess.SyncState().Representation.BlockSummaries[0].Name)
}

func TestHandleChatMessage_GraphCommandConflicts(t *testing.T) {
	sess, _ := openTestSession(t)

	now := time.Now().UnixMilli()
	_, err := sess.RecordVisualChange(t.Context(), &models.ChangeEvent{
		ID:        "ch-v",
		Type:      models.ChangeTypeNodeModified,
		Timestamp: now,
		Payload:   models.NodeModifiedPayload{NodeID: "n1", Fields: map[string]any{"name": "Visual Name"}},
	})
	require.NoError(t, err)

	reply, err := sess.HandleChatMessage(t.Context(), "user-1", "set node n1 name to Chat Name")
	require.NoError(t, err)
	require.NotNil(t, reply.Conflict)
	assert.Contains(t, reply.Text, "conflicts")

	state := sess.SyncState()
	assert.Equal(t, models.SyncStatusConflict, state.Status)
	require.Len(t, state.Conflicts, 1)

	require.NoError(t, sess.ResolveConflict(t.Context(), reply.Conflict.ID, models.ResolutionChat))
	assert.Equal(t, "Chat Name", sess.workflow.NodeByID("n1").Name)
}

func TestHandleChatMessage_AddNode(t *testing.T) {
	sess, _ := openTestSession(t)

	reply, err := sess.HandleChatMessage(t.Context(), "user-1", "add a webhook node called Incoming Orders")
	require.NoError(t, err)
	require.True(t, reply.Recognized)
	assert.Nil(t, reply.Conflict)

	require.Len(t, sess.workflow.Nodes, 3)
	added := sess.workflow.Nodes[2]
	assert.Equal(t, "webhook", added.Type)
	assert.Equal(t, "Incoming Orders", added.Name)
	assert.True(t, added.Enabled)
}

func TestHandleChatMessage_RunStartsExecution(t *testing.T) {
	sess, engine := openTestSession(t)

	reply, err := sess.HandleChatMessage(t.Context(), "user-1", "run")
	require.NoError(t, err)
	require.True(t, reply.Recognized)
	assert.Equal(t, models.CommandTypeRun, reply.Command.Type)

	assert.Equal(t, 1, engine.started)

	execution := sess.Execution()
	require.NotNil(t, execution)
	assert.Equal(t, "ws-1", execution.WorkspaceID)
	assert.Equal(t, "user-1", execution.UserID)
}

func TestHandleChatMessage_ControlWithoutExecution(t *testing.T) {
	sess, _ := openTestSession(t)

	_, err := sess.HandleChatMessage(t.Context(), "user-1", "pause")
	require.Error(t, err)
}

func TestHandleChatMessage_PauseActiveExecution(t *testing.T) {
	sess, _ := openTestSession(t)

	_, err := sess.StartExecution(t.Context(), "user-1")
	require.NoError(t, err)

	reply, err := sess.HandleChatMessage(t.Context(), "user-1", "pause")
	require.NoError(t, err)
	require.NotNil(t, reply.Message)
	assert.Equal(t, models.ExecutionStatusPaused, sess.Execution().Status)
}

func TestHandleChatMessage_ShowStatus(t *testing.T) {
	sess, _ := openTestSession(t)

	reply, err := sess.HandleChatMessage(t.Context(), "user-1", "show status")
	require.NoError(t, err)
	require.True(t, reply.Recognized)
	assert.Contains(t, reply.Text, "2 blocks")
	assert.Contains(t, reply.Text, "1 connections")
}

func TestSessionClose_StopsActiveExecution(t *testing.T) {
	sess, _ := openTestSession(t)

	_, err := sess.StartExecution(t.Context(), "user-1")
	require.NoError(t, err)

	sess.Close(t.Context())

	assert.Equal(t, models.ExecutionStatusStopped, sess.Execution().Status)
	assert.False(t, sess.SyncState().Enabled)
}
