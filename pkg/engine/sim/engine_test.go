package sim

import (
	"context"
	"log/slog"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/flowsync-io/flowsync/pkg/events"
	"github.com/flowsync-io/flowsync/pkg/models"
)

func testJourney() *models.Workflow {
	return &models.Workflow{
		ID:   "wf-1",
		Name: "Order Pipeline",
		Nodes: []*models.WorkflowNode{
			{ID: "n1", Type: "http_request", Name: "Fetch Orders", Enabled: true},
			{ID: "n2", Type: "transform", Name: "Normalize", Enabled: true},
			{ID: "n3", Type: "log", Name: "Disabled Step", Enabled: false},
		},
	}
}

func collect() (chan events.ExecutionEvent, func(context.Context, events.ExecutionEvent) error) {
	ch := make(chan events.ExecutionEvent, 100)

	return ch, func(_ context.Context, event events.ExecutionEvent) error {
		ch <- event

		return nil
	}
}

func waitFor(t *testing.T, ch chan events.ExecutionEvent, eventType events.EngineEventType) events.ExecutionEvent {
	t.Helper()

	deadline := time.After(5 * time.Second)

	for {
		select {
		case event := <-ch:
			if event.Type == eventType {
				return event
			}
		case <-deadline:
			t.Fatalf("timed out waiting for %s", eventType)
		}
	}
}

func TestEngine_RunsEnabledStepsInOrder(t *testing.T) {
	engine := NewEngine(Config{}, slog.New(slog.DiscardHandler))
	ch, callback := collect()

	require.NoError(t, engine.StartExecution(t.Context(), "exec-1", testJourney(), callback))

	var started []string

	deadline := time.After(5 * time.Second)

	for done := false; !done; {
		select {
		case event := <-ch:
			switch event.Type {
			case events.StepStartedEvent:
				started = append(started, event.Step.ID)
			case events.ExecutionCompletedEvent:
				done = true
			default:
			}
		case <-deadline:
			t.Fatal("timed out waiting for completion")
		}
	}

	assert.Equal(t, []string{"n1", "n2"}, started, "enabled steps run in declaration order")
}

func TestEngine_EmitsUniqueEventIDs(t *testing.T) {
	engine := NewEngine(Config{}, slog.New(slog.DiscardHandler))
	ch, callback := collect()

	require.NoError(t, engine.StartExecution(t.Context(), "exec-1", testJourney(), callback))

	seen := map[string]struct{}{}

	deadline := time.After(5 * time.Second)

	for {
		select {
		case event := <-ch:
			_, dup := seen[event.ID]
			assert.False(t, dup, "event id %s emitted twice", event.ID)
			seen[event.ID] = struct{}{}

			if event.Type == events.ExecutionCompletedEvent {
				return
			}
		case <-deadline:
			t.Fatal("timed out waiting for completion")
		}
	}
}

func TestEngine_ReportsMemoryUsage(t *testing.T) {
	engine := NewEngine(Config{}, slog.New(slog.DiscardHandler))
	ch, callback := collect()

	require.NoError(t, engine.StartExecution(t.Context(), "exec-1", testJourney(), callback))

	deadline := time.After(5 * time.Second)

	for {
		select {
		case event := <-ch:
			switch event.Type {
			case events.StepCompletedEvent:
				require.NotNil(t, event.Usage)
				assert.Positive(t, event.Usage.MemoryBytes)
				assert.Zero(t, event.Usage.RequestCount, "the simulator performs no network I/O")
			case events.ExecutionCompletedEvent:
				return
			default:
			}
		case <-deadline:
			t.Fatal("timed out waiting for completion")
		}
	}
}

func TestEngine_FailureThenRetry(t *testing.T) {
	engine := NewEngine(Config{FailNodes: map[string]int{"n2": 1}}, slog.New(slog.DiscardHandler))
	ch, callback := collect()

	require.NoError(t, engine.StartExecution(t.Context(), "exec-1", testJourney(), callback))

	failed := waitFor(t, ch, events.StepFailedEvent)
	require.NotNil(t, failed.Failure)
	assert.Equal(t, "n2", failed.Step.ID)
	assert.True(t, failed.Failure.CanRetry)

	require.NoError(t, engine.Retry(t.Context(), "exec-1", "n2"))

	completed := waitFor(t, ch, events.ExecutionCompletedEvent)
	assert.Equal(t, "exec-1", completed.ExecutionID)
}

func TestEngine_FailureThenSkip(t *testing.T) {
	engine := NewEngine(Config{FailNodes: map[string]int{"n1": 99}}, slog.New(slog.DiscardHandler))
	ch, callback := collect()

	require.NoError(t, engine.StartExecution(t.Context(), "exec-1", testJourney(), callback))

	waitFor(t, ch, events.StepFailedEvent)
	require.NoError(t, engine.Skip(t.Context(), "exec-1", "n1"))

	skipped := waitFor(t, ch, events.StepSkippedEvent)
	assert.Equal(t, "n1", skipped.Step.ID)

	waitFor(t, ch, events.ExecutionCompletedEvent)
}

func TestEngine_FailureThenStop(t *testing.T) {
	engine := NewEngine(Config{FailNodes: map[string]int{"n1": 99}}, slog.New(slog.DiscardHandler))
	ch, callback := collect()

	require.NoError(t, engine.StartExecution(t.Context(), "exec-1", testJourney(), callback))

	waitFor(t, ch, events.StepFailedEvent)
	require.NoError(t, engine.Stop(t.Context(), "exec-1"))

	waitFor(t, ch, events.ExecutionFailedEvent)
}

func TestEngine_PauseResume(t *testing.T) {
	engine := NewEngine(Config{StepDelay: 50 * time.Millisecond}, slog.New(slog.DiscardHandler))
	ch, callback := collect()

	require.NoError(t, engine.StartExecution(t.Context(), "exec-1", testJourney(), callback))
	require.NoError(t, engine.Pause(t.Context(), "exec-1"))

	waitFor(t, ch, events.ExecutionPausedEvent)
	require.NoError(t, engine.Resume(t.Context(), "exec-1"))

	waitFor(t, ch, events.ExecutionResumedEvent)
	waitFor(t, ch, events.ExecutionCompletedEvent)
}

func TestEngine_CommandsForUnknownExecution(t *testing.T) {
	engine := NewEngine(Config{}, slog.New(slog.DiscardHandler))

	require.Error(t, engine.Pause(t.Context(), "ghost"))
	require.Error(t, engine.Stop(t.Context(), "ghost"))
}

func TestEngine_DuplicateStart(t *testing.T) {
	engine := NewEngine(Config{StepDelay: 100 * time.Millisecond}, slog.New(slog.DiscardHandler))
	ch, callback := collect()

	require.NoError(t, engine.StartExecution(t.Context(), "exec-1", testJourney(), callback))
	require.Error(t, engine.StartExecution(t.Context(), "exec-1", testJourney(), callback))

	waitFor(t, ch, events.ExecutionCompletedEvent)
}
