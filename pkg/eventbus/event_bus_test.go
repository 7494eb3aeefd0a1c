package eventbus

import (
	"context"
	"testing"
	"time"

	"github.com/ThreeDotsLabs/watermill"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/flowsync-io/flowsync/pkg/channels/gochannel"
	"github.com/flowsync-io/flowsync/pkg/events"
	"github.com/flowsync-io/flowsync/pkg/models"
)

func newTestBus(t *testing.T) EventBus {
	t.Helper()

	pub, sub, err := gochannel.CreateTestChannel(watermill.NopLogger{})
	require.NoError(t, err)

	bus := NewWatermillEventBus(pub, sub)
	t.Cleanup(func() { _ = bus.Close() })

	return bus
}

func TestWatermillEventBus_PublishSubscribe(t *testing.T) {
	bus := newTestBus(t)

	received := make(chan any, 1)

	require.NoError(t, bus.Handle(events.SyncStatusChangedEvent, func(_ context.Context, event any) error {
		received <- event

		return nil
	}))
	require.NoError(t, bus.Subscribe(t.Context(), "session-1"))

	require.NoError(t, bus.Publish(t.Context(), "session-1", events.SyncStatusChanged{
		BaseEvent: events.NewBaseEvent(events.SyncStatusChangedEvent, "session-1"),
		Status:    models.SyncStatusConflict,
	}))

	select {
	case event := <-received:
		statusChanged, ok := event.(*events.SyncStatusChanged)
		require.True(t, ok)
		assert.Equal(t, "session-1", statusChanged.SessionID)
		assert.Equal(t, models.SyncStatusConflict, statusChanged.Status)
	case <-time.After(5 * time.Second):
		t.Fatal("timed out waiting for event delivery")
	}
}

func TestWatermillEventBus_SessionTopicsAreIsolated(t *testing.T) {
	bus := newTestBus(t)

	received := make(chan any, 1)

	require.NoError(t, bus.Handle(events.ConflictRaisedEvent, func(_ context.Context, event any) error {
		received <- event

		return nil
	}))
	require.NoError(t, bus.Subscribe(t.Context(), "session-1"))

	require.NoError(t, bus.Publish(t.Context(), "session-2", events.ConflictRaised{
		BaseEvent: events.NewBaseEvent(events.ConflictRaisedEvent, "session-2"),
		Conflict:  &models.SyncConflict{ID: "cf-1"},
	}))

	select {
	case <-received:
		t.Fatal("subscriber for session-1 must not see session-2 events")
	case <-time.After(100 * time.Millisecond):
	}
}

func TestWatermillEventBus_GenerateID(t *testing.T) {
	bus := newTestBus(t)

	a := bus.GenerateID()
	b := bus.GenerateID()

	assert.NotEmpty(t, a)
	assert.NotEqual(t, a, b)
}
