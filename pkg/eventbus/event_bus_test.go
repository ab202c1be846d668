package eventbus

import (
	"context"
	"testing"
	"time"

	"github.com/ThreeDotsLabs/watermill"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/relaycrm/automation/pkg/channels/gochannel"
	"github.com/relaycrm/automation/pkg/events"
)

func TestWatermillEventBusPublishSubscribe(t *testing.T) {
	pub, sub, err := gochannel.CreateTestChannel(watermill.NopLogger{})
	require.NoError(t, err)

	bus := NewWatermillEventBus(pub, sub)

	received := make(chan *events.ExecutionCompleted, 1)

	require.NoError(t, bus.Handle(events.ExecutionCompletedEvent, func(_ context.Context, event any) error {
		completed, ok := event.(*events.ExecutionCompleted)
		require.True(t, ok)
		received <- completed

		return nil
	}))

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	require.NoError(t, bus.Subscribe(ctx))

	err = bus.Publish(ctx, "wf-1", events.ExecutionCompleted{
		BaseEvent: events.BaseEvent{
			ID:          bus.GenerateID(),
			Type:        events.ExecutionCompletedEvent,
			Timestamp:   time.Now().UTC(),
			WorkflowID:  "wf-1",
			ExecutionID: "exec-1",
		},
		ActionsExecuted: 3,
	})
	require.NoError(t, err)

	select {
	case completed := <-received:
		assert.Equal(t, "exec-1", completed.ExecutionID)
		assert.Equal(t, 3, completed.ActionsExecuted)
	case <-time.After(5 * time.Second):
		t.Fatal("timed out waiting for event")
	}
}

func TestWatermillEventBusIgnoresUnhandledTypes(t *testing.T) {
	pub, sub, err := gochannel.CreateChannel(watermill.NopLogger{})
	require.NoError(t, err)

	bus := NewWatermillEventBus(pub, sub)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	require.NoError(t, bus.Subscribe(ctx))

	// No handler registered: publish must still succeed.
	err = bus.Publish(ctx, "wf-1", events.ExecutionCancelled{
		BaseEvent: events.BaseEvent{
			ID:          bus.GenerateID(),
			Type:        events.ExecutionCancelledEvent,
			Timestamp:   time.Now().UTC(),
			WorkflowID:  "wf-1",
			ExecutionID: "exec-1",
		},
	})
	assert.NoError(t, err)
}
