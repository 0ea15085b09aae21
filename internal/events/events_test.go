package events

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestEventBus_PublishSubscribe(t *testing.T) {
	bus := NewEventBus(10)
	defer bus.Close()

	ch := bus.Subscribe(EventTaskProgress)
	bus.PublishProgress("task-1", 512, 1024, 1200.0)

	select {
	case received := <-ch:
		progress, ok := received.(*TaskProgressEvent)
		require.True(t, ok)
		require.Equal(t, "task-1", progress.TaskID)
		require.Equal(t, int64(512), progress.BytesCurrent)
	case <-time.After(100 * time.Millisecond):
		t.Fatal("timeout waiting for event")
	}
}

func TestEventBus_MultipleSubscribers(t *testing.T) {
	bus := NewEventBus(10)
	defer bus.Close()

	a := bus.Subscribe(EventTaskStateChg)
	b := bus.SubscribeAll()

	bus.PublishStateChange("task-2", "queued", "downloading", "")

	for _, ch := range []<-chan Event{a, b} {
		select {
		case received := <-ch:
			evt, ok := received.(*TaskStateChangeEvent)
			require.True(t, ok)
			require.Equal(t, "task-2", evt.TaskID)
			require.Equal(t, "downloading", evt.NewStatus)
		case <-time.After(100 * time.Millisecond):
			t.Fatal("timeout waiting for event")
		}
	}
}

func TestEventBus_DropsWhenFull(t *testing.T) {
	bus := NewEventBus(1)
	defer bus.Close()

	ch := bus.Subscribe(EventTaskProgress)
	bus.PublishProgress("task-3", 1, 10, 0)
	bus.PublishProgress("task-3", 2, 10, 0)

	require.Equal(t, int64(1), bus.DroppedEventCount())
	<-ch
}

func TestEventBus_CloseClosesChannels(t *testing.T) {
	bus := NewEventBus(4)
	ch := bus.Subscribe(EventTaskCompleted)
	bus.Close()

	_, ok := <-ch
	require.False(t, ok)
}
