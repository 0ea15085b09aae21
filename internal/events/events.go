// Package events provides the in-process publish/subscribe bus the Task
// Pipeline uses to fan task-state and progress changes out to the
// Dispatcher's rate-limited UI-edit path without coupling the two
// packages directly.
package events

import (
	"sync"
	"sync/atomic"
	"time"
)

const (
	defaultBuffer = 1000
	maxBuffer     = 10000
)

// EventType is the closed set of events the bus carries.
type EventType string

const (
	EventTaskQueued    EventType = "task_queued"
	EventTaskProgress  EventType = "task_progress"
	EventTaskStateChg  EventType = "task_state_change"
	EventTaskCompleted EventType = "task_completed"
	EventTaskFailed    EventType = "task_failed"
	EventTaskCancelled EventType = "task_cancelled"
)

// Event is the base interface every published value satisfies.
type Event interface {
	Type() EventType
	Timestamp() time.Time
}

// BaseEvent provides the common Type/Timestamp implementation.
type BaseEvent struct {
	EventType EventType
	Time      time.Time
}

func (e BaseEvent) Type() EventType      { return e.EventType }
func (e BaseEvent) Timestamp() time.Time { return e.Time }

// TaskProgressEvent reports download/upload byte progress for a task.
type TaskProgressEvent struct {
	BaseEvent
	TaskID       string
	BytesCurrent int64
	BytesTotal   int64
	Rate         float64
}

// TaskStateChangeEvent reports a status-machine transition for a task.
type TaskStateChangeEvent struct {
	BaseEvent
	TaskID    string
	OldStatus string
	NewStatus string
	Reason    string
}

// EventBus is a non-blocking, buffered pub/sub bus. A full subscriber
// buffer drops the event rather than blocking the publisher — the
// pipeline's hot path must never stall behind a slow dispatcher consumer.
type EventBus struct {
	mu            sync.RWMutex
	subscribers   map[EventType][]chan Event
	all           []chan Event
	bufferSize    int
	closed        bool
	droppedEvents atomic.Int64
}

// NewEventBus creates a bus with the given per-subscriber buffer size.
func NewEventBus(bufferSize int) *EventBus {
	if bufferSize <= 0 {
		bufferSize = defaultBuffer
	}
	if bufferSize > maxBuffer {
		bufferSize = maxBuffer
	}
	return &EventBus{
		subscribers: make(map[EventType][]chan Event),
		bufferSize:  bufferSize,
	}
}

// Subscribe returns a channel that receives events of the given type.
func (eb *EventBus) Subscribe(eventType EventType) <-chan Event {
	eb.mu.Lock()
	defer eb.mu.Unlock()

	if eb.closed {
		ch := make(chan Event)
		close(ch)
		return ch
	}

	ch := make(chan Event, eb.bufferSize)
	eb.subscribers[eventType] = append(eb.subscribers[eventType], ch)
	return ch
}

// SubscribeAll returns a channel that receives every published event.
func (eb *EventBus) SubscribeAll() <-chan Event {
	eb.mu.Lock()
	defer eb.mu.Unlock()

	if eb.closed {
		ch := make(chan Event)
		close(ch)
		return ch
	}

	ch := make(chan Event, eb.bufferSize)
	eb.all = append(eb.all, ch)
	return ch
}

// Publish fans event out to every matching subscriber without blocking.
func (eb *EventBus) Publish(event Event) {
	eb.mu.RLock()
	defer eb.mu.RUnlock()

	if eb.closed {
		return
	}

	for _, ch := range eb.subscribers[event.Type()] {
		select {
		case ch <- event:
		default:
			eb.droppedEvents.Add(1)
		}
	}
	for _, ch := range eb.all {
		select {
		case ch <- event:
		default:
			eb.droppedEvents.Add(1)
		}
	}
}

// PublishStateChange is a convenience wrapper for the common state-machine
// transition notification.
func (eb *EventBus) PublishStateChange(taskID, oldStatus, newStatus, reason string) {
	eb.Publish(&TaskStateChangeEvent{
		BaseEvent: BaseEvent{EventType: EventTaskStateChg, Time: time.Now()},
		TaskID:    taskID,
		OldStatus: oldStatus,
		NewStatus: newStatus,
		Reason:    reason,
	})
}

// PublishProgress is a convenience wrapper for byte-progress notifications.
func (eb *EventBus) PublishProgress(taskID string, current, total int64, rate float64) {
	eb.Publish(&TaskProgressEvent{
		BaseEvent:    BaseEvent{EventType: EventTaskProgress, Time: time.Now()},
		TaskID:       taskID,
		BytesCurrent: current,
		BytesTotal:   total,
		Rate:         rate,
	})
}

// Close shuts the bus down, closing every subscriber channel.
func (eb *EventBus) Close() {
	eb.mu.Lock()
	defer eb.mu.Unlock()

	if eb.closed {
		return
	}
	eb.closed = true

	for _, channels := range eb.subscribers {
		for _, ch := range channels {
			close(ch)
		}
	}
	for _, ch := range eb.all {
		close(ch)
	}
}

// DroppedEventCount returns how many events have been dropped due to a
// full subscriber buffer, for health/metrics reporting.
func (eb *EventBus) DroppedEventCount() int64 {
	return eb.droppedEvents.Load()
}
