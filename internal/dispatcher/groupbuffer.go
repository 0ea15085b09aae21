package dispatcher

import (
	"context"
	"sync"
	"time"

	"github.com/mediarelay/botcore/internal/chatclient"
	"github.com/mediarelay/botcore/internal/logging"
)

// Fallback window/wait used when a GroupBuffer is built with a zero
// duration, so a zero-value config.Config still produces sane behavior.
const (
	defaultGroupWindow  = 2 * time.Second
	defaultGroupMaxWait = 5 * time.Second
)

type groupEntry struct {
	messages  []chatclient.Message
	firstSeen time.Time
	timer     *time.Timer
}

// GroupBuffer aggregates album/grouped messages sharing a groupedId
// within a sliding window, extended by each new arrival up to maxWait,
// flushing a single addBatchTasks call on expiry. The group map is guarded
// by mu; the flush callback runs on the timer's own goroutine, not on the
// event-ingest loop that calls Add.
type GroupBuffer struct {
	mu      sync.Mutex
	groups  map[string]*groupEntry
	flush   func(ctx context.Context, groupID string, messages []chatclient.Message)
	log     *logging.Logger
	window  time.Duration
	maxWait time.Duration
}

// NewGroupBuffer builds a GroupBuffer that calls flush once a group's
// window expires. window and maxWait come from config.Config's
// GroupWindow/GroupMaxWait; a zero value for either falls back to a
// built-in default.
func NewGroupBuffer(log *logging.Logger, window, maxWait time.Duration, flush func(ctx context.Context, groupID string, messages []chatclient.Message)) *GroupBuffer {
	if window <= 0 {
		window = defaultGroupWindow
	}
	if maxWait <= 0 {
		maxWait = defaultGroupMaxWait
	}
	return &GroupBuffer{
		groups:  make(map[string]*groupEntry),
		flush:   flush,
		log:     log,
		window:  window,
		maxWait: maxWait,
	}
}

// Add buffers msg under its GroupID, (re)arming the window timer up to
// maxWait total since the group's first arrival.
func (b *GroupBuffer) Add(ctx context.Context, msg chatclient.Message) {
	groupID := msg.GroupID
	if groupID == "" {
		return
	}

	b.mu.Lock()
	defer b.mu.Unlock()

	entry, ok := b.groups[groupID]
	if !ok {
		entry = &groupEntry{firstSeen: time.Now()}
		b.groups[groupID] = entry
	}
	entry.messages = append(entry.messages, msg)

	if entry.timer != nil {
		entry.timer.Stop()
	}
	wait := b.window
	if elapsed := time.Since(entry.firstSeen); elapsed+wait > b.maxWait {
		wait = b.maxWait - elapsed
		if wait < 0 {
			wait = 0
		}
	}
	entry.timer = time.AfterFunc(wait, func() {
		b.flushGroup(ctx, groupID)
	})
}

func (b *GroupBuffer) flushGroup(ctx context.Context, groupID string) {
	b.mu.Lock()
	entry, ok := b.groups[groupID]
	if !ok {
		b.mu.Unlock()
		return
	}
	delete(b.groups, groupID)
	b.mu.Unlock()

	if b.flush != nil {
		b.flush(ctx, groupID, entry.messages)
	}
}

// PendingGroups reports the number of groups currently buffered, awaiting
// timer expiry.
func (b *GroupBuffer) PendingGroups() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.groups)
}
