package taskrepo

import (
	"context"
	"sync"
	"time"

	"github.com/mediarelay/botcore/internal/logging"
	"github.com/mediarelay/botcore/internal/models"
)

// Store is the persistence surface the write-coalescing Buffer flushes
// into. D1Store satisfies it.
type Store interface {
	UpdateStatus(ctx context.Context, id string, status models.TaskStatus, errorMsg string) error
}

const (
	defaultFlushInterval = time.Second
	defaultBatchMax      = 200
	entryStaleAfter      = 30 * time.Minute
)

type pendingEntry struct {
	status     models.TaskStatus
	errorMsg   string
	enqueuedAt time.Time
}

// Buffer coalesces non-terminal status transitions into periodic batch
// flushes so a burst of progress updates doesn't hammer the store with
// one write per transition. Terminal transitions bypass it entirely —
// callers should route those straight to Store.UpdateStatus.
type Buffer struct {
	store         Store
	log           *logging.Logger
	flushInterval time.Duration
	batchMax      int

	mu      sync.Mutex
	pending map[string]pendingEntry
}

// NewBuffer builds a write-coalescing buffer over store. flushInterval is
// config.Config's WriteCoalesceWindow; a zero value falls back to
// defaultFlushInterval.
func NewBuffer(log *logging.Logger, store Store, flushInterval time.Duration) *Buffer {
	if flushInterval <= 0 {
		flushInterval = defaultFlushInterval
	}
	return &Buffer{
		store:         store,
		log:           log,
		flushInterval: flushInterval,
		batchMax:      defaultBatchMax,
		pending:       make(map[string]pendingEntry),
	}
}

// Enqueue buffers a non-terminal status transition for id. Terminal
// statuses flush immediately, bypassing coalescing entirely, per spec.
func (b *Buffer) Enqueue(ctx context.Context, id string, status models.TaskStatus, errorMsg string) error {
	if models.IsTerminal(status) {
		return b.store.UpdateStatus(ctx, id, status, errorMsg)
	}

	b.mu.Lock()
	b.pending[id] = pendingEntry{status: status, errorMsg: errorMsg, enqueuedAt: time.Now()}
	full := len(b.pending) >= b.batchMax
	b.mu.Unlock()

	if full {
		b.Flush(ctx)
	}
	return nil
}

// Flush writes every buffered entry to the store, discarding entries
// older than entryStaleAfter without writing them.
func (b *Buffer) Flush(ctx context.Context) {
	b.mu.Lock()
	batch := b.pending
	b.pending = make(map[string]pendingEntry)
	b.mu.Unlock()

	now := time.Now()
	for id, entry := range batch {
		if now.Sub(entry.enqueuedAt) > entryStaleAfter {
			b.log.Warn().Str("taskId", id).Msg("taskrepo: discarding stale buffered status write")
			continue
		}
		if err := b.store.UpdateStatus(ctx, id, entry.status, entry.errorMsg); err != nil {
			b.log.Error().Err(err).Str("taskId", id).Msg("taskrepo: flush failed")
		}
	}
}

// Run periodically flushes the buffer every flushInterval until ctx is
// cancelled, then performs one last flush.
func (b *Buffer) Run(ctx context.Context) {
	ticker := time.NewTicker(b.flushInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			b.Flush(context.Background())
			return
		case <-ticker.C:
			b.Flush(ctx)
		}
	}
}

// PendingCount reports the number of buffered, not-yet-flushed entries.
func (b *Buffer) PendingCount() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.pending)
}
