// Package kv implements the multi-tier KV Facade: an in-process L1 cache
// in front of a failover-aware L2 remote provider pair, grounded on the
// teacher's dependency-injected component style (a constructor taking its
// collaborators, no package-level singletons).
package kv

import (
	"context"
	"time"

	"github.com/mediarelay/botcore/internal/logging"
)

// GetOptions controls a single Get call.
type GetOptions struct {
	// SkipCache bypasses L1 entirely, forcing an L2 read.
	SkipCache bool
}

// SetOptions controls a single Set call.
type SetOptions struct {
	// SkipCache disables the smart-write filter, forcing a physical L2
	// write even if L1 already holds an identical value.
	SkipCache bool
}

// Facade is the KV Facade described in spec §4.A: get/set/delete/listKeys
// plus bulkSet, backed by an L1 cache and a failover-aware L2 tier.
type Facade struct {
	l1       *l1Cache
	failover *failover
	log      *logging.Logger
}

// New builds a Facade. backup may be nil, which disables failover.
func New(log *logging.Logger, primary, backup Provider) *Facade {
	return &Facade{
		l1:       newL1Cache(defaultL1Capacity, defaultL1TTL),
		failover: newFailover(log, primary, backup),
		log:      log,
	}
}

// Get implements the L1-then-L2 read path with back-fill on miss.
func (f *Facade) Get(ctx context.Context, key string, opts GetOptions) ([]byte, error) {
	now := time.Now()

	if !opts.SkipCache {
		if v, ok := f.l1.get(key, now); ok {
			return v, nil
		}
	}

	slot := f.failover.currentSlot()
	provider := f.failover.active()
	value, found, err := provider.Get(ctx, key)
	f.failover.reportResult(slot, err)
	if err != nil {
		return nil, &CacheGetError{Provider: provider.Name(), Key: key, Err: err}
	}
	if !found {
		return nil, nil
	}

	f.l1.set(key, value, defaultL1TTL, now)
	return value, nil
}

// Set implements the smart-write filter: an L1 hit that already
// byte-equals v skips the physical L2 write entirely.
func (f *Facade) Set(ctx context.Context, key string, value []byte, ttlSeconds int, opts SetOptions) error {
	now := time.Now()
	ttl := time.Duration(ttlSeconds) * time.Second

	if !opts.SkipCache && f.l1.matches(key, value, now) {
		return nil
	}

	slot := f.failover.currentSlot()
	provider := f.failover.active()
	err := provider.Set(ctx, key, value, ttlSeconds)
	f.failover.reportResult(slot, err)
	if err != nil {
		return &CacheSetError{Provider: provider.Name(), Key: key, Err: err}
	}

	f.l1.set(key, value, ttl, now)
	return nil
}

// Delete invalidates L1 unconditionally, then deletes from L2.
func (f *Facade) Delete(ctx context.Context, key string) error {
	f.l1.delete(key)

	slot := f.failover.currentSlot()
	provider := f.failover.active()
	err := provider.Delete(ctx, key)
	f.failover.reportResult(slot, err)
	if err != nil {
		return &CacheSetError{Provider: provider.Name(), Key: key, Err: err}
	}
	return nil
}

// ListKeys enumerates keys under prefix in the currently active provider.
func (f *Facade) ListKeys(ctx context.Context, prefix string) ([]string, error) {
	slot := f.failover.currentSlot()
	provider := f.failover.active()
	keys, err := provider.ListKeys(ctx, prefix)
	f.failover.reportResult(slot, err)
	if err != nil {
		return nil, &CacheGetError{Provider: provider.Name(), Key: prefix, Err: err}
	}
	return keys, nil
}

// BulkSet pipelines a batch of writes with no smart-write filtering — the
// caller is responsible for only including entries that actually changed.
func (f *Facade) BulkSet(ctx context.Context, entries map[string][]byte, ttlSeconds int) error {
	slot := f.failover.currentSlot()
	provider := f.failover.active()
	err := provider.BulkSet(ctx, entries, ttlSeconds)
	f.failover.reportResult(slot, err)
	if err != nil {
		return &CacheSetError{Provider: provider.Name(), Key: "bulk", Err: err}
	}

	now := time.Now()
	ttl := time.Duration(ttlSeconds) * time.Second
	for k, v := range entries {
		f.l1.set(k, v, ttl, now)
	}
	return nil
}

// RunRecoveryLoop blocks, periodically probing the primary provider for
// recovery while in backup mode, until ctx is cancelled. Intended to be
// launched as its own goroutine by the composition root.
func (f *Facade) RunRecoveryLoop(ctx context.Context, interval time.Duration) {
	if interval <= 0 {
		interval = time.Minute
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			f.failover.MaybeProbeRecovery(ctx)
		}
	}
}

// ActiveProvider reports which provider slot currently services writes.
func (f *Facade) ActiveProvider() string {
	return f.failover.Slot()
}
