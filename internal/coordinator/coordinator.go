// Package coordinator implements the Instance Coordinator: leader
// election over the KV Facade plus per-task mutual exclusion, grounded on
// the teacher's lease/heartbeat cadence (internal/ratelimit/coordinator) —
// same TTL-halved renewal interval, re-themed from an IPC-local lease
// broker onto a KV-backed distributed compare-and-set lock.
package coordinator

import (
	"context"
	"crypto/rand"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/mediarelay/botcore/internal/kv"
	"github.com/mediarelay/botcore/internal/logging"
	"github.com/mediarelay/botcore/internal/models"
)

// LeaderRole is the named lock the Protocol Client Supervisor gates on.
const LeaderRole = "telegram_client"

const (
	instanceRecordTTL = 2 * time.Minute
	lockKeyPrefix     = "lock:"
	instanceKeyPrefix = "instance:"
)

// ActivityTimeout is the default window after which a missed heartbeat
// marks an instance offline (spec §3 Instance Record invariant).
const ActivityTimeout = 120 * time.Second

// Coordinator elects a single active instance per named role and arbitrates
// per-task locks, both as compare-and-set documents in the KV Facade.
type Coordinator struct {
	kv       *kv.Facade
	log      *logging.Logger
	hostname string
	region   string

	mu         sync.RWMutex
	instanceID string
	startedAt  time.Time
	heldLocks  map[string]time.Time // lockName -> our last-known expiresAt
}

// New builds a Coordinator. hostname/region are descriptive fields written
// into the instance record only; they play no role in lock arbitration.
func New(log *logging.Logger, facade *kv.Facade, hostname, region string) *Coordinator {
	return &Coordinator{
		kv:        facade,
		log:       log,
		hostname:  hostname,
		region:    region,
		heldLocks: make(map[string]time.Time),
	}
}

// Start registers this instance and launches its heartbeat loop in a
// background goroutine, which stops when ctx is cancelled. Start returns
// once the instance record is written; it exposes no handle to wait for
// the heartbeat goroutine to exit.
func (c *Coordinator) Start(ctx context.Context) error {
	c.mu.Lock()
	c.instanceID = newInstanceID()
	c.startedAt = time.Now()
	id := c.instanceID
	c.mu.Unlock()

	if err := c.writeInstanceRecord(ctx, id, "active"); err != nil {
		return fmt.Errorf("coordinator: register instance: %w", err)
	}

	go c.heartbeatLoop(ctx)
	return nil
}

func newInstanceID() string {
	b := make([]byte, 8)
	if _, err := rand.Read(b); err == nil {
		return fmt.Sprintf("inst-%x", b)
	}
	return "inst-" + uuid.NewString()
}

// InstanceID returns this process's instance identifier.
func (c *Coordinator) InstanceID() string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.instanceID
}

func (c *Coordinator) heartbeatLoop(ctx context.Context) {
	ticker := time.NewTicker(30 * time.Second)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if err := c.writeInstanceRecord(ctx, c.InstanceID(), "active"); err != nil {
				c.log.Warn().Err(err).Msg("coordinator: heartbeat failed")
			}
		}
	}
}

func (c *Coordinator) writeInstanceRecord(ctx context.Context, id, status string) error {
	c.mu.RLock()
	startedAt := c.startedAt
	c.mu.RUnlock()

	rec := models.InstanceRecord{
		InstanceID: id,
		Role:       status,
		LastSeen:   time.Now(),
		StartedAt:  startedAt,
	}
	payload, err := json.Marshal(rec)
	if err != nil {
		return err
	}
	return c.kv.Set(ctx, instanceKeyPrefix+id, payload, int(instanceRecordTTL.Seconds()), kv.SetOptions{SkipCache: true})
}

// AcquireLock attempts a compare-and-set acquire of a named lock. It
// succeeds if the lock is unset, expired, or already owned by this
// instance (renewal).
func (c *Coordinator) AcquireLock(ctx context.Context, name string, ttl time.Duration) (bool, error) {
	key := lockKeyPrefix + name
	now := time.Now()

	existing, err := c.loadLock(ctx, key)
	if err != nil {
		return false, err
	}

	if existing != nil && existing.Holder != c.InstanceID() && !existing.Expired(now) {
		return false, nil
	}

	rec := models.LockRecord{
		Key:        key,
		Holder:     c.InstanceID(),
		AcquiredAt: now,
		ExpiresAt:  now.Add(ttl),
	}
	payload, err := json.Marshal(rec)
	if err != nil {
		return false, err
	}
	if err := c.kv.Set(ctx, key, payload, int(ttl.Seconds()), kv.SetOptions{SkipCache: true}); err != nil {
		return false, err
	}

	c.mu.Lock()
	c.heldLocks[name] = rec.ExpiresAt
	c.mu.Unlock()
	return true, nil
}

// ReleaseLock deletes name iff this instance is the current owner.
func (c *Coordinator) ReleaseLock(ctx context.Context, name string) error {
	key := lockKeyPrefix + name
	existing, err := c.loadLock(ctx, key)
	if err != nil {
		return err
	}
	if existing == nil || existing.Holder != c.InstanceID() {
		return nil
	}
	if err := c.kv.Delete(ctx, key); err != nil {
		return err
	}
	c.mu.Lock()
	delete(c.heldLocks, name)
	c.mu.Unlock()
	return nil
}

// HasLock reports whether this instance currently owns name and its TTL
// has not expired.
func (c *Coordinator) HasLock(ctx context.Context, name string) (bool, error) {
	key := lockKeyPrefix + name
	existing, err := c.loadLock(ctx, key)
	if err != nil {
		return false, err
	}
	if existing == nil {
		return false, nil
	}
	return existing.Holder == c.InstanceID() && !existing.Expired(time.Now()), nil
}

func (c *Coordinator) loadLock(ctx context.Context, key string) (*models.LockRecord, error) {
	raw, err := c.kv.Get(ctx, key, kv.GetOptions{SkipCache: true})
	if err != nil {
		return nil, err
	}
	if raw == nil {
		return nil, nil
	}
	var rec models.LockRecord
	if err := json.Unmarshal(raw, &rec); err != nil {
		return nil, fmt.Errorf("coordinator: decode lock record: %w", err)
	}
	return &rec, nil
}

// AcquireTaskLock is a convenience wrapper over the reserved
// lock:task:<taskId> namespace.
func (c *Coordinator) AcquireTaskLock(ctx context.Context, taskID string, ttl time.Duration) (bool, error) {
	return c.AcquireLock(ctx, "task:"+taskID, ttl)
}

// ReleaseTaskLock releases a previously acquired task lock.
func (c *Coordinator) ReleaseTaskLock(ctx context.Context, taskID string) error {
	return c.ReleaseLock(ctx, "task:"+taskID)
}

// RunLeaderRenewalLoop re-acquires the leader lock every ttl/2 and invokes
// onLost if renewal fails or the lock is found held by another instance,
// the supervised-disconnect trigger spec §4.C calls for. It blocks until
// ctx is cancelled.
func (c *Coordinator) RunLeaderRenewalLoop(ctx context.Context, ttl time.Duration, onLost func()) {
	ticker := time.NewTicker(ttl / 2)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			ok, err := c.AcquireLock(ctx, LeaderRole, ttl)
			if err != nil || !ok {
				if err != nil {
					c.log.Warn().Err(err).Msg("coordinator: leader renewal failed")
				}
				if onLost != nil {
					onLost()
				}
			}
		}
	}
}
