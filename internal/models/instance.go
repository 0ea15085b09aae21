package models

import "time"

// InstanceRecord is the heartbeat document an instance writes to the KV
// facade while it holds (or is attempting to hold) the leader lock.
type InstanceRecord struct {
	InstanceID string    `json:"instance_id"`
	Role       string    `json:"role"`
	LastSeen   time.Time `json:"last_seen"`
	StartedAt  time.Time `json:"started_at"`
}

// LockRecord is the compare-and-set document backing both the single
// leader lock and the per-task locks. Expired locks (Now > ExpiresAt) are
// treated as free by anyone attempting acquisition.
type LockRecord struct {
	Key        string    `json:"key"`
	Holder     string    `json:"holder"`
	AcquiredAt time.Time `json:"acquired_at"`
	ExpiresAt  time.Time `json:"expires_at"`
}

// Expired reports whether the lock has passed its TTL as of now.
func (l LockRecord) Expired(now time.Time) bool {
	return now.After(l.ExpiresAt)
}
