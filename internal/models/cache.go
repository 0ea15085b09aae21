package models

import "time"

// CacheEntry is the in-process L1 record the KV facade keeps ahead of the
// L2 remote provider. Value is stored pre-serialized so the facade never
// has to know the caller's concrete type.
type CacheEntry struct {
	Key       string    `json:"key"`
	Value     []byte    `json:"value"`
	ExpiresAt time.Time `json:"expires_at"`
}

// Expired reports whether the entry has passed its TTL as of now. A zero
// ExpiresAt means the entry never expires.
func (c CacheEntry) Expired(now time.Time) bool {
	if c.ExpiresAt.IsZero() {
		return false
	}
	return now.After(c.ExpiresAt)
}
