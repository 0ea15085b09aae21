// Package ratelimit implements the Rate-Limit/Retry Layer (spec §4.I):
// a token-bucket limiter per priority tier plus a retry policy shared by
// every call that crosses the wire. Grounded on the teacher's
// internal/ratelimit.RateLimiter token bucket, stripped of the
// cross-process coordinator hooks (this stack's coordination is the
// KV-backed internal/coordinator, not an IPC lease broker) and kept for
// its cooldown-merge and jittered-wait semantics.
package ratelimit

import (
	"context"
	"sync"
	"time"
)

// Limiter implements a token bucket: bursts up to maxTokens, refilled at
// refillRate tokens/second, with a mergeable cooldown window for
// Retry-After-driven pauses.
type Limiter struct {
	mu          sync.Mutex
	tokens      float64
	maxTokens   float64
	refillRate  float64
	lastRefill  time.Time
	cooldownEnd time.Time
}

// NewLimiter creates a token bucket with the given refill rate and burst
// capacity.
func NewLimiter(tokensPerSecond, burstSize float64) *Limiter {
	return &Limiter{
		tokens:     burstSize,
		maxTokens:  burstSize,
		refillRate: tokensPerSecond,
		lastRefill: time.Now(),
	}
}

// Wait blocks until a token is available or ctx is cancelled, honoring any
// active cooldown first.
func (l *Limiter) Wait(ctx context.Context) error {
	if cooldown := l.CooldownRemaining(); cooldown > 0 {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(cooldown):
		}
	}

	if l.tryAcquire() {
		return nil
	}

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		default:
		}

		if l.tryAcquire() {
			return nil
		}

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(l.timeUntilNextToken()):
		}
	}
}

// TryAcquire attempts to take one token without blocking.
func (l *Limiter) TryAcquire() bool { return l.tryAcquire() }

func (l *Limiter) tryAcquire() bool {
	l.mu.Lock()
	defer l.mu.Unlock()

	now := time.Now()
	elapsed := now.Sub(l.lastRefill).Seconds()
	l.tokens += elapsed * l.refillRate
	if l.tokens > l.maxTokens {
		l.tokens = l.maxTokens
	}
	l.lastRefill = now

	if l.tokens >= 1.0 {
		l.tokens -= 1.0
		return true
	}
	return false
}

func (l *Limiter) timeUntilNextToken() time.Duration {
	l.mu.Lock()
	defer l.mu.Unlock()

	needed := 1.0 - l.tokens
	if needed <= 0 {
		return 0
	}
	return time.Duration(needed / l.refillRate * float64(time.Second))
}

// Drain empties the bucket, used when a 429 response demands an
// immediate halt on this tier.
func (l *Limiter) Drain() {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.tokens = 0
	l.lastRefill = time.Now()
}

// SetCooldown sets a cooldown window, merging with any existing one so a
// shorter Retry-After can never shorten an active cooldown (only extend).
func (l *Limiter) SetCooldown(d time.Duration) {
	l.mu.Lock()
	defer l.mu.Unlock()

	newEnd := time.Now().Add(d)
	if newEnd.After(l.cooldownEnd) {
		l.cooldownEnd = newEnd
	}
}

// CooldownRemaining returns the time left on the active cooldown, or 0.
func (l *Limiter) CooldownRemaining() time.Duration {
	l.mu.Lock()
	defer l.mu.Unlock()

	if l.cooldownEnd.IsZero() {
		return 0
	}
	remaining := time.Until(l.cooldownEnd)
	if remaining <= 0 {
		return 0
	}
	return remaining
}

// CurrentTokens reports the current token count after applying refill —
// exposed for tests and diagnostics.
func (l *Limiter) CurrentTokens() float64 {
	l.mu.Lock()
	defer l.mu.Unlock()

	now := time.Now()
	elapsed := now.Sub(l.lastRefill).Seconds()
	tokens := l.tokens + elapsed*l.refillRate
	if tokens > l.maxTokens {
		tokens = l.maxTokens
	}
	return tokens
}
