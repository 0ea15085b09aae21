package ratelimit

import (
	"context"
	"fmt"
)

// Registry owns one Limiter per priority tier, the single source of truth
// every component routing wire-crossing calls through the retry layer
// consults (protocol client, drive provider, KV L2).
type Registry struct {
	limiters map[Priority]*Limiter
}

// NewRegistry builds a Registry with the default tier configuration.
func NewRegistry() *Registry {
	r := &Registry{limiters: make(map[Priority]*Limiter)}
	for tier, cfg := range defaultTierConfig {
		r.limiters[tier] = NewLimiter(cfg.rate, cfg.burst)
	}
	return r
}

// Limiter returns the token bucket for a priority tier, falling back to
// PriorityNormal if tier is unrecognized.
func (r *Registry) Limiter(tier Priority) *Limiter {
	if l, ok := r.limiters[tier]; ok {
		return l
	}
	return r.limiters[PriorityNormal]
}

// Acquire blocks until a token is available in the given tier.
func (r *Registry) Acquire(ctx context.Context, tier Priority) error {
	return r.Limiter(tier).Wait(ctx)
}

// Describe returns a human-readable summary of a tier's current budget,
// for health/metrics reporting.
func (r *Registry) Describe(tier Priority) string {
	l := r.Limiter(tier)
	return fmt.Sprintf("%s: %.1f tokens available", tier, l.CurrentTokens())
}
