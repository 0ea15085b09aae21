package ratelimit

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestRegistryGrantsOneLimiterPerTier(t *testing.T) {
	r := NewRegistry()

	ui := r.Limiter(PriorityUI)
	bg := r.Limiter(PriorityBackground)
	require.NotSame(t, ui, bg)
	require.Same(t, ui, r.Limiter(PriorityUI), "same tier must return the same limiter")
}

func TestRegistryUnknownTierFallsBackToNormal(t *testing.T) {
	r := NewRegistry()
	require.Same(t, r.Limiter(PriorityNormal), r.Limiter(Priority(99)))
}

func TestRegistryAcquireRespectsTierBudget(t *testing.T) {
	r := NewRegistry()
	ctx := context.Background()

	for i := 0; i < 5; i++ {
		require.NoError(t, r.Acquire(ctx, PriorityUI))
	}
}
