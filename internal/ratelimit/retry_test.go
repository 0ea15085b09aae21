package ratelimit

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestWithRetrySucceedsAfterTransientFailures(t *testing.T) {
	r := NewRegistry()
	policy := DefaultPolicy(PriorityHigh)
	policy.InitialDelay = time.Millisecond
	policy.MaxDelay = 5 * time.Millisecond

	attempts := 0
	err := r.WithRetry(context.Background(), policy, func(context.Context) error {
		attempts++
		if attempts < 3 {
			return errors.New("connection reset")
		}
		return nil
	})

	require.NoError(t, err)
	require.Equal(t, 3, attempts)
}

func TestWithRetryStopsOnFatalError(t *testing.T) {
	r := NewRegistry()
	policy := DefaultPolicy(PriorityNormal)

	attempts := 0
	err := r.WithRetry(context.Background(), policy, func(context.Context) error {
		attempts++
		return errors.New("404 not found")
	})

	require.Error(t, err)
	require.Equal(t, 1, attempts)
}

func TestWithRetryRetriesAuthFailureThenSucceeds(t *testing.T) {
	r := NewRegistry()
	policy := DefaultPolicy(PriorityHigh)

	attempts := 0
	err := r.WithRetry(context.Background(), policy, func(context.Context) error {
		attempts++
		if attempts < 2 {
			return errors.New("status 401: invalid signature")
		}
		return nil
	})

	require.NoError(t, err)
	require.Equal(t, 2, attempts)
}

func TestWithRetryStopsAfterMaxRetriesOnPersistentRetryableFailure(t *testing.T) {
	r := NewRegistry()
	policy := DefaultPolicy(PriorityLow)
	policy.MaxRetries = 3
	policy.InitialDelay = time.Millisecond
	policy.MaxDelay = 5 * time.Millisecond

	attempts := 0
	err := r.WithRetry(context.Background(), policy, func(context.Context) error {
		attempts++
		return errors.New("status 503: service unavailable")
	})

	require.Error(t, err)
	require.Equal(t, 3, attempts)
}
