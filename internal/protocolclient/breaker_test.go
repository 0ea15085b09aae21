package protocolclient

import (
	"context"
	"errors"
	"testing"

	"github.com/sony/gobreaker"
	"github.com/stretchr/testify/require"

	"github.com/mediarelay/botcore/internal/logging"
)

func TestBreakerTripsAuthKeyDuplicatedImmediately(t *testing.T) {
	b := NewBreaker(logging.New("test"), 0)
	ctx := context.Background()

	err := b.Execute(ctx, KindAuthKeyDuplicated, func(context.Context) error {
		return errors.New("406")
	})
	require.Error(t, err)
	require.Equal(t, gobreaker.StateOpen, b.State(KindAuthKeyDuplicated))
}

func TestBreakerToleratesMoreNetworkFailures(t *testing.T) {
	b := NewBreaker(logging.New("test"), 0)
	ctx := context.Background()

	for i := 0; i < 7; i++ {
		_ = b.Execute(ctx, KindNetwork, func(context.Context) error {
			return errors.New("network unreachable")
		})
	}
	require.Equal(t, gobreaker.StateClosed, b.State(KindNetwork))

	_ = b.Execute(ctx, KindNetwork, func(context.Context) error {
		return errors.New("network unreachable")
	})
	require.Equal(t, gobreaker.StateOpen, b.State(KindNetwork))
}

func TestBreakerIndependentPerKind(t *testing.T) {
	b := NewBreaker(logging.New("test"), 0)
	ctx := context.Background()

	_ = b.Execute(ctx, KindAuthKeyDuplicated, func(context.Context) error {
		return errors.New("406")
	})
	require.Equal(t, gobreaker.StateOpen, b.State(KindAuthKeyDuplicated))
	require.Equal(t, gobreaker.StateClosed, b.State(KindNetwork))
}

func TestBreakerSuccessResetsCounters(t *testing.T) {
	b := NewBreaker(logging.New("test"), 0)
	ctx := context.Background()

	for i := 0; i < 5; i++ {
		_ = b.Execute(ctx, KindNetwork, func(context.Context) error {
			return errors.New("network unreachable")
		})
	}
	require.NoError(t, b.Execute(ctx, KindNetwork, func(context.Context) error {
		return nil
	}))
	require.Equal(t, gobreaker.StateClosed, b.State(KindNetwork))
}
