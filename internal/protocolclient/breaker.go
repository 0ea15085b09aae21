package protocolclient

import (
	"context"
	"time"

	"github.com/sony/gobreaker"

	"github.com/mediarelay/botcore/internal/logging"
)

// defaultBreakerOpenTimeout is the OPEN→HALF_OPEN wait used when NewBreaker
// is given a zero duration, matching config.Config's CircuitBreakerOpen
// default.
const defaultBreakerOpenTimeout = 60 * time.Second

// defaultTripThreshold is the ReadyToTrip consecutive-failure count used
// for any kind without an override (spec §4.D).
const defaultTripThreshold = 5

// tripThreshold returns the per-kind consecutive-failure count that trips
// the breaker to OPEN. AUTH_KEY_DUPLICATED trips on the very first
// failure since the session is unrecoverable; NETWORK tolerates more
// transient noise than other recoverable kinds.
func tripThreshold(kind Kind) uint32 {
	switch kind {
	case KindAuthKeyDuplicated:
		return 1
	case KindNetwork:
		return 8
	case KindTimeout, KindNotConnected, KindConnectionLost, KindRPCError, KindBinaryReader:
		return 6
	default:
		return defaultTripThreshold
	}
}

// Breaker wraps one gobreaker.CircuitBreaker per classified Kind so a
// storm of AUTH_KEY_DUPLICATED failures can't be masked by NETWORK's
// higher tolerance, and vice versa. execute is the only path that updates
// counters and transitions state.
type Breaker struct {
	log      *logging.Logger
	circuits map[Kind]*gobreaker.CircuitBreaker
}

// NewBreaker builds one circuit per classifier Kind with its threshold
// override applied. openTimeout is config.Config's CircuitBreakerOpen; a
// zero value falls back to defaultBreakerOpenTimeout.
func NewBreaker(log *logging.Logger, openTimeout time.Duration) *Breaker {
	if openTimeout <= 0 {
		openTimeout = defaultBreakerOpenTimeout
	}
	b := &Breaker{
		log:      log,
		circuits: make(map[Kind]*gobreaker.CircuitBreaker),
	}
	kinds := []Kind{
		KindTimeout, KindNotConnected, KindConnectionLost, KindAuthKeyDuplicated,
		KindBinaryReader, KindNetwork, KindRPCError, KindUnknown,
	}
	for _, kind := range kinds {
		threshold := tripThreshold(kind)
		k := kind
		b.circuits[kind] = gobreaker.NewCircuitBreaker(gobreaker.Settings{
			Name:    k.String(),
			Timeout: openTimeout,
			ReadyToTrip: func(counts gobreaker.Counts) bool {
				return counts.ConsecutiveFailures >= threshold
			},
			OnStateChange: func(name string, from, to gobreaker.State) {
				b.log.Warn().Str("kind", name).Str("from", from.String()).Str("to", to.String()).Msg("protocol circuit breaker state change")
			},
		})
	}
	return b
}

// Execute runs fn through the circuit keyed by kind. kind should be the
// classifier's Kind for the error the caller expects fn to fail with
// (KindUnknown is a reasonable default for a fresh connection attempt).
// The returned error is not reclassified; the trip decision always uses
// the circuit selected up front.
func (b *Breaker) Execute(ctx context.Context, kind Kind, fn func(ctx context.Context) error) error {
	circuit, ok := b.circuits[kind]
	if !ok {
		circuit = b.circuits[KindUnknown]
	}
	_, err := circuit.Execute(func() (any, error) {
		return nil, fn(ctx)
	})
	return err
}

// State reports the current gobreaker state for a kind's circuit.
func (b *Breaker) State(kind Kind) gobreaker.State {
	circuit, ok := b.circuits[kind]
	if !ok {
		circuit = b.circuits[KindUnknown]
	}
	return circuit.State()
}
