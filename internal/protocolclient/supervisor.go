package protocolclient

import (
	"context"
	"math/rand"
	"sync"
	"sync/atomic"
	"time"

	"github.com/mediarelay/botcore/internal/chatclient"
	"github.com/mediarelay/botcore/internal/coordinator"
	"github.com/mediarelay/botcore/internal/logging"
)

const (
	watchdogInterval     = 60 * time.Second
	watchdogTripFailures = 5
	debounceWindow       = 2 * time.Second
	disconnectHardCap    = 5 * time.Second
	jitterFraction       = 0.2
)

// Supervisor owns the one long-lived chatclient.Client connection this
// instance may hold. It only acts while the coordinator's leader lock is
// held; every other instance in the fleet leaves its supervisor idle.
type Supervisor struct {
	client  chatclient.Client
	coord   *coordinator.Coordinator
	breaker *Breaker
	log     *logging.Logger

	leaderTTL time.Duration

	mu              sync.Mutex
	isReconnecting  bool
	failureCount    int
	lastKind        Kind
	debounceTimer   *time.Timer
	lastWatchdogErr int32 // consecutive watchdog ping failures, atomic
}

// NewSupervisor builds a Supervisor around an already-constructed
// chatclient.Client. Run must be called to begin connecting and the
// watchdog; the Supervisor does not pump inbound events.
func NewSupervisor(client chatclient.Client, coord *coordinator.Coordinator, breaker *Breaker, log *logging.Logger, leaderTTL time.Duration) *Supervisor {
	return &Supervisor{
		client:    client,
		coord:     coord,
		breaker:   breaker,
		log:       log,
		leaderTTL: leaderTTL,
	}
}

// Run blocks until ctx is cancelled, connecting when leadership is held,
// watching the client's error channel for debounced reconnects, and
// polling liveness on watchdogInterval.
func (s *Supervisor) Run(ctx context.Context) error {
	if held, err := s.coord.HasLock(ctx, coordinator.LeaderRole); err != nil {
		return err
	} else if !held {
		ok, err := s.coord.AcquireLock(ctx, coordinator.LeaderRole, s.leaderTTL)
		if err != nil {
			return err
		}
		if !ok {
			s.log.Info().Msg("protocolclient: leadership held elsewhere, supervisor idle")
			<-ctx.Done()
			return ctx.Err()
		}
	}

	if err := s.connectThroughBreaker(ctx, KindUnknown); err != nil {
		s.log.Error().Err(err).Msg("protocolclient: initial connect failed")
		s.scheduleReconnect(ctx)
	}

	watchdog := time.NewTicker(watchdogInterval)
	defer watchdog.Stop()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-watchdog.C:
			s.runWatchdogPing(ctx)
		case err, ok := <-s.client.Errors():
			if !ok {
				return nil
			}
			s.onClientError(ctx, err)
		}
	}
}

func (s *Supervisor) runWatchdogPing(ctx context.Context) {
	pingCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()

	if err := s.client.Ping(pingCtx); err != nil {
		n := atomic.AddInt32(&s.lastWatchdogErr, 1)
		s.log.Warn().Err(err).Int32("consecutive", n).Msg("protocolclient: watchdog ping failed")
		if int(n) >= watchdogTripFailures {
			atomic.StoreInt32(&s.lastWatchdogErr, 0)
			s.scheduleReconnect(ctx)
		}
		return
	}
	atomic.StoreInt32(&s.lastWatchdogErr, 0)
}

func (s *Supervisor) onClientError(ctx context.Context, err error) {
	kind := Classify(err)
	s.log.Warn().Err(err).Str("kind", kind.String()).Msg("protocolclient: client error")

	s.mu.Lock()
	s.lastKind = kind
	s.mu.Unlock()

	if !IsRecoverable(kind) {
		s.log.Error().Str("kind", kind.String()).Msg("protocolclient: unrecoverable session, full reconnect required")
	}
	s.scheduleReconnect(ctx)
}

// connectThroughBreaker routes Connect through the circuit keyed by the
// failure kind the caller is recovering from, so repeated unrecoverable
// failures of one kind don't get masked by another kind's looser budget.
func (s *Supervisor) connectThroughBreaker(ctx context.Context, kind Kind) error {
	return s.breaker.Execute(ctx, kind, s.client.Connect)
}

// scheduleReconnect debounces bursts of errors/watchdog trips into a
// single reconnect attempt roughly debounceWindow after the last signal.
func (s *Supervisor) scheduleReconnect(ctx context.Context) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.debounceTimer != nil {
		s.debounceTimer.Stop()
	}
	s.debounceTimer = time.AfterFunc(debounceWindow, func() {
		s.reconnect(ctx)
	})
}

// reconnect runs the disconnect→wait→connect procedure. A ReconnectFull
// strategy is only logged: chatclient.Client has no session-reset call, so
// no session state is destroyed before redialing.
// Re-entrancy is prevented by isReconnecting; leadership is re-checked
// immediately before acting since it may have been lost while debouncing.
func (s *Supervisor) reconnect(ctx context.Context) {
	s.mu.Lock()
	if s.isReconnecting {
		s.mu.Unlock()
		return
	}
	s.isReconnecting = true
	s.failureCount++
	failureCount := s.failureCount
	s.mu.Unlock()

	defer func() {
		s.mu.Lock()
		s.isReconnecting = false
		s.mu.Unlock()
	}()

	held, err := s.coord.HasLock(ctx, coordinator.LeaderRole)
	if err != nil || !held {
		s.log.Info().Msg("protocolclient: leadership lost, skipping reconnect")
		return
	}

	s.mu.Lock()
	kind := s.lastKind
	s.mu.Unlock()
	strategy := ReconnectStrategyFor(kind, failureCount)
	if !strategy.ShouldRetry {
		s.log.Error().Int("failureCount", failureCount).Msg("protocolclient: reconnect strategy exhausted")
		return
	}

	dctx, cancel := context.WithTimeout(ctx, disconnectHardCap)
	_ = s.client.Disconnect(dctx)
	cancel()

	if strategy.Type == ReconnectFull {
		s.log.Info().Msg("protocolclient: resetting client session before reconnect")
	}

	delay := withJitter(strategy.Delay)
	select {
	case <-ctx.Done():
		return
	case <-time.After(delay):
	}

	held, err = s.coord.HasLock(ctx, coordinator.LeaderRole)
	if err != nil || !held {
		s.log.Info().Msg("protocolclient: leadership lost during reconnect wait, aborting")
		return
	}

	if err := s.connectThroughBreaker(ctx, kind); err != nil {
		s.log.Error().Err(err).Msg("protocolclient: reconnect attempt failed")
		s.scheduleReconnect(ctx)
		return
	}

	s.mu.Lock()
	s.failureCount = 0
	s.mu.Unlock()
	s.log.Info().Msg("protocolclient: reconnected")
}

func withJitter(d time.Duration) time.Duration {
	if d <= 0 {
		return 0
	}
	jitter := time.Duration(rand.Float64() * jitterFraction * float64(d))
	return d + jitter
}
