package kv

import (
	"context"
	"sync"
	"time"

	"github.com/mediarelay/botcore/internal/logging"
)

const (
	defaultFailoverThreshold  = 3
	quotaRecoveryInterval     = 12 * time.Hour
	transportRecoveryInterval = 30 * time.Minute
)

type providerSlot int

const (
	slotPrimary providerSlot = iota
	slotBackup
)

// failover tracks which of primary/backup currently services writes and
// runs the quota/transport recovery timers described in spec §4.A. It is
// a no-op pass-through when no backup provider is configured.
type failover struct {
	mu               sync.Mutex
	log              *logging.Logger
	primary          Provider
	backup           Provider // nil disables failover entirely
	current          providerSlot
	threshold        int
	consecutiveFails int
	lastErrorClass   ErrorClass
	recoverAt        time.Time
	now              func() time.Time
}

func newFailover(log *logging.Logger, primary, backup Provider) *failover {
	return &failover{
		log:       log,
		primary:   primary,
		backup:    backup,
		current:   slotPrimary,
		threshold: defaultFailoverThreshold,
		now:       time.Now,
	}
}

// active returns the provider that should service the next call.
func (f *failover) active() Provider {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.providerFor(f.current)
}

func (f *failover) providerFor(slot providerSlot) Provider {
	if slot == slotBackup && f.backup != nil {
		return f.backup
	}
	return f.primary
}

// reportResult feeds the outcome of a primary-provider call into the
// failover state machine. Calls against the backup never affect state —
// only the primary's health decides when to switch away from it.
func (f *failover) reportResult(slot providerSlot, err error) {
	if f.backup == nil || slot != slotPrimary {
		return
	}

	class := ClassOf(err)
	f.mu.Lock()
	defer f.mu.Unlock()

	if class == ErrClassNone {
		f.consecutiveFails = 0
		return
	}
	if class == ErrClassValidation {
		// Surfaces to caller unchanged; never trips failover.
		return
	}

	f.consecutiveFails++
	f.lastErrorClass = class
	if f.current == slotPrimary && f.consecutiveFails >= f.threshold {
		f.switchTo(slotBackup, class)
	}
}

func (f *failover) switchTo(slot providerSlot, class ErrorClass) {
	f.current = slot
	f.consecutiveFails = 0
	interval := transportRecoveryInterval
	if class == ErrClassQuota {
		interval = quotaRecoveryInterval
	}
	f.recoverAt = f.now().Add(interval)
	if f.log != nil {
		f.log.Warn().Str("switched_to", slotName(slot)).Dur("recovery_interval", interval).Msg("kv failover switched provider")
	}
}

func slotName(s providerSlot) string {
	if s == slotBackup {
		return "backup"
	}
	return "primary"
}

// MaybeProbeRecovery checks whether it is time to probe the primary for
// recovery and, if so, switches back on success. Intended to run from a
// periodic ticker owned by the facade.
func (f *failover) MaybeProbeRecovery(ctx context.Context) {
	f.mu.Lock()
	if f.backup == nil || f.current != slotBackup {
		f.mu.Unlock()
		return
	}
	if f.now().Before(f.recoverAt) {
		f.mu.Unlock()
		return
	}
	f.mu.Unlock()

	if err := f.primary.Healthy(ctx); err != nil {
		return
	}

	f.mu.Lock()
	f.current = slotPrimary
	f.consecutiveFails = 0
	f.lastErrorClass = ErrClassNone
	f.mu.Unlock()

	if f.log != nil {
		f.log.Info().Msg("kv failover recovered to primary")
	}
}

// Slot reports which provider currently services writes (for diagnostics
// and tests).
func (f *failover) Slot() string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return slotName(f.current)
}

// currentSlot returns the slot active() would currently resolve to, so a
// caller can report the right slot back via reportResult after the call.
func (f *failover) currentSlot() providerSlot {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.current
}
