package protocolclient

import (
	"math"
	"time"
)

// ReconnectType selects how much state the reconnect procedure rebuilds.
type ReconnectType int

const (
	// ReconnectLightweight reuses the existing session; only the socket is
	// redialed.
	ReconnectLightweight ReconnectType = iota
	// ReconnectFull marks a failure whose session needs rebuilding. The
	// Supervisor logs it but redials the same way as ReconnectLightweight;
	// no session state is destroyed.
	ReconnectFull
)

// ReconnectStrategy is the plan the watchdog follows for a classified
// failure.
type ReconnectStrategy struct {
	Type        ReconnectType
	Delay       time.Duration
	MaxRetries  int
	ShouldRetry bool
}

type strategyParams struct {
	reconnectType ReconnectType
	baseDelay     time.Duration
	multiplier    float64
	maxDelay      time.Duration
	maxRetries    int
	shouldRetry   bool
}

// strategyTable is keyed by classifier Kind; tuned so AUTH_KEY_DUPLICATED
// never retries (the session is permanently poisoned) while transient
// network-ish kinds back off with an exponential curve capped at 60s.
var strategyTable = map[Kind]strategyParams{
	KindTimeout: {
		reconnectType: ReconnectLightweight,
		baseDelay:     500 * time.Millisecond,
		multiplier:    2.0,
		maxDelay:      30 * time.Second,
		maxRetries:    8,
		shouldRetry:   true,
	},
	KindNotConnected: {
		reconnectType: ReconnectLightweight,
		baseDelay:     time.Second,
		multiplier:    1.5,
		maxDelay:      20 * time.Second,
		maxRetries:    10,
		shouldRetry:   true,
	},
	KindConnectionLost: {
		reconnectType: ReconnectLightweight,
		baseDelay:     time.Second,
		multiplier:    2.0,
		maxDelay:      60 * time.Second,
		maxRetries:    10,
		shouldRetry:   true,
	},
	KindNetwork: {
		reconnectType: ReconnectLightweight,
		baseDelay:     2 * time.Second,
		multiplier:    2.0,
		maxDelay:      60 * time.Second,
		maxRetries:    8,
		shouldRetry:   true,
	},
	KindBinaryReader: {
		reconnectType: ReconnectFull,
		baseDelay:     time.Second,
		multiplier:    2.0,
		maxDelay:      30 * time.Second,
		maxRetries:    5,
		shouldRetry:   true,
	},
	KindRPCError: {
		reconnectType: ReconnectLightweight,
		baseDelay:     time.Second,
		multiplier:    1.8,
		maxDelay:      30 * time.Second,
		maxRetries:    6,
		shouldRetry:   true,
	},
	KindAuthKeyDuplicated: {
		reconnectType: ReconnectFull,
		baseDelay:     0,
		multiplier:    1,
		maxDelay:      0,
		maxRetries:    0,
		shouldRetry:   false,
	},
	KindUnknown: {
		reconnectType: ReconnectLightweight,
		baseDelay:     time.Second,
		multiplier:    2.0,
		maxDelay:      30 * time.Second,
		maxRetries:    5,
		shouldRetry:   true,
	},
}

// ReconnectStrategyFor computes the reconnect plan for a classified
// failure, scaling delay by failureCount per a per-kind exponential
// multiplier capped at a per-kind maximum.
func ReconnectStrategyFor(kind Kind, failureCount int) ReconnectStrategy {
	p, ok := strategyTable[kind]
	if !ok {
		p = strategyTable[KindUnknown]
	}

	delay := p.baseDelay
	if p.shouldRetry && p.multiplier > 0 && failureCount > 0 {
		scaled := float64(p.baseDelay) * math.Pow(p.multiplier, float64(failureCount))
		if scaled > float64(p.maxDelay) {
			scaled = float64(p.maxDelay)
		}
		delay = time.Duration(scaled)
	}

	return ReconnectStrategy{
		Type:        p.reconnectType,
		Delay:       delay,
		MaxRetries:  p.maxRetries,
		ShouldRetry: p.shouldRetry && failureCount < p.maxRetries,
	}
}
