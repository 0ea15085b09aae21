package ratelimit

import (
	"context"
	"errors"
	"fmt"
	"math/rand"
	"net"
	"strings"
	"time"
)

// Policy configures WithRetry: the priority tier every wire-crossing call
// must acquire a token from before each attempt (spec §4.D/§4.I), plus
// exponential-backoff bounds for the retry loop itself.
type Policy struct {
	Tier         Priority
	MaxRetries   int
	InitialDelay time.Duration
	MaxDelay     time.Duration
}

// DefaultPolicy returns sane retry bounds for a given tier.
func DefaultPolicy(tier Priority) Policy {
	return Policy{
		Tier:         tier,
		MaxRetries:   5,
		InitialDelay: 200 * time.Millisecond,
		MaxDelay:     15 * time.Second,
	}
}

// failureClass is the outcome classifyFailure sorts a failed attempt into:
// every wire-crossing call this registry retries — KV L2 lookups, D1
// queries, durable-queue publishes, and the drive provider's S3/Azure
// probes — surfaces its failure as either a plain Go network error or an
// HTTP status folded into the error string, so the classifier only needs
// to recognize those two shapes.
type failureClass int

const (
	// failureFatal means the request was rejected and retrying it
	// unchanged would fail again (bad request, not found).
	failureFatal failureClass = iota
	// failureAuth means the credential or signature was rejected; the
	// caller must refresh whatever it's presenting before a retry has any
	// chance of succeeding, so WithRetry pauses briefly rather than
	// backing off on the assumption a refresh happens out of band.
	failureAuth
	// failureRetryable covers rate limiting and server-side failures.
	failureRetryable
)

// classifyFailure sorts err into a failureClass using the status-code and
// network-error vocabulary this stack's own REST calls actually produce
// (see internal/kvproviders' classifyStatus helpers and
// internal/durablequeue's "status %d" wrapping) rather than a vendor SDK's
// error strings.
func classifyFailure(err error) failureClass {
	if errors.Is(err, context.Canceled) {
		return failureFatal
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return failureRetryable
	}
	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return failureRetryable
	}

	msg := strings.ToLower(err.Error())

	switch {
	case strings.Contains(msg, "401"), strings.Contains(msg, "403"),
		strings.Contains(msg, "unauthorized"), strings.Contains(msg, "invalid signature"):
		return failureAuth
	case strings.Contains(msg, "429"),
		strings.Contains(msg, "500"), strings.Contains(msg, "502"),
		strings.Contains(msg, "503"), strings.Contains(msg, "504"),
		strings.Contains(msg, "timeout"), strings.Contains(msg, "connection reset"),
		strings.Contains(msg, "eof"), strings.Contains(msg, "connection refused"):
		return failureRetryable
	case strings.Contains(msg, "400"), strings.Contains(msg, "404"):
		return failureFatal
	default:
		return failureFatal
	}
}

// backoff returns an exponential delay with full jitter, capped at
// policy.MaxDelay, so concurrent retries don't land in lockstep.
func backoff(attempt int, policy Policy) time.Duration {
	base := policy.InitialDelay << attempt
	if base > policy.MaxDelay {
		base = policy.MaxDelay
	}
	return time.Duration(rand.Int63n(int64(base) + 1))
}

// WithRetry acquires a token from policy.Tier's limiter before every
// attempt, then classifies a failure to decide whether — and how long —
// to wait before retrying.
func (r *Registry) WithRetry(ctx context.Context, policy Policy, operation func(ctx context.Context) error) error {
	var lastErr error

	for attempt := 0; attempt < policy.MaxRetries; attempt++ {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		if err := r.Acquire(ctx, policy.Tier); err != nil {
			return fmt.Errorf("ratelimit: acquire %s token: %w", policy.Tier, err)
		}

		err := operation(ctx)
		if err == nil {
			return nil
		}
		lastErr = err

		if attempt == policy.MaxRetries-1 {
			break
		}
		switch classifyFailure(err) {
		case failureFatal:
			return err
		case failureAuth:
			if !sleepOrDone(ctx, time.Second) {
				return ctx.Err()
			}
		case failureRetryable:
			if !sleepOrDone(ctx, backoff(attempt, policy)) {
				return ctx.Err()
			}
		}
	}

	return fmt.Errorf("ratelimit: operation failed after %d attempts: %w", policy.MaxRetries, lastErr)
}

// sleepOrDone waits out d unless ctx is cancelled first, reporting which
// happened.
func sleepOrDone(ctx context.Context, d time.Duration) bool {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-timer.C:
		return true
	case <-ctx.Done():
		return false
	}
}
