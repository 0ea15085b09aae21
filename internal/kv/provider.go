package kv

import "context"

// ErrorClass tells the failover state machine what kind of failure a
// provider call returned, independent of the provider's own wire format.
type ErrorClass int

const (
	// ErrClassNone means the call succeeded.
	ErrClassNone ErrorClass = iota
	// ErrClassQuota covers rate-limit/quota exhaustion — recovers slowly.
	ErrClassQuota
	// ErrClassTransport covers connection/timeout failures — recovers quickly.
	ErrClassTransport
	// ErrClassValidation covers non-retryable client errors (bad key, bad
	// payload) that must surface to the caller unchanged and never trip
	// failover.
	ErrClassValidation
)

// ProviderError lets an L2 provider tag the failure class alongside the
// underlying error, so the facade's failover state machine doesn't need to
// parse provider-specific error text.
type ProviderError struct {
	Class ErrorClass
	Err   error
}

func (e *ProviderError) Error() string { return e.Err.Error() }
func (e *ProviderError) Unwrap() error { return e.Err }

// ClassOf extracts the ErrorClass tagged on err, defaulting to
// ErrClassValidation (never-retry, never-failover) for untagged errors.
func ClassOf(err error) ErrorClass {
	if err == nil {
		return ErrClassNone
	}
	var pe *ProviderError
	if ok := asProviderError(err, &pe); ok {
		return pe.Class
	}
	return ErrClassValidation
}

func asProviderError(err error, target **ProviderError) bool {
	for err != nil {
		if pe, ok := err.(*ProviderError); ok {
			*target = pe
			return true
		}
		unwrapper, ok := err.(interface{ Unwrap() error })
		if !ok {
			return false
		}
		err = unwrapper.Unwrap()
	}
	return false
}

// Provider is the L2 remote KV backend contract. Cloudflare Workers KV and
// Upstash Redis REST both implement it as plain bearer-token HTTPS clients.
type Provider interface {
	// Name identifies the provider in logs and CacheGetError/CacheSetError.
	Name() string
	// Get returns the raw value for key, or (nil, false, nil) on a clean miss.
	Get(ctx context.Context, key string) (value []byte, found bool, err error)
	// Set writes value under key with an optional TTL (0 = no expiry).
	Set(ctx context.Context, key string, value []byte, ttlSeconds int) error
	// Delete removes key; a missing key is not an error.
	Delete(ctx context.Context, key string) error
	// ListKeys enumerates keys under prefix.
	ListKeys(ctx context.Context, prefix string) ([]string, error)
	// BulkSet pipelines multiple writes in one round trip where the
	// backend supports it.
	BulkSet(ctx context.Context, entries map[string][]byte, ttlSeconds int) error
	// Healthy performs a cheap liveness probe, used by the failover state
	// machine's periodic primary-recovery check.
	Healthy(ctx context.Context) error
}
