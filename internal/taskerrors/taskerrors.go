// Package taskerrors defines the closed error taxonomy the Webhook Router
// and Task Pipeline classify every failure into before responding to a
// webhook caller: a closed set of Kinds and one pure classification
// function, with no side effects.
package taskerrors

import (
	"errors"
	"fmt"
	"net/http"
)

// Kind is the closed set of error classes the pipeline and repository
// layers raise. Every Kind maps to exactly one HTTP status code at the
// webhook boundary.
type Kind int

const (
	KindUnknown Kind = iota
	KindNotFound
	KindNotLeader
	KindTransient
	KindPermanent
	KindBusiness
	KindCancelled
)

// String returns the lowercase name used in log fields and error text.
func (k Kind) String() string {
	switch k {
	case KindNotFound:
		return "not_found"
	case KindNotLeader:
		return "not_leader"
	case KindTransient:
		return "transient"
	case KindPermanent:
		return "permanent"
	case KindBusiness:
		return "business"
	case KindCancelled:
		return "cancelled"
	default:
		return "unknown"
	}
}

// StatusCode maps a Kind to the HTTP status the Webhook Router returns.
func (k Kind) StatusCode() int {
	switch k {
	case KindNotFound:
		return http.StatusNotFound
	case KindNotLeader:
		return http.StatusServiceUnavailable
	case KindTransient:
		return http.StatusServiceUnavailable
	case KindPermanent:
		return http.StatusInternalServerError
	case KindBusiness:
		return http.StatusInternalServerError
	case KindCancelled:
		return http.StatusOK
	default:
		return http.StatusInternalServerError
	}
}

// Classified wraps an underlying error with its Kind, preserving the
// %w chain so errors.Is/errors.As still reach the cause.
type Classified struct {
	Kind Kind
	Err  error
}

func (c *Classified) Error() string {
	return fmt.Sprintf("%s: %v", c.Kind, c.Err)
}

func (c *Classified) Unwrap() error { return c.Err }

// New wraps err with the given Kind.
func New(kind Kind, err error) *Classified {
	return &Classified{Kind: kind, Err: err}
}

// Newf wraps a formatted error with the given Kind.
func Newf(kind Kind, format string, args ...any) *Classified {
	return &Classified{Kind: kind, Err: fmt.Errorf(format, args...)}
}

// ClassifyOf extracts the Kind from err if it (or something it wraps) is a
// *Classified, defaulting to KindUnknown otherwise.
func ClassifyOf(err error) Kind {
	var c *Classified
	if errors.As(err, &c) {
		return c.Kind
	}
	return KindUnknown
}

// StatusCode maps any error to the HTTP status the Webhook Router returns,
// falling back to 500 for errors that were never classified.
func StatusCode(err error) int {
	if err == nil {
		return http.StatusOK
	}
	return ClassifyOf(err).StatusCode()
}

var (
	// ErrNotFound indicates the referenced task/drive/lock does not exist.
	ErrNotFound = New(KindNotFound, errors.New("not found"))
	// ErrNotLeader indicates this instance does not hold the leader lock
	// and must not execute the requested operation.
	ErrNotLeader = New(KindNotLeader, errors.New("instance is not leader"))
	// ErrCancelled indicates the task was cancelled mid-flight; this is
	// reported as a 200 so the caller does not retry a cancellation.
	ErrCancelled = New(KindCancelled, errors.New("task cancelled"))
)
