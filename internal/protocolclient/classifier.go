// Package protocolclient implements the Protocol Client Supervisor (spec
// §4.D): error classifier, circuit breaker, and watchdog/reconnect loop
// around the fixed chatclient.Client boundary. The classifier is grounded
// on the same shape as internal/http.ClassifyError — one pure, table-
// driven function over a closed enum — adapted to the chat-protocol kinds
// spec §4.D names instead of S3/Azure transfer errors.
package protocolclient

import (
	"errors"
	"strings"
)

// Kind is the closed set of classifier outputs.
type Kind int

const (
	KindUnknown Kind = iota
	KindTimeout
	KindNotConnected
	KindConnectionLost
	KindAuthKeyDuplicated
	KindBinaryReader
	KindNetwork
	KindRPCError
)

func (k Kind) String() string {
	switch k {
	case KindTimeout:
		return "TIMEOUT"
	case KindNotConnected:
		return "NOT_CONNECTED"
	case KindConnectionLost:
		return "CONNECTION_LOST"
	case KindAuthKeyDuplicated:
		return "AUTH_KEY_DUPLICATED"
	case KindBinaryReader:
		return "BINARY_READER"
	case KindNetwork:
		return "NETWORK"
	case KindRPCError:
		return "RPC_ERROR"
	default:
		return "UNKNOWN"
	}
}

// CodedError lets a protocol error carry a numeric code (e.g. 406) the
// classifier matches before falling back to substring matching.
type CodedError struct {
	Code int
	Err  error
}

func (e *CodedError) Error() string { return e.Err.Error() }
func (e *CodedError) Unwrap() error { return e.Err }

// Classify maps a protocol-client error to one of the closed Kinds.
// Matching uses error codes first, then message substrings — never types
// beyond CodedError — so it stays side-effect free and exercisable over
// literal inputs in tests.
func Classify(err error) Kind {
	if err == nil {
		return KindUnknown
	}

	var coded *CodedError
	if errors.As(err, &coded) {
		if coded.Code == 406 {
			return KindAuthKeyDuplicated
		}
	}

	msg := strings.ToLower(err.Error())

	switch {
	case strings.Contains(msg, "readuint32le"), strings.Contains(msg, "readint32le"):
		return KindBinaryReader
	case strings.Contains(msg, "etimedout"), strings.Contains(msg, "econnreset"), strings.Contains(msg, "timed out"), strings.Contains(msg, "timeout"):
		return KindTimeout
	case strings.Contains(msg, "not connected"):
		return KindNotConnected
	case strings.Contains(msg, "connection lost"), strings.Contains(msg, "connection closed"):
		return KindConnectionLost
	case strings.Contains(msg, "auth_key_duplicated"), strings.Contains(msg, "406"):
		return KindAuthKeyDuplicated
	case strings.Contains(msg, "network"), strings.Contains(msg, "econnrefused"), strings.Contains(msg, "dns"):
		return KindNetwork
	case strings.Contains(msg, "rpc error"), strings.Contains(msg, "rpc_error"):
		return KindRPCError
	default:
		return KindUnknown
	}
}

// IsRecoverable is false only for AUTH_KEY_DUPLICATED — every other kind
// permits a reconnect attempt.
func IsRecoverable(kind Kind) bool {
	return kind != KindAuthKeyDuplicated
}

// ShouldResetSession reports whether the classified failure requires
// destroying the underlying session before reconnecting.
func ShouldResetSession(kind Kind, failureCount int) bool {
	switch kind {
	case KindBinaryReader, KindAuthKeyDuplicated:
		return true
	case KindTimeout:
		return failureCount >= 3
	default:
		return false
	}
}
