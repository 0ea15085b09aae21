package protocolclient

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestClassifyByMessageSubstring(t *testing.T) {
	cases := []struct {
		msg  string
		want Kind
	}{
		{"read tcp: readUInt32LE failed", KindBinaryReader},
		{"readInt32LE: unexpected EOF", KindBinaryReader},
		{"dial tcp: ETIMEDOUT", KindTimeout},
		{"context deadline exceeded: timed out", KindTimeout},
		{"socket not connected", KindNotConnected},
		{"connection lost to server", KindConnectionLost},
		{"AUTH_KEY_DUPLICATED", KindAuthKeyDuplicated},
		{"dial tcp: ECONNREFUSED network unreachable", KindNetwork},
		{"rpc error: code = Unavailable", KindRPCError},
		{"something entirely unexpected", KindUnknown},
	}
	for _, c := range cases {
		require.Equal(t, c.want, Classify(errors.New(c.msg)), c.msg)
	}
}

func TestClassifyByCode(t *testing.T) {
	err := &CodedError{Code: 406, Err: errors.New("rpc failure")}
	require.Equal(t, KindAuthKeyDuplicated, Classify(err))
}

func TestClassifyNilIsUnknown(t *testing.T) {
	require.Equal(t, KindUnknown, Classify(nil))
}

func TestIsRecoverable(t *testing.T) {
	require.False(t, IsRecoverable(KindAuthKeyDuplicated))
	require.True(t, IsRecoverable(KindTimeout))
	require.True(t, IsRecoverable(KindUnknown))
}

func TestShouldResetSession(t *testing.T) {
	require.True(t, ShouldResetSession(KindBinaryReader, 1))
	require.True(t, ShouldResetSession(KindAuthKeyDuplicated, 1))
	require.False(t, ShouldResetSession(KindTimeout, 1))
	require.True(t, ShouldResetSession(KindTimeout, 3))
	require.False(t, ShouldResetSession(KindNetwork, 10))
}
