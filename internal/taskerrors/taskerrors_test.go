package taskerrors

import (
	"errors"
	"net/http"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestClassifiedUnwrap(t *testing.T) {
	root := errors.New("d1: connection refused")
	c := New(KindTransient, root)

	require.ErrorIs(t, c, root)
	require.Equal(t, KindTransient, ClassifyOf(c))
}

func TestStatusCodeMapping(t *testing.T) {
	cases := []struct {
		kind Kind
		want int
	}{
		{KindNotFound, http.StatusNotFound},
		{KindNotLeader, http.StatusServiceUnavailable},
		{KindTransient, http.StatusServiceUnavailable},
		{KindPermanent, http.StatusInternalServerError},
		{KindBusiness, http.StatusInternalServerError},
		{KindCancelled, http.StatusOK},
	}
	for _, tc := range cases {
		require.Equal(t, tc.want, tc.kind.StatusCode())
	}
}

func TestStatusCodeOfWrappedError(t *testing.T) {
	err := Newf(KindBusiness, "user may not cancel task owned by another user")
	wrapped := errors.New("webhook: " + err.Error())
	require.Equal(t, http.StatusInternalServerError, StatusCode(wrapped))
	require.Equal(t, http.StatusInternalServerError, StatusCode(err))
}

func TestStatusCodeNilError(t *testing.T) {
	require.Equal(t, http.StatusOK, StatusCode(nil))
}
