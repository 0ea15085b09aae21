package durablequeue

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/mediarelay/botcore/internal/logging"
)

func TestVerifyWebhookSignatureAcceptsValidSignature(t *testing.T) {
	a := New(logging.New("test"), "https://queue.example.com/topics/botcore", "sekret")
	body := []byte(`{"taskId":"t-1"}`)
	sig := a.Sign(body)
	require.True(t, a.VerifyWebhookSignature(sig, body))
}

func TestVerifyWebhookSignatureRejectsTamperedBody(t *testing.T) {
	a := New(logging.New("test"), "https://queue.example.com/topics/botcore", "sekret")
	sig := a.Sign([]byte(`{"taskId":"t-1"}`))
	require.False(t, a.VerifyWebhookSignature(sig, []byte(`{"taskId":"t-2"}`)))
}

func TestVerifyWebhookSignatureRejectsEmptyHeader(t *testing.T) {
	a := New(logging.New("test"), "https://queue.example.com/topics/botcore", "sekret")
	require.False(t, a.VerifyWebhookSignature("", []byte(`{}`)))
}

func TestVerifyWebhookSignatureRejectsWrongKey(t *testing.T) {
	a := New(logging.New("test"), "https://queue.example.com/topics/botcore", "sekret")
	other := New(logging.New("test"), "https://queue.example.com/topics/botcore", "different")
	body := []byte(`{"taskId":"t-1"}`)
	require.False(t, a.VerifyWebhookSignature(other.Sign(body), body))
}

func TestEnqueueDownloadTaskPostsToDownloadTopic(t *testing.T) {
	var gotPath string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotPath = r.URL.Path
		w.WriteHeader(http.StatusAccepted)
	}))
	defer srv.Close()

	a := New(logging.New("test"), srv.URL, "sekret")
	err := a.EnqueueDownloadTask(t.Context(), "t-1", DownloadTaskMeta{UserID: "u-1", FileName: "x.mp4", FileSize: 10})
	require.NoError(t, err)
	require.Equal(t, "/download", gotPath)
}

func TestEnqueueMediaBatchFailsOnServerError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer srv.Close()

	a := New(logging.New("test"), srv.URL, "sekret")
	err := a.EnqueueMediaBatch(t.Context(), "g-1", []string{"t-1", "t-2"})
	require.Error(t, err)
}
