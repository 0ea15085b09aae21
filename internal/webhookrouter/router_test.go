package webhookrouter

import (
	"bytes"
	"context"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/mediarelay/botcore/internal/durablequeue"
	"github.com/mediarelay/botcore/internal/logging"
	"github.com/mediarelay/botcore/internal/taskerrors"
)

type fakeTasks struct {
	downloadErr, uploadErr, batchErr error
	lastTaskID                       string
	lastBatch                        []string
}

func (f *fakeTasks) HandleDownloadWebhook(_ context.Context, taskID string) error {
	f.lastTaskID = taskID
	return f.downloadErr
}
func (f *fakeTasks) HandleUploadWebhook(_ context.Context, taskID string) error {
	f.lastTaskID = taskID
	return f.uploadErr
}
func (f *fakeTasks) HandleMediaBatchWebhook(_ context.Context, taskIDs []string) error {
	f.lastBatch = taskIDs
	return f.batchErr
}

func signedRequest(t *testing.T, queue *durablequeue.Adapter, method, path string, body []byte) *http.Request {
	t.Helper()
	req := httptest.NewRequest(method, path, bytes.NewReader(body))
	req.Header.Set(durablequeue.SignatureHeader, queue.Sign(body))
	return req
}

func TestDownloadRouteInvokesHandlerOnValidSignature(t *testing.T) {
	queue := durablequeue.New(logging.New("test"), "http://unused", "shared-secret")
	tasks := &fakeTasks{}
	handler := New(logging.New("test"), queue, tasks, nil)

	body := []byte(`{"taskId":"t-1"}`)
	req := signedRequest(t, queue, http.MethodPost, "/api/tasks/download", body)
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)
	require.Equal(t, "t-1", tasks.lastTaskID)
}

func TestDownloadRouteRejectsBadSignature(t *testing.T) {
	queue := durablequeue.New(logging.New("test"), "http://unused", "shared-secret")
	tasks := &fakeTasks{}
	handler := New(logging.New("test"), queue, tasks, nil)

	body := []byte(`{"taskId":"t-1"}`)
	req := httptest.NewRequest(http.MethodPost, "/api/tasks/download", bytes.NewReader(body))
	req.Header.Set(durablequeue.SignatureHeader, "v1=deadbeef")
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)

	require.Equal(t, http.StatusUnauthorized, rec.Code)
	require.Empty(t, tasks.lastTaskID)
}

func TestBatchRouteFanOutsTaskIDs(t *testing.T) {
	queue := durablequeue.New(logging.New("test"), "http://unused", "shared-secret")
	tasks := &fakeTasks{}
	handler := New(logging.New("test"), queue, tasks, nil)

	body := []byte(`{"groupId":"g-1","taskIds":["t-1","t-2"]}`)
	req := signedRequest(t, queue, http.MethodPost, "/api/tasks/batch", body)
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)
	require.Equal(t, []string{"t-1", "t-2"}, tasks.lastBatch)
}

func TestHandlerErrorMapsToClassifiedStatus(t *testing.T) {
	queue := durablequeue.New(logging.New("test"), "http://unused", "shared-secret")
	tasks := &fakeTasks{downloadErr: taskerrors.ErrNotLeader}
	handler := New(logging.New("test"), queue, tasks, nil)

	body := []byte(`{"taskId":"t-1"}`)
	req := signedRequest(t, queue, http.MethodPost, "/api/tasks/download", body)
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)

	require.Equal(t, http.StatusServiceUnavailable, rec.Code)
}

func TestDownloadRouteMalformedPayloadReturns500(t *testing.T) {
	queue := durablequeue.New(logging.New("test"), "http://unused", "shared-secret")
	tasks := &fakeTasks{}
	handler := New(logging.New("test"), queue, tasks, nil)

	body := []byte(`{not json`)
	req := signedRequest(t, queue, http.MethodPost, "/api/tasks/download", body)
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)

	require.Equal(t, http.StatusInternalServerError, rec.Code)
}

func TestUploadRouteMalformedPayloadReturns500(t *testing.T) {
	queue := durablequeue.New(logging.New("test"), "http://unused", "shared-secret")
	tasks := &fakeTasks{}
	handler := New(logging.New("test"), queue, tasks, nil)

	body := []byte(`{not json`)
	req := signedRequest(t, queue, http.MethodPost, "/api/tasks/upload", body)
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)

	require.Equal(t, http.StatusInternalServerError, rec.Code)
}

func TestBatchRouteMalformedPayloadReturns500(t *testing.T) {
	queue := durablequeue.New(logging.New("test"), "http://unused", "shared-secret")
	tasks := &fakeTasks{}
	handler := New(logging.New("test"), queue, tasks, nil)

	body := []byte(`{not json`)
	req := signedRequest(t, queue, http.MethodPost, "/api/tasks/batch", body)
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)

	require.Equal(t, http.StatusInternalServerError, rec.Code)
}

func TestUnknownTopicIsAcknowledgedWithoutDispatch(t *testing.T) {
	queue := durablequeue.New(logging.New("test"), "http://unused", "shared-secret")
	tasks := &fakeTasks{}
	handler := New(logging.New("test"), queue, tasks, nil)

	body := []byte(`{}`)
	req := signedRequest(t, queue, http.MethodPost, "/api/tasks/some-future-topic", body)
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)
	require.Empty(t, tasks.lastTaskID)
	require.Empty(t, tasks.lastBatch)
}

func TestUnknownTopicStillRequiresValidSignature(t *testing.T) {
	queue := durablequeue.New(logging.New("test"), "http://unused", "shared-secret")
	tasks := &fakeTasks{}
	handler := New(logging.New("test"), queue, tasks, nil)

	body := []byte(`{}`)
	req := httptest.NewRequest(http.MethodPost, "/api/tasks/some-future-topic", bytes.NewReader(body))
	req.Header.Set(durablequeue.SignatureHeader, "v1=deadbeef")
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)

	require.Equal(t, http.StatusUnauthorized, rec.Code)
}

func TestHealthEndpointNeedsNoSignature(t *testing.T) {
	queue := durablequeue.New(logging.New("test"), "http://unused", "shared-secret")
	handler := New(logging.New("test"), queue, &fakeTasks{}, nil)

	req := httptest.NewRequest(http.MethodGet, "/health", nil)
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)
}
