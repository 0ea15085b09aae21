// Package durablequeue is a thin typed wrapper around an external
// at-least-once HTTP delivery service: it publishes task-stage messages as
// signed JSON payloads and verifies the signature on the webhook callback
// path, grounded on the teacher's retryablehttp-wrapped REST client
// (internal/api/client.go) in the same way the kvproviders clients are.
package durablequeue

import (
	"bytes"
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/hashicorp/go-retryablehttp"

	"github.com/mediarelay/botcore/internal/logging"
)

// SignatureHeader is the inbound header every webhook carries, formatted
// "v1=<hex-hmac-sha256>".
const SignatureHeader = "upstash-signature"

const signaturePrefix = "v1="

// retryLogger adapts the component logger to retryablehttp.LeveledLogger.
type retryLogger struct{ log *logging.Logger }

func (l *retryLogger) Error(msg string, kv ...interface{}) {
	l.log.Error().Interface("details", kv).Msg(msg)
}
func (l *retryLogger) Info(msg string, kv ...interface{})  {}
func (l *retryLogger) Debug(msg string, kv ...interface{}) {}
func (l *retryLogger) Warn(msg string, kv ...interface{}) {
	l.log.Warn().Interface("details", kv).Msg(msg)
}

// DownloadTaskMeta is the payload published alongside a download task id.
type DownloadTaskMeta struct {
	UserID    string `json:"userId"`
	ChatID    string `json:"chatId"`
	MessageID string `json:"messageId"`
	DriveID   string `json:"driveId"`
	FileName  string `json:"fileName"`
	FileSize  int64  `json:"fileSize"`
}

// UploadTaskMeta is the payload published alongside an upload task id.
type UploadTaskMeta struct {
	UserID  string `json:"userId"`
	DriveID string `json:"driveId"`
}

// Adapter publishes task-stage messages to a topic-shaped URL under a
// configured webhook base, and verifies the HMAC signature the external
// service stamps onto every redelivery of an inbound webhook.
type Adapter struct {
	httpClient *http.Client
	log        *logging.Logger
	base       string
	signingKey []byte
}

// New builds an Adapter. base is the webhook topic root (e.g.
// "https://queue.example.com/topics/botcore"); signingKey verifies
// inbound callback signatures.
func New(log *logging.Logger, base, signingKey string) *Adapter {
	retryClient := retryablehttp.NewClient()
	retryClient.RetryMax = 5
	retryClient.RetryWaitMin = 200 * time.Millisecond
	retryClient.RetryWaitMax = 5 * time.Second
	retryClient.Logger = &retryLogger{log: log}

	return &Adapter{
		httpClient: retryClient.StandardClient(),
		log:        log,
		base:       base,
		signingKey: []byte(signingKey),
	}
}

type envelope struct {
	TaskID  string          `json:"taskId"`
	Meta    json.RawMessage `json:"meta,omitempty"`
	GroupID string          `json:"groupId,omitempty"`
	TaskIDs []string        `json:"taskIds,omitempty"`
}

func (a *Adapter) publish(ctx context.Context, topic string, env envelope) error {
	payload, err := json.Marshal(env)
	if err != nil {
		return fmt.Errorf("durablequeue: marshal envelope: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, a.base+"/"+topic, bytes.NewReader(payload))
	if err != nil {
		return fmt.Errorf("durablequeue: build request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := a.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("durablequeue: publish %s: %w", topic, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 300 {
		body, _ := io.ReadAll(resp.Body)
		return fmt.Errorf("durablequeue: publish %s: status %d: %s", topic, resp.StatusCode, string(body))
	}
	return nil
}

// EnqueueDownloadTask publishes a download-stage message for taskID.
func (a *Adapter) EnqueueDownloadTask(ctx context.Context, taskID string, meta DownloadTaskMeta) error {
	raw, err := json.Marshal(meta)
	if err != nil {
		return fmt.Errorf("durablequeue: marshal download meta: %w", err)
	}
	return a.publish(ctx, "download", envelope{TaskID: taskID, Meta: raw})
}

// EnqueueUploadTask publishes an upload-stage message for taskID.
func (a *Adapter) EnqueueUploadTask(ctx context.Context, taskID string, meta UploadTaskMeta) error {
	raw, err := json.Marshal(meta)
	if err != nil {
		return fmt.Errorf("durablequeue: marshal upload meta: %w", err)
	}
	return a.publish(ctx, "upload", envelope{TaskID: taskID, Meta: raw})
}

// EnqueueMediaBatch publishes one grouped message covering every task in
// an album/grouped message, consumed serially by the batch webhook.
func (a *Adapter) EnqueueMediaBatch(ctx context.Context, groupID string, taskIDs []string) error {
	return a.publish(ctx, "batch", envelope{GroupID: groupID, TaskIDs: taskIDs})
}

// Sign computes the signature an inbound callback for rawBody must carry.
// Exposed for tests and for any publisher-side echo requirements.
func (a *Adapter) Sign(rawBody []byte) string {
	mac := hmac.New(sha256.New, a.signingKey)
	mac.Write(rawBody)
	return signaturePrefix + hex.EncodeToString(mac.Sum(nil))
}

// VerifyWebhookSignature checks signatureHeader against the HMAC-SHA256
// of rawBody computed with the Adapter's signing key. Every inbound
// webhook under /api/tasks/* must pass this before any processing; a
// failure must produce HTTP 401 and no side effect.
func (a *Adapter) VerifyWebhookSignature(signatureHeader string, rawBody []byte) bool {
	if signatureHeader == "" {
		return false
	}
	expected := a.Sign(rawBody)
	return hmac.Equal([]byte(expected), []byte(signatureHeader))
}
