// Package upstash implements the kv.Provider contract against Upstash's
// Redis REST API — a bearer-token HTTPS interface, not the RESP wire
// protocol, so it is reached with the same retryablehttp-based client
// style as the Cloudflare provider rather than a redis driver.
package upstash

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/hashicorp/go-retryablehttp"

	"github.com/mediarelay/botcore/internal/kv"
	"github.com/mediarelay/botcore/internal/logging"
)

type retryLogger struct{ log *logging.Logger }

func (l *retryLogger) Error(msg string, kv ...interface{}) {
	l.log.Error().Interface("details", kv).Msg(msg)
}
func (l *retryLogger) Info(msg string, kv ...interface{})  {}
func (l *retryLogger) Debug(msg string, kv ...interface{}) {}
func (l *retryLogger) Warn(msg string, kv ...interface{}) {
	l.log.Warn().Interface("details", kv).Msg(msg)
}

// Provider is an Upstash Redis REST client implementing kv.Provider. It is
// intended as the KV Facade's backup L2 tier.
type Provider struct {
	httpClient *http.Client
	baseURL    string
	token      string
}

// New builds an Upstash Redis REST provider.
func New(log *logging.Logger, restURL, restToken string) *Provider {
	retryClient := retryablehttp.NewClient()
	retryClient.RetryMax = 5
	retryClient.RetryWaitMin = 200 * time.Millisecond
	retryClient.RetryWaitMax = 5 * time.Second
	retryClient.Logger = &retryLogger{log: log}

	return &Provider{
		httpClient: retryClient.StandardClient(),
		baseURL:    strings.TrimSuffix(restURL, "/"),
		token:      restToken,
	}
}

func (p *Provider) Name() string { return "upstash-redis-rest" }

type commandResponse struct {
	Result json.RawMessage `json:"result"`
	Error  string          `json:"error"`
}

// command issues a single Upstash REST command, built as path segments per
// https://upstash.com/docs/redis/features/restapi (e.g. GET/<key>,
// SET/<key>/<value>). Binary values are base64-encoded to survive the URL.
func (p *Provider) command(ctx context.Context, segments ...string) (*commandResponse, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, p.baseURL+"/"+strings.Join(segments, "/"), nil)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Authorization", "Bearer "+p.token)

	resp, err := p.httpClient.Do(req)
	if err != nil {
		return nil, &kv.ProviderError{Class: kv.ErrClassTransport, Err: err}
	}
	defer resp.Body.Close()

	var decoded commandResponse
	if err := json.NewDecoder(resp.Body).Decode(&decoded); err != nil {
		return nil, fmt.Errorf("upstash: decode response: %w", err)
	}

	if class, ok := classifyStatus(resp.StatusCode); ok {
		return nil, &kv.ProviderError{Class: class, Err: fmt.Errorf("upstash: status %d: %s", resp.StatusCode, decoded.Error)}
	}
	if decoded.Error != "" {
		return nil, &kv.ProviderError{Class: kv.ErrClassValidation, Err: fmt.Errorf("upstash: %s", decoded.Error)}
	}
	return &decoded, nil
}

func encodeValue(value []byte) string {
	return base64.URLEncoding.EncodeToString(value)
}

func decodeValue(s string) ([]byte, error) {
	return base64.URLEncoding.DecodeString(s)
}

func (p *Provider) Get(ctx context.Context, key string) ([]byte, bool, error) {
	resp, err := p.command(ctx, "GET", key)
	if err != nil {
		return nil, false, err
	}

	var raw *string
	if err := json.Unmarshal(resp.Result, &raw); err != nil {
		return nil, false, fmt.Errorf("upstash: unmarshal get result: %w", err)
	}
	if raw == nil {
		return nil, false, nil
	}
	value, err := decodeValue(*raw)
	if err != nil {
		return nil, false, fmt.Errorf("upstash: decode value: %w", err)
	}
	return value, true, nil
}

func (p *Provider) Set(ctx context.Context, key string, value []byte, ttlSeconds int) error {
	segments := []string{"SET", key, encodeValue(value)}
	if ttlSeconds > 0 {
		segments = append(segments, "EX", fmt.Sprintf("%d", ttlSeconds))
	}
	_, err := p.command(ctx, segments...)
	return err
}

func (p *Provider) Delete(ctx context.Context, key string) error {
	_, err := p.command(ctx, "DEL", key)
	return err
}

func (p *Provider) ListKeys(ctx context.Context, prefix string) ([]string, error) {
	resp, err := p.command(ctx, "KEYS", prefix+"*")
	if err != nil {
		return nil, err
	}
	var keys []string
	if err := json.Unmarshal(resp.Result, &keys); err != nil {
		return nil, fmt.Errorf("upstash: unmarshal keys result: %w", err)
	}
	return keys, nil
}

// BulkSet issues one SET command per entry. Upstash's REST API also
// supports a /pipeline endpoint; this uses the simpler per-key form since
// the facade's bulk writes are not expected to be huge fan-outs.
func (p *Provider) BulkSet(ctx context.Context, entries map[string][]byte, ttlSeconds int) error {
	for k, v := range entries {
		if err := p.Set(ctx, k, v, ttlSeconds); err != nil {
			return err
		}
	}
	return nil
}

func (p *Provider) Healthy(ctx context.Context) error {
	_, err := p.command(ctx, "PING")
	return err
}

func classifyStatus(status int) (kv.ErrorClass, bool) {
	switch {
	case status == http.StatusTooManyRequests:
		return kv.ErrClassQuota, true
	case status >= 500:
		return kv.ErrClassTransport, true
	case status >= 400:
		return kv.ErrClassValidation, true
	default:
		return kv.ErrClassNone, false
	}
}
