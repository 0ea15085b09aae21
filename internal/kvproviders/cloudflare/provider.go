// Package cloudflare implements the kv.Provider contract against
// Cloudflare Workers KV's REST API, grounded on the teacher's
// retryablehttp-wrapped API client (internal/api/client.go): a bearer-token
// HTTPS client with bounded retries, no wire-protocol driver involved.
package cloudflare

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"time"

	"github.com/hashicorp/go-retryablehttp"

	"github.com/mediarelay/botcore/internal/kv"
	"github.com/mediarelay/botcore/internal/logging"
)

const baseURL = "https://api.cloudflare.com/client/v4"

// retryLogger adapts the component logger to retryablehttp.LeveledLogger,
// the same shape as the teacher's internal/api.retryLogger.
type retryLogger struct{ log *logging.Logger }

func (l *retryLogger) Error(msg string, kv ...interface{}) {
	l.log.Error().Interface("details", kv).Msg(msg)
}
func (l *retryLogger) Info(msg string, kv ...interface{})  {}
func (l *retryLogger) Debug(msg string, kv ...interface{}) {}
func (l *retryLogger) Warn(msg string, kv ...interface{}) {
	l.log.Warn().Interface("details", kv).Msg(msg)
}

// Provider is a Cloudflare Workers KV client implementing kv.Provider.
type Provider struct {
	httpClient  *http.Client
	accountID   string
	namespaceID string
	token       string
}

// New builds a Cloudflare Workers KV provider.
func New(log *logging.Logger, accountID, namespaceID, token string) *Provider {
	retryClient := retryablehttp.NewClient()
	retryClient.RetryMax = 5
	retryClient.RetryWaitMin = 200 * time.Millisecond
	retryClient.RetryWaitMax = 5 * time.Second
	retryClient.Logger = &retryLogger{log: log}

	return &Provider{
		httpClient:  retryClient.StandardClient(),
		accountID:   accountID,
		namespaceID: namespaceID,
		token:       token,
	}
}

func (p *Provider) Name() string { return "cloudflare-kv" }

func (p *Provider) namespaceURL(suffix string) string {
	return fmt.Sprintf("%s/accounts/%s/storage/kv/namespaces/%s%s", baseURL, p.accountID, p.namespaceID, suffix)
}

func (p *Provider) do(ctx context.Context, method, url string, body []byte) (*http.Response, error) {
	var reader io.Reader
	if body != nil {
		reader = bytes.NewReader(body)
	}
	req, err := http.NewRequestWithContext(ctx, method, url, reader)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Authorization", "Bearer "+p.token)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	return p.httpClient.Do(req)
}

func (p *Provider) Get(ctx context.Context, key string) ([]byte, bool, error) {
	resp, err := p.do(ctx, http.MethodGet, p.namespaceURL("/values/"+url.PathEscape(key)), nil)
	if err != nil {
		return nil, false, &kv.ProviderError{Class: kv.ErrClassTransport, Err: err}
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusNotFound {
		return nil, false, nil
	}
	body, _ := io.ReadAll(resp.Body)
	if class, ok := classifyStatus(resp.StatusCode); ok {
		return nil, false, &kv.ProviderError{Class: class, Err: fmt.Errorf("cloudflare kv get: status %d: %s", resp.StatusCode, body)}
	}
	return body, true, nil
}

func (p *Provider) Set(ctx context.Context, key string, value []byte, ttlSeconds int) error {
	values := url.Values{}
	if ttlSeconds > 0 {
		values.Set("expiration_ttl", fmt.Sprintf("%d", ttlSeconds))
	}
	target := p.namespaceURL("/values/" + url.PathEscape(key))
	if enc := values.Encode(); enc != "" {
		target += "?" + enc
	}

	resp, err := p.do(ctx, http.MethodPut, target, value)
	if err != nil {
		return &kv.ProviderError{Class: kv.ErrClassTransport, Err: err}
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 300 {
		body, _ := io.ReadAll(resp.Body)
		class, _ := classifyStatus(resp.StatusCode)
		return &kv.ProviderError{Class: class, Err: fmt.Errorf("cloudflare kv set: status %d: %s", resp.StatusCode, body)}
	}
	return nil
}

func (p *Provider) Delete(ctx context.Context, key string) error {
	resp, err := p.do(ctx, http.MethodDelete, p.namespaceURL("/values/"+url.PathEscape(key)), nil)
	if err != nil {
		return &kv.ProviderError{Class: kv.ErrClassTransport, Err: err}
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 300 && resp.StatusCode != http.StatusNotFound {
		body, _ := io.ReadAll(resp.Body)
		class, _ := classifyStatus(resp.StatusCode)
		return &kv.ProviderError{Class: class, Err: fmt.Errorf("cloudflare kv delete: status %d: %s", resp.StatusCode, body)}
	}
	return nil
}

type listKeysResponse struct {
	Result []struct {
		Name string `json:"name"`
	} `json:"result"`
}

func (p *Provider) ListKeys(ctx context.Context, prefix string) ([]string, error) {
	target := p.namespaceURL("/keys")
	if prefix != "" {
		target += "?prefix=" + url.QueryEscape(prefix)
	}

	resp, err := p.do(ctx, http.MethodGet, target, nil)
	if err != nil {
		return nil, &kv.ProviderError{Class: kv.ErrClassTransport, Err: err}
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 300 {
		body, _ := io.ReadAll(resp.Body)
		class, _ := classifyStatus(resp.StatusCode)
		return nil, &kv.ProviderError{Class: class, Err: fmt.Errorf("cloudflare kv list: status %d: %s", resp.StatusCode, body)}
	}

	var decoded listKeysResponse
	if err := json.NewDecoder(resp.Body).Decode(&decoded); err != nil {
		return nil, fmt.Errorf("cloudflare kv list: decode response: %w", err)
	}

	keys := make([]string, 0, len(decoded.Result))
	for _, r := range decoded.Result {
		keys = append(keys, r.Name)
	}
	return keys, nil
}

// BulkSet writes each entry via Cloudflare's bulk-write endpoint in one
// request, the REST analogue of a pipelined L2 write.
func (p *Provider) BulkSet(ctx context.Context, entries map[string][]byte, ttlSeconds int) error {
	type bulkItem struct {
		Key           string `json:"key"`
		Value         string `json:"value"`
		ExpirationTTL int    `json:"expiration_ttl,omitempty"`
	}
	items := make([]bulkItem, 0, len(entries))
	for k, v := range entries {
		items = append(items, bulkItem{Key: k, Value: string(v), ExpirationTTL: ttlSeconds})
	}
	payload, err := json.Marshal(items)
	if err != nil {
		return fmt.Errorf("cloudflare kv bulk: marshal: %w", err)
	}

	resp, err := p.do(ctx, http.MethodPut, p.namespaceURL("/bulk"), payload)
	if err != nil {
		return &kv.ProviderError{Class: kv.ErrClassTransport, Err: err}
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 300 {
		body, _ := io.ReadAll(resp.Body)
		class, _ := classifyStatus(resp.StatusCode)
		return &kv.ProviderError{Class: class, Err: fmt.Errorf("cloudflare kv bulk: status %d: %s", resp.StatusCode, body)}
	}
	return nil
}

func (p *Provider) Healthy(ctx context.Context) error {
	resp, err := p.do(ctx, http.MethodGet, p.namespaceURL("/keys?limit=1"), nil)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if resp.StatusCode >= 300 {
		return fmt.Errorf("cloudflare kv health: status %d", resp.StatusCode)
	}
	return nil
}

// classifyStatus maps an HTTP status to the failover-relevant ErrorClass.
// Only quota (429) and transport (5xx) errors participate in failover;
// everything else is a validation error that must surface unchanged.
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
