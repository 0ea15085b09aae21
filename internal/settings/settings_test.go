package settings

import (
	"context"
	"encoding/json"
	"sync"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/mediarelay/botcore/internal/kv"
	"github.com/mediarelay/botcore/internal/logging"
	"github.com/mediarelay/botcore/internal/models"
)

type memProvider struct {
	mu   sync.Mutex
	data map[string][]byte
}

func newMemProvider() *memProvider { return &memProvider{data: make(map[string][]byte)} }

func (p *memProvider) Name() string { return "mem" }
func (p *memProvider) Get(_ context.Context, key string) ([]byte, bool, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	v, ok := p.data[key]
	return v, ok, nil
}
func (p *memProvider) Set(_ context.Context, key string, value []byte, _ int) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.data[key] = value
	return nil
}
func (p *memProvider) Delete(_ context.Context, key string) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	delete(p.data, key)
	return nil
}
func (p *memProvider) ListKeys(context.Context, string) ([]string, error)    { return nil, nil }
func (p *memProvider) BulkSet(context.Context, map[string][]byte, int) error { return nil }
func (p *memProvider) Healthy(context.Context) error                         { return nil }

func newTestStore(t *testing.T) *Store {
	t.Helper()
	facade := kv.New(logging.New("test"), newMemProvider(), nil)
	return New(facade)
}

func TestAccessModeDefaultsToOwnerOnly(t *testing.T) {
	s := newTestStore(t)
	mode, err := s.AccessMode(context.Background())
	require.NoError(t, err)
	require.Equal(t, models.AccessModeOwnerOnly, mode)
}

func TestSetAccessModeRoundTrips(t *testing.T) {
	s := newTestStore(t)
	require.NoError(t, s.SetAccessMode(context.Background(), models.AccessModeOpen))

	mode, err := s.AccessMode(context.Background())
	require.NoError(t, err)
	require.Equal(t, models.AccessModeOpen, mode)
}

func TestIsAllowlistedChecksStoredSet(t *testing.T) {
	s := newTestStore(t)
	raw, err := json.Marshal([]string{"u1", "u2"})
	require.NoError(t, err)
	require.NoError(t, s.kv.Set(context.Background(), allowlistKey, raw, noExpiry, kv.SetOptions{}))

	ok, err := s.IsAllowlisted(context.Background(), "u2")
	require.NoError(t, err)
	require.True(t, ok)

	ok, err = s.IsAllowlisted(context.Background(), "stranger")
	require.NoError(t, err)
	require.False(t, ok)
}
