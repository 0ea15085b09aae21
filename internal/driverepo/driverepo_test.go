package driverepo

import (
	"context"
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

func TestDriveForUserReturnsErrorWhenUnconfigured(t *testing.T) {
	s := newTestStore(t)
	_, err := s.DriveForUser(context.Background(), "u1")
	require.Error(t, err)
}

func TestSaveThenDriveForUserRoundTrips(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	d := &models.Drive{Type: models.DriveTypeAzure, Name: "backups", Bucket: "container1", Region: "westus"}
	require.NoError(t, s.Save(ctx, "u1", d))

	got, err := s.DriveForUser(ctx, "u1")
	require.NoError(t, err)
	require.Equal(t, "u1", got.OwnerID)
	require.Equal(t, models.DriveTypeAzure, got.Type)
	require.Equal(t, "backups", got.Name)
	require.Equal(t, "container1", got.Bucket)
	require.Equal(t, "westus", got.Region)
}

func TestDeleteRemovesDrive(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	require.NoError(t, s.Save(ctx, "u1", &models.Drive{Type: models.DriveTypeS3, Name: "n", Bucket: "b"}))
	require.NoError(t, s.Delete(ctx, "u1"))

	_, err := s.DriveForUser(ctx, "u1")
	require.Error(t, err)
}

func TestSaveIsolatesDrivesPerUser(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	require.NoError(t, s.Save(ctx, "u1", &models.Drive{Type: models.DriveTypeS3, Name: "one", Bucket: "b1"}))
	require.NoError(t, s.Save(ctx, "u2", &models.Drive{Type: models.DriveTypeAzure, Name: "two", Bucket: "b2"}))

	d1, err := s.DriveForUser(ctx, "u1")
	require.NoError(t, err)
	require.Equal(t, "one", d1.Name)

	d2, err := s.DriveForUser(ctx, "u2")
	require.NoError(t, err)
	require.Equal(t, "two", d2.Name)
}
