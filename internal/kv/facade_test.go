package kv

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/mediarelay/botcore/internal/logging"
)

type fakeProvider struct {
	name       string
	data       map[string][]byte
	nextErr    error
	nextClass  ErrorClass
	setCalls   int
	healthyErr error
}

func newFakeProvider(name string) *fakeProvider {
	return &fakeProvider{name: name, data: make(map[string][]byte)}
}

func (p *fakeProvider) Name() string { return p.name }

func (p *fakeProvider) takeErr() error {
	if p.nextErr == nil {
		return nil
	}
	err := &ProviderError{Class: p.nextClass, Err: p.nextErr}
	p.nextErr = nil
	return err
}

func (p *fakeProvider) Get(_ context.Context, key string) ([]byte, bool, error) {
	if err := p.takeErr(); err != nil {
		return nil, false, err
	}
	v, ok := p.data[key]
	return v, ok, nil
}

func (p *fakeProvider) Set(_ context.Context, key string, value []byte, _ int) error {
	p.setCalls++
	if err := p.takeErr(); err != nil {
		return err
	}
	p.data[key] = value
	return nil
}

func (p *fakeProvider) Delete(_ context.Context, key string) error {
	if err := p.takeErr(); err != nil {
		return err
	}
	delete(p.data, key)
	return nil
}

func (p *fakeProvider) ListKeys(_ context.Context, prefix string) ([]string, error) {
	var out []string
	for k := range p.data {
		if len(k) >= len(prefix) && k[:len(prefix)] == prefix {
			out = append(out, k)
		}
	}
	return out, nil
}

func (p *fakeProvider) BulkSet(_ context.Context, entries map[string][]byte, _ int) error {
	for k, v := range entries {
		p.data[k] = v
	}
	return nil
}

func (p *fakeProvider) Healthy(_ context.Context) error { return p.healthyErr }

func testLogger() *logging.Logger { return logging.New("test") }

func TestFacade_ReadYourWrites(t *testing.T) {
	primary := newFakeProvider("primary")
	f := New(testLogger(), primary, nil)

	require.NoError(t, f.Set(context.Background(), "k1", []byte("v1"), 60, SetOptions{}))
	v, err := f.Get(context.Background(), "k1", GetOptions{})
	require.NoError(t, err)
	require.Equal(t, []byte("v1"), v)
}

func TestFacade_SmartWriteFilterSkipsIdenticalWrite(t *testing.T) {
	primary := newFakeProvider("primary")
	f := New(testLogger(), primary, nil)

	require.NoError(t, f.Set(context.Background(), "k1", []byte("v1"), 60, SetOptions{}))
	require.Equal(t, 1, primary.setCalls)

	require.NoError(t, f.Set(context.Background(), "k1", []byte("v1"), 60, SetOptions{}))
	require.Equal(t, 1, primary.setCalls, "identical write within TTL must not hit L2 again")

	require.NoError(t, f.Set(context.Background(), "k1", []byte("v2"), 60, SetOptions{}))
	require.Equal(t, 2, primary.setCalls, "changed value must hit L2")
}

func TestFacade_DeleteThenGetIsMiss(t *testing.T) {
	primary := newFakeProvider("primary")
	f := New(testLogger(), primary, nil)

	require.NoError(t, f.Set(context.Background(), "k1", []byte("v1"), 60, SetOptions{}))
	require.NoError(t, f.Delete(context.Background(), "k1"))

	v, err := f.Get(context.Background(), "k1", GetOptions{})
	require.NoError(t, err)
	require.Nil(t, v)
}

func TestFacade_FailoverSwitchesAfterThreshold(t *testing.T) {
	primary := newFakeProvider("primary")
	backup := newFakeProvider("backup")
	f := New(testLogger(), primary, backup)

	quotaErr := errors.New("quota exceeded")
	for i := 0; i < defaultFailoverThreshold; i++ {
		primary.nextErr = quotaErr
		primary.nextClass = ErrClassQuota
		err := f.Set(context.Background(), "k", []byte("v"), 60, SetOptions{SkipCache: true})
		require.Error(t, err)
	}

	require.Equal(t, "backup", f.ActiveProvider())

	require.NoError(t, f.Set(context.Background(), "k2", []byte("v2"), 60, SetOptions{SkipCache: true}))
	require.Equal(t, []byte("v2"), backup.data["k2"])
}

func TestFacade_ValidationErrorNeverTripsFailover(t *testing.T) {
	primary := newFakeProvider("primary")
	backup := newFakeProvider("backup")
	f := New(testLogger(), primary, backup)

	for i := 0; i < defaultFailoverThreshold+2; i++ {
		primary.nextErr = errors.New("bad key format")
		primary.nextClass = ErrClassValidation
		err := f.Set(context.Background(), "k", []byte("v"), 60, SetOptions{SkipCache: true})
		require.Error(t, err)
	}

	require.Equal(t, "primary", f.ActiveProvider())
}
