// Package settings implements the Dispatcher's SettingsRepository and
// AuthGuard over the KV Facade, grounded on the same Get/Set/SkipCache
// pattern internal/coordinator uses for lock and instance records.
package settings

import (
	"context"
	"encoding/json"
	"strings"

	"github.com/mediarelay/botcore/internal/kv"
	"github.com/mediarelay/botcore/internal/models"
)

const (
	settingKeyPrefix = "setting:"
	allowlistKey     = "setting:allowlist"
	noExpiry         = 0
)

// Store is a KV-Facade-backed implementation of dispatcher.SettingsRepository
// and dispatcher.AuthGuard.
type Store struct {
	kv *kv.Facade
}

// New builds a Store over facade.
func New(facade *kv.Facade) *Store {
	return &Store{kv: facade}
}

// AccessMode reads the global access_mode switch, defaulting to
// owner_only (fail closed) if unset.
func (s *Store) AccessMode(ctx context.Context) (models.AccessMode, error) {
	raw, err := s.kv.Get(ctx, settingKeyPrefix+models.SettingKeyAccessMode, kv.GetOptions{})
	if err != nil {
		return "", err
	}
	if raw == nil {
		return models.AccessModeOwnerOnly, nil
	}
	return models.AccessMode(strings.TrimSpace(string(raw))), nil
}

// SetAccessMode updates the global access_mode switch.
func (s *Store) SetAccessMode(ctx context.Context, mode models.AccessMode) error {
	return s.kv.Set(ctx, settingKeyPrefix+models.SettingKeyAccessMode, []byte(mode), noExpiry, kv.SetOptions{})
}

// IsAllowlisted reports whether userID appears in the allowlist set.
func (s *Store) IsAllowlisted(ctx context.Context, userID string) (bool, error) {
	raw, err := s.kv.Get(ctx, allowlistKey, kv.GetOptions{})
	if err != nil {
		return false, err
	}
	if raw == nil {
		return false, nil
	}
	var ids []string
	if err := json.Unmarshal(raw, &ids); err != nil {
		return false, err
	}
	for _, id := range ids {
		if id == userID {
			return true, nil
		}
	}
	return false, nil
}

// Allowed implements dispatcher.AuthGuard with no banlist of its own —
// the access_mode/allowlist check in dispatcher.Guard.Allow is the only
// gate this stack enforces.
func (s *Store) Allowed(context.Context, string) bool { return true }
