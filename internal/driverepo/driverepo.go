// Package driverepo persists each user's configured cloud-storage Drive,
// grounded on the same KV-Facade Get/Set pattern internal/settings uses
// for bot-wide switches.
package driverepo

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/mediarelay/botcore/internal/kv"
	"github.com/mediarelay/botcore/internal/models"
)

const keyPrefix = "drive:"

// Store is a KV-Facade-backed per-user Drive repository.
type Store struct {
	kv *kv.Facade
}

// New builds a Store over facade.
func New(facade *kv.Facade) *Store {
	return &Store{kv: facade}
}

// DriveForUser implements pipeline.DriveLookup.
func (s *Store) DriveForUser(ctx context.Context, userID string) (*models.Drive, error) {
	raw, err := s.kv.Get(ctx, keyPrefix+userID, kv.GetOptions{})
	if err != nil {
		return nil, err
	}
	if raw == nil {
		return nil, fmt.Errorf("driverepo: no drive configured for user %s", userID)
	}
	var d models.Drive
	if err := json.Unmarshal(raw, &d); err != nil {
		return nil, fmt.Errorf("driverepo: decode drive: %w", err)
	}
	return &d, nil
}

// Delete removes a user's configured Drive, used by the /unbind command.
func (s *Store) Delete(ctx context.Context, userID string) error {
	return s.kv.Delete(ctx, keyPrefix+userID)
}

// Save upserts a user's Drive configuration.
func (s *Store) Save(ctx context.Context, userID string, d *models.Drive) error {
	d.OwnerID = userID
	raw, err := json.Marshal(d)
	if err != nil {
		return fmt.Errorf("driverepo: encode drive: %w", err)
	}
	return s.kv.Set(ctx, keyPrefix+userID, raw, 0, kv.SetOptions{})
}
