// Package botui implements the Dispatcher's wizard and command-reply
// collaborators (FlowSessions, DriveConfigFlow, FileBrowser,
// CommandHandler), grounded on the same KV-Facade-backed repository
// style as internal/settings and internal/driverepo.
package botui

import (
	"context"
	"time"

	"github.com/mediarelay/botcore/internal/kv"
)

const (
	sessionKeyPrefix = "flowsession:"
	sessionTTL       = 10 * time.Minute
)

// Sessions tracks which users are mid-wizard, implementing
// dispatcher.FlowSessions over the KV Facade so session state survives a
// process restart without a dedicated store.
type Sessions struct {
	kv *kv.Facade
}

// NewSessions builds a Sessions tracker over facade.
func NewSessions(facade *kv.Facade) *Sessions {
	return &Sessions{kv: facade}
}

// Active reports whether userID has an open wizard session.
func (s *Sessions) Active(ctx context.Context, userID string) (bool, error) {
	raw, err := s.kv.Get(ctx, sessionKeyPrefix+userID, kv.GetOptions{})
	if err != nil {
		return false, err
	}
	return raw != nil, nil
}

// Start opens a wizard session for userID, expiring after sessionTTL if
// never completed or cancelled.
func (s *Sessions) Start(ctx context.Context, userID string) error {
	return s.kv.Set(ctx, sessionKeyPrefix+userID, []byte("1"), int(sessionTTL.Seconds()), kv.SetOptions{})
}

// End closes userID's wizard session, whether completed or cancelled.
func (s *Sessions) End(ctx context.Context, userID string) error {
	return s.kv.Delete(ctx, sessionKeyPrefix+userID)
}
