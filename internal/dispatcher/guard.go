package dispatcher

import (
	"context"

	"github.com/mediarelay/botcore/internal/models"
)

// SettingsRepository reads bot-wide switches such as access_mode. A thin
// KV-Facade-backed implementation lives in internal/settings.
type SettingsRepository interface {
	AccessMode(ctx context.Context) (models.AccessMode, error)
	IsAllowlisted(ctx context.Context, userID string) (bool, error)
}

// AuthGuard answers whether a non-owner user may act at all, independent
// of the configured access mode (e.g. a banlist check).
type AuthGuard interface {
	Allowed(ctx context.Context, userID string) bool
}

// Guard evaluates globalGuard for every inbound event: the owner is
// always allowed; otherwise an AuthGuard check must pass, then open mode
// allows everyone, allowlist mode requires the user to be allowlisted, and
// owner_only (or any unrecognized mode) blocks every non-owner.
type Guard struct {
	ownerID  string
	auth     AuthGuard
	settings SettingsRepository
}

// NewGuard builds a Guard. ownerID is the privileged OWNER_ID setting.
func NewGuard(ownerID string, auth AuthGuard, settings SettingsRepository) *Guard {
	return &Guard{ownerID: ownerID, auth: auth, settings: settings}
}

// Allow implements globalGuard: owner always allowed; otherwise gated by
// AuthGuard plus the configured access_mode.
func (g *Guard) Allow(ctx context.Context, userID string) (bool, error) {
	if userID != "" && userID == g.ownerID {
		return true, nil
	}
	if g.auth != nil && !g.auth.Allowed(ctx, userID) {
		return false, nil
	}

	mode, err := g.settings.AccessMode(ctx)
	if err != nil {
		return false, err
	}

	switch mode {
	case models.AccessModeOpen:
		return true, nil
	case models.AccessModeAllowlist:
		return g.settings.IsAllowlisted(ctx, userID)
	default: // AccessModeOwnerOnly and any unrecognized value fail closed.
		return false, nil
	}
}
