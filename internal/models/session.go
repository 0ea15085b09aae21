package models

import "time"

// Session tracks the protocol client's connection identity across
// reconnects so the supervisor can decide whether a fresh login is needed
// or an existing auth key can be resumed.
type Session struct {
	SessionID    string    `json:"session_id"`
	AuthKeyValid bool      `json:"auth_key_valid"`
	ConnectedAt  time.Time `json:"connected_at"`
	LastResetAt  time.Time `json:"last_reset_at,omitempty"`
}
