package botui

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/mediarelay/botcore/internal/driverepo"
	"github.com/mediarelay/botcore/internal/kv"
	"github.com/mediarelay/botcore/internal/models"
)

const (
	driveFlowKeyPrefix = "driveflow:"
	driveFlowTTL       = 600 // seconds, matches sessionTTL
)

// driveFlowState is the wizard's in-progress selection, persisted between
// the type-selection callback and the follow-up free-text message.
type driveFlowState struct {
	Type models.DriveType `json:"type"`
}

// chatReplier is the narrow slice of chatclient.Client the wizard needs to
// render prompts and confirmations.
type chatReplier interface {
	SendMessage(ctx context.Context, chatID, text string) error
}

// DriveConfigFlow implements dispatcher.DriveConfigFlow: a two-step wizard
// that asks for a storage type via callback, then a comma-separated
// name,bucket[,region] line of free text.
type DriveConfigFlow struct {
	kv       *kv.Facade
	drives   *driverepo.Store
	sessions *Sessions
	chat     chatReplier
}

// NewDriveConfigFlow builds a DriveConfigFlow.
func NewDriveConfigFlow(facade *kv.Facade, drives *driverepo.Store, sessions *Sessions, chat chatReplier) *DriveConfigFlow {
	return &DriveConfigFlow{kv: facade, drives: drives, sessions: sessions, chat: chat}
}

// Start opens the wizard for userID, prompting for a storage type.
func (f *DriveConfigFlow) Start(ctx context.Context, userID, chatID string) error {
	if err := f.sessions.Start(ctx, userID); err != nil {
		return err
	}
	return f.chat.SendMessage(ctx, chatID, "Reply with a storage type to configure: s3 or azure.")
}

// HandleCallback handles the wizard's type-selection step ("drive_s3",
// "drive_azure") and the "manager_back" cancel-out. An empty payload is a
// no-op acknowledgement used when the global guard blocks the caller.
func (f *DriveConfigFlow) HandleCallback(ctx context.Context, userID, payload string) error {
	if payload == "" {
		return nil
	}
	if payload == "manager_back" {
		_ = f.kv.Delete(ctx, driveFlowKeyPrefix+userID)
		return f.sessions.End(ctx, userID)
	}

	driveType, ok := strings.CutPrefix(payload, "drive_")
	if !ok {
		return nil
	}
	state := driveFlowState{Type: models.DriveType(driveType)}
	raw, err := json.Marshal(state)
	if err != nil {
		return fmt.Errorf("botui: encode drive flow state: %w", err)
	}
	if err := f.kv.Set(ctx, driveFlowKeyPrefix+userID, raw, driveFlowTTL, kv.SetOptions{}); err != nil {
		return err
	}
	return f.chat.SendMessage(ctx, userID, "Reply with: name,bucket[,region]")
}

// HandleInput handles the wizard's free-text step: a "name,bucket[,region]"
// line that, combined with the type chosen in HandleCallback, completes
// the Drive record.
func (f *DriveConfigFlow) HandleInput(ctx context.Context, userID, text string) error {
	raw, err := f.kv.Get(ctx, driveFlowKeyPrefix+userID, kv.GetOptions{})
	if err != nil {
		return err
	}
	if raw == nil {
		return f.sessions.End(ctx, userID)
	}
	var state driveFlowState
	if err := json.Unmarshal(raw, &state); err != nil {
		return fmt.Errorf("botui: decode drive flow state: %w", err)
	}

	parts := strings.Split(text, ",")
	for i := range parts {
		parts[i] = strings.TrimSpace(parts[i])
	}
	if len(parts) < 2 || parts[0] == "" || parts[1] == "" {
		return f.chat.SendMessage(ctx, userID, "Expected: name,bucket[,region]. Try again.")
	}

	drive := &models.Drive{
		ID:     userID + ":" + parts[0],
		Type:   state.Type,
		Name:   parts[0],
		Bucket: parts[1],
	}
	if len(parts) >= 3 {
		drive.Region = parts[2]
	}
	if err := f.drives.Save(ctx, userID, drive); err != nil {
		return err
	}

	_ = f.kv.Delete(ctx, driveFlowKeyPrefix+userID)
	if err := f.sessions.End(ctx, userID); err != nil {
		return err
	}
	return f.chat.SendMessage(ctx, userID, fmt.Sprintf("Drive %q configured.", drive.Name))
}
