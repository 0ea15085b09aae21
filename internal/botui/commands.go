package botui

import (
	"context"
	"fmt"
	"strings"

	"github.com/mediarelay/botcore/internal/chatclient"
	"github.com/mediarelay/botcore/internal/driverepo"
	"github.com/mediarelay/botcore/internal/models"
)

// taskCanceller is the narrow slice of the Task Pipeline the /cancel
// command needs.
type taskCanceller interface {
	CancelTask(ctx context.Context, taskID, userID string) error
}

// driveUnbinder is the narrow slice of the drive repository the /unbind
// command needs.
type driveUnbinder interface {
	Delete(ctx context.Context, userID string) error
}

// Commands implements dispatcher.CommandHandler: the bot's slash-command
// surface (/start, /drive, /files, /status, /unbind, /cancel).
type Commands struct {
	chat   chatReplier
	drive  *DriveConfigFlow
	files  *FileBrowser
	tasks  taskCanceller
	lister taskLister
	drives driveUnbinder
}

// NewCommands builds a Commands handler.
func NewCommands(chat chatReplier, drive *DriveConfigFlow, files *FileBrowser, tasks taskCanceller, lister taskLister, drives *driverepo.Store) *Commands {
	return &Commands{chat: chat, drive: drive, files: files, tasks: tasks, lister: lister, drives: drives}
}

// HandleCommand dispatches cmd to its handler. Unrecognized commands are
// rejected by the router before reaching here via knownCommands.
func (c *Commands) HandleCommand(ctx context.Context, cmd string, msg chatclient.Message) error {
	switch cmd {
	case "/start":
		return c.chat.SendMessage(ctx, msg.ChatID, "Send media to transfer it to your configured drive.")
	case "/drive":
		return c.drive.Start(ctx, msg.UserID, msg.ChatID)
	case "/files":
		return c.files.RenderFilesPage(ctx, msg.UserID, 0)
	case "/status":
		return c.handleStatus(ctx, msg)
	case "/unbind":
		if err := c.drives.Delete(ctx, msg.UserID); err != nil {
			return err
		}
		return c.chat.SendMessage(ctx, msg.ChatID, "Drive unbound.")
	case "/cancel":
		return c.handleCancel(ctx, msg)
	default:
		return nil
	}
}

func (c *Commands) handleStatus(ctx context.Context, msg chatclient.Message) error {
	tasks, err := c.lister.FindByUserID(ctx, msg.UserID)
	if err != nil {
		return err
	}
	if len(tasks) == 0 {
		return c.chat.SendMessage(ctx, msg.ChatID, "No transfers yet.")
	}

	var sb strings.Builder
	for _, t := range tasks {
		if models.IsTerminal(t.Status) && t.Status != models.StatusFailed {
			continue
		}
		fmt.Fprintf(&sb, "- %s: %s\n", t.FileName, t.Status)
	}
	if sb.Len() == 0 {
		return c.chat.SendMessage(ctx, msg.ChatID, "No active transfers.")
	}
	return c.chat.SendMessage(ctx, msg.ChatID, sb.String())
}

func (c *Commands) handleCancel(ctx context.Context, msg chatclient.Message) error {
	taskID := strings.TrimSpace(strings.TrimPrefix(msg.Text, "/cancel"))
	if taskID == "" {
		return c.chat.SendMessage(ctx, msg.ChatID, "Usage: /cancel <taskId>")
	}
	if err := c.tasks.CancelTask(ctx, taskID, msg.UserID); err != nil {
		return err
	}
	return c.chat.SendMessage(ctx, msg.ChatID, "Cancelled.")
}
