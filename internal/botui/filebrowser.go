package botui

import (
	"context"
	"fmt"
	"strings"

	"github.com/mediarelay/botcore/internal/models"
)

const filesPageSize = 10

// taskLister is the narrow slice of the task repository the file browser
// and /status command need: a flat per-user listing to paginate and
// filter client-side.
type taskLister interface {
	FindByUserID(ctx context.Context, userID string) ([]*models.Task, error)
}

// FileBrowser implements dispatcher.FileBrowser: a paginated listing of a
// user's completed transfers.
type FileBrowser struct {
	repo taskLister
	chat chatReplier
}

// NewFileBrowser builds a FileBrowser.
func NewFileBrowser(repo taskLister, chat chatReplier) *FileBrowser {
	return &FileBrowser{repo: repo, chat: chat}
}

// RenderFilesPage renders page (0-indexed) of userID's completed tasks.
func (b *FileBrowser) RenderFilesPage(ctx context.Context, userID string, page int) error {
	tasks, err := b.repo.FindByUserID(ctx, userID)
	if err != nil {
		return err
	}

	completed := make([]*models.Task, 0, len(tasks))
	for _, t := range tasks {
		if t.Status == models.StatusCompleted {
			completed = append(completed, t)
		}
	}

	if len(completed) == 0 {
		return b.chat.SendMessage(ctx, userID, "No completed transfers yet.")
	}

	if page < 0 {
		page = 0
	}
	start := page * filesPageSize
	if start >= len(completed) {
		return b.chat.SendMessage(ctx, userID, "No more files.")
	}
	end := start + filesPageSize
	if end > len(completed) {
		end = len(completed)
	}

	var sb strings.Builder
	fmt.Fprintf(&sb, "Files (page %d):\n", page+1)
	for _, t := range completed[start:end] {
		fmt.Fprintf(&sb, "- %s (%s)\n", t.FileName, t.ID)
	}
	if end < len(completed) {
		fmt.Fprintf(&sb, "\nReply with the files_%d callback for the next page.", page+1)
	}
	return b.chat.SendMessage(ctx, userID, sb.String())
}
