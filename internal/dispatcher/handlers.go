package dispatcher

import (
	"context"

	"github.com/mediarelay/botcore/internal/chatclient"
)

// TaskCreator is the subset of the Task Pipeline's ingress the Dispatcher
// drives: it only ever creates queued tasks, never mutates them further.
type TaskCreator interface {
	AddTask(ctx context.Context, target, userID string, media chatclient.MediaInfo, chatID, messageID string) error
	AddBatchTasks(ctx context.Context, groupID string, messages []chatclient.Message) error
	CancelTask(ctx context.Context, taskID, userID string) error
}

// FlowSessions reports whether a user is mid-wizard (e.g. configuring a
// drive), so free-text messages route to the wizard instead of being
// interpreted as commands.
type FlowSessions interface {
	Active(ctx context.Context, userID string) (bool, error)
}

// DriveConfigFlow is the multi-step drive-configuration wizard the
// Dispatcher forwards session input and callback payloads to.
type DriveConfigFlow interface {
	HandleInput(ctx context.Context, userID, text string) error
	HandleCallback(ctx context.Context, userID, payload string) error
}

// FileBrowser renders the paginated cloud-drive file listing.
type FileBrowser interface {
	RenderFilesPage(ctx context.Context, userID string, page int) error
}

// CommandHandler invokes one of the slash-command handlers.
type CommandHandler interface {
	HandleCommand(ctx context.Context, cmd string, msg chatclient.Message) error
}

// Handlers bundles every collaborator the router dispatches into.
type Handlers struct {
	Tasks    TaskCreator
	Sessions FlowSessions
	Drive    DriveConfigFlow
	Files    FileBrowser
	Commands CommandHandler
}
