package dispatcher

import (
	"context"
	"strings"
	"time"

	"github.com/mediarelay/botcore/internal/chatclient"
	"github.com/mediarelay/botcore/internal/coordinator"
	"github.com/mediarelay/botcore/internal/logging"
)

// knownCommands is the closed set of slash commands the router forwards
// to Handlers.Commands; anything else falls through unhandled.
var knownCommands = map[string]bool{
	"/start": true, "/drive": true, "/files": true,
	"/status": true, "/unbind": true, "/cancel": true,
}

// Dispatcher routes inbound protocol events: leader check, global guard,
// callback/message/command routing, and groupedId album aggregation.
type Dispatcher struct {
	coord    *coordinator.Coordinator
	guard    *Guard
	handlers Handlers
	group    *GroupBuffer
	log      *logging.Logger
}

// New builds a Dispatcher. groupWindow and groupMaxWait size the album
// aggregation buffer (config.Config's GroupWindow/GroupMaxWait); zero
// values fall back to GroupBuffer's built-in defaults.
func New(log *logging.Logger, coord *coordinator.Coordinator, guard *Guard, handlers Handlers, groupWindow, groupMaxWait time.Duration) *Dispatcher {
	d := &Dispatcher{coord: coord, guard: guard, handlers: handlers, log: log}
	d.group = NewGroupBuffer(log, groupWindow, groupMaxWait, d.flushGroup)
	return d
}

// HandleEvent is the single entry point the composition root's event pump
// (pumpEvents in cmd/botcore) calls for every inbound message or callback.
func (d *Dispatcher) HandleEvent(ctx context.Context, msg chatclient.Message) error {
	held, err := d.coord.HasLock(ctx, coordinator.LeaderRole)
	if err != nil {
		return err
	}
	if !held {
		d.log.Debug().Msg("dispatcher: leadership not held, dropping event")
		return nil
	}

	evCtx := ExtractContext(msg)

	allowed, err := d.guard.Allow(ctx, evCtx.UserID)
	if err != nil {
		return err
	}
	if !allowed {
		d.log.Info().Str("userId", evCtx.UserID).Msg("dispatcher: blocked by global guard")
		if evCtx.IsCallback && d.handlers.Drive != nil {
			_ = d.handlers.Drive.HandleCallback(ctx, evCtx.UserID, "") // empty payload: a no-op; no callback answer is sent
		}
		return nil
	}

	if evCtx.IsCallback {
		return d.routeCallback(ctx, evCtx, msg)
	}
	return d.routeMessage(ctx, evCtx, msg)
}

func (d *Dispatcher) routeCallback(ctx context.Context, evCtx EventContext, msg chatclient.Message) error {
	parsed := ParseCallback(msg.CallbackData)
	switch parsed.Kind {
	case CallbackCancel:
		return d.handlers.Tasks.CancelTask(ctx, parsed.Arg, evCtx.UserID)
	case CallbackDrive, CallbackManagerBack:
		return d.handlers.Drive.HandleCallback(ctx, evCtx.UserID, msg.CallbackData)
	case CallbackFiles:
		return d.handlers.Files.RenderFilesPage(ctx, evCtx.UserID, parsePage(parsed.Arg))
	default:
		d.log.Warn().Str("payload", msg.CallbackData).Msg("dispatcher: unrecognized callback payload")
		return nil
	}
}

func (d *Dispatcher) routeMessage(ctx context.Context, evCtx EventContext, msg chatclient.Message) error {
	if d.handlers.Sessions != nil {
		active, err := d.handlers.Sessions.Active(ctx, evCtx.UserID)
		if err != nil {
			return err
		}
		if active {
			return d.handlers.Drive.HandleInput(ctx, evCtx.UserID, msg.Text)
		}
	}

	if msg.Media != nil {
		if msg.GroupID != "" {
			d.group.Add(ctx, msg)
			return nil
		}
		return d.handlers.Tasks.AddTask(ctx, evCtx.Target, evCtx.UserID, *msg.Media, msg.ChatID, msg.MessageID)
	}

	cmd := firstWord(msg.Text)
	if knownCommands[cmd] {
		return d.handlers.Commands.HandleCommand(ctx, cmd, msg)
	}
	return nil
}

func (d *Dispatcher) flushGroup(ctx context.Context, groupID string, messages []chatclient.Message) {
	if err := d.handlers.Tasks.AddBatchTasks(ctx, groupID, messages); err != nil {
		d.log.Error().Err(err).Str("groupId", groupID).Msg("dispatcher: batch task creation failed")
	}
}

func firstWord(s string) string {
	if i := strings.IndexByte(s, ' '); i >= 0 {
		return s[:i]
	}
	return s
}

func parsePage(arg string) int {
	page := 0
	for _, r := range arg {
		if r < '0' || r > '9' {
			return 0
		}
		page = page*10 + int(r-'0')
	}
	return page
}
