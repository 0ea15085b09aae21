// Package chatclient defines the fixed external boundary spec §1 excludes
// from this core: the concrete chat-protocol wire library. Only the shape
// the Protocol Client Supervisor drives is specified here.
package chatclient

import (
	"context"
	"io"
)

// MediaInfo describes the media attachment a source message carries.
type MediaInfo struct {
	FileName string
	FileSize int64
}

// Message is the minimal shape of a protocol message the pipeline reads
// media references from, and the Dispatcher reads routing context from.
type Message struct {
	ChatID    string
	MessageID string
	UserID    string
	Media     *MediaInfo // nil if the message carries no media
	GroupID   string     // non-empty for album/grouped messages

	Text string // command or free text body, empty for pure-media messages

	IsCallback   bool   // true if this event is a callback-query, not a message
	CallbackData string // prefix-encoded payload (e.g. "cancel_<taskId>")
	QueryID      string // callback query id, required to acknowledge it
}

// Client is the fixed external interface the Protocol Client Supervisor
// wraps. A concrete implementation lives outside this core; the
// supervisor only needs Connect/Disconnect/Ping and the Errors channel;
// the other methods serve the Task Pipeline, the Dispatcher and the
// composition root's event pump.
type Client interface {
	// Connect opens the long-lived connection.
	Connect(ctx context.Context) error
	// Disconnect closes it, honoring ctx's deadline as the hard cap.
	Disconnect(ctx context.Context) error
	// Ping performs a no-op liveness call for the watchdog.
	Ping(ctx context.Context) error
	// GetMessage fetches a single source message by id, used by the
	// download webhook to re-resolve the media reference.
	GetMessage(ctx context.Context, chatID, messageID string) (*Message, error)
	// DownloadMedia streams a message's media attachment into w.
	DownloadMedia(ctx context.Context, chatID, messageID string, w io.Writer) error
	// SendMessage posts a reply to chatID, used by the Dispatcher's
	// command handlers and wizards to render responses.
	SendMessage(ctx context.Context, chatID, text string) error
	// AnswerCallback acknowledges a callback query so the client UI
	// stops showing its loading spinner.
	AnswerCallback(ctx context.Context, queryID, text string) error
	// Events returns the channel of inbound protocol events the
	// Dispatcher consumes. Closed when the connection drops.
	Events() <-chan Message
	// Errors returns the channel of asynchronous client errors the
	// supervisor's watchdog listens on for debounced reconnects.
	Errors() <-chan error
}
