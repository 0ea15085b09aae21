// Package dispatcher routes inbound chat-protocol events: guard
// evaluation, callback/message/command routing, and groupedId-keyed
// album aggregation, per spec §4.F.
package dispatcher

import "github.com/mediarelay/botcore/internal/chatclient"

// EventContext is the normalized shape every routing decision reads from,
// independent of whether the source event was a message or callback.
type EventContext struct {
	UserID     string
	Target     string // chat id the reply should go to
	IsCallback bool
	QueryID    string
}

// ExtractContext derives routing context from a raw protocol message.
func ExtractContext(msg chatclient.Message) EventContext {
	return EventContext{
		UserID:     msg.UserID,
		Target:     msg.ChatID,
		IsCallback: msg.IsCallback,
		QueryID:    msg.QueryID,
	}
}
