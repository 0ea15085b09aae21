package main

import (
	"fmt"

	"github.com/mediarelay/botcore/internal/chatclient"
	"github.com/mediarelay/botcore/internal/config"
)

// newChatClient constructs the one concrete chatclient.Client this process
// drives. The wire protocol itself is the fixed external boundary
// internal/chatclient's package doc excludes from this core: which chat
// platform and library back it is a deployment decision, not a pipeline
// one. Link a build that calls RegisterChatClient from an init func in a
// platform-specific package before main runs.
func newChatClient(cfg *config.Config) (chatclient.Client, error) {
	if chatClientFactory == nil {
		return nil, fmt.Errorf("botcore: no chatclient.Client registered; import a protocol adapter package")
	}
	return chatClientFactory(cfg)
}

// chatClientFactory is set by RegisterChatClient. nil until a protocol
// adapter package's init func runs.
var chatClientFactory func(cfg *config.Config) (chatclient.Client, error)

// RegisterChatClient lets a platform-specific adapter package (imported
// for side effects from a build-specific file) supply the concrete
// chatclient.Client this process drives.
func RegisterChatClient(factory func(cfg *config.Config) (chatclient.Client, error)) {
	chatClientFactory = factory
}
