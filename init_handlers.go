// Package main — Handler katmanı başlatma.
//
// initHandlers, bridge HTTP handler'larını oluşturur.
// Handler'lar "thin" dir: sadece HTTP parse + service/selector call + response write.
package main

import (
	"github.com/benbjohnson/clock"

	"github.com/akinalp/mqvi-sync/auth"
	"github.com/akinalp/mqvi-sync/handlers"
	"github.com/akinalp/mqvi-sync/ws"
)

// Handlers, tüm handler instance'larını tutan container struct.
type Handlers struct {
	Channel   *handlers.ChannelHandler
	Message   *handlers.MessageHandler
	Reaction  *handlers.ReactionHandler
	ReadState *handlers.ReadStateHandler
	Presence  *handlers.PresenceHandler
	Action    *handlers.ActionHandler
}

// initHandlers, tüm handler'ları oluşturur.
func initHandlers(stores *Stores, svcs *Services, hub *ws.Hub, session *auth.Session, clk clock.Clock) *Handlers {
	return &Handlers{
		Channel:   handlers.NewChannelHandler(stores.Channels, svcs.Sync, svcs.Mutation),
		Message:   handlers.NewMessageHandler(stores.Messages, svcs.Sync, svcs.Mutation, svcs.Typing, session.UserID, clk),
		Reaction:  handlers.NewReactionHandler(svcs.Mutation),
		ReadState: handlers.NewReadStateHandler(svcs.Mutation),
		Presence:  handlers.NewPresenceHandler(stores.Presence, hub, session.UserID, clk),
		Action:    handlers.NewActionHandler(svcs.Mutation),
	}
}
