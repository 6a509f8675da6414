// Package main — Bridge route registration.
//
// initRoutes, view bridge endpoint'lerini mux'a bağlar.
// Bütün /bridge route'ları BridgeAuth'tan geçer; /metrics ve /health açıktır.
package main

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/akinalp/mqvi-sync/handlers"
	"github.com/akinalp/mqvi-sync/middleware"
	"github.com/akinalp/mqvi-sync/pkg"
)

// initRoutes, middleware chain'i kurar ve tüm endpoint'leri mux'a bağlar.
//
// Route sıralama kuralı: Go 1.22 mux'ı en spesifik pattern'i seçer;
// "/bridge/ws" ile "/bridge/{...}" çakışmaz.
func initRoutes(
	mux *http.ServeMux,
	h *Handlers,
	feed *handlers.ChangeFeed,
	bridgeAuth *middleware.BridgeAuth,
	gatherer prometheus.Gatherer,
) {
	auth := func(handler http.HandlerFunc) http.Handler {
		return bridgeAuth.Require(http.HandlerFunc(handler))
	}

	// Health & metrics
	mux.HandleFunc("GET /health", func(w http.ResponseWriter, r *http.Request) {
		pkg.JSON(w, http.StatusOK, map[string]string{"status": "ok"})
	})
	mux.Handle("GET /metrics", promhttp.HandlerFor(gatherer, promhttp.HandlerOpts{}))

	// Change feed
	mux.Handle("GET /bridge/ws", auth(feed.ServeWS))

	// Status & presence
	mux.Handle("GET /bridge/status", auth(h.Presence.Status))
	mux.Handle("GET /bridge/presence", auth(h.Presence.Presence))
	mux.Handle("GET /bridge/unread", auth(h.Channel.Unread))

	// Workspaces: sidebar ve unread feed
	mux.Handle("GET /bridge/workspaces/{id}/channels", auth(h.Channel.List))
	mux.Handle("POST /bridge/workspaces/{id}/refresh", auth(h.Channel.Refresh))
	mux.Handle("GET /bridge/workspaces/{id}/unread-feed", auth(h.Message.UnreadFeed))

	// Channels
	mux.Handle("GET /bridge/channels/{id}/messages", auth(h.Message.List))
	mux.Handle("POST /bridge/channels/{id}/messages", auth(h.Message.Create))
	mux.Handle("GET /bridge/channels/{id}/typing", auth(h.Presence.Typing))
	mux.Handle("POST /bridge/channels/{id}/typing", auth(h.Message.Typing))
	mux.Handle("POST /bridge/channels/{id}/read", auth(h.ReadState.MarkChannelRead))
	mux.Handle("PUT /bridge/channels/{id}/star", auth(h.Channel.Star))
	mux.Handle("DELETE /bridge/channels/{id}/star", auth(h.Channel.Unstar))

	// Threads
	mux.Handle("GET /bridge/threads/{id}", auth(h.Message.Thread))
	mux.Handle("DELETE /bridge/threads/{id}", auth(h.Message.CloseThread))
	mux.Handle("POST /bridge/threads/{id}/read", auth(h.ReadState.MarkThreadRead))

	// Messages
	mux.Handle("PATCH /bridge/messages/{id}", auth(h.Message.Update))
	mux.Handle("DELETE /bridge/messages/{id}", auth(h.Message.Delete))
	mux.Handle("PUT /bridge/messages/{id}/reactions/{emoji}", auth(h.Reaction.Add))
	mux.Handle("DELETE /bridge/messages/{id}/reactions/{emoji}", auth(h.Reaction.Remove))

	// Actions
	mux.Handle("GET /bridge/actions/{id}", auth(h.Action.Get))
}
