// Package handlers, view bridge'in HTTP handler'larını barındırır.
//
// Thin handler pattern: handler'lar sadece request parse + service/selector
// çağrısı + response yazımı yapar. Store'lar sadece selector'lar üzerinden
// okunur, sadece service'ler üzerinden yazılır.
package handlers

import (
	"encoding/json"
	"net/http"

	"github.com/benbjohnson/clock"

	"github.com/akinalp/mqvi-sync/models"
	"github.com/akinalp/mqvi-sync/pkg"
	"github.com/akinalp/mqvi-sync/selectors"
	"github.com/akinalp/mqvi-sync/services"
	"github.com/akinalp/mqvi-sync/store"
)

// MessageHandler, mesaj timeline'ı ve mesaj aksiyonu endpoint'lerini yöneten struct.
type MessageHandler struct {
	messages  *store.MessageStore
	sync      services.SyncService
	mutations services.MutationService
	typing    services.TypingService
	userID    string
	clock     clock.Clock
}

// NewMessageHandler, constructor.
func NewMessageHandler(
	messages *store.MessageStore,
	syncService services.SyncService,
	mutations services.MutationService,
	typing services.TypingService,
	userID string,
	clk clock.Clock,
) *MessageHandler {
	if clk == nil {
		clk = clock.New()
	}
	return &MessageHandler{
		messages:  messages,
		sync:      syncService,
		mutations: mutations,
		typing:    typing,
		userID:    userID,
		clock:     clk,
	}
}

// scopeResponse, bir scope'un render'a hazır görünümü.
type scopeResponse struct {
	Scope   store.ScopeKey           `json:"scope"`
	HasMore bool                     `json:"has_more"`
	Parent  *selectors.TimelineItem  `json:"parent,omitempty"`
	Items   []selectors.TimelineItem `json:"items"`
}

// updateMessageRequest, PATCH /bridge/messages/{id} body'si.
type updateMessageRequest struct {
	Content string `json:"content"`
}

// List godoc
// GET /bridge/channels/{id}/messages?older=true
//
// Kanal timeline'ını döner. Kanal cache'te yoksa önce en yeni sayfa çekilir;
// older=true ise başa bir eski sayfa eklenir.
func (h *MessageHandler) List(w http.ResponseWriter, r *http.Request) {
	channelID := r.PathValue("id")
	key := store.ChannelScope(channelID)

	var err error
	switch {
	case !h.messages.Materialized(key):
		err = h.sync.LoadChannel(r.Context(), channelID)
	case r.URL.Query().Get("older") == "true":
		_, err = h.sync.LoadOlder(r.Context(), channelID)
	}
	if err != nil {
		pkg.Error(w, err)
		return
	}

	pkg.JSON(w, http.StatusOK, h.scopeView(key))
}

// Thread godoc
// GET /bridge/threads/{id}?more=true
//
// Thread panelini döner (parent + cevaplar). more=true ise bir sonraki
// cevap sayfası eklenir.
func (h *MessageHandler) Thread(w http.ResponseWriter, r *http.Request) {
	parentID := r.PathValue("id")
	key := store.ThreadScope(parentID)

	var err error
	switch {
	case !h.messages.Materialized(key):
		err = h.sync.OpenThread(r.Context(), parentID)
	case r.URL.Query().Get("more") == "true":
		_, err = h.sync.LoadMoreReplies(r.Context(), parentID)
	}
	if err != nil {
		pkg.Error(w, err)
		return
	}

	view := h.scopeView(key)
	if parent, _, ok := h.messages.Find(parentID); ok {
		items := selectors.Timeline([]models.Message{parent}, h.userID, h.clock.Now())
		view.Parent = &items[0]
	}
	pkg.JSON(w, http.StatusOK, view)
}

// CloseThread godoc
// DELETE /bridge/threads/{id}
// Thread panelini kapatır; scope cache'ten çıkarılır.
func (h *MessageHandler) CloseThread(w http.ResponseWriter, r *http.Request) {
	h.sync.CloseThread(r.PathValue("id"))
	pkg.JSON(w, http.StatusOK, map[string]string{"message": "thread closed"})
}

// UnreadFeed godoc
// GET /bridge/workspaces/{id}/unread-feed?more=true
func (h *MessageHandler) UnreadFeed(w http.ResponseWriter, r *http.Request) {
	workspaceID := r.PathValue("id")
	key := store.UnreadFeedScope(workspaceID)

	var err error
	switch {
	case !h.messages.Materialized(key):
		err = h.sync.LoadUnreadFeed(r.Context(), workspaceID)
	case r.URL.Query().Get("more") == "true":
		_, err = h.sync.LoadMoreUnread(r.Context(), workspaceID)
	}
	if err != nil {
		pkg.Error(w, err)
		return
	}

	pkg.JSON(w, http.StatusOK, h.scopeView(key))
}

// Create godoc
// POST /bridge/channels/{id}/messages
//
// Body: models.Draft
//
//	{ "content": "mesaj", "thread_parent_id": "p1", "also_send_to_channel": false }
//
// Mesaj optimistic olarak hemen timeline'a eklenir; cevap pending aksiyondur.
func (h *MessageHandler) Create(w http.ResponseWriter, r *http.Request) {
	channelID := r.PathValue("id")

	var draft models.Draft
	if err := json.NewDecoder(r.Body).Decode(&draft); err != nil {
		pkg.ErrorWithMessage(w, http.StatusBadRequest, "invalid request body")
		return
	}

	a := h.mutations.Send(channelID, draft)
	h.typing.Reset(channelID)
	respondAction(w, r, a)
}

// Update godoc
// PATCH /bridge/messages/{id}
// Body: { "content": "yeni içerik" }
func (h *MessageHandler) Update(w http.ResponseWriter, r *http.Request) {
	var req updateMessageRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		pkg.ErrorWithMessage(w, http.StatusBadRequest, "invalid request body")
		return
	}
	respondAction(w, r, h.mutations.Edit(r.PathValue("id"), req.Content))
}

// Delete godoc
// DELETE /bridge/messages/{id}
func (h *MessageHandler) Delete(w http.ResponseWriter, r *http.Request) {
	respondAction(w, r, h.mutations.Delete(r.PathValue("id")))
}

// Typing godoc
// POST /bridge/channels/{id}/typing
//
// Composer'da her tuş vuruşunda çağrılabilir; sunucuya throttle window'u
// içinde en fazla bir frame gider.
func (h *MessageHandler) Typing(w http.ResponseWriter, r *http.Request) {
	sent, err := h.typing.NotifyTyping(r.PathValue("id"))
	if err != nil {
		pkg.Error(w, err)
		return
	}
	pkg.JSON(w, http.StatusOK, map[string]bool{"sent": sent})
}

func (h *MessageHandler) scopeView(key store.ScopeKey) scopeResponse {
	state, _ := h.messages.State(key)
	return scopeResponse{
		Scope:   key,
		HasMore: state.HasMore,
		Items:   selectors.Timeline(h.messages.Messages(key), h.userID, h.clock.Now()),
	}
}

// respondAction, aksiyonun görünümünü yazar. wait=true ise aksiyon
// sonuçlanana (veya request iptal edilene) kadar beklenir.
func respondAction(w http.ResponseWriter, r *http.Request, a *services.Action) {
	if r.URL.Query().Get("wait") == "true" {
		_ = a.Wait(r.Context())
	}

	view := a.View()
	status := http.StatusOK
	if view.Status == services.ActionPending {
		status = http.StatusAccepted
	}
	pkg.JSON(w, status, view)
}
