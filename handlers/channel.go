package handlers

import (
	"net/http"

	"github.com/akinalp/mqvi-sync/models"
	"github.com/akinalp/mqvi-sync/pkg"
	"github.com/akinalp/mqvi-sync/selectors"
	"github.com/akinalp/mqvi-sync/services"
	"github.com/akinalp/mqvi-sync/store"
)

// ChannelHandler, sidebar (kanal listesi, unread badge'leri, yıldız) endpoint'lerini yönetir.
type ChannelHandler struct {
	channels  *store.ChannelStore
	sync      services.SyncService
	mutations services.MutationService
}

// NewChannelHandler, constructor.
func NewChannelHandler(channels *store.ChannelStore, syncService services.SyncService, mutations services.MutationService) *ChannelHandler {
	return &ChannelHandler{channels: channels, sync: syncService, mutations: mutations}
}

// channelListResponse, bir workspace'in sidebar görünümü.
type channelListResponse struct {
	WorkspaceID string                 `json:"workspace_id"`
	Groups      []models.ChannelGroup  `json:"groups"`
	Threads     []models.ThreadSummary `json:"threads"`
	Totals      selectors.Totals       `json:"totals"`
}

// List godoc
// GET /bridge/workspaces/{id}/channels
//
// Workspace henüz hiç çekilmediyse önce kanal listesi sunucudan yüklenir.
func (h *ChannelHandler) List(w http.ResponseWriter, r *http.Request) {
	workspaceID := r.PathValue("id")

	channels := h.channels.Channels(workspaceID)
	if len(channels) == 0 {
		if err := h.sync.RefreshChannels(r.Context(), workspaceID); err != nil {
			pkg.Error(w, err)
			return
		}
		channels = h.channels.Channels(workspaceID)
	}

	var threads []models.ThreadSummary
	inWorkspace := make(map[string]struct{}, len(channels))
	for _, c := range channels {
		inWorkspace[c.ID] = struct{}{}
	}
	for _, th := range h.channels.Threads() {
		if _, ok := inWorkspace[th.ChannelID]; ok {
			threads = append(threads, th)
		}
	}

	pkg.JSON(w, http.StatusOK, channelListResponse{
		WorkspaceID: workspaceID,
		Groups:      selectors.GroupedChannels(channels),
		Threads:     threads,
		Totals:      selectors.UnreadTotals(channels, threads),
	})
}

// Refresh godoc
// POST /bridge/workspaces/{id}/refresh
// Kanal listesini ve unread sayaçlarını sunucudan yeniden çeker.
func (h *ChannelHandler) Refresh(w http.ResponseWriter, r *http.Request) {
	if err := h.sync.RefreshChannels(r.Context(), r.PathValue("id")); err != nil {
		pkg.Error(w, err)
		return
	}
	pkg.JSON(w, http.StatusOK, map[string]string{"message": "channels refreshed"})
}

// Unread godoc
// GET /bridge/unread
// Her workspace için toplam okunmamış sayaçlarını döner.
func (h *ChannelHandler) Unread(w http.ResponseWriter, r *http.Request) {
	pkg.JSON(w, http.StatusOK, selectors.WorkspaceUnread(h.channels))
}

// Star godoc
// PUT /bridge/channels/{id}/star
func (h *ChannelHandler) Star(w http.ResponseWriter, r *http.Request) {
	respondAction(w, r, h.mutations.SetStarred(r.PathValue("id"), true))
}

// Unstar godoc
// DELETE /bridge/channels/{id}/star
func (h *ChannelHandler) Unstar(w http.ResponseWriter, r *http.Request) {
	respondAction(w, r, h.mutations.SetStarred(r.PathValue("id"), false))
}
