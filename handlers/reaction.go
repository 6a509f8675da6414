package handlers

import (
	"net/http"

	"github.com/akinalp/mqvi-sync/services"
)

// ReactionHandler, emoji reaction endpoint'lerini yöneten struct.
//
// Emoji path'te URL-encoded olarak gelir; r.PathValue decode edilmiş değeri döner.
type ReactionHandler struct {
	mutations services.MutationService
}

// NewReactionHandler, constructor.
func NewReactionHandler(mutations services.MutationService) *ReactionHandler {
	return &ReactionHandler{mutations: mutations}
}

// Add godoc
// PUT /bridge/messages/{id}/reactions/{emoji}
func (h *ReactionHandler) Add(w http.ResponseWriter, r *http.Request) {
	respondAction(w, r, h.mutations.AddReaction(r.PathValue("id"), r.PathValue("emoji")))
}

// Remove godoc
// DELETE /bridge/messages/{id}/reactions/{emoji}
func (h *ReactionHandler) Remove(w http.ResponseWriter, r *http.Request) {
	respondAction(w, r, h.mutations.RemoveReaction(r.PathValue("id"), r.PathValue("emoji")))
}
