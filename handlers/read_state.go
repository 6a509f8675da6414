package handlers

import (
	"net/http"

	"github.com/akinalp/mqvi-sync/services"
)

// ReadStateHandler, okunmamış mesaj takibi endpoint'lerini yöneten struct.
type ReadStateHandler struct {
	mutations services.MutationService
}

// NewReadStateHandler, constructor.
func NewReadStateHandler(mutations services.MutationService) *ReadStateHandler {
	return &ReadStateHandler{mutations: mutations}
}

// MarkChannelRead godoc
// POST /bridge/channels/{id}/read
//
// Kanaldaki unread sayacı anında sıfırlanır; sunucu isteği arka planda gider.
func (h *ReadStateHandler) MarkChannelRead(w http.ResponseWriter, r *http.Request) {
	respondAction(w, r, h.mutations.MarkChannelRead(r.PathValue("id")))
}

// MarkThreadRead godoc
// POST /bridge/threads/{id}/read
func (h *ReadStateHandler) MarkThreadRead(w http.ResponseWriter, r *http.Request) {
	respondAction(w, r, h.mutations.MarkThreadRead(r.PathValue("id")))
}
