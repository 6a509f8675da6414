package handlers

import (
	"net/http"

	"github.com/akinalp/mqvi-sync/pkg"
	"github.com/akinalp/mqvi-sync/services"
)

// ActionHandler, optimistic aksiyonların durumunu sorgulatan endpoint'i yönetir.
type ActionHandler struct {
	mutations services.MutationService
}

// NewActionHandler, constructor.
func NewActionHandler(mutations services.MutationService) *ActionHandler {
	return &ActionHandler{mutations: mutations}
}

// Get godoc
// GET /bridge/actions/{id}?wait=true
//
// Sonuçlanan aksiyonlar sınırlı bir süre saklanır; süresi dolan ID 404 döner.
func (h *ActionHandler) Get(w http.ResponseWriter, r *http.Request) {
	a, ok := h.mutations.Action(r.PathValue("id"))
	if !ok {
		pkg.ErrorWithMessage(w, http.StatusNotFound, "action not found")
		return
	}
	respondAction(w, r, a)
}
