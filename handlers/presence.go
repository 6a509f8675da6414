package handlers

import (
	"net/http"

	"github.com/benbjohnson/clock"

	"github.com/akinalp/mqvi-sync/models"
	"github.com/akinalp/mqvi-sync/pkg"
	"github.com/akinalp/mqvi-sync/presence"
	"github.com/akinalp/mqvi-sync/selectors"
	"github.com/akinalp/mqvi-sync/ws"
)

// ConnectionStates, workspace başına push bağlantı durumlarını döner.
// ws.Hub bu interface'i implement eder.
type ConnectionStates interface {
	States() map[string]ws.State
}

// PresenceHandler, typing göstergesi, presence ve bağlantı durumu endpoint'lerini yönetir.
type PresenceHandler struct {
	presence    *presence.Store
	connections ConnectionStates
	userID      string
	clock       clock.Clock
}

// NewPresenceHandler, constructor.
func NewPresenceHandler(ps *presence.Store, connections ConnectionStates, userID string, clk clock.Clock) *PresenceHandler {
	if clk == nil {
		clk = clock.New()
	}
	return &PresenceHandler{presence: ps, connections: connections, userID: userID, clock: clk}
}

type typingResponse struct {
	ChannelID string               `json:"channel_id"`
	Entries   []models.TypingEntry `json:"entries"`
	Label     string               `json:"label"`
}

type statusResponse struct {
	UserID      string              `json:"user_id"`
	Connections map[string]ws.State `json:"connections"`
}

// Typing godoc
// GET /bridge/channels/{id}/typing
// Kanalda yazan diğer kullanıcıları ve composer etiketini döner.
func (h *PresenceHandler) Typing(w http.ResponseWriter, r *http.Request) {
	channelID := r.PathValue("id")
	entries := selectors.VisibleTyping(h.presence.TypingIn(channelID), h.userID, h.clock.Now())

	pkg.JSON(w, http.StatusOK, typingResponse{
		ChannelID: channelID,
		Entries:   entries,
		Label:     selectors.TypingLabel(entries),
	})
}

// Presence godoc
// GET /bridge/presence?user_id=u1
//
// user_id verilirse tek kullanıcının durumu, verilmezse bütün snapshot döner.
func (h *PresenceHandler) Presence(w http.ResponseWriter, r *http.Request) {
	if userID := r.URL.Query().Get("user_id"); userID != "" {
		pkg.JSON(w, http.StatusOK, map[string]models.UserStatus{
			userID: selectors.PresenceOf(h.presence, userID),
		})
		return
	}
	pkg.JSON(w, http.StatusOK, h.presence.Snapshot())
}

// Status godoc
// GET /bridge/status
func (h *PresenceHandler) Status(w http.ResponseWriter, r *http.Request) {
	pkg.JSON(w, http.StatusOK, statusResponse{
		UserID:      h.userID,
		Connections: h.connections.States(),
	})
}
