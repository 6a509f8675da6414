package selectors

import (
	"fmt"
	"time"

	"github.com/dustin/go-humanize"

	"github.com/akinalp/mqvi-sync/models"
)

// groupWindow, aynı yazarın ardışık mesajlarının tek başlık altında
// gösterilebileceği maksimum zaman farkı.
const groupWindow = 5 * time.Minute

// TimelineItem, bir mesajın render'a hazır görünümü.
type TimelineItem struct {
	Message     models.Message         `json:"message"`
	DayBreak    bool                   `json:"day_break"`   // Yeni bir günün ilk mesajı
	Grouped     bool                   `json:"grouped"`     // Önceki mesajla aynı başlık altında
	Placeholder bool                   `json:"placeholder"` // Silinmiş ama cevapları olan parent
	Pending     bool                   `json:"pending"`     // Sunucu onayı bekleniyor
	Edited      bool                   `json:"edited"`
	Footer      string                 `json:"footer,omitempty"`
	Reactions   []models.ReactionGroup `json:"reactions,omitempty"`
}

// Timeline, scope'un mesajlarını render sırasıyla TimelineItem'lara çevirir.
func Timeline(msgs []models.Message, currentUserID string, now time.Time) []TimelineItem {
	items := make([]TimelineItem, 0, len(msgs))
	var prev *models.Message
	for i := range msgs {
		m := msgs[i]
		item := TimelineItem{
			Message:     m,
			Placeholder: m.IsDeleted(),
			Pending:     m.Provisional,
			Edited:      m.EditedAt != nil && !m.IsDeleted(),
			Footer:      ThreadFooter(m, now),
			Reactions:   ReactionGroups(m.Reactions, currentUserID),
		}
		if prev == nil || !sameDay(prev.CreatedAt, m.CreatedAt) {
			item.DayBreak = true
		} else {
			item.Grouped = groupable(prev, &m)
		}
		items = append(items, item)
		prev = &msgs[i]
	}
	return items
}

func groupable(prev, m *models.Message) bool {
	if prev.IsDeleted() || m.IsDeleted() {
		return false
	}
	if prev.UserID != m.UserID {
		return false
	}
	if m.IsReply() && m.AlsoSendToChannel {
		return false
	}
	gap := m.CreatedAt.Sub(prev.CreatedAt)
	return gap >= 0 && gap <= groupWindow
}

func sameDay(a, b time.Time) bool {
	ay, am, ad := a.Date()
	by, bm, bd := b.In(a.Location()).Date()
	return ay == by && am == bm && ad == bd
}

// ThreadFooter, thread kökü mesajın altındaki özeti üretir:
//
//	"3 replies, last reply 5 minutes ago"
//
// Cevabı olmayan mesajlar için boş string döner.
func ThreadFooter(m models.Message, now time.Time) string {
	if m.ReplyCount <= 0 {
		return ""
	}
	label := "replies"
	if m.ReplyCount == 1 {
		label = "reply"
	}
	footer := fmt.Sprintf("%s %s", humanize.Comma(int64(m.ReplyCount)), label)
	if m.LastReplyAt != nil {
		footer += ", last reply " + humanize.RelTime(*m.LastReplyAt, now, "ago", "from now")
	}
	return footer
}
