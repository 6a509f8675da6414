package selectors

import (
	"fmt"
	"time"

	"github.com/akinalp/mqvi-sync/models"
)

// maxNamedTypers, etikette isimle sayılan en fazla kullanıcı.
const maxNamedTypers = 3

// VisibleTyping, gösterilecek typing entry'lerini döner: süresi dolmuş
// entry'ler ve mevcut kullanıcının kendisi çıkarılır. Sıra korunur.
func VisibleTyping(entries []models.TypingEntry, currentUserID string, now time.Time) []models.TypingEntry {
	out := make([]models.TypingEntry, 0, len(entries))
	seen := make(map[string]struct{}, len(entries))
	for _, e := range entries {
		if e.UserID == currentUserID || !e.Alive(now) {
			continue
		}
		if _, dup := seen[e.UserID]; dup {
			continue
		}
		seen[e.UserID] = struct{}{}
		out = append(out, e)
	}
	return out
}

// TypingLabel, composer'ın altındaki "... yazıyor" metnini üretir.
//
//	1 kişi:  "Ada is typing..."
//	2 kişi:  "Ada and Bob are typing..."
//	3 kişi:  "Ada, Bob and Cem are typing..."
//	4+ kişi: "Several people are typing..."
func TypingLabel(entries []models.TypingEntry) string {
	names := make([]string, 0, len(entries))
	for _, e := range entries {
		name := e.DisplayName
		if name == "" {
			name = e.UserID
		}
		names = append(names, name)
	}

	switch n := len(names); {
	case n == 0:
		return ""
	case n == 1:
		return fmt.Sprintf("%s is typing...", names[0])
	case n == 2:
		return fmt.Sprintf("%s and %s are typing...", names[0], names[1])
	case n <= maxNamedTypers:
		return fmt.Sprintf("%s, %s and %s are typing...", names[0], names[1], names[2])
	default:
		return "Several people are typing..."
	}
}
