// Package selectors, store'lardan türetilen salt-okunur view state'ini üretir.
//
// Selector'lar saf fonksiyonlardır: store'ları değiştirmez, yan etkisi yoktur
// ve aynı girdi için aynı çıktıyı verir. View katmanı sadece buradaki
// fonksiyonları okur; store içlerine doğrudan erişmez. Store'lardaki her
// değişiklikte (Subscribe) selector'lar yeniden hesaplanır: ayrıca bir
// memoization katmanı yoktur.
package selectors

import (
	"sort"
	"strings"

	"github.com/akinalp/mqvi-sync/models"
	"github.com/akinalp/mqvi-sync/presence"
	"github.com/akinalp/mqvi-sync/store"
)

// Group key'leri.
const (
	GroupStarred  = "starred"
	GroupChannels = "channels"
)

// Totals, bir grup kanalın toplam okunmamış sayaçları.
type Totals struct {
	Unread        int `json:"unread"`
	Notifications int `json:"notifications"`
	Channels      int `json:"channels"` // Okunmamışı olan kanal sayısı
	Threads       int `json:"threads"`  // Okunmamış cevabı olan thread sayısı
}

// HasUnread, badge gösterilip gösterilmeyeceğini döner.
func (t Totals) HasUnread() bool {
	return t.Unread > 0 || t.Notifications > 0
}

// UnreadTotals, kanal ve thread özetlerinden toplam sayaçları hesaplar.
// Thread cevapları Unread toplamına eklenir; thread'in kanalı toplamda
// ayrıca sayılmaz.
func UnreadTotals(channels []models.ChannelSummary, threads []models.ThreadSummary) Totals {
	var t Totals
	for _, c := range channels {
		t.Unread += c.UnreadCount
		t.Notifications += c.NotificationCount
		if c.UnreadCount > 0 {
			t.Channels++
		}
	}
	for _, th := range threads {
		if th.UnreadCount > 0 {
			t.Unread += th.UnreadCount
			t.Threads++
		}
	}
	return t
}

// WorkspaceUnread, ChannelStore'daki her workspace için toplamları döner.
func WorkspaceUnread(cs *store.ChannelStore) map[string]Totals {
	threadsByChannel := make(map[string][]models.ThreadSummary)
	for _, th := range cs.Threads() {
		threadsByChannel[th.ChannelID] = append(threadsByChannel[th.ChannelID], th)
	}

	out := make(map[string]Totals)
	for _, ws := range cs.Workspaces() {
		channels := cs.Channels(ws)
		var threads []models.ThreadSummary
		for _, c := range channels {
			threads = append(threads, threadsByChannel[c.ID]...)
		}
		out[ws] = UnreadTotals(channels, threads)
	}
	return out
}

// GroupedChannels, kanalları sidebar gruplarına ayırır: önce yıldızlılar,
// sonra diğerleri. Her grup isme göre (büyük/küçük harf duyarsız) sıralanır.
// Boş gruplar döndürülmez.
func GroupedChannels(channels []models.ChannelSummary) []models.ChannelGroup {
	var starred, rest []models.ChannelSummary
	for _, c := range channels {
		if c.IsStarred {
			starred = append(starred, c)
		} else {
			rest = append(rest, c)
		}
	}
	sortByName(starred)
	sortByName(rest)

	var groups []models.ChannelGroup
	if len(starred) > 0 {
		groups = append(groups, models.ChannelGroup{Key: GroupStarred, Channels: starred})
	}
	if len(rest) > 0 {
		groups = append(groups, models.ChannelGroup{Key: GroupChannels, Channels: rest})
	}
	return groups
}

func sortByName(channels []models.ChannelSummary) {
	sort.SliceStable(channels, func(i, j int) bool {
		a, b := strings.ToLower(channels[i].Name), strings.ToLower(channels[j].Name)
		if a != b {
			return a < b
		}
		return channels[i].ID < channels[j].ID
	})
}

// ReplyCount, parent mesajın cache'teki cevap sayısını döner.
// Parent hiçbir materialized scope'ta değilse 0 döner.
func ReplyCount(ms *store.MessageStore, parentID string) int {
	m, _, ok := ms.Find(parentID)
	if !ok {
		return 0
	}
	return m.ReplyCount
}

// ReactionGroups, reaction setini emoji başına gruplar. Gruplar emojinin
// ilk görüldüğü sıradadır; Me, currentUserID grubun içindeyse true olur.
func ReactionGroups(reactions []models.Reaction, currentUserID string) []models.ReactionGroup {
	if len(reactions) == 0 {
		return nil
	}
	index := make(map[string]int)
	var groups []models.ReactionGroup
	for _, r := range reactions {
		i, ok := index[r.Emoji]
		if !ok {
			i = len(groups)
			index[r.Emoji] = i
			groups = append(groups, models.ReactionGroup{Emoji: r.Emoji})
		}
		g := &groups[i]
		g.Count++
		g.Users = append(g.Users, r.UserID)
		if r.UserID == currentUserID {
			g.Me = true
		}
	}
	return groups
}

// PresenceOf, kullanıcının durumunu döner. Bilinmeyen kullanıcılar offline sayılır.
func PresenceOf(ps *presence.Store, userID string) models.UserStatus {
	p, ok := ps.Presence(userID)
	if !ok || p.Status == "" {
		return models.UserStatusOffline
	}
	return p.Status
}
