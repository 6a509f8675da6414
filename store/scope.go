// Package store, sync engine'in mesaj ve kanal state'ini tutan bileşenleri içerir.
//
// MessageStore (paginated entity cache) Message/Page state'inin tek sahibidir;
// ChannelStore kanal özetlerini (unread / notification sayaçları) tutar.
// Store'lar tek bir process-wide instance olarak oluşturulur ve sadece
// mutation service, push dispatcher ve sync service tarafından yazılır.
// View katmanı store'lara sadece selector'lar üzerinden erişir.
//
// Tüm method'lar mutex ile korunur ve atomiktir: her çağrı bir önceki
// çağrının tamamen uygulanmış sonucunu görür. Listener'lar lock bırakıldıktan
// sonra çağrılır, böylece bir listener store'u tekrar okuyabilir.
package store

import (
	"sort"
	"time"

	"github.com/akinalp/mqvi-sync/models"
)

// ScopeKind, bağımsız olarak sayfalanan bir görünümün türü.
type ScopeKind string

const (
	ScopeChannel    ScopeKind = "channel"     // Kanal mesaj timeline'ı
	ScopeThread     ScopeKind = "thread"      // Bir thread'in cevapları (ID = parent message ID)
	ScopeUnreadFeed ScopeKind = "unread_feed" // Workspace'in okunmamış mesaj akışı (ID = workspace ID)
)

// kindOrder, birden fazla scope'ta bulunan bir mesaj aranırken hangi
// scope'a öncelik verileceğini belirler.
var kindOrder = map[ScopeKind]int{
	ScopeChannel:    0,
	ScopeThread:     1,
	ScopeUnreadFeed: 2,
}

// ScopeKey, bir scope'u benzersiz şekilde tanımlar.
type ScopeKey struct {
	Kind ScopeKind `json:"kind"`
	ID   string    `json:"id"`
}

// ChannelScope, kanal timeline scope'unun key'ini döner.
func ChannelScope(channelID string) ScopeKey {
	return ScopeKey{Kind: ScopeChannel, ID: channelID}
}

// ThreadScope, thread cevapları scope'unun key'ini döner.
func ThreadScope(parentID string) ScopeKey {
	return ScopeKey{Kind: ScopeThread, ID: parentID}
}

// UnreadFeedScope, workspace'in okunmamış akışı scope'unun key'ini döner.
func UnreadFeedScope(workspaceID string) ScopeKey {
	return ScopeKey{Kind: ScopeUnreadFeed, ID: workspaceID}
}

func (k ScopeKey) String() string {
	return string(k.Kind) + ":" + k.ID
}

// ScopeState, bir scope'un pagination durumu.
// Cursor ve HasMore en son fetch edilen sayfadan alınır.
type ScopeState struct {
	Cursor   string `json:"cursor"`
	HasMore  bool   `json:"has_more"`
	Pages    int    `json:"pages"`
	Messages int    `json:"messages"`
}

// TargetScopes, yeni bir mesajın eklenmesi gereken scope'ları döner.
// Thread cevabı thread scope'una gider; AlsoSendToChannel ise kanal
// timeline'ına da eklenir.
func TargetScopes(msg *models.Message) []ScopeKey {
	if msg.IsReply() {
		keys := []ScopeKey{ThreadScope(*msg.ThreadParentID)}
		if msg.AlsoSendToChannel {
			keys = append(keys, ChannelScope(msg.ChannelID))
		}
		return keys
	}
	return []ScopeKey{ChannelScope(msg.ChannelID)}
}

// position, bir mesajın scope içindeki yeri.
type position struct {
	page  int
	index int
}

// page, scope içindeki tek bir sayfa.
type page struct {
	messages []models.Message
	cursor   string
	hasMore  bool
}

// scope, sıralı sayfa listesi (eskiden yeniye) ve id → pozisyon index'i.
//
// Invariant: bir mesaj ID'si scope içinde en fazla bir kez bulunur.
// index her yapısal değişiklikten sonra yeniden kurulur.
type scope struct {
	pages   []*page
	cursor  string
	hasMore bool
	index   map[string]position
}

func newScope() *scope {
	return &scope{index: make(map[string]position)}
}

func (sc *scope) reindex() {
	sc.index = make(map[string]position, len(sc.index))
	kept := sc.pages[:0]
	for _, p := range sc.pages {
		if len(p.messages) == 0 {
			continue
		}
		kept = append(kept, p)
	}
	sc.pages = kept
	for pi, p := range sc.pages {
		for mi := range p.messages {
			sc.index[p.messages[mi].ID] = position{page: pi, index: mi}
		}
	}
}

func (sc *scope) get(id string) (*models.Message, bool) {
	pos, ok := sc.index[id]
	if !ok {
		return nil, false
	}
	return &sc.pages[pos.page].messages[pos.index], true
}

func (sc *scope) has(id string) bool {
	_, ok := sc.index[id]
	return ok
}

// appendMessage, mesajı son sayfanın sonuna ekler.
func (sc *scope) appendMessage(msg models.Message) {
	if len(sc.pages) == 0 {
		sc.pages = append(sc.pages, &page{})
	}
	last := sc.pages[len(sc.pages)-1]
	last.messages = append(last.messages, msg)
	sc.index[msg.ID] = position{page: len(sc.pages) - 1, index: len(last.messages) - 1}
}

// insertAt, mesajı verilen pozisyona yerleştirir.
func (sc *scope) insertAt(pos position, msg models.Message) {
	if len(sc.pages) == 0 {
		sc.appendMessage(msg)
		return
	}
	p := sc.pages[pos.page]
	p.messages = append(p.messages, models.Message{})
	copy(p.messages[pos.index+1:], p.messages[pos.index:])
	p.messages[pos.index] = msg
	sc.reindex()
}

// removeID, mesajı scope'tan çıkarır ve önündeki mesajın ID'sini döner.
func (sc *scope) removeID(id string) (removed models.Message, afterID string, ok bool) {
	pos, ok := sc.index[id]
	if !ok {
		return models.Message{}, "", false
	}
	afterID = sc.predecessor(pos)
	p := sc.pages[pos.page]
	removed = p.messages[pos.index]
	p.messages = append(p.messages[:pos.index], p.messages[pos.index+1:]...)
	sc.reindex()
	return removed, afterID, true
}

// removeWhere, predicate'i sağlayan mesajları çıkarır.
func (sc *scope) removeWhere(pred func(m *models.Message) bool) []models.Message {
	var removed []models.Message
	for _, p := range sc.pages {
		kept := p.messages[:0]
		for i := range p.messages {
			if pred(&p.messages[i]) {
				removed = append(removed, p.messages[i])
				continue
			}
			kept = append(kept, p.messages[i])
		}
		p.messages = kept
	}
	if len(removed) > 0 {
		sc.reindex()
	}
	return removed
}

// predecessor, pozisyondan önceki mesajın ID'sini döner (yoksa "").
func (sc *scope) predecessor(pos position) string {
	if pos.index > 0 {
		return sc.pages[pos.page].messages[pos.index-1].ID
	}
	for pi := pos.page - 1; pi >= 0; pi-- {
		if n := len(sc.pages[pi].messages); n > 0 {
			return sc.pages[pi].messages[n-1].ID
		}
	}
	return ""
}

// positionFor, ID'si bilinmeyen bir mesajın geri konulacağı yeri bulur:
// afterID bulunuyorsa hemen arkası, afterID boşsa scope'un başı,
// ikisi de değilse CreatedAt sırasına göre ilk uygun yer.
func (sc *scope) positionFor(msg *models.Message, afterID string) (position, bool) {
	if afterID != "" {
		if pos, ok := sc.index[afterID]; ok {
			return position{page: pos.page, index: pos.index + 1}, true
		}
	} else if len(sc.pages) > 0 {
		return position{page: 0, index: 0}, true
	}
	for pi, p := range sc.pages {
		for mi := range p.messages {
			if p.messages[mi].CreatedAt.After(msg.CreatedAt) {
				return position{page: pi, index: mi}, true
			}
		}
	}
	return position{}, false
}

// ensurePage, scope'ta en az bir (boş olabilir) sayfa bulunmasını sağlar.
func (sc *scope) ensurePage() {
	if len(sc.pages) == 0 {
		sc.pages = []*page{{cursor: sc.cursor, hasMore: sc.hasMore}}
	}
}

// insertChronological, mesajı CreatedAt'i kendisinden sonra olan ilk
// mesajın önüne koyar; yoksa sona ekler.
func (sc *scope) insertChronological(msg models.Message) {
	for pi, p := range sc.pages {
		for mi := range p.messages {
			if p.messages[mi].CreatedAt.After(msg.CreatedAt) {
				sc.insertAt(position{page: pi, index: mi}, msg)
				return
			}
		}
	}
	sc.appendMessage(msg)
}

// bounds, scope'taki sunucu mesajlarının en eski ve en yeni CreatedAt
// değerlerini döner. Sunucu mesajı yoksa ok false'tur.
func (sc *scope) bounds() (oldest, newest time.Time, ok bool) {
	sc.each(func(m *models.Message) {
		if m.Provisional {
			return
		}
		if !ok || m.CreatedAt.Before(oldest) {
			oldest = m.CreatedAt
		}
		if !ok || m.CreatedAt.After(newest) {
			newest = m.CreatedAt
		}
		ok = true
	})
	return oldest, newest, ok
}

func (sc *scope) count() int {
	n := 0
	for _, p := range sc.pages {
		n += len(p.messages)
	}
	return n
}

func (sc *scope) flatten() []models.Message {
	out := make([]models.Message, 0, sc.count())
	for _, p := range sc.pages {
		for i := range p.messages {
			out = append(out, p.messages[i].Clone())
		}
	}
	return out
}

func (sc *scope) each(fn func(m *models.Message)) {
	for _, p := range sc.pages {
		for i := range p.messages {
			fn(&p.messages[i])
		}
	}
}

// fetchedPage, fetch edilen sayfayı kendi içinde tekilleştirir ve
// sunucuda silindiği bilinen (tombstone olmayan) mesajları çıkarır.
func fetchedPage(in models.MessagePage, deleted map[string]struct{}) *page {
	seen := make(map[string]struct{}, len(in.Messages))
	p := &page{cursor: in.Cursor, hasMore: in.HasMore}
	for i := range in.Messages {
		m := in.Messages[i]
		if _, dup := seen[m.ID]; dup {
			continue
		}
		if _, gone := deleted[m.ID]; gone && m.DeletedAt == nil {
			continue
		}
		seen[m.ID] = struct{}{}
		c := m.Clone()
		c.Provisional = false
		p.messages = append(p.messages, c)
	}
	return p
}

func sortKeys(keys []ScopeKey) {
	sort.Slice(keys, func(i, j int) bool {
		if keys[i].Kind != keys[j].Kind {
			return kindOrder[keys[i].Kind] < kindOrder[keys[j].Kind]
		}
		return keys[i].ID < keys[j].ID
	})
}

// changes, tek bir store çağrısında değişen scope'ları sırasıyla toplar.
// touched, çağrının canlı olarak yazdığı mesaj ID'leri; journal'a işlenir.
type changes struct {
	keys    []ScopeKey
	seen    map[ScopeKey]struct{}
	touched []touchedMessage
}

type touchedMessage struct {
	id       string
	fallback *models.Message // Hiçbir scope'ta yoksa journal'a yazılacak kopya
}

// touch, ID'yi journal'a işlenmek üzere işaretler.
func (c *changes) touch(id string) {
	c.touched = append(c.touched, touchedMessage{id: id})
}

// touchMessage, mesaj hiçbir materialized scope'a yazılmamış olsa bile
// journal'a kopyasının işlenmesini sağlar (ör. henüz yüklenmemiş kanala gelen mesaj).
func (c *changes) touchMessage(msg *models.Message) {
	m := msg.Clone()
	c.touched = append(c.touched, touchedMessage{id: m.ID, fallback: &m})
}

func (c *changes) add(key ScopeKey) {
	if c.seen == nil {
		c.seen = make(map[ScopeKey]struct{})
	}
	if _, ok := c.seen[key]; ok {
		return
	}
	c.seen[key] = struct{}{}
	c.keys = append(c.keys, key)
}
