package store

import (
	"sort"
	"sync"
	"time"

	"github.com/benbjohnson/clock"
	"go.uber.org/zap"

	"github.com/akinalp/mqvi-sync/models"
)

// channelEntry, bir kanal özeti ve onu canlı event'lerle tutarlı tutmak
// için gereken yan bilgiler.
type channelEntry struct {
	summary models.ChannelSummary

	// liveAt, özetin bir canlı event veya aksiyonla en son değiştiği an.
	// Bu andan önce istenmiş bir snapshot sayaçları ezemez.
	liveAt time.Time

	// counted, son okumadan bu yana unread_count'a yansıtılmış mesaj ID'leri.
	counted map[string]struct{}
}

type threadEntry struct {
	summary models.ThreadSummary
	counted map[string]struct{}
}

// ChannelStore, kanal özetlerini ve thread okunmamış sayaçlarını tutar.
//
// Kurallar:
//   - unread_count asla negatif olmaz.
//   - MarkRead sayaçları tam olarak 0'a çeker; tahmini azaltma yapılmaz.
//   - Canlı event'ler, event'ten önce istenmiş bir snapshot'a göre önceliklidir.
type ChannelStore struct {
	mu       sync.Mutex
	channels map[string]*channelEntry
	threads  map[string]*threadEntry

	listeners map[int]func(channelID string)
	nextSub   int

	clock  clock.Clock
	logger *zap.Logger
}

// NewChannelStore, boş bir ChannelStore oluşturur.
func NewChannelStore(clk clock.Clock, logger *zap.Logger) *ChannelStore {
	if clk == nil {
		clk = clock.New()
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &ChannelStore{
		channels:  make(map[string]*channelEntry),
		threads:   make(map[string]*threadEntry),
		listeners: make(map[int]func(string)),
		clock:     clk,
		logger:    logger.Named("channels"),
	}
}

// Subscribe, kanal özeti değiştiğinde çağrılacak listener kaydeder.
// Thread sayaçları değiştiğinde listener thread'in kanal ID'si ile çağrılır.
func (s *ChannelStore) Subscribe(fn func(channelID string)) func() {
	s.mu.Lock()
	id := s.nextSub
	s.nextSub++
	s.listeners[id] = fn
	s.mu.Unlock()

	return func() {
		s.mu.Lock()
		delete(s.listeners, id)
		s.mu.Unlock()
	}
}

func (s *ChannelStore) update(fn func() []string) {
	s.mu.Lock()
	changed := fn()
	var fns []func(string)
	if len(changed) > 0 {
		ids := make([]int, 0, len(s.listeners))
		for id := range s.listeners {
			ids = append(ids, id)
		}
		sort.Ints(ids)
		for _, id := range ids {
			fns = append(fns, s.listeners[id])
		}
	}
	s.mu.Unlock()

	for _, channelID := range changed {
		for _, fn := range fns {
			fn(channelID)
		}
	}
}

// ApplySnapshot, workspace'in kanal listesini sunucudan gelen snapshot ile
// günceller. requestedAt'ten sonra canlı olarak değişmiş kanalların
// sayaçları ve yıldız durumu korunur. Snapshot'ta olmayan kanallar silinir.
func (s *ChannelStore) ApplySnapshot(workspaceID string, summaries []models.ChannelSummary, requestedAt time.Time) {
	s.update(func() []string {
		var changed []string
		present := make(map[string]struct{}, len(summaries))

		for _, incoming := range summaries {
			incoming.WorkspaceID = workspaceID
			present[incoming.ID] = struct{}{}
			if incoming.UnreadCount < 0 {
				incoming.UnreadCount = 0
			}
			if incoming.NotificationCount < 0 {
				incoming.NotificationCount = 0
			}

			entry, ok := s.channels[incoming.ID]
			switch {
			case !ok:
				s.channels[incoming.ID] = &channelEntry{
					summary: incoming,
					counted: make(map[string]struct{}),
				}
			case entry.liveAt.After(requestedAt):
				entry.summary.Name = incoming.Name
				entry.summary.WorkspaceID = workspaceID
				s.logger.Debug("kept live counters over stale snapshot", zap.String("channel_id", incoming.ID))
			default:
				entry.summary = incoming
				entry.counted = make(map[string]struct{})
			}
			changed = append(changed, incoming.ID)
		}

		for id, entry := range s.channels {
			if entry.summary.WorkspaceID != workspaceID {
				continue
			}
			if _, ok := present[id]; ok {
				continue
			}
			if entry.liveAt.After(requestedAt) {
				continue
			}
			delete(s.channels, id)
			changed = append(changed, id)
		}
		sort.Strings(changed)
		return changed
	})
}

// UpsertChannel, tek bir kanal özetini yazar (ör. yeni kanal oluşturulduğunda).
func (s *ChannelStore) UpsertChannel(summary models.ChannelSummary) {
	s.update(func() []string {
		if summary.UnreadCount < 0 {
			summary.UnreadCount = 0
		}
		if summary.NotificationCount < 0 {
			summary.NotificationCount = 0
		}
		entry, ok := s.channels[summary.ID]
		if !ok {
			entry = &channelEntry{counted: make(map[string]struct{})}
			s.channels[summary.ID] = entry
		}
		entry.summary = summary
		entry.liveAt = s.clock.Now()
		return []string{summary.ID}
	})
}

// RemoveChannel, kanalı store'dan çıkarır.
func (s *ChannelStore) RemoveChannel(channelID string) {
	s.update(func() []string {
		if _, ok := s.channels[channelID]; !ok {
			return nil
		}
		delete(s.channels, channelID)
		return []string{channelID}
	})
}

// RecordMessage, kanala gelen yeni bir mesajı okunmamış olarak sayar.
//
// Aynı mesaj ID'si son okumadan bu yana zaten sayıldıysa no-op'tur.
// Kullanıcının kendi mesajları ve kanala gönderilmeyen thread cevapları
// sayılmaz. Mesaj mevcut kullanıcıdan bahsediyorsa notification_count da artar.
func (s *ChannelStore) RecordMessage(msg models.Message, currentUserID string) bool {
	var counted bool
	s.update(func() []string {
		if msg.UserID == currentUserID {
			return nil
		}
		if msg.IsReply() && !msg.AlsoSendToChannel {
			return nil
		}
		entry, ok := s.channels[msg.ChannelID]
		if !ok {
			return nil
		}
		if _, dup := entry.counted[msg.ID]; dup {
			return nil
		}
		entry.counted[msg.ID] = struct{}{}
		entry.summary.UnreadCount++
		if mentions(msg, currentUserID) {
			entry.summary.NotificationCount++
		}
		entry.liveAt = s.clock.Now()
		counted = true
		return []string{msg.ChannelID}
	})
	return counted
}

// SetUnread, sunucunun bildirdiği sayaçları yazar (channel.unread_changed).
// Negatif değerler 0'a çekilir.
func (s *ChannelStore) SetUnread(channelID string, unread, notifications int, lastReadID *string) bool {
	var ok bool
	s.update(func() []string {
		entry, exists := s.channels[channelID]
		if !exists {
			return nil
		}
		if unread < 0 {
			unread = 0
		}
		if notifications < 0 {
			notifications = 0
		}
		entry.summary.UnreadCount = unread
		entry.summary.NotificationCount = notifications
		if lastReadID != nil {
			id := *lastReadID
			entry.summary.LastReadMessageID = &id
		}
		if unread == 0 {
			entry.counted = make(map[string]struct{})
		}
		entry.liveAt = s.clock.Now()
		ok = true
		return []string{channelID}
	})
	return ok
}

// MarkRead, kanalın sayaçlarını tam olarak sıfırlar.
func (s *ChannelStore) MarkRead(channelID string, lastReadID *string) bool {
	var ok bool
	s.update(func() []string {
		entry, exists := s.channels[channelID]
		if !exists {
			return nil
		}
		entry.summary.UnreadCount = 0
		entry.summary.NotificationCount = 0
		if lastReadID != nil {
			id := *lastReadID
			entry.summary.LastReadMessageID = &id
		}
		entry.counted = make(map[string]struct{})
		entry.liveAt = s.clock.Now()
		ok = true
		return []string{channelID}
	})
	return ok
}

// SetStarred, kanalın yıldız durumunu yazar ve önceki değeri döner.
func (s *ChannelStore) SetStarred(channelID string, starred bool) (prev bool, ok bool) {
	s.update(func() []string {
		entry, exists := s.channels[channelID]
		if !exists {
			return nil
		}
		prev, ok = entry.summary.IsStarred, true
		entry.summary.IsStarred = starred
		entry.liveAt = s.clock.Now()
		return []string{channelID}
	})
	return prev, ok
}

// TrackThread, kullanıcının takip ettiği bir thread'i kaydeder.
// Sadece takip edilen thread'lerin okunmamış sayacı tutulur.
func (s *ChannelStore) TrackThread(summary models.ThreadSummary) {
	s.update(func() []string {
		if summary.UnreadCount < 0 {
			summary.UnreadCount = 0
		}
		entry, ok := s.threads[summary.ParentID]
		if !ok {
			entry = &threadEntry{counted: make(map[string]struct{})}
			s.threads[summary.ParentID] = entry
		}
		entry.summary = summary
		return []string{summary.ChannelID}
	})
}

// RecordThreadReply, takip edilen bir thread'e gelen cevabı okunmamış sayar.
func (s *ChannelStore) RecordThreadReply(reply models.Message, currentUserID string) bool {
	var counted bool
	s.update(func() []string {
		if !reply.IsReply() || reply.UserID == currentUserID {
			return nil
		}
		entry, ok := s.threads[*reply.ThreadParentID]
		if !ok {
			return nil
		}
		if _, dup := entry.counted[reply.ID]; dup {
			return nil
		}
		entry.counted[reply.ID] = struct{}{}
		entry.summary.UnreadCount++
		counted = true
		return []string{entry.summary.ChannelID}
	})
	return counted
}

// MarkThreadRead, thread'in okunmamış sayacını tam olarak sıfırlar.
func (s *ChannelStore) MarkThreadRead(parentID string) bool {
	var ok bool
	s.update(func() []string {
		entry, exists := s.threads[parentID]
		if !exists {
			return nil
		}
		entry.summary.UnreadCount = 0
		entry.counted = make(map[string]struct{})
		ok = true
		return []string{entry.summary.ChannelID}
	})
	return ok
}

// Channel, kanal özetinin kopyasını döner.
func (s *ChannelStore) Channel(channelID string) (models.ChannelSummary, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	entry, ok := s.channels[channelID]
	if !ok {
		return models.ChannelSummary{}, false
	}
	return cloneSummary(entry.summary), true
}

// Channels, workspace'in kanallarını ID sırasıyla döner.
// workspaceID boşsa bütün kanallar döner.
func (s *ChannelStore) Channels(workspaceID string) []models.ChannelSummary {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]models.ChannelSummary, 0, len(s.channels))
	for _, entry := range s.channels {
		if workspaceID != "" && entry.summary.WorkspaceID != workspaceID {
			continue
		}
		out = append(out, cloneSummary(entry.summary))
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

// Workspaces, store'da kanalı bulunan workspace ID'lerini döner.
func (s *ChannelStore) Workspaces() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	seen := make(map[string]struct{})
	var out []string
	for _, entry := range s.channels {
		if _, ok := seen[entry.summary.WorkspaceID]; ok {
			continue
		}
		seen[entry.summary.WorkspaceID] = struct{}{}
		out = append(out, entry.summary.WorkspaceID)
	}
	sort.Strings(out)
	return out
}

// Thread, takip edilen thread'in özetini döner.
func (s *ChannelStore) Thread(parentID string) (models.ThreadSummary, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	entry, ok := s.threads[parentID]
	if !ok {
		return models.ThreadSummary{}, false
	}
	return entry.summary, true
}

// Threads, takip edilen thread'leri parent ID sırasıyla döner.
func (s *ChannelStore) Threads() []models.ThreadSummary {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]models.ThreadSummary, 0, len(s.threads))
	for _, entry := range s.threads {
		out = append(out, entry.summary)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ParentID < out[j].ParentID })
	return out
}

func mentions(msg models.Message, userID string) bool {
	for _, id := range msg.Mentions {
		if id == userID {
			return true
		}
	}
	return false
}

func cloneSummary(in models.ChannelSummary) models.ChannelSummary {
	out := in
	if in.LastReadMessageID != nil {
		id := *in.LastReadMessageID
		out.LastReadMessageID = &id
	}
	return out
}
