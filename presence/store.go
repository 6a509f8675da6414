// Package presence, "kim nerede yazıyor" ve "kim çevrimiçi" bilgisini tutan
// geçici (ephemeral) store'u içerir.
//
// İki bağımsız map vardır:
//   - typing: (kanal, kullanıcı) → TypingEntry, TTL ile süresi dolar
//   - presence: kullanıcı → PresenceEntry, last-write-wins, TTL yok
//
// Tek bir arka plan sweep'i süresi dolan typing entry'lerini siler ve sadece
// gerçekten bir şey silindiyse subscriber'lara haber verir. Sweep aralığı
// gerçek zamandan kaba olduğu için okumalar her zaman expires_at > now
// filtresi uygular.
package presence

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/benbjohnson/clock"
	"go.uber.org/zap"

	"github.com/akinalp/mqvi-sync/models"
	"github.com/akinalp/mqvi-sync/pkg/cache"
	"github.com/akinalp/mqvi-sync/pkg/metrics"
)

// Varsayılan süreler.
const (
	DefaultTypingTTL     = 5 * time.Second
	DefaultSweepInterval = 1 * time.Second
)

// ChangeKind, subscriber'a bildirilen değişikliğin türü.
type ChangeKind string

const (
	ChangeTyping   ChangeKind = "typing"
	ChangePresence ChangeKind = "presence"
)

// Change, store'daki bir değişikliği anlatır.
// Sweep kaynaklı değişikliklerde ChannelID ve UserID boştur.
type Change struct {
	Kind      ChangeKind
	ChannelID string
	UserID    string
}

// Snapshot, store'un belirli bir andaki okunabilir kopyası.
type Snapshot struct {
	Typing   map[string][]models.TypingEntry `json:"typing"`
	Presence map[string]models.PresenceEntry `json:"presence"`
	At       time.Time                       `json:"at"`
}

type typingKey struct {
	channelID string
	userID    string
}

// Options, Store ayarları. Sıfır değerler varsayılanlarla doldurulur.
type Options struct {
	TypingTTL     time.Duration
	SweepInterval time.Duration
	Clock         clock.Clock
	Logger        *zap.Logger
	Metrics       *metrics.Metrics
}

// Store, presence/typing store.
// Oturum başına bir kez oluşturulur; global state yoktur.
type Store struct {
	typing *cache.TTLCache[typingKey, string]

	mu        sync.RWMutex
	presence  map[string]models.PresenceEntry
	listeners map[int]func(Change)
	nextSub   int

	sweepInterval time.Duration
	clock         clock.Clock
	logger        *zap.Logger
	metrics       *metrics.Metrics
}

// New, yeni bir Store oluşturur.
func New(opts Options) *Store {
	if opts.TypingTTL <= 0 {
		opts.TypingTTL = DefaultTypingTTL
	}
	if opts.SweepInterval <= 0 {
		opts.SweepInterval = DefaultSweepInterval
	}
	if opts.Clock == nil {
		opts.Clock = clock.New()
	}
	if opts.Logger == nil {
		opts.Logger = zap.NewNop()
	}
	return &Store{
		typing:        cache.New[typingKey, string](opts.Clock, opts.TypingTTL),
		presence:      make(map[string]models.PresenceEntry),
		listeners:     make(map[int]func(Change)),
		sweepInterval: opts.SweepInterval,
		clock:         opts.Clock,
		logger:        opts.Logger.Named("presence"),
		metrics:       opts.Metrics,
	}
}

// Subscribe, her değişiklikte çağrılacak listener kaydeder.
// Dönen fonksiyon aboneliği iptal eder.
func (s *Store) Subscribe(fn func(Change)) func() {
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

func (s *Store) notify(c Change) {
	s.mu.RLock()
	ids := make([]int, 0, len(s.listeners))
	for id := range s.listeners {
		ids = append(ids, id)
	}
	sort.Ints(ids)
	fns := make([]func(Change), 0, len(ids))
	for _, id := range ids {
		fns = append(fns, s.listeners[id])
	}
	s.mu.RUnlock()

	for _, fn := range fns {
		fn(c)
	}
}

// StartTyping, typing entry'sini ekler veya TTL'ini yeniden kurar.
func (s *Store) StartTyping(channelID, userID, displayName string) models.TypingEntry {
	expiresAt := s.typing.Set(typingKey{channelID: channelID, userID: userID}, displayName)
	s.metrics.SetTypingEntries(s.typing.Len())
	s.notify(Change{Kind: ChangeTyping, ChannelID: channelID, UserID: userID})
	return models.TypingEntry{
		ChannelID:   channelID,
		UserID:      userID,
		DisplayName: displayName,
		ExpiresAt:   expiresAt,
	}
}

// StopTyping, typing entry'sini hemen siler.
func (s *Store) StopTyping(channelID, userID string) bool {
	if !s.typing.Delete(typingKey{channelID: channelID, userID: userID}) {
		return false
	}
	s.metrics.SetTypingEntries(s.typing.Len())
	s.notify(Change{Kind: ChangeTyping, ChannelID: channelID, UserID: userID})
	return true
}

// ClearUser, kullanıcının bütün kanallardaki typing entry'lerini siler
// (ör. kullanıcı mesajı gönderdiğinde veya offline olduğunda).
func (s *Store) ClearUser(userID string) int {
	removed := s.typing.DeleteFunc(func(k typingKey) bool { return k.userID == userID })
	if removed > 0 {
		s.metrics.SetTypingEntries(s.typing.Len())
		s.notify(Change{Kind: ChangeTyping, UserID: userID})
	}
	return removed
}

// SetPresence, kullanıcının durumunu koşulsuz yazar (last-write-wins).
func (s *Store) SetPresence(userID string, status models.UserStatus) {
	if !status.IsKnown() {
		s.logger.Debug("unknown presence status", zap.String("user_id", userID), zap.String("status", string(status)))
	}
	s.mu.Lock()
	s.presence[userID] = models.PresenceEntry{
		UserID:    userID,
		Status:    status,
		UpdatedAt: s.clock.Now(),
	}
	s.mu.Unlock()

	s.notify(Change{Kind: ChangePresence, UserID: userID})
}

// Presence, kullanıcının son bilinen durumunu döner.
func (s *Store) Presence(userID string) (models.PresenceEntry, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	e, ok := s.presence[userID]
	return e, ok
}

// TypingIn, kanalda şu an yazan kullanıcıları döner (expires_at > now).
func (s *Store) TypingIn(channelID string) []models.TypingEntry {
	var out []models.TypingEntry
	s.typing.Range(func(k typingKey, name string, expiresAt time.Time) bool {
		if k.channelID == channelID {
			out = append(out, models.TypingEntry{
				ChannelID:   k.channelID,
				UserID:      k.userID,
				DisplayName: name,
				ExpiresAt:   expiresAt,
			})
		}
		return true
	})
	sortTyping(out)
	return out
}

// Snapshot, store'un şu anki okunabilir kopyasını döner.
func (s *Store) Snapshot() Snapshot {
	snap := Snapshot{
		Typing:   make(map[string][]models.TypingEntry),
		Presence: make(map[string]models.PresenceEntry),
		At:       s.clock.Now(),
	}
	s.typing.Range(func(k typingKey, name string, expiresAt time.Time) bool {
		snap.Typing[k.channelID] = append(snap.Typing[k.channelID], models.TypingEntry{
			ChannelID:   k.channelID,
			UserID:      k.userID,
			DisplayName: name,
			ExpiresAt:   expiresAt,
		})
		return true
	})
	for ch := range snap.Typing {
		sortTyping(snap.Typing[ch])
	}

	s.mu.RLock()
	for id, e := range s.presence {
		snap.Presence[id] = e
	}
	s.mu.RUnlock()
	return snap
}

// Sweep, süresi dolan typing entry'lerini siler. En az bir entry
// silindiyse subscriber'lara haber verir. Silinen sayıyı döner.
func (s *Store) Sweep() int {
	removed := s.typing.Sweep()
	if removed == 0 {
		return 0
	}
	s.metrics.SetTypingEntries(s.typing.Len())
	s.notify(Change{Kind: ChangeTyping})
	return removed
}

// Run, ctx iptal edilene kadar her sweep aralığında Sweep çağırır.
func (s *Store) Run(ctx context.Context) error {
	ticker := s.clock.Ticker(s.sweepInterval)
	defer ticker.Stop()

	s.logger.Debug("typing sweep started", zap.Duration("interval", s.sweepInterval))
	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
			s.Sweep()
		}
	}
}

func sortTyping(entries []models.TypingEntry) {
	sort.Slice(entries, func(i, j int) bool {
		if entries[i].DisplayName != entries[j].DisplayName {
			return entries[i].DisplayName < entries[j].DisplayName
		}
		return entries[i].UserID < entries[j].UserID
	})
}
