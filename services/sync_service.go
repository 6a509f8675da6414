package services

import (
	"context"
	"fmt"

	"github.com/benbjohnson/clock"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/akinalp/mqvi-sync/models"
	"github.com/akinalp/mqvi-sync/repository"
	"github.com/akinalp/mqvi-sync/store"
)

// SyncService, scope'ları sunucudan yükleyen ve yeniden senkronize eden servis.
//
// Push bağlantısı koptuğunda kaçırılan event'ler stream'den geri alınamaz;
// yeniden bağlanınca Resync workspace'in bütün materialized scope'larını
// ve kanal listesini sunucudan tekrar çeker.
type SyncService interface {
	LoadChannel(ctx context.Context, channelID string) error
	LoadOlder(ctx context.Context, channelID string) (bool, error)
	OpenThread(ctx context.Context, parentID string) error
	LoadMoreReplies(ctx context.Context, parentID string) (bool, error)
	CloseThread(parentID string)
	LoadUnreadFeed(ctx context.Context, workspaceID string) error
	LoadMoreUnread(ctx context.Context, workspaceID string) (bool, error)
	RefreshChannels(ctx context.Context, workspaceID string) error
	Resync(ctx context.Context, workspaceID string) error
}

type syncService struct {
	messageRepo   repository.MessageRepository
	channelRepo   repository.ChannelRepository
	readStateRepo repository.ReadStateRepository
	messages      *store.MessageStore
	channels      *store.ChannelStore
	pageSize      int
	clock         clock.Clock
	logger        *zap.Logger
}

// NewSyncService, constructor.
func NewSyncService(
	messageRepo repository.MessageRepository,
	channelRepo repository.ChannelRepository,
	readStateRepo repository.ReadStateRepository,
	messages *store.MessageStore,
	channels *store.ChannelStore,
	clk clock.Clock,
	logger *zap.Logger,
) SyncService {
	if clk == nil {
		clk = clock.New()
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &syncService{
		messageRepo:   messageRepo,
		channelRepo:   channelRepo,
		readStateRepo: readStateRepo,
		messages:      messages,
		channels:      channels,
		pageSize:      repository.DefaultPageSize,
		clock:         clk,
		logger:        logger.Named("sync"),
	}
}

// LoadChannel, kanalın en yeni sayfasını çeker ve timeline'ı onunla değiştirir.
func (s *syncService) LoadChannel(ctx context.Context, channelID string) error {
	mark := s.messages.Mark()
	page, err := s.messageRepo.ListChannel(ctx, channelID, "", s.pageSize)
	if err != nil {
		return fmt.Errorf("failed to load channel %s: %w", channelID, err)
	}
	s.messages.ReplaceSince(store.ChannelScope(channelID), *page, mark)
	return nil
}

// LoadOlder, timeline'ın başına bir eski sayfa ekler.
// Daha eski mesaj yoksa veya kanal yüklü değilse false döner.
func (s *syncService) LoadOlder(ctx context.Context, channelID string) (bool, error) {
	key := store.ChannelScope(channelID)
	state, ok := s.messages.State(key)
	if !ok || !state.HasMore {
		return false, nil
	}
	page, err := s.messageRepo.ListChannel(ctx, channelID, state.Cursor, s.pageSize)
	if err != nil {
		return false, fmt.Errorf("failed to load older messages: %w", err)
	}
	return s.messages.PrependPage(key, *page), nil
}

// OpenThread, thread'in ilk cevap sayfasını çeker (thread paneli açıldı).
func (s *syncService) OpenThread(ctx context.Context, parentID string) error {
	mark := s.messages.Mark()
	page, err := s.messageRepo.ListThread(ctx, parentID, "", s.pageSize)
	if err != nil {
		return fmt.Errorf("failed to open thread %s: %w", parentID, err)
	}
	s.messages.ReplaceSince(store.ThreadScope(parentID), *page, mark)
	return nil
}

// LoadMoreReplies, thread'in sonuna bir sonraki cevap sayfasını ekler.
func (s *syncService) LoadMoreReplies(ctx context.Context, parentID string) (bool, error) {
	key := store.ThreadScope(parentID)
	state, ok := s.messages.State(key)
	if !ok || !state.HasMore {
		return false, nil
	}
	page, err := s.messageRepo.ListThread(ctx, parentID, state.Cursor, s.pageSize)
	if err != nil {
		return false, fmt.Errorf("failed to load replies: %w", err)
	}
	return s.messages.AppendPage(key, *page), nil
}

// CloseThread, thread scope'unu cache'ten çıkarır. Uçuştaki mutation'lar
// beklenmez; sonuçları artık olmayan scope'a uygulanınca no-op olur.
func (s *syncService) CloseThread(parentID string) {
	s.messages.Evict(store.ThreadScope(parentID))
}

// LoadUnreadFeed, workspace'in okunmamış akışının ilk sayfasını çeker.
func (s *syncService) LoadUnreadFeed(ctx context.Context, workspaceID string) error {
	mark := s.messages.Mark()
	page, err := s.messageRepo.ListUnreadFeed(ctx, workspaceID, "", s.pageSize)
	if err != nil {
		return fmt.Errorf("failed to load unread feed: %w", err)
	}
	s.messages.ReplaceSince(store.UnreadFeedScope(workspaceID), *page, mark)
	return nil
}

// LoadMoreUnread, okunmamış akışının sonuna bir sonraki sayfayı ekler.
func (s *syncService) LoadMoreUnread(ctx context.Context, workspaceID string) (bool, error) {
	key := store.UnreadFeedScope(workspaceID)
	state, ok := s.messages.State(key)
	if !ok || !state.HasMore {
		return false, nil
	}
	page, err := s.messageRepo.ListUnreadFeed(ctx, workspaceID, state.Cursor, s.pageSize)
	if err != nil {
		return false, fmt.Errorf("failed to load unread feed: %w", err)
	}
	return s.messages.AppendPage(key, *page), nil
}

// RefreshChannels, kanal listesini, thread sayaçlarını ve okunmamış
// sayaçları paralel çeker ve snapshot olarak uygular.
//
// İstek anı snapshot'a requestedAt olarak verilir: fetch sürerken canlı
// event'lerle değişen kanalların sayaçları ezilmez.
func (s *syncService) RefreshChannels(ctx context.Context, workspaceID string) error {
	requestedAt := s.clock.Now()

	var (
		channels []models.ChannelSummary
		threads  []models.ThreadSummary
		unreads  []models.UnreadInfo
	)
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		var err error
		channels, err = s.channelRepo.List(gctx, workspaceID)
		return err
	})
	g.Go(func() error {
		var err error
		threads, err = s.channelRepo.ListThreads(gctx, workspaceID)
		return err
	})
	g.Go(func() error {
		var err error
		unreads, err = s.readStateRepo.GetUnreadCounts(gctx, workspaceID)
		return err
	})
	if err := g.Wait(); err != nil {
		return fmt.Errorf("failed to refresh channels: %w", err)
	}

	// Kanal listesi sayaçları taşımayabilir; okunmamış bilgisi ayrı endpoint'ten gelir.
	byChannel := make(map[string]models.UnreadInfo, len(unreads))
	for _, u := range unreads {
		byChannel[u.ChannelID] = u
	}
	for i := range channels {
		channels[i].WorkspaceID = workspaceID
		if u, ok := byChannel[channels[i].ID]; ok {
			channels[i].UnreadCount = u.UnreadCount
			channels[i].NotificationCount = u.NotificationCount
		}
	}

	s.channels.ApplySnapshot(workspaceID, channels, requestedAt)
	for _, t := range threads {
		s.channels.TrackThread(t)
	}
	return nil
}

// Resync, yeniden bağlanma sonrası workspace'i sunucu durumuna getirir:
// kanal listesi ve workspace'e ait her materialized scope paralel olarak
// yeniden çekilir. Gap-filling yapılmaz; scope'lar taze sayfayla değiştirilir,
// fetch sırasında gelen event'ler korunur.
func (s *syncService) Resync(ctx context.Context, workspaceID string) error {
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		return s.RefreshChannels(gctx, workspaceID)
	})

	keys := s.scopesOf(workspaceID)
	for _, key := range keys {
		g.Go(func() error {
			return s.refetch(gctx, key)
		})
	}

	if err := g.Wait(); err != nil {
		return err
	}
	s.logger.Info("workspace resynced",
		zap.String("workspace_id", workspaceID),
		zap.Int("scopes", len(keys)),
	)
	return nil
}

// scopesOf, workspace'e ait materialized scope'ları döner.
// Kanal timeline'ı ve okunmamış akış doğrudan, thread'ler parent mesajın
// kanalı üzerinden eşlenir.
func (s *syncService) scopesOf(workspaceID string) []store.ScopeKey {
	var out []store.ScopeKey
	for _, key := range s.messages.Keys() {
		switch key.Kind {
		case store.ScopeChannel:
			if s.inWorkspace(key.ID, workspaceID) {
				out = append(out, key)
			}
		case store.ScopeThread:
			channelID := s.threadChannel(key)
			if channelID == "" || s.inWorkspace(channelID, workspaceID) {
				out = append(out, key)
			}
		case store.ScopeUnreadFeed:
			if key.ID == workspaceID {
				out = append(out, key)
			}
		}
	}
	return out
}

func (s *syncService) inWorkspace(channelID, workspaceID string) bool {
	ch, ok := s.channels.Channel(channelID)
	return ok && ch.WorkspaceID == workspaceID
}

func (s *syncService) threadChannel(key store.ScopeKey) string {
	if parent, _, ok := s.messages.Find(key.ID); ok {
		return parent.ChannelID
	}
	if t, ok := s.channels.Thread(key.ID); ok {
		return t.ChannelID
	}
	if msgs := s.messages.Messages(key); len(msgs) > 0 {
		return msgs[0].ChannelID
	}
	return ""
}

// refetch, scope'u ilk sayfadan yeniden yükler. Thread ve okunmamış akış
// ileri yönde sayfalandığı için önceden yüklenmiş sayfa sayısı kadar devam edilir.
func (s *syncService) refetch(ctx context.Context, key store.ScopeKey) error {
	prev, ok := s.messages.State(key)
	if !ok {
		return nil
	}

	// Fetch sürerken read loop event uygulamaya devam eder; mark'tan
	// sonraki canlı yazmalar taze sayfanın üzerine uygulanır.
	mark := s.messages.Mark()
	var (
		page *models.MessagePage
		err  error
	)
	switch key.Kind {
	case store.ScopeChannel:
		page, err = s.messageRepo.ListChannel(ctx, key.ID, "", s.pageSize)
	case store.ScopeThread:
		page, err = s.messageRepo.ListThread(ctx, key.ID, "", s.pageSize)
	case store.ScopeUnreadFeed:
		page, err = s.messageRepo.ListUnreadFeed(ctx, key.ID, "", s.pageSize)
	}
	if err != nil {
		return fmt.Errorf("failed to refetch %s: %w", key, err)
	}
	if page == nil || !s.messages.Materialized(key) {
		return nil
	}
	s.messages.ReplaceSince(key, *page, mark)

	if key.Kind == store.ScopeChannel {
		return nil
	}
	for i := 1; i < prev.Pages; i++ {
		more, err := s.loadForward(ctx, key)
		if err != nil {
			return err
		}
		if !more {
			break
		}
	}
	return nil
}

func (s *syncService) loadForward(ctx context.Context, key store.ScopeKey) (bool, error) {
	if key.Kind == store.ScopeThread {
		return s.LoadMoreReplies(ctx, key.ID)
	}
	return s.LoadMoreUnread(ctx, key.ID)
}
