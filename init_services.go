// Package main — Store ve service katmanı başlatma.
//
// Sıralama kuralı: store'lar → dispatcher → hub → service'ler.
// Dispatcher store'lara yazar, hub gelen frame'leri dispatcher'a verir,
// typing service ise frame'leri hub üzerinden gönderir.
package main

import (
	"github.com/benbjohnson/clock"
	"go.uber.org/zap"

	"github.com/akinalp/mqvi-sync/auth"
	"github.com/akinalp/mqvi-sync/config"
	"github.com/akinalp/mqvi-sync/pkg/metrics"
	"github.com/akinalp/mqvi-sync/presence"
	"github.com/akinalp/mqvi-sync/services"
	"github.com/akinalp/mqvi-sync/store"
	"github.com/akinalp/mqvi-sync/ws"
)

// Stores, oturumun bütün local state'i. Oturum başına bir kez oluşturulur.
type Stores struct {
	Messages *store.MessageStore
	Channels *store.ChannelStore
	Presence *presence.Store
}

// Services, tüm service instance'larını tutan container struct.
type Services struct {
	Sync     services.SyncService
	Mutation services.MutationService
	Typing   services.TypingService
}

// initStores, boş store'ları oluşturur.
func initStores(cfg *config.Config, clk clock.Clock, logger *zap.Logger, m *metrics.Metrics) *Stores {
	return &Stores{
		Messages: store.NewMessageStore(clk, logger),
		Channels: store.NewChannelStore(clk, logger),
		Presence: presence.New(presence.Options{
			TypingTTL:     cfg.Presence.TypingTTL,
			SweepInterval: cfg.Presence.SweepInterval,
			Clock:         clk,
			Logger:        logger,
			Metrics:       m,
		}),
	}
}

// initHub, push bağlantılarını yöneten hub'ı kurar. Gelen frame'ler
// dispatcher'a gider; bağlantılar burada açılmaz (main.go'da Connect).
func initHub(cfg *config.Config, session *auth.Session, dispatcher *ws.Dispatcher, clk clock.Clock, logger *zap.Logger, m *metrics.Metrics) *ws.Hub {
	return ws.NewHub(ws.HubOptions{
		URL:               cfg.Push.URL,
		Token:             session.AccessToken,
		Handler:           dispatcher.HandleFrame,
		HeartbeatInterval: cfg.Push.HeartbeatInterval,
		ReadTimeout:       cfg.Push.ReadTimeout,
		BackoffMin:        cfg.Push.BackoffMin,
		BackoffMax:        cfg.Push.BackoffMax,
		Clock:             clk,
		Logger:            logger,
		Metrics:           m,
	})
}

// initServices, tüm service'leri oluşturur.
func initServices(
	cfg *config.Config,
	repos *Repositories,
	stores *Stores,
	hub *ws.Hub,
	session *auth.Session,
	clk clock.Clock,
	logger *zap.Logger,
	m *metrics.Metrics,
) *Services {
	return &Services{
		Sync: services.NewSyncService(
			repos.Message, repos.Channel, repos.ReadState,
			stores.Messages, stores.Channels,
			clk, logger,
		),
		Mutation: services.NewMutationService(
			repos.Message, repos.Reaction, repos.ReadState, repos.Channel,
			stores.Messages, stores.Channels,
			session.UserID, clk, logger, m,
		),
		Typing: services.NewTypingService(hub, stores.Channels, cfg.Presence.TypingThrottle, clk, logger),
	}
}
