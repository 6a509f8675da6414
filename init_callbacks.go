// Package main — Hub callback wire-up.
//
// registerHubCallbacks, push bağlantısı olaylarını service katmanına bağlar.
// Hub ws paketinde yaşıyor, resync ise service katmanında; hub'ın
// service'lere bağımlı olmasını istemiyoruz. main package wire-up noktasıdır.
package main

import (
	"context"
	"time"

	"go.uber.org/zap"

	"github.com/akinalp/mqvi-sync/handlers"
	"github.com/akinalp/mqvi-sync/services"
	"github.com/akinalp/mqvi-sync/ws"
)

// resyncTimeout, reconnect sonrası bir workspace'in resync'ine verilen süre.
const resyncTimeout = 2 * time.Minute

// registerHubCallbacks, reconnect ve durum değişikliği callback'lerini register eder.
//
// Bağlantı koptuğu sürede kaçırılan event'ler replay edilmez; reconnect
// sonrası Resync workspace'in kanal listesini ve açık scope'larını
// sunucudan yeniden çeker.
func registerHubCallbacks(
	ctx context.Context,
	hub *ws.Hub,
	syncService services.SyncService,
	feed *handlers.ChangeFeed,
	logger *zap.Logger,
) {
	hub.OnReconnect(func(workspaceID string) {
		rctx, cancel := context.WithTimeout(ctx, resyncTimeout)
		defer cancel()

		if err := syncService.Resync(rctx, workspaceID); err != nil {
			logger.Warn("resync after reconnect failed",
				zap.String("workspace_id", workspaceID),
				zap.Error(err),
			)
		}
	})

	hub.OnStateChange(func(workspaceID string, s ws.State) {
		feed.Publish(handlers.TopicConnection, workspaceID)
	})
}
