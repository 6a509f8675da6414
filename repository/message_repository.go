package repository

import (
	"context"

	"github.com/akinalp/mqvi-sync/models"
)

// DefaultPageSize, bir sayfa fetch'inde istenen mesaj sayısı.
const DefaultPageSize = 50

// MessageRepository, mesaj REST işlemleri için interface.
//
// Listeleme cursor-based pagination kullanır:
//   - ListChannel: before = bu ID'den önceki mesajlar (boşsa en yenilerden başla)
//   - ListThread: after = bu ID'den sonraki cevaplar (boşsa ilk cevaptan başla)
//
// Her method context.Context alır: çağıran iptal ederse istek de durur.
type MessageRepository interface {
	Send(ctx context.Context, channelID string, draft models.Draft) (*models.Message, error)
	Update(ctx context.Context, messageID, content string) (*models.Message, error)
	Delete(ctx context.Context, messageID string) error
	ListChannel(ctx context.Context, channelID, before string, limit int) (*models.MessagePage, error)
	ListThread(ctx context.Context, parentID, after string, limit int) (*models.MessagePage, error)
	ListUnreadFeed(ctx context.Context, workspaceID, cursor string, limit int) (*models.MessagePage, error)
}
