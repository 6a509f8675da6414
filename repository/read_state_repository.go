package repository

import (
	"context"

	"github.com/akinalp/mqvi-sync/models"
)

// ReadStateRepository, okuma durumu REST işlemleri için interface.
//
// MarkChannelRead: kanalı lastReadID'ye kadar okundu işaretler (boşsa en son mesaja kadar).
// MarkThreadRead: thread'in tüm cevaplarını okundu işaretler.
// GetUnreadCounts: workspace'teki kanalların sunucu tarafı sayaçlarını döner.
type ReadStateRepository interface {
	MarkChannelRead(ctx context.Context, channelID, lastReadID string) error
	MarkThreadRead(ctx context.Context, parentID string) error
	GetUnreadCounts(ctx context.Context, workspaceID string) ([]models.UnreadInfo, error)
}
