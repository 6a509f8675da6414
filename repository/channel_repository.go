package repository

import (
	"context"

	"github.com/akinalp/mqvi-sync/models"
)

// ChannelRepository, kanal listesi REST işlemleri için interface.
type ChannelRepository interface {
	List(ctx context.Context, workspaceID string) ([]models.ChannelSummary, error)
	ListThreads(ctx context.Context, workspaceID string) ([]models.ThreadSummary, error)
	SetStarred(ctx context.Context, channelID string, starred bool) error
}
