package repository

import (
	"context"
	"fmt"
	"net/http"

	"github.com/akinalp/mqvi-sync/models"
)

// httpReadStateRepo, ReadStateRepository interface'inin REST implementasyonu.
type httpReadStateRepo struct {
	client *Client
}

// NewHTTPReadStateRepo, constructor: interface döner.
func NewHTTPReadStateRepo(client *Client) ReadStateRepository {
	return &httpReadStateRepo{client: client}
}

func (r *httpReadStateRepo) MarkChannelRead(ctx context.Context, channelID, lastReadID string) error {
	path := fmt.Sprintf("/channels/%s/read", escape(channelID))
	body := models.MarkReadRequest{MessageID: lastReadID}
	if err := r.client.doJSON(ctx, http.MethodPost, path, nil, body, nil); err != nil {
		return fmt.Errorf("mark channel read: %w", err)
	}
	return nil
}

func (r *httpReadStateRepo) MarkThreadRead(ctx context.Context, parentID string) error {
	path := fmt.Sprintf("/threads/%s/read", escape(parentID))
	if err := r.client.doJSON(ctx, http.MethodPost, path, nil, struct{}{}, nil); err != nil {
		return fmt.Errorf("mark thread read: %w", err)
	}
	return nil
}

func (r *httpReadStateRepo) GetUnreadCounts(ctx context.Context, workspaceID string) ([]models.UnreadInfo, error) {
	var unreads []models.UnreadInfo
	path := fmt.Sprintf("/workspaces/%s/unread-counts", escape(workspaceID))
	if err := r.client.doJSON(ctx, http.MethodGet, path, nil, nil, &unreads); err != nil {
		return nil, fmt.Errorf("get unread counts: %w", err)
	}
	return unreads, nil
}
