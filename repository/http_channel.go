package repository

import (
	"context"
	"fmt"
	"net/http"

	"github.com/akinalp/mqvi-sync/models"
)

// httpChannelRepo, ChannelRepository interface'inin REST implementasyonu.
type httpChannelRepo struct {
	client *Client
}

// NewHTTPChannelRepo, constructor: interface döner.
func NewHTTPChannelRepo(client *Client) ChannelRepository {
	return &httpChannelRepo{client: client}
}

func (r *httpChannelRepo) List(ctx context.Context, workspaceID string) ([]models.ChannelSummary, error) {
	var channels []models.ChannelSummary
	path := fmt.Sprintf("/workspaces/%s/channels", escape(workspaceID))
	if err := r.client.doJSON(ctx, http.MethodGet, path, nil, nil, &channels); err != nil {
		return nil, fmt.Errorf("list channels: %w", err)
	}
	for i := range channels {
		channels[i].WorkspaceID = workspaceID
	}
	return channels, nil
}

func (r *httpChannelRepo) ListThreads(ctx context.Context, workspaceID string) ([]models.ThreadSummary, error) {
	var threads []models.ThreadSummary
	path := fmt.Sprintf("/workspaces/%s/threads", escape(workspaceID))
	if err := r.client.doJSON(ctx, http.MethodGet, path, nil, nil, &threads); err != nil {
		return nil, fmt.Errorf("list threads: %w", err)
	}
	return threads, nil
}

func (r *httpChannelRepo) SetStarred(ctx context.Context, channelID string, starred bool) error {
	method := http.MethodPut
	if !starred {
		method = http.MethodDelete
	}
	path := fmt.Sprintf("/channels/%s/star", escape(channelID))
	if err := r.client.doJSON(ctx, method, path, nil, nil, nil); err != nil {
		return fmt.Errorf("set starred: %w", err)
	}
	return nil
}
