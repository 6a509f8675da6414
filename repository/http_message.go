package repository

import (
	"context"
	"fmt"
	"net/http"

	"github.com/akinalp/mqvi-sync/models"
)

// httpMessageRepo, MessageRepository interface'inin REST implementasyonu.
type httpMessageRepo struct {
	client *Client
}

// NewHTTPMessageRepo, constructor: interface döner.
func NewHTTPMessageRepo(client *Client) MessageRepository {
	return &httpMessageRepo{client: client}
}

func (r *httpMessageRepo) Send(ctx context.Context, channelID string, draft models.Draft) (*models.Message, error) {
	var msg models.Message
	path := fmt.Sprintf("/channels/%s/messages", escape(channelID))
	if err := r.client.doJSON(ctx, http.MethodPost, path, nil, draft, &msg); err != nil {
		return nil, fmt.Errorf("send message: %w", err)
	}
	return &msg, nil
}

func (r *httpMessageRepo) Update(ctx context.Context, messageID, content string) (*models.Message, error) {
	var msg models.Message
	path := fmt.Sprintf("/messages/%s", escape(messageID))
	body := models.UpdateMessageRequest{Content: content}
	if err := r.client.doJSON(ctx, http.MethodPatch, path, nil, body, &msg); err != nil {
		return nil, fmt.Errorf("update message: %w", err)
	}
	return &msg, nil
}

func (r *httpMessageRepo) Delete(ctx context.Context, messageID string) error {
	path := fmt.Sprintf("/messages/%s", escape(messageID))
	if err := r.client.doJSON(ctx, http.MethodDelete, path, nil, nil, nil); err != nil {
		return fmt.Errorf("delete message: %w", err)
	}
	return nil
}

func (r *httpMessageRepo) ListChannel(ctx context.Context, channelID, before string, limit int) (*models.MessagePage, error) {
	var page models.MessagePage
	path := fmt.Sprintf("/channels/%s/messages", escape(channelID))
	if err := r.client.doJSON(ctx, http.MethodGet, path, pageQuery("before", before, limit), nil, &page); err != nil {
		return nil, fmt.Errorf("list channel messages: %w", err)
	}
	return &page, nil
}

func (r *httpMessageRepo) ListThread(ctx context.Context, parentID, after string, limit int) (*models.MessagePage, error) {
	var page models.MessagePage
	path := fmt.Sprintf("/messages/%s/thread", escape(parentID))
	if err := r.client.doJSON(ctx, http.MethodGet, path, pageQuery("after", after, limit), nil, &page); err != nil {
		return nil, fmt.Errorf("list thread replies: %w", err)
	}
	return &page, nil
}

func (r *httpMessageRepo) ListUnreadFeed(ctx context.Context, workspaceID, cursor string, limit int) (*models.MessagePage, error) {
	var page models.MessagePage
	path := fmt.Sprintf("/workspaces/%s/unread", escape(workspaceID))
	if err := r.client.doJSON(ctx, http.MethodGet, path, pageQuery("cursor", cursor, limit), nil, &page); err != nil {
		return nil, fmt.Errorf("list unread feed: %w", err)
	}
	return &page, nil
}
