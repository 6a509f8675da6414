package repository

import (
	"context"
	"fmt"
	"net/http"
)

// httpReactionRepo, ReactionRepository interface'inin REST implementasyonu.
type httpReactionRepo struct {
	client *Client
}

// NewHTTPReactionRepo, constructor: interface döner.
func NewHTTPReactionRepo(client *Client) ReactionRepository {
	return &httpReactionRepo{client: client}
}

func (r *httpReactionRepo) Add(ctx context.Context, messageID, emoji string) error {
	path := fmt.Sprintf("/messages/%s/reactions/%s", escape(messageID), escape(emoji))
	if err := r.client.doJSON(ctx, http.MethodPut, path, nil, nil, nil); err != nil {
		return fmt.Errorf("add reaction: %w", err)
	}
	return nil
}

func (r *httpReactionRepo) Remove(ctx context.Context, messageID, emoji string) error {
	path := fmt.Sprintf("/messages/%s/reactions/%s", escape(messageID), escape(emoji))
	if err := r.client.doJSON(ctx, http.MethodDelete, path, nil, nil, nil); err != nil {
		return fmt.Errorf("remove reaction: %w", err)
	}
	return nil
}
