package api

import (
	"context"
	"net/http"
	"net/url"

	"github.com/joss/fedcli/internal/domain"
)

// History returns the messages of a conversation, oldest first.
func (c *Client) History(ctx context.Context, conversationID string) ([]domain.ChatMessage, error) {
	var msgs []domain.ChatMessage
	if err := c.do(ctx, http.MethodGet, "chat/history/"+url.PathEscape(conversationID), nil, &msgs); err != nil {
		return nil, err
	}
	return msgs, nil
}

// Summaries returns one row per club-manager conversation.
func (c *Client) Summaries(ctx context.Context) ([]domain.ChatSummary, error) {
	var out []domain.ChatSummary
	if err := c.do(ctx, http.MethodGet, "chat/summaries", nil, &out); err != nil {
		return nil, err
	}
	return out, nil
}

// Assign asks the backend to make the caller the handler of a conversation.
// A conversation already held by someone else yields an error wrapping ErrConflict.
func (c *Client) Assign(ctx context.Context, conversationID string) (string, error) {
	return c.doText(ctx, http.MethodPost, "chat/assign/"+url.PathEscape(conversationID), struct{}{})
}

// Release gives up the assignment of a conversation.
func (c *Client) Release(ctx context.Context, conversationID string) (string, error) {
	return c.doText(ctx, http.MethodPost, "chat/release/"+url.PathEscape(conversationID), struct{}{})
}
