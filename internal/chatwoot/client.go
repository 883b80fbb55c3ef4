// Package chatwoot is a client for the Chatwoot agent API, used by the
// webhook bridge to dispatch pipeline results back into conversations.
package chatwoot

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"

	"github.com/levhaolam/support-engine/internal/domain"
)

// ClientOption configures the client.
type ClientOption func(*Client)

// WithHTTPClient sets a custom HTTP client.
func WithHTTPClient(httpClient *http.Client) ClientOption {
	return func(c *Client) {
		c.httpClient = httpClient
	}
}

// Client talks to one Chatwoot account.
type Client struct {
	baseURL    string
	accountID  int
	token      string
	httpClient *http.Client
}

var _ domain.Messenger = (*Client)(nil)

// NewClient creates a Chatwoot API client. baseURL is the Chatwoot
// installation root, e.g. https://app.chatwoot.com.
func NewClient(baseURL string, accountID int, token string, opts ...ClientOption) *Client {
	c := &Client{
		baseURL:    strings.TrimSuffix(baseURL, "/"),
		accountID:  accountID,
		token:      token,
		httpClient: http.DefaultClient,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// SendMessage posts a message into a conversation. private selects a private
// note visible only to agents.
func (c *Client) SendMessage(ctx context.Context, conversationID int, text string, private bool) error {
	payload := map[string]any{
		"content":      text,
		"message_type": "outgoing",
		"private":      private,
	}
	return c.post(ctx, fmt.Sprintf("/conversations/%d/messages", conversationID), payload)
}

// SetStatus changes a conversation's status (open, resolved, pending).
func (c *Client) SetStatus(ctx context.Context, conversationID int, status string) error {
	payload := map[string]any{"status": status}
	return c.post(ctx, fmt.Sprintf("/conversations/%d/toggle_status", conversationID), payload)
}

// AddLabels adds labels to a conversation.
func (c *Client) AddLabels(ctx context.Context, conversationID int, labels []string) error {
	payload := map[string]any{"labels": labels}
	return c.post(ctx, fmt.Sprintf("/conversations/%d/labels", conversationID), payload)
}

// Assign assigns a conversation to an agent.
func (c *Client) Assign(ctx context.Context, conversationID, agentID int) error {
	payload := map[string]any{"assignee_id": agentID}
	return c.post(ctx, fmt.Sprintf("/conversations/%d/assignments", conversationID), payload)
}

func (c *Client) post(ctx context.Context, path string, payload any) error {
	body, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("failed to marshal request: %w", err)
	}

	url := fmt.Sprintf("%s/api/v1/accounts/%d%s", c.baseURL, c.accountID, path)
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("api_access_token", c.token)

	resp, err := c.httpClient.Do(httpReq)
	if err != nil {
		return fmt.Errorf("request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		respBody, _ := io.ReadAll(resp.Body)
		return fmt.Errorf("chatwoot API error (status %d): %s", resp.StatusCode, string(respBody))
	}
	return nil
}
