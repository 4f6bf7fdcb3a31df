// Package gigboard is the Go client for the gigboard marketplace's messaging
// backend: REST access to conversations, disputes and notifications, and the
// realtime layer that keeps them live.
//
// Example:
//
//	client := gigboard.NewClient("https://api.gigboard.dev", gigboard.WithToken(token))
//	live := gigboard.NewLive(client, client.Realtime(nil), gigboard.Session{UserID: me, Token: token}, nil)
//	if err := live.Start(ctx); err != nil { ... }
//	defer live.Stop()
//
//	live.Conversations.FetchHistory(ctx, "user-42")
//	live.SendDirect(ctx, "user-42", "Draft is ready for review")
package gigboard

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"go.uber.org/zap"
)

const (
	DefaultBaseURL = "http://localhost:5000"
	DefaultTimeout = 30 * time.Second
)

// ============================================================================
// Client
// ============================================================================

// Client talks to the marketplace REST API.
type Client struct {
	token      string
	baseURL    string
	httpClient *http.Client
	log        *zap.Logger

	Users         *UsersClient
	Messages      *MessagesClient
	Disputes      *DisputesClient
	Notifications *NotificationsClient
}

type ClientOption func(*Client)

// WithBaseURL overrides the base URL passed to NewClient.
func WithBaseURL(baseURL string) ClientOption {
	return func(c *Client) { c.baseURL = strings.TrimRight(baseURL, "/") }
}

func WithToken(token string) ClientOption {
	return func(c *Client) { c.token = token }
}

func WithTimeout(timeout time.Duration) ClientOption {
	return func(c *Client) { c.httpClient.Timeout = timeout }
}

func WithHTTPClient(client *http.Client) ClientOption {
	return func(c *Client) { c.httpClient = client }
}

func WithLogger(log *zap.Logger) ClientOption {
	return func(c *Client) { c.log = log }
}

// NewClient creates a client for the API at baseURL ("" uses DefaultBaseURL).
func NewClient(baseURL string, opts ...ClientOption) *Client {
	if baseURL == "" {
		baseURL = DefaultBaseURL
	}
	c := &Client{
		baseURL: strings.TrimRight(baseURL, "/"),
		httpClient: &http.Client{
			Timeout: DefaultTimeout,
		},
		log: zap.NewNop(),
	}

	for _, opt := range opts {
		opt(c)
	}

	c.Users = &UsersClient{c: c}
	c.Messages = &MessagesClient{c: c}
	c.Disputes = &DisputesClient{c: c}
	c.Notifications = &NotificationsClient{c: c}
	return c
}

// SetToken replaces the bearer token, e.g. after a login.
func (c *Client) SetToken(token string) {
	c.token = token
}

// BaseURL returns the API base URL.
func (c *Client) BaseURL() string {
	return c.baseURL
}

// Realtime returns a websocket transport for the same backend, carrying the
// client's HTTP client and logger unless config sets its own.
func (c *Client) Realtime(config *RealtimeConfig) *WSTransport {
	var cfg RealtimeConfig
	if config != nil {
		cfg = *config
	}
	if cfg.HTTPClient == nil {
		cfg.HTTPClient = c.httpClient
	}
	if cfg.Logger == nil {
		cfg.Logger = c.log
	}
	return NewWSTransport(c.baseURL, &cfg)
}

// ============================================================================
// Internal request helper
// ============================================================================

func (c *Client) doRequest(ctx context.Context, method, path string, body interface{}, query map[string]string) ([]byte, error) {
	u := c.baseURL + path
	if len(query) > 0 {
		params := url.Values{}
		for k, v := range query {
			params.Set(k, v)
		}
		u += "?" + params.Encode()
	}

	var bodyReader io.Reader
	if body != nil {
		b, err := json.Marshal(body)
		if err != nil {
			return nil, fmt.Errorf("failed to marshal request: %w", err)
		}
		bodyReader = bytes.NewReader(b)
	}

	req, err := http.NewRequestWithContext(ctx, method, u, bodyReader)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}

	req.Header.Set("Accept", "application/json")
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if c.token != "" {
		req.Header.Set("Authorization", "Bearer "+c.token)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		c.log.Warn("request failed", zap.String("method", method), zap.String("path", path), zap.Error(err))
		return nil, fmt.Errorf("request failed: %w", err)
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("failed to read response: %w", err)
	}
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		apiErr := &APIError{Status: resp.StatusCode}
		if json.Unmarshal(data, apiErr) != nil || apiErr.Message == "" {
			apiErr.Message = http.StatusText(resp.StatusCode)
		}
		c.log.Warn("api error",
			zap.String("method", method),
			zap.String("path", path),
			zap.Int("status", resp.StatusCode),
			zap.String("message", apiErr.Message),
		)
		return nil, apiErr
	}
	return data, nil
}

func decodeJSON[T any](data []byte) (*T, error) {
	var result T
	if err := json.Unmarshal(data, &result); err != nil {
		return nil, fmt.Errorf("failed to unmarshal response: %w", err)
	}
	return &result, nil
}

func get[T any](ctx context.Context, c *Client, path string, query map[string]string) (*T, error) {
	data, err := c.doRequest(ctx, http.MethodGet, path, nil, query)
	if err != nil {
		return nil, err
	}
	return decodeJSON[T](data)
}

func post[T any](ctx context.Context, c *Client, path string, body interface{}) (*T, error) {
	data, err := c.doRequest(ctx, http.MethodPost, path, body, nil)
	if err != nil {
		return nil, err
	}
	return decodeJSON[T](data)
}

// ============================================================================
// Sub-Clients
// ============================================================================

// UsersClient reads user profiles.
type UsersClient struct{ c *Client }

func (u *UsersClient) Get(ctx context.Context, userID string) (*User, error) {
	return get[User](ctx, u.c, "/api/users/"+url.PathEscape(userID), nil)
}

func (u *UsersClient) Me(ctx context.Context) (*User, error) {
	return get[User](ctx, u.c, "/api/auth/me", nil)
}

// DisplayName resolves a user id to the name shown in notifications.
func (u *UsersClient) DisplayName(ctx context.Context, userID string) (string, error) {
	user, err := u.Get(ctx, userID)
	if err != nil {
		return "", err
	}
	return user.Name, nil
}

// MessagesClient handles direct messages.
type MessagesClient struct{ c *Client }

func (m *MessagesClient) Conversations(ctx context.Context) ([]ConversationSummary, error) {
	res, err := get[[]ConversationSummary](ctx, m.c, "/api/messages/conversations", nil)
	if err != nil {
		return nil, err
	}
	return *res, nil
}

// History returns the messages exchanged with counterpartID, oldest first.
func (m *MessagesClient) History(ctx context.Context, counterpartID string) ([]Message, error) {
	res, err := get[[]Message](ctx, m.c, "/api/messages/"+url.PathEscape(counterpartID), nil)
	if err != nil {
		return nil, err
	}
	return *res, nil
}

// Send posts a direct message and returns it as stored by the server.
func (m *MessagesClient) Send(ctx context.Context, receiverID, text string) (*Message, error) {
	return post[Message](ctx, m.c, "/api/messages/send/"+url.PathEscape(receiverID), map[string]string{"message": text})
}

// DisputesClient handles disputes and their threads.
type DisputesClient struct{ c *Client }

func (d *DisputesClient) List(ctx context.Context) ([]Dispute, error) {
	res, err := get[[]Dispute](ctx, d.c, "/api/disputes", nil)
	if err != nil {
		return nil, err
	}
	return *res, nil
}

func (d *DisputesClient) Get(ctx context.Context, disputeID string) (*Dispute, error) {
	return get[Dispute](ctx, d.c, "/api/disputes/"+url.PathEscape(disputeID), nil)
}

// SendMessage posts to a dispute thread and returns the stored entry. Servers
// that answer with the whole dispute yield its last message.
func (d *DisputesClient) SendMessage(ctx context.Context, disputeID, text string) (*DisputeMessage, error) {
	data, err := d.c.doRequest(ctx, http.MethodPost, "/api/disputes/"+url.PathEscape(disputeID)+"/messages", map[string]string{"message": text}, nil)
	if err != nil {
		return nil, err
	}

	var tail struct {
		Messages []DisputeMessage `json:"messages"`
	}
	if json.Unmarshal(data, &tail) == nil && len(tail.Messages) > 0 {
		last := tail.Messages[len(tail.Messages)-1]
		return &last, nil
	}
	return decodeJSON[DisputeMessage](data)
}

// NotificationsClient reads stored notifications.
type NotificationsClient struct{ c *Client }

func (n *NotificationsClient) List(ctx context.Context) ([]Notification, error) {
	res, err := get[[]Notification](ctx, n.c, "/api/notifications", nil)
	if err != nil {
		return nil, err
	}
	return *res, nil
}
