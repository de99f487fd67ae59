// Package campusfind provides the Go client for the campus lost-and-found
// platform: REST wrappers for auth, users, items, claims, and messages, plus
// the real-time messaging layer (WebSocket connection manager and the
// platform-neutral messaging session).
//
// Example:
//
//	client := campusfind.NewClient(token)
//
//	// REST
//	items, _ := client.Items.List(ctx, &campusfind.ItemFilters{Type: "lost"})
//	convos, _ := client.Messages.Conversations(ctx)
//
//	// Real-time
//	rt := client.Realtime(&campusfind.RealtimeConfig{
//		TokenSource: campusfind.StaticToken(token),
//	})
//	_ = rt.Connect(ctx)
package campusfind

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"sync"
	"time"

	"go.uber.org/zap"
)

const (
	DefaultBaseURL = "http://localhost:8000"
	DefaultTimeout = 30 * time.Second
)

// ============================================================================
// Client
// ============================================================================

// Client talks to the platform's REST API. Sub-clients group endpoints the
// way the backend groups routers.
type Client struct {
	baseURL    string
	httpClient *http.Client
	log        *zap.SugaredLogger

	mu           sync.RWMutex
	accessToken  string
	refreshToken string

	Auth          *AuthService
	Users         *UsersService
	Items         *ItemsService
	Claims        *ClaimsService
	Matches       *MatchesService
	Notifications *NotificationsService
	Messages      *MessagesService
}

type ClientOption func(*Client)

func WithBaseURL(u string) ClientOption {
	return func(c *Client) { c.baseURL = strings.TrimRight(u, "/") }
}

func WithTimeout(timeout time.Duration) ClientOption {
	return func(c *Client) { c.httpClient.Timeout = timeout }
}

func WithHTTPClient(hc *http.Client) ClientOption {
	return func(c *Client) { c.httpClient = hc }
}

// WithRefreshToken enables the one-shot retry on 401: the client exchanges
// the refresh token for a new access token and replays the request once.
func WithRefreshToken(token string) ClientOption {
	return func(c *Client) { c.refreshToken = token }
}

func WithLogger(log *zap.SugaredLogger) ClientOption {
	return func(c *Client) { c.log = log }
}

// NewClient creates a platform client. accessToken may be empty for the
// unauthenticated endpoints (login, register).
func NewClient(accessToken string, opts ...ClientOption) *Client {
	c := &Client{
		accessToken: accessToken,
		baseURL:     DefaultBaseURL,
		httpClient:  &http.Client{Timeout: DefaultTimeout},
		log:         zap.NewNop().Sugar(),
	}
	for _, opt := range opts {
		opt(c)
	}
	c.Auth = &AuthService{client: c}
	c.Users = &UsersService{client: c}
	c.Items = &ItemsService{client: c}
	c.Claims = &ClaimsService{client: c}
	c.Matches = &MatchesService{client: c}
	c.Notifications = &NotificationsService{client: c}
	c.Messages = &MessagesService{client: c}
	return c
}

// SetToken replaces the access token, e.g. after login or a refresh.
func (c *Client) SetToken(token string) {
	c.mu.Lock()
	c.accessToken = token
	c.mu.Unlock()
}

// setSession installs both tokens after login or registration.
func (c *Client) setSession(access, refresh string) {
	c.mu.Lock()
	c.accessToken = access
	c.refreshToken = refresh
	c.mu.Unlock()
}

// Token returns the current access token. Satisfies TokenSource so the
// client itself can back a realtime connection.
func (c *Client) Token(ctx context.Context) (string, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.accessToken, nil
}

// BaseURL returns the configured REST base URL.
func (c *Client) BaseURL() string { return c.baseURL }

// Realtime creates a real-time client bound to this REST client's base URL.
// When cfg.TokenSource is nil the client's own token is used.
func (c *Client) Realtime(cfg *RealtimeConfig) *RealtimeClient {
	if cfg == nil {
		cfg = &RealtimeConfig{}
	}
	if cfg.TokenSource == nil {
		cfg.TokenSource = c
	}
	if cfg.Logger == nil {
		cfg.Logger = c.log
	}
	return NewRealtimeClient(c.baseURL, cfg)
}

// ============================================================================
// Internal request helper
// ============================================================================

func (c *Client) doRequest(ctx context.Context, method, path string, body any, query map[string]string) ([]byte, error) {
	data, status, err := c.doOnce(ctx, method, path, body, query)
	if err != nil {
		return nil, err
	}
	c.mu.RLock()
	canRefresh := c.refreshToken != ""
	c.mu.RUnlock()
	if status == http.StatusUnauthorized && canRefresh {
		if c.tryRefresh(ctx) {
			data, status, err = c.doOnce(ctx, method, path, body, query)
			if err != nil {
				return nil, err
			}
		}
	}
	if status >= 300 {
		apiErr := &APIError{Status: status}
		if json.Unmarshal(data, apiErr) != nil || apiErr.Detail == "" {
			apiErr.Detail = fmt.Sprintf("HTTP %d", status)
		}
		return nil, apiErr
	}
	return data, nil
}

func (c *Client) doOnce(ctx context.Context, method, path string, body any, query map[string]string) ([]byte, int, error) {
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
			return nil, 0, fmt.Errorf("failed to marshal request: %w", err)
		}
		bodyReader = bytes.NewReader(b)
	}

	req, err := http.NewRequestWithContext(ctx, method, u, bodyReader)
	if err != nil {
		return nil, 0, fmt.Errorf("failed to create request: %w", err)
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	c.mu.RLock()
	token := c.accessToken
	c.mu.RUnlock()
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, 0, fmt.Errorf("request failed: %w", err)
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, 0, fmt.Errorf("failed to read response: %w", err)
	}
	return data, resp.StatusCode, nil
}

// tryRefresh exchanges the refresh token for a fresh access token.
func (c *Client) tryRefresh(ctx context.Context) bool {
	c.mu.RLock()
	refresh := c.refreshToken
	c.mu.RUnlock()
	b, err := json.Marshal(map[string]string{"refresh_token": refresh})
	if err != nil {
		return false
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/api/v1/auth/refresh", bytes.NewReader(b))
	if err != nil {
		return false
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		c.log.Warnw("token refresh failed", "error", err)
		return false
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return false
	}
	var out struct {
		AccessToken string `json:"access_token"`
	}
	if json.NewDecoder(resp.Body).Decode(&out) != nil || out.AccessToken == "" {
		return false
	}
	c.SetToken(out.AccessToken)
	return true
}

func decodeJSON[T any](data []byte) (*T, error) {
	var result T
	if err := json.Unmarshal(data, &result); err != nil {
		return nil, fmt.Errorf("failed to unmarshal response: %w", err)
	}
	return &result, nil
}

func decodeJSONList[T any](data []byte) ([]T, error) {
	var result []T
	if err := json.Unmarshal(data, &result); err != nil {
		return nil, fmt.Errorf("failed to unmarshal response: %w", err)
	}
	return result, nil
}

// ============================================================================
// Auth
// ============================================================================

// AuthService handles login, registration, and session teardown.
type AuthService struct{ client *Client }

// Login authenticates with email and password and installs the returned
// access token on the client.
func (a *AuthService) Login(ctx context.Context, email, password string) (*LoginResult, error) {
	data, err := a.client.doRequest(ctx, http.MethodPost, "/api/v1/auth/login",
		map[string]string{"email": email, "password": password}, nil)
	if err != nil {
		return nil, err
	}
	res, err := decodeJSON[LoginResult](data)
	if err != nil {
		return nil, err
	}
	a.client.setSession(res.AccessToken, res.RefreshToken)
	return res, nil
}

// Register creates an account and installs the returned access token.
func (a *AuthService) Register(ctx context.Context, opts *RegisterOptions) (*LoginResult, error) {
	data, err := a.client.doRequest(ctx, http.MethodPost, "/api/v1/auth/register", opts, nil)
	if err != nil {
		return nil, err
	}
	res, err := decodeJSON[LoginResult](data)
	if err != nil {
		return nil, err
	}
	a.client.setSession(res.AccessToken, res.RefreshToken)
	return res, nil
}

func (a *AuthService) Logout(ctx context.Context) error {
	_, err := a.client.doRequest(ctx, http.MethodPost, "/api/v1/auth/logout", nil, nil)
	return err
}

// ============================================================================
// Users
// ============================================================================

// UsersService handles profiles and user search.
type UsersService struct{ client *Client }

func (u *UsersService) Me(ctx context.Context) (*User, error) {
	data, err := u.client.doRequest(ctx, http.MethodGet, "/api/v1/users/me", nil, nil)
	if err != nil {
		return nil, err
	}
	return decodeJSON[User](data)
}

func (u *UsersService) Get(ctx context.Context, userID string) (*User, error) {
	data, err := u.client.doRequest(ctx, http.MethodGet, "/api/v1/users/"+userID, nil, nil)
	if err != nil {
		return nil, err
	}
	return decodeJSON[User](data)
}

func (u *UsersService) List(ctx context.Context) ([]User, error) {
	data, err := u.client.doRequest(ctx, http.MethodGet, "/api/v1/users/", nil, nil)
	if err != nil {
		return nil, err
	}
	return decodeJSONList[User](data)
}

func (u *UsersService) Search(ctx context.Context, query string) ([]User, error) {
	data, err := u.client.doRequest(ctx, http.MethodGet, "/api/v1/users/search/", nil,
		map[string]string{"query": query})
	if err != nil {
		return nil, err
	}
	return decodeJSONList[User](data)
}

func (u *UsersService) UpdateProfile(ctx context.Context, opts *UpdateProfileOptions) (*User, error) {
	data, err := u.client.doRequest(ctx, http.MethodPut, "/api/v1/users/me", opts, nil)
	if err != nil {
		return nil, err
	}
	return decodeJSON[User](data)
}

// ============================================================================
// Items
// ============================================================================

// ItemsService handles lost/found item reports.
type ItemsService struct{ client *Client }

func (i *ItemsService) List(ctx context.Context, filters *ItemFilters) (*ItemsPage, error) {
	query := map[string]string{}
	if filters != nil {
		if filters.Type != "" {
			query["type"] = filters.Type
		}
		if filters.Category != "" {
			query["category"] = filters.Category
		}
		if filters.Status != "" {
			query["status"] = filters.Status
		}
		if filters.Location != "" {
			query["location"] = filters.Location
		}
		if filters.Search != "" {
			query["search"] = filters.Search
		}
		if filters.Skip > 0 {
			query["skip"] = strconv.Itoa(filters.Skip)
		}
		if filters.Limit > 0 {
			query["limit"] = strconv.Itoa(filters.Limit)
		}
	}
	if len(query) == 0 {
		query = nil
	}
	data, err := i.client.doRequest(ctx, http.MethodGet, "/api/v1/items/", nil, query)
	if err != nil {
		return nil, err
	}
	return decodeJSON[ItemsPage](data)
}

func (i *ItemsService) Get(ctx context.Context, itemID string) (*Item, error) {
	data, err := i.client.doRequest(ctx, http.MethodGet, "/api/v1/items/"+itemID, nil, nil)
	if err != nil {
		return nil, err
	}
	return decodeJSON[Item](data)
}

func (i *ItemsService) Create(ctx context.Context, opts *CreateItemOptions) (*Item, error) {
	data, err := i.client.doRequest(ctx, http.MethodPost, "/api/v1/items/", opts, nil)
	if err != nil {
		return nil, err
	}
	return decodeJSON[Item](data)
}

func (i *ItemsService) Update(ctx context.Context, itemID string, opts *CreateItemOptions) (*Item, error) {
	data, err := i.client.doRequest(ctx, http.MethodPut, "/api/v1/items/"+itemID, opts, nil)
	if err != nil {
		return nil, err
	}
	return decodeJSON[Item](data)
}

func (i *ItemsService) Delete(ctx context.Context, itemID string) error {
	_, err := i.client.doRequest(ctx, http.MethodDelete, "/api/v1/items/"+itemID, nil, nil)
	return err
}

// Mine returns the current user's own reports.
func (i *ItemsService) Mine(ctx context.Context) ([]Item, error) {
	data, err := i.client.doRequest(ctx, http.MethodGet, "/api/v1/items/user/me", nil, nil)
	if err != nil {
		return nil, err
	}
	return decodeJSONList[Item](data)
}

// ============================================================================
// Claims
// ============================================================================

// ClaimsService handles ownership claims.
type ClaimsService struct{ client *Client }

func (cl *ClaimsService) List(ctx context.Context, status string) ([]Claim, error) {
	var query map[string]string
	if status != "" {
		query = map[string]string{"status": status}
	}
	data, err := cl.client.doRequest(ctx, http.MethodGet, "/api/v1/claims/", nil, query)
	if err != nil {
		return nil, err
	}
	return decodeJSONList[Claim](data)
}

func (cl *ClaimsService) Create(ctx context.Context, opts *CreateClaimOptions) (*Claim, error) {
	data, err := cl.client.doRequest(ctx, http.MethodPost, "/api/v1/claims/", opts, nil)
	if err != nil {
		return nil, err
	}
	return decodeJSON[Claim](data)
}

func (cl *ClaimsService) UpdateStatus(ctx context.Context, claimID, status string) (*Claim, error) {
	data, err := cl.client.doRequest(ctx, http.MethodPut, "/api/v1/claims/"+claimID+"/status",
		map[string]string{"status": status}, nil)
	if err != nil {
		return nil, err
	}
	return decodeJSON[Claim](data)
}

// ============================================================================
// Matches
// ============================================================================

// MatchesService exposes the backend's lost/found similarity matches.
type MatchesService struct{ client *Client }

// ForItem returns the scored matches for one item.
func (m *MatchesService) ForItem(ctx context.Context, itemID string) ([]Match, error) {
	data, err := m.client.doRequest(ctx, http.MethodGet, "/api/v1/matches/item/"+itemID, nil, nil)
	if err != nil {
		return nil, err
	}
	return decodeJSONList[Match](data)
}

// ============================================================================
// Notifications
// ============================================================================

// NotificationsService handles persisted notifications.
type NotificationsService struct{ client *Client }

// List returns notifications, newest first. The backend wraps the list in a
// {"notifications": [...]} envelope.
func (n *NotificationsService) List(ctx context.Context, filters *NotificationFilters) ([]UserNotification, error) {
	var query map[string]string
	if filters != nil {
		query = map[string]string{}
		if filters.IsRead != nil {
			query["is_read"] = strconv.FormatBool(*filters.IsRead)
		}
		if filters.Limit > 0 {
			query["limit"] = strconv.Itoa(filters.Limit)
		}
		if len(query) == 0 {
			query = nil
		}
	}
	data, err := n.client.doRequest(ctx, http.MethodGet, "/api/v1/notifications/", nil, query)
	if err != nil {
		return nil, err
	}
	out, err := decodeJSON[struct {
		Notifications []UserNotification `json:"notifications"`
	}](data)
	if err != nil {
		return nil, err
	}
	return out.Notifications, nil
}

// MarkRead marks one notification read.
func (n *NotificationsService) MarkRead(ctx context.Context, notificationID string) (*UserNotification, error) {
	data, err := n.client.doRequest(ctx, http.MethodPut, "/api/v1/notifications/"+notificationID+"/read", nil, nil)
	if err != nil {
		return nil, err
	}
	return decodeJSON[UserNotification](data)
}

// MarkAllRead marks every notification read.
func (n *NotificationsService) MarkAllRead(ctx context.Context) error {
	_, err := n.client.doRequest(ctx, http.MethodPut, "/api/v1/notifications/read-all", nil, nil)
	return err
}

// ============================================================================
// Messages
// ============================================================================

// MessagesService handles conversation history and the durable (REST) send
// path that runs in parallel to the socket send.
type MessagesService struct{ client *Client }

// Conversations returns the conversation list with per-peer summaries.
func (m *MessagesService) Conversations(ctx context.Context) ([]Conversation, error) {
	data, err := m.client.doRequest(ctx, http.MethodGet, "/api/v1/messages/conversations", nil, nil)
	if err != nil {
		return nil, err
	}
	return decodeJSONList[Conversation](data)
}

// Conversation returns the full message history with one peer.
func (m *MessagesService) Conversation(ctx context.Context, peerID string) ([]Message, error) {
	data, err := m.client.doRequest(ctx, http.MethodGet, "/api/v1/messages/conversations/"+peerID, nil, nil)
	if err != nil {
		return nil, err
	}
	return decodeJSONList[Message](data)
}

// Send persists a message over REST. The request body uses receiver_id, the
// backend's REST-side field name.
func (m *MessagesService) Send(ctx context.Context, recipientID, content string) (*Message, error) {
	data, err := m.client.doRequest(ctx, http.MethodPost, "/api/v1/messages/",
		map[string]string{"receiver_id": recipientID, "content": content}, nil)
	if err != nil {
		return nil, err
	}
	return decodeJSON[Message](data)
}

// MarkRead marks a single message read.
func (m *MessagesService) MarkRead(ctx context.Context, messageID string) (*Message, error) {
	data, err := m.client.doRequest(ctx, http.MethodPut, "/api/v1/messages/"+messageID+"/read", nil, nil)
	if err != nil {
		return nil, err
	}
	return decodeJSON[Message](data)
}

// MarkConversationRead marks every message from a peer read.
func (m *MessagesService) MarkConversationRead(ctx context.Context, peerID string) error {
	_, err := m.client.doRequest(ctx, http.MethodPut, "/api/v1/messages/conversations/"+peerID+"/read", nil, nil)
	return err
}
