package campusfind

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"sync"
	"time"

	"go.uber.org/zap"
	"nhooyr.io/websocket"
)

// ============================================================================
// Wire Frames
// ============================================================================

// wireFrame is the flat JSON shape of every inbound socket frame. Which
// fields are meaningful depends on Type.
type wireFrame struct {
	Type        string `json:"type"`
	ID          string `json:"id"`
	SenderID    string `json:"sender_id"`
	RecipientID string `json:"recipient_id"`
	Content     string `json:"content"`
	CreatedAt   string `json:"created_at"`
	IsRead      bool   `json:"is_read"`
	UserID      string `json:"user_id"`
	IsTyping    bool   `json:"is_typing"`
	Message     string `json:"message"`
}

type chatFrame struct {
	Type        string `json:"type"`
	RecipientID string `json:"recipient_id"`
	Content     string `json:"content"`
}

type typingFrame struct {
	Type        string `json:"type"`
	RecipientID string `json:"recipient_id"`
	IsTyping    bool   `json:"is_typing"`
}

type pingFrame struct {
	Type string `json:"type"`
}

// TypingEvent reports a peer starting or stopping typing.
type TypingEvent struct {
	UserID   string
	IsTyping bool
}

// ============================================================================
// Token Source
// ============================================================================

// TokenSource supplies the bearer token at connect time. Injecting it keeps
// the connection manager free of any ambient/global auth state.
type TokenSource interface {
	Token(ctx context.Context) (string, error)
}

// StaticToken is a TokenSource returning a fixed token.
type StaticToken string

func (t StaticToken) Token(ctx context.Context) (string, error) { return string(t), nil }

// ============================================================================
// Configuration
// ============================================================================

// RealtimeConfig configures the real-time client.
type RealtimeConfig struct {
	TokenSource          TokenSource
	MaxReconnectAttempts int
	ReconnectBaseDelay   time.Duration
	ReconnectMaxDelay    time.Duration
	HeartbeatInterval    time.Duration
	Logger               *zap.SugaredLogger
}

func (c *RealtimeConfig) defaults() {
	if c.MaxReconnectAttempts == 0 {
		c.MaxReconnectAttempts = 5
	}
	if c.ReconnectBaseDelay == 0 {
		c.ReconnectBaseDelay = 1 * time.Second
	}
	if c.ReconnectMaxDelay == 0 {
		c.ReconnectMaxDelay = 30 * time.Second
	}
	if c.HeartbeatInterval == 0 {
		c.HeartbeatInterval = 30 * time.Second
	}
	if c.Logger == nil {
		c.Logger = zap.NewNop().Sugar()
	}
}

// ConnState represents the connection state.
type ConnState string

const (
	StateDisconnected ConnState = "disconnected"
	StateConnecting   ConnState = "connecting"
	StateConnected    ConnState = "connected"
	StateErrored      ConnState = "errored"
)

// ============================================================================
// Event Dispatcher
// ============================================================================

// Handlers run synchronously on the read loop, one at a time, so consumers
// see frames in wire order without their own locking.
type eventDispatcher struct {
	mu             sync.RWMutex
	onMessage      []func(Message)
	onTyping       []func(TypingEvent)
	onServerError  []func(string)
	onConnected    []func()
	onDisconnected []func(code int, reason string)
}

func (d *eventDispatcher) dispatchMessage(m Message) {
	d.mu.RLock()
	handlers := append([]func(Message){}, d.onMessage...)
	d.mu.RUnlock()
	for _, h := range handlers {
		h(m)
	}
}

func (d *eventDispatcher) dispatchTyping(ev TypingEvent) {
	d.mu.RLock()
	handlers := append([]func(TypingEvent){}, d.onTyping...)
	d.mu.RUnlock()
	for _, h := range handlers {
		h(ev)
	}
}

func (d *eventDispatcher) dispatchServerError(msg string) {
	d.mu.RLock()
	handlers := append([]func(string){}, d.onServerError...)
	d.mu.RUnlock()
	for _, h := range handlers {
		h(msg)
	}
}

func (d *eventDispatcher) emitConnected() {
	d.mu.RLock()
	handlers := append([]func(){}, d.onConnected...)
	d.mu.RUnlock()
	for _, h := range handlers {
		h()
	}
}

func (d *eventDispatcher) emitDisconnected(code int, reason string) {
	d.mu.RLock()
	handlers := append([]func(int, string){}, d.onDisconnected...)
	d.mu.RUnlock()
	for _, h := range handlers {
		h(code, reason)
	}
}

// ============================================================================
// Reconnector
// ============================================================================

type reconnector struct {
	baseDelay   time.Duration
	maxDelay    time.Duration
	maxAttempts int
	attempt     int
}

func newReconnector(config *RealtimeConfig) *reconnector {
	return &reconnector{
		baseDelay:   config.ReconnectBaseDelay,
		maxDelay:    config.ReconnectMaxDelay,
		maxAttempts: config.MaxReconnectAttempts,
	}
}

func (r *reconnector) shouldReconnect() bool {
	return r.attempt < r.maxAttempts
}

// nextDelay returns base*2^attempt capped at maxDelay and advances the
// attempt counter.
func (r *reconnector) nextDelay() time.Duration {
	delay := r.baseDelay << uint(r.attempt)
	if delay > r.maxDelay || delay <= 0 {
		delay = r.maxDelay
	}
	r.attempt++
	return delay
}

func (r *reconnector) reset() {
	r.attempt = 0
}

// ============================================================================
// RealtimeClient
// ============================================================================

// RealtimeClient owns the single WebSocket connection for a session:
// token-authenticated handshake, heartbeat, and capped exponential-backoff
// reconnection. All socket I/O goes through it; nothing else touches the
// connection handle.
type RealtimeClient struct {
	baseURL string
	config  *RealtimeConfig
	log     *zap.SugaredLogger

	mu               sync.Mutex
	conn             *websocket.Conn
	state            ConnState
	lastErr          string
	intentionalClose bool
	lifeCancel       context.CancelFunc

	dispatcher eventDispatcher
	recon      *reconnector
}

// NewRealtimeClient creates a disconnected client for the given REST base
// URL. Call Connect to open the socket.
func NewRealtimeClient(baseURL string, config *RealtimeConfig) *RealtimeClient {
	cfg := *config
	cfg.defaults()
	return &RealtimeClient{
		baseURL: strings.TrimRight(baseURL, "/"),
		config:  &cfg,
		log:     cfg.Logger,
		state:   StateDisconnected,
		recon:   newReconnector(&cfg),
	}
}

// OnMessage registers a handler for normalized chat messages.
func (rt *RealtimeClient) OnMessage(h func(Message)) {
	rt.dispatcher.mu.Lock()
	rt.dispatcher.onMessage = append(rt.dispatcher.onMessage, h)
	rt.dispatcher.mu.Unlock()
}

// OnTyping registers a handler for typing indicators.
func (rt *RealtimeClient) OnTyping(h func(TypingEvent)) {
	rt.dispatcher.mu.Lock()
	rt.dispatcher.onTyping = append(rt.dispatcher.onTyping, h)
	rt.dispatcher.mu.Unlock()
}

// OnServerError registers a handler for server error frames.
func (rt *RealtimeClient) OnServerError(h func(string)) {
	rt.dispatcher.mu.Lock()
	rt.dispatcher.onServerError = append(rt.dispatcher.onServerError, h)
	rt.dispatcher.mu.Unlock()
}

// OnConnected registers a handler fired when the socket opens.
func (rt *RealtimeClient) OnConnected(h func()) {
	rt.dispatcher.mu.Lock()
	rt.dispatcher.onConnected = append(rt.dispatcher.onConnected, h)
	rt.dispatcher.mu.Unlock()
}

// OnDisconnected registers a handler fired when the socket closes. code is
// the close status or -1 when none was received.
func (rt *RealtimeClient) OnDisconnected(h func(code int, reason string)) {
	rt.dispatcher.mu.Lock()
	rt.dispatcher.onDisconnected = append(rt.dispatcher.onDisconnected, h)
	rt.dispatcher.mu.Unlock()
}

// State returns the current connection state.
func (rt *RealtimeClient) State() ConnState {
	rt.mu.Lock()
	defer rt.mu.Unlock()
	return rt.state
}

// LastError returns the most recent error message, or "".
func (rt *RealtimeClient) LastError() string {
	rt.mu.Lock()
	defer rt.mu.Unlock()
	return rt.lastErr
}

// Attempts returns the current reconnect-attempt counter.
func (rt *RealtimeClient) Attempts() int {
	rt.mu.Lock()
	defer rt.mu.Unlock()
	return rt.recon.attempt
}

// wsEndpoint converts the REST base URL to the socket endpoint.
func (rt *RealtimeClient) wsEndpoint(token string) string {
	u := strings.Replace(rt.baseURL, "https://", "wss://", 1)
	u = strings.Replace(u, "http://", "ws://", 1)
	return u + "/api/v1/ws?token=" + token
}

// Connect opens the socket. It is idempotent while connecting or connected,
// and a manual call resets the reconnect-attempt counter, which also resumes
// retrying after the ceiling was hit.
func (rt *RealtimeClient) Connect(ctx context.Context) error {
	rt.mu.Lock()
	if rt.state == StateConnected || rt.state == StateConnecting {
		rt.mu.Unlock()
		return nil
	}
	rt.state = StateConnecting
	rt.lastErr = ""
	rt.intentionalClose = false
	rt.recon.reset()
	lifeCtx, cancel := context.WithCancel(ctx)
	if rt.lifeCancel != nil {
		rt.lifeCancel()
	}
	rt.lifeCancel = cancel
	rt.mu.Unlock()

	return rt.dial(lifeCtx)
}

// dial performs one connection attempt. Reconnects re-enter here without
// resetting the attempt counter.
func (rt *RealtimeClient) dial(ctx context.Context) error {
	token, err := rt.config.TokenSource.Token(ctx)
	if err != nil || token == "" {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		rt.mu.Lock()
		rt.state = StateDisconnected
		rt.lastErr = ErrAuthMissing.Error()
		rt.mu.Unlock()
		if err != nil {
			return fmt.Errorf("token source: %w", err)
		}
		return ErrAuthMissing
	}

	conn, _, err := websocket.Dial(ctx, rt.wsEndpoint(token), nil)
	if err != nil {
		// A newer Connect or a Disconnect cancelled this dial; the state
		// now belongs to whoever superseded it.
		if ctx.Err() != nil {
			return fmt.Errorf("websocket dial: %w", err)
		}
		rt.mu.Lock()
		rt.state = StateDisconnected
		rt.lastErr = err.Error()
		retry := rt.recon.shouldReconnect() && !rt.intentionalClose
		if !retry && !rt.intentionalClose {
			rt.state = StateErrored
			rt.lastErr = ErrMaxRetries.Error()
		}
		rt.mu.Unlock()
		if retry {
			rt.scheduleReconnect(ctx)
		}
		return fmt.Errorf("websocket dial: %w", err)
	}

	rt.mu.Lock()
	rt.conn = conn
	rt.state = StateConnected
	rt.lastErr = ""
	rt.recon.reset()
	rt.mu.Unlock()

	rt.log.Infow("websocket connected")
	rt.dispatcher.emitConnected()

	go rt.readLoop(ctx, conn)
	go rt.heartbeatLoop(ctx, conn)
	return nil
}

// Disconnect tears the connection down without triggering a reconnect:
// pending reconnect timers and the heartbeat are cancelled first, then the
// socket is closed.
func (rt *RealtimeClient) Disconnect() error {
	rt.mu.Lock()
	rt.intentionalClose = true
	if rt.lifeCancel != nil {
		rt.lifeCancel()
		rt.lifeCancel = nil
	}
	conn := rt.conn
	rt.conn = nil
	rt.state = StateDisconnected
	rt.mu.Unlock()

	if conn != nil {
		return conn.Close(websocket.StatusNormalClosure, "client disconnect")
	}
	return nil
}

// SendChat writes a chat frame. It fails fast when the socket is not
// connected; the message is not queued.
func (rt *RealtimeClient) SendChat(ctx context.Context, recipientID, content string) error {
	rt.mu.Lock()
	conn := rt.conn
	state := rt.state
	rt.mu.Unlock()
	if state != StateConnected || conn == nil {
		return ErrNotConnected
	}
	return rt.write(ctx, conn, chatFrame{Type: "message", RecipientID: recipientID, Content: content})
}

// SendTyping is best-effort: it silently no-ops when not connected.
func (rt *RealtimeClient) SendTyping(ctx context.Context, recipientID string, isTyping bool) error {
	rt.mu.Lock()
	conn := rt.conn
	state := rt.state
	rt.mu.Unlock()
	if state != StateConnected || conn == nil {
		return nil
	}
	if err := rt.write(ctx, conn, typingFrame{Type: "typing", RecipientID: recipientID, IsTyping: isTyping}); err != nil {
		rt.log.Debugw("typing indicator dropped", "error", err)
	}
	return nil
}

func (rt *RealtimeClient) write(ctx context.Context, conn *websocket.Conn, frame any) error {
	data, err := json.Marshal(frame)
	if err != nil {
		return err
	}
	return conn.Write(ctx, websocket.MessageText, data)
}

func (rt *RealtimeClient) readLoop(ctx context.Context, conn *websocket.Conn) {
	for {
		_, data, err := conn.Read(ctx)
		if err != nil {
			rt.handleClose(ctx, err)
			return
		}
		rt.handleFrame(data)
	}
}

// handleFrame normalizes one inbound frame. Parse and validation failures
// degrade to logged drops; they never close the connection.
func (rt *RealtimeClient) handleFrame(data []byte) {
	var f wireFrame
	if err := json.Unmarshal(data, &f); err != nil {
		rt.log.Warnw("discarding malformed frame", "error", err)
		return
	}

	switch f.Type {
	case "connected":
		rt.log.Debugw("connection confirmed", "user_id", f.UserID)

	case "message":
		if f.ID == "" || f.SenderID == "" || f.RecipientID == "" || f.Content == "" || f.CreatedAt == "" {
			rt.log.Warnw("message frame missing required fields", "id", f.ID, "sender_id", f.SenderID)
			return
		}
		rt.dispatcher.dispatchMessage(Message{
			ID:          f.ID,
			SenderID:    f.SenderID,
			RecipientID: f.RecipientID,
			Content:     f.Content,
			CreatedAt:   f.CreatedAt,
			IsRead:      f.IsRead,
		})

	case "typing":
		rt.dispatcher.dispatchTyping(TypingEvent{UserID: f.UserID, IsTyping: f.IsTyping})

	case "pong":
		// keep-alive response

	case "error":
		rt.log.Warnw("server error frame", "message", f.Message)
		rt.mu.Lock()
		rt.lastErr = f.Message
		rt.mu.Unlock()
		rt.dispatcher.dispatchServerError(f.Message)

	default:
		rt.log.Warnw("unknown frame type", "type", f.Type)
	}
}

// handleClose is the single authority for state transitions after the socket
// drops. Transport error events are not acted on directly; everything funnels
// through the read error observed here.
func (rt *RealtimeClient) handleClose(ctx context.Context, err error) {
	rt.mu.Lock()
	if rt.intentionalClose {
		rt.mu.Unlock()
		return
	}
	rt.conn = nil

	code := int(websocket.CloseStatus(err))
	if code == int(websocket.StatusPolicyViolation) {
		// Invalid or expired token. Retrying cannot succeed.
		rt.state = StateErrored
		rt.lastErr = ErrAuthExpired.Error()
		rt.mu.Unlock()
		rt.log.Warnw("websocket closed: authentication rejected", "code", code)
		rt.dispatcher.emitDisconnected(code, ErrAuthExpired.Error())
		return
	}

	rt.state = StateDisconnected
	retry := rt.recon.shouldReconnect()
	if !retry {
		rt.state = StateErrored
		rt.lastErr = ErrMaxRetries.Error()
	}
	rt.mu.Unlock()

	rt.log.Infow("websocket disconnected", "code", code, "error", err.Error())
	rt.dispatcher.emitDisconnected(code, err.Error())

	if retry {
		rt.scheduleReconnect(ctx)
	}
}

// scheduleReconnect waits min(base*2^attempt, max) and redials. The timer is
// bound to the connection's life context so Disconnect cancels it.
func (rt *RealtimeClient) scheduleReconnect(ctx context.Context) {
	rt.mu.Lock()
	delay := rt.recon.nextDelay()
	attempt := rt.recon.attempt
	rt.mu.Unlock()

	rt.log.Infow("reconnecting", "attempt", attempt, "delay", delay)

	go func() {
		timer := time.NewTimer(delay)
		defer timer.Stop()
		select {
		case <-ctx.Done():
			return
		case <-timer.C:
		}
		if err := rt.dial(ctx); err != nil {
			rt.log.Warnw("reconnect attempt failed", "attempt", attempt, "error", err)
		}
	}()
}

// heartbeatLoop pings the connection it was started for. It exits as soon as
// that connection is replaced, so a reconnect never leaves a second loop
// pinging the new socket.
func (rt *RealtimeClient) heartbeatLoop(ctx context.Context, conn *websocket.Conn) {
	ticker := time.NewTicker(rt.config.HeartbeatInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			rt.mu.Lock()
			current := rt.conn
			state := rt.state
			rt.mu.Unlock()
			if current != conn || state != StateConnected {
				return
			}
			if err := rt.write(ctx, conn, pingFrame{Type: "ping"}); err != nil {
				rt.log.Debugw("heartbeat write failed", "error", err)
				return
			}
		}
	}
}
