package campusfind

import (
	"context"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

// ============================================================================
// Session Dependencies
// ============================================================================

// Transport is the live-send surface the session needs. *RealtimeClient
// satisfies it.
type Transport interface {
	SendChat(ctx context.Context, recipientID, content string) error
	SendTyping(ctx context.Context, recipientID string, isTyping bool) error
}

// MessageStore loads durable conversation history. *MessagesService
// satisfies it.
type MessageStore interface {
	Conversation(ctx context.Context, peerID string) ([]Message, error)
	Send(ctx context.Context, recipientID, content string) (*Message, error)
}

// UserDirectory resolves user profiles for senders not yet in the peer list.
// *UsersService satisfies it.
type UserDirectory interface {
	Get(ctx context.Context, userID string) (*User, error)
}

// PeerEntry is one row of the conversation list.
type PeerEntry struct {
	User      User
	HasUnread bool
}

// Notification describes an inbound message from someone other than the open
// peer.
type Notification struct {
	SenderID   string
	SenderName string
	Preview    string
}

// SessionConfig configures a chat session.
type SessionConfig struct {
	SelfID    string
	Transport Transport
	Messages  MessageStore
	Users     UserDirectory
	Logger    *zap.SugaredLogger
	// Notify, when set, is called for messages arriving outside the open
	// conversation.
	Notify func(Notification)
}

// ============================================================================
// Session
// ============================================================================

// Session merges live socket traffic with durable history into per-peer
// conversation views, and tracks which peers have unread activity. All
// methods are safe for concurrent use.
type Session struct {
	selfID    string
	transport Transport
	store     MessageStore
	users     UserDirectory
	log       *zap.SugaredLogger
	notify    func(Notification)

	mu       sync.Mutex
	live     []Message     // every message seen on the socket this session
	local    []Message     // optimistic placeholders and server echoes of sends
	history  map[string][]Message
	peers    []PeerEntry
	openPeer string
	typing   map[string]bool
}

// NewSession creates a session for the authenticated user identified by
// cfg.SelfID.
func NewSession(cfg *SessionConfig) *Session {
	log := cfg.Logger
	if log == nil {
		log = zap.NewNop().Sugar()
	}
	s := &Session{
		selfID:    cfg.SelfID,
		transport: cfg.Transport,
		store:     cfg.Messages,
		users:     cfg.Users,
		log:       log,
		notify:    cfg.Notify,
		history:   make(map[string][]Message),
		typing:    make(map[string]bool),
	}
	return s
}

// Wire subscribes the session to a realtime client's events.
func (s *Session) Wire(rt *RealtimeClient) {
	rt.OnMessage(s.HandleMessage)
	rt.OnTyping(s.HandleTyping)
}

// SetPeers replaces the conversation list, typically from
// Messages.Conversations at startup. Unread flags carried by the server are
// preserved.
func (s *Session) SetPeers(convos []Conversation) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.peers = s.peers[:0]
	for _, c := range convos {
		s.peers = append(s.peers, PeerEntry{User: c.User, HasUnread: c.UnreadCount > 0})
	}
}

// Peers returns a copy of the current conversation list.
func (s *Session) Peers() []PeerEntry {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]PeerEntry, len(s.peers))
	copy(out, s.peers)
	return out
}

// HasUnread reports whether the given peer has unread activity.
func (s *Session) HasUnread(peerID string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, p := range s.peers {
		if p.User.ID == peerID {
			return p.HasUnread
		}
	}
	return false
}

// OpenPeer returns the id of the currently open conversation, or "".
func (s *Session) OpenPeer() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.openPeer
}

// PeerTyping reports whether the given peer is currently typing.
func (s *Session) PeerTyping(peerID string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.typing[peerID]
}

// Buffer returns a copy of every live message received this session,
// regardless of peer.
func (s *Session) Buffer() []Message {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]Message, len(s.live))
	copy(out, s.live)
	return out
}

// SelectPeer opens a conversation: history is fetched from the store, the
// peer's unread flag is cleared locally, and subsequent Messages calls return
// the merged view for that peer.
func (s *Session) SelectPeer(ctx context.Context, peerID string) error {
	hist, err := s.store.Conversation(ctx, peerID)
	if err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	s.openPeer = peerID
	s.history[peerID] = hist
	for i := range s.peers {
		if s.peers[i].User.ID == peerID {
			s.peers[i].HasUnread = false
		}
	}
	return nil
}

// ClosePeer closes the open conversation without selecting another.
func (s *Session) ClosePeer() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.openPeer = ""
}

// Messages returns the merged conversation with the given peer: durable
// history, local sends, and live traffic, deduplicated by id and ordered by
// creation time. The view is recomputed from scratch on every call.
func (s *Session) Messages(peerID string) []Message {
	s.mu.Lock()
	defer s.mu.Unlock()
	return mergeConversation(s.history[peerID], s.local, s.live, s.selfID, peerID)
}

// HandleMessage ingests one normalized live message. It appends to the live
// buffer and, for inbound messages outside the open conversation, flags the
// sender unread and raises a notification. Unknown senders trigger an async
// profile fetch that inserts them at the head of the peer list.
func (s *Session) HandleMessage(m Message) {
	s.mu.Lock()
	s.live = append(s.live, m)

	if m.SenderID == s.selfID || m.SenderID == s.openPeer {
		s.mu.Unlock()
		return
	}

	known := false
	var sender User
	for i := range s.peers {
		if s.peers[i].User.ID == m.SenderID {
			s.peers[i].HasUnread = true
			sender = s.peers[i].User
			known = true
			break
		}
	}
	notify := s.notify
	s.mu.Unlock()

	if known {
		if notify != nil {
			notify(Notification{SenderID: m.SenderID, SenderName: sender.DisplayName(), Preview: m.Content})
		}
		return
	}

	// First message from someone not in the list yet. Resolve their profile
	// off the event path and surface them at the top.
	go s.resolveNewPeer(m)
}

func (s *Session) resolveNewPeer(m Message) {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	u, err := s.users.Get(ctx, m.SenderID)
	if err != nil {
		s.log.Warnw("could not resolve sender profile", "sender_id", m.SenderID, "error", err)
		u = &User{ID: m.SenderID}
	}

	s.mu.Lock()
	exists := false
	for i := range s.peers {
		if s.peers[i].User.ID == m.SenderID {
			s.peers[i].HasUnread = true
			exists = true
			break
		}
	}
	if !exists {
		s.peers = append([]PeerEntry{{User: *u, HasUnread: true}}, s.peers...)
	}
	notify := s.notify
	s.mu.Unlock()

	if notify != nil {
		notify(Notification{SenderID: m.SenderID, SenderName: u.DisplayName(), Preview: m.Content})
	}
}

// HandleTyping records a peer's typing state.
func (s *Session) HandleTyping(ev TypingEvent) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if ev.IsTyping {
		s.typing[ev.UserID] = true
	} else {
		delete(s.typing, ev.UserID)
	}
}

// Send delivers content to the given peer. Empty or whitespace-only content
// is rejected before anything is sent. An optimistic placeholder is recorded
// immediately, the live transport is attempted, and the message is also
// persisted via the store; the durable copy replaces nothing, it simply joins
// the merge under its own id.
func (s *Session) Send(ctx context.Context, peerID, content string) (*Message, error) {
	if strings.TrimSpace(content) == "" {
		return nil, ErrEmptyContent
	}

	placeholder := Message{
		ID:          "local-" + uuid.NewString(),
		SenderID:    s.selfID,
		RecipientID: peerID,
		Content:     content,
		CreatedAt:   time.Now().UTC().Format(time.RFC3339Nano),
	}

	s.mu.Lock()
	s.local = append(s.local, placeholder)
	s.mu.Unlock()

	if err := s.transport.SendChat(ctx, peerID, content); err != nil {
		s.log.Debugw("live send unavailable, relying on store", "error", err)
	}

	sent, err := s.store.Send(ctx, peerID, content)
	if err != nil {
		return nil, err
	}

	s.mu.Lock()
	s.local = append(s.local, *sent)
	s.mu.Unlock()
	return sent, nil
}

// Typing forwards a typing indicator for the open peer. Best effort.
func (s *Session) Typing(ctx context.Context, peerID string, isTyping bool) {
	_ = s.transport.SendTyping(ctx, peerID, isTyping)
}

// ============================================================================
// Merge
// ============================================================================

// mergeConversation combines history, local sends, and the live buffer into
// one conversation between selfID and peerID. Later sources win on duplicate
// ids, and ordering is by created_at with arrival order breaking ties.
func mergeConversation(history, local, live []Message, selfID, peerID string) []Message {
	between := func(m Message) bool {
		return (m.SenderID == selfID && m.RecipientID == peerID) ||
			(m.SenderID == peerID && m.RecipientID == selfID)
	}

	merged := make([]Message, 0, len(history)+len(local)+len(live))
	index := make(map[string]int, len(history)+len(local)+len(live))

	add := func(msgs []Message) {
		for _, m := range msgs {
			if !between(m) {
				continue
			}
			if i, ok := index[m.ID]; ok {
				merged[i] = m
				continue
			}
			index[m.ID] = len(merged)
			merged = append(merged, m)
		}
	}
	add(history)
	add(local)
	add(live)

	sort.SliceStable(merged, func(i, j int) bool {
		return messageTime(merged[i]).Before(messageTime(merged[j]))
	})
	return merged
}

// messageTime parses a message timestamp. The backend emits naive ISO-8601
// without an offset, so that layout is tried alongside RFC 3339.
func messageTime(m Message) time.Time {
	for _, layout := range []string{time.RFC3339Nano, time.RFC3339, "2006-01-02T15:04:05.999999", "2006-01-02T15:04:05"} {
		if t, err := time.Parse(layout, m.CreatedAt); err == nil {
			return t
		}
	}
	return time.Time{}
}
