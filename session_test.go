package campusfind

import (
	"context"
	"errors"
	"net/http"
	"strings"
	"sync"
	"testing"
	"time"

	"nhooyr.io/websocket"
)

// ============================================================================
// Fakes
// ============================================================================

type fakeTransport struct {
	mu        sync.Mutex
	sent      []Message
	chatCalls int
	err       error
}

func (f *fakeTransport) SendChat(ctx context.Context, recipientID, content string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.chatCalls++
	if f.err != nil {
		return f.err
	}
	f.sent = append(f.sent, Message{RecipientID: recipientID, Content: content})
	return nil
}

func (f *fakeTransport) SendTyping(ctx context.Context, recipientID string, isTyping bool) error {
	return nil
}

type fakeStore struct {
	mu       sync.Mutex
	history  map[string][]Message
	sent     int
	sendErr  error
	sendEcho func(recipientID, content string) *Message
}

func (f *fakeStore) Conversation(ctx context.Context, peerID string) ([]Message, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.history[peerID], nil
}

func (f *fakeStore) Send(ctx context.Context, recipientID, content string) (*Message, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.sent++
	if f.sendErr != nil {
		return nil, f.sendErr
	}
	if f.sendEcho != nil {
		return f.sendEcho(recipientID, content), nil
	}
	return &Message{
		ID: "srv-1", SenderID: "self", RecipientID: recipientID,
		Content: content, CreatedAt: "2026-01-01T00:00:10",
	}, nil
}

type fakeDirectory struct {
	users map[string]*User
}

func (f *fakeDirectory) Get(ctx context.Context, userID string) (*User, error) {
	if u, ok := f.users[userID]; ok {
		return u, nil
	}
	return nil, errors.New("not found")
}

func newTestSession(store *fakeStore, dir *fakeDirectory) (*Session, *fakeTransport) {
	if store == nil {
		store = &fakeStore{history: map[string][]Message{}}
	}
	if dir == nil {
		dir = &fakeDirectory{users: map[string]*User{}}
	}
	tr := &fakeTransport{}
	s := NewSession(&SessionConfig{
		SelfID:    "self",
		Transport: tr,
		Messages:  store,
		Users:     dir,
	})
	return s, tr
}

func msg(id, from, to, content, at string) Message {
	return Message{ID: id, SenderID: from, RecipientID: to, Content: content, CreatedAt: at}
}

// ============================================================================
// Merge
// ============================================================================

func TestMergeFiltersToConversationPair(t *testing.T) {
	live := []Message{
		msg("m1", "peer", "self", "yours", "2026-01-01T00:00:01"),
		msg("m2", "other", "self", "not yours", "2026-01-01T00:00:02"),
		msg("m3", "self", "peer", "mine", "2026-01-01T00:00:03"),
		msg("m4", "self", "other", "to other", "2026-01-01T00:00:04"),
	}
	got := mergeConversation(nil, nil, live, "self", "peer")
	if len(got) != 2 {
		t.Fatalf("merged %d messages, want 2", len(got))
	}
	if got[0].ID != "m1" || got[1].ID != "m3" {
		t.Errorf("merged ids = %s, %s", got[0].ID, got[1].ID)
	}
}

func TestMergeDeduplicatesById(t *testing.T) {
	history := []Message{msg("m1", "peer", "self", "stale copy", "2026-01-01T00:00:01")}
	live := []Message{msg("m1", "peer", "self", "fresh copy", "2026-01-01T00:00:01")}

	got := mergeConversation(history, nil, live, "self", "peer")
	if len(got) != 1 {
		t.Fatalf("merged %d messages, want 1", len(got))
	}
	if got[0].Content != "fresh copy" {
		t.Errorf("content = %q, later source should win", got[0].Content)
	}
}

func TestMergeSortsByCreatedAt(t *testing.T) {
	history := []Message{
		msg("h2", "self", "peer", "second", "2026-01-01T00:00:02"),
		msg("h1", "peer", "self", "first", "2026-01-01T00:00:01"),
	}
	live := []Message{
		msg("l1", "peer", "self", "third", "2026-01-01T00:00:03"),
	}
	got := mergeConversation(history, nil, live, "self", "peer")
	want := []string{"first", "second", "third"}
	for i, w := range want {
		if got[i].Content != w {
			t.Errorf("position %d = %q, want %q", i, got[i].Content, w)
		}
	}
}

func TestMergeStableOnEqualTimestamps(t *testing.T) {
	at := "2026-01-01T00:00:01"
	history := []Message{
		msg("a", "peer", "self", "a", at),
		msg("b", "peer", "self", "b", at),
		msg("c", "peer", "self", "c", at),
	}
	got := mergeConversation(history, nil, nil, "self", "peer")
	for i, id := range []string{"a", "b", "c"} {
		if got[i].ID != id {
			t.Errorf("position %d = %s, want %s (arrival order preserved)", i, got[i].ID, id)
		}
	}
}

func TestMergeOptimisticAndEchoCoexist(t *testing.T) {
	// The placeholder and the server echo carry different ids, so both
	// survive the merge.
	local := []Message{
		msg("local-1", "self", "peer", "hello", "2026-01-01T00:00:01"),
		msg("srv-1", "self", "peer", "hello", "2026-01-01T00:00:02"),
	}
	got := mergeConversation(nil, local, nil, "self", "peer")
	if len(got) != 2 {
		t.Fatalf("merged %d messages, want 2", len(got))
	}
}

func TestMessageTimeLayouts(t *testing.T) {
	tests := []struct {
		name string
		at   string
		ok   bool
	}{
		{"rfc3339", "2026-01-01T00:00:01Z", true},
		{"rfc3339 nano", "2026-01-01T00:00:01.123456789Z", true},
		{"naive iso", "2026-01-01T00:00:01", true},
		{"naive iso micros", "2026-01-01T00:00:01.123456", true},
		{"garbage", "yesterday", false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := messageTime(Message{CreatedAt: tt.at})
			if tt.ok && got.IsZero() {
				t.Errorf("messageTime(%q) is zero, want parsed", tt.at)
			}
			if !tt.ok && !got.IsZero() {
				t.Errorf("messageTime(%q) = %v, want zero", tt.at, got)
			}
		})
	}
}

// ============================================================================
// Session
// ============================================================================

func TestSelectPeerMergesHistoryAndLive(t *testing.T) {
	store := &fakeStore{history: map[string][]Message{
		"peer": {
			msg("h1", "peer", "self", "from before", "2026-01-01T00:00:01"),
		},
	}}
	s, _ := newTestSession(store, nil)

	s.HandleMessage(msg("l1", "peer", "self", "live one", "2026-01-01T00:00:05"))

	if err := s.SelectPeer(context.Background(), "peer"); err != nil {
		t.Fatalf("SelectPeer: %v", err)
	}

	got := s.Messages("peer")
	if len(got) != 2 {
		t.Fatalf("merged %d messages, want 2", len(got))
	}
	if got[0].ID != "h1" || got[1].ID != "l1" {
		t.Errorf("order = %s, %s", got[0].ID, got[1].ID)
	}
}

func TestSelectPeerTwiceIsIdempotent(t *testing.T) {
	store := &fakeStore{history: map[string][]Message{
		"peer": {msg("h1", "peer", "self", "hi", "2026-01-01T00:00:01")},
	}}
	s, _ := newTestSession(store, nil)

	for i := 0; i < 2; i++ {
		if err := s.SelectPeer(context.Background(), "peer"); err != nil {
			t.Fatalf("SelectPeer: %v", err)
		}
	}
	if got := s.Messages("peer"); len(got) != 1 {
		t.Errorf("merged %d messages after double fetch, want 1", len(got))
	}
}

func TestUnreadFlagSetAndCleared(t *testing.T) {
	store := &fakeStore{history: map[string][]Message{}}
	s, _ := newTestSession(store, nil)
	s.SetPeers([]Conversation{{User: User{ID: "peer", FullName: "Pat"}}})

	s.HandleMessage(msg("m1", "peer", "self", "anyone there?", "2026-01-01T00:00:01"))
	if !s.HasUnread("peer") {
		t.Fatal("expected unread flag after inbound message")
	}

	if err := s.SelectPeer(context.Background(), "peer"); err != nil {
		t.Fatalf("SelectPeer: %v", err)
	}
	if s.HasUnread("peer") {
		t.Error("unread flag should clear when conversation opens")
	}
}

func TestNoUnreadForOpenPeerOrSelf(t *testing.T) {
	store := &fakeStore{history: map[string][]Message{}}
	s, _ := newTestSession(store, nil)
	s.SetPeers([]Conversation{{User: User{ID: "peer"}}})
	if err := s.SelectPeer(context.Background(), "peer"); err != nil {
		t.Fatalf("SelectPeer: %v", err)
	}

	s.HandleMessage(msg("m1", "peer", "self", "visible now", "2026-01-01T00:00:01"))
	s.HandleMessage(msg("m2", "self", "peer", "own echo", "2026-01-01T00:00:02"))

	if s.HasUnread("peer") {
		t.Error("messages in the open conversation must not flag unread")
	}
	if got := s.Messages("peer"); len(got) != 2 {
		t.Errorf("merged %d messages, want 2", len(got))
	}
}

func TestNotificationForBackgroundMessage(t *testing.T) {
	store := &fakeStore{history: map[string][]Message{}}
	var notified []Notification
	s := NewSession(&SessionConfig{
		SelfID:    "self",
		Transport: &fakeTransport{},
		Messages:  store,
		Users:     &fakeDirectory{users: map[string]*User{}},
		Notify:    func(n Notification) { notified = append(notified, n) },
	})
	s.SetPeers([]Conversation{{User: User{ID: "peer", FullName: "Pat Smith"}}})

	s.HandleMessage(msg("m1", "peer", "self", "is this your bag?", "2026-01-01T00:00:01"))

	if len(notified) != 1 {
		t.Fatalf("got %d notifications, want 1", len(notified))
	}
	n := notified[0]
	if n.SenderID != "peer" || n.SenderName != "Pat Smith" || n.Preview != "is this your bag?" {
		t.Errorf("notification = %+v", n)
	}
}

func TestUnknownSenderJoinsPeerListHead(t *testing.T) {
	store := &fakeStore{history: map[string][]Message{}}
	dir := &fakeDirectory{users: map[string]*User{
		"stranger": {ID: "stranger", FullName: "Sam New"},
	}}
	s, _ := newTestSession(store, dir)
	s.SetPeers([]Conversation{{User: User{ID: "peer", FullName: "Pat"}}})

	s.HandleMessage(msg("m1", "stranger", "self", "I found your laptop", "2026-01-01T00:00:01"))

	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		peers := s.Peers()
		if len(peers) == 2 && peers[0].User.ID == "stranger" {
			if !peers[0].HasUnread {
				t.Error("new peer should be flagged unread")
			}
			if peers[0].User.FullName != "Sam New" {
				t.Errorf("profile not resolved: %+v", peers[0].User)
			}
			return
		}
		time.Sleep(10 * time.Millisecond)
	}
	t.Fatal("timed out waiting for new peer to appear")
}

func TestUnknownSenderProfileFetchFailure(t *testing.T) {
	store := &fakeStore{history: map[string][]Message{}}
	s, _ := newTestSession(store, &fakeDirectory{users: map[string]*User{}})

	s.HandleMessage(msg("m1", "ghost", "self", "hello?", "2026-01-01T00:00:01"))

	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		peers := s.Peers()
		if len(peers) == 1 && peers[0].User.ID == "ghost" {
			return // placeholder entry with just the id
		}
		time.Sleep(10 * time.Millisecond)
	}
	t.Fatal("timed out waiting for placeholder peer entry")
}

func TestSendRejectsEmptyContent(t *testing.T) {
	for _, content := range []string{"", "   ", "\n\t "} {
		store := &fakeStore{history: map[string][]Message{}}
		s, tr := newTestSession(store, nil)

		_, err := s.Send(context.Background(), "peer", content)
		if !errors.Is(err, ErrEmptyContent) {
			t.Errorf("Send(%q) error = %v, want ErrEmptyContent", content, err)
		}
		if tr.chatCalls != 0 {
			t.Errorf("Send(%q) reached the transport", content)
		}
		if store.sent != 0 {
			t.Errorf("Send(%q) reached the store", content)
		}
	}
}

func TestSendRecordsPlaceholderAndEcho(t *testing.T) {
	store := &fakeStore{history: map[string][]Message{}}
	s, tr := newTestSession(store, nil)

	sent, err := s.Send(context.Background(), "peer", "hello")
	if err != nil {
		t.Fatalf("Send: %v", err)
	}
	if sent.ID != "srv-1" {
		t.Errorf("returned id = %s, want server id", sent.ID)
	}
	if tr.chatCalls != 1 {
		t.Errorf("transport calls = %d, want 1", tr.chatCalls)
	}

	got := s.Messages("peer")
	if len(got) != 2 {
		t.Fatalf("merged %d messages, want placeholder plus server copy", len(got))
	}
	if !strings.HasPrefix(got[0].ID, "local-") && !strings.HasPrefix(got[1].ID, "local-") {
		t.Error("expected an optimistic placeholder in the merge")
	}
}

func TestSendSurvivesTransportFailure(t *testing.T) {
	store := &fakeStore{history: map[string][]Message{}}
	dir := &fakeDirectory{users: map[string]*User{}}
	tr := &fakeTransport{err: ErrNotConnected}
	s := NewSession(&SessionConfig{
		SelfID: "self", Transport: tr, Messages: store, Users: dir,
	})

	sent, err := s.Send(context.Background(), "peer", "hello")
	if err != nil {
		t.Fatalf("Send with dead transport: %v", err)
	}
	if sent == nil || sent.ID != "srv-1" {
		t.Errorf("durable send should still succeed, got %+v", sent)
	}
}

func TestSendPropagatesStoreFailure(t *testing.T) {
	storeErr := errors.New("boom")
	store := &fakeStore{history: map[string][]Message{}, sendErr: storeErr}
	s, _ := newTestSession(store, nil)

	_, err := s.Send(context.Background(), "peer", "hello")
	if !errors.Is(err, storeErr) {
		t.Errorf("Send error = %v, want store error", err)
	}
}

func TestTypingState(t *testing.T) {
	s, _ := newTestSession(nil, nil)

	s.HandleTyping(TypingEvent{UserID: "peer", IsTyping: true})
	if !s.PeerTyping("peer") {
		t.Error("expected typing state set")
	}
	s.HandleTyping(TypingEvent{UserID: "peer", IsTyping: false})
	if s.PeerTyping("peer") {
		t.Error("expected typing state cleared")
	}
}

func TestBufferKeepsAllLiveTraffic(t *testing.T) {
	s, _ := newTestSession(nil, nil)
	s.HandleMessage(msg("m1", "a", "self", "one", "2026-01-01T00:00:01"))
	s.HandleMessage(msg("m2", "b", "self", "two", "2026-01-01T00:00:02"))

	if got := s.Buffer(); len(got) != 2 {
		t.Errorf("buffer holds %d messages, want 2", len(got))
	}
}

// Wires a session to a real socket: connect, receive the connected frame and
// one message, and check the buffer, the merged view, and the unread flag.
func TestSessionOverLiveSocket(t *testing.T) {
	srv := wsTestServer(t, func(r *http.Request, c *websocket.Conn) {
		frames := []string{
			`{"type":"connected","user_id":"self"}`,
			`{"type":"message","id":"m1","sender_id":"peer","recipient_id":"self","content":"I found it","created_at":"2026-01-01T00:00:01"}`,
		}
		for _, f := range frames {
			if err := c.Write(r.Context(), websocket.MessageText, []byte(f)); err != nil {
				t.Errorf("server write: %v", err)
				return
			}
		}
		time.Sleep(300 * time.Millisecond)
		c.Close(websocket.StatusNormalClosure, "done")
	})

	rt := NewRealtimeClient(srv.URL, &RealtimeConfig{TokenSource: StaticToken("tok")})
	s, _ := newTestSession(nil, nil)
	s.SetPeers([]Conversation{{User: User{ID: "peer", FullName: "Pat"}}})
	s.Wire(rt)

	if err := rt.Connect(context.Background()); err != nil {
		t.Fatalf("Connect: %v", err)
	}
	defer rt.Disconnect()

	deadline := time.Now().Add(3 * time.Second)
	for time.Now().Before(deadline) && len(s.Buffer()) == 0 {
		time.Sleep(10 * time.Millisecond)
	}

	if got := s.Buffer(); len(got) != 1 {
		t.Fatalf("buffer holds %d messages, want 1", len(got))
	}
	merged := s.Messages("peer")
	if len(merged) != 1 || merged[0].ID != "m1" {
		t.Errorf("merged = %+v", merged)
	}
	if !s.HasUnread("peer") {
		t.Error("expected unread flag while conversation is not open")
	}
}

// Walks a whole conversation lifecycle: list peers, background message sets
// unread, opening merges history with live, replying lands in order.
func TestConversationLifecycle(t *testing.T) {
	store := &fakeStore{
		history: map[string][]Message{
			"peer": {
				msg("h1", "self", "peer", "I lost my keys", "2026-01-01T00:00:01"),
				msg("h2", "peer", "self", "blue keychain?", "2026-01-01T00:00:02"),
			},
		},
		sendEcho: func(recipientID, content string) *Message {
			m := msg("srv-9", "self", recipientID, content, "2026-01-01T00:00:09")
			return &m
		},
	}
	s, _ := newTestSession(store, nil)
	s.SetPeers([]Conversation{{User: User{ID: "peer", FullName: "Pat"}}})

	s.HandleMessage(msg("l1", "peer", "self", "I have them", "2026-01-01T00:00:03"))
	if !s.HasUnread("peer") {
		t.Fatal("expected unread before opening")
	}

	if err := s.SelectPeer(context.Background(), "peer"); err != nil {
		t.Fatalf("SelectPeer: %v", err)
	}
	if _, err := s.Send(context.Background(), "peer", "amazing, where?"); err != nil {
		t.Fatalf("Send: %v", err)
	}

	got := s.Messages("peer")
	var contents []string
	for _, m := range got {
		if !strings.HasPrefix(m.ID, "local-") {
			contents = append(contents, m.Content)
		}
	}
	want := []string{"I lost my keys", "blue keychain?", "I have them", "amazing, where?"}
	if len(contents) != len(want) {
		t.Fatalf("contents = %v, want %v", contents, want)
	}
	for i := range want {
		if contents[i] != want[i] {
			t.Errorf("position %d = %q, want %q", i, contents[i], want[i])
		}
	}
}
