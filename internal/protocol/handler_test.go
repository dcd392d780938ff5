package protocol

import (
	"encoding/json"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dontdude/coderoom/internal/domain"
	"github.com/dontdude/coderoom/internal/session"
)

type mockConn struct {
	id   string
	sent []domain.Envelope
	mu   sync.Mutex
}

func (m *mockConn) ID() string { return m.id }

func (m *mockConn) Send(data []byte) error {
	var env domain.Envelope
	if err := json.Unmarshal(data, &env); err != nil {
		return err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.sent = append(m.sent, env)
	return nil
}

func (m *mockConn) Close() error { return nil }

func (m *mockConn) getSent() []domain.Envelope {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]domain.Envelope, len(m.sent))
	copy(out, m.sent)
	return out
}

func (m *mockConn) reset() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.sent = nil
}

func newHandler() (*Handler, *session.Registry) {
	r := session.NewRegistry()
	return NewHandler(r, session.NewBroadcaster(r)), r
}

func frame(t *testing.T, event domain.Event, payload any) []byte {
	t.Helper()
	env, err := domain.NewEnvelope(event, payload)
	require.NoError(t, err)
	data, err := json.Marshal(env)
	require.NoError(t, err)
	return data
}

func payloadOf[T any](t *testing.T, env domain.Envelope) T {
	t.Helper()
	var v T
	require.NoError(t, json.Unmarshal(env.Payload, &v))
	return v
}

func joinRoom(t *testing.T, h *Handler, conn *mockConn, roomID, name string) {
	t.Helper()
	h.Handle(conn, frame(t, domain.EventJoin, domain.JoinPayload{RoomID: roomID, DisplayName: name}))
}

func TestHandler_ConnectSendsOwnID(t *testing.T) {
	h, _ := newHandler()
	conn := &mockConn{id: "c1"}

	h.Connect(conn)

	sent := conn.getSent()
	require.Len(t, sent, 1)
	assert.Equal(t, domain.EventConnected, sent[0].Event)
	assert.Equal(t, "c1", payloadOf[domain.ConnectedPayload](t, sent[0]).ConnectionID)
}

func TestHandler_JoinAnnouncesToEveryMember(t *testing.T) {
	h, r := newHandler()
	alice, bob := &mockConn{id: "a"}, &mockConn{id: "b"}

	joinRoom(t, h, alice, "room1", "alice")
	alice.reset()
	joinRoom(t, h, bob, "room1", "bob")

	for _, c := range []*mockConn{alice, bob} {
		sent := c.getSent()
		require.Len(t, sent, 1, "connection %s", c.id)
		assert.Equal(t, domain.EventJoined, sent[0].Event)

		joined := payloadOf[domain.JoinedPayload](t, sent[0])
		assert.Equal(t, "b", joined.ConnectionID)
		assert.Equal(t, "bob", joined.DisplayName)
		assert.Equal(t, []domain.Participant{
			{ConnectionID: "a", DisplayName: "alice"},
			{ConnectionID: "b", DisplayName: "bob"},
		}, joined.Members)
	}
	assert.Len(t, r.Members("room1"), 2)
}

func TestHandler_JoinValidation(t *testing.T) {
	tests := []struct {
		name     string
		data     []byte
		wantErr  bool
		wantName string
	}{
		{name: "missing room", data: frame(t, domain.EventJoin, domain.JoinPayload{DisplayName: "x"}), wantErr: true},
		{name: "missing payload", data: []byte(`{"event":"join"}`), wantErr: true},
		{name: "default name", data: frame(t, domain.EventJoin, domain.JoinPayload{RoomID: "r"}), wantName: DefaultDisplayName},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			h, r := newHandler()
			conn := &mockConn{id: "c1"}

			h.Handle(conn, tt.data)

			sent := conn.getSent()
			require.Len(t, sent, 1)
			if tt.wantErr {
				assert.Equal(t, domain.EventError, sent[0].Event)
				_, ok := r.RoomOf("c1")
				assert.False(t, ok)
				return
			}
			assert.Equal(t, tt.wantName, payloadOf[domain.JoinedPayload](t, sent[0]).DisplayName)
		})
	}
}

func TestHandler_RejoinAnnouncesDepartureInOldRoom(t *testing.T) {
	h, r := newHandler()
	alice, bob := &mockConn{id: "a"}, &mockConn{id: "b"}
	joinRoom(t, h, alice, "room1", "alice")
	joinRoom(t, h, bob, "room1", "bob")
	bob.reset()

	joinRoom(t, h, alice, "room2", "alice")

	sent := bob.getSent()
	require.Len(t, sent, 1)
	assert.Equal(t, domain.EventDisconnected, sent[0].Event)
	assert.Equal(t, "a", payloadOf[domain.DisconnectedPayload](t, sent[0]).ConnectionID)

	roomID, _ := r.RoomOf("a")
	assert.Equal(t, "room2", roomID)
}

func TestHandler_CodeChangeRelaysToOthers(t *testing.T) {
	h, _ := newHandler()
	alice, bob, carol := &mockConn{id: "a"}, &mockConn{id: "b"}, &mockConn{id: "c"}
	outsider := &mockConn{id: "o"}
	joinRoom(t, h, alice, "room1", "alice")
	joinRoom(t, h, bob, "room1", "bob")
	joinRoom(t, h, carol, "room1", "carol")
	joinRoom(t, h, outsider, "room2", "oscar")
	for _, c := range []*mockConn{alice, bob, carol, outsider} {
		c.reset()
	}

	h.Handle(alice, frame(t, domain.EventCodeChange, domain.CodeChangePayload{RoomID: "room1", Content: "x = 1"}))

	assert.Empty(t, alice.getSent())
	assert.Empty(t, outsider.getSent())
	for _, c := range []*mockConn{bob, carol} {
		sent := c.getSent()
		require.Len(t, sent, 1)
		assert.Equal(t, domain.EventCodeChange, sent[0].Event)
		assert.Equal(t, "x = 1", payloadOf[domain.CodeChangePayload](t, sent[0]).Content)
	}
}

func TestHandler_CodeChangeRequiresMembership(t *testing.T) {
	h, _ := newHandler()
	alice, bob := &mockConn{id: "a"}, &mockConn{id: "b"}
	joinRoom(t, h, bob, "room1", "bob")
	joinRoom(t, h, alice, "room2", "alice")
	alice.reset()
	bob.reset()

	h.Handle(alice, frame(t, domain.EventCodeChange, domain.CodeChangePayload{RoomID: "room1", Content: "spoof"}))

	assert.Empty(t, bob.getSent())
	sent := alice.getSent()
	require.Len(t, sent, 1)
	assert.Equal(t, domain.EventError, sent[0].Event)
}

func TestHandler_PaddedRoomIDMatchesJoin(t *testing.T) {
	h, r := newHandler()
	alice, bob := &mockConn{id: "a"}, &mockConn{id: "b"}
	joinRoom(t, h, alice, " room1 ", "alice")
	joinRoom(t, h, bob, "room1", "bob")
	alice.reset()
	bob.reset()

	roomID, ok := r.RoomOf("a")
	require.True(t, ok)
	assert.Equal(t, "room1", roomID)

	h.Handle(alice, frame(t, domain.EventCodeChange, domain.CodeChangePayload{RoomID: " room1 ", Content: "x = 1"}))
	h.Handle(alice, frame(t, domain.EventLanguageChange, domain.LanguageChangePayload{RoomID: " room1 ", Language: domain.Python}))

	assert.Empty(t, alice.getSent())
	sent := bob.getSent()
	require.Len(t, sent, 2)
	assert.Equal(t, domain.EventCodeChange, sent[0].Event)
	assert.Equal(t, "room1", payloadOf[domain.CodeChangePayload](t, sent[0]).RoomID)
	assert.Equal(t, domain.EventLanguageChange, sent[1].Event)
	assert.Equal(t, domain.Python, payloadOf[domain.LanguageChangePayload](t, sent[1]).Language)
}

func TestHandler_SyncIsPointToPoint(t *testing.T) {
	h, _ := newHandler()
	alice, bob, carol := &mockConn{id: "a"}, &mockConn{id: "b"}, &mockConn{id: "c"}
	joinRoom(t, h, alice, "room1", "alice")
	joinRoom(t, h, bob, "room1", "bob")
	joinRoom(t, h, carol, "room1", "carol")
	for _, c := range []*mockConn{alice, bob, carol} {
		c.reset()
	}

	h.Handle(alice, frame(t, domain.EventSyncCode, domain.SyncCodePayload{Content: "snapshot", ConnectionID: "c"}))
	h.Handle(alice, frame(t, domain.EventSyncLanguage, domain.SyncLanguagePayload{ConnectionID: "c", Language: domain.Python}))

	assert.Empty(t, alice.getSent())
	assert.Empty(t, bob.getSent())

	sent := carol.getSent()
	require.Len(t, sent, 2)
	assert.Equal(t, domain.EventSyncCode, sent[0].Event)
	code := payloadOf[domain.SyncCodePayload](t, sent[0])
	assert.Equal(t, "snapshot", code.Content)
	assert.Equal(t, "a", code.ConnectionID)

	assert.Equal(t, domain.EventSyncLanguage, sent[1].Event)
	lang := payloadOf[domain.SyncLanguagePayload](t, sent[1])
	assert.Equal(t, domain.Python, lang.Language)
	assert.Equal(t, "a", lang.ConnectionID)
}

func TestHandler_SyncAcrossRoomsRejected(t *testing.T) {
	h, _ := newHandler()
	alice, bob := &mockConn{id: "a"}, &mockConn{id: "b"}
	joinRoom(t, h, alice, "room1", "alice")
	joinRoom(t, h, bob, "room2", "bob")
	alice.reset()
	bob.reset()

	h.Handle(alice, frame(t, domain.EventSyncCode, domain.SyncCodePayload{Content: "leak", ConnectionID: "b"}))

	assert.Empty(t, bob.getSent())
	sent := alice.getSent()
	require.Len(t, sent, 1)
	assert.Equal(t, domain.EventError, sent[0].Event)
}

func TestHandler_LanguageChange(t *testing.T) {
	tests := []struct {
		name      string
		language  domain.Language
		wantRelay bool
	}{
		{name: "valid language relayed", language: domain.Go, wantRelay: true},
		{name: "unknown language rejected", language: "cobol", wantRelay: false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			h, _ := newHandler()
			alice, bob := &mockConn{id: "a"}, &mockConn{id: "b"}
			joinRoom(t, h, alice, "room1", "alice")
			joinRoom(t, h, bob, "room1", "bob")
			alice.reset()
			bob.reset()

			h.Handle(alice, frame(t, domain.EventLanguageChange, domain.LanguageChangePayload{RoomID: "room1", Language: tt.language}))

			if !tt.wantRelay {
				assert.Empty(t, bob.getSent())
				require.Len(t, alice.getSent(), 1)
				assert.Equal(t, domain.EventError, alice.getSent()[0].Event)
				return
			}
			assert.Empty(t, alice.getSent())
			sent := bob.getSent()
			require.Len(t, sent, 1)
			assert.Equal(t, tt.language, payloadOf[domain.LanguageChangePayload](t, sent[0]).Language)
		})
	}
}

func TestHandler_DisconnectNotifiesRemaining(t *testing.T) {
	h, r := newHandler()
	alice, bob := &mockConn{id: "a"}, &mockConn{id: "b"}
	joinRoom(t, h, alice, "room1", "alice")
	joinRoom(t, h, bob, "room1", "bob")
	bob.reset()

	h.Disconnect(alice)
	h.Disconnect(alice)

	sent := bob.getSent()
	require.Len(t, sent, 1)
	assert.Equal(t, domain.EventDisconnected, sent[0].Event)
	left := payloadOf[domain.DisconnectedPayload](t, sent[0])
	assert.Equal(t, "a", left.ConnectionID)
	assert.Equal(t, "alice", left.DisplayName)
	assert.Len(t, r.Members("room1"), 1)
}

func TestHandler_InvalidJSON(t *testing.T) {
	h, _ := newHandler()
	conn := &mockConn{id: "c1"}

	h.Handle(conn, []byte("not json"))

	sent := conn.getSent()
	require.Len(t, sent, 1)
	assert.Equal(t, domain.EventError, sent[0].Event)
}

func TestHandler_UnknownEvent(t *testing.T) {
	h, _ := newHandler()
	conn := &mockConn{id: "c1"}

	h.Handle(conn, frame(t, "teleport", nil))

	sent := conn.getSent()
	require.Len(t, sent, 1)
	assert.Equal(t, domain.EventError, sent[0].Event)
	assert.Contains(t, payloadOf[domain.ErrorPayload](t, sent[0]).Message, "teleport")
}
