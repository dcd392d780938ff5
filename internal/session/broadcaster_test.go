package session

import (
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dontdude/coderoom/internal/domain"
)

func decode(t *testing.T, data []byte) domain.Envelope {
	t.Helper()
	var env domain.Envelope
	require.NoError(t, json.Unmarshal(data, &env))
	return env
}

func TestBroadcaster_Broadcast(t *testing.T) {
	tests := []struct {
		name         string
		setup        func(*Registry) map[string]*mockConn
		room         string
		exclude      string
		wantReceived map[string]int
	}{
		{
			name: "all members except sender",
			setup: func(r *Registry) map[string]*mockConn {
				conns := map[string]*mockConn{"s": {id: "s"}, "r1": {id: "r1"}, "r2": {id: "r2"}}
				for id, c := range conns {
					r.Join("room1", participant(id), c)
				}
				return conns
			},
			room:         "room1",
			exclude:      "s",
			wantReceived: map[string]int{"s": 0, "r1": 1, "r2": 1},
		},
		{
			name: "no cross-room delivery",
			setup: func(r *Registry) map[string]*mockConn {
				conns := map[string]*mockConn{"s": {id: "s"}, "other": {id: "other"}}
				r.Join("room1", participant("s"), conns["s"])
				r.Join("room2", participant("other"), conns["other"])
				return conns
			},
			room:         "room1",
			exclude:      "s",
			wantReceived: map[string]int{"s": 0, "other": 0},
		},
		{
			name: "no exclusion reaches everyone",
			setup: func(r *Registry) map[string]*mockConn {
				conns := map[string]*mockConn{"a": {id: "a"}, "b": {id: "b"}}
				for id, c := range conns {
					r.Join("room1", participant(id), c)
				}
				return conns
			},
			room:         "room1",
			wantReceived: map[string]int{"a": 1, "b": 1},
		},
		{
			name:         "unknown room",
			setup:        func(r *Registry) map[string]*mockConn { return nil },
			room:         "nowhere",
			wantReceived: map[string]int{},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r := NewRegistry()
			b := NewBroadcaster(r)
			conns := tt.setup(r)

			err := b.Broadcast(tt.room, domain.EventCodeChange, domain.CodeChangePayload{RoomID: tt.room, Content: "x"}, tt.exclude)
			require.NoError(t, err)

			for id, want := range tt.wantReceived {
				assert.Len(t, conns[id].getReceived(), want, "connection %s", id)
			}
		})
	}
}

func TestBroadcaster_PayloadShape(t *testing.T) {
	r := NewRegistry()
	b := NewBroadcaster(r)
	recv := &mockConn{id: "r"}
	r.Join("room1", participant("r"), recv)

	require.NoError(t, b.Broadcast("room1", domain.EventCodeChange, domain.CodeChangePayload{RoomID: "room1", Content: "print(1)"}, ""))

	received := recv.getReceived()
	require.Len(t, received, 1)
	env := decode(t, received[0])
	assert.Equal(t, domain.EventCodeChange, env.Event)

	var p domain.CodeChangePayload
	require.NoError(t, json.Unmarshal(env.Payload, &p))
	assert.Equal(t, "print(1)", p.Content)
	assert.Equal(t, "room1", p.RoomID)
}

func TestBroadcaster_PreservesEmissionOrder(t *testing.T) {
	r := NewRegistry()
	b := NewBroadcaster(r)
	recv := &mockConn{id: "r"}
	r.Join("room1", participant("r"), recv)

	for i := 0; i < 10; i++ {
		require.NoError(t, b.Broadcast("room1", domain.EventCodeChange, domain.CodeChangePayload{Content: string(rune('a' + i))}, ""))
	}

	received := recv.getReceived()
	require.Len(t, received, 10)
	for i, data := range received {
		var p domain.CodeChangePayload
		require.NoError(t, json.Unmarshal(decode(t, data).Payload, &p))
		assert.Equal(t, string(rune('a'+i)), p.Content)
	}
}

func TestBroadcaster_SendTo(t *testing.T) {
	r := NewRegistry()
	b := NewBroadcaster(r)
	a, c := &mockConn{id: "a"}, &mockConn{id: "c"}
	r.Join("room1", participant("a"), a)
	r.Join("room1", participant("c"), c)

	ok, err := b.SendTo("c", domain.EventSyncCode, domain.SyncCodePayload{Content: "snap", ConnectionID: "a"})
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Len(t, c.getReceived(), 1)
	assert.Empty(t, a.getReceived())

	ok, err = b.SendTo("missing", domain.EventSyncCode, domain.SyncCodePayload{})
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestBroadcaster_DropsUnreachableMember(t *testing.T) {
	r := NewRegistry()
	b := NewBroadcaster(r)
	slow := &mockConn{id: "slow", sendErr: errors.New("buffer full")}
	ok := &mockConn{id: "ok"}
	r.Join("room1", participant("slow"), slow)
	r.Join("room1", participant("ok"), ok)

	require.NoError(t, b.Broadcast("room1", domain.EventCodeChange, domain.CodeChangePayload{}, ""))

	assert.Len(t, ok.getReceived(), 1)
	assert.Eventually(t, slow.isClosed, time.Second, 10*time.Millisecond)
}
