package session

import (
	"encoding/json"
	"fmt"
	"log/slog"

	"github.com/dontdude/coderoom/internal/domain"
)

// Broadcaster delivers protocol messages to room members.
// Delivery is fire-and-forget: a member that cannot take the message misses it
// and its connection is closed, which runs the normal leave path.
type Broadcaster struct {
	registry *Registry
}

func NewBroadcaster(r *Registry) *Broadcaster {
	return &Broadcaster{registry: r}
}

// Broadcast sends event+payload to every member of roomID except excludeID.
// An empty excludeID reaches everyone.
func (b *Broadcaster) Broadcast(roomID string, event domain.Event, payload any, excludeID string) error {
	data, err := encode(event, payload)
	if err != nil {
		return err
	}

	conns, fanout := b.registry.connections(roomID)
	if fanout == nil {
		return nil
	}
	defer fanout.Unlock()

	for id, conn := range conns {
		if id == excludeID {
			continue
		}
		deliver(conn, data, event)
	}
	return nil
}

// SendTo delivers event+payload to a single connected member.
// It reports false when the connection is not in any room.
func (b *Broadcaster) SendTo(connectionID string, event domain.Event, payload any) (bool, error) {
	data, err := encode(event, payload)
	if err != nil {
		return false, err
	}
	conn, ok := b.registry.connection(connectionID)
	if !ok {
		return false, nil
	}
	deliver(conn, data, event)
	return true, nil
}

// Reply sends event+payload straight to conn, whether or not it has joined a room.
func Reply(conn domain.Connection, event domain.Event, payload any) error {
	data, err := encode(event, payload)
	if err != nil {
		return err
	}
	deliver(conn, data, event)
	return nil
}

func encode(event domain.Event, payload any) ([]byte, error) {
	env, err := domain.NewEnvelope(event, payload)
	if err != nil {
		return nil, fmt.Errorf("encode %s payload: %w", event, err)
	}
	data, err := json.Marshal(env)
	if err != nil {
		return nil, fmt.Errorf("encode %s envelope: %w", event, err)
	}
	return data, nil
}

func deliver(conn domain.Connection, data []byte, event domain.Event) {
	if err := conn.Send(data); err != nil {
		slog.Warn("dropping unreachable connection", "connectionId", conn.ID(), "event", event, "error", err)
		go conn.Close()
	}
}
