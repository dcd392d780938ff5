package domain

import "encoding/json"

// Event names a message of the room protocol.
type Event string

const (
	// EventConnected is sent by the server to a fresh connection with its own id.
	EventConnected      Event = "connected"
	EventJoin           Event = "join"
	EventJoined         Event = "joined"
	EventCodeChange     Event = "code-change"
	EventSyncCode       Event = "sync-code"
	EventLanguageChange Event = "language-change"
	EventSyncLanguage   Event = "sync-language"
	EventDisconnected   Event = "disconnected"
	// EventError reports a rejected message back to its sender.
	EventError Event = "error"
)

// Envelope is the frame every protocol message travels in.
type Envelope struct {
	Event   Event           `json:"event"`
	Payload json.RawMessage `json:"payload,omitempty"`
}

// NewEnvelope encodes payload into an Envelope.
func NewEnvelope(event Event, payload any) (Envelope, error) {
	env := Envelope{Event: event}
	if payload == nil {
		return env, nil
	}
	raw, err := json.Marshal(payload)
	if err != nil {
		return Envelope{}, err
	}
	env.Payload = raw
	return env, nil
}

// Participant is a connection's identity within a room.
type Participant struct {
	ConnectionID string `json:"connectionId"`
	DisplayName  string `json:"displayName"`
}

type ConnectedPayload struct {
	ConnectionID string `json:"connectionId"`
}

type JoinPayload struct {
	RoomID      string `json:"roomId"`
	DisplayName string `json:"displayName"`
}

type JoinedPayload struct {
	Members      []Participant `json:"members"`
	DisplayName  string        `json:"displayName"`
	ConnectionID string        `json:"connectionId"`
}

type CodeChangePayload struct {
	RoomID  string `json:"roomId"`
	Content string `json:"content"`
}

// SyncCodePayload addresses the joiner when sent by a client and names the
// responder when delivered by the server.
type SyncCodePayload struct {
	Content      string `json:"content"`
	ConnectionID string `json:"connectionId"`
}

type LanguageChangePayload struct {
	RoomID   string   `json:"roomId"`
	Language Language `json:"language"`
}

// SyncLanguagePayload follows the same addressing rule as SyncCodePayload.
type SyncLanguagePayload struct {
	ConnectionID string   `json:"connectionId"`
	Language     Language `json:"language"`
}

type DisconnectedPayload struct {
	ConnectionID string `json:"connectionId"`
	DisplayName  string `json:"displayName"`
}

type ErrorPayload struct {
	Message string `json:"message"`
}

// Connection is one participant's transport as seen by the server.
type Connection interface {
	ID() string
	Send(data []byte) error
	Close() error
}

// MessageHandler reacts to the lifecycle and inbound frames of a Connection.
type MessageHandler interface {
	Connect(conn Connection)
	Handle(conn Connection, data []byte)
	Disconnect(conn Connection)
}
