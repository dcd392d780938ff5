package protocol

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"strings"

	"github.com/dontdude/coderoom/internal/domain"
	"github.com/dontdude/coderoom/internal/session"
)

// DefaultDisplayName is used when a join carries no name.
const DefaultDisplayName = "Anonymous"

// Handler relays room protocol messages between connections.
// It never stores or inspects buffer content.
type Handler struct {
	registry    *session.Registry
	broadcaster *session.Broadcaster
}

var _ domain.MessageHandler = (*Handler)(nil)

func NewHandler(r *session.Registry, b *session.Broadcaster) *Handler {
	return &Handler{registry: r, broadcaster: b}
}

// Connect tells a fresh connection its own id.
func (h *Handler) Connect(conn domain.Connection) {
	if err := session.Reply(conn, domain.EventConnected, domain.ConnectedPayload{ConnectionID: conn.ID()}); err != nil {
		slog.Error("connected reply failed", "connectionId", conn.ID(), "error", err)
	}
}

func (h *Handler) Handle(conn domain.Connection, data []byte) {
	var env domain.Envelope
	if err := json.Unmarshal(data, &env); err != nil {
		h.reject(conn, "", fmt.Errorf("invalid message: %w", err))
		return
	}

	var err error
	switch env.Event {
	case domain.EventJoin:
		err = h.join(conn, env.Payload)
	case domain.EventCodeChange:
		err = h.codeChange(conn, env.Payload)
	case domain.EventSyncCode:
		err = h.syncCode(conn, env.Payload)
	case domain.EventLanguageChange:
		err = h.languageChange(conn, env.Payload)
	case domain.EventSyncLanguage:
		err = h.syncLanguage(conn, env.Payload)
	default:
		err = fmt.Errorf("unknown event %q", env.Event)
	}
	if err != nil {
		h.reject(conn, env.Event, err)
	}
}

// Disconnect removes the connection from its room and tells the remaining members.
func (h *Handler) Disconnect(conn domain.Connection) {
	roomID, p, ok := h.registry.Leave(conn.ID())
	if !ok {
		return
	}
	h.announceDeparture(roomID, p)
}

func (h *Handler) join(conn domain.Connection, raw json.RawMessage) error {
	var in domain.JoinPayload
	if err := decodePayload(raw, &in); err != nil {
		return err
	}
	in.RoomID = roomKey(in.RoomID)
	if in.RoomID == "" {
		return fmt.Errorf("roomId is required")
	}
	name := strings.TrimSpace(in.DisplayName)
	if name == "" {
		name = DefaultDisplayName
	}

	p := domain.Participant{ConnectionID: conn.ID(), DisplayName: name}
	peers, previous := h.registry.Join(in.RoomID, p, conn)
	if previous != "" {
		h.announceDeparture(previous, p)
	}

	return h.broadcaster.Broadcast(in.RoomID, domain.EventJoined, domain.JoinedPayload{
		Members:      session.Roster(peers, p),
		DisplayName:  name,
		ConnectionID: conn.ID(),
	}, "")
}

func (h *Handler) codeChange(conn domain.Connection, raw json.RawMessage) error {
	var in domain.CodeChangePayload
	if err := decodePayload(raw, &in); err != nil {
		return err
	}
	in.RoomID = roomKey(in.RoomID)
	if err := h.requireMember(conn, in.RoomID); err != nil {
		return err
	}
	return h.broadcaster.Broadcast(in.RoomID, domain.EventCodeChange, in, conn.ID())
}

func (h *Handler) languageChange(conn domain.Connection, raw json.RawMessage) error {
	var in domain.LanguageChangePayload
	if err := decodePayload(raw, &in); err != nil {
		return err
	}
	if !in.Language.Valid() {
		return fmt.Errorf("unsupported language %q", in.Language)
	}
	in.RoomID = roomKey(in.RoomID)
	if err := h.requireMember(conn, in.RoomID); err != nil {
		return err
	}
	return h.broadcaster.Broadcast(in.RoomID, domain.EventLanguageChange, in, conn.ID())
}

func (h *Handler) syncCode(conn domain.Connection, raw json.RawMessage) error {
	var in domain.SyncCodePayload
	if err := decodePayload(raw, &in); err != nil {
		return err
	}
	if err := h.requireSameRoom(conn, in.ConnectionID); err != nil {
		return err
	}
	_, err := h.broadcaster.SendTo(in.ConnectionID, domain.EventSyncCode, domain.SyncCodePayload{
		Content:      in.Content,
		ConnectionID: conn.ID(),
	})
	return err
}

func (h *Handler) syncLanguage(conn domain.Connection, raw json.RawMessage) error {
	var in domain.SyncLanguagePayload
	if err := decodePayload(raw, &in); err != nil {
		return err
	}
	if !in.Language.Valid() {
		return fmt.Errorf("unsupported language %q", in.Language)
	}
	if err := h.requireSameRoom(conn, in.ConnectionID); err != nil {
		return err
	}
	_, err := h.broadcaster.SendTo(in.ConnectionID, domain.EventSyncLanguage, domain.SyncLanguagePayload{
		ConnectionID: conn.ID(),
		Language:     in.Language,
	})
	return err
}

func (h *Handler) announceDeparture(roomID string, p domain.Participant) {
	err := h.broadcaster.Broadcast(roomID, domain.EventDisconnected, domain.DisconnectedPayload{
		ConnectionID: p.ConnectionID,
		DisplayName:  p.DisplayName,
	}, p.ConnectionID)
	if err != nil {
		slog.Error("departure broadcast failed", "roomId", roomID, "connectionId", p.ConnectionID, "error", err)
	}
}

func (h *Handler) requireMember(conn domain.Connection, roomID string) error {
	current, ok := h.registry.RoomOf(conn.ID())
	if !ok || current != roomID {
		return fmt.Errorf("not a member of room %q", roomID)
	}
	return nil
}

func (h *Handler) requireSameRoom(conn domain.Connection, targetID string) error {
	if targetID == "" {
		return fmt.Errorf("connectionId is required")
	}
	sender, ok := h.registry.RoomOf(conn.ID())
	if !ok {
		return fmt.Errorf("join a room first")
	}
	target, ok := h.registry.RoomOf(targetID)
	if !ok || target != sender {
		return fmt.Errorf("connection %q is not in room %q", targetID, sender)
	}
	return nil
}

func (h *Handler) reject(conn domain.Connection, event domain.Event, err error) {
	slog.Warn("message rejected", "connectionId", conn.ID(), "event", event, "error", err)
	if rerr := session.Reply(conn, domain.EventError, domain.ErrorPayload{Message: err.Error()}); rerr != nil {
		slog.Error("error reply failed", "connectionId", conn.ID(), "error", rerr)
	}
}

// roomKey is the form a room id is registered and looked up under.
func roomKey(id string) string {
	return strings.TrimSpace(id)
}

func decodePayload(raw json.RawMessage, dst any) error {
	if len(raw) == 0 {
		return fmt.Errorf("payload is required")
	}
	if err := json.Unmarshal(raw, dst); err != nil {
		return fmt.Errorf("invalid payload: %w", err)
	}
	return nil
}
