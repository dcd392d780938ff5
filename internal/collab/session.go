package collab

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"strings"
	"sync"

	"github.com/dontdude/coderoom/internal/domain"
)

// Transport carries protocol messages from a client to the server.
type Transport interface {
	Send(event domain.Event, payload any) error
}

// Session is one participant's view of one room: it keeps the local buffer and
// language in step with the other members.
//
// Inbound messages must be delivered to Handle from a single goroutine; local
// operations (buffer edits, SetLanguage) may come from any goroutine.
type Session struct {
	roomID      string
	displayName string
	transport   Transport
	buffer      Buffer
	notifier    domain.Notifier

	mu       sync.Mutex
	selfID   string
	language domain.Language
	members  []domain.Participant
	joined   bool

	unsubscribe func()
}

// NewSession binds a buffer to a room. A blank buffer is seeded with the
// template for lang; that seed is local initialization and is never sent.
func NewSession(roomID, displayName string, lang domain.Language, buf Buffer, t Transport, n domain.Notifier) *Session {
	if !lang.Valid() {
		lang = domain.DefaultLanguage
	}
	if n == nil {
		n = domain.Discard
	}
	s := &Session{
		roomID:      roomID,
		displayName: displayName,
		transport:   t,
		buffer:      buf,
		notifier:    n,
		language:    lang,
	}
	if isBlank(buf.Content()) {
		buf.SetContent(domain.Template(lang), OriginRemote)
	}
	s.unsubscribe = buf.OnChange(s.onBufferChange)
	return s
}

// Join announces the participant to the room.
func (s *Session) Join() error {
	return s.transport.Send(domain.EventJoin, domain.JoinPayload{RoomID: s.roomID, DisplayName: s.displayName})
}

// Close stops propagating buffer changes.
func (s *Session) Close() {
	s.unsubscribe()
}

func (s *Session) RoomID() string { return s.roomID }

func (s *Session) Language() domain.Language {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.language
}

// Members returns the last roster received from the server.
func (s *Session) Members() []domain.Participant {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]domain.Participant, len(s.members))
	copy(out, s.members)
	return out
}

// SelfID returns the connection id the server assigned, empty until known.
func (s *Session) SelfID() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.selfID
}

// Joined reports whether the server has acknowledged this participant's join.
func (s *Session) Joined() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.joined
}

// SetLanguage changes the room's language from this participant.
func (s *Session) SetLanguage(lang domain.Language) error {
	if !lang.Valid() {
		return fmt.Errorf("unsupported language %q", lang)
	}
	s.mu.Lock()
	s.language = lang
	s.mu.Unlock()

	if err := s.transport.Send(domain.EventLanguageChange, domain.LanguageChangePayload{RoomID: s.roomID, Language: lang}); err != nil {
		return err
	}
	s.seedIfBlank(lang)
	return nil
}

// Handle applies one inbound protocol message.
func (s *Session) Handle(env domain.Envelope) error {
	switch env.Event {
	case domain.EventConnected:
		var p domain.ConnectedPayload
		if err := json.Unmarshal(env.Payload, &p); err != nil {
			return fmt.Errorf("decode %s: %w", env.Event, err)
		}
		s.mu.Lock()
		s.selfID = p.ConnectionID
		s.mu.Unlock()

	case domain.EventJoined:
		var p domain.JoinedPayload
		if err := json.Unmarshal(env.Payload, &p); err != nil {
			return fmt.Errorf("decode %s: %w", env.Event, err)
		}
		return s.onJoined(p)

	case domain.EventCodeChange:
		var p domain.CodeChangePayload
		if err := json.Unmarshal(env.Payload, &p); err != nil {
			return fmt.Errorf("decode %s: %w", env.Event, err)
		}
		s.buffer.SetContent(p.Content, OriginRemote)

	case domain.EventSyncCode:
		var p domain.SyncCodePayload
		if err := json.Unmarshal(env.Payload, &p); err != nil {
			return fmt.Errorf("decode %s: %w", env.Event, err)
		}
		s.buffer.SetContent(p.Content, OriginRemote)

	case domain.EventLanguageChange:
		var p domain.LanguageChangePayload
		if err := json.Unmarshal(env.Payload, &p); err != nil {
			return fmt.Errorf("decode %s: %w", env.Event, err)
		}
		if !p.Language.Valid() {
			return fmt.Errorf("unsupported language %q", p.Language)
		}
		s.mu.Lock()
		s.language = p.Language
		s.mu.Unlock()
		s.seedIfBlank(p.Language)

	case domain.EventSyncLanguage:
		var p domain.SyncLanguagePayload
		if err := json.Unmarshal(env.Payload, &p); err != nil {
			return fmt.Errorf("decode %s: %w", env.Event, err)
		}
		if !p.Language.Valid() {
			return fmt.Errorf("unsupported language %q", p.Language)
		}
		s.mu.Lock()
		s.language = p.Language
		s.mu.Unlock()

	case domain.EventDisconnected:
		var p domain.DisconnectedPayload
		if err := json.Unmarshal(env.Payload, &p); err != nil {
			return fmt.Errorf("decode %s: %w", env.Event, err)
		}
		s.mu.Lock()
		s.members = removeMember(s.members, p.ConnectionID)
		s.mu.Unlock()
		s.notifier.Notify(domain.NoticeInfo, fmt.Sprintf("%s left the room.", p.DisplayName))

	case domain.EventError:
		var p domain.ErrorPayload
		if err := json.Unmarshal(env.Payload, &p); err != nil {
			return fmt.Errorf("decode %s: %w", env.Event, err)
		}
		s.notifier.Notify(domain.NoticeFailure, p.Message)

	default:
		slog.Debug("ignoring unknown event", "event", env.Event)
	}
	return nil
}

func (s *Session) onJoined(p domain.JoinedPayload) error {
	s.mu.Lock()
	s.members = p.Members
	self := s.selfID
	lang := s.language
	isSelf := self != "" && p.ConnectionID == self
	if isSelf {
		s.joined = true
	}
	s.mu.Unlock()

	if isSelf {
		return nil
	}

	s.notifier.Notify(domain.NoticeInfo, fmt.Sprintf("%s joined the room.", p.DisplayName))

	// Snapshot push: the newcomer gets our content and language directly.
	if err := s.transport.Send(domain.EventSyncCode, domain.SyncCodePayload{
		Content:      s.buffer.Content(),
		ConnectionID: p.ConnectionID,
	}); err != nil {
		return err
	}
	return s.transport.Send(domain.EventSyncLanguage, domain.SyncLanguagePayload{
		ConnectionID: p.ConnectionID,
		Language:     lang,
	})
}

// seedIfBlank replaces a blank buffer with lang's template. The seed propagates,
// so switching language in an empty room gives everyone the same boilerplate.
func (s *Session) seedIfBlank(lang domain.Language) {
	if isBlank(s.buffer.Content()) {
		s.buffer.SetContent(domain.Template(lang), OriginTemplate)
	}
}

func (s *Session) onBufferChange(content string, origin Origin) {
	if !origin.Propagates() {
		return
	}
	if err := s.transport.Send(domain.EventCodeChange, domain.CodeChangePayload{RoomID: s.roomID, Content: content}); err != nil {
		slog.Warn("code change not sent", "roomId", s.roomID, "error", err)
	}
}

func isBlank(content string) bool {
	return strings.TrimSpace(content) == ""
}

func removeMember(members []domain.Participant, connectionID string) []domain.Participant {
	out := members[:0:0]
	for _, m := range members {
		if m.ConnectionID != connectionID {
			out = append(out, m)
		}
	}
	return out
}
