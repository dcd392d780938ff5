package session

import (
	"log/slog"
	"sort"
	"sync"

	"github.com/dontdude/coderoom/internal/domain"
)

type member struct {
	participant domain.Participant
	conn        domain.Connection
}

type room struct {
	id      string
	members map[string]member

	// fanout serializes deliveries so every member sees the same order.
	fanout sync.Mutex
}

// Registry tracks which connections are in which room.
// Each join and leave is applied atomically; a connection is in at most one room.
type Registry struct {
	mu          sync.RWMutex
	rooms       map[string]*room
	memberships map[string]string // connectionID -> roomID
}

func NewRegistry() *Registry {
	return &Registry{
		rooms:       make(map[string]*room),
		memberships: make(map[string]string),
	}
}

// Join adds the participant to roomID and returns the members that were already there.
// If the connection was in another room it is removed from it first, and that room's id
// is returned as previous so the caller can announce the departure.
func (r *Registry) Join(roomID string, p domain.Participant, conn domain.Connection) (peers []domain.Participant, previous string) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if old, ok := r.memberships[p.ConnectionID]; ok && old != roomID {
		r.removeLocked(old, p.ConnectionID)
		previous = old
	}

	rm, exists := r.rooms[roomID]
	if !exists {
		rm = &room{id: roomID, members: make(map[string]member)}
		r.rooms[roomID] = rm
	}

	for id, m := range rm.members {
		if id != p.ConnectionID {
			peers = append(peers, m.participant)
		}
	}
	sortParticipants(peers)

	rm.members[p.ConnectionID] = member{participant: p, conn: conn}
	r.memberships[p.ConnectionID] = roomID

	slog.Info("participant joined", "roomId", roomID, "connectionId", p.ConnectionID, "members", len(rm.members))
	return peers, previous
}

// Leave removes the connection from whichever room holds it.
// Leaving twice, or without having joined, is a no-op that reports ok=false.
func (r *Registry) Leave(connectionID string) (roomID string, p domain.Participant, ok bool) {
	r.mu.Lock()
	defer r.mu.Unlock()

	roomID, ok = r.memberships[connectionID]
	if !ok {
		return "", domain.Participant{}, false
	}
	p = r.removeLocked(roomID, connectionID)
	return roomID, p, true
}

func (r *Registry) removeLocked(roomID, connectionID string) domain.Participant {
	delete(r.memberships, connectionID)

	rm, exists := r.rooms[roomID]
	if !exists {
		return domain.Participant{}
	}
	m := rm.members[connectionID]
	delete(rm.members, connectionID)

	slog.Info("participant left", "roomId", roomID, "connectionId", connectionID, "members", len(rm.members))

	if len(rm.members) == 0 {
		delete(r.rooms, roomID)
		slog.Info("room removed", "roomId", roomID)
	}
	return m.participant
}

// Members returns the room's participants ordered by connection id.
func (r *Registry) Members(roomID string) []domain.Participant {
	r.mu.RLock()
	defer r.mu.RUnlock()

	rm, exists := r.rooms[roomID]
	if !exists {
		return nil
	}
	out := make([]domain.Participant, 0, len(rm.members))
	for _, m := range rm.members {
		out = append(out, m.participant)
	}
	sortParticipants(out)
	return out
}

// RoomOf returns the room the connection is currently in.
func (r *Registry) RoomOf(connectionID string) (string, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	roomID, ok := r.memberships[connectionID]
	return roomID, ok
}

// Stats reports the number of live rooms and members.
func (r *Registry) Stats() (rooms, members int) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.rooms), len(r.memberships)
}

// connections snapshots the room's connections and returns the room's fan-out lock
// already held. The caller must unlock it once delivery is done.
func (r *Registry) connections(roomID string) (map[string]domain.Connection, *sync.Mutex) {
	r.mu.RLock()
	rm, exists := r.rooms[roomID]
	if !exists {
		r.mu.RUnlock()
		return nil, nil
	}
	conns := make(map[string]domain.Connection, len(rm.members))
	for id, m := range rm.members {
		conns[id] = m.conn
	}
	rm.fanout.Lock()
	r.mu.RUnlock()
	return conns, &rm.fanout
}

func (r *Registry) connection(connectionID string) (domain.Connection, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	roomID, ok := r.memberships[connectionID]
	if !ok {
		return nil, false
	}
	m, ok := r.rooms[roomID].members[connectionID]
	return m.conn, ok
}

// Roster returns the peers reported by Join plus the joiner, ordered like Members.
func Roster(peers []domain.Participant, joiner domain.Participant) []domain.Participant {
	out := make([]domain.Participant, 0, len(peers)+1)
	out = append(out, peers...)
	out = append(out, joiner)
	sortParticipants(out)
	return out
}

func sortParticipants(ps []domain.Participant) {
	sort.Slice(ps, func(i, j int) bool { return ps[i].ConnectionID < ps[j].ConnectionID })
}
