// internal/session/registry.go
package session

import (
	"errors"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"github.com/joachimageron/WhoIsIt-sub003/internal/auth"
)

// ErrNotFound is the only failure the registry reports. Missing sessions
// are never fatal; callers treat them as already-gone connections.
var ErrNotFound = errors.New("session: not found")

// Session is one live network connection and its resolved identity. A
// session binds to at most one (room, player) pair at a time; the player
// itself outlives the session, so disconnection never touches room state.
type Session struct {
	ID       uuid.UUID
	Identity auth.Identity

	// RoomCode and PlayerID are zero until a successful join binds them.
	RoomCode string
	PlayerID uuid.UUID

	ConnectedAt time.Time
	LastSeenAt  time.Time

	// Out carries serialized frames to the connection's write pump.
	Out chan []byte
	// Cancel tears down the connection's goroutines.
	Cancel func()
}

// Send pushes a frame onto the session's outbound channel without ever
// blocking. A frame to a stalled or closed session is dropped; the state
// that produced it is already committed and a reconnect resyncs in full.
func (s *Session) Send(frame []byte) bool {
	select {
	case s.Out <- frame:
		return true
	default:
		logrus.WithField("session", s.ID).Warn("session: outbound channel full, dropping frame")
		return false
	}
}

// Registry maps live sessions to identities and room bindings. It is the
// only resource shared across room lanes, so its lock is held strictly for
// map operations and never across game logic. It has no game semantics.
type Registry struct {
	mu       sync.RWMutex
	sessions map[uuid.UUID]*Session
}

// NewRegistry creates an empty registry. One per process, created at start
// and cleared only through explicit Unregister calls.
func NewRegistry() *Registry {
	return &Registry{sessions: make(map[uuid.UUID]*Session)}
}

// Register records a new live session under the given id.
func (r *Registry) Register(id uuid.UUID, identity auth.Identity, out chan []byte, cancel func()) *Session {
	now := time.Now()
	s := &Session{
		ID:          id,
		Identity:    identity,
		ConnectedAt: now,
		LastSeenAt:  now,
		Out:         out,
		Cancel:      cancel,
	}
	r.mu.Lock()
	r.sessions[id] = s
	r.mu.Unlock()
	return s
}

// Lookup resolves a session id.
func (r *Registry) Lookup(id uuid.UUID) (*Session, bool) {
	r.mu.RLock()
	s, ok := r.sessions[id]
	r.mu.RUnlock()
	return s, ok
}

// BindToRoom binds a session to a (room, player) pair. Idempotent: a prior
// binding on the same session is overwritten. If a different live session
// is already bound to the same pair, the new binding wins and the old
// session is unbound and returned so the caller can retire its connection —
// this is the reconnection path.
func (r *Registry) BindToRoom(id uuid.UUID, roomCode string, playerID uuid.UUID) (*Session, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	s, ok := r.sessions[id]
	if !ok {
		return nil, ErrNotFound
	}

	var superseded *Session
	for _, other := range r.sessions {
		if other.ID != id && other.RoomCode == roomCode && other.PlayerID == playerID {
			other.RoomCode = ""
			other.PlayerID = uuid.Nil
			superseded = other
			break
		}
	}

	s.RoomCode = roomCode
	s.PlayerID = playerID
	s.LastSeenAt = time.Now()
	return superseded, nil
}

// Unbind clears a session's room binding, leaving the session alive.
func (r *Registry) Unbind(id uuid.UUID) {
	r.mu.Lock()
	if s, ok := r.sessions[id]; ok {
		s.RoomCode = ""
		s.PlayerID = uuid.Nil
	}
	r.mu.Unlock()
}

// Binding reads a session's room binding under the registry lock.
func (r *Registry) Binding(id uuid.UUID) (roomCode string, playerID uuid.UUID, ok bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	s, ok := r.sessions[id]
	if !ok {
		return "", uuid.Nil, false
	}
	return s.RoomCode, s.PlayerID, true
}

// Unregister removes the session record only. Player and room state are
// untouched; a disconnected player stays present but unreachable.
func (r *Registry) Unregister(id uuid.UUID) {
	r.mu.Lock()
	delete(r.sessions, id)
	r.mu.Unlock()
}

// Touch refreshes the session's last-seen timestamp.
func (r *Registry) Touch(id uuid.UUID) {
	r.mu.Lock()
	if s, ok := r.sessions[id]; ok {
		s.LastSeenAt = time.Now()
	}
	r.mu.Unlock()
}

// SessionsInRoom returns every live session bound to a room code. The
// returned slice is a copy; senders iterate it without holding the lock.
func (r *Registry) SessionsInRoom(roomCode string) []*Session {
	r.mu.RLock()
	defer r.mu.RUnlock()
	var out []*Session
	for _, s := range r.sessions {
		if s.RoomCode == roomCode {
			out = append(out, s)
		}
	}
	return out
}

// SessionForPlayer resolves the live session bound to a specific player in
// a room, if any.
func (r *Registry) SessionForPlayer(roomCode string, playerID uuid.UUID) (*Session, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	for _, s := range r.sessions {
		if s.RoomCode == roomCode && s.PlayerID == playerID {
			return s, true
		}
	}
	return nil, false
}
