package server

import (
	"errors"
	"fmt"

	"github.com/google/uuid"

	"github.com/qaboard/qaboard/pkg/protocol"
)

// ErrSessionNotFound indicates the session id is not registered.
var ErrSessionNotFound = errors.New("session not found")

// Session represents one live connection. Owned exclusively by the
// SessionRegistry; the transport layer holds only conn ↔ session id for
// delivery. All fields are mutated on the event loop only.
type Session struct {
	ID        int64
	Handle    string
	AuthToken string // opaque, immutable, generated at creation
	TopicID   int64  // protocol.NoTopic until the first settopic
	Conn      Conn
	LastSeen  int64 // milliseconds since epoch, updated by heartbeat
}

// SessionRegistry owns all connected sessions. Not safe for concurrent
// use; every mutation happens on the event loop.
type SessionRegistry struct {
	sessions map[int64]*Session
	ids      *IDAllocator
}

// NewSessionRegistry creates an empty registry with its own id allocator.
func NewSessionRegistry() *SessionRegistry {
	return &SessionRegistry{
		sessions: make(map[int64]*Session),
		ids:      NewIDAllocator(),
	}
}

// CreateSession allocates a fresh id, a generated default handle and an
// unguessable auth token, registers the session and returns it. The
// caller sends the welcome message.
func (r *SessionRegistry) CreateSession(conn Conn) *Session {
	id := r.ids.Next()
	sess := &Session{
		ID:        id,
		Handle:    fmt.Sprintf("user%d", id),
		AuthToken: uuid.NewString(),
		TopicID:   protocol.NoTopic,
		Conn:      conn,
	}
	r.sessions[id] = sess
	return sess
}

// Get returns a session by id.
func (r *SessionRegistry) Get(sessionID int64) (*Session, bool) {
	sess, ok := r.sessions[sessionID]
	return sess, ok
}

// DestroySession removes the session and returns it so the caller can
// clean up topic membership. A second call for the same id is a no-op:
// a disconnect may race with logic that already removed the session.
func (r *SessionRegistry) DestroySession(sessionID int64) (*Session, bool) {
	sess, ok := r.sessions[sessionID]
	if !ok {
		return nil, false
	}
	delete(r.sessions, sessionID)
	return sess, true
}

// SetHandle mutates the session's handle in place. Handles carry no
// uniqueness constraint; duplicates are allowed.
func (r *SessionRegistry) SetHandle(sessionID int64, handle string) error {
	sess, ok := r.sessions[sessionID]
	if !ok {
		return fmt.Errorf("%w: %d", ErrSessionNotFound, sessionID)
	}
	sess.Handle = handle
	return nil
}

// Count returns the number of live sessions.
func (r *SessionRegistry) Count() int {
	return len(r.sessions)
}

// All returns every live session.
func (r *SessionRegistry) All() []*Session {
	out := make([]*Session, 0, len(r.sessions))
	for _, sess := range r.sessions {
		out = append(out, sess)
	}
	return out
}
