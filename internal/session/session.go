package session

import (
	"net"
	"sync"
	"time"

	"github.com/google/uuid"
)

// State is the session's lifecycle state. Established is the only state
// that carries a PlayerData. State is a plain enum held beside a separate
// PlayerData pointer, so the types alone do not rule out a PlayerData while
// Init; both fields are unexported and change together only in
// setPlayerData, which is the one place that invariant is kept.
type State int

const (
	StateInit State = iota
	StateEstablished
)

func (s State) String() string {
	switch s {
	case StateInit:
		return "Init"
	case StateEstablished:
		return "Established"
	default:
		return "Unknown"
	}
}

// Session is the server-side handle for one connected client. A Session is
// owned by exactly one of {SessionManager, a GameThread, the deferred-close
// list} at any time; handing it from one to the next is a move, never a
// copy of the underlying conn.
type Session struct {
	id            uint32
	conn          net.Conn
	correlationID uuid.UUID
	acceptedAt    time.Time

	mu     sync.RWMutex
	state  State
	player *PlayerData
}

// New constructs a Session in the Init state. id 0 is reserved for
// synthetic reject-in-progress sessions (e.g. the server-full path) and is
// never assigned to a real registered session.
func New(id uint32, conn net.Conn, correlationID uuid.UUID) *Session {
	return &Session{
		id:            id,
		conn:          conn,
		correlationID: correlationID,
		acceptedAt:    time.Now(),
		state:         StateInit,
	}
}

func (s *Session) ID() uint32               { return s.id }
func (s *Session) Conn() net.Conn           { return s.conn }
func (s *Session) CorrelationID() uuid.UUID { return s.correlationID }
func (s *Session) AcceptedAt() time.Time    { return s.acceptedAt }

// State reports the current tagged state.
func (s *Session) State() State {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.state
}

// Player returns the attached PlayerData and whether one is attached. Only
// ever non-nil once State() == StateEstablished.
func (s *Session) Player() (*PlayerData, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.player, s.player != nil
}

// setPlayerData attaches pd and advances the session to Established. Only
// the Manager calls this, from inside SetSessionPlayerData, so the
// Init-has-no-PlayerData invariant has exactly one place it can be broken.
func (s *Session) setPlayerData(pd *PlayerData) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.player = pd
	s.state = StateEstablished
}
