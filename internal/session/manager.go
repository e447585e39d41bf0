package session

import (
	"errors"
	"net"
	"sync"
	"time"

	"tablehall/internal/constants"
	"tablehall/internal/receiver"
	"tablehall/internal/wire"
)

var (
	// ErrSocketRegistered is returned by AddSession when the conn is
	// already present in the manager.
	ErrSocketRegistered = errors.New("session: socket already registered")
	// ErrPlayerIDTaken and ErrPlayerNameTaken are returned by
	// SetSessionPlayerData when a secondary index already holds the value.
	ErrPlayerIDTaken   = errors.New("session: player id already registered")
	ErrPlayerNameTaken = errors.New("session: player name already registered")
	// ErrSessionNotFound is returned when an operation names a socket that
	// is not registered.
	ErrSessionNotFound = errors.New("session: not found")
)

// PacketSender is the narrow capability SendToAllSessions needs from the
// outbound worker. The concrete implementation lives in package sender;
// this interface exists so session does not import it.
type PacketSender interface {
	Send(conn net.Conn, pkt wire.Packet)
}

// SelectResult is what Select hands back: the session with data ready, the
// packet it produced, or the typed error the read failed with. Packet and
// Err are mutually exclusive except both nil, which never reaches the
// caller (that case is consumed internally as "try again").
type SelectResult struct {
	Session *Session
	Packet  wire.Packet
	Err     error
}

// watcherHandle lets the owner of a session stop its watcher goroutine and
// then block until that goroutine has actually returned, so the socket has
// no active reader before anyone hands it off elsewhere. stop is closed to
// request a stop; done is closed by watch itself right before it returns.
type watcherHandle struct {
	stop chan struct{}
	done chan struct{}
}

// Manager is the in-memory session registry: a primary index by socket and
// two secondary indices, all protected by one lock, plus the fan-in channel
// that realizes Select on top of per-session watcher goroutines (Go has no
// portable multi-socket readiness wait over net.Conn).
type Manager struct {
	mu           sync.RWMutex
	bySocket     map[net.Conn]*Session
	byPlayerID   map[uint32]*Session
	byPlayerName map[string]*Session
	watchers     map[net.Conn]*watcherHandle

	events chan SelectResult
}

// NewManager constructs an empty Manager. queueDepth bounds the fan-in
// channel; it should comfortably exceed the expected number of
// concurrently-ready sessions so a burst of inbound traffic does not block
// individual watchers.
func NewManager(queueDepth int) *Manager {
	return &Manager{
		bySocket:     make(map[net.Conn]*Session),
		byPlayerID:   make(map[uint32]*Session),
		byPlayerName: make(map[string]*Session),
		watchers:     make(map[net.Conn]*watcherHandle),
		events:       make(chan SelectResult, queueDepth),
	}
}

// AddSession registers sess in Init state and starts its watcher goroutine.
// It is an error to register a conn already present.
func (m *Manager) AddSession(sess *Session) error {
	m.mu.Lock()
	if _, exists := m.bySocket[sess.Conn()]; exists {
		m.mu.Unlock()
		return ErrSocketRegistered
	}
	h := &watcherHandle{stop: make(chan struct{}), done: make(chan struct{})}
	m.bySocket[sess.Conn()] = sess
	m.watchers[sess.Conn()] = h
	m.mu.Unlock()

	go m.watch(sess, h)
	return nil
}

// AddEstablishedSession registers sess, which already carries PlayerData
// (e.g. a session transferred in from the lobby after a successful
// handshake), populating the secondary indices from it immediately instead
// of waiting for a SetSessionPlayerData call that will never come. Used by
// GameThread, which only ever receives already-Established sessions.
func (m *Manager) AddEstablishedSession(sess *Session) error {
	m.mu.Lock()
	if _, exists := m.bySocket[sess.Conn()]; exists {
		m.mu.Unlock()
		return ErrSocketRegistered
	}
	pd, hasPD := sess.Player()
	if hasPD {
		if _, taken := m.byPlayerID[pd.ID]; taken {
			m.mu.Unlock()
			return ErrPlayerIDTaken
		}
		if _, taken := m.byPlayerName[pd.Name]; taken {
			m.mu.Unlock()
			return ErrPlayerNameTaken
		}
	}
	h := &watcherHandle{stop: make(chan struct{}), done: make(chan struct{})}
	m.bySocket[sess.Conn()] = sess
	m.watchers[sess.Conn()] = h
	if hasPD {
		m.byPlayerID[pd.ID] = sess
		m.byPlayerName[pd.Name] = sess
	}
	m.mu.Unlock()

	go m.watch(sess, h)
	return nil
}

// PlayerIDs returns the unique player ids of every Established session
// currently registered.
func (m *Manager) PlayerIDs() []uint32 {
	m.mu.RLock()
	defer m.mu.RUnlock()
	ids := make([]uint32, 0, len(m.byPlayerID))
	for id := range m.byPlayerID {
		ids = append(ids, id)
	}
	return ids
}

// watch repeatedly calls Recv on sess's conn, bounded by RecvTimeout per
// attempt, and forwards whatever it produces onto the shared events
// channel. It exits when told to stop, or after forwarding a read error
// (the lobby will remove the session in response, which stops it anyway).
// It always closes h.done on the way out, so RemoveSession and Clear can
// block until this goroutine has genuinely stopped reading the socket
// before anyone else starts reading it.
func (m *Manager) watch(sess *Session, h *watcherHandle) {
	defer close(h.done)

	for {
		select {
		case <-h.stop:
			return
		default:
		}

		pkt, err := receiver.Recv(sess.Conn(), constants.RecvTimeout)
		if pkt == nil && err == nil {
			continue
		}

		select {
		case m.events <- SelectResult{Session: sess, Packet: pkt, Err: err}:
		case <-h.stop:
			return
		}

		if err != nil {
			return
		}
	}
}

// Select waits up to timeout for the next session with a packet or error
// ready, draining exactly one event. It returns ok=false on timeout.
func (m *Manager) Select(timeout time.Duration) (result SelectResult, ok bool) {
	select {
	case res := <-m.events:
		return res, true
	case <-time.After(timeout):
		return SelectResult{}, false
	}
}

// RemoveSession removes conn from all indices and stops its watcher,
// without closing the socket: ownership of the conn may be moving to a
// GameThread or the deferred-close list. It blocks until the watcher
// goroutine has confirmed it stopped reading conn, so a caller handing the
// socket to a new owner (e.g. AddEstablishedSession on a GameThread's own
// Manager) never races a second reader against this one. Returns the
// removed session, or nil if conn was not registered.
func (m *Manager) RemoveSession(conn net.Conn) *Session {
	m.mu.Lock()
	sess, ok := m.bySocket[conn]
	if !ok {
		m.mu.Unlock()
		return nil
	}
	delete(m.bySocket, conn)
	if pd, has := sess.Player(); has {
		delete(m.byPlayerID, pd.ID)
		delete(m.byPlayerName, pd.Name)
	}
	h, hasWatcher := m.watchers[conn]
	delete(m.watchers, conn)
	m.mu.Unlock()

	if hasWatcher {
		close(h.stop)
		<-h.done
	}
	return sess
}

// SetSessionPlayerData attaches pd to the session owning conn and
// transitions it to Established, populating the secondary indices. Fails
// without mutating anything if the id or name is already registered by a
// different session, or if conn is not registered.
func (m *Manager) SetSessionPlayerData(conn net.Conn, pd *PlayerData) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	sess, ok := m.bySocket[conn]
	if !ok {
		return ErrSessionNotFound
	}
	if _, taken := m.byPlayerID[pd.ID]; taken {
		return ErrPlayerIDTaken
	}
	if _, taken := m.byPlayerName[pd.Name]; taken {
		return ErrPlayerNameTaken
	}
	sess.setPlayerData(pd)
	m.byPlayerID[pd.ID] = sess
	m.byPlayerName[pd.Name] = sess
	return nil
}

// GetSessionByUniquePlayerId looks up a session by player id, within the
// lobby's own sessions only (games maintain their own rosters).
func (m *Manager) GetSessionByUniquePlayerId(id uint32) (*Session, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	sess, ok := m.byPlayerID[id]
	return sess, ok
}

// IsPlayerConnected reports whether name is taken among the lobby's own
// Established sessions.
func (m *Manager) IsPlayerConnected(name string) bool {
	m.mu.RLock()
	defer m.mu.RUnlock()
	_, ok := m.byPlayerName[name]
	return ok
}

// SendToAllSessions enqueues pkt, via sender, to every session whose state
// equals stateFilter. Sessions in other states (e.g. still Init) never
// receive lobby broadcasts.
func (m *Manager) SendToAllSessions(sender PacketSender, pkt wire.Packet, stateFilter State) {
	m.mu.RLock()
	targets := make([]*Session, 0, len(m.bySocket))
	for _, sess := range m.bySocket {
		if sess.State() == stateFilter {
			targets = append(targets, sess)
		}
	}
	m.mu.RUnlock()

	for _, sess := range targets {
		sender.Send(sess.Conn(), pkt)
	}
}

// Clear removes and closes every registered session's socket, stopping all
// watchers, and waits for every watcher goroutine to confirm it has
// returned before giving back control. Used during shutdown.
func (m *Manager) Clear() {
	m.mu.Lock()
	watchers := m.watchers
	conns := m.bySocket
	m.bySocket = make(map[net.Conn]*Session)
	m.byPlayerID = make(map[uint32]*Session)
	m.byPlayerName = make(map[string]*Session)
	m.watchers = make(map[net.Conn]*watcherHandle)
	m.mu.Unlock()

	for _, h := range watchers {
		close(h.stop)
	}
	for conn := range conns {
		_ = conn.Close()
	}
	for _, h := range watchers {
		<-h.done
	}
}

// GetRawSessionCount returns the current registered count, including
// sessions still in Init state.
func (m *Manager) GetRawSessionCount() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.bySocket)
}
