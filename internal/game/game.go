// Package game implements the lobby-facing contract of a single game room.
// What happens inside a game — card dealing, betting rounds — is out of
// scope here and delegated to an injected GameLogic; this package only
// handles how sessions enter, leave, and are dispatched to once they
// belong to a room.
package game

import (
	"fmt"
	"sync"
	"time"

	"tablehall/internal/constants"
	"tablehall/internal/session"
	"tablehall/internal/wire"
)

// GameLogic handles packets addressed to an established game session. The
// default, NewNoopLogic, ignores everything: it exists so GameThread has a
// real, exercised dispatch loop without this package having to know any
// gameplay rules.
type GameLogic interface {
	HandlePacket(gt *GameThread, sess *session.Session, pkt wire.Packet)
}

type noopLogic struct{}

func (noopLogic) HandlePacket(*GameThread, *session.Session, wire.Packet) {}

// NewNoopLogic returns a GameLogic that discards every packet.
func NewNoopLogic() GameLogic { return noopLogic{} }

// LobbyCallback is the narrow capability a GameThread needs back into the
// lobby. A full back-pointer to LobbyThread would create an ownership
// cycle; this interface avoids it.
type LobbyCallback interface {
	RemoveGame(gameID uint32)
	// NotifyPlayerLeft reports that playerID's connection failed while
	// seated in gameID, so the lobby can broadcast GameListPlayerLeft to
	// its own Established sessions.
	NotifyPlayerLeft(gameID uint32, playerID uint32)
}

// Descriptor is the GameDirectory-visible state of a room.
type Descriptor struct {
	ID       uint32
	Name     string
	Password string
	GameData []byte
}

// GameThread owns a set of sessions that joined or created this game and
// runs its own read/dispatch loop over them, using the same Sender the
// lobby uses.
type GameThread struct {
	desc     Descriptor
	descMu   sync.RWMutex
	sessions *session.Manager
	sender   session.PacketSender
	logic    GameLogic
	lobby    LobbyCallback

	terminate     chan struct{}
	terminateOnce sync.Once
	done          chan struct{}
	doneOnce      sync.Once
}

// New constructs a GameThread. logic may be nil, in which case packets are
// discarded (NewNoopLogic).
func New(desc Descriptor, sender session.PacketSender, logic GameLogic, lobby LobbyCallback) *GameThread {
	if logic == nil {
		logic = NewNoopLogic()
	}
	return &GameThread{
		desc:      desc,
		sessions:  session.NewManager(constants.SendQueueSize),
		sender:    sender,
		logic:     logic,
		lobby:     lobby,
		terminate: make(chan struct{}),
		done:      make(chan struct{}),
	}
}

// Init sets the room's password and opaque configuration payload.
func (g *GameThread) Init(password string, gameData []byte) {
	g.descMu.Lock()
	defer g.descMu.Unlock()
	g.desc.Password = password
	g.desc.GameData = gameData
}

// AddSession transfers an already-Established session into this game.
func (g *GameThread) AddSession(sess *session.Session) error {
	return g.sessions.AddEstablishedSession(sess)
}

// CheckPassword reports whether pw matches the room's password.
func (g *GameThread) CheckPassword(pw string) bool {
	g.descMu.RLock()
	defer g.descMu.RUnlock()
	return g.desc.Password == pw
}

// GetId returns the room's id, allocated by the lobby.
func (g *GameThread) GetId() uint32 {
	g.descMu.RLock()
	defer g.descMu.RUnlock()
	return g.desc.ID
}

// GetName returns the room's display name.
func (g *GameThread) GetName() string {
	g.descMu.RLock()
	defer g.descMu.RUnlock()
	return g.desc.Name
}

// GetGameData returns the opaque game-configuration payload.
func (g *GameThread) GetGameData() []byte {
	g.descMu.RLock()
	defer g.descMu.RUnlock()
	return g.desc.GameData
}

// GetPlayerIdList returns the unique player ids currently seated.
func (g *GameThread) GetPlayerIdList() []uint32 {
	return g.sessions.PlayerIDs()
}

// GetPlayerDataByUniqueId looks up a seated player's data.
func (g *GameThread) GetPlayerDataByUniqueId(id uint32) (*session.PlayerData, bool) {
	sess, ok := g.sessions.GetSessionByUniquePlayerId(id)
	if !ok {
		return nil, false
	}
	return sess.Player()
}

// IsPlayerConnected reports whether name is seated in this room.
func (g *GameThread) IsPlayerConnected(name string) bool {
	return g.sessions.IsPlayerConnected(name)
}

// Run is the room's read/dispatch loop. It exits when SignalTermination is
// called; the lobby is expected to do so from RemoveGameLoop, whether it
// was told to by this game (via LobbyCallback.RemoveGame, once the roster
// empties) or is tearing down the whole server.
func (g *GameThread) Run() error {
	defer g.doneOnce.Do(func() { close(g.done) })

	emptyNotified := false
	for {
		select {
		case <-g.terminate:
			g.sessions.Clear()
			return nil
		default:
		}

		res, ok := g.sessions.Select(constants.SessionSelectTimeout)
		if !ok {
			if !emptyNotified && g.sessions.GetRawSessionCount() == 0 {
				emptyNotified = true
				g.lobby.RemoveGame(g.GetId())
			}
			continue
		}

		if res.Err != nil {
			pd, hadPlayer := res.Session.Player()
			g.sessions.RemoveSession(res.Session.Conn())
			_ = res.Session.Conn().Close()
			if hadPlayer {
				g.lobby.NotifyPlayerLeft(g.GetId(), pd.ID)
			}
			if !emptyNotified && g.sessions.GetRawSessionCount() == 0 {
				emptyNotified = true
				g.lobby.RemoveGame(g.GetId())
			}
			continue
		}

		if res.Packet == nil {
			continue
		}
		g.logic.HandlePacket(g, res.Session, res.Packet)
	}
}

// SignalTermination requests Run stop. Idempotent.
func (g *GameThread) SignalTermination() {
	g.terminateOnce.Do(func() { close(g.terminate) })
}

// Join waits up to timeout for Run to return.
func (g *GameThread) Join(timeout time.Duration) error {
	select {
	case <-g.done:
		return nil
	case <-time.After(timeout):
		return fmt.Errorf("game: room %d did not stop within %s", g.GetId(), timeout)
	}
}
