// Package lobby implements the central orchestrator: it dequeues newly
// accepted connections, drives the per-session protocol state machine,
// maintains the directory of active games, schedules deferred session
// closure, and reaps terminated games.
package lobby

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math/rand/v2"
	"sync"
	"sync/atomic"
	"time"

	"github.com/tidwall/gjson"

	"tablehall/internal/acceptor"
	"tablehall/internal/constants"
	"tablehall/internal/game"
	"tablehall/internal/receiver"
	"tablehall/internal/sender"
	"tablehall/internal/session"
	"tablehall/internal/wire"
)

// Config holds the lobby's own settings, as opposed to transport settings
// owned by AcceptThread.
type Config struct {
	// Password gates the Init handshake. Empty means no password required.
	Password string
	// MaxSessions caps the number of registered lobby sessions admitted
	// before ErrServerFull kicks in. Zero means
	// constants.ServerMaxNumSessions.
	MaxSessions int
}

type closeEntry struct {
	sess        *session.Session
	scheduledAt time.Time
}

// LobbyThread is the central state machine described in the package doc.
type LobbyThread struct {
	cfg          Config
	sessions     *session.Manager
	sender       *sender.Sender
	connectQueue <-chan acceptor.ConnectData
	callback     ServerCallback
	newGameLogic func() game.GameLogic
	logger       *slog.Logger

	closeMu   sync.Mutex
	closeList []closeEntry

	removeGameCh chan uint32

	dirMu sync.RWMutex
	games map[uint32]*game.GameThread

	idMu       sync.Mutex
	sessionIDs map[uint32]struct{}

	nextPlayerID atomic.Uint32
	nextGameID   atomic.Uint32

	terminate     chan struct{}
	terminateOnce sync.Once
	done          chan struct{}
	doneOnce      sync.Once
}

// New constructs a LobbyThread. callback and newGameLogic may be nil; they
// default to a logging callback and a no-op game logic respectively.
func New(
	cfg Config,
	sessions *session.Manager,
	snd *sender.Sender,
	connectQueue <-chan acceptor.ConnectData,
	callback ServerCallback,
	logger *slog.Logger,
	newGameLogic func() game.GameLogic,
) *LobbyThread {
	if logger == nil {
		logger = slog.Default()
	}
	if callback == nil {
		callback = NewLoggingCallback(logger)
	}
	if cfg.MaxSessions == 0 {
		cfg.MaxSessions = constants.ServerMaxNumSessions
	}
	return &LobbyThread{
		cfg:          cfg,
		sessions:     sessions,
		sender:       snd,
		connectQueue: connectQueue,
		callback:     callback,
		newGameLogic: newGameLogic,
		logger:       logger,
		games:        make(map[uint32]*game.GameThread),
		removeGameCh: make(chan uint32, constants.ServerMaxNumSessions),
		sessionIDs:   make(map[uint32]struct{}),
		terminate:    make(chan struct{}),
		done:         make(chan struct{}),
	}
}

// Run is the lobby's main loop. It returns when ctx is cancelled or
// SignalTermination is called, after running the full shutdown sequence.
func (l *LobbyThread) Run(ctx context.Context) error {
	defer l.doneOnce.Do(func() { close(l.done) })
	for {
		select {
		case <-ctx.Done():
			l.shutdown()
			return nil
		case <-l.terminate:
			l.shutdown()
			return nil
		default:
		}

		l.drainConnectQueue()
		l.processOne()
		l.sweepCloseList()
		l.drainRemoveGame()
	}
}

// SignalTermination requests Run stop. Idempotent.
func (l *LobbyThread) SignalTermination() {
	l.terminateOnce.Do(func() { close(l.terminate) })
}

// Join waits up to timeout for Run to return.
func (l *LobbyThread) Join(timeout time.Duration) error {
	select {
	case <-l.done:
		return nil
	case <-time.After(timeout):
		return fmt.Errorf("lobby: did not stop within %s", timeout)
	}
}

// RemoveGame implements game.LobbyCallback: a GameThread calls this once
// its roster empties (or it otherwise decides it is done). The actual
// teardown happens synchronously on the lobby's own loop, in
// drainRemoveGame, never on the caller's goroutine.
func (l *LobbyThread) RemoveGame(gameID uint32) {
	select {
	case l.removeGameCh <- gameID:
	case <-l.terminate:
	}
}

// NotifyPlayerLeft implements game.LobbyCallback: a GameThread calls this
// from its own goroutine when a seated player's connection fails, so the
// lobby can tell everyone still browsing it. Broadcasting straight from the
// caller's goroutine is safe here, unlike RemoveGame's teardown: SessionManager
// and Sender are already internally synchronized, and this path does not
// touch GameDirectory or any other lobby-owned state.
func (l *LobbyThread) NotifyPlayerLeft(gameID uint32, playerID uint32) {
	l.sessions.SendToAllSessions(l.sender, wire.GameListPlayerLeft{GameID: gameID, PlayerID: playerID}, session.StateEstablished)
}

// --- connect queue -------------------------------------------------------

func (l *LobbyThread) drainConnectQueue() {
	select {
	case cd := <-l.connectQueue:
		l.handleNewConnection(cd)
	default:
	}
}

func (l *LobbyThread) handleNewConnection(cd acceptor.ConnectData) {
	if l.sessions.GetRawSessionCount() >= l.cfg.MaxSessions {
		l.logger.Warn("server full, rejecting connection", "correlationId", cd.CorrelationID)
		synthetic := session.New(constants.SessionIDUnassigned, cd.Conn, cd.CorrelationID)
		l.sender.Send(cd.Conn, wire.Error{Code: wire.ErrServerFull})
		l.scheduleDeferredClose(synthetic)
		return
	}

	id := l.allocateSessionID()
	sess := session.New(id, cd.Conn, cd.CorrelationID)
	if err := l.sessions.AddSession(sess); err != nil {
		l.logger.Error("failed to register session", "err", err, "correlationId", cd.CorrelationID)
		l.releaseSessionID(id)
		_ = cd.Conn.Close()
		return
	}
	l.logger.Debug("session accepted", "sessionId", id, "correlationId", cd.CorrelationID)
}

// allocateSessionID picks a random, non-zero 32-bit id not currently in
// use by a lobby session, retrying on collision. This is a deliberate
// redesign: the source this core is modelled on left collisions
// unchecked.
func (l *LobbyThread) allocateSessionID() uint32 {
	l.idMu.Lock()
	defer l.idMu.Unlock()
	for {
		id := rand.Uint32()
		if id == constants.SessionIDUnassigned {
			continue
		}
		if _, taken := l.sessionIDs[id]; taken {
			continue
		}
		l.sessionIDs[id] = struct{}{}
		return id
	}
}

func (l *LobbyThread) releaseSessionID(id uint32) {
	l.idMu.Lock()
	defer l.idMu.Unlock()
	delete(l.sessionIDs, id)
}

func (l *LobbyThread) nextUniquePlayerID() uint32 {
	return l.nextPlayerID.Add(1)
}

func (l *LobbyThread) nextUniqueGameID() uint32 {
	return l.nextGameID.Add(1)
}

// --- process loop ---------------------------------------------------------

func (l *LobbyThread) processOne() {
	res, ok := l.sessions.Select(constants.SessionSelectTimeout)
	if !ok {
		return
	}
	if res.Err != nil {
		osCode := 0
		var netErr *receiver.NetError
		if errors.As(res.Err, &netErr) {
			osCode = netErr.OSErrCode
		}
		l.callback.SignalNetServerError(wire.ErrTransport, osCode)
		l.scheduleDeferredClose(res.Session)
		return
	}
	if res.Packet == nil {
		return
	}
	l.dispatch(res.Session, res.Packet)
}

func (l *LobbyThread) dispatch(sess *session.Session, pkt wire.Packet) {
	switch sess.State() {
	case session.StateInit:
		l.handleInit(sess, pkt)
	case session.StateEstablished:
		l.handleEstablished(sess, pkt)
	}
}

func (l *LobbyThread) handleInit(sess *session.Session, pkt wire.Packet) {
	init, ok := pkt.(wire.Init)
	if !ok {
		l.rejectWithError(sess, wire.ErrInvalidState)
		return
	}
	if init.VersionMajor != constants.NetVersionMajor {
		l.rejectWithError(sess, wire.ErrVersionNotSupported)
		return
	}
	if init.Password != l.cfg.Password {
		l.rejectWithError(sess, wire.ErrInvalidPassword)
		return
	}
	if err := session.ValidateName(init.PlayerName); err != nil {
		l.rejectWithError(sess, wire.ErrInvalidPlayerName)
		return
	}
	if l.sessions.IsPlayerConnected(init.PlayerName) || l.isPlayerConnectedInAnyGame(init.PlayerName) {
		l.rejectWithError(sess, wire.ErrPlayerNameInUse)
		return
	}

	playerID := l.nextUniquePlayerID()
	pd := &session.PlayerData{ID: playerID, Name: init.PlayerName, Type: wire.PlayerTypeHuman, Rights: wire.PlayerRightsNormal}
	if err := l.sessions.SetSessionPlayerData(sess.Conn(), pd); err != nil {
		l.logger.Error("failed to attach player data", "err", err)
		l.rejectWithError(sess, wire.ErrInvalidState)
		return
	}

	l.sender.Send(sess.Conn(), wire.InitAck{SessionID: sess.ID(), PlayerID: playerID})
	for _, g := range l.gameSnapshots() {
		l.sender.Send(sess.Conn(), wire.GameListNew{
			GameID: g.ID,
			Info:   wire.GameInfo{Mode: wire.GameModeCreated, Name: g.Name, Data: g.GameData, Players: g.Players},
		})
	}
	l.callback.SignalNetServerPlayerJoined(init.PlayerName)
}

func (l *LobbyThread) handleEstablished(sess *session.Session, pkt wire.Packet) {
	switch p := pkt.(type) {
	case wire.RetrievePlayerInfo:
		l.handleRetrievePlayerInfo(sess, p)
	case wire.CreateGame:
		l.handleCreateGame(sess, p)
	case wire.JoinGame:
		l.handleJoinGame(sess, p)
	default:
		l.rejectWithError(sess, wire.ErrInvalidState)
	}
}

// handleRetrievePlayerInfo looks the id up in the lobby, then in every
// live game. An unknown id produces no reply: a silent ignore, matching
// the documented default for this previously-unspecified behavior.
func (l *LobbyThread) handleRetrievePlayerInfo(sess *session.Session, p wire.RetrievePlayerInfo) {
	if target, ok := l.sessions.GetSessionByUniquePlayerId(p.PlayerID); ok {
		if pd, has := target.Player(); has {
			l.sender.Send(sess.Conn(), wire.PlayerInfo{PlayerID: pd.ID, Name: pd.Name, PlayerType: pd.Type})
			return
		}
	}

	l.dirMu.RLock()
	defer l.dirMu.RUnlock()
	for _, gt := range l.games {
		if pd, ok := gt.GetPlayerDataByUniqueId(p.PlayerID); ok {
			l.sender.Send(sess.Conn(), wire.PlayerInfo{PlayerID: pd.ID, Name: pd.Name, PlayerType: pd.Type})
			return
		}
	}
}

func (l *LobbyThread) handleCreateGame(sess *session.Session, p wire.CreateGame) {
	gameID := l.nextUniqueGameID()
	if parsed := gjson.ParseBytes(p.GameData); parsed.Exists() {
		l.logger.Debug("create game payload", "gameId", gameID, "summary", parsed.String())
	}

	gt := game.New(game.Descriptor{ID: gameID, Name: p.Name}, l.sender, l.newLogic(), l)
	gt.Init(p.Password, p.GameData)

	l.removeFromLobby(sess)
	if err := gt.AddSession(sess); err != nil {
		l.logger.Error("failed to seat creator in new game", "err", err, "gameId", gameID)
		l.scheduleDeferredClose(sess)
		return
	}

	l.dirMu.Lock()
	l.games[gameID] = gt
	l.dirMu.Unlock()

	pd, _ := sess.Player()
	l.sessions.SendToAllSessions(l.sender, wire.GameListNew{
		GameID: gameID,
		Info:   wire.GameInfo{Mode: wire.GameModeCreated, Name: p.Name, Data: p.GameData, Players: []uint32{pd.ID}},
	}, session.StateEstablished)

	l.callback.SignalNetServerSuccess(gameID)

	go func() {
		if err := gt.Run(); err != nil {
			l.logger.Error("game thread exited with error", "gameId", gameID, "err", err)
		}
	}()
}

func (l *LobbyThread) handleJoinGame(sess *session.Session, p wire.JoinGame) {
	l.dirMu.RLock()
	gt, ok := l.games[p.GameID]
	l.dirMu.RUnlock()
	if !ok {
		l.sender.Send(sess.Conn(), wire.Error{Code: wire.ErrUnknownGame})
		return
	}
	if !gt.CheckPassword(p.Password) {
		l.sender.Send(sess.Conn(), wire.Error{Code: wire.ErrInvalidPassword})
		return
	}

	l.removeFromLobby(sess)
	if err := gt.AddSession(sess); err != nil {
		l.logger.Error("failed to seat joiner", "err", err, "gameId", p.GameID)
		l.scheduleDeferredClose(sess)
		return
	}

	pd, _ := sess.Player()
	l.sessions.SendToAllSessions(l.sender, wire.GameListPlayerJoined{GameID: p.GameID, PlayerID: pd.ID}, session.StateEstablished)
	l.callback.SignalNetServerSuccess(p.GameID)
}

func (l *LobbyThread) rejectWithError(sess *session.Session, code wire.ErrorCode) {
	l.sender.Send(sess.Conn(), wire.Error{Code: code})
	l.scheduleDeferredClose(sess)
}

// removeFromLobby takes sess out of the lobby's own SessionManager without
// closing its socket, freeing the session id for reuse. Used both when a
// session transfers into a game and when it is scheduled for deferred
// close.
func (l *LobbyThread) removeFromLobby(sess *session.Session) {
	l.sessions.RemoveSession(sess.Conn())
	l.releaseSessionID(sess.ID())
}

func (l *LobbyThread) scheduleDeferredClose(sess *session.Session) {
	if pd, ok := sess.Player(); ok {
		l.callback.SignalNetServerPlayerLeft(pd.Name)
	}
	l.removeFromLobby(sess)
	l.closeMu.Lock()
	l.closeList = append(l.closeList, closeEntry{sess: sess, scheduledAt: time.Now()})
	l.closeMu.Unlock()
}

func (l *LobbyThread) isPlayerConnectedInAnyGame(name string) bool {
	l.dirMu.RLock()
	defer l.dirMu.RUnlock()
	for _, gt := range l.games {
		if gt.IsPlayerConnected(name) {
			return true
		}
	}
	return false
}

type gameSnapshot struct {
	ID       uint32
	Name     string
	GameData []byte
	Players  []uint32
}

func (l *LobbyThread) gameSnapshots() []gameSnapshot {
	l.dirMu.RLock()
	defer l.dirMu.RUnlock()
	out := make([]gameSnapshot, 0, len(l.games))
	for _, gt := range l.games {
		out = append(out, gameSnapshot{
			ID:       gt.GetId(),
			Name:     gt.GetName(),
			GameData: gt.GetGameData(),
			Players:  gt.GetPlayerIdList(),
		})
	}
	return out
}

func (l *LobbyThread) newLogic() game.GameLogic {
	if l.newGameLogic != nil {
		return l.newGameLogic()
	}
	return game.NewNoopLogic()
}

// --- deferred close + game reaping -----------------------------------------

func (l *LobbyThread) sweepCloseList() {
	now := time.Now()
	l.closeMu.Lock()
	remaining := l.closeList[:0]
	var toClose []*session.Session
	for _, e := range l.closeList {
		if now.Sub(e.scheduledAt) >= constants.ServerCloseSessionDelay {
			toClose = append(toClose, e.sess)
		} else {
			remaining = append(remaining, e)
		}
	}
	l.closeList = remaining
	l.closeMu.Unlock()

	for _, sess := range toClose {
		_ = sess.Conn().Close()
	}
}

func (l *LobbyThread) drainRemoveGame() {
	for {
		select {
		case gameID := <-l.removeGameCh:
			l.reapGame(gameID)
		default:
			return
		}
	}
}

func (l *LobbyThread) reapGame(gameID uint32) {
	l.dirMu.Lock()
	gt, ok := l.games[gameID]
	if ok {
		delete(l.games, gameID)
	}
	l.dirMu.Unlock()
	if !ok {
		return
	}

	gt.SignalTermination()
	if err := gt.Join(constants.GameThreadTerminateTimeout); err != nil {
		l.logger.Warn("game thread join timed out", "gameId", gameID, "err", err)
	}

	l.sessions.SendToAllSessions(l.sender, wire.GameListUpdate{GameID: gameID, Mode: wire.GameModeClosed}, session.StateEstablished)
}

// --- shutdown ---------------------------------------------------------------

func (l *LobbyThread) shutdown() {
	l.dirMu.Lock()
	games := make([]*game.GameThread, 0, len(l.games))
	for _, gt := range l.games {
		games = append(games, gt)
	}
	l.games = make(map[uint32]*game.GameThread)
	l.dirMu.Unlock()

	for _, gt := range games {
		gt.SignalTermination()
	}
	for _, gt := range games {
		if err := gt.Join(constants.GameThreadTerminateTimeout); err != nil {
			l.logger.Warn("game thread join timed out during shutdown", "err", err)
		}
	}

	l.sender.SignalTermination()
	if err := l.sender.Join(constants.SenderThreadTerminateTimeout); err != nil {
		l.logger.Warn("sender did not stop in time during shutdown", "err", err)
	}

	l.drainConnectQueueOnShutdown()

	l.closeMu.Lock()
	l.closeList = nil
	l.closeMu.Unlock()

	l.sessions.Clear()
}

func (l *LobbyThread) drainConnectQueueOnShutdown() {
	for {
		select {
		case cd := <-l.connectQueue:
			_ = cd.Conn.Close()
		default:
			return
		}
	}
}
