package lobby

import (
	"context"
	"net"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"tablehall/internal/acceptor"
	"tablehall/internal/constants"
	"tablehall/internal/protocol"
	"tablehall/internal/sender"
	"tablehall/internal/session"
	"tablehall/internal/wire"
)

const testTimeout = 2 * time.Second

type testHarness struct {
	lt    *LobbyThread
	queue chan acceptor.ConnectData
	snd   *sender.Sender
	stop  func()
}

func newHarness(t *testing.T, cfg Config) *testHarness {
	t.Helper()

	queue := make(chan acceptor.ConnectData, 8)
	sessions := session.NewManager(64)
	snd := sender.New(64, nil)
	lt := New(cfg, sessions, snd, queue, nil, nil, nil)

	ctx, cancel := context.WithCancel(context.Background())
	senderDone := make(chan struct{})
	go func() {
		_ = snd.Run()
		close(senderDone)
	}()
	lobbyDone := make(chan struct{})
	go func() {
		_ = lt.Run(ctx)
		close(lobbyDone)
	}()

	stop := func() {
		cancel()
		<-lobbyDone
		snd.SignalTermination()
		<-senderDone
	}
	t.Cleanup(stop)

	return &testHarness{lt: lt, queue: queue, snd: snd, stop: stop}
}

// connect simulates AcceptThread handing a freshly accepted connection to
// the lobby: it returns the client-facing end of a net.Pipe.
func (h *testHarness) connect(t *testing.T) net.Conn {
	t.Helper()
	server, client := net.Pipe()
	t.Cleanup(func() { _ = client.Close() })
	select {
	case h.queue <- acceptor.ConnectData{Conn: server, CorrelationID: uuid.New(), AcceptedAt: time.Now()}:
	case <-time.After(testTimeout):
		t.Fatal("connect queue did not accept connection in time")
	}
	return client
}

func sendPacket(t *testing.T, conn net.Conn, pkt wire.Packet) {
	t.Helper()
	require.NoError(t, protocol.WriteFrame(conn, wire.Encode(pkt), time.Now().Add(testTimeout)))
}

func recvPacket(t *testing.T, conn net.Conn) wire.Packet {
	t.Helper()
	buf := make([]byte, 0, 512)
	data, err := protocol.ReadFrame(conn, buf, time.Now().Add(testTimeout))
	require.NoError(t, err)
	pkt, err := wire.Decode(data)
	require.NoError(t, err)
	return pkt
}

func handshake(t *testing.T, h *testHarness, name string) (net.Conn, uint32) {
	t.Helper()
	conn := h.connect(t)
	sendPacket(t, conn, wire.Init{VersionMajor: constants.NetVersionMajor, Password: h.lt.cfg.Password, PlayerName: name})
	pkt := recvPacket(t, conn)
	ack, ok := pkt.(wire.InitAck)
	require.True(t, ok, "expected InitAck, got %T", pkt)
	return conn, ack.PlayerID
}

// S1: valid handshake.
func TestHandshakeValid(t *testing.T) {
	h := newHarness(t, Config{Password: "secret"})
	conn := h.connect(t)
	sendPacket(t, conn, wire.Init{VersionMajor: constants.NetVersionMajor, Password: "secret", PlayerName: "Alice"})

	pkt := recvPacket(t, conn)
	ack, ok := pkt.(wire.InitAck)
	require.True(t, ok, "expected InitAck, got %T", pkt)
	assert.NotEqual(t, constants.SessionIDUnassigned, ack.SessionID)
	assert.NotZero(t, ack.PlayerID)
}

// S2: wrong password.
func TestHandshakeWrongPassword(t *testing.T) {
	h := newHarness(t, Config{Password: "secret"})
	conn := h.connect(t)
	sendPacket(t, conn, wire.Init{VersionMajor: constants.NetVersionMajor, Password: "bad", PlayerName: "Alice"})

	pkt := recvPacket(t, conn)
	errPkt, ok := pkt.(wire.Error)
	require.True(t, ok, "expected Error, got %T", pkt)
	assert.Equal(t, wire.ErrInvalidPassword, errPkt.Code)

	assert.Eventually(t, func() bool { return h.lt.sessions.GetRawSessionCount() == 0 }, testTimeout, 5*time.Millisecond)
}

// S3: name starts with the reserved "Computer" prefix.
func TestHandshakeReservedName(t *testing.T) {
	h := newHarness(t, Config{})
	conn := h.connect(t)
	sendPacket(t, conn, wire.Init{VersionMajor: constants.NetVersionMajor, PlayerName: "ComputerX"})

	pkt := recvPacket(t, conn)
	errPkt, ok := pkt.(wire.Error)
	require.True(t, ok, "expected Error, got %T", pkt)
	assert.Equal(t, wire.ErrInvalidPlayerName, errPkt.Code)
}

func TestHandshakeVersionMismatch(t *testing.T) {
	h := newHarness(t, Config{})
	conn := h.connect(t)
	sendPacket(t, conn, wire.Init{VersionMajor: constants.NetVersionMajor + 1, PlayerName: "Alice"})

	pkt := recvPacket(t, conn)
	errPkt, ok := pkt.(wire.Error)
	require.True(t, ok, "expected Error, got %T", pkt)
	assert.Equal(t, wire.ErrVersionNotSupported, errPkt.Code)
}

func TestHandshakeDuplicateName(t *testing.T) {
	h := newHarness(t, Config{})
	handshake(t, h, "Alice")

	conn := h.connect(t)
	sendPacket(t, conn, wire.Init{VersionMajor: constants.NetVersionMajor, PlayerName: "Alice"})
	pkt := recvPacket(t, conn)
	errPkt, ok := pkt.(wire.Error)
	require.True(t, ok, "expected Error, got %T", pkt)
	assert.Equal(t, wire.ErrPlayerNameInUse, errPkt.Code)
}

// S4: create then join, with a bystander observing the broadcast.
func TestCreateThenJoinBroadcasts(t *testing.T) {
	h := newHarness(t, Config{})
	aliceConn, _ := handshake(t, h, "Alice")
	bobConn, bobID := handshake(t, h, "Bob")
	carolConn, _ := handshake(t, h, "Carol")

	sendPacket(t, aliceConn, wire.CreateGame{Name: "g1", Password: ""})

	// Bob and Carol, still in the lobby, each see the new game.
	for _, conn := range []net.Conn{bobConn, carolConn} {
		pkt := recvPacket(t, conn)
		gln, ok := pkt.(wire.GameListNew)
		require.True(t, ok, "expected GameListNew, got %T", pkt)
		assert.Equal(t, "g1", gln.Info.Name)
	}

	var gameID uint32
	assert.Eventually(t, func() bool {
		h.lt.dirMu.RLock()
		defer h.lt.dirMu.RUnlock()
		for id := range h.lt.games {
			gameID = id
			return true
		}
		return false
	}, testTimeout, 5*time.Millisecond)

	sendPacket(t, bobConn, wire.JoinGame{GameID: gameID, Password: ""})

	pkt := recvPacket(t, carolConn)
	joined, ok := pkt.(wire.GameListPlayerJoined)
	require.True(t, ok, "expected GameListPlayerJoined, got %T", pkt)
	assert.Equal(t, gameID, joined.GameID)
	assert.Equal(t, bobID, joined.PlayerID)

	assert.Eventually(t, func() bool { return !h.lt.sessions.IsPlayerConnected("Bob") }, testTimeout, 5*time.Millisecond)
}

// S5: unknown game, session remains Established in the lobby.
func TestJoinUnknownGame(t *testing.T) {
	h := newHarness(t, Config{})
	bobConn, _ := handshake(t, h, "Bob")

	sendPacket(t, bobConn, wire.JoinGame{GameID: 9999, Password: ""})
	pkt := recvPacket(t, bobConn)
	errPkt, ok := pkt.(wire.Error)
	require.True(t, ok, "expected Error, got %T", pkt)
	assert.Equal(t, wire.ErrUnknownGame, errPkt.Code)

	assert.True(t, h.lt.sessions.IsPlayerConnected("Bob"))
}

func TestJoinWrongPassword(t *testing.T) {
	h := newHarness(t, Config{})
	aliceConn, _ := handshake(t, h, "Alice")
	bobConn, _ := handshake(t, h, "Bob")

	sendPacket(t, aliceConn, wire.CreateGame{Name: "g1", Password: "hunter2"})
	_ = recvPacket(t, bobConn) // GameListNew

	var gameID uint32
	assert.Eventually(t, func() bool {
		h.lt.dirMu.RLock()
		defer h.lt.dirMu.RUnlock()
		for id := range h.lt.games {
			gameID = id
			return true
		}
		return false
	}, testTimeout, 5*time.Millisecond)

	sendPacket(t, bobConn, wire.JoinGame{GameID: gameID, Password: "wrong"})
	pkt := recvPacket(t, bobConn)
	errPkt, ok := pkt.(wire.Error)
	require.True(t, ok, "expected Error, got %T", pkt)
	assert.Equal(t, wire.ErrInvalidPassword, errPkt.Code)
}

// S6: server full. The two already-admitted sessions are unaffected.
func TestServerFull(t *testing.T) {
	h := newHarness(t, Config{MaxSessions: 2})
	aliceConn, _ := handshake(t, h, "Alice")
	bobConn, _ := handshake(t, h, "Bob")

	conn := h.connect(t)
	pkt := recvPacket(t, conn)
	errPkt, ok := pkt.(wire.Error)
	require.True(t, ok, "expected Error, got %T", pkt)
	assert.Equal(t, wire.ErrServerFull, errPkt.Code)

	assert.True(t, h.lt.sessions.IsPlayerConnected("Alice"))
	assert.True(t, h.lt.sessions.IsPlayerConnected("Bob"))
	_ = aliceConn
	_ = bobConn
}

func TestRetrievePlayerInfoKnownAndUnknown(t *testing.T) {
	h := newHarness(t, Config{})
	aliceConn, _ := handshake(t, h, "Alice")
	_, bobID := handshake(t, h, "Bob")

	sendPacket(t, aliceConn, wire.RetrievePlayerInfo{PlayerID: bobID})
	pkt := recvPacket(t, aliceConn)
	info, ok := pkt.(wire.PlayerInfo)
	require.True(t, ok, "expected PlayerInfo, got %T", pkt)
	assert.Equal(t, "Bob", info.Name)

	// Unknown id: no reply ever arrives. Follow up with a request that does
	// reply, and check that's the only thing we received.
	sendPacket(t, aliceConn, wire.RetrievePlayerInfo{PlayerID: 999999})
	sendPacket(t, aliceConn, wire.RetrievePlayerInfo{PlayerID: bobID})
	pkt = recvPacket(t, aliceConn)
	_, ok = pkt.(wire.PlayerInfo)
	require.True(t, ok, "expected PlayerInfo, got %T", pkt)
}

func TestEstablishedInitIsInvalidState(t *testing.T) {
	h := newHarness(t, Config{})
	conn, _ := handshake(t, h, "Alice")

	sendPacket(t, conn, wire.Init{VersionMajor: constants.NetVersionMajor, PlayerName: "Alice2"})
	pkt := recvPacket(t, conn)
	errPkt, ok := pkt.(wire.Error)
	require.True(t, ok, "expected Error, got %T", pkt)
	assert.Equal(t, wire.ErrInvalidState, errPkt.Code)
}

func TestInitStateRejectsNonInitPacket(t *testing.T) {
	h := newHarness(t, Config{})
	conn := h.connect(t)

	sendPacket(t, conn, wire.JoinGame{GameID: 1})
	pkt := recvPacket(t, conn)
	errPkt, ok := pkt.(wire.Error)
	require.True(t, ok, "expected Error, got %T", pkt)
	assert.Equal(t, wire.ErrInvalidState, errPkt.Code)
}
