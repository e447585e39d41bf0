package game

import (
	"net"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"tablehall/internal/protocol"
	"tablehall/internal/session"
	"tablehall/internal/wire"
)

type fakeSender struct {
	mu   sync.Mutex
	sent []wire.Packet
}

func (f *fakeSender) Send(conn net.Conn, pkt wire.Packet) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.sent = append(f.sent, pkt)
}

type playerLeftNotice struct {
	gameID   uint32
	playerID uint32
}

type fakeLobby struct {
	mu      sync.Mutex
	removed []uint32
	left    []playerLeftNotice
}

func (f *fakeLobby) RemoveGame(gameID uint32) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.removed = append(f.removed, gameID)
}

func (f *fakeLobby) NotifyPlayerLeft(gameID uint32, playerID uint32) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.left = append(f.left, playerLeftNotice{gameID: gameID, playerID: playerID})
}

func (f *fakeLobby) removedIDs() []uint32 {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]uint32(nil), f.removed...)
}

func (f *fakeLobby) leftNotices() []playerLeftNotice {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]playerLeftNotice(nil), f.left...)
}

func establishedSession(id uint32, conn net.Conn, playerID uint32, name string) *session.Session {
	sess := session.New(id, conn, uuid.New())
	m := session.NewManager(1)
	_ = m.AddSession(sess)
	_ = m.SetSessionPlayerData(conn, &session.PlayerData{ID: playerID, Name: name})
	m.RemoveSession(conn)
	return sess
}

func TestGameThreadRosterAndPassword(t *testing.T) {
	server, client := net.Pipe()
	defer server.Close()
	defer client.Close()

	lobby := &fakeLobby{}
	gt := New(Descriptor{ID: 1, Name: "g1"}, &fakeSender{}, nil, lobby)
	gt.Init("secret", []byte("cfg"))

	assert.True(t, gt.CheckPassword("secret"))
	assert.False(t, gt.CheckPassword("wrong"))
	assert.Equal(t, uint32(1), gt.GetId())
	assert.Equal(t, "g1", gt.GetName())
	assert.Equal(t, []byte("cfg"), gt.GetGameData())

	sess := establishedSession(10, server, 500, "Alice")
	require.NoError(t, gt.AddSession(sess))

	assert.True(t, gt.IsPlayerConnected("Alice"))
	pd, ok := gt.GetPlayerDataByUniqueId(500)
	require.True(t, ok)
	assert.Equal(t, "Alice", pd.Name)
	assert.Contains(t, gt.GetPlayerIdList(), uint32(500))
}

func TestGameThreadDispatchesToLogic(t *testing.T) {
	server, client := net.Pipe()
	defer server.Close()
	defer client.Close()

	var mu sync.Mutex
	var received wire.Packet
	logic := logicFunc(func(gt *GameThread, sess *session.Session, pkt wire.Packet) {
		mu.Lock()
		defer mu.Unlock()
		received = pkt
	})

	lobby := &fakeLobby{}
	gt := New(Descriptor{ID: 2, Name: "g2"}, &fakeSender{}, logic, lobby)
	sess := establishedSession(11, server, 1, "Bob")
	require.NoError(t, gt.AddSession(sess))

	done := make(chan error, 1)
	go func() { done <- gt.Run() }()

	encoded := wire.Encode(wire.RetrievePlayerInfo{PlayerID: 1})
	require.NoError(t, protocol.WriteFrame(client, encoded, time.Now().Add(time.Second)))

	require.Eventually(t, func() bool {
		mu.Lock()
		defer mu.Unlock()
		return received != nil
	}, time.Second, 10*time.Millisecond)

	gt.SignalTermination()
	require.NoError(t, gt.Join(time.Second))
	<-done
}

func TestGameThreadNotifiesLobbyWhenEmptied(t *testing.T) {
	server, client := net.Pipe()

	lobby := &fakeLobby{}
	gt := New(Descriptor{ID: 3, Name: "g3"}, &fakeSender{}, nil, lobby)
	sess := establishedSession(12, server, 2, "Carol")
	require.NoError(t, gt.AddSession(sess))

	done := make(chan error, 1)
	go func() { done <- gt.Run() }()

	client.Close()
	server.Close()

	require.Eventually(t, func() bool {
		return len(lobby.removedIDs()) == 1
	}, time.Second, 10*time.Millisecond)

	notices := lobby.leftNotices()
	require.Len(t, notices, 1)
	assert.Equal(t, uint32(3), notices[0].gameID)
	assert.Equal(t, uint32(2), notices[0].playerID)

	gt.SignalTermination()
	require.NoError(t, gt.Join(time.Second))
	<-done
}

type logicFunc func(gt *GameThread, sess *session.Session, pkt wire.Packet)

func (f logicFunc) HandlePacket(gt *GameThread, sess *session.Session, pkt wire.Packet) {
	f(gt, sess, pkt)
}
