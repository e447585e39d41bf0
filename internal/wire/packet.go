// Package wire defines the tagged-union packet types exchanged between
// clients and the lobby/game threads, and their binary encoding on top of
// the protocol package's byte-level primitives.
package wire

import (
	"fmt"

	"tablehall/internal/protocol"
)

// Kind discriminates the packet types carried inside a frame.
type Kind byte

const (
	KindInit Kind = iota + 1
	KindInitAck
	KindRetrievePlayerInfo
	KindPlayerInfo
	KindError
	KindCreateGame
	KindJoinGame
	KindGameListNew
	KindGameListUpdate
	KindGameListPlayerJoined
	KindGameListPlayerLeft
)

func (k Kind) String() string {
	switch k {
	case KindInit:
		return "Init"
	case KindInitAck:
		return "InitAck"
	case KindRetrievePlayerInfo:
		return "RetrievePlayerInfo"
	case KindPlayerInfo:
		return "PlayerInfo"
	case KindError:
		return "Error"
	case KindCreateGame:
		return "CreateGame"
	case KindJoinGame:
		return "JoinGame"
	case KindGameListNew:
		return "GameListNew"
	case KindGameListUpdate:
		return "GameListUpdate"
	case KindGameListPlayerJoined:
		return "GameListPlayerJoined"
	case KindGameListPlayerLeft:
		return "GameListPlayerLeft"
	default:
		return fmt.Sprintf("Kind(%d)", byte(k))
	}
}

// Packet is implemented by every concrete packet payload type.
type Packet interface {
	Kind() Kind
	encode(w *protocol.Writer)
}

// Encode serializes p as kind byte + payload, ready to hand to
// protocol.WriteFrame.
func Encode(p Packet) []byte {
	w := protocol.GetWriter()
	defer w.Put()
	w.WriteByte(byte(p.Kind()))
	p.encode(w)
	out := make([]byte, len(w.Bytes()))
	copy(out, w.Bytes())
	return out
}

// Decode parses a frame payload (as produced by Encode / protocol.ReadFrame)
// into a concrete Packet.
func Decode(data []byte) (Packet, error) {
	r := protocol.NewReader(data)
	kb, err := r.ReadByte()
	if err != nil {
		return nil, fmt.Errorf("wire: read kind: %w", err)
	}
	kind := Kind(kb)
	switch kind {
	case KindInit:
		return decodeInit(r)
	case KindInitAck:
		return decodeInitAck(r)
	case KindRetrievePlayerInfo:
		return decodeRetrievePlayerInfo(r)
	case KindPlayerInfo:
		return decodePlayerInfo(r)
	case KindError:
		return decodeError(r)
	case KindCreateGame:
		return decodeCreateGame(r)
	case KindJoinGame:
		return decodeJoinGame(r)
	case KindGameListNew:
		return decodeGameListNew(r)
	case KindGameListUpdate:
		return decodeGameListUpdate(r)
	case KindGameListPlayerJoined:
		return decodeGameListPlayerJoined(r)
	case KindGameListPlayerLeft:
		return decodeGameListPlayerLeft(r)
	default:
		return nil, fmt.Errorf("wire: unknown packet kind %d", kb)
	}
}

// PlayerType mirrors the protocol's player-type enumeration. Only Human is
// exercised by this core; the others are reserved for future use the same
// way the source leaves them.
type PlayerType byte

const (
	PlayerTypeHuman PlayerType = iota
	PlayerTypeComputer
)

// PlayerRights mirrors the protocol's rights enumeration.
type PlayerRights byte

const (
	PlayerRightsNormal PlayerRights = iota
	PlayerRightsAdmin
)

// GameMode is the lifecycle stage carried by GameListNew/GameListUpdate.
type GameMode byte

const (
	GameModeCreated GameMode = iota
	GameModeStarted
	GameModeClosed
)

// Init is the client's handshake request.
type Init struct {
	VersionMajor uint16
	VersionMinor uint16
	Password     string
	PlayerName   string
}

func (Init) Kind() Kind { return KindInit }

func (p Init) encode(w *protocol.Writer) {
	w.WriteUint16(p.VersionMajor)
	w.WriteUint16(p.VersionMinor)
	w.WriteString(p.Password)
	w.WriteString(p.PlayerName)
}

func decodeInit(r *protocol.Reader) (Packet, error) {
	var p Init
	var err error
	if p.VersionMajor, err = r.ReadUint16(); err != nil {
		return nil, err
	}
	if p.VersionMinor, err = r.ReadUint16(); err != nil {
		return nil, err
	}
	if p.Password, err = r.ReadString(); err != nil {
		return nil, err
	}
	if p.PlayerName, err = r.ReadString(); err != nil {
		return nil, err
	}
	return p, nil
}

// InitAck acknowledges a successful handshake. SessionID is reserved for a
// future reconnect-by-id feature and is currently unused by clients.
type InitAck struct {
	SessionID uint32
	PlayerID  uint32
}

func (InitAck) Kind() Kind { return KindInitAck }

func (p InitAck) encode(w *protocol.Writer) {
	w.WriteUint32(p.SessionID)
	w.WriteUint32(p.PlayerID)
}

func decodeInitAck(r *protocol.Reader) (Packet, error) {
	var p InitAck
	var err error
	if p.SessionID, err = r.ReadUint32(); err != nil {
		return nil, err
	}
	if p.PlayerID, err = r.ReadUint32(); err != nil {
		return nil, err
	}
	return p, nil
}

// RetrievePlayerInfo asks the lobby (or game) to resolve a player id to its
// display data.
type RetrievePlayerInfo struct {
	PlayerID uint32
}

func (RetrievePlayerInfo) Kind() Kind { return KindRetrievePlayerInfo }

func (p RetrievePlayerInfo) encode(w *protocol.Writer) {
	w.WriteUint32(p.PlayerID)
}

func decodeRetrievePlayerInfo(r *protocol.Reader) (Packet, error) {
	var p RetrievePlayerInfo
	var err error
	if p.PlayerID, err = r.ReadUint32(); err != nil {
		return nil, err
	}
	return p, nil
}

// PlayerInfo answers a RetrievePlayerInfo request.
type PlayerInfo struct {
	PlayerID   uint32
	Name       string
	PlayerType PlayerType
}

func (PlayerInfo) Kind() Kind { return KindPlayerInfo }

func (p PlayerInfo) encode(w *protocol.Writer) {
	w.WriteUint32(p.PlayerID)
	w.WriteString(p.Name)
	w.WriteByte(byte(p.PlayerType))
}

func decodePlayerInfo(r *protocol.Reader) (Packet, error) {
	var p PlayerInfo
	var err error
	if p.PlayerID, err = r.ReadUint32(); err != nil {
		return nil, err
	}
	if p.Name, err = r.ReadString(); err != nil {
		return nil, err
	}
	tb, err := r.ReadByte()
	if err != nil {
		return nil, err
	}
	p.PlayerType = PlayerType(tb)
	return p, nil
}

// ErrorCode is the taxonomy of error ids surfaced to clients.
type ErrorCode uint16

const (
	ErrNone ErrorCode = iota
	ErrVersionNotSupported
	ErrInvalidPassword
	ErrInvalidPlayerName
	ErrPlayerNameInUse
	ErrServerFull
	ErrUnknownGame
	ErrInvalidState
	ErrTransport
)

// Error is the single typed error packet sent before any terminal protocol
// rejection.
type Error struct {
	Code ErrorCode
}

func (Error) Kind() Kind { return KindError }

func (p Error) encode(w *protocol.Writer) {
	w.WriteUint16(uint16(p.Code))
}

func decodeError(r *protocol.Reader) (Packet, error) {
	code, err := r.ReadUint16()
	if err != nil {
		return nil, err
	}
	return Error{Code: ErrorCode(code)}, nil
}

// CreateGame asks the lobby to open a new game room.
type CreateGame struct {
	Name     string
	Password string
	GameData []byte
}

func (CreateGame) Kind() Kind { return KindCreateGame }

func (p CreateGame) encode(w *protocol.Writer) {
	w.WriteString(p.Name)
	w.WriteString(p.Password)
	w.WriteBytes(p.GameData)
}

func decodeCreateGame(r *protocol.Reader) (Packet, error) {
	var p CreateGame
	var err error
	if p.Name, err = r.ReadString(); err != nil {
		return nil, err
	}
	if p.Password, err = r.ReadString(); err != nil {
		return nil, err
	}
	if p.GameData, err = r.ReadBytes(); err != nil {
		return nil, err
	}
	return p, nil
}

// JoinGame asks the lobby to transfer the session into an existing game.
type JoinGame struct {
	GameID   uint32
	Password string
}

func (JoinGame) Kind() Kind { return KindJoinGame }

func (p JoinGame) encode(w *protocol.Writer) {
	w.WriteUint32(p.GameID)
	w.WriteString(p.Password)
}

func decodeJoinGame(r *protocol.Reader) (Packet, error) {
	var p JoinGame
	var err error
	if p.GameID, err = r.ReadUint32(); err != nil {
		return nil, err
	}
	if p.Password, err = r.ReadString(); err != nil {
		return nil, err
	}
	return p, nil
}

// GameInfo is the descriptor carried by GameListNew.
type GameInfo struct {
	Mode    GameMode
	Name    string
	Data    []byte
	Players []uint32
}

// GameListNew announces a newly created game to every Established lobby
// session, including the ones sent to a just-handshaken client for every
// game already open.
type GameListNew struct {
	GameID uint32
	Info   GameInfo
}

func (GameListNew) Kind() Kind { return KindGameListNew }

func (p GameListNew) encode(w *protocol.Writer) {
	w.WriteUint32(p.GameID)
	w.WriteByte(byte(p.Info.Mode))
	w.WriteString(p.Info.Name)
	w.WriteBytes(p.Info.Data)
	w.WriteUint32Slice(p.Info.Players)
}

func decodeGameListNew(r *protocol.Reader) (Packet, error) {
	var p GameListNew
	var err error
	if p.GameID, err = r.ReadUint32(); err != nil {
		return nil, err
	}
	mb, err := r.ReadByte()
	if err != nil {
		return nil, err
	}
	p.Info.Mode = GameMode(mb)
	if p.Info.Name, err = r.ReadString(); err != nil {
		return nil, err
	}
	if p.Info.Data, err = r.ReadBytes(); err != nil {
		return nil, err
	}
	if p.Info.Players, err = r.ReadUint32Slice(); err != nil {
		return nil, err
	}
	return p, nil
}

// GameListUpdate announces a lifecycle transition (started/closed) for an
// existing game.
type GameListUpdate struct {
	GameID uint32
	Mode   GameMode
}

func (GameListUpdate) Kind() Kind { return KindGameListUpdate }

func (p GameListUpdate) encode(w *protocol.Writer) {
	w.WriteUint32(p.GameID)
	w.WriteByte(byte(p.Mode))
}

func decodeGameListUpdate(r *protocol.Reader) (Packet, error) {
	var p GameListUpdate
	var err error
	if p.GameID, err = r.ReadUint32(); err != nil {
		return nil, err
	}
	mb, err := r.ReadByte()
	if err != nil {
		return nil, err
	}
	p.Mode = GameMode(mb)
	return p, nil
}

// GameListPlayerJoined notifies lobby sessions that a player left the
// lobby to join gameId.
type GameListPlayerJoined struct {
	GameID   uint32
	PlayerID uint32
}

func (GameListPlayerJoined) Kind() Kind { return KindGameListPlayerJoined }

func (p GameListPlayerJoined) encode(w *protocol.Writer) {
	w.WriteUint32(p.GameID)
	w.WriteUint32(p.PlayerID)
}

func decodeGameListPlayerJoined(r *protocol.Reader) (Packet, error) {
	var p GameListPlayerJoined
	var err error
	if p.GameID, err = r.ReadUint32(); err != nil {
		return nil, err
	}
	if p.PlayerID, err = r.ReadUint32(); err != nil {
		return nil, err
	}
	return p, nil
}

// GameListPlayerLeft notifies lobby sessions that a player left a game
// (back to the lobby, or disconnected).
type GameListPlayerLeft struct {
	GameID   uint32
	PlayerID uint32
}

func (GameListPlayerLeft) Kind() Kind { return KindGameListPlayerLeft }

func (p GameListPlayerLeft) encode(w *protocol.Writer) {
	w.WriteUint32(p.GameID)
	w.WriteUint32(p.PlayerID)
}

func decodeGameListPlayerLeft(r *protocol.Reader) (Packet, error) {
	var p GameListPlayerLeft
	var err error
	if p.GameID, err = r.ReadUint32(); err != nil {
		return nil, err
	}
	if p.PlayerID, err = r.ReadUint32(); err != nil {
		return nil, err
	}
	return p, nil
}
