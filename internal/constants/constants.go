// Package constants holds the normative timing and protocol limits for the
// lobby/game networking core.
package constants

import "time"

// Protocol version. Only the major component is checked on Init.
const (
	NetVersionMajor uint16 = 3
	NetVersionMinor uint16 = 0
)

// MaxNameSize bounds player display names (field from the protocol definition).
const MaxNameSize = 24

// ComputerPlayerName is the reserved prefix for server-created AI participants.
// Human player names may not start with it.
const ComputerPlayerName = "Computer"

// SessionIDUnassigned is the reserved session id meaning "unassigned / reject-in-progress".
const SessionIDUnassigned uint32 = 0

// Session and admission limits.
const (
	ServerMaxNumSessions     = 64
	ServerCloseSessionDelay  = 10 * time.Second
	ConnectQueueCapacity     = 256
	CloseSessionListCapacity = 256
)

// Timeouts for the various blocking points in the system.
const (
	RecvTimeout                     = 50 * time.Millisecond
	SenderThreadTerminateTimeout    = 3 * time.Second
	GameThreadTerminateTimeout      = 3 * time.Second
	NetAcceptThreadTerminateTimeout = 2 * time.Second
	SessionSelectTimeout            = 50 * time.Millisecond
)

// PacketHeaderSize is the length-prefix size for the wire framing (2-byte LE uint16).
const PacketHeaderSize = 2

// MaxFrameSize bounds a single packet payload to guard against a hostile
// or corrupt length header. It is below 65535, the largest length the
// 2-byte header can carry, so an accepted payload's length always fits the
// header and an oversized header value is rejected.
const MaxFrameSize = 32 * 1024

// SendQueueSize is the default depth of the Sender's outbound channel and the
// size hint used for the Sender's buffer pool.
const SendQueueSize = 512
