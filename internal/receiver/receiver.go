// Package receiver implements the stateless "read one packet, bounded by a
// timeout" helper used by the lobby and every game thread.
package receiver

import (
	"errors"
	"fmt"
	"net"
	"syscall"
	"time"

	"tablehall/internal/protocol"
	"tablehall/internal/wire"
)

// ErrKind classifies a receive failure.
type ErrKind int

const (
	// ErrKindDecode means a frame was read but its payload did not parse
	// into a known packet.
	ErrKindDecode ErrKind = iota
	// ErrKindTransport means the underlying connection failed (reset,
	// closed, short read other than a deadline expiry).
	ErrKindTransport
)

// NetError is the typed error surfaced by Recv for anything other than a
// deadline expiry, carrying an OS error code when one is available so
// callers can report it upstream (ServerCallback.SignalNetServerError).
type NetError struct {
	Kind      ErrKind
	OSErrCode int
	Err       error
}

func (e *NetError) Error() string {
	return fmt.Sprintf("receiver: %s", e.Err)
}

func (e *NetError) Unwrap() error {
	return e.Err
}

// Recv reads one length-prefixed frame from conn, bounded by timeout, and
// decodes it into a wire.Packet. A deadline expiry with no data read is not
// an error: it returns (nil, nil), matching the "no session is starved, try
// again next tick" contract used by the session watchers.
func Recv(conn net.Conn, timeout time.Duration) (wire.Packet, error) {
	buf := make([]byte, 0, 512)
	data, err := protocol.ReadFrame(conn, buf, time.Now().Add(timeout))
	if err != nil {
		var netErr net.Error
		if errors.As(err, &netErr) && netErr.Timeout() {
			return nil, nil
		}
		return nil, &NetError{Kind: ErrKindTransport, OSErrCode: osErrorCode(err), Err: err}
	}
	pkt, err := wire.Decode(data)
	if err != nil {
		return nil, &NetError{Kind: ErrKindDecode, Err: err}
	}
	return pkt, nil
}

// osErrorCode extracts the underlying syscall errno when the error chain
// carries one, and 0 otherwise.
func osErrorCode(err error) int {
	var errno syscall.Errno
	if errors.As(err, &errno) {
		return int(errno)
	}
	return 0
}
