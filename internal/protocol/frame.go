package protocol

import (
	"encoding/binary"
	"fmt"
	"io"
	"net"
	"time"

	"tablehall/internal/constants"
)

// WriteFrame writes a length-prefixed frame: a 2-byte LE length header
// followed by payload. The caller supplies the deadline; a zero deadline
// means no deadline is set.
func WriteFrame(conn net.Conn, payload []byte, deadline time.Time) error {
	if len(payload) > constants.MaxFrameSize {
		return fmt.Errorf("protocol: frame payload too large: %d bytes", len(payload))
	}
	if !deadline.IsZero() {
		if err := conn.SetWriteDeadline(deadline); err != nil {
			return fmt.Errorf("protocol: set write deadline: %w", err)
		}
	}
	var header [constants.PacketHeaderSize]byte
	binary.LittleEndian.PutUint16(header[:], uint16(len(payload)))
	if _, err := conn.Write(header[:]); err != nil {
		return fmt.Errorf("protocol: write frame header: %w", err)
	}
	if len(payload) == 0 {
		return nil
	}
	if _, err := conn.Write(payload); err != nil {
		return fmt.Errorf("protocol: write frame payload: %w", err)
	}
	return nil
}

// ReadFrame reads one length-prefixed frame into buf, growing it if needed,
// and returns the slice of buf holding the payload. The caller supplies the
// read deadline; a zero deadline means no deadline is set. A deadline expiry
// is returned as a net.Error with Timeout() true, which callers treat as "no
// data this attempt" rather than a fatal error.
func ReadFrame(conn net.Conn, buf []byte, deadline time.Time) ([]byte, error) {
	if !deadline.IsZero() {
		if err := conn.SetReadDeadline(deadline); err != nil {
			return nil, fmt.Errorf("protocol: set read deadline: %w", err)
		}
	}
	var header [constants.PacketHeaderSize]byte
	if _, err := io.ReadFull(conn, header[:]); err != nil {
		return nil, err
	}
	n := binary.LittleEndian.Uint16(header[:])
	if int(n) > constants.MaxFrameSize {
		return nil, fmt.Errorf("protocol: frame too large: %d bytes", n)
	}
	if cap(buf) < int(n) {
		buf = make([]byte, n)
	}
	buf = buf[:n]
	if n == 0 {
		return buf, nil
	}
	if _, err := io.ReadFull(conn, buf); err != nil {
		return nil, err
	}
	return buf, nil
}
