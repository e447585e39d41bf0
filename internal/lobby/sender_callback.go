package lobby

import (
	"errors"
	"net"

	"tablehall/internal/sender"
)

// senderCallback is the shared Sender's error callback, used for both the
// lobby's and every GameThread's sessions. Ordinary write failures are
// ignored: the session's own watcher will shortly observe the same failure
// as a read error and schedule cleanup, so acting here too would just
// duplicate that work. A full outbound queue is different: nothing will
// ever surface it as a read error on its own, so per the documented "close
// session on queue overflow" policy this closes the conn outright. Closing
// it (rather than reaching into SessionManager or GameDirectory from the
// Sender's own goroutine) forces exactly the read error the owning
// component — the lobby or a GameThread, whichever currently owns the
// conn — already knows how to clean up after, without violating the
// single-owner invariant by mutating someone else's session list.
type senderCallback struct{}

func (senderCallback) OnSendError(conn net.Conn, err error) {
	if errors.Is(err, sender.ErrQueueFull) {
		_ = conn.Close()
	}
}

// NewSenderCallback returns the shared sender.Callback.
func NewSenderCallback() senderCallback {
	return senderCallback{}
}
