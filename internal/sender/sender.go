// Package sender implements the single background outbound-write worker
// shared by the lobby thread and every game thread.
package sender

import (
	"encoding/binary"
	"errors"
	"fmt"
	"net"
	"sync"
	"time"

	"tablehall/internal/constants"
	"tablehall/internal/wire"
)

// ErrQueueFull is passed to Callback.OnSendError when the outbound queue
// could not accept another item. Send never blocks to wait for room.
var ErrQueueFull = errors.New("sender: outbound queue full")

// Callback receives write failures and queue-full drops. The callback New
// falls back to when given nil (NewIgnoringCallback) discards them all: on a
// write failure the read side will observe the same socket failing and
// schedule the session's close, so acting twice on the same failure would
// just duplicate cleanup work. The server itself wires
// lobby.NewSenderCallback, which also closes the conn on ErrQueueFull.
type Callback interface {
	OnSendError(conn net.Conn, err error)
}

type ignoringCallback struct{}

func (ignoringCallback) OnSendError(net.Conn, error) {}

// NewIgnoringCallback returns a Callback that discards every write error.
func NewIgnoringCallback() Callback { return ignoringCallback{} }

type outboundItem struct {
	conn    net.Conn
	payload []byte
}

// Sender drains one channel of outbound items on a single goroutine. Because
// every write is issued from that one goroutine, packets for a given socket
// reach the wire in the order Send was called, and no per-socket locking is
// needed.
type Sender struct {
	queue    chan outboundItem
	callback Callback
	pool     *BytePool

	terminate chan struct{}
	terminateOnce sync.Once
	done      chan struct{}
}

// New constructs a Sender with the given queue depth. Run must be called to
// start the worker.
func New(queueDepth int, callback Callback) *Sender {
	if callback == nil {
		callback = NewIgnoringCallback()
	}
	return &Sender{
		queue:     make(chan outboundItem, queueDepth),
		callback:  callback,
		pool:      NewBytePool(constants.PacketHeaderSize + 256),
		terminate: make(chan struct{}),
		done:      make(chan struct{}),
	}
}

// Run drains the outbound queue until SignalTermination is called and the
// queue empties. Intended to be run in its own goroutine (or under an
// errgroup.Group), e.g. `g.Go(sender.Run)`.
func (s *Sender) Run() error {
	defer close(s.done)
	for {
		select {
		case item := <-s.queue:
			s.write(item)
		case <-s.terminate:
			// Drain whatever is already queued before exiting.
			for {
				select {
				case item := <-s.queue:
					s.write(item)
				default:
					return nil
				}
			}
		}
	}
}

func (s *Sender) write(item outboundItem) {
	buf := s.pool.Get(constants.PacketHeaderSize + len(item.payload))
	defer s.pool.Put(buf)

	binary.LittleEndian.PutUint16(buf[:constants.PacketHeaderSize], uint16(len(item.payload)))
	copy(buf[constants.PacketHeaderSize:], item.payload)

	if err := item.conn.SetWriteDeadline(time.Now().Add(constants.RecvTimeout * 4)); err != nil {
		s.callback.OnSendError(item.conn, fmt.Errorf("sender: set write deadline: %w", err))
		return
	}
	if _, err := item.conn.Write(buf); err != nil {
		s.callback.OnSendError(item.conn, fmt.Errorf("sender: write: %w", err))
	}
}

// Send encodes pkt and enqueues it for conn. It never blocks: if the queue
// is full the item is dropped and the callback is invoked with
// ErrQueueFull, matching the documented "close session on queue overflow"
// backpressure policy (the caller's callback is responsible for scheduling
// that close).
func (s *Sender) Send(conn net.Conn, pkt wire.Packet) {
	encoded := wire.Encode(pkt)
	select {
	case s.queue <- outboundItem{conn: conn, payload: encoded}:
	default:
		s.callback.OnSendError(conn, ErrQueueFull)
	}
}

// SignalTermination requests the worker stop after draining the queue.
// Idempotent.
func (s *Sender) SignalTermination() {
	s.terminateOnce.Do(func() {
		close(s.terminate)
	})
}

// Join waits up to timeout for Run to return after SignalTermination.
// Returns an error if the worker did not stop in time; the caller should
// log this and continue shutdown rather than block indefinitely.
func (s *Sender) Join(timeout time.Duration) error {
	select {
	case <-s.done:
		return nil
	case <-time.After(timeout):
		return fmt.Errorf("sender: worker did not stop within %s", timeout)
	}
}
