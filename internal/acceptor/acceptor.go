// Package acceptor implements the listening side of the server: it turns
// raw connections into ConnectData and hands them to the lobby thread. It
// performs no protocol work and holds no session state.
package acceptor

import (
	"context"
	"fmt"
	"net"
	"sync"
	"time"

	"github.com/google/uuid"

	"tablehall/internal/constants"
)

// ConnectData wraps a freshly accepted connection with the bookkeeping the
// lobby thread wants attached to it from the very first log line.
type ConnectData struct {
	Conn          net.Conn
	CorrelationID uuid.UUID
	AcceptedAt    time.Time
}

// Config selects which listeners AcceptThread opens. Port is shared by
// every listener it binds.
type Config struct {
	Port       int
	EnableIPv6 bool
	EnableSCTP bool
}

// AcceptThread binds the configured listener(s) and funnels accepted
// connections into a connect queue owned by the caller (the lobby thread).
// The queue is a plain buffered channel: AcceptThread's send blocks when it
// is full, which is the backpressure mechanism described for the connect
// queue — there is no separate drop policy here.
type AcceptThread struct {
	cfg   Config
	queue chan<- ConnectData

	listeners []net.Listener

	terminate     chan struct{}
	terminateOnce sync.Once
	done          chan struct{}
	doneOnce      sync.Once
	wg            sync.WaitGroup
}

// New constructs an AcceptThread that will push accepted connections onto
// queue.
func New(cfg Config, queue chan<- ConnectData) *AcceptThread {
	return &AcceptThread{
		cfg:       cfg,
		queue:     queue,
		terminate: make(chan struct{}),
		done:      make(chan struct{}),
	}
}

// Listen opens the configured listener(s) without yet accepting on them.
// Separated from Serve so tests (and main) can read Addr() before the
// accept loop starts.
func (a *AcceptThread) Listen() error {
	if a.cfg.EnableSCTP {
		return fmt.Errorf("acceptor: SCTP transport is not supported by this build")
	}

	addr4 := fmt.Sprintf(":%d", a.cfg.Port)
	l4, err := net.Listen("tcp4", addr4)
	if err != nil {
		return fmt.Errorf("acceptor: listen tcp4 %s: %w", addr4, err)
	}
	a.listeners = append(a.listeners, l4)

	if a.cfg.EnableIPv6 {
		port := l4.Addr().(*net.TCPAddr).Port
		addr6 := fmt.Sprintf(":%d", port)
		l6, err := net.Listen("tcp6", addr6)
		if err != nil {
			l4.Close()
			return fmt.Errorf("acceptor: listen tcp6 %s: %w", addr6, err)
		}
		a.listeners = append(a.listeners, l6)
	}
	return nil
}

// Addr returns the address of the first listener (the IPv4 one), valid
// after Listen returns successfully.
func (a *AcceptThread) Addr() net.Addr {
	if len(a.listeners) == 0 {
		return nil
	}
	return a.listeners[0].Addr()
}

// Serve runs the accept loop(s) until ctx is cancelled or
// SignalTermination is called, then closes the listeners and waits (up to
// NetAcceptThreadTerminateTimeout) for in-flight accepts to unwind.
func (a *AcceptThread) Serve(ctx context.Context) error {
	for _, l := range a.listeners {
		a.wg.Add(1)
		go a.acceptLoop(l)
	}

	select {
	case <-ctx.Done():
	case <-a.terminate:
	}

	for _, l := range a.listeners {
		_ = l.Close()
	}

	waitDone := make(chan struct{})
	go func() {
		a.wg.Wait()
		close(waitDone)
	}()

	select {
	case <-waitDone:
	case <-time.After(constants.NetAcceptThreadTerminateTimeout):
	}
	a.doneOnce.Do(func() { close(a.done) })
	return nil
}

// Run is Listen followed by Serve, the shape cmd/server/main.go wires
// directly into an errgroup.Group.
func (a *AcceptThread) Run(ctx context.Context) error {
	if err := a.Listen(); err != nil {
		return err
	}
	return a.Serve(ctx)
}

func (a *AcceptThread) acceptLoop(l net.Listener) {
	defer a.wg.Done()
	for {
		conn, err := l.Accept()
		if err != nil {
			return
		}
		data := ConnectData{
			Conn:          conn,
			CorrelationID: uuid.New(),
			AcceptedAt:    time.Now(),
		}
		select {
		case a.queue <- data:
		case <-a.terminate:
			_ = conn.Close()
			return
		}
	}
}

// SignalTermination requests Serve stop. Idempotent.
func (a *AcceptThread) SignalTermination() {
	a.terminateOnce.Do(func() { close(a.terminate) })
}

// Join waits up to timeout for Serve to return.
func (a *AcceptThread) Join(timeout time.Duration) error {
	select {
	case <-a.done:
		return nil
	case <-time.After(timeout):
		return fmt.Errorf("acceptor: did not stop within %s", timeout)
	}
}
