package transport

// This file contains mock engines, listeners and sockets, for testing purposes.

import (
	"context"
	"net"
	"sync"
	"testing"

	"github.com/loomnet/loom/router"
	"github.com/loomnet/loom/types"
	"github.com/loomnet/loom/types/msgengine"
)

// Recorder plays the orchestrator's part in connection tests: it collects
// every message routed to its address, in arrival order.
type Recorder struct {
	*router.EngineCommon

	mu   sync.Mutex
	msgs []msgengine.Message
}

func (r *Recorder) Run() {
	for {
		select {
		case <-r.Ctx().Done():
			return
		case msg := <-r.Mailbox():
			r.mu.Lock()
			r.msgs = append(r.msgs, msg)
			r.mu.Unlock()
		}
	}
}

func (r *Recorder) Close() {}

func (r *Recorder) Msgs() []msgengine.Message {
	r.mu.Lock()
	defer r.mu.Unlock()

	return append([]msgengine.Message(nil), r.msgs...)
}

func msgsOf[T msgengine.Message](r *Recorder) []T {
	var out []T

	for _, m := range r.Msgs() {
		if v, ok := m.(T); ok {
			out = append(out, v)
		}
	}

	return out
}

func spawnRecorder(t *testing.T, reg *router.Registry, group string) (*Recorder, types.Addr) {
	t.Helper()

	var rec *Recorder

	addr, err := reg.Spawn(group, func(ctx context.Context, self types.Addr) router.Engine {
		rec = &Recorder{EngineCommon: router.MakeCommon(ctx, 64)}
		return rec
	})
	if err != nil {
		t.Fatalf("could not spawn recorder: %v", err)
	}

	return rec, addr
}

type acceptResult struct {
	conn net.Conn
	err  error
}

// MockListener hands out queued accept results, then blocks until closed.
// It counts Accept calls, which is how tests observe the successor chain.
type MockListener struct {
	mu      sync.Mutex
	queue   []acceptResult
	accepts int
	closed  bool

	blockCh chan struct{}
}

func NewMockListener(results ...acceptResult) *MockListener {
	return &MockListener{
		queue:   results,
		blockCh: make(chan struct{}),
	}
}

func (l *MockListener) Accept() (net.Conn, error) {
	l.mu.Lock()
	l.accepts++

	if len(l.queue) > 0 {
		r := l.queue[0]
		l.queue = l.queue[1:]
		l.mu.Unlock()

		return r.conn, r.err
	}
	l.mu.Unlock()

	<-l.blockCh

	return nil, net.ErrClosed
}

func (l *MockListener) Close() error {
	l.mu.Lock()
	defer l.mu.Unlock()

	if !l.closed {
		l.closed = true
		close(l.blockCh)
	}

	return nil
}

func (l *MockListener) Addr() net.Addr {
	return &net.TCPAddr{IP: net.IPv4(127, 0, 0, 1), Port: 4242}
}

func (l *MockListener) Accepts() int {
	l.mu.Lock()
	defer l.mu.Unlock()

	return l.accepts
}

// MockNetConn is a net.Conn with an overridable remote address, an
// overridable write, and a close counter.
type MockNetConn struct {
	net.Conn

	remote  net.Addr
	writeFn func([]byte) (int, error)

	mu     sync.Mutex
	closes int
}

func (c *MockNetConn) RemoteAddr() net.Addr {
	if c.remote != nil {
		return c.remote
	}

	return c.Conn.RemoteAddr()
}

func (c *MockNetConn) Write(b []byte) (int, error) {
	if c.writeFn != nil {
		return c.writeFn(b)
	}

	return c.Conn.Write(b)
}

func (c *MockNetConn) Close() error {
	c.mu.Lock()
	c.closes++
	c.mu.Unlock()

	return c.Conn.Close()
}

func (c *MockNetConn) Closes() int {
	c.mu.Lock()
	defer c.mu.Unlock()

	return c.closes
}
