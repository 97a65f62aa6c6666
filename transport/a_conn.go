package transport

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"sync"

	"github.com/loomnet/loom/router"
	"github.com/loomnet/loom/types"
	"github.com/loomnet/loom/types/dial"
	"github.com/loomnet/loom/types/msgengine"
	"go4.org/netipx"
)

// Conn owns one socket, in one of two roles fixed at creation:
//   - client: dials a peer endpoint
//   - listener: accepts one socket off a shared listening socket
//
// Either way the blocking step runs as the first thing inside Run, never on
// the spawner's goroutine. A listener that got an accept outcome spawns its
// successor on the same listening socket before looking at the outcome, so
// the socket never sits without a pending accept.
//
// Once connected, the engine relays between its mailbox and the socket
// until a terminal event; terminal is absorbing, and the transport hears
// about it exactly once.
type Conn struct {
	*router.EngineCommon

	registry *router.Registry
	self     types.Addr
	tpt      types.Addr

	// Client role: the endpoint to dial.
	// Listener role: the derived remote identity, set after accept.
	peer types.Endpoint

	dialFn func(types.Endpoint) (types.StreamConn, error)

	// Listener role only. The listening socket is shared with the rest of
	// the generation chain and is never closed here.
	listener net.Listener
	group    string
	bind     types.Endpoint
	allow    *netipx.IPSet

	sock types.StreamConn
	recv *SockRecv

	sockClose sync.Once
	reported  bool
}

func MakeClientConn(pCtx context.Context, self types.Addr, registry *router.Registry, tpt types.Addr, peer types.Endpoint) *Conn {
	return &Conn{
		EngineCommon: router.MakeCommon(pCtx, ConnInboxChLen),

		registry: registry,
		self:     self,
		tpt:      tpt,

		peer: peer,
		dialFn: func(ep types.Endpoint) (types.StreamConn, error) {
			return dial.Endpoint(ep)
		},
	}
}

// ClientConnSpec is MakeClientConn as a spawnable spec.
func ClientConnSpec(registry *router.Registry, tpt types.Addr, peer types.Endpoint) router.EngineSpec {
	return func(ctx context.Context, self types.Addr) router.Engine {
		return MakeClientConn(ctx, self, registry, tpt, peer)
	}
}

func MakeListenerConn(
	pCtx context.Context, self types.Addr,
	registry *router.Registry, tpt types.Addr, group string,
	listener net.Listener, bind types.Endpoint, allow *netipx.IPSet,
) *Conn {
	return &Conn{
		EngineCommon: router.MakeCommon(pCtx, ConnInboxChLen),

		registry: registry,
		self:     self,
		tpt:      tpt,

		listener: listener,
		group:    group,
		bind:     bind,
		allow:    allow,
	}
}

// ListenerConnSpec is MakeListenerConn as a spawnable spec. Every listener
// generation on one listening socket is spawned from the same spec shape,
// the first by the transport, the rest by their predecessors.
func ListenerConnSpec(
	registry *router.Registry, tpt types.Addr, group string,
	listener net.Listener, bind types.Endpoint, allow *netipx.IPSet,
) router.EngineSpec {
	return func(ctx context.Context, self types.Addr) router.Engine {
		return MakeListenerConn(ctx, self, registry, tpt, group, listener, bind, allow)
	}
}

func (c *Conn) Run() {
	defer func() {
		if v := recover(); v != nil {
			router.L(c).Error("panicked", "panic", v)
			c.Cancel()
		}
	}()

	if !c.Running().CheckOrMark() {
		router.L(c).Warn("tried to run engine, while already running")
		return
	}

	defer c.Close()

	if c.listener != nil {
		if !c.runAccept() {
			return
		}
	} else {
		if !c.runConnect() {
			return
		}
	}

	c.connected()
}

func (c *Conn) runConnect() bool {
	sock, err := c.dialFn(c.peer)
	if err != nil {
		router.L(c).Debug("connect failed", "peer", c.peer, "err", err)
		c.reportClosed(c.peer, fmt.Errorf("%w: %w", ErrConnectFailed, err))

		return false
	}

	c.sock = sock

	return true
}

func (c *Conn) runAccept() bool {
	sock, err := c.listener.Accept()

	// The listening socket must never sit without a pending accept, so the
	// successor goes up before this outcome is examined. A closed listener
	// is the one exception, it has no accept capacity left to preserve.
	if !errors.Is(err, net.ErrClosed) {
		c.fission()
	}

	if err != nil {
		router.L(c).Debug("accept failed", "bind", c.bind, "err", err)
		c.reportClosed(c.bind, fmt.Errorf("%w: %w", ErrAcceptFailed, err))

		return false
	}

	if !c.remoteAllowed(sock.RemoteAddr()) {
		router.L(c).Warn("rejecting peer outside the allowed prefixes", "remote", sock.RemoteAddr())
		_ = sock.Close()

		return false
	}

	c.peer = types.EndpointFromNetAddr(sock.RemoteAddr(), c.bind.Addr())
	c.sock = sock

	return true
}

func (c *Conn) fission() {
	spec := ListenerConnSpec(c.registry, c.tpt, c.group, c.listener, c.bind, c.allow)

	if _, err := c.registry.Spawn(c.group, spec); err != nil {
		router.L(c).Warn("could not spawn successor listener", "bind", c.bind, "err", err)
	}
}

func (c *Conn) remoteAllowed(remote net.Addr) bool {
	if c.allow == nil {
		return true
	}

	v, ok := remote.(*net.TCPAddr)
	if !ok {
		// unix peers have no IP to check
		return true
	}

	return c.allow.Contains(types.NormaliseAddr(v.AddrPort().Addr()))
}

func (c *Conn) connected() {
	// A write to a stalled peer blocks outside the select below, where
	// cancellation is invisible; closing the socket on Done unblocks it.
	stop := context.AfterFunc(c.Ctx(), c.closeSock)
	defer stop()

	c.recv = MakeSockRecv(c.sock, c.Ctx())
	go c.recv.Run()

	c.registry.Send(c.tpt, &msgengine.TptConnOpened{
		Conn: c.self,
		Peer: c.peer,
		Kind: c.peer.Kind(),
	})

	for {
		select {
		case <-c.Ctx().Done():
			c.closeSock()
			c.reportClosed(c.peer, ErrShutdownRequested)

			return
		case msg := <-c.Mailbox():
			switch m := msg.(type) {
			case *msgengine.ConnSend:
				if !c.doSend(m.Data) {
					return
				}
			case *msgengine.ConnShutdown:
				c.closeSock()
				c.reportClosed(c.peer, ErrShutdownRequested)

				return
			default:
				router.LogUnknownMessage(c, msg)
			}
		case chunk := <-c.recv.outCh:
			if !c.doChunk(chunk) {
				return
			}
		}
	}
}

func (c *Conn) doSend(data []byte) bool {
	if _, err := c.sock.Write(data); err != nil {
		c.closeSock()

		// a write unblocked by the cancellation watcher is a shutdown,
		// not a send failure
		if types.IsContextDone(c.Ctx()) {
			c.reportClosed(c.peer, ErrShutdownRequested)

			return false
		}

		router.L(c).Debug("write failed", "peer", c.peer, "err", err)
		c.reportClosed(c.peer, fmt.Errorf("%w: %w", ErrSendFailed, err))

		return false
	}

	return true
}

func (c *Conn) doChunk(chunk RecvChunk) bool {
	if chunk.err != nil {
		c.closeSock()

		if types.IsContextDone(c.Ctx()) {
			c.reportClosed(c.peer, ErrShutdownRequested)

			return false
		}

		reason := ErrRemoteClosed
		if !errors.Is(chunk.err, io.EOF) {
			reason = fmt.Errorf("%w: %w", ErrRemoteClosed, chunk.err)
		}
		c.reportClosed(c.peer, reason)

		return false
	}

	router.L(c).Log(context.Background(), types.LevelTrace, "forwarding chunk", "peer", c.peer, "len", len(chunk.data))

	c.registry.Send(c.tpt, &msgengine.TptConnChunk{
		Conn: c.self,
		Peer: c.peer,
		Data: chunk.data,
	})

	return true
}

// reportClosed tells the transport this connection is gone. At most one
// report leaves a connection, whichever terminal path gets here first wins.
func (c *Conn) reportClosed(peer types.Endpoint, reason error) {
	if c.reported {
		return
	}
	c.reported = true

	c.registry.Send(c.tpt, &msgengine.TptConnClosed{
		Conn:   c.self,
		Peer:   peer,
		Reason: reason,
	})
}

// closeSock closes the owned socket at most once, no matter how many
// terminal paths run or which goroutine gets there first.
func (c *Conn) closeSock() {
	if c.sock == nil {
		return
	}

	c.sockClose.Do(func() {
		if err := c.sock.Close(); err != nil {
			router.L(c).Debug("error closing socket", "peer", c.peer, "err", err)
		}
	})
}

func (c *Conn) Close() {
	c.closeSock()
	c.Cancel()

	router.L(c).Debug("closed connection", "peer", c.peer)
}
