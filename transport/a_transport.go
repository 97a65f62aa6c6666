package transport

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"net"
	"slices"
	"strings"

	"github.com/loomnet/loom/router"
	"github.com/loomnet/loom/types"
	"github.com/loomnet/loom/types/dial"
	"github.com/loomnet/loom/types/key"
	"github.com/loomnet/loom/types/msgengine"
	"github.com/loomnet/loom/types/msgwire"
	maps2 "golang.org/x/exp/maps"
)

type peerStatus int

const (
	peerPending peerStatus = iota
	peerConnected
	peerDisconnected
)

func (s peerStatus) String() string {
	switch s {
	case peerPending:
		return "pending"
	case peerConnected:
		return "connected"
	case peerDisconnected:
		return "disconnected"
	default:
		return "unknown"
	}
}

// peerState is one row of the connection table. Only the orchestrator loop
// touches it.
type peerState struct {
	status peerStatus

	// the connection engine's address, zeroed once disconnected
	conn types.Addr
	kind string

	// set when disconnected
	reason error

	// handshake progress
	parser    *msgwire.Parser
	nonce     []byte
	remoteKey key.NodePublic
	helloDone bool
	authDone  bool
	up        bool

	// outbound sends queued until the handshake completes
	queue [][]byte
}

type listenerState struct {
	ln net.Listener
}

// Transport orchestrates the connection pool: it keeps the per-peer status
// table, drives handshakes over fresh sockets, relays chunks upward in
// order, and reports disconnects. It never reconnects on its own; that
// policy belongs to the layer above.
type Transport struct {
	*router.EngineCommon

	registry *router.Registry
	self     types.Addr
	group    string

	opts Opts

	peers     map[types.Endpoint]*peerState
	listeners map[types.Endpoint]*listenerState

	events chan Event
}

func MakeTransport(pCtx context.Context, registry *router.Registry, self types.Addr, group string, opts Opts) *Transport {
	return &Transport{
		EngineCommon: router.MakeCommon(pCtx, TransportInboxChLen),

		registry: registry,
		self:     self,
		group:    group,

		opts: opts,

		peers:     make(map[types.Endpoint]*peerState),
		listeners: make(map[types.Endpoint]*listenerState),

		events: make(chan Event, EventChLen),
	}
}

func (t *Transport) Run() {
	defer func() {
		if v := recover(); v != nil {
			router.L(t).Error("panicked", "panic", v)
			t.Cancel()
		}
	}()

	if !t.Running().CheckOrMark() {
		router.L(t).Warn("tried to run engine, while already running")
		return
	}

	defer t.Close()

	for {
		select {
		case <-t.Ctx().Done():
			return
		case m := <-t.Mailbox():
			t.Handle(m)
		}
	}
}

func (t *Transport) Handle(m msgengine.Message) {
	switch m := m.(type) {
	case *msgengine.TptConnect:
		t.handleConnect(m)
	case *msgengine.TptListen:
		t.handleListen(m)
	case *msgengine.TptUnlisten:
		t.handleUnlisten(m)
	case *msgengine.TptSendTo:
		t.handleSendTo(m)
	case *msgengine.TptShutdownPeer:
		t.handleShutdownPeer(m)
	case *msgengine.TptPeers:
		t.handlePeers(m)
	case *msgengine.TptConnOpened:
		t.handleConnOpened(m)
	case *msgengine.TptConnChunk:
		t.handleConnChunk(m)
	case *msgengine.TptConnClosed:
		t.handleConnClosed(m)
	default:
		router.LogUnknownMessage(t, m)
	}
}

// ======================================================================================================
// API message handling

func (t *Transport) handleConnect(m *msgengine.TptConnect) {
	if ps, ok := t.peers[m.Peer]; ok && ps.status != peerDisconnected {
		router.L(t).Debug("connect: peer already known", "peer", m.Peer, "status", ps.status)
		return
	}

	if t.atPeerCap() {
		router.L(t).Warn("connect refused, at peer cap", "peer", m.Peer, "cap", t.opts.MaxPeers.Val)
		return
	}

	addr, err := t.registry.Spawn(t.group, ClientConnSpec(t.registry, t.self, m.Peer))
	if err != nil {
		router.L(t).Warn("could not spawn client connection", "peer", m.Peer, "err", err)
		return
	}

	t.peers[m.Peer] = &peerState{
		status: peerPending,
		conn:   addr,
		kind:   m.Peer.Kind(),
	}

	router.L(t).Debug("connecting", "peer", m.Peer)
}

func (t *Transport) handleListen(m *msgengine.TptListen) {
	ln, err := dial.Listen(m.Bind)
	if err != nil {
		m.Resp <- msgengine.ListenResult{Err: fmt.Errorf("%w: %w", ErrListenFailed, err)}
		return
	}

	bound := types.EndpointFromListener(ln)

	if _, ok := t.listeners[bound]; ok {
		_ = ln.Close()
		m.Resp <- msgengine.ListenResult{Err: fmt.Errorf("%w: already listening on %s", ErrListenFailed, bound)}

		return
	}

	spec := ListenerConnSpec(t.registry, t.self, t.group, ln, bound, t.opts.Allow)
	if _, err := t.registry.Spawn(t.group, spec); err != nil {
		_ = ln.Close()
		m.Resp <- msgengine.ListenResult{Err: fmt.Errorf("%w: %w", ErrListenFailed, err)}

		return
	}

	t.listeners[bound] = &listenerState{ln: ln}

	router.L(t).Info("listening", "bind", bound)

	m.Resp <- msgengine.ListenResult{Bound: bound}
}

func (t *Transport) handleUnlisten(m *msgengine.TptUnlisten) {
	ls, ok := t.listeners[m.Bind]
	if !ok {
		router.L(t).Debug("unlisten for unknown bind dropped", "bind", m.Bind)
		return
	}

	delete(t.listeners, m.Bind)

	if err := ls.ln.Close(); err != nil {
		router.L(t).Debug("error closing listener", "bind", m.Bind, "err", err)
	}

	router.L(t).Info("stopped listening", "bind", m.Bind)
}

func (t *Transport) handleSendTo(m *msgengine.TptSendTo) {
	ps, ok := t.peers[m.Peer]
	if !ok || ps.status == peerDisconnected {
		router.L(t).Warn("send to unknown or disconnected peer dropped", "peer", m.Peer)
		return
	}

	if !ps.up {
		ps.queue = append(ps.queue, m.Data)
		return
	}

	t.registry.Send(ps.conn, &msgengine.ConnSend{Data: m.Data})
}

func (t *Transport) handleShutdownPeer(m *msgengine.TptShutdownPeer) {
	ps, ok := t.peers[m.Peer]
	if !ok {
		router.L(t).Debug("shutdown for unknown peer dropped", "peer", m.Peer)
		return
	}

	if ps.status == peerDisconnected {
		// shutdown of an already-disconnected peer forgets its table row
		delete(t.peers, m.Peer)

		router.L(t).Debug("forgot disconnected peer", "peer", m.Peer)

		return
	}

	t.registry.Send(ps.conn, &msgengine.ConnShutdown{})
}

func (t *Transport) handlePeers(m *msgengine.TptPeers) {
	infos := make([]msgengine.PeerInfo, 0, len(t.peers))

	for ep, ps := range t.peers {
		infos = append(infos, msgengine.PeerInfo{
			Peer:   ep,
			Conn:   ps.conn,
			Status: ps.status.String(),
			Key:    ps.remoteKey,
			Reason: renderReason(ps.reason),
		})
	}

	slices.SortFunc(infos, func(a, b msgengine.PeerInfo) int {
		return strings.Compare(a.Peer.String(), b.Peer.String())
	})

	m.Resp <- infos
}

// ======================================================================================================
// Connection message handling

func (t *Transport) handleConnOpened(m *msgengine.TptConnOpened) {
	ps, ok := t.peers[m.Peer]

	switch {
	case ok && ps.status == peerPending && ps.conn == m.Conn:
		// our own client connection came up
		ps.status = peerConnected
		ps.kind = m.Kind
	case ok && ps.status != peerDisconnected:
		// accepted sockets get unique identities, so a second socket
		// claiming a live one means something is off
		router.L(t).Warn("duplicate connection for peer, shutting the new one down", "peer", m.Peer)
		t.registry.Send(m.Conn, &msgengine.ConnShutdown{})

		return
	default:
		// accepted socket, or a reconnect over a disconnected record
		if t.atPeerCap() {
			router.L(t).Warn("accepted connection refused, at peer cap", "peer", m.Peer, "cap", t.opts.MaxPeers.Val)
			t.registry.Send(m.Conn, &msgengine.ConnShutdown{})

			return
		}

		ps = &peerState{
			status: peerConnected,
			conn:   m.Conn,
			kind:   m.Kind,
		}
		t.peers[m.Peer] = ps
	}

	t.startHandshake(ps, m.Peer)
}

func (t *Transport) handleConnChunk(m *msgengine.TptConnChunk) {
	ps, ok := t.peers[m.Peer]
	if !ok || ps.status != peerConnected {
		router.L(t).Debug("chunk for unknown peer dropped", "peer", m.Peer)
		return
	}

	if ps.conn != m.Conn {
		// in flight from an engine the row does not track, like a
		// duplicate we already shut down
		router.L(t).Debug("chunk from a foreign connection dropped", "peer", m.Peer, "conn", m.Conn)

		return
	}

	if ps.up {
		router.L(t).Log(context.Background(), types.LevelTrace, "relaying chunk upward", "peer", m.Peer, "len", len(m.Data))

		t.emit(PeerChunk{Peer: m.Peer, Data: m.Data})
		return
	}

	t.feedHandshake(ps, m.Peer, m.Data)
}

func (t *Transport) handleConnClosed(m *msgengine.TptConnClosed) {
	if ps, ok := t.peers[m.Peer]; ok {
		if ps.status == peerDisconnected {
			router.L(t).Debug("close report for already disconnected peer", "peer", m.Peer)
			return
		}

		if ps.conn != m.Conn {
			// a duplicate we shut down, not the engine this row tracks
			router.L(t).Debug("close report from a foreign connection dropped", "peer", m.Peer, "conn", m.Conn)
			return
		}

		ps.status = peerDisconnected
		ps.reason = m.Reason
		ps.conn = types.Addr{}
		ps.up = false
		ps.queue = nil
		ps.parser = nil

		router.L(t).Info("peer disconnected", "peer", m.Peer, "reason", m.Reason)

		t.emit(PeerDisconnected{Peer: m.Peer, Reason: renderReason(m.Reason)})

		return
	}

	if _, ok := t.listeners[m.Peer]; ok {
		if errors.Is(m.Reason, net.ErrClosed) {
			delete(t.listeners, m.Peer)

			router.L(t).Info("listener closed", "bind", m.Peer, "reason", m.Reason)

			t.emit(ListenerClosed{Bind: m.Peer, Reason: renderReason(m.Reason)})
		} else {
			// a single accept failed; the successor keeps the chain alive
			router.L(t).Warn("accept error on listener", "bind", m.Peer, "err", m.Reason)
		}

		return
	}

	router.L(t).Debug("close report for unknown peer dropped", "peer", m.Peer)
}

// ======================================================================================================
// Handshake

func (t *Transport) startHandshake(ps *peerState, peer types.Endpoint) {
	ps.parser = &msgwire.Parser{}
	ps.nonce = msgwire.NewNonce()

	hello := msgwire.MakeHello(t.opts.Priv.Public(), ps.nonce)

	frame, err := msgwire.AppendFrame(nil, msgwire.FrameHello, hello)
	if err != nil {
		router.L(t).Error("could not build hello", "peer", peer, "err", err)
		t.registry.Send(ps.conn, &msgengine.ConnShutdown{})

		return
	}

	t.registry.Send(ps.conn, &msgengine.ConnSend{Data: frame})

	router.L(t).Debug("sent hello", "peer", peer)
}

func (t *Transport) feedHandshake(ps *peerState, peer types.Endpoint, data []byte) {
	ps.parser.Feed(data)

	for !ps.up {
		frame, err := ps.parser.Next()
		if err != nil {
			router.L(t).Warn("bad handshake frame, shutting peer down", "peer", peer, "err", err)
			t.registry.Send(ps.conn, &msgengine.ConnShutdown{})

			return
		}
		if frame == nil {
			// incomplete, wait for more bytes
			return
		}

		if !t.handleFrame(ps, peer, frame) {
			t.registry.Send(ps.conn, &msgengine.ConnShutdown{})

			return
		}
	}

	// Whatever trailed the final handshake frame is the peer's first data.
	if rest := ps.parser.Rest(); len(rest) > 0 {
		t.emit(PeerChunk{Peer: peer, Data: rest})
	}
	ps.parser = nil
}

func (t *Transport) handleFrame(ps *peerState, peer types.Endpoint, frame *msgwire.Frame) bool {
	switch frame.Type {
	case msgwire.FrameHello:
		if ps.helloDone {
			router.L(t).Warn("second hello from peer", "peer", peer)
			return false
		}

		h, err := msgwire.ParseHello(frame.Body)
		if err != nil {
			router.L(t).Warn("bad hello from peer", "peer", peer, "err", err)
			return false
		}

		ps.remoteKey = h.NodeKey()
		ps.helloDone = true

		router.L(t).Debug("got hello", "peer", peer, "key", ps.remoteKey.Debug())

		if t.opts.RequireAuth {
			seal := t.opts.Priv.SealTo(ps.remoteKey, h.Nonce)

			auth, err := msgwire.AppendFrame(nil, msgwire.FrameAuth, &msgwire.Auth{Seal: seal})
			if err != nil {
				router.L(t).Error("could not build auth", "peer", peer, "err", err)
				return false
			}

			t.registry.Send(ps.conn, &msgengine.ConnSend{Data: auth})
		}
	case msgwire.FrameAuth:
		if !t.opts.RequireAuth {
			router.L(t).Warn("unexpected auth frame from peer", "peer", peer)
			return false
		}
		if !ps.helloDone {
			router.L(t).Warn("auth frame before hello", "peer", peer)
			return false
		}
		if ps.authDone {
			router.L(t).Warn("second auth from peer", "peer", peer)
			return false
		}

		a, err := msgwire.ParseAuth(frame.Body)
		if err != nil {
			router.L(t).Warn("bad auth from peer", "peer", peer, "err", err)
			return false
		}

		nonce, ok := t.opts.Priv.OpenFrom(ps.remoteKey, a.Seal)
		if !ok || !bytes.Equal(nonce, ps.nonce) {
			router.L(t).Warn("peer failed to prove its key", "peer", peer, "key", ps.remoteKey.Debug())
			return false
		}

		ps.authDone = true
	default:
		router.L(t).Warn("unknown handshake frame", "peer", peer, "type", frame.Type)
		return false
	}

	if ps.helloDone && (!t.opts.RequireAuth || ps.authDone) {
		t.completeHandshake(ps, peer)
	}

	return true
}

func (t *Transport) completeHandshake(ps *peerState, peer types.Endpoint) {
	ps.up = true

	router.L(t).Info("peer connected", "peer", peer, "key", ps.remoteKey.Debug())

	t.emit(PeerConnected{Peer: peer, Kind: ps.kind, Key: ps.remoteKey})

	for _, data := range ps.queue {
		t.registry.Send(ps.conn, &msgengine.ConnSend{Data: data})
	}
	ps.queue = nil
}

// ======================================================================================================
// Misc

func (t *Transport) atPeerCap() bool {
	if !t.opts.MaxPeers.Valid {
		return false
	}

	return t.activePeers() >= int(t.opts.MaxPeers.Val)
}

func (t *Transport) activePeers() int {
	n := 0

	for _, ps := range t.peers {
		if ps.status != peerDisconnected {
			n++
		}
	}

	return n
}

func (t *Transport) emit(ev Event) {
	select {
	case t.events <- ev:
	case <-t.Ctx().Done():
		router.L(t).Debug("event dropped, transport closing", "event", ev.EventName())
	}
}

func renderReason(err error) string {
	if err == nil {
		return ""
	}

	return err.Error()
}

func (t *Transport) Close() {
	for bind, ls := range t.listeners {
		if err := ls.ln.Close(); err != nil {
			router.L(t).Debug("error closing listener", "bind", bind, "err", err)
		}
	}
	maps2.Clear(t.listeners)

	close(t.events)

	router.L(t).Debug("closed transport")
}

// ======================================================================================================
// Public API, safe to call from any goroutine

// Connect asks the orchestrator to open a client connection to ep. The
// outcome arrives as a PeerConnected or PeerDisconnected event; connecting
// to an endpoint that is already pending or connected is a no-op.
func (t *Transport) Connect(ep types.Endpoint) {
	t.registry.Send(t.self, &msgengine.TptConnect{Peer: ep})
}

// Listen binds a listening socket and starts its accept chain, returning
// the canonical bound endpoint (an ephemeral port request comes back
// resolved).
func (t *Transport) Listen(ep types.Endpoint) (types.Endpoint, error) {
	resp := make(chan msgengine.ListenResult, 1)

	t.registry.Send(t.self, &msgengine.TptListen{Bind: ep, Resp: resp})

	select {
	case r := <-resp:
		return r.Bound, r.Err
	case <-t.Ctx().Done():
		return nil, fmt.Errorf("%w: transport is closed", ErrListenFailed)
	}
}

// Unlisten closes a listening socket. Connections already accepted off it
// stay up.
func (t *Transport) Unlisten(ep types.Endpoint) {
	t.registry.Send(t.self, &msgengine.TptUnlisten{Bind: ep})
}

// SendTo queues bytes to a peer. Sends before the handshake completes are
// flushed, in order, when it does; sends to unknown or disconnected peers
// are dropped with a warning.
func (t *Transport) SendTo(ep types.Endpoint, data []byte) {
	t.registry.Send(t.self, &msgengine.TptSendTo{Peer: ep, Data: data})
}

// ShutdownPeer closes a peer's connection; the disconnected event carries
// the shutdown-requested reason. Called again on an already-disconnected
// peer, it forgets that peer's table row.
func (t *Transport) ShutdownPeer(ep types.Endpoint) {
	t.registry.Send(t.self, &msgengine.TptShutdownPeer{Peer: ep})
}

// Peers snapshots the connection table, sorted by endpoint.
func (t *Transport) Peers() []msgengine.PeerInfo {
	resp := make(chan []msgengine.PeerInfo, 1)

	t.registry.Send(t.self, &msgengine.TptPeers{Resp: resp})

	select {
	case infos := <-resp:
		return infos
	case <-t.Ctx().Done():
		return nil
	}
}

// Events is the transport's upward reporting channel, closed when the
// transport closes.
func (t *Transport) Events() <-chan Event {
	return t.events
}
