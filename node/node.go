// Package node assembles a registry and a transport behind one handle.
// All semantics live in the components; this layer only wires them up and
// exposes the operator surface the binaries use.
package node

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/netip"

	"github.com/LukaGiorgadze/gonull"
	"github.com/loomnet/loom/router"
	"github.com/loomnet/loom/transport"
	"github.com/loomnet/loom/types"
	"github.com/loomnet/loom/types/key"
	"github.com/loomnet/loom/types/msgengine"
	"go4.org/netipx"
)

const transportGroup = "transport"

type Options struct {
	Ctx context.Context

	// Priv is the node's identity. Zero means a fresh ephemeral key.
	Priv key.NodePrivate

	RequireAuth bool

	// AllowedCIDRs restricts accepted TCP remotes. Empty means allow all.
	AllowedCIDRs []netip.Prefix

	MaxPeers gonull.Nullable[uint]

	// Listen endpoints bound on Start.
	Listen []types.Endpoint
}

type Node struct {
	ctx    context.Context
	ctxCan context.CancelFunc

	registry *router.Registry
	tpt      *transport.Transport

	priv   key.NodePrivate
	listen []types.Endpoint

	started bool
}

func New(opts Options) (*Node, error) {
	pCtx := opts.Ctx
	if pCtx == nil {
		pCtx = context.Background()
	}

	ctx, ctxCan := context.WithCancel(pCtx)

	priv := opts.Priv
	if priv.IsZero() {
		priv = key.NewNode()
		slog.Info("node: generated ephemeral key", "key", priv.Public().Debug())
	}

	allow, err := buildAllowlist(opts.AllowedCIDRs)
	if err != nil {
		ctxCan()
		return nil, fmt.Errorf("could not build allowlist: %w", err)
	}

	registry := router.New(ctx)

	if err := registry.AddGroup(transportGroup); err != nil {
		ctxCan()
		return nil, err
	}

	n := &Node{
		ctx:    ctx,
		ctxCan: ctxCan,

		registry: registry,

		priv:   priv,
		listen: opts.Listen,
	}

	if _, err := registry.Spawn(transportGroup, func(tCtx context.Context, self types.Addr) router.Engine {
		n.tpt = transport.MakeTransport(tCtx, registry, self, transportGroup, transport.Opts{
			Priv:        priv,
			RequireAuth: opts.RequireAuth,
			Allow:       allow,
			MaxPeers:    opts.MaxPeers,
		})

		return n.tpt
	}); err != nil {
		registry.Close()
		ctxCan()

		return nil, fmt.Errorf("could not spawn transport: %w", err)
	}

	return n, nil
}

// Start binds the configured listen endpoints. The transport itself is
// already running by the time New returns.
func (n *Node) Start() error {
	if n.started {
		return errors.New("already started")
	}

	for _, ep := range n.listen {
		bound, err := n.tpt.Listen(ep)
		if err != nil {
			return fmt.Errorf("could not listen on %s: %w", ep, err)
		}

		slog.Info("node: listening", "bind", bound)
	}

	n.started = true

	return nil
}

func (n *Node) Key() key.NodePublic {
	return n.priv.Public()
}

func (n *Node) Connect(ep types.Endpoint) {
	n.tpt.Connect(ep)
}

func (n *Node) Listen(ep types.Endpoint) (types.Endpoint, error) {
	return n.tpt.Listen(ep)
}

func (n *Node) Unlisten(ep types.Endpoint) {
	n.tpt.Unlisten(ep)
}

func (n *Node) SendTo(ep types.Endpoint, data []byte) {
	n.tpt.SendTo(ep, data)
}

func (n *Node) ShutdownPeer(ep types.Endpoint) {
	n.tpt.ShutdownPeer(ep)
}

func (n *Node) Peers() []msgengine.PeerInfo {
	return n.tpt.Peers()
}

// Events is the node's upward reporting channel, closed when the node
// closes.
func (n *Node) Events() <-chan transport.Event {
	return n.tpt.Events()
}

// Close tears the node down: every engine observes its context ending,
// sockets close, and the events channel closes once the transport has
// stopped.
func (n *Node) Close() {
	n.registry.Close()
	n.ctxCan()

	slog.Info("node: closed")
}

func buildAllowlist(prefixes []netip.Prefix) (*netipx.IPSet, error) {
	if len(prefixes) == 0 {
		return nil, nil
	}

	var b netipx.IPSetBuilder

	for _, p := range prefixes {
		b.AddPrefix(p)
	}

	return b.IPSet()
}
