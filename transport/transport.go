// Package transport is the meat and bones of a loom node; it has the
// connection engines that own the sockets, and the orchestrator that keeps
// the peer table, drives handshakes, and relays chunks upward.
//
// Only the orchestrator's methods are meant to be called from outside; the
// connection engines are reached exclusively through the router.
package transport

import (
	"github.com/LukaGiorgadze/gonull"
	"github.com/loomnet/loom/types/key"
	"go4.org/netipx"
)

// Opts carries the transport's standing configuration. The zero value is
// usable: an ephemeral identity can be set with key.NewNode.
type Opts struct {
	// Priv is the node identity announced in handshakes.
	Priv key.NodePrivate

	// RequireAuth makes handshakes prove possession of the announced key.
	// Both sides of a deployment must agree on this; mixed configurations
	// hang or reject each other's handshakes.
	RequireAuth bool

	// Allow restricts accepted TCP connections to these prefixes when set.
	// Unix sockets bypass it.
	Allow *netipx.IPSet

	// MaxPeers caps the active peer count when set.
	MaxPeers gonull.Nullable[uint]
}
