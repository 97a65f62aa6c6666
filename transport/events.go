package transport

import (
	"github.com/loomnet/loom/types"
	"github.com/loomnet/loom/types/key"
)

// Event is what the transport reports upward. Events come out of the
// orchestrator loop in order, so per-peer chunk order is preserved.
type Event interface {
	EventName() string
}

// PeerConnected fires once a peer's handshake completed.
type PeerConnected struct {
	Peer types.Endpoint

	// "tcp" or "unix"
	Kind string

	// The key the peer announced (and proved, when auth is required).
	Key key.NodePublic
}

func (p PeerConnected) EventName() string {
	return "PeerConnected"
}

// PeerChunk carries one inbound chunk of opaque bytes.
type PeerChunk struct {
	Peer types.Endpoint

	Data []byte
}

func (p PeerChunk) EventName() string {
	return "PeerChunk"
}

// PeerDisconnected fires exactly once per dead connection. The layer above
// decides whether to reconnect; the transport never does.
type PeerDisconnected struct {
	Peer types.Endpoint

	Reason string
}

func (p PeerDisconnected) EventName() string {
	return "PeerDisconnected"
}

// ListenerClosed fires when a listening socket stops accepting for good.
type ListenerClosed struct {
	Bind types.Endpoint

	Reason string
}

func (l ListenerClosed) EventName() string {
	return "ListenerClosed"
}
