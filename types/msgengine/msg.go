// Package msgengine contains the messages engines send each other through
// the router.
package msgengine

import (
	"github.com/loomnet/loom/types"
	"github.com/loomnet/loom/types/key"
)

// Messages

// ======================================================================================================
// Connection msgs

// ConnSend asks a connected engine to write bytes to its socket. Fire-and-forget.
type ConnSend struct {
	Data []byte
}

// ConnShutdown asks a connected engine to close its socket and stop. Fire-and-forget.
type ConnShutdown struct{}

// ======================================================================================================
// Transport msgs, from connection engines

// TptConnOpened reports that a connection finished its blocking connect or
// accept step and owns a live socket.
type TptConnOpened struct {
	Conn types.Addr

	Peer types.Endpoint

	// "tcp" or "unix"
	Kind string
}

// TptConnChunk carries one inbound chunk, in the order read from the socket.
type TptConnChunk struct {
	// The reporting connection engine. Chunks from an engine the table
	// does not track are dropped, same as close reports.
	Conn types.Addr

	Peer types.Endpoint

	Data []byte
}

// TptConnClosed is the exactly-once terminal report of a connection.
type TptConnClosed struct {
	// The reporting connection engine. The transport drops reports whose
	// engine does not match its table, so a shut-down duplicate cannot
	// tear down the live connection's record.
	Conn types.Addr

	Peer types.Endpoint

	Reason error
}

// ======================================================================================================
// Transport msgs, from the public API

type TptConnect struct {
	Peer types.Endpoint
}

type TptListen struct {
	Bind types.Endpoint

	// Resp must have capacity for the reply, the transport never blocks on it.
	Resp chan<- ListenResult
}

type TptUnlisten struct {
	Bind types.Endpoint
}

type TptSendTo struct {
	Peer types.Endpoint

	Data []byte
}

type TptShutdownPeer struct {
	Peer types.Endpoint
}

type TptPeers struct {
	// Resp must have capacity for the reply, the transport never blocks on it.
	Resp chan<- []PeerInfo
}

// ====

type ListenResult struct {
	Bound types.Endpoint

	Err error
}

// PeerInfo is a snapshot row of the transport's connection table.
type PeerInfo struct {
	Peer types.Endpoint

	// The connection engine's address, zero once disconnected.
	Conn types.Addr

	// "pending", "connected" or "disconnected"
	Status string

	// The peer's announced key, zero until the handshake completed.
	Key key.NodePublic

	// Close reason, empty unless disconnected.
	Reason string
}
