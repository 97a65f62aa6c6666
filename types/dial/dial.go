// Package dial resolves endpoint specifications into sockets.
//
// These calls block until the OS resolves them; connection engines run them
// on their own goroutine. There is deliberately no cancellation: an
// in-flight connect cannot be abandoned, matching the transport's
// documented limitation.
package dial

import (
	"fmt"
	"net"

	"github.com/loomnet/loom/types"
)

// Endpoint connects to ep with default options.
func Endpoint(ep types.Endpoint) (net.Conn, error) {
	return EndpointWithOpts(ep, Opts{})
}

func EndpointWithOpts(ep types.Endpoint, opts Opts) (net.Conn, error) {
	opts.SetDefaults()

	d := net.Dialer{
		KeepAlive: opts.KeepAlive,
	}

	conn, err := d.Dial(ep.Network(), ep.Addr())
	if err != nil {
		return nil, fmt.Errorf("dialing %s: %w", ep, err)
	}

	return conn, nil
}

// Listen binds a listening socket for ep. A TCP endpoint with port 0 binds
// an ephemeral port; the bound endpoint is recoverable from the listener.
func Listen(ep types.Endpoint) (net.Listener, error) {
	ln, err := net.Listen(ep.Network(), ep.Addr())
	if err != nil {
		return nil, fmt.Errorf("listening on %s: %w", ep, err)
	}

	return ln, nil
}
