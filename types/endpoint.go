package types

import (
	"fmt"
	"net"
	"strconv"
	"strings"

	"github.com/google/uuid"
)

// Endpoint is a peer address specification: either a TCP host/port pair, or
// a unix domain socket path. The two implementations are small comparable
// structs, so an Endpoint can be used as a map key directly.
//
// An Endpoint is immutable once handed to a connection.
type Endpoint interface {
	// Network returns the network name as understood by net.Dial.
	Network() string

	// Addr returns the dial address as understood by net.Dial.
	Addr() string

	// Kind returns the transport kind, "tcp" or "unix".
	Kind() string

	fmt.Stringer
}

type TCP struct {
	Host string
	Port uint16
}

func (t TCP) Network() string { return "tcp" }

func (t TCP) Addr() string { return net.JoinHostPort(t.Host, strconv.Itoa(int(t.Port))) }

func (t TCP) Kind() string { return "tcp" }

func (t TCP) String() string { return "tcp://" + t.Addr() }

type Unix struct {
	Path string
}

func (u Unix) Network() string { return "unix" }

func (u Unix) Addr() string { return u.Path }

func (u Unix) Kind() string { return "unix" }

func (u Unix) String() string { return "unix://" + u.Path }

// ParseEndpoint parses "tcp://host:port", "unix://path", or a bare
// "host:port" (assumed tcp).
func ParseEndpoint(s string) (Endpoint, error) {
	switch {
	case strings.HasPrefix(s, "unix://"):
		p := strings.TrimPrefix(s, "unix://")
		if p == "" {
			return nil, fmt.Errorf("empty unix socket path in %q", s)
		}
		return Unix{Path: p}, nil
	case strings.HasPrefix(s, "tcp://"):
		s = strings.TrimPrefix(s, "tcp://")
	}

	host, portStr, err := net.SplitHostPort(s)
	if err != nil {
		return nil, fmt.Errorf("parsing endpoint %q: %w", s, err)
	}

	port, err := strconv.ParseUint(portStr, 10, 16)
	if err != nil {
		return nil, fmt.Errorf("parsing endpoint %q: bad port: %w", s, err)
	}

	return TCP{Host: host, Port: uint16(port)}, nil
}

// EndpointFromNetAddr derives the peer identity for an accepted socket.
//
// Accepted unix sockets usually carry no usable remote path; those get a
// synthetic identity scoped under the listener's path, unique per accept.
func EndpointFromNetAddr(a net.Addr, listenerPath string) Endpoint {
	switch v := a.(type) {
	case *net.TCPAddr:
		ap := NormaliseAddrPort(v.AddrPort())
		return TCP{Host: ap.Addr().String(), Port: ap.Port()}
	case *net.UnixAddr:
		if v.Name != "" && v.Name != "@" {
			return Unix{Path: v.Name}
		}
	}

	return Unix{Path: fmt.Sprintf("%s#%s", listenerPath, uuid.NewString()[:8])}
}

// EndpointFromListener returns the canonical bound endpoint of a listener,
// with any requested ephemeral port resolved to the real one.
func EndpointFromListener(ln net.Listener) Endpoint {
	switch v := ln.Addr().(type) {
	case *net.TCPAddr:
		ap := NormaliseAddrPort(v.AddrPort())
		return TCP{Host: ap.Addr().String(), Port: ap.Port()}
	case *net.UnixAddr:
		return Unix{Path: v.Name}
	}

	if ep, err := ParseEndpoint(ln.Addr().String()); err == nil {
		return ep
	}
	return Unix{Path: ln.Addr().String()}
}
