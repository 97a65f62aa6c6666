package types

import "net"

// StreamConn is the stream-socket surface a connection engine needs.
// A *net.TCPConn or *net.UnixConn satisfies it.
type StreamConn interface {
	Read(b []byte) (n int, err error)
	Write(b []byte) (n int, err error)
	Close() error
	RemoteAddr() net.Addr
}

// StreamConnCloseCatcher wraps a StreamConn and records closes.
type StreamConnCloseCatcher struct {
	StreamConn

	Closed bool
	Closes int
}

func (c *StreamConnCloseCatcher) Close() error {
	c.Closed = true
	c.Closes++

	return c.StreamConn.Close()
}
