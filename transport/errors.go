package transport

import "errors"

// Terminal close reasons. Every connection reports exactly one of these
// (possibly wrapping a cause) when it dies; they never escape the
// connection they belong to.
var (
	ErrConnectFailed     = errors.New("connect failed")
	ErrAcceptFailed      = errors.New("accept failed")
	ErrListenFailed      = errors.New("listen failed")
	ErrSendFailed        = errors.New("send failed")
	ErrRemoteClosed      = errors.New("connection shut down")
	ErrShutdownRequested = errors.New("shutdown requested")
)
