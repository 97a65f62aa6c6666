package types

// Contains miscellaneous functions and types

import (
	"context"
	"log/slog"
	"net/netip"
)

// Incomparable is a zero-width incomparable type. As the first field
// of a struct it makes that struct non-comparable (no ==, no map key
// use) without adding width, and lets the compiler omit equality
// funcs from the binary.
//
// (Taken from the tailscale types library)
type Incomparable [0]func()

// IsContextDone reports whether ctx has ended, without blocking.
func IsContextDone(ctx context.Context) bool {
	select {
	case <-ctx.Done():
		return true
	default:
		return false
	}
}

// LevelTrace is below slog.LevelDebug, for per-chunk hot path logs.
const LevelTrace slog.Level = -8

// NormaliseAddrPort unmaps 4-in-6 addresses so that the same remote
// compares equal no matter which socket family produced it.
func NormaliseAddrPort(ap netip.AddrPort) netip.AddrPort {
	return netip.AddrPortFrom(NormaliseAddr(ap.Addr()), ap.Port())
}

func NormaliseAddr(addr netip.Addr) netip.Addr {
	if addr.Is4In6() {
		addr = netip.AddrFrom4(addr.As4())
	}

	return addr
}
