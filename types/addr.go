package types

import (
	"github.com/google/uuid"
)

// Addr is an opaque, process-lifetime-unique token identifying an engine's
// mailbox. It carries no location or socket details; the router resolves it
// to a live mailbox, and drops messages for it once the engine is gone.
//
// The zero Addr is never issued, and can be used as a "no engine" marker.
type Addr struct {
	id uuid.UUID
}

// MakeAddr mints a fresh unique address.
//
// Normally only the router mints addresses; this is exported so it can.
func MakeAddr() Addr {
	return Addr{id: uuid.New()}
}

func (a Addr) IsZero() bool {
	return a == Addr{}
}

// String returns an abbreviated form, for logging.
func (a Addr) String() string {
	return a.id.String()[:8]
}
