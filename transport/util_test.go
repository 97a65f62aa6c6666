package transport

import (
	"testing"
	"time"

	"github.com/loomnet/loom/types/key"
)

// Test constants
const assertEventuallyTick time.Duration = 1 * time.Millisecond
const assertEventuallyTimeout time.Duration = 10 * assertEventuallyTick

// eventTimeout bounds waits that cross real sockets.
const eventTimeout time.Duration = 5 * time.Second

// Test variables
var testPrivA key.NodePrivate = key.NewNode()
var testPrivB key.NodePrivate = key.NewNode()

// collectUntil receives events until pred matches one, returning everything
// seen up to and including it.
func collectUntil(t *testing.T, ch <-chan Event, pred func(Event) bool) []Event {
	t.Helper()

	var seen []Event

	deadline := time.After(eventTimeout)

	for {
		select {
		case ev, ok := <-ch:
			if !ok {
				t.Fatalf("event channel closed while waiting, saw %d events", len(seen))
			}

			seen = append(seen, ev)

			if pred(ev) {
				return seen
			}
		case <-deadline:
			t.Fatalf("timed out waiting for event, saw %d events", len(seen))
		}
	}
}

func waitPeerConnected(t *testing.T, ch <-chan Event) PeerConnected {
	t.Helper()

	seen := collectUntil(t, ch, func(ev Event) bool {
		_, ok := ev.(PeerConnected)
		return ok
	})

	return seen[len(seen)-1].(PeerConnected)
}

func waitPeerDisconnected(t *testing.T, ch <-chan Event) PeerDisconnected {
	t.Helper()

	seen := collectUntil(t, ch, func(ev Event) bool {
		_, ok := ev.(PeerDisconnected)
		return ok
	})

	return seen[len(seen)-1].(PeerDisconnected)
}

// collectChunks assembles PeerChunk payloads until total bytes arrived.
// Chunk boundaries carry no meaning on a stream, so only the byte sequence
// is comparable.
func collectChunks(t *testing.T, ch <-chan Event, total int) []byte {
	t.Helper()

	var buf []byte

	deadline := time.After(eventTimeout)

	for len(buf) < total {
		select {
		case ev, ok := <-ch:
			if !ok {
				t.Fatalf("event channel closed while collecting chunks, have %d of %d bytes", len(buf), total)
			}

			if c, isChunk := ev.(PeerChunk); isChunk {
				buf = append(buf, c.Data...)
			}
		case <-deadline:
			t.Fatalf("timed out collecting chunks, have %d of %d bytes", len(buf), total)
		}
	}

	return buf
}
