package msgwire

import (
	"encoding/binary"
	"errors"
	"fmt"
	"slices"
)

// Magic identifies a loom handshake frame on the wire.
const Magic = "LMH1"

// MaxFrameBody caps the body length a peer can make us buffer.
const MaxFrameBody = 1 << 16

type FrameType byte

const (
	FrameHello FrameType = 1
	FrameAuth  FrameType = 2
)

var (
	ErrBadMagic    = errors.New("handshake frame has bad magic")
	ErrFrameLength = errors.New("handshake frame has bad length")
)

// Frame is one parsed handshake frame, body still CBOR-encoded.
type Frame struct {
	Type FrameType

	Body []byte
}

// AppendFrame marshals v and appends a complete frame to dst.
func AppendFrame(dst []byte, t FrameType, v any) ([]byte, error) {
	body, err := Marshal(v)
	if err != nil {
		return nil, fmt.Errorf("marshalling frame body: %w", err)
	}

	dst = append(dst, Magic...)
	dst = append(dst, byte(t))
	dst = binary.AppendUvarint(dst, uint64(len(body)))
	dst = append(dst, body...)

	return dst, nil
}

// Parser reassembles frames from a byte stream. Chunk boundaries carry no
// meaning on a stream socket, so feeding may deliver a frame in any number
// of pieces.
type Parser struct {
	buf []byte
}

func (p *Parser) Feed(b []byte) {
	p.buf = append(p.buf, b...)
}

// headerMin is magic + type + at least one uvarint byte.
const headerMin = len(Magic) + 2

// Next returns the next complete frame, (nil, nil) if more bytes are
// needed, or an error if the buffered bytes cannot be a frame.
func (p *Parser) Next() (*Frame, error) {
	if len(p.buf) < headerMin {
		return nil, nil
	}

	if string(p.buf[:len(Magic)]) != Magic {
		return nil, ErrBadMagic
	}

	t := FrameType(p.buf[len(Magic)])

	bodyLen, n := binary.Uvarint(p.buf[len(Magic)+1:])
	if n == 0 {
		// incomplete uvarint
		return nil, nil
	}
	if n < 0 || bodyLen > MaxFrameBody {
		return nil, ErrFrameLength
	}

	total := len(Magic) + 1 + n + int(bodyLen)
	if len(p.buf) < total {
		return nil, nil
	}

	body := slices.Clone(p.buf[len(Magic)+1+n : total])
	p.buf = p.buf[total:]

	return &Frame{Type: t, Body: body}, nil
}

// Rest drains and returns whatever follows the frames parsed so far. Used
// once the handshake is complete, when remaining bytes are opaque data.
func (p *Parser) Rest() []byte {
	rest := p.buf
	p.buf = nil

	return rest
}
