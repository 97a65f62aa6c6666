package msgwire

import (
	"testing"

	"github.com/loomnet/loom/types/key"
	"github.com/stretchr/testify/assert"
)

func TestFrameRoundTrip(t *testing.T) {
	k := key.NewNode().Public()
	nonce := NewNonce()

	raw, err := AppendFrame(nil, FrameHello, MakeHello(k, nonce))
	assert.NoError(t, err)

	var p Parser
	p.Feed(raw)

	frame, err := p.Next()
	assert.NoError(t, err)
	assert.NotNil(t, frame)
	assert.Equal(t, FrameHello, frame.Type)

	hello, err := ParseHello(frame.Body)
	assert.NoError(t, err)
	assert.Equal(t, k, hello.NodeKey())
	assert.Equal(t, nonce, hello.Nonce)

	next, err := p.Next()
	assert.NoError(t, err)
	assert.Nil(t, next, "a single frame should parse exactly once")
}

func TestParserReassemblesSplitFrames(t *testing.T) {
	k := key.NewNode().Public()

	raw, err := AppendFrame(nil, FrameHello, MakeHello(k, NewNonce()))
	assert.NoError(t, err)

	raw, err = AppendFrame(raw, FrameAuth, &Auth{Seal: []byte{1, 2, 3}})
	assert.NoError(t, err)

	var p Parser
	var frames []*Frame

	// Feed one byte at a time, as a stream socket may deliver it.
	for _, b := range raw {
		p.Feed([]byte{b})

		for {
			frame, err := p.Next()
			assert.NoError(t, err)
			if frame == nil {
				break
			}
			frames = append(frames, frame)
		}
	}

	assert.Len(t, frames, 2)
	assert.Equal(t, FrameHello, frames[0].Type)
	assert.Equal(t, FrameAuth, frames[1].Type)

	auth, err := ParseAuth(frames[1].Body)
	assert.NoError(t, err)
	assert.Equal(t, []byte{1, 2, 3}, auth.Seal)
}

func TestParserRejectsBadMagic(t *testing.T) {
	var p Parser
	p.Feed([]byte("GARBAGEGARBAGE"))

	_, err := p.Next()
	assert.ErrorIs(t, err, ErrBadMagic)
}

func TestParserRest(t *testing.T) {
	raw, err := AppendFrame(nil, FrameHello, MakeHello(key.NewNode().Public(), NewNonce()))
	assert.NoError(t, err)

	trailing := []byte("opaque data after the handshake")

	var p Parser
	p.Feed(append(raw, trailing...))

	frame, err := p.Next()
	assert.NoError(t, err)
	assert.NotNil(t, frame)

	assert.Equal(t, trailing, p.Rest())
	assert.Empty(t, p.Rest(), "rest should drain the buffer")
}

func TestParseHelloRejectsShortKey(t *testing.T) {
	body, err := Marshal(&Hello{Key: []byte{1, 2}, Nonce: NewNonce(), Time: 0})
	assert.NoError(t, err)

	_, err = ParseHello(body)
	assert.Error(t, err)
}
