package msgwire

import (
	crand "crypto/rand"
	"fmt"
	"io"
	"time"

	"github.com/loomnet/loom/types/key"
)

// NonceLen is the length of the random nonce carried in a Hello.
const NonceLen = 16

// Hello announces the sender's identity. Both sides send one as soon as the
// socket is up.
//
// CBOR encoding:
//
//	{
//	  1: key,       // 32-byte node public key
//	  2: nonce,     // 16 random bytes, echoed back sealed in an Auth
//	  3: time       // sender's unix time, informational
//	}
type Hello struct {
	Key   []byte `cbor:"1,keyasint"`
	Nonce []byte `cbor:"2,keyasint"`
	Time  int64  `cbor:"3,keyasint"`
}

// Auth proves possession of the key announced in a Hello: the sender seals
// the receiver's nonce to the receiver's key.
//
// CBOR encoding:
//
//	{
//	  1: seal       // NaCl box of the remote's nonce
//	}
type Auth struct {
	Seal []byte `cbor:"1,keyasint"`
}

func MakeHello(k key.NodePublic, nonce []byte) *Hello {
	return &Hello{
		Key:   k[:],
		Nonce: nonce,
		Time:  time.Now().Unix(),
	}
}

// NodeKey returns the announced key. Only valid after ParseHello.
func (h *Hello) NodeKey() key.NodePublic {
	return key.NodePublic(h.Key)
}

func ParseHello(body []byte) (*Hello, error) {
	h := new(Hello)

	if err := Unmarshal(body, h); err != nil {
		return nil, fmt.Errorf("failed to decode hello: %w", err)
	}

	if len(h.Key) != key.Len {
		return nil, fmt.Errorf("hello key has wrong size, got %d want %d", len(h.Key), key.Len)
	}

	if len(h.Nonce) != NonceLen {
		return nil, fmt.Errorf("hello nonce has wrong size, got %d want %d", len(h.Nonce), NonceLen)
	}

	return h, nil
}

func ParseAuth(body []byte) (*Auth, error) {
	a := new(Auth)

	if err := Unmarshal(body, a); err != nil {
		return nil, fmt.Errorf("failed to decode auth: %w", err)
	}

	if len(a.Seal) == 0 {
		return nil, fmt.Errorf("auth has empty seal")
	}

	return a, nil
}

// NewNonce returns NonceLen cryptographically random bytes. Panics if no
// randomness is available.
func NewNonce() []byte {
	b := make([]byte, NonceLen)

	if _, err := io.ReadFull(crand.Reader, b); err != nil {
		panic(fmt.Sprintf("unable to read random bytes from OS: %v", err))
	}

	return b
}
