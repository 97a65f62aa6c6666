package key

import (
	crand "crypto/rand"
	"fmt"
	"io"
)

// rand fills b with cryptographically strong random bytes. Panics if
// no random bytes are available.
func rand(b []byte) {
	if _, err := io.ReadFull(crand.Reader, b[:]); err != nil {
		panic(fmt.Sprintf("unable to read random bytes from OS: %v", err))
	}
}

// clamp25519Private clamps b, a 32-byte Curve25519 private key, to a
// safe value for NaCl box use.
//
// Constrains the key to a multiple of the cofactor between 2^251 and
// 2^252-1, per
// https://web.archive.org/web/20210228105330/https://neilmadden.blog/2020/05/28/whats-the-curve25519-clamping-all-about/
//
// Box keys are clamped at creation; key types for protocols that do
// their own clamping must not be run through this.
func clamp25519Private(b []byte) {
	b[0] &= 248
	b[31] = (b[31] & 127) | 64
}
