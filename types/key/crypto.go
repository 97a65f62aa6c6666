package key

import (
	"golang.org/x/crypto/nacl/box"
)

// sealTo wraps cleartext in a NaCl box to pub, authenticated from priv,
// using a random nonce. The nonce is prepended to the returned ciphertext.
func sealTo(priv, pub NakedKey, cleartext []byte) []byte {
	var nonce [24]byte
	rand(nonce[:])

	return box.Seal(nonce[:], cleartext, &nonce, (*[32]byte)(&pub), (*[32]byte)(&priv))
}

// openFrom opens a NaCl box created by sealTo: the first 24 bytes of
// ciphertext are the nonce.
func openFrom(priv, pub NakedKey, ciphertext []byte) (cleartext []byte, ok bool) {
	if len(ciphertext) < 24 {
		return nil, false
	}

	nonce := (*[24]byte)(ciphertext)

	return box.Open(nil, ciphertext[24:], nonce, (*[32]byte)(&pub), (*[32]byte)(&priv))
}
