package key

import (
	"encoding"
)

type key interface {
	IsZero() bool
}

type canTextMarshal interface {
	// We need text encoding for JSON and BSON (currently)

	encoding.TextMarshaler
	encoding.TextUnmarshaler
}

type publicKey interface {
	key

	Debug() string
	HexString() string
}

type privateKey[Pub key] interface {
	key

	Public() Pub
}

type canSealTo[To publicKey] interface {
	SealTo(p To, cleartext []byte) (ciphertext []byte)
}

type canOpenFrom[From publicKey] interface {
	OpenFrom(p From, ciphertext []byte) (cleartext []byte, ok bool)
}

type CryptoPair[Pub publicKey] interface {
	canOpenFrom[Pub]
	canSealTo[Pub]
}
