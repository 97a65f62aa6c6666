package key

import (
	"encoding/hex"
	"fmt"

	"go4.org/mem"
)

const (
	// nodePublicHexPrefix is the prefix used to identify a
	// hex-encoded node public key.
	nodePublicHexPrefix = "nodekey:"

	// nodePrivateHexPrefix is the prefix used to identify a
	// hex-encoded node private key.
	nodePrivateHexPrefix = "privkey:"
)

func appendHexKey(dst []byte, prefix string, key []byte) []byte {
	dst = append(dst, prefix...)

	buf := make([]byte, hex.EncodedLen(len(key)))
	hex.Encode(buf, key)

	return append(dst, buf...)
}

// parseHex decodes a key string of the form "<prefix><hex>" into out.
func parseHex(out []byte, in, prefix mem.RO) error {
	if !mem.HasPrefix(in, prefix) {
		return fmt.Errorf("key hex string doesn't have expected type prefix %s", prefix.StringCopy())
	}

	in = in.SliceFrom(prefix.Len())
	if in.Len() != len(out)*2 {
		return fmt.Errorf("key hex has the wrong size, got %d want %d", in.Len(), len(out)*2)
	}

	for i := range out {
		hi, ok1 := fromHexChar(in.At(i * 2))
		lo, ok2 := fromHexChar(in.At(i*2 + 1))
		if !ok1 || !ok2 {
			return fmt.Errorf("invalid hex character in key")
		}
		out[i] = hi<<4 | lo
	}

	return nil
}

func fromHexChar(c byte) (byte, bool) {
	switch {
	case '0' <= c && c <= '9':
		return c - '0', true
	case 'a' <= c && c <= 'f':
		return c - 'a' + 10, true
	case 'A' <= c && c <= 'F':
		return c - 'A' + 10, true
	}
	return 0, false
}
