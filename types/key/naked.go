package key

// Len is the raw byte length of the keys this package handles.
const Len = 32

// NakedKey is bare curve25519 key material. Only the typed wrappers
// leave this package; handing naked bytes around loses the
// private/public distinction the types exist for.
type NakedKey [Len]byte
