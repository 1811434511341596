package solana

import (
	"github.com/gagliardetto/solana-go"
)

// Alphabet is the base-58 alphabet used for every identity and signature.
const Alphabet = "123456789ABCDEFGHJKLMNPQRSTUVWXYZabcdefghijkmnopqrstuvwxyz"

// IdentitySize is the width of a public key in bytes.
const IdentitySize = solana.PublicKeyLength

// DecodeIdentity renders a raw 32-byte public key as its base-58 string.
// Each leading zero byte becomes a leading '1'.
func DecodeIdentity(raw [IdentitySize]byte) string {
	return solana.PublicKey(raw).String()
}

// DecodeIdentityBytes is DecodeIdentity for a slice. It returns false when the
// slice is not exactly IdentitySize bytes long.
func DecodeIdentityBytes(b []byte) (string, bool) {
	if len(b) != IdentitySize {
		return "", false
	}
	var raw [IdentitySize]byte
	copy(raw[:], b)
	return DecodeIdentity(raw), true
}
