// Package digest implements the hash/MAC primitives of spec.md §4.B:
// SHA-256, SHA-512, and HMAC-SHA-256, each taken over a sequence of byte
// slices updated in order (order matters; an empty sequence yields the
// empty-input digest).
package digest

import (
	"crypto/hmac"
	"crypto/sha256"
	"crypto/sha512"

	"keevault/internal/kerrors"
)

// SHA256 computes sha256 over the concatenation-by-update of parts.
func SHA256(parts ...[]byte) [32]byte {
	h := sha256.New()
	for _, p := range parts {
		h.Write(p)
	}
	var out [32]byte
	copy(out[:], h.Sum(nil))
	return out
}

// SHA512 computes sha512 over the concatenation-by-update of parts.
func SHA512(parts ...[]byte) [64]byte {
	h := sha512.New()
	for _, p := range parts {
		h.Write(p)
	}
	var out [64]byte
	copy(out[:], h.Sum(nil))
	return out
}

// HMACSHA256 computes HMAC-SHA-256 over the concatenation-by-update of
// parts under key. Any key length is accepted by Go's crypto/hmac, so
// kerrors.KindInvalidKeyLength is currently unreachable here; it is kept
// in the taxonomy because spec.md §4.B documents it as a possible failure
// of "the MAC algorithm" in the abstract.
func HMACSHA256(key []byte, parts ...[]byte) ([32]byte, error) {
	mac := hmac.New(sha256.New, key)
	for _, p := range parts {
		mac.Write(p)
	}
	sum := mac.Sum(nil)
	if len(sum) != 32 {
		var zero [32]byte
		return zero, kerrors.New(kerrors.KindInvalidKeyLength)
	}
	var out [32]byte
	copy(out[:], sum)
	return out, nil
}
