// Package hmacstream implements the KDBX4 HMAC-block-authenticated
// stream framing spec.md §4.H describes: the still-encrypted container
// payload that follows the outer header is a sequence of `32-byte
// HMAC-SHA-256 || 4-byte LE size || data` blocks, each authenticated
// under a key derived from its own index, ending at the first zero-size
// block. The reassembled data is then outer-decrypted by the caller.
package hmacstream

import (
	"crypto/subtle"
	"math"

	"keevault/internal/bin"
	"keevault/internal/digest"
	"keevault/internal/kerrors"
)

// HeaderHMACBlockIndex is the sentinel block index used to authenticate
// the outer header itself, distinct from every payload block index.
const HeaderHMACBlockIndex = math.MaxUint64

// RootKey derives the HMAC root key the per-block subkeys are chained
// from: sha512(master_seed || transformed_key || 0x01).
func RootKey(masterSeed, transformedKey []byte) [64]byte {
	return digest.SHA512(masterSeed, transformedKey, []byte{0x01})
}

// BlockKey derives the per-block HMAC subkey: sha512(LE64(blockIndex) || rootKey).
func BlockKey(rootKey []byte, blockIndex uint64) [64]byte {
	return digest.SHA512(leUint64(blockIndex), rootKey)
}

// VerifyHeaderHMAC checks the 32-byte HMAC that authenticates the
// plaintext outer header against the sentinel block index.
func VerifyHeaderHMAC(rootKey, headerBytes, mac []byte) error {
	key := BlockKey(rootKey, HeaderHMACBlockIndex)
	expected, err := digest.HMACSHA256(key[:], headerBytes)
	if err != nil {
		return err
	}
	if !constantTimeEqual(expected[:], mac) {
		return kerrors.ErrIncorrectKey
	}
	return nil
}

// Decode consumes buf as a sequence of HMAC-authenticated blocks and
// returns their concatenated payload. rootKey must be the value RootKey
// produced for this container.
func Decode(buf []byte, rootKey []byte) ([]byte, error) {
	c := bin.NewCursor(buf)
	var out []byte

	for blockIndex := uint64(0); ; blockIndex++ {
		mac, err := c.ReadN(32)
		if err != nil {
			return nil, kerrors.Wrap(kerrors.KindShortRead, err)
		}
		size, err := c.ReadU32()
		if err != nil {
			return nil, kerrors.Wrap(kerrors.KindShortRead, err)
		}
		data, err := c.ReadN(int(size))
		if err != nil {
			return nil, kerrors.Wrap(kerrors.KindShortRead, err)
		}

		key := BlockKey(rootKey, blockIndex)
		expected, err := digest.HMACSHA256(key[:], leUint64(blockIndex), leUint32(size), data)
		if err != nil {
			return nil, err
		}
		if !constantTimeEqual(expected[:], mac) {
			return nil, kerrors.WithIndex(kerrors.KindBlockHashMismatch, int64(blockIndex))
		}

		if size == 0 {
			return out, nil
		}
		out = append(out, data...)
	}
}

// Encode re-frames payload as an HMAC-authenticated block stream,
// terminated by a zero-size block. It exists to keep the framing codec
// symmetric for the (non-goal) write path; nothing in the read path
// calls it.
func Encode(payload []byte, rootKey []byte, blockSize int) ([]byte, error) {
	var out []byte
	blockIndex := uint64(0)
	for offset := 0; offset <= len(payload); {
		end := offset + blockSize
		final := false
		if end >= len(payload) {
			end = len(payload)
			final = offset == len(payload)
		}
		data := payload[offset:end]

		key := BlockKey(rootKey, blockIndex)
		mac, err := digest.HMACSHA256(key[:], leUint64(blockIndex), leUint32(uint32(len(data))), data)
		if err != nil {
			return nil, err
		}
		out = append(out, mac[:]...)
		out = append(out, leUint32(uint32(len(data)))...)
		out = append(out, data...)

		blockIndex++
		if final {
			break
		}
		offset = end
	}
	return out, nil
}

func leUint64(v uint64) []byte {
	b := make([]byte, 8)
	for i := 0; i < 8; i++ {
		b[i] = byte(v >> (8 * uint(i)))
	}
	return b
}

func leUint32(v uint32) []byte {
	b := make([]byte, 4)
	for i := 0; i < 4; i++ {
		b[i] = byte(v >> (8 * uint(i)))
	}
	return b
}

func constantTimeEqual(a, b []byte) bool {
	return len(a) == len(b) && subtle.ConstantTimeCompare(a, b) == 1
}
