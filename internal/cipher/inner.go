package cipher

import (
	"golang.org/x/crypto/chacha20"
	"golang.org/x/crypto/salsa20"

	"keevault/internal/digest"
	"keevault/internal/kerrors"
	"keevault/internal/magic"
)

// Inner is the stateful stream-cipher capability used to unmask protected
// string fields as they are encountered in document order while walking
// the KDBX XML tree. A single Inner instance must be reused across every
// protected value in a document: the underlying stream advances with
// each call.
type Inner interface {
	Decrypt(ciphertext []byte) ([]byte, error)
}

type plainInner struct{}

// NewInnerPlain returns the passthrough inner cipher used when the
// container declares InnerStreamPlain: protected values are stored
// unmasked.
func NewInnerPlain() Inner {
	return plainInner{}
}

func (plainInner) Decrypt(ciphertext []byte) ([]byte, error) {
	return ciphertext, nil
}

// salsa20Inner keeps the entire Salsa20 keystream positional state as a
// single running offset. Each Decrypt call regenerates the keystream
// from block zero up to its new high-water mark and uses only the freshly
// needed tail; this keeps the implementation on golang.org/x/crypto's
// public, stateless XORKeyStream entry point rather than poking at the
// cipher's internal block counter. Protected-value payloads in a KDBX
// document are small, so the quadratic regeneration cost is immaterial.
type salsa20Inner struct {
	key      [32]byte
	consumed uint64
}

// NewInnerSalsa20 builds the Salsa20 inner cipher. The nonce is fixed by
// the format (not carried in the container header): the constant
// E8 30 09 4B 97 20 5D 2A. key is hashed down to 32 bytes with SHA-256 if
// it is not already exactly 32 bytes, matching how KDBX3 random-stream
// keys (which are not necessarily 32 bytes) are consumed.
func NewInnerSalsa20(key []byte) Inner {
	var k [32]byte
	if len(key) == 32 {
		copy(k[:], key)
	} else {
		k = digest.SHA256(key)
	}
	return &salsa20Inner{key: k}
}

func (s *salsa20Inner) Decrypt(ciphertext []byte) ([]byte, error) {
	need := s.consumed + uint64(len(ciphertext))
	keystream := make([]byte, need)
	salsa20.XORKeyStream(keystream, keystream, magic.SalsaFixedNonce[:], &s.key)

	out := make([]byte, len(ciphertext))
	tail := keystream[s.consumed:need]
	for i := range ciphertext {
		out[i] = ciphertext[i] ^ tail[i]
	}
	s.consumed = need
	return out, nil
}

type chacha20Inner struct {
	stream *chacha20.Cipher
}

// NewInnerChaCha20 builds the ChaCha20 inner cipher. Unlike the outer
// ChaCha20 suite, the stream key and nonce are derived from the
// container's random-stream key: sha512(key)[0:32] is the stream key and
// sha512(key)[32:44] is the 12-byte nonce.
func NewInnerChaCha20(key []byte) (Inner, error) {
	h := digest.SHA512(key)
	streamKey := h[0:32]
	nonce := h[32:44]
	s, err := chacha20.NewUnauthenticatedCipher(streamKey, nonce)
	if err != nil {
		return nil, kerrors.Wrap(kerrors.KindCryptoInvalidLength, err)
	}
	return &chacha20Inner{stream: s}, nil
}

func (c *chacha20Inner) Decrypt(ciphertext []byte) ([]byte, error) {
	out := make([]byte, len(ciphertext))
	c.stream.XORKeyStream(out, ciphertext)
	return out, nil
}
