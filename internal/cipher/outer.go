// Package cipher implements the outer and inner cipher suites of spec.md
// §4.C: AES-256-CBC, Twofish-CBC, and ChaCha20 as outer block/stream
// ciphers over the container payload, and Plain/Salsa20/ChaCha20 as inner
// stream ciphers that unmask protected string fields.
package cipher

import (
	stdaes "crypto/aes"
	stdcipher "crypto/cipher"

	"golang.org/x/crypto/chacha20"
	"golang.org/x/crypto/twofish"

	"keevault/internal/kerrors"
)

// Outer is the symmetric encrypt/decrypt capability an outer cipher
// suite exposes over the whole container payload.
type Outer interface {
	Encrypt(plaintext []byte) ([]byte, error)
	Decrypt(ciphertext []byte) ([]byte, error)
}

// NewOuterAES256 builds the AES-256-CBC/PKCS7 outer cipher. key must be
// 32 bytes, iv must be 16 bytes.
func NewOuterAES256(key, iv []byte) (Outer, error) {
	if len(key) != 32 {
		return nil, kerrors.New(kerrors.KindCryptoInvalidLength)
	}
	block, err := stdaes.NewCipher(key)
	if err != nil {
		return nil, kerrors.Wrap(kerrors.KindCryptoInvalidLength, err)
	}
	return newCBC(block, iv)
}

// NewOuterTwofish builds the Twofish-CBC/PKCS7 outer cipher. key must be
// 32 bytes, iv must be 16 bytes.
func NewOuterTwofish(key, iv []byte) (Outer, error) {
	if len(key) != 32 {
		return nil, kerrors.New(kerrors.KindCryptoInvalidLength)
	}
	block, err := twofish.NewCipher(key)
	if err != nil {
		return nil, kerrors.Wrap(kerrors.KindCryptoInvalidLength, err)
	}
	return newCBC(block, iv)
}

func newCBC(block stdcipher.Block, iv []byte) (Outer, error) {
	if len(iv) != block.BlockSize() {
		return nil, kerrors.New(kerrors.KindCryptoInvalidLength)
	}
	ivCopy := append([]byte(nil), iv...)
	return &cbcCodec{block: block, iv: ivCopy}, nil
}

type cbcCodec struct {
	block stdcipher.Block
	iv    []byte
}

func (c *cbcCodec) Encrypt(plaintext []byte) ([]byte, error) {
	padded := pkcs7Pad(plaintext, c.block.BlockSize())
	out := make([]byte, len(padded))
	enc := stdcipher.NewCBCEncrypter(c.block, c.iv)
	enc.CryptBlocks(out, padded)
	return out, nil
}

func (c *cbcCodec) Decrypt(ciphertext []byte) ([]byte, error) {
	bs := c.block.BlockSize()
	if len(ciphertext) == 0 || len(ciphertext)%bs != 0 {
		return nil, kerrors.New(kerrors.KindCryptoBlockMode)
	}
	out := make([]byte, len(ciphertext))
	dec := stdcipher.NewCBCDecrypter(c.block, c.iv)
	dec.CryptBlocks(out, ciphertext)
	return pkcs7Unpad(out, bs)
}

func pkcs7Pad(data []byte, blockSize int) []byte {
	padLen := blockSize - len(data)%blockSize
	padded := make([]byte, len(data)+padLen)
	copy(padded, data)
	for i := len(data); i < len(padded); i++ {
		padded[i] = byte(padLen)
	}
	return padded
}

func pkcs7Unpad(data []byte, blockSize int) ([]byte, error) {
	if len(data) == 0 || len(data)%blockSize != 0 {
		return nil, kerrors.New(kerrors.KindCryptoBlockMode)
	}
	padLen := int(data[len(data)-1])
	if padLen == 0 || padLen > blockSize || padLen > len(data) {
		return nil, kerrors.New(kerrors.KindCryptoBlockMode)
	}
	for _, b := range data[len(data)-padLen:] {
		if int(b) != padLen {
			return nil, kerrors.New(kerrors.KindCryptoBlockMode)
		}
	}
	return data[:len(data)-padLen], nil
}

type chacha20Outer struct {
	key   []byte
	nonce []byte
}

// NewOuterChaCha20 builds the ChaCha20 outer stream cipher. key must be
// 32 bytes, nonce must be 12 bytes.
func NewOuterChaCha20(key, nonce []byte) (Outer, error) {
	if len(key) != chacha20.KeySize || len(nonce) != chacha20.NonceSize {
		return nil, kerrors.New(kerrors.KindCryptoInvalidLength)
	}
	return &chacha20Outer{key: append([]byte(nil), key...), nonce: append([]byte(nil), nonce...)}, nil
}

func (c *chacha20Outer) Encrypt(plaintext []byte) ([]byte, error) {
	return c.xor(plaintext)
}

func (c *chacha20Outer) Decrypt(ciphertext []byte) ([]byte, error) {
	return c.xor(ciphertext)
}

func (c *chacha20Outer) xor(in []byte) ([]byte, error) {
	s, err := chacha20.NewUnauthenticatedCipher(c.key, c.nonce)
	if err != nil {
		return nil, kerrors.Wrap(kerrors.KindCryptoInvalidLength, err)
	}
	out := make([]byte, len(in))
	s.XORKeyStream(out, in)
	return out, nil
}
