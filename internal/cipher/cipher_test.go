package cipher

import (
	"bytes"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestOuterAES256RoundTrip(t *testing.T) {
	t.Parallel()

	key := bytes.Repeat([]byte{0x11}, 32)
	iv := bytes.Repeat([]byte{0x22}, 16)
	c, err := NewOuterAES256(key, iv)
	require.NoError(t, err)

	plaintext := []byte("the quick brown fox jumps over the lazy dog")
	ciphertext, err := c.Encrypt(plaintext)
	require.NoError(t, err)
	require.NotEqual(t, plaintext, ciphertext)

	got, err := c.Decrypt(ciphertext)
	require.NoError(t, err)
	require.Equal(t, plaintext, got)
}

func TestOuterAES256RejectsWrongKeyLength(t *testing.T) {
	t.Parallel()

	_, err := NewOuterAES256(make([]byte, 16), make([]byte, 16))
	require.Error(t, err)
}

func TestOuterAES256RejectsCorruptPadding(t *testing.T) {
	t.Parallel()

	key := bytes.Repeat([]byte{0x33}, 32)
	iv := bytes.Repeat([]byte{0x44}, 16)
	c, err := NewOuterAES256(key, iv)
	require.NoError(t, err)

	ciphertext, err := c.Encrypt([]byte("short"))
	require.NoError(t, err)
	ciphertext[len(ciphertext)-1] ^= 0xFF

	_, err = c.Decrypt(ciphertext)
	require.Error(t, err)
}

func TestOuterTwofishRoundTrip(t *testing.T) {
	t.Parallel()

	key := bytes.Repeat([]byte{0x55}, 32)
	iv := bytes.Repeat([]byte{0x66}, 16)
	c, err := NewOuterTwofish(key, iv)
	require.NoError(t, err)

	plaintext := []byte("twofish block cipher payload")
	ciphertext, err := c.Encrypt(plaintext)
	require.NoError(t, err)

	got, err := c.Decrypt(ciphertext)
	require.NoError(t, err)
	require.Equal(t, plaintext, got)
}

func TestOuterChaCha20RoundTrip(t *testing.T) {
	t.Parallel()

	key := bytes.Repeat([]byte{0x77}, 32)
	nonce := bytes.Repeat([]byte{0x88}, 12)
	c, err := NewOuterChaCha20(key, nonce)
	require.NoError(t, err)

	plaintext := []byte("stream cipher payload, any length at all")
	ciphertext, err := c.Encrypt(plaintext)
	require.NoError(t, err)
	require.Equal(t, len(plaintext), len(ciphertext))

	got, err := c.Decrypt(ciphertext)
	require.NoError(t, err)
	require.Equal(t, plaintext, got)
}

func TestInnerPlainPassesThrough(t *testing.T) {
	t.Parallel()

	in := NewInnerPlain()
	got, err := in.Decrypt([]byte("masked-but-not-really"))
	require.NoError(t, err)
	require.Equal(t, []byte("masked-but-not-really"), got)
}

func TestInnerSalsa20AdvancesStatefully(t *testing.T) {
	t.Parallel()

	key := bytes.Repeat([]byte{0x01}, 32)

	oneShot := NewInnerSalsa20(key)
	ciphertext := bytes.Repeat([]byte{0x00}, 80)
	whole, err := oneShot.Decrypt(ciphertext)
	require.NoError(t, err)

	split := NewInnerSalsa20(key)
	first, err := split.Decrypt(ciphertext[:32])
	require.NoError(t, err)
	second, err := split.Decrypt(ciphertext[32:])
	require.NoError(t, err)

	require.Equal(t, whole, append(first, second...))
}

func TestInnerSalsa20AcceptsShortKey(t *testing.T) {
	t.Parallel()

	short := NewInnerSalsa20([]byte("short-random-stream-key"))
	out, err := short.Decrypt(make([]byte, 16))
	require.NoError(t, err)
	require.Len(t, out, 16)
}

func TestInnerChaCha20Deterministic(t *testing.T) {
	t.Parallel()

	key := bytes.Repeat([]byte{0x09}, 32)

	a, err := NewInnerChaCha20(key)
	require.NoError(t, err)
	b, err := NewInnerChaCha20(key)
	require.NoError(t, err)

	ciphertext := bytes.Repeat([]byte{0xAB}, 24)
	outA, err := a.Decrypt(ciphertext)
	require.NoError(t, err)
	outB, err := b.Decrypt(ciphertext)
	require.NoError(t, err)
	require.Equal(t, outA, outB)
}
