package digest

import (
	"encoding/hex"
	"testing"

	"github.com/stretchr/testify/require"
)

// Fixed vectors from spec.md §8.
func TestSHA256ZeroVector(t *testing.T) {
	t.Parallel()

	sum := SHA256(make([]byte, 32))
	got := hex.EncodeToString(sum[:])
	require.Equal(t, "66687aadf862bd776c8fc18b8e9f8e20089714856ee233b3902a591d0d5f2925", got)
}

func TestSHA512ZeroVectorPrefix(t *testing.T) {
	t.Parallel()

	sum := SHA512(make([]byte, 32))
	got := hex.EncodeToString(sum[:])
	require.True(t, len(got) > 8 && got[:8] == "5046adc1")
}

func TestSHA256OrderMatters(t *testing.T) {
	t.Parallel()

	a := SHA256([]byte("ab"))
	b := SHA256([]byte("a"), []byte("b"))
	require.Equal(t, a, b, "sequential update must equal a single concatenated update")

	c := SHA256([]byte("ba"))
	require.NotEqual(t, a, c)
}

func TestSHA256EmptySequence(t *testing.T) {
	t.Parallel()

	sum := SHA256()
	require.Equal(t, sha256Empty, hex.EncodeToString(sum[:]))
}

const sha256Empty = "e3b0c44298fc1c149afbf4c8996fb92427ae41e4649b934ca495991b7852b855"

func TestHMACSHA256Deterministic(t *testing.T) {
	t.Parallel()

	key := []byte{0, 0, 0, 0, 0, 0, 0, 0}
	in := [][]byte{make([]byte, 8), make([]byte, 4), make([]byte, 32)}

	a, err := HMACSHA256(key, in...)
	require.NoError(t, err)
	b, err := HMACSHA256(key, in...)
	require.NoError(t, err)
	require.Equal(t, a, b)
}
