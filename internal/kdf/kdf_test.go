package kdf

import (
	"bytes"
	"encoding/hex"
	"testing"

	"github.com/leanovate/gopter"
	"github.com/leanovate/gopter/gen"
	"github.com/leanovate/gopter/prop"
	"github.com/stretchr/testify/require"

	"keevault/internal/magic"
)

// Fixed vector from spec.md §8: seed=[2;32], rounds=100, input=[1;32].
func TestTransformAESKDFFixedVector(t *testing.T) {
	t.Parallel()

	seed := bytes.Repeat([]byte{2}, 32)
	input := bytes.Repeat([]byte{1}, 32)

	got, err := TransformAESKDF(input, seed, 100)
	require.NoError(t, err)
	require.Equal(t, "96e80e07b7b8e04eb472f3c1d3a87db9bdb3dc4907cffc9bbf62f126e3b861cd", hex.EncodeToString(got[:]))
}

func TestTransformAESKDFRejectsShortInput(t *testing.T) {
	t.Parallel()

	_, err := TransformAESKDF(make([]byte, 16), make([]byte, 32), 1)
	require.Error(t, err)
}

func TestTransformAESKDFDeterministic(t *testing.T) {
	t.Parallel()

	seed := bytes.Repeat([]byte{0x05}, 32)
	input := bytes.Repeat([]byte{0x09}, 32)

	a, err := TransformAESKDF(input, seed, 50)
	require.NoError(t, err)
	b, err := TransformAESKDF(input, seed, 50)
	require.NoError(t, err)
	require.Equal(t, a, b)
}

func TestTransformArgon2dDeterministic(t *testing.T) {
	t.Parallel()

	params := Argon2Params{
		Salt:        bytes.Repeat([]byte{0x0A}, 16),
		Iterations:  2,
		MemoryBytes: 8 * 1024,
		Parallelism: 1,
		Version:     magic.Argon2Version13,
	}
	compositeKey := bytes.Repeat([]byte{0x0B}, 32)

	a, err := TransformArgon2d(compositeKey, params)
	require.NoError(t, err)
	b, err := TransformArgon2d(compositeKey, params)
	require.NoError(t, err)
	require.Equal(t, a, b)
}

func TestTransformArgon2dRejectsUnsupportedVersion(t *testing.T) {
	t.Parallel()

	params := Argon2Params{
		Salt:        bytes.Repeat([]byte{0x0A}, 16),
		Iterations:  2,
		MemoryBytes: 8 * 1024,
		Parallelism: 1,
		Version:     magic.Argon2Version10,
	}

	_, err := TransformArgon2d(bytes.Repeat([]byte{0x0B}, 32), params)
	require.Error(t, err)
}

func TestTransformArgon2dRejectsZeroMemory(t *testing.T) {
	t.Parallel()

	params := Argon2Params{
		Salt:        bytes.Repeat([]byte{0x0A}, 16),
		Iterations:  2,
		MemoryBytes: 0,
		Parallelism: 1,
		Version:     magic.Argon2Version13,
	}

	_, err := TransformArgon2d(bytes.Repeat([]byte{0x0B}, 32), params)
	require.Error(t, err)
}

func TestTransformAESKDFDeterministicProperty(t *testing.T) {
	t.Parallel()

	parameters := gopter.DefaultTestParameters()
	properties := gopter.NewProperties(parameters)

	properties.Property("the same input, seed, and round count always transform to the same output", prop.ForAll(
		func(input []byte, seed []byte, roundsSeed uint8) bool {
			rounds := uint64(roundsSeed%20) + 1
			a, err := TransformAESKDF(input, seed, rounds)
			if err != nil {
				return false
			}
			b, err := TransformAESKDF(input, seed, rounds)
			if err != nil {
				return false
			}
			return a == b
		},
		gen.SliceOfN(32, gen.UInt8()),
		gen.SliceOfN(32, gen.UInt8()),
		gen.UInt8(),
	))

	properties.TestingRun(t, gopter.ConsoleReporter(false))
}
