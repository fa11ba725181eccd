package hmacstream

import (
	"bytes"
	"testing"

	"github.com/leanovate/gopter"
	"github.com/leanovate/gopter/gen"
	"github.com/leanovate/gopter/prop"
	"github.com/stretchr/testify/require"

	"keevault/internal/digest"
)

func TestEncodeDecodeRoundTrip(t *testing.T) {
	t.Parallel()

	masterSeed := bytes.Repeat([]byte{0x01}, 32)
	transformedKey := bytes.Repeat([]byte{0x02}, 32)
	root := RootKey(masterSeed, transformedKey)

	payload := []byte("the full decrypted KDBX4 payload, inner header plus XML document")
	encoded, err := Encode(payload, root[:], 16)
	require.NoError(t, err)

	decoded, err := Decode(encoded, root[:])
	require.NoError(t, err)
	require.Equal(t, payload, decoded)
}

func TestDecodeRejectsTamperedBlock(t *testing.T) {
	t.Parallel()

	masterSeed := bytes.Repeat([]byte{0x03}, 32)
	transformedKey := bytes.Repeat([]byte{0x04}, 32)
	root := RootKey(masterSeed, transformedKey)

	payload := []byte("short payload")
	encoded, err := Encode(payload, root[:], 64)
	require.NoError(t, err)

	encoded[40] ^= 0xFF

	_, err = Decode(encoded, root[:])
	require.Error(t, err)
}

func TestDecodeEmptyPayloadIsJustTerminator(t *testing.T) {
	t.Parallel()

	masterSeed := bytes.Repeat([]byte{0x05}, 32)
	transformedKey := bytes.Repeat([]byte{0x06}, 32)
	root := RootKey(masterSeed, transformedKey)

	encoded, err := Encode(nil, root[:], 16)
	require.NoError(t, err)

	decoded, err := Decode(encoded, root[:])
	require.NoError(t, err)
	require.Empty(t, decoded)
}

func TestVerifyHeaderHMACUsesSentinelIndex(t *testing.T) {
	t.Parallel()

	masterSeed := bytes.Repeat([]byte{0x07}, 32)
	transformedKey := bytes.Repeat([]byte{0x08}, 32)
	root := RootKey(masterSeed, transformedKey)

	header := []byte("plaintext outer header bytes")
	key := BlockKey(root[:], HeaderHMACBlockIndex)

	// Build the expected HMAC the way VerifyHeaderHMAC does, so this test
	// documents the sentinel-index contract rather than re-deriving it.
	wantMac, err := digest.HMACSHA256(key[:], header)
	require.NoError(t, err)

	require.NoError(t, VerifyHeaderHMAC(root[:], header, wantMac[:]))

	wantMac[0] ^= 0xFF
	require.Error(t, VerifyHeaderHMAC(root[:], header, wantMac[:]))
}

func TestEncodeDecodeRoundTripsProperty(t *testing.T) {
	t.Parallel()

	masterSeed := bytes.Repeat([]byte{0x0A}, 32)
	transformedKey := bytes.Repeat([]byte{0x0B}, 32)
	root := RootKey(masterSeed, transformedKey)

	parameters := gopter.DefaultTestParameters()
	properties := gopter.NewProperties(parameters)

	properties.Property("any payload round-trips through Encode/Decode at any block size", prop.ForAll(
		func(payload []byte, blockSizeSeed uint8) bool {
			blockSize := int(blockSizeSeed%64) + 1
			encoded, err := Encode(payload, root[:], blockSize)
			if err != nil {
				return false
			}
			decoded, err := Decode(encoded, root[:])
			if err != nil {
				return false
			}
			return bytes.Equal(payload, decoded)
		},
		gen.SliceOf(gen.UInt8()),
		gen.UInt8(),
	))

	properties.TestingRun(t, gopter.ConsoleReporter(false))
}
