package credential

import (
	"bytes"
	"encoding/base64"
	"encoding/hex"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestCompositeSingleCredentialIsUnhashed(t *testing.T) {
	t.Parallel()

	c := New()
	key := bytes.Repeat([]byte{0x42}, 32)
	require.NoError(t, c.WithKeyFile(key))

	got, err := c.Composite()
	require.NoError(t, err)
	require.Equal(t, key, got)
}

func TestCompositeMultipleCredentialsIsHashed(t *testing.T) {
	t.Parallel()

	c := New().WithPassphrase("correct horse battery staple")
	require.NoError(t, c.WithKeyFile(bytes.Repeat([]byte{0x11}, 32)))

	got, err := c.Composite()
	require.NoError(t, err)
	require.Len(t, got, 32)

	other := New().WithPassphrase("correct horse battery staple")
	require.NoError(t, other.WithKeyFile(bytes.Repeat([]byte{0x99}, 32)))
	gotOther, err := other.Composite()
	require.NoError(t, err)
	require.NotEqual(t, got, gotOther)
}

func TestCompositeEmptyFails(t *testing.T) {
	t.Parallel()

	_, err := New().Composite()
	require.Error(t, err)
}

func TestKeyFileVerbatim32Bytes(t *testing.T) {
	t.Parallel()

	raw := bytes.Repeat([]byte{0x07}, 32)
	c := New()
	require.NoError(t, c.WithKeyFile(raw))

	got, err := c.Composite()
	require.NoError(t, err)
	require.Equal(t, raw, got)
}

func TestKeyFileValidHex64Bytes(t *testing.T) {
	t.Parallel()

	want := bytes.Repeat([]byte{0xAB}, 32)
	raw := []byte(hex.EncodeToString(want))
	require.Len(t, raw, 64)

	c := New()
	require.NoError(t, c.WithKeyFile(raw))

	got, err := c.Composite()
	require.NoError(t, err)
	require.Equal(t, want, got)
}

func TestKeyFileInvalidHex64BytesFails(t *testing.T) {
	t.Parallel()

	raw := bytes.Repeat([]byte('z'), 64)
	c := New()
	err := c.WithKeyFile(raw)
	require.Error(t, err)
}

func TestKeyFileArbitraryLengthIsHashed(t *testing.T) {
	t.Parallel()

	c := New()
	require.NoError(t, c.WithKeyFile([]byte("not thirty-two or sixty-four bytes")))

	got, err := c.Composite()
	require.NoError(t, err)
	require.Len(t, got, 32)
}

func TestKeyFileXMLBase64Data(t *testing.T) {
	t.Parallel()

	keyBytes := bytes.Repeat([]byte{0x5A}, 32)
	encoded := base64.StdEncoding.EncodeToString(keyBytes)
	xmlDoc := []byte(`<KeyFile><Meta><Version>1.00</Version></Meta><Key><Data>` + encoded + `</Data></Key></KeyFile>`)

	c := New()
	require.NoError(t, c.WithKeyFile(xmlDoc))

	got, err := c.Composite()
	require.NoError(t, err)
	require.Equal(t, keyBytes, got)
}

func TestKeyFileXMLNonBase64DataFallsBackToLiteral(t *testing.T) {
	t.Parallel()

	literal := "not-valid-base64!!"
	xmlDoc := []byte(`<KeyFile><Key><Data>` + literal + `</Data></Key></KeyFile>`)

	c := New()
	require.NoError(t, c.WithKeyFile(xmlDoc))

	got, err := c.Composite()
	require.NoError(t, err)
	require.Equal(t, []byte(literal), got) // XML Data bytes are used directly, never reclassified
}
