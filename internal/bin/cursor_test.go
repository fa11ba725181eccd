package bin

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestU32LittleEndian(t *testing.T) {
	t.Parallel()

	v, err := U32([]byte{0x01, 0x00, 0x00, 0x00}, 0)
	require.NoError(t, err)
	require.Equal(t, uint32(1), v)
}

func TestShortRead(t *testing.T) {
	t.Parallel()

	_, err := U32([]byte{0x01, 0x02}, 0)
	require.Error(t, err)
}

func TestCursorReadSequence(t *testing.T) {
	t.Parallel()

	c := NewCursor([]byte{0x02, 0x00, 0xAA, 0xBB})
	size, err := c.ReadU16()
	require.NoError(t, err)
	require.Equal(t, uint16(2), size)

	data, err := c.ReadN(int(size))
	require.NoError(t, err)
	require.Equal(t, []byte{0xAA, 0xBB}, data)
	require.Equal(t, 0, c.Remaining())
}
