package containerheader

import (
	"encoding/binary"
	"testing"

	"github.com/stretchr/testify/require"

	"keevault/internal/magic"
)

func field3(id byte, data []byte) []byte {
	rec := []byte{id}
	size := make([]byte, 2)
	binary.LittleEndian.PutUint16(size, uint16(len(data)))
	rec = append(rec, size...)
	rec = append(rec, data...)
	return rec
}

func field4(id byte, data []byte) []byte {
	rec := []byte{id}
	size := make([]byte, 4)
	binary.LittleEndian.PutUint32(size, uint32(len(data)))
	rec = append(rec, size...)
	rec = append(rec, data...)
	return rec
}

func le32(v uint32) []byte {
	b := make([]byte, 4)
	binary.LittleEndian.PutUint32(b, v)
	return b
}

func le64(v uint64) []byte {
	b := make([]byte, 8)
	binary.LittleEndian.PutUint64(b, v)
	return b
}

func TestParseKDBFixedHeader(t *testing.T) {
	t.Parallel()

	buf := make([]byte, magic.KDBHeaderSize)
	binary.LittleEndian.PutUint32(buf[8:12], magic.KDBFlagAES)
	binary.LittleEndian.PutUint32(buf[12:16], 1)
	copy(buf[16:32], bytesOf(0xAA, 16))
	copy(buf[32:48], bytesOf(0xBB, 16))
	binary.LittleEndian.PutUint32(buf[48:52], 3)
	binary.LittleEndian.PutUint32(buf[52:56], 7)
	copy(buf[56:88], bytesOf(0xCC, 32))
	copy(buf[88:120], bytesOf(0xDD, 32))
	binary.LittleEndian.PutUint32(buf[120:124], 6000)

	h, err := ParseKDBFixedHeader(buf)
	require.NoError(t, err)
	require.Equal(t, OuterCipherAES256, h.Cipher)
	require.Equal(t, uint32(3), h.NumGroups)
	require.Equal(t, uint32(7), h.NumEntries)
	require.Equal(t, uint32(6000), h.TransformRounds)
	require.Len(t, h.ContentsHash, 32)
}

func TestParseKDBFixedHeaderRejectsUnknownFlags(t *testing.T) {
	t.Parallel()

	buf := make([]byte, magic.KDBHeaderSize)
	_, err := ParseKDBFixedHeader(buf)
	require.Error(t, err)
}

func bytesOf(b byte, n int) []byte {
	out := make([]byte, n)
	for i := range out {
		out[i] = b
	}
	return out
}

func TestParseOuterHeaderKDBX3(t *testing.T) {
	t.Parallel()

	var buf []byte
	buf = append(buf, field3(magic.OuterFieldCipherID, magic.CipherUUIDAES256[:])...)
	buf = append(buf, field3(magic.OuterFieldCompressionFlags, le32(1))...)
	buf = append(buf, field3(magic.OuterFieldMasterSeed, bytesOf(0x01, 32))...)
	buf = append(buf, field3(magic.OuterFieldTransformSeed, bytesOf(0x02, 32))...)
	buf = append(buf, field3(magic.OuterFieldTransformRounds, le64(6000))...)
	buf = append(buf, field3(magic.OuterFieldEncryptionIV, bytesOf(0x03, 16))...)
	buf = append(buf, field3(magic.OuterFieldProtectedStreamKey, bytesOf(0x04, 32))...)
	buf = append(buf, field3(magic.OuterFieldStreamStartBytes, bytesOf(0x05, 32))...)
	buf = append(buf, field3(magic.OuterFieldInnerRandomStreamID, le32(2))...)
	buf = append(buf, field3(magic.OuterFieldEnd, nil)...)

	h, consumed, err := ParseOuterHeaderKDBX3(buf)
	require.NoError(t, err)
	require.Equal(t, len(buf), consumed)
	require.Equal(t, OuterCipherAES256, h.Cipher)
	require.Equal(t, CompressionGzip, h.Compression)
	require.Equal(t, KDFKindAES, h.KDF.Kind)
	require.Equal(t, uint64(6000), h.KDF.AESRounds)
	require.Equal(t, uint32(2), h.InnerRandomStreamID)
}

func TestParseOuterHeaderKDBX3RejectsIncompleteHeader(t *testing.T) {
	t.Parallel()

	var buf []byte
	buf = append(buf, field3(magic.OuterFieldCipherID, magic.CipherUUIDAES256[:])...)
	buf = append(buf, field3(magic.OuterFieldEnd, nil)...)

	_, _, err := ParseOuterHeaderKDBX3(buf)
	require.Error(t, err)
}

func buildArgon2VariantDict(t *testing.T) []byte {
	t.Helper()
	out := make([]byte, 2)
	binary.LittleEndian.PutUint16(out, magic.VariantDictVersion)

	entry := func(typ byte, key string, val []byte) []byte {
		var rec []byte
		rec = append(rec, typ)
		rec = append(rec, le32(uint32(len(key)))...)
		rec = append(rec, key...)
		rec = append(rec, le32(uint32(len(val)))...)
		rec = append(rec, val...)
		return rec
	}

	out = append(out, entry(magic.VariantTypeByteArray, "$UUID", magic.KDFUUIDArgon2[:])...)
	out = append(out, entry(magic.VariantTypeByteArray, "S", bytesOf(0x07, 16))...)
	out = append(out, entry(magic.VariantTypeUInt64, "I", le64(2))...)
	out = append(out, entry(magic.VariantTypeUInt64, "M", le64(67108864))...)
	out = append(out, entry(magic.VariantTypeUInt32, "P", le32(1))...)
	out = append(out, entry(magic.VariantTypeUInt32, "V", le32(magic.Argon2Version13))...)
	out = append(out, 0x00)
	return out
}

func TestParseOuterHeaderKDBX4WithArgon2(t *testing.T) {
	t.Parallel()

	vd := buildArgon2VariantDict(t)

	var buf []byte
	buf = append(buf, field4(magic.OuterFieldCipherID, magic.CipherUUIDChaCha20[:])...)
	buf = append(buf, field4(magic.OuterFieldCompressionFlags, le32(1))...)
	buf = append(buf, field4(magic.OuterFieldMasterSeed, bytesOf(0x01, 32))...)
	buf = append(buf, field4(magic.OuterFieldEncryptionIV, bytesOf(0x03, 12))...)
	buf = append(buf, field4(magic.OuterFieldKDFParameters, vd)...)
	buf = append(buf, field4(magic.OuterFieldEnd, nil)...)

	h, consumed, err := ParseOuterHeaderKDBX4(buf)
	require.NoError(t, err)
	require.Equal(t, len(buf), consumed)
	require.Equal(t, OuterCipherChaCha20, h.Cipher)
	require.Equal(t, KDFKindArgon2, h.KDF.Kind)
	require.Equal(t, uint64(2), h.KDF.Argon2Iterations)
	require.Equal(t, uint32(1), h.KDF.Argon2Parallelism)
	require.Equal(t, magic.Argon2Version13, h.KDF.Argon2Version)
}

func TestParseInnerHeaderKDBX4(t *testing.T) {
	t.Parallel()

	var buf []byte
	buf = append(buf, field4(magic.InnerFieldRandomStreamID, le32(2))...)
	buf = append(buf, field4(magic.InnerFieldRandomStreamKey, bytesOf(0x09, 64))...)
	buf = append(buf, field4(magic.InnerFieldBinaryAttachment, []byte{0x01, 0xFF})...)
	buf = append(buf, field4(magic.InnerFieldEnd, nil)...)

	h, consumed, err := ParseInnerHeaderKDBX4(buf)
	require.NoError(t, err)
	require.Equal(t, len(buf), consumed)
	require.Equal(t, uint32(2), h.RandomStreamID)
	require.Len(t, h.RandomStreamKey, 64)
	require.Len(t, h.Attachments, 1)
}

func TestParseOuterHeaderKDBX4RejectsUnknownFieldID(t *testing.T) {
	t.Parallel()

	var buf []byte
	buf = append(buf, field4(0x7F, []byte{0x00})...)
	buf = append(buf, field4(magic.OuterFieldEnd, nil)...)

	_, _, err := ParseOuterHeaderKDBX4(buf)
	require.Error(t, err)
}
