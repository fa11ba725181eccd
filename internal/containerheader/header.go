// Package containerheader decodes the three header shapes spec.md §4.G
// names: the legacy KDB fixed 124-byte header, the KDBX3 outer TLV
// header (u8 id || u16 LE size || data), and the KDBX4 outer/inner TLV
// headers (u8 id || u32 LE size || data), including dispatching the
// outer-cipher and KDF UUIDs each carries to their concrete identity.
package containerheader

import (
	"math"

	"keevault/internal/bin"
	"keevault/internal/kerrors"
	"keevault/internal/magic"
	"keevault/internal/variantdict"
)

// OuterCipher identifies the algorithm that encrypts the container payload.
type OuterCipher int

const (
	OuterCipherAES256 OuterCipher = iota
	OuterCipherTwofish
	OuterCipherChaCha20
)

func outerCipherFromUUID(b []byte) (OuterCipher, error) {
	switch {
	case matches16(b, magic.CipherUUIDAES256):
		return OuterCipherAES256, nil
	case matches16(b, magic.CipherUUIDTwofish):
		return OuterCipherTwofish, nil
	case matches16(b, magic.CipherUUIDChaCha20):
		return OuterCipherChaCha20, nil
	default:
		return 0, kerrors.WithBytes(kerrors.KindInvalidOuterCipherID, b)
	}
}

func matches16(b []byte, want [16]byte) bool {
	if len(b) != 16 {
		return false
	}
	for i := range want {
		if b[i] != want[i] {
			return false
		}
	}
	return true
}

// Compression identifies the payload's compression filter.
type Compression int

const (
	CompressionNone Compression = iota
	CompressionGzip
)

func compressionFromFlags(v uint32) (Compression, error) {
	switch v {
	case 0:
		return CompressionNone, nil
	case 1:
		return CompressionGzip, nil
	default:
		return 0, kerrors.WithIndex(kerrors.KindInvalidCompressionSuite, int64(v))
	}
}

// KDFKind identifies which key-derivation function a container's KDF
// parameters describe.
type KDFKind int

const (
	KDFKindAES KDFKind = iota
	KDFKindArgon2
)

// KDFParams carries every field either KDF variant needs. Only the
// fields relevant to Kind are populated.
type KDFParams struct {
	Kind KDFKind

	AESSeed   []byte
	AESRounds uint64

	Argon2Salt        []byte
	Argon2Iterations  uint64
	Argon2MemoryBytes uint64
	Argon2Parallelism uint32
	Argon2Version     uint32
}

func kdfParamsFromVariantDict(raw []byte) (KDFParams, error) {
	d, err := variantdict.Parse(raw)
	if err != nil {
		return KDFParams{}, err
	}
	uuidBytes, err := d.Bytes("$UUID")
	if err != nil {
		return KDFParams{}, kerrors.New(kerrors.KindInvalidKDFUUID)
	}

	switch {
	case matches16(uuidBytes, magic.KDFUUIDAesKDBX4), matches16(uuidBytes, magic.KDFUUIDAesKDBX3):
		seed, err := d.Bytes("S")
		if err != nil {
			return KDFParams{}, err
		}
		rounds, err := d.UInt64("R")
		if err != nil {
			return KDFParams{}, err
		}
		return KDFParams{Kind: KDFKindAES, AESSeed: seed, AESRounds: rounds}, nil

	case matches16(uuidBytes, magic.KDFUUIDArgon2):
		salt, err := d.Bytes("S")
		if err != nil {
			return KDFParams{}, err
		}
		iterations, err := d.UInt64("I")
		if err != nil {
			return KDFParams{}, err
		}
		memory, err := d.UInt64("M")
		if err != nil {
			return KDFParams{}, err
		}
		parallelism, err := d.UInt32("P")
		if err != nil {
			return KDFParams{}, err
		}
		version, err := d.UInt32("V")
		if err != nil {
			return KDFParams{}, err
		}
		return KDFParams{
			Kind:              KDFKindArgon2,
			Argon2Salt:        salt,
			Argon2Iterations:  iterations,
			Argon2MemoryBytes: memory,
			Argon2Parallelism: parallelism,
			Argon2Version:     version,
		}, nil

	default:
		return KDFParams{}, kerrors.WithBytes(kerrors.KindInvalidKDFUUID, uuidBytes)
	}
}

// KDBFixedHeader is the legacy container's single 124-byte header,
// including the 8-byte signature already consumed by containerprobe.
type KDBFixedHeader struct {
	Flags           uint32
	Version         uint32
	MasterSeed      []byte
	EncryptionIV    []byte
	NumGroups       uint32
	NumEntries      uint32
	ContentsHash    []byte
	TransformSeed   []byte
	TransformRounds uint32
	Cipher          OuterCipher
}

// ParseKDBFixedHeader decodes the full 124-byte legacy header from buf[0:124].
func ParseKDBFixedHeader(buf []byte) (KDBFixedHeader, error) {
	if len(buf) < magic.KDBHeaderSize {
		return KDBFixedHeader{}, kerrors.New(kerrors.KindInvalidFixedHeader)
	}
	c := bin.NewCursor(buf)
	c.Seek(8) // skip the two signature words already probed

	flags, err := c.ReadU32()
	if err != nil {
		return KDBFixedHeader{}, kerrors.Wrap(kerrors.KindInvalidFixedHeader, err)
	}
	version, err := c.ReadU32()
	if err != nil {
		return KDBFixedHeader{}, kerrors.Wrap(kerrors.KindInvalidFixedHeader, err)
	}
	masterSeed, err := c.ReadN(16)
	if err != nil {
		return KDBFixedHeader{}, kerrors.Wrap(kerrors.KindInvalidFixedHeader, err)
	}
	iv, err := c.ReadN(16)
	if err != nil {
		return KDBFixedHeader{}, kerrors.Wrap(kerrors.KindInvalidFixedHeader, err)
	}
	numGroups, err := c.ReadU32()
	if err != nil {
		return KDBFixedHeader{}, kerrors.Wrap(kerrors.KindInvalidFixedHeader, err)
	}
	numEntries, err := c.ReadU32()
	if err != nil {
		return KDBFixedHeader{}, kerrors.Wrap(kerrors.KindInvalidFixedHeader, err)
	}
	contentsHash, err := c.ReadN(32)
	if err != nil {
		return KDBFixedHeader{}, kerrors.Wrap(kerrors.KindInvalidFixedHeader, err)
	}
	transformSeed, err := c.ReadN(32)
	if err != nil {
		return KDBFixedHeader{}, kerrors.Wrap(kerrors.KindInvalidFixedHeader, err)
	}
	transformRounds, err := c.ReadU32()
	if err != nil {
		return KDBFixedHeader{}, kerrors.Wrap(kerrors.KindInvalidFixedHeader, err)
	}

	var cipher OuterCipher
	switch {
	case flags&magic.KDBFlagAES != 0:
		cipher = OuterCipherAES256
	case flags&magic.KDBFlagTwofish != 0:
		cipher = OuterCipherTwofish
	default:
		return KDBFixedHeader{}, kerrors.WithIndex(kerrors.KindInvalidFixedCipherID, int64(flags))
	}

	return KDBFixedHeader{
		Flags:           flags,
		Version:         version,
		MasterSeed:      append([]byte(nil), masterSeed...),
		EncryptionIV:    append([]byte(nil), iv...),
		NumGroups:       numGroups,
		NumEntries:      numEntries,
		ContentsHash:    append([]byte(nil), contentsHash...),
		TransformSeed:   append([]byte(nil), transformSeed...),
		TransformRounds: transformRounds,
		Cipher:          cipher,
	}, nil
}

// OuterHeader is the decoded KDBX outer header, shared in shape between
// the KDBX3 and KDBX4 wire encodings.
type OuterHeader struct {
	Cipher              OuterCipher
	Compression         Compression
	MasterSeed          []byte
	EncryptionIV        []byte
	KDF                 KDFParams
	ProtectedStreamKey  []byte // KDBX3 only: seeds the inner stream cipher
	StreamStartBytes    []byte // KDBX3 only: first plaintext block to verify
	InnerRandomStreamID uint32 // KDBX3 only
}

// ParseOuterHeaderKDBX3 decodes a sequence of u8 id || u16 LE size || data
// records starting at buf[0], stopping at OuterFieldEnd. It returns the
// decoded header and the number of bytes consumed, including the
// terminator record.
func ParseOuterHeaderKDBX3(buf []byte) (OuterHeader, int, error) {
	c := bin.NewCursor(buf)
	var h OuterHeader
	var cipherID, transformSeed []byte
	var transformRounds uint64
	var haveCipher, haveCompression, haveMasterSeed, haveIV bool

	for {
		id, err := c.ReadByte()
		if err != nil {
			return OuterHeader{}, 0, kerrors.Wrap(kerrors.KindIncompleteOuterHeader, err)
		}
		size, err := c.ReadU16()
		if err != nil {
			return OuterHeader{}, 0, kerrors.Wrap(kerrors.KindIncompleteOuterHeader, err)
		}
		data, err := c.ReadN(int(size))
		if err != nil {
			return OuterHeader{}, 0, kerrors.Wrap(kerrors.KindIncompleteOuterHeader, err)
		}

		switch id {
		case magic.OuterFieldEnd:
			if !haveCipher || !haveCompression || !haveMasterSeed || !haveIV || transformSeed == nil {
				return OuterHeader{}, 0, kerrors.New(kerrors.KindIncompleteOuterHeader)
			}
			cipher, err := outerCipherFromUUID(cipherID)
			if err != nil {
				return OuterHeader{}, 0, err
			}
			h.Cipher = cipher
			h.KDF = KDFParams{Kind: KDFKindAES, AESSeed: transformSeed, AESRounds: transformRounds}
			return h, c.Pos(), nil

		case magic.OuterFieldCipherID:
			cipherID = append([]byte(nil), data...)
			haveCipher = true
		case magic.OuterFieldCompressionFlags:
			v, err := bin.U32(data, 0)
			if err != nil {
				return OuterHeader{}, 0, kerrors.Wrap(kerrors.KindInvalidOuterHeaderEntry, err)
			}
			comp, err := compressionFromFlags(v)
			if err != nil {
				return OuterHeader{}, 0, err
			}
			h.Compression = comp
			haveCompression = true
		case magic.OuterFieldMasterSeed:
			h.MasterSeed = append([]byte(nil), data...)
			haveMasterSeed = true
		case magic.OuterFieldTransformSeed:
			transformSeed = append([]byte(nil), data...)
		case magic.OuterFieldTransformRounds:
			v, err := bin.U64(data, 0)
			if err != nil {
				return OuterHeader{}, 0, kerrors.Wrap(kerrors.KindInvalidOuterHeaderEntry, err)
			}
			transformRounds = v
		case magic.OuterFieldEncryptionIV:
			h.EncryptionIV = append([]byte(nil), data...)
			haveIV = true
		case magic.OuterFieldProtectedStreamKey:
			h.ProtectedStreamKey = append([]byte(nil), data...)
		case magic.OuterFieldStreamStartBytes:
			h.StreamStartBytes = append([]byte(nil), data...)
		case magic.OuterFieldInnerRandomStreamID:
			v, err := bin.U32(data, 0)
			if err != nil {
				return OuterHeader{}, 0, kerrors.Wrap(kerrors.KindInvalidOuterHeaderEntry, err)
			}
			h.InnerRandomStreamID = v
		default:
			return OuterHeader{}, 0, kerrors.WithIndex(kerrors.KindInvalidOuterHeaderEntry, int64(id))
		}
	}
}

// ParseOuterHeaderKDBX4 decodes a sequence of u8 id || u32 LE size || data
// records, stopping at OuterFieldEnd. It returns the decoded header and
// the number of bytes consumed.
func ParseOuterHeaderKDBX4(buf []byte) (OuterHeader, int, error) {
	c := bin.NewCursor(buf)
	var h OuterHeader
	var cipherID []byte
	var kdfParams *KDFParams
	var haveCipher, haveCompression, haveMasterSeed, haveIV bool

	for {
		id, err := c.ReadByte()
		if err != nil {
			return OuterHeader{}, 0, kerrors.Wrap(kerrors.KindIncompleteOuterHeader, err)
		}
		size, err := c.ReadU32()
		if err != nil {
			return OuterHeader{}, 0, kerrors.Wrap(kerrors.KindIncompleteOuterHeader, err)
		}
		data, err := c.ReadN(int(size))
		if err != nil {
			return OuterHeader{}, 0, kerrors.Wrap(kerrors.KindIncompleteOuterHeader, err)
		}

		switch id {
		case magic.OuterFieldEnd:
			if !haveCipher || !haveCompression || !haveMasterSeed || !haveIV || kdfParams == nil {
				return OuterHeader{}, 0, kerrors.New(kerrors.KindIncompleteOuterHeader)
			}
			cipher, err := outerCipherFromUUID(cipherID)
			if err != nil {
				return OuterHeader{}, 0, err
			}
			h.Cipher = cipher
			h.KDF = *kdfParams
			return h, c.Pos(), nil

		case magic.OuterFieldCipherID:
			cipherID = append([]byte(nil), data...)
			haveCipher = true
		case magic.OuterFieldCompressionFlags:
			v, err := bin.U32(data, 0)
			if err != nil {
				return OuterHeader{}, 0, kerrors.Wrap(kerrors.KindInvalidOuterHeaderEntry, err)
			}
			comp, err := compressionFromFlags(v)
			if err != nil {
				return OuterHeader{}, 0, err
			}
			h.Compression = comp
			haveCompression = true
		case magic.OuterFieldMasterSeed:
			h.MasterSeed = append([]byte(nil), data...)
			haveMasterSeed = true
		case magic.OuterFieldEncryptionIV:
			h.EncryptionIV = append([]byte(nil), data...)
			haveIV = true
		case magic.OuterFieldKDFParameters:
			params, err := kdfParamsFromVariantDict(data)
			if err != nil {
				return OuterHeader{}, 0, err
			}
			kdfParams = &params
		default:
			return OuterHeader{}, 0, kerrors.WithIndex(kerrors.KindInvalidOuterHeaderEntry, int64(id))
		}
	}
}

// InnerHeader is the KDBX4 inner header, carried inside the decrypted,
// HMAC-verified payload rather than in the container's plaintext prefix.
type InnerHeader struct {
	RandomStreamID  uint32
	RandomStreamKey []byte
	Attachments     [][]byte
}

// ParseInnerHeaderKDBX4 decodes a sequence of u8 id || u32 LE size || data
// records, stopping at InnerFieldEnd. It returns the decoded header and
// the number of bytes consumed.
func ParseInnerHeaderKDBX4(buf []byte) (InnerHeader, int, error) {
	return ParseInnerHeaderKDBX4WithAttachmentLimit(buf, math.MaxInt64)
}

// ParseInnerHeaderKDBX4WithAttachmentLimit is ParseInnerHeaderKDBX4 with a
// caller-chosen cap on any single binary attachment's size, guarding the
// decode against a truncated field whose declared size field claims an
// enormous allocation.
func ParseInnerHeaderKDBX4WithAttachmentLimit(buf []byte, maxAttachmentBytes int64) (InnerHeader, int, error) {
	c := bin.NewCursor(buf)
	var h InnerHeader

	for {
		id, err := c.ReadByte()
		if err != nil {
			return InnerHeader{}, 0, kerrors.Wrap(kerrors.KindIncompleteInnerHeader, err)
		}
		size, err := c.ReadU32()
		if err != nil {
			return InnerHeader{}, 0, kerrors.Wrap(kerrors.KindIncompleteInnerHeader, err)
		}
		if id == magic.InnerFieldBinaryAttachment && int64(size) > maxAttachmentBytes {
			return InnerHeader{}, 0, kerrors.WithIndex(kerrors.KindInvalidInnerHeaderEntry, int64(size))
		}
		data, err := c.ReadN(int(size))
		if err != nil {
			return InnerHeader{}, 0, kerrors.Wrap(kerrors.KindIncompleteInnerHeader, err)
		}

		switch id {
		case magic.InnerFieldEnd:
			return h, c.Pos(), nil
		case magic.InnerFieldRandomStreamID:
			v, err := bin.U32(data, 0)
			if err != nil {
				return InnerHeader{}, 0, kerrors.Wrap(kerrors.KindInvalidInnerHeaderEntry, err)
			}
			h.RandomStreamID = v
		case magic.InnerFieldRandomStreamKey:
			h.RandomStreamKey = append([]byte(nil), data...)
		case magic.InnerFieldBinaryAttachment:
			// First byte is a memory-protection flag the reader does not
			// need; the attachment payload is the remainder.
			if len(data) < 1 {
				return InnerHeader{}, 0, kerrors.New(kerrors.KindInvalidInnerHeaderEntry)
			}
			h.Attachments = append(h.Attachments, append([]byte(nil), data[1:]...))
		default:
			return InnerHeader{}, 0, kerrors.WithIndex(kerrors.KindInvalidInnerHeaderEntry, int64(id))
		}
	}
}
