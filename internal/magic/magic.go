// Package magic centralizes the bit-exact constants of the KeePass
// container formats: magic numbers, version identifiers, TLV field ids,
// and the well-known UUIDs that select outer ciphers and KDFs.
package magic

// FileSignature is the 4-byte prefix every KDB/KDBX container starts with.
var FileSignature = [4]byte{0x03, 0xD9, 0xA2, 0x9A}

// Container version identifiers (the second 4-byte word after the signature).
const (
	VersionKDB  uint32 = 0xB54BFB65
	VersionKDBX uint32 = 0xB54BFB67
)

// KDB fixed header layout.
const (
	KDBHeaderSize       = 124
	KDBFlagAES     uint32 = 0x02
	KDBFlagTwofish uint32 = 0x08
)

// KDBX outer header TLV field ids, shared by KDBX3 and KDBX4 unless noted.
const (
	OuterFieldEnd                 = 0x00
	OuterFieldComment             = 0x01
	OuterFieldCipherID            = 0x02
	OuterFieldCompressionFlags    = 0x03
	OuterFieldMasterSeed          = 0x04
	OuterFieldTransformSeed       = 0x05 // KDBX3 only
	OuterFieldTransformRounds     = 0x06 // KDBX3 only
	OuterFieldEncryptionIV        = 0x07
	OuterFieldProtectedStreamKey  = 0x08 // KDBX3 only
	OuterFieldStreamStartBytes    = 0x09 // KDBX3 only
	OuterFieldInnerRandomStreamID = 0x0A // KDBX3 only
	OuterFieldKDFParameters       = 0x0B // KDBX4 only
)

// KDBX4 inner header TLV field ids.
const (
	InnerFieldEnd              = 0x00
	InnerFieldRandomStreamID   = 0x01
	InnerFieldRandomStreamKey  = 0x02
	InnerFieldBinaryAttachment = 0x03
)

// KDB group/entry TLV field ids.
const (
	KDBGroupFieldIgnored    = 0x0000
	KDBGroupFieldID         = 0x0001
	KDBGroupFieldName       = 0x0002
	KDBGroupFieldCreation   = 0x0003
	KDBGroupFieldLastMod    = 0x0004
	KDBGroupFieldLastAccess = 0x0005
	KDBGroupFieldExpire     = 0x0006
	KDBGroupFieldIcon       = 0x0007
	KDBGroupFieldLevel      = 0x0008
	KDBGroupFieldFlags      = 0x0009
	KDBFieldTerminator      = 0xFFFF

	KDBEntryFieldIgnored    = 0x0000
	KDBEntryFieldUUID       = 0x0001
	KDBEntryFieldGroupID    = 0x0002
	KDBEntryFieldIcon       = 0x0003
	KDBEntryFieldTitle      = 0x0004
	KDBEntryFieldURL        = 0x0005
	KDBEntryFieldUserName   = 0x0006
	KDBEntryFieldPassword   = 0x0007
	KDBEntryFieldAdditional = 0x0008
	KDBEntryFieldCreation   = 0x0009
	KDBEntryFieldLastMod    = 0x000A
	KDBEntryFieldLastAccess = 0x000B
	KDBEntryFieldExpire     = 0x000C
	KDBEntryFieldBinaryDesc = 0x000D
	KDBEntryFieldBinaryData = 0x000E
)

// Variant dictionary (KDBX4 KDF parameter bag) wire format.
const (
	VariantDictVersion uint16 = 0x0100

	VariantTypeUInt32    byte = 0x04
	VariantTypeUInt64    byte = 0x05
	VariantTypeBool      byte = 0x08
	VariantTypeInt32     byte = 0x0C
	VariantTypeInt64     byte = 0x0D
	VariantTypeString    byte = 0x18
	VariantTypeByteArray byte = 0x42
)

// Outer-cipher UUIDs (16 bytes, as they appear on the wire).
var (
	CipherUUIDAES256   = mustUUID("31C1F2E6BF714350BE5805216AFC5AFF")
	CipherUUIDTwofish  = mustUUID("AD68F29F576F4BB9A36AD47AF965346C")
	CipherUUIDChaCha20 = mustUUID("D6038A2B8B6F4CB5A524339A31DBB59A")
)

// KDF UUIDs used by the KDBX4 "$UUID" variant-dictionary entry.
var (
	KDFUUIDAesKDBX3 = mustUUID("C9D9F39A628A4460BF740D08C18A4FEA")
	KDFUUIDAesKDBX4 = mustUUID("7C02BB8279A74AC0927D114A00648238")
	KDFUUIDArgon2   = mustUUID("EF636DDF8C29444B91F7A9A403E30A0C")
)

// Argon2 version bytes accepted in the "V" variant-dictionary entry.
const (
	Argon2Version10 uint32 = 0x10
	Argon2Version13 uint32 = 0x13
)

// Inner random-stream cipher identifiers, carried in KDBX3's
// INNERRANDOMSTREAMID outer header field and KDBX4's
// InnerFieldRandomStreamID inner header field.
const (
	InnerStreamPlain       uint32 = 0
	InnerStreamArcFourVariant uint32 = 1 // not supported; rejected as InvalidInnerCipherID
	InnerStreamSalsa20     uint32 = 2
	InnerStreamChaCha20    uint32 = 3
)

// SalsaFixedNonce is the fixed 8-byte Salsa20 inner-stream nonce.
var SalsaFixedNonce = [8]byte{0xE8, 0x30, 0x09, 0x4B, 0x97, 0x20, 0x5D, 0x2A}

// KeyFileDataXPath documents the XML key-file path this module recognizes;
// the key-file classifier unmarshals the document into a Key/Data struct
// rather than evaluating an XPath expression, and does not check the name
// of the root element.
const KeyFileDataXPath = "/KeyFile/Key/Data"

// GeneratorName is the producer string a (currently unimplemented) writer
// would stamp into newly created containers.
const GeneratorName = "keevault"

func mustUUID(hexDigits string) [16]byte {
	var out [16]byte
	for i := 0; i < 16; i++ {
		hi := fromHexNibble(hexDigits[i*2])
		lo := fromHexNibble(hexDigits[i*2+1])
		out[i] = hi<<4 | lo
	}
	return out
}

func fromHexNibble(c byte) byte {
	switch {
	case c >= '0' && c <= '9':
		return c - '0'
	case c >= 'A' && c <= 'F':
		return c - 'A' + 10
	case c >= 'a' && c <= 'f':
		return c - 'a' + 10
	default:
		panic("magic: invalid hex digit in embedded UUID constant")
	}
}
