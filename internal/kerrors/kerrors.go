// Package kerrors implements the error taxonomy a KeePass-family reader
// surfaces to its caller: a handful of base sentinels plus a structured
// DatabaseIntegrity family carrying the specific diagnostic kind and any
// offending field name, id, or index.
package kerrors

import (
	"errors"
	"fmt"
)

// Base sentinels. Wrap these with fmt.Errorf("...: %w", ErrX) at the call
// site when more context is available; callers compare with errors.Is.
var (
	// ErrIo covers failures reading from the caller-supplied source.
	ErrIo = errors.New("keevault: io error")

	// ErrIncorrectKey means the supplied credentials did not verify:
	// KDBX3 stream-start mismatch, KDBX4 header HMAC mismatch, or KDB
	// contents-hash mismatch.
	ErrIncorrectKey = errors.New("keevault: incorrect key")

	// ErrInvalidKeyFile means key-file classification failed: a 64-byte
	// key file that is not valid hex. An XML Data node that is not valid
	// base64 is used as literal bytes, and XML without a Data node is
	// classified as raw bytes; neither fails.
	ErrInvalidKeyFile = errors.New("keevault: invalid key file")
)

// Kind enumerates the DatabaseIntegrity diagnostics of spec.md §7.
type Kind int

const (
	KindInvalidKDBXIdentifier Kind = iota
	KindInvalidKDBXVersion
	KindInvalidFixedHeader
	KindInvalidOuterHeaderEntry
	KindIncompleteOuterHeader
	KindInvalidInnerHeaderEntry
	KindIncompleteInnerHeader
	KindInvalidKDFVersion
	KindInvalidKDFUUID
	KindMissingKDFParams
	KindMistypedKDFParam
	KindInvalidFixedCipherID
	KindInvalidOuterCipherID
	KindInvalidInnerCipherID
	KindInvalidCompressionSuite
	KindInvalidVariantDictionaryVersion
	KindInvalidVariantDictionaryFormat
	KindInvalidVariantDictionaryValueType
	KindInvalidKDBGroupFieldLength
	KindInvalidKDBEntryFieldLength
	KindInvalidKDBGroupFieldType
	KindInvalidKDBEntryFieldType
	KindInvalidKDBGroupLevel
	KindMissingKDBGroupLevel
	KindMissingKDBGroupID
	KindInvalidKDBGroupID
	KindIncompleteKDBGroup
	KindIncompleteKDBEntry
	KindMissingKDBEntryTitle
	KindHeaderHashMismatch
	KindBlockHashMismatch
	KindCompression
	KindShortRead
	KindCryptoInvalidLength
	KindCryptoBlockMode
	KindCryptoArgon2
	KindInvalidKeyLength
	KindUTF8
	KindXML
)

func (k Kind) String() string {
	switch k {
	case KindInvalidKDBXIdentifier:
		return "InvalidKDBXIdentifier"
	case KindInvalidKDBXVersion:
		return "InvalidKDBXVersion"
	case KindInvalidFixedHeader:
		return "InvalidFixedHeader"
	case KindInvalidOuterHeaderEntry:
		return "InvalidOuterHeaderEntry"
	case KindIncompleteOuterHeader:
		return "IncompleteOuterHeader"
	case KindInvalidInnerHeaderEntry:
		return "InvalidInnerHeaderEntry"
	case KindIncompleteInnerHeader:
		return "IncompleteInnerHeader"
	case KindInvalidKDFVersion:
		return "InvalidKDFVersion"
	case KindInvalidKDFUUID:
		return "InvalidKDFUUID"
	case KindMissingKDFParams:
		return "MissingKDFParams"
	case KindMistypedKDFParam:
		return "MistypedKDFParam"
	case KindInvalidFixedCipherID:
		return "InvalidFixedCipherID"
	case KindInvalidOuterCipherID:
		return "InvalidOuterCipherID"
	case KindInvalidInnerCipherID:
		return "InvalidInnerCipherID"
	case KindInvalidCompressionSuite:
		return "InvalidCompressionSuite"
	case KindInvalidVariantDictionaryVersion:
		return "InvalidVariantDictionaryVersion"
	case KindInvalidVariantDictionaryFormat:
		return "InvalidVariantDictionaryFormat"
	case KindInvalidVariantDictionaryValueType:
		return "InvalidVariantDictionaryValueType"
	case KindInvalidKDBGroupFieldLength:
		return "InvalidKDBGroupFieldLength"
	case KindInvalidKDBEntryFieldLength:
		return "InvalidKDBEntryFieldLength"
	case KindInvalidKDBGroupFieldType:
		return "InvalidKDBGroupFieldType"
	case KindInvalidKDBEntryFieldType:
		return "InvalidKDBEntryFieldType"
	case KindInvalidKDBGroupLevel:
		return "InvalidKDBGroupLevel"
	case KindMissingKDBGroupLevel:
		return "MissingKDBGroupLevel"
	case KindMissingKDBGroupID:
		return "MissingKDBGroupID"
	case KindInvalidKDBGroupID:
		return "InvalidKDBGroupID"
	case KindIncompleteKDBGroup:
		return "IncompleteKDBGroup"
	case KindIncompleteKDBEntry:
		return "IncompleteKDBEntry"
	case KindMissingKDBEntryTitle:
		return "MissingKDBEntryTitle"
	case KindHeaderHashMismatch:
		return "HeaderHashMismatch"
	case KindBlockHashMismatch:
		return "BlockHashMismatch"
	case KindCompression:
		return "Compression"
	case KindShortRead:
		return "ShortRead"
	case KindCryptoInvalidLength:
		return "CryptoInvalidLength"
	case KindCryptoBlockMode:
		return "CryptoBlockMode"
	case KindCryptoArgon2:
		return "CryptoArgon2"
	case KindInvalidKeyLength:
		return "InvalidKeyLength"
	case KindUTF8:
		return "UTF8"
	case KindXML:
		return "XML"
	default:
		return "Unknown"
	}
}

// DatabaseIntegrityError is the structured member of the DatabaseIntegrity
// family: a Kind plus whatever field context applies (name, numeric id,
// byte payload, block index). Only the fields relevant to Kind are set.
type DatabaseIntegrityError struct {
	Kind  Kind
	Name  string
	Int   int64
	Bytes []byte
	Err   error // wrapped lower-level cause, if any (UTF-8, base64, XML, crypto)
}

func (e *DatabaseIntegrityError) Error() string {
	msg := "keevault: database integrity: " + e.Kind.String()
	if e.Name != "" {
		msg += " (" + e.Name + ")"
	}
	if e.Bytes != nil {
		msg += fmt.Sprintf(" (bytes=%x)", e.Bytes)
	}
	if e.Kind == KindBlockHashMismatch || e.Kind == KindInvalidKDBGroupLevel {
		msg += fmt.Sprintf(" (index=%d)", e.Int)
	}
	if e.Err != nil {
		msg += ": " + e.Err.Error()
	}
	return msg
}

func (e *DatabaseIntegrityError) Unwrap() error { return e.Err }

// New builds a DatabaseIntegrityError for a given Kind with no extra
// context.
func New(kind Kind) error { return &DatabaseIntegrityError{Kind: kind} }

// WithName builds one carrying a field/parameter name.
func WithName(kind Kind, name string) error {
	return &DatabaseIntegrityError{Kind: kind, Name: name}
}

// WithIndex builds one carrying a numeric index (block index, group level).
func WithIndex(kind Kind, index int64) error {
	return &DatabaseIntegrityError{Kind: kind, Int: index}
}

// WithBytes builds one carrying an offending byte payload (an unknown id,
// an unrecognized UUID).
func WithBytes(kind Kind, b []byte) error {
	return &DatabaseIntegrityError{Kind: kind, Bytes: append([]byte(nil), b...)}
}

// Wrap builds one around a lower-level cause (utf8.Error, base64
// CorruptInputError, xml.SyntaxError, a crypto error).
func Wrap(kind Kind, cause error) error {
	return &DatabaseIntegrityError{Kind: kind, Err: cause}
}
