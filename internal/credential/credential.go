// Package credential assembles the composite key a container's master
// key is derived from (spec.md §4.I): a passphrase hashed with SHA-256,
// a polymorphically-classified key-file, or both.
package credential

import (
	"encoding/base64"
	"encoding/hex"
	"encoding/xml"

	"keevault/internal/digest"
	"keevault/internal/kerrors"
)

// Credentials holds the zero or more raw (already-hashed, where
// applicable) credential components that feed composite-key assembly.
type Credentials struct {
	parts [][]byte
}

// New starts an empty credential set.
func New() *Credentials {
	return &Credentials{}
}

// WithPassphrase adds sha256(utf8(passphrase)) as a credential component.
func (c *Credentials) WithPassphrase(passphrase string) *Credentials {
	sum := digest.SHA256([]byte(passphrase))
	c.parts = append(c.parts, sum[:])
	return c
}

// WithKeyFile classifies raw and adds the resulting key bytes as a
// credential component.
func (c *Credentials) WithKeyFile(raw []byte) error {
	key, err := classifyKeyFile(raw)
	if err != nil {
		return err
	}
	c.parts = append(c.parts, key)
	return nil
}

// Parts returns the raw credential components in the order they were
// added, for callers that need the KDBX3/KDBX4 composite rule (always
// sha256 the concatenation, regardless of count) rather than the KDB
// single-component shortcut Composite applies.
func (c *Credentials) Parts() [][]byte { return c.parts }

// Composite assembles the final composite key: if exactly one component
// was supplied (the legacy KDB-only shape where a lone key-file is used
// unhashed), it is returned as-is; otherwise every component is
// concatenated, in the order added, and hashed with SHA-256.
func (c *Credentials) Composite() ([]byte, error) {
	switch len(c.parts) {
	case 0:
		return nil, kerrors.New(kerrors.KindCryptoInvalidLength)
	case 1:
		return c.parts[0], nil
	default:
		sum := digest.SHA256(c.parts...)
		return sum[:], nil
	}
}

type keyFileXML struct {
	Key struct {
		Data string `xml:"Data"`
	} `xml:"Key"`
}

// classifyKeyFile implements the key-file polymorphism spec.md §4.I
// describes. A key file is first checked for the XML shape with a
// /KeyFile/Key/Data text node; when that shape matches, its text is
// base64-decoded when possible, or used as literal bytes when it isn't
// valid base64, and those bytes are returned directly — the 32/64-byte
// and hash classification below never applies to the XML shape. Only
// when the file isn't that XML shape at all are its raw bytes run
// through that classification: exactly 32 bytes is used verbatim,
// exactly 64 bytes of valid ASCII hex decodes to those 32 bytes, and
// anything else is sha256-hashed.
func classifyKeyFile(raw []byte) ([]byte, error) {
	if data, ok := extractXMLKeyData(raw); ok {
		if decoded, err := base64.StdEncoding.DecodeString(data); err == nil {
			return decoded, nil
		}
		return []byte(data), nil
	}
	out, err := classifyRaw(raw)
	if err != nil {
		return nil, err
	}
	return out[:], nil
}

func extractXMLKeyData(raw []byte) (string, bool) {
	var doc keyFileXML
	if err := xml.Unmarshal(raw, &doc); err != nil || doc.Key.Data == "" {
		return "", false
	}
	return doc.Key.Data, true
}

func classifyRaw(raw []byte) ([32]byte, error) {
	switch len(raw) {
	case 32:
		var out [32]byte
		copy(out[:], raw)
		return out, nil
	case 64:
		if !isHex(raw) {
			return [32]byte{}, kerrors.ErrInvalidKeyFile
		}
		decoded, err := hex.DecodeString(string(raw))
		if err != nil {
			return [32]byte{}, kerrors.ErrInvalidKeyFile
		}
		var out [32]byte
		copy(out[:], decoded)
		return out, nil
	default:
		return digest.SHA256(raw), nil
	}
}

func isHex(b []byte) bool {
	for _, c := range b {
		switch {
		case c >= '0' && c <= '9':
		case c >= 'a' && c <= 'f':
		case c >= 'A' && c <= 'F':
		default:
			return false
		}
	}
	return true
}
