// Package variantdict decodes the typed key/value parameter bag a KDBX4
// outer header embeds to carry its KDF settings (spec.md §4.E): a 2-byte
// little-endian format version, then a sequence of
// `u8 type || u32 LE key-length || key || u32 LE value-length || value`
// records terminated by a zero type byte.
package variantdict

import (
	"encoding/binary"

	"keevault/internal/kerrors"
	"keevault/internal/magic"
)

type entry struct {
	typ   byte
	value []byte
}

// Dictionary is a parsed variant dictionary, keyed by field name.
type Dictionary struct {
	entries map[string]entry
}

// New returns an empty Dictionary ready for the Put* methods.
func New() *Dictionary {
	return &Dictionary{entries: make(map[string]entry)}
}

// Parse decodes buf into a Dictionary. Any buffer shorter than 9 bytes is
// rejected outright as malformed; this includes the 3-byte encoding of an
// empty dictionary (2-byte version plus the terminator byte).
func Parse(buf []byte) (*Dictionary, error) {
	if len(buf) < 9 {
		return nil, kerrors.New(kerrors.KindInvalidVariantDictionaryFormat)
	}
	version := binary.LittleEndian.Uint16(buf[0:2])
	if version != magic.VariantDictVersion {
		return nil, kerrors.WithIndex(kerrors.KindInvalidVariantDictionaryVersion, int64(version))
	}

	d := &Dictionary{entries: make(map[string]entry)}
	pos := 2
	for pos < len(buf)-9 {
		typ := buf[pos]
		pos++
		if typ == 0x00 {
			return d, nil
		}

		keyLen, err := readLen(buf, &pos)
		if err != nil {
			return nil, err
		}
		key, err := readBytes(buf, &pos, keyLen)
		if err != nil {
			return nil, err
		}

		valLen, err := readLen(buf, &pos)
		if err != nil {
			return nil, err
		}
		val, err := readBytes(buf, &pos, valLen)
		if err != nil {
			return nil, err
		}

		d.entries[string(key)] = entry{typ: typ, value: val}
	}

	// The remaining tail must be exactly the terminator.
	if pos >= len(buf) || buf[pos] != 0x00 {
		return nil, kerrors.New(kerrors.KindInvalidVariantDictionaryFormat)
	}
	return d, nil
}

func readLen(buf []byte, pos *int) (int, error) {
	if *pos+4 > len(buf) {
		return 0, kerrors.New(kerrors.KindInvalidVariantDictionaryFormat)
	}
	n := binary.LittleEndian.Uint32(buf[*pos:])
	*pos += 4
	return int(n), nil
}

func readBytes(buf []byte, pos *int, n int) ([]byte, error) {
	if n < 0 || *pos+n > len(buf) {
		return nil, kerrors.New(kerrors.KindInvalidVariantDictionaryFormat)
	}
	b := buf[*pos : *pos+n]
	*pos += n
	return b, nil
}

func (d *Dictionary) get(key string, want byte) ([]byte, error) {
	e, ok := d.entries[key]
	if !ok {
		return nil, kerrors.WithName(kerrors.KindMissingKDFParams, key)
	}
	if e.typ != want {
		return nil, kerrors.WithName(kerrors.KindInvalidVariantDictionaryValueType, key)
	}
	return e.value, nil
}

// UInt32 reads key as a 4-byte little-endian unsigned integer.
func (d *Dictionary) UInt32(key string) (uint32, error) {
	b, err := d.get(key, magic.VariantTypeUInt32)
	if err != nil || len(b) != 4 {
		if err == nil {
			err = kerrors.WithName(kerrors.KindInvalidVariantDictionaryValueType, key)
		}
		return 0, err
	}
	return binary.LittleEndian.Uint32(b), nil
}

// UInt64 reads key as an 8-byte little-endian unsigned integer.
func (d *Dictionary) UInt64(key string) (uint64, error) {
	b, err := d.get(key, magic.VariantTypeUInt64)
	if err != nil || len(b) != 8 {
		if err == nil {
			err = kerrors.WithName(kerrors.KindInvalidVariantDictionaryValueType, key)
		}
		return 0, err
	}
	return binary.LittleEndian.Uint64(b), nil
}

// Bool reads key as a single-byte boolean (nonzero is true).
func (d *Dictionary) Bool(key string) (bool, error) {
	b, err := d.get(key, magic.VariantTypeBool)
	if err != nil || len(b) != 1 {
		if err == nil {
			err = kerrors.WithName(kerrors.KindInvalidVariantDictionaryValueType, key)
		}
		return false, err
	}
	return b[0] != 0, nil
}

// Int32 reads key as a 4-byte little-endian signed integer.
func (d *Dictionary) Int32(key string) (int32, error) {
	b, err := d.get(key, magic.VariantTypeInt32)
	if err != nil || len(b) != 4 {
		if err == nil {
			err = kerrors.WithName(kerrors.KindInvalidVariantDictionaryValueType, key)
		}
		return 0, err
	}
	return int32(binary.LittleEndian.Uint32(b)), nil
}

// Int64 reads key as an 8-byte little-endian signed integer.
func (d *Dictionary) Int64(key string) (int64, error) {
	b, err := d.get(key, magic.VariantTypeInt64)
	if err != nil || len(b) != 8 {
		if err == nil {
			err = kerrors.WithName(kerrors.KindInvalidVariantDictionaryValueType, key)
		}
		return 0, err
	}
	return int64(binary.LittleEndian.Uint64(b)), nil
}

// String reads key as a UTF-8 string.
func (d *Dictionary) String(key string) (string, error) {
	b, err := d.get(key, magic.VariantTypeString)
	if err != nil {
		return "", err
	}
	return string(b), nil
}

// Bytes reads key as a raw byte array.
func (d *Dictionary) Bytes(key string) ([]byte, error) {
	b, err := d.get(key, magic.VariantTypeByteArray)
	if err != nil {
		return nil, err
	}
	return append([]byte(nil), b...), nil
}

// put stores value under key with the given wire type, overwriting any
// existing entry for key.
func (d *Dictionary) put(key string, typ byte, value []byte) {
	if d.entries == nil {
		d.entries = make(map[string]entry)
	}
	d.entries[key] = entry{typ: typ, value: value}
}

// PutUInt32 stores v under key as a 4-byte little-endian unsigned integer.
func (d *Dictionary) PutUInt32(key string, v uint32) {
	b := make([]byte, 4)
	binary.LittleEndian.PutUint32(b, v)
	d.put(key, magic.VariantTypeUInt32, b)
}

// PutUInt64 stores v under key as an 8-byte little-endian unsigned integer.
func (d *Dictionary) PutUInt64(key string, v uint64) {
	b := make([]byte, 8)
	binary.LittleEndian.PutUint64(b, v)
	d.put(key, magic.VariantTypeUInt64, b)
}

// PutBool stores v under key as a single byte (1 for true, 0 for false).
func (d *Dictionary) PutBool(key string, v bool) {
	b := byte(0)
	if v {
		b = 1
	}
	d.put(key, magic.VariantTypeBool, []byte{b})
}

// PutInt32 stores v under key as a 4-byte little-endian signed integer.
func (d *Dictionary) PutInt32(key string, v int32) {
	b := make([]byte, 4)
	binary.LittleEndian.PutUint32(b, uint32(v))
	d.put(key, magic.VariantTypeInt32, b)
}

// PutInt64 stores v under key as an 8-byte little-endian signed integer.
func (d *Dictionary) PutInt64(key string, v int64) {
	b := make([]byte, 8)
	binary.LittleEndian.PutUint64(b, uint64(v))
	d.put(key, magic.VariantTypeInt64, b)
}

// PutString stores v under key as a UTF-8 string.
func (d *Dictionary) PutString(key string, v string) {
	d.put(key, magic.VariantTypeString, []byte(v))
}

// PutBytes stores v under key as a raw byte array.
func (d *Dictionary) PutBytes(key string, v []byte) {
	d.put(key, magic.VariantTypeByteArray, append([]byte(nil), v...))
}

// Serialize re-encodes the dictionary to its wire form, covering both a
// dictionary freshly built through the Put* methods and one produced by
// Parse.
func (d *Dictionary) Serialize() []byte {
	out := make([]byte, 2)
	binary.LittleEndian.PutUint16(out, magic.VariantDictVersion)
	for key, e := range d.entries {
		var rec []byte
		rec = append(rec, e.typ)
		keyLen := make([]byte, 4)
		binary.LittleEndian.PutUint32(keyLen, uint32(len(key)))
		rec = append(rec, keyLen...)
		rec = append(rec, key...)
		valLen := make([]byte, 4)
		binary.LittleEndian.PutUint32(valLen, uint32(len(e.value)))
		rec = append(rec, valLen...)
		rec = append(rec, e.value...)
		out = append(out, rec...)
	}
	out = append(out, 0x00)
	return out
}
