// Package bin provides little-endian integer decoding over a bounded byte
// slice and a small stateful Cursor used by the header codecs, the KDB
// payload decoder, and the HMAC-block stream so bounds checks live in one
// place. The variant dictionary parser does its own bounds checks.
package bin

import (
	"encoding/binary"

	"keevault/internal/kerrors"
)

// U16 reads a little-endian uint16 at offset off, failing with
// kerrors.KindShortRead if out of bounds.
func U16(b []byte, off int) (uint16, error) {
	if off < 0 || off+2 > len(b) {
		return 0, shortRead(off, 2, len(b))
	}
	return binary.LittleEndian.Uint16(b[off:]), nil
}

// U32 reads a little-endian uint32 at offset off.
func U32(b []byte, off int) (uint32, error) {
	if off < 0 || off+4 > len(b) {
		return 0, shortRead(off, 4, len(b))
	}
	return binary.LittleEndian.Uint32(b[off:]), nil
}

// U64 reads a little-endian uint64 at offset off.
func U64(b []byte, off int) (uint64, error) {
	if off < 0 || off+8 > len(b) {
		return 0, shortRead(off, 8, len(b))
	}
	return binary.LittleEndian.Uint64(b[off:]), nil
}

// I32 reads a little-endian int32 at offset off.
func I32(b []byte, off int) (int32, error) {
	v, err := U32(b, off)
	return int32(v), err
}

// I64 reads a little-endian int64 at offset off.
func I64(b []byte, off int) (int64, error) {
	v, err := U64(b, off)
	return int64(v), err
}

// Slice returns b[off:off+n], failing with kerrors.KindShortRead if out of
// bounds.
func Slice(b []byte, off, n int) ([]byte, error) {
	if off < 0 || n < 0 || off+n > len(b) {
		return nil, shortRead(off, n, len(b))
	}
	return b[off : off+n], nil
}

func shortRead(off, n, total int) error {
	return kerrors.WithName(kerrors.KindShortRead,
		"offset "+itoa(off)+" len "+itoa(n)+" buffer "+itoa(total))
}

func itoa(n int) string {
	if n == 0 {
		return "0"
	}
	neg := n < 0
	if neg {
		n = -n
	}
	var buf [20]byte
	i := len(buf)
	for n > 0 {
		i--
		buf[i] = byte('0' + n%10)
		n /= 10
	}
	if neg {
		i--
		buf[i] = '-'
	}
	return string(buf[i:])
}

// Cursor is a stateful bounds-checked reader over an in-memory buffer,
// used by TLV walkers that consume a sequence of records of varying
// shape.
type Cursor struct {
	buf []byte
	pos int
}

// NewCursor wraps buf starting at offset 0.
func NewCursor(buf []byte) *Cursor { return &Cursor{buf: buf} }

// Pos returns the current read offset.
func (c *Cursor) Pos() int { return c.pos }

// Remaining returns the number of unread bytes.
func (c *Cursor) Remaining() int { return len(c.buf) - c.pos }

// Seek moves the cursor to an absolute offset.
func (c *Cursor) Seek(pos int) { c.pos = pos }

// ReadByte reads and advances past a single byte.
func (c *Cursor) ReadByte() (byte, error) {
	b, err := Slice(c.buf, c.pos, 1)
	if err != nil {
		return 0, err
	}
	c.pos++
	return b[0], nil
}

// ReadU16 reads and advances past a little-endian uint16.
func (c *Cursor) ReadU16() (uint16, error) {
	v, err := U16(c.buf, c.pos)
	if err != nil {
		return 0, err
	}
	c.pos += 2
	return v, nil
}

// ReadU32 reads and advances past a little-endian uint32.
func (c *Cursor) ReadU32() (uint32, error) {
	v, err := U32(c.buf, c.pos)
	if err != nil {
		return 0, err
	}
	c.pos += 4
	return v, nil
}

// ReadU64 reads and advances past a little-endian uint64.
func (c *Cursor) ReadU64() (uint64, error) {
	v, err := U64(c.buf, c.pos)
	if err != nil {
		return 0, err
	}
	c.pos += 8
	return v, nil
}

// ReadN reads and advances past n raw bytes.
func (c *Cursor) ReadN(n int) ([]byte, error) {
	b, err := Slice(c.buf, c.pos, n)
	if err != nil {
		return nil, err
	}
	c.pos += n
	return b, nil
}

// Rest returns every unread byte without advancing the cursor.
func (c *Cursor) Rest() []byte {
	return c.buf[c.pos:]
}
