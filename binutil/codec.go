// Package binutil provides the little-endian integer codec, the
// append/cursor helpers used for the AT machine state blob and AT
// bytecode, and the hashing and Base58Check helpers.
package binutil

import "encoding/binary"

// AppendU16LE appends v as a 2-byte little-endian value to dst.
func AppendU16LE(dst []byte, v uint16) []byte {
	var buf [2]byte
	binary.LittleEndian.PutUint16(buf[:], v)
	return append(dst, buf[:]...)
}

// AppendU32LE appends v as a 4-byte little-endian value to dst.
func AppendU32LE(dst []byte, v uint32) []byte {
	var buf [4]byte
	binary.LittleEndian.PutUint32(buf[:], v)
	return append(dst, buf[:]...)
}

// AppendU64LE appends v as an 8-byte little-endian value to dst.
func AppendU64LE(dst []byte, v uint64) []byte {
	var buf [8]byte
	binary.LittleEndian.PutUint64(buf[:], v)
	return append(dst, buf[:]...)
}

// FromLE reads a little-endian uint64 from b starting at offset.
// It returns 0 if fewer than 8 bytes remain, mirroring the platform API's
// tolerant register decoding (spec C1 `u64 fromLE(bytes, offset)`).
func FromLE(b []byte, offset int) uint64 {
	if offset < 0 || offset+8 > len(b) {
		return 0
	}
	return binary.LittleEndian.Uint64(b[offset : offset+8])
}

// ToLE returns the 8-byte little-endian encoding of v.
func ToLE(v uint64) []byte {
	buf := make([]byte, 8)
	binary.LittleEndian.PutUint64(buf, v)
	return buf
}

// Cursor is a forward-only reader over a byte slice used to parse the AT
// state blob and AT bytecode. Every read is bounds-checked.
type Cursor struct {
	b   []byte
	pos int
}

// NewCursor creates a cursor reading from b starting at position 0.
func NewCursor(b []byte) *Cursor {
	return &Cursor{b: b}
}

// Pos returns the current read offset.
func (c *Cursor) Pos() int { return c.pos }

// Remaining returns the number of unread bytes.
func (c *Cursor) Remaining() int {
	if c.pos >= len(c.b) {
		return 0
	}
	return len(c.b) - c.pos
}

func (c *Cursor) readExact(n int) ([]byte, error) {
	if n < 0 || c.Remaining() < n {
		return nil, ErrTruncated
	}
	start := c.pos
	c.pos += n
	return c.b[start:c.pos], nil
}

// ReadU8 reads one byte.
func (c *Cursor) ReadU8() (byte, error) {
	b, err := c.readExact(1)
	if err != nil {
		return 0, err
	}
	return b[0], nil
}

// ReadU16LE reads a 2-byte little-endian integer.
func (c *Cursor) ReadU16LE() (uint16, error) {
	b, err := c.readExact(2)
	if err != nil {
		return 0, err
	}
	return binary.LittleEndian.Uint16(b), nil
}

// ReadU32LE reads a 4-byte little-endian integer.
func (c *Cursor) ReadU32LE() (uint32, error) {
	b, err := c.readExact(4)
	if err != nil {
		return 0, err
	}
	return binary.LittleEndian.Uint32(b), nil
}

// ReadU64LE reads an 8-byte little-endian integer.
func (c *Cursor) ReadU64LE() (uint64, error) {
	b, err := c.readExact(8)
	if err != nil {
		return 0, err
	}
	return binary.LittleEndian.Uint64(b), nil
}

// ReadBytes reads n raw bytes.
func (c *Cursor) ReadBytes(n int) ([]byte, error) {
	return c.readExact(n)
}

// ReadCompactSize reads a Bitcoin-style CompactSize varint.
func (c *Cursor) ReadCompactSize() (uint64, error) {
	v, used, err := DecodeCompactSize(c.b[c.pos:])
	if err != nil {
		return 0, err
	}
	c.pos += used
	return v, nil
}

// ErrTruncated is returned whenever a Cursor read runs past the end of the
// underlying buffer.
var ErrTruncated = errTruncated{}

type errTruncated struct{}

func (errTruncated) Error() string { return "binutil: truncated input" }
