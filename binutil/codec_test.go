package binutil

import (
	"bytes"
	"testing"
)

func TestLERoundTrip(t *testing.T) {
	want := uint64(0x0102030405060708)
	buf := ToLE(want)
	got := FromLE(buf, 0)
	if got != want {
		t.Fatalf("FromLE(ToLE(%x)) = %x", want, got)
	}
}

func TestFromLEShortBuffer(t *testing.T) {
	if got := FromLE([]byte{1, 2, 3}, 0); got != 0 {
		t.Fatalf("expected 0 for short buffer, got %d", got)
	}
}

func TestCursorReadSequence(t *testing.T) {
	var buf []byte
	buf = append(buf, 0xAB)
	buf = AppendU16LE(buf, 0x1234)
	buf = AppendU32LE(buf, 0xCAFEBABE)
	buf = AppendU64LE(buf, 0x0011223344556677)
	buf = append(buf, []byte("hello")...)

	c := NewCursor(buf)
	b, err := c.ReadU8()
	if err != nil || b != 0xAB {
		t.Fatalf("ReadU8: %v %x", err, b)
	}
	u16, err := c.ReadU16LE()
	if err != nil || u16 != 0x1234 {
		t.Fatalf("ReadU16LE: %v %x", err, u16)
	}
	u32, err := c.ReadU32LE()
	if err != nil || u32 != 0xCAFEBABE {
		t.Fatalf("ReadU32LE: %v %x", err, u32)
	}
	u64, err := c.ReadU64LE()
	if err != nil || u64 != 0x0011223344556677 {
		t.Fatalf("ReadU64LE: %v %x", err, u64)
	}
	raw, err := c.ReadBytes(5)
	if err != nil || !bytes.Equal(raw, []byte("hello")) {
		t.Fatalf("ReadBytes: %v %q", err, raw)
	}
	if c.Remaining() != 0 {
		t.Fatalf("expected 0 remaining, got %d", c.Remaining())
	}
}

func TestCursorTruncated(t *testing.T) {
	c := NewCursor([]byte{1, 2})
	if _, err := c.ReadU32LE(); err != ErrTruncated {
		t.Fatalf("expected ErrTruncated, got %v", err)
	}
}
