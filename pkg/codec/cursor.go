package codec

import (
	"bytes"
	"encoding/binary"
	"errors"
	"fmt"
	"math"
)

// ErrShortRead is returned when a read needs more bytes than remain
var ErrShortRead = errors.New("short read")

// Cursor reads little-endian primitives from a byte slice
type Cursor struct {
	buf []byte
	pos int
}

// NewCursor creates a cursor at the start of buf
func NewCursor(buf []byte) *Cursor {
	return &Cursor{buf: buf}
}

// Pos returns the current offset
func (c *Cursor) Pos() int {
	return c.pos
}

// Len returns the size of the underlying buffer
func (c *Cursor) Len() int {
	return len(c.buf)
}

// Remaining returns the number of unread bytes
func (c *Cursor) Remaining() int {
	return len(c.buf) - c.pos
}

// AtEnd reports whether every byte has been consumed
func (c *Cursor) AtEnd() bool {
	return c.pos >= len(c.buf)
}

// Seek moves the cursor to an absolute offset
func (c *Cursor) Seek(pos int) error {
	if pos < 0 || pos > len(c.buf) {
		return fmt.Errorf("seek to %d outside [0,%d]", pos, len(c.buf))
	}
	c.pos = pos
	return nil
}

func (c *Cursor) take(n int) ([]byte, error) {
	if n < 0 || c.Remaining() < n {
		return nil, fmt.Errorf("%w: need %d bytes at offset %d, have %d", ErrShortRead, n, c.pos, c.Remaining())
	}
	b := c.buf[c.pos : c.pos+n]
	c.pos += n
	return b, nil
}

// Skip advances n bytes
func (c *Cursor) Skip(n int) error {
	_, err := c.take(n)
	return err
}

// ReadBytes returns the next n bytes without copying
func (c *Cursor) ReadBytes(n int) ([]byte, error) {
	return c.take(n)
}

func (c *Cursor) ReadUint8() (uint8, error) {
	b, err := c.take(1)
	if err != nil {
		return 0, err
	}
	return b[0], nil
}

func (c *Cursor) ReadInt8() (int8, error) {
	v, err := c.ReadUint8()
	return int8(v), err
}

func (c *Cursor) ReadUint16() (uint16, error) {
	b, err := c.take(2)
	if err != nil {
		return 0, err
	}
	return binary.LittleEndian.Uint16(b), nil
}

func (c *Cursor) ReadInt16() (int16, error) {
	v, err := c.ReadUint16()
	return int16(v), err
}

func (c *Cursor) ReadUint32() (uint32, error) {
	b, err := c.take(4)
	if err != nil {
		return 0, err
	}
	return binary.LittleEndian.Uint32(b), nil
}

func (c *Cursor) ReadInt32() (int32, error) {
	v, err := c.ReadUint32()
	return int32(v), err
}

func (c *Cursor) ReadUint64() (uint64, error) {
	b, err := c.take(8)
	if err != nil {
		return 0, err
	}
	return binary.LittleEndian.Uint64(b), nil
}

func (c *Cursor) ReadInt64() (int64, error) {
	v, err := c.ReadUint64()
	return int64(v), err
}

// ReadFloat32 reads a 4-byte IEEE 754 float
func (c *Cursor) ReadFloat32() (float32, error) {
	v, err := c.ReadUint32()
	if err != nil {
		return 0, err
	}
	return math.Float32frombits(v), nil
}

// ReadCString reads a NUL-terminated string. The terminator is consumed and
// not part of the value; a missing terminator is a short read.
func (c *Cursor) ReadCString() (string, error) {
	rest := c.buf[c.pos:]
	n := bytes.IndexByte(rest, 0)
	if n < 0 {
		return "", fmt.Errorf("%w: unterminated string at offset %d", ErrShortRead, c.pos)
	}
	s := string(rest[:n])
	c.pos += n + 1
	return s, nil
}
