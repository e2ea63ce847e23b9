package codec

import "fmt"

// BitReader reads MSB-first bit-packed values from a Cursor, pulling one byte
// at a time. Byte-aligned reads go straight to the Cursor and must follow a Flush.
type BitReader struct {
	c      *Cursor
	curr   byte
	bitPos int // 8 means the buffered byte is exhausted
}

// NewBitReader creates a bit reader sharing c's position
func NewBitReader(c *Cursor) *BitReader {
	return &BitReader{c: c, bitPos: 8}
}

// GetBit returns the next bit
func (r *BitReader) GetBit() (uint32, error) {
	if r.bitPos == 8 {
		b, err := r.c.ReadUint8()
		if err != nil {
			return 0, err
		}
		r.curr = b
		r.bitPos = 0
	}

	bit := uint32(r.curr >> 7)
	r.curr <<= 1
	r.bitPos++
	return bit, nil
}

// GetBits folds count bits into an unsigned value, most significant bit first
func (r *BitReader) GetBits(count int) (uint32, error) {
	if count < 0 || count > 32 {
		return 0, fmt.Errorf("bit count %d out of range", count)
	}
	var v uint32
	for count > 0 {
		count--
		bit, err := r.GetBit()
		if err != nil {
			return 0, err
		}
		v |= bit << count
	}
	return v, nil
}

// GetBool reads a single bit flag
func (r *BitReader) GetBool() (bool, error) {
	v, err := r.GetBits(1)
	return v != 0, err
}

// Flush drops the rest of a partially read byte so the next read starts on a byte boundary
func (r *BitReader) Flush() {
	r.bitPos = 8
	r.curr = 0
}

// Aligned reports whether no partially consumed byte is buffered
func (r *BitReader) Aligned() bool {
	return r.bitPos == 8
}
