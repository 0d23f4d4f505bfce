package iso8583

import (
	"encoding/binary"
	"fmt"
)

const bitmapSize = 8

// bitmap holds the primary and secondary presence bitmaps. Bit 1 of the
// primary bitmap flags the secondary one and is never a data element.
type bitmap [2]uint64

func (b *bitmap) set(field int) {
	if field > 64 {
		b[0] |= 1 << 63
		b[1] |= 1 << (128 - field)
		return
	}
	b[0] |= 1 << (64 - field)
}

func (b bitmap) isSet(field int) bool {
	if field > 64 {
		return b[1]&(1<<(128-field)) != 0
	}
	return b[0]&(1<<(64-field)) != 0
}

func (b bitmap) hasSecondary() bool { return b[0]&(1<<63) != 0 }

func (b bitmap) pack() []byte {
	n := bitmapSize
	if b.hasSecondary() {
		n *= 2
	}
	out := make([]byte, n)
	binary.BigEndian.PutUint64(out, b[0])
	if b.hasSecondary() {
		binary.BigEndian.PutUint64(out[bitmapSize:], b[1])
	}
	return out
}

func unpackBitmap(data []byte) (bitmap, int, error) {
	var b bitmap
	if len(data) < bitmapSize {
		return b, 0, fmt.Errorf("primary bitmap: %w", ErrTruncated)
	}
	b[0] = binary.BigEndian.Uint64(data)
	if !b.hasSecondary() {
		return b, bitmapSize, nil
	}
	if len(data) < 2*bitmapSize {
		return b, 0, fmt.Errorf("secondary bitmap: %w", ErrTruncated)
	}
	b[1] = binary.BigEndian.Uint64(data[bitmapSize:])
	return b, 2 * bitmapSize, nil
}
