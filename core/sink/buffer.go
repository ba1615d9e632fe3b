package sink

import (
	"github.com/FocuswithJustin/delimcodec/core/encoding"
)

// Buffer is an in-memory bit-packed sink with optional capacity limits.
type Buffer struct {
	cs        encoding.Charset
	bits      bitStream
	chars     int64
	charLimit int64
	bitLimit  int64
	scratch   [4]uint32
}

// Option configures a Buffer.
type Option func(*Buffer)

// WithCharLimit caps the buffer at n characters. Zero means unbounded.
func WithCharLimit(n int64) Option {
	return func(b *Buffer) { b.charLimit = n }
}

// WithBitLimit caps the buffer at n bits. Zero means unbounded.
func WithBitLimit(n int64) Option {
	return func(b *Buffer) { b.bitLimit = n }
}

// NewBuffer creates a Buffer encoding with cs. A nil charset means UTF-8.
func NewBuffer(cs encoding.Charset, opts ...Option) *Buffer {
	if cs == nil {
		cs = encoding.UTF8
	}
	b := &Buffer{cs: cs}
	for _, opt := range opts {
		opt(b)
	}
	return b
}

// PutString implements Sink. Characters are accepted whole: a character
// whose code units would cross a limit is not written.
func (b *Buffer) PutString(s string) (int, error) {
	width := uint64(b.cs.UnitBits())
	accepted := 0
	for i := 0; i < len(s); accepted++ {
		if b.charLimit > 0 && b.chars >= b.charLimit {
			return accepted, nil
		}
		units, size, err := encodeRune(b.cs, b.scratch[:], s, i, accepted)
		if err != nil {
			return accepted, err
		}
		need := int64(uint64(len(units)) * width)
		if b.bitLimit > 0 && int64(b.bits.writePos)+need > b.bitLimit {
			return accepted, nil
		}
		for _, u := range units {
			b.bits.write(uint64(u), width)
		}
		b.chars++
		i += size
	}
	return accepted, nil
}

// Position implements Sink.
func (b *Buffer) Position() Position {
	return Position{Chars: b.chars, Bits: int64(b.bits.writePos)}
}

// Charset implements Sink.
func (b *Buffer) Charset() encoding.Charset { return b.cs }

// Remaining reports the characters left before the char limit, or -1 when
// the buffer has no char limit.
func (b *Buffer) Remaining() int64 {
	if b.charLimit == 0 {
		return -1
	}
	return b.charLimit - b.chars
}

// Bytes returns the packed output. A trailing partial byte is zero padded.
func (b *Buffer) Bytes() []byte {
	return b.bits.bytes()
}

// String decodes the buffer contents back to text.
func (b *Buffer) String() string {
	s, err := b.Text()
	if err != nil {
		return ""
	}
	return s
}

// Text decodes the buffer contents back to text.
func (b *Buffer) Text() (string, error) {
	width := uint64(b.cs.UnitBits())
	r := bitStream{data: b.bits.data, writePos: b.bits.writePos}
	units := make([]uint32, 0, b.bits.writePos/width)
	for r.canRead(width) {
		units = append(units, uint32(r.read(width)))
	}
	return b.cs.DecodeUnits(units)
}

// Reset clears the contents and keeps the limits.
func (b *Buffer) Reset() {
	b.bits = bitStream{data: b.bits.data[:0]}
	b.chars = 0
}
