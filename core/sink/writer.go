package sink

import (
	"io"

	"github.com/FocuswithJustin/delimcodec/core/encoding"
	"github.com/FocuswithJustin/delimcodec/core/errors"
)

// Writer is an unbounded sink over an io.Writer. Whole bytes are written
// through on every PutString; a trailing partial byte (7-bit charsets) is
// held until Flush.
type Writer struct {
	w       io.Writer
	cs      encoding.Charset
	bits    bitStream
	flushed int64 // bits already handed to w
	chars   int64
	scratch [4]uint32
	ends    []uint64
}

// NewWriter creates a Writer encoding with cs. A nil charset means UTF-8.
func NewWriter(w io.Writer, cs encoding.Charset) *Writer {
	if cs == nil {
		cs = encoding.UTF8
	}
	return &Writer{w: w, cs: cs}
}

// PutString implements Sink. When the underlying writer fails, the count
// covers the characters whose bytes reached it.
func (w *Writer) PutString(s string) (int, error) {
	width := uint64(w.cs.UnitBits())
	w.ends = w.ends[:0]
	start := w.bits.writePos
	var encErr error
	for i, offset := 0, 0; i < len(s); offset++ {
		units, size, err := encodeRune(w.cs, w.scratch[:], s, i, offset)
		if err != nil {
			encErr = err
			break
		}
		for _, u := range units {
			w.bits.write(uint64(u), width)
		}
		w.ends = append(w.ends, w.bits.writePos)
		i += size
	}

	whole := int(w.bits.writePos / 8)
	n, err := w.w.Write(w.bits.data[:whole])
	w.bits.discard(n)
	w.flushed += int64(n) * 8

	if err != nil || n < whole {
		if err == nil {
			err = io.ErrShortWrite
		}
		// Count characters that landed in full.
		accepted := 0
		for _, end := range w.ends {
			if end > uint64(n)*8 {
				break
			}
			accepted++
		}
		w.chars += int64(accepted)
		// Drop the unwritten tail so it cannot reach the next field.
		keep := start
		if accepted > 0 {
			keep = w.ends[accepted-1]
		}
		written := uint64(n) * 8
		if keep > written {
			w.bits.truncate(keep - written)
		} else {
			w.bits.truncate(0)
		}
		return accepted, errors.Wrap(err, "sink write")
	}
	w.chars += int64(len(w.ends))
	return len(w.ends), encErr
}

// Flush writes any partial trailing byte, zero padded.
func (w *Writer) Flush() error {
	if w.bits.writePos == 0 {
		return nil
	}
	pad := (8 - w.bits.writePos%8) % 8
	w.bits.write(0, pad)
	n, err := w.w.Write(w.bits.bytes())
	w.bits.discard(n)
	w.flushed += int64(n) * 8
	return err
}

// Position implements Sink.
func (w *Writer) Position() Position {
	return Position{Chars: w.chars, Bits: w.flushed + int64(w.bits.writePos)}
}

// Charset implements Sink.
func (w *Writer) Charset() encoding.Charset { return w.cs }
