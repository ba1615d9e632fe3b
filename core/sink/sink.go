// Package sink provides the output side of the field codec: a contract for
// character and bit addressed destinations plus two implementations.
//
// Sinks count in characters. A sink that runs out of room accepts a prefix
// of the string and reports how many characters it took; the caller decides
// whether a short write is an error.
package sink

import (
	"fmt"
	"unicode/utf8"

	"github.com/FocuswithJustin/delimcodec/core/encoding"
	"github.com/FocuswithJustin/delimcodec/core/errors"
)

// Position locates the write head of a sink.
type Position struct {
	Chars int64 // characters accepted so far
	Bits  int64 // bits written so far
}

func (p Position) String() string {
	return fmt.Sprintf("char %d (bit %d)", p.Chars, p.Bits)
}

// Sink receives encoded field output.
type Sink interface {
	// PutString writes s and returns the number of characters accepted.
	// A short count with a nil error means the sink is full. A charset
	// failure returns an *errors.UnrepresentableError.
	PutString(s string) (int, error)

	// Position reports the current write position.
	Position() Position

	// Charset reports the charset the sink encodes with.
	Charset() encoding.Charset
}

// encodeRune returns the code units of r at offset, or an unrepresentable
// error tagged with the write stage.
func encodeRune(cs encoding.Charset, scratch []uint32, s string, i, offset int) ([]uint32, int, error) {
	r, size := utf8.DecodeRuneInString(s[i:])
	if r == utf8.RuneError && size == 1 {
		return nil, size, errors.NewUnrepresentable(cs.Name(), r, offset, errors.StageWrite)
	}
	units, ok := cs.AppendRune(scratch[:0], r)
	if !ok {
		return nil, size, errors.NewUnrepresentable(cs.Name(), r, offset, errors.StageWrite)
	}
	return units, size, nil
}
