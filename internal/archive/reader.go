// Package archive reads and writes value batches: newline-separated text
// files, optionally gzip or xz compressed.
package archive

import (
	"bufio"
	"compress/gzip"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/ulikunitz/xz"
)

// Compression identifies how a batch file is compressed.
type Compression int

const (
	// None is plain text.
	None Compression = iota
	// Gzip is RFC 1952 gzip.
	Gzip
	// XZ is the xz container format.
	XZ
)

func (c Compression) String() string {
	switch c {
	case Gzip:
		return "gzip"
	case XZ:
		return "xz"
	}
	return "none"
}

// CompressionOf infers the compression from a file name.
func CompressionOf(path string) Compression {
	switch {
	case strings.HasSuffix(path, ".xz"):
		return XZ
	case strings.HasSuffix(path, ".gz"):
		return Gzip
	}
	return None
}

// Record is one value of a batch.
type Record struct {
	Line  int    // 1-based line number
	Value string // line content without its line ending
	Nil   bool   // the line matched the reader's nil marker
}

// Reader reads records from a batch, decompressing as needed.
type Reader struct {
	scanner      *bufio.Scanner
	file         io.Closer
	decompressor io.Closer
	line         int

	// NilMarker, when non-empty, marks lines that stand for a nil value.
	NilMarker string
}

// maxLine bounds a single value.
const maxLine = 16 << 20

// NewReader opens the batch at path. The path "-" reads standard input
// uncompressed.
func NewReader(path string) (*Reader, error) {
	if path == "-" {
		return NewReaderFrom(os.Stdin, None)
	}
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open batch: %w", err)
	}
	r, err := NewReaderFrom(f, CompressionOf(path))
	if err != nil {
		f.Close()
		return nil, err
	}
	r.file = f
	return r, nil
}

// NewReaderFrom reads a batch from src with the given compression.
func NewReaderFrom(src io.Reader, c Compression) (*Reader, error) {
	var reader io.Reader = src
	var decompressor io.Closer

	switch c {
	case XZ:
		xzr, err := xz.NewReader(src)
		if err != nil {
			return nil, fmt.Errorf("xz reader: %w", err)
		}
		reader = xzr
	case Gzip:
		gzr, err := gzip.NewReader(src)
		if err != nil {
			return nil, fmt.Errorf("gzip reader: %w", err)
		}
		reader = gzr
		decompressor = gzr
	}

	sc := bufio.NewScanner(reader)
	sc.Buffer(make([]byte, 0, 64*1024), maxLine)
	return &Reader{scanner: sc, decompressor: decompressor}, nil
}

// Next returns the next record, or io.EOF after the last one.
func (r *Reader) Next() (Record, error) {
	if !r.scanner.Scan() {
		if err := r.scanner.Err(); err != nil {
			return Record{}, fmt.Errorf("read line %d: %w", r.line+1, err)
		}
		return Record{}, io.EOF
	}
	r.line++
	text := strings.TrimSuffix(r.scanner.Text(), "\r")
	if r.NilMarker != "" && text == r.NilMarker {
		return Record{Line: r.line, Nil: true}, nil
	}
	return Record{Line: r.line, Value: text}, nil
}

// Close closes the reader and any underlying decompressor.
func (r *Reader) Close() error {
	var errs []error
	if r.decompressor != nil {
		if err := r.decompressor.Close(); err != nil {
			errs = append(errs, err)
		}
	}
	if r.file != nil {
		if err := r.file.Close(); err != nil {
			errs = append(errs, err)
		}
	}
	if len(errs) > 0 {
		return errs[0]
	}
	return nil
}

// Visitor is a callback for iterating records.
// Return true to stop iteration, false to continue.
type Visitor func(rec Record) (stop bool, err error)

// Iterate calls visitor for each remaining record.
func (r *Reader) Iterate(visitor Visitor) error {
	for {
		rec, err := r.Next()
		if err == io.EOF {
			return nil
		}
		if err != nil {
			return err
		}
		stop, err := visitor(rec)
		if err != nil {
			return err
		}
		if stop {
			return nil
		}
	}
}

// IterateBatch opens a batch and iterates its records.
func IterateBatch(path, nilMarker string, visitor Visitor) error {
	r, err := NewReader(path)
	if err != nil {
		return err
	}
	defer r.Close()
	r.NilMarker = nilMarker
	return r.Iterate(visitor)
}

// ReadAll reads every record of a batch.
func ReadAll(path, nilMarker string) ([]Record, error) {
	var out []Record
	err := IterateBatch(path, nilMarker, func(rec Record) (bool, error) {
		out = append(out, rec)
		return false, nil
	})
	return out, err
}
