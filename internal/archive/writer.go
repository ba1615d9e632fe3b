package archive

import (
	"bufio"
	"compress/gzip"
	"fmt"
	"io"
	"os"
	"path/filepath"

	"github.com/ulikunitz/xz"
)

// Writer writes an output batch, compressing as needed. It buffers; Close
// must be called to flush.
type Writer struct {
	buf        *bufio.Writer
	compressor io.WriteCloser
	file       io.Closer
}

// Create creates the batch file at path, compressed according to its
// extension. If createParentDir is true, parent directories are created.
// The path "-" writes standard output uncompressed.
func Create(path string, createParentDir bool) (*Writer, error) {
	if path == "-" {
		return NewWriterTo(os.Stdout, None)
	}
	if createParentDir {
		if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
			return nil, fmt.Errorf("failed to create parent directory: %w", err)
		}
	}
	f, err := os.Create(path)
	if err != nil {
		return nil, fmt.Errorf("failed to create batch file: %w", err)
	}
	w, err := NewWriterTo(f, CompressionOf(path))
	if err != nil {
		f.Close()
		return nil, err
	}
	w.file = f
	return w, nil
}

// NewWriterTo writes a batch to dst with the given compression. Closing the
// Writer does not close dst.
func NewWriterTo(dst io.Writer, c Compression) (*Writer, error) {
	w := &Writer{}
	var out io.Writer = dst
	switch c {
	case XZ:
		xw, err := xz.NewWriter(dst)
		if err != nil {
			return nil, fmt.Errorf("xz writer: %w", err)
		}
		w.compressor = xw
		out = xw
	case Gzip:
		gw := gzip.NewWriter(dst)
		w.compressor = gw
		out = gw
	}
	w.buf = bufio.NewWriter(out)
	return w, nil
}

// Write implements io.Writer.
func (w *Writer) Write(p []byte) (int, error) {
	return w.buf.Write(p)
}

// WriteLine writes s followed by a newline.
func (w *Writer) WriteLine(s string) error {
	if _, err := w.buf.WriteString(s); err != nil {
		return err
	}
	return w.buf.WriteByte('\n')
}

// Close flushes buffered data, finishes compression and closes the file
// opened by Create.
func (w *Writer) Close() error {
	var errs []error
	if err := w.buf.Flush(); err != nil {
		errs = append(errs, err)
	}
	if w.compressor != nil {
		if err := w.compressor.Close(); err != nil {
			errs = append(errs, err)
		}
	}
	if w.file != nil {
		if err := w.file.Close(); err != nil {
			errs = append(errs, err)
		}
	}
	if len(errs) > 0 {
		return errs[0]
	}
	return nil
}
