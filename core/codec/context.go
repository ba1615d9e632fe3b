package codec

import (
	"log/slog"

	"github.com/FocuswithJustin/delimcodec/core/errors"
	"github.com/FocuswithJustin/delimcodec/core/sink"
	"github.com/FocuswithJustin/delimcodec/internal/logging"
)

// Diagnostic records one field failure.
type Diagnostic struct {
	Field    string
	Kind     errors.Kind
	Err      error
	Position sink.Position
}

// Context is the per-call state of a serialization. It belongs to one call
// chain at a time and must not be shared between goroutines.
type Context struct {
	logger      *slog.Logger
	diagnostics []Diagnostic
	units       []uint32
}

// NewContext creates a Context logging to logger, or to the process logger
// when logger is nil.
func NewContext(logger *slog.Logger) *Context {
	if logger == nil {
		logger = logging.GetLogger()
	}
	return &Context{logger: logger}
}

// Logger returns the context logger.
func (c *Context) Logger() *slog.Logger { return c.logger }

// Diagnostics returns the failures recorded so far.
func (c *Context) Diagnostics() []Diagnostic {
	out := make([]Diagnostic, len(c.diagnostics))
	copy(out, c.diagnostics)
	return out
}

// Err joins every recorded failure, or returns nil.
func (c *Context) Err() error {
	if len(c.diagnostics) == 0 {
		return nil
	}
	errs := make([]error, len(c.diagnostics))
	for i, d := range c.diagnostics {
		errs[i] = d.Err
	}
	return errors.Join(errs...)
}

// Reset clears recorded diagnostics and keeps scratch space for reuse.
func (c *Context) Reset() {
	c.diagnostics = c.diagnostics[:0]
	c.units = c.units[:0]
}

func (c *Context) record(field string, err error, pos sink.Position) {
	c.diagnostics = append(c.diagnostics, Diagnostic{
		Field:    field,
		Kind:     errors.KindOf(err),
		Err:      err,
		Position: pos,
	})
}
