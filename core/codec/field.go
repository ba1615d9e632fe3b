// Package codec serializes one delimited field at a time.
//
// A Field is compiled once from its configuration and reused for any number
// of calls, from any number of goroutines. Each call escapes the value, pads
// it and writes it to a sink, in that order, and reports failures with the
// error kinds defined in core/errors.
package codec

import (
	"fmt"
	"strings"
	"unicode/utf8"

	"github.com/FocuswithJustin/delimcodec/core/delim"
	"github.com/FocuswithJustin/delimcodec/core/encoding"
	"github.com/FocuswithJustin/delimcodec/core/errors"
	"github.com/FocuswithJustin/delimcodec/core/escape"
	"github.com/FocuswithJustin/delimcodec/core/kind"
	"github.com/FocuswithJustin/delimcodec/core/pad"
	"github.com/FocuswithJustin/delimcodec/core/scan"
	"github.com/FocuswithJustin/delimcodec/core/sink"
	"github.com/FocuswithJustin/delimcodec/internal/logging"
)

// Config describes a field.
type Config struct {
	Name       string
	Delimiters *delim.Set       // nil means no delimiters
	Escape     escape.Scheme    // nil means no escaping
	Padding    pad.Policy       // zero value means no padding
	NilLiteral *string          // nil means the field is not nillable
	Charset    encoding.Charset // nil means UTF-8
	Type       *kind.Type       // nil means string
	MaxLength  int              // parse-side clip, zero for none
}

// Field is a compiled field. It is immutable and safe for concurrent use.
type Field struct {
	name       string
	delims     *delim.Set
	escaper    *escape.Escaper
	policy     pad.Policy
	nilLiteral string
	nillable   bool
	cs         encoding.Charset
	typ        *kind.Type
	maxLength  int
}

// Compile validates cfg and builds a Field. Scanners are shared through
// cache, or scan.Default when cache is nil.
func Compile(cfg Config, cache *scan.Cache) (*Field, error) {
	if cfg.Name == "" {
		return nil, errors.NewValidation("name", "field name is required")
	}
	f := &Field{
		name:      cfg.Name,
		delims:    cfg.Delimiters,
		policy:    cfg.Padding,
		cs:        cfg.Charset,
		typ:       cfg.Type,
		maxLength: cfg.MaxLength,
	}
	if f.delims == nil {
		f.delims = delim.Empty
	}
	if f.cs == nil {
		f.cs = encoding.UTF8
	}
	if f.typ == nil {
		f.typ = kind.String
	}
	if f.typ.Abstract() {
		return nil, errors.WithField(errors.NewValidation("type", fmt.Sprintf("%s is abstract", f.typ)), f.name)
	}
	if cfg.MaxLength < 0 {
		return nil, errors.NewValidation(f.name, "negative maxLength")
	}
	if err := f.policy.Validate(); err != nil {
		return nil, errors.Wrapf(err, "field %s", f.name)
	}

	if cfg.Escape != nil {
		e, err := escape.New(cfg.Escape, f.delims, cache)
		if err != nil {
			return nil, errors.WithField(err, f.name)
		}
		f.escaper = e
	}
	if cfg.NilLiteral != nil {
		f.nillable = true
		f.nilLiteral = *cfg.NilLiteral
	}

	if err := f.checkCollisions(); err != nil {
		return nil, errors.WithField(err, f.name)
	}
	return f, nil
}

// MustCompile is like Compile but panics on error.
func MustCompile(cfg Config, cache *scan.Cache) *Field {
	f, err := Compile(cfg, cache)
	if err != nil {
		panic(err)
	}
	return f
}

// markers lists every in-scope marker with a label for error messages.
func (f *Field) markers() [][2]string {
	var out [][2]string
	for _, d := range f.delims.All() {
		out = append(out, [2]string{d.Pattern, d.Role.String()})
	}
	if f.escaper == nil {
		return out
	}
	switch s := f.escaper.Scheme().(type) {
	case escape.CharacterEscape:
		out = append(out, [2]string{string(s.EscapeChar), "escape character"})
		if s.EscapeEscapeChar != 0 {
			out = append(out, [2]string{string(s.EscapeEscapeChar), "escape-escape character"})
		}
	case escape.BlockEscape:
		out = append(out, [2]string{s.BlockStart, "block start"}, [2]string{s.BlockEnd, "block end"})
		if s.EscapeEscapeChar != 0 {
			out = append(out, [2]string{string(s.EscapeEscapeChar), "escape-escape character"})
		}
	}
	return out
}

// checkCollisions verifies that padding and the nil literal can never be
// mistaken for a marker.
func (f *Field) checkCollisions() error {
	if f.policy.Mode != pad.None && f.policy.Target > 0 {
		p := string(f.policy.PadChar)
		for _, m := range f.markers() {
			if strings.HasPrefix(m[0], p) {
				return errors.NewCollision(p, m[0], "pad character begins the "+m[1])
			}
		}
	}
	if f.nillable && f.delims.Occurs(f.nilLiteral) {
		for _, d := range f.delims.All() {
			if strings.Contains(f.nilLiteral, d.Pattern) {
				return errors.NewCollision(f.nilLiteral, d.Pattern, "nil literal contains a "+d.Role.String())
			}
		}
	}
	return nil
}

// Name returns the field name.
func (f *Field) Name() string { return f.name }

// Charset returns the field charset.
func (f *Field) Charset() encoding.Charset { return f.cs }

// Type returns the field value type.
func (f *Field) Type() *kind.Type { return f.typ }

// Delimiters returns the in-scope delimiters.
func (f *Field) Delimiters() *delim.Set { return f.delims }

// Escaper returns the field escaper, or nil when the field has no scheme.
func (f *Field) Escaper() *escape.Escaper { return f.escaper }

// Padding returns the padding policy.
func (f *Field) Padding() pad.Policy { return f.policy }

// NilLiteral returns the nil literal and whether the field is nillable.
func (f *Field) NilLiteral() (string, bool) { return f.nilLiteral, f.nillable }

// NewBuffer returns an unbounded buffer in the field charset.
func (f *Field) NewBuffer(opts ...sink.Option) *sink.Buffer {
	return sink.NewBuffer(f.cs, opts...)
}

func (f *Field) String() string {
	var sb strings.Builder
	fmt.Fprintf(&sb, "%s: %s delimiters=%s", f.name, f.typ, f.delims)
	if f.escaper != nil {
		fmt.Fprintf(&sb, " escape=%v", f.escaper.Scheme())
	}
	if f.policy.Mode != pad.None {
		fmt.Fprintf(&sb, " justify=%s pad=%q min=%d", f.policy.Mode, f.policy.PadChar, f.policy.Target)
	}
	if f.nillable {
		fmt.Fprintf(&sb, " nil=%q", f.nilLiteral)
	}
	fmt.Fprintf(&sb, " charset=%s", f.cs.Name())
	return sb.String()
}

// Unparse escapes value, pads it and writes it to s.
func (f *Field) Unparse(ctx *Context, value string, s sink.Sink) error {
	if ctx == nil {
		ctx = NewContext(nil)
	}
	if err := encoding.CheckUTF8(value, errors.StageEscape); err != nil {
		var ue *errors.UnrepresentableError
		if errors.As(err, &ue) {
			ue.Charset = s.Charset().Name()
		}
		return f.fail(ctx, err, s)
	}
	escaped := value
	if f.escaper != nil {
		var err error
		escaped, err = f.escaper.Escape(value)
		if err != nil {
			return f.fail(ctx, err, s)
		}
	}
	if err := f.checkRepresentable(ctx, escaped, s); err != nil {
		return f.fail(ctx, err, s)
	}
	return f.write(ctx, f.policy.Apply(escaped), s)
}

// UnparseNil writes the nil literal in place of a value. The literal is not
// escaped but is padded like any value.
func (f *Field) UnparseNil(ctx *Context, s sink.Sink) error {
	if ctx == nil {
		ctx = NewContext(nil)
	}
	if !f.nillable {
		return f.fail(ctx, errors.NewValidation(f.name, "field is not nillable"), s)
	}
	if err := f.checkRepresentable(ctx, f.nilLiteral, s); err != nil {
		return f.fail(ctx, err, s)
	}
	return f.write(ctx, f.policy.Apply(f.nilLiteral), s)
}

// UnparseValue converts v to its canonical text for the field type and
// unparses it. A nil v on a nillable field writes the nil literal.
func (f *Field) UnparseValue(ctx *Context, v any, s sink.Sink) error {
	if ctx == nil {
		ctx = NewContext(nil)
	}
	if v == nil && f.nillable {
		return f.UnparseNil(ctx, s)
	}
	text, err := kind.Canonical(f.typ, v)
	if err != nil {
		return f.fail(ctx, err, s)
	}
	return f.Unparse(ctx, text, s)
}

// checkRepresentable reports the first character the sink charset cannot
// encode, as detected after escaping.
func (f *Field) checkRepresentable(ctx *Context, text string, s sink.Sink) error {
	var err error
	ctx.units, err = encoding.AppendEncode(ctx.units[:0], s.Charset(), text)
	if err != nil {
		var ue *errors.UnrepresentableError
		if errors.As(err, &ue) {
			ue.Stage = errors.StageEscape
		}
		return err
	}
	return nil
}

func (f *Field) write(ctx *Context, text string, s sink.Sink) error {
	want := utf8.RuneCountInString(text)
	n, err := s.PutString(text)
	if err != nil {
		var ue *errors.UnrepresentableError
		if errors.As(err, &ue) {
			ue.Stage = errors.StageWrite
			return f.fail(ctx, err, s)
		}
	}
	if err != nil || n < want {
		short := errors.NewInsufficientSpace(want, n, s.Position().Bits)
		short.Err = err
		return f.fail(ctx, short, s)
	}
	logging.FieldUnparsed(ctx.logger, f.name, n, s.Position().Bits)
	return nil
}

func (f *Field) fail(ctx *Context, err error, s sink.Sink) error {
	err = errors.WithField(err, f.name)
	pos := s.Position()
	logging.FieldFailed(ctx.logger, f.name, errors.KindOf(err).String(), err, "position_bits", pos.Bits)
	ctx.record(f.name, err, pos)
	return err
}

// Parse reverses Unparse on the raw text of one field: it clips to
// MaxLength, removes padding, recognises the nil literal, unescapes and
// canonicalises the result for the field type.
func (f *Field) Parse(raw string) (value string, isNil bool, err error) {
	text := f.policy.Truncate(raw, f.maxLength)
	text = f.policy.Trim(text)
	if f.nillable && text == f.nilLiteral {
		return "", true, nil
	}
	if f.escaper != nil {
		text, err = f.escaper.Unescape(text)
		if err != nil {
			return "", false, errors.WithField(err, f.name)
		}
	} else if f.delims.Occurs(text) {
		return "", false, errors.WithField(&errors.MalformedValueError{
			Type: f.typ.Name(), Value: text, Offset: -1, Reason: "unescaped delimiter",
		}, f.name)
	}
	if f.typ != kind.String {
		text, err = kind.Parse(f.typ, text)
		if err != nil {
			return "", false, errors.WithField(err, f.name)
		}
	}
	return text, false, nil
}
