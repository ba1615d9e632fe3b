// Package layout compiles field layouts into codec fields.
//
// A layout is a list of field descriptions written either in a small text
// language (see Parse) or as XML with DFDL-style property names (see
// ParseXML). Both produce the same Spec values, and Spec.Compile turns a
// Spec into a *codec.Field, rejecting configurations whose markers collide.
package layout

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"unicode/utf8"

	"github.com/FocuswithJustin/delimcodec/core/codec"
	"github.com/FocuswithJustin/delimcodec/core/delim"
	"github.com/FocuswithJustin/delimcodec/core/encoding"
	"github.com/FocuswithJustin/delimcodec/core/errors"
	"github.com/FocuswithJustin/delimcodec/core/escape"
	"github.com/FocuswithJustin/delimcodec/core/kind"
	"github.com/FocuswithJustin/delimcodec/core/pad"
	"github.com/FocuswithJustin/delimcodec/core/scan"
)

// Escape kinds as written in layouts.
const (
	EscapeNone      = ""
	EscapeCharacter = "escapeCharacter"
	EscapeBlock     = "escapeBlock"
)

// Spec is the textual description of one field. Values are kept as written
// and checked by Config.
type Spec struct {
	Name string
	Line int // source line, zero when unknown

	Delimiters []delim.Delimiter

	EscapeKind             string
	EscapeCharacter        string
	EscapeEscapeCharacter  string
	ExtraEscapedCharacters string
	BlockStart             string
	BlockEnd               string
	Generate               string

	Justification string
	PadCharacter  string
	MinLength     int
	MaxLength     int

	NilValue *string
	Type     string
	Charset  string
}

func (s Spec) where() string {
	if s.Line > 0 {
		return fmt.Sprintf("field %s (line %d)", s.Name, s.Line)
	}
	return "field " + s.Name
}

// Config converts the spec into a codec configuration.
func (s Spec) Config() (codec.Config, error) {
	cfg := codec.Config{Name: s.Name, MaxLength: s.MaxLength, NilLiteral: s.NilValue}

	set, err := delim.NewSet(s.Delimiters...)
	if err != nil {
		return cfg, errors.Wrap(err, s.where())
	}
	cfg.Delimiters = set

	if cfg.Escape, err = s.scheme(); err != nil {
		return cfg, errors.Wrap(err, s.where())
	}

	mode := pad.None
	if s.Justification != "" {
		if mode, err = pad.ParseJustification(s.Justification); err != nil {
			return cfg, errors.Wrap(err, s.where())
		}
	}
	padChar, err := singleRune("padCharacter", s.PadCharacter)
	if err != nil {
		return cfg, errors.Wrap(err, s.where())
	}
	cfg.Padding = pad.Policy{Mode: mode, PadChar: padChar, Target: s.MinLength}

	if s.Type != "" {
		if cfg.Type, err = kind.Lookup(s.Type); err != nil {
			return cfg, errors.Wrap(err, s.where())
		}
	}
	if s.Charset != "" {
		if cfg.Charset, err = encoding.Lookup(s.Charset); err != nil {
			return cfg, errors.Wrap(err, s.where())
		}
	}
	return cfg, nil
}

func (s Spec) scheme() (escape.Scheme, error) {
	ee, err := singleRune("escapeEscapeCharacter", s.EscapeEscapeCharacter)
	if err != nil {
		return nil, err
	}
	var extra []rune
	if s.ExtraEscapedCharacters != "" {
		extra = []rune(s.ExtraEscapedCharacters)
	}

	switch s.EscapeKind {
	case EscapeNone:
		if s.EscapeCharacter != "" || s.BlockStart != "" || s.BlockEnd != "" {
			return nil, errors.NewValidation("escapeKind", "escape markers given without an escape kind")
		}
		return nil, nil
	case EscapeCharacter:
		e, err := singleRune("escapeCharacter", s.EscapeCharacter)
		if err != nil {
			return nil, err
		}
		return escape.CharacterEscape{EscapeChar: e, EscapeEscapeChar: ee, Extra: extra}, nil
	case EscapeBlock:
		gen, err := escape.ParseGenerate(s.Generate)
		if err != nil {
			return nil, err
		}
		return escape.BlockEscape{
			BlockStart:       s.BlockStart,
			BlockEnd:         s.BlockEnd,
			EscapeEscapeChar: ee,
			Extra:            extra,
			Generate:         gen,
		}, nil
	}
	return nil, errors.NewValidation("escapeKind", fmt.Sprintf("unknown escape kind %q", s.EscapeKind))
}

// Compile builds the field, sharing scanners through cache.
func (s Spec) Compile(cache *scan.Cache) (*codec.Field, error) {
	cfg, err := s.Config()
	if err != nil {
		return nil, err
	}
	f, err := codec.Compile(cfg, cache)
	if err != nil {
		return nil, errors.Wrap(err, s.where())
	}
	return f, nil
}

func singleRune(attr, s string) (rune, error) {
	if s == "" {
		return 0, nil
	}
	r, size := utf8.DecodeRuneInString(s)
	if r == utf8.RuneError || size != len(s) {
		return 0, errors.NewValidation(attr, fmt.Sprintf("%q is not a single character", s))
	}
	return r, nil
}

// Fields is a compiled layout, indexed by field name.
type Fields struct {
	order  []*codec.Field
	byName map[string]*codec.Field
}

// CompileAll compiles every spec. Field names must be unique.
func CompileAll(specs []Spec, cache *scan.Cache) (*Fields, error) {
	fs := &Fields{byName: make(map[string]*codec.Field, len(specs))}
	for _, s := range specs {
		if _, dup := fs.byName[s.Name]; dup {
			return nil, errors.NewValidation(s.where(), "duplicate field name")
		}
		f, err := s.Compile(cache)
		if err != nil {
			return nil, err
		}
		fs.order = append(fs.order, f)
		fs.byName[s.Name] = f
	}
	return fs, nil
}

// Get returns the named field.
func (fs *Fields) Get(name string) (*codec.Field, error) {
	if f, ok := fs.byName[name]; ok {
		return f, nil
	}
	return nil, errors.NewNotFound("field", name)
}

// All returns the fields in declaration order.
func (fs *Fields) All() []*codec.Field {
	out := make([]*codec.Field, len(fs.order))
	copy(out, fs.order)
	return out
}

// Names returns the field names in declaration order.
func (fs *Fields) Names() []string {
	names := make([]string, len(fs.order))
	for i, f := range fs.order {
		names[i] = f.Name()
	}
	return names
}

// Load reads a layout file. Files ending in .xml are read as XML, anything
// else as the layout language.
func Load(path string) ([]Spec, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, errors.Wrapf(err, "reading layout %s", path)
	}
	var specs []Spec
	if strings.EqualFold(filepath.Ext(path), ".xml") {
		specs, err = ParseXML(data)
	} else {
		specs, err = Parse(string(data))
	}
	if err != nil {
		var pe *errors.ParseError
		if errors.As(err, &pe) && pe.Path == "" {
			pe.Path = path
		}
		return nil, err
	}
	return specs, nil
}

// LoadFields loads and compiles a layout file.
func LoadFields(path string, cache *scan.Cache) (*Fields, error) {
	specs, err := Load(path)
	if err != nil {
		return nil, err
	}
	return CompileAll(specs, cache)
}
