package layout

import (
	"fmt"
	"io"
	"strconv"
	"strings"

	"github.com/alecthomas/participle/v2"
	"github.com/alecthomas/participle/v2/lexer"

	"github.com/FocuswithJustin/delimcodec/core/delim"
	"github.com/FocuswithJustin/delimcodec/core/errors"
)

// dslFile is the parse tree of a layout.
type dslFile struct {
	Fields []*dslField `@@*`
}

type dslField struct {
	Pos   lexer.Position
	Name  string     `"field" ( @Ident | @String ) "{"`
	Props []*dslProp `@@* "}"`
}

type dslProp struct {
	Initiator  *string    `  "initiator" @String`
	Separator  *string    `| "separator" @String`
	Terminator *string    `| "terminator" @String`
	Escape     *dslEscape `| "escape" @@`
	Justify    *string    `| "justify" @Ident`
	Pad        *string    `| "pad" @String`
	MinLength  *int       `| "minLength" @Int`
	MaxLength  *int       `| "maxLength" @Int`
	Nil        *string    `| "nil" @String`
	Type       *string    `| "type" ( @Ident | @String )`
	Charset    *string    `| "charset" ( @String | @Ident )`
}

type dslEscape struct {
	Character *string      `( "character" @String`
	Block     *dslBlock    `| "block" @@ )`
	Options   []*dslEscOpt `@@*`
}

type dslBlock struct {
	Start string `@String`
	End   string `@String`
}

type dslEscOpt struct {
	EscapeEscape *string `  "escapeEscape" @String`
	Extra        *string `| "extra" @String`
	Generate     *string `| "generate" @Ident`
}

// dslLexer tokenizes layouts. Keywords are identifiers matched by value.
var dslLexer = lexer.MustSimple([]lexer.SimpleRule{
	{Name: "Comment", Pattern: `(#|//)[^\n]*`},
	{Name: "String", Pattern: `"(\\.|[^"\\])*"`},
	{Name: "Int", Pattern: `[0-9]+`},
	{Name: "Ident", Pattern: `[a-zA-Z_][a-zA-Z0-9_:.\-]*`},
	{Name: "Punct", Pattern: `[{}]`},
	{Name: "Whitespace", Pattern: `[ \t\r\n]+`},
})

var dslParser = participle.MustBuild[dslFile](
	participle.Lexer(dslLexer),
	participle.Unquote("String"),
	participle.Elide("Comment", "Whitespace"),
)

// Parse reads a layout written in the layout language:
//
//	field amount {
//	  terminator ";"
//	  separator ","
//	  escape character "\\" escapeEscape "%" extra "!"
//	  justify right pad "0" minLength 5
//	  nil "NIL"
//	  type int
//	  charset "ISO-8859-1"
//	}
//
// Delimiter properties may repeat; every occurrence adds a delimiter.
func Parse(src string) ([]Spec, error) {
	tree, err := dslParser.ParseString("", src)
	if err != nil {
		pe := errors.NewParse("layout", "", err.Error())
		pe.Err = err
		var perr participle.Error
		if errors.As(err, &perr) {
			pe.Message = fmt.Sprintf("line %d: %s", perr.Position().Line, perr.Message())
		}
		return nil, pe
	}

	specs := make([]Spec, 0, len(tree.Fields))
	for _, f := range tree.Fields {
		specs = append(specs, f.spec())
	}
	return specs, nil
}

func (f *dslField) spec() Spec {
	s := Spec{Name: f.Name, Line: f.Pos.Line}
	for _, p := range f.Props {
		switch {
		case p.Initiator != nil:
			s.Delimiters = append(s.Delimiters, delim.Delimiter{Pattern: *p.Initiator, Role: delim.Initiator})
		case p.Separator != nil:
			s.Delimiters = append(s.Delimiters, delim.Delimiter{Pattern: *p.Separator, Role: delim.Separator})
		case p.Terminator != nil:
			s.Delimiters = append(s.Delimiters, delim.Delimiter{Pattern: *p.Terminator, Role: delim.Terminator})
		case p.Escape != nil:
			p.Escape.apply(&s)
		case p.Justify != nil:
			s.Justification = *p.Justify
		case p.Pad != nil:
			s.PadCharacter = *p.Pad
		case p.MinLength != nil:
			s.MinLength = *p.MinLength
		case p.MaxLength != nil:
			s.MaxLength = *p.MaxLength
		case p.Nil != nil:
			v := *p.Nil
			s.NilValue = &v
		case p.Type != nil:
			s.Type = *p.Type
		case p.Charset != nil:
			s.Charset = *p.Charset
		}
	}
	return s
}

func (e *dslEscape) apply(s *Spec) {
	if e.Block != nil {
		s.EscapeKind = EscapeBlock
		s.BlockStart, s.BlockEnd = e.Block.Start, e.Block.End
	} else {
		s.EscapeKind = EscapeCharacter
		s.EscapeCharacter = *e.Character
	}
	for _, o := range e.Options {
		switch {
		case o.EscapeEscape != nil:
			s.EscapeEscapeCharacter = *o.EscapeEscape
		case o.Extra != nil:
			s.ExtraEscapedCharacters += *o.Extra
		case o.Generate != nil:
			s.Generate = *o.Generate
		}
	}
}

// Format writes specs in the layout language. Parse(Format(specs)) yields
// the same specs apart from Line.
func Format(w io.Writer, specs []Spec) error {
	var sb strings.Builder
	for i, s := range specs {
		if i > 0 {
			sb.WriteByte('\n')
		}
		fmt.Fprintf(&sb, "field %s {\n", strconv.Quote(s.Name))
		for _, d := range s.Delimiters {
			fmt.Fprintf(&sb, "  %s %s\n", d.Role, strconv.Quote(d.Pattern))
		}
		switch s.EscapeKind {
		case EscapeCharacter:
			fmt.Fprintf(&sb, "  escape character %s", strconv.Quote(s.EscapeCharacter))
		case EscapeBlock:
			fmt.Fprintf(&sb, "  escape block %s %s", strconv.Quote(s.BlockStart), strconv.Quote(s.BlockEnd))
			if s.Generate != "" {
				fmt.Fprintf(&sb, " generate %s", s.Generate)
			}
		}
		if s.EscapeKind != EscapeNone {
			if s.EscapeEscapeCharacter != "" {
				fmt.Fprintf(&sb, " escapeEscape %s", strconv.Quote(s.EscapeEscapeCharacter))
			}
			if s.ExtraEscapedCharacters != "" {
				fmt.Fprintf(&sb, " extra %s", strconv.Quote(s.ExtraEscapedCharacters))
			}
			sb.WriteByte('\n')
		}
		if s.Justification != "" {
			fmt.Fprintf(&sb, "  justify %s\n", s.Justification)
		}
		if s.PadCharacter != "" {
			fmt.Fprintf(&sb, "  pad %s\n", strconv.Quote(s.PadCharacter))
		}
		if s.MinLength != 0 {
			fmt.Fprintf(&sb, "  minLength %d\n", s.MinLength)
		}
		if s.MaxLength != 0 {
			fmt.Fprintf(&sb, "  maxLength %d\n", s.MaxLength)
		}
		if s.NilValue != nil {
			fmt.Fprintf(&sb, "  nil %s\n", strconv.Quote(*s.NilValue))
		}
		if s.Type != "" {
			fmt.Fprintf(&sb, "  type %s\n", strconv.Quote(s.Type))
		}
		if s.Charset != "" {
			fmt.Fprintf(&sb, "  charset %s\n", strconv.Quote(s.Charset))
		}
		sb.WriteString("}\n")
	}
	_, err := io.WriteString(w, sb.String())
	return err
}
