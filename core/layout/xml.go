package layout

import (
	"bytes"
	"fmt"
	"io"
	"strconv"
	"strings"

	"github.com/antchfx/xmlquery"
	"github.com/antchfx/xpath"

	"github.com/FocuswithJustin/delimcodec/core/delim"
	"github.com/FocuswithJustin/delimcodec/core/encoding"
	"github.com/FocuswithJustin/delimcodec/core/errors"
)

var (
	rootExpr  = xpath.MustCompile("/layout")
	fieldExpr = xpath.MustCompile("/layout/field")
)

// XML attribute names, after the DFDL properties they mirror.
const (
	attrName          = "name"
	attrInitiator     = "initiator"
	attrSeparator     = "separator"
	attrTerminator    = "terminator"
	attrEscapeKind    = "escapeKind"
	attrEscapeChar    = "escapeCharacter"
	attrEscapeEscape  = "escapeEscapeCharacter"
	attrExtra         = "extraEscapedCharacters"
	attrBlockStart    = "escapeBlockStart"
	attrBlockEnd      = "escapeBlockEnd"
	attrGenerate      = "generateEscapeBlock"
	attrJustification = "textStringJustification"
	attrPadChar       = "textStringPadCharacter"
	attrMinLength     = "textOutputMinLength"
	attrMaxLength     = "maxLength"
	attrNil           = "nilValue"
	attrType          = "type"
	attrEncoding      = "encoding"
)

var delimAttrs = []struct {
	name string
	role delim.Role
}{
	{attrInitiator, delim.Initiator},
	{attrSeparator, delim.Separator},
	{attrTerminator, delim.Terminator},
}

// ParseXML reads a layout document:
//
//	<layout>
//	  <field name="amount" terminator=";" separator=","
//	         escapeKind="escapeCharacter" escapeCharacter="\"
//	         textStringJustification="right" textStringPadCharacter="0"
//	         textOutputMinLength="5" type="xs:int"/>
//	</layout>
//
// Delimiter attributes hold whitespace-separated lists. Values may use the
// DFDL character entities %SP; %HT; %LF; %CR; %NL; %NUL; %#xHH; and %% for
// a literal percent sign.
func ParseXML(data []byte) ([]Spec, error) {
	doc, err := xmlquery.Parse(bytes.NewReader(data))
	if err != nil {
		pe := errors.NewParse("XML layout", "", err.Error())
		pe.Err = err
		return nil, pe
	}
	if xmlquery.QuerySelector(doc, rootExpr) == nil {
		return nil, errors.NewParse("XML layout", "", "root element must be <layout>")
	}

	nodes := xmlquery.QuerySelectorAll(doc, fieldExpr)
	specs := make([]Spec, 0, len(nodes))
	for i, n := range nodes {
		s, err := specFromNode(n)
		if err != nil {
			pe := errors.NewParse("XML layout", "", fmt.Sprintf("field #%d: %v", i+1, err))
			pe.Err = err
			return nil, pe
		}
		specs = append(specs, s)
	}
	return specs, nil
}

func specFromNode(n *xmlquery.Node) (Spec, error) {
	var s Spec
	attrs := make(map[string]string, len(n.Attr))
	for _, a := range n.Attr {
		attrs[a.Name.Local] = a.Value
	}

	var err error
	for name, raw := range attrs {
		v := decodeEntities(raw)
		switch name {
		case attrName:
			s.Name = raw
		case attrInitiator, attrSeparator, attrTerminator:
		case attrEscapeKind:
			s.EscapeKind = raw
		case attrEscapeChar:
			s.EscapeCharacter = v
		case attrEscapeEscape:
			s.EscapeEscapeCharacter = v
		case attrExtra:
			for _, p := range strings.Fields(raw) {
				s.ExtraEscapedCharacters += decodeEntities(p)
			}
		case attrBlockStart:
			s.BlockStart = v
		case attrBlockEnd:
			s.BlockEnd = v
		case attrGenerate:
			s.Generate = raw
		case attrJustification:
			s.Justification = raw
		case attrPadChar:
			s.PadCharacter = v
		case attrMinLength:
			s.MinLength, err = atoi(name, raw)
		case attrMaxLength:
			s.MaxLength, err = atoi(name, raw)
		case attrNil:
			s.NilValue = &v
		case attrType:
			s.Type = raw
		case attrEncoding:
			s.Charset = raw
		default:
			return s, errors.NewValidation(name, "unknown attribute")
		}
		if err != nil {
			return s, err
		}
	}
	if s.Name == "" {
		return s, errors.NewValidation(attrName, "field name is required")
	}

	// Fixed role order keeps declaration order stable across parsers.
	for _, da := range delimAttrs {
		for _, p := range strings.Fields(attrs[da.name]) {
			s.Delimiters = append(s.Delimiters, delim.Delimiter{Pattern: decodeEntities(p), Role: da.role})
		}
	}
	return s, nil
}

func atoi(attr, s string) (int, error) {
	n, err := strconv.Atoi(strings.TrimSpace(s))
	if err != nil {
		return 0, errors.NewValidation(attr, fmt.Sprintf("%q is not an integer", s))
	}
	return n, nil
}

var entities = map[string]string{
	"NUL": "\x00",
	"HT":  "\t",
	"LF":  "\n",
	"CR":  "\r",
	"NL":  "\n",
	"SP":  " ",
	"VT":  "\v",
	"FF":  "\f",
}

// decodeEntities expands DFDL character entities. Unrecognised sequences
// are kept literally.
func decodeEntities(s string) string {
	if !strings.Contains(s, "%") {
		return s
	}
	var sb strings.Builder
	for i := 0; i < len(s); {
		if s[i] != '%' {
			sb.WriteByte(s[i])
			i++
			continue
		}
		if strings.HasPrefix(s[i:], "%%") {
			sb.WriteByte('%')
			i += 2
			continue
		}
		end := strings.IndexByte(s[i+1:], ';')
		if end > 0 {
			name := s[i+1 : i+1+end]
			if v, ok := entities[name]; ok {
				sb.WriteString(v)
				i += end + 2
				continue
			}
			if hex, ok := strings.CutPrefix(name, "#x"); ok {
				if code, err := strconv.ParseUint(hex, 16, 32); err == nil {
					sb.WriteRune(rune(code))
					i += end + 2
					continue
				}
			}
		}
		sb.WriteByte('%')
		i++
	}
	return sb.String()
}

// encodeEntities is the inverse of decodeEntities for characters that cannot
// appear literally in a whitespace-separated attribute list.
func encodeEntities(s string) string {
	var sb strings.Builder
	for _, r := range s {
		switch r {
		case '%':
			sb.WriteString("%%")
		case ' ':
			sb.WriteString("%SP;")
		case '\t':
			sb.WriteString("%HT;")
		case '\n':
			sb.WriteString("%LF;")
		case '\r':
			sb.WriteString("%CR;")
		case 0:
			sb.WriteString("%NUL;")
		default:
			if r < 0x20 || r == 0x7f {
				fmt.Fprintf(&sb, "%%#x%X;", r)
			} else {
				sb.WriteRune(r)
			}
		}
	}
	return sb.String()
}

// WriteXML writes specs as an XML layout that ParseXML reads back.
func WriteXML(w io.Writer, specs []Spec) error {
	var sb strings.Builder
	sb.WriteString("<?xml version=\"1.0\" encoding=\"UTF-8\"?>\n<layout>\n")
	for _, s := range specs {
		sb.WriteString("  <field")
		attr := func(name, value string) {
			fmt.Fprintf(&sb, " %s=\"%s\"", name, encoding.EscapeXMLAttr(value))
		}
		attr(attrName, s.Name)
		for _, da := range delimAttrs {
			var list []string
			for _, d := range s.Delimiters {
				if d.Role == da.role {
					list = append(list, encodeEntities(d.Pattern))
				}
			}
			if len(list) > 0 {
				attr(da.name, strings.Join(list, " "))
			}
		}
		if s.EscapeKind != EscapeNone {
			attr(attrEscapeKind, s.EscapeKind)
		}
		optional := []struct{ name, value string }{
			{attrEscapeChar, encodeEntities(s.EscapeCharacter)},
			{attrEscapeEscape, encodeEntities(s.EscapeEscapeCharacter)},
			{attrExtra, encodeEntities(s.ExtraEscapedCharacters)},
			{attrBlockStart, encodeEntities(s.BlockStart)},
			{attrBlockEnd, encodeEntities(s.BlockEnd)},
			{attrGenerate, s.Generate},
			{attrJustification, s.Justification},
			{attrPadChar, encodeEntities(s.PadCharacter)},
		}
		for _, o := range optional {
			if o.value != "" {
				attr(o.name, o.value)
			}
		}
		if s.MinLength != 0 {
			attr(attrMinLength, strconv.Itoa(s.MinLength))
		}
		if s.MaxLength != 0 {
			attr(attrMaxLength, strconv.Itoa(s.MaxLength))
		}
		if s.NilValue != nil {
			attr(attrNil, encodeEntities(*s.NilValue))
		}
		if s.Type != "" {
			attr(attrType, s.Type)
		}
		if s.Charset != "" {
			attr(attrEncoding, s.Charset)
		}
		sb.WriteString("/>\n")
	}
	sb.WriteString("</layout>\n")
	_, err := io.WriteString(w, sb.String())
	return err
}
