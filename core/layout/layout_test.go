package layout

import (
	"bytes"
	"os"
	"path/filepath"
	"reflect"
	"strings"
	"testing"

	"github.com/FocuswithJustin/delimcodec/core/cache"
	"github.com/FocuswithJustin/delimcodec/core/delim"
	"github.com/FocuswithJustin/delimcodec/core/errors"
	"github.com/FocuswithJustin/delimcodec/core/escape"
	"github.com/FocuswithJustin/delimcodec/core/kind"
	"github.com/FocuswithJustin/delimcodec/core/pad"
	"github.com/FocuswithJustin/delimcodec/core/scan"
)

const amountLayout = `
# record layout
field amount {
  terminator ";"
  separator ","
  escape character "\\" escapeEscape "%" extra "!"
  justify right pad "0" minLength 5
  nil "NIL"
  type int
  charset "ISO-8859-1"
}

field note {
  separator ","
  separator "||"
  escape block "[" "]" escapeEscape "\\" generate always
  maxLength 40 // clip on read
}
`

func TestParse(t *testing.T) {
	specs, err := Parse(amountLayout)
	if err != nil {
		t.Fatalf("Parse() error = %v", err)
	}
	if len(specs) != 2 {
		t.Fatalf("got %d specs, want 2", len(specs))
	}

	nilLit := "NIL"
	want := Spec{
		Name: "amount",
		Line: 3,
		Delimiters: []delim.Delimiter{
			{Pattern: ";", Role: delim.Terminator},
			{Pattern: ",", Role: delim.Separator},
		},
		EscapeKind:             EscapeCharacter,
		EscapeCharacter:        `\`,
		EscapeEscapeCharacter:  "%",
		ExtraEscapedCharacters: "!",
		Justification:          "right",
		PadCharacter:           "0",
		MinLength:              5,
		NilValue:               &nilLit,
		Type:                   "int",
		Charset:                "ISO-8859-1",
	}
	if !reflect.DeepEqual(specs[0], want) {
		t.Errorf("spec[0] =\n%+v\nwant\n%+v", specs[0], want)
	}

	note := specs[1]
	if note.EscapeKind != EscapeBlock || note.BlockStart != "[" || note.BlockEnd != "]" ||
		note.EscapeEscapeCharacter != `\` || note.Generate != "always" || note.MaxLength != 40 {
		t.Errorf("spec[1] = %+v", note)
	}
	if len(note.Delimiters) != 2 || note.Delimiters[1].Pattern != "||" {
		t.Errorf("spec[1] delimiters = %v", note.Delimiters)
	}
}

func TestParseErrors(t *testing.T) {
	tests := []struct {
		name string
		src  string
		want string
	}{
		{"missing brace", `field a { terminator ";"`, "line 1"},
		{"unknown property", "field a {\n  colour \"red\"\n}", "line 2"},
		{"integer expected", `field a { minLength "five" }`, "line 1"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Parse(tt.src)
			var pe *errors.ParseError
			if !errors.As(err, &pe) {
				t.Fatalf("Parse() error = %v, want ParseError", err)
			}
			if !strings.Contains(pe.Message, tt.want) {
				t.Errorf("message %q does not mention %q", pe.Message, tt.want)
			}
			if !errors.Is(err, errors.ErrInvalidInput) {
				t.Error("ParseError should classify as invalid input")
			}
		})
	}
}

func TestCompile(t *testing.T) {
	specs, err := Parse(amountLayout)
	if err != nil {
		t.Fatal(err)
	}
	fields, err := CompileAll(specs, scan.NewCache(cache.Config{MaxSize: 16}))
	if err != nil {
		t.Fatalf("CompileAll() error = %v", err)
	}
	if got := fields.Names(); !reflect.DeepEqual(got, []string{"amount", "note"}) {
		t.Errorf("Names() = %v", got)
	}

	amount, err := fields.Get("amount")
	if err != nil {
		t.Fatal(err)
	}
	if amount.Type() != kind.Int || amount.Charset().Name() != "ISO-8859-1" {
		t.Errorf("amount = %v", amount)
	}
	if p := amount.Padding(); p != (pad.Policy{Mode: pad.Right, PadChar: '0', Target: 5}) {
		t.Errorf("Padding() = %+v", p)
	}
	if s, ok := amount.Escaper().Scheme().(escape.CharacterEscape); !ok || s.EscapeChar != '\\' || s.EscapeEscapeChar != '%' {
		t.Errorf("Scheme() = %v", amount.Escaper().Scheme())
	}

	buf := amount.NewBuffer()
	if err := amount.UnparseValue(nil, 42, buf); err != nil {
		t.Fatal(err)
	}
	if buf.String() != "00042" {
		t.Errorf("amount wrote %q", buf.String())
	}

	note, _ := fields.Get("note")
	buf = note.NewBuffer()
	if err := note.Unparse(nil, "a]b", buf); err != nil {
		t.Fatal(err)
	}
	if buf.String() != `[a\]b]` {
		t.Errorf("note wrote %q", buf.String())
	}

	if _, err := fields.Get("missing"); !errors.Is(err, errors.ErrNotFound) {
		t.Errorf("Get(missing) error = %v", err)
	}
}

func TestCompileRejects(t *testing.T) {
	tests := []struct {
		name     string
		src      string
		wantKind errors.Kind
	}{
		{"pad collides with separator", `field a { separator "0" justify left pad "0" minLength 3 }`, errors.KindAmbiguousCollision},
		{"escape equals delimiter without escape-escape", `field a { separator "\\" escape character "\\" }`, errors.KindAmbiguousCollision},
		{"nil contains terminator", `field a { terminator ";" nil "a;b" }`, errors.KindAmbiguousCollision},
		{"multi-character pad", `field a { justify left pad "ab" minLength 3 }`, errors.KindInvalidInput},
		{"unknown justification", `field a { justify sideways pad " " minLength 3 }`, errors.KindInvalidInput},
		{"unknown type", `field a { type "xs:money" }`, errors.KindNotFound},
		{"unknown generate", `field a { escape block "{" "}" generate sometimes }`, errors.KindInvalidInput},
		{"duplicate name", "field a { }\nfield a { }", errors.KindInvalidInput},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			specs, err := Parse(tt.src)
			if err != nil {
				t.Fatalf("Parse() error = %v", err)
			}
			_, err = CompileAll(specs, nil)
			if err == nil {
				t.Fatal("CompileAll() succeeded")
			}
			if tt.wantKind == errors.KindNotFound {
				if !errors.Is(err, errors.ErrNotFound) {
					t.Errorf("error = %v, want not found", err)
				}
				return
			}
			if got := errors.KindOf(err); got != tt.wantKind {
				t.Errorf("KindOf(%v) = %v, want %v", err, got, tt.wantKind)
			}
		})
	}
}

const amountXML = `<?xml version="1.0"?>
<layout>
  <field name="amount" separator="," terminator="; %NL;"
         escapeKind="escapeCharacter" escapeCharacter="\" escapeEscapeCharacter="%%"
         extraEscapedCharacters="! ?"
         textStringJustification="right" textStringPadCharacter="%SP;"
         textOutputMinLength="5" nilValue="NIL" type="xs:int" encoding="US-ASCII"/>
  <field name="note" escapeKind="escapeBlock" escapeBlockStart="&quot;" escapeBlockEnd="&quot;"
         escapeEscapeCharacter="&quot;" separator=","/>
</layout>`

func TestParseXML(t *testing.T) {
	specs, err := ParseXML([]byte(amountXML))
	if err != nil {
		t.Fatalf("ParseXML() error = %v", err)
	}
	if len(specs) != 2 {
		t.Fatalf("got %d specs", len(specs))
	}
	a := specs[0]
	wantDelims := []delim.Delimiter{
		{Pattern: ",", Role: delim.Separator},
		{Pattern: ";", Role: delim.Terminator},
		{Pattern: "\n", Role: delim.Terminator},
	}
	if !reflect.DeepEqual(a.Delimiters, wantDelims) {
		t.Errorf("Delimiters = %v", a.Delimiters)
	}
	if a.EscapeEscapeCharacter != "%" || a.ExtraEscapedCharacters != "!?" || a.PadCharacter != " " {
		t.Errorf("spec = %+v", a)
	}
	if a.NilValue == nil || *a.NilValue != "NIL" || a.Type != "xs:int" || a.MinLength != 5 {
		t.Errorf("spec = %+v", a)
	}

	fields, err := CompileAll(specs, nil)
	if err != nil {
		t.Fatalf("CompileAll() error = %v", err)
	}
	note, _ := fields.Get("note")
	buf := note.NewBuffer()
	if err := note.Unparse(nil, `say "hi", ok`, buf); err != nil {
		t.Fatal(err)
	}
	if want := `"say ""hi"", ok"`; buf.String() != want {
		t.Errorf("note wrote %q, want %q", buf.String(), want)
	}
}

func TestParseXMLErrors(t *testing.T) {
	tests := []struct {
		name string
		doc  string
	}{
		{"not xml", "<layout"},
		{"wrong root", "<fields><field name='a'/></fields>"},
		{"unknown attribute", "<layout><field name='a' colour='red'/></layout>"},
		{"missing name", "<layout><field separator=','/></layout>"},
		{"bad integer", "<layout><field name='a' textOutputMinLength='five'/></layout>"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := ParseXML([]byte(tt.doc))
			var pe *errors.ParseError
			if !errors.As(err, &pe) {
				t.Fatalf("ParseXML() error = %v, want ParseError", err)
			}
		})
	}
}

func TestEntities(t *testing.T) {
	tests := []struct{ in, want string }{
		{"plain", "plain"},
		{"%SP;", " "},
		{"%%", "%"},
		{"%CR;%LF;", "\r\n"},
		{"%#x41;", "A"},
		{"50%", "50%"},
		{"%BOGUS;", "%BOGUS;"},
		{"%a%SP;", "%a "},
	}
	for _, tt := range tests {
		if got := decodeEntities(tt.in); got != tt.want {
			t.Errorf("decodeEntities(%q) = %q, want %q", tt.in, got, tt.want)
		}
	}
	for _, s := range []string{" ", "\r\n", "%", "a%b c", "\x01"} {
		if got := decodeEntities(encodeEntities(s)); got != s {
			t.Errorf("entity round trip of %q = %q", s, got)
		}
	}
}

func TestFormatAndWriteXMLRoundTrip(t *testing.T) {
	specs, err := Parse(amountLayout)
	if err != nil {
		t.Fatal(err)
	}
	// XML lists delimiters grouped by role.
	specs[0].Delimiters = []delim.Delimiter{
		{Pattern: ",", Role: delim.Separator},
		{Pattern: ";", Role: delim.Terminator},
		{Pattern: "\r\n", Role: delim.Terminator},
	}
	stripLines := func(in []Spec) []Spec {
		out := make([]Spec, len(in))
		for i, s := range in {
			s.Line = 0
			out[i] = s
		}
		return out
	}

	var dsl bytes.Buffer
	if err := Format(&dsl, specs); err != nil {
		t.Fatal(err)
	}
	again, err := Parse(dsl.String())
	if err != nil {
		t.Fatalf("Parse(Format()) error = %v\n%s", err, dsl.String())
	}
	if !reflect.DeepEqual(stripLines(again), stripLines(specs)) {
		t.Errorf("DSL round trip:\n%+v\nwant\n%+v", again, specs)
	}

	var doc bytes.Buffer
	if err := WriteXML(&doc, specs); err != nil {
		t.Fatal(err)
	}
	fromXML, err := ParseXML(doc.Bytes())
	if err != nil {
		t.Fatalf("ParseXML(WriteXML()) error = %v\n%s", err, doc.String())
	}
	if !reflect.DeepEqual(fromXML, stripLines(specs)) {
		t.Errorf("XML round trip:\n%+v\nwant\n%+v", fromXML, specs)
	}
}

func TestLoad(t *testing.T) {
	dir := t.TempDir()
	dslPath := filepath.Join(dir, "record.layout")
	xmlPath := filepath.Join(dir, "record.xml")
	badPath := filepath.Join(dir, "bad.layout")
	if err := os.WriteFile(dslPath, []byte(amountLayout), 0o644); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(xmlPath, []byte(amountXML), 0o644); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(badPath, []byte("field {"), 0o644); err != nil {
		t.Fatal(err)
	}

	for _, p := range []string{dslPath, xmlPath} {
		fields, err := LoadFields(p, nil)
		if err != nil {
			t.Fatalf("LoadFields(%s) error = %v", p, err)
		}
		if len(fields.All()) != 2 {
			t.Errorf("LoadFields(%s) = %v", p, fields.Names())
		}
	}

	_, err := Load(badPath)
	var pe *errors.ParseError
	if !errors.As(err, &pe) || pe.Path != badPath {
		t.Errorf("Load(bad) error = %v", err)
	}
	if _, err := Load(filepath.Join(dir, "missing.layout")); err == nil {
		t.Error("Load(missing) succeeded")
	}
}

func TestDigest(t *testing.T) {
	text, err := Parse(`
# comment
field a { separator "," escape character "\\" }
`)
	if err != nil {
		t.Fatal(err)
	}
	xmlSpecs, err := ParseXML([]byte(`<layout><field name="a" separator="," escapeKind="escapeCharacter" escapeCharacter="\"/></layout>`))
	if err != nil {
		t.Fatal(err)
	}
	d1, err := Digest(text)
	if err != nil {
		t.Fatal(err)
	}
	d2, _ := Digest(xmlSpecs)
	if len(d1) != 64 || d1 != d2 {
		t.Errorf("Digest() = %q and %q, want equal 64-digit hashes", d1, d2)
	}

	text[0].Delimiters = append(text[0].Delimiters, delim.Delimiter{Pattern: ";", Role: delim.Terminator})
	if d3, _ := Digest(text); d3 == d1 {
		t.Error("Digest() unchanged after adding a terminator")
	}
}
