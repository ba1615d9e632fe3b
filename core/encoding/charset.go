// Package encoding provides the character sets a field can be written in.
//
// A Charset turns characters into fixed-width code units (8 bits for
// byte-oriented encodings, 7 for packed ASCII). Sinks pack those units into
// a bit stream, so every charset here is also bit-addressable.
package encoding

import (
	"fmt"
	"sort"
	"strings"
	"unicode/utf16"
	"unicode/utf8"

	"golang.org/x/text/encoding/charmap"
	"golang.org/x/text/encoding/ianaindex"

	"github.com/FocuswithJustin/delimcodec/core/errors"
)

// Charset maps characters to code units.
type Charset interface {
	// Name returns the canonical charset name.
	Name() string

	// UnitBits returns the width of one code unit in bits.
	UnitBits() int

	// AppendRune appends the code units for r to dst. ok is false when r
	// cannot be represented.
	AppendRune(dst []uint32, r rune) (out []uint32, ok bool)

	// DecodeUnits turns code units back into text.
	DecodeUnits(units []uint32) (string, error)
}

// Encode converts s to code units. The error is an
// *errors.UnrepresentableError carrying the first offending character.
// Invalid UTF-8 in s is never representable.
func Encode(cs Charset, s string) ([]uint32, error) {
	return AppendEncode(make([]uint32, 0, len(s)), cs, s)
}

// AppendEncode is like Encode but appends to dst. On error dst is returned
// with the units of the characters before the failure.
func AppendEncode(dst []uint32, cs Charset, s string) ([]uint32, error) {
	offset := 0
	for i := 0; i < len(s); offset++ {
		r, size := utf8.DecodeRuneInString(s[i:])
		if r == utf8.RuneError && size == 1 {
			return dst, errors.NewUnrepresentable(cs.Name(), r, offset, "")
		}
		var ok bool
		dst, ok = cs.AppendRune(dst, r)
		if !ok {
			return dst, errors.NewUnrepresentable(cs.Name(), r, offset, "")
		}
		i += size
	}
	return dst, nil
}

// Check reports the first character of s that cs cannot represent.
func Check(cs Charset, s string) error {
	var scratch [4]uint32
	offset := 0
	for i := 0; i < len(s); offset++ {
		r, size := utf8.DecodeRuneInString(s[i:])
		if r == utf8.RuneError && size == 1 {
			return errors.NewUnrepresentable(cs.Name(), r, offset, "")
		}
		if _, ok := cs.AppendRune(scratch[:0], r); !ok {
			return errors.NewUnrepresentable(cs.Name(), r, offset, "")
		}
		i += size
	}
	return nil
}

// CanEncode reports whether cs can represent r.
func CanEncode(cs Charset, r rune) bool {
	var scratch [4]uint32
	_, ok := cs.AppendRune(scratch[:0], r)
	return ok
}

type utf8Charset struct{}

func (utf8Charset) Name() string  { return "UTF-8" }
func (utf8Charset) UnitBits() int { return 8 }

func (utf8Charset) AppendRune(dst []uint32, r rune) ([]uint32, bool) {
	if !utf8.ValidRune(r) {
		return dst, false
	}
	var buf [utf8.UTFMax]byte
	n := utf8.EncodeRune(buf[:], r)
	for _, b := range buf[:n] {
		dst = append(dst, uint32(b))
	}
	return dst, true
}

func (utf8Charset) DecodeUnits(units []uint32) (string, error) {
	b := make([]byte, len(units))
	for i, u := range units {
		b[i] = byte(u)
	}
	if !utf8.Valid(b) {
		return "", errors.NewMalformed("UTF-8", string(b), "invalid byte sequence")
	}
	return string(b), nil
}

type utf16Charset struct {
	name      string
	bigEndian bool
}

func (c utf16Charset) Name() string { return c.name }
func (utf16Charset) UnitBits() int  { return 8 }

func (c utf16Charset) AppendRune(dst []uint32, r rune) ([]uint32, bool) {
	if !utf8.ValidRune(r) {
		return dst, false
	}
	var buf [2]uint16
	for _, u := range utf16.AppendRune(buf[:0], r) {
		hi, lo := uint32(u>>8), uint32(u&0xff)
		if c.bigEndian {
			dst = append(dst, hi, lo)
		} else {
			dst = append(dst, lo, hi)
		}
	}
	return dst, true
}

func (c utf16Charset) DecodeUnits(units []uint32) (string, error) {
	if len(units)%2 != 0 {
		return "", errors.NewMalformed(c.name, "", "odd number of bytes")
	}
	words := make([]uint16, len(units)/2)
	for i := range words {
		a, b := uint16(units[2*i]), uint16(units[2*i+1])
		if c.bigEndian {
			words[i] = a<<8 | b
		} else {
			words[i] = b<<8 | a
		}
	}
	return string(utf16.Decode(words)), nil
}

// asciiCharset covers US-ASCII and its 7-bit packed form.
type asciiCharset struct {
	name string
	bits int
}

func (c asciiCharset) Name() string  { return c.name }
func (c asciiCharset) UnitBits() int { return c.bits }

func (asciiCharset) AppendRune(dst []uint32, r rune) ([]uint32, bool) {
	if r < 0 || r > 0x7f {
		return dst, false
	}
	return append(dst, uint32(r)), true
}

func (c asciiCharset) DecodeUnits(units []uint32) (string, error) {
	var sb strings.Builder
	for i, u := range units {
		if u > 0x7f {
			return "", &errors.MalformedValueError{Type: c.name, Offset: i, Reason: "unit outside 7-bit range"}
		}
		sb.WriteByte(byte(u))
	}
	return sb.String(), nil
}

// mapCharset adapts a single-byte x/text charmap.
type mapCharset struct {
	name string
	cm   *charmap.Charmap
}

func (c mapCharset) Name() string { return c.name }
func (mapCharset) UnitBits() int  { return 8 }

func (c mapCharset) AppendRune(dst []uint32, r rune) ([]uint32, bool) {
	b, ok := c.cm.EncodeRune(r)
	if !ok {
		return dst, false
	}
	return append(dst, uint32(b)), true
}

func (c mapCharset) DecodeUnits(units []uint32) (string, error) {
	var sb strings.Builder
	for _, u := range units {
		sb.WriteRune(c.cm.DecodeByte(byte(u)))
	}
	return sb.String(), nil
}

// Well-known charsets.
var (
	UTF8        Charset = utf8Charset{}
	UTF16BE     Charset = utf16Charset{name: "UTF-16BE", bigEndian: true}
	UTF16LE     Charset = utf16Charset{name: "UTF-16LE"}
	USASCII     Charset = asciiCharset{name: "US-ASCII", bits: 8}
	ASCII7Bit   Charset = asciiCharset{name: "X-DFDL-US-ASCII-7-BIT-PACKED", bits: 7}
	ISO88591    Charset = mapCharset{name: "ISO-8859-1", cm: charmap.ISO8859_1}
	Windows1252 Charset = mapCharset{name: "windows-1252", cm: charmap.Windows1252}
	EBCDIC037   Charset = mapCharset{name: "IBM037", cm: charmap.CodePage037}
)

var registry = map[string]Charset{
	"utf-8":                        UTF8,
	"utf8":                         UTF8,
	"utf-16":                       UTF16BE,
	"utf-16be":                     UTF16BE,
	"utf-16le":                     UTF16LE,
	"us-ascii":                     USASCII,
	"ascii":                        USASCII,
	"x-dfdl-us-ascii-7-bit-packed": ASCII7Bit,
	"iso-8859-1":                   ISO88591,
	"latin1":                       ISO88591,
	"windows-1252":                 Windows1252,
	"cp1252":                       Windows1252,
	"ibm037":                       EBCDIC037,
	"ebcdic-cp-us":                 EBCDIC037,
}

// Lookup resolves a charset by name. Names outside the built-in table are
// resolved through the IANA index when they denote a single-byte charmap.
func Lookup(name string) (Charset, error) {
	key := strings.ToLower(strings.TrimSpace(name))
	if key == "" {
		return UTF8, nil
	}
	if cs, ok := registry[key]; ok {
		return cs, nil
	}

	enc, err := ianaindex.IANA.Encoding(name)
	if err != nil || enc == nil {
		return nil, errors.NewNotFound("charset", name)
	}
	cm, ok := enc.(*charmap.Charmap)
	if !ok {
		return nil, errors.NewValidation("charset", fmt.Sprintf("%s is not a single-byte charset", name))
	}
	canonical, err := ianaindex.IANA.Name(enc)
	if err != nil {
		canonical = name
	}
	return mapCharset{name: canonical, cm: cm}, nil
}

// MustLookup is like Lookup but panics on error.
func MustLookup(name string) Charset {
	cs, err := Lookup(name)
	if err != nil {
		panic(err)
	}
	return cs
}

// Names returns the built-in charset names, sorted.
func Names() []string {
	seen := make(map[string]bool)
	var out []string
	for _, cs := range registry {
		if !seen[cs.Name()] {
			seen[cs.Name()] = true
			out = append(out, cs.Name())
		}
	}
	sort.Strings(out)
	return out
}

// CheckUTF8 reports the first byte of s that is not valid UTF-8 as an
// UnrepresentableError at the given stage. Offset counts characters.
func CheckUTF8(s string, stage errors.Stage) error {
	if utf8.ValidString(s) {
		return nil
	}
	offset := 0
	for i := 0; i < len(s); offset++ {
		r, size := utf8.DecodeRuneInString(s[i:])
		if r == utf8.RuneError && size == 1 {
			return &errors.UnrepresentableError{
				Char:   utf8.RuneError,
				Offset: offset,
				Stage:  stage,
				Reason: fmt.Sprintf("invalid UTF-8 byte %#x", s[i]),
			}
		}
		i += size
	}
	return nil
}
