// Package escape implements the two escaping algorithms a delimited field
// can use: character escapes, which prefix each dangerous unit, and block
// escapes, which wrap the whole value between start and end markers.
package escape

import (
	"fmt"
	"strings"
	"unicode/utf8"

	"github.com/FocuswithJustin/delimcodec/core/errors"
)

// Generate controls when a block escape wraps a value.
type Generate int

const (
	// WhenNeeded wraps only values that would otherwise be ambiguous.
	WhenNeeded Generate = iota
	// Always wraps every value.
	Always
)

func (g Generate) String() string {
	if g == Always {
		return "always"
	}
	return "whenNeeded"
}

// ParseGenerate maps a name to a Generate policy.
func ParseGenerate(s string) (Generate, error) {
	switch strings.ToLower(s) {
	case "", "whenneeded", "when-needed":
		return WhenNeeded, nil
	case "always":
		return Always, nil
	}
	return WhenNeeded, errors.NewValidation("generate", fmt.Sprintf("unknown policy %q", s))
}

// Scheme is an escape scheme. The concrete types are CharacterEscape and
// BlockEscape.
type Scheme interface {
	// Name returns the scheme kind.
	Name() string
	validate() error
}

// CharacterEscape prefixes each unit that begins a marker with EscapeChar.
// EscapeEscapeChar is optional (zero when absent); when a delimiter equals
// EscapeChar it becomes the prefix instead.
type CharacterEscape struct {
	EscapeChar       rune
	EscapeEscapeChar rune
	Extra            []rune
}

// Name implements Scheme.
func (CharacterEscape) Name() string { return "escapeCharacter" }

func (s CharacterEscape) validate() error {
	if !validChar(s.EscapeChar) {
		return errors.NewValidation("escapeCharacter", "an escape character is required")
	}
	if s.EscapeEscapeChar != 0 && !validChar(s.EscapeEscapeChar) {
		return errors.NewValidation("escapeEscapeCharacter", fmt.Sprintf("invalid character %U", s.EscapeEscapeChar))
	}
	return validateExtras(s.Extra)
}

func (s CharacterEscape) String() string {
	return fmt.Sprintf("escapeCharacter(%q, ee=%s, extra=%q)", s.EscapeChar, runeOrNone(s.EscapeEscapeChar), string(s.Extra))
}

// BlockEscape wraps values in BlockStart and BlockEnd. Inside a block,
// BlockEnd, the escape-escape character and extras are prefixed with
// EscapeEscapeChar, which is optional (zero when absent).
type BlockEscape struct {
	BlockStart       string
	BlockEnd         string
	EscapeEscapeChar rune
	Extra            []rune
	Generate         Generate
}

// Name implements Scheme.
func (BlockEscape) Name() string { return "escapeBlock" }

func (s BlockEscape) validate() error {
	if s.BlockStart == "" || !utf8.ValidString(s.BlockStart) {
		return errors.NewValidation("escapeBlockStart", "a block start marker is required")
	}
	if s.BlockEnd == "" || !utf8.ValidString(s.BlockEnd) {
		return errors.NewValidation("escapeBlockEnd", "a block end marker is required")
	}
	if s.EscapeEscapeChar != 0 {
		if !validChar(s.EscapeEscapeChar) {
			return errors.NewValidation("escapeEscapeCharacter", fmt.Sprintf("invalid character %U", s.EscapeEscapeChar))
		}
		ee := string(s.EscapeEscapeChar)
		if s.BlockEnd != ee && strings.Contains(s.BlockEnd, ee) {
			return errors.NewCollision(ee, s.BlockEnd, "block end contains the escape-escape character")
		}
	}
	if s.Generate != WhenNeeded && s.Generate != Always {
		return errors.NewValidation("generate", fmt.Sprintf("unknown policy %d", s.Generate))
	}
	return validateExtras(s.Extra)
}

func (s BlockEscape) String() string {
	return fmt.Sprintf("escapeBlock(%q…%q, ee=%s, extra=%q, %s)", s.BlockStart, s.BlockEnd, runeOrNone(s.EscapeEscapeChar), string(s.Extra), s.Generate)
}

func validChar(r rune) bool {
	return r != 0 && utf8.ValidRune(r)
}

func validateExtras(extra []rune) error {
	for i, r := range extra {
		if !validChar(r) {
			return errors.NewValidation(fmt.Sprintf("extraEscapedCharacters[%d]", i), fmt.Sprintf("invalid character %U", r))
		}
	}
	return nil
}

func runeOrNone(r rune) string {
	if r == 0 {
		return "none"
	}
	return fmt.Sprintf("%q", r)
}
