// Package pad applies justification and padding to field text.
package pad

import (
	"fmt"
	"strings"
	"unicode/utf8"

	"github.com/FocuswithJustin/delimcodec/core/errors"
)

// Justification says where content sits inside a padded field.
type Justification int

const (
	// None leaves content unpadded.
	None Justification = iota
	// Left places content on the left; padding goes after it.
	Left
	// Right places content on the right; padding goes before it.
	Right
	// Center splits padding, the odd unit going after the content.
	Center
)

var justificationNames = [...]string{"none", "left", "right", "center"}

func (j Justification) String() string {
	if int(j) >= 0 && int(j) < len(justificationNames) {
		return justificationNames[j]
	}
	return fmt.Sprintf("Justification(%d)", int(j))
}

// ParseJustification maps a name to a Justification.
func ParseJustification(s string) (Justification, error) {
	for i, name := range justificationNames {
		if strings.EqualFold(s, name) {
			return Justification(i), nil
		}
	}
	if strings.EqualFold(s, "centre") {
		return Center, nil
	}
	return None, errors.NewValidation("justification", fmt.Sprintf("unknown justification %q", s))
}

// Policy is a field's padding configuration. Target is the minimum length
// in characters; zero disables padding.
type Policy struct {
	Mode    Justification
	PadChar rune
	Target  int
}

// Validate checks that an active policy has a usable pad character.
func (p Policy) Validate() error {
	if p.Target < 0 {
		return errors.NewValidation("minLength", fmt.Sprintf("negative target %d", p.Target))
	}
	if p.Mode < None || p.Mode > Center {
		return errors.NewValidation("justification", p.Mode.String())
	}
	if p.active() && (p.PadChar == 0 || !utf8.ValidRune(p.PadChar)) {
		return errors.NewValidation("padChar", "a pad character is required when padding")
	}
	return nil
}

func (p Policy) active() bool {
	return p.Mode != None && p.Target > 0
}

// Deficit returns how many pad characters Apply would add to s.
func (p Policy) Deficit(s string) int {
	if !p.active() {
		return 0
	}
	return max(0, p.Target-utf8.RuneCountInString(s))
}

// Apply pads s to the target length. Content already at or beyond the
// target is returned unchanged.
func (p Policy) Apply(s string) string {
	deficit := p.Deficit(s)
	if deficit == 0 {
		return s
	}

	var before, after int
	switch p.Mode {
	case Right:
		before = deficit
	case Left:
		after = deficit
	case Center:
		before = deficit / 2
		after = deficit - before
	}

	padLen := utf8.RuneLen(p.PadChar)
	var sb strings.Builder
	sb.Grow(len(s) + deficit*padLen)
	for i := 0; i < before; i++ {
		sb.WriteRune(p.PadChar)
	}
	sb.WriteString(s)
	for i := 0; i < after; i++ {
		sb.WriteRune(p.PadChar)
	}
	return sb.String()
}

// Trim removes padding from s on the side or sides the justification pads.
func (p Policy) Trim(s string) string {
	if p.Mode == None || p.PadChar == 0 {
		return s
	}
	isPad := func(r rune) bool { return r == p.PadChar }
	switch p.Mode {
	case Right:
		return strings.TrimLeftFunc(s, isPad)
	case Left:
		return strings.TrimRightFunc(s, isPad)
	case Center:
		return strings.TrimFunc(s, isPad)
	}
	return s
}

// Truncate clips s to at most limit characters. Right-justified fields
// keep their rightmost characters; all others keep the leftmost. A limit of
// zero or less means no limit.
func (p Policy) Truncate(s string, limit int) string {
	if limit <= 0 {
		return s
	}
	n := utf8.RuneCountInString(s)
	if n <= limit {
		return s
	}
	if p.Mode == Right {
		drop := n - limit
		i := 0
		for drop > 0 {
			_, size := utf8.DecodeRuneInString(s[i:])
			i += size
			drop--
		}
		return s[i:]
	}
	i := 0
	for k := 0; k < limit; k++ {
		_, size := utf8.DecodeRuneInString(s[i:])
		i += size
	}
	return s[:i]
}
