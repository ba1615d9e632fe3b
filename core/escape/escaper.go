package escape

import (
	"fmt"
	"strings"

	"github.com/FocuswithJustin/delimcodec/core/delim"
	"github.com/FocuswithJustin/delimcodec/core/encoding"
	"github.com/FocuswithJustin/delimcodec/core/errors"
	"github.com/FocuswithJustin/delimcodec/core/scan"
)

// Escaper applies one scheme against one delimiter set. It is immutable
// once built and safe for concurrent use.
type Escaper struct {
	scheme Scheme
	delims *delim.Set

	// markers finds every unit that must be escaped.
	markers *scan.Scanner
	// delimiters finds in-scope delimiters only.
	delimiters *scan.Scanner

	// character escape
	prefix    rune
	collision bool

	// block escape
	block      BlockEscape
	blockStart []rune
	blockEnd   []rune
	extra      map[rune]bool
}

// New builds an Escaper. Scanners come from cache, or scan.Default when
// cache is nil. Configurations whose output could not be unescaped are
// rejected with an *errors.CollisionError.
func New(scheme Scheme, delims *delim.Set, cache *scan.Cache) (*Escaper, error) {
	if scheme == nil {
		return nil, errors.NewValidation("escapeKind", "no escape scheme")
	}
	if delims == nil {
		delims = delim.Empty
	}
	if cache == nil {
		cache = scan.Default
	}
	if err := scheme.validate(); err != nil {
		return nil, err
	}

	e := &Escaper{scheme: scheme, delims: delims}
	var err error
	e.delimiters, err = cache.Get(scan.DelimiterPatterns(delims))
	if err != nil {
		return nil, errors.Wrap(err, "compile delimiter scanner")
	}

	// Pointer schemes are stored by value.
	switch s := scheme.(type) {
	case *CharacterEscape:
		e.scheme = *s
	case *BlockEscape:
		e.scheme = *s
	}
	switch s := e.scheme.(type) {
	case CharacterEscape:
		err = e.initCharacter(s, cache)
	case BlockEscape:
		err = e.initBlock(s, cache)
	default:
		err = errors.NewValidation("escapeKind", fmt.Sprintf("unsupported scheme %s", scheme.Name()))
	}
	if err != nil {
		return nil, err
	}
	return e, nil
}

func (e *Escaper) initCharacter(s CharacterEscape, cache *scan.Cache) error {
	e.prefix = s.EscapeChar
	esc := string(s.EscapeChar)
	if e.delims.Contains(esc) {
		e.collision = true
		if s.EscapeEscapeChar == 0 || s.EscapeEscapeChar == s.EscapeChar {
			return errors.NewCollision(esc, esc,
				"delimiter equals the escape character and no distinct escape-escape character is set")
		}
		e.prefix = s.EscapeEscapeChar
	}

	prefix := string(e.prefix)
	for _, d := range e.delims.All() {
		if d.Pattern == esc && e.collision {
			continue
		}
		if strings.Contains(d.Pattern, prefix) {
			return errors.NewCollision(prefix, d.Pattern, "delimiter contains the escape prefix")
		}
	}

	patterns := scan.DelimiterPatterns(e.delims)
	for _, r := range s.Extra {
		patterns = append(patterns, scan.Pattern{Text: string(r), Kind: scan.KindExtra})
	}
	patterns = append(patterns, scan.Pattern{Text: esc, Kind: scan.KindEscape})
	if s.EscapeEscapeChar != 0 {
		patterns = append(patterns, scan.Pattern{Text: string(s.EscapeEscapeChar), Kind: scan.KindEscapeEscape})
	}
	var err error
	e.markers, err = cache.Get(patterns)
	return err
}

func (e *Escaper) initBlock(s BlockEscape, cache *scan.Cache) error {
	if e.delims.Contains(s.BlockStart) {
		return errors.NewCollision(s.BlockStart, s.BlockStart, "block start equals a delimiter")
	}
	e.block = s
	e.blockStart = []rune(s.BlockStart)
	e.blockEnd = []rune(s.BlockEnd)
	e.extra = make(map[rune]bool, len(s.Extra))

	patterns := []scan.Pattern{{Text: s.BlockEnd, Kind: scan.KindBlockEnd}}
	if s.EscapeEscapeChar != 0 {
		patterns = append(patterns, scan.Pattern{Text: string(s.EscapeEscapeChar), Kind: scan.KindEscapeEscape})
	}
	for _, r := range s.Extra {
		e.extra[r] = true
		patterns = append(patterns, scan.Pattern{Text: string(r), Kind: scan.KindExtra})
	}
	var err error
	e.markers, err = cache.Get(patterns)
	return err
}

// Scheme returns the scheme the Escaper was built with.
func (e *Escaper) Scheme() Scheme { return e.scheme }

// Delimiters returns the in-scope delimiter set.
func (e *Escaper) Delimiters() *delim.Set { return e.delims }

// Markers returns the scanner for the units this Escaper escapes.
func (e *Escaper) Markers() *scan.Scanner { return e.markers }

// Prefix returns the character placed before escaped units. For block
// escapes it is the escape-escape character, zero when absent.
func (e *Escaper) Prefix() rune {
	if e.blockEnd != nil {
		return e.block.EscapeEscapeChar
	}
	return e.prefix
}

// Collision reports whether a delimiter equals the escape character, in
// which case the escape-escape character is the prefix.
func (e *Escaper) Collision() bool { return e.collision }

// Escape returns value made safe for the in-scope delimiters.
func (e *Escaper) Escape(value string) (string, error) {
	if err := encoding.CheckUTF8(value, errors.StageEscape); err != nil {
		return "", err
	}
	if e.blockEnd != nil {
		return e.escapeBlock(value)
	}
	return e.escapeCharacter(value), nil
}

// Unescape reverses Escape.
func (e *Escaper) Unescape(s string) (string, error) {
	if e.blockEnd != nil {
		return e.unescapeBlock(s)
	}
	return e.unescapeCharacter(s)
}

func (e *Escaper) escapeCharacter(value string) string {
	content := []rune(value)
	m, ok := e.markers.NextMatch(content, 0)
	if !ok {
		return value
	}

	var sb strings.Builder
	sb.Grow(len(value) + 8)
	i := 0
	for ok {
		sb.WriteString(string(content[i:m.Start]))
		sb.WriteRune(e.prefix)
		sb.WriteRune(content[m.Start])
		i = m.Start + 1
		m, ok = e.markers.NextMatch(content, i)
	}
	sb.WriteString(string(content[i:]))
	return sb.String()
}

func (e *Escaper) unescapeCharacter(s string) (string, error) {
	in := []rune(s)
	var sb strings.Builder
	sb.Grow(len(s))
	for i := 0; i < len(in); {
		if in[i] == e.prefix {
			if i+1 == len(in) {
				return "", &errors.MalformedValueError{Type: "escaped text", Value: s, Offset: i, Reason: "dangling escape character"}
			}
			sb.WriteRune(in[i+1])
			i += 2
			continue
		}
		if m, ok := e.delimiters.MatchAt(in, i); ok {
			return "", &errors.MalformedValueError{Type: "escaped text", Value: s, Offset: i,
				Reason: fmt.Sprintf("unescaped delimiter %q", m.Pattern)}
		}
		sb.WriteRune(in[i])
		i++
	}
	return sb.String(), nil
}

// NeedsBlock reports whether value would be wrapped by a block escape.
func (e *Escaper) NeedsBlock(value string) bool {
	if e.blockEnd == nil {
		return false
	}
	if e.block.Generate == Always || strings.HasPrefix(value, e.block.BlockStart) {
		return true
	}
	_, found := e.delimiters.NextMatch([]rune(value), 0)
	return found
}

func (e *Escaper) escapeBlock(value string) (string, error) {
	if !e.NeedsBlock(value) {
		return value, nil
	}

	content := []rune(value)
	// Matches run over content+blockEnd so a suffix that fuses with the
	// closing marker is escaped too.
	probe := make([]rune, 0, len(content)+len(e.blockEnd))
	probe = append(probe, content...)
	probe = append(probe, e.blockEnd...)

	ee := e.block.EscapeEscapeChar
	var sb strings.Builder
	sb.Grow(len(value) + len(e.block.BlockStart) + len(e.block.BlockEnd) + 4)
	sb.WriteString(e.block.BlockStart)
	i := 0
	for {
		m, ok := e.markers.NextMatch(probe, i)
		if !ok || m.Start >= len(content) {
			break
		}
		if ee == 0 {
			return "", &errors.UnrepresentableError{
				Char:   content[m.Start],
				Offset: m.Start,
				Stage:  errors.StageEscape,
				Reason: fmt.Sprintf("%s %q inside a block needs an escape-escape character", m.Kinds, m.Pattern),
			}
		}
		sb.WriteString(string(content[i:m.Start]))
		sb.WriteRune(ee)
		sb.WriteRune(content[m.Start])
		i = m.Start + 1
	}
	sb.WriteString(string(content[i:]))
	sb.WriteString(e.block.BlockEnd)
	return sb.String(), nil
}

func (e *Escaper) unescapeBlock(s string) (string, error) {
	if !strings.HasPrefix(s, e.block.BlockStart) {
		if e.block.Generate == Always {
			return "", &errors.MalformedValueError{Type: "escaped text", Value: s, Offset: 0, Reason: "missing block start"}
		}
		if m, ok := e.delimiters.NextMatch([]rune(s), 0); ok {
			return "", &errors.MalformedValueError{Type: "escaped text", Value: s, Offset: m.Start,
				Reason: fmt.Sprintf("unescaped delimiter %q outside a block", m.Pattern)}
		}
		return s, nil
	}

	in := []rune(s)
	ee := e.block.EscapeEscapeChar
	doubled := ee != 0 && e.block.BlockEnd == string(ee)
	var sb strings.Builder
	sb.Grow(len(s))
	i := len(e.blockStart)
	end := -1
	for i < len(in) {
		c := in[i]
		switch {
		case doubled && c == ee:
			// The doubled form: ee before a marker is an escape, otherwise
			// it closes the block.
			if i+1 < len(in) && (in[i+1] == ee || e.extra[in[i+1]]) {
				sb.WriteRune(in[i+1])
				i += 2
				continue
			}
			end = i + 1
		case ee != 0 && c == ee:
			if i+1 == len(in) {
				return "", &errors.MalformedValueError{Type: "escaped text", Value: s, Offset: i, Reason: "dangling escape-escape character"}
			}
			sb.WriteRune(in[i+1])
			i += 2
			continue
		case hasPrefix(in[i:], e.blockEnd):
			end = i + len(e.blockEnd)
		default:
			sb.WriteRune(c)
			i++
			continue
		}
		break
	}
	if end < 0 {
		return "", &errors.MalformedValueError{Type: "escaped text", Value: s, Offset: len(in), Reason: "unterminated block"}
	}
	if end != len(in) {
		return "", &errors.MalformedValueError{Type: "escaped text", Value: s, Offset: end, Reason: "content after block end"}
	}
	return sb.String(), nil
}

func hasPrefix(s, prefix []rune) bool {
	if len(prefix) > len(s) {
		return false
	}
	for i, r := range prefix {
		if s[i] != r {
			return false
		}
	}
	return true
}
