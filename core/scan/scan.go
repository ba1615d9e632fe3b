// Package scan compiles sets of marker patterns into a deterministic
// automaton that finds the next marker in field content.
//
// The automaton is a trie over character units (runes). Matching never
// splits a multi-byte character. When several patterns match at the same
// position the longest one wins; identical patterns declared more than once
// resolve to the first declaration, and the kinds of every declaration are
// merged onto the match.
package scan

import (
	"fmt"
	"strings"

	"github.com/FocuswithJustin/delimcodec/core/delim"
	"github.com/FocuswithJustin/delimcodec/core/errors"
)

// Kind tags what a pattern means to the escaper.
type Kind uint8

const (
	KindInitiator Kind = 1 << iota
	KindSeparator
	KindTerminator
	KindEscape
	KindEscapeEscape
	KindBlockEnd
	KindExtra
)

// KindDelimiter is any delimiter role.
const KindDelimiter = KindInitiator | KindSeparator | KindTerminator

// Has reports whether k carries any of the bits in other.
func (k Kind) Has(other Kind) bool {
	return k&other != 0
}

func (k Kind) String() string {
	names := []struct {
		bit  Kind
		name string
	}{
		{KindInitiator, "initiator"},
		{KindSeparator, "separator"},
		{KindTerminator, "terminator"},
		{KindEscape, "escape"},
		{KindEscapeEscape, "escapeEscape"},
		{KindBlockEnd, "blockEnd"},
		{KindExtra, "extra"},
	}
	var parts []string
	for _, n := range names {
		if k&n.bit != 0 {
			parts = append(parts, n.name)
		}
	}
	if len(parts) == 0 {
		return "none"
	}
	return strings.Join(parts, "|")
}

// KindForRole maps a delimiter role to its pattern kind.
func KindForRole(r delim.Role) Kind {
	switch r {
	case delim.Initiator:
		return KindInitiator
	case delim.Separator:
		return KindSeparator
	case delim.Terminator:
		return KindTerminator
	}
	return 0
}

// Pattern is one marker handed to the scanner.
type Pattern struct {
	Text string
	Kind Kind
}

// Match is the result of one scan step.
type Match struct {
	Pattern string // matched text
	Start   int    // start index in content, in runes
	Length  int    // length in runes
	Kinds   Kind   // merged kinds of every declaration of Pattern
	Index   int    // declaration index of the first declaration of Pattern
}

// End returns the index just past the match.
func (m Match) End() int {
	return m.Start + m.Length
}

type node struct {
	next     map[rune]*node
	terminal int // declaration index, -1 when no pattern ends here
	kinds    Kind
}

func newNode() *node {
	return &node{terminal: -1}
}

// Scanner is a compiled marker automaton. It is immutable after New and
// safe for concurrent use.
type Scanner struct {
	root     *node
	patterns []Pattern
	maxLen   int
	key      string
}

// New compiles the patterns in declaration order.
func New(patterns []Pattern) (*Scanner, error) {
	s := &Scanner{
		root:     newNode(),
		patterns: make([]Pattern, len(patterns)),
		key:      keyOf(patterns),
	}
	copy(s.patterns, patterns)

	for i, p := range patterns {
		if p.Text == "" {
			return nil, errors.NewValidation(fmt.Sprintf("pattern[%d]", i), "empty pattern")
		}
		if p.Kind == 0 {
			return nil, errors.NewValidation(fmt.Sprintf("pattern[%d]", i), "pattern has no kind")
		}
		n := s.root
		length := 0
		for _, r := range p.Text {
			if n.next == nil {
				n.next = make(map[rune]*node)
			}
			child, ok := n.next[r]
			if !ok {
				child = newNode()
				n.next[r] = child
			}
			n = child
			length++
		}
		if n.terminal < 0 {
			n.terminal = i
		}
		n.kinds |= p.Kind
		if length > s.maxLen {
			s.maxLen = length
		}
	}
	return s, nil
}

// MustNew is like New but panics on error.
func MustNew(patterns []Pattern) *Scanner {
	s, err := New(patterns)
	if err != nil {
		panic(err)
	}
	return s
}

// MatchAt returns the longest pattern matching content starting exactly at
// index at.
func (s *Scanner) MatchAt(content []rune, at int) (Match, bool) {
	if at < 0 || at >= len(content) {
		return Match{}, false
	}
	var best *node
	bestLen := 0
	n := s.root
	for i := at; i < len(content); i++ {
		next, ok := n.next[content[i]]
		if !ok {
			break
		}
		n = next
		if n.terminal >= 0 {
			best = n
			bestLen = i - at + 1
		}
	}
	if best == nil {
		return Match{}, false
	}
	return Match{
		Pattern: string(content[at : at+bestLen]),
		Start:   at,
		Length:  bestLen,
		Kinds:   best.kinds,
		Index:   best.terminal,
	}, true
}

// NextMatch returns the match with the smallest start index >= from.
func (s *Scanner) NextMatch(content []rune, from int) (Match, bool) {
	if from < 0 {
		from = 0
	}
	for i := from; i < len(content); i++ {
		if _, ok := s.root.next[content[i]]; !ok {
			continue
		}
		if m, ok := s.MatchAt(content, i); ok {
			return m, true
		}
	}
	return Match{}, false
}

// NextMatchString is NextMatch over a string. Start and Length are in runes.
func (s *Scanner) NextMatchString(content string, from int) (Match, bool) {
	return s.NextMatch([]rune(content), from)
}

// All returns every match in content, scanning from each match start plus
// one so overlapping matches are reported.
func (s *Scanner) All(content []rune) []Match {
	var out []Match
	for i := 0; i < len(content); {
		m, ok := s.NextMatch(content, i)
		if !ok {
			break
		}
		out = append(out, m)
		i = m.Start + 1
	}
	return out
}

// Patterns returns a copy of the compiled patterns in declaration order.
func (s *Scanner) Patterns() []Pattern {
	out := make([]Pattern, len(s.patterns))
	copy(out, s.patterns)
	return out
}

// MaxLen returns the length of the longest pattern, in runes.
func (s *Scanner) MaxLen() int {
	return s.maxLen
}

// Key returns the identity of the compiled pattern list.
func (s *Scanner) Key() string {
	return s.key
}

func keyOf(patterns []Pattern) string {
	tags := make([]byte, len(patterns))
	texts := make([]string, len(patterns))
	for i, p := range patterns {
		tags[i] = byte(p.Kind)
		texts[i] = p.Text
	}
	return delim.Key(tags, texts)
}

// DelimiterPatterns converts a delimiter set into scanner patterns,
// preserving declaration order.
func DelimiterPatterns(set *delim.Set) []Pattern {
	out := make([]Pattern, 0, set.Len())
	for _, d := range set.All() {
		out = append(out, Pattern{Text: d.Pattern, Kind: KindForRole(d.Role)})
	}
	return out
}
