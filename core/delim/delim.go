// Package delim defines delimiters and the immutable sets of delimiters that
// are in scope for a field.
package delim

import (
	"encoding/binary"
	"encoding/hex"
	"fmt"
	"strings"
	"unicode/utf8"

	"github.com/zeebo/blake3"

	"github.com/FocuswithJustin/delimcodec/core/errors"
)

// Role is the part a delimiter plays around a field.
type Role uint8

const (
	Initiator Role = iota + 1
	Separator
	Terminator
)

func (r Role) String() string {
	switch r {
	case Initiator:
		return "initiator"
	case Separator:
		return "separator"
	case Terminator:
		return "terminator"
	}
	return fmt.Sprintf("Role(%d)", uint8(r))
}

// ParseRole maps a role name to a Role.
func ParseRole(s string) (Role, error) {
	switch strings.ToLower(s) {
	case "initiator":
		return Initiator, nil
	case "separator":
		return Separator, nil
	case "terminator":
		return Terminator, nil
	}
	return 0, errors.NewValidation("role", fmt.Sprintf("unknown delimiter role %q", s))
}

// Delimiter is a literal marker bounding a field.
type Delimiter struct {
	Pattern string
	Role    Role
}

// Units returns the pattern as character units.
func (d Delimiter) Units() []rune {
	return []rune(d.Pattern)
}

func (d Delimiter) String() string {
	return fmt.Sprintf("%s %q", d.Role, d.Pattern)
}

// Set is an ordered, immutable collection of delimiters. Declaration order
// is preserved and used as the scanner tie-break order.
type Set struct {
	delims      []Delimiter
	fingerprint string
}

// Empty is the set with no delimiters.
var Empty = &Set{fingerprint: fingerprint(nil)}

// NewSet builds a set from the given delimiters. Empty or invalid patterns and
// unknown roles are rejected. Duplicate (pattern, role) pairs are dropped, keeping
// the first declaration.
func NewSet(delims ...Delimiter) (*Set, error) {
	out := make([]Delimiter, 0, len(delims))
	seen := make(map[Delimiter]bool, len(delims))
	for i, d := range delims {
		if d.Pattern == "" {
			return nil, errors.NewValidation(fmt.Sprintf("delimiter[%d]", i), "empty pattern")
		}
		if !utf8.ValidString(d.Pattern) {
			return nil, errors.NewValidation(fmt.Sprintf("delimiter[%d]", i), "pattern is not valid UTF-8")
		}
		if d.Role < Initiator || d.Role > Terminator {
			return nil, errors.NewValidation(fmt.Sprintf("delimiter[%d]", i), "unknown role")
		}
		if seen[d] {
			continue
		}
		seen[d] = true
		out = append(out, d)
	}
	return &Set{delims: out, fingerprint: fingerprint(out)}, nil
}

// MustSet is like NewSet but panics on error. Intended for tests and
// package-level tables.
func MustSet(delims ...Delimiter) *Set {
	s, err := NewSet(delims...)
	if err != nil {
		panic(err)
	}
	return s
}

// Len returns the number of delimiters.
func (s *Set) Len() int {
	if s == nil {
		return 0
	}
	return len(s.delims)
}

// At returns the i'th delimiter in declaration order.
func (s *Set) At(i int) Delimiter {
	return s.delims[i]
}

// All returns a copy of the delimiters in declaration order.
func (s *Set) All() []Delimiter {
	if s == nil {
		return nil
	}
	out := make([]Delimiter, len(s.delims))
	copy(out, s.delims)
	return out
}

// Patterns returns the distinct patterns in declaration order.
func (s *Set) Patterns() []string {
	if s == nil {
		return nil
	}
	seen := make(map[string]bool, len(s.delims))
	out := make([]string, 0, len(s.delims))
	for _, d := range s.delims {
		if !seen[d.Pattern] {
			seen[d.Pattern] = true
			out = append(out, d.Pattern)
		}
	}
	return out
}

// Contains reports whether any delimiter has exactly the given pattern.
func (s *Set) Contains(pattern string) bool {
	if s == nil {
		return false
	}
	for _, d := range s.delims {
		if d.Pattern == pattern {
			return true
		}
	}
	return false
}

// Occurs reports whether any delimiter pattern appears anywhere in content.
func (s *Set) Occurs(content string) bool {
	if s == nil {
		return false
	}
	for _, d := range s.delims {
		if strings.Contains(content, d.Pattern) {
			return true
		}
	}
	return false
}

// Fingerprint returns a stable BLAKE3 digest of the set's roles and
// patterns in declaration order.
func (s *Set) Fingerprint() string {
	if s == nil {
		return Empty.fingerprint
	}
	return s.fingerprint
}

func (s *Set) String() string {
	if s == nil || len(s.delims) == 0 {
		return "{}"
	}
	parts := make([]string, len(s.delims))
	for i, d := range s.delims {
		parts[i] = d.String()
	}
	return "{" + strings.Join(parts, ", ") + "}"
}

func fingerprint(delims []Delimiter) string {
	tags := make([]byte, len(delims))
	patterns := make([]string, len(delims))
	for i, d := range delims {
		tags[i] = byte(d.Role)
		patterns[i] = d.Pattern
	}
	return Key(tags, patterns)
}

// Key hashes an ordered list of tagged patterns. Each pattern is length
// prefixed so no two distinct lists share an input. Set fingerprints and
// scanner cache keys are both computed with it.
func Key(tags []byte, patterns []string) string {
	h := blake3.New()
	var buf [binary.MaxVarintLen64]byte
	for i, p := range patterns {
		h.Write([]byte{tags[i]})
		n := binary.PutUvarint(buf[:], uint64(len(p)))
		h.Write(buf[:n])
		h.Write([]byte(p))
	}
	return hex.EncodeToString(h.Sum(nil))
}
