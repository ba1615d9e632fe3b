// Package kind describes the simple types a field value can have and turns
// typed Go values into the canonical text the codec writes.
//
// Types form a directed acyclic graph. Each node lists its parents and
// carries an explicit capability set; ancestor sets are computed once when
// the lattice is built, so IsA is a map lookup.
package kind

import (
	"fmt"
	"math/big"
	"sort"
	"strings"

	"github.com/FocuswithJustin/delimcodec/core/errors"
)

// Capability is a trait a type has independent of where it sits in the
// lattice.
type Capability uint16

const (
	Numeric Capability = 1 << iota
	Integral
	Signed
	Textual
	Binary
	Calendar
	Boolean
)

var capabilityNames = []struct {
	c    Capability
	name string
}{
	{Numeric, "numeric"},
	{Integral, "integral"},
	{Signed, "signed"},
	{Textual, "textual"},
	{Binary, "binary"},
	{Calendar, "calendar"},
	{Boolean, "boolean"},
}

func (c Capability) String() string {
	var parts []string
	for _, n := range capabilityNames {
		if c&n.c != 0 {
			parts = append(parts, n.name)
		}
	}
	if len(parts) == 0 {
		return "none"
	}
	return strings.Join(parts, "|")
}

// Type is one node of the lattice.
type Type struct {
	name      string
	parents   []*Type
	caps      Capability
	abstract  bool
	ancestors map[*Type]bool
	min, max  *big.Int // integral bounds, nil when unbounded
	floatBits int      // 32 or 64 for binary floats
}

// Name returns the type name.
func (t *Type) Name() string { return t.name }

func (t *Type) String() string { return t.name }

// Parents returns the direct parents.
func (t *Type) Parents() []*Type {
	out := make([]*Type, len(t.parents))
	copy(out, t.parents)
	return out
}

// Capabilities returns the capability set.
func (t *Type) Capabilities() Capability { return t.caps }

// Has reports whether t has every capability in c.
func (t *Type) Has(c Capability) bool { return t.caps&c == c }

// Abstract reports whether values can be declared with this type directly.
func (t *Type) Abstract() bool { return t.abstract }

// IsA reports whether t is other or descends from it.
func (t *Type) IsA(other *Type) bool {
	return t == other || t.ancestors[other]
}

// Bounds returns the inclusive range of an integral type. ok is false when
// the type is unbounded or not integral.
func (t *Type) Bounds() (min, max *big.Int, ok bool) {
	if t.min == nil && t.max == nil {
		return nil, nil, false
	}
	return t.min, t.max, true
}

// Lattice is an immutable set of types.
type Lattice struct {
	types map[string]*Type
	order []*Type
}

type typeDef struct {
	name     string
	parents  []string
	caps     Capability
	abstract bool
	min, max string
	bits     int
}

// build assembles a lattice from definitions listed parents first.
func build(defs []typeDef) (*Lattice, error) {
	l := &Lattice{types: make(map[string]*Type, len(defs))}
	for _, d := range defs {
		key := strings.ToLower(d.name)
		if _, dup := l.types[key]; dup {
			return nil, errors.NewValidation(d.name, "duplicate type")
		}
		t := &Type{name: d.name, caps: d.caps, abstract: d.abstract, floatBits: d.bits, ancestors: make(map[*Type]bool)}
		for _, pn := range d.parents {
			p, ok := l.types[strings.ToLower(pn)]
			if !ok {
				return nil, errors.NewValidation(d.name, fmt.Sprintf("parent %s declared later or missing", pn))
			}
			t.parents = append(t.parents, p)
			t.ancestors[p] = true
			for a := range p.ancestors {
				t.ancestors[a] = true
			}
		}
		if d.min != "" {
			t.min, _ = new(big.Int).SetString(d.min, 10)
		}
		if d.max != "" {
			t.max, _ = new(big.Int).SetString(d.max, 10)
		}
		l.types[key] = t
		l.order = append(l.order, t)
	}
	return l, nil
}

// Lookup finds a type by name, case-insensitively. The xs: prefix is
// accepted.
func (l *Lattice) Lookup(name string) (*Type, error) {
	key := strings.ToLower(strings.TrimPrefix(strings.TrimSpace(name), "xs:"))
	if t, ok := l.types[key]; ok {
		return t, nil
	}
	return nil, errors.NewNotFound("type", name)
}

// Types returns every type in definition order.
func (l *Lattice) Types() []*Type {
	out := make([]*Type, len(l.order))
	copy(out, l.order)
	return out
}

// Common returns the most specific types both a and b descend from. In a
// DAG there may be more than one; they are returned sorted by name.
func (l *Lattice) Common(a, b *Type) []*Type {
	shared := make(map[*Type]bool)
	for _, t := range l.order {
		if a.IsA(t) && b.IsA(t) {
			shared[t] = true
		}
	}
	var out []*Type
	for t := range shared {
		dominated := false
		for u := range shared {
			if u != t && u.IsA(t) {
				dominated = true
				break
			}
		}
		if !dominated {
			out = append(out, t)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].name < out[j].name })
	return out
}

const (
	numInt  = Numeric | Integral | Signed
	numUint = Numeric | Integral
)

// Capabilities are stated per type, not inherited: unsigned integers
// descend from signed ones by value space but are not Signed.
var standardDefs = []typeDef{
	{name: "anySimpleType", abstract: true},
	{name: "string", parents: []string{"anySimpleType"}, caps: Textual},
	{name: "boolean", parents: []string{"anySimpleType"}, caps: Boolean},
	{name: "hexBinary", parents: []string{"anySimpleType"}, caps: Binary},
	{name: "numeric", parents: []string{"anySimpleType"}, caps: Numeric, abstract: true},
	{name: "calendar", parents: []string{"anySimpleType"}, caps: Calendar, abstract: true},

	{name: "double", parents: []string{"numeric"}, caps: Numeric | Signed, bits: 64},
	{name: "float", parents: []string{"numeric"}, caps: Numeric | Signed, bits: 32},
	{name: "decimal", parents: []string{"numeric"}, caps: Numeric | Signed},
	{name: "integer", parents: []string{"decimal"}, caps: numInt},
	{name: "long", parents: []string{"integer"}, caps: numInt, min: "-9223372036854775808", max: "9223372036854775807"},
	{name: "int", parents: []string{"long"}, caps: numInt, min: "-2147483648", max: "2147483647"},
	{name: "short", parents: []string{"int"}, caps: numInt, min: "-32768", max: "32767"},
	{name: "byte", parents: []string{"short"}, caps: numInt, min: "-128", max: "127"},

	{name: "nonNegativeInteger", parents: []string{"integer"}, caps: numUint, min: "0"},
	{name: "unsignedLong", parents: []string{"nonNegativeInteger"}, caps: numUint, min: "0", max: "18446744073709551615"},
	{name: "unsignedInt", parents: []string{"unsignedLong", "long"}, caps: numUint, min: "0", max: "4294967295"},
	{name: "unsignedShort", parents: []string{"unsignedInt", "int"}, caps: numUint, min: "0", max: "65535"},
	{name: "unsignedByte", parents: []string{"unsignedShort", "short"}, caps: numUint, min: "0", max: "255"},

	{name: "dateTime", parents: []string{"calendar"}, caps: Calendar},
	{name: "date", parents: []string{"calendar"}, caps: Calendar},
	{name: "time", parents: []string{"calendar"}, caps: Calendar},
}

// Standard is the lattice of built-in simple types.
var Standard = mustBuild(standardDefs)

func mustBuild(defs []typeDef) *Lattice {
	l, err := build(defs)
	if err != nil {
		panic(err)
	}
	return l
}

// Lookup finds a built-in type by name.
func Lookup(name string) (*Type, error) {
	return Standard.Lookup(name)
}

// Built-in types.
var (
	AnySimpleType      = must("anySimpleType")
	String             = must("string")
	BooleanType        = must("boolean")
	HexBinary          = must("hexBinary")
	NumericType        = must("numeric")
	Double             = must("double")
	Float              = must("float")
	Decimal            = must("decimal")
	Integer            = must("integer")
	Long               = must("long")
	Int                = must("int")
	Short              = must("short")
	Byte               = must("byte")
	NonNegativeInteger = must("nonNegativeInteger")
	UnsignedLong       = must("unsignedLong")
	UnsignedInt        = must("unsignedInt")
	UnsignedShort      = must("unsignedShort")
	UnsignedByte       = must("unsignedByte")
	DateTime           = must("dateTime")
	Date               = must("date")
	Time               = must("time")
)

func must(name string) *Type {
	t, err := Standard.Lookup(name)
	if err != nil {
		panic(err)
	}
	return t
}
