package kind

import (
	"math"
	"math/big"
	"testing"
	"time"

	"github.com/FocuswithJustin/delimcodec/core/errors"
)

func TestIsA(t *testing.T) {
	tests := []struct {
		a, b *Type
		want bool
	}{
		{Byte, Integer, true},
		{Byte, Decimal, true},
		{Byte, NumericType, true},
		{Byte, AnySimpleType, true},
		{Integer, Byte, false},
		{UnsignedInt, UnsignedLong, true},
		{UnsignedInt, Long, true},
		{UnsignedInt, Int, false},
		{UnsignedByte, Short, true},
		{UnsignedByte, NonNegativeInteger, true},
		{Double, Decimal, false},
		{String, NumericType, false},
		{Date, DateTime, false},
		{String, String, true},
	}
	for _, tt := range tests {
		if got := tt.a.IsA(tt.b); got != tt.want {
			t.Errorf("%s.IsA(%s) = %v, want %v", tt.a, tt.b, got, tt.want)
		}
	}
}

func TestCapabilitiesAreExplicit(t *testing.T) {
	if !Int.Has(Numeric | Integral | Signed) {
		t.Errorf("int capabilities = %v", Int.Capabilities())
	}
	if UnsignedInt.Has(Signed) {
		t.Error("unsignedInt must not be signed even though it descends from long")
	}
	if !UnsignedInt.Has(Integral) {
		t.Error("unsignedInt should be integral")
	}
	if Double.Has(Integral) {
		t.Error("double is not integral")
	}
	if got := (Numeric | Signed).String(); got != "numeric|signed" {
		t.Errorf("String() = %q", got)
	}
	if Capability(0).String() != "none" {
		t.Error("zero capability should print none")
	}
}

func TestCommon(t *testing.T) {
	tests := []struct {
		a, b *Type
		want []string
	}{
		{Int, Short, []string{"int"}},
		{UnsignedInt, Int, []string{"long"}},
		{UnsignedShort, Short, []string{"int"}},
		{UnsignedByte, UnsignedLong, []string{"unsignedLong"}},
		{Double, Integer, []string{"numeric"}},
		{String, Date, []string{"anySimpleType"}},
	}
	for _, tt := range tests {
		got := Standard.Common(tt.a, tt.b)
		if len(got) != len(tt.want) {
			t.Errorf("Common(%s, %s) = %v, want %v", tt.a, tt.b, got, tt.want)
			continue
		}
		for i := range got {
			if got[i].Name() != tt.want[i] {
				t.Errorf("Common(%s, %s) = %v, want %v", tt.a, tt.b, got, tt.want)
			}
		}
	}
}

func TestLookup(t *testing.T) {
	for _, name := range []string{"int", "xs:int", "INT", " unsignedByte "} {
		if _, err := Lookup(name); err != nil {
			t.Errorf("Lookup(%q) error = %v", name, err)
		}
	}
	if _, err := Lookup("quaternion"); !errors.Is(err, errors.ErrNotFound) {
		t.Errorf("Lookup(unknown) error = %v", err)
	}
	if len(Standard.Types()) != 22 {
		t.Errorf("Types() = %d entries", len(Standard.Types()))
	}
	if lo, hi, ok := Byte.Bounds(); !ok || lo.Int64() != -128 || hi.Int64() != 127 {
		t.Errorf("Byte.Bounds() = %v, %v, %v", lo, hi, ok)
	}
	if _, _, ok := Integer.Bounds(); ok {
		t.Error("integer is unbounded")
	}
	if len(UnsignedInt.Parents()) != 2 {
		t.Errorf("unsignedInt parents = %v", UnsignedInt.Parents())
	}
}

func TestBuildRejectsBadDefinitions(t *testing.T) {
	if _, err := build([]typeDef{{name: "a"}, {name: "A"}}); err == nil {
		t.Error("duplicate names should fail")
	}
	if _, err := build([]typeDef{{name: "child", parents: []string{"parent"}}}); err == nil {
		t.Error("forward parent reference should fail")
	}
}

type label string

func TestCanonical(t *testing.T) {
	when := time.Date(2024, 3, 9, 14, 5, 6, 0, time.UTC)
	tests := []struct {
		name string
		typ  *Type
		in   any
		want string
	}{
		{"string", String, "héllo", "héllo"},
		{"bytes as string", String, []byte("ab"), "ab"},
		{"named string", String, label("x"), "x"},
		{"stringer", String, big.NewInt(42), "42"},
		{"bool", BooleanType, true, "true"},
		{"bool text one", BooleanType, "1", "true"},
		{"bool text false", BooleanType, "false", "false"},
		{"hex bytes", HexBinary, []byte{0xde, 0xad}, "DEAD"},
		{"hex text normalized", HexBinary, "beef", "BEEF"},
		{"int", Int, 42, "42"},
		{"int from int64", Int, int64(-7), "-7"},
		{"int from text", Int, " +12 ", "12"},
		{"byte bound", Byte, -128, "-128"},
		{"unsigned from uint64", UnsignedLong, uint64(math.MaxUint64), "18446744073709551615"},
		{"integer from whole float", Integer, 3.0, "3"},
		{"integer unbounded", Integer, "123456789012345678901234567890", "123456789012345678901234567890"},
		{"decimal trims zeros", Decimal, "1.50", "1.5"},
		{"decimal integer", Decimal, "007", "7"},
		{"decimal negative zero", Decimal, "-0.0", "0"},
		{"decimal from float", Decimal, 0.1, "0.1"},
		{"decimal from int", Decimal, 12, "12"},
		{"decimal from rat", Decimal, big.NewRat(1, 8), "0.125"},
		{"double", Double, 1.5, "1.5E+00"},
		{"double from text", Double, "2.5e1", "2.5E+01"},
		{"double inf", Double, math.Inf(-1), "-INF"},
		{"double nan text", Double, "NaN", "NaN"},
		{"float from int", Float, 3, "3E+00"},
		{"datetime", DateTime, when, "2024-03-09T14:05:06Z"},
		{"date", Date, when, "2024-03-09"},
		{"time", Time, when, "14:05:06Z"},
		{"date from text", Date, "2024-03-09", "2024-03-09"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := Canonical(tt.typ, tt.in)
			if err != nil {
				t.Fatalf("Canonical(%s, %v) error = %v", tt.typ, tt.in, err)
			}
			if got != tt.want {
				t.Errorf("Canonical(%s, %v) = %q, want %q", tt.typ, tt.in, got, tt.want)
			}
		})
	}
}

func TestCanonicalMalformed(t *testing.T) {
	tests := []struct {
		name string
		typ  *Type
		in   any
	}{
		{"nil", Int, nil},
		{"nil time as string", String, (*time.Time)(nil)},
		{"nil time as dateTime", DateTime, (*time.Time)(nil)},
		{"nil big int", Integer, (*big.Int)(nil)},
		{"text not int", Int, "abc"},
		{"byte overflow", Byte, 128},
		{"unsigned negative", UnsignedInt, -1},
		{"unsigned overflow", UnsignedShort, 70000},
		{"fractional for integer", Integer, 1.5},
		{"nan for integer", Long, math.NaN()},
		{"bool text", BooleanType, "yes"},
		{"bool from int", BooleanType, 1},
		{"hex odd", HexBinary, "abc"},
		{"hex from int", HexBinary, 5},
		{"decimal exponent", Decimal, "1e3"},
		{"decimal fraction form", Decimal, "1/3"},
		{"decimal non-terminating", Decimal, big.NewRat(1, 3)},
		{"decimal inf", Decimal, math.Inf(1)},
		{"double text", Double, "one"},
		{"date text", Date, "03/09/2024"},
		{"string from int", String, 5},
		{"invalid utf8", String, "\xff"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Canonical(tt.typ, tt.in)
			if errors.KindOf(err) != errors.KindMalformedValue {
				t.Fatalf("Canonical(%s, %v) error = %v, want MalformedValue", tt.typ, tt.in, err)
			}
			var me *errors.MalformedValueError
			if errors.As(err, &me) && me.Type != tt.typ.Name() {
				t.Errorf("Type = %q, want %q", me.Type, tt.typ.Name())
			}
		})
	}
}

func TestCanonicalRejectsAbstract(t *testing.T) {
	if _, err := Canonical(NumericType, 1); !errors.Is(err, errors.ErrInvalidInput) {
		t.Errorf("error = %v, want ErrInvalidInput", err)
	}
	if _, err := Canonical(nil, 1); err == nil {
		t.Error("nil type should fail")
	}
}

func TestParse(t *testing.T) {
	got, err := Parse(Int, "0042")
	if err != nil || got != "42" {
		t.Errorf("Parse() = %q, %v", got, err)
	}
}
