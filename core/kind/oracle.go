package kind

import (
	"encoding/hex"
	"fmt"
	"math"
	"math/big"
	"reflect"
	"strconv"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/FocuswithJustin/delimcodec/core/errors"
)

// Calendar layouts used for canonical text.
const (
	LayoutDateTime = "2006-01-02T15:04:05.999999999Z07:00"
	LayoutDate     = "2006-01-02"
	LayoutTime     = "15:04:05.999999999Z07:00"
)

// Canonical returns the canonical text of v as a value of type t. A value
// that does not fit t yields an *errors.MalformedValueError.
func Canonical(t *Type, v any) (string, error) {
	if t == nil {
		return "", errors.NewValidation("type", "no type")
	}
	if t.abstract {
		return "", errors.NewValidation(t.name, "abstract type cannot hold values")
	}
	if v == nil {
		return "", malformed(t, v, "nil value")
	}
	if rv := reflect.ValueOf(v); rv.Kind() == reflect.Pointer && rv.IsNil() {
		return "", malformed(t, v, fmt.Sprintf("nil %T", v))
	}

	switch {
	case t.Has(Textual):
		return canonicalString(t, v)
	case t.Has(Boolean):
		return canonicalBool(t, v)
	case t.Has(Binary):
		return canonicalHex(t, v)
	case t.Has(Calendar):
		return canonicalCalendar(t, v)
	case t.Has(Numeric | Integral):
		return canonicalInteger(t, v)
	case t.floatBits != 0:
		return canonicalFloat(t, v)
	case t.Has(Numeric):
		return canonicalDecimal(t, v)
	}
	return "", errors.NewValidation(t.name, "type has no canonical form")
}

// Parse checks that text is a valid lexical form of t and returns its
// canonical form.
func Parse(t *Type, text string) (string, error) {
	return Canonical(t, text)
}

func malformed(t *Type, v any, reason string) error {
	return errors.NewMalformed(t.name, fmt.Sprint(v), reason)
}

func canonicalString(t *Type, v any) (string, error) {
	switch x := v.(type) {
	case string:
		if !utf8.ValidString(x) {
			return "", malformed(t, x, "invalid UTF-8")
		}
		return x, nil
	case []byte:
		if !utf8.Valid(x) {
			return "", malformed(t, string(x), "invalid UTF-8")
		}
		return string(x), nil
	case []rune:
		return string(x), nil
	case fmt.Stringer:
		return x.String(), nil
	}
	rv := reflect.ValueOf(v)
	if rv.Kind() == reflect.String {
		return rv.String(), nil
	}
	return "", malformed(t, v, fmt.Sprintf("cannot use %T as text", v))
}

func canonicalBool(t *Type, v any) (string, error) {
	rv := reflect.ValueOf(v)
	switch rv.Kind() {
	case reflect.Bool:
		return strconv.FormatBool(rv.Bool()), nil
	case reflect.String:
		switch strings.TrimSpace(rv.String()) {
		case "true", "1":
			return "true", nil
		case "false", "0":
			return "false", nil
		}
		return "", malformed(t, v, "not a boolean")
	}
	return "", malformed(t, v, fmt.Sprintf("cannot use %T as boolean", v))
}

func canonicalHex(t *Type, v any) (string, error) {
	switch x := v.(type) {
	case []byte:
		return strings.ToUpper(hex.EncodeToString(x)), nil
	case string:
		b, err := hex.DecodeString(strings.TrimSpace(x))
		if err != nil {
			return "", &errors.MalformedValueError{Type: t.name, Value: x, Offset: -1, Reason: "not hex digits", Err: err}
		}
		return strings.ToUpper(hex.EncodeToString(b)), nil
	}
	return "", malformed(t, v, fmt.Sprintf("cannot use %T as binary", v))
}

func layoutFor(t *Type) string {
	switch {
	case t.IsA(Date):
		return LayoutDate
	case t.IsA(Time):
		return LayoutTime
	}
	return LayoutDateTime
}

func canonicalCalendar(t *Type, v any) (string, error) {
	layout := layoutFor(t)
	switch x := v.(type) {
	case time.Time:
		return x.Format(layout), nil
	case *time.Time:
		if x == nil {
			return "", malformed(t, v, "nil time")
		}
		return x.Format(layout), nil
	case string:
		tm, err := time.Parse(layout, strings.TrimSpace(x))
		if err != nil {
			return "", &errors.MalformedValueError{Type: t.name, Value: x, Offset: -1, Reason: "not a " + t.name, Err: err}
		}
		return tm.Format(layout), nil
	}
	return "", malformed(t, v, fmt.Sprintf("cannot use %T as %s", v, t.name))
}

func toBigInt(t *Type, v any) (*big.Int, error) {
	switch x := v.(type) {
	case *big.Int:
		if x == nil {
			return nil, malformed(t, v, "nil integer")
		}
		return new(big.Int).Set(x), nil
	case string:
		s := strings.TrimSpace(x)
		s = strings.TrimPrefix(s, "+")
		n, ok := new(big.Int).SetString(s, 10)
		if !ok {
			return nil, malformed(t, x, "not an integer")
		}
		return n, nil
	}

	rv := reflect.ValueOf(v)
	switch rv.Kind() {
	case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64:
		return big.NewInt(rv.Int()), nil
	case reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64, reflect.Uintptr:
		return new(big.Int).SetUint64(rv.Uint()), nil
	case reflect.Float32, reflect.Float64:
		f := rv.Float()
		if math.IsNaN(f) || math.IsInf(f, 0) || f != math.Trunc(f) {
			return nil, malformed(t, v, "not a whole number")
		}
		n, _ := big.NewFloat(f).Int(nil)
		return n, nil
	case reflect.String:
		return toBigInt(t, rv.String())
	}
	return nil, malformed(t, v, fmt.Sprintf("cannot use %T as integer", v))
}

func canonicalInteger(t *Type, v any) (string, error) {
	n, err := toBigInt(t, v)
	if err != nil {
		return "", err
	}
	if t.min != nil && n.Cmp(t.min) < 0 {
		return "", malformed(t, v, fmt.Sprintf("below minimum %s", t.min))
	}
	if t.max != nil && n.Cmp(t.max) > 0 {
		return "", malformed(t, v, fmt.Sprintf("above maximum %s", t.max))
	}
	return n.String(), nil
}

func formatFloat(f float64, bits int) string {
	switch {
	case math.IsNaN(f):
		return "NaN"
	case math.IsInf(f, 1):
		return "INF"
	case math.IsInf(f, -1):
		return "-INF"
	}
	return strconv.FormatFloat(f, 'E', -1, bits)
}

func canonicalFloat(t *Type, v any) (string, error) {
	rv := reflect.ValueOf(v)
	switch rv.Kind() {
	case reflect.Float32, reflect.Float64:
		return formatFloat(rv.Float(), t.floatBits), nil
	case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64:
		return formatFloat(float64(rv.Int()), t.floatBits), nil
	case reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64:
		return formatFloat(float64(rv.Uint()), t.floatBits), nil
	case reflect.String:
		s := strings.TrimSpace(rv.String())
		switch s {
		case "NaN":
			return "NaN", nil
		case "INF", "+INF":
			return "INF", nil
		case "-INF":
			return "-INF", nil
		}
		f, err := strconv.ParseFloat(s, t.floatBits)
		if err != nil {
			return "", &errors.MalformedValueError{Type: t.name, Value: s, Offset: -1, Reason: "not a number", Err: err}
		}
		return formatFloat(f, t.floatBits), nil
	}
	return "", malformed(t, v, fmt.Sprintf("cannot use %T as %s", v, t.name))
}

func canonicalDecimal(t *Type, v any) (string, error) {
	var r *big.Rat
	switch x := v.(type) {
	case *big.Rat:
		if x == nil {
			return "", malformed(t, v, "nil decimal")
		}
		r = new(big.Rat).Set(x)
	case *big.Int:
		if x == nil {
			return "", malformed(t, v, "nil decimal")
		}
		r = new(big.Rat).SetInt(x)
	default:
		rv := reflect.ValueOf(v)
		switch rv.Kind() {
		case reflect.String:
			s := strings.TrimPrefix(strings.TrimSpace(rv.String()), "+")
			if s == "" || strings.ContainsAny(s, "eE/xX_") {
				return "", malformed(t, v, "not a decimal")
			}
			var ok bool
			r, ok = new(big.Rat).SetString(s)
			if !ok {
				return "", malformed(t, v, "not a decimal")
			}
		case reflect.Float32, reflect.Float64:
			f := rv.Float()
			if math.IsNaN(f) || math.IsInf(f, 0) {
				return "", malformed(t, v, "not a finite number")
			}
			// Shortest decimal that round-trips the float.
			r, _ = new(big.Rat).SetString(strconv.FormatFloat(f, 'f', -1, rv.Type().Bits()))
		case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64:
			r = new(big.Rat).SetInt64(rv.Int())
		case reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64:
			r = new(big.Rat).SetInt(new(big.Int).SetUint64(rv.Uint()))
		default:
			return "", malformed(t, v, fmt.Sprintf("cannot use %T as decimal", v))
		}
	}
	return formatDecimal(t, r, v)
}

// formatDecimal prints r without exponent or trailing zeros. Values that
// do not terminate in base 10 are malformed.
func formatDecimal(t *Type, r *big.Rat, v any) (string, error) {
	if r.IsInt() {
		return r.Num().String(), nil
	}
	den := new(big.Int).Set(r.Denom())
	for _, p := range []int64{2, 5} {
		bp := big.NewInt(p)
		for {
			q, m := new(big.Int).QuoRem(den, bp, new(big.Int))
			if m.Sign() != 0 {
				break
			}
			den = q
		}
	}
	if den.Cmp(big.NewInt(1)) != 0 {
		return "", malformed(t, v, "not a terminating decimal")
	}
	// Enough digits for any terminating expansion of this denominator.
	digits := r.Denom().BitLen() + 1
	s := r.FloatString(digits)
	s = strings.TrimRight(s, "0")
	s = strings.TrimSuffix(s, ".")
	return s, nil
}
