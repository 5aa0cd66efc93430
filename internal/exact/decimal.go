// Package exact provides the fixed-precision decimal type used for every
// price, size, fee and percentage in the scanner. Values never pass through a
// binary floating-point representation except at output boundaries
// (Float64), and every operation rounds at most once, half-up, to a budget of
// Precision significant digits.
package exact

import (
	"bytes"
	"errors"
	"fmt"
	"math/big"

	"github.com/shopspring/decimal"
)

// Precision is the significant-digit budget of every Decimal.
const Precision = 34

var (
	// ErrDivisionByZero is returned by Div when the divisor is zero.
	ErrDivisionByZero = errors.New("exact: division by zero")
	// ErrTooPrecise is returned by Parse when the literal carries more than
	// Precision significant digits.
	ErrTooPrecise = errors.New("exact: literal exceeds precision")
)

// Decimal is an immutable signed decimal number. The zero value is 0.
type Decimal struct {
	d decimal.Decimal
}

var (
	Zero    = Decimal{}
	One     = FromInt(1)
	Hundred = FromInt(100)
)

// Parse reads a decimal literal such as "101.50" or "-0.05".
func Parse(s string) (Decimal, error) {
	d, err := decimal.NewFromString(s)
	if err != nil {
		return Zero, fmt.Errorf("exact: parse %q: %w", s, err)
	}
	if numDigits(d) > Precision {
		return Zero, fmt.Errorf("exact: parse %q: %w", s, ErrTooPrecise)
	}
	return Decimal{d: d}, nil
}

// MustParse is Parse for literals known to be valid. It panics otherwise.
func MustParse(s string) Decimal {
	v, err := Parse(s)
	if err != nil {
		panic(err)
	}
	return v
}

// New returns unscaled * 10^-scale, e.g. New(10150, 2) is 101.50.
func New(unscaled int64, scale int32) Decimal {
	return Decimal{d: decimal.New(unscaled, -scale)}
}

// FromInt returns the integer n as a Decimal.
func FromInt(n int64) Decimal {
	return Decimal{d: decimal.NewFromInt(n)}
}

// Add returns a + b.
func (a Decimal) Add(b Decimal) Decimal { return round(a.d.Add(b.d)) }

// Sub returns a - b.
func (a Decimal) Sub(b Decimal) Decimal { return round(a.d.Sub(b.d)) }

// Mul returns a * b.
func (a Decimal) Mul(b Decimal) Decimal { return round(a.d.Mul(b.d)) }

// Div returns a / b rounded half-up to Precision significant digits. The
// quotient is rounded exactly once.
func (a Decimal) Div(b Decimal) (Decimal, error) {
	if b.d.IsZero() {
		return Zero, ErrDivisionByZero
	}
	if a.d.IsZero() {
		return Zero, nil
	}
	ea, eb := adjusted(a.d), adjusted(b.d)
	// Leading digit of the quotient sits at 10^e, one lower when the
	// dividend's mantissa is smaller than the divisor's.
	e := ea - eb
	if a.d.Abs().Shift(-ea).LessThan(b.d.Abs().Shift(-eb)) {
		e--
	}
	return Decimal{d: a.d.DivRound(b.d, Precision-1-e)}, nil
}

// MustDiv is Div for divisors known to be non-zero. It panics on zero.
func (a Decimal) MustDiv(b Decimal) Decimal {
	q, err := a.Div(b)
	if err != nil {
		panic(err)
	}
	return q
}

// Neg returns -a.
func (a Decimal) Neg() Decimal { return Decimal{d: a.d.Neg()} }

// Abs returns |a|.
func (a Decimal) Abs() Decimal { return Decimal{d: a.d.Abs()} }

// Min returns the smallest of its arguments.
func Min(first Decimal, rest ...Decimal) Decimal {
	m := first
	for _, v := range rest {
		if v.d.LessThan(m.d) {
			m = v
		}
	}
	return m
}

// Max returns the largest of its arguments.
func Max(first Decimal, rest ...Decimal) Decimal {
	m := first
	for _, v := range rest {
		if v.d.GreaterThan(m.d) {
			m = v
		}
	}
	return m
}

// Clamp bounds a to [lo, hi].
func (a Decimal) Clamp(lo, hi Decimal) Decimal {
	return Min(Max(a, lo), hi)
}

// Cmp returns -1, 0 or +1.
func (a Decimal) Cmp(b Decimal) int { return a.d.Cmp(b.d) }

func (a Decimal) Equal(b Decimal) bool              { return a.d.Equal(b.d) }
func (a Decimal) LessThan(b Decimal) bool           { return a.d.LessThan(b.d) }
func (a Decimal) LessThanOrEqual(b Decimal) bool    { return a.d.LessThanOrEqual(b.d) }
func (a Decimal) GreaterThan(b Decimal) bool        { return a.d.GreaterThan(b.d) }
func (a Decimal) GreaterThanOrEqual(b Decimal) bool { return a.d.GreaterThanOrEqual(b.d) }

func (a Decimal) Sign() int        { return a.d.Sign() }
func (a Decimal) IsZero() bool     { return a.d.IsZero() }
func (a Decimal) IsPositive() bool { return a.d.IsPositive() }
func (a Decimal) IsNegative() bool { return a.d.IsNegative() }

// Round rounds half-up (away from zero on the magnitude) to places decimal
// places.
func (a Decimal) Round(places int32) Decimal { return Decimal{d: a.d.Round(places)} }

// StringFixed formats a with exactly places decimals, rounding half-up.
func (a Decimal) StringFixed(places int32) string { return a.d.StringFixed(places) }

// String formats a without trailing zeros.
func (a Decimal) String() string { return a.d.String() }

// Float64 converts a for display or metrics sinks only. Never feed the result
// back into arithmetic.
func (a Decimal) Float64() float64 { return a.d.InexactFloat64() }

// Coefficient exposes a as coef * 10^exp for drivers that encode numerics
// natively.
func (a Decimal) Coefficient() (coef *big.Int, exp int32) {
	return a.d.Coefficient(), a.d.Exponent()
}

// FromBig is the inverse of Coefficient.
func FromBig(coef *big.Int, exp int32) Decimal {
	return round(decimal.NewFromBigInt(coef, exp))
}

// MarshalText implements encoding.TextMarshaler.
func (a Decimal) MarshalText() ([]byte, error) { return []byte(a.d.String()), nil }

// UnmarshalText implements encoding.TextUnmarshaler. TOML configuration
// decodes quoted decimal strings through it.
func (a *Decimal) UnmarshalText(text []byte) error {
	v, err := Parse(string(text))
	if err != nil {
		return err
	}
	*a = v
	return nil
}

// MarshalJSON renders a as a JSON string so no client parses it as a float.
func (a Decimal) MarshalJSON() ([]byte, error) {
	return []byte(`"` + a.d.String() + `"`), nil
}

// UnmarshalJSON accepts both "1.5" and 1.5; the literal text is parsed
// directly.
func (a *Decimal) UnmarshalJSON(data []byte) error {
	data = bytes.TrimSpace(data)
	if bytes.Equal(data, []byte("null")) {
		*a = Zero
		return nil
	}
	data = bytes.Trim(data, `"`)
	return a.UnmarshalText(data)
}

// round applies the significant-digit budget to an exact intermediate.
func round(d decimal.Decimal) Decimal {
	n := numDigits(d)
	if n <= Precision {
		return Decimal{d: d}
	}
	places := -d.Exponent() - int32(n-Precision)
	return Decimal{d: d.Round(places)}
}

// adjusted is the exponent of the leading digit of a non-zero d.
func adjusted(d decimal.Decimal) int32 {
	return int32(numDigits(d)) + d.Exponent() - 1
}

// numDigits counts the digits of the coefficient of d.
func numDigits(d decimal.Decimal) int {
	c := d.Coefficient()
	if c.Sign() == 0 {
		return 1
	}
	return len(c.Abs(c).String())
}
