// Package money implements the fixed-point arithmetic used for every
// price, quantity, and balance in the system: decimals with exactly
// eight fractional digits, multiplication truncated toward zero.
package money

import (
	"fmt"

	"github.com/shopspring/decimal"
)

// Scale is the number of fractional digits carried by all monetary and
// quantity values.
const Scale = 8

// CommissionRate is the flat 1.5% fee charged to the buyer on the
// notional of each executed order.
var CommissionRate = decimal.New(15, -3)

// Parse converts a decimal string, truncating anything beyond scale 8.
func Parse(s string) (decimal.Decimal, error) {
	d, err := decimal.NewFromString(s)
	if err != nil {
		return decimal.Decimal{}, fmt.Errorf("malformed decimal %q", s)
	}
	return d.Truncate(Scale), nil
}

// MustParse is for constants in tests and seeds; panics on malformed input.
func MustParse(s string) decimal.Decimal {
	d, err := Parse(s)
	if err != nil {
		panic(err)
	}
	return d
}

// Mul multiplies two scale-8 values and truncates the result back to
// scale 8, toward zero. Addition and subtraction of scale-8 values are
// exact and need no helper.
func Mul(a, b decimal.Decimal) decimal.Decimal {
	return a.Mul(b).Truncate(Scale)
}

// Commission returns the buyer-side fee on a notional value.
func Commission(notional decimal.Decimal) decimal.Decimal {
	return Mul(notional, CommissionRate)
}

// Min returns the smaller of two values.
func Min(a, b decimal.Decimal) decimal.Decimal {
	if a.LessThan(b) {
		return a
	}
	return b
}

// Format renders a value in the wire format: a string with exactly
// eight fractional digits.
func Format(d decimal.Decimal) string {
	return d.Truncate(Scale).StringFixed(Scale)
}
