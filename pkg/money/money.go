// Package money keeps currency arithmetic in decimal so balance credits
// match the value shown to players to the cent.
package money

import (
	"errors"
	"math"

	"github.com/shopspring/decimal"
)

// Places is the number of decimal places currency is settled at.
const Places = 2

// MaxAmount is the largest single value that may be paid out.
const MaxAmount = 1e12

// ErrOverflow means an amount does not fit in int64 cents.
var ErrOverflow = errors.New("money: amount exceeds settleable range")

// IsValidAmount reports whether v is finite and within [0, MaxAmount].
func IsValidAmount(v float64) bool {
	return !math.IsNaN(v) && !math.IsInf(v, 0) && v >= 0 && v <= MaxAmount
}

// Round settles d to two decimal places, half away from zero.
func Round(d decimal.Decimal) decimal.Decimal {
	return d.Round(Places)
}

// FromFloat converts a stored item value without intermediate rounding.
func FromFloat(v float64) decimal.Decimal {
	return decimal.NewFromFloat(v)
}

// Sum adds values at full precision and rounds once at the end, so a large
// batch never accumulates per-item rounding drift. Invalid values are skipped.
func Sum(values ...float64) decimal.Decimal {
	total := decimal.Zero
	for _, v := range values {
		if !IsValidAmount(v) {
			continue
		}
		total = total.Add(decimal.NewFromFloat(v))
	}
	return Round(total)
}

// ToCents converts a settled amount to integer cents, or returns
// ErrOverflow when the result does not fit in an int64.
func ToCents(d decimal.Decimal) (int64, error) {
	cents := Round(d).Shift(Places)
	if !cents.BigInt().IsInt64() {
		return 0, ErrOverflow
	}
	return cents.IntPart(), nil
}

// FromCents converts integer cents back to a decimal amount.
func FromCents(cents int64) decimal.Decimal {
	return decimal.New(cents, -Places)
}

// Float returns the settled amount as a float64 for JSON responses.
func Float(d decimal.Decimal) float64 {
	return Round(d).InexactFloat64()
}

// CentsFloat is a shortcut for Float(FromCents(cents)).
func CentsFloat(cents int64) float64 {
	return FromCents(cents).InexactFloat64()
}
