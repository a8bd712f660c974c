package money

import (
	"errors"
	"math"
	"strings"

	"github.com/shopspring/decimal"
)

// Scale is the number of fractional digits every balance mutation is rounded to.
const Scale = 2

const (
	// maxInputLength bounds the textual form accepted by Parse.
	maxInputLength = 64
	// maxIntegerDigits and maxFractionDigits bound the exponent of a parsed
	// amount so later rescaling stays cheap. NUMERIC(19,4) holds 15 integer digits.
	maxIntegerDigits  = 15
	maxFractionDigits = 32
)

var ErrInvalidAmount = errors.New("invalid amount")

// MaxAmount is the largest amount or balance the wallet columns can hold.
var MaxAmount = decimal.RequireFromString("999999999999999.99")

// CheckRange rejects amounts whose magnitude exceeds MaxAmount or whose
// exponent is outside what a money value can carry. It inspects the
// exponent before comparing so hostile inputs never get rescaled.
func CheckRange(amount decimal.Decimal) error {
	exp := amount.Exponent()
	if exp < -maxFractionDigits {
		return ErrInvalidAmount
	}
	if exp > 0 && int64(amount.NumDigits())+int64(exp) > maxIntegerDigits {
		return ErrInvalidAmount
	}
	if amount.Abs().GreaterThan(MaxAmount) {
		return ErrInvalidAmount
	}
	return nil
}

// Round rounds half away from zero to two decimal places.
func Round(amount decimal.Decimal) decimal.Decimal {
	return amount.Round(Scale)
}

func FromFloat(value float64) (decimal.Decimal, error) {
	if math.IsNaN(value) || math.IsInf(value, 0) {
		return decimal.Zero, ErrInvalidAmount
	}
	amount := decimal.NewFromFloat(value)
	if err := CheckRange(amount); err != nil {
		return decimal.Zero, err
	}
	return amount, nil
}

func Parse(input string) (decimal.Decimal, error) {
	trimmed := strings.TrimSpace(input)
	if trimmed == "" || len(trimmed) > maxInputLength {
		return decimal.Zero, ErrInvalidAmount
	}
	amount, err := decimal.NewFromString(trimmed)
	if err != nil {
		return decimal.Zero, ErrInvalidAmount
	}
	if err := CheckRange(amount); err != nil {
		return decimal.Zero, err
	}
	return amount, nil
}

func Format(amount decimal.Decimal) string {
	return Round(amount).StringFixed(Scale)
}
