package amount

import (
	"errors"
	"fmt"
	"math"
	"strings"

	"github.com/shopspring/decimal"
)

// ErrInvalidAmount is returned for negative, non-finite or malformed amounts and
// for scales outside the range a network asset can carry.
var ErrInvalidAmount = errors.New("invalid amount")

const (
	// MaxScale is the largest asset scale carried on the wire (an unsigned byte).
	MaxScale = 255
	// MaxIntegerDigits bounds the whole part of a human amount.
	MaxIntegerDigits = 38
)

// FromFloat converts a host float into a decimal, rejecting NaN and infinities.
func FromFloat(f float64) (decimal.Decimal, error) {
	if math.IsNaN(f) || math.IsInf(f, 0) {
		return decimal.Zero, fmt.Errorf("%w: %v is not finite", ErrInvalidAmount, f)
	}
	return decimal.NewFromFloat(f), nil
}

// CheckBounds rejects amounts with more than MaxIntegerDigits whole digits or
// more than MaxScale fractional digits. It works on the exponent and
// coefficient only and never renders d.
func CheckBounds(d decimal.Decimal) error {
	exp := int64(d.Exponent())
	if -exp > MaxScale {
		return fmt.Errorf("%w: more than %d fractional digits", ErrInvalidAmount, MaxScale)
	}
	if int64(d.NumDigits())+exp > MaxIntegerDigits {
		return fmt.Errorf("%w: more than %d integer digits", ErrInvalidAmount, MaxIntegerDigits)
	}
	return nil
}

// Validate checks that a human amount can be sent: it must be within
// CheckBounds and not negative.
func Validate(d decimal.Decimal) error {
	if err := CheckBounds(d); err != nil {
		return err
	}
	if d.IsNegative() {
		return fmt.Errorf("%w: %s is negative", ErrInvalidAmount, d.String())
	}
	return nil
}

// ToNetworkUnits returns round(d * 10^scale) as a base-10 integer string.
// Halves round away from zero.
func ToNetworkUnits(d decimal.Decimal, scale int) (string, error) {
	if err := validateScale(scale); err != nil {
		return "", err
	}
	if err := Validate(d); err != nil {
		return "", err
	}
	return d.Shift(int32(scale)).Round(0).String(), nil
}

// ToDecimal is the inverse of ToNetworkUnits.
func ToDecimal(value string, scale int) (decimal.Decimal, error) {
	if err := validateScale(scale); err != nil {
		return decimal.Zero, err
	}
	if !isDigits(value) {
		return decimal.Zero, fmt.Errorf("%w: %q is not a base-10 integer", ErrInvalidAmount, value)
	}
	d, err := decimal.NewFromString(value)
	if err != nil {
		return decimal.Zero, fmt.Errorf("%w: %v", ErrInvalidAmount, err)
	}
	return d.Shift(-int32(scale)), nil
}

// Format renders a network value for display, e.g. "12.50 USD".
func Format(value string, scale int, assetCode string) (string, error) {
	d, err := ToDecimal(value, scale)
	if err != nil {
		return "", err
	}
	return strings.TrimSpace(d.StringFixed(int32(scale)) + " " + assetCode), nil
}

func validateScale(scale int) error {
	if scale < 0 || scale > MaxScale {
		return fmt.Errorf("%w: scale %d out of range", ErrInvalidAmount, scale)
	}
	return nil
}

func isDigits(s string) bool {
	if s == "" {
		return false
	}
	for _, r := range s {
		if r < '0' || r > '9' {
			return false
		}
	}
	return true
}
