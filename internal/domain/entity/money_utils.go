package entity

import (
	"strings"

	errs "github.com/amirhossein-jamali/escrow-engine/internal/domain/error"
	"github.com/shopspring/decimal"
)

// DefaultMinorUnitExponent is used for currencies not listed in minorUnitExponents
const DefaultMinorUnitExponent = 2

// minorUnitExponents lists currencies whose minor unit is not 1/100
var minorUnitExponents = map[string]int32{
	"JPY": 0,
	"KRW": 0,
	"VND": 0,
	"KWD": 3,
	"BHD": 3,
}

// MinorUnitExponent returns the number of decimal places of a currency's minor unit
func MinorUnitExponent(currency string) int32 {
	if exp, ok := minorUnitExponents[strings.ToUpper(currency)]; ok {
		return exp
	}
	return DefaultMinorUnitExponent
}

// FormatMinorUnits renders an integer minor-unit amount as a fixed-point decimal string.
// 1100 USD becomes "11.00", 1100 JPY stays "1100".
func FormatMinorUnits(amount int64, currency string) string {
	exp := MinorUnitExponent(currency)
	return decimal.New(amount, -exp).StringFixed(exp)
}

// ParseMajorUnits converts a decimal string such as "11.5" into minor units.
// Values with more precision than the currency's minor unit are rejected rather than rounded.
func ParseMajorUnits(amount, currency string) (int64, error) {
	trimmed := strings.TrimSpace(amount)
	if trimmed == "" {
		return 0, errs.NewValidationError("amount", "is empty")
	}

	d, err := decimal.NewFromString(trimmed)
	if err != nil {
		return 0, errs.NewValidationError("amount", "is not a decimal number")
	}
	if d.IsNegative() {
		return 0, errs.NewValidationError("amount", "cannot be negative")
	}

	exp := MinorUnitExponent(currency)
	scaled := d.Shift(exp)
	if !scaled.Equal(scaled.Truncate(0)) {
		return 0, errs.NewValidationError("amount", "has more decimal places than the currency allows")
	}
	if scaled.GreaterThan(decimal.NewFromInt(maxAmount)) {
		return 0, errs.NewValidationError("amount", "is too large")
	}

	return scaled.IntPart(), nil
}

// maxAmount caps amounts well below int64 overflow when summed across a dashboard
const maxAmount = int64(1) << 53
