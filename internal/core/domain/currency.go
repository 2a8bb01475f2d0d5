package domain

import "github.com/shopspring/decimal"

// minorUnitExponents maps ISO 4217 currencies that deviate from the default
// two-decimal convention.
var minorUnitExponents = map[string]int32{
	"JPY": 0,
	"KRW": 0,
	"VND": 0,
	"BHD": 3,
	"KWD": 3,
	"TND": 3,
}

// MinorUnitExponent returns the number of decimal places in the currency's
// minor unit (KES, USD etc. default to 2).
func MinorUnitExponent(currency string) int32 {
	if exp, ok := minorUnitExponents[currency]; ok {
		return exp
	}
	return 2
}

// ToMinorUnits converts a decimal major-unit amount to minor units, truncating
// sub-minor-unit precision. "1000.00" KES becomes 100000.
func ToMinorUnits(amount decimal.Decimal, currency string) int64 {
	return amount.Shift(MinorUnitExponent(currency)).IntPart()
}

// FromMinorUnits converts minor units back to a decimal major-unit amount.
func FromMinorUnits(amount int64, currency string) decimal.Decimal {
	return decimal.NewFromInt(amount).Shift(-MinorUnitExponent(currency))
}
