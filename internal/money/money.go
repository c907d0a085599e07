package money

import (
	"strings"

	"github.com/shopspring/decimal"
)

// minorUnits lists currencies whose minor unit is not two digits.
var minorUnits = map[string]int32{
	"BHD": 3,
	"IDR": 0,
	"JPY": 0,
	"KRW": 0,
	"KWD": 3,
	"OMR": 3,
	"VND": 0,
}

// MinorUnits returns the number of decimal places used by currency.
func MinorUnits(currency string) int32 {
	if places, ok := minorUnits[strings.ToUpper(currency)]; ok {
		return places
	}
	return 2
}

// Quantize rounds amount half away from zero to the currency minor unit.
func Quantize(amount decimal.Decimal, currency string) decimal.Decimal {
	return amount.Round(MinorUnits(currency))
}

// Equal compares two amounts after quantizing both.
func Equal(a, b decimal.Decimal, currency string) bool {
	return Quantize(a, currency).Equal(Quantize(b, currency))
}

// ToMinor converts amount to an integer count of minor units (cents).
func ToMinor(amount decimal.Decimal, currency string) int64 {
	return Quantize(amount, currency).Shift(MinorUnits(currency)).IntPart()
}

// FromMinor is the inverse of ToMinor.
func FromMinor(minor int64, currency string) decimal.Decimal {
	return decimal.New(minor, -MinorUnits(currency))
}

// FloorZero returns amount, or zero when amount is negative.
func FloorZero(amount decimal.Decimal) decimal.Decimal {
	if amount.IsNegative() {
		return decimal.Zero
	}
	return amount
}
