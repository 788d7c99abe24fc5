// Package money converts between the stored minor units and the decimal
// major units some gateways and all customer messages use.
package money

import (
	"fmt"
	"strings"

	"github.com/shopspring/decimal"
)

const minorDigits = 2

// ToMajor converts minor units (kobo, cents) to major units.
func ToMajor(minor int64) decimal.Decimal {
	return decimal.New(minor, -minorDigits)
}

// FromMajor converts major units to minor units, rounding half away from
// zero at the minor unit.
func FromMajor(major decimal.Decimal) int64 {
	return major.Shift(minorDigits).Round(0).IntPart()
}

// Percent returns pct percent of minor, rounded half up to a whole minor
// unit.
func Percent(minor int64, pct decimal.Decimal) int64 {
	return decimal.NewFromInt(minor).Mul(pct).Div(decimal.NewFromInt(100)).Round(0).IntPart()
}

// Format renders minor units as "NGN 1,234.50".
func Format(minor int64, currency string) string {
	major := ToMajor(minor).StringFixed(minorDigits)
	whole, frac, _ := strings.Cut(major, ".")
	sign := ""
	if strings.HasPrefix(whole, "-") {
		sign, whole = "-", whole[1:]
	}
	var b strings.Builder
	for i, r := range whole {
		if i > 0 && (len(whole)-i)%3 == 0 {
			b.WriteByte(',')
		}
		b.WriteRune(r)
	}
	return fmt.Sprintf("%s %s%s.%s", currency, sign, b.String(), frac)
}
