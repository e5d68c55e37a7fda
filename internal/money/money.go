// Package money formats minor-unit integer amounts for human-readable
// replies and notification emails. Balances are stored as int64 minor units;
// decimal is only used at the display boundary.
package money

import "github.com/shopspring/decimal"

// minorUnitDigits is the subunit scale in decimal digits (100 kobo to the
// naira).
const minorUnitDigits = 2

// Format renders a minor-unit amount as a major-unit string with two decimal
// places, e.g. 150050 -> "1500.50".
func Format(minor int64) string {
	return decimal.New(minor, -minorUnitDigits).StringFixed(minorUnitDigits)
}

// FormatWithCurrency renders an amount prefixed with its currency code,
// e.g. "NGN 1500.50".
func FormatWithCurrency(currency string, minor int64) string {
	if currency == "" {
		return Format(minor)
	}
	return currency + " " + Format(minor)
}
