// Package money converts between decimal amounts and the integer minor units
// the ledger stores, using ISO-4217 fractions from go-money.
package money

import (
	"fmt"
	"strings"

	"github.com/Rhymond/go-money"
	"github.com/shopspring/decimal"
)

// Common currency codes (ISO-4217)
const (
	USD = "USD"
	EUR = "EUR"
	GBP = "GBP"
	JPY = "JPY" // no minor unit
)

// Currency returns the go-money currency for code, or nil if unknown.
func Currency(code string) *money.Currency {
	return money.GetCurrency(strings.ToUpper(strings.TrimSpace(code)))
}

// IsValidCurrency reports whether code is a known ISO-4217 code.
func IsValidCurrency(code string) bool {
	return Currency(code) != nil
}

// Fits reports whether amount is exact in minor units of code, so ToMinor
// does not have to round it.
func Fits(amount decimal.Decimal, code string) bool {
	currency := Currency(code)
	if currency == nil {
		return false
	}
	return amount.Equal(amount.Round(int32(currency.Fraction)))
}

// ToMinor converts amount to minor units of code, rounding half away from
// zero to the currency's fraction.
func ToMinor(amount decimal.Decimal, code string) (int64, error) {
	currency := Currency(code)
	if currency == nil {
		return 0, fmt.Errorf("unknown currency %q", code)
	}
	multiplier := decimal.New(1, int32(currency.Fraction))
	return amount.Mul(multiplier).Round(0).IntPart(), nil
}

// FromMinor converts minor units of code back into a decimal amount.
func FromMinor(minor int64, code string) decimal.Decimal {
	currency := Currency(code)
	if currency == nil {
		return decimal.NewFromInt(minor)
	}
	return decimal.New(minor, -int32(currency.Fraction))
}

// Display formats an amount with its currency symbol (e.g. "$1,234.56").
func Display(amount decimal.Decimal, code string) string {
	minor, err := ToMinor(amount, code)
	if err != nil {
		return amount.String() + " " + code
	}
	return money.New(minor, strings.ToUpper(code)).Display()
}

// Format renders amount with exactly the currency's minor digits, e.g.
// "42.50" for EUR and "1000" for JPY. Unknown codes keep the decimal as is.
func Format(amount decimal.Decimal, code string) string {
	if currency := Currency(code); currency != nil {
		return amount.StringFixed(int32(currency.Fraction))
	}
	return amount.String()
}
