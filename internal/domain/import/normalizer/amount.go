package normalizer

import (
	"errors"
	"regexp"
	"strings"
	"unicode"

	"github.com/shopspring/decimal"
)

var (
	errEmptyAmount   = errors.New("amount is empty")
	errInvalidAmount = errors.New("amount is not a number")
	canonicalAmount  = regexp.MustCompile(`^(\d+(\.\d*)?|\.\d+)$`)
)

// currency markers tolerated around an amount
var amountSymbols = []string{"€", "$", "£", "¥", "R$"}

// ParseAmount parses a locale formatted amount into a signed decimal.
// Negative values may be written as -x, x- or (x); a leading + is allowed.
func ParseAmount(raw, decimalSep, thousandsSep string) (decimal.Decimal, error) {
	s := strings.Map(func(r rune) rune {
		if unicode.IsSpace(r) {
			return -1
		}
		return r
	}, raw)
	if s == "" {
		return decimal.Zero, errEmptyAmount
	}

	negative := false
	switch {
	case strings.HasPrefix(s, "(") && strings.HasSuffix(s, ")"):
		negative = true
		s = s[1 : len(s)-1]
	case strings.HasPrefix(s, "-"):
		negative = true
		s = s[1:]
	case strings.HasPrefix(s, "+"):
		s = s[1:]
	case strings.HasSuffix(s, "-"):
		negative = true
		s = s[:len(s)-1]
	}

	for _, sym := range amountSymbols {
		if strings.HasPrefix(s, sym) {
			s = strings.TrimPrefix(s, sym)
			break
		}
		if strings.HasSuffix(s, sym) {
			s = strings.TrimSuffix(s, sym)
			break
		}
	}

	if thousandsSep != "" && strings.TrimSpace(thousandsSep) != "" && strings.Contains(s, thousandsSep) {
		integer, fraction, _ := strings.Cut(s, decimalSep)
		if strings.Contains(fraction, thousandsSep) || !validGrouping(integer, thousandsSep) {
			return decimal.Zero, errInvalidAmount
		}
		s = strings.ReplaceAll(s, thousandsSep, "")
	}
	if decimalSep != "." {
		if strings.Contains(s, ".") {
			return decimal.Zero, errInvalidAmount
		}
		s = strings.ReplaceAll(s, decimalSep, ".")
	}

	if !canonicalAmount.MatchString(s) {
		return decimal.Zero, errInvalidAmount
	}

	amount, err := decimal.NewFromString(s)
	if err != nil {
		return decimal.Zero, errInvalidAmount
	}
	if negative {
		amount = amount.Neg()
	}
	return amount, nil
}

// validGrouping accepts 1-3 leading digits followed by groups of exactly three.
func validGrouping(integer, sep string) bool {
	groups := strings.Split(integer, sep)
	for i, g := range groups {
		if i == 0 && (len(g) == 0 || len(g) > 3) {
			return false
		}
		if i > 0 && len(g) != 3 {
			return false
		}
		for _, r := range g {
			if r < '0' || r > '9' {
				return false
			}
		}
	}
	return true
}
