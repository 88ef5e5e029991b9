package sniffer

import (
	"strings"

	"github.com/FACorreiaa/bookkeeper/internal/domain/import/mapping"
)

// Dialect is the regional formatting inferred from sample rows
type Dialect struct {
	DecimalSeparator   string
	ThousandsSeparator string
	DateFormat         mapping.DateFormat
	CurrencyHint       string  // "EUR", "USD", "BRL" if a symbol was seen
	Confidence         float64 // 0.0-1.0, share of amount hints that agree
	SignedAmounts      bool    // some amounts carry a minus sign or parentheses
}

// ProbeDialect examines the amount and date columns of sampleRows. Negative
// indexes skip that column.
func ProbeDialect(sampleRows [][]string, amountIdx int, dateIdx int) *Dialect {
	dialect := &Dialect{
		DecimalSeparator:   ".",
		ThousandsSeparator: ",",
		DateFormat:         mapping.DateDayMonthYear,
		Confidence:         0.5,
	}

	europeanHints, usHints := 0, 0
	dayFirst, monthFirst, yearFirst := false, false, false

	for _, row := range sampleRows {
		if amountIdx >= 0 && amountIdx < len(row) {
			if val := strings.TrimSpace(row[amountIdx]); val != "" {
				switch analyzeAmountFormat(val) {
				case 1:
					europeanHints++
				case -1:
					usHints++
				}
				if strings.HasPrefix(val, "-") || strings.HasSuffix(val, "-") || strings.HasPrefix(val, "(") {
					dialect.SignedAmounts = true
				}
			}
		}

		if dateIdx >= 0 && dateIdx < len(row) {
			switch analyzeDateFormat(row[dateIdx]) {
			case dateYearFirst:
				yearFirst = true
			case dateDayFirst:
				dayFirst = true
			case dateMonthFirst:
				monthFirst = true
			}
		}

		for _, cell := range row {
			switch {
			case strings.Contains(cell, "R$"):
				dialect.CurrencyHint = "BRL"
				europeanHints++
			case strings.Contains(cell, "€"):
				dialect.CurrencyHint = "EUR"
				europeanHints++
			case strings.Contains(cell, "$"):
				if dialect.CurrencyHint == "" {
					dialect.CurrencyHint = "USD"
				}
				usHints++
			}
		}
	}

	european := europeanHints > usHints
	if european {
		dialect.DecimalSeparator = ","
		dialect.ThousandsSeparator = "."
	}

	if total := europeanHints + usHints; total > 0 {
		winning := max(europeanHints, usHints)
		dialect.Confidence = float64(winning) / float64(total)
	}

	switch {
	case yearFirst && !dayFirst && !monthFirst:
		dialect.DateFormat = mapping.DateISO
	case monthFirst && !dayFirst:
		dialect.DateFormat = mapping.DateMonthDayYear
	case dayFirst:
		dialect.DateFormat = mapping.DateDayMonthYear
	case !european && usHints > 0:
		dialect.DateFormat = mapping.DateMonthDayYear
	}

	return dialect
}

// analyzeAmountFormat returns 1 for European, -1 for US and 0 when ambiguous.
func analyzeAmountFormat(val string) int {
	cleaned := strings.Map(func(r rune) rune {
		if r >= '0' && r <= '9' || r == ',' || r == '.' {
			return r
		}
		return -1
	}, val)
	if cleaned == "" {
		return 0
	}

	lastComma := strings.LastIndex(cleaned, ",")
	lastDot := strings.LastIndex(cleaned, ".")

	switch {
	case lastComma >= 0 && lastDot >= 0:
		// the later one is the decimal separator
		if lastComma > lastDot {
			return 1
		}
		return -1
	case lastComma >= 0:
		if len(cleaned)-lastComma-1 <= 2 {
			return 1
		}
		return 0
	case lastDot >= 0:
		if len(cleaned)-lastDot-1 <= 2 {
			return -1
		}
		return 0
	}
	return 0
}

type dateOrder int

const (
	dateUnknown dateOrder = iota
	dateYearFirst
	dateDayFirst
	dateMonthFirst
)

// analyzeDateFormat only answers when the value is unambiguous: a four digit
// leading part, or a day above 12 on either side.
func analyzeDateFormat(dateVal string) dateOrder {
	parts := strings.FieldsFunc(strings.TrimSpace(dateVal), func(r rune) bool {
		return r == '/' || r == '-' || r == '.'
	})
	if len(parts) < 3 {
		return dateUnknown
	}
	if len(parts[0]) == 4 {
		return dateYearFirst
	}
	first, second := leadingInt(parts[0]), leadingInt(parts[1])
	switch {
	case first > 12 && first <= 31:
		return dateDayFirst
	case second > 12 && second <= 31:
		return dateMonthFirst
	}
	return dateUnknown
}

func leadingInt(s string) int {
	n := 0
	for _, c := range strings.TrimSpace(s) {
		if c < '0' || c > '9' {
			break
		}
		n = n*10 + int(c-'0')
	}
	return n
}
