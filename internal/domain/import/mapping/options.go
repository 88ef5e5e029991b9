package mapping

import (
	"fmt"
	"unicode/utf8"
)

// DirectionMode decides how a row's type (income or expense) is derived.
type DirectionMode string

const (
	// DirectionTypeColumn reads the type from a mapped column; amounts must be positive.
	DirectionTypeColumn DirectionMode = "type_column"
	// DirectionSignBased derives the type from the amount sign.
	DirectionSignBased DirectionMode = "sign_based"
)

// DateFormat is one of the fixed date layouts a file may use.
type DateFormat string

const (
	DateDayMonthYear DateFormat = "DD/MM/YYYY"
	DateMonthDayYear DateFormat = "MM/DD/YYYY"
	DateISO          DateFormat = "YYYY-MM-DD"
)

// Layout returns the time layout for f. Single digit days and months are accepted.
func (f DateFormat) Layout() (string, bool) {
	switch f {
	case DateDayMonthYear:
		return "2/1/2006", true
	case DateMonthDayYear:
		return "1/2/2006", true
	case DateISO:
		return "2006-1-2", true
	default:
		return "", false
	}
}

// ParsingOptions controls how raw cells are interpreted.
type ParsingOptions struct {
	DirectionMode      DirectionMode `json:"directionMode" yaml:"directionMode"`
	DateFormat         DateFormat    `json:"dateFormat" yaml:"dateFormat"`
	Delimiter          string        `json:"delimiter" yaml:"delimiter"`
	DecimalSeparator   string        `json:"decimalSeparator" yaml:"decimalSeparator"`
	ThousandsSeparator string        `json:"thousandsSeparator" yaml:"thousandsSeparator"` // empty means no grouping
	HeaderRowIndex     int           `json:"headerRowIndex" yaml:"headerRowIndex"`
	HasHeaders         bool          `json:"hasHeaders" yaml:"hasHeaders"`
}

// DefaultOptions are the settings offered to a new manual session.
func DefaultOptions() ParsingOptions {
	return ParsingOptions{
		DirectionMode:      DirectionTypeColumn,
		DateFormat:         DateDayMonthYear,
		Delimiter:          ",",
		DecimalSeparator:   ".",
		ThousandsSeparator: ",",
		HeaderRowIndex:     0,
		HasHeaders:         true,
	}
}

// DelimiterRune returns the delimiter as a rune, defaulting to ','.
func (o ParsingOptions) DelimiterRune() rune {
	if o.Delimiter == "" {
		return ','
	}
	r, _ := utf8.DecodeRuneInString(o.Delimiter)
	return r
}

// Problems lists every reason the options cannot be used.
func (o ParsingOptions) Problems() []string {
	var problems []string

	switch o.DirectionMode {
	case DirectionTypeColumn, DirectionSignBased:
	default:
		problems = append(problems, fmt.Sprintf("unknown direction mode %q", o.DirectionMode))
	}

	if _, ok := o.DateFormat.Layout(); !ok {
		problems = append(problems, fmt.Sprintf("unknown date format %q", o.DateFormat))
	}

	if utf8.RuneCountInString(o.Delimiter) != 1 {
		problems = append(problems, "delimiter must be a single character")
	} else if r := o.DelimiterRune(); r == '"' || r == '\r' || r == '\n' {
		problems = append(problems, fmt.Sprintf("delimiter %q is not allowed", o.Delimiter))
	}

	switch o.DecimalSeparator {
	case ".", ",":
	default:
		problems = append(problems, fmt.Sprintf("decimal separator must be \".\" or \",\", got %q", o.DecimalSeparator))
	}

	switch o.ThousandsSeparator {
	case "", ".", ",", " ", "'":
	default:
		problems = append(problems, fmt.Sprintf("unsupported thousands separator %q", o.ThousandsSeparator))
	}

	if o.DecimalSeparator != "" && o.DecimalSeparator == o.ThousandsSeparator {
		problems = append(problems, "decimal and thousands separators must differ")
	}

	if o.HeaderRowIndex != 0 {
		problems = append(problems, "header row index must be 0")
	}
	if !o.HasHeaders {
		problems = append(problems, "files must have a header row")
	}

	return problems
}
