// Package decision records what the user chose to do with duplicate
// candidates and derives the final outcome of every row.
package decision

import (
	"fmt"
	"strings"
)

// Decision is the user's choice for a duplicate candidate.
type Decision string

const (
	Import Decision = "import"
	Skip   Decision = "skip"
)

// Parse reads a decision, case-insensitively.
func Parse(s string) (Decision, error) {
	switch Decision(strings.ToLower(strings.TrimSpace(s))) {
	case Import:
		return Import, nil
	case Skip:
		return Skip, nil
	default:
		return "", fmt.Errorf("unknown decision %q", s)
	}
}

// Ledger maps row indexes to decisions. Rows without an entry are skipped.
type Ledger map[int]Decision

// For returns the decision for a row, defaulting to Skip.
func (l Ledger) For(rowIndex int) Decision {
	if d, ok := l[rowIndex]; ok && d == Import {
		return Import
	}
	return Skip
}

// With returns a copy of l with rowIndex set to d.
func (l Ledger) With(rowIndex int, d Decision) Ledger {
	out := make(Ledger, len(l)+1)
	for k, v := range l {
		out[k] = v
	}
	out[rowIndex] = d
	return out
}

// FromStrings builds a ledger from wire values.
func FromStrings(raw map[int]string) (Ledger, error) {
	l := make(Ledger, len(raw))
	for row, s := range raw {
		d, err := Parse(s)
		if err != nil {
			return nil, fmt.Errorf("row %d: %w", row, err)
		}
		l[row] = d
	}
	return l, nil
}

// Outcome is what happens to a row at commit.
type Outcome string

const (
	OutcomeImport        Outcome = "import"
	OutcomeSkipInvalid   Outcome = "skipped_invalid"
	OutcomeSkipDuplicate Outcome = "skipped_duplicate"
)

// Resolve applies the import rule: a row is imported iff it is valid and
// either not a duplicate candidate or explicitly marked Import.
func (l Ledger) Resolve(rowIndex int, valid, duplicate bool) Outcome {
	switch {
	case !valid:
		return OutcomeSkipInvalid
	case !duplicate:
		return OutcomeImport
	case l.For(rowIndex) == Import:
		return OutcomeImport
	default:
		return OutcomeSkipDuplicate
	}
}
