package normalizer

import (
	"strings"
	"time"

	"github.com/FACorreiaa/bookkeeper/internal/domain/import/mapping"
	"github.com/FACorreiaa/bookkeeper/internal/domain/transaction"
)

var directionAliases = map[string]transaction.Type{
	"income":     transaction.TypeIncome,
	"in":         transaction.TypeIncome,
	"credit":     transaction.TypeIncome,
	"cr":         transaction.TypeIncome,
	"inflow":     transaction.TypeIncome,
	"deposit":    transaction.TypeIncome,
	"revenue":    transaction.TypeIncome,
	"expense":    transaction.TypeExpense,
	"out":        transaction.TypeExpense,
	"debit":      transaction.TypeExpense,
	"dr":         transaction.TypeExpense,
	"outflow":    transaction.TypeExpense,
	"withdrawal": transaction.TypeExpense,
	"payment":    transaction.TypeExpense,
}

// ParseDirection resolves a type cell case-insensitively, tolerating common aliases.
func ParseDirection(raw string) (transaction.Type, bool) {
	key := strings.ToLower(strings.Join(strings.Fields(raw), " "))
	t, ok := directionAliases[key]
	return t, ok
}

// ParseDate parses raw with the fixed layout of format. Impossible calendar
// dates such as 31/02 are rejected.
func ParseDate(raw string, format mapping.DateFormat) (time.Time, error) {
	layout, ok := format.Layout()
	if !ok {
		return time.Time{}, &time.ParseError{Layout: string(format), Value: raw, Message: ": unknown date format"}
	}
	return time.Parse(layout, strings.TrimSpace(raw))
}
