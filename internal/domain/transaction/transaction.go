// Package transaction holds the ledger types the import engine reads and writes.
package transaction

import (
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// Type is the direction of a transaction.
type Type string

const (
	TypeIncome  Type = "INCOME"
	TypeExpense Type = "EXPENSE"
)

// Valid reports whether t is one of the known directions.
func (t Type) Valid() bool {
	return t == TypeIncome || t == TypeExpense
}

func (t Type) String() string {
	return string(t)
}

// Category is a tenant-owned ledger category.
type Category struct {
	ID   uuid.UUID `json:"id"`
	Name string    `json:"name"`
}

// Account is a tenant-owned ledger account.
type Account struct {
	ID           uuid.UUID `json:"id"`
	Name         string    `json:"name"`
	CurrencyCode string    `json:"currency_code"`
}

// Record is an already persisted transaction as seen by duplicate detection.
type Record struct {
	ID          uuid.UUID
	TenantID    uuid.UUID
	AccountID   uuid.UUID
	Type        Type
	Date        time.Time
	Amount      decimal.Decimal // always positive, direction lives in Type
	Currency    string
	Description string
	VendorName  *string
	ClientName  *string
}

// Day truncates t to its calendar day in UTC.
func Day(t time.Time) time.Time {
	y, m, d := t.Date()
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}

// NormalizeName folds a user-visible name for case-insensitive comparisons.
func NormalizeName(name string) string {
	return strings.ToLower(strings.Join(strings.Fields(name), " "))
}
