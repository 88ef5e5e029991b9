// Package normalizer validates one raw row against a bound mapping and turns
// it into a typed transaction candidate. Every applicable problem in a row is
// reported, not only the first one.
package normalizer

import (
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/FACorreiaa/bookkeeper/internal/domain/import/importerr"
	"github.com/FACorreiaa/bookkeeper/internal/domain/import/mapping"
	"github.com/FACorreiaa/bookkeeper/internal/domain/transaction"
	"github.com/FACorreiaa/bookkeeper/pkg/money"
)

// Candidate is a row that passed validation and is ready to be checked for
// duplicates and persisted.
type Candidate struct {
	RowIndex     int
	Type         transaction.Type
	Date         time.Time
	Amount       decimal.Decimal // magnitude, direction lives in Type
	Currency     string
	Description  string
	CategoryID   uuid.UUID
	CategoryName string
	AccountID    uuid.UUID
	AccountName  string

	VendorName        *string
	ClientName        *string
	Notes             *string
	Tags              []string
	SecondaryAmount   *decimal.Decimal
	SecondaryCurrency *string
	DocumentPath      *string

	// Warnings describe cells that were ignored without invalidating the row.
	Warnings []string
}

// DocumentIndex answers whether an archive carries a document path.
type DocumentIndex interface {
	Has(path string) bool
}

// Normalizer converts rows of one file.
type Normalizer struct {
	binding   *mapping.Binding
	lookup    *Lookup
	documents DocumentIndex
}

// New creates a normalizer. documents is nil for plain delimited uploads, in
// which case the document column is ignored.
func New(binding *mapping.Binding, lookup *Lookup, documents DocumentIndex) *Normalizer {
	return &Normalizer{
		binding:   binding,
		lookup:    lookup,
		documents: documents,
	}
}

// Normalize validates cells. It returns either a candidate or the complete
// list of row errors.
func (n *Normalizer) Normalize(rowIndex int, cells []string) (*Candidate, []importerr.RowError) {
	var errs []importerr.RowError
	fail := func(f mapping.Field, value, format string, args ...any) {
		errs = append(errs, importerr.RowError{Field: string(f), Value: value, Message: fmt.Sprintf(format, args...)})
	}
	cell := func(f mapping.Field) string {
		return n.binding.Cell(f, cells)
	}
	opts := n.binding.Options

	c := &Candidate{RowIndex: rowIndex}

	if raw := cell(mapping.FieldDate); raw == "" {
		fail(mapping.FieldDate, "", "date is required")
	} else if d, err := ParseDate(raw, opts.DateFormat); err != nil {
		fail(mapping.FieldDate, raw, "not a valid %s date", opts.DateFormat)
	} else {
		c.Date = d
	}

	amountRaw := cell(mapping.FieldAmount)
	amount, amountErr := ParseAmount(amountRaw, opts.DecimalSeparator, opts.ThousandsSeparator)
	switch {
	case amountRaw == "":
		fail(mapping.FieldAmount, "", "amount is required")
	case amountErr != nil:
		fail(mapping.FieldAmount, amountRaw, "not a valid amount")
	}

	switch opts.DirectionMode {
	case mapping.DirectionSignBased:
		if amountErr == nil {
			switch amount.Sign() {
			case 0:
				fail(mapping.FieldAmount, amountRaw, "amount must not be zero")
			case -1:
				c.Type = transaction.TypeExpense
				c.Amount = amount.Abs()
			default:
				c.Type = transaction.TypeIncome
				c.Amount = amount
			}
		}
	default:
		if amountErr == nil {
			if amount.Sign() <= 0 {
				fail(mapping.FieldAmount, amountRaw, "amount must be greater than zero")
			} else {
				c.Amount = amount
			}
		}
		if raw := cell(mapping.FieldType); raw == "" {
			fail(mapping.FieldType, "", "type is required")
		} else if t, ok := ParseDirection(raw); !ok {
			fail(mapping.FieldType, raw, "type must be income or expense")
		} else {
			c.Type = t
		}
	}

	if raw := cell(mapping.FieldCurrency); raw == "" {
		fail(mapping.FieldCurrency, "", "currency is required")
	} else if code, ok := currencyCode(raw); !ok {
		fail(mapping.FieldCurrency, raw, "not a valid ISO-4217 currency code")
	} else {
		c.Currency = code
	}

	if c.Currency != "" && c.Amount.IsPositive() && !money.Fits(c.Amount, c.Currency) {
		fail(mapping.FieldAmount, amountRaw, "%s", tooPrecise(c.Currency))
	}

	c.Description = strings.Join(strings.Fields(cell(mapping.FieldDescription)), " ")
	if c.Description == "" {
		fail(mapping.FieldDescription, "", "description is required")
	}

	if raw := cell(mapping.FieldCategory); raw == "" {
		fail(mapping.FieldCategory, "", "category is required")
	} else if cat, ok := n.lookup.Category(raw); !ok {
		fail(mapping.FieldCategory, raw, "%s", unknownName("category", raw, n.lookup.SuggestCategory(raw)))
	} else {
		c.CategoryID, c.CategoryName = cat.ID, cat.Name
	}

	if raw := cell(mapping.FieldAccount); raw == "" {
		fail(mapping.FieldAccount, "", "account is required")
	} else if acc, ok := n.lookup.Account(raw); !ok {
		fail(mapping.FieldAccount, raw, "%s", unknownName("account", raw, n.lookup.SuggestAccount(raw)))
	} else {
		c.AccountID, c.AccountName = acc.ID, acc.Name
	}

	vendor, client := cell(mapping.FieldVendor), cell(mapping.FieldClient)
	switch {
	case vendor != "" && client != "":
		fail(mapping.FieldClient, client, "a row cannot have both a vendor and a client")
	case vendor != "" && c.Type == transaction.TypeIncome:
		c.Warnings = append(c.Warnings, fmt.Sprintf("vendor %q ignored: vendors apply to expenses only", vendor))
	case client != "" && c.Type == transaction.TypeExpense:
		c.Warnings = append(c.Warnings, fmt.Sprintf("client %q ignored: clients apply to income only", client))
	case vendor != "":
		c.VendorName = &vendor
	case client != "":
		c.ClientName = &client
	}

	n.secondary(c, cell, fail)

	if notes := cell(mapping.FieldNotes); notes != "" {
		c.Notes = &notes
	}
	c.Tags = SplitTags(cell(mapping.FieldTags))

	if n.documents != nil {
		if doc := cell(mapping.FieldDocument); doc != "" {
			if !n.documents.Has(doc) {
				fail(mapping.FieldDocument, doc, "document not found in archive")
			} else {
				c.DocumentPath = &doc
			}
		}
	}

	if len(errs) > 0 {
		return nil, errs
	}
	return c, nil
}

func (n *Normalizer) secondary(c *Candidate, cell func(mapping.Field) string, fail func(mapping.Field, string, string, ...any)) {
	amountRaw := cell(mapping.FieldSecondaryAmount)
	currencyRaw := cell(mapping.FieldSecondaryCurrency)

	switch {
	case amountRaw == "" && currencyRaw == "":
		return
	case amountRaw == "":
		fail(mapping.FieldSecondaryAmount, "", "secondary amount is required when a secondary currency is given")
		return
	case currencyRaw == "":
		fail(mapping.FieldSecondaryCurrency, "", "secondary currency is required when a secondary amount is given")
		return
	}

	opts := n.binding.Options
	amount, err := ParseAmount(amountRaw, opts.DecimalSeparator, opts.ThousandsSeparator)
	if err != nil {
		fail(mapping.FieldSecondaryAmount, amountRaw, "not a valid amount")
	} else if amount.IsZero() {
		fail(mapping.FieldSecondaryAmount, amountRaw, "secondary amount must not be zero")
	} else {
		abs := amount.Abs()
		c.SecondaryAmount = &abs
	}

	if code, ok := currencyCode(currencyRaw); !ok {
		fail(mapping.FieldSecondaryCurrency, currencyRaw, "not a valid ISO-4217 currency code")
	} else {
		c.SecondaryCurrency = &code
	}

	if c.SecondaryAmount != nil && c.SecondaryCurrency != nil && !money.Fits(*c.SecondaryAmount, *c.SecondaryCurrency) {
		fail(mapping.FieldSecondaryAmount, amountRaw, "%s", tooPrecise(*c.SecondaryCurrency))
	}
}

func tooPrecise(code string) string {
	if digits := money.Currency(code).Fraction; digits > 0 {
		return fmt.Sprintf("%s amounts allow at most %d decimal places", code, digits)
	}
	return fmt.Sprintf("%s amounts cannot have decimal places", code)
}

func currencyCode(raw string) (string, bool) {
	code := strings.ToUpper(strings.TrimSpace(raw))
	if len(code) != 3 || !money.IsValidCurrency(code) {
		return "", false
	}
	return code, true
}

func unknownName(kind, value, suggestion string) string {
	msg := fmt.Sprintf("no %s named %q", kind, value)
	if suggestion != "" {
		msg += fmt.Sprintf("; did you mean %q?", suggestion)
	}
	return msg
}

// SplitTags splits a tag cell on commas, semicolons or pipes and drops
// blanks and case-insensitive repeats.
func SplitTags(raw string) []string {
	if strings.TrimSpace(raw) == "" {
		return nil
	}
	parts := strings.FieldsFunc(raw, func(r rune) bool {
		return r == ',' || r == ';' || r == '|'
	})
	seen := make(map[string]struct{}, len(parts))
	tags := make([]string, 0, len(parts))
	for _, p := range parts {
		p = strings.TrimSpace(p)
		if p == "" {
			continue
		}
		key := strings.ToLower(p)
		if _, dup := seen[key]; dup {
			continue
		}
		seen[key] = struct{}{}
		tags = append(tags, p)
	}
	return tags
}
