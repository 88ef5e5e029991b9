package service

import (
	"context"
	"fmt"
	"time"

	"github.com/gocarina/gocsv"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/FACorreiaa/bookkeeper/internal/domain/import/importerr"
	"github.com/FACorreiaa/bookkeeper/internal/domain/import/mapping"
	"github.com/FACorreiaa/bookkeeper/internal/domain/transaction"
	"github.com/FACorreiaa/bookkeeper/pkg/money"
)

const sampleFileName = "sample-transactions.csv"

// SampleFile is a ready-made upload that maps with the default mapping.
type SampleFile struct {
	FileName string
	Content  []byte
}

// sampleRow mirrors mapping.DefaultHeaders.
type sampleRow struct {
	Date              string `csv:"Date"`
	Type              string `csv:"Type"`
	Amount            string `csv:"Amount"`
	Currency          string `csv:"Currency"`
	Description       string `csv:"Description"`
	Category          string `csv:"Category"`
	Account           string `csv:"Account"`
	Vendor            string `csv:"Vendor"`
	Client            string `csv:"Client"`
	Notes             string `csv:"Notes"`
	Tags              string `csv:"Tags"`
	SecondaryAmount   string `csv:"Secondary Amount"`
	SecondaryCurrency string `csv:"Secondary Currency"`
	Document          string `csv:"Document"`
}

// sampleLayouts are zero padded, which every DateFormat layout also accepts.
var sampleLayouts = map[mapping.DateFormat]string{
	mapping.DateDayMonthYear: "02/01/2006",
	mapping.DateMonthDayYear: "01/02/2006",
	mapping.DateISO:          "2006-01-02",
}

// SampleFile renders an example file using the tenant's own categories,
// accounts and base currency. It has no side effects.
func (s *ImportService) SampleFile(ctx context.Context, tenantID uuid.UUID, dateFormat mapping.DateFormat) (*SampleFile, error) {
	if dateFormat == "" {
		dateFormat = mapping.DateDayMonthYear
	}
	layout, ok := sampleLayouts[dateFormat]
	if !ok {
		return nil, &importerr.MappingError{Problems: []string{fmt.Sprintf("unknown date format %q", dateFormat)}}
	}

	categories, err := s.repo.ListCategories(ctx, tenantID)
	if err != nil {
		return nil, fmt.Errorf("failed to load categories: %w", err)
	}
	accounts, err := s.repo.ListAccounts(ctx, tenantID)
	if err != nil {
		return nil, fmt.Errorf("failed to load accounts: %w", err)
	}
	base, err := s.repo.GetBaseCurrency(ctx, tenantID)
	if err != nil {
		return nil, fmt.Errorf("failed to load base currency: %w", err)
	}
	if base == "" {
		base = money.EUR
	}
	foreign := money.USD
	if base == money.USD {
		foreign = money.EUR
	}

	expenseCategory := pickName(categories, 0, "General")
	incomeCategory := pickName(categories, 1, expenseCategory)
	account := "Main account"
	if len(accounts) > 0 {
		account = accounts[0].Name
	}

	day := func(d int) string {
		return time.Date(2024, time.January, d, 0, 0, 0, 0, time.UTC).Format(layout)
	}
	amount := func(v string, currency string) string {
		return money.Format(decimal.RequireFromString(v), currency)
	}

	rows := []sampleRow{
		{
			Date:        day(15),
			Type:        string(transaction.TypeExpense),
			Amount:      amount("42.50", base),
			Currency:    base,
			Description: "Office supplies",
			Category:    expenseCategory,
			Account:     account,
			Vendor:      "Paper & Co",
			Tags:        "office;supplies",
		},
		{
			Date:        day(20),
			Type:        string(transaction.TypeIncome),
			Amount:      amount("1500", base),
			Currency:    base,
			Description: "Consulting invoice 1001",
			Category:    incomeCategory,
			Account:     account,
			Client:      "Acme Ltd",
			Notes:       "Paid by bank transfer",
		},
		{
			Date:              day(28),
			Type:              string(transaction.TypeExpense),
			Amount:            amount("120", base),
			Currency:          base,
			Description:       "Software subscription",
			Category:          expenseCategory,
			Account:           account,
			SecondaryAmount:   amount("130", foreign),
			SecondaryCurrency: foreign,
		},
	}

	content, err := gocsv.MarshalBytes(&rows)
	if err != nil {
		return nil, fmt.Errorf("failed to render sample file: %w", err)
	}
	return &SampleFile{FileName: sampleFileName, Content: content}, nil
}

func pickName(categories []transaction.Category, i int, fallback string) string {
	if i < len(categories) {
		return categories[i].Name
	}
	return fallback
}
