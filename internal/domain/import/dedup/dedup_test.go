package dedup

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/brianvoe/gofakeit/v6"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/FACorreiaa/bookkeeper/internal/domain/import/normalizer"
	"github.com/FACorreiaa/bookkeeper/internal/domain/transaction"
)

// MockSource records the queries it receives
type MockSource struct {
	records []transaction.Record
	queries []Query
	err     error
}

func (m *MockSource) FindTransactionsInRange(ctx context.Context, q Query) ([]transaction.Record, error) {
	m.queries = append(m.queries, q)
	if m.err != nil {
		return nil, m.err
	}
	var out []transaction.Record
	for _, r := range m.records {
		day := transaction.Day(r.Date)
		if day.Before(q.From) || day.After(q.To) {
			continue
		}
		out = append(out, r)
	}
	return out, nil
}

var faker = gofakeit.New(42)

func day(y int, m time.Month, d int) time.Time {
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}

func record(date time.Time, t transaction.Type, amount, currency string) transaction.Record {
	return transaction.Record{
		ID:          uuid.New(),
		Type:        t,
		Date:        date,
		Amount:      decimal.RequireFromString(amount),
		Currency:    currency,
		Description: faker.Company(),
	}
}

func candidate(date time.Time, t transaction.Type, amount, currency string) *normalizer.Candidate {
	return &normalizer.Candidate{
		Type:        t,
		Date:        date,
		Amount:      decimal.RequireFromString(amount),
		Currency:    currency,
		Description: faker.Sentence(3),
	}
}

func TestDetector_Detect(t *testing.T) {
	jan10 := day(2024, time.January, 10)
	existing := record(jan10, transaction.TypeExpense, "100.00", "USD")
	source := &MockSource{records: []transaction.Record{
		existing,
		record(jan10, transaction.TypeIncome, "100.00", "USD"),
		record(jan10, transaction.TypeExpense, "100.00", "EUR"),
		record(day(2024, time.January, 11), transaction.TypeExpense, "100.00", "USD"),
	}}
	d := NewDetector(source, DefaultConfig())

	tests := []struct {
		name      string
		candidate *normalizer.Candidate
		wantMatch bool
	}{
		{"exact match", candidate(jan10, transaction.TypeExpense, "100.00", "USD"), true},
		{"within tolerance above", candidate(jan10, transaction.TypeExpense, "100.01", "USD"), true},
		{"within tolerance below", candidate(jan10, transaction.TypeExpense, "99.99", "USD"), true},
		{"outside tolerance", candidate(jan10, transaction.TypeExpense, "100.02", "USD"), false},
		{"different currency only matches its own", candidate(jan10, transaction.TypeExpense, "100.00", "GBP"), false},
		{"different day", candidate(day(2024, time.January, 12), transaction.TypeExpense, "100.00", "USD"), false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			matches, err := d.Detect(context.Background(), uuid.New(), []*normalizer.Candidate{tt.candidate})

			require.NoError(t, err)
			require.Len(t, matches, 1)
			if tt.wantMatch {
				require.Len(t, matches[0], 1)
				assert.Equal(t, existing.ID, matches[0][0].TransactionID)
			} else {
				assert.Empty(t, matches[0])
			}
		})
	}
}

func TestDetector_SingleBatchedQuery(t *testing.T) {
	source := &MockSource{}
	d := NewDetector(source, DefaultConfig())
	tenantID := uuid.New()

	candidates := []*normalizer.Candidate{
		candidate(day(2024, time.March, 5), transaction.TypeExpense, "10", "USD"),
		nil, // invalid row
		candidate(day(2024, time.February, 1), transaction.TypeIncome, "20", "EUR"),
		candidate(day(2024, time.March, 31), transaction.TypeExpense, "30", "USD"),
	}

	matches, err := d.Detect(context.Background(), tenantID, candidates)

	require.NoError(t, err)
	assert.Len(t, matches, 4)
	require.Len(t, source.queries, 1)
	q := source.queries[0]
	assert.Equal(t, tenantID, q.TenantID)
	assert.Equal(t, day(2024, time.February, 1), q.From)
	assert.Equal(t, day(2024, time.March, 31), q.To)
	assert.Equal(t, []transaction.Type{transaction.TypeExpense, transaction.TypeIncome}, q.Types)
	assert.Equal(t, []string{"EUR", "USD"}, q.Currencies)
}

func TestDetector_NoValidCandidates(t *testing.T) {
	source := &MockSource{}
	d := NewDetector(source, DefaultConfig())

	matches, err := d.Detect(context.Background(), uuid.New(), []*normalizer.Candidate{nil, nil})

	require.NoError(t, err)
	assert.Len(t, matches, 2)
	assert.Empty(t, source.queries)
}

func TestDetector_MatchDescription(t *testing.T) {
	jan := day(2024, time.January, 1)
	rec := record(jan, transaction.TypeExpense, "5.00", "USD")
	rec.Description = "Coffee Shop"
	source := &MockSource{records: []transaction.Record{rec}}

	c := candidate(jan, transaction.TypeExpense, "5.00", "USD")
	c.Description = "coffee shop "

	strict := NewDetector(source, Config{AmountTolerance: DefaultTolerance, MatchDescription: true})
	matches, err := strict.Detect(context.Background(), uuid.New(), []*normalizer.Candidate{c})
	require.NoError(t, err)
	assert.Len(t, matches[0], 1)

	c.Description = "Bakery"
	matches, err = strict.Detect(context.Background(), uuid.New(), []*normalizer.Candidate{c})
	require.NoError(t, err)
	assert.Empty(t, matches[0])

	loose := NewDetector(source, DefaultConfig())
	matches, err = loose.Detect(context.Background(), uuid.New(), []*normalizer.Candidate{c})
	require.NoError(t, err)
	assert.Len(t, matches[0], 1)
}

func TestDetector_ConfigurableTolerance(t *testing.T) {
	jan := day(2024, time.January, 1)
	source := &MockSource{records: []transaction.Record{record(jan, transaction.TypeExpense, "5.00", "USD")}}
	c := candidate(jan, transaction.TypeExpense, "5.40", "USD")

	wide := NewDetector(source, Config{AmountTolerance: decimal.RequireFromString("0.50")})
	matches, err := wide.Detect(context.Background(), uuid.New(), []*normalizer.Candidate{c})
	require.NoError(t, err)
	assert.Len(t, matches[0], 1)

	negative := NewDetector(source, Config{AmountTolerance: decimal.NewFromInt(-1)})
	assert.True(t, negative.Config().AmountTolerance.IsZero())
}

func TestDetector_ClosestMatchFirst(t *testing.T) {
	jan := day(2024, time.January, 1)
	far := record(jan, transaction.TypeExpense, "9.99", "USD")
	near := record(jan, transaction.TypeExpense, "10.00", "USD")
	source := &MockSource{records: []transaction.Record{far, near}}
	d := NewDetector(source, DefaultConfig())

	matches, err := d.Detect(context.Background(), uuid.New(), []*normalizer.Candidate{
		candidate(jan, transaction.TypeExpense, "10.00", "USD"),
	})

	require.NoError(t, err)
	require.Len(t, matches[0], 2)
	assert.Equal(t, near.ID, matches[0][0].TransactionID)
}

func TestDetector_SourceError(t *testing.T) {
	d := NewDetector(&MockSource{err: errors.New("db down")}, DefaultConfig())

	_, err := d.Detect(context.Background(), uuid.New(), []*normalizer.Candidate{
		candidate(day(2024, time.May, 1), transaction.TypeIncome, "1", "USD"),
	})

	assert.ErrorContains(t, err, "db down")
}
