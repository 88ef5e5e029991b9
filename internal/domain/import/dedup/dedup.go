// Package dedup flags candidate rows that look like transactions the tenant
// already has. A candidate matches an existing record on the same calendar
// day with the same type and currency and an amount within the configured
// tolerance. Matches are advisory: the user decides what to import.
package dedup

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"

	"github.com/FACorreiaa/bookkeeper/internal/domain/import/normalizer"
	"github.com/FACorreiaa/bookkeeper/internal/domain/transaction"
)

// DefaultTolerance is one cent.
var DefaultTolerance = decimal.New(1, -2)

// Config tunes matching.
type Config struct {
	// AmountTolerance is the inclusive maximum absolute difference.
	AmountTolerance decimal.Decimal
	// MatchDescription additionally requires equal descriptions (case-insensitive).
	MatchDescription bool
}

// DefaultConfig matches on amount within one cent and ignores descriptions.
func DefaultConfig() Config {
	return Config{AmountTolerance: DefaultTolerance}
}

// Query selects the existing transactions that could match a batch.
type Query struct {
	TenantID   uuid.UUID
	From       time.Time // inclusive calendar day
	To         time.Time // inclusive calendar day
	Types      []transaction.Type
	Currencies []string
}

// Source loads existing transactions for a Query.
type Source interface {
	FindTransactionsInRange(ctx context.Context, q Query) ([]transaction.Record, error)
}

// Match is an existing transaction shown next to a duplicate candidate.
type Match struct {
	TransactionID uuid.UUID        `json:"transactionId"`
	Date          time.Time        `json:"date"`
	Type          transaction.Type `json:"type"`
	Amount        decimal.Decimal  `json:"amount"`
	Currency      string           `json:"currency"`
	Description   string           `json:"description"`
	VendorName    *string          `json:"vendorName,omitempty"`
	ClientName    *string          `json:"clientName,omitempty"`
}

// Detector runs duplicate detection for a batch of candidates.
type Detector struct {
	source Source
	cfg    Config
}

// NewDetector creates a detector. A negative tolerance is treated as zero.
func NewDetector(source Source, cfg Config) *Detector {
	if cfg.AmountTolerance.IsNegative() {
		cfg.AmountTolerance = decimal.Zero
	}
	return &Detector{source: source, cfg: cfg}
}

// Config returns the effective configuration.
func (d *Detector) Config() Config {
	return d.cfg
}

// Detect returns, for each candidate, the existing transactions it may
// duplicate. The result is aligned with candidates; nil entries (rows that
// failed validation) get no matches. Existing records are loaded with a
// single range query.
func (d *Detector) Detect(ctx context.Context, tenantID uuid.UUID, candidates []*normalizer.Candidate) ([][]Match, error) {
	ctx, span := otel.Tracer("bookkeeper.import").Start(ctx, "dedup.Detect")
	defer span.End()

	matches := make([][]Match, len(candidates))

	q, ok := buildQuery(tenantID, candidates)
	if !ok {
		return matches, nil
	}
	span.SetAttributes(
		attribute.Int("import.candidates", len(candidates)),
		attribute.String("import.range_from", q.From.Format(time.DateOnly)),
		attribute.String("import.range_to", q.To.Format(time.DateOnly)),
	)

	existing, err := d.source.FindTransactionsInRange(ctx, q)
	if err != nil {
		span.RecordError(err)
		return nil, fmt.Errorf("failed to load existing transactions: %w", err)
	}
	span.SetAttributes(attribute.Int("import.existing", len(existing)))

	index := make(map[string][]transaction.Record, len(existing))
	for _, rec := range existing {
		k := key(rec.Date, rec.Type, rec.Currency)
		index[k] = append(index[k], rec)
	}

	for i, c := range candidates {
		if c == nil {
			continue
		}
		for _, rec := range index[key(c.Date, c.Type, c.Currency)] {
			if !d.amountMatches(c.Amount, rec.Amount) {
				continue
			}
			if d.cfg.MatchDescription && !strings.EqualFold(strings.TrimSpace(c.Description), strings.TrimSpace(rec.Description)) {
				continue
			}
			matches[i] = append(matches[i], Match{
				TransactionID: rec.ID,
				Date:          transaction.Day(rec.Date),
				Type:          rec.Type,
				Amount:        rec.Amount,
				Currency:      rec.Currency,
				Description:   rec.Description,
				VendorName:    rec.VendorName,
				ClientName:    rec.ClientName,
			})
		}
		sortMatches(c.Amount, matches[i])
	}

	return matches, nil
}

func (d *Detector) amountMatches(a, b decimal.Decimal) bool {
	return a.Sub(b).Abs().LessThanOrEqual(d.cfg.AmountTolerance)
}

func buildQuery(tenantID uuid.UUID, candidates []*normalizer.Candidate) (Query, bool) {
	q := Query{TenantID: tenantID}
	types := map[transaction.Type]struct{}{}
	currencies := map[string]struct{}{}
	found := false

	for _, c := range candidates {
		if c == nil {
			continue
		}
		day := transaction.Day(c.Date)
		if !found || day.Before(q.From) {
			q.From = day
		}
		if !found || day.After(q.To) {
			q.To = day
		}
		found = true
		types[c.Type] = struct{}{}
		currencies[c.Currency] = struct{}{}
	}
	if !found {
		return q, false
	}

	for t := range types {
		q.Types = append(q.Types, t)
	}
	for c := range currencies {
		q.Currencies = append(q.Currencies, c)
	}
	sort.Slice(q.Types, func(i, j int) bool { return q.Types[i] < q.Types[j] })
	sort.Strings(q.Currencies)
	return q, true
}

func key(date time.Time, t transaction.Type, currency string) string {
	return transaction.Day(date).Format(time.DateOnly) + "|" + string(t) + "|" + strings.ToUpper(currency)
}

// closest amounts first, then by id for a stable order
func sortMatches(amount decimal.Decimal, ms []Match) {
	sort.SliceStable(ms, func(i, j int) bool {
		di := amount.Sub(ms[i].Amount).Abs()
		dj := amount.Sub(ms[j].Amount).Abs()
		if !di.Equal(dj) {
			return di.LessThan(dj)
		}
		return ms[i].TransactionID.String() < ms[j].TransactionID.String()
	})
}
