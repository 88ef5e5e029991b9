package service

import (
	"context"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/FACorreiaa/bookkeeper/internal/domain/import/dedup"
	"github.com/FACorreiaa/bookkeeper/internal/domain/import/importerr"
	"github.com/FACorreiaa/bookkeeper/internal/domain/import/mapping"
	"github.com/FACorreiaa/bookkeeper/internal/domain/import/normalizer"
	"github.com/FACorreiaa/bookkeeper/internal/domain/transaction"
	"github.com/FACorreiaa/bookkeeper/pkg/metrics"
	"github.com/FACorreiaa/bookkeeper/pkg/money"
)

// RowStatus is the validation state of a previewed row.
type RowStatus string

const (
	RowValid   RowStatus = "valid"
	RowInvalid RowStatus = "invalid"
)

// PreviewRequest asks for one page of a preview.
type PreviewRequest struct {
	Upload   Upload
	Config   mapping.Config
	Page     int // 1-based
	PageSize int
}

// NormalizedRow is the display form of a validated candidate.
type NormalizedRow struct {
	Type              transaction.Type `json:"type"`
	Date              string           `json:"date"` // YYYY-MM-DD
	Amount            string           `json:"amount"`
	Currency          string           `json:"currency"`
	Description       string           `json:"description"`
	CategoryName      string           `json:"categoryName"`
	AccountName       string           `json:"accountName"`
	VendorName        *string          `json:"vendorName,omitempty"`
	ClientName        *string          `json:"clientName,omitempty"`
	Notes             *string          `json:"notes,omitempty"`
	Tags              []string         `json:"tags,omitempty"`
	SecondaryAmount   *string          `json:"secondaryAmount,omitempty"`
	SecondaryCurrency *string          `json:"secondaryCurrency,omitempty"`
	DocumentPath      *string          `json:"documentPath,omitempty"`
}

// PreviewRow is one row of the review table.
type PreviewRow struct {
	RowIndex             int                  `json:"rowIndex"`
	Line                 int                  `json:"line"`
	RawCells             []string             `json:"rawCells"`
	Status               RowStatus            `json:"status"`
	Errors               []importerr.RowError `json:"errors,omitempty"`
	Warnings             []string             `json:"warnings,omitempty"`
	Normalized           *NormalizedRow       `json:"normalized,omitempty"`
	IsDuplicateCandidate bool                 `json:"isDuplicateCandidate"`
	DuplicateMatches     []dedup.Match        `json:"duplicateMatches,omitempty"`
}

// Summary counts rows across the whole file, not only the current page.
type Summary struct {
	TotalRows           int `json:"totalRows"`
	ValidRows           int `json:"validRows"`
	InvalidRows         int `json:"invalidRows"`
	DuplicateCandidates int `json:"duplicateCandidates"`
}

// Pagination describes the returned window.
type Pagination struct {
	Page       int `json:"page"`
	PageSize   int `json:"pageSize"`
	TotalPages int `json:"totalPages"`
}

// PreviewResult is the review table for one file.
type PreviewResult struct {
	Headers    []string     `json:"headers"`
	Rows       []PreviewRow `json:"rows"`
	Summary    Summary      `json:"summary"`
	Pagination Pagination   `json:"pagination"`
	// DuplicateCandidates lists every flagged row in the file so the user can
	// decide on all of them without paging.
	DuplicateCandidates []PreviewRow `json:"duplicateCandidates"`
	TemplateID          *uuid.UUID   `json:"templateId,omitempty"`
}

// Preview runs the whole pipeline without writing anything. Calling it twice
// with the same input and unchanged data returns the same result.
func (s *ImportService) Preview(ctx context.Context, tenantID uuid.UUID, req PreviewRequest) (*PreviewResult, error) {
	ctx, span := tracer.Start(ctx, "import.Preview", trace.WithAttributes(
		attribute.String("import.mode", string(req.Upload.Mode)),
		attribute.Int("import.bytes", len(req.Upload.Content)),
	))
	defer span.End()

	start := time.Now()
	ev, err := s.evaluate(ctx, tenantID, req.Upload, req.Config)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		metrics.PreviewsTotal.WithLabelValues(string(req.Upload.Mode), resultLabel(err)).Inc()
		return nil, err
	}
	metrics.PreviewsTotal.WithLabelValues(string(req.Upload.Mode), "ok").Inc()

	result := &PreviewResult{
		Headers:             ev.headers,
		TemplateID:          ev.resolved.TemplateID,
		DuplicateCandidates: []PreviewRow{},
	}

	all := make([]PreviewRow, len(ev.rows))
	for i := range ev.rows {
		r := &ev.rows[i]
		all[i] = previewRow(r)

		result.Summary.TotalRows++
		if r.valid() {
			result.Summary.ValidRows++
		} else {
			result.Summary.InvalidRows++
		}
		if r.duplicate() {
			result.Summary.DuplicateCandidates++
			result.DuplicateCandidates = append(result.DuplicateCandidates, all[i])
		}
	}

	page, size := normalizePage(req.Page, req.PageSize)
	result.Pagination = Pagination{
		Page:       page,
		PageSize:   size,
		TotalPages: (len(all) + size - 1) / size,
	}
	from := (page - 1) * size
	if from > len(all) {
		from = len(all)
	}
	to := from + size
	if to > len(all) {
		to = len(all)
	}
	result.Rows = all[from:to]

	span.SetAttributes(
		attribute.Int("import.rows", result.Summary.TotalRows),
		attribute.Int("import.invalid", result.Summary.InvalidRows),
		attribute.Int("import.duplicates", result.Summary.DuplicateCandidates),
	)
	s.logger.DebugContext(ctx, "preview built",
		"tenant_id", tenantID,
		"rows", result.Summary.TotalRows,
		"invalid", result.Summary.InvalidRows,
		"duplicates", result.Summary.DuplicateCandidates,
		"duration", time.Since(start))

	return result, nil
}

func previewRow(r *evaluatedRow) PreviewRow {
	row := PreviewRow{
		RowIndex:             r.row.Index,
		Line:                 r.row.Line,
		RawCells:             r.row.Cells,
		Status:               RowValid,
		Errors:               r.errors,
		IsDuplicateCandidate: r.duplicate(),
		DuplicateMatches:     r.matches,
	}
	if !r.valid() {
		row.Status = RowInvalid
		return row
	}
	row.Normalized = normalizedRow(r.candidate)
	row.Warnings = r.candidate.Warnings
	return row
}

func normalizedRow(c *normalizer.Candidate) *NormalizedRow {
	n := &NormalizedRow{
		Type:              c.Type,
		Date:              c.Date.Format(time.DateOnly),
		Amount:            money.Format(c.Amount, c.Currency),
		Currency:          c.Currency,
		Description:       c.Description,
		CategoryName:      c.CategoryName,
		AccountName:       c.AccountName,
		VendorName:        c.VendorName,
		ClientName:        c.ClientName,
		Notes:             c.Notes,
		Tags:              c.Tags,
		SecondaryCurrency: c.SecondaryCurrency,
		DocumentPath:      c.DocumentPath,
	}
	if c.SecondaryAmount != nil && c.SecondaryCurrency != nil {
		amount := money.Format(*c.SecondaryAmount, *c.SecondaryCurrency)
		n.SecondaryAmount = &amount
	}
	return n
}

func normalizePage(page, size int) (int, int) {
	if page < 1 {
		page = 1
	}
	switch {
	case size <= 0:
		size = DefaultPageSize
	case size > MaxPageSize:
		size = MaxPageSize
	}
	return page, size
}

// resultLabel buckets an error for metrics.
func resultLabel(err error) string {
	switch {
	case err == nil:
		return "ok"
	case importerr.IsParse(err):
		return "parse_error"
	case importerr.IsMapping(err):
		return "mapping_error"
	default:
		return "error"
	}
}
