package service

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/FACorreiaa/bookkeeper/internal/domain/import/decision"
	"github.com/FACorreiaa/bookkeeper/internal/domain/import/mapping"
	"github.com/FACorreiaa/bookkeeper/internal/domain/import/normalizer"
	"github.com/FACorreiaa/bookkeeper/internal/domain/import/parser"
	"github.com/FACorreiaa/bookkeeper/internal/domain/import/repository"
	"github.com/FACorreiaa/bookkeeper/pkg/metrics"
)

var errNoStorage = errors.New("document storage is not configured")

// CommitRequest carries the same file and mapping as the preview plus the
// decisions for duplicate candidates. Rows without a decision are skipped.
type CommitRequest struct {
	Upload    Upload
	Config    mapping.Config
	Decisions decision.Ledger
	UserID    *uuid.UUID
}

// RowFailure is a row that should have been imported but could not be.
type RowFailure struct {
	RowIndex int    `json:"rowIndex"`
	Reason   string `json:"reason"`
}

// CommitResult reports what happened to every row.
type CommitResult struct {
	ImportedCount         int          `json:"importedCount"`
	SkippedInvalidCount   int          `json:"skippedInvalidCount"`
	SkippedDuplicateCount int          `json:"skippedDuplicateCount"`
	FailedCount           int          `json:"failedCount"`
	Failures              []RowFailure `json:"failures,omitempty"`
	// DocumentFailures are imported rows whose document could not be linked.
	// The transaction itself was kept.
	DocumentFailures []RowFailure `json:"documentFailures,omitempty"`
	TransactionIDs   []uuid.UUID  `json:"transactionIds,omitempty"`
}

// Commit re-derives every row from the uploaded file, applies the decision
// ledger and persists the rows that qualify. Nothing from a previous preview
// is trusted. Each row is written in its own transaction, so one failing
// row does not undo the others; rows already written stay written.
func (s *ImportService) Commit(ctx context.Context, tenantID uuid.UUID, req CommitRequest) (*CommitResult, error) {
	// A client that disconnects mid-commit must not leave half a batch
	// depending on which row the cancellation hit.
	ctx = context.WithoutCancel(ctx)

	mode := string(req.Upload.Mode)
	ctx, span := tracer.Start(ctx, "import.Commit", trace.WithAttributes(
		attribute.String("import.mode", mode),
		attribute.Int("import.decisions", len(req.Decisions)),
	))
	defer span.End()

	start := time.Now()
	defer func() {
		metrics.CommitDuration.WithLabelValues(mode).Observe(time.Since(start).Seconds())
	}()

	ev, err := s.evaluate(ctx, tenantID, req.Upload, req.Config)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		metrics.CommitsTotal.WithLabelValues(mode, resultLabel(err)).Inc()
		return nil, err
	}

	result := &CommitResult{}
	for i := range ev.rows {
		r := &ev.rows[i]
		outcome := req.Decisions.Resolve(r.row.Index, r.valid(), r.duplicate())
		metrics.RowsTotal.WithLabelValues(string(outcome)).Inc()

		switch outcome {
		case decision.OutcomeSkipInvalid:
			result.SkippedInvalidCount++
			continue
		case decision.OutcomeSkipDuplicate:
			result.SkippedDuplicateCount++
			continue
		}

		txID, err := s.repo.InsertTransaction(ctx, newTransaction(tenantID, r.candidate, ev.resolved.TemplateID, req.UserID))
		if err != nil {
			s.logger.WarnContext(ctx, "failed to import row",
				"tenant_id", tenantID,
				"row", r.row.Index,
				"error", err)
			metrics.RowsTotal.WithLabelValues("failed").Inc()
			result.FailedCount++
			result.Failures = append(result.Failures, RowFailure{RowIndex: r.row.Index, Reason: err.Error()})
			continue
		}
		result.ImportedCount++
		result.TransactionIDs = append(result.TransactionIDs, txID)

		if ev.archive == nil || r.candidate.DocumentPath == nil {
			continue
		}
		if err := s.attachDocument(ctx, tenantID, txID, ev.archive, *r.candidate.DocumentPath); err != nil {
			s.logger.WarnContext(ctx, "failed to link document",
				"tenant_id", tenantID,
				"row", r.row.Index,
				"transaction_id", txID,
				"path", *r.candidate.DocumentPath,
				"error", err)
			metrics.DocumentsTotal.WithLabelValues("failed").Inc()
			result.DocumentFailures = append(result.DocumentFailures, RowFailure{RowIndex: r.row.Index, Reason: err.Error()})
			continue
		}
		metrics.DocumentsTotal.WithLabelValues("linked").Inc()
	}

	label := "ok"
	if result.FailedCount > 0 {
		label = "partial"
	}
	metrics.CommitsTotal.WithLabelValues(mode, label).Inc()
	span.SetAttributes(
		attribute.Int("import.imported", result.ImportedCount),
		attribute.Int("import.skipped_invalid", result.SkippedInvalidCount),
		attribute.Int("import.skipped_duplicate", result.SkippedDuplicateCount),
		attribute.Int("import.failed", result.FailedCount),
	)
	s.logger.InfoContext(ctx, "import committed",
		"tenant_id", tenantID,
		"mode", mode,
		"imported", result.ImportedCount,
		"skipped_invalid", result.SkippedInvalidCount,
		"skipped_duplicate", result.SkippedDuplicateCount,
		"failed", result.FailedCount,
		"document_failures", len(result.DocumentFailures),
		"duration", time.Since(start))

	return result, nil
}

func newTransaction(tenantID uuid.UUID, c *normalizer.Candidate, templateID, userID *uuid.UUID) *repository.NewTransaction {
	return &repository.NewTransaction{
		TenantID:          tenantID,
		AccountID:         c.AccountID,
		CategoryID:        c.CategoryID,
		Type:              c.Type,
		Date:              c.Date,
		Amount:            c.Amount,
		Currency:          c.Currency,
		Description:       c.Description,
		VendorName:        c.VendorName,
		ClientName:        c.ClientName,
		Notes:             c.Notes,
		Tags:              c.Tags,
		SecondaryAmount:   c.SecondaryAmount,
		SecondaryCurrency: c.SecondaryCurrency,
		TemplateID:        templateID,
		CreatedBy:         userID,
	}
}

// attachDocument stores an archive document and links it to txID. The
// journal entry is written before the object so a crash between the two
// steps leaves a pending entry for the sweeper instead of an untracked file.
func (s *ImportService) attachDocument(ctx context.Context, tenantID, txID uuid.UUID, archive *parser.Archive, path string) error {
	if s.storage == nil {
		return errNoStorage
	}

	doc, err := archive.Document(path)
	if err != nil {
		return fmt.Errorf("failed to read document: %w", err)
	}

	uploadID, err := s.repo.BeginDocumentUpload(ctx, tenantID, txID, doc.Path)
	if err != nil {
		return fmt.Errorf("failed to record document upload: %w", err)
	}

	info, err := s.storage.Upload(ctx, tenantID, doc.Name, doc.ContentType, bytes.NewReader(doc.Data))
	if err != nil {
		s.discardUpload(ctx, uploadID, "")
		return fmt.Errorf("failed to store document: %w", err)
	}

	if err := s.repo.RecordDocumentStored(ctx, uploadID, info.Key); err != nil {
		s.discardUpload(ctx, uploadID, info.Key)
		return fmt.Errorf("failed to record stored document: %w", err)
	}

	_, err = s.repo.LinkDocument(ctx, uploadID, repository.StoredDocument{
		TenantID:      tenantID,
		TransactionID: txID,
		StorageKey:    info.Key,
		FileName:      doc.Name,
		ContentType:   doc.ContentType,
		SizeBytes:     info.Size,
	})
	if err != nil {
		s.discardUpload(ctx, uploadID, info.Key)
		return fmt.Errorf("failed to link document: %w", err)
	}
	return nil
}

// discardUpload undoes a half-finished document upload. Failures are left
// for the sweeper.
func (s *ImportService) discardUpload(ctx context.Context, uploadID uuid.UUID, key string) {
	if key != "" {
		if err := s.storage.Delete(ctx, key); err != nil {
			s.logger.WarnContext(ctx, "failed to delete orphaned document", "key", key, "error", err)
			return
		}
	}
	if err := s.repo.DeleteDocumentUpload(ctx, uploadID); err != nil {
		s.logger.WarnContext(ctx, "failed to delete document journal entry", "upload_id", uploadID, "error", err)
	}
}
