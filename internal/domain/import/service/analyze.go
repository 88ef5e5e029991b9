package service

import (
	"context"
	"fmt"

	"github.com/google/uuid"

	"github.com/FACorreiaa/bookkeeper/internal/domain/import/importerr"
	"github.com/FACorreiaa/bookkeeper/internal/domain/import/mapping"
	"github.com/FACorreiaa/bookkeeper/internal/domain/import/parser"
	"github.com/FACorreiaa/bookkeeper/internal/domain/import/sniffer"
	"github.com/FACorreiaa/bookkeeper/internal/domain/import/wizard"
)

// AnalyzeResult contains the result of analyzing an uploaded file
type AnalyzeResult struct {
	*sniffer.Analysis

	// DocumentCount is the number of attachments in an archive upload.
	DocumentCount int
	// MatchingTemplates are saved templates whose columns all exist in the file.
	MatchingTemplates []*mapping.Template
}

// AnalyzeFile detects the layout of an upload and suggests a mapping before
// the user has configured anything.
func (s *ImportService) AnalyzeFile(ctx context.Context, tenantID uuid.UUID, upload Upload) (*AnalyzeResult, error) {
	if !upload.Mode.Valid() {
		return nil, fmt.Errorf("%w %q", ErrUnknownMode, upload.Mode)
	}
	if int64(len(upload.Content)) > s.cfg.MaxUploadBytes {
		return nil, &importerr.ParseError{Message: fmt.Sprintf("file exceeds the %d byte upload limit", s.cfg.MaxUploadBytes)}
	}

	result := &AnalyzeResult{}
	var err error

	switch {
	case upload.Mode == wizard.ModeArchive:
		archive, openErr := parser.OpenArchive(upload.Content, parser.Options{
			Delimiter:     ',',
			HasHeaders:    true,
			MaxEntryBytes: s.cfg.MaxArchiveEntry,
		})
		if openErr != nil {
			return nil, openErr
		}
		result.DocumentCount = archive.Len()
		result.Analysis, err = sniffer.Analyze(parser.NormalizeEncoding(archive.Manifest))
	case parser.IsWorkbook(upload.Content):
		table, parseErr := parser.ParseWorkbook(upload.Content, parser.DefaultOptions())
		if parseErr != nil {
			return nil, parseErr
		}
		sample := make([][]string, 0, len(table.Rows))
		for _, r := range table.Rows {
			sample = append(sample, r.Cells)
		}
		result.Analysis = sniffer.AnalyzeConfig(sniffer.NewFileConfig(table.Headers, sample))
	default:
		result.Analysis, err = sniffer.Analyze(parser.NormalizeEncoding(upload.Content))
	}
	if err != nil {
		if importerr.IsParse(err) {
			return nil, err
		}
		return nil, &importerr.ParseError{Message: "could not detect the file layout", Err: err}
	}

	templates, err := s.repo.ListTemplates(ctx, tenantID)
	if err != nil {
		return nil, fmt.Errorf("failed to list templates: %w", err)
	}
	for _, tpl := range templates {
		resolved := &mapping.Resolved{Mapping: tpl.Mapping, Options: tpl.Options}
		if _, err := resolved.Bind(result.Config.Headers); err == nil {
			result.MatchingTemplates = append(result.MatchingTemplates, tpl)
		}
	}

	s.logger.DebugContext(ctx, "file analyzed",
		"tenant_id", tenantID,
		"fingerprint", result.Config.Fingerprint,
		"headers", len(result.Config.Headers),
		"matching_templates", len(result.MatchingTemplates))
	return result, nil
}
