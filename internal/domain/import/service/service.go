// Package service provides the import orchestration logic.
package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"runtime"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel"

	"github.com/FACorreiaa/bookkeeper/internal/domain/import/dedup"
	"github.com/FACorreiaa/bookkeeper/internal/domain/import/importerr"
	"github.com/FACorreiaa/bookkeeper/internal/domain/import/mapping"
	"github.com/FACorreiaa/bookkeeper/internal/domain/import/normalizer"
	"github.com/FACorreiaa/bookkeeper/internal/domain/import/parser"
	"github.com/FACorreiaa/bookkeeper/internal/domain/import/repository"
	"github.com/FACorreiaa/bookkeeper/internal/domain/import/wizard"
	"github.com/FACorreiaa/bookkeeper/pkg/storage"
)

var tracer = otel.Tracer("bookkeeper.import")

var ErrUnknownMode = errors.New("unknown import mode")

const (
	DefaultPageSize = 50
	MaxPageSize     = 500

	// DefaultMaxUploadBytes bounds the raw upload.
	DefaultMaxUploadBytes int64 = 50 << 20

	sweepBatchSize = 200
)

// Config tunes the service.
type Config struct {
	Dedup           dedup.Config
	MaxUploadBytes  int64
	MaxArchiveEntry int64
}

// DefaultConfig returns the settings used when nothing is configured.
func DefaultConfig() Config {
	return Config{
		Dedup:           dedup.DefaultConfig(),
		MaxUploadBytes:  DefaultMaxUploadBytes,
		MaxArchiveEntry: parser.DefaultMaxEntryBytes,
	}
}

// Upload is the file a request carries. The content is sent again on every
// call; the server keeps no session state.
type Upload struct {
	Mode     wizard.Mode
	FileName string
	Content  []byte
}

// ImportService orchestrates analysis, preview and commit of uploaded files
type ImportService struct {
	repo     repository.ImportRepository
	storage  storage.Storage
	resolver *mapping.Resolver
	detector *dedup.Detector
	cfg      Config
	logger   *slog.Logger
	now      func() time.Time
}

// NewImportService creates a new import service. store may be nil when
// archive uploads are not offered; their documents then fail to link.
func NewImportService(repo repository.ImportRepository, store storage.Storage, logger *slog.Logger, cfg Config) *ImportService {
	if cfg.MaxUploadBytes <= 0 {
		cfg.MaxUploadBytes = DefaultMaxUploadBytes
	}
	if cfg.MaxArchiveEntry <= 0 {
		cfg.MaxArchiveEntry = parser.DefaultMaxEntryBytes
	}
	return &ImportService{
		repo:     repo,
		storage:  store,
		resolver: mapping.NewResolver(repo),
		detector: dedup.NewDetector(repo, cfg.Dedup),
		cfg:      cfg,
		logger:   logger,
		now:      time.Now,
	}
}

// evaluatedRow is one data row after normalization and duplicate detection.
type evaluatedRow struct {
	row       parser.Row
	candidate *normalizer.Candidate
	errors    []importerr.RowError
	matches   []dedup.Match
}

func (r *evaluatedRow) valid() bool     { return r.candidate != nil }
func (r *evaluatedRow) duplicate() bool { return len(r.matches) > 0 }

// evaluation is the deterministic result of running a file through the
// pipeline. Preview and commit both build it from scratch.
type evaluation struct {
	headers  []string
	resolved *mapping.Resolved
	archive  *parser.Archive
	rows     []evaluatedRow
}

// evaluate resolves the mapping, parses the file, binds headers, normalizes
// every row and runs one batched duplicate lookup. File-level problems abort;
// row problems are recorded on the row.
func (s *ImportService) evaluate(ctx context.Context, tenantID uuid.UUID, upload Upload, cfg mapping.Config) (*evaluation, error) {
	if !upload.Mode.Valid() {
		return nil, fmt.Errorf("%w %q", ErrUnknownMode, upload.Mode)
	}
	if upload.Mode == wizard.ModeArchive {
		if _, ok := cfg.(mapping.Templated); !ok {
			return nil, importerr.ErrTemplateRequired
		}
	}
	if int64(len(upload.Content)) > s.cfg.MaxUploadBytes {
		return nil, &importerr.ParseError{Message: fmt.Sprintf("file exceeds the %d byte upload limit", s.cfg.MaxUploadBytes)}
	}

	resolved, err := s.resolver.Resolve(ctx, tenantID, cfg)
	if err != nil {
		return nil, err
	}

	ev := &evaluation{resolved: resolved}
	table, err := s.load(upload, resolved.Options, ev)
	if err != nil {
		return nil, err
	}
	ev.headers = table.Headers

	binding, err := resolved.Bind(table.Headers)
	if err != nil {
		return nil, err
	}

	categories, err := s.repo.ListCategories(ctx, tenantID)
	if err != nil {
		return nil, fmt.Errorf("failed to load categories: %w", err)
	}
	accounts, err := s.repo.ListAccounts(ctx, tenantID)
	if err != nil {
		return nil, fmt.Errorf("failed to load accounts: %w", err)
	}

	// A nil *parser.Archive must not reach the normalizer as a non-nil interface.
	var documents normalizer.DocumentIndex
	if ev.archive != nil {
		documents = ev.archive
	}
	norm := normalizer.New(binding, normalizer.NewLookup(categories, accounts), documents)
	ev.rows = normalizeRows(ctx, norm, table.Rows)
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	candidates := make([]*normalizer.Candidate, len(ev.rows))
	for i := range ev.rows {
		candidates[i] = ev.rows[i].candidate
	}
	matches, err := s.detector.Detect(ctx, tenantID, candidates)
	if err != nil {
		return nil, fmt.Errorf("failed to detect duplicates: %w", err)
	}
	for i := range ev.rows {
		ev.rows[i].matches = matches[i]
	}

	return ev, nil
}

// load parses the upload according to its mode. Workbooks are recognised by
// content, whatever the file is called.
func (s *ImportService) load(upload Upload, opts mapping.ParsingOptions, ev *evaluation) (*parser.Table, error) {
	popts := parser.Options{
		Delimiter:     opts.DelimiterRune(),
		HasHeaders:    opts.HasHeaders,
		MaxEntryBytes: s.cfg.MaxArchiveEntry,
	}

	switch {
	case upload.Mode == wizard.ModeArchive:
		archive, err := parser.OpenArchive(upload.Content, popts)
		if err != nil {
			return nil, err
		}
		ev.archive = archive
		return archive.Table, nil
	case parser.IsWorkbook(upload.Content):
		return parser.ParseWorkbook(upload.Content, popts)
	default:
		return parser.ParseDelimited(upload.Content, popts)
	}
}

// normalizeRows runs the normalizer over rows on a small worker pool. The
// output keeps the input order.
func normalizeRows(ctx context.Context, norm *normalizer.Normalizer, rows []parser.Row) []evaluatedRow {
	out := make([]evaluatedRow, len(rows))

	workerCount := runtime.GOMAXPROCS(0)
	if workerCount < 1 {
		workerCount = 1
	}
	if workerCount > len(rows) {
		workerCount = len(rows)
	}

	jobs := make(chan int, workerCount*4)
	var wg sync.WaitGroup
	for w := 0; w < workerCount; w++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for i := range jobs {
				row := rows[i]
				candidate, errs := norm.Normalize(row.Index, row.Cells)
				out[i] = evaluatedRow{row: row, candidate: candidate, errors: errs}
			}
		}()
	}

feed:
	for i := range rows {
		select {
		case jobs <- i:
		case <-ctx.Done():
			break feed
		}
	}
	close(jobs)
	wg.Wait()

	return out
}

