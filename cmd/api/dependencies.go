package api

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"time"

	"github.com/shopspring/decimal"

	importhandler "github.com/FACorreiaa/bookkeeper/internal/domain/import/handler"
	importrepo "github.com/FACorreiaa/bookkeeper/internal/domain/import/repository"
	importservice "github.com/FACorreiaa/bookkeeper/internal/domain/import/service"

	"github.com/FACorreiaa/bookkeeper/pkg/config"
	"github.com/FACorreiaa/bookkeeper/pkg/cron"
	"github.com/FACorreiaa/bookkeeper/pkg/db"
	"github.com/FACorreiaa/bookkeeper/pkg/storage"
)

// Dependencies holds all application dependencies
type Dependencies struct {
	Config *config.Config
	DB     *db.DB
	Logger *slog.Logger

	// Repositories
	ImportRepo importrepo.ImportRepository

	// Services
	FileStorage   storage.Storage
	ImportService *importservice.ImportService
	Scheduler     *cron.Scheduler

	// Handlers
	ImportHandler *importhandler.ImportHandler
}

// InitDependencies initializes all application dependencies
func InitDependencies(ctx context.Context, cfg *config.Config, logger *slog.Logger) (*Dependencies, error) {
	deps := &Dependencies{
		Config: cfg,
		Logger: logger,
	}

	// Initialize database
	if err := deps.initDatabase(); err != nil {
		deps.Cleanup()
		return nil, fmt.Errorf("failed to init database: %w", err)
	}

	// Initialize repositories
	if err := deps.initRepositories(); err != nil {
		deps.Cleanup()
		return nil, fmt.Errorf("failed to init repositories: %w", err)
	}

	// Initialize services
	if err := deps.initServices(ctx); err != nil {
		deps.Cleanup()
		return nil, fmt.Errorf("failed to init services: %w", err)
	}

	// Initialize handlers
	if err := deps.initHandlers(); err != nil {
		deps.Cleanup()
		return nil, fmt.Errorf("failed to init handlers: %w", err)
	}

	logger.Info("all dependencies initialized successfully")

	return deps, nil
}

// initDatabase initializes the database connection and runs migrations
func (d *Dependencies) initDatabase() error {
	database, err := db.New(db.Config{
		DSN:             d.Config.Database.DSN(),
		MaxConns:        25,
		MinConns:        5,
		MaxConnLifetime: 5 * time.Minute,
		MaxConnIdleTime: 10 * time.Minute,
	}, d.Logger)
	if err != nil {
		return err
	}

	d.DB = database

	// Run migrations
	if err := d.DB.RunMigrations(); err != nil {
		return fmt.Errorf("failed to run migrations: %w", err)
	}

	d.Logger.Info("database connected and migrations completed successfully")
	return nil
}

// initRepositories initializes all repository layer dependencies
func (d *Dependencies) initRepositories() error {
	d.ImportRepo = importrepo.NewPostgresImportRepository(d.DB.Pool)

	d.Logger.Info("repositories initialized")
	return nil
}

// initServices initializes all service layer dependencies
func (d *Dependencies) initServices(ctx context.Context) error {
	fileStorage, err := NewStorage(ctx, d.Config.Storage)
	if err != nil {
		return fmt.Errorf("failed to init file storage: %w", err)
	}
	d.FileStorage = fileStorage

	svcCfg, err := ServiceConfig(d.Config.Import)
	if err != nil {
		return err
	}
	d.ImportService = importservice.NewImportService(d.ImportRepo, d.FileStorage, d.Logger, svcCfg)

	// Orphaned archive documents are swept on a schedule
	d.Scheduler = cron.NewScheduler(d.ImportService, cron.Config{
		SweepSchedule: d.Config.Import.SweepSchedule,
		SweepGrace:    d.Config.Import.SweepGrace,
	}, d.Logger)

	d.Logger.Info("services initialized",
		slog.String("storage", d.Config.Storage.Type),
		slog.String("duplicate_tolerance", svcCfg.Dedup.AmountTolerance.String()),
	)
	return nil
}

// initHandlers initializes all handler dependencies
func (d *Dependencies) initHandlers() error {
	d.ImportHandler = importhandler.NewImportHandler(d.ImportService, d.Logger)

	d.Logger.Info("handlers initialized")
	return nil
}

// Cleanup closes all resources
func (d *Dependencies) Cleanup() {
	if c, ok := d.FileStorage.(io.Closer); ok {
		if err := c.Close(); err != nil {
			d.Logger.Warn("failed to close file storage", slog.Any("error", err))
		}
	}
	if d.DB != nil {
		d.DB.Close()
	}
	d.Logger.Info("cleanup completed")
}

// NewStorage opens the configured document store.
func NewStorage(ctx context.Context, cfg config.StorageConfig) (storage.Storage, error) {
	return storage.New(ctx, &storage.Config{
		Type:               storage.StorageType(cfg.Type),
		LocalPath:          cfg.LocalPath,
		GCSBucket:          cfg.GCSBucket,
		GCSCredentialsFile: cfg.GCSCredentialsFile,
		GCSEndpoint:        cfg.GCSEndpoint,
	})
}

// ServiceConfig turns the import settings into service options.
func ServiceConfig(cfg config.ImportConfig) (importservice.Config, error) {
	svcCfg := importservice.DefaultConfig()
	if cfg.DuplicateTolerance != "" {
		tol, err := decimal.NewFromString(cfg.DuplicateTolerance)
		if err != nil {
			return svcCfg, fmt.Errorf("invalid duplicate tolerance %q: %w", cfg.DuplicateTolerance, err)
		}
		if tol.IsNegative() {
			return svcCfg, fmt.Errorf("duplicate tolerance must not be negative, got %s", tol)
		}
		svcCfg.Dedup.AmountTolerance = tol
	}
	svcCfg.Dedup.MatchDescription = cfg.MatchDescription
	if cfg.MaxUploadBytes > 0 {
		svcCfg.MaxUploadBytes = cfg.MaxUploadBytes
	}
	if cfg.MaxArchiveEntry > 0 {
		svcCfg.MaxArchiveEntry = cfg.MaxArchiveEntry
	}
	return svcCfg, nil
}
