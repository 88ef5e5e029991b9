package main

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/FACorreiaa/bookkeeper/cmd/api"
	"github.com/FACorreiaa/bookkeeper/internal/domain/import/handler"
	importrepo "github.com/FACorreiaa/bookkeeper/internal/domain/import/repository"
	importservice "github.com/FACorreiaa/bookkeeper/internal/domain/import/service"
	"github.com/FACorreiaa/bookkeeper/pkg/config"
	"github.com/FACorreiaa/bookkeeper/pkg/db"
)

// importer is what the commands drive.
type importer interface {
	handler.ImportService
	SweepOrphanedDocuments(ctx context.Context, grace time.Duration) (int, error)
}

var _ importer = (*importservice.ImportService)(nil)

// openService opens the database and storage named by the environment and
// returns the service with a func releasing them.
func openService(ctx context.Context, logger *slog.Logger) (importer, func(), error) {
	cfg := config.FromEnv()
	if err := cfg.Storage.Validate(); err != nil {
		return nil, nil, err
	}

	database, err := db.New(db.Config{DSN: cfg.Database.DSN(), MaxConns: 4}, logger)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to connect to database: %w", err)
	}

	store, err := api.NewStorage(ctx, cfg.Storage)
	if err != nil {
		database.Close()
		return nil, nil, fmt.Errorf("failed to init file storage: %w", err)
	}

	svcCfg, err := api.ServiceConfig(cfg.Import)
	if err != nil {
		database.Close()
		return nil, nil, err
	}

	svc := importservice.NewImportService(importrepo.NewPostgresImportRepository(database.Pool), store, logger, svcCfg)
	closeFn := func() {
		if c, ok := store.(interface{ Close() error }); ok {
			_ = c.Close()
		}
		database.Close()
	}
	return svc, closeFn, nil
}

func parseOptionalUUID(s string) (*uuid.UUID, error) {
	if s == "" {
		return nil, nil
	}
	id, err := uuid.Parse(s)
	if err != nil {
		return nil, err
	}
	return &id, nil
}
