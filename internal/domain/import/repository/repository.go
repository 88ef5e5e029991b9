// Package repository persists import templates, imported transactions and the
// document upload journal.
package repository

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/shopspring/decimal"

	"github.com/FACorreiaa/bookkeeper/internal/domain/import/dedup"
	"github.com/FACorreiaa/bookkeeper/internal/domain/import/mapping"
	"github.com/FACorreiaa/bookkeeper/internal/domain/transaction"
)

// DBTX is satisfied by *pgxpool.Pool and by pgxmock pools.
type DBTX interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
	Begin(ctx context.Context) (pgx.Tx, error)
}

// NewTransaction is one validated row ready to be written.
type NewTransaction struct {
	TenantID          uuid.UUID
	AccountID         uuid.UUID
	CategoryID        uuid.UUID
	Type              transaction.Type
	Date              time.Time
	Amount            decimal.Decimal
	Currency          string
	Description       string
	VendorName        *string
	ClientName        *string
	Notes             *string
	Tags              []string
	SecondaryAmount   *decimal.Decimal
	SecondaryCurrency *string
	TemplateID        *uuid.UUID
	CreatedBy         *uuid.UUID
}

// UploadStatus is the journal state of an archive document.
type UploadStatus string

const (
	UploadPending UploadStatus = "pending"
	UploadLinked  UploadStatus = "linked"
)

// DocumentUpload is a journal entry for one archive document.
type DocumentUpload struct {
	ID            uuid.UUID
	TenantID      uuid.UUID
	TransactionID uuid.UUID
	ArchivePath   string
	StorageKey    *string
	Status        UploadStatus
	CreatedAt     time.Time
}

// StoredDocument describes an object already written to storage.
type StoredDocument struct {
	TenantID      uuid.UUID
	TransactionID uuid.UUID
	StorageKey    string
	FileName      string
	ContentType   string
	SizeBytes     int64
}

// ImportRepository defines the persistence operations the import service needs.
type ImportRepository interface {
	// Templates
	CreateTemplate(ctx context.Context, t *mapping.Template) error
	GetTemplate(ctx context.Context, tenantID, templateID uuid.UUID) (*mapping.Template, error)
	ListTemplates(ctx context.Context, tenantID uuid.UUID) ([]*mapping.Template, error)

	// Reference data
	GetBaseCurrency(ctx context.Context, tenantID uuid.UUID) (string, error)
	ListCategories(ctx context.Context, tenantID uuid.UUID) ([]transaction.Category, error)
	ListAccounts(ctx context.Context, tenantID uuid.UUID) ([]transaction.Account, error)

	// Transactions
	FindTransactionsInRange(ctx context.Context, q dedup.Query) ([]transaction.Record, error)
	InsertTransaction(ctx context.Context, tx *NewTransaction) (uuid.UUID, error)

	// Document journal
	BeginDocumentUpload(ctx context.Context, tenantID, transactionID uuid.UUID, archivePath string) (uuid.UUID, error)
	RecordDocumentStored(ctx context.Context, uploadID uuid.UUID, storageKey string) error
	LinkDocument(ctx context.Context, uploadID uuid.UUID, doc StoredDocument) (uuid.UUID, error)
	ListStalePendingUploads(ctx context.Context, olderThan time.Time, limit int) ([]DocumentUpload, error)
	DeleteDocumentUpload(ctx context.Context, uploadID uuid.UUID) error
}
