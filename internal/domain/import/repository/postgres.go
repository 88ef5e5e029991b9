package repository

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"github.com/FACorreiaa/bookkeeper/internal/domain/import/dedup"
	"github.com/FACorreiaa/bookkeeper/internal/domain/import/mapping"
	"github.com/FACorreiaa/bookkeeper/internal/domain/transaction"
	"github.com/FACorreiaa/bookkeeper/pkg/money"
)

// PostgresImportRepository implements ImportRepository using PostgreSQL
type PostgresImportRepository struct {
	db DBTX
}

// NewPostgresImportRepository creates a new PostgreSQL import repository
func NewPostgresImportRepository(db DBTX) *PostgresImportRepository {
	return &PostgresImportRepository{db: db}
}

var _ ImportRepository = (*PostgresImportRepository)(nil)

// CreateTemplate inserts a template. Names are not unique.
func (r *PostgresImportRepository) CreateTemplate(ctx context.Context, t *mapping.Template) error {
	query := `
		INSERT INTO import_templates (id, tenant_id, name, column_mapping, parsing_options, created_by)
		VALUES ($1, $2, $3, $4, $5, $6)
		RETURNING created_at`

	if t.ID == uuid.Nil {
		t.ID = uuid.New()
	}

	mappingJSON, err := json.Marshal(t.Mapping)
	if err != nil {
		return fmt.Errorf("failed to encode column mapping: %w", err)
	}
	optionsJSON, err := json.Marshal(t.Options)
	if err != nil {
		return fmt.Errorf("failed to encode parsing options: %w", err)
	}

	err = r.db.QueryRow(ctx, query,
		t.ID,
		t.TenantID,
		t.Name,
		mappingJSON,
		optionsJSON,
		t.CreatedBy,
	).Scan(&t.CreatedAt)
	if err != nil {
		return fmt.Errorf("failed to create import template: %w", err)
	}
	return nil
}

const templateColumns = `id, tenant_id, name, column_mapping, parsing_options, created_by, created_at`

// GetTemplate retrieves a template owned by tenantID. Returns nil, nil if not found.
func (r *PostgresImportRepository) GetTemplate(ctx context.Context, tenantID, templateID uuid.UUID) (*mapping.Template, error) {
	query := `SELECT ` + templateColumns + `
		FROM import_templates
		WHERE id = $1 AND tenant_id = $2`

	t, err := scanTemplate(r.db.QueryRow(ctx, query, templateID, tenantID))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get import template: %w", err)
	}
	return t, nil
}

// ListTemplates returns the tenant's templates, newest first.
func (r *PostgresImportRepository) ListTemplates(ctx context.Context, tenantID uuid.UUID) ([]*mapping.Template, error) {
	query := `SELECT ` + templateColumns + `
		FROM import_templates
		WHERE tenant_id = $1
		ORDER BY created_at DESC, name`

	rows, err := r.db.Query(ctx, query, tenantID)
	if err != nil {
		return nil, fmt.Errorf("failed to list import templates: %w", err)
	}
	defer rows.Close()

	var templates []*mapping.Template
	for rows.Next() {
		t, err := scanTemplate(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan import template: %w", err)
		}
		templates = append(templates, t)
	}
	return templates, rows.Err()
}

func scanTemplate(row pgx.Row) (*mapping.Template, error) {
	var (
		t           mapping.Template
		mappingJSON []byte
		optionsJSON []byte
	)
	if err := row.Scan(
		&t.ID,
		&t.TenantID,
		&t.Name,
		&mappingJSON,
		&optionsJSON,
		&t.CreatedBy,
		&t.CreatedAt,
	); err != nil {
		return nil, err
	}
	if err := json.Unmarshal(mappingJSON, &t.Mapping); err != nil {
		return nil, fmt.Errorf("failed to decode column mapping: %w", err)
	}
	if err := json.Unmarshal(optionsJSON, &t.Options); err != nil {
		return nil, fmt.Errorf("failed to decode parsing options: %w", err)
	}
	return &t, nil
}

// ListCategories returns the tenant's categories.
func (r *PostgresImportRepository) ListCategories(ctx context.Context, tenantID uuid.UUID) ([]transaction.Category, error) {
	query := `SELECT id, name FROM categories WHERE tenant_id = $1 ORDER BY name`

	rows, err := r.db.Query(ctx, query, tenantID)
	if err != nil {
		return nil, fmt.Errorf("failed to list categories: %w", err)
	}
	defer rows.Close()

	var out []transaction.Category
	for rows.Next() {
		var c transaction.Category
		if err := rows.Scan(&c.ID, &c.Name); err != nil {
			return nil, fmt.Errorf("failed to scan category: %w", err)
		}
		out = append(out, c)
	}
	return out, rows.Err()
}

// ListAccounts returns the tenant's accounts.
func (r *PostgresImportRepository) ListAccounts(ctx context.Context, tenantID uuid.UUID) ([]transaction.Account, error) {
	query := `SELECT id, name, currency_code FROM accounts WHERE tenant_id = $1 ORDER BY name`

	rows, err := r.db.Query(ctx, query, tenantID)
	if err != nil {
		return nil, fmt.Errorf("failed to list accounts: %w", err)
	}
	defer rows.Close()

	var out []transaction.Account
	for rows.Next() {
		var a transaction.Account
		if err := rows.Scan(&a.ID, &a.Name, &a.CurrencyCode); err != nil {
			return nil, fmt.Errorf("failed to scan account: %w", err)
		}
		out = append(out, a)
	}
	return out, rows.Err()
}

// GetBaseCurrency returns the tenant's reporting currency, or "" for an
// unknown tenant.
func (r *PostgresImportRepository) GetBaseCurrency(ctx context.Context, tenantID uuid.UUID) (string, error) {
	var code string
	err := r.db.QueryRow(ctx, `SELECT base_currency FROM tenants WHERE id = $1`, tenantID).Scan(&code)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return "", nil
		}
		return "", fmt.Errorf("failed to get base currency: %w", err)
	}
	return code, nil
}

// FindTransactionsInRange loads every transaction that could be a duplicate
// of a batch in one query.
func (r *PostgresImportRepository) FindTransactionsInRange(ctx context.Context, q dedup.Query) ([]transaction.Record, error) {
	query := `
		SELECT t.id, t.tenant_id, t.account_id, t.type, t.posting_date, t.amount_minor,
		       t.currency_code, t.description, v.name, c.name
		FROM transactions t
		LEFT JOIN vendors v ON v.id = t.vendor_id
		LEFT JOIN clients c ON c.id = t.client_id
		WHERE t.tenant_id = $1
		  AND t.posting_date BETWEEN $2 AND $3
		  AND t.type = ANY($4)
		  AND t.currency_code = ANY($5)`

	types := make([]string, len(q.Types))
	for i, t := range q.Types {
		types[i] = string(t)
	}

	rows, err := r.db.Query(ctx, query, q.TenantID, q.From, q.To, types, q.Currencies)
	if err != nil {
		return nil, fmt.Errorf("failed to query transactions in range: %w", err)
	}
	defer rows.Close()

	var out []transaction.Record
	for rows.Next() {
		var (
			rec         transaction.Record
			txType      string
			amountMinor int64
		)
		if err := rows.Scan(
			&rec.ID,
			&rec.TenantID,
			&rec.AccountID,
			&txType,
			&rec.Date,
			&amountMinor,
			&rec.Currency,
			&rec.Description,
			&rec.VendorName,
			&rec.ClientName,
		); err != nil {
			return nil, fmt.Errorf("failed to scan transaction: %w", err)
		}
		rec.Type = transaction.Type(txType)
		rec.Amount = money.FromMinor(amountMinor, rec.Currency)
		out = append(out, rec)
	}
	return out, rows.Err()
}

// InsertTransaction writes one transaction in its own database transaction,
// creating the vendor or client on first use.
func (r *PostgresImportRepository) InsertTransaction(ctx context.Context, in *NewTransaction) (id uuid.UUID, err error) {
	amountMinor, err := money.ToMinor(in.Amount, in.Currency)
	if err != nil {
		return uuid.Nil, err
	}
	var secondaryMinor *int64
	if in.SecondaryAmount != nil && in.SecondaryCurrency != nil {
		m, err := money.ToMinor(*in.SecondaryAmount, *in.SecondaryCurrency)
		if err != nil {
			return uuid.Nil, err
		}
		secondaryMinor = &m
	}
	tags := in.Tags
	if tags == nil {
		tags = []string{}
	}

	tx, err := r.db.Begin(ctx)
	if err != nil {
		return uuid.Nil, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer func() {
		if err != nil {
			_ = tx.Rollback(ctx)
		}
	}()

	var vendorID, clientID *uuid.UUID
	if in.VendorName != nil {
		if vendorID, err = upsertParty(ctx, tx, "vendors", in.TenantID, *in.VendorName); err != nil {
			return uuid.Nil, err
		}
	}
	if in.ClientName != nil {
		if clientID, err = upsertParty(ctx, tx, "clients", in.TenantID, *in.ClientName); err != nil {
			return uuid.Nil, err
		}
	}

	query := `
		INSERT INTO transactions (
			id, tenant_id, account_id, category_id, vendor_id, client_id, type, posting_date,
			amount_minor, currency_code, description, notes, tags,
			secondary_amount_minor, secondary_currency, import_template_id, created_by
		)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16, $17)
		RETURNING id`

	err = tx.QueryRow(ctx, query,
		uuid.New(),
		in.TenantID,
		in.AccountID,
		in.CategoryID,
		vendorID,
		clientID,
		string(in.Type),
		transaction.Day(in.Date),
		amountMinor,
		in.Currency,
		in.Description,
		in.Notes,
		tags,
		secondaryMinor,
		in.SecondaryCurrency,
		in.TemplateID,
		in.CreatedBy,
	).Scan(&id)
	if err != nil {
		return uuid.Nil, fmt.Errorf("failed to insert transaction: %w", err)
	}

	if err = tx.Commit(ctx); err != nil {
		return uuid.Nil, fmt.Errorf("failed to commit transaction: %w", err)
	}
	return id, nil
}

// upsertParty returns the id of the vendor or client with name, creating it
// if needed. Names match case-insensitively.
func upsertParty(ctx context.Context, tx pgx.Tx, table string, tenantID uuid.UUID, name string) (*uuid.UUID, error) {
	query := fmt.Sprintf(`
		INSERT INTO %s (tenant_id, name, normalized_name)
		VALUES ($1, $2, $3)
		ON CONFLICT (tenant_id, normalized_name) DO UPDATE SET name = %s.name
		RETURNING id`, table, table)

	var id uuid.UUID
	if err := tx.QueryRow(ctx, query, tenantID, name, transaction.NormalizeName(name)).Scan(&id); err != nil {
		return nil, fmt.Errorf("failed to upsert %s: %w", table, err)
	}
	return &id, nil
}

// BeginDocumentUpload journals a pending document before it is stored.
func (r *PostgresImportRepository) BeginDocumentUpload(ctx context.Context, tenantID, transactionID uuid.UUID, archivePath string) (uuid.UUID, error) {
	query := `
		INSERT INTO import_document_uploads (id, tenant_id, transaction_id, archive_path, status)
		VALUES ($1, $2, $3, $4, 'pending')
		RETURNING id`

	var id uuid.UUID
	if err := r.db.QueryRow(ctx, query, uuid.New(), tenantID, transactionID, archivePath).Scan(&id); err != nil {
		return uuid.Nil, fmt.Errorf("failed to journal document upload: %w", err)
	}
	return id, nil
}

// RecordDocumentStored notes where a pending document landed so a sweeper can
// remove the object if linking never completes.
func (r *PostgresImportRepository) RecordDocumentStored(ctx context.Context, uploadID uuid.UUID, storageKey string) error {
	query := `
		UPDATE import_document_uploads
		SET storage_key = $2, updated_at = now()
		WHERE id = $1 AND status = 'pending'`

	tag, err := r.db.Exec(ctx, query, uploadID, storageKey)
	if err != nil {
		return fmt.Errorf("failed to record stored document: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return pgx.ErrNoRows
	}
	return nil
}

// LinkDocument attaches a stored document to its transaction and closes the
// journal entry.
func (r *PostgresImportRepository) LinkDocument(ctx context.Context, uploadID uuid.UUID, doc StoredDocument) (id uuid.UUID, err error) {
	tx, err := r.db.Begin(ctx)
	if err != nil {
		return uuid.Nil, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer func() {
		if err != nil {
			_ = tx.Rollback(ctx)
		}
	}()

	insert := `
		INSERT INTO transaction_documents (id, tenant_id, transaction_id, storage_key, file_name, content_type, size_bytes)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
		RETURNING id`

	err = tx.QueryRow(ctx, insert,
		uuid.New(),
		doc.TenantID,
		doc.TransactionID,
		doc.StorageKey,
		doc.FileName,
		doc.ContentType,
		doc.SizeBytes,
	).Scan(&id)
	if err != nil {
		return uuid.Nil, fmt.Errorf("failed to insert transaction document: %w", err)
	}

	update := `
		UPDATE import_document_uploads
		SET status = 'linked', storage_key = $2, updated_at = now()
		WHERE id = $1`

	if _, err = tx.Exec(ctx, update, uploadID, doc.StorageKey); err != nil {
		return uuid.Nil, fmt.Errorf("failed to mark document linked: %w", err)
	}

	if err = tx.Commit(ctx); err != nil {
		return uuid.Nil, fmt.Errorf("failed to commit document link: %w", err)
	}
	return id, nil
}

// ListStalePendingUploads returns pending journal entries created before olderThan.
func (r *PostgresImportRepository) ListStalePendingUploads(ctx context.Context, olderThan time.Time, limit int) ([]DocumentUpload, error) {
	query := `
		SELECT id, tenant_id, transaction_id, archive_path, storage_key, status, created_at
		FROM import_document_uploads
		WHERE status = 'pending' AND created_at < $1
		ORDER BY created_at
		LIMIT $2`

	rows, err := r.db.Query(ctx, query, olderThan, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to list pending uploads: %w", err)
	}
	defer rows.Close()

	var out []DocumentUpload
	for rows.Next() {
		var (
			u      DocumentUpload
			status string
		)
		if err := rows.Scan(&u.ID, &u.TenantID, &u.TransactionID, &u.ArchivePath, &u.StorageKey, &status, &u.CreatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan pending upload: %w", err)
		}
		u.Status = UploadStatus(status)
		out = append(out, u)
	}
	return out, rows.Err()
}

// DeleteDocumentUpload removes a journal entry.
func (r *PostgresImportRepository) DeleteDocumentUpload(ctx context.Context, uploadID uuid.UUID) error {
	query := `DELETE FROM import_document_uploads WHERE id = $1`
	if _, err := r.db.Exec(ctx, query, uploadID); err != nil {
		return fmt.Errorf("failed to delete document upload: %w", err)
	}
	return nil
}
