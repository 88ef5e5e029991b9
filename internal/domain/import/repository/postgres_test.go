package repository

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/pashagolub/pgxmock/v4"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/FACorreiaa/bookkeeper/internal/domain/import/dedup"
	"github.com/FACorreiaa/bookkeeper/internal/domain/import/mapping"
	"github.com/FACorreiaa/bookkeeper/internal/domain/transaction"
)

func newMock(t *testing.T) (pgxmock.PgxPoolIface, *PostgresImportRepository) {
	t.Helper()
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	t.Cleanup(mock.Close)
	return mock, NewPostgresImportRepository(mock)
}

var templateCols = []string{"id", "tenant_id", "name", "column_mapping", "parsing_options", "created_by", "created_at"}

func TestCreateTemplate(t *testing.T) {
	mock, repo := newMock(t)
	ctx := context.Background()
	now := time.Now()

	tpl := &mapping.Template{
		TenantID: uuid.New(),
		Name:     "Bank export",
		Mapping:  mapping.DefaultMapping(),
		Options:  mapping.DefaultOptions(),
	}

	mock.ExpectQuery(`INSERT INTO import_templates`).
		WithArgs(pgxmock.AnyArg(), tpl.TenantID, "Bank export", pgxmock.AnyArg(), pgxmock.AnyArg(), pgxmock.AnyArg()).
		WillReturnRows(pgxmock.NewRows([]string{"created_at"}).AddRow(now))

	require.NoError(t, repo.CreateTemplate(ctx, tpl))
	assert.NotEqual(t, uuid.Nil, tpl.ID)
	assert.Equal(t, now, tpl.CreatedAt)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestGetTemplate(t *testing.T) {
	mock, repo := newMock(t)
	ctx := context.Background()
	tenantID, templateID := uuid.New(), uuid.New()

	mock.ExpectQuery(`SELECT id, tenant_id, name`).
		WithArgs(templateID, tenantID).
		WillReturnRows(pgxmock.NewRows(templateCols).AddRow(
			templateID, tenantID, "Card",
			[]byte(`{"date":"Posted","amount":"Value"}`),
			[]byte(`{"directionMode":"sign_based","dateFormat":"YYYY-MM-DD","delimiter":";","decimalSeparator":",","thousandsSeparator":".","headerRowIndex":0,"hasHeaders":true}`),
			nil, time.Now(),
		))

	tpl, err := repo.GetTemplate(ctx, tenantID, templateID)
	require.NoError(t, err)
	require.NotNil(t, tpl)
	assert.Equal(t, "Posted", tpl.Mapping[mapping.FieldDate])
	assert.Equal(t, mapping.DirectionSignBased, tpl.Options.DirectionMode)
	assert.Equal(t, ";", tpl.Options.Delimiter)
	assert.Nil(t, tpl.CreatedBy)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestGetTemplate_IncompleteOptionsAreNotDefaulted(t *testing.T) {
	mock, repo := newMock(t)
	tenantID, templateID := uuid.New(), uuid.New()

	mock.ExpectQuery(`SELECT id, tenant_id, name`).
		WithArgs(templateID, tenantID).
		WillReturnRows(pgxmock.NewRows(templateCols).AddRow(
			templateID, tenantID, "Partial",
			[]byte(`{"date":"Date","amount":"Amount","currency":"Currency","description":"Memo","category":"Category","account":"Account"}`),
			[]byte(`{"directionMode":"sign_based","dateFormat":"YYYY-MM-DD"}`),
			nil, time.Now(),
		))

	tpl, err := repo.GetTemplate(context.Background(), tenantID, templateID)
	require.NoError(t, err)
	require.NotNil(t, tpl)
	assert.Empty(t, tpl.Options.Delimiter)
	assert.Empty(t, tpl.Options.DecimalSeparator)
	assert.False(t, tpl.Options.HasHeaders)

	err = mapping.Validate(tpl.Mapping, tpl.Options)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "delimiter must be a single character")
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestGetTemplate_NotFound(t *testing.T) {
	mock, repo := newMock(t)
	tenantID, templateID := uuid.New(), uuid.New()

	mock.ExpectQuery(`SELECT id, tenant_id, name`).
		WithArgs(templateID, tenantID).
		WillReturnRows(pgxmock.NewRows(templateCols))

	tpl, err := repo.GetTemplate(context.Background(), tenantID, templateID)
	assert.NoError(t, err)
	assert.Nil(t, tpl)
}

func TestListTemplates_AllowsDuplicateNames(t *testing.T) {
	mock, repo := newMock(t)
	tenantID := uuid.New()
	opts := []byte(`{"directionMode":"type_column","dateFormat":"DD/MM/YYYY","delimiter":",","decimalSeparator":".","thousandsSeparator":",","headerRowIndex":0,"hasHeaders":true}`)

	mock.ExpectQuery(`FROM import_templates`).
		WithArgs(tenantID).
		WillReturnRows(pgxmock.NewRows(templateCols).
			AddRow(uuid.New(), tenantID, "Monthly", []byte(`{}`), opts, nil, time.Now()).
			AddRow(uuid.New(), tenantID, "Monthly", []byte(`{}`), opts, nil, time.Now().Add(-time.Hour)))

	templates, err := repo.ListTemplates(context.Background(), tenantID)
	require.NoError(t, err)
	require.Len(t, templates, 2)
	assert.Equal(t, templates[0].Name, templates[1].Name)
	assert.NotEqual(t, templates[0].ID, templates[1].ID)
}

func TestListCategoriesAndAccounts(t *testing.T) {
	mock, repo := newMock(t)
	ctx := context.Background()
	tenantID := uuid.New()

	mock.ExpectQuery(`SELECT id, name FROM categories`).
		WithArgs(tenantID).
		WillReturnRows(pgxmock.NewRows([]string{"id", "name"}).
			AddRow(uuid.New(), "Groceries").
			AddRow(uuid.New(), "Rent"))
	mock.ExpectQuery(`SELECT id, name, currency_code FROM accounts`).
		WithArgs(tenantID).
		WillReturnRows(pgxmock.NewRows([]string{"id", "name", "currency_code"}).
			AddRow(uuid.New(), "Checking", "EUR"))

	cats, err := repo.ListCategories(ctx, tenantID)
	require.NoError(t, err)
	assert.Len(t, cats, 2)

	accs, err := repo.ListAccounts(ctx, tenantID)
	require.NoError(t, err)
	require.Len(t, accs, 1)
	assert.Equal(t, "EUR", accs[0].CurrencyCode)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestFindTransactionsInRange(t *testing.T) {
	mock, repo := newMock(t)
	tenantID := uuid.New()
	day := time.Date(2024, 3, 5, 0, 0, 0, 0, time.UTC)
	vendor := "Lidl"

	q := dedup.Query{
		TenantID:   tenantID,
		From:       day,
		To:         day.AddDate(0, 0, 2),
		Types:      []transaction.Type{transaction.TypeExpense},
		Currencies: []string{"EUR"},
	}

	mock.ExpectQuery(`FROM transactions t`).
		WithArgs(tenantID, q.From, q.To, []string{"EXPENSE"}, []string{"EUR"}).
		WillReturnRows(pgxmock.NewRows([]string{
			"id", "tenant_id", "account_id", "type", "posting_date", "amount_minor",
			"currency_code", "description", "vendor_name", "client_name",
		}).AddRow(uuid.New(), tenantID, uuid.New(), "EXPENSE", day, int64(4250), "EUR", "Groceries", &vendor, nil))

	recs, err := repo.FindTransactionsInRange(context.Background(), q)
	require.NoError(t, err)
	require.Len(t, recs, 1)
	assert.Equal(t, transaction.TypeExpense, recs[0].Type)
	assert.True(t, decimal.RequireFromString("42.50").Equal(recs[0].Amount))
	assert.Equal(t, "Lidl", *recs[0].VendorName)
	assert.Nil(t, recs[0].ClientName)
}

func TestInsertTransaction_UpsertsVendor(t *testing.T) {
	mock, repo := newMock(t)
	tenantID, vendorID, txID := uuid.New(), uuid.New(), uuid.New()
	vendor := "ACME  Supplies"

	mock.ExpectBegin()
	mock.ExpectQuery(`INSERT INTO vendors`).
		WithArgs(tenantID, vendor, "acme supplies").
		WillReturnRows(pgxmock.NewRows([]string{"id"}).AddRow(vendorID))
	mock.ExpectQuery(`INSERT INTO transactions`).
		WithArgs(
			pgxmock.AnyArg(), tenantID, pgxmock.AnyArg(), pgxmock.AnyArg(), &vendorID, pgxmock.AnyArg(),
			"EXPENSE", pgxmock.AnyArg(), int64(1999), "EUR", "Paper", pgxmock.AnyArg(), []string{},
			pgxmock.AnyArg(), pgxmock.AnyArg(), pgxmock.AnyArg(), pgxmock.AnyArg(),
		).
		WillReturnRows(pgxmock.NewRows([]string{"id"}).AddRow(txID))
	mock.ExpectCommit()

	id, err := repo.InsertTransaction(context.Background(), &NewTransaction{
		TenantID:    tenantID,
		AccountID:   uuid.New(),
		CategoryID:  uuid.New(),
		Type:        transaction.TypeExpense,
		Date:        time.Date(2024, 1, 2, 15, 0, 0, 0, time.UTC),
		Amount:      decimal.RequireFromString("19.99"),
		Currency:    "EUR",
		Description: "Paper",
		VendorName:  &vendor,
	})
	require.NoError(t, err)
	assert.Equal(t, txID, id)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestInsertTransaction_RollsBackOnFailure(t *testing.T) {
	mock, repo := newMock(t)

	mock.ExpectBegin()
	mock.ExpectQuery(`INSERT INTO transactions`).
		WillReturnError(errors.New("check constraint violated"))
	mock.ExpectRollback()

	_, err := repo.InsertTransaction(context.Background(), &NewTransaction{
		TenantID:    uuid.New(),
		Type:        transaction.TypeIncome,
		Date:        time.Now(),
		Amount:      decimal.NewFromInt(10),
		Currency:    "USD",
		Description: "Invoice",
	})
	assert.ErrorContains(t, err, "failed to insert transaction")
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestInsertTransaction_UnknownCurrency(t *testing.T) {
	_, repo := newMock(t)

	_, err := repo.InsertTransaction(context.Background(), &NewTransaction{
		Amount:   decimal.NewFromInt(1),
		Currency: "XXY",
	})
	assert.Error(t, err)
}

func TestDocumentJournal(t *testing.T) {
	mock, repo := newMock(t)
	ctx := context.Background()
	tenantID, txID, uploadID, docID := uuid.New(), uuid.New(), uuid.New(), uuid.New()

	mock.ExpectQuery(`INSERT INTO import_document_uploads`).
		WithArgs(pgxmock.AnyArg(), tenantID, txID, "receipts/a.pdf").
		WillReturnRows(pgxmock.NewRows([]string{"id"}).AddRow(uploadID))
	mock.ExpectExec(`UPDATE import_document_uploads`).
		WithArgs(uploadID, "t/key.pdf").
		WillReturnResult(pgxmock.NewResult("UPDATE", 1))
	mock.ExpectBegin()
	mock.ExpectQuery(`INSERT INTO transaction_documents`).
		WithArgs(pgxmock.AnyArg(), tenantID, txID, "t/key.pdf", "a.pdf", "application/pdf", int64(512)).
		WillReturnRows(pgxmock.NewRows([]string{"id"}).AddRow(docID))
	mock.ExpectExec(`SET status = 'linked'`).
		WithArgs(uploadID, "t/key.pdf").
		WillReturnResult(pgxmock.NewResult("UPDATE", 1))
	mock.ExpectCommit()

	id, err := repo.BeginDocumentUpload(ctx, tenantID, txID, "receipts/a.pdf")
	require.NoError(t, err)
	assert.Equal(t, uploadID, id)

	require.NoError(t, repo.RecordDocumentStored(ctx, uploadID, "t/key.pdf"))

	linked, err := repo.LinkDocument(ctx, uploadID, StoredDocument{
		TenantID:      tenantID,
		TransactionID: txID,
		StorageKey:    "t/key.pdf",
		FileName:      "a.pdf",
		ContentType:   "application/pdf",
		SizeBytes:     512,
	})
	require.NoError(t, err)
	assert.Equal(t, docID, linked)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestListStalePendingUploads(t *testing.T) {
	mock, repo := newMock(t)
	cutoff := time.Now().Add(-time.Hour)
	key := "t/orphan.pdf"

	mock.ExpectQuery(`WHERE status = 'pending'`).
		WithArgs(cutoff, 50).
		WillReturnRows(pgxmock.NewRows([]string{"id", "tenant_id", "transaction_id", "archive_path", "storage_key", "status", "created_at"}).
			AddRow(uuid.New(), uuid.New(), uuid.New(), "orphan.pdf", &key, "pending", cutoff.Add(-time.Minute)))
	mock.ExpectExec(`DELETE FROM import_document_uploads`).
		WithArgs(pgxmock.AnyArg()).
		WillReturnResult(pgxmock.NewResult("DELETE", 1))

	uploads, err := repo.ListStalePendingUploads(context.Background(), cutoff, 50)
	require.NoError(t, err)
	require.Len(t, uploads, 1)
	assert.Equal(t, UploadPending, uploads[0].Status)
	assert.Equal(t, key, *uploads[0].StorageKey)

	require.NoError(t, repo.DeleteDocumentUpload(context.Background(), uploads[0].ID))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestGetBaseCurrency(t *testing.T) {
	mock, repo := newMock(t)
	ctx := context.Background()
	tenantID := uuid.New()

	mock.ExpectQuery(`SELECT base_currency FROM tenants`).
		WithArgs(tenantID).
		WillReturnRows(pgxmock.NewRows([]string{"base_currency"}).AddRow("GBP"))

	code, err := repo.GetBaseCurrency(ctx, tenantID)
	require.NoError(t, err)
	assert.Equal(t, "GBP", code)

	mock.ExpectQuery(`SELECT base_currency FROM tenants`).
		WithArgs(tenantID).
		WillReturnRows(pgxmock.NewRows([]string{"base_currency"}))

	code, err = repo.GetBaseCurrency(ctx, tenantID)
	require.NoError(t, err)
	assert.Empty(t, code)
	assert.NoError(t, mock.ExpectationsWereMet())
}
