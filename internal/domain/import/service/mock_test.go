package service

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"slices"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/FACorreiaa/bookkeeper/internal/domain/import/dedup"
	"github.com/FACorreiaa/bookkeeper/internal/domain/import/mapping"
	"github.com/FACorreiaa/bookkeeper/internal/domain/import/repository"
	"github.com/FACorreiaa/bookkeeper/internal/domain/transaction"
	"github.com/FACorreiaa/bookkeeper/pkg/storage"
)

// MockImportRepository is an in-memory ImportRepository. Inserted rows are
// visible to later duplicate lookups, like the real table.
type MockImportRepository struct {
	mu sync.Mutex

	categories   []transaction.Category
	accounts     []transaction.Account
	baseCurrency string
	templates    map[uuid.UUID]*mapping.Template
	records      []transaction.Record
	inserted     []*repository.NewTransaction
	uploads      map[uuid.UUID]*repository.DocumentUpload
	links        []repository.StoredDocument
	rangeQueries int

	insertErr func(*repository.NewTransaction) error
	linkErr   error
}

func newMockRepo() *MockImportRepository {
	return &MockImportRepository{
		categories: []transaction.Category{
			{ID: uuid.New(), Name: "Groceries"},
			{ID: uuid.New(), Name: "Salary"},
		},
		accounts: []transaction.Account{
			{ID: uuid.New(), Name: "Checking", CurrencyCode: "EUR"},
		},
		baseCurrency: "EUR",
		templates:    make(map[uuid.UUID]*mapping.Template),
		uploads:      make(map[uuid.UUID]*repository.DocumentUpload),
	}
}

func (m *MockImportRepository) CreateTemplate(ctx context.Context, t *mapping.Template) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if t.ID == uuid.Nil {
		t.ID = uuid.New()
	}
	t.CreatedAt = time.Now()
	copied := *t
	copied.Mapping = t.Mapping.Clone()
	m.templates[t.ID] = &copied
	return nil
}

func (m *MockImportRepository) GetTemplate(ctx context.Context, tenantID, templateID uuid.UUID) (*mapping.Template, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	t, ok := m.templates[templateID]
	if !ok || t.TenantID != tenantID {
		return nil, nil
	}
	copied := *t
	return &copied, nil
}

func (m *MockImportRepository) ListTemplates(ctx context.Context, tenantID uuid.UUID) ([]*mapping.Template, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []*mapping.Template
	for _, t := range m.templates {
		if t.TenantID == tenantID {
			copied := *t
			out = append(out, &copied)
		}
	}
	return out, nil
}

func (m *MockImportRepository) GetBaseCurrency(ctx context.Context, tenantID uuid.UUID) (string, error) {
	return m.baseCurrency, nil
}

func (m *MockImportRepository) ListCategories(ctx context.Context, tenantID uuid.UUID) ([]transaction.Category, error) {
	return m.categories, nil
}

func (m *MockImportRepository) ListAccounts(ctx context.Context, tenantID uuid.UUID) ([]transaction.Account, error) {
	return m.accounts, nil
}

func (m *MockImportRepository) FindTransactionsInRange(ctx context.Context, q dedup.Query) ([]transaction.Record, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.rangeQueries++

	var out []transaction.Record
	for _, r := range m.records {
		day := transaction.Day(r.Date)
		switch {
		case r.TenantID != q.TenantID:
		case day.Before(q.From) || day.After(q.To):
		case !slices.Contains(q.Types, r.Type):
		case !slices.Contains(q.Currencies, r.Currency):
		default:
			out = append(out, r)
		}
	}
	return out, nil
}

func (m *MockImportRepository) InsertTransaction(ctx context.Context, tx *repository.NewTransaction) (uuid.UUID, error) {
	if m.insertErr != nil {
		if err := m.insertErr(tx); err != nil {
			return uuid.Nil, err
		}
	}
	m.mu.Lock()
	defer m.mu.Unlock()

	id := uuid.New()
	m.inserted = append(m.inserted, tx)
	m.records = append(m.records, transaction.Record{
		ID:          id,
		TenantID:    tx.TenantID,
		AccountID:   tx.AccountID,
		Type:        tx.Type,
		Date:        transaction.Day(tx.Date),
		Amount:      tx.Amount,
		Currency:    tx.Currency,
		Description: tx.Description,
		VendorName:  tx.VendorName,
		ClientName:  tx.ClientName,
	})
	return id, nil
}

func (m *MockImportRepository) BeginDocumentUpload(ctx context.Context, tenantID, transactionID uuid.UUID, archivePath string) (uuid.UUID, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	id := uuid.New()
	m.uploads[id] = &repository.DocumentUpload{
		ID:            id,
		TenantID:      tenantID,
		TransactionID: transactionID,
		ArchivePath:   archivePath,
		Status:        repository.UploadPending,
		CreatedAt:     time.Now(),
	}
	return id, nil
}

func (m *MockImportRepository) RecordDocumentStored(ctx context.Context, uploadID uuid.UUID, storageKey string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	u, ok := m.uploads[uploadID]
	if !ok {
		return fmt.Errorf("upload %s not found", uploadID)
	}
	u.StorageKey = &storageKey
	return nil
}

func (m *MockImportRepository) LinkDocument(ctx context.Context, uploadID uuid.UUID, doc repository.StoredDocument) (uuid.UUID, error) {
	if m.linkErr != nil {
		return uuid.Nil, m.linkErr
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	u, ok := m.uploads[uploadID]
	if !ok {
		return uuid.Nil, fmt.Errorf("upload %s not found", uploadID)
	}
	u.Status = repository.UploadLinked
	m.links = append(m.links, doc)
	return uuid.New(), nil
}

func (m *MockImportRepository) ListStalePendingUploads(ctx context.Context, olderThan time.Time, limit int) ([]repository.DocumentUpload, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []repository.DocumentUpload
	for _, u := range m.uploads {
		if u.Status == repository.UploadPending && u.CreatedAt.Before(olderThan) && len(out) < limit {
			out = append(out, *u)
		}
	}
	return out, nil
}

func (m *MockImportRepository) DeleteDocumentUpload(ctx context.Context, uploadID uuid.UUID) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.uploads, uploadID)
	return nil
}

// MockStorage keeps objects in memory.
type MockStorage struct {
	mu        sync.Mutex
	objects   map[string][]byte
	uploadErr error
	deleteErr error
}

func newMockStorage() *MockStorage {
	return &MockStorage{objects: make(map[string][]byte)}
}

func (s *MockStorage) Upload(ctx context.Context, tenantID uuid.UUID, filename string, contentType string, r io.Reader) (*storage.FileInfo, error) {
	if s.uploadErr != nil {
		return nil, s.uploadErr
	}
	data, err := io.ReadAll(r)
	if err != nil {
		return nil, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	id := uuid.New()
	key := fmt.Sprintf("%s/%s_%s", tenantID, id, filename)
	s.objects[key] = data
	return &storage.FileInfo{ID: id, TenantID: tenantID, Key: key, Name: filename, Size: int64(len(data)), ContentType: contentType}, nil
}

func (s *MockStorage) Delete(ctx context.Context, key string) error {
	if s.deleteErr != nil {
		return s.deleteErr
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.objects, key)
	return nil
}

func (s *MockStorage) count() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.objects)
}

func newTestService(repo *MockImportRepository, store *MockStorage) *ImportService {
	var st storage.Storage
	if store != nil {
		st = store
	}
	return NewImportService(repo, st, slog.New(slog.NewTextHandler(io.Discard, nil)), DefaultConfig())
}
