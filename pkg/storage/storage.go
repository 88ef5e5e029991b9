// Package storage provides document storage with local and GCS implementations.
package storage

import (
	"context"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/google/uuid"
)

// FileInfo contains metadata about a stored object
type FileInfo struct {
	ID          uuid.UUID `json:"id"`
	TenantID    uuid.UUID `json:"tenant_id"`
	Key         string    `json:"key"` // backend-independent object key
	Name        string    `json:"name"`
	Size        int64     `json:"size"`
	ContentType string    `json:"content_type"`
	CreatedAt   time.Time `json:"created_at"`
}

// Storage defines the interface for document storage operations
type Storage interface {
	// Upload stores an object under the tenant's prefix and returns its metadata
	Upload(ctx context.Context, tenantID uuid.UUID, filename string, contentType string, r io.Reader) (*FileInfo, error)

	// Delete removes an object. Deleting a missing key is not an error.
	Delete(ctx context.Context, key string) error
}

// StorageType identifies the storage backend
type StorageType string

const (
	StorageTypeLocal StorageType = "local"
	StorageTypeGCS   StorageType = "gcs"
)

// Config holds storage configuration
type Config struct {
	Type StorageType `yaml:"type"`

	// Local storage config
	LocalPath string `yaml:"local_path"`

	// GCS storage config
	GCSBucket          string `yaml:"gcs_bucket"`
	GCSCredentialsFile string `yaml:"gcs_credentials_file"`
	GCSEndpoint        string `yaml:"gcs_endpoint"` // emulators such as fake-gcs-server
}

// New creates a new Storage implementation based on configuration
func New(ctx context.Context, cfg *Config) (Storage, error) {
	switch cfg.Type {
	case StorageTypeGCS:
		return NewGCSStorage(ctx, cfg)
	case StorageTypeLocal, "":
		return NewLocalStorage(cfg.LocalPath)
	default:
		return nil, fmt.Errorf("unknown storage type %q", cfg.Type)
	}
}

// objectKey builds "<tenant>/<id>_<name>".
func objectKey(tenantID, fileID uuid.UUID, filename string) string {
	return fmt.Sprintf("%s/%s_%s", tenantID, fileID, sanitizeFilename(filename))
}

// parseKey splits a key into tenant and file id.
func parseKey(key string) (tenantID, fileID uuid.UUID, err error) {
	tenant, rest, ok := strings.Cut(key, "/")
	if !ok || strings.Contains(rest, "/") {
		return uuid.Nil, uuid.Nil, fmt.Errorf("invalid storage key %q", key)
	}
	if tenantID, err = uuid.Parse(tenant); err != nil {
		return uuid.Nil, uuid.Nil, fmt.Errorf("invalid storage key %q: %w", key, err)
	}
	id, _, ok := strings.Cut(rest, "_")
	if !ok {
		return uuid.Nil, uuid.Nil, fmt.Errorf("invalid storage key %q", key)
	}
	if fileID, err = uuid.Parse(id); err != nil {
		return uuid.Nil, uuid.Nil, fmt.Errorf("invalid storage key %q: %w", key, err)
	}
	return tenantID, fileID, nil
}

// sanitizeFilename removes unsafe characters from filenames
func sanitizeFilename(name string) string {
	replacer := strings.NewReplacer(
		"/", "_",
		"\\", "_",
		"..", "_",
		":", "_",
		"*", "_",
		"?", "_",
		"\"", "_",
		"<", "_",
		">", "_",
		"|", "_",
	)
	name = replacer.Replace(strings.TrimSpace(name))
	if name == "" {
		return "document"
	}
	return name
}
