package storage

import (
	"bytes"
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLocalStorage_UploadAndDelete(t *testing.T) {
	ctx := context.Background()
	base := t.TempDir()
	s, err := NewLocalStorage(base)
	require.NoError(t, err)

	tenantID := uuid.New()
	info, err := s.Upload(ctx, tenantID, "receipts/inv 1.pdf", "application/pdf", bytes.NewReader([]byte("%PDF-1.4")))
	require.NoError(t, err)
	assert.Equal(t, int64(8), info.Size)
	assert.Equal(t, "receipts/inv 1.pdf", info.Name)
	assert.NotContains(t, info.Key[len(tenantID.String())+1:], "/")

	path := filepath.Join(base, filepath.FromSlash(info.Key))
	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Equal(t, "%PDF-1.4", string(data))
	assert.FileExists(t, s.metaPath(tenantID, info.ID))

	require.NoError(t, s.Delete(ctx, info.Key))
	require.NoError(t, s.Delete(ctx, info.Key), "deleting twice is fine")

	assert.NoFileExists(t, path)
	assert.NoFileExists(t, s.metaPath(tenantID, info.ID))
}

func TestLocalStorage_TenantPrefix(t *testing.T) {
	ctx := context.Background()
	base := t.TempDir()
	s, err := NewLocalStorage(base)
	require.NoError(t, err)

	tenantID := uuid.New()
	info, err := s.Upload(ctx, tenantID, "a.txt", "text/plain", bytes.NewReader([]byte("a")))
	require.NoError(t, err)

	assert.True(t, strings.HasPrefix(info.Key, tenantID.String()+"/"))
	assert.DirExists(t, filepath.Join(base, tenantID.String()))
}

func TestLocalStorage_DeleteRejectsForeignKeys(t *testing.T) {
	s, err := NewLocalStorage(t.TempDir())
	require.NoError(t, err)

	assert.Error(t, s.Delete(context.Background(), "../../etc/passwd"))
}

func TestParseKey(t *testing.T) {
	tenantID, fileID := uuid.New(), uuid.New()

	gotTenant, gotFile, err := parseKey(objectKey(tenantID, fileID, "x_y.pdf"))
	require.NoError(t, err)
	assert.Equal(t, tenantID, gotTenant)
	assert.Equal(t, fileID, gotFile)

	for _, bad := range []string{"", "nope", tenantID.String() + "/../etc/passwd", tenantID.String() + "/a/b_c"} {
		_, _, err := parseKey(bad)
		assert.Error(t, err, bad)
	}
}

func TestSanitizeFilename(t *testing.T) {
	assert.Equal(t, "__etc_passwd", sanitizeFilename("../etc/passwd"))
	assert.Equal(t, "document", sanitizeFilename("  "))
	assert.Equal(t, "a_b.pdf", sanitizeFilename("a:b.pdf"))
}

func TestNew_UnknownType(t *testing.T) {
	_, err := New(context.Background(), &Config{Type: "s3"})
	assert.Error(t, err)
}
