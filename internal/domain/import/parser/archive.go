package parser

import (
	"archive/zip"
	"bytes"
	"errors"
	"fmt"
	"io"
	"mime"
	"net/http"
	"path"
	"sort"
	"strings"

	"github.com/FACorreiaa/bookkeeper/internal/domain/import/importerr"
)

// ManifestName is the fixed file name of the transaction list inside an archive.
const ManifestName = "transactions.csv"

// DefaultMaxEntryBytes bounds the size of a single archive entry.
const DefaultMaxEntryBytes int64 = 25 << 20

// Archive is a parsed zip upload: the manifest table plus lazily read
// attachments addressable by their path relative to the manifest directory.
type Archive struct {
	Table        *Table
	ManifestPath string
	// Manifest is the raw manifest text, kept for layout detection.
	Manifest     []byte

	docs     map[string]*zip.File // key: lower-cased relative path
	maxEntry int64
}

// Document is a single attachment read from an archive.
type Document struct {
	Path        string
	Name        string
	ContentType string
	Data        []byte
}

// OpenArchive locates transactions.csv inside a zip archive and parses it
// with opts. When several manifests exist the shallowest one wins.
func OpenArchive(data []byte, opts Options) (*Archive, error) {
	if len(data) == 0 {
		return nil, &importerr.ParseError{Err: importerr.ErrEmptyFile}
	}

	zr, err := zip.NewReader(bytes.NewReader(data), int64(len(data)))
	if err != nil && !errors.Is(err, zip.ErrInsecurePath) {
		return nil, &importerr.ParseError{Message: "file is not a valid zip archive", Err: err}
	}

	maxEntry := opts.MaxEntryBytes
	if maxEntry <= 0 {
		maxEntry = DefaultMaxEntryBytes
	}

	var manifests []*zip.File
	files := make([]*zip.File, 0, len(zr.File))
	for _, f := range zr.File {
		if f.FileInfo().IsDir() || ignoredEntry(f.Name) {
			continue
		}
		name, ok := cleanEntryName(f.Name)
		if !ok {
			return nil, &importerr.ParseError{Message: fmt.Sprintf("archive entry %q escapes the archive root", f.Name)}
		}
		if strings.EqualFold(path.Base(name), ManifestName) {
			manifests = append(manifests, f)
		}
		files = append(files, f)
	}

	if len(manifests) == 0 {
		return nil, &importerr.ParseError{Err: importerr.ErrManifestNotFound}
	}
	sort.SliceStable(manifests, func(i, j int) bool {
		return depth(manifests[i].Name) < depth(manifests[j].Name)
	})
	if len(manifests) > 1 && depth(manifests[0].Name) == depth(manifests[1].Name) {
		return nil, &importerr.ParseError{Message: fmt.Sprintf("archive contains more than one %s at the same level", ManifestName)}
	}
	manifest := manifests[0]

	content, err := readEntry(manifest, maxEntry)
	if err != nil {
		return nil, &importerr.ParseError{Message: "failed to read " + ManifestName, Err: err}
	}
	table, err := ParseDelimited(content, opts)
	if err != nil {
		return nil, err
	}

	manifestPath, _ := cleanEntryName(manifest.Name)
	dir := path.Dir(manifestPath)
	docs := make(map[string]*zip.File, len(files))
	for _, f := range files {
		if f == manifest {
			continue
		}
		name, _ := cleanEntryName(f.Name)
		rel := name
		if dir != "." {
			if !strings.HasPrefix(name, dir+"/") {
				continue
			}
			rel = strings.TrimPrefix(name, dir+"/")
		}
		docs[strings.ToLower(rel)] = f
	}

	return &Archive{
		Table:        table,
		ManifestPath: manifestPath,
		Manifest:     content,
		docs:         docs,
		maxEntry:     maxEntry,
	}, nil
}

// Has reports whether the archive carries a document at the given path.
func (a *Archive) Has(p string) bool {
	if a == nil {
		return false
	}
	key, ok := documentKey(p)
	if !ok {
		return false
	}
	_, found := a.docs[key]
	return found
}

// Len is the number of addressable documents.
func (a *Archive) Len() int {
	return len(a.docs)
}

// Document reads the attachment at p.
func (a *Archive) Document(p string) (*Document, error) {
	key, ok := documentKey(p)
	if !ok {
		return nil, fmt.Errorf("invalid document path %q", p)
	}
	f, found := a.docs[key]
	if !found {
		return nil, fmt.Errorf("document %q not found in archive", p)
	}

	data, err := readEntry(f, a.maxEntry)
	if err != nil {
		return nil, fmt.Errorf("failed to read document %q: %w", p, err)
	}

	name := path.Base(f.Name)
	return &Document{
		Path:        p,
		Name:        name,
		ContentType: contentType(name, data),
		Data:        data,
	}, nil
}

func readEntry(f *zip.File, limit int64) ([]byte, error) {
	if f.UncompressedSize64 > uint64(limit) {
		return nil, fmt.Errorf("entry %s exceeds %d bytes", f.Name, limit)
	}
	rc, err := f.Open()
	if err != nil {
		return nil, err
	}
	defer rc.Close()

	// The header size can lie, so bound the actual read as well
	data, err := io.ReadAll(io.LimitReader(rc, limit+1))
	if err != nil {
		return nil, err
	}
	if int64(len(data)) > limit {
		return nil, fmt.Errorf("entry %s exceeds %d bytes", f.Name, limit)
	}
	return data, nil
}

// cleanEntryName normalizes a zip entry name and rejects traversal.
func cleanEntryName(name string) (string, bool) {
	name = strings.ReplaceAll(name, "\\", "/")
	if strings.HasPrefix(name, "/") {
		return "", false
	}
	cleaned := path.Clean(name)
	if cleaned == ".." || strings.HasPrefix(cleaned, "../") {
		return "", false
	}
	return cleaned, true
}

func documentKey(p string) (string, bool) {
	p = strings.TrimSpace(p)
	if p == "" {
		return "", false
	}
	p = strings.TrimPrefix(strings.ReplaceAll(p, "\\", "/"), "/")
	cleaned, ok := cleanEntryName(p)
	if !ok || cleaned == "." {
		return "", false
	}
	return strings.ToLower(cleaned), true
}

func ignoredEntry(name string) bool {
	return strings.HasPrefix(name, "__MACOSX/") || path.Base(name) == ".DS_Store"
}

func depth(name string) int {
	return strings.Count(strings.Trim(name, "/"), "/")
}

func contentType(name string, data []byte) string {
	if ct := mime.TypeByExtension(strings.ToLower(path.Ext(name))); ct != "" {
		return ct
	}
	return http.DetectContentType(data)
}
