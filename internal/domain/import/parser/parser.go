// Package parser turns uploaded bytes into a header row plus raw string cells.
// It understands delimited text, XLSX workbooks and zip archives that bundle a
// transactions.csv manifest with its source documents. Parsing is a pure
// transform: no values are interpreted here.
package parser

import (
	"bytes"
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"strings"
	"unicode/utf8"

	"golang.org/x/text/encoding/charmap"

	"github.com/FACorreiaa/bookkeeper/internal/domain/import/importerr"
)

// Options configures delimited parsing.
type Options struct {
	Delimiter  rune // defaults to ','
	HasHeaders bool
	// MaxEntryBytes caps each archive entry. Zero means DefaultMaxEntryBytes.
	MaxEntryBytes int64
}

// DefaultOptions returns comma separated input with a header row.
func DefaultOptions() Options {
	return Options{
		Delimiter:  ',',
		HasHeaders: true,
	}
}

// Table is the raw content of a parsed file.
type Table struct {
	Headers []string
	Rows    []Row
}

// Row is one data record. Index is 1-based among data rows, Line is the
// physical line in the source where the record starts.
type Row struct {
	Index int
	Line  int
	Cells []string
}

// Cell returns the trimmed value at column i, or "" when the row is short.
func (r Row) Cell(i int) string {
	if i < 0 || i >= len(r.Cells) {
		return ""
	}
	return strings.TrimSpace(r.Cells[i])
}

// ParseDelimited reads delimited text. Quoted fields may contain the
// delimiter and embedded newlines. Quoting is strict: an unterminated or
// stray quote fails the whole file with the line where the record starts.
func ParseDelimited(data []byte, opts Options) (*Table, error) {
	data = NormalizeEncoding(data)
	if len(bytes.TrimSpace(data)) == 0 {
		return nil, &importerr.ParseError{Err: importerr.ErrEmptyFile}
	}

	if opts.Delimiter == 0 {
		opts.Delimiter = ','
	}
	if opts.Delimiter == '"' || opts.Delimiter == '\r' || opts.Delimiter == '\n' || !utf8.ValidRune(opts.Delimiter) {
		return nil, &importerr.ParseError{Message: fmt.Sprintf("invalid delimiter %q", opts.Delimiter)}
	}

	reader := csv.NewReader(bytes.NewReader(data))
	reader.Comma = opts.Delimiter
	reader.FieldsPerRecord = -1 // Allow ragged rows, the normalizer reports missing cells

	table := &Table{}

	first, err := reader.Read()
	if err != nil {
		if errors.Is(err, io.EOF) {
			return nil, &importerr.ParseError{Err: importerr.ErrEmptyFile}
		}
		if !opts.HasHeaders {
			return nil, recordError(err)
		}
		return nil, &importerr.ParseError{Line: 1, Err: fmt.Errorf("%w: %v", importerr.ErrNoHeaders, err)}
	}

	if opts.HasHeaders {
		headers, err := cleanHeaders(first)
		if err != nil {
			return nil, &importerr.ParseError{Line: 1, Err: err}
		}
		table.Headers = headers
	} else {
		table.Headers = syntheticHeaders(len(first))
		table.Rows = append(table.Rows, Row{Index: 1, Line: 1, Cells: first})
	}

	for {
		record, err := reader.Read()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return nil, recordError(err)
		}
		line, _ := reader.FieldPos(0)
		if blankRecord(record) {
			continue
		}
		table.Rows = append(table.Rows, Row{
			Index: len(table.Rows) + 1,
			Line:  line,
			Cells: record,
		})
	}

	return table, nil
}

func recordError(err error) error {
	var csvErr *csv.ParseError
	if errors.As(err, &csvErr) {
		return &importerr.ParseError{Line: csvErr.StartLine, Message: "malformed record", Err: csvErr.Err}
	}
	return &importerr.ParseError{Err: err}
}

// NormalizeEncoding strips a UTF-8 byte order mark and decodes legacy
// Windows-1252 / Latin-1 exports into UTF-8.
func NormalizeEncoding(data []byte) []byte {
	data = bytes.TrimPrefix(data, []byte("\xEF\xBB\xBF"))
	if utf8.Valid(data) {
		return data
	}
	decoded, err := charmap.Windows1252.NewDecoder().Bytes(data)
	if err != nil {
		return data
	}
	return decoded
}

func cleanHeaders(raw []string) ([]string, error) {
	headers := make([]string, len(raw))
	seen := make(map[string]struct{}, len(raw))
	nonEmpty := 0
	for i, h := range raw {
		h = strings.TrimSpace(h)
		headers[i] = h
		if h == "" {
			continue
		}
		nonEmpty++
		key := strings.ToLower(h)
		if _, dup := seen[key]; dup {
			return nil, fmt.Errorf("duplicate column header %q", h)
		}
		seen[key] = struct{}{}
	}
	if nonEmpty == 0 {
		return nil, importerr.ErrNoHeaders
	}
	return headers, nil
}

func syntheticHeaders(n int) []string {
	headers := make([]string, n)
	for i := range headers {
		headers[i] = fmt.Sprintf("column_%d", i+1)
	}
	return headers
}

func blankRecord(record []string) bool {
	for _, cell := range record {
		if strings.TrimSpace(cell) != "" {
			return false
		}
	}
	return true
}
