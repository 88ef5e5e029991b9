package parser

import (
	"bytes"
	"fmt"
	"strings"

	"github.com/xuri/excelize/v2"

	"github.com/FACorreiaa/bookkeeper/internal/domain/import/importerr"
)

var zipMagic = []byte("PK\x03\x04")

// IsWorkbook reports whether data looks like an XLSX workbook rather than
// delimited text. Both XLSX files and archives are zip containers, so the
// workbook part list is checked too.
func IsWorkbook(data []byte) bool {
	if !bytes.HasPrefix(data, zipMagic) {
		return false
	}
	return bytes.Contains(data, []byte("xl/workbook.xml"))
}

// ParseWorkbook reads the transaction sheet of an XLSX workbook into the same
// Table shape delimited files produce. Every cell is read as its formatted text.
func ParseWorkbook(data []byte, opts Options) (*Table, error) {
	if len(data) == 0 {
		return nil, &importerr.ParseError{Err: importerr.ErrEmptyFile}
	}

	f, err := excelize.OpenReader(bytes.NewReader(data))
	if err != nil {
		return nil, &importerr.ParseError{Message: "failed to open workbook", Err: err}
	}
	defer f.Close()

	sheet := findTransactionSheet(f)
	if sheet == "" {
		return nil, &importerr.ParseError{Message: "workbook has no sheets"}
	}

	rows, err := f.GetRows(sheet)
	if err != nil {
		return nil, &importerr.ParseError{Message: fmt.Sprintf("failed to read sheet %s", sheet), Err: err}
	}

	// GetRows omits trailing empty rows but keeps leading ones
	start := 0
	for start < len(rows) && blankRecord(rows[start]) {
		start++
	}
	if start == len(rows) {
		return nil, &importerr.ParseError{Err: importerr.ErrEmptyFile}
	}

	table := &Table{}
	if opts.HasHeaders {
		headers, err := cleanHeaders(rows[start])
		if err != nil {
			return nil, &importerr.ParseError{Line: start + 1, Err: err}
		}
		table.Headers = headers
		start++
	} else {
		table.Headers = syntheticHeaders(widest(rows[start:]))
	}

	for i := start; i < len(rows); i++ {
		if blankRecord(rows[i]) {
			continue
		}
		table.Rows = append(table.Rows, Row{
			Index: len(table.Rows) + 1,
			Line:  i + 1,
			Cells: rows[i],
		})
	}

	return table, nil
}

// findTransactionSheet prefers a sheet named like a transaction list and
// falls back to the first sheet.
func findTransactionSheet(f *excelize.File) string {
	sheets := f.GetSheetList()
	if len(sheets) == 0 {
		return ""
	}

	preferredNames := []string{"transactions", "import", "ledger", "sheet1"}
	for _, preferred := range preferredNames {
		for _, sheet := range sheets {
			if strings.EqualFold(strings.TrimSpace(sheet), preferred) {
				return sheet
			}
		}
	}

	return sheets[0]
}

func widest(rows [][]string) int {
	n := 0
	for _, r := range rows {
		if len(r) > n {
			n = len(r)
		}
	}
	return n
}
