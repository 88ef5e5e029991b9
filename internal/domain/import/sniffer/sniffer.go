// Package sniffer inspects an uploaded file before any mapping exists. It
// detects the delimiter and header row, fingerprints the headers and
// suggests a column mapping and parsing options.
package sniffer

import (
	"bytes"
	"crypto/sha256"
	"encoding/csv"
	"encoding/hex"
	"errors"
	"io"
	"strings"
	"unicode"

	"github.com/FACorreiaa/bookkeeper/internal/domain/import/importerr"
)

// FileConfig holds the detected layout of a delimited file
type FileConfig struct {
	Delimiter   rune       // The field delimiter (';', ',', '\t', '|')
	SkipLines   int        // Number of metadata lines before headers
	Headers     []string   // Detected header names
	Fingerprint string     // SHA256 hash of normalized headers
	SampleRows  [][]string // First few data rows for preview
}

// DetectOptions allows callers to force a delimiter.
type DetectOptions struct {
	Delimiter rune
}

var ErrInvalidDelimiter = errors.New("could not detect valid delimiter")

const (
	maxHeaderSearchLines = 20
	sampleRowCount       = 10
)

// DetectConfig analyzes a delimited file and returns its configuration
func DetectConfig(data []byte) (*FileConfig, error) {
	return DetectConfigWithOptions(data, nil)
}

// DetectConfigWithOptions analyzes a delimited file with optional overrides.
func DetectConfigWithOptions(data []byte, opts *DetectOptions) (*FileConfig, error) {
	if len(bytes.TrimSpace(data)) == 0 {
		return nil, importerr.ErrEmptyFile
	}

	lines := strings.Split(string(data), "\n")

	delimiter, skipLines, err := findHeaderRow(lines)
	if err != nil {
		return nil, err
	}
	if opts != nil && opts.Delimiter != 0 {
		delimiter = opts.Delimiter
	}

	reader := csv.NewReader(strings.NewReader(cleanLine(lines[skipLines], skipLines == 0)))
	reader.Comma = delimiter
	reader.LazyQuotes = true

	headers, err := reader.Read()
	if err != nil {
		return nil, importerr.ErrNoHeaders
	}
	for i, h := range headers {
		headers[i] = strings.TrimSpace(h)
	}

	return &FileConfig{
		Delimiter:   delimiter,
		SkipLines:   skipLines,
		Headers:     headers,
		Fingerprint: generateFingerprint(headers),
		SampleRows:  getSampleRows(data, delimiter, skipLines+1, sampleRowCount),
	}, nil
}

// findHeaderRow locates the header row and its delimiter. Lines that mention
// known column names win over lines that merely have many separators.
func findHeaderRow(lines []string) (rune, int, error) {
	fallbackIndex, fallbackCount := -1, 0
	var fallbackDelimiter rune

	keywordIndex, keywordScore := -1, 0
	var keywordDelimiter rune

	for i, line := range lines {
		if i > maxHeaderSearchLines {
			break
		}

		line = cleanLine(line, i == 0)
		if line == "" {
			continue
		}

		delimiter, count := detectDelimiter(line)
		if count < 1 {
			continue
		}

		if hits := len(headerMatcher.MatchThreadSafe([]byte(strings.ToLower(line)))); hits > 0 {
			score := count*10 + hits
			if keywordIndex == -1 || score > keywordScore {
				keywordIndex, keywordScore, keywordDelimiter = i, score, delimiter
			}
			continue
		}

		if count > fallbackCount {
			fallbackIndex, fallbackCount, fallbackDelimiter = i, count, delimiter
		}
	}

	if keywordIndex >= 0 {
		return keywordDelimiter, keywordIndex, nil
	}
	if fallbackIndex >= 0 {
		return fallbackDelimiter, fallbackIndex, nil
	}
	return 0, 0, ErrInvalidDelimiter
}

func cleanLine(line string, firstLine bool) string {
	line = strings.TrimRight(line, "\r")
	if firstLine {
		line = strings.TrimPrefix(line, "\uFEFF")
	}
	return strings.TrimSpace(line)
}

func detectDelimiter(line string) (rune, int) {
	delimiters := []rune{';', '\t', ',', '|'}
	bestDelimiter := rune(0)
	bestCount := 0
	for _, d := range delimiters {
		count := strings.Count(line, string(d))
		if count > bestCount {
			bestCount = count
			bestDelimiter = d
		}
	}
	return bestDelimiter, bestCount
}

// generateFingerprint hashes the normalized header names so the same export
// layout can be recognised across uploads.
func generateFingerprint(headers []string) string {
	var normalized []string
	for _, h := range headers {
		clean := strings.Map(func(r rune) rune {
			if unicode.IsLetter(r) || unicode.IsDigit(r) {
				return unicode.ToLower(r)
			}
			return -1
		}, h)
		if clean != "" {
			normalized = append(normalized, clean)
		}
	}

	hash := sha256.Sum256([]byte(strings.Join(normalized, "|")))
	return hex.EncodeToString(hash[:])
}

// getSampleRows returns the first maxRows records starting at startLine.
func getSampleRows(data []byte, delimiter rune, startLine, maxRows int) [][]string {
	reader := csv.NewReader(bytes.NewReader(data))
	reader.Comma = delimiter
	reader.LazyQuotes = true
	reader.FieldsPerRecord = -1

	var rows [][]string
	for lineNum := 0; ; lineNum++ {
		record, err := reader.Read()
		if err == io.EOF {
			break
		}
		if err != nil || lineNum < startLine {
			continue
		}
		if len(record) == 1 && strings.TrimSpace(record[0]) == "" {
			continue
		}
		rows = append(rows, record)
		if len(rows) >= maxRows {
			break
		}
	}
	return rows
}

// NewFileConfig describes a table that was read by other means, such as the
// first sheet of a workbook. It has no delimiter and no skipped lines.
func NewFileConfig(headers []string, rows [][]string) *FileConfig {
	sample := rows
	if len(sample) > sampleRowCount {
		sample = sample[:sampleRowCount]
	}
	return &FileConfig{
		Headers:     headers,
		Fingerprint: generateFingerprint(headers),
		SampleRows:  sample,
	}
}
