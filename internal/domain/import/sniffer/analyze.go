package sniffer

import (
	"github.com/FACorreiaa/bookkeeper/internal/domain/import/mapping"
)

// Analysis is everything AnalyzeFile reports about an upload.
type Analysis struct {
	Config           *FileConfig
	Dialect          *Dialect
	SuggestedMapping mapping.ColumnMapping
	SuggestedOptions mapping.ParsingOptions
	// Warnings are problems the user has to fix in the file itself.
	Warnings []string
}

// Analyze sniffs a delimited file.
func Analyze(data []byte) (*Analysis, error) {
	cfg, err := DetectConfig(data)
	if err != nil {
		return nil, err
	}
	return AnalyzeConfig(cfg), nil
}

// AnalyzeConfig builds suggestions from an already detected layout. Workbook
// uploads use it with a config assembled from the first sheet.
func AnalyzeConfig(cfg *FileConfig) *Analysis {
	suggested := SuggestMapping(cfg.Headers)

	dialect := ProbeDialect(cfg.SampleRows,
		headerIndex(cfg.Headers, suggested, mapping.FieldAmount),
		headerIndex(cfg.Headers, suggested, mapping.FieldDate),
	)

	opts := mapping.DefaultOptions()
	if cfg.Delimiter != 0 {
		opts.Delimiter = string(cfg.Delimiter)
	}
	opts.DecimalSeparator = dialect.DecimalSeparator
	opts.ThousandsSeparator = dialect.ThousandsSeparator
	if opts.Delimiter == opts.ThousandsSeparator {
		opts.ThousandsSeparator = ""
	}
	opts.DateFormat = dialect.DateFormat
	if _, ok := suggested.Header(mapping.FieldType); !ok && dialect.SignedAmounts {
		opts.DirectionMode = mapping.DirectionSignBased
	}

	a := &Analysis{
		Config:           cfg,
		Dialect:          dialect,
		SuggestedMapping: suggested,
		SuggestedOptions: opts,
	}
	if cfg.SkipLines > 0 {
		a.Warnings = append(a.Warnings, "the header is not on the first line; remove the lines above it before importing")
	}
	return a
}

func headerIndex(headers []string, m mapping.ColumnMapping, f mapping.Field) int {
	name, ok := m.Header(f)
	if !ok {
		return -1
	}
	for i, h := range headers {
		if h == name {
			return i
		}
	}
	return -1
}
