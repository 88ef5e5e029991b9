package handler

import (
	"encoding/json"
	"errors"
	"fmt"

	"github.com/google/uuid"

	"github.com/FACorreiaa/bookkeeper/internal/domain/import/mapping"
	"github.com/FACorreiaa/bookkeeper/internal/domain/import/service"
	"github.com/FACorreiaa/bookkeeper/internal/domain/import/wizard"
)

// File is the uploaded file. Content is base64 in JSON.
type File struct {
	Mode     string `json:"mode"`
	FileName string `json:"fileName"`
	Content  []byte `json:"content"`
}

func (f File) upload() service.Upload {
	mode := wizard.Mode(f.Mode)
	if mode == "" {
		mode = wizard.ModeDelimited
	}
	return service.Upload{Mode: mode, FileName: f.FileName, Content: f.Content}
}

// MappingConfig is either {templateId} or {mapping, options}. Options left
// out of a manual config take their default values.
type MappingConfig struct {
	TemplateID *string               `json:"templateId,omitempty"`
	Mapping    mapping.ColumnMapping `json:"mapping,omitempty"`
	Options    json.RawMessage       `json:"options,omitempty"`
}

var (
	errConfigRequired  = errors.New("config is required")
	errConfigConflict  = errors.New("templateId cannot be combined with mapping or options")
	errMappingRequired = errors.New("mapping is required when no templateId is given")
)

func (c *MappingConfig) toConfig() (mapping.Config, error) {
	if c == nil {
		return nil, errConfigRequired
	}
	manual := c.Mapping != nil || len(c.Options) > 0

	if c.TemplateID != nil {
		if manual {
			return nil, errConfigConflict
		}
		id, err := uuid.Parse(*c.TemplateID)
		if err != nil {
			return nil, fmt.Errorf("invalid templateId: %w", err)
		}
		return mapping.Templated{TemplateID: id}, nil
	}

	if c.Mapping == nil {
		return nil, errMappingRequired
	}
	opts, err := decodeOptions(c.Options)
	if err != nil {
		return nil, err
	}
	return mapping.Manual{Mapping: c.Mapping, Options: opts}, nil
}

// decodeOptions overlays raw onto the default options.
func decodeOptions(raw json.RawMessage) (mapping.ParsingOptions, error) {
	opts := mapping.DefaultOptions()
	if len(raw) == 0 {
		return opts, nil
	}
	if err := json.Unmarshal(raw, &opts); err != nil {
		return opts, fmt.Errorf("invalid options: %w", err)
	}
	return opts, nil
}

type GetSampleFileRequest struct {
	DateFormat string `json:"dateFormat"`
}

type GetSampleFileResponse struct {
	FileName string `json:"fileName"`
	Content  []byte `json:"content"`
}

type AnalyzeFileRequest struct {
	File
}

type AnalyzeFileResponse struct {
	Delimiter         string                 `json:"delimiter"`
	SkipLines         int                    `json:"skipLines"`
	Headers           []string               `json:"headers"`
	Fingerprint       string                 `json:"fingerprint"`
	SampleRows        [][]string             `json:"sampleRows"`
	SuggestedMapping  mapping.ColumnMapping  `json:"suggestedMapping"`
	SuggestedOptions  mapping.ParsingOptions `json:"suggestedOptions"`
	Confidence        float64                `json:"confidence"`
	CurrencyHint      string                 `json:"currencyHint,omitempty"`
	Warnings          []string               `json:"warnings,omitempty"`
	DocumentCount     int                    `json:"documentCount,omitempty"`
	MatchingTemplates []*mapping.Template    `json:"matchingTemplates"`
}

type PreviewRequest struct {
	File
	Config   *MappingConfig `json:"config"`
	Page     int            `json:"page"`
	PageSize int            `json:"pageSize"`
}

type CommitRequest struct {
	File
	Config *MappingConfig `json:"config"`
	// Decisions maps a row index to "import" or "skip".
	Decisions map[int]string `json:"decisions"`
}

type ListTemplatesRequest struct{}

type ListTemplatesResponse struct {
	Templates []*mapping.Template `json:"templates"`
}

type SaveTemplateRequest struct {
	Name    string                `json:"name"`
	Mapping mapping.ColumnMapping `json:"mapping"`
	Options json.RawMessage       `json:"options,omitempty"`
}

type SaveTemplateResponse struct {
	TemplateID uuid.UUID `json:"templateId"`
}
