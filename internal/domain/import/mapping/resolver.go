package mapping

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/FACorreiaa/bookkeeper/internal/domain/import/importerr"
)

// Config is how a session chose to interpret its file. It is either Manual
// or Templated; a template's settings are never mixed with defaults.
type Config interface {
	isConfig()
}

// Manual carries a mapping and options picked in the mapping step.
type Manual struct {
	Mapping ColumnMapping
	Options ParsingOptions
}

// Templated refers to a saved template.
type Templated struct {
	TemplateID uuid.UUID
}

func (Manual) isConfig()    {}
func (Templated) isConfig() {}

// Template is a named, tenant-scoped mapping plus options.
type Template struct {
	ID        uuid.UUID      `json:"id"`
	TenantID  uuid.UUID      `json:"tenantId"`
	Name      string         `json:"name"`
	Mapping   ColumnMapping  `json:"mapping"`
	Options   ParsingOptions `json:"parsingOptions"`
	CreatedBy *uuid.UUID     `json:"createdBy,omitempty"`
	CreatedAt time.Time      `json:"createdAt"`
}

// TemplateSource loads a template. A missing template is (nil, nil).
type TemplateSource interface {
	GetTemplate(ctx context.Context, tenantID, templateID uuid.UUID) (*Template, error)
}

// Resolved is the effective mapping and options for one operation.
type Resolved struct {
	Mapping    ColumnMapping
	Options    ParsingOptions
	TemplateID *uuid.UUID
}

// Resolver turns a Config into Resolved settings.
type Resolver struct {
	templates TemplateSource
}

// NewResolver creates a resolver backed by templates.
func NewResolver(templates TemplateSource) *Resolver {
	return &Resolver{templates: templates}
}

// Resolve validates cfg and returns the settings to apply. Required-field and
// option problems are reported as a *importerr.MappingError before any row is read.
func (r *Resolver) Resolve(ctx context.Context, tenantID uuid.UUID, cfg Config) (*Resolved, error) {
	switch c := cfg.(type) {
	case Manual:
		if err := Validate(c.Mapping, c.Options); err != nil {
			return nil, err
		}
		return &Resolved{Mapping: c.Mapping.Clone(), Options: c.Options}, nil

	case Templated:
		tmpl, err := r.templates.GetTemplate(ctx, tenantID, c.TemplateID)
		if err != nil {
			return nil, fmt.Errorf("failed to load template: %w", err)
		}
		if tmpl == nil {
			return nil, &importerr.MappingError{Err: fmt.Errorf("%w: %s", importerr.ErrTemplateNotFound, c.TemplateID)}
		}
		if err := Validate(tmpl.Mapping, tmpl.Options); err != nil {
			return nil, err
		}
		id := tmpl.ID
		return &Resolved{Mapping: tmpl.Mapping.Clone(), Options: tmpl.Options, TemplateID: &id}, nil

	case nil:
		return nil, &importerr.MappingError{Problems: []string{"no mapping configuration supplied"}}

	default:
		return nil, fmt.Errorf("unsupported mapping config %T", cfg)
	}
}

// Validate checks a mapping and its options together.
func Validate(m ColumnMapping, opts ParsingOptions) error {
	merr := &importerr.MappingError{}
	merr.Problems = append(merr.Problems, opts.Problems()...)
	for _, f := range m.UnknownFields() {
		merr.Problems = append(merr.Problems, fmt.Sprintf("unknown field %q", f))
	}

	mode := opts.DirectionMode
	if mode != DirectionSignBased {
		mode = DirectionTypeColumn
	}
	merr.Missing = fieldNames(m.Missing(mode))

	if merr.Empty() {
		return nil
	}
	return merr
}

// Binding is a Resolved mapping tied to the column positions of one file.
type Binding struct {
	Options ParsingOptions
	columns map[Field]int
}

// Bind locates every mapped header in headers. Headers match exactly after
// trimming, falling back to a case-insensitive match.
func (r *Resolved) Bind(headers []string) (*Binding, error) {
	exact := make(map[string]int, len(headers))
	folded := make(map[string]int, len(headers))
	for i, h := range headers {
		h = strings.TrimSpace(h)
		if _, ok := exact[h]; !ok {
			exact[h] = i
		}
		if _, ok := folded[strings.ToLower(h)]; !ok {
			folded[strings.ToLower(h)] = i
		}
	}

	b := &Binding{Options: r.Options, columns: make(map[Field]int, len(r.Mapping))}
	var unknown []string
	for f, h := range r.Mapping {
		h = strings.TrimSpace(h)
		if h == "" {
			continue
		}
		if i, ok := exact[h]; ok {
			b.columns[f] = i
			continue
		}
		if i, ok := folded[strings.ToLower(h)]; ok {
			b.columns[f] = i
			continue
		}
		unknown = append(unknown, h)
	}

	if len(unknown) > 0 {
		sort.Strings(unknown)
		return nil, &importerr.MappingError{Unknown: unknown}
	}
	return b, nil
}

// Mapped reports whether f has a column in this file.
func (b *Binding) Mapped(f Field) bool {
	_, ok := b.columns[f]
	return ok
}

// Cell returns the trimmed cell for f, or "" when f is unmapped or the row is short.
func (b *Binding) Cell(f Field, cells []string) string {
	i, ok := b.columns[f]
	if !ok || i >= len(cells) {
		return ""
	}
	return strings.TrimSpace(cells[i])
}
