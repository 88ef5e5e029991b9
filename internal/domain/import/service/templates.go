package service

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/google/uuid"

	"github.com/FACorreiaa/bookkeeper/internal/domain/import/importerr"
	"github.com/FACorreiaa/bookkeeper/internal/domain/import/mapping"
)

// SaveTemplateInput is a mapping the user wants to reuse.
type SaveTemplateInput struct {
	Name      string
	Mapping   mapping.ColumnMapping
	Options   mapping.ParsingOptions
	CreatedBy *uuid.UUID
}

// SaveTemplate validates and stores a template. Names need not be unique.
func (s *ImportService) SaveTemplate(ctx context.Context, tenantID uuid.UUID, in SaveTemplateInput) (*mapping.Template, error) {
	name := strings.TrimSpace(in.Name)

	err := mapping.Validate(in.Mapping, in.Options)
	if name == "" {
		var merr *importerr.MappingError
		if !errors.As(err, &merr) {
			merr = &importerr.MappingError{}
		}
		merr.Problems = append(merr.Problems, "template name is required")
		err = merr
	}
	if err != nil {
		return nil, err
	}

	tpl := &mapping.Template{
		TenantID:  tenantID,
		Name:      name,
		Mapping:   in.Mapping.Clone(),
		Options:   in.Options,
		CreatedBy: in.CreatedBy,
	}
	if err := s.repo.CreateTemplate(ctx, tpl); err != nil {
		return nil, fmt.Errorf("failed to save template: %w", err)
	}

	s.logger.InfoContext(ctx, "import template saved",
		"tenant_id", tenantID,
		"template_id", tpl.ID,
		"name", tpl.Name)
	return tpl, nil
}

// ListTemplates returns the tenant's templates, newest first.
func (s *ImportService) ListTemplates(ctx context.Context, tenantID uuid.UUID) ([]*mapping.Template, error) {
	templates, err := s.repo.ListTemplates(ctx, tenantID)
	if err != nil {
		return nil, fmt.Errorf("failed to list templates: %w", err)
	}
	return templates, nil
}
