package handler

import (
	"context"
	"errors"
	"log/slog"
	"net/http"

	"connectrpc.com/connect"
	"github.com/google/uuid"

	"github.com/FACorreiaa/bookkeeper/internal/domain/import/decision"
	"github.com/FACorreiaa/bookkeeper/internal/domain/import/importerr"
	"github.com/FACorreiaa/bookkeeper/internal/domain/import/mapping"
	importservice "github.com/FACorreiaa/bookkeeper/internal/domain/import/service"
	"github.com/FACorreiaa/bookkeeper/pkg/interceptors"
)

const ImportServiceName = "bookkeeper.v1.ImportService"

const (
	GetSampleFileProcedure = "/" + ImportServiceName + "/GetSampleFile"
	AnalyzeFileProcedure   = "/" + ImportServiceName + "/AnalyzeFile"
	PreviewProcedure       = "/" + ImportServiceName + "/Preview"
	CommitProcedure        = "/" + ImportServiceName + "/Commit"
	ListTemplatesProcedure = "/" + ImportServiceName + "/ListTemplates"
	SaveTemplateProcedure  = "/" + ImportServiceName + "/SaveTemplate"
)

// ImportService is the part of the service layer the handler calls.
type ImportService interface {
	SampleFile(ctx context.Context, tenantID uuid.UUID, dateFormat mapping.DateFormat) (*importservice.SampleFile, error)
	AnalyzeFile(ctx context.Context, tenantID uuid.UUID, upload importservice.Upload) (*importservice.AnalyzeResult, error)
	Preview(ctx context.Context, tenantID uuid.UUID, req importservice.PreviewRequest) (*importservice.PreviewResult, error)
	Commit(ctx context.Context, tenantID uuid.UUID, req importservice.CommitRequest) (*importservice.CommitResult, error)
	SaveTemplate(ctx context.Context, tenantID uuid.UUID, in importservice.SaveTemplateInput) (*mapping.Template, error)
	ListTemplates(ctx context.Context, tenantID uuid.UUID) ([]*mapping.Template, error)
}

var _ ImportService = (*importservice.ImportService)(nil)

// ImportHandler handles Import service RPCs
type ImportHandler struct {
	importSvc ImportService
	logger    *slog.Logger
}

// NewImportHandler creates a new import handler
func NewImportHandler(importSvc ImportService, logger *slog.Logger) *ImportHandler {
	return &ImportHandler{
		importSvc: importSvc,
		logger:    logger,
	}
}

// Routes builds the HTTP handler for every procedure. Mount it on the
// returned path prefix.
func (h *ImportHandler) Routes(opts ...connect.HandlerOption) (string, http.Handler) {
	getSampleFile := connect.NewUnaryHandler(GetSampleFileProcedure, h.GetSampleFile,
		connect.WithIdempotency(connect.IdempotencyNoSideEffects),
		connect.WithHandlerOptions(opts...),
	)
	analyzeFile := connect.NewUnaryHandler(AnalyzeFileProcedure, h.AnalyzeFile,
		connect.WithIdempotency(connect.IdempotencyNoSideEffects),
		connect.WithHandlerOptions(opts...),
	)
	preview := connect.NewUnaryHandler(PreviewProcedure, h.Preview,
		connect.WithIdempotency(connect.IdempotencyNoSideEffects),
		connect.WithHandlerOptions(opts...),
	)
	commit := connect.NewUnaryHandler(CommitProcedure, h.Commit, opts...)
	listTemplates := connect.NewUnaryHandler(ListTemplatesProcedure, h.ListTemplates,
		connect.WithIdempotency(connect.IdempotencyNoSideEffects),
		connect.WithHandlerOptions(opts...),
	)
	saveTemplate := connect.NewUnaryHandler(SaveTemplateProcedure, h.SaveTemplate, opts...)

	return "/" + ImportServiceName + "/", http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case GetSampleFileProcedure:
			getSampleFile.ServeHTTP(w, r)
		case AnalyzeFileProcedure:
			analyzeFile.ServeHTTP(w, r)
		case PreviewProcedure:
			preview.ServeHTTP(w, r)
		case CommitProcedure:
			commit.ServeHTTP(w, r)
		case ListTemplatesProcedure:
			listTemplates.ServeHTTP(w, r)
		case SaveTemplateProcedure:
			saveTemplate.ServeHTTP(w, r)
		default:
			http.NotFound(w, r)
		}
	})
}

// identity reads the caller from the auth context. The user id is optional;
// the tenant is not.
func identity(ctx context.Context) (tenantID uuid.UUID, userID *uuid.UUID, err error) {
	tenantIDStr, ok := interceptors.GetTenantIDFromContext(ctx)
	if !ok || tenantIDStr == "" {
		return uuid.Nil, nil, connect.NewError(connect.CodeUnauthenticated, nil)
	}
	tenantID, err = uuid.Parse(tenantIDStr)
	if err != nil {
		return uuid.Nil, nil, connect.NewError(connect.CodeUnauthenticated, err)
	}

	if userIDStr, ok := interceptors.GetUserIDFromContext(ctx); ok && userIDStr != "" {
		if id, err := uuid.Parse(userIDStr); err == nil {
			userID = &id
		}
	}
	return tenantID, userID, nil
}

// GetSampleFile returns an example upload for the caller's tenant
func (h *ImportHandler) GetSampleFile(ctx context.Context, req *connect.Request[GetSampleFileRequest]) (*connect.Response[GetSampleFileResponse], error) {
	tenantID, _, err := identity(ctx)
	if err != nil {
		return nil, err
	}

	sample, err := h.importSvc.SampleFile(ctx, tenantID, mapping.DateFormat(req.Msg.DateFormat))
	if err != nil {
		return nil, h.toConnectError(ctx, "failed to build sample file", err)
	}

	return connect.NewResponse(&GetSampleFileResponse{
		FileName: sample.FileName,
		Content:  sample.Content,
	}), nil
}

// AnalyzeFile detects the layout of an upload and suggests a mapping
func (h *ImportHandler) AnalyzeFile(ctx context.Context, req *connect.Request[AnalyzeFileRequest]) (*connect.Response[AnalyzeFileResponse], error) {
	tenantID, _, err := identity(ctx)
	if err != nil {
		return nil, err
	}

	result, err := h.importSvc.AnalyzeFile(ctx, tenantID, req.Msg.upload())
	if err != nil {
		return nil, h.toConnectError(ctx, "failed to analyze file", err)
	}

	resp := &AnalyzeFileResponse{
		SuggestedMapping:  result.SuggestedMapping,
		SuggestedOptions:  result.SuggestedOptions,
		Warnings:          result.Warnings,
		DocumentCount:     result.DocumentCount,
		MatchingTemplates: result.MatchingTemplates,
	}
	if result.MatchingTemplates == nil {
		resp.MatchingTemplates = []*mapping.Template{}
	}
	if cfg := result.Config; cfg != nil {
		if cfg.Delimiter != 0 {
			resp.Delimiter = string(cfg.Delimiter)
		}
		resp.SkipLines = cfg.SkipLines
		resp.Headers = cfg.Headers
		resp.Fingerprint = cfg.Fingerprint
		resp.SampleRows = cfg.SampleRows
	}
	if d := result.Dialect; d != nil {
		resp.Confidence = d.Confidence
		resp.CurrencyHint = d.CurrencyHint
	}

	return connect.NewResponse(resp), nil
}

// Preview validates the file and flags duplicate candidates without writing
func (h *ImportHandler) Preview(ctx context.Context, req *connect.Request[PreviewRequest]) (*connect.Response[importservice.PreviewResult], error) {
	tenantID, _, err := identity(ctx)
	if err != nil {
		return nil, err
	}

	cfg, err := req.Msg.Config.toConfig()
	if err != nil {
		return nil, connect.NewError(connect.CodeInvalidArgument, err)
	}

	result, err := h.importSvc.Preview(ctx, tenantID, importservice.PreviewRequest{
		Upload:   req.Msg.upload(),
		Config:   cfg,
		Page:     req.Msg.Page,
		PageSize: req.Msg.PageSize,
	})
	if err != nil {
		return nil, h.toConnectError(ctx, "failed to preview import", err)
	}

	return connect.NewResponse(result), nil
}

// Commit imports the file, applying the caller's duplicate decisions
func (h *ImportHandler) Commit(ctx context.Context, req *connect.Request[CommitRequest]) (*connect.Response[importservice.CommitResult], error) {
	tenantID, userID, err := identity(ctx)
	if err != nil {
		return nil, err
	}

	cfg, err := req.Msg.Config.toConfig()
	if err != nil {
		return nil, connect.NewError(connect.CodeInvalidArgument, err)
	}
	ledger, err := decision.FromStrings(req.Msg.Decisions)
	if err != nil {
		return nil, connect.NewError(connect.CodeInvalidArgument, err)
	}

	result, err := h.importSvc.Commit(ctx, tenantID, importservice.CommitRequest{
		Upload:    req.Msg.upload(),
		Config:    cfg,
		Decisions: ledger,
		UserID:    userID,
	})
	if err != nil {
		return nil, h.toConnectError(ctx, "failed to commit import", err)
	}

	return connect.NewResponse(result), nil
}

// ListTemplates returns the tenant's saved templates
func (h *ImportHandler) ListTemplates(ctx context.Context, req *connect.Request[ListTemplatesRequest]) (*connect.Response[ListTemplatesResponse], error) {
	tenantID, _, err := identity(ctx)
	if err != nil {
		return nil, err
	}

	templates, err := h.importSvc.ListTemplates(ctx, tenantID)
	if err != nil {
		return nil, h.toConnectError(ctx, "failed to list templates", err)
	}
	if templates == nil {
		templates = []*mapping.Template{}
	}

	return connect.NewResponse(&ListTemplatesResponse{Templates: templates}), nil
}

// SaveTemplate stores a mapping for reuse
func (h *ImportHandler) SaveTemplate(ctx context.Context, req *connect.Request[SaveTemplateRequest]) (*connect.Response[SaveTemplateResponse], error) {
	tenantID, userID, err := identity(ctx)
	if err != nil {
		return nil, err
	}

	opts, err := decodeOptions(req.Msg.Options)
	if err != nil {
		return nil, connect.NewError(connect.CodeInvalidArgument, err)
	}

	tpl, err := h.importSvc.SaveTemplate(ctx, tenantID, importservice.SaveTemplateInput{
		Name:      req.Msg.Name,
		Mapping:   req.Msg.Mapping,
		Options:   opts,
		CreatedBy: userID,
	})
	if err != nil {
		return nil, h.toConnectError(ctx, "failed to save template", err)
	}

	return connect.NewResponse(&SaveTemplateResponse{TemplateID: tpl.ID}), nil
}

// toConnectError maps service errors to Connect codes. Only unexpected
// errors are logged; the rest are the caller's to fix.
func (h *ImportHandler) toConnectError(ctx context.Context, msg string, err error) error {
	switch {
	case errors.Is(err, importerr.ErrTemplateNotFound):
		return connect.NewError(connect.CodeNotFound, err)
	case errors.Is(err, importerr.ErrTemplateRequired):
		return connect.NewError(connect.CodeFailedPrecondition, err)
	case errors.Is(err, importservice.ErrUnknownMode),
		importerr.IsParse(err),
		importerr.IsMapping(err):
		return connect.NewError(connect.CodeInvalidArgument, err)
	case errors.Is(err, context.Canceled):
		return connect.NewError(connect.CodeCanceled, err)
	case errors.Is(err, context.DeadlineExceeded):
		return connect.NewError(connect.CodeDeadlineExceeded, err)
	default:
		h.logger.ErrorContext(ctx, msg, slog.Any("error", err))
		return connect.NewError(connect.CodeInternal, errors.New(msg))
	}
}
