package handler

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"

	"connectrpc.com/connect"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/FACorreiaa/bookkeeper/internal/domain/import/decision"
	"github.com/FACorreiaa/bookkeeper/internal/domain/import/importerr"
	"github.com/FACorreiaa/bookkeeper/internal/domain/import/mapping"
	importservice "github.com/FACorreiaa/bookkeeper/internal/domain/import/service"
	"github.com/FACorreiaa/bookkeeper/internal/domain/import/wizard"
	"github.com/FACorreiaa/bookkeeper/pkg/codec"
	"github.com/FACorreiaa/bookkeeper/pkg/interceptors"
)

// fakeService records what the handler passed and returns canned results.
type fakeService struct {
	tenantID   uuid.UUID
	preview    importservice.PreviewRequest
	commit     importservice.CommitRequest
	saved      importservice.SaveTemplateInput
	dateFormat mapping.DateFormat
	err        error
}

func (f *fakeService) SampleFile(ctx context.Context, tenantID uuid.UUID, dateFormat mapping.DateFormat) (*importservice.SampleFile, error) {
	f.tenantID, f.dateFormat = tenantID, dateFormat
	if f.err != nil {
		return nil, f.err
	}
	return &importservice.SampleFile{FileName: "sample-transactions.csv", Content: []byte("Date,Amount\n")}, nil
}

func (f *fakeService) AnalyzeFile(ctx context.Context, tenantID uuid.UUID, upload importservice.Upload) (*importservice.AnalyzeResult, error) {
	return nil, f.err
}

func (f *fakeService) Preview(ctx context.Context, tenantID uuid.UUID, req importservice.PreviewRequest) (*importservice.PreviewResult, error) {
	f.tenantID, f.preview = tenantID, req
	if f.err != nil {
		return nil, f.err
	}
	return &importservice.PreviewResult{
		Headers: []string{"Date"},
		Summary: importservice.Summary{TotalRows: 1, ValidRows: 1},
	}, nil
}

func (f *fakeService) Commit(ctx context.Context, tenantID uuid.UUID, req importservice.CommitRequest) (*importservice.CommitResult, error) {
	f.tenantID, f.commit = tenantID, req
	if f.err != nil {
		return nil, f.err
	}
	return &importservice.CommitResult{ImportedCount: 2, SkippedDuplicateCount: 1}, nil
}

func (f *fakeService) SaveTemplate(ctx context.Context, tenantID uuid.UUID, in importservice.SaveTemplateInput) (*mapping.Template, error) {
	f.tenantID, f.saved = tenantID, in
	if f.err != nil {
		return nil, f.err
	}
	return &mapping.Template{ID: uuid.New(), TenantID: tenantID, Name: in.Name}, nil
}

func (f *fakeService) ListTemplates(ctx context.Context, tenantID uuid.UUID) ([]*mapping.Template, error) {
	return nil, f.err
}

type testEnv struct {
	svc      *fakeService
	server   *httptest.Server
	tenantID uuid.UUID
	userID   uuid.UUID
}

func newTestEnv(t *testing.T, authenticated bool) *testEnv {
	t.Helper()
	env := &testEnv{svc: &fakeService{}, tenantID: uuid.New(), userID: uuid.New()}

	identity := connect.UnaryInterceptorFunc(func(next connect.UnaryFunc) connect.UnaryFunc {
		return func(ctx context.Context, req connect.AnyRequest) (connect.AnyResponse, error) {
			if authenticated {
				ctx = interceptors.WithIdentity(ctx, env.userID.String(), env.tenantID.String())
			}
			return next(ctx, req)
		}
	})

	h := NewImportHandler(env.svc, slog.New(slog.NewTextHandler(io.Discard, nil)))
	path, handler := h.Routes(
		connect.WithCodec(codec.JSON{}),
		connect.WithInterceptors(identity),
	)
	mux := http.NewServeMux()
	mux.Handle(path, handler)

	env.server = httptest.NewServer(mux)
	t.Cleanup(env.server.Close)
	return env
}

func newClient[Req, Res any](env *testEnv, procedure string, opts ...connect.ClientOption) *connect.Client[Req, Res] {
	opts = append([]connect.ClientOption{connect.WithCodec(codec.JSON{})}, opts...)
	return connect.NewClient[Req, Res](env.server.Client(), env.server.URL+procedure, opts...)
}

func strPtr(s string) *string { return &s }

func TestPreview_ManualConfig(t *testing.T) {
	env := newTestEnv(t, true)
	client := newClient[PreviewRequest, importservice.PreviewResult](env, PreviewProcedure)

	resp, err := client.CallUnary(context.Background(), connect.NewRequest(&PreviewRequest{
		File: File{FileName: "bank.csv", Content: []byte("Date\n01/01/2024\n")},
		Config: &MappingConfig{
			Mapping: mapping.ColumnMapping{mapping.FieldDate: "Date"},
			Options: []byte(`{"dateFormat":"YYYY-MM-DD"}`),
		},
		Page:     2,
		PageSize: 10,
	}))
	require.NoError(t, err)
	assert.Equal(t, 1, resp.Msg.Summary.ValidRows)

	got := env.svc.preview
	assert.Equal(t, env.tenantID, env.svc.tenantID)
	assert.Equal(t, wizard.ModeDelimited, got.Upload.Mode, "mode defaults to delimited")
	assert.Equal(t, []byte("Date\n01/01/2024\n"), got.Upload.Content)
	assert.Equal(t, 2, got.Page)

	manual, ok := got.Config.(mapping.Manual)
	require.True(t, ok)
	assert.Equal(t, mapping.DateISO, manual.Options.DateFormat)
	assert.Equal(t, ".", manual.Options.DecimalSeparator, "unspecified options keep their defaults")
	assert.True(t, manual.Options.HasHeaders)
}

func TestPreview_ConfigValidation(t *testing.T) {
	env := newTestEnv(t, true)
	client := newClient[PreviewRequest, importservice.PreviewResult](env, PreviewProcedure)
	templateID := uuid.NewString()

	tests := []struct {
		name   string
		config *MappingConfig
	}{
		{"missing config", nil},
		{"template and mapping", &MappingConfig{TemplateID: &templateID, Mapping: mapping.ColumnMapping{mapping.FieldDate: "Date"}}},
		{"template and options", &MappingConfig{TemplateID: &templateID, Options: []byte(`{"delimiter":";"}`)}},
		{"bad template id", &MappingConfig{TemplateID: strPtr("nope")}},
		{"neither", &MappingConfig{}},
		{"malformed options", &MappingConfig{Mapping: mapping.ColumnMapping{mapping.FieldDate: "Date"}, Options: []byte(`{"hasHeaders":"yes"}`)}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := client.CallUnary(context.Background(), connect.NewRequest(&PreviewRequest{Config: tt.config}))
			require.Error(t, err)
			assert.Equal(t, connect.CodeInvalidArgument, connect.CodeOf(err))
		})
	}
}

func TestPreview_TemplateConfig(t *testing.T) {
	env := newTestEnv(t, true)
	client := newClient[PreviewRequest, importservice.PreviewResult](env, PreviewProcedure)
	id := uuid.New()
	idStr := id.String()

	_, err := client.CallUnary(context.Background(), connect.NewRequest(&PreviewRequest{
		File:   File{Mode: string(wizard.ModeArchive)},
		Config: &MappingConfig{TemplateID: &idStr},
	}))
	require.NoError(t, err)
	assert.Equal(t, mapping.Templated{TemplateID: id}, env.svc.preview.Config)
	assert.Equal(t, wizard.ModeArchive, env.svc.preview.Upload.Mode)
}

func TestErrorMapping(t *testing.T) {
	tests := []struct {
		err  error
		want connect.Code
	}{
		{&importerr.ParseError{Message: "bad quote"}, connect.CodeInvalidArgument},
		{&importerr.MappingError{Missing: []string{"amount"}}, connect.CodeInvalidArgument},
		{&importerr.MappingError{Err: fmt.Errorf("%w: x", importerr.ErrTemplateNotFound)}, connect.CodeNotFound},
		{importerr.ErrTemplateRequired, connect.CodeFailedPrecondition},
		{fmt.Errorf("%w %q", importservice.ErrUnknownMode, "fax"), connect.CodeInvalidArgument},
		{errors.New("connection reset"), connect.CodeInternal},
	}

	for _, tt := range tests {
		t.Run(tt.err.Error(), func(t *testing.T) {
			env := newTestEnv(t, true)
			env.svc.err = tt.err
			client := newClient[PreviewRequest, importservice.PreviewResult](env, PreviewProcedure)

			_, err := client.CallUnary(context.Background(), connect.NewRequest(&PreviewRequest{
				Config: &MappingConfig{Mapping: mapping.ColumnMapping{mapping.FieldDate: "Date"}},
			}))
			require.Error(t, err)
			assert.Equal(t, tt.want, connect.CodeOf(err))
		})
	}
}

func TestCommit_PassesDecisionsAndUser(t *testing.T) {
	env := newTestEnv(t, true)
	client := newClient[CommitRequest, importservice.CommitResult](env, CommitProcedure)

	resp, err := client.CallUnary(context.Background(), connect.NewRequest(&CommitRequest{
		File:      File{Mode: string(wizard.ModeDelimited), Content: []byte("x")},
		Config:    &MappingConfig{Mapping: mapping.ColumnMapping{mapping.FieldDate: "Date"}},
		Decisions: map[int]string{3: "import", 4: "SKIP"},
	}))
	require.NoError(t, err)
	assert.Equal(t, 2, resp.Msg.ImportedCount)

	got := env.svc.commit
	assert.Equal(t, decision.Import, got.Decisions.For(3))
	assert.Equal(t, decision.Skip, got.Decisions.For(4))
	require.NotNil(t, got.UserID)
	assert.Equal(t, env.userID, *got.UserID)

	_, err = client.CallUnary(context.Background(), connect.NewRequest(&CommitRequest{
		Config:    &MappingConfig{Mapping: mapping.ColumnMapping{mapping.FieldDate: "Date"}},
		Decisions: map[int]string{1: "maybe"},
	}))
	assert.Equal(t, connect.CodeInvalidArgument, connect.CodeOf(err))
}

func TestGetSampleFile_OverGET(t *testing.T) {
	env := newTestEnv(t, true)
	client := newClient[GetSampleFileRequest, GetSampleFileResponse](env, GetSampleFileProcedure,
		connect.WithHTTPGet(),
		connect.WithIdempotency(connect.IdempotencyNoSideEffects),
	)

	resp, err := client.CallUnary(context.Background(), connect.NewRequest(&GetSampleFileRequest{DateFormat: "YYYY-MM-DD"}))
	require.NoError(t, err)
	assert.Equal(t, "sample-transactions.csv", resp.Msg.FileName)
	assert.Equal(t, mapping.DateISO, env.svc.dateFormat)
}

func TestSaveAndListTemplates(t *testing.T) {
	env := newTestEnv(t, true)
	save := newClient[SaveTemplateRequest, SaveTemplateResponse](env, SaveTemplateProcedure)

	resp, err := save.CallUnary(context.Background(), connect.NewRequest(&SaveTemplateRequest{
		Name:    "Bank",
		Mapping: mapping.ColumnMapping{mapping.FieldDate: "Date"},
		Options: []byte(`{"delimiter":";"}`),
	}))
	require.NoError(t, err)
	assert.NotEqual(t, uuid.Nil, resp.Msg.TemplateID)
	assert.Equal(t, ";", env.svc.saved.Options.Delimiter)
	assert.Equal(t, mapping.DateDayMonthYear, env.svc.saved.Options.DateFormat)
	require.NotNil(t, env.svc.saved.CreatedBy)

	list := newClient[ListTemplatesRequest, ListTemplatesResponse](env, ListTemplatesProcedure)
	listed, err := list.CallUnary(context.Background(), connect.NewRequest(&ListTemplatesRequest{}))
	require.NoError(t, err)
	assert.NotNil(t, listed.Msg.Templates)
	assert.Empty(t, listed.Msg.Templates)
}

func TestUnauthenticated(t *testing.T) {
	env := newTestEnv(t, false)
	client := newClient[ListTemplatesRequest, ListTemplatesResponse](env, ListTemplatesProcedure)

	_, err := client.CallUnary(context.Background(), connect.NewRequest(&ListTemplatesRequest{}))
	assert.Equal(t, connect.CodeUnauthenticated, connect.CodeOf(err))
}
