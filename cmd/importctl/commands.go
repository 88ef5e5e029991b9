package main

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"text/tabwriter"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"github.com/FACorreiaa/bookkeeper/internal/domain/import/decision"
	"github.com/FACorreiaa/bookkeeper/internal/domain/import/mapping"
	importservice "github.com/FACorreiaa/bookkeeper/internal/domain/import/service"
	"github.com/FACorreiaa/bookkeeper/internal/domain/import/wizard"
	"github.com/FACorreiaa/bookkeeper/pkg/money"
)

// cli carries the state shared by every subcommand.
type cli struct {
	svc     importer
	release func()
	logger  *slog.Logger

	tenantFlag string
	userFlag   string
	tenantID   uuid.UUID
	userID     *uuid.UUID
}

// newRootCmd builds the command tree. When svc is nil the service is opened
// from the environment before a subcommand runs.
func newRootCmd(svc importer, logger *slog.Logger) *cobra.Command {
	c := &cli{svc: svc, logger: logger}

	root := &cobra.Command{
		Use:           "importctl",
		Short:         "Preview and commit transaction imports",
		Long:          "importctl runs the import engine against the configured database. Connection settings come from the same environment variables as the API server.",
		SilenceUsage:  true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			return c.setup(cmd)
		},
		PersistentPostRun: func(cmd *cobra.Command, args []string) {
			if c.release != nil {
				c.release()
			}
		},
	}
	root.PersistentFlags().StringVar(&c.tenantFlag, "tenant", "", "Tenant id the import runs for")
	root.PersistentFlags().StringVar(&c.userFlag, "user", "", "User id recorded as the creator (optional)")
	_ = root.MarkPersistentFlagRequired("tenant")

	root.AddCommand(
		c.sampleCmd(),
		c.analyzeCmd(),
		c.previewCmd(),
		c.commitCmd(),
		c.templatesCmd(),
		c.sweepCmd(),
	)
	return root
}

func (c *cli) setup(cmd *cobra.Command) error {
	tenantID, err := uuid.Parse(c.tenantFlag)
	if err != nil {
		return fmt.Errorf("invalid --tenant: %w", err)
	}
	c.tenantID = tenantID
	if c.userID, err = parseOptionalUUID(c.userFlag); err != nil {
		return fmt.Errorf("invalid --user: %w", err)
	}

	if c.svc != nil {
		return nil
	}
	svc, release, err := openService(cmd.Context(), c.logger)
	if err != nil {
		return err
	}
	c.svc, c.release = svc, release
	return nil
}

// configFlags selects either a saved template or a mapping file.
type configFlags struct {
	mappingPath string
	templateID  string
	archive     bool
}

func (f *configFlags) register(cmd *cobra.Command) {
	cmd.Flags().StringVarP(&f.mappingPath, "mapping", "m", "", "YAML file with a column mapping and parsing options")
	cmd.Flags().StringVarP(&f.templateID, "template", "t", "", "Saved template id")
	cmd.Flags().BoolVar(&f.archive, "archive", false, "Treat the file as a zip archive with documents")
	cmd.MarkFlagsMutuallyExclusive("mapping", "template")
	cmd.MarkFlagsOneRequired("mapping", "template")
}

func (f *configFlags) config() (mapping.Config, error) {
	if f.templateID != "" {
		id, err := uuid.Parse(f.templateID)
		if err != nil {
			return nil, fmt.Errorf("invalid --template: %w", err)
		}
		return mapping.Templated{TemplateID: id}, nil
	}
	mf, err := readMappingFile(f.mappingPath)
	if err != nil {
		return nil, err
	}
	return mapping.Manual{Mapping: mf.Mapping, Options: mf.Options}, nil
}

func (f *configFlags) mode() wizard.Mode {
	if f.archive {
		return wizard.ModeArchive
	}
	return wizard.ModeDelimited
}

// mappingFile is the YAML layout read by --mapping. Options left out keep
// their default values.
type mappingFile struct {
	Name    string                 `yaml:"name"`
	Mapping mapping.ColumnMapping  `yaml:"mapping"`
	Options mapping.ParsingOptions `yaml:"options"`
}

var errEmptyMapping = errors.New("mapping file has no columns")

func readMappingFile(path string) (*mappingFile, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read mapping file: %w", err)
	}
	return parseMappingFile(raw)
}

func parseMappingFile(raw []byte) (*mappingFile, error) {
	mf := &mappingFile{Options: mapping.DefaultOptions()}
	if err := yaml.Unmarshal(raw, mf); err != nil {
		return nil, fmt.Errorf("invalid mapping file: %w", err)
	}
	if len(mf.Mapping) == 0 {
		return nil, errEmptyMapping
	}
	return mf, nil
}

func readUpload(path string, mode wizard.Mode) (importservice.Upload, error) {
	content, err := os.ReadFile(path)
	if err != nil {
		return importservice.Upload{}, fmt.Errorf("failed to read %s: %w", path, err)
	}
	return importservice.Upload{Mode: mode, FileName: filepath.Base(path), Content: content}, nil
}

func printJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

// printPreviewTable writes one line per row on the page and the file summary.
func printPreviewTable(w io.Writer, res *importservice.PreviewResult) error {
	tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "ROW\tSTATUS\tDATE\tTYPE\tAMOUNT\tDESCRIPTION\tNOTE")
	for _, r := range res.Rows {
		var date, typ, amount, desc, note string
		if n := r.Normalized; n != nil {
			date, typ, desc = n.Date, string(n.Type), n.Description
			amount = n.Amount
			if d, err := decimal.NewFromString(n.Amount); err == nil {
				amount = money.Display(d, n.Currency)
			}
		}
		switch {
		case len(r.Errors) > 0:
			note = r.Errors[0].Error()
		case r.IsDuplicateCandidate:
			note = fmt.Sprintf("possible duplicate (%d match)", len(r.DuplicateMatches))
		case len(r.Warnings) > 0:
			note = r.Warnings[0]
		}
		fmt.Fprintf(tw, "%d\t%s\t%s\t%s\t%s\t%s\t%s\n", r.RowIndex, r.Status, date, typ, amount, desc, note)
	}
	if err := tw.Flush(); err != nil {
		return err
	}
	s := res.Summary
	_, err := fmt.Fprintf(w, "\n%d rows: %d valid, %d invalid, %d possible duplicates (page %d of %d)\n",
		s.TotalRows, s.ValidRows, s.InvalidRows, s.DuplicateCandidates, res.Pagination.Page, res.Pagination.TotalPages)
	return err
}

func (c *cli) sampleCmd() *cobra.Command {
	var dateFormat, output string
	cmd := &cobra.Command{
		Use:   "sample",
		Short: "Write a sample file that imports with the default mapping",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			sample, err := c.svc.SampleFile(cmd.Context(), c.tenantID, mapping.DateFormat(dateFormat))
			if err != nil {
				return err
			}
			if output == "" || output == "-" {
				_, err = cmd.OutOrStdout().Write(sample.Content)
				return err
			}
			return os.WriteFile(output, sample.Content, 0o644)
		},
	}
	cmd.Flags().StringVar(&dateFormat, "date-format", string(mapping.DateDayMonthYear), "Date layout: DD/MM/YYYY, MM/DD/YYYY or YYYY-MM-DD")
	cmd.Flags().StringVarP(&output, "output", "o", "", "Output path (stdout when empty)")
	return cmd
}

func (c *cli) analyzeCmd() *cobra.Command {
	var archive bool
	cmd := &cobra.Command{
		Use:   "analyze FILE",
		Short: "Detect the layout of a file and suggest a mapping",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			mode := wizard.ModeDelimited
			if archive {
				mode = wizard.ModeArchive
			}
			upload, err := readUpload(args[0], mode)
			if err != nil {
				return err
			}
			res, err := c.svc.AnalyzeFile(cmd.Context(), c.tenantID, upload)
			if err != nil {
				return err
			}
			enc := yaml.NewEncoder(cmd.OutOrStdout())
			enc.SetIndent(2)
			if err := enc.Encode(&mappingFile{
				Name:    upload.FileName,
				Mapping: res.SuggestedMapping,
				Options: res.SuggestedOptions,
			}); err != nil {
				return err
			}
			return enc.Close()
		},
	}
	cmd.Flags().BoolVar(&archive, "archive", false, "Treat the file as a zip archive with documents")
	return cmd
}

func (c *cli) previewCmd() *cobra.Command {
	var (
		flags          configFlags
		page, pageSize int
		format         string
	)
	cmd := &cobra.Command{
		Use:   "preview FILE",
		Short: "Validate a file and list duplicate candidates without importing",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := flags.config()
			if err != nil {
				return err
			}
			upload, err := readUpload(args[0], flags.mode())
			if err != nil {
				return err
			}
			res, err := c.svc.Preview(cmd.Context(), c.tenantID, importservice.PreviewRequest{
				Upload:   upload,
				Config:   cfg,
				Page:     page,
				PageSize: pageSize,
			})
			if err != nil {
				return err
			}
			if format == "table" {
				return printPreviewTable(cmd.OutOrStdout(), res)
			}
			return printJSON(cmd.OutOrStdout(), res)
		},
	}
	flags.register(cmd)
	cmd.Flags().StringVar(&format, "format", "json", "Output format: json or table")
	cmd.Flags().IntVar(&page, "page", 1, "Page of rows to print")
	cmd.Flags().IntVar(&pageSize, "page-size", importservice.DefaultPageSize, "Rows per page")
	return cmd
}

func (c *cli) commitCmd() *cobra.Command {
	var (
		flags      configFlags
		importRows []int
		skipRows   []int
	)
	cmd := &cobra.Command{
		Use:   "commit FILE",
		Short: "Import a file",
		Long:  "Import every valid row of a file. Duplicate candidates are skipped unless listed with --import-row.",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := flags.config()
			if err != nil {
				return err
			}
			upload, err := readUpload(args[0], flags.mode())
			if err != nil {
				return err
			}

			ledger := decision.Ledger{}
			for _, row := range skipRows {
				ledger = ledger.With(row, decision.Skip)
			}
			for _, row := range importRows {
				ledger = ledger.With(row, decision.Import)
			}

			res, err := c.svc.Commit(cmd.Context(), c.tenantID, importservice.CommitRequest{
				Upload:    upload,
				Config:    cfg,
				Decisions: ledger,
				UserID:    c.userID,
			})
			if err != nil {
				return err
			}
			if res.FailedCount > 0 || len(res.DocumentFailures) > 0 {
				c.logger.Warn("import finished with failures",
					slog.Int("failed", res.FailedCount),
					slog.Int("document_failures", len(res.DocumentFailures)),
				)
			}
			return printJSON(cmd.OutOrStdout(), res)
		},
	}
	flags.register(cmd)
	cmd.Flags().IntSliceVar(&importRows, "import-row", nil, "Duplicate candidate rows to import anyway")
	cmd.Flags().IntSliceVar(&skipRows, "skip-row", nil, "Duplicate candidate rows to skip (the default)")
	return cmd
}

func (c *cli) templatesCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "templates",
		Short: "Manage saved import templates",
	}

	list := &cobra.Command{
		Use:   "list",
		Short: "List saved templates",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			templates, err := c.svc.ListTemplates(cmd.Context(), c.tenantID)
			if err != nil {
				return err
			}
			w := cmd.OutOrStdout()
			for _, t := range templates {
				fmt.Fprintf(w, "%s\t%s\t%s\n", t.ID, t.CreatedAt.Format("2006-01-02"), t.Name)
			}
			return nil
		},
	}

	var mappingPath string
	save := &cobra.Command{
		Use:   "save [NAME]",
		Short: "Save a mapping file as a template",
		Long:  "Save a mapping file as a template. NAME defaults to the name in the file.",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			mf, err := readMappingFile(mappingPath)
			if err != nil {
				return err
			}
			name := mf.Name
			if len(args) == 1 {
				name = args[0]
			}
			tpl, err := c.svc.SaveTemplate(cmd.Context(), c.tenantID, importservice.SaveTemplateInput{
				Name:      name,
				Mapping:   mf.Mapping,
				Options:   mf.Options,
				CreatedBy: c.userID,
			})
			if err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), tpl.ID)
			return nil
		},
	}
	save.Flags().StringVarP(&mappingPath, "mapping", "m", "", "YAML file with a column mapping and parsing options")
	_ = save.MarkFlagRequired("mapping")

	cmd.AddCommand(list, save)
	return cmd
}

func (c *cli) sweepCmd() *cobra.Command {
	var grace time.Duration
	cmd := &cobra.Command{
		Use:   "sweep",
		Short: "Remove archive documents whose import never finished",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			removed, err := c.svc.SweepOrphanedDocuments(cmd.Context(), grace)
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "removed %d orphaned documents\n", removed)
			return nil
		},
	}
	cmd.Flags().DurationVar(&grace, "grace", time.Hour, "Only remove uploads pending for longer than this")
	return cmd
}
