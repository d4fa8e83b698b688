package get_diagnostics

import (
	"context"
	"encoding/json"
	"fmt"
	"io"

	"github.com/rs/zerolog"
	"github.com/spf13/afero"
	"github.com/spf13/cobra"
	"gitlab.com/tozd/go/errors"

	"github.com/walteh/msbuildls/pkg/config"
	"github.com/walteh/msbuildls/pkg/diagnostic"
	"github.com/walteh/msbuildls/pkg/document"
	"github.com/walteh/msbuildls/pkg/lsp"
	"github.com/walteh/msbuildls/pkg/workspace"
)

var ErrDiagnosticsFound = errors.New("errors found")

type Handler struct {
	target string
	format string

	fs  afero.Fs
	out io.Writer
}

func NewGetDiagnosticsCommand() *cobra.Command {
	me := &Handler{}

	cmd := &cobra.Command{
		Use:   "get-diagnostics [file-or-directory]",
		Short: "report the diagnostics of a project file or of every project file under a directory",
	}

	cmd.Flags().StringVar(&me.format, "format", "text", "output format: text or json")
	cmd.Args = cobra.ExactArgs(1)

	cmd.RunE = func(cmd *cobra.Command, args []string) error {
		me.target = args[0]
		me.fs = afero.NewOsFs()
		me.out = cmd.OutOrStdout()
		return me.Run(cmd.Context())
	}

	return cmd
}

func (me *Handler) Run(ctx context.Context) error {
	if me.format != "text" && me.format != "json" {
		return errors.Errorf("unknown format %q", me.format)
	}

	cfg := config.FromContext(ctx)
	mgr := document.NewManager(document.WithFs(me.fs), document.WithMaxSize(cfg.Documents.MaxSizeBytes))

	files, err := me.files(ctx, mgr, cfg.Workspace.Patterns)
	if err != nil {
		return err
	}

	var results []lsp.PublishDiagnosticsParams
	var paths []string
	errorCount := 0
	for _, file := range files {
		snap, err := mgr.Snapshot(ctx, file)
		if err != nil {
			return errors.Errorf("loading %s: %w", file, err)
		}
		diags, err := diagnostic.Generate(ctx, snap)
		if err != nil {
			return errors.Errorf("generating diagnostics for %s: %w", file, err)
		}
		errorCount += len(diags.Errors)

		results = append(results, lsp.PublishDiagnosticsParams{
			URI:         snap.DocumentURI,
			Version:     snap.Version,
			Diagnostics: lsp.ToProtocolDiagnostics(diags, lsp.Mapper{Encoding: lsp.EncodingUTF8}),
		})
		paths = append(paths, snap.URI)
	}

	zerolog.Ctx(ctx).Debug().Int("files", len(files)).Int("errors", errorCount).Msg("diagnostics generated")

	if err := me.write(results, paths); err != nil {
		return err
	}

	if errorCount > 0 {
		return errors.Errorf("%w: %d in %d files", ErrDiagnosticsFound, errorCount, len(files))
	}
	return nil
}

// files resolves the target to the project files to check.
func (me *Handler) files(ctx context.Context, mgr *document.Manager, patterns []string) ([]string, error) {
	info, err := me.fs.Stat(me.target)
	if err != nil {
		return nil, errors.Errorf("reading %s: %w", me.target, err)
	}
	if !info.IsDir() {
		return []string{me.target}, nil
	}

	loaded, err := workspace.Load(ctx, me.fs, mgr, me.target, patterns)
	if err != nil {
		if len(loaded) == 0 {
			return nil, errors.Errorf("loading workspace: %w", err)
		}
		zerolog.Ctx(ctx).Warn().Err(err).Str("workspace", me.target).Msg("some project files could not be loaded")
	}
	return loaded, nil
}

// write prints results as json, or as one line per diagnostic keyed by the matching
// entry of paths.
func (me *Handler) write(results []lsp.PublishDiagnosticsParams, paths []string) error {
	if me.format == "json" {
		if results == nil {
			results = []lsp.PublishDiagnosticsParams{}
		}
		enc := json.NewEncoder(me.out)
		enc.SetIndent("", "  ")
		if err := enc.Encode(results); err != nil {
			return errors.Errorf("encoding diagnostics: %w", err)
		}
		return nil
	}

	for i, res := range results {
		for _, d := range res.Diagnostics {
			severity := "error"
			if d.Severity == lsp.SeverityWarning {
				severity = "warning"
			}
			// editors and terminals expect one-based line:col
			if _, err := fmt.Fprintf(me.out, "%s:%d:%d: %s: %s [%s]\n",
				paths[i], d.Range.Start.Line+1, d.Range.Start.Character+1, severity, d.Message, d.Source); err != nil {
				return errors.Errorf("writing diagnostics: %w", err)
			}
		}
	}
	return nil
}
