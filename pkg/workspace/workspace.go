// Package workspace finds project files on disk and loads them into a document manager.
package workspace

import (
	"context"
	"path"
	"path/filepath"
	"slices"
	"strings"

	"github.com/beevik/etree"
	"github.com/bmatcuk/doublestar/v4"
	"github.com/hashicorp/go-multierror"
	"github.com/rs/zerolog"
	"github.com/spf13/afero"
	"gitlab.com/tozd/go/errors"

	"github.com/walteh/msbuildls/pkg/document"
)

var ErrNotProject = errors.New("not a project file")

// DefaultPatterns matches every kind of project and import file.
var DefaultPatterns = []string{"**/*.{csproj,vbproj,fsproj,proj,props,targets}"}

// build output and tooling directories never hold source projects
var skippedDirs = map[string]bool{
	"bin":          true,
	"obj":          true,
	".git":         true,
	"node_modules": true,
}

func skipped(rel string) bool {
	for _, seg := range strings.Split(path.Dir(rel), "/") {
		if skippedDirs[seg] {
			return true
		}
	}
	return false
}

// Discover returns the files under root matching any of patterns, sorted and without
// duplicates. Patterns are doublestar globs relative to root.
func Discover(fs afero.Fs, root string, patterns []string) ([]string, error) {
	if len(patterns) == 0 {
		patterns = DefaultPatterns
	}
	if ok, err := afero.DirExists(fs, root); err != nil {
		return nil, errors.Errorf("checking workspace root %s: %w", root, err)
	} else if !ok {
		return nil, errors.Errorf("workspace root %s is not a directory", root)
	}

	fsys := afero.NewIOFS(afero.NewBasePathFs(fs, root))

	var found []string
	for _, pattern := range patterns {
		if !doublestar.ValidatePattern(pattern) {
			return nil, errors.Errorf("invalid pattern %q", pattern)
		}
		matches, err := doublestar.Glob(fsys, pattern, doublestar.WithFilesOnly())
		if err != nil {
			return nil, errors.Errorf("globbing %q: %w", pattern, err)
		}
		for _, m := range matches {
			if skipped(m) {
				continue
			}
			found = append(found, filepath.Join(root, filepath.FromSlash(m)))
		}
	}

	slices.Sort(found)
	return slices.Compact(found), nil
}

// Load discovers project files under root and opens each one in mgr at version 0.
// Files that fail to load are reported together; the rest are still opened.
func Load(ctx context.Context, fs afero.Fs, mgr *document.Manager, root string, patterns []string) ([]string, error) {
	files, err := Discover(fs, root, patterns)
	if err != nil {
		return nil, err
	}

	logger := zerolog.Ctx(ctx)

	var result *multierror.Error
	loaded := make([]string, 0, len(files))
	for _, file := range files {
		if err := ctx.Err(); err != nil {
			return loaded, errors.Errorf("loading workspace %s: %w", root, err)
		}

		text, err := afero.ReadFile(fs, file)
		if err != nil {
			result = multierror.Append(result, errors.Errorf("reading %s: %w", file, err))
			continue
		}
		if _, err := mgr.Open(ctx, file, 0, string(text)); err != nil {
			result = multierror.Append(result, errors.Errorf("opening %s: %w", file, err))
			continue
		}
		loaded = append(loaded, file)
	}

	logger.Debug().Str("root", root).Int("found", len(files)).Int("loaded", len(loaded)).Msg("loaded workspace")

	return loaded, result.ErrorOrNil()
}

// ProjectInfo is the header information of a project file.
type ProjectInfo struct {
	Path           string
	Sdks           []string
	ToolsVersion   string
	DefaultTargets []string
	Imports        []string
}

// ReadProjectInfo reads the root element of a well-formed project file. Unlike the
// editor model it rejects malformed XML.
func ReadProjectInfo(fs afero.Fs, file string) (*ProjectInfo, error) {
	data, err := afero.ReadFile(fs, file)
	if err != nil {
		return nil, errors.Errorf("reading %s: %w", file, err)
	}
	return ParseProjectInfo(file, data)
}

// ParseProjectInfo reads the project header from the text of file.
func ParseProjectInfo(file string, data []byte) (*ProjectInfo, error) {
	doc := etree.NewDocument()
	if err := doc.ReadFromBytes(data); err != nil {
		return nil, errors.Errorf("parsing %s: %w", file, err)
	}

	root := doc.Root()
	if root == nil || root.Tag != "Project" {
		return nil, errors.Errorf("%w: %s", ErrNotProject, file)
	}

	info := &ProjectInfo{
		Path:           file,
		Sdks:           splitList(root.SelectAttrValue("Sdk", "")),
		ToolsVersion:   root.SelectAttrValue("ToolsVersion", ""),
		DefaultTargets: splitList(root.SelectAttrValue("DefaultTargets", "")),
	}
	for _, imp := range root.SelectElements("Import") {
		if p := imp.SelectAttrValue("Project", ""); p != "" {
			info.Imports = append(info.Imports, p)
		}
	}
	return info, nil
}

func splitList(s string) []string {
	var out []string
	for _, part := range strings.Split(s, ";") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}
