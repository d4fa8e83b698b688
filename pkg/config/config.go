// Package config loads the language server configuration from YAML or HCL.
package config

import (
	"bytes"
	"context"
	"io"
	"slices"
	"strings"
	"time"

	"github.com/bmatcuk/doublestar/v4"
	"github.com/hashicorp/hcl/v2"
	"github.com/hashicorp/hcl/v2/gohcl"
	"github.com/hashicorp/hcl/v2/hclparse"
	"github.com/rs/zerolog"
	"github.com/spf13/afero"
	"github.com/zclconf/go-cty/cty"
	"gitlab.com/tozd/go/errors"
	"go.uber.org/multierr"
	"gopkg.in/yaml.v3"

	"github.com/walteh/msbuildls/pkg/workspace"
)

var ErrInvalidConfig = errors.New("invalid configuration")

const (
	DefaultTimeoutSeconds = 5
	DefaultMaxSizeBytes   = 8 << 20
)

// 📝 Config file structure
type Config struct {
	Reflector *ReflectorBlock `yaml:"reflector,omitempty" hcl:"reflector,block"`
	Logging   *LoggingBlock   `yaml:"logging,omitempty" hcl:"logging,block"`
	Documents *DocumentsBlock `yaml:"documents,omitempty" hcl:"documents,block"`
	Workspace *WorkspaceBlock `yaml:"workspace,omitempty" hcl:"workspace,block"`
}

// 🔧 External task reflector tool
type ReflectorBlock struct {
	Command        string   `yaml:"command,omitempty" hcl:"command,optional"`
	Args           []string `yaml:"args,omitempty" hcl:"args,optional"`
	TimeoutSeconds int      `yaml:"timeout_seconds,omitempty" hcl:"timeout_seconds,optional"`
}

type LoggingBlock struct {
	Level string `yaml:"level,omitempty" hcl:"level,optional"`
	Color bool   `yaml:"color,omitempty" hcl:"color,optional"`
}

type DocumentsBlock struct {
	MaxSizeBytes int `yaml:"max_size_bytes,omitempty" hcl:"max_size_bytes,optional"`
}

type WorkspaceBlock struct {
	Patterns []string `yaml:"patterns,omitempty" hcl:"patterns,optional"`
}

// Default returns the configuration used when no file is given.
func Default() *Config {
	return &Config{
		Reflector: &ReflectorBlock{TimeoutSeconds: DefaultTimeoutSeconds},
		Logging:   &LoggingBlock{Level: zerolog.InfoLevel.String()},
		Documents: &DocumentsBlock{MaxSizeBytes: DefaultMaxSizeBytes},
		Workspace: &WorkspaceBlock{Patterns: slices.Clone(workspace.DefaultPatterns)},
	}
}

// Load reads the file at path. YAML is used for .yaml and .yml files, HCL otherwise.
// Settings missing from the file keep their defaults.
func Load(fs afero.Fs, path string) (*Config, error) {
	data, err := afero.ReadFile(fs, path)
	if err != nil {
		return nil, errors.Errorf("reading config file: %w", err)
	}

	var file Config
	if strings.HasSuffix(path, ".yaml") || strings.HasSuffix(path, ".yml") {
		decoder := yaml.NewDecoder(bytes.NewReader(data))
		decoder.KnownFields(true)
		if err := decoder.Decode(&file); err != nil && !errors.Is(err, io.EOF) {
			return nil, errors.Errorf("parsing YAML: %w", err)
		}
	} else {
		parser := hclparse.NewParser()
		hclFile, diags := parser.ParseHCL(data, path)
		if diags.HasErrors() {
			return nil, errors.Errorf("parsing HCL: %s", diags.Error())
		}

		ctx := &hcl.EvalContext{
			Variables: map[string]cty.Value{},
		}
		diags = gohcl.DecodeBody(hclFile.Body, ctx, &file)
		if diags.HasErrors() {
			return nil, errors.Errorf("decoding HCL: %s", diags.Error())
		}
	}

	cfg := Default()
	cfg.merge(&file)
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *Config) merge(o *Config) {
	if r := o.Reflector; r != nil {
		if r.Command != "" {
			c.Reflector.Command = r.Command
		}
		if r.Args != nil {
			c.Reflector.Args = r.Args
		}
		if r.TimeoutSeconds != 0 {
			c.Reflector.TimeoutSeconds = r.TimeoutSeconds
		}
	}
	if l := o.Logging; l != nil {
		if l.Level != "" {
			c.Logging.Level = l.Level
		}
		c.Logging.Color = l.Color
	}
	if d := o.Documents; d != nil && d.MaxSizeBytes != 0 {
		c.Documents.MaxSizeBytes = d.MaxSizeBytes
	}
	if w := o.Workspace; w != nil && len(w.Patterns) > 0 {
		c.Workspace.Patterns = w.Patterns
	}
}

// Validate reports every problem with the configuration at once.
func (c *Config) Validate() error {
	var errs error
	if c.Reflector == nil || c.Logging == nil || c.Documents == nil || c.Workspace == nil {
		return errors.Errorf("%w: missing section", ErrInvalidConfig)
	}
	if c.Reflector.TimeoutSeconds <= 0 {
		errs = multierr.Append(errs, errors.Errorf("reflector.timeout_seconds must be positive, got %d", c.Reflector.TimeoutSeconds))
	}
	if c.Reflector.Command == "" && len(c.Reflector.Args) > 0 {
		errs = multierr.Append(errs, errors.New("reflector.args given without reflector.command"))
	}
	if _, err := zerolog.ParseLevel(c.Logging.Level); err != nil {
		errs = multierr.Append(errs, errors.Errorf("logging.level: %w", err))
	}
	if c.Documents.MaxSizeBytes <= 0 {
		errs = multierr.Append(errs, errors.Errorf("documents.max_size_bytes must be positive, got %d", c.Documents.MaxSizeBytes))
	}
	for _, p := range c.Workspace.Patterns {
		if !doublestar.ValidatePattern(p) {
			errs = multierr.Append(errs, errors.Errorf("workspace.patterns: invalid pattern %q", p))
		}
	}
	if errs != nil {
		return errors.Errorf("%w: %s", ErrInvalidConfig, errs.Error())
	}
	return nil
}

func (c *Config) ReflectorTimeout() time.Duration {
	return time.Duration(c.Reflector.TimeoutSeconds) * time.Second
}

func (c *Config) LogLevel() zerolog.Level {
	level, err := zerolog.ParseLevel(c.Logging.Level)
	if err != nil {
		return zerolog.InfoLevel
	}
	return level
}

type contextKey struct{}

func (c *Config) WithContext(ctx context.Context) context.Context {
	return context.WithValue(ctx, contextKey{}, c)
}

// FromContext returns the configuration stored in ctx, or the defaults.
func FromContext(ctx context.Context) *Config {
	if c, ok := ctx.Value(contextKey{}).(*Config); ok && c != nil {
		return c
	}
	return Default()
}
