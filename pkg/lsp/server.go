// Package lsp serves the project-file model over the language server protocol.
package lsp

import (
	"context"
	"encoding/json"
	"io"
	"sync"

	"github.com/creachadair/jrpc2"
	"github.com/creachadair/jrpc2/channel"
	"github.com/creachadair/jrpc2/handler"
	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/spf13/afero"
	"gitlab.com/tozd/go/errors"

	"github.com/walteh/msbuildls/pkg/config"
	"github.com/walteh/msbuildls/pkg/diagnostic"
	"github.com/walteh/msbuildls/pkg/document"
	"github.com/walteh/msbuildls/pkg/reflector"
)

const serverName = "msbuildls"

var (
	ErrShutdown               = &jrpc2.Error{Code: -32600, Message: "server is shutting down"}
	ErrReflectorNotConfigured = errors.New("task reflector is not configured")
)

// Server represents an LSP server instance
type Server struct {
	id      string
	version string

	documents   *document.Manager
	reflector   reflector.Reflector
	fs          afero.Fs
	patterns    []string
	forwardLogs bool

	mu          sync.Mutex
	rpc         *jrpc2.Server
	workspace   string
	encoding    PositionEncoding
	initialized bool
	shutdown    bool
}

type Option func(*Server)

func WithDocuments(m *document.Manager) Option {
	return func(s *Server) { s.documents = m }
}

func WithReflector(r reflector.Reflector) Option {
	return func(s *Server) { s.reflector = r }
}

// WithFs sets the file system the workspace is loaded from.
func WithFs(fs afero.Fs) Option {
	return func(s *Server) { s.fs = fs }
}

func WithWorkspacePatterns(patterns []string) Option {
	return func(s *Server) { s.patterns = patterns }
}

// WithLogForwarding sends the server's log records to the client.
func WithLogForwarding(enabled bool) Option {
	return func(s *Server) { s.forwardLogs = enabled }
}

func WithVersion(v string) Option {
	return func(s *Server) { s.version = v }
}

func NewServer(opts ...Option) *Server {
	s := &Server{id: uuid.NewString(), encoding: EncodingUTF16}
	for _, opt := range opts {
		opt(s)
	}
	if s.documents == nil {
		s.documents = document.NewManager(document.WithFs(s.fs))
	}
	return s
}

// NewServerFromConfig wires a server from configuration. The reflector is only set up
// when a command is configured.
func NewServerFromConfig(cfg *config.Config, fs afero.Fs, opts ...Option) *Server {
	base := []Option{
		WithFs(fs),
		WithDocuments(document.NewManager(document.WithFs(fs), document.WithMaxSize(cfg.Documents.MaxSizeBytes))),
		WithWorkspacePatterns(cfg.Workspace.Patterns),
	}
	if cfg.Reflector.Command != "" {
		client := reflector.NewClient(cfg.Reflector.Command, cfg.Reflector.Args, cfg.ReflectorTimeout())
		base = append(base, WithReflector(reflector.NewCache(client, fs)))
	}
	return NewServer(append(base, opts...)...)
}

func (s *Server) ID() string {
	return s.id
}

// Initialized reports whether the client has sent the initialized notification.
func (s *Server) Initialized() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.initialized
}

func (s *Server) Documents() *document.Manager {
	return s.documents
}

// mapper converts positions of snap in the encoding agreed on at initialize.
func (s *Server) mapper(snap *document.Snapshot) Mapper {
	s.mu.Lock()
	defer s.mu.Unlock()
	return Mapper{Encoding: s.encoding, Positions: snap.Positions}
}

// Methods maps every supported method to its handler.
func (s *Server) Methods() handler.Map {
	return handler.Map{
		"initialize":                       handler.New(s.initialize),
		"initialized":                      handler.New(s.initializedNotification),
		"shutdown":                         handler.New(s.shutdownRequest),
		"exit":                             handler.New(s.exit),
		"textDocument/didOpen":             handler.New(s.didOpen),
		"textDocument/didChange":           handler.New(s.didChange),
		"textDocument/didClose":            handler.New(s.didClose),
		"textDocument/hover":               handler.New(s.hover),
		"msbuild/nodeAt":                   handler.New(s.nodeAt),
		"msbuild/reflectTasks":             handler.New(s.reflectTasks),
		"$/cancelRequest":                  handler.New(ignore),
		"$/setTrace":                       handler.New(ignore),
		"workspace/didChangeConfiguration": handler.New(ignore),
	}
}

func ignore(context.Context, json.RawMessage) error {
	return nil
}

// NewInstance creates the jrpc2 server for this language server. Handlers receive ctx
// and its logger.
func (s *Server) NewInstance(ctx context.Context, opts *jrpc2.ServerOptions) *jrpc2.Server {
	if opts == nil {
		opts = &jrpc2.ServerOptions{}
	}
	opts.AllowPush = true

	base := ctx
	opts.NewContext = func() context.Context {
		return base
	}

	srv := jrpc2.NewServer(s.Methods(), opts)
	if s.forwardLogs {
		base = ApplyLSPWriter(ctx, srv)
	}

	s.mu.Lock()
	s.rpc = srv
	s.mu.Unlock()

	return srv
}

// Serve runs the server over r and w with LSP framing until the client exits, the
// stream closes or ctx is cancelled.
func (s *Server) Serve(ctx context.Context, r io.Reader, w io.WriteCloser, opts *jrpc2.ServerOptions) error {
	srv := s.NewInstance(ctx, opts).Start(channel.LSP(r, w))
	stop := context.AfterFunc(ctx, srv.Stop)
	defer stop()

	zerolog.Ctx(ctx).Info().Str("server_id", s.id).Msg("language server started")

	if err := srv.Wait(); err != nil {
		return errors.Errorf("running language server: %w", err)
	}
	return nil
}

func (s *Server) notify(ctx context.Context, method string, params any) {
	s.mu.Lock()
	srv := s.rpc
	s.mu.Unlock()
	if srv == nil {
		return
	}
	if err := srv.Notify(ctx, method, params); err != nil {
		zerolog.Ctx(ctx).Warn().Err(err).Str("method", method).Msg("sending notification")
	}
}

// publishDiagnostics reports the syntax diagnostics of snap to the client.
func (s *Server) publishDiagnostics(ctx context.Context, snap *document.Snapshot) {
	diags, err := diagnostic.Generate(ctx, snap)
	if err != nil {
		zerolog.Ctx(ctx).Error().Err(err).Str("uri", snap.URI).Msg("generating diagnostics")
		return
	}

	params := PublishDiagnosticsParams{
		URI:         snap.DocumentURI,
		Version:     snap.Version,
		Diagnostics: ToProtocolDiagnostics(diags, s.mapper(snap)),
	}
	s.notify(ctx, "textDocument/publishDiagnostics", params)
}

func ToProtocolDiagnostics(diags *diagnostic.Diagnostics, m Mapper) []Diagnostic {
	out := []Diagnostic{}
	for _, d := range diags.All() {
		severity := SeverityError
		if d.Severity == diagnostic.Warning {
			severity = SeverityWarning
		}
		out = append(out, Diagnostic{
			Range:    m.ToProtocolRange(d.Range),
			Severity: severity,
			Source:   serverName + "/" + d.Source,
			Message:  d.Message,
		})
	}
	return out
}

func (s *Server) checkShutdown() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.shutdown {
		return ErrShutdown
	}
	return nil
}

// withRequest annotates the logger in ctx with the inbound request.
func withRequest(ctx context.Context) context.Context {
	req := jrpc2.InboundRequest(ctx)
	if req == nil {
		return ctx
	}
	return zerolog.Ctx(ctx).With().Str("rpc_method", req.Method()).Str("rpc_id", req.ID()).Logger().WithContext(ctx)
}
