package lsp

import (
	"context"

	"github.com/rs/zerolog"
	"gitlab.com/tozd/go/errors"

	"github.com/walteh/msbuildls/pkg/completion"
	"github.com/walteh/msbuildls/pkg/document"
	"github.com/walteh/msbuildls/pkg/hover"
	"github.com/walteh/msbuildls/pkg/position"
	"github.com/walteh/msbuildls/pkg/reflector"
	"github.com/walteh/msbuildls/pkg/workspace"
	"github.com/walteh/msbuildls/pkg/xsnode"
)

func (s *Server) initialize(ctx context.Context, params *InitializeParams) (*InitializeResult, error) {
	ctx = withRequest(ctx)

	root := params.RootURI
	if root == "" {
		root = params.RootPath
	}
	if root != "" {
		path, err := document.NormalizeURI(root)
		if err != nil {
			return nil, errors.Errorf("invalid workspace uri %q: %w", root, err)
		}
		s.mu.Lock()
		s.workspace = path
		s.mu.Unlock()
	}

	var offered []PositionEncoding
	if params.Capabilities.General != nil {
		offered = params.Capabilities.General.PositionEncodings
	}
	encoding := NegotiateEncoding(offered)
	s.mu.Lock()
	s.encoding = encoding
	s.mu.Unlock()

	ev := zerolog.Ctx(ctx).Info().Str("server_id", s.id).Str("workspace", s.workspace).Str("position_encoding", string(encoding))
	if params.ClientInfo != nil {
		ev = ev.Str("client", params.ClientInfo.Name)
	}
	ev.Msg("initializing")

	return &InitializeResult{
		Capabilities: ServerCapabilities{
			PositionEncoding: encoding,
			TextDocumentSync: TextDocumentSyncOptions{
				OpenClose: true,
				Change:    SyncFull,
			},
			HoverProvider: true,
		},
		ServerInfo: ServerInfo{Name: serverName, Version: s.version},
	}, nil
}

// initializedNotification loads every project file of the workspace, when one was given
// and a file system is configured, and publishes its diagnostics.
func (s *Server) initializedNotification(ctx context.Context, _ *InitializedParams) error {
	ctx = withRequest(ctx)

	s.mu.Lock()
	s.initialized = true
	root := s.workspace
	s.mu.Unlock()

	if root == "" || s.fs == nil {
		return nil
	}

	loaded, err := workspace.Load(ctx, s.fs, s.documents, root, s.patterns)
	if err != nil {
		zerolog.Ctx(ctx).Warn().Err(err).Str("workspace", root).Msg("some project files could not be loaded")
	}
	for _, uri := range loaded {
		if doc, ok := s.documents.Get(uri); ok {
			if snap := doc.Snapshot(); snap != nil {
				s.publishDiagnostics(ctx, snap)
			}
		}
	}
	return nil
}

func (s *Server) shutdownRequest(ctx context.Context) error {
	s.mu.Lock()
	s.shutdown = true
	s.mu.Unlock()
	zerolog.Ctx(ctx).Info().Msg("shutdown requested")
	return nil
}

func (s *Server) exit(ctx context.Context) error {
	s.mu.Lock()
	srv := s.rpc
	s.mu.Unlock()
	if srv != nil {
		// Stop waits for running handlers, this one included
		go srv.Stop()
	}
	return nil
}

func (s *Server) didOpen(ctx context.Context, params *DidOpenTextDocumentParams) error {
	ctx = withRequest(ctx)
	if err := s.checkShutdown(); err != nil {
		return err
	}

	item := params.TextDocument
	snap, err := s.documents.Open(ctx, item.URI, item.Version, item.Text)
	if err != nil {
		zerolog.Ctx(ctx).Error().Err(err).Str("uri", item.URI).Msg("opening document")
		return err
	}
	s.publishDiagnostics(ctx, snap)
	return nil
}

func (s *Server) didChange(ctx context.Context, params *DidChangeTextDocumentParams) error {
	ctx = withRequest(ctx)
	if err := s.checkShutdown(); err != nil {
		return err
	}
	if len(params.ContentChanges) == 0 {
		return nil
	}

	// full sync: the last change holds the whole text
	text := params.ContentChanges[len(params.ContentChanges)-1].Text
	uri := params.TextDocument.URI
	version := params.TextDocument.Version

	var snap *document.Snapshot
	var err error
	if _, ok := s.documents.Get(uri); ok {
		snap, err = s.documents.Update(ctx, uri, version, text)
	} else {
		snap, err = s.documents.Open(ctx, uri, version, text)
	}
	if err != nil {
		level := zerolog.ErrorLevel
		if errors.Is(err, document.ErrStaleVersion) {
			level = zerolog.WarnLevel
		}
		zerolog.Ctx(ctx).WithLevel(level).Err(err).Str("uri", uri).Msg("keeping previous document model")
		return err
	}

	s.publishDiagnostics(ctx, snap)
	return nil
}

func (s *Server) didClose(ctx context.Context, params *DidCloseTextDocumentParams) error {
	ctx = withRequest(ctx)
	s.documents.Close(params.TextDocument.URI)

	// clear what the client shows for the closed file
	uri := params.TextDocument.URI
	if _, err := document.NormalizeURI(uri); err != nil {
		return err
	}
	s.notify(ctx, "textDocument/publishDiagnostics", PublishDiagnosticsParams{URI: uri, Diagnostics: []Diagnostic{}})
	return nil
}

func (s *Server) hover(ctx context.Context, params *TextDocumentPositionParams) (*Hover, error) {
	ctx = withRequest(ctx)
	if err := s.checkShutdown(); err != nil {
		return nil, err
	}

	snap, err := s.documents.Snapshot(ctx, params.TextDocument.URI)
	if err != nil {
		return nil, err
	}

	m := s.mapper(snap)
	info, err := hover.BuildHoverResponse(ctx, snap, m.FromProtocol(params.Position))
	if err != nil {
		return nil, errors.Errorf("building hover: %w", err)
	}
	if info == nil {
		return nil, nil
	}

	rng := m.ToProtocolRange(info.Range)
	return &Hover{
		Contents: MarkupContent{Kind: "markdown", Value: info.Markdown()},
		Range:    &rng,
	}, nil
}

// nodeAt reports how the position is classified, for editor tooling and debugging.
func (s *Server) nodeAt(ctx context.Context, params *TextDocumentPositionParams) (*NodeAtResult, error) {
	ctx = withRequest(ctx)
	if err := s.checkShutdown(); err != nil {
		return nil, err
	}

	snap, err := s.documents.Snapshot(ctx, params.TextDocument.URI)
	if err != nil {
		return nil, err
	}

	m := s.mapper(snap)
	return NodeAt(ctx, snap, m.FromProtocol(params.Position), m), nil
}

// NodeAt classifies pos in snap and reports ranges through m.
func NodeAt(ctx context.Context, snap *document.Snapshot, pos position.Position, m Mapper) *NodeAtResult {
	return describeContext(completion.Classify(ctx, snap, pos), m)
}

func (s *Server) reflectTasks(ctx context.Context, params *ReflectTasksParams) (*reflector.Assembly, error) {
	ctx = withRequest(ctx)
	if err := s.checkShutdown(); err != nil {
		return nil, err
	}
	if s.reflector == nil {
		return nil, ErrReflectorNotConfigured
	}
	return s.reflector.Reflect(ctx, params.AssemblyPath)
}

func describeContext(c completion.Context, m Mapper) *NodeAtResult {
	res := &NodeAtResult{
		Kind:       c.Kind.String(),
		Node:       xsnode.Describe(c.Node),
		ParentPath: c.ParentPath,
		Valid:      true,
	}
	if c.Node == nil {
		return res
	}
	rng := m.ToProtocolRange(c.Node.Range())
	res.Range = &rng
	res.Path = c.Node.Path()
	res.Valid = c.Node.IsValid()
	res.Problem = c.Node.Problem()
	if c.ExpressionNode != nil {
		er := m.ToProtocolRange(c.ExpressionNode.Range())
		res.Expression = c.ExpressionNode.String()
		res.ExpressionRange = &er
	}
	return res
}
