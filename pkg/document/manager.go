package document

import (
	"context"
	"net/url"
	"path"
	"path/filepath"
	"sort"
	"strings"
	"sync"

	"github.com/rs/zerolog"
	"github.com/spf13/afero"
	"gitlab.com/tozd/go/errors"
)

// NormalizeURI maps a file URI or a plain path to the path used as the document key.
// Percent-decoding only applies to file URIs; plain paths are taken literally.
func NormalizeURI(uri string) (string, error) {
	if strings.TrimSpace(uri) == "" {
		return "", errors.Errorf("%w: empty", ErrInvalidURI)
	}
	if !strings.HasPrefix(uri, "file:") {
		return uri, nil
	}

	u, err := url.Parse(uri)
	if err != nil {
		return "", errors.Errorf("%w: %q: %s", ErrInvalidURI, uri, err.Error())
	}
	if u.Opaque != "" {
		// file:relative/path
		p, err := url.PathUnescape(u.Opaque)
		if err != nil {
			return "", errors.Errorf("%w: %q: %s", ErrInvalidURI, uri, err.Error())
		}
		return p, nil
	}
	if u.Path == "" {
		return "", errors.Errorf("%w: %q has no path", ErrInvalidURI, uri)
	}
	if u.Host != "" && u.Host != "localhost" {
		return "//" + u.Host + u.Path, nil
	}
	return u.Path, nil
}

// DocumentURI returns the URI a client knows uri by. File URIs are kept as sent and
// absolute paths become file URIs; anything else is returned unchanged.
func DocumentURI(uri string) string {
	if strings.HasPrefix(uri, "file:") {
		return uri
	}
	p := filepath.ToSlash(uri)
	if !path.IsAbs(p) {
		return uri
	}
	return (&url.URL{Scheme: "file", Path: p}).String()
}

type Option func(*Manager)

// WithFs enables loading documents that were never opened from fs.
func WithFs(fs afero.Fs) Option {
	return func(m *Manager) { m.fs = fs }
}

// WithMaxSize rejects documents larger than n bytes. Zero disables the limit.
func WithMaxSize(n int) Option {
	return func(m *Manager) { m.maxSize = n }
}

func WithBuilder(b Builder) Option {
	return func(m *Manager) { m.build = b }
}

// Manager tracks every open document. Documents are independent: no lock spans two
// of them.
type Manager struct {
	store   sync.Map // map[string]*Document
	fs      afero.Fs
	maxSize int
	build   Builder
}

func NewManager(opts ...Option) *Manager {
	m := &Manager{build: Build}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

// Open installs a fresh document for uri, replacing any previous one.
func (m *Manager) Open(ctx context.Context, uri string, version int32, text string) (*Snapshot, error) {
	key, err := NormalizeURI(uri)
	if err != nil {
		return nil, err
	}

	doc := newDocument(key, DocumentURI(uri), m.build, m.maxSize)
	snap, err := doc.Update(ctx, version, text)
	if err != nil {
		return nil, errors.Errorf("opening document: %w", err)
	}
	m.store.Store(key, doc)
	zerolog.Ctx(ctx).Debug().Str("uri", key).Msg("opened document")
	return snap, nil
}

// Update replaces the text of an open document.
func (m *Manager) Update(ctx context.Context, uri string, version int32, text string) (*Snapshot, error) {
	doc, ok := m.Get(uri)
	if !ok {
		return nil, errors.Errorf("%w: %s", ErrDocumentNotFound, uri)
	}
	return doc.Update(ctx, version, text)
}

func (m *Manager) Close(uri string) {
	key, err := NormalizeURI(uri)
	if err != nil {
		return
	}
	m.store.Delete(key)
}

// Get returns the open document for uri without consulting the file system.
func (m *Manager) Get(uri string) (*Document, bool) {
	key, err := NormalizeURI(uri)
	if err != nil {
		return nil, false
	}
	v, ok := m.store.Load(key)
	if !ok {
		return nil, false
	}
	return v.(*Document), true
}

// Snapshot returns the current snapshot of uri. Documents that are not open are read
// from the file system when one is configured.
func (m *Manager) Snapshot(ctx context.Context, uri string) (*Snapshot, error) {
	if err := ctx.Err(); err != nil {
		return nil, errors.Errorf("reading %s: %w", uri, err)
	}
	if doc, ok := m.Get(uri); ok {
		if snap := doc.Snapshot(); snap != nil {
			return snap, nil
		}
	}
	if m.fs == nil {
		return nil, errors.Errorf("%w: %s", ErrDocumentNotFound, uri)
	}

	key, err := NormalizeURI(uri)
	if err != nil {
		return nil, err
	}
	content, err := afero.ReadFile(m.fs, key)
	if err != nil {
		return nil, errors.Errorf("%w: %s: %s", ErrDocumentNotFound, key, err.Error())
	}
	zerolog.Ctx(ctx).Debug().Str("uri", key).Msg("loading document from disk")
	return m.Open(ctx, uri, 0, string(content))
}

// URIs returns the keys of every open document, sorted.
func (m *Manager) URIs() []string {
	var uris []string
	m.store.Range(func(key, _ any) bool {
		uris = append(uris, key.(string))
		return true
	})
	sort.Strings(uris)
	return uris
}
