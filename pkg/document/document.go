package document

import (
	"context"
	"fmt"
	"sync/atomic"

	"github.com/rs/zerolog"
	"gitlab.com/tozd/go/errors"
	"golang.org/x/sync/semaphore"
)

var (
	ErrStaleVersion     = errors.New("stale document version")
	ErrDocumentTooLarge = errors.New("document too large")
	ErrDocumentNotFound = errors.New("document not found")
	ErrInvalidURI       = errors.New("invalid document uri")
	ErrBuildFailed      = errors.New("building document model failed")
)

// Builder turns document text into a snapshot.
type Builder func(uri string, version int32, text string) (*Snapshot, error)

// Document guards the current snapshot of one open file. Updates are serialised;
// readers load the installed snapshot without waiting on writers.
type Document struct {
	uri       string
	clientURI string
	build     Builder
	maxSize int

	writer  *semaphore.Weighted
	current atomic.Pointer[Snapshot]
}

func newDocument(uri, clientURI string, build Builder, maxSize int) *Document {
	return &Document{
		uri:       uri,
		clientURI: clientURI,
		build:     build,
		maxSize:   maxSize,
		writer:    semaphore.NewWeighted(1),
	}
}

// URI is the normalized path the document is keyed by.
func (d *Document) URI() string {
	return d.uri
}

// DocumentURI is the URI the client knows the document by.
func (d *Document) DocumentURI() string {
	return d.clientURI
}

// Snapshot returns the installed snapshot, or nil before the first successful update.
func (d *Document) Snapshot() *Snapshot {
	return d.current.Load()
}

// Update rebuilds the model for text and installs it. When the version is not newer
// than the installed one, the text is too large or the build fails, the previous
// snapshot stays installed and an error is returned.
func (d *Document) Update(ctx context.Context, version int32, text string) (*Snapshot, error) {
	if err := ctx.Err(); err != nil {
		return nil, errors.Errorf("updating %s: %w", d.uri, err)
	}
	if err := d.writer.Acquire(ctx, 1); err != nil {
		return nil, errors.Errorf("waiting to update %s: %w", d.uri, err)
	}
	defer d.writer.Release(1)

	logger := zerolog.Ctx(ctx).With().Str("uri", d.uri).Int32("version", version).Logger()

	prev := d.current.Load()
	if prev != nil && version <= prev.Version {
		return nil, errors.Errorf("%w: %s has version %d, got %d", ErrStaleVersion, d.uri, prev.Version, version)
	}
	if d.maxSize > 0 && len(text) > d.maxSize {
		return nil, errors.Errorf("%w: %s is %d bytes, limit is %d", ErrDocumentTooLarge, d.uri, len(text), d.maxSize)
	}

	snap, err := d.safeBuild(version, text)
	if err != nil {
		logger.Error().Err(err).Msg("keeping previous document model")
		return nil, err
	}

	d.current.Store(snap)
	logger.Debug().Str("snapshot", snap.ID.String()).Int("expressions", len(snap.Expressions)).Msg("installed document model")
	return snap, nil
}

func (d *Document) safeBuild(version int32, text string) (snap *Snapshot, err error) {
	defer func() {
		if r := recover(); r != nil {
			snap = nil
			err = errors.Errorf("%w: %s: %s", ErrBuildFailed, d.uri, fmt.Sprint(r))
		}
	}()

	snap, err = d.build(d.uri, version, text)
	if err != nil {
		return nil, errors.Errorf("%w: %s: %s", ErrBuildFailed, d.uri, err.Error())
	}
	if snap == nil {
		return nil, errors.Errorf("%w: %s: builder returned no snapshot", ErrBuildFailed, d.uri)
	}
	snap.DocumentURI = d.clientURI
	return snap, nil
}
