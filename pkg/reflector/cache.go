package reflector

import (
	"context"
	"sync"
	"time"

	"github.com/spf13/afero"
	"gitlab.com/tozd/go/errors"
)

// Reflector describes assemblies. *Client and *Cache both implement it.
type Reflector interface {
	Reflect(ctx context.Context, assemblyPath string) (*Assembly, error)
}

type cacheEntry struct {
	modTime  time.Time
	assembly *Assembly
}

// Cache remembers successful reflections until the assembly file changes on disk.
// Failures are never cached and drop what was remembered for the path.
type Cache struct {
	inner Reflector
	fs    afero.Fs

	mu      sync.Mutex
	entries map[string]cacheEntry
}

func NewCache(inner Reflector, fs afero.Fs) *Cache {
	if fs == nil {
		fs = afero.NewOsFs()
	}
	return &Cache{inner: inner, fs: fs, entries: map[string]cacheEntry{}}
}

func (c *Cache) Reflect(ctx context.Context, assemblyPath string) (*Assembly, error) {
	info, err := c.fs.Stat(assemblyPath)
	if err != nil {
		c.forget(assemblyPath)
		return nil, errors.Errorf("stat assembly %s: %w", assemblyPath, err)
	}

	c.mu.Lock()
	entry, ok := c.entries[assemblyPath]
	c.mu.Unlock()
	if ok && entry.modTime.Equal(info.ModTime()) {
		return entry.assembly, nil
	}

	assembly, err := c.inner.Reflect(ctx, assemblyPath)
	if err != nil {
		c.forget(assemblyPath)
		return nil, err
	}

	c.mu.Lock()
	c.entries[assemblyPath] = cacheEntry{modTime: info.ModTime(), assembly: assembly}
	c.mu.Unlock()
	return assembly, nil
}

func (c *Cache) forget(assemblyPath string) {
	c.mu.Lock()
	delete(c.entries, assemblyPath)
	c.mu.Unlock()
}
