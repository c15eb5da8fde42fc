package metadata

import (
	"context"
	"os"

	lru "github.com/hashicorp/golang-lru/v2"

	"photo-ingest/internal/ingest"
)

// DefaultCacheSize bounds the in-memory layer of CachingProvider.
const DefaultCacheSize = 4096

type cacheKey struct {
	path  string
	mtime int64
}

// CachingProvider serves metadata from memory, then from the persistent
// cache keyed by (path, mtime), and only then asks the wrapped provider.
// In read-only mode new extractions are not persisted.
type CachingProvider struct {
	next     ingest.MetadataProvider
	store    ingest.MetadataCache
	mem      *lru.Cache[cacheKey, ingest.Metadata]
	readOnly bool
	logger   ingest.Logger
}

func NewCachingProvider(next ingest.MetadataProvider, store ingest.MetadataCache, size int, readOnly bool, logger ingest.Logger) (*CachingProvider, error) {
	if size <= 0 {
		size = DefaultCacheSize
	}
	mem, err := lru.New[cacheKey, ingest.Metadata](size)
	if err != nil {
		return nil, err
	}
	return &CachingProvider{next: next, store: store, mem: mem, readOnly: readOnly, logger: logger}, nil
}

func (c *CachingProvider) Name() string    { return "cached(" + c.next.Name() + ")" }
func (c *CachingProvider) Available() bool { return c.next.Available() }

func (c *CachingProvider) Extract(ctx context.Context, path string) (ingest.Metadata, error) {
	info, err := os.Stat(path)
	if err != nil {
		return nil, &ingest.ExtractionError{Path: path, Provider: c.Name(), Err: err}
	}
	key := cacheKey{path: path, mtime: info.ModTime().Unix()}

	if md, ok := c.mem.Get(key); ok {
		return md, nil
	}
	md, err := c.store.GetMetadata(ctx, key.path, key.mtime)
	if err != nil {
		c.logger.Warn("metadata cache read failed", "path", path, "error", err)
	} else if md != nil {
		c.mem.Add(key, md)
		return md, nil
	}

	md, err = c.next.Extract(ctx, path)
	if err != nil {
		return nil, err
	}
	c.mem.Add(key, md)
	if !c.readOnly {
		if err := c.store.PutMetadata(ctx, key.path, key.mtime, md); err != nil {
			c.logger.Warn("metadata cache write failed", "path", path, "error", err)
		}
	}
	return md, nil
}
