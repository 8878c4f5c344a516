// Package ristretto implements the evidence cache on ristretto, a
// concurrent cost-aware cache. Chunks are admitted by content size so
// a handful of huge chunks cannot evict the whole working set.
package ristretto

import (
	"fmt"

	"github.com/dgraph-io/ristretto"

	"github.com/kgraglabs/kgrag/internal/core/domain"
	"github.com/kgraglabs/kgrag/internal/core/ports/driven"
)

// Ensure Cache implements the interface.
var _ driven.EvidenceCache = (*Cache)(nil)

// Default sizing. MaxCost is in bytes of chunk content; 64 MiB holds
// tens of thousands of typical chunks.
const (
	defaultMaxCost     = 64 << 20
	defaultNumCounters = 1e6
	bufferItems        = 64
)

// Cache is a ristretto-backed evidence cache.
type Cache struct {
	inner *ristretto.Cache
}

// Option configures the cache.
type Option func(*ristretto.Config)

// WithMaxCost caps the total cached content size in bytes.
func WithMaxCost(bytes int64) Option {
	return func(cfg *ristretto.Config) { cfg.MaxCost = bytes }
}

// NewCache creates an evidence cache.
func NewCache(opts ...Option) (*Cache, error) {
	cfg := &ristretto.Config{
		NumCounters: defaultNumCounters,
		MaxCost:     defaultMaxCost,
		BufferItems: bufferItems,
	}
	for _, opt := range opts {
		opt(cfg)
	}

	inner, err := ristretto.NewCache(cfg)
	if err != nil {
		return nil, fmt.Errorf("creating cache: %w", err)
	}
	return &Cache{inner: inner}, nil
}

// GetChunk returns a cached chunk, or false.
func (c *Cache) GetChunk(id string) (*domain.Chunk, bool) {
	val, ok := c.inner.Get(id)
	if !ok {
		return nil, false
	}
	chunk, ok := val.(*domain.Chunk)
	if !ok {
		return nil, false
	}
	return chunk, true
}

// PutChunk caches a chunk, costed by content size. Admission is
// best-effort; ristretto may decline cold keys.
func (c *Cache) PutChunk(chunk *domain.Chunk) {
	if chunk == nil || chunk.ID == "" {
		return
	}
	cost := int64(len(chunk.Content) + 4*len(chunk.Embedding))
	if cost == 0 {
		cost = 1
	}
	c.inner.Set(chunk.ID, chunk, cost)
}

// Wait blocks until pending writes are applied. Only tests need this;
// ristretto admits asynchronously.
func (c *Cache) Wait() {
	c.inner.Wait()
}

// Close releases resources.
func (c *Cache) Close() {
	c.inner.Close()
}
