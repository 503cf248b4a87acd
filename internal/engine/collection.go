package engine

import (
	"context"
	"fmt"

	"github.com/kersley/resound/pkg/config"
	"github.com/kersley/resound/pkg/errors"
	"github.com/kersley/resound/pkg/zset"
)

// Collection is the public face of one index. It binds an index name to the
// strategy named in configuration and forwards every call; the only check it
// owns is that a search asking for a specific matching strategy gets the one
// the index was built with.
type Collection struct {
	name     string
	strategy Strategy
}

// New builds a Collection over the given store. The strategy is chosen once
// here; an unknown strategy name or empty index name fails construction.
func New(cfg config.IndexConfig, store zset.Store) (*Collection, error) {
	if cfg.Name == "" {
		return nil, fmt.Errorf("%w: index name is empty", errors.ErrInvalidInput)
	}
	kind, err := ParseKind(cfg.Strategy)
	if err != nil {
		return nil, fmt.Errorf("index %q: %w", cfg.Name, err)
	}
	keys := NewKeys(cfg.Name)
	var strategy Strategy
	switch kind {
	case KindPhonetic:
		strategy = newPhoneticStrategy(store, keys)
	case KindTypeahead:
		strategy = newTypeaheadStrategy(store, keys, cfg.CacheTTL)
	}
	return &Collection{name: cfg.Name, strategy: strategy}, nil
}

// Name returns the index name all keys are scoped under.
func (c *Collection) Name() string { return c.name }

// Kind returns the configured matching strategy.
func (c *Collection) Kind() Kind { return c.strategy.Kind() }

// Set indexes or augments a document.
func (c *Collection) Set(ctx context.Context, id, text string) error {
	return c.strategy.Set(ctx, id, text)
}

// Delete retracts a document from the index. Deleting an unknown id is a
// no-op.
func (c *Collection) Delete(ctx context.Context, id string) error {
	return c.strategy.Delete(ctx, id)
}

// Search answers a boolean query with a ranked window of document ids. A
// request for a matching strategy other than the configured one fails here,
// before any store access.
func (c *Collection) Search(ctx context.Context, text string, opts SearchOptions) ([]string, error) {
	if opts.Match != "" && opts.Match != c.strategy.Kind() {
		return nil, fmt.Errorf("%w: index %q matches by %s, not %s",
			errors.ErrUnsupportedOperation, c.name, c.strategy.Kind(), opts.Match)
	}
	return c.strategy.Search(ctx, text, opts)
}

type cacheManager interface {
	InvalidateCache(ctx context.Context) (int64, error)
	CacheStats() CacheStats
}

// InvalidateCache drops every cached combination the strategy maintains.
// Strategies without a cache report zero deletions.
func (c *Collection) InvalidateCache(ctx context.Context) (int64, error) {
	if m, ok := c.strategy.(cacheManager); ok {
		return m.InvalidateCache(ctx)
	}
	return 0, nil
}

// CacheStats reports cache effectiveness for strategies that cache.
func (c *Collection) CacheStats() CacheStats {
	if m, ok := c.strategy.(cacheManager); ok {
		return m.CacheStats()
	}
	return CacheStats{}
}
