package engine

import (
	"context"
	"fmt"
	"log/slog"
	"sort"
	"sync/atomic"
	"time"

	"golang.org/x/sync/singleflight"

	"github.com/kersley/resound/internal/analyzer"
	"github.com/kersley/resound/pkg/zset"
)

// typeaheadStrategy indexes every left-anchored prefix of every word as a
// zero-score membership set. Multi-token queries are combined once into a
// content-addressed cache key and served from it until the key's TTL lapses
// or the cache is invalidated, so results can lag writes by at most the
// configured TTL. A TTL of zero keeps cached combinations forever.
type typeaheadStrategy struct {
	store    zset.Store
	keys     Keys
	cacheTTL time.Duration
	group    singleflight.Group
	logger   *slog.Logger
	hits     atomic.Int64
	misses   atomic.Int64
}

func newTypeaheadStrategy(store zset.Store, keys Keys, cacheTTL time.Duration) *typeaheadStrategy {
	return &typeaheadStrategy{
		store:    store,
		keys:     keys,
		cacheTTL: cacheTTL,
		logger:   slog.Default().With("component", "engine.typeahead"),
	}
}

func (s *typeaheadStrategy) Kind() Kind { return KindTypeahead }

// Set adds the document id to the posting set of every prefix of every word,
// and mirrors each prefix into the document's reverse index so Delete can
// retract them. Duplicate prefixes across words produce redundant but
// idempotent adds.
func (s *typeaheadStrategy) Set(ctx context.Context, id, text string) error {
	words := analyzer.Words(text)
	var cmds []zset.Command
	for _, word := range words {
		for _, prefix := range analyzer.Prefixes(word) {
			cmds = append(cmds,
				zset.Add(s.keys.Token(prefix), 0, id),
				zset.Add(s.keys.Object(id), 0, prefix),
			)
		}
	}
	if len(cmds) == 0 {
		return nil
	}
	if _, err := s.store.Batch(ctx, cmds); err != nil {
		return fmt.Errorf("indexing document %s: %w", id, err)
	}
	s.logger.Debug("document indexed",
		"doc_id", id,
		"words", len(words),
		"mutations", len(cmds),
	)
	return nil
}

// Delete reads the document's reverse index and retracts the id from every
// prefix posting set it names, deleting the reverse index in the same batch.
func (s *typeaheadStrategy) Delete(ctx context.Context, id string) error {
	prefixes, err := s.store.RangeAsc(ctx, s.keys.Object(id), 0, -1)
	if err != nil {
		return fmt.Errorf("reading reverse index for %s: %w", id, err)
	}
	if len(prefixes) == 0 {
		return nil
	}
	cmds := make([]zset.Command, 0, len(prefixes)+1)
	cmds = append(cmds, zset.Del(s.keys.Object(id)))
	for _, prefix := range prefixes {
		cmds = append(cmds, zset.Rem(s.keys.Token(prefix), id))
	}
	if _, err := s.store.Batch(ctx, cmds); err != nil {
		return fmt.Errorf("removing document %s: %w", id, err)
	}
	s.logger.Debug("document removed", "doc_id", id, "prefixes", len(prefixes))
	return nil
}

// Search resolves each query word as a prefix token. Single-token queries
// read their posting set directly and are never cached. Multi-token queries
// combine into the cache key derived from the sorted token list; an existing
// key is reused as-is, otherwise the combination, its TTL, and the window
// read run in one transaction. Identical concurrent populations collapse to
// one store round-trip.
func (s *typeaheadStrategy) Search(ctx context.Context, text string, opts SearchOptions) ([]string, error) {
	tokens := sortedUniqueTokens(analyzer.Words(text))
	if len(tokens) == 0 {
		return nil, nil
	}
	if len(tokens) == 1 {
		ids, err := s.store.RangeAsc(ctx, s.keys.Token(tokens[0]), opts.From, opts.To)
		if err != nil {
			return nil, fmt.Errorf("reading token %q: %w", tokens[0], err)
		}
		return ids, nil
	}

	cacheKey := s.keys.Cache(tokens, opts.Combinator)
	flightKey := fmt.Sprintf("%s:%d:%d", cacheKey, opts.From, opts.To)
	val, err, _ := s.group.Do(flightKey, func() (interface{}, error) {
		cached, err := s.store.Exists(ctx, cacheKey)
		if err != nil {
			return nil, fmt.Errorf("checking cache key: %w", err)
		}
		if cached {
			s.hits.Add(1)
			s.logger.Debug("cache hit", "key", cacheKey)
			return s.store.RangeAsc(ctx, cacheKey, opts.From, opts.To)
		}
		s.misses.Add(1)

		srcKeys := make([]string, len(tokens))
		for i, token := range tokens {
			srcKeys[i] = s.keys.Token(token)
		}
		combine := zset.InterInto(cacheKey, srcKeys...)
		if opts.Combinator == Or {
			combine = zset.UnionInto(cacheKey, srcKeys...)
		}
		cmds := []zset.Command{combine}
		if s.cacheTTL > 0 {
			cmds = append(cmds, zset.Expire(cacheKey, s.cacheTTL))
		}
		cmds = append(cmds, zset.RangeAsc(cacheKey, opts.From, opts.To))
		results, err := s.store.Batch(ctx, cmds)
		if err != nil {
			return nil, fmt.Errorf("combining %d tokens: %w", len(tokens), err)
		}
		return results[len(results)-1].Members, nil
	})
	if err != nil {
		return nil, err
	}
	return val.([]string), nil
}

// InvalidateCache deletes every cached combination of the index and returns
// how many keys were removed.
func (s *typeaheadStrategy) InvalidateCache(ctx context.Context) (int64, error) {
	deleted, err := s.store.DeleteByPattern(ctx, s.keys.CachePattern())
	if err != nil {
		return deleted, fmt.Errorf("invalidating combination cache: %w", err)
	}
	s.logger.Info("cache invalidated", "keys_deleted", deleted)
	return deleted, nil
}

// CacheStats reports hit and miss counts for multi-token queries.
func (s *typeaheadStrategy) CacheStats() CacheStats {
	return CacheStats{Hits: s.hits.Load(), Misses: s.misses.Load()}
}

func sortedUniqueTokens(words []string) []string {
	if len(words) == 0 {
		return words
	}
	sort.Strings(words)
	unique := words[:1]
	for _, word := range words[1:] {
		if word != unique[len(unique)-1] {
			unique = append(unique, word)
		}
	}
	return unique
}
