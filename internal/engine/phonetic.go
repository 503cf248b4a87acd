package engine

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/kersley/resound/internal/analyzer"
	"github.com/kersley/resound/pkg/zset"
)

// phoneticStrategy indexes stemmed words under their double-metaphone codes
// and ranks matches by accumulated term frequency. Every document keeps a
// reverse index of the codes it contributed to, so Delete can retract all
// forward entries in one batch.
type phoneticStrategy struct {
	store  zset.Store
	keys   Keys
	logger *slog.Logger
}

func newPhoneticStrategy(store zset.Store, keys Keys) *phoneticStrategy {
	return &phoneticStrategy{
		store:  store,
		keys:   keys,
		logger: slog.Default().With("component", "engine.phonetic"),
	}
}

func (s *phoneticStrategy) Kind() Kind { return KindPhonetic }

// Set accumulates the document's stemmed term frequencies into the posting
// sets of each stem's phonetic codes. Scores add across repeated calls for
// the same id; the forward and reverse entries are written in one batch so
// they cannot diverge.
func (s *phoneticStrategy) Set(ctx context.Context, id, text string) error {
	stems := analyzer.Stems(analyzer.StripStopWords(analyzer.Words(text)))
	counts := analyzer.TermCounts(stems)
	cmds := make([]zset.Command, 0, len(counts)*4)
	seen := make(map[string]struct{}, len(counts))
	for _, stem := range stems {
		if _, done := seen[stem]; done {
			continue
		}
		seen[stem] = struct{}{}
		count := float64(counts[stem])
		for _, code := range analyzer.PhoneticCodes(stem) {
			cmds = append(cmds,
				zset.IncrBy(s.keys.Word(code), count, id),
				zset.IncrBy(s.keys.Object(id), count, code),
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
		"terms", len(seen),
		"mutations", len(cmds),
	)
	return nil
}

// Delete reads the document's reverse index and retracts the id from every
// posting set it names, deleting the reverse index in the same batch. A
// document with no reverse index is a no-op.
func (s *phoneticStrategy) Delete(ctx context.Context, id string) error {
	codes, err := s.store.RangeDesc(ctx, s.keys.Object(id), 0, -1)
	if err != nil {
		return fmt.Errorf("reading reverse index for %s: %w", id, err)
	}
	if len(codes) == 0 {
		return nil
	}
	cmds := make([]zset.Command, 0, len(codes)+1)
	cmds = append(cmds, zset.Del(s.keys.Object(id)))
	for _, code := range codes {
		cmds = append(cmds, zset.Rem(s.keys.Word(code), id))
	}
	if _, err := s.store.Batch(ctx, cmds); err != nil {
		return fmt.Errorf("removing document %s: %w", id, err)
	}
	s.logger.Debug("document removed", "doc_id", id, "codes", len(codes))
	return nil
}

// Search analyzes the query exactly as Set analyzes documents, combines the
// deduplicated code posting sets into a single-use ephemeral key, and reads
// the requested window highest score first. The combine, the window read,
// and the key's deletion run in one transaction, so the key never outlives
// the call and concurrent searches cannot see each other's results.
func (s *phoneticStrategy) Search(ctx context.Context, text string, opts SearchOptions) ([]string, error) {
	stems := analyzer.Stems(analyzer.StripStopWords(analyzer.Words(text)))
	srcKeys := make([]string, 0, len(stems)*2)
	seen := make(map[string]struct{}, len(stems)*2)
	for _, stem := range stems {
		for _, code := range analyzer.PhoneticCodes(stem) {
			if _, dup := seen[code]; dup {
				continue
			}
			seen[code] = struct{}{}
			srcKeys = append(srcKeys, s.keys.Word(code))
		}
	}
	if len(srcKeys) == 0 {
		return nil, nil
	}
	dest := s.keys.Ephemeral()
	combine := zset.InterInto(dest, srcKeys...)
	if opts.Combinator == Or {
		combine = zset.UnionInto(dest, srcKeys...)
	}
	results, err := s.store.Batch(ctx, []zset.Command{
		combine,
		zset.RangeDesc(dest, opts.From, opts.To),
		zset.Del(dest),
	})
	if err != nil {
		return nil, fmt.Errorf("searching %d terms: %w", len(srcKeys), err)
	}
	return results[1].Members, nil
}
