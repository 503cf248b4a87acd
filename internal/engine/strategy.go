// Package engine implements the indexing and query-composition core: text
// documents are analyzed into posting-set mutations under a configured
// matching strategy, and boolean queries are answered by combining posting
// sets inside the store and reading back ranked windows of document ids.
package engine

import (
	"context"
	"fmt"

	"github.com/kersley/resound/pkg/errors"
)

// Kind selects how an index matches text.
type Kind string

const (
	// KindPhonetic stems words and matches them by double-metaphone code,
	// ranking documents by accumulated term frequency.
	KindPhonetic Kind = "phonetic"
	// KindTypeahead matches every left-anchored word prefix with no
	// ranking weight, for incremental autocomplete queries.
	KindTypeahead Kind = "typeahead"
)

// ParseKind validates a strategy name from configuration or a request.
func ParseKind(s string) (Kind, error) {
	switch Kind(s) {
	case KindPhonetic, KindTypeahead:
		return Kind(s), nil
	default:
		return "", fmt.Errorf("%w: unknown strategy %q", errors.ErrInvalidInput, s)
	}
}

// Combinator chooses how per-token posting sets are combined.
type Combinator string

const (
	And Combinator = "and"
	Or  Combinator = "or"
)

// ParseCombinator maps a request value to a Combinator. The empty string and
// the aliases "intersect" and "union" are accepted; anything else is an
// invalid-input error.
func ParseCombinator(s string) (Combinator, error) {
	switch s {
	case "", "and", "intersect":
		return And, nil
	case "or", "union":
		return Or, nil
	default:
		return "", fmt.Errorf("%w: unknown combinator %q", errors.ErrInvalidInput, s)
	}
}

// SearchOptions controls one search call. Match, when non-empty, asserts the
// strategy the caller expects; a mismatch with the index's configured
// strategy fails before any store access. From and To bound the result
// window by rank; negative ranks count from the end, so From=0, To=-1 reads
// everything.
type SearchOptions struct {
	Combinator Combinator
	Match      Kind
	From       int64
	To         int64
}

// DefaultSearchOptions returns the options applied when a caller specifies
// nothing: AND combination over the full result range.
func DefaultSearchOptions() SearchOptions {
	return SearchOptions{Combinator: And, From: 0, To: -1}
}

// Strategy is one matching discipline over the store. Set analyzes and
// indexes a document, Delete retracts one, and Search answers a boolean
// query with a ranked window of document ids.
type Strategy interface {
	Kind() Kind
	Set(ctx context.Context, id, text string) error
	Delete(ctx context.Context, id string) error
	Search(ctx context.Context, text string, opts SearchOptions) ([]string, error)
}

// CacheStats reports combination-cache effectiveness for strategies that
// cache, and stays zero for those that do not.
type CacheStats struct {
	Hits   int64 `json:"hits"`
	Misses int64 `json:"misses"`
}
