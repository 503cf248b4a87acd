package engine

import (
	"crypto/rand"
	"encoding/hex"
	"strings"
)

// Keys builds every store key an index touches. Key shapes, for an index
// named N:
//
//	N:word:<code>     phonetic posting set, member=document id, score=term frequency
//	N:object:<id>     reverse index, member=code or prefix, score mirrors the forward entry
//	N:token:<prefix>  typeahead posting set, member=document id, score=0
//	N:cache:<tokens>  cached typeahead combination, tokens sorted and joined with & (and) or | (or)
//	N:tmp:<nonce>     ephemeral phonetic combination, unique per search call
type Keys struct {
	index string
}

// NewKeys returns a key builder scoped to the named index.
func NewKeys(index string) Keys {
	return Keys{index: index}
}

// Word names the phonetic posting set for a phonetic code.
func (k Keys) Word(code string) string {
	return k.index + ":word:" + code
}

// Object names a document's reverse index.
func (k Keys) Object(id string) string {
	return k.index + ":object:" + id
}

// Token names the typeahead posting set for a word prefix.
func (k Keys) Token(prefix string) string {
	return k.index + ":token:" + prefix
}

// Cache names the cached combination of the given tokens. Callers pass
// tokens already sorted so identical queries address the same key.
func (k Keys) Cache(tokens []string, c Combinator) string {
	sep := "&"
	if c == Or {
		sep = "|"
	}
	return k.index + ":cache:" + strings.Join(tokens, sep)
}

// CachePattern globs every cached combination key of the index.
func (k Keys) CachePattern() string {
	return k.index + ":cache:*"
}

// Ephemeral names a fresh single-use combination key. The random nonce keeps
// concurrent searches on the same index from touching each other's results.
func (k Keys) Ephemeral() string {
	b := make([]byte, 8)
	_, _ = rand.Read(b)
	return k.index + ":tmp:" + hex.EncodeToString(b)
}
