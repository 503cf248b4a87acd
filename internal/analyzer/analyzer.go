// Package analyzer provides the text analysis used on both the indexing and
// query paths. All functions are pure: they lower-case input, split on
// non-alphanumeric boundaries, and derive stems, phonetic codes, or
// left-anchored prefixes from the resulting words.
package analyzer

import (
	"strings"
	"unicode"

	"github.com/antzucaro/matchr"
	"github.com/kljensen/snowball/english"
)

var stopWords = map[string]struct{}{
	"a": {}, "an": {}, "and": {}, "are": {}, "as": {}, "at": {},
	"be": {}, "by": {}, "for": {}, "from": {}, "has": {}, "he": {},
	"in": {}, "is": {}, "it": {}, "its": {}, "of": {}, "on": {},
	"or": {}, "that": {}, "the": {}, "to": {}, "was": {}, "were": {},
	"will": {}, "with": {}, "this": {}, "but": {}, "they": {},
	"have": {}, "had": {}, "what": {}, "when": {}, "where": {},
	"who": {}, "which": {}, "their": {}, "if": {}, "each": {},
	"do": {}, "not": {}, "no": {}, "so": {}, "can": {},
}

// Words breaks text into its maximal alphanumeric runs, lower-cased, in
// order of appearance. Punctuation and whitespace only separate words, so
// "what's up" yields [what s up]. Empty or purely non-alphanumeric input
// yields no words.
func Words(text string) []string {
	text = strings.ToLower(text)
	return strings.FieldsFunc(text, func(r rune) bool {
		return !unicode.IsLetter(r) && !unicode.IsDigit(r)
	})
}

// StripStopWords filters common English stop words, preserving the order of
// the remaining words. The phonetic pipeline applies it before stemming;
// the typeahead pipeline does not, so short prefixes keep matching.
func StripStopWords(words []string) []string {
	kept := make([]string, 0, len(words))
	for _, word := range words {
		if _, isStop := stopWords[word]; isStop {
			continue
		}
		kept = append(kept, word)
	}
	return kept
}

// Stems maps each word to its Snowball (Porter2) English stem. The result
// is order-preserving and the same length as the input.
func Stems(words []string) []string {
	stems := make([]string, len(words))
	for i, word := range words {
		stems[i] = english.Stem(word, false)
	}
	return stems
}

// PhoneticCodes returns the double-metaphone encodings of word: the primary
// code and, when it differs, the alternate. Words with no phonetic content,
// such as bare digit runs, yield an empty slice.
func PhoneticCodes(word string) []string {
	primary, secondary := matchr.DoubleMetaphone(word)
	codes := make([]string, 0, 2)
	if primary != "" {
		codes = append(codes, primary)
	}
	if secondary != "" && secondary != primary {
		codes = append(codes, secondary)
	}
	return codes
}

// Prefixes returns every left-anchored prefix of word, shortest first, so
// "cat" yields [c ca cat]. Prefixes are rune-aware: multi-byte characters
// are never split.
func Prefixes(word string) []string {
	runes := []rune(word)
	prefixes := make([]string, 0, len(runes))
	for i := 1; i <= len(runes); i++ {
		prefixes = append(prefixes, string(runes[:i]))
	}
	return prefixes
}

// TermCounts folds words into a frequency map.
func TermCounts(words []string) map[string]int {
	counts := make(map[string]int, len(words))
	for _, word := range words {
		counts[word]++
	}
	return counts
}
