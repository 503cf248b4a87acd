package benchmark

import (
	"strings"
	"testing"

	"github.com/kersley/resound/internal/analyzer"
)

var sampleTexts = map[string]string{
	"short": "The quick brown fox jumps over the lazy dog",
	"medium": `Session musicians move between studios recording drum tracks,
        guitar overdubs, and string arrangements for other artists' records.
        A good session player sight-reads charts, matches the feel of the
        existing take, and commits a usable performance in one or two passes.
        Producers book the same rhythm sections for years because the chemistry
        between a drummer and a bassist cannot be hired by the hour.`,
	"long": strings.Repeat(`Text search over phonetic codes tolerates spelling
        variation by indexing how words sound rather than how they are written.
        Each word is stemmed to collapse inflected forms, then encoded so that
        names like Smith and Smyth share a posting set. Autocomplete takes the
        opposite trade: every left-anchored prefix of every word is indexed at
        write time so that queries cost one set lookup per keystroke. Both
        disciplines meet in the store, where posting sets are intersected or
        merged and read back as ranked windows of document ids. `, 20),
}

// BenchmarkAnalyzeWords measures word splitting throughput.
func BenchmarkAnalyzeWords(b *testing.B) {
	for name, text := range sampleTexts {
		b.Run(name, func(b *testing.B) {
			b.ReportAllocs()
			b.SetBytes(int64(len(text)))
			for i := 0; i < b.N; i++ {
				words := analyzer.Words(text)
				_ = words
			}
		})
	}
}

// BenchmarkPhoneticAnalysis measures the full indexing-side pipeline: split,
// strip stop words, stem, and encode every word.
func BenchmarkPhoneticAnalysis(b *testing.B) {
	for name, text := range sampleTexts {
		b.Run(name, func(b *testing.B) {
			b.ReportAllocs()
			b.SetBytes(int64(len(text)))
			for i := 0; i < b.N; i++ {
				stems := analyzer.Stems(analyzer.StripStopWords(analyzer.Words(text)))
				for _, stem := range stems {
					codes := analyzer.PhoneticCodes(stem)
					_ = codes
				}
			}
		})
	}
}

// BenchmarkPrefixExpansion measures typeahead prefix generation, whose output
// size grows with total word length rather than word count.
func BenchmarkPrefixExpansion(b *testing.B) {
	for name, text := range sampleTexts {
		b.Run(name, func(b *testing.B) {
			words := analyzer.Words(text)
			b.ReportAllocs()
			b.SetBytes(int64(len(text)))
			b.ResetTimer()
			for i := 0; i < b.N; i++ {
				for _, word := range words {
					prefixes := analyzer.Prefixes(word)
					_ = prefixes
				}
			}
		})
	}
}

// BenchmarkPhoneticAnalysisParallel measures concurrent analysis throughput;
// the analyzer is stateless so this should scale with cores.
func BenchmarkPhoneticAnalysisParallel(b *testing.B) {
	text := sampleTexts["medium"]
	b.ReportAllocs()
	b.SetBytes(int64(len(text)))
	b.RunParallel(func(pb *testing.PB) {
		for pb.Next() {
			stems := analyzer.Stems(analyzer.StripStopWords(analyzer.Words(text)))
			for _, stem := range stems {
				codes := analyzer.PhoneticCodes(stem)
				_ = codes
			}
		}
	})
}
