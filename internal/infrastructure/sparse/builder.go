// Package sparse builds hashed bag-of-terms vectors for hybrid search.
package sparse

import (
	"fmt"
	"log/slog"
	"regexp"
	"sort"
	"strings"
	"sync"
	"unicode"
	"unicode/utf8"

	"github.com/kirillkom/safety-report-retrieval/internal/core/domain"
	"github.com/kirillkom/safety-report-retrieval/internal/core/lexicon"
	"github.com/kirillkom/safety-report-retrieval/internal/core/ports"
)

const (
	HashModulus       = 1_000_000
	MaxTerms          = 256
	StructuredIDBoost = 3.0

	fallbackPrefixRunes = 100
	emptyTextBucket     = 1
)

var (
	structuredIDPattern = regexp.MustCompile(`(?i)\b[A-Z]{1,4}-?\d{1,5}\b`)
	latinTokenPattern   = regexp.MustCompile(`[\p{Latin}\p{Nd}]+`)
	katakanaRunPattern  = regexp.MustCompile(`[\p{Katakana}ー]{3,}`)
)

var contentPOS = map[string]struct{}{
	"名詞":  {},
	"動詞":  {},
	"形容詞": {},
}

// Builder turns text into a SparseVector. The tokenizer is optional; without a
// ready tokenizer Encode uses the lite path.
type Builder struct {
	lex    *lexicon.Lexicon
	tok    ports.MorphTokenizer
	logger *slog.Logger

	fallbackOnce sync.Once
}

func NewBuilder(lex *lexicon.Lexicon, tok ports.MorphTokenizer, logger *slog.Logger) *Builder {
	if logger == nil {
		logger = slog.Default()
	}
	return &Builder{lex: lex, tok: tok, logger: logger}
}

// Encode implements ports.SparseEncoder.
func (b *Builder) Encode(text string) domain.SparseVector {
	return b.BuildAuto(text)
}

// Build runs the tokenizer-backed path. A missing or failing tokenizer degrades
// the Japanese part to a lexicon substring scan.
func (b *Builder) Build(text string) domain.SparseVector {
	return toVector(b.accumulateWeights(text), text)
}

// BuildLite never touches the morphological tokenizer.
func (b *Builder) BuildLite(text string) domain.SparseVector {
	return toVector(b.liteWeights(text), text)
}

// BuildAuto prefers Build and falls back to BuildLite when the tokenizer is not
// ready or the rich path panics.
func (b *Builder) BuildAuto(text string) (vec domain.SparseVector) {
	if b.tok == nil || !b.tok.Ready() {
		b.warnFallback("tokenizer not ready")
		return b.BuildLite(text)
	}
	defer func() {
		if r := recover(); r != nil {
			b.warnFallback(fmt.Sprint(r))
			vec = b.BuildLite(text)
		}
	}()
	return b.Build(text)
}

func (b *Builder) warnFallback(reason string) {
	b.fallbackOnce.Do(func() {
		b.logger.Warn("sparse_builder_lite_fallback", "reason", reason)
	})
}

func (b *Builder) accumulateWeights(text string) map[string]float64 {
	weights := make(map[string]float64)
	addStructuredIDs(weights, text)
	b.addLatinTokens(weights, text)

	if b.tok == nil {
		b.addJapaneseKeywords(weights, text)
		return weights
	}
	tokens, err := b.tok.Tokenize(text)
	if err != nil {
		b.logger.Warn("sparse_tokenize_failed", "error", err)
		b.addJapaneseKeywords(weights, text)
		return weights
	}
	for _, t := range tokens {
		if _, ok := contentPOS[t.POS]; !ok {
			continue
		}
		lemma := t.Lemma
		if lemma == "" {
			lemma = t.Surface
		}
		if !hasJapanese(lemma) || utf8.RuneCountInString(lemma) < 2 {
			continue
		}
		weights[lemma] += b.japaneseWeight(lemma)
	}
	return weights
}

func (b *Builder) liteWeights(text string) map[string]float64 {
	weights := make(map[string]float64)
	addStructuredIDs(weights, text)
	b.addLatinTokens(weights, text)
	b.addJapaneseKeywords(weights, text)
	for _, run := range katakanaRunPattern.FindAllString(text, -1) {
		weights[run] += 1.0
	}
	return weights
}

func addStructuredIDs(weights map[string]float64, text string) {
	for _, id := range structuredIDPattern.FindAllString(text, -1) {
		weights[strings.ToUpper(id)] += StructuredIDBoost
	}
}

func (b *Builder) addLatinTokens(weights map[string]float64, text string) {
	for _, tok := range latinTokenPattern.FindAllString(strings.ToLower(text), -1) {
		if utf8.RuneCountInString(tok) < 2 {
			continue
		}
		w := 1.0
		if lw, ok := b.lex.SparseWeightEN(tok); ok {
			w = lw
		}
		weights[tok] += w
	}
}

func (b *Builder) addJapaneseKeywords(weights map[string]float64, text string) {
	for _, kw := range b.lex.SparseKeywordsJA {
		if kw.Weight <= 0 || kw.Term == "" {
			continue
		}
		if n := strings.Count(text, kw.Term); n > 0 {
			weights[kw.Term] += float64(n) * kw.Weight
		}
	}
}

func (b *Builder) japaneseWeight(term string) float64 {
	if w, ok := b.lex.SparseWeightJA(term); ok {
		return w
	}
	return 1.0
}

func hasJapanese(s string) bool {
	for _, r := range s {
		if unicode.In(r, unicode.Hiragana, unicode.Katakana, unicode.Han) || r == 'ー' {
			return true
		}
	}
	return false
}

// hashTerm is a base-31 polynomial hash over runes, reduced mod HashModulus.
func hashTerm(term string) uint32 {
	var h uint64
	for _, r := range term {
		h = (h*31 + uint64(r)) % HashModulus
	}
	return uint32(h)
}

func toVector(weights map[string]float64, text string) domain.SparseVector {
	buckets := make(map[uint32]float64, len(weights))
	for term, w := range weights {
		if w <= 0 {
			continue
		}
		buckets[hashTerm(term)] += w
	}
	if len(buckets) == 0 {
		return fallbackVector(text)
	}

	type entry struct {
		index  uint32
		weight float64
	}
	entries := make([]entry, 0, len(buckets))
	for idx, w := range buckets {
		entries = append(entries, entry{index: idx, weight: w})
	}
	sort.Slice(entries, func(i, j int) bool {
		if entries[i].weight != entries[j].weight {
			return entries[i].weight > entries[j].weight
		}
		return entries[i].index < entries[j].index
	})
	if len(entries) > MaxTerms {
		entries = entries[:MaxTerms]
	}
	maxWeight := entries[0].weight
	sort.Slice(entries, func(i, j int) bool { return entries[i].index < entries[j].index })

	vec := domain.SparseVector{
		Indices: make([]uint32, len(entries)),
		Values:  make([]float32, len(entries)),
	}
	for i, e := range entries {
		vec.Indices[i] = e.index
		vec.Values[i] = float32(e.weight / maxWeight)
	}
	return vec
}

func fallbackVector(text string) domain.SparseVector {
	idx := uint32(emptyTextBucket)
	if text != "" {
		runes := []rune(text)
		if len(runes) > fallbackPrefixRunes {
			runes = runes[:fallbackPrefixRunes]
		}
		idx = hashTerm(string(runes))
	}
	return domain.SparseVector{Indices: []uint32{idx}, Values: []float32{1}}
}
