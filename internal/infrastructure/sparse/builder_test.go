package sparse

import (
	"errors"
	"io"
	"log/slog"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kirillkom/safety-report-retrieval/internal/core/domain"
	"github.com/kirillkom/safety-report-retrieval/internal/core/lexicon"
	"github.com/kirillkom/safety-report-retrieval/internal/infrastructure/tokenizer/kagome"
)

type stubTokenizer struct {
	ready  bool
	tokens []domain.MorphToken
	err    error
	panics bool
}

func (s stubTokenizer) Ready() bool { return s.ready }

func (s stubTokenizer) Tokenize(string) ([]domain.MorphToken, error) {
	if s.panics {
		panic("dictionary corrupted")
	}
	return s.tokens, s.err
}

func newTestBuilder(tok *stubTokenizer) *Builder {
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	if tok == nil {
		return NewBuilder(lexicon.MustDefault(), nil, logger)
	}
	return NewBuilder(lexicon.MustDefault(), tok, logger)
}

func assertWellFormed(t *testing.T, vec domain.SparseVector) {
	t.Helper()
	require.NotEmpty(t, vec.Indices)
	require.Equal(t, len(vec.Indices), len(vec.Values))
	var maxValue float32
	for i, v := range vec.Values {
		assert.Greater(t, v, float32(0))
		assert.LessOrEqual(t, v, float32(1))
		if v > maxValue {
			maxValue = v
		}
		if i > 0 {
			assert.Less(t, vec.Indices[i-1], vec.Indices[i], "indices must be strictly ascending")
		}
	}
	assert.Equal(t, float32(1), maxValue)
}

func TestStructuredIDOutweighsOrdinaryWord(t *testing.T) {
	b := newTestBuilder(nil)
	weights := b.accumulateWeights("H-104 is a known issue")

	require.Contains(t, weights, "H-104")
	require.Contains(t, weights, "known")
	assert.Greater(t, weights["H-104"], weights["known"])

	vec := b.Build("h-104 is a known issue")
	idx := hashTerm("H-104")
	found := false
	for i, v := range vec.Indices {
		if v == idx {
			found = true
			assert.Equal(t, float32(1), vec.Values[i])
		}
	}
	assert.True(t, found, "expected bucket for upper-cased structured id")
}

func TestNeverEmpty(t *testing.T) {
	b := newTestBuilder(nil)
	for _, text := range []string{"", " ", "a", "!!!", "x y z"} {
		for _, vec := range []domain.SparseVector{b.Build(text), b.BuildLite(text), b.BuildAuto(text)} {
			assertWellFormed(t, vec)
		}
	}
	assert.Equal(t, []uint32{emptyTextBucket}, b.Build("").Indices)
	assert.Equal(t, []uint32{hashTerm("!!!")}, b.Build("!!!").Indices)
}

func TestFallbackHashUsesTextPrefix(t *testing.T) {
	b := newTestBuilder(nil)
	long := strings.Repeat("!", 150)
	assert.Equal(t, []uint32{hashTerm(strings.Repeat("!", fallbackPrefixRunes))}, b.Build(long).Indices)
}

func TestLexiconWeightsBoostTerms(t *testing.T) {
	b := newTestBuilder(nil)
	weights := b.accumulateWeights("safety plan")
	assert.Equal(t, 3.0, weights["safety"])
	assert.Equal(t, 1.0, weights["plan"])

	vec := b.Build("safety plan")
	assertWellFormed(t, vec)
	assert.Len(t, vec.Indices, 2)
}

func TestRichPathUsesContentLemmas(t *testing.T) {
	tok := &stubTokenizer{ready: true, tokens: []domain.MorphToken{
		{Surface: "安全性", Lemma: "安全性", POS: "名詞"},
		{Surface: "を", Lemma: "を", POS: "助詞"},
		{Surface: "確認", Lemma: "確認", POS: "名詞"},
		{Surface: "し", Lemma: "する", POS: "動詞"},
		{Surface: "た", Lemma: "た", POS: "助動詞"},
		{Surface: "高く", Lemma: "", POS: "形容詞"},
	}}
	b := newTestBuilder(tok)
	weights := b.accumulateWeights("安全性を確認した")

	assert.Equal(t, 3.0, weights["安全性"])
	assert.Equal(t, 1.0, weights["確認"])
	assert.Equal(t, 1.0, weights["する"])
	assert.Equal(t, 1.0, weights["高く"], "empty lemma falls back to surface")
	assert.NotContains(t, weights, "を")
	assert.NotContains(t, weights, "た")
}

func TestTokenizerErrorFallsBackToSubstringScan(t *testing.T) {
	tok := &stubTokenizer{ready: true, err: errors.New("boom")}
	b := newTestBuilder(tok)
	weights := b.accumulateWeights("リスクとリスク評価")
	assert.Equal(t, 5.0, weights["リスク"])
}

func TestLiteExtractsKatakanaRuns(t *testing.T) {
	b := newTestBuilder(nil)
	weights := b.liteWeights("ハザード分析とフォールトツリー")
	assert.Equal(t, 3.0+1.0, weights["ハザード"], "lexicon hit plus katakana run")
	assert.Equal(t, 1.0, weights["フォールトツリー"])
}

func TestAutoFallsBackOnPanic(t *testing.T) {
	tok := &stubTokenizer{ready: true, panics: true}
	b := newTestBuilder(tok)
	text := "ハザード分析 ASIL-4"
	assert.Equal(t, b.BuildLite(text), b.BuildAuto(text))
}

func TestAutoUsesLiteWhenNotReady(t *testing.T) {
	tok := &stubTokenizer{ready: false, panics: true}
	b := newTestBuilder(tok)
	assertWellFormed(t, b.Encode("安全 safety"))
}

func TestMaxTermsKeepsHeaviest(t *testing.T) {
	b := newTestBuilder(nil)
	var sb strings.Builder
	sb.WriteString("safety safety ")
	for i := 0; i < 400; i++ {
		sb.WriteString("w")
		sb.WriteString(strings.Repeat("x", i%7+1))
		sb.WriteString(string(rune('a' + i%26)))
		sb.WriteString(string(rune('a' + (i/26)%26)))
		sb.WriteString(" ")
	}
	vec := b.Build(sb.String())
	assertWellFormed(t, vec)
	assert.LessOrEqual(t, len(vec.Indices), MaxTerms)
	assert.Contains(t, vec.Indices, hashTerm("safety"))
}

func TestDeterministic(t *testing.T) {
	b := newTestBuilder(nil)
	text := "GSN safety case レビュー FMEA-12"
	assert.Equal(t, b.Build(text), b.Build(text))
}

func TestBuildWithKagome(t *testing.T) {
	tok := kagome.New()
	require.NoError(t, tok.Init())
	b := NewBuilder(lexicon.MustDefault(), tok, nil)

	weights := b.accumulateWeights("機能安全の検証結果を報告する")
	assert.Contains(t, weights, "検証")
	assertWellFormed(t, b.Encode("機能安全の検証結果を報告する"))
}

func TestLatinTokensKeepAccentedLetters(t *testing.T) {
	b := newTestBuilder(nil)
	weights := b.accumulateWeights("Café sûreté é 42")

	assert.Equal(t, 1.0, weights["café"])
	assert.Equal(t, 1.0, weights["sûreté"])
	assert.Equal(t, 1.0, weights["42"])
	assert.NotContains(t, weights, "caf")
	assert.NotContains(t, weights, "é", "single letters are dropped by rune count")
}
