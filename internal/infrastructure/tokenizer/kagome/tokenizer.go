// Package kagome wraps the kagome morphological analyzer with the IPA dictionary.
package kagome

import (
	"fmt"
	"sync"
	"sync/atomic"

	"github.com/ikawaha/kagome-dict/ipa"
	"github.com/ikawaha/kagome/v2/tokenizer"

	"github.com/kirillkom/safety-report-retrieval/internal/core/domain"
)

// Tokenizer is a lazily initialized handle. Init builds the dictionary-backed
// analyzer once; Tokenize before a successful Init reports ErrUnavailable.
type Tokenizer struct {
	once sync.Once
	tok  atomic.Pointer[tokenizer.Tokenizer]
	err  error
}

func New() *Tokenizer {
	return &Tokenizer{}
}

// Init loads the dictionary. It is safe to call concurrently and repeatedly;
// only the first call does work and its error sticks.
func (t *Tokenizer) Init() error {
	t.once.Do(func() {
		tok, err := tokenizer.New(ipa.Dict(), tokenizer.OmitBosEos())
		if err != nil {
			t.err = fmt.Errorf("init kagome tokenizer: %w", err)
			return
		}
		t.tok.Store(tok)
	})
	return t.err
}

func (t *Tokenizer) Ready() bool {
	return t.tok.Load() != nil
}

func (t *Tokenizer) Tokenize(text string) (out []domain.MorphToken, err error) {
	tok := t.tok.Load()
	if tok == nil {
		return nil, domain.WrapError(domain.ErrUnavailable, "kagome tokenize", fmt.Errorf("tokenizer not initialized"))
	}
	defer func() {
		if r := recover(); r != nil {
			out = nil
			err = fmt.Errorf("kagome tokenize: %v", r)
		}
	}()

	tokens := tok.Tokenize(text)
	out = make([]domain.MorphToken, 0, len(tokens))
	for _, tk := range tokens {
		if tk.Class == tokenizer.DUMMY {
			continue
		}
		mt := domain.MorphToken{Surface: tk.Surface, Lemma: tk.Surface}
		if base, ok := tk.BaseForm(); ok && base != "" && base != "*" {
			mt.Lemma = base
		}
		if pos := tk.POS(); len(pos) > 0 {
			mt.POS = pos[0]
		}
		out = append(out, mt)
	}
	return out, nil
}
