// Package embedcache memoizes embeddings per input text in an LRU.
package embedcache

import (
	"context"
	"fmt"

	lru "github.com/hashicorp/golang-lru/v2"

	"github.com/kirillkom/safety-report-retrieval/internal/core/ports"
)

type Embedder struct {
	next  ports.Embedder
	cache *lru.Cache[string, []float32]
}

// New wraps next with an LRU of the given size. size <= 0 disables caching and
// returns next unchanged.
func New(next ports.Embedder, size int) (ports.Embedder, error) {
	if size <= 0 {
		return next, nil
	}
	cache, err := lru.New[string, []float32](size)
	if err != nil {
		return nil, fmt.Errorf("create embedding cache: %w", err)
	}
	return &Embedder{next: next, cache: cache}, nil
}

func (e *Embedder) EmbedQuery(ctx context.Context, text string) ([]float32, error) {
	if v, ok := e.cache.Get(text); ok {
		return v, nil
	}
	v, err := e.next.EmbedQuery(ctx, text)
	if err != nil {
		return nil, err
	}
	e.cache.Add(text, v)
	return v, nil
}

// Embed only forwards the misses and keeps input order.
func (e *Embedder) Embed(ctx context.Context, texts []string) ([][]float32, error) {
	out := make([][]float32, len(texts))
	var missing []string
	var slots []int
	for i, t := range texts {
		if v, ok := e.cache.Get(t); ok {
			out[i] = v
			continue
		}
		missing = append(missing, t)
		slots = append(slots, i)
	}
	if len(missing) == 0 {
		return out, nil
	}

	vectors, err := e.next.Embed(ctx, missing)
	if err != nil {
		return nil, err
	}
	if len(vectors) != len(missing) {
		return nil, fmt.Errorf("embed cache: got %d vectors for %d inputs", len(vectors), len(missing))
	}
	for j, v := range vectors {
		out[slots[j]] = v
		e.cache.Add(missing[j], v)
	}
	return out, nil
}

func (e *Embedder) Len() int {
	return e.cache.Len()
}
