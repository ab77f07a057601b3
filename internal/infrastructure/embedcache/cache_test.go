package embedcache

import (
	"context"
	"errors"
	"testing"
)

type countingEmbedder struct {
	calls  int
	inputs []string
	fail   bool
}

func (c *countingEmbedder) Embed(_ context.Context, texts []string) ([][]float32, error) {
	c.calls++
	c.inputs = append(c.inputs, texts...)
	if c.fail {
		return nil, errors.New("embed failed")
	}
	out := make([][]float32, len(texts))
	for i, t := range texts {
		out[i] = []float32{float32(len(t))}
	}
	return out, nil
}

func (c *countingEmbedder) EmbedQuery(ctx context.Context, text string) ([]float32, error) {
	v, err := c.Embed(ctx, []string{text})
	if err != nil {
		return nil, err
	}
	return v[0], nil
}

func TestEmbedQueryHitsCache(t *testing.T) {
	next := &countingEmbedder{}
	e, err := New(next, 8)
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}
	for i := 0; i < 3; i++ {
		if _, err := e.EmbedQuery(context.Background(), "安全 リスク"); err != nil {
			t.Fatalf("EmbedQuery() error = %v", err)
		}
	}
	if next.calls != 1 {
		t.Fatalf("expected one upstream call, got %d", next.calls)
	}
}

func TestEmbedForwardsOnlyMisses(t *testing.T) {
	next := &countingEmbedder{}
	e, _ := New(next, 8)
	ctx := context.Background()
	if _, err := e.EmbedQuery(ctx, "bb"); err != nil {
		t.Fatalf("EmbedQuery() error = %v", err)
	}

	out, err := e.Embed(ctx, []string{"a", "bb", "ccc"})
	if err != nil {
		t.Fatalf("Embed() error = %v", err)
	}
	if len(out) != 3 || out[0][0] != 1 || out[1][0] != 2 || out[2][0] != 3 {
		t.Fatalf("unexpected vectors %v", out)
	}
	if got := next.inputs[len(next.inputs)-2:]; got[0] != "a" || got[1] != "ccc" {
		t.Fatalf("expected only misses forwarded, got %v", next.inputs)
	}
}

func TestFailuresAreNotCached(t *testing.T) {
	next := &countingEmbedder{fail: true}
	e, _ := New(next, 8)
	if _, err := e.EmbedQuery(context.Background(), "q"); err == nil {
		t.Fatalf("expected error")
	}
	if e.(*Embedder).Len() != 0 {
		t.Fatalf("failed result must not be cached")
	}
}

func TestZeroSizeDisablesCache(t *testing.T) {
	next := &countingEmbedder{}
	e, err := New(next, 0)
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}
	if e != next {
		t.Fatalf("expected passthrough embedder")
	}
}
