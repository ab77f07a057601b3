// Package inmemory is the process-local vector index used when no Qdrant is
// deployed. Dense similarity is cosine; hybrid adds a sparse dot product.
package inmemory

import (
	"context"
	"encoding/json"
	"fmt"
	"math"
	"os"
	"sort"
	"strings"
	"sync"

	"github.com/kirillkom/safety-report-retrieval/internal/core/domain"
	"github.com/kirillkom/safety-report-retrieval/internal/core/ports"
)

// SparseWeight scales the sparse dot product before it is added to the cosine score.
const SparseWeight = 0.3

type Store struct {
	mu     sync.RWMutex
	chunks map[string][]domain.IndexedChunk
}

func New() *Store {
	return &Store{chunks: make(map[string][]domain.IndexedChunk)}
}

// LoadSnapshot reads a JSON array of IndexedChunk. Records without a dense
// vector are embedded, records without a sparse vector get one from sparse
// when it is non-nil.
func LoadSnapshot(ctx context.Context, path string, embedder ports.Embedder, sparse ports.SparseEncoder) (*Store, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read snapshot: %w", err)
	}
	var records []domain.IndexedChunk
	if err := json.Unmarshal(raw, &records); err != nil {
		return nil, fmt.Errorf("decode snapshot: %w", err)
	}
	s := New()
	if err := s.Add(ctx, records, embedder, sparse); err != nil {
		return nil, err
	}
	return s, nil
}

// Add stores records, filling in missing vectors first.
func (s *Store) Add(ctx context.Context, records []domain.IndexedChunk, embedder ports.Embedder, sparse ports.SparseEncoder) error {
	var texts []string
	var slots []int
	for i := range records {
		if strings.TrimSpace(records[i].ID) == "" {
			return domain.WrapError(domain.ErrInvalidInput, "inmemory add", fmt.Errorf("record %d has no id", i))
		}
		if records[i].Sparse != nil {
			v, err := canonicalSparse(*records[i].Sparse)
			if err != nil {
				return domain.WrapError(domain.ErrInvalidInput, "inmemory add", fmt.Errorf("record %q: %w", records[i].ID, err))
			}
			records[i].Sparse = &v
		}
		if len(records[i].Vector) == 0 {
			texts = append(texts, records[i].Content)
			slots = append(slots, i)
		}
		if records[i].Sparse == nil && sparse != nil {
			v := sparse.Encode(records[i].Content)
			records[i].Sparse = &v
		}
	}
	if len(texts) > 0 {
		if embedder == nil {
			return domain.WrapError(domain.ErrInvalidInput, "inmemory add", fmt.Errorf("%d records without vectors and no embedder", len(texts)))
		}
		vectors, err := embedder.Embed(ctx, texts)
		if err != nil {
			return fmt.Errorf("embed snapshot records: %w", err)
		}
		if len(vectors) != len(texts) {
			return fmt.Errorf("embed snapshot records: got %d vectors for %d texts", len(vectors), len(texts))
		}
		for j, v := range vectors {
			records[slots[j]].Vector = v
		}
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	for _, r := range records {
		s.chunks[r.Namespace] = upsert(s.chunks[r.Namespace], r)
	}
	return nil
}

func upsert(list []domain.IndexedChunk, r domain.IndexedChunk) []domain.IndexedChunk {
	for i := range list {
		if list[i].ID == r.ID {
			list[i] = r
			return list
		}
	}
	return append(list, r)
}

func (s *Store) DescribeStats(_ context.Context, namespace string) (domain.IndexStats, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return domain.IndexStats{RecordCount: len(s.chunks[namespace])}, nil
}

func (s *Store) Query(ctx context.Context, q domain.VectorQuery) ([]domain.RetrievedChunk, error) {
	if len(q.Dense) == 0 {
		return nil, domain.WrapError(domain.ErrInvalidInput, "inmemory query", fmt.Errorf("dense vector is required"))
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if q.Sparse != nil {
		v, err := canonicalSparse(*q.Sparse)
		if err != nil {
			return nil, domain.WrapError(domain.ErrInvalidInput, "inmemory query", err)
		}
		q.Sparse = &v
	}

	s.mu.RLock()
	candidates := s.chunks[q.Namespace]
	type scored struct {
		chunk domain.IndexedChunk
		score float64
	}
	results := make([]scored, 0, len(candidates))
	for _, c := range candidates {
		score := cosine(q.Dense, c.Vector)
		if q.Sparse != nil && c.Sparse != nil {
			score += SparseWeight * sparseDot(*q.Sparse, *c.Sparse)
		}
		results = append(results, scored{chunk: c, score: score})
	}
	s.mu.RUnlock()

	sort.SliceStable(results, func(i, j int) bool { return results[i].score > results[j].score })
	limit := q.TopK
	if limit <= 0 || limit > len(results) {
		limit = len(results)
	}

	out := make([]domain.RetrievedChunk, 0, limit)
	for i := 0; i < limit; i++ {
		c := results[i].chunk
		out = append(out, domain.RetrievedChunk{
			ChunkID:  c.ID,
			FileName: c.FileName,
			Content:  c.Content,
			Rank:     i + 1,
			Score:    results[i].score,
		})
	}
	return out, nil
}

func cosine(a, b []float32) float64 {
	if len(a) != len(b) || len(a) == 0 {
		return 0
	}
	var dot, na, nb float64
	for i := range a {
		dot += float64(a[i]) * float64(b[i])
		na += float64(a[i]) * float64(a[i])
		nb += float64(b[i]) * float64(b[i])
	}
	if na == 0 || nb == 0 {
		return 0
	}
	return dot / (math.Sqrt(na) * math.Sqrt(nb))
}

// canonicalSparse sorts index/value pairs ascending and sums duplicate indices.
// The input is not modified.
func canonicalSparse(v domain.SparseVector) (domain.SparseVector, error) {
	if len(v.Indices) != len(v.Values) {
		return domain.SparseVector{}, fmt.Errorf("sparse vector has %d indices and %d values", len(v.Indices), len(v.Values))
	}
	order := make([]int, len(v.Indices))
	for i := range order {
		order[i] = i
	}
	sort.SliceStable(order, func(a, b int) bool { return v.Indices[order[a]] < v.Indices[order[b]] })

	out := domain.SparseVector{
		Indices: make([]uint32, 0, len(order)),
		Values:  make([]float32, 0, len(order)),
	}
	for _, i := range order {
		if n := len(out.Indices); n > 0 && out.Indices[n-1] == v.Indices[i] {
			out.Values[n-1] += v.Values[i]
			continue
		}
		out.Indices = append(out.Indices, v.Indices[i])
		out.Values = append(out.Values, v.Values[i])
	}
	return out, nil
}

// sparseDot expects both index lists sorted ascending.
func sparseDot(a, b domain.SparseVector) float64 {
	var sum float64
	i, j := 0, 0
	for i < len(a.Indices) && j < len(b.Indices) {
		switch {
		case a.Indices[i] == b.Indices[j]:
			sum += float64(a.Values[i]) * float64(b.Values[j])
			i++
			j++
		case a.Indices[i] < b.Indices[j]:
			i++
		default:
			j++
		}
	}
	return sum
}
