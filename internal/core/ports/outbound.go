package ports

import (
	"context"

	"github.com/kirillkom/safety-report-retrieval/internal/core/domain"
)

// Embedder builds dense vectors for query and chunk text.
type Embedder interface {
	Embed(ctx context.Context, texts []string) ([][]float32, error)
	EmbedQuery(ctx context.Context, text string) ([]float32, error)
}

// VectorIndex is the per-namespace corpus handle.
type VectorIndex interface {
	DescribeStats(ctx context.Context, namespace string) (domain.IndexStats, error)
	Query(ctx context.Context, q domain.VectorQuery) ([]domain.RetrievedChunk, error)
}

// MorphTokenizer splits Japanese text into lemmas with part of speech.
type MorphTokenizer interface {
	Ready() bool
	Tokenize(text string) ([]domain.MorphToken, error)
}

// SparseEncoder builds lexical vectors for hybrid search.
type SparseEncoder interface {
	Encode(text string) domain.SparseVector
}

// RunRecorder persists retrieval run summaries.
type RunRecorder interface {
	SaveRun(ctx context.Context, run domain.RetrievalRun) error
	ListLowAchievement(ctx context.Context, threshold float64, limit int) ([]domain.RetrievalRun, error)
}

// EventPublisher announces finished retrieval runs.
type EventPublisher interface {
	PublishRetrievalCompleted(ctx context.Context, run domain.RetrievalRun) error
}

// RetrievalObserver receives per-run measurements.
type RetrievalObserver interface {
	ObserveQuery(outcome string, duration float64)
	ObserveSearch(result domain.SearchResult)
}
