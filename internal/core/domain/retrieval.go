package domain

import "time"

// RetrievedChunk is one hit of a single query. Rank is 1-based within that query.
type RetrievedChunk struct {
	ChunkID  string         `json:"chunk_id"`
	FileName string         `json:"file_name"`
	Content  string         `json:"content"`
	Rank     int            `json:"rank"`
	Score    float64        `json:"score"`
	Metadata map[string]any `json:"metadata,omitempty"`
}

type SparseVector struct {
	Indices []uint32  `json:"indices"`
	Values  []float32 `json:"values"`
}

func (v SparseVector) Len() int {
	return len(v.Indices)
}

// IndexedChunk is a stored chunk with its vectors. It is also the in-memory
// snapshot record format.
type IndexedChunk struct {
	ID        string        `json:"id"`
	Namespace string        `json:"namespace"`
	FileName  string        `json:"file_name"`
	Content   string        `json:"content"`
	Vector    []float32     `json:"vector,omitempty"`
	Sparse    *SparseVector `json:"sparse,omitempty"`
}

type IndexStats struct {
	RecordCount int `json:"record_count"`
}

// VectorQuery asks the index for the TopK nearest chunks. Sparse is nil for dense-only search.
type VectorQuery struct {
	Namespace string
	Text      string
	Dense     []float32
	Sparse    *SparseVector
	TopK      int
}

// MorphToken is a morphological unit of Japanese text.
type MorphToken struct {
	Surface string
	Lemma   string
	POS     string
}

type FusedDocument struct {
	ID          string             `json:"id"`
	FileName    string             `json:"file_name"`
	Content     string             `json:"content"`
	RRFScore    float64            `json:"rrf_score"`
	QueryScores map[string]float64 `json:"query_scores"`
	Ranks       map[string]int     `json:"ranks"`
	QueryHits   int                `json:"query_hits"`
	Metadata    map[string]any     `json:"metadata,omitempty"`
}

type SearchStatistics struct {
	AvgRRFScore   float64        `json:"avg_rrf_score"`
	AvgCoverage   float64        `json:"avg_coverage"`
	FileCounts    map[string]int `json:"file_counts"`
	QueryCount    int            `json:"query_count"`
	DocumentCount int            `json:"document_count"`
}

const (
	DegradedEmptyCorpus      = "empty_corpus"
	DegradedStatsFailed      = "stats_failed"
	DegradedAllQueriesFailed = "all_queries_failed"
	DegradedPanic            = "panic"
)

type SearchMetadata struct {
	RunID            string    `json:"run_id"`
	StakeholderID    string    `json:"stakeholder_id"`
	Namespace        string    `json:"namespace"`
	StoreType        string    `json:"store_type"`
	DynamicK         int       `json:"dynamic_k"`
	TotalChunks      int       `json:"total_chunks"`
	SearchK          int       `json:"search_k"`
	Queries          []string  `json:"queries"`
	Weights          []float64 `json:"weights"`
	SucceededQueries int       `json:"succeeded_queries"`
	FailedQueries    int       `json:"failed_queries"`
	HybridFallbacks  int       `json:"hybrid_fallbacks"`
	Hybrid           bool      `json:"hybrid"`
	AchievementRate  float64   `json:"achievement_rate"`
	Degraded         string    `json:"degraded,omitempty"`
	DurationMS       int64     `json:"duration_ms"`
}

// SearchResult is the fused retrieval output. Content is nil when nothing was found.
type SearchResult struct {
	Content    *string          `json:"content"`
	Documents  []FusedDocument  `json:"documents"`
	Statistics SearchStatistics `json:"statistics"`
	Metadata   SearchMetadata   `json:"metadata"`
}

// RetrievalRun is the persisted summary of one search.
type RetrievalRun struct {
	ID              string    `json:"id"`
	StakeholderID   string    `json:"stakeholder_id"`
	Namespace       string    `json:"namespace"`
	StoreType       string    `json:"store_type"`
	DynamicK        int       `json:"dynamic_k"`
	TotalChunks     int       `json:"total_chunks"`
	Returned        int       `json:"returned"`
	AchievementRate float64   `json:"achievement_rate"`
	FailedQueries   int       `json:"failed_queries"`
	Degraded        string    `json:"degraded,omitempty"`
	Queries         []string  `json:"queries"`
	DurationMS      int64     `json:"duration_ms"`
	CreatedAt       time.Time `json:"created_at"`
}

func NewRetrievalRun(result SearchResult, at time.Time) RetrievalRun {
	md := result.Metadata
	return RetrievalRun{
		ID:              md.RunID,
		StakeholderID:   md.StakeholderID,
		Namespace:       md.Namespace,
		StoreType:       md.StoreType,
		DynamicK:        md.DynamicK,
		TotalChunks:     md.TotalChunks,
		Returned:        len(result.Documents),
		AchievementRate: md.AchievementRate,
		FailedQueries:   md.FailedQueries,
		Degraded:        md.Degraded,
		Queries:         append([]string(nil), md.Queries...),
		DurationMS:      md.DurationMS,
		CreatedAt:       at.UTC(),
	}
}
