package ports

import (
	"context"

	"github.com/kirillkom/safety-report-retrieval/internal/core/domain"
)

// SearchRequest is the inbound retrieval call. Nil option pointers keep service defaults.
type SearchRequest struct {
	Stakeholder domain.Stakeholder
	UserID      string
	Hybrid      *bool
	MaxQueries  int
}

// Retriever runs the full multi-query fused search. It never fails; problems
// show up in SearchResult.Metadata.
type Retriever interface {
	Search(ctx context.Context, req SearchRequest) domain.SearchResult
}

// QueryPlan is the enhanced query list with one fusion weight per query.
type QueryPlan struct {
	Queries  []string            `json:"queries"`
	Weights  []float64           `json:"weights"`
	Category domain.RoleCategory `json:"category"`
}

// QueryPlanner exposes query generation and K sizing without touching the index.
type QueryPlanner interface {
	PlanQueries(s domain.Stakeholder, maxQueries int) []string
	Plan(s domain.Stakeholder, maxQueries int) QueryPlan
	DynamicK(totalChunks int, s domain.Stakeholder, storeType string) int
	SearchK(dynamicK int) int
}
