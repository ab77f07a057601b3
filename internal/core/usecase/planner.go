package usecase

import (
	"github.com/kirillkom/safety-report-retrieval/internal/core/domain"
	"github.com/kirillkom/safety-report-retrieval/internal/core/ports"
)

// Planner generates query plans and sizes K without an index or embedder.
// Offline tooling uses it directly; AdaptiveSearch delegates to it.
type Planner struct {
	enhancer  *QueryEnhancer
	sizer     *DynamicKSizer
	enhance   EnhanceConfig
	storeType string
}

func NewPlanner(enhancer *QueryEnhancer, sizer *DynamicKSizer, enhance EnhanceConfig, storeType string) *Planner {
	if storeType == "" {
		storeType = StoreQdrant
	}
	return &Planner{
		enhancer:  enhancer,
		sizer:     sizer,
		enhance:   enhance.normalize(),
		storeType: storeType,
	}
}

var _ ports.QueryPlanner = (*Planner)(nil)

func (p *Planner) enhanceConfig(maxQueries int) EnhanceConfig {
	cfg := p.enhance
	if maxQueries > 0 {
		cfg.MaxQueries = maxQueries
	}
	return cfg
}

func (p *Planner) PlanQueries(st domain.Stakeholder, maxQueries int) []string {
	return p.enhancer.Enhance(st, p.enhanceConfig(maxQueries))
}

func (p *Planner) Plan(st domain.Stakeholder, maxQueries int) ports.QueryPlan {
	queries, analysis := p.enhancer.enhance(st, p.enhanceConfig(maxQueries))
	return ports.QueryPlan{
		Queries:  queries,
		Weights:  QueryWeights(analysis.Category, len(queries)),
		Category: analysis.Category,
	}
}

// DynamicK uses the planner's store type when storeType is empty.
func (p *Planner) DynamicK(totalChunks int, st domain.Stakeholder, storeType string) int {
	if storeType == "" {
		storeType = p.storeType
	}
	return p.sizer.GetDynamicK(totalChunks, st, storeType)
}

func (p *Planner) SearchK(dynamicK int) int {
	return p.sizer.SearchK(dynamicK)
}
