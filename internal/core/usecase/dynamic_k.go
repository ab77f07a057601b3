package usecase

import (
	"fmt"
	"math"

	"github.com/kirillkom/safety-report-retrieval/internal/core/domain"
	"github.com/kirillkom/safety-report-retrieval/internal/core/lexicon"
)

const (
	StoreQdrant = "qdrant"
	StoreMemory = "memory"
)

// ratioEpsilon keeps ceil(1000*0.15) at 150 despite binary float error.
const ratioEpsilon = 1e-9

type DynamicKConfig struct {
	AbsoluteMin         int                             `json:"absolute_min"`
	StoreMax            map[string]int                  `json:"store_max"`
	DefaultStoreMax     int                             `json:"default_store_max"`
	RatioMin            float64                         `json:"ratio_min"`
	RatioMax            float64                         `json:"ratio_max"`
	StakeholderRatios   map[string]float64              `json:"stakeholder_ratios"`
	CategoryRatios      map[domain.RoleCategory]float64 `json:"category_ratios"`
	DefaultRatio        float64                         `json:"default_ratio"`
	OverfetchMultiplier float64                         `json:"overfetch_multiplier"`
	MinSearchK          int                             `json:"min_search_k"`
}

func DefaultDynamicKConfig() DynamicKConfig {
	return DynamicKConfig{
		AbsoluteMin: 5,
		StoreMax: map[string]int{
			StoreQdrant: 100,
			StoreMemory: 20,
		},
		DefaultStoreMax: 20,
		RatioMin:        0.08,
		RatioMax:        0.15,
		StakeholderRatios: map[string]float64{
			domain.StakeholderTechnicalFellows: 0.15,
			domain.StakeholderArchitect:        0.15,
			domain.StakeholderRAndD:            0.14,
			domain.StakeholderProduct:          0.11,
			domain.StakeholderBusiness:         0.09,
			domain.StakeholderCxO:              0.08,
		},
		CategoryRatios: map[domain.RoleCategory]float64{
			domain.CategoryTechnical:   0.15,
			domain.CategoryExecutive:   0.08,
			domain.CategoryRiskQuality: 0.12,
			domain.CategoryGeneral:     0.10,
		},
		DefaultRatio:        0.10,
		OverfetchMultiplier: 1.5,
		MinSearchK:          20,
	}
}

func (c DynamicKConfig) Validate() error {
	if c.AbsoluteMin < 1 {
		return fmt.Errorf("dynamic k: absolute min must be >= 1, got %d", c.AbsoluteMin)
	}
	if c.DefaultStoreMax < c.AbsoluteMin {
		return fmt.Errorf("dynamic k: default store max %d below absolute min %d", c.DefaultStoreMax, c.AbsoluteMin)
	}
	for store, ceiling := range c.StoreMax {
		if ceiling < c.AbsoluteMin {
			return fmt.Errorf("dynamic k: store %q max %d below absolute min %d", store, ceiling, c.AbsoluteMin)
		}
	}
	if !validRatio(c.RatioMin) || !validRatio(c.RatioMax) || c.RatioMin > c.RatioMax {
		return fmt.Errorf("dynamic k: invalid ratio bounds [%v, %v]", c.RatioMin, c.RatioMax)
	}
	if !validRatio(c.DefaultRatio) {
		return fmt.Errorf("dynamic k: invalid default ratio %v", c.DefaultRatio)
	}
	for id, r := range c.StakeholderRatios {
		if !validRatio(r) {
			return fmt.Errorf("dynamic k: invalid ratio %v for %q", r, id)
		}
	}
	for cat, r := range c.CategoryRatios {
		if !validRatio(r) {
			return fmt.Errorf("dynamic k: invalid ratio %v for category %q", r, cat)
		}
	}
	if c.OverfetchMultiplier < 1 {
		return fmt.Errorf("dynamic k: overfetch multiplier must be >= 1, got %v", c.OverfetchMultiplier)
	}
	if c.MinSearchK < 1 {
		return fmt.Errorf("dynamic k: min search k must be >= 1, got %d", c.MinSearchK)
	}
	return nil
}

func validRatio(r float64) bool {
	return r > 0 && r <= 1
}

// DynamicKSizer decides how many fused documents a stakeholder gets back.
// It holds no mutable state.
type DynamicKSizer struct {
	cfg         DynamicKConfig
	classifiers classifierSet
}

func NewDynamicKSizer(cfg DynamicKConfig, lex *lexicon.Lexicon) (*DynamicKSizer, error) {
	if err := cfg.Validate(); err != nil {
		return nil, domain.WrapError(domain.ErrInvalidInput, "new dynamic k sizer", err)
	}
	return &DynamicKSizer{cfg: cfg, classifiers: newClassifierSet(lex)}, nil
}

func (z *DynamicKSizer) Config() DynamicKConfig {
	return z.cfg
}

// Ratio is the target share of the corpus for a stakeholder.
func (z *DynamicKSizer) Ratio(s domain.Stakeholder) float64 {
	if !s.IsCustom() {
		if r, ok := z.cfg.StakeholderRatios[s.ID]; ok {
			return r
		}
		return z.cfg.DefaultRatio
	}
	category := z.classifiers.Classify(s).Category
	if r, ok := z.cfg.CategoryRatios[category]; ok {
		return r
	}
	return z.cfg.DefaultRatio
}

// Bounds returns the absolute floor and the store ceiling.
func (z *DynamicKSizer) Bounds(storeType string) (int, int) {
	ceiling, ok := z.cfg.StoreMax[storeType]
	if !ok {
		ceiling = z.cfg.DefaultStoreMax
	}
	return z.cfg.AbsoluteMin, ceiling
}

func (z *DynamicKSizer) GetDynamicK(totalChunks int, s domain.Stakeholder, storeType string) int {
	if totalChunks < 0 {
		totalChunks = 0
	}
	absMin, absMax := z.Bounds(storeType)

	rawMinK := ceilShare(totalChunks, z.cfg.RatioMin)
	rawMaxK := ceilShare(totalChunks, z.cfg.RatioMax)

	minK := min(max(absMin, rawMinK), absMax)
	maxK := max(minK, min(absMax, rawMaxK))

	targetK := ceilShare(totalChunks, z.Ratio(s))
	return min(max(targetK, minK), maxK)
}

// SearchK is the per-query fetch size. Fusion needs more candidates than it returns.
func (z *DynamicKSizer) SearchK(dynamicK int) int {
	return max(z.cfg.MinSearchK, int(math.Ceil(float64(dynamicK)*z.cfg.OverfetchMultiplier-ratioEpsilon)))
}

func ceilShare(total int, ratio float64) int {
	return int(math.Ceil(float64(total)*ratio - ratioEpsilon))
}
