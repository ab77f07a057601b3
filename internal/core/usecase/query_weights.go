package usecase

import "github.com/kirillkom/safety-report-retrieval/internal/core/domain"

// QueryWeights returns one RRF weight per query position. Technical audiences trust
// the primary query most, executives spread trust over the first two.
func QueryWeights(category domain.RoleCategory, n int) []float64 {
	weights := make([]float64, n)
	for i := range weights {
		weights[i] = 1.0
		switch category {
		case domain.CategoryTechnical:
			if i == 0 {
				weights[i] = 1.5
			}
		case domain.CategoryExecutive:
			if i < 2 {
				weights[i] = 1.2
			} else {
				weights[i] = 0.8
			}
		case domain.CategoryProduct:
			if i == 0 {
				weights[i] = 1.2
			}
		case domain.CategoryRiskQuality:
			switch i {
			case 0:
				weights[i] = 1.3
			case 1:
				weights[i] = 1.1
			}
		}
	}
	return weights
}
