package httpadapter

import (
	"errors"
	"strings"

	"github.com/kirillkom/safety-report-retrieval/internal/core/domain"
)

type stakeholderDTO struct {
	ID       string   `json:"id"`
	Role     string   `json:"role"`
	Concerns []string `json:"concerns"`
}

func (s stakeholderDTO) toDomain() (domain.Stakeholder, error) {
	id := strings.TrimSpace(s.ID)
	if id == "" {
		return domain.Stakeholder{}, domain.WrapError(domain.ErrInvalidInput, "decode stakeholder", errors.New("stakeholder.id is required"))
	}
	return domain.NewStakeholder(id, s.Role, s.Concerns), nil
}

type searchRequestDTO struct {
	Stakeholder stakeholderDTO `json:"stakeholder"`
	UserID      string         `json:"user_id"`
	Hybrid      *bool          `json:"hybrid"`
	MaxQueries  int            `json:"max_queries"`
}

type planRequestDTO struct {
	Stakeholder stakeholderDTO `json:"stakeholder"`
	MaxQueries  int            `json:"max_queries"`
}

type planResponseDTO struct {
	StakeholderID string              `json:"stakeholder_id"`
	Queries       []string            `json:"queries"`
	Weights       []float64           `json:"weights"`
	Category      domain.RoleCategory `json:"category"`
}

type dynamicKRequestDTO struct {
	Stakeholder stakeholderDTO `json:"stakeholder"`
	TotalChunks int            `json:"total_chunks"`
	StoreType   string         `json:"store_type"`
}

type dynamicKResponseDTO struct {
	StakeholderID string `json:"stakeholder_id"`
	TotalChunks   int    `json:"total_chunks"`
	StoreType     string `json:"store_type,omitempty"`
	DynamicK      int    `json:"dynamic_k"`
	SearchK       int    `json:"search_k"`
}

type runsResponseDTO struct {
	Threshold float64               `json:"threshold,omitempty"`
	Runs      []domain.RetrievalRun `json:"runs"`
}

type healthResponseDTO struct {
	Status   string            `json:"status"`
	Breakers map[string]string `json:"breakers,omitempty"`
}

type errorResponseDTO struct {
	Error     string `json:"error"`
	Code      string `json:"code"`
	RequestID string `json:"request_id,omitempty"`
}
