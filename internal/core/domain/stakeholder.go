package domain

import "strings"

// StakeholderKind tags a stakeholder as one of the fixed report audiences or a
// dynamically registered one whose role has to be inferred.
type StakeholderKind string

const (
	StakeholderPredefined StakeholderKind = "predefined"
	StakeholderCustom     StakeholderKind = "custom"
)

// CustomStakeholderPrefix marks dynamically registered stakeholder ids.
const CustomStakeholderPrefix = "custom_"

const (
	StakeholderCxO              = "cxo"
	StakeholderTechnicalFellows = "technical-fellows"
	StakeholderArchitect        = "architect"
	StakeholderRAndD            = "r-and-d"
	StakeholderBusiness         = "business"
	StakeholderProduct          = "product"
)

var predefinedStakeholders = map[string]struct{}{
	StakeholderCxO:              {},
	StakeholderTechnicalFellows: {},
	StakeholderArchitect:        {},
	StakeholderRAndD:            {},
	StakeholderBusiness:         {},
	StakeholderProduct:          {},
}

// RoleCategory is the coarse audience class that drives query weights and K ratios.
type RoleCategory string

const (
	CategoryTechnical   RoleCategory = "technical"
	CategoryExecutive   RoleCategory = "executive"
	CategoryProduct     RoleCategory = "product"
	CategoryRiskQuality RoleCategory = "risk_quality"
	CategoryGeneral     RoleCategory = "general"
)

type Stakeholder struct {
	ID       string          `json:"id"`
	Role     string          `json:"role"`
	Concerns []string        `json:"concerns"`
	Kind     StakeholderKind `json:"kind"`
}

// NewStakeholder copies concerns and resolves the kind tag once. Ids outside the
// predefined set are treated as custom even without the prefix.
func NewStakeholder(id, role string, concerns []string) Stakeholder {
	id = strings.TrimSpace(id)
	kind := StakeholderCustom
	if IsPredefinedStakeholder(id) {
		kind = StakeholderPredefined
	}
	cp := make([]string, 0, len(concerns))
	for _, c := range concerns {
		if c = strings.TrimSpace(c); c != "" {
			cp = append(cp, c)
		}
	}
	return Stakeholder{
		ID:       id,
		Role:     strings.TrimSpace(role),
		Concerns: cp,
		Kind:     kind,
	}
}

func IsPredefinedStakeholder(id string) bool {
	_, ok := predefinedStakeholders[id]
	return ok
}

// IsCustom reports the kind tag. Literals built without NewStakeholder fall back
// to the predefined id set.
func (s Stakeholder) IsCustom() bool {
	if s.Kind == "" {
		return !IsPredefinedStakeholder(s.ID)
	}
	return s.Kind == StakeholderCustom
}

// Namespace composes the index partition for a stakeholder and end user.
func Namespace(stakeholderID, userID string) string {
	userID = strings.TrimSpace(userID)
	if userID == "" {
		return stakeholderID
	}
	return stakeholderID + "_" + userID
}
