package usecase

import (
	"strings"

	"github.com/kirillkom/safety-report-retrieval/internal/core/domain"
	"github.com/kirillkom/safety-report-retrieval/internal/core/lexicon"
)

// RoleAnalysis is what the query enhancer and the K sizer know about a stakeholder.
type RoleAnalysis struct {
	Category        domain.RoleCategory
	Field           string
	Level           string
	Terms           []string
	EnglishTemplate string
	Technical       bool
	Custom          bool
}

// StakeholderClassifier derives a RoleAnalysis from a stakeholder.
type StakeholderClassifier interface {
	Classify(s domain.Stakeholder) RoleAnalysis
}

// PredefinedClassifier reads the fixed role profile table.
type PredefinedClassifier struct {
	lex *lexicon.Lexicon
}

func NewPredefinedClassifier(lex *lexicon.Lexicon) *PredefinedClassifier {
	return &PredefinedClassifier{lex: lex}
}

func (c *PredefinedClassifier) Classify(s domain.Stakeholder) RoleAnalysis {
	profile, ok := c.lex.Profile(s.ID)
	if !ok {
		return RoleAnalysis{Category: domain.CategoryGeneral}
	}
	category := domain.RoleCategory(profile.Category)
	if category == "" {
		category = domain.CategoryGeneral
	}
	return RoleAnalysis{
		Category:        category,
		Terms:           profile.Terms,
		EnglishTemplate: profile.English,
		Technical:       category == domain.CategoryTechnical,
	}
}

// CustomClassifier infers category, business field and seniority from free-text
// roles of dynamically registered stakeholders.
type CustomClassifier struct {
	lex *lexicon.Lexicon
}

func NewCustomClassifier(lex *lexicon.Lexicon) *CustomClassifier {
	return &CustomClassifier{lex: lex}
}

func (c *CustomClassifier) Classify(s domain.Stakeholder) RoleAnalysis {
	text := s.Role + " " + customIDText(s.ID)

	analysis := RoleAnalysis{
		Category: c.inferCategory(text),
		Field:    c.InferField(s.Role),
		Level:    c.InferLevel(s.Role),
		Custom:   true,
	}
	analysis.Technical = analysis.Category == domain.CategoryTechnical
	if field, ok := c.lex.Field(analysis.Field); ok {
		analysis.Terms = field.TermsJA
		analysis.EnglishTemplate = field.English
	}
	return analysis
}

func (c *CustomClassifier) inferCategory(text string) domain.RoleCategory {
	for _, rule := range c.lex.Categories {
		if containsAnyTerm(text, rule.Keywords) {
			return domain.RoleCategory(rule.Category)
		}
	}
	return domain.CategoryGeneral
}

// InferField returns the first business field whose keywords occur in role, or "".
func (c *CustomClassifier) InferField(role string) string {
	for _, f := range c.lex.Fields {
		if containsAnyTerm(role, f.Keywords) {
			return f.Name
		}
	}
	return ""
}

// InferLevel returns manager, leader, staff or "". Not used for weighting yet.
func (c *CustomClassifier) InferLevel(role string) string {
	for _, lvl := range c.lex.Levels {
		if containsAnyTerm(role, lvl.Keywords) {
			return lvl.Name
		}
	}
	return ""
}

func customIDText(id string) string {
	id = strings.TrimPrefix(id, domain.CustomStakeholderPrefix)
	return strings.NewReplacer("_", " ", "-", " ").Replace(id)
}

// classifierSet dispatches on the stakeholder kind tag.
type classifierSet struct {
	predefined StakeholderClassifier
	custom     StakeholderClassifier
}

func newClassifierSet(lex *lexicon.Lexicon) classifierSet {
	return classifierSet{
		predefined: NewPredefinedClassifier(lex),
		custom:     NewCustomClassifier(lex),
	}
}

func (c classifierSet) Classify(s domain.Stakeholder) RoleAnalysis {
	if s.IsCustom() {
		return c.custom.Classify(s)
	}
	return c.predefined.Classify(s)
}
