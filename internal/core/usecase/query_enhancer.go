package usecase

import (
	"strings"

	"github.com/kirillkom/safety-report-retrieval/internal/core/domain"
	"github.com/kirillkom/safety-report-retrieval/internal/core/lexicon"
)

const (
	defaultMaxQueries       = 5
	maxEnglishFallbackTerms = 4
)

type EnhanceConfig struct {
	MaxQueries       int  `json:"max_queries"`
	IncludeEnglish   bool `json:"include_english"`
	IncludeSynonyms  bool `json:"include_synonyms"`
	IncludeRoleTerms bool `json:"include_role_terms"`
}

func DefaultEnhanceConfig() EnhanceConfig {
	return EnhanceConfig{
		MaxQueries:       defaultMaxQueries,
		IncludeEnglish:   true,
		IncludeSynonyms:  true,
		IncludeRoleTerms: true,
	}
}

func (c EnhanceConfig) normalize() EnhanceConfig {
	if c.MaxQueries <= 0 {
		c.MaxQueries = defaultMaxQueries
	}
	return c
}

// QueryEnhancer expands a stakeholder into an ordered, duplicate-free list of
// search queries. Position 0 is the primary query.
type QueryEnhancer struct {
	lex         *lexicon.Lexicon
	roles       *RoleClassifier
	classifiers classifierSet
}

func NewQueryEnhancer(lex *lexicon.Lexicon) *QueryEnhancer {
	return &QueryEnhancer{
		lex:         lex,
		roles:       NewRoleClassifier(lex),
		classifiers: newClassifierSet(lex),
	}
}

// WithClassifiers swaps the classification strategies. Nil keeps the current one.
func (e *QueryEnhancer) WithClassifiers(predefined, custom StakeholderClassifier) *QueryEnhancer {
	cp := *e
	if predefined != nil {
		cp.classifiers.predefined = predefined
	}
	if custom != nil {
		cp.classifiers.custom = custom
	}
	return &cp
}

func (e *QueryEnhancer) Analyze(s domain.Stakeholder) RoleAnalysis {
	return e.classifiers.Classify(s)
}

func (e *QueryEnhancer) Enhance(s domain.Stakeholder, cfg EnhanceConfig) []string {
	queries, _ := e.enhance(s, cfg)
	return queries
}

func (e *QueryEnhancer) enhance(s domain.Stakeholder, cfg EnhanceConfig) ([]string, RoleAnalysis) {
	cfg = cfg.normalize()
	analysis := e.classifiers.Classify(s)

	roleLang := DetectLanguage(s.Role)
	concernLang := roleLang
	if len(s.Concerns) > 0 {
		concernLang = DetectLanguage(strings.Join(s.Concerns, " "))
	}

	role := e.roles.CleanRole(s.Role)
	if role == "" {
		role = customIDText(s.ID)
	}
	concretized := make([]string, 0, len(s.Concerns))
	for _, c := range s.Concerns {
		concretized = append(concretized, e.roles.ConcretizeConcern(c))
	}
	top := e.roles.PrioritizeConcerns(concretized)

	qs := &querySet{}
	baseQueries(qs, role, top)
	e.crossLanguageQueries(qs, s.Role, role, roleLang, concernLang, top)
	if analysis.Custom {
		e.customQueries(qs, role, s.Concerns, top, analysis)
	}
	if cfg.IncludeSynonyms {
		e.synonymQueries(qs, s.Role, role, top)
	}
	if cfg.IncludeRoleTerms {
		e.roleTermQueries(qs, role, top, analysis)
	}
	if qs.len() == 0 {
		qs.add(e.lex.JapaneseFallback)
	}

	queries := qs.first(cfg.MaxQueries)
	japaneseLeaning := roleLang != LanguageEN || concernLang != LanguageEN
	if !japaneseLeaning {
		queries = e.ensureJapanese(queries, cfg.MaxQueries, role, top, analysis)
	}
	if cfg.IncludeEnglish && japaneseLeaning {
		english := analysis.EnglishTemplate
		if english == "" {
			english = e.englishFallback(s.Concerns, top)
		}
		if english = collapseSpaces(english); english != "" && !contains(queries, english) {
			queries = append(queries, english)
		}
	}
	return queries, analysis
}

func baseQueries(qs *querySet, role string, top []string) {
	switch len(top) {
	case 0:
		qs.add(role)
	case 1:
		qs.add(role + " " + top[0])
		qs.add(top[0])
	case 2:
		both := strings.Join(top, " ")
		qs.add(role + " " + both)
		qs.add(both)
		qs.add(role + " " + top[0])
	default:
		all := strings.Join(top[:3], " ")
		qs.add(role + " " + all)
		qs.add(all)
		qs.add(strings.Join(top[:2], " "))
	}
}

func (e *QueryEnhancer) crossLanguageQueries(qs *querySet, rawRole, role string, roleLang, concernLang Language, top []string) {
	jaRole := role
	if !containsJapanese(role) {
		jaRole = e.roles.TranslateRolePartial(rawRole)
	}

	jaConcerns := top
	if concernLang != LanguageJA {
		jaConcerns = nil
		for _, c := range top {
			if t := e.roles.TranslateConcern(c); t != "" {
				jaConcerns = append(jaConcerns, t)
			}
		}
		if len(jaConcerns) > 0 {
			qs.add(jaRole + " " + jaConcerns[0])
			qs.add(strings.Join(jaConcerns, " "))
		}
	}

	if roleLang != LanguageJA && jaRole != "" {
		if len(jaConcerns) > 0 {
			qs.add(jaRole + " " + strings.Join(firstN(jaConcerns, 2), " "))
		} else {
			qs.add(jaRole)
		}
	}
}

func (e *QueryEnhancer) customQueries(qs *querySet, role string, rawConcerns, top []string, analysis RoleAnalysis) {
	main := firstOr(top, "")
	field, hasField := e.lex.Field(analysis.Field)

	if hasField && len(field.TermsJA) > 0 {
		if main != "" {
			qs.add(field.TermsJA[0] + " " + main)
		} else {
			qs.add(role + " " + field.TermsJA[0])
		}
		if rest := field.TermsJA[1:]; len(rest) > 0 {
			qs.add(strings.Join(rest, " ") + " " + main)
		}
	}

	for _, trigger := range e.lex.ConcernTriggers {
		for _, c := range rawConcerns {
			if containsAnyTerm(c, trigger.Keywords) {
				qs.add(trigger.Query)
				break
			}
		}
	}

	if hasField && field.Synonym != "" {
		if main == "" {
			main = role
		}
		qs.add(field.Synonym + " " + main)
	}
}

func (e *QueryEnhancer) synonymQueries(qs *querySet, rawRole, role string, top []string) {
	main := firstOr(top, "")
	roleText := rawRole + " " + role
	for _, groups := range [][]lexicon.SynonymGroup{e.lex.RoleSynonymsJA, e.lex.RoleSynonymsEN} {
		if g, ok := matchSynonymGroup(roleText, groups); ok {
			qs.add(g.Synonyms[0] + " " + main)
			break
		}
	}
	for _, c := range top {
		for _, groups := range [][]lexicon.SynonymGroup{e.lex.ConcernSynonymsJA, e.lex.ConcernSynonymsEN} {
			if g, ok := matchSynonymGroup(c, groups); ok {
				qs.add(role + " " + g.Synonyms[0])
				break
			}
		}
	}
}

func matchSynonymGroup(text string, groups []lexicon.SynonymGroup) (lexicon.SynonymGroup, bool) {
	for _, g := range groups {
		if len(g.Synonyms) > 0 && containsAnyTerm(text, g.Match) {
			return g, true
		}
	}
	return lexicon.SynonymGroup{}, false
}

func (e *QueryEnhancer) roleTermQueries(qs *querySet, role string, top []string, analysis RoleAnalysis) {
	if len(analysis.Terms) > 0 {
		qs.add(analysis.Terms[0] + " " + firstOr(top, role))
	}
	if analysis.Technical {
		qs.add(e.lex.GSNQuery)
	}
}

// ensureJapanese keeps at least one Japanese query for English input, replacing
// the last slot when the list is already full.
func (e *QueryEnhancer) ensureJapanese(queries []string, limit int, role string, top []string, analysis RoleAnalysis) []string {
	for _, q := range queries {
		if containsJapanese(q) {
			return queries
		}
	}
	candidate := ""
	for _, c := range top {
		if t := e.roles.TranslateConcern(c); t != "" {
			candidate = t
			break
		}
	}
	if candidate == "" && len(analysis.Terms) > 0 {
		candidate = analysis.Terms[0] + " " + firstOr(top, role)
	}
	if candidate == "" {
		candidate = e.lex.JapaneseFallback
	}
	candidate = collapseSpaces(candidate)
	if candidate == "" {
		return queries
	}
	if len(queries) < limit {
		return append(queries, candidate)
	}
	out := append([]string(nil), queries...)
	out[len(out)-1] = candidate
	return out
}

// englishFallback collects English equivalents of Japanese keywords found in the concerns.
func (e *QueryEnhancer) englishFallback(rawConcerns, top []string) string {
	text := strings.Join(rawConcerns, " ") + " " + strings.Join(top, " ")
	var terms []string
	for _, kw := range e.lex.EnglishKeywords {
		if strings.Contains(text, kw.JA) {
			terms = appendUnique(terms, kw.EN)
			if len(terms) == maxEnglishFallbackTerms {
				break
			}
		}
	}
	if len(terms) == 0 {
		return e.lex.EnglishFallback
	}
	return strings.Join(terms, " ")
}

// querySet keeps insertion order and drops blanks and duplicates. Repeated
// words inside one query are kept once.
type querySet struct {
	items []string
	seen  map[string]struct{}
}

func (q *querySet) add(s string) {
	s = uniqueWords(s)
	if s == "" {
		return
	}
	if q.seen == nil {
		q.seen = make(map[string]struct{})
	}
	if _, ok := q.seen[s]; ok {
		return
	}
	q.seen[s] = struct{}{}
	q.items = append(q.items, s)
}

func (q *querySet) len() int {
	return len(q.items)
}

func (q *querySet) first(n int) []string {
	if n > len(q.items) {
		n = len(q.items)
	}
	return append([]string(nil), q.items[:n]...)
}

// uniqueWords collapses whitespace and drops repeated words, keeping the first.
func uniqueWords(s string) string {
	var words []string
	for _, w := range strings.Fields(s) {
		words = appendUnique(words, w)
	}
	return strings.Join(words, " ")
}

func firstN(list []string, n int) []string {
	if len(list) <= n {
		return list
	}
	return list[:n]
}

func firstOr(list []string, fallback string) string {
	if len(list) == 0 {
		return fallback
	}
	return list[0]
}

func contains(list []string, s string) bool {
	for _, item := range list {
		if item == s {
			return true
		}
	}
	return false
}
