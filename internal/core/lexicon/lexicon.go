// Package lexicon holds the bilingual word lists used for query expansion and
// sparse term weighting. A Lexicon is read-only once loaded and is shared by
// reference between the classifier, the query enhancer and the sparse builder.
package lexicon

import (
	"bytes"
	_ "embed"
	"fmt"
	"io"
	"os"
	"sort"
	"strings"

	"gopkg.in/yaml.v3"
)

//go:embed default.yaml
var defaultData []byte

type Pair struct {
	EN string `yaml:"en"`
	JA string `yaml:"ja"`
}

type Concretization struct {
	From string `yaml:"from"`
	To   string `yaml:"to"`
}

type ConcernGroup struct {
	Stakeholder string           `yaml:"stakeholder"`
	Entries     []Concretization `yaml:"entries"`
}

type SynonymGroup struct {
	Topic    string   `yaml:"topic"`
	Match    []string `yaml:"match"`
	Synonyms []string `yaml:"synonyms"`
}

type RoleProfile struct {
	ID       string   `yaml:"id"`
	Category string   `yaml:"category"`
	Terms    []string `yaml:"terms"`
	English  string   `yaml:"english"`
}

type FieldProfile struct {
	Name     string   `yaml:"name"`
	Keywords []string `yaml:"keywords"`
	TermsJA  []string `yaml:"terms_ja"`
	TermsEN  []string `yaml:"terms_en"`
	Synonym  string   `yaml:"synonym"`
	English  string   `yaml:"english"`
}

type KeywordGroup struct {
	Name     string   `yaml:"name"`
	Category string   `yaml:"category"`
	Keywords []string `yaml:"keywords"`
	Query    string   `yaml:"query"`
}

type WeightedTerm struct {
	Term   string  `yaml:"term"`
	Weight float64 `yaml:"weight"`
}

type Lexicon struct {
	EnglishFallback  string `yaml:"english_fallback"`
	JapaneseFallback string `yaml:"japanese_fallback"`
	GSNQuery         string `yaml:"gsn_query"`

	RoleTranslations      []Pair         `yaml:"role_translations"`
	ConcernTranslations   []Pair         `yaml:"concern_translations"`
	ConcernConcretization []ConcernGroup `yaml:"concern_concretization"`

	PriorityKeywords struct {
		JA []string `yaml:"ja"`
		EN []string `yaml:"en"`
	} `yaml:"priority_keywords"`

	RoleSynonymsJA    []SynonymGroup `yaml:"role_synonyms_ja"`
	RoleSynonymsEN    []SynonymGroup `yaml:"role_synonyms_en"`
	ConcernSynonymsJA []SynonymGroup `yaml:"concern_synonyms_ja"`
	ConcernSynonymsEN []SynonymGroup `yaml:"concern_synonyms_en"`

	RoleProfiles    []RoleProfile  `yaml:"role_profiles"`
	Fields          []FieldProfile `yaml:"fields"`
	Levels          []KeywordGroup `yaml:"levels"`
	Categories      []KeywordGroup `yaml:"categories"`
	ConcernTriggers []KeywordGroup `yaml:"concern_triggers"`
	EnglishKeywords []Pair         `yaml:"english_keywords"`

	SparseKeywordsEN []WeightedTerm `yaml:"sparse_keywords_en"`
	SparseKeywordsJA []WeightedTerm `yaml:"sparse_keywords_ja"`

	roles       map[string]string
	rolesBySize []Pair
	concerns    map[string]string
	concrete    map[string]string
	profiles    map[string]RoleProfile
	fields      map[string]FieldProfile
	sparseEN    map[string]float64
	sparseJA    map[string]float64
}

// Load parses a YAML lexicon and builds its lookup indexes.
func Load(r io.Reader) (*Lexicon, error) {
	var lex Lexicon
	dec := yaml.NewDecoder(r)
	dec.KnownFields(true)
	if err := dec.Decode(&lex); err != nil {
		return nil, fmt.Errorf("decode lexicon: %w", err)
	}
	if err := lex.compile(); err != nil {
		return nil, err
	}
	return &lex, nil
}

// LoadFile reads a lexicon from path, or the embedded default when path is empty.
func LoadFile(path string) (*Lexicon, error) {
	if strings.TrimSpace(path) == "" {
		return Default()
	}
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open lexicon: %w", err)
	}
	defer f.Close()
	return Load(f)
}

func Default() (*Lexicon, error) {
	return Load(bytes.NewReader(defaultData))
}

// MustDefault panics if the embedded lexicon is malformed. Intended for tests and tools.
func MustDefault() *Lexicon {
	lex, err := Default()
	if err != nil {
		panic(err)
	}
	return lex
}

func (l *Lexicon) compile() error {
	if strings.TrimSpace(l.EnglishFallback) == "" {
		return fmt.Errorf("lexicon: english_fallback is required")
	}

	l.roles = make(map[string]string, len(l.RoleTranslations))
	for _, p := range l.RoleTranslations {
		l.roles[strings.ToLower(p.EN)] = p.JA
	}
	l.rolesBySize = append([]Pair(nil), l.RoleTranslations...)
	sort.SliceStable(l.rolesBySize, func(i, j int) bool {
		return len(l.rolesBySize[i].EN) > len(l.rolesBySize[j].EN)
	})

	l.concerns = make(map[string]string, len(l.ConcernTranslations))
	for _, p := range l.ConcernTranslations {
		l.concerns[strings.ToLower(p.EN)] = p.JA
	}

	l.concrete = make(map[string]string)
	for _, g := range l.ConcernConcretization {
		for _, e := range g.Entries {
			if _, dup := l.concrete[e.From]; dup {
				return fmt.Errorf("lexicon: duplicate concretization %q", e.From)
			}
			l.concrete[e.From] = e.To
		}
	}

	l.profiles = make(map[string]RoleProfile, len(l.RoleProfiles))
	for _, p := range l.RoleProfiles {
		l.profiles[p.ID] = p
	}

	l.fields = make(map[string]FieldProfile, len(l.Fields))
	for _, f := range l.Fields {
		l.fields[f.Name] = f
	}

	l.sparseEN = buildWeights(l.SparseKeywordsEN, strings.ToLower)
	l.sparseJA = buildWeights(l.SparseKeywordsJA, func(s string) string { return s })
	return nil
}

func buildWeights(terms []WeightedTerm, norm func(string) string) map[string]float64 {
	out := make(map[string]float64, len(terms))
	for _, t := range terms {
		if t.Weight <= 0 {
			continue
		}
		out[norm(t.Term)] = t.Weight
	}
	return out
}

// TranslateRole returns the Japanese title for an exact (lowercased) English role.
func (l *Lexicon) TranslateRole(role string) (string, bool) {
	ja, ok := l.roles[strings.ToLower(strings.TrimSpace(role))]
	return ja, ok
}

// RoleTranslationsBySize lists role translations longest English phrase first.
func (l *Lexicon) RoleTranslationsBySize() []Pair {
	return l.rolesBySize
}

func (l *Lexicon) TranslateConcernTerm(term string) (string, bool) {
	ja, ok := l.concerns[strings.ToLower(term)]
	return ja, ok
}

func (l *Lexicon) Concretize(concern string) (string, bool) {
	to, ok := l.concrete[concern]
	return to, ok
}

func (l *Lexicon) Profile(id string) (RoleProfile, bool) {
	p, ok := l.profiles[id]
	return p, ok
}

func (l *Lexicon) Field(name string) (FieldProfile, bool) {
	f, ok := l.fields[name]
	return f, ok
}

func (l *Lexicon) SparseWeightEN(term string) (float64, bool) {
	w, ok := l.sparseEN[term]
	return w, ok
}

func (l *Lexicon) SparseWeightJA(term string) (float64, bool) {
	w, ok := l.sparseJA[term]
	return w, ok
}
