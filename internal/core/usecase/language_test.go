package usecase

import (
	"reflect"
	"testing"

	"github.com/kirillkom/safety-report-retrieval/internal/core/lexicon"
)

func TestDetectLanguage(t *testing.T) {
	cases := map[string]Language{
		"安全リスク":       LanguageJA,
		"カタカナ":        LanguageJA,
		"safety risk": LanguageEN,
		"安全 safety":   LanguageMixed,
		"":            LanguageEN,
		"12345":       LanguageEN,
	}
	for text, want := range cases {
		if got := DetectLanguage(text); got != want {
			t.Fatalf("DetectLanguage(%q) = %s, want %s", text, got, want)
		}
	}
}

func TestCleanRole(t *testing.T) {
	c := NewRoleClassifier(lexicon.MustDefault())
	cases := map[string]string{
		"Product Manager / プロダクトマネージャー": "プロダクトマネージャー",
		"Product Manager":                "プロダクトマネージャー",
		"Quality Manager Team":           "品質管理責任者",
		"Head of Widgets (EMEA)":         "Head of Widgets EMEA",
		"Lead / Principal Engineer":      "Principal Engineer",
		"  ":                             "",
	}
	for in, want := range cases {
		if got := c.CleanRole(in); got != want {
			t.Fatalf("CleanRole(%q) = %q, want %q", in, got, want)
		}
	}
}

func TestConcretizeConcern(t *testing.T) {
	c := NewRoleClassifier(lexicon.MustDefault())
	if got := c.ConcretizeConcern("戦略的整合性"); got != "経営戦略 事業目標 投資判断 リスク管理" {
		t.Fatalf("unexpected concretized concern: %q", got)
	}
	if got := c.ConcretizeConcern("unmapped concern"); got != "unmapped concern" {
		t.Fatalf("expected passthrough, got %q", got)
	}
}

func TestPrioritizeConcernsWeightsJapaneseHits(t *testing.T) {
	c := NewRoleClassifier(lexicon.MustDefault())
	got := c.PrioritizeConcerns([]string{"チームの士気", "安全性の確保", "コストとスケジュール", "risk and safety"})
	want := []string{"コストとスケジュール", "安全性の確保", "risk and safety"}
	if !reflect.DeepEqual(got, want) {
		t.Fatalf("PrioritizeConcerns() = %v, want %v", got, want)
	}
}

func TestPrioritizeConcernsKeepsOrderOnTies(t *testing.T) {
	c := NewRoleClassifier(lexicon.MustDefault())
	got := c.PrioritizeConcerns([]string{"a", "", "b", "c", "d"})
	want := []string{"a", "b", "c"}
	if !reflect.DeepEqual(got, want) {
		t.Fatalf("PrioritizeConcerns() = %v, want %v", got, want)
	}
}

func TestTranslateConcern(t *testing.T) {
	c := NewRoleClassifier(lexicon.MustDefault())
	cases := map[string]string{
		"risk management":    "リスク 管理",
		"safety case review": "安全論証 レビュー",
		"throughput":         "",
		"安全 review":          "安全 レビュー",
	}
	for in, want := range cases {
		if got := c.TranslateConcern(in); got != want {
			t.Fatalf("TranslateConcern(%q) = %q, want %q", in, got, want)
		}
	}
}

func TestContainsTermMatchesWordStarts(t *testing.T) {
	if containsTerm("development lead", "pm") {
		t.Fatalf("pm must not match inside development")
	}
	if !containsTerm("open requirements", "requirement") {
		t.Fatalf("requirement should match requirements")
	}
	if !containsTerm("R&D center", "r&d") {
		t.Fatalf("r&d should match")
	}
	if !containsTerm("品質保証部", "品質") {
		t.Fatalf("japanese substring should match")
	}
}
