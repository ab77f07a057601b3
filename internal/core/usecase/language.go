package usecase

import (
	"sort"
	"strings"
	"unicode"
	"unicode/utf8"

	"github.com/kirillkom/safety-report-retrieval/internal/core/lexicon"
)

type Language string

const (
	LanguageJA    Language = "ja"
	LanguageEN    Language = "en"
	LanguageMixed Language = "mixed"
)

const maxPrioritizedConcerns = 3

// DetectLanguage is a script heuristic: any hiragana, katakana or kanji makes text
// Japanese, Latin letters alongside make it mixed, everything else is English.
func DetectLanguage(text string) Language {
	var hasJA, hasLatin bool
	for _, r := range text {
		switch {
		case isJapaneseRune(r):
			hasJA = true
		case r < utf8.RuneSelf && unicode.IsLetter(r):
			hasLatin = true
		case unicode.In(r, unicode.Latin):
			hasLatin = true
		}
		if hasJA && hasLatin {
			return LanguageMixed
		}
	}
	if hasJA {
		return LanguageJA
	}
	return LanguageEN
}

func isJapaneseRune(r rune) bool {
	return unicode.In(r, unicode.Hiragana, unicode.Katakana, unicode.Han) || r == 'ー'
}

func containsJapanese(s string) bool {
	for _, r := range s {
		if isJapaneseRune(r) {
			return true
		}
	}
	return false
}

// RoleClassifier normalizes role and concern strings against the lexicon.
type RoleClassifier struct {
	lex *lexicon.Lexicon
}

func NewRoleClassifier(lex *lexicon.Lexicon) *RoleClassifier {
	return &RoleClassifier{lex: lex}
}

var roleStripper = strings.NewReplacer(
	"(", " ", ")", " ", "（", " ", "）", " ",
	"「", " ", "」", " ", "[", " ", "]", " ",
	",", " ", "、", " ", "。", " ", ":", " ", "：", " ",
	";", " ", "\"", " ", "'", " ", "・", " ",
)

var roleSuffixes = []string{" team", " division", " department", " dept"}

// CleanRole picks the Japanese part of "English / 日本語" titles and maps known
// English titles to their canonical Japanese form.
func (c *RoleClassifier) CleanRole(role string) string {
	role = strings.TrimSpace(role)
	if role == "" {
		return ""
	}

	if strings.Contains(role, "/") {
		parts := splitNonEmpty(role, "/")
		if len(parts) == 0 {
			return ""
		}
		for _, p := range parts {
			if containsJapanese(p) {
				return p
			}
		}
		longest := parts[0]
		for _, p := range parts[1:] {
			if utf8.RuneCountInString(p) > utf8.RuneCountInString(longest) {
				longest = p
			}
		}
		role = longest
	}

	cleaned := collapseSpaces(roleStripper.Replace(role))
	if cleaned == "" {
		return ""
	}
	if ja, ok := c.lex.TranslateRole(cleaned); ok {
		return ja
	}
	lower := strings.ToLower(cleaned)
	for _, suffix := range roleSuffixes {
		if trimmed, ok := strings.CutSuffix(lower, suffix); ok {
			if ja, ok := c.lex.TranslateRole(trimmed); ok {
				return ja
			}
		}
	}
	return cleaned
}

// TranslateRolePartial translates the longest known English title inside role.
// It returns "" when role carries no known title.
func (c *RoleClassifier) TranslateRolePartial(role string) string {
	padded := " " + normalizeASCII(role) + " "
	for _, p := range c.lex.RoleTranslationsBySize() {
		if strings.Contains(padded, " "+normalizeASCII(p.EN)+" ") {
			return p.JA
		}
	}
	return ""
}

func (c *RoleClassifier) ConcretizeConcern(concern string) string {
	concern = strings.TrimSpace(concern)
	if to, ok := c.lex.Concretize(concern); ok {
		return to
	}
	return concern
}

// PrioritizeConcerns keeps the three concerns with the most priority keyword hits.
// Japanese hits count double. Ties keep input order.
func (c *RoleClassifier) PrioritizeConcerns(concerns []string) []string {
	type scored struct {
		text  string
		score int
	}
	items := make([]scored, 0, len(concerns))
	for _, concern := range concerns {
		if strings.TrimSpace(concern) == "" {
			continue
		}
		score := 0
		for _, kw := range c.lex.PriorityKeywords.JA {
			if strings.Contains(concern, kw) {
				score += 2
			}
		}
		for _, kw := range c.lex.PriorityKeywords.EN {
			if containsTerm(concern, kw) {
				score++
			}
		}
		items = append(items, scored{text: concern, score: score})
	}
	sort.SliceStable(items, func(i, j int) bool {
		return items[i].score > items[j].score
	})
	if len(items) > maxPrioritizedConcerns {
		items = items[:maxPrioritizedConcerns]
	}
	out := make([]string, len(items))
	for i, it := range items {
		out[i] = it.text
	}
	return out
}

// TranslateConcern maps English words and phrases of a concern to Japanese,
// keeps Japanese words and drops unknown English ones. It returns "" when
// nothing Japanese is left.
func (c *RoleClassifier) TranslateConcern(concern string) string {
	words := strings.Fields(normalizeASCII(concern))
	var out []string
	for i := 0; i < len(words); {
		matched := false
		for n := 3; n >= 1; n-- {
			if i+n > len(words) {
				continue
			}
			if ja, ok := c.lex.TranslateConcernTerm(strings.Join(words[i:i+n], " ")); ok {
				out = appendUnique(out, ja)
				i += n
				matched = true
				break
			}
		}
		if !matched {
			if containsJapanese(words[i]) {
				out = appendUnique(out, words[i])
			}
			i++
		}
	}
	return strings.Join(out, " ")
}

// normalizeASCII lowercases text and turns ASCII punctuation into spaces.
// Non-ASCII runes pass through unchanged.
func normalizeASCII(s string) string {
	var b strings.Builder
	b.Grow(len(s))
	for _, r := range strings.ToLower(s) {
		if r < utf8.RuneSelf && !unicode.IsLetter(r) && !unicode.IsDigit(r) {
			b.WriteByte(' ')
			continue
		}
		b.WriteRune(r)
	}
	return collapseSpaces(b.String())
}

// containsTerm matches Japanese terms as substrings and ASCII terms at word starts,
// so "pm" does not fire inside "development" while "requirement" still matches
// "requirements".
func containsTerm(text, term string) bool {
	term = strings.TrimSpace(term)
	if term == "" {
		return false
	}
	if containsJapanese(term) {
		return strings.Contains(text, term)
	}
	return strings.Contains(" "+normalizeASCII(text), " "+normalizeASCII(term))
}

func containsAnyTerm(text string, terms []string) bool {
	for _, t := range terms {
		if containsTerm(text, t) {
			return true
		}
	}
	return false
}

func splitNonEmpty(s, sep string) []string {
	raw := strings.Split(s, sep)
	out := make([]string, 0, len(raw))
	for _, p := range raw {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return out
}

func collapseSpaces(s string) string {
	return strings.Join(strings.Fields(s), " ")
}

func appendUnique(list []string, s string) []string {
	for _, existing := range list {
		if existing == s {
			return list
		}
	}
	return append(list, s)
}
