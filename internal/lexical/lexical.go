// Package lexical implements the text-similarity primitives shared by
// memory retrieval and knowledge search: Unicode word segmentation,
// synonym folding, Jaccard overlap and Levenshtein distance.
package lexical

import (
	"strings"
	"unicode"

	"github.com/clipperhouse/uax29/v2/words"
)

// Tokenize splits s into lower-cased words following UAX #29. Tokens
// without a letter or digit (punctuation, spaces) are dropped. Han
// ideographs come out one per token.
func Tokenize(s string) []string {
	var out []string
	tokens := words.FromString(s)
	for tokens.Next() {
		tok := tokens.Value()
		if !hasWordRune(tok) {
			continue
		}
		out = append(out, strings.ToLower(tok))
	}
	return out
}

func hasWordRune(s string) bool {
	for _, r := range s {
		if unicode.IsLetter(r) || unicode.IsDigit(r) {
			return true
		}
	}
	return false
}

// Synonyms maps a term to its canonical form.
type Synonyms map[string]string

// NewSynonyms builds a table from groups of equivalent terms. The first
// term of each group is canonical.
func NewSynonyms(groups ...[]string) Synonyms {
	s := make(Synonyms)
	for _, g := range groups {
		if len(g) == 0 {
			continue
		}
		canon := strings.ToLower(g[0])
		for _, term := range g {
			s[strings.ToLower(term)] = canon
		}
	}
	return s
}

// Canonical returns the canonical form of term, or term itself.
func (s Synonyms) Canonical(term string) string {
	if c, ok := s[term]; ok {
		return c
	}
	return term
}

// Set tokenizes s and folds synonyms, returning the distinct terms.
// Adjacent token pairs that form a known term are added as well, so
// multi-character Han entries match even though segmentation splits
// them into single ideographs.
func (s Synonyms) Set(text string) map[string]struct{} {
	set := make(map[string]struct{})
	toks := Tokenize(text)
	for i, tok := range toks {
		set[s.Canonical(tok)] = struct{}{}
		if i > 0 {
			if c, ok := s[toks[i-1]+tok]; ok {
				set[c] = struct{}{}
			}
		}
	}
	return set
}

// DefaultSynonyms is a small bilingual table covering the vocabulary
// users most often mix when asking about saved memories.
func DefaultSynonyms() Synonyms {
	return NewSynonyms(
		[]string{"birthday", "生日", "bday"},
		[]string{"home", "家", "house"},
		[]string{"work", "工作", "job", "office"},
		[]string{"phone", "电话", "mobile", "cell"},
		[]string{"email", "邮箱", "mail"},
		[]string{"address", "地址"},
		[]string{"favorite", "favourite", "喜欢", "like", "likes"},
		[]string{"allergy", "allergic", "过敏"},
		[]string{"wife", "妻子", "spouse", "husband", "丈夫"},
		[]string{"kid", "孩子", "child", "children", "son", "daughter"},
	)
}

// Jaccard returns |a∩b| / |a∪b|, or 0 when both sets are empty.
func Jaccard(a, b map[string]struct{}) float64 {
	if len(a) == 0 && len(b) == 0 {
		return 0
	}
	inter := 0
	for k := range a {
		if _, ok := b[k]; ok {
			inter++
		}
	}
	union := len(a) + len(b) - inter
	return float64(inter) / float64(union)
}

// Levenshtein returns the edit distance between a and b in runes.
func Levenshtein(a, b string) int {
	ra, rb := []rune(a), []rune(b)
	if len(ra) == 0 {
		return len(rb)
	}
	if len(rb) == 0 {
		return len(ra)
	}

	prev := make([]int, len(rb)+1)
	curr := make([]int, len(rb)+1)
	for j := range prev {
		prev[j] = j
	}
	for i := 1; i <= len(ra); i++ {
		curr[0] = i
		for j := 1; j <= len(rb); j++ {
			cost := 1
			if ra[i-1] == rb[j-1] {
				cost = 0
			}
			curr[j] = min(prev[j]+1, curr[j-1]+1, prev[j-1]+cost)
		}
		prev, curr = curr, prev
	}
	return prev[len(rb)]
}

// EditSimilarity normalizes Levenshtein distance into [0,1], where 1
// means identical.
func EditSimilarity(a, b string) float64 {
	a, b = strings.ToLower(a), strings.ToLower(b)
	n := max(len([]rune(a)), len([]rune(b)))
	if n == 0 {
		return 1
	}
	return 1 - float64(Levenshtein(a, b))/float64(n)
}
