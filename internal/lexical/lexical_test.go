package lexical

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestTokenize(t *testing.T) {
	assert.Equal(t, []string{"hello", "world", "it's", "42"}, Tokenize("Hello, World! It's 42."))
	assert.Equal(t, []string{"天", "气"}, Tokenize("天气"))
	assert.Empty(t, Tokenize("  ... !!"))
}

func TestSynonymFolding(t *testing.T) {
	syn := NewSynonyms([]string{"beta", "γ"})
	set := syn.Set("alpha γ")

	require.Len(t, set, 2)
	assert.Contains(t, set, "alpha")
	assert.Contains(t, set, "beta")
}

func TestSynonymHanPair(t *testing.T) {
	set := DefaultSynonyms().Set("过敏")
	assert.Contains(t, set, "allergy")
	assert.Contains(t, set, "过")
}

func TestJaccard(t *testing.T) {
	a := map[string]struct{}{"alpha": {}, "beta": {}}
	b := map[string]struct{}{"beta": {}, "gamma": {}}

	assert.InDelta(t, 1.0/3.0, Jaccard(a, b), 1e-9)
	assert.Equal(t, 1.0, Jaccard(a, a))
	assert.Equal(t, 0.0, Jaccard(nil, nil))
}

func TestLevenshtein(t *testing.T) {
	tests := []struct {
		a, b string
		want int
	}{
		{"", "", 0},
		{"kitten", "sitting", 3},
		{"flaw", "lawn", 2},
		{"生日", "生日快乐", 2},
		{"abc", "", 3},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, Levenshtein(tt.a, tt.b), "Levenshtein(%q, %q)", tt.a, tt.b)
	}
}

func TestEditSimilarity(t *testing.T) {
	assert.Equal(t, 1.0, EditSimilarity("Coffee", "coffee"))
	assert.InDelta(t, 1-3.0/7.0, EditSimilarity("kitten", "sitting"), 1e-9)
}
