package memory

import (
	"context"
	"sort"
	"strings"

	"github.com/sahilm/fuzzy"

	"github.com/nugget/lumen/internal/lexical"
)

// Scored is a memory with its retrieval score in [0,1].
type Scored struct {
	*Memory
	Score float64 `json:"score"`
}

const (
	// minEditSimilarity is how close a misspelled term must be to count.
	minEditSimilarity = 0.75
	// minEditLength keeps short words from matching by edit distance.
	minEditLength = 4
	// fuzzyWeight is the share of the score from subsequence matching.
	fuzzyWeight = 0.1
	// DefaultMinScore drops weak matches.
	DefaultMinScore = 0.2
)

// Retrieve returns up to limit memories relevant to query, best first.
// An empty query returns the most recent memories.
func (s *Store) Retrieve(ctx context.Context, query string, limit int) ([]Scored, error) {
	if limit <= 0 {
		limit = 5
	}
	all, err := s.All(ctx)
	if err != nil {
		return nil, err
	}

	if strings.TrimSpace(query) == "" {
		out := make([]Scored, 0, min(limit, len(all)))
		for _, m := range all[:min(limit, len(all))] {
			out = append(out, Scored{Memory: m, Score: 1})
		}
		return out, nil
	}

	contents := make([]string, len(all))
	for i, m := range all {
		contents[i] = m.Content
	}
	fuzzyHit := make(map[int]bool)
	pattern := strings.Join(strings.Fields(strings.ToLower(query)), "")
	for _, match := range fuzzy.Find(pattern, lowerAll(contents)) {
		fuzzyHit[match.Index] = true
	}

	qset := s.synonyms.Set(query)
	var out []Scored
	for i, m := range all {
		score := (1 - fuzzyWeight) * termCoverage(qset, s.synonyms.Set(m.Content))
		if fuzzyHit[i] {
			score += fuzzyWeight
		}
		if score >= DefaultMinScore {
			out = append(out, Scored{Memory: m, Score: score})
		}
	}

	// All is ordered by recency, so a stable sort keeps newer memories
	// ahead on ties.
	sort.SliceStable(out, func(i, j int) bool { return out[i].Score > out[j].Score })
	if len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

// termCoverage is the share of query terms found in the memory. Exact
// and synonym matches count 1; near misses by edit distance count
// their similarity.
func termCoverage(query, doc map[string]struct{}) float64 {
	if len(query) == 0 {
		return 0
	}
	var total float64
	for q := range query {
		if _, ok := doc[q]; ok {
			total++
			continue
		}
		if len([]rune(q)) < minEditLength {
			continue
		}
		best := 0.0
		for d := range doc {
			if sim := lexical.EditSimilarity(q, d); sim > best {
				best = sim
			}
		}
		if best >= minEditSimilarity {
			total += best
		}
	}
	return total / float64(len(query))
}

func lowerAll(in []string) []string {
	out := make([]string, len(in))
	for i, s := range in {
		out[i] = strings.ToLower(s)
	}
	return out
}

// Best returns the memory most similar to text, for locating a memory
// the model refers to by its wording.
func (s *Store) Best(ctx context.Context, text string) (*Scored, error) {
	found, err := s.Retrieve(ctx, text, 1)
	if err != nil || len(found) == 0 {
		return nil, err
	}
	return &found[0], nil
}
