package tools

import (
	"context"
	"fmt"
	"strings"

	"github.com/nugget/lumen/internal/knowledge"
	"github.com/nugget/lumen/internal/search"
)

// SetKnowledgeBag backs search_knowledge_bag. Hits below minScore are
// dropped and at most topK are returned.
func (r *Registry) SetKnowledgeBag(bag *knowledge.Bag, topK int, minScore float64) {
	r.knowledge = bag
	if topK > 0 {
		r.kbTopK = topK
	}
	r.kbMin = minScore
}

func (r *Registry) registerKnowledgeTools() {
	r.Register(&Tool{
		Name:        "search_knowledge_bag",
		Description: "Search the user's own documents and notes. Prefer this over web search for personal material.",
		Parameters: schema(map[string]any{
			"query": prop("string", "What to look for"),
		}, "query"),
		Status:  [2]string{"Searching Knowledge", "正在检索知识库"},
		Handler: r.handleSearchKnowledge,
	})
}

func (r *Registry) handleSearchKnowledge(ctx context.Context, args Args, env *Env) (Result, error) {
	if r.knowledge == nil {
		return Result{}, unavailable("search_knowledge_bag", "knowledge")
	}
	hits, err := r.knowledge.Search(ctx, args.String("query"), r.kbTopK, r.kbMin)
	if err != nil {
		return Result{}, fmt.Errorf("knowledge search: %w", err)
	}
	if len(hits) == 0 {
		return Text(env.Lang.Pick("Nothing relevant in the knowledge bag.", "知识库中没有相关内容。")), nil
	}
	env.Payloads.Knowledge = append(env.Payloads.Knowledge, hits...)
	return Result{
		Text:  FormatKnowledge(hits, MaxInjectedChars),
		Front: env.Lang.Pick(fmt.Sprintf("Found %d documents", len(hits)), fmt.Sprintf("找到 %d 份文档", len(hits))),
	}, nil
}

// FormatKnowledge renders knowledge hits for the model.
func FormatKnowledge(hits []knowledge.Hit, maxChars int) string {
	var sb strings.Builder
	for i, h := range hits {
		if i > 0 {
			sb.WriteString("\n\n")
		}
		fmt.Fprintf(&sb, "[%d] %s (score %.2f)\n%s", i+1, h.Title, h.Score, h.Text)
	}
	return search.Truncate(sb.String(), maxChars)
}
