package tools

import (
	"context"
	"fmt"

	"github.com/nugget/lumen/internal/search"
)

// MaxInjectedChars caps search results and knowledge text fed back to
// the model.
const MaxInjectedChars = 5000

// MaxDocumentChars caps web pages and documents fed back to the model.
const MaxDocumentChars = 6000

// SetSearch backs search_online. With bilingual set, queries also run
// in the user's other language and results are interleaved.
func (r *Registry) SetSearch(m *search.Manager, bilingual bool) {
	r.search = m
	r.bilingual = bilingual
}

// SetArxiv backs search_arxiv_papers.
func (r *Registry) SetArxiv(a *search.Arxiv) {
	r.arxiv = a
}

func (r *Registry) registerSearchTools() {
	r.Register(&Tool{
		Name: "search_online",
		Description: "Search the web for current information. Use for news, facts you are unsure of, " +
			"or anything after your training data.",
		Parameters: schema(map[string]any{
			"query": prop("string", "The search query"),
			"count": prop("integer", "Number of results (default 5)"),
		}, "query"),
		Status:  [2]string{"Searching Online", "正在联网搜索"},
		Handler: r.handleSearchOnline,
	})

	r.Register(&Tool{
		Name:        "search_arxiv_papers",
		Description: "Search arXiv for academic papers and return titles, authors and abstracts.",
		Parameters: schema(map[string]any{
			"query":       prop("string", "Keywords, in English"),
			"max_results": prop("integer", "Maximum number of papers (default 5)"),
		}, "query"),
		Status:  [2]string{"Searching Papers", "正在检索论文"},
		Handler: r.handleSearchArxiv,
	})
}

func (r *Registry) handleSearchOnline(ctx context.Context, args Args, env *Env) (Result, error) {
	if r.search == nil || !r.search.Configured() {
		return Result{}, unavailable("search_online", "search")
	}
	query := args.String("query")
	opts := search.Options{Count: args.Int("count", 5), Language: env.Lang.Code()}

	var (
		results []search.Result
		err     error
	)
	if r.bilingual {
		results, err = r.search.SearchBilingual(ctx, query, []string{env.Lang.Code(), env.Lang.Other().Code()}, opts)
	} else {
		results, err = r.search.Search(ctx, query, opts)
	}
	if err != nil {
		return Result{}, fmt.Errorf("search: %w", err)
	}

	env.Payloads.Engine = r.search.Primary()
	if len(results) == 0 {
		return Text(env.Lang.Pick("No results found for: ", "没有找到结果：") + query), nil
	}
	for _, res := range results {
		env.Payloads.Resources = append(env.Payloads.Resources, Resource{Title: res.Title, Link: res.URL})
	}
	return Result{
		Text:  search.FormatResults(results, MaxInjectedChars),
		Front: env.Lang.Pick(fmt.Sprintf("Found %d results", len(results)), fmt.Sprintf("找到 %d 条结果", len(results))),
	}, nil
}

func (r *Registry) handleSearchArxiv(ctx context.Context, args Args, env *Env) (Result, error) {
	if r.arxiv == nil {
		return Result{}, unavailable("search_arxiv_papers", "search")
	}
	papers, err := r.arxiv.Search(ctx, args.String("query"), args.Int("max_results", 5))
	if err != nil {
		return Result{}, fmt.Errorf("arxiv: %w", err)
	}
	if len(papers) == 0 {
		return Text(env.Lang.Pick("No papers found.", "没有找到相关论文。")), nil
	}
	for _, p := range papers {
		env.Payloads.Resources = append(env.Payloads.Resources, Resource{Title: p.Title, Link: p.URL})
	}
	return Result{
		Text:  search.FormatPapers(papers, MaxInjectedChars),
		Front: env.Lang.Pick(fmt.Sprintf("Found %d papers", len(papers)), fmt.Sprintf("找到 %d 篇论文", len(papers))),
	}, nil
}
