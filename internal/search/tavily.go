package search

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/nugget/lumen/internal/httpkit"
)

const tavilyEndpoint = "https://api.tavily.com/search"

// Tavily searches with the Tavily API, which returns LLM-ready
// extracts instead of short snippets.
type Tavily struct {
	apiKey   string
	endpoint string
	client   *http.Client
}

// NewTavily creates a Tavily provider. An empty endpoint uses the
// public API.
func NewTavily(apiKey, endpoint string) *Tavily {
	if endpoint == "" {
		endpoint = tavilyEndpoint
	}
	return &Tavily{
		apiKey:   apiKey,
		endpoint: endpoint,
		client:   httpkit.NewClient(httpkit.WithTimeout(20 * time.Second)),
	}
}

func (t *Tavily) Name() string { return "tavily" }

// Tavily has no language parameter; the query language decides.
func (t *Tavily) Search(ctx context.Context, query string, opts Options) ([]Result, error) {
	count := resultCount(opts)
	payload, err := json.Marshal(map[string]any{
		"query":        query,
		"max_results":  count,
		"search_depth": "basic",
		"topic":        "general",
	})
	if err != nil {
		return nil, fmt.Errorf("tavily: marshal request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, t.endpoint, bytes.NewReader(payload))
	if err != nil {
		return nil, fmt.Errorf("tavily: build request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+t.apiKey)

	doc, err := fetchJSON(t.client, "tavily", req)
	if err != nil {
		return nil, err
	}
	return collect(doc.Get("results"), "tavily", count, "content"), nil
}
