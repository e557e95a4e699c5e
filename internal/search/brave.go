package search

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"github.com/nugget/lumen/internal/httpkit"
)

const braveEndpoint = "https://api.search.brave.com/res/v1/web/search"

// braveMaxCount is the largest count the web endpoint accepts.
const braveMaxCount = 20

// Brave searches with the Brave Search API.
type Brave struct {
	apiKey   string
	endpoint string
	client   *http.Client
}

// NewBrave creates a Brave provider. An empty endpoint uses the public
// API.
func NewBrave(apiKey, endpoint string) *Brave {
	if endpoint == "" {
		endpoint = braveEndpoint
	}
	return &Brave{
		apiKey:   apiKey,
		endpoint: endpoint,
		client:   httpkit.NewClient(httpkit.WithTimeout(15 * time.Second)),
	}
}

func (b *Brave) Name() string { return "brave" }

// braveLang maps our language codes to Brave's search_lang values,
// which spell Chinese by script.
func braveLang(code string) string {
	if code == "zh" {
		return "zh-hans"
	}
	return code
}

func (b *Brave) Search(ctx context.Context, query string, opts Options) ([]Result, error) {
	count := min(resultCount(opts), braveMaxCount)
	params := url.Values{
		"q":                {query},
		"count":            {strconv.Itoa(count)},
		"safesearch":       {"moderate"},
		"text_decorations": {"false"},
	}
	if opts.Language != "" {
		params.Set("search_lang", braveLang(opts.Language))
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, b.endpoint+"?"+params.Encode(), nil)
	if err != nil {
		return nil, fmt.Errorf("brave: build request: %w", err)
	}
	req.Header.Set("X-Subscription-Token", b.apiKey)

	doc, err := fetchJSON(b.client, "brave", req)
	if err != nil {
		return nil, err
	}
	return collect(doc.Get("web.results"), "brave", count, "description", "extra_snippets.0"), nil
}
