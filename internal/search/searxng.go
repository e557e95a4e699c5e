package search

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/nugget/lumen/internal/httpkit"
)

// SearXNG searches a self-hosted SearXNG instance through its JSON
// format, which must be enabled in the instance settings.
type SearXNG struct {
	baseURL string
	client  *http.Client
}

// NewSearXNG creates a provider for the instance rooted at baseURL
// (e.g. "http://localhost:8888").
func NewSearXNG(baseURL string) *SearXNG {
	return &SearXNG{
		baseURL: strings.TrimRight(baseURL, "/"),
		client:  httpkit.NewClient(httpkit.WithTimeout(15 * time.Second)),
	}
}

func (s *SearXNG) Name() string { return "searxng" }

// searxngLang maps our language codes to SearXNG locales.
func searxngLang(code string) string {
	switch code {
	case "zh":
		return "zh-CN"
	case "en":
		return "en-US"
	}
	return code
}

// SearXNG has no count parameter; the page is trimmed locally.
func (s *SearXNG) Search(ctx context.Context, query string, opts Options) ([]Result, error) {
	params := url.Values{
		"q":          {query},
		"format":     {"json"},
		"safesearch": {"1"},
	}
	if opts.Language != "" {
		params.Set("language", searxngLang(opts.Language))
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, s.baseURL+"/search?"+params.Encode(), nil)
	if err != nil {
		return nil, fmt.Errorf("searxng: build request: %w", err)
	}

	doc, err := fetchJSON(s.client, "searxng", req)
	if err != nil {
		return nil, err
	}
	return collect(doc.Get("results"), "searxng", resultCount(opts), "content"), nil
}
