package search

import (
	"fmt"
	"io"
	"net/http"
	"strings"

	"github.com/tidwall/gjson"

	"github.com/nugget/lumen/internal/httpkit"
)

// maxResponseBytes caps a provider response body.
const maxResponseBytes = 4 << 20

// fetchJSON sends req and returns the parsed body. Errors are prefixed
// with the provider name.
func fetchJSON(client *http.Client, provider string, req *http.Request) (gjson.Result, error) {
	req.Header.Set("Accept", "application/json")
	resp, err := client.Do(req)
	if err != nil {
		return gjson.Result{}, fmt.Errorf("%s: request failed: %w", provider, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return gjson.Result{}, fmt.Errorf("%s: HTTP %d: %s", provider, resp.StatusCode, httpkit.ReadErrorBody(resp.Body, 512))
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseBytes))
	if err != nil {
		return gjson.Result{}, fmt.Errorf("%s: read response: %w", provider, err)
	}
	if !gjson.ValidBytes(body) {
		return gjson.Result{}, fmt.Errorf("%s: response is not JSON", provider)
	}
	return gjson.ParseBytes(body), nil
}

// collect turns a JSON result array into Results, reading the snippet
// from the first non-empty of snippetKeys. Entries without a URL and
// repeated URLs are skipped; at most limit results are kept.
func collect(arr gjson.Result, engine string, limit int, snippetKeys ...string) []Result {
	seen := make(map[string]bool)
	out := make([]Result, 0, limit)
	arr.ForEach(func(_, r gjson.Result) bool {
		u := strings.TrimSpace(r.Get("url").String())
		if u == "" || seen[u] {
			return true
		}
		seen[u] = true
		var snippet string
		for _, k := range snippetKeys {
			if snippet = strings.TrimSpace(r.Get(k).String()); snippet != "" {
				break
			}
		}
		out = append(out, Result{
			Title:   strings.TrimSpace(r.Get("title").String()),
			URL:     u,
			Snippet: snippet,
			Engine:  engine,
		})
		return limit <= 0 || len(out) < limit
	})
	return out
}

// resultCount applies the default of five results.
func resultCount(opts Options) int {
	if opts.Count <= 0 {
		return 5
	}
	return opts.Count
}
