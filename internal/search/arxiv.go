package search

import (
	"context"
	"encoding/xml"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/nugget/lumen/internal/httpkit"
)

const arxivEndpoint = "https://export.arxiv.org/api/query"

// Paper is one arXiv search hit.
type Paper struct {
	Title     string   `json:"title"`
	Summary   string   `json:"summary"`
	Authors   []string `json:"authors"`
	URL       string   `json:"url"`
	PDF       string   `json:"pdf,omitempty"`
	Published string   `json:"published"`
}

// Arxiv queries the arXiv Atom API.
type Arxiv struct {
	endpoint   string
	httpClient *http.Client
}

// NewArxiv creates an arXiv client. An empty endpoint uses the public
// export API.
func NewArxiv(endpoint string) *Arxiv {
	if endpoint == "" {
		endpoint = arxivEndpoint
	}
	return &Arxiv{
		endpoint: endpoint,
		httpClient: httpkit.NewClient(
			httpkit.WithTimeout(20 * time.Second),
		),
	}
}

type atomFeed struct {
	Entries []struct {
		ID        string `xml:"id"`
		Title     string `xml:"title"`
		Summary   string `xml:"summary"`
		Published string `xml:"published"`
		Authors   []struct {
			Name string `xml:"name"`
		} `xml:"author"`
		Links []struct {
			Href  string `xml:"href,attr"`
			Title string `xml:"title,attr"`
			Type  string `xml:"type,attr"`
		} `xml:"link"`
	} `xml:"entry"`
}

// Search returns up to max papers matching query, newest relevance
// first as ordered by arXiv.
func (a *Arxiv) Search(ctx context.Context, query string, max int) ([]Paper, error) {
	if max <= 0 {
		max = 5
	}
	params := url.Values{
		"search_query": {"all:" + query},
		"start":        {"0"},
		"max_results":  {strconv.Itoa(max)},
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, a.endpoint+"?"+params.Encode(), nil)
	if err != nil {
		return nil, fmt.Errorf("arxiv: build request: %w", err)
	}
	req.Header.Set("Accept", "application/atom+xml")

	resp, err := a.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("arxiv: request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body := httpkit.ReadErrorBody(resp.Body, 512)
		return nil, fmt.Errorf("arxiv: HTTP %d: %s", resp.StatusCode, body)
	}

	var feed atomFeed
	if err := xml.NewDecoder(resp.Body).Decode(&feed); err != nil {
		return nil, fmt.Errorf("arxiv: decode feed: %w", err)
	}

	papers := make([]Paper, 0, len(feed.Entries))
	for _, e := range feed.Entries {
		p := Paper{
			Title:     collapse(e.Title),
			Summary:   collapse(e.Summary),
			URL:       strings.TrimSpace(e.ID),
			Published: e.Published,
		}
		for _, au := range e.Authors {
			p.Authors = append(p.Authors, au.Name)
		}
		for _, l := range e.Links {
			if l.Title == "pdf" || l.Type == "application/pdf" {
				p.PDF = l.Href
			}
		}
		papers = append(papers, p)
	}
	return papers, nil
}

// FormatPapers renders papers as a numbered listing capped at maxChars
// runes.
func FormatPapers(papers []Paper, maxChars int) string {
	if len(papers) == 0 {
		return "No papers found."
	}
	var b strings.Builder
	for i, p := range papers {
		if i > 0 {
			b.WriteString("\n\n")
		}
		fmt.Fprintf(&b, "%d. %s\n   %s\n   Authors: %s\n   Published: %s\n   %s",
			i+1, p.Title, p.URL, strings.Join(p.Authors, ", "), p.Published, p.Summary)
	}
	return Truncate(b.String(), maxChars)
}

func collapse(s string) string {
	return strings.Join(strings.Fields(s), " ")
}
