// Package fetch downloads web pages and remote files and reduces them
// to readable text for the model.
package fetch

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"mime"
	"net/http"
	"net/url"
	"path"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/nugget/lumen/internal/httpkit"
)

// DefaultMaxBytes is the maximum response body size (5 MB).
const DefaultMaxBytes int64 = 5 * 1024 * 1024

// DefaultMaxChars is the default character limit for extracted text.
const DefaultMaxChars = 6000

// Result holds the fetched and extracted content from a URL.
type Result struct {
	URL         string `json:"url"`
	Title       string `json:"title,omitempty"`
	Icon        string `json:"icon,omitempty"`
	Content     string `json:"content"`
	ContentType string `json:"content_type,omitempty"`
	// Format is the detected document format: html, text, markdown,
	// json or csv.
	Format     string `json:"format"`
	Truncated  bool   `json:"truncated,omitempty"`
	Length     int    `json:"length"`
	StatusCode int    `json:"status_code"`
}

// Fetcher downloads and extracts readable content.
type Fetcher struct {
	client   *http.Client
	maxBytes int64
	logger   *slog.Logger
}

// New creates a Fetcher with default settings.
func New(logger *slog.Logger) *Fetcher {
	if logger == nil {
		logger = slog.Default()
	}
	return &Fetcher{
		client: httpkit.NewClient(
			httpkit.WithTimeout(30*time.Second),
			httpkit.WithRetry(1, time.Second),
		),
		maxBytes: DefaultMaxBytes,
		logger:   logger.With("component", "fetch"),
	}
}

// Fetch downloads a web page and extracts its readable text. maxChars
// limits the output in runes; 0 uses DefaultMaxChars.
func (f *Fetcher) Fetch(ctx context.Context, rawURL string, maxChars int) (*Result, error) {
	return f.get(ctx, rawURL, maxChars, "text/html,application/xhtml+xml;q=0.9,text/plain;q=0.8,*/*;q=0.7")
}

// Extract downloads a remote document (plain text, markdown, HTML,
// JSON or CSV) and renders it as text. Binary content is reported but
// not returned.
func (f *Fetcher) Extract(ctx context.Context, rawURL string, maxChars int) (*Result, error) {
	return f.get(ctx, rawURL, maxChars, "*/*")
}

func (f *Fetcher) get(ctx context.Context, rawURL string, maxChars int, accept string) (*Result, error) {
	rawURL = strings.TrimSpace(rawURL)
	if rawURL == "" {
		return nil, fmt.Errorf("url is required")
	}
	if !strings.HasPrefix(rawURL, "http://") && !strings.HasPrefix(rawURL, "https://") {
		rawURL = "https://" + rawURL
	}
	if maxChars <= 0 {
		maxChars = DefaultMaxChars
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, rawURL, nil)
	if err != nil {
		return nil, fmt.Errorf("invalid url: %w", err)
	}
	req.Header.Set("Accept", accept)
	req.Header.Set("Accept-Language", "en-US,en;q=0.9,zh-CN;q=0.8")

	resp, err := f.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 400 {
		body := httpkit.ReadErrorBody(resp.Body, 256)
		return nil, fmt.Errorf("HTTP %d: %s", resp.StatusCode, strings.TrimSpace(body))
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, f.maxBytes))
	if err != nil {
		return nil, fmt.Errorf("read response: %w", err)
	}

	contentType := resp.Header.Get("Content-Type")
	res := &Result{
		URL:         rawURL,
		ContentType: contentType,
		StatusCode:  resp.StatusCode,
		Format:      detectFormat(contentType, resp.Request.URL),
	}

	if res.Format != "html" && !utf8.Valid(body) {
		res.Format = "binary"
		res.Content = fmt.Sprintf("Binary content (%s), %d bytes", contentType, len(body))
		res.Length = len(body)
		return res, nil
	}

	switch res.Format {
	case "html":
		p := extractHTML(string(body))
		res.Title = p.title
		res.Icon = resolveIcon(resp.Request.URL, p.icon)
		res.Content = p.text
	case "json":
		res.Content = renderJSON(body)
	case "csv":
		res.Content = renderCSV(body)
	default:
		res.Content = string(body)
	}

	if utf8.RuneCountInString(res.Content) > maxChars {
		res.Content = truncateUTF8(res.Content, maxChars)
		res.Truncated = true
	}
	res.Length = len(res.Content)

	f.logger.Debug("fetched",
		"url", rawURL,
		"format", res.Format,
		"chars", res.Length,
		"truncated", res.Truncated,
	)
	return res, nil
}

// detectFormat picks a renderer from the media type, falling back to
// the URL's file extension for generic types.
func detectFormat(contentType string, u *url.URL) string {
	mt, _, _ := mime.ParseMediaType(contentType)
	switch {
	case mt == "text/html" || mt == "application/xhtml+xml":
		return "html"
	case mt == "application/json" || strings.HasSuffix(mt, "+json"):
		return "json"
	case mt == "text/csv":
		return "csv"
	case mt == "text/markdown":
		return "markdown"
	}

	if u != nil {
		switch strings.ToLower(path.Ext(u.Path)) {
		case ".html", ".htm":
			return "html"
		case ".json":
			return "json"
		case ".csv":
			return "csv"
		case ".md", ".markdown":
			return "markdown"
		}
	}
	return "text"
}

// resolveIcon makes a page's icon href absolute. Pages without one get
// the site's /favicon.ico.
func resolveIcon(base *url.URL, href string) string {
	if base == nil {
		return ""
	}
	if href == "" {
		return base.Scheme + "://" + base.Host + "/favicon.ico"
	}
	ref, err := url.Parse(href)
	if err != nil {
		return ""
	}
	return base.ResolveReference(ref).String()
}

// truncateUTF8 truncates a string to maxChars runes.
func truncateUTF8(s string, maxChars int) string {
	count := 0
	for i := range s {
		if count >= maxChars {
			return s[:i]
		}
		count++
	}
	return s
}
