package fetch

import (
	"context"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"testing"
)

func TestExtractHTML(t *testing.T) {
	raw := `<!DOCTYPE html>
<html>
<head><title>Test Page</title><link rel="shortcut icon" href="/static/icon.png"></head>
<body>
<nav>Navigation stuff</nav>
<script>var x = 1;</script>
<style>.foo { color: red; }</style>
<main>
<h1>Hello World</h1>
<p>This is a test paragraph with <strong>bold text</strong>.</p>
<ul><li>one</li><li>two</li></ul>
</main>
<footer>Footer stuff</footer>
</body>
</html>`

	p := extractHTML(raw)

	if p.title != "Test Page" {
		t.Errorf("title = %q, want 'Test Page'", p.title)
	}
	if p.icon != "/static/icon.png" {
		t.Errorf("icon = %q", p.icon)
	}
	for _, want := range []string{"# Hello World", "bold text", "- one", "- two"} {
		if !strings.Contains(p.text, want) {
			t.Errorf("text missing %q: %q", want, p.text)
		}
	}
	for _, unwanted := range []string{"var x = 1", "Navigation stuff", "Footer stuff", "Test Page"} {
		if strings.Contains(p.text, unwanted) {
			t.Errorf("text should not contain %q: %q", unwanted, p.text)
		}
	}
}

func TestFetch(t *testing.T) {
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if ua := r.Header.Get("User-Agent"); !strings.HasPrefix(ua, "Lumen/") {
			t.Errorf("expected Lumen User-Agent, got %q", ua)
		}
		w.Header().Set("Content-Type", "text/html; charset=utf-8")
		w.Write([]byte(`<html><head><title>Test</title></head><body><p>Hello from test server</p></body></html>`))
	}))
	defer ts.Close()

	result, err := New(nil).Fetch(context.Background(), ts.URL, 0)
	if err != nil {
		t.Fatalf("Fetch failed: %v", err)
	}
	if result.Title != "Test" || result.Format != "html" {
		t.Errorf("result = %+v", result)
	}
	if !strings.Contains(result.Content, "Hello from test server") {
		t.Errorf("content = %q", result.Content)
	}
	if result.Icon != ts.URL+"/favicon.ico" {
		t.Errorf("icon = %q", result.Icon)
	}
}

func TestFetchTruncation(t *testing.T) {
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/plain")
		w.Write([]byte(strings.Repeat("x", 1000)))
	}))
	defer ts.Close()

	result, err := New(nil).Fetch(context.Background(), ts.URL, 100)
	if err != nil {
		t.Fatalf("Fetch failed: %v", err)
	}
	if !result.Truncated || result.Length != 100 {
		t.Errorf("truncated=%v length=%d", result.Truncated, result.Length)
	}
}

func TestFetchHTTPError(t *testing.T) {
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "gone", http.StatusNotFound)
	}))
	defer ts.Close()

	if _, err := New(nil).Fetch(context.Background(), ts.URL, 0); err == nil || !strings.Contains(err.Error(), "404") {
		t.Errorf("err = %v", err)
	}
}

func TestFetchEmptyURL(t *testing.T) {
	if _, err := New(nil).Fetch(context.Background(), "  ", 0); err == nil {
		t.Error("expected error for empty URL")
	}
}

func TestExtractFormats(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("/data.json", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"a":1,"b":[1,2]}`))
	})
	mux.HandleFunc("/table.csv", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/octet-stream")
		w.Write([]byte("name,score\nann,9\nbob,7,extra\n"))
	})
	mux.HandleFunc("/notes.md", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/markdown")
		w.Write([]byte("# Notes\n\n- item"))
	})
	mux.HandleFunc("/blob", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/octet-stream")
		w.Write([]byte{0xff, 0xfe, 0x00, 0x81})
	})
	ts := httptest.NewServer(mux)
	defer ts.Close()

	f := New(nil)
	ctx := context.Background()

	res, err := f.Extract(ctx, ts.URL+"/data.json", 0)
	if err != nil {
		t.Fatalf("json: %v", err)
	}
	if res.Format != "json" || !strings.Contains(res.Content, "\n") {
		t.Errorf("json result = %+v", res)
	}

	res, err = f.Extract(ctx, ts.URL+"/table.csv", 0)
	if err != nil {
		t.Fatalf("csv: %v", err)
	}
	if res.Format != "csv" || res.Content != "name | score\nann | 9\nbob | 7 | extra" {
		t.Errorf("csv content = %q", res.Content)
	}

	res, err = f.Extract(ctx, ts.URL+"/notes.md", 0)
	if err != nil {
		t.Fatalf("md: %v", err)
	}
	if res.Format != "markdown" || res.Content != "# Notes\n\n- item" {
		t.Errorf("markdown result = %+v", res)
	}

	res, err = f.Extract(ctx, ts.URL+"/blob", 0)
	if err != nil {
		t.Fatalf("blob: %v", err)
	}
	if res.Format != "binary" || !strings.HasPrefix(res.Content, "Binary content") {
		t.Errorf("binary result = %+v", res)
	}
}

func TestResolveIcon(t *testing.T) {
	base, _ := url.Parse("https://example.com/a/b.html")
	tests := []struct {
		href, want string
	}{
		{"", "https://example.com/favicon.ico"},
		{"/i.png", "https://example.com/i.png"},
		{"img/i.png", "https://example.com/a/img/i.png"},
		{"https://cdn.example.net/i.png", "https://cdn.example.net/i.png"},
	}
	for _, tt := range tests {
		if got := resolveIcon(base, tt.href); got != tt.want {
			t.Errorf("resolveIcon(%q) = %q, want %q", tt.href, got, tt.want)
		}
	}
}

func TestCleanWhitespace(t *testing.T) {
	got := cleanWhitespace("  Hello   world  \n\n\n\n  Second line  \n\n\n Third  ")
	if got != "Hello world\n\nSecond line\n\nThird" {
		t.Errorf("cleanWhitespace = %q", got)
	}
}

func TestTruncateUTF8(t *testing.T) {
	if got := truncateUTF8("Héllo wörld café", 5); got != "Héllo" {
		t.Errorf("truncateUTF8 = %q", got)
	}
}

func TestExtractHTML_PrefersArticle(t *testing.T) {
	raw := `<html><head>
<meta property="og:title" content="Story">
<link rel="apple-touch-icon" href="/touch.png">
</head><body>
<div>Sidebar promo</div>
<article><h2>Headline</h2><p>Body text.</p></article>
</body></html>`

	p := extractHTML(raw)
	if p.title != "Story" {
		t.Errorf("title = %q, want og:title fallback", p.title)
	}
	if p.icon != "/touch.png" {
		t.Errorf("icon = %q, want touch icon fallback", p.icon)
	}
	if !strings.Contains(p.text, "## Headline") || !strings.Contains(p.text, "Body text.") {
		t.Errorf("text = %q", p.text)
	}
	if strings.Contains(p.text, "Sidebar promo") {
		t.Errorf("text outside the article leaked: %q", p.text)
	}
}
