package tools

import (
	"bytes"
	"context"
	"fmt"
	"html"
	"strings"

	"github.com/yuin/goldmark"
	"github.com/yuin/goldmark/extension"
	gmhtml "github.com/yuin/goldmark/renderer/html"

	"github.com/nugget/lumen/internal/fetch"
)

// SetFetcher backs read_web_page and extract_remote_file_content.
func (r *Registry) SetFetcher(f *fetch.Fetcher) {
	r.fetcher = f
}

var markdown = goldmark.New(
	goldmark.WithExtensions(extension.GFM),
	goldmark.WithRendererOptions(gmhtml.WithHardWraps()),
)

func (r *Registry) registerWebTools() {
	r.Register(&Tool{
		Name:        "read_web_page",
		Description: "Read the text of a web page. Use when the user shares a link or a search result needs a closer look.",
		Parameters: schema(map[string]any{
			"url": prop("string", "The page URL (http or https)"),
		}, "url"),
		Status:  [2]string{"Reading Web Page", "正在阅读网页"},
		Handler: r.handleReadWebPage,
	})

	r.Register(&Tool{
		Name:        "extract_remote_file_content",
		Description: "Download a remote file (text, markdown, HTML, JSON or CSV) and return its content.",
		Parameters: schema(map[string]any{
			"url": prop("string", "The file URL"),
		}, "url"),
		Status:  [2]string{"Reading File", "正在读取文件"},
		Handler: r.handleExtractFile,
	})

	r.Register(&Tool{
		Name: "create_web_view",
		Description: "Show the user a formatted page. Provide markdown (tables, lists and code are supported) " +
			"or a complete HTML document.",
		Parameters: schema(map[string]any{
			"title":   prop("string", "Page title"),
			"content": prop("string", "Markdown or HTML content"),
		}, "content"),
		Status:  [2]string{"Creating Page", "正在生成页面"},
		Handler: r.handleCreateWebView,
	})
}

func (r *Registry) handleReadWebPage(ctx context.Context, args Args, env *Env) (Result, error) {
	if r.fetcher == nil {
		return Result{}, unavailable("read_web_page", "search")
	}
	res, err := r.fetcher.Fetch(ctx, args.String("url"), MaxDocumentChars)
	if err != nil {
		return Result{}, err
	}
	return r.fetched(res, env), nil
}

func (r *Registry) handleExtractFile(ctx context.Context, args Args, env *Env) (Result, error) {
	if r.fetcher == nil {
		return Result{}, unavailable("extract_remote_file_content", "search")
	}
	res, err := r.fetcher.Extract(ctx, args.String("url"), MaxDocumentChars)
	if err != nil {
		return Result{}, err
	}
	return r.fetched(res, env), nil
}

func (r *Registry) fetched(res *fetch.Result, env *Env) Result {
	title := res.Title
	if title == "" {
		title = res.URL
	}
	env.Payloads.Resources = append(env.Payloads.Resources, Resource{Icon: res.Icon, Title: title, Link: res.URL})

	var sb strings.Builder
	fmt.Fprintf(&sb, "Title: %s\nURL: %s\nFormat: %s\n\n%s", title, res.URL, res.Format, res.Content)
	if res.Truncated {
		sb.WriteString(env.Lang.Pick("\n\n[Content truncated]", "\n\n[内容已截断]"))
	}
	return Result{Text: sb.String(), Front: env.Lang.Pick("Read ", "已读取 ") + title}
}

func (r *Registry) handleCreateWebView(_ context.Context, args Args, env *Env) (Result, error) {
	title := args.StringOr("title", env.Lang.Pick("Untitled", "未命名"))
	page, err := RenderWebView(title, args.String("content"))
	if err != nil {
		return Result{}, err
	}
	env.Payloads.HTML = append(env.Payloads.HTML, page)
	return Result{
		Text:  env.Lang.Pick("The page has been shown to the user. Do not repeat its content.", "页面已展示给用户，请勿重复其内容。"),
		Front: env.Lang.Pick("Created page: ", "已生成页面：") + title,
	}, nil
}

// RenderWebView returns a standalone HTML document. Content that is
// already an HTML document passes through; anything else is treated as
// markdown.
func RenderWebView(title, content string) (string, error) {
	trimmed := strings.TrimSpace(content)
	lower := strings.ToLower(trimmed)
	if strings.HasPrefix(lower, "<!doctype html") || strings.HasPrefix(lower, "<html") {
		return trimmed, nil
	}

	var body bytes.Buffer
	if err := markdown.Convert([]byte(content), &body); err != nil {
		return "", fmt.Errorf("render markdown: %w", err)
	}
	return fmt.Sprintf(webViewTemplate, html.EscapeString(title), body.String()), nil
}

const webViewTemplate = `<!DOCTYPE html>
<html>
<head>
<meta charset="utf-8">
<meta name="viewport" content="width=device-width, initial-scale=1">
<title>%s</title>
<style>
body { font-family: -apple-system, sans-serif; line-height: 1.5; padding: 1em; max-width: 48em; margin: auto; }
table { border-collapse: collapse; }
th, td { border: 1px solid #ccc; padding: 4px 8px; }
pre { background: #f4f4f4; padding: 8px; overflow-x: auto; }
@media (prefers-color-scheme: dark) { body { background: #111; color: #eee; } pre { background: #222; } }
</style>
</head>
<body>
%s</body>
</html>
`
