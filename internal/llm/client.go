package llm

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/tidwall/gjson"

	"github.com/nugget/lumen/internal/httpkit"
)

// Client sends chat completion requests to any OpenAI-compatible
// endpoint. Provider differences live in the request body built by
// [BuildBody]; the transport is the same for all of them.
type Client struct {
	httpClient *http.Client
	logger     *slog.Logger
}

// NewClient creates a client. Streaming responses can run for minutes,
// so the client has no overall timeout; callers bound requests with ctx.
func NewClient(logger *slog.Logger) *Client {
	if logger == nil {
		logger = slog.Default()
	}
	return &Client{
		logger: logger.With("component", "llm"),
		httpClient: httpkit.NewClient(
			httpkit.WithStreaming(),
			httpkit.WithRetry(2, 500*time.Millisecond),
			httpkit.WithLogger(logger),
		),
	}
}

// Stream posts body to url and returns the response body for line
// decoding. The caller must close it. Non-2xx responses are returned as
// *HTTPError carrying the server's text.
func (c *Client) Stream(ctx context.Context, url, apiKey string, body map[string]any) (io.ReadCloser, error) {
	body["stream"] = true
	resp, err := c.post(ctx, url, apiKey, body, "text/event-stream")
	if err != nil {
		return nil, err
	}
	return resp.Body, nil
}

// Complete performs a non-streaming request and returns the first
// choice's message content. Used for side requests such as titles.
func (c *Client) Complete(ctx context.Context, url, apiKey string, body map[string]any) (string, error) {
	body["stream"] = false
	resp, err := c.post(ctx, url, apiKey, body, "application/json")
	if err != nil {
		return "", err
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(io.LimitReader(resp.Body, 4<<20))
	if err != nil {
		return "", fmt.Errorf("read response: %w", err)
	}
	c.logger.Log(ctx, LevelTrace, "response payload", "json", string(data))

	content := gjson.GetBytes(data, "choices.0.message.content")
	if !content.Exists() {
		return "", fmt.Errorf("response has no message content")
	}
	return content.String(), nil
}

func (c *Client) post(ctx context.Context, url, apiKey string, body map[string]any, accept string) (*http.Response, error) {
	jsonData, err := json.Marshal(body)
	if err != nil {
		return nil, fmt.Errorf("marshal request: %w", err)
	}
	c.logger.Log(ctx, LevelTrace, "request payload", "url", url, "json", string(jsonData))

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(jsonData))
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", accept)
	if apiKey != "" {
		req.Header.Set("Authorization", "Bearer "+apiKey)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("send request: %w", err)
	}
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		errBody := httpkit.ReadErrorBody(resp.Body, 4096)
		return nil, &HTTPError{StatusCode: resp.StatusCode, Body: strings.TrimSpace(errBody)}
	}
	return resp, nil
}

// ScanLines calls fn for every line of r until fn returns false, the
// input ends, or ctx is cancelled. Cancellation is not an error.
func ScanLines(ctx context.Context, r io.Reader, fn func(line string) bool) error {
	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)
	for scanner.Scan() {
		if ctx.Err() != nil {
			return nil
		}
		if !fn(scanner.Text()) {
			return nil
		}
	}
	if err := scanner.Err(); err != nil && ctx.Err() == nil {
		return fmt.Errorf("read stream: %w", err)
	}
	return nil
}
