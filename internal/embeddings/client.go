// Package embeddings turns text into vectors for the knowledge bag,
// using an Ollama embedding endpoint.
package embeddings

import (
	"bytes"
	"context"
	"encoding/binary"
	"encoding/json"
	"fmt"
	"log/slog"
	"math"
	"net/http"
	"strings"
	"time"

	"github.com/coocood/freecache"
	"github.com/tidwall/gjson"

	"github.com/nugget/lumen/internal/httpkit"
)

const (
	defaultBaseURL = "http://localhost:11434"
	defaultModel   = "nomic-embed-text"

	// maxBatch bounds the inputs sent in one /api/embed call.
	maxBatch = 32

	// Single-text embeddings are memoized; retrieval often repeats a
	// query within a conversation.
	memoBytes = 1 << 20
	memoTTL   = 10 * 60
)

// Embedder produces an embedding for a piece of text.
type Embedder interface {
	Embed(ctx context.Context, text string) ([]float32, error)
}

// Config for [New]. Empty fields take the Ollama defaults.
type Config struct {
	BaseURL string
	Model   string
	Logger  *slog.Logger
}

// Client calls Ollama's /api/embed.
type Client struct {
	endpoint string
	model    string
	http     *http.Client
	memo     *freecache.Cache
	logger   *slog.Logger
}

// New creates a client.
func New(cfg Config) *Client {
	base := strings.TrimRight(cfg.BaseURL, "/")
	if base == "" {
		base = defaultBaseURL
	}
	model := cfg.Model
	if model == "" {
		model = defaultModel
	}
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return &Client{
		endpoint: base + "/api/embed",
		model:    model,
		memo:     freecache.NewCache(memoBytes),
		logger:   logger.With("component", "embeddings", "model", model),
		http: httpkit.NewClient(
			httpkit.WithTimeout(30*time.Second),
			httpkit.WithRetry(2, time.Second),
			httpkit.WithLogger(logger),
		),
	}
}

// Embed returns the embedding for text.
func (c *Client) Embed(ctx context.Context, text string) ([]float32, error) {
	key := []byte(text)
	if b, err := c.memo.Get(key); err == nil {
		return unpack(b), nil
	}
	vecs, err := c.call(ctx, []string{text})
	if err != nil {
		return nil, err
	}
	_ = c.memo.Set(key, pack(vecs[0]), memoTTL)
	return vecs[0], nil
}

// EmbedBatch returns one embedding per input, in order. Large inputs
// are split across several calls.
func (c *Client) EmbedBatch(ctx context.Context, texts []string) ([][]float32, error) {
	out := make([][]float32, 0, len(texts))
	for start := 0; start < len(texts); start += maxBatch {
		part := texts[start:min(start+maxBatch, len(texts))]
		vecs, err := c.call(ctx, part)
		if err != nil {
			return nil, fmt.Errorf("batch at %d: %w", start, err)
		}
		out = append(out, vecs...)
	}
	return out, nil
}

func (c *Client) call(ctx context.Context, texts []string) ([][]float32, error) {
	payload, err := json.Marshal(map[string]any{"model": c.model, "input": texts})
	if err != nil {
		return nil, fmt.Errorf("marshal request: %w", err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.endpoint, bytes.NewReader(payload))
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	began := time.Now()
	resp, err := c.http.Do(req)
	if err != nil {
		return nil, fmt.Errorf("embed request: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("embedding server returned status %d: %s",
			resp.StatusCode, httpkit.ReadErrorBody(resp.Body, 512))
	}

	var body struct {
		Embeddings [][]float32 `json:"embeddings"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		return nil, fmt.Errorf("decode response: %w", err)
	}
	if got := len(body.Embeddings); got != len(texts) {
		return nil, fmt.Errorf("expected %d embeddings, got %d", len(texts), got)
	}

	c.logger.Debug("embedded", "inputs", len(texts), "elapsed", time.Since(began).Round(time.Millisecond))
	return body.Embeddings, nil
}

func pack(v []float32) []byte {
	b := make([]byte, 4*len(v))
	for i, f := range v {
		binary.LittleEndian.PutUint32(b[4*i:], math.Float32bits(f))
	}
	return b
}

func unpack(b []byte) []float32 {
	v := make([]float32, len(b)/4)
	for i := range v {
		v[i] = math.Float32frombits(binary.LittleEndian.Uint32(b[4*i:]))
	}
	return v
}

// Encode renders a vector as a JSON array for a TEXT column.
func Encode(v []float32) string {
	b, _ := json.Marshal(v)
	return string(b)
}

// Decode parses a vector written by [Encode]. Anything else is nil.
func Decode(s string) []float32 {
	r := gjson.Parse(s)
	if !r.IsArray() {
		return nil
	}
	arr := r.Array()
	if len(arr) == 0 {
		return nil
	}
	v := make([]float32, len(arr))
	for i, x := range arr {
		v[i] = float32(x.Float())
	}
	return v
}

// CosineSimilarity of a and b, accumulated in float64. Vectors of
// different lengths, or with a zero norm, score 0.
func CosineSimilarity(a, b []float32) float32 {
	if len(a) != len(b) {
		return 0
	}
	var dot, aa, bb float64
	for i, x := range a {
		y := float64(b[i])
		dot += float64(x) * y
		aa += float64(x) * float64(x)
		bb += y * y
	}
	if aa == 0 || bb == 0 {
		return 0
	}
	return float32(dot / math.Sqrt(aa*bb))
}
