// Package agent drives a conversation: it assembles the prompt, streams
// the model's reply as events, runs requested tools, and recurses until
// the model produces a final answer or the tool budget runs out.
package agent

import (
	"context"
	"io"
	"log/slog"
	"sync"
	"time"

	"github.com/nugget/lumen/internal/canvas"
	"github.com/nugget/lumen/internal/events"
	"github.com/nugget/lumen/internal/fetch"
	"github.com/nugget/lumen/internal/knowledge"
	"github.com/nugget/lumen/internal/llm"
	"github.com/nugget/lumen/internal/memory"
	"github.com/nugget/lumen/internal/search"
	"github.com/nugget/lumen/internal/tools"
)

// DefaultMaxDepth bounds the number of tool rounds in one request.
const DefaultMaxDepth = 8

// DefaultToolDelay is the pause between running tools and the next turn.
const DefaultToolDelay = 300 * time.Millisecond

// Streamer talks to an OpenAI-compatible chat endpoint.
// [llm.Client] is the production implementation.
type Streamer interface {
	Stream(ctx context.Context, url, apiKey string, body map[string]any) (io.ReadCloser, error)
	Complete(ctx context.Context, url, apiKey string, body map[string]any) (string, error)
}

// Credentials resolves provider endpoints and keys.
// [config.Config] satisfies it.
type Credentials interface {
	APIKey(company string) string
	RequestURL(company string) string
}

// Config holds the driver's tunables.
type Config struct {
	DefaultModel  string
	Locale        string
	MaxToolDepth  int
	ToolDelay     time.Duration
	Temperature   float64
	TopP          float64
	MaxTokens     int
	ShowReasoning bool
	Reasoning     bool
	SystemPrompt  string
	UserProfile   string

	// ToolsEnabled turns tool use on for models that support it.
	ToolsEnabled bool
	// ToolEnabled filters individual tools. Nil enables all.
	ToolEnabled func(name string) bool

	SearchCount int
	Bilingual   bool

	KnowledgeTopK      int
	KnowledgeThreshold float64

	// MemoryLimit is how many memories are injected into the system
	// prompt. Zero disables injection.
	MemoryLimit int

	// Titles enables automatic conversation titles.
	Titles bool
}

// Deps are the driver's collaborators. Only Client, Models and
// Credentials are required.
type Deps struct {
	Client      Streamer
	Models      *llm.Registry
	Credentials Credentials
	Tools       *tools.Registry
	Search      *search.Manager
	Fetcher     *fetch.Fetcher
	Knowledge   *knowledge.Bag
	Memory      *memory.Store
	Bus         *events.Bus
	Logger      *slog.Logger
}

// Request is one user turn.
type Request struct {
	// ID correlates logs and events. Generated when empty.
	ID string `json:"id,omitempty"`
	// Model overrides the configured default model.
	Model   string        `json:"model,omitempty"`
	Locale  string        `json:"locale,omitempty"`
	History []llm.Message `json:"history,omitempty"`
	Message llm.Message   `json:"message"`

	// WebSearch searches the web before the first turn.
	WebSearch bool `json:"web_search,omitempty"`
	// KnowledgeSearch searches the knowledge bag before the first turn.
	KnowledgeSearch bool `json:"knowledge_search,omitempty"`
	// URLs are read and injected before the first turn.
	URLs []string `json:"urls,omitempty"`

	// Planning asks the model for a plan before answering. When Plan is
	// set the model executes it instead.
	Planning bool   `json:"planning,omitempty"`
	Plan     string `json:"plan,omitempty"`

	// Reasoning and ShowReasoning override the configured defaults.
	Reasoning     *bool  `json:"reasoning,omitempty"`
	ShowReasoning *bool  `json:"show_reasoning,omitempty"`
	Voice         string `json:"voice,omitempty"`

	// DisableTools sends this request without tools.
	DisableTools bool `json:"disable_tools,omitempty"`

	Canvas *canvas.Data `json:"canvas,omitempty"`
}

// Driver runs requests. It holds at most one in-flight request: a new
// one cancels its predecessor.
type Driver struct {
	cfg    Config
	deps   Deps
	logger *slog.Logger

	mu     sync.Mutex
	cancel context.CancelFunc
	gen    uint64
}

// NewDriver creates a driver.
func NewDriver(cfg Config, deps Deps) *Driver {
	if cfg.MaxToolDepth <= 0 {
		cfg.MaxToolDepth = DefaultMaxDepth
	}
	if cfg.ToolDelay < 0 {
		cfg.ToolDelay = 0
	}
	if cfg.SearchCount <= 0 {
		cfg.SearchCount = 5
	}
	logger := deps.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return &Driver{
		cfg:    cfg,
		deps:   deps,
		logger: logger.With("component", "agent"),
	}
}

// SendStreamRequest starts req and returns its events. The channel is
// closed when the request finishes, fails or is cancelled. Cancelling
// ctx, calling [Driver.Cancel], or starting another request stops it.
func (d *Driver) SendStreamRequest(ctx context.Context, req Request) <-chan Event {
	ctx, cancel := context.WithCancel(ctx)

	d.mu.Lock()
	if d.cancel != nil {
		d.cancel()
	}
	d.gen++
	gen := d.gen
	d.cancel = cancel
	d.mu.Unlock()

	out := make(chan Event, 64)
	go func() {
		defer close(out)
		defer func() {
			d.mu.Lock()
			if d.gen == gen {
				d.cancel = nil
			}
			d.mu.Unlock()
			cancel()
		}()
		d.run(ctx, req, out)
	}()
	return out
}

// Cancel stops the in-flight request, if any.
func (d *Driver) Cancel() bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.cancel == nil {
		return false
	}
	d.cancel()
	d.cancel = nil
	return true
}

// Busy reports whether a request is in flight.
func (d *Driver) Busy() bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.cancel != nil
}
