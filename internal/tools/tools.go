// Package tools defines the tools available to the agent and the
// dispatcher that runs them.
package tools

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"runtime/debug"
	"sort"
	"strings"
	"time"

	"github.com/nugget/lumen/internal/calendar"
	"github.com/nugget/lumen/internal/canvas"
	"github.com/nugget/lumen/internal/codeexec"
	"github.com/nugget/lumen/internal/fetch"
	"github.com/nugget/lumen/internal/health"
	"github.com/nugget/lumen/internal/knowledge"
	"github.com/nugget/lumen/internal/llm"
	"github.com/nugget/lumen/internal/locale"
	"github.com/nugget/lumen/internal/maps"
	"github.com/nugget/lumen/internal/memory"
	"github.com/nugget/lumen/internal/search"
	"github.com/nugget/lumen/internal/weather"
)

// Handler runs one tool call.
type Handler func(ctx context.Context, args Args, env *Env) (Result, error)

// Tool represents a callable tool.
type Tool struct {
	Name        string         `json:"name"`
	Description string         `json:"description"`
	Parameters  map[string]any `json:"parameters"`
	// Status is the operational status shown while the tool runs,
	// indexed by [locale.Lang]: English first, then Chinese.
	Status  [2]string `json:"-"`
	Handler Handler   `json:"-"`
}

// Required lists the parameters the schema marks as required.
func (t *Tool) Required() []string {
	req, _ := t.Parameters["required"].([]string)
	return req
}

// ResultKind classifies a dispatch outcome.
type ResultKind int

const (
	// KindOK is a successful call.
	KindOK ResultKind = iota
	// KindUnknown means the model named a tool that does not exist.
	KindUnknown
	// KindBadArguments means the arguments were not a JSON object or
	// required fields were missing.
	KindBadArguments
	// KindFailed means the handler returned an error or panicked.
	KindFailed
)

func (k ResultKind) String() string {
	switch k {
	case KindOK:
		return "ok"
	case KindUnknown:
		return "unknown_tool"
	case KindBadArguments:
		return "bad_arguments"
	case KindFailed:
		return "failed"
	}
	return "unknown"
}

// Result is what a tool call produced. Text is fed back to the model;
// Front is the short summary shown to the user and defaults to Text.
type Result struct {
	Text  string     `json:"text"`
	Front string     `json:"front,omitempty"`
	Kind  ResultKind `json:"kind"`
}

// Text builds a successful result.
func Text(s string) Result { return Result{Text: s} }

// Resource is a cited source shown under an answer.
type Resource struct {
	Icon  string `json:"icon,omitempty"`
	Title string `json:"title"`
	Link  string `json:"link"`
}

// CodeBlock is executed code with its output.
type CodeBlock struct {
	Code     string `json:"code"`
	Output   string `json:"output"`
	ExitCode int    `json:"exit_code"`
}

// Payloads accumulates the structured side-channel output of one
// model turn's tool calls. The driver drains it with [Payloads.Take]
// after every flush.
type Payloads struct {
	Resources []Resource       `json:"resources,omitempty"`
	Locations []maps.Place     `json:"locations,omitempty"`
	Routes    []maps.Route     `json:"routes,omitempty"`
	Events    []calendar.Entry `json:"events,omitempty"`
	HTML      []string         `json:"html,omitempty"`
	Health    []health.Card    `json:"health,omitempty"`
	Code      []CodeBlock      `json:"code,omitempty"`
	Knowledge []knowledge.Hit  `json:"knowledge,omitempty"`
	Canvas    *canvas.Data     `json:"canvas,omitempty"`
	Engine    string           `json:"engine,omitempty"`
}

// Empty reports whether nothing has been accumulated.
func (p *Payloads) Empty() bool {
	return len(p.Resources) == 0 && len(p.Locations) == 0 && len(p.Routes) == 0 &&
		len(p.Events) == 0 && len(p.HTML) == 0 && len(p.Health) == 0 &&
		len(p.Code) == 0 && len(p.Knowledge) == 0 && p.Canvas == nil
}

// Take moves the accumulated payloads out and leaves p empty. The
// search engine name survives since it describes the whole request.
func (p *Payloads) Take() Payloads {
	out := *p
	*p = Payloads{Engine: p.Engine}
	return out
}

// DedupeResources drops resources whose title was already seen.
func DedupeResources(in []Resource) []Resource {
	seen := make(map[string]bool, len(in))
	out := in[:0:0]
	for _, r := range in {
		key := strings.TrimSpace(r.Title)
		if seen[key] {
			continue
		}
		seen[key] = true
		out = append(out, r)
	}
	return out
}

// Env is the per-request state handlers read and write.
type Env struct {
	Lang     locale.Lang
	Location *time.Location
	Payloads *Payloads
	// Canvas is the conversation's canvas, nil until one is created.
	Canvas *canvas.Data
	// Status receives the operational status before each call.
	Status func(string)
	// Enabled reports whether a tool may run. Nil allows every tool.
	Enabled func(name string) bool
}

func (e *Env) loc() *time.Location {
	if e.Location == nil {
		return time.Local
	}
	return e.Location
}

// Registry holds available tools and the services they call.
type Registry struct {
	tools  map[string]*Tool
	logger *slog.Logger
	now    func() time.Time

	memory    *memory.Store
	search    *search.Manager
	arxiv     *search.Arxiv
	bilingual bool
	fetcher   *fetch.Fetcher
	knowledge *knowledge.Bag
	kbTopK    int
	kbMin     float64
	maps      maps.Provider
	weather   weather.Provider
	units     string
	calendar  calendar.Service
	runner    *codeexec.Runner
	health    *health.Store
}

// NewRegistry creates a registry with every built-in tool. Tools whose
// service is never set answer with a "no active service" message.
func NewRegistry(logger *slog.Logger) *Registry {
	if logger == nil {
		logger = slog.Default()
	}
	r := &Registry{
		tools:  make(map[string]*Tool),
		logger: logger.With("component", "tools"),
		now:    time.Now,
		kbTopK: 5,
		kbMin:  0.5,
	}
	r.registerMemoryTools()
	r.registerSearchTools()
	r.registerWebTools()
	r.registerKnowledgeTools()
	r.registerMapTools()
	r.registerWeatherTools()
	r.registerCalendarTools()
	r.registerCanvasTools()
	r.registerCodeTools()
	r.registerHealthTools()
	return r
}

// Register adds a tool to the registry.
func (r *Registry) Register(t *Tool) {
	r.tools[t.Name] = t
}

// Get retrieves a tool by name.
func (r *Registry) Get(name string) *Tool {
	return r.tools[name]
}

// Names returns registered tool names in sorted order.
func (r *Registry) Names() []string {
	names := make([]string, 0, len(r.tools))
	for n := range r.tools {
		names = append(names, n)
	}
	sort.Strings(names)
	return names
}

// List returns the function schemas offered to the model. When enabled
// is non-nil only tools it accepts are listed.
func (r *Registry) List(enabled func(name string) bool) []map[string]any {
	var result []map[string]any
	for _, name := range r.Names() {
		if enabled != nil && !enabled(name) {
			continue
		}
		t := r.tools[name]
		result = append(result, map[string]any{
			"type": "function",
			"function": map[string]any{
				"name":        t.Name,
				"description": t.Description,
				"parameters":  t.Parameters,
			},
		})
	}
	return result
}

// Dispatch runs one completed tool call. It never returns an error:
// every failure is rendered as text the model can read.
func (r *Registry) Dispatch(ctx context.Context, call llm.ToolCall, env *Env) (res Result) {
	if env == nil {
		env = &Env{}
	}
	if env.Payloads == nil {
		env.Payloads = &Payloads{}
	}
	lang := env.Lang
	name := call.Function.Name
	logger := r.logger.With("request_id", RequestIDFromContext(ctx))

	tool := r.tools[name]
	if tool == nil || (env.Enabled != nil && !env.Enabled(name)) {
		logger.Warn("unknown tool requested", "tool", name)
		return Result{
			Text: fmt.Sprintf("Unknown tool %q. Do not call this tool again.", name),
			Kind: KindUnknown,
		}
	}

	args, ok := ParseArgs(call.Function.Arguments)
	if !ok {
		logger.Warn("malformed tool arguments", "tool", name, "args", call.Function.Arguments)
		return Result{
			Text: lang.Pick(
				fmt.Sprintf("The arguments for %s were not a valid JSON object. Call it again with valid JSON arguments.", name),
				fmt.Sprintf("%s 的参数不是有效的 JSON 对象，请使用有效的 JSON 参数重新调用。", name)),
			Kind: KindBadArguments,
		}
	}
	if missing := args.Missing(tool.Required()...); len(missing) > 0 {
		return Result{
			Text: lang.Pick(
				fmt.Sprintf("Missing required parameter(s) for %s: %s.", name, strings.Join(missing, ", ")),
				fmt.Sprintf("调用 %s 缺少必填参数：%s。", name, strings.Join(missing, "、"))),
			Kind: KindBadArguments,
		}
	}

	if env.Status != nil {
		if s := tool.Status[lang]; s != "" {
			env.Status(s)
		}
	}

	defer func() {
		if p := recover(); p != nil {
			logger.Error("tool panicked", "tool", name, "panic", p, "stack", string(debug.Stack()))
			res = Result{
				Text: lang.Pick(
					fmt.Sprintf("The %s tool failed unexpectedly.", name),
					fmt.Sprintf("%s 工具意外失败。", name)),
				Kind: KindFailed,
			}
		}
	}()

	start := time.Now()
	res, err := tool.Handler(ctx, args, env)
	if err != nil {
		logger.Warn("tool failed", "tool", name, "error", err, "elapsed", time.Since(start))
		return failure(lang, name, err)
	}
	if res.Front == "" {
		res.Front = res.Text
	}
	res.Kind = KindOK
	logger.Debug("tool done", "tool", name, "elapsed", time.Since(start), "result_len", len(res.Text))
	return res
}

var serviceNames = map[string][2]string{
	"map":       {"map", "地图"},
	"weather":   {"weather", "天气"},
	"search":    {"search", "搜索"},
	"calendar":  {"calendar", "日历"},
	"health":    {"health", "健康"},
	"knowledge": {"knowledge", "知识库"},
	"memory":    {"memory", "记忆"},
	"code":      {"code execution", "代码执行"},
}

func failure(lang locale.Lang, name string, err error) Result {
	var unavail *ErrToolUnavailable
	if errors.As(err, &unavail) {
		svc := serviceNames[unavail.Service]
		if svc[0] == "" {
			svc = [2]string{unavail.Service, unavail.Service}
		}
		return Result{
			Text: lang.Pick(
				fmt.Sprintf("There is no active %s service. Tell the user it is unavailable.", svc[0]),
				fmt.Sprintf("当前没有可用的%s服务，请告诉用户该功能不可用。", svc[1])),
			Kind: KindFailed,
		}
	}
	return Result{
		Text: lang.Pick(
			fmt.Sprintf("%s failed: %v", name, err),
			fmt.Sprintf("%s 执行失败：%v", name, err)),
		Kind: KindFailed,
	}
}

// schema builds a JSON schema object from properties and required keys.
func schema(props map[string]any, required ...string) map[string]any {
	s := map[string]any{
		"type":       "object",
		"properties": props,
	}
	if len(required) > 0 {
		s["required"] = required
	}
	return s
}

func prop(typ, desc string) map[string]any {
	return map[string]any{"type": typ, "description": desc}
}
