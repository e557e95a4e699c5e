package tools

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/nugget/lumen/internal/llm"
	"github.com/nugget/lumen/internal/locale"
)

func call(name, args string) llm.ToolCall {
	return llm.ToolCall{ID: "call_1", Type: "function", Function: llm.FunctionCall{Name: name, Arguments: args}}
}

func TestRegistryHasEveryTool(t *testing.T) {
	r := NewRegistry(nil)
	want := []string{
		"save_memory", "retrieve_memory", "update_memory",
		"search_online", "search_arxiv_papers",
		"read_web_page", "extract_remote_file_content", "create_web_view",
		"search_knowledge_bag",
		"query_location", "get_current_location", "search_nearby_locations", "get_route",
		"query_weather",
		"search_calendar_and_reminders", "write_system_event",
		"create_canvas", "edit_canvas",
		"execute_python_code",
		"fetch_step_details", "fetch_energy_details", "fetch_nutrition_details", "make_nutrition_data",
	}
	for _, name := range want {
		tool := r.Get(name)
		if tool == nil {
			t.Errorf("tool %s not registered", name)
			continue
		}
		if tool.Status[locale.English] == "" || tool.Status[locale.Chinese] == "" {
			t.Errorf("tool %s missing a localized status", name)
		}
	}
	if got := len(r.Names()); got != len(want) {
		t.Errorf("registered %d tools, want %d", got, len(want))
	}
}

func TestListFiltersDisabled(t *testing.T) {
	r := NewRegistry(nil)
	all := r.List(nil)
	some := r.List(func(name string) bool { return name != "execute_python_code" })

	if len(some) != len(all)-1 {
		t.Fatalf("filtered list has %d tools, want %d", len(some), len(all)-1)
	}
	for _, def := range some {
		fn := def["function"].(map[string]any)
		if fn["name"] == "execute_python_code" {
			t.Error("disabled tool listed")
		}
		if def["type"] != "function" {
			t.Errorf("type = %v, want function", def["type"])
		}
	}
}

func TestDispatchUnknownTool(t *testing.T) {
	r := NewRegistry(nil)
	res := r.Dispatch(context.Background(), call("launch_rocket", `{}`), nil)

	if res.Kind != KindUnknown {
		t.Errorf("Kind = %v, want %v", res.Kind, KindUnknown)
	}
	if res.Text != `Unknown tool "launch_rocket". Do not call this tool again.` {
		t.Errorf("Text = %q", res.Text)
	}
}

func TestDispatchBadArguments(t *testing.T) {
	r := NewRegistry(nil)

	for _, raw := range []string{`{"title": `, `[1,2]`, `"text"`} {
		res := r.Dispatch(context.Background(), call("create_canvas", raw), nil)
		if res.Kind != KindBadArguments {
			t.Errorf("args %q: Kind = %v, want %v", raw, res.Kind, KindBadArguments)
		}
		if !strings.Contains(res.Text, "not a valid JSON object") {
			t.Errorf("args %q: Text = %q", raw, res.Text)
		}
	}
}

func TestDispatchMissingRequired(t *testing.T) {
	r := NewRegistry(nil)
	env := &Env{Lang: locale.Chinese}
	res := r.Dispatch(context.Background(), call("create_canvas", `{"title": "x", "content": "  "}`), env)

	if res.Kind != KindBadArguments {
		t.Fatalf("Kind = %v, want %v", res.Kind, KindBadArguments)
	}
	if !strings.Contains(res.Text, "content") || !strings.Contains(res.Text, "缺少") {
		t.Errorf("Text = %q", res.Text)
	}
}

func TestDispatchEmitsStatus(t *testing.T) {
	r := NewRegistry(nil)
	var statuses []string
	env := &Env{Lang: locale.English, Status: func(s string) { statuses = append(statuses, s) }}

	r.Dispatch(context.Background(), call("create_web_view", `{"content": "# hi"}`), env)
	r.Dispatch(context.Background(), call("nope", `{}`), env)

	if len(statuses) != 1 || statuses[0] != "Creating Page" {
		t.Errorf("statuses = %v, want [Creating Page]", statuses)
	}
}

func TestDispatchRecoversPanic(t *testing.T) {
	r := NewRegistry(nil)
	r.Register(&Tool{
		Name:       "explode",
		Parameters: schema(map[string]any{}),
		Handler: func(context.Context, Args, *Env) (Result, error) {
			panic("boom")
		},
	})

	res := r.Dispatch(context.Background(), call("explode", ""), nil)
	if res.Kind != KindFailed {
		t.Errorf("Kind = %v, want %v", res.Kind, KindFailed)
	}
	if !strings.Contains(res.Text, "explode") {
		t.Errorf("Text = %q", res.Text)
	}
}

func TestDispatchHandlerError(t *testing.T) {
	r := NewRegistry(nil)
	r.Register(&Tool{
		Name:       "fail",
		Parameters: schema(map[string]any{}),
		Handler: func(context.Context, Args, *Env) (Result, error) {
			return Result{}, errors.New("disk full")
		},
	})

	res := r.Dispatch(context.Background(), call("fail", "{}"), nil)
	if res.Kind != KindFailed || res.Text != "fail failed: disk full" {
		t.Errorf("got %+v", res)
	}
}

func TestDispatchUnavailableService(t *testing.T) {
	r := NewRegistry(nil)

	tests := []struct {
		tool, args string
		lang       locale.Lang
		want       string
	}{
		{"query_location", `{"query": "Paris"}`, locale.English, "no active map service"},
		{"query_weather", `{"city": "Paris"}`, locale.English, "no active weather service"},
		{"query_weather", `{"city": "北京"}`, locale.Chinese, "没有可用的天气服务"},
		{"search_online", `{"query": "x"}`, locale.English, "no active search service"},
		{"fetch_step_details", `{"start": "2025-01-01", "end": "2025-01-02"}`, locale.English, "no active health service"},
	}
	for _, tt := range tests {
		res := r.Dispatch(context.Background(), call(tt.tool, tt.args), &Env{Lang: tt.lang})
		if res.Kind != KindFailed {
			t.Errorf("%s: Kind = %v, want failed", tt.tool, res.Kind)
		}
		if !strings.Contains(res.Text, tt.want) {
			t.Errorf("%s: Text = %q, want it to contain %q", tt.tool, res.Text, tt.want)
		}
	}
}

func TestDispatchFrontDefaultsToText(t *testing.T) {
	r := NewRegistry(nil)
	r.Register(&Tool{
		Name:       "echo",
		Parameters: schema(map[string]any{"s": prop("string", "")}, "s"),
		Handler: func(_ context.Context, a Args, _ *Env) (Result, error) {
			return Text(a.String("s")), nil
		},
	})
	res := r.Dispatch(context.Background(), call("echo", `{"s": "hello"}`), nil)
	if res.Kind != KindOK || res.Text != "hello" || res.Front != "hello" {
		t.Errorf("got %+v", res)
	}
}

func TestPayloadsTake(t *testing.T) {
	p := &Payloads{Engine: "brave"}
	if !p.Empty() {
		t.Fatal("new payloads should be empty")
	}
	p.Resources = append(p.Resources, Resource{Title: "a"})
	p.HTML = append(p.HTML, "<p>x</p>")

	out := p.Take()
	if len(out.Resources) != 1 || len(out.HTML) != 1 {
		t.Errorf("taken payloads lost data: %+v", out)
	}
	if !p.Empty() {
		t.Error("payloads not empty after Take")
	}
	if p.Engine != "brave" {
		t.Errorf("Engine = %q, want it kept", p.Engine)
	}
}

func TestDedupeResources(t *testing.T) {
	in := []Resource{{Title: "A", Link: "1"}, {Title: "B"}, {Title: "A ", Link: "2"}}
	out := DedupeResources(in)
	if len(out) != 2 || out[0].Link != "1" || out[1].Title != "B" {
		t.Errorf("DedupeResources = %+v", out)
	}
}

func TestResultKindString(t *testing.T) {
	if KindUnknown.String() != "unknown_tool" || KindBadArguments.String() != "bad_arguments" {
		t.Error("unexpected kind names")
	}
}

func TestRequestIDContext(t *testing.T) {
	ctx := WithRequestID(context.Background(), "req-1")
	if got := RequestIDFromContext(ctx); got != "req-1" {
		t.Errorf("RequestIDFromContext = %q", got)
	}
	if got := RequestIDFromContext(context.Background()); got != "" {
		t.Errorf("empty context gave %q", got)
	}
}
