package agent

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/nugget/lumen/internal/events"
	"github.com/nugget/lumen/internal/fetch"
	"github.com/nugget/lumen/internal/llm"
	"github.com/nugget/lumen/internal/tools"
)

// script is one scripted provider response.
type script struct {
	lines []string
	err   error
	// gate, when set, feeds the body one line at a time.
	gate chan string
}

// fakeStreamer replays scripts in order. The last script repeats.
type fakeStreamer struct {
	mu             sync.Mutex
	scripts        []script
	bodies         []map[string]any
	completions    []string
	completeBodies []map[string]any
}

func (f *fakeStreamer) Stream(ctx context.Context, url, apiKey string, body map[string]any) (io.ReadCloser, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.bodies = append(f.bodies, body)
	if len(f.scripts) == 0 {
		return nil, errors.New("no scripted response")
	}
	s := f.scripts[0]
	if len(f.scripts) > 1 {
		f.scripts = f.scripts[1:]
	}
	if s.err != nil {
		return nil, s.err
	}
	if s.gate != nil {
		return io.NopCloser(&gatedBody{ctx: ctx, lines: s.gate}), nil
	}
	return io.NopCloser(strings.NewReader(strings.Join(s.lines, "\n") + "\n")), nil
}

func (f *fakeStreamer) Complete(ctx context.Context, url, apiKey string, body map[string]any) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.completeBodies = append(f.completeBodies, body)
	if len(f.completions) == 0 {
		return "", errors.New("no scripted completion")
	}
	out := f.completions[0]
	f.completions = f.completions[1:]
	return out, nil
}

func (f *fakeStreamer) streamCalls() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.bodies)
}

func (f *fakeStreamer) body(i int) map[string]any {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.bodies[i]
}

// gatedBody yields lines as they arrive on a channel and fails once
// the request context is done, like an HTTP body would.
type gatedBody struct {
	ctx   context.Context
	lines chan string
	buf   []byte
}

func (g *gatedBody) Read(p []byte) (int, error) {
	if len(g.buf) == 0 {
		select {
		case l, ok := <-g.lines:
			if !ok {
				return 0, io.EOF
			}
			g.buf = []byte(l + "\n")
		case <-g.ctx.Done():
			return 0, g.ctx.Err()
		}
	}
	n := copy(p, g.buf)
	g.buf = g.buf[n:]
	return n, nil
}

func sseLine(v map[string]any) string {
	b, _ := json.Marshal(map[string]any{"choices": []any{v}})
	return "data: " + string(b)
}

func contentLine(s string) string {
	return sseLine(map[string]any{"delta": map[string]any{"content": s}})
}

func finishLine(reason string) string {
	return sseLine(map[string]any{"delta": map[string]any{}, "finish_reason": reason})
}

func answer(text string) script {
	return script{lines: []string{contentLine(text), finishLine("stop"), "data: [DONE]"}}
}

func toolTurn(id, name, args string) script {
	call := map[string]any{
		"index": 0,
		"id":    id,
		"type":  "function",
		"function": map[string]any{
			"name":      name,
			"arguments": args,
		},
	}
	return script{lines: []string{
		sseLine(map[string]any{"delta": map[string]any{"tool_calls": []any{call}}}),
		finishLine("tool_calls"),
		"data: [DONE]",
	}}
}

type creds map[string]string

func (c creds) APIKey(company string) string     { return c[company] }
func (c creds) RequestURL(company string) string { return "" }

type testDriver struct {
	*Driver
	streamer *fakeStreamer
	echoes   *int
}

func newTestDriver(t *testing.T, company string, scripts []script, mutate func(*Config, *Deps)) *testDriver {
	t.Helper()

	fs := &fakeStreamer{scripts: scripts}
	reg := tools.NewRegistry(nil)
	echoes := new(int)
	var mu sync.Mutex
	reg.Register(&tools.Tool{
		Name:        "echo",
		Description: "Echo the text back.",
		Parameters: map[string]any{
			"type":       "object",
			"properties": map[string]any{"text": map[string]any{"type": "string"}},
			"required":   []string{"text"},
		},
		Status: [2]string{"Echoing", "正在回显"},
		Handler: func(_ context.Context, args tools.Args, env *tools.Env) (tools.Result, error) {
			mu.Lock()
			*echoes++
			mu.Unlock()
			env.Payloads.Resources = append(env.Payloads.Resources, tools.Resource{Title: "echo"})
			return tools.Result{Text: "echo: " + args.String("text"), Front: "echoed"}, nil
		},
	})

	cfg := Config{
		DefaultModel: "test-model",
		Locale:       "en-US",
		MaxToolDepth: 8,
		ToolsEnabled: true,
	}
	deps := Deps{
		Client: fs,
		Models: llm.NewRegistry(llm.ModelInfo{
			Name:            "test-model",
			Company:         company,
			SupportsTextGen: true,
			SupportsToolUse: true,
		}),
		Credentials: creds{"openai": "sk-test", "zhipu": "zk-test"},
		Tools:       reg,
	}
	if mutate != nil {
		mutate(&cfg, &deps)
	}
	return &testDriver{Driver: NewDriver(cfg, deps), streamer: fs, echoes: echoes}
}

func userMessage(text string) llm.Message {
	return llm.Message{Role: llm.RoleUser, Content: text}
}

func collect(t *testing.T, ch <-chan Event) []Event {
	t.Helper()
	var out []Event
	timeout := time.After(5 * time.Second)
	for {
		select {
		case ev, ok := <-ch:
			if !ok {
				return out
			}
			out = append(out, ev)
		case <-timeout:
			t.Fatalf("timed out waiting for events; got %d so far", len(out))
		}
	}
}

func ofKind(evs []Event, kind EventKind) []Event {
	var out []Event
	for _, ev := range evs {
		if ev.Kind == kind {
			out = append(out, ev)
		}
	}
	return out
}

func contentOf(evs []Event) string {
	var sb strings.Builder
	for _, ev := range ofKind(evs, EventContent) {
		sb.WriteString(ev.Text)
	}
	return sb.String()
}

func wireMessages(t *testing.T, body map[string]any) []map[string]any {
	t.Helper()
	msgs, ok := body["messages"].([]map[string]any)
	if !ok {
		t.Fatalf("body messages has type %T", body["messages"])
	}
	return msgs
}

func TestDriver_PlainAnswer(t *testing.T) {
	d := newTestDriver(t, "openai", []script{answer("Hello there")}, nil)

	evs := collect(t, d.SendStreamRequest(context.Background(), Request{Message: userMessage("hi")}))

	if got := contentOf(evs); got != "Hello there" {
		t.Errorf("content = %q, want %q", got, "Hello there")
	}
	finish := ofKind(evs, EventFinish)
	if len(finish) != 1 {
		t.Fatalf("finish events = %d, want 1", len(finish))
	}
	if finish[0].FinishReason != llm.FinishStop {
		t.Errorf("finish reason = %q, want stop", finish[0].FinishReason)
	}
	if finish[0].Error != "" {
		t.Errorf("finish error = %q, want empty", finish[0].Error)
	}
	if evs[len(evs)-1].Kind != EventFinish {
		t.Errorf("last event = %s, want finish", evs[len(evs)-1].Kind)
	}
	for _, ev := range evs {
		if !strings.HasPrefix(ev.RequestID, "r_") {
			t.Errorf("event %s has request id %q", ev.Kind, ev.RequestID)
		}
	}

	body := d.streamer.body(0)
	if body["stream"] != true {
		t.Error("body should request streaming")
	}
	if _, ok := body["tools"]; !ok {
		t.Error("tools should be attached for a tool-capable model")
	}
	msgs := wireMessages(t, body)
	if msgs[0]["role"] != llm.RoleSystem {
		t.Errorf("first message role = %v, want system", msgs[0]["role"])
	}
	if last := msgs[len(msgs)-1]; last["content"] != "hi" {
		t.Errorf("last message content = %v, want hi", last["content"])
	}
}

func TestDriver_RecursesOnce(t *testing.T) {
	d := newTestDriver(t, "openai", []script{
		toolTurn("call_1", "echo", `{"text":"ping"}`),
		answer("done"),
	}, nil)

	evs := collect(t, d.SendStreamRequest(context.Background(), Request{Message: userMessage("echo ping")}))

	if n := d.streamer.streamCalls(); n != 2 {
		t.Fatalf("stream calls = %d, want 2", n)
	}
	if *d.echoes != 1 {
		t.Errorf("echo ran %d times, want 1", *d.echoes)
	}
	if got := contentOf(evs); got != "done" {
		t.Errorf("content = %q, want done", got)
	}

	toolEvs := ofKind(evs, EventTool)
	if len(toolEvs) != 2 {
		t.Fatalf("tool events = %d, want 2 (start and end)", len(toolEvs))
	}
	if toolEvs[0].Tool != "echo" || toolEvs[0].Text != "" {
		t.Errorf("tool start = %+v", toolEvs[0])
	}
	if toolEvs[1].Text != "echoed" {
		t.Errorf("tool end text = %q, want echoed", toolEvs[1].Text)
	}
	if st := ofKind(evs, EventStatus); len(st) != 1 || st[0].Text != "Echoing" {
		t.Errorf("status events = %+v, want one Echoing", st)
	}

	payloads := ofKind(evs, EventPayload)
	if len(payloads) != 1 {
		t.Fatalf("payload events = %d, want 1", len(payloads))
	}
	if res := payloads[0].Payloads.Resources; len(res) != 1 || res[0].Title != "echo" {
		t.Errorf("payload resources = %+v", res)
	}
	finish := ofKind(evs, EventFinish)
	if len(finish) != 1 || len(finish[0].Resources) != 1 {
		t.Fatalf("finish = %+v, want one with the echo resource", finish)
	}

	msgs := wireMessages(t, d.streamer.body(1))
	n := len(msgs)
	if n < 3 {
		t.Fatalf("second turn has %d messages", n)
	}
	if msgs[n-2]["role"] != llm.RoleAssistant {
		t.Errorf("feedback[0] role = %v, want assistant", msgs[n-2]["role"])
	}
	if !strings.Contains(msgs[n-2]["content"].(string), "echo") {
		t.Errorf("assistant feedback = %q", msgs[n-2]["content"])
	}
	if msgs[n-1]["role"] != llm.RoleUser {
		t.Errorf("tool result role = %v, want user for openai", msgs[n-1]["role"])
	}
	if got := msgs[n-1]["content"].(string); !strings.Contains(got, "echo: ping") {
		t.Errorf("tool result = %q, want it to contain the handler output", got)
	}
}

func TestDriver_ToolRoleFromProfile(t *testing.T) {
	d := newTestDriver(t, "zhipu", []script{
		toolTurn("call_9", "echo", `{"text":"x"}`),
		answer("ok"),
	}, nil)

	collect(t, d.SendStreamRequest(context.Background(), Request{Message: userMessage("go")}))

	msgs := wireMessages(t, d.streamer.body(1))
	last := msgs[len(msgs)-1]
	if last["role"] != llm.RoleTool {
		t.Errorf("tool result role = %v, want tool for zhipu", last["role"])
	}
	if last["tool_call_id"] != "call_9" {
		t.Errorf("tool_call_id = %v, want call_9", last["tool_call_id"])
	}
}

func TestDriver_DepthBound(t *testing.T) {
	bus := events.New()
	sub := bus.Subscribe(64)
	defer bus.Unsubscribe(sub)

	d := newTestDriver(t, "openai", []script{
		toolTurn("call_1", "echo", `{"text":"again"}`),
	}, func(cfg *Config, deps *Deps) {
		cfg.MaxToolDepth = 3
		deps.Bus = bus
	})

	evs := collect(t, d.SendStreamRequest(context.Background(), Request{Message: userMessage("loop forever")}))

	if n := d.streamer.streamCalls(); n != 4 {
		t.Fatalf("stream calls = %d, want 4 (3 tool rounds and a final turn)", n)
	}
	if *d.echoes != 3 {
		t.Errorf("echo ran %d times, want 3", *d.echoes)
	}

	last := d.streamer.body(3)
	if _, ok := last["tools"]; ok {
		t.Error("final turn should not attach tools")
	}
	msgs := wireMessages(t, last)
	if got := msgs[len(msgs)-1]["content"].(string); !strings.Contains(got, "Tool budget exhausted") {
		t.Errorf("last message = %q, want the budget notice", got)
	}
	for i := 0; i < 3; i++ {
		if _, ok := d.streamer.body(i)["tools"]; !ok {
			t.Errorf("turn %d should attach tools", i)
		}
	}

	if len(ofKind(evs, EventFinish)) != 1 {
		t.Error("expected a finish event after the final turn")
	}
	if len(ofKind(evs, EventError)) != 0 {
		t.Error("depth bound is not an error")
	}

	var budget bool
	for len(sub) > 0 {
		if e := <-sub; e.Kind == events.KindToolBudget {
			budget = true
		}
	}
	if !budget {
		t.Error("expected a tool_budget_exhausted bus event")
	}
}

func TestDriver_CancelMidStream(t *testing.T) {
	gate := make(chan string, 8)
	d := newTestDriver(t, "openai", []script{{gate: gate}, answer("second")}, nil)

	ch := d.SendStreamRequest(context.Background(), Request{Message: userMessage("first")})
	gate <- contentLine("partial")

	select {
	case ev := <-ch:
		if ev.Kind != EventContent || ev.Text != "partial" {
			t.Fatalf("first event = %+v, want content partial", ev)
		}
	case <-time.After(5 * time.Second):
		t.Fatal("timed out waiting for first content")
	}

	if !d.Cancel() {
		t.Fatal("Cancel() = false, want true with a request in flight")
	}
	gate <- contentLine("late")
	gate <- finishLine("stop")

	rest := collect(t, ch)
	for _, ev := range rest {
		switch ev.Kind {
		case EventContent, EventReasoning:
			t.Errorf("got %s event %q after cancel", ev.Kind, ev.Text)
		case EventError:
			t.Errorf("cancellation produced an error event: %s", ev.Error)
		}
	}

	evs := collect(t, d.SendStreamRequest(context.Background(), Request{Message: userMessage("again")}))
	if got := contentOf(evs); got != "second" {
		t.Errorf("next request content = %q, want second", got)
	}
	if len(ofKind(evs, EventFinish)) != 1 {
		t.Error("next request should finish normally")
	}
}

func TestDriver_NewRequestCancelsPrior(t *testing.T) {
	bus := events.New()
	sub := bus.Subscribe(64)
	defer bus.Unsubscribe(sub)

	gate := make(chan string, 8)
	d := newTestDriver(t, "openai", []script{{gate: gate}, answer("winner")}, func(_ *Config, deps *Deps) {
		deps.Bus = bus
	})

	first := d.SendStreamRequest(context.Background(), Request{ID: "r_first", Message: userMessage("one")})
	gate <- contentLine("x")
	if ev := <-first; ev.Kind != EventContent {
		t.Fatalf("first event = %+v", ev)
	}

	second := d.SendStreamRequest(context.Background(), Request{ID: "r_second", Message: userMessage("two")})

	for _, ev := range collect(t, first) {
		if ev.Kind == EventError || ev.Kind == EventFinish {
			t.Errorf("superseded request emitted %s", ev.Kind)
		}
	}
	evs := collect(t, second)
	if got := contentOf(evs); got != "winner" {
		t.Errorf("second content = %q, want winner", got)
	}

	var cancelled bool
	for len(sub) > 0 {
		e := <-sub
		if e.Kind == events.KindRequestCancelled && e.Data["request_id"] == "r_first" {
			cancelled = true
		}
	}
	if !cancelled {
		t.Error("expected request_cancelled for the superseded request")
	}
	if d.Busy() {
		t.Error("driver should be idle after both requests end")
	}
}

func TestDriver_ConfigErrors(t *testing.T) {
	tests := []struct {
		name    string
		company string
		model   string
		want    string
	}{
		{name: "unknown model", company: "openai", model: "nope", want: "missing model: nope"},
		{name: "missing key", company: "moonshot", want: "missing api key for moonshot"},
		{name: "missing url", company: "acme", want: "missing request url for acme"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			d := newTestDriver(t, tt.company, []script{answer("unreachable")}, nil)
			evs := collect(t, d.SendStreamRequest(context.Background(), Request{Model: tt.model, Message: userMessage("hi")}))
			if len(evs) != 1 || evs[0].Kind != EventError {
				t.Fatalf("events = %+v, want a single error", evs)
			}
			if evs[0].Error != tt.want {
				t.Errorf("error = %q, want %q", evs[0].Error, tt.want)
			}
			if d.streamer.streamCalls() != 0 {
				t.Error("provider should not be called")
			}
		})
	}
}

func TestDriver_LocalProviderNeedsNoKey(t *testing.T) {
	d := newTestDriver(t, "ollama", []script{answer("local")}, nil)
	evs := collect(t, d.SendStreamRequest(context.Background(), Request{Message: userMessage("hi")}))
	if got := contentOf(evs); got != "local" {
		t.Errorf("content = %q, want local", got)
	}
}

func TestDriver_HTTPError(t *testing.T) {
	d := newTestDriver(t, "openai", []script{{err: &llm.HTTPError{StatusCode: 401, Body: "invalid api key"}}}, nil)
	evs := collect(t, d.SendStreamRequest(context.Background(), Request{Message: userMessage("hi")}))

	errs := ofKind(evs, EventError)
	if len(errs) != 1 {
		t.Fatalf("error events = %d, want 1", len(errs))
	}
	if !strings.Contains(errs[0].Error, "invalid api key") {
		t.Errorf("error %q should include the server text", errs[0].Error)
	}
	if len(ofKind(evs, EventFinish)) != 0 {
		t.Error("failed request should not finish")
	}
}

func TestDriver_FinishTags(t *testing.T) {
	tests := []struct {
		reason string
		tag    string
	}{
		{llm.FinishLength, ErrorLength},
		{llm.FinishSensitive, ErrorSensitive},
	}
	for _, tt := range tests {
		t.Run(tt.reason, func(t *testing.T) {
			d := newTestDriver(t, "openai", []script{{lines: []string{contentLine("cut"), finishLine(tt.reason)}}}, nil)
			evs := collect(t, d.SendStreamRequest(context.Background(), Request{Message: userMessage("hi")}))
			finish := ofKind(evs, EventFinish)
			if len(finish) != 1 {
				t.Fatalf("finish events = %d, want 1", len(finish))
			}
			if finish[0].Error != tt.tag {
				t.Errorf("finish error = %q, want %q", finish[0].Error, tt.tag)
			}
		})
	}
}

func TestDriver_EmptyResponseNudge(t *testing.T) {
	d := newTestDriver(t, "openai", []script{
		toolTurn("call_1", "echo", `{"text":"a"}`),
		{lines: []string{finishLine("stop")}},
		answer("recovered"),
	}, nil)

	evs := collect(t, d.SendStreamRequest(context.Background(), Request{Message: userMessage("hi")}))

	if n := d.streamer.streamCalls(); n != 3 {
		t.Fatalf("stream calls = %d, want 3", n)
	}
	if got := contentOf(evs); got != "recovered" {
		t.Errorf("content = %q, want recovered", got)
	}
	if _, ok := d.streamer.body(2)["tools"]; ok {
		t.Error("nudge turn should not attach tools")
	}
}

func TestDriver_EmptyResponseFallback(t *testing.T) {
	d := newTestDriver(t, "openai", []script{
		toolTurn("call_1", "echo", `{"text":"a"}`),
		{lines: []string{finishLine("stop")}},
	}, nil)

	evs := collect(t, d.SendStreamRequest(context.Background(), Request{Message: userMessage("hi")}))
	if got := contentOf(evs); !strings.Contains(got, "wasn't able to compose a response") {
		t.Errorf("content = %q, want the fallback", got)
	}
}

func TestDriver_ToolsDisabled(t *testing.T) {
	d := newTestDriver(t, "openai", []script{answer("plain")}, func(cfg *Config, _ *Deps) {
		cfg.ToolsEnabled = false
	})
	collect(t, d.SendStreamRequest(context.Background(), Request{Message: userMessage("hi")}))
	if _, ok := d.streamer.body(0)["tools"]; ok {
		t.Error("tools attached while disabled")
	}
}

func TestDriver_ToolFilter(t *testing.T) {
	d := newTestDriver(t, "openai", []script{
		toolTurn("call_1", "echo", `{"text":"a"}`),
		answer("fine"),
	}, func(cfg *Config, _ *Deps) {
		cfg.ToolEnabled = func(name string) bool { return name != "echo" }
	})

	collect(t, d.SendStreamRequest(context.Background(), Request{Message: userMessage("hi")}))

	if *d.echoes != 0 {
		t.Errorf("disabled tool ran %d times", *d.echoes)
	}
	for _, def := range d.streamer.body(0)["tools"].([]map[string]any) {
		if def["function"].(map[string]any)["name"] == "echo" {
			t.Error("disabled tool advertised to the model")
		}
	}
	msgs := wireMessages(t, d.streamer.body(1))
	if got := msgs[len(msgs)-1]["content"].(string); !strings.Contains(got, "Unknown tool") {
		t.Errorf("tool result = %q, want unknown tool feedback", got)
	}
}

func TestDriver_Title(t *testing.T) {
	d := newTestDriver(t, "openai", []script{answer("hello")}, func(cfg *Config, _ *Deps) {
		cfg.Titles = true
	})
	d.streamer.completions = []string{`"Friendly Greeting"`}

	evs := collect(t, d.SendStreamRequest(context.Background(), Request{Message: userMessage("hi there")}))

	titles := ofKind(evs, EventTitle)
	if len(titles) != 1 || titles[0].Text != "Friendly Greeting" {
		t.Errorf("title events = %+v", titles)
	}
	if len(d.streamer.completeBodies) != 1 || d.streamer.completeBodies[0]["stream"] != false {
		t.Errorf("title request bodies = %+v", d.streamer.completeBodies)
	}
}

func TestWantsTitle(t *testing.T) {
	msg := func(role string) llm.Message { return llm.Message{Role: role, Content: "x"} }
	exchanges := func(n int) []llm.Message {
		var out []llm.Message
		for i := 0; i < n; i++ {
			out = append(out, msg(llm.RoleUser), msg(llm.RoleAssistant))
		}
		return out
	}
	tests := []struct {
		name    string
		history []llm.Message
		want    bool
	}{
		{"first message", nil, true},
		{"unanswered message", []llm.Message{msg(llm.RoleUser)}, false},
		{"second exchange", exchanges(1), true},
		{"search messages ignored", []llm.Message{msg(llm.RoleUser), msg(llm.RoleSearch), msg(llm.RoleAssistant)}, true},
		{"third exchange", exchanges(2), false},
		{"sixth exchange", exchanges(5), true},
		{"seventh exchange", exchanges(6), false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := wantsTitle(Request{History: tt.history}); got != tt.want {
				t.Errorf("wantsTitle() = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestDriver_Planning(t *testing.T) {
	d := newTestDriver(t, "openai", []script{answer("executed")}, nil)
	d.streamer.completions = []string{"<think>consider</think>\n1. Greet the user"}

	evs := collect(t, d.SendStreamRequest(context.Background(), Request{Message: userMessage("hi"), Planning: true}))

	plans := ofKind(evs, EventPlan)
	if len(plans) != 1 || plans[0].Text != "1. Greet the user" {
		t.Fatalf("plan events = %+v", plans)
	}
	planBody := d.streamer.completeBodies[0]
	if _, ok := planBody["tools"]; ok {
		t.Error("planning pre-turn should not attach tools")
	}
	sys := wireMessages(t, d.streamer.body(0))[0]["content"].(string)
	if !strings.Contains(sys, "1. Greet the user") {
		t.Errorf("system prompt should carry the plan: %q", sys)
	}
}

func TestDriver_ReadsURLs(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/html")
		_, _ = io.WriteString(w, `<html><head><title>Field Notes</title></head><body><p>The heron nests in March.</p></body></html>`)
	}))
	defer srv.Close()

	d := newTestDriver(t, "openai", []script{answer("noted")}, func(_ *Config, deps *Deps) {
		deps.Fetcher = fetch.New(nil)
	})

	evs := collect(t, d.SendStreamRequest(context.Background(), Request{
		Message: userMessage("summarize this"),
		URLs:    []string{srv.URL},
	}))

	res := ofKind(evs, EventResources)
	if len(res) != 1 || len(res[0].Resources) != 1 || res[0].Resources[0].Title != "Field Notes" {
		t.Fatalf("resources events = %+v", res)
	}
	msgs := wireMessages(t, d.streamer.body(0))
	var found bool
	for _, m := range msgs {
		if s, _ := m["content"].(string); strings.Contains(s, "heron nests in March") {
			found = true
			if m["role"] != llm.RoleUser {
				t.Errorf("page content role = %v, want user", m["role"])
			}
		}
	}
	if !found {
		t.Error("page content not injected")
	}
	finish := ofKind(evs, EventFinish)
	if len(finish) != 1 || len(finish[0].Resources) != 1 {
		t.Errorf("finish resources = %+v", finish)
	}
}
