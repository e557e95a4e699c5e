package api

import (
	"bufio"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/gorilla/websocket"

	"github.com/nugget/lumen/internal/agent"
	"github.com/nugget/lumen/internal/connwatch"
	"github.com/nugget/lumen/internal/events"
	"github.com/nugget/lumen/internal/tools"
)

// fakeDriver replays a fixed event list for every request.
type fakeDriver struct {
	mu        sync.Mutex
	events    []agent.Event
	requests  []agent.Request
	cancelled int
}

func (f *fakeDriver) SendStreamRequest(ctx context.Context, req agent.Request) <-chan agent.Event {
	f.mu.Lock()
	f.requests = append(f.requests, req)
	evs := append([]agent.Event(nil), f.events...)
	f.mu.Unlock()

	ch := make(chan agent.Event, len(evs))
	for _, ev := range evs {
		ch <- ev
	}
	close(ch)
	return ch
}

func (f *fakeDriver) Cancel() bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.cancelled++
	return true
}

func (f *fakeDriver) Busy() bool { return false }

func (f *fakeDriver) snapshot() ([]agent.Request, int) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]agent.Request(nil), f.requests...), f.cancelled
}

func newTestServer(t *testing.T, d *fakeDriver) (*Server, *httptest.Server) {
	t.Helper()
	s := NewServer("127.0.0.1", 0, d, nil)
	srv := httptest.NewServer(s.Handler())
	t.Cleanup(srv.Close)
	return s, srv
}

func scriptedEvents() []agent.Event {
	return []agent.Event{
		{Kind: agent.EventContent, RequestID: "r_test", Text: "Hel"},
		{Kind: agent.EventContent, RequestID: "r_test", Text: "lo"},
		{Kind: agent.EventFinish, RequestID: "r_test", FinishReason: "stop"},
	}
}

func TestStream_SSE(t *testing.T) {
	d := &fakeDriver{events: scriptedEvents()}
	_, srv := newTestServer(t, d)

	body := `{"message":{"role":"user","content":"hi"},"web_search":true}`
	resp, err := http.Post(srv.URL+"/v1/stream", "application/json", strings.NewReader(body))
	if err != nil {
		t.Fatalf("POST /v1/stream: %v", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		t.Fatalf("status = %d, want 200", resp.StatusCode)
	}
	if ct := resp.Header.Get("Content-Type"); ct != "text/event-stream" {
		t.Errorf("Content-Type = %q, want text/event-stream", ct)
	}

	var got []agent.Event
	var done bool
	scanner := bufio.NewScanner(resp.Body)
	for scanner.Scan() {
		line := scanner.Text()
		if !strings.HasPrefix(line, "data: ") {
			continue
		}
		data := strings.TrimPrefix(line, "data: ")
		if data == "[DONE]" {
			done = true
			continue
		}
		var ev agent.Event
		if err := json.Unmarshal([]byte(data), &ev); err != nil {
			t.Fatalf("bad event %q: %v", data, err)
		}
		got = append(got, ev)
	}

	if !done {
		t.Error("stream did not end with [DONE]")
	}
	if len(got) != 3 {
		t.Fatalf("got %d events, want 3", len(got))
	}
	if got[0].Text+got[1].Text != "Hello" {
		t.Errorf("content = %q, want Hello", got[0].Text+got[1].Text)
	}
	if got[2].Kind != agent.EventFinish {
		t.Errorf("last event kind = %s, want finish", got[2].Kind)
	}

	reqs, _ := d.snapshot()
	if len(reqs) != 1 || !reqs[0].WebSearch || reqs[0].Message.Content != "hi" {
		t.Errorf("driver got %+v", reqs)
	}
}

func TestStream_BadRequest(t *testing.T) {
	tests := []struct {
		name string
		body string
	}{
		{"invalid json", `{`},
		{"empty message", `{"message":{"role":"user","content":"  "}}`},
		{"canvas cursor past history", `{"message":{"role":"user","content":"edit it"},"canvas":{"title":"t","content":"bye","history":[{"title":"t","content":"bye"}],"index":3}}`},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			d := &fakeDriver{}
			_, srv := newTestServer(t, d)
			resp, err := http.Post(srv.URL+"/v1/stream", "application/json", strings.NewReader(tt.body))
			if err != nil {
				t.Fatalf("POST: %v", err)
			}
			resp.Body.Close()
			if resp.StatusCode != http.StatusBadRequest {
				t.Errorf("status = %d, want 400", resp.StatusCode)
			}
			if reqs, _ := d.snapshot(); len(reqs) != 0 {
				t.Error("driver should not be called")
			}
		})
	}
}

func TestCancel(t *testing.T) {
	d := &fakeDriver{}
	_, srv := newTestServer(t, d)

	resp, err := http.Post(srv.URL+"/v1/cancel", "application/json", nil)
	if err != nil {
		t.Fatalf("POST /v1/cancel: %v", err)
	}
	defer resp.Body.Close()

	var out map[string]bool
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if !out["cancelled"] {
		t.Error("cancelled = false, want true")
	}
	if _, n := d.snapshot(); n != 1 {
		t.Errorf("driver Cancel called %d times, want 1", n)
	}
}

func TestOperationalEndpoints(t *testing.T) {
	_, srv := newTestServer(t, &fakeDriver{})

	for _, path := range []string{"/", "/health", "/v1/version"} {
		t.Run(path, func(t *testing.T) {
			resp, err := http.Get(srv.URL + path)
			if err != nil {
				t.Fatalf("GET %s: %v", path, err)
			}
			defer resp.Body.Close()
			if resp.StatusCode != http.StatusOK {
				t.Errorf("status = %d, want 200", resp.StatusCode)
			}
			var out map[string]any
			if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
				t.Errorf("decode: %v", err)
			}
		})
	}
}

func TestTools(t *testing.T) {
	s, srv := newTestServer(t, &fakeDriver{})
	s.SetTools(tools.NewRegistry(nil), func(name string) bool { return name != "execute_python_code" })

	resp, err := http.Get(srv.URL + "/v1/tools")
	if err != nil {
		t.Fatalf("GET /v1/tools: %v", err)
	}
	defer resp.Body.Close()

	var out struct {
		Tools []toolInfo `json:"tools"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if len(out.Tools) != 22 {
		t.Errorf("got %d tools, want 22", len(out.Tools))
	}
	for _, ti := range out.Tools {
		if ti.Name == "execute_python_code" {
			t.Error("disabled tool listed")
		}
		if ti.Description == "" {
			t.Errorf("tool %s has no description", ti.Name)
		}
	}
}

func wsURL(srv *httptest.Server, path string) string {
	return "ws" + strings.TrimPrefix(srv.URL, "http") + path
}

func TestWebSocket_Request(t *testing.T) {
	d := &fakeDriver{events: scriptedEvents()}
	_, srv := newTestServer(t, d)

	c, _, err := websocket.DefaultDialer.Dial(wsURL(srv, "/v1/ws"), nil)
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	defer c.Close()

	if err := c.WriteJSON(map[string]any{
		"type":    "request",
		"request": map[string]any{"message": map[string]any{"role": "user", "content": "hi"}},
	}); err != nil {
		t.Fatalf("write: %v", err)
	}

	_ = c.SetReadDeadline(time.Now().Add(5 * time.Second))
	var got []agent.Event
	for len(got) < 3 {
		var ev agent.Event
		if err := c.ReadJSON(&ev); err != nil {
			t.Fatalf("read after %d events: %v", len(got), err)
		}
		got = append(got, ev)
	}
	if got[2].Kind != agent.EventFinish {
		t.Errorf("last event = %s, want finish", got[2].Kind)
	}

	if err := c.WriteJSON(map[string]any{"type": "bogus"}); err != nil {
		t.Fatalf("write: %v", err)
	}
	var ev agent.Event
	if err := c.ReadJSON(&ev); err != nil {
		t.Fatalf("read: %v", err)
	}
	if ev.Kind != agent.EventError || !strings.Contains(ev.Error, "bogus") {
		t.Errorf("unknown frame reply = %+v", ev)
	}
}

func TestWebSocket_Cancel(t *testing.T) {
	d := &fakeDriver{}
	_, srv := newTestServer(t, d)

	c, _, err := websocket.DefaultDialer.Dial(wsURL(srv, "/v1/ws"), nil)
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	defer c.Close()

	if err := c.WriteJSON(map[string]string{"type": "cancel"}); err != nil {
		t.Fatalf("write: %v", err)
	}

	deadline := time.Now().Add(5 * time.Second)
	for {
		if _, n := d.snapshot(); n == 1 {
			break
		}
		if time.Now().After(deadline) {
			t.Fatal("cancel frame never reached the driver")
		}
		time.Sleep(10 * time.Millisecond)
	}
}

func TestEvents_Mirror(t *testing.T) {
	s, srv := newTestServer(t, &fakeDriver{})
	bus := events.New()
	s.SetEventBus(bus)

	c, _, err := websocket.DefaultDialer.Dial(wsURL(srv, "/v1/events"), nil)
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	defer c.Close()

	deadline := time.Now().Add(5 * time.Second)
	for bus.SubscriberCount() == 0 {
		if time.Now().After(deadline) {
			t.Fatal("handler never subscribed")
		}
		time.Sleep(10 * time.Millisecond)
	}

	bus.Publish(events.Event{
		Timestamp: time.Now(),
		Source:    events.SourceAgent,
		Kind:      events.KindToolCall,
		Data:      map[string]any{"tool": "query_weather"},
	})

	_ = c.SetReadDeadline(time.Now().Add(5 * time.Second))
	var ev events.Event
	if err := c.ReadJSON(&ev); err != nil {
		t.Fatalf("read: %v", err)
	}
	if ev.Kind != events.KindToolCall || ev.Data["tool"] != "query_weather" {
		t.Errorf("mirrored event = %+v", ev)
	}
}

func TestEvents_NoBus(t *testing.T) {
	_, srv := newTestServer(t, &fakeDriver{})
	resp, err := http.Get(srv.URL + "/v1/events")
	if err != nil {
		t.Fatalf("GET: %v", err)
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusServiceUnavailable {
		t.Errorf("status = %d, want 503", resp.StatusCode)
	}
}

type fakeServices []connwatch.Status

func (f fakeServices) Status() []connwatch.Status { return f }

func TestHealth_Services(t *testing.T) {
	s, srv := newTestServer(t, &fakeDriver{})
	s.SetServices(fakeServices{
		{Name: "llm:openai", Ready: true},
		{Name: "caldav", Ready: false, LastError: "connection refused"},
	})

	resp, err := http.Get(srv.URL + "/health")
	if err != nil {
		t.Fatalf("GET /health: %v", err)
	}
	defer resp.Body.Close()

	var out struct {
		Status   string             `json:"status"`
		Services []connwatch.Status `json:"services"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if out.Status != "degraded" {
		t.Errorf("status = %q, want degraded", out.Status)
	}
	if len(out.Services) != 2 || out.Services[1].LastError != "connection refused" {
		t.Errorf("services = %+v", out.Services)
	}
}
