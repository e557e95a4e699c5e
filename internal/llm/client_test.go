package llm

import (
	"context"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
)

func TestClient_Stream(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if got := r.Header.Get("Authorization"); got != "Bearer sk-test" {
			t.Errorf("Authorization = %q", got)
		}
		w.Header().Set("Content-Type", "text/event-stream")
		io.WriteString(w, "data: {\"choices\":[{\"delta\":{\"content\":\"Hi\"}}]}\n\n")
		io.WriteString(w, "data: {\"choices\":[{\"delta\":{},\"finish_reason\":\"stop\"}]}\n\n")
		io.WriteString(w, "data: [DONE]\n\n")
	}))
	defer srv.Close()

	c := NewClient(nil)
	body, err := c.Stream(context.Background(), srv.URL, "sk-test", map[string]any{"model": "m"})
	if err != nil {
		t.Fatalf("Stream: %v", err)
	}
	defer body.Close()

	d := NewDecoder(DecoderOptions{})
	var deltas []Delta
	err = ScanLines(context.Background(), body, func(line string) bool {
		deltas = append(deltas, d.Decode(line)...)
		return true
	})
	if err != nil {
		t.Fatalf("ScanLines: %v", err)
	}
	if collect(deltas, DeltaContent) != "Hi" {
		t.Errorf("deltas = %+v", deltas)
	}
	if last := deltas[len(deltas)-1]; last.Kind != DeltaFinish || last.FinishReason != FinishStop {
		t.Errorf("last delta = %+v", last)
	}
}

func TestClient_StreamHTTPError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "quota exceeded", http.StatusTooManyRequests)
	}))
	defer srv.Close()

	_, err := NewClient(nil).Stream(context.Background(), srv.URL, "", map[string]any{})
	var httpErr *HTTPError
	if !errors.As(err, &httpErr) {
		t.Fatalf("err = %v, want *HTTPError", err)
	}
	if httpErr.StatusCode != http.StatusTooManyRequests || !strings.Contains(httpErr.Body, "quota exceeded") {
		t.Errorf("httpErr = %+v", httpErr)
	}
}

func TestClient_Complete(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		io.WriteString(w, `{"choices":[{"message":{"role":"assistant","content":"A short title"}}]}`)
	}))
	defer srv.Close()

	got, err := NewClient(nil).Complete(context.Background(), srv.URL, "k", map[string]any{})
	if err != nil {
		t.Fatalf("Complete: %v", err)
	}
	if got != "A short title" {
		t.Errorf("got %q", got)
	}
}

func TestScanLines_StopsOnFalse(t *testing.T) {
	var n int
	err := ScanLines(context.Background(), strings.NewReader("a\nb\nc\n"), func(string) bool {
		n++
		return n < 2
	})
	if err != nil || n != 2 {
		t.Errorf("n = %d, err = %v", n, err)
	}
}

func TestScanLines_Cancelled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	var n int
	err := ScanLines(ctx, strings.NewReader("a\nb\n"), func(string) bool { n++; return true })
	if err != nil || n != 0 {
		t.Errorf("n = %d, err = %v", n, err)
	}
}
