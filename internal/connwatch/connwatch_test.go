package connwatch

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/nugget/lumen/internal/events"
)

func fastBackoff() Backoff {
	return Backoff{
		Initial:    time.Millisecond,
		Max:        4 * time.Millisecond,
		Multiplier: 2,
		Poll:       5 * time.Millisecond,
		Timeout:    100 * time.Millisecond,
	}
}

// waitFor polls cond until it holds or a second passes.
func waitFor(t *testing.T, what string, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(time.Second)
	for !cond() {
		if time.Now().After(deadline) {
			t.Fatalf("timed out waiting for %s", what)
		}
		time.Sleep(time.Millisecond)
	}
}

func TestBackoff_Defaults(t *testing.T) {
	t.Parallel()
	b := Backoff{Initial: 5 * time.Second}.withDefaults()
	if b.Initial != 5*time.Second {
		t.Errorf("Initial = %v, want the explicit 5s", b.Initial)
	}
	if b.Max != time.Minute || b.Poll != time.Minute || b.Multiplier != 2 || b.Timeout != 10*time.Second {
		t.Errorf("defaults not applied: %+v", b)
	}

	d := DefaultBackoff()
	seq := []time.Duration{d.Initial}
	for range 6 {
		seq = append(seq, d.next(seq[len(seq)-1]))
	}
	want := []time.Duration{2, 4, 8, 16, 32, 60, 60}
	for i, w := range want {
		if seq[i] != w*time.Second {
			t.Errorf("delay[%d] = %v, want %vs", i, seq[i], int(w))
		}
	}
}

func TestManager_ReadyImmediately(t *testing.T) {
	t.Parallel()
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	bus := events.New()
	sub := bus.Subscribe(8)
	m := NewManager(bus, nil)
	defer m.Stop()

	m.Watch(ctx, "llm:openai", func(context.Context) error { return nil }, fastBackoff())
	waitFor(t, "ready", func() bool { return m.Ready("llm:openai") })

	select {
	case ev := <-sub:
		if ev.Source != events.SourceConnwatch || ev.Kind != events.KindServiceUp || ev.Data["service"] != "llm:openai" {
			t.Errorf("event = %+v", ev)
		}
	case <-time.After(time.Second):
		t.Fatal("no service_up event")
	}
	if m.Ready("unknown") {
		t.Error("unknown service reported ready")
	}
}

func TestManager_DownThenRecovers(t *testing.T) {
	t.Parallel()
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	var calls atomic.Int32
	probe := func(context.Context) error {
		if calls.Add(1) < 4 {
			return errors.New("connection refused")
		}
		return nil
	}

	bus := events.New()
	sub := bus.Subscribe(16)
	m := NewManager(bus, nil)
	defer m.Stop()

	m.Watch(ctx, "caldav", probe, fastBackoff())
	waitFor(t, "recovery", func() bool { return m.Ready("caldav") })

	var kinds []string
	for len(kinds) < 2 {
		select {
		case ev := <-sub:
			kinds = append(kinds, ev.Kind)
		case <-time.After(time.Second):
			t.Fatalf("got events %v, want down then up", kinds)
		}
	}
	if kinds[0] != events.KindServiceDown || kinds[1] != events.KindServiceUp {
		t.Errorf("events = %v, want [service_down service_up]", kinds)
	}

	st := m.Status()
	if len(st) != 1 || st[0].Failures != 0 || st[0].LastError != "" || st[0].LastCheck.IsZero() {
		t.Errorf("status after recovery = %+v", st)
	}
}

func TestManager_GoesDown(t *testing.T) {
	t.Parallel()
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	var healthy atomic.Bool
	healthy.Store(true)
	m := NewManager(nil, nil)
	defer m.Stop()

	m.Watch(ctx, "mqtt", func(context.Context) error {
		if healthy.Load() {
			return nil
		}
		return errors.New("broker gone")
	}, fastBackoff())
	waitFor(t, "ready", func() bool { return m.Ready("mqtt") })

	healthy.Store(false)
	waitFor(t, "down", func() bool { return !m.Ready("mqtt") })

	waitFor(t, "failure count", func() bool { return m.Status()[0].Failures >= 2 })
	if got := m.Status()[0].LastError; got != "broker gone" {
		t.Errorf("LastError = %q", got)
	}
}

func TestManager_ProbeTimeout(t *testing.T) {
	t.Parallel()
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	b := fastBackoff()
	b.Timeout = 10 * time.Millisecond
	m := NewManager(nil, nil)
	defer m.Stop()

	m.Watch(ctx, "slow", func(ctx context.Context) error {
		<-ctx.Done()
		return ctx.Err()
	}, b)
	waitFor(t, "timeout recorded", func() bool {
		st := m.Status()
		return len(st) == 1 && st[0].LastError != ""
	})
	if m.Ready("slow") {
		t.Error("timed-out service reported ready")
	}
}

func TestManager_ReplaceAndStop(t *testing.T) {
	t.Parallel()
	ctx := context.Background()

	var first, second atomic.Int32
	m := NewManager(nil, nil)
	m.Watch(ctx, "svc", func(context.Context) error { first.Add(1); return nil }, fastBackoff())
	waitFor(t, "first probe", func() bool { return first.Load() > 0 })

	m.Watch(ctx, "svc", func(context.Context) error { second.Add(1); return nil }, fastBackoff())
	stoppedAt := first.Load()
	waitFor(t, "second probe", func() bool { return second.Load() > 1 })
	if first.Load() != stoppedAt {
		t.Error("replaced watcher kept probing")
	}
	if len(m.Status()) != 1 {
		t.Errorf("Status() has %d entries, want 1", len(m.Status()))
	}

	m.Stop()
	after := second.Load()
	time.Sleep(20 * time.Millisecond)
	if second.Load() != after {
		t.Error("watcher still probing after Stop")
	}
}

func TestHTTPProbe(t *testing.T) {
	t.Parallel()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/chat":
			w.WriteHeader(http.StatusMethodNotAllowed)
		default:
			w.WriteHeader(http.StatusBadGateway)
		}
	}))
	defer srv.Close()

	ctx := context.Background()
	if err := HTTPProbe(srv.Client(), srv.URL+"/chat")(ctx); err != nil {
		t.Errorf("405 should count as reachable: %v", err)
	}
	if err := HTTPProbe(srv.Client(), srv.URL+"/broken")(ctx); err == nil {
		t.Error("502 should count as down")
	}
	if err := HTTPProbe(nil, "http://127.0.0.1:1/")(ctx); err == nil {
		t.Error("refused connection should count as down")
	}
}
