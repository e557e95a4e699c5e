// Package connwatch tracks whether the assistant's optional backends
// (model endpoints, embeddings, CalDAV, search, the MQTT broker) are
// reachable.
//
// httpkit retries individual requests over sub-second blips. connwatch
// covers longer outages: each watched service is probed with
// exponential backoff while it is down and polled at a steady interval
// while it is up. Transitions are logged and published on the event
// bus, and the current picture is served by GET /health.
package connwatch

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"sort"
	"sync"
	"time"

	"github.com/nugget/lumen/internal/events"
)

// ProbeFunc checks whether a service is reachable. Nil means healthy.
type ProbeFunc func(ctx context.Context) error

// Backoff controls probe timing.
type Backoff struct {
	// Initial is the first retry delay while a service is down.
	Initial time.Duration
	// Max caps the retry delay.
	Max time.Duration
	// Multiplier grows the delay after each failed probe.
	Multiplier float64
	// Poll is the check interval while a service is up.
	Poll time.Duration
	// Timeout bounds a single probe.
	Timeout time.Duration
}

// DefaultBackoff retries at 2s, 4s, 8s ... up to a minute and polls
// healthy services every minute.
func DefaultBackoff() Backoff {
	return Backoff{
		Initial:    2 * time.Second,
		Max:        time.Minute,
		Multiplier: 2,
		Poll:       time.Minute,
		Timeout:    10 * time.Second,
	}
}

// withDefaults fills zero fields from [DefaultBackoff].
func (b Backoff) withDefaults() Backoff {
	d := DefaultBackoff()
	if b.Initial <= 0 {
		b.Initial = d.Initial
	}
	if b.Max <= 0 {
		b.Max = d.Max
	}
	if b.Multiplier < 1 {
		b.Multiplier = d.Multiplier
	}
	if b.Poll <= 0 {
		b.Poll = d.Poll
	}
	if b.Timeout <= 0 {
		b.Timeout = d.Timeout
	}
	return b
}

// next returns the delay after cur, capped at Max.
func (b Backoff) next(cur time.Duration) time.Duration {
	n := time.Duration(float64(cur) * b.Multiplier)
	if n > b.Max {
		return b.Max
	}
	return n
}

// Status is one service's health for the /health endpoint.
type Status struct {
	Name      string    `json:"name"`
	Ready     bool      `json:"ready"`
	Failures  int       `json:"failures,omitempty"`
	LastCheck time.Time `json:"last_check,omitzero"`
	LastError string    `json:"last_error,omitempty"`
}

// watcher probes one service.
type watcher struct {
	name    string
	probe   ProbeFunc
	backoff Backoff
	bus     *events.Bus
	logger  *slog.Logger
	cancel  context.CancelFunc
	done    chan struct{}

	mu     sync.Mutex
	status Status
}

func (w *watcher) snapshot() Status {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.status
}

// check runs one probe and records it. It reports the new readiness
// and whether it changed.
func (w *watcher) check(ctx context.Context) (ready, changed bool) {
	probeCtx, cancel := context.WithTimeout(ctx, w.backoff.Timeout)
	err := w.probe(probeCtx)
	cancel()

	w.mu.Lock()
	defer w.mu.Unlock()
	was := w.status.Ready
	w.status.LastCheck = time.Now()
	w.status.Ready = err == nil
	if err != nil {
		w.status.Failures++
		w.status.LastError = err.Error()
	} else {
		w.status.Failures = 0
		w.status.LastError = ""
	}
	return w.status.Ready, was != w.status.Ready
}

func (w *watcher) run(ctx context.Context) {
	defer close(w.done)

	delay := w.backoff.Initial
	first := true
	for {
		ready, changed := w.check(ctx)
		if ctx.Err() != nil {
			return
		}
		if changed || (first && !ready) {
			w.report(ready)
		}
		first = false

		wait := w.backoff.Poll
		if ready {
			delay = w.backoff.Initial
		} else {
			wait = delay
			delay = w.backoff.next(delay)
		}

		timer := time.NewTimer(wait)
		select {
		case <-ctx.Done():
			timer.Stop()
			return
		case <-timer.C:
		}
	}
}

func (w *watcher) report(ready bool) {
	st := w.snapshot()
	kind := events.KindServiceUp
	if ready {
		w.logger.Info("service reachable", "service", w.name)
	} else {
		kind = events.KindServiceDown
		w.logger.Warn("service unreachable", "service", w.name, "failures", st.Failures, "error", st.LastError)
	}
	data := map[string]any{"service": w.name}
	if !ready {
		data["error"] = st.LastError
	}
	w.bus.Publish(events.Event{Source: events.SourceConnwatch, Kind: kind, Data: data})
}

// Manager owns the watchers.
type Manager struct {
	bus    *events.Bus
	logger *slog.Logger

	mu       sync.RWMutex
	watchers map[string]*watcher
}

// NewManager creates a manager. bus may be nil.
func NewManager(bus *events.Bus, logger *slog.Logger) *Manager {
	if logger == nil {
		logger = slog.Default()
	}
	return &Manager{
		bus:      bus,
		logger:   logger.With("component", "connwatch"),
		watchers: make(map[string]*watcher),
	}
}

// Watch starts probing a service until ctx is cancelled or Stop is
// called. Watching a name twice replaces the earlier watcher.
func (m *Manager) Watch(ctx context.Context, name string, probe ProbeFunc, b Backoff) {
	if name == "" || probe == nil {
		panic("connwatch: Watch needs a name and a probe")
	}
	wctx, cancel := context.WithCancel(ctx)
	w := &watcher{
		name:    name,
		probe:   probe,
		backoff: b.withDefaults(),
		bus:     m.bus,
		logger:  m.logger,
		cancel:  cancel,
		done:    make(chan struct{}),
		status:  Status{Name: name},
	}

	m.mu.Lock()
	old := m.watchers[name]
	m.watchers[name] = w
	m.mu.Unlock()

	if old != nil {
		old.cancel()
		<-old.done
	}
	go w.run(wctx)
}

// Status returns every watched service, sorted by name.
func (m *Manager) Status() []Status {
	m.mu.RLock()
	out := make([]Status, 0, len(m.watchers))
	for _, w := range m.watchers {
		out = append(out, w.snapshot())
	}
	m.mu.RUnlock()
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out
}

// Ready reports whether the named service is up. Unknown names are not.
func (m *Manager) Ready(name string) bool {
	m.mu.RLock()
	w, ok := m.watchers[name]
	m.mu.RUnlock()
	return ok && w.snapshot().Ready
}

// Stop cancels every watcher and waits for them to exit.
func (m *Manager) Stop() {
	m.mu.RLock()
	watchers := make([]*watcher, 0, len(m.watchers))
	for _, w := range m.watchers {
		watchers = append(watchers, w)
	}
	m.mu.RUnlock()

	for _, w := range watchers {
		w.cancel()
	}
	for _, w := range watchers {
		<-w.done
	}
}

// HTTPProbe reports a service reachable when url answers with any
// status below 500. Model endpoints reject bare GETs, which still
// proves they are up.
func HTTPProbe(client *http.Client, url string) ProbeFunc {
	if client == nil {
		client = http.DefaultClient
	}
	return func(ctx context.Context) error {
		req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
		if err != nil {
			return err
		}
		resp, err := client.Do(req)
		if err != nil {
			return err
		}
		resp.Body.Close()
		if resp.StatusCode >= 500 {
			return fmt.Errorf("%s: status %d", url, resp.StatusCode)
		}
		return nil
	}
}
