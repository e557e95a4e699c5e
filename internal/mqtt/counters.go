package mqtt

import (
	"sync"
	"time"

	"github.com/nugget/lumen/internal/events"
)

// Counts is a snapshot of one day's activity.
type Counts struct {
	Requests  int64     `json:"requests"`
	Completed int64     `json:"completed"`
	Cancelled int64     `json:"cancelled"`
	Failed    int64     `json:"failed"`
	ToolCalls int64     `json:"tool_calls"`
	LastTool  string    `json:"last_tool,omitempty"`
	LastDone  time.Time `json:"last_request,omitzero"`
}

// DailyCounts tallies agent events and resets at local midnight. It is
// safe for concurrent use.
type DailyCounts struct {
	mu       sync.Mutex
	c        Counts
	resetDay int // day-of-year of last reset
	loc      *time.Location
	now      func() time.Time
}

// NewDailyCounts creates a counter using loc for midnight detection. If
// loc is nil, [time.Local] is used.
func NewDailyCounts(loc *time.Location) *DailyCounts {
	if loc == nil {
		loc = time.Local
	}
	d := &DailyCounts{loc: loc, now: time.Now}
	d.resetDay = d.now().In(loc).YearDay()
	return d
}

// Observe records a bus event. Events from other sources are ignored.
func (d *DailyCounts) Observe(ev events.Event) {
	if ev.Source != events.SourceAgent {
		return
	}

	d.mu.Lock()
	defer d.mu.Unlock()
	d.maybeReset()

	switch ev.Kind {
	case events.KindRequestStart:
		d.c.Requests++
	case events.KindRequestComplete:
		d.c.Completed++
		d.c.LastDone = ev.Timestamp
	case events.KindRequestCancelled:
		d.c.Cancelled++
	case events.KindRequestFailed:
		d.c.Failed++
	case events.KindToolCall:
		d.c.ToolCalls++
		if name, ok := ev.Data["tool"].(string); ok {
			d.c.LastTool = name
		}
	}
}

// Snapshot returns today's totals after checking for midnight rollover.
func (d *DailyCounts) Snapshot() Counts {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.maybeReset()
	return d.c
}

// maybeReset zeroes the counters if the local day changed. Must be
// called with d.mu held. The last completion time survives the reset.
func (d *DailyCounts) maybeReset() {
	today := d.now().In(d.loc).YearDay()
	if today != d.resetDay {
		d.c = Counts{LastDone: d.c.LastDone}
		d.resetDay = today
	}
}
