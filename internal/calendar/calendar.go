// Package calendar reads and writes events and reminders for the
// calendar tools. [CalDAV] talks to any CalDAV server; [Memory] keeps
// entries in process.
package calendar

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
)

// Kind distinguishes calendar events from reminders.
type Kind string

const (
	KindEvent    Kind = "event"
	KindReminder Kind = "reminder"
)

// Entry is one event or reminder.
type Entry struct {
	UID      string    `json:"uid"`
	Kind     Kind      `json:"kind"`
	Title    string    `json:"title"`
	Notes    string    `json:"notes,omitempty"`
	Location string    `json:"location,omitempty"`
	Start    time.Time `json:"start"`
	// End is the event end; for reminders it is unset and Start holds
	// the due time.
	End      time.Time `json:"end,omitempty"`
	AllDay   bool      `json:"all_day,omitempty"`
	Calendar string    `json:"calendar,omitempty"`
}

// Service is a calendar backend.
type Service interface {
	// Search returns entries of the given kinds overlapping [from, to),
	// ordered by start time. No kinds means all kinds.
	Search(ctx context.Context, from, to time.Time, kinds ...Kind) ([]Entry, error)
	// Create stores a new entry and returns it with its UID set.
	Create(ctx context.Context, e Entry) (Entry, error)
}

// Validate checks an entry before it is written.
func Validate(e Entry) error {
	if strings.TrimSpace(e.Title) == "" {
		return fmt.Errorf("title is required")
	}
	if e.Start.IsZero() {
		return fmt.Errorf("start time is required")
	}
	if e.Kind == KindEvent && !e.End.IsZero() && e.End.Before(e.Start) {
		return fmt.Errorf("end time is before start time")
	}
	return nil
}

func overlaps(e Entry, from, to time.Time) bool {
	end := e.End
	if end.IsZero() {
		end = e.Start
	}
	return e.Start.Before(to) && !end.Before(from)
}

func wantKind(k Kind, kinds []Kind) bool {
	if len(kinds) == 0 {
		return true
	}
	for _, w := range kinds {
		if w == k {
			return true
		}
	}
	return false
}

func sortEntries(entries []Entry) {
	sort.SliceStable(entries, func(i, j int) bool { return entries[i].Start.Before(entries[j].Start) })
}

// Memory is an in-process [Service].
type Memory struct {
	mu      sync.Mutex
	entries []Entry
}

// NewMemory creates an empty in-memory calendar.
func NewMemory() *Memory { return &Memory{} }

func (m *Memory) Search(_ context.Context, from, to time.Time, kinds ...Kind) ([]Entry, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []Entry
	for _, e := range m.entries {
		if wantKind(e.Kind, kinds) && overlaps(e, from, to) {
			out = append(out, e)
		}
	}
	sortEntries(out)
	return out, nil
}

func (m *Memory) Create(_ context.Context, e Entry) (Entry, error) {
	if err := Validate(e); err != nil {
		return Entry{}, err
	}
	if e.UID == "" {
		e.UID = uuid.NewString()
	}
	m.mu.Lock()
	m.entries = append(m.entries, e)
	m.mu.Unlock()
	return e, nil
}

var dateLayouts = []string{
	time.RFC3339,
	"2006-01-02T15:04:05",
	"2006-01-02T15:04",
	"2006-01-02 15:04:05",
	"2006-01-02 15:04",
	"2006/01/02 15:04",
	"2006-01-02",
	"2006/01/02",
}

// ParseTime parses the date formats models commonly produce. Inputs
// without a zone are read in loc. dateOnly reports whether the input
// had no time of day.
func ParseTime(s string, loc *time.Location) (t time.Time, dateOnly bool, err error) {
	s = strings.TrimSpace(s)
	if loc == nil {
		loc = time.Local
	}
	for _, layout := range dateLayouts {
		if t, err := time.ParseInLocation(layout, s, loc); err == nil {
			return t, !strings.Contains(layout, "15"), nil
		}
	}
	return time.Time{}, false, fmt.Errorf("cannot parse date %q; use YYYY-MM-DD HH:MM", s)
}
