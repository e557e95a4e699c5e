package calendar

import (
	"context"
	"fmt"
	"log/slog"
	"path"
	"strings"
	"sync"
	"time"

	"github.com/emersion/go-ical"
	"github.com/emersion/go-webdav"
	"github.com/emersion/go-webdav/caldav"
	"github.com/google/uuid"

	"github.com/nugget/lumen/internal/buildinfo"
	"github.com/nugget/lumen/internal/httpkit"
)

// CalDAVConfig configures a CalDAV account.
type CalDAVConfig struct {
	URL      string
	Username string
	Password string
	Logger   *slog.Logger
}

// CalDAV implements [Service] against a CalDAV server. Calendars are
// discovered on first use: VEVENT calendars hold events and VTODO
// calendars hold reminders.
type CalDAV struct {
	client *caldav.Client
	logger *slog.Logger

	mu        sync.Mutex
	calendars []caldav.Calendar
}

// NewCalDAV creates a CalDAV-backed calendar service.
func NewCalDAV(cfg CalDAVConfig) (*CalDAV, error) {
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	var hc webdav.HTTPClient = httpkit.NewClient(httpkit.WithTimeout(20 * time.Second))
	if cfg.Username != "" {
		hc = webdav.HTTPClientWithBasicAuth(hc, cfg.Username, cfg.Password)
	}
	client, err := caldav.NewClient(hc, cfg.URL)
	if err != nil {
		return nil, fmt.Errorf("create caldav client: %w", err)
	}
	return &CalDAV{client: client, logger: logger.With("component", "calendar")}, nil
}

func (c *CalDAV) discover(ctx context.Context) ([]caldav.Calendar, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.calendars != nil {
		return c.calendars, nil
	}

	principal, err := c.client.FindCurrentUserPrincipal(ctx)
	if err != nil {
		return nil, fmt.Errorf("find principal: %w", err)
	}
	home, err := c.client.FindCalendarHomeSet(ctx, principal)
	if err != nil {
		return nil, fmt.Errorf("find calendar home: %w", err)
	}
	cals, err := c.client.FindCalendars(ctx, home)
	if err != nil {
		return nil, fmt.Errorf("find calendars: %w", err)
	}

	c.logger.Info("calendars discovered", "home", home, "count", len(cals))
	c.calendars = cals
	return cals, nil
}

func supports(cal caldav.Calendar, comp string) bool {
	if len(cal.SupportedComponentSet) == 0 {
		return comp == ical.CompEvent
	}
	for _, s := range cal.SupportedComponentSet {
		if strings.EqualFold(s, comp) {
			return true
		}
	}
	return false
}

func compFor(k Kind) string {
	if k == KindReminder {
		return ical.CompToDo
	}
	return ical.CompEvent
}

// Search queries every calendar supporting the requested kinds.
func (c *CalDAV) Search(ctx context.Context, from, to time.Time, kinds ...Kind) ([]Entry, error) {
	cals, err := c.discover(ctx)
	if err != nil {
		return nil, err
	}
	if len(kinds) == 0 {
		kinds = []Kind{KindEvent, KindReminder}
	}

	var out []Entry
	for _, k := range kinds {
		comp := compFor(k)
		query := &caldav.CalendarQuery{
			CompRequest: caldav.CalendarCompRequest{
				Name:  ical.CompCalendar,
				Comps: []caldav.CalendarCompRequest{{Name: comp, AllProps: true}},
			},
			CompFilter: caldav.CompFilter{
				Name:  ical.CompCalendar,
				Comps: []caldav.CompFilter{{Name: comp, Start: from.UTC(), End: to.UTC()}},
			},
		}
		for _, cal := range cals {
			if !supports(cal, comp) {
				continue
			}
			objs, err := c.client.QueryCalendar(ctx, cal.Path, query)
			if err != nil {
				return nil, fmt.Errorf("query %s: %w", cal.Name, err)
			}
			for _, obj := range objs {
				for _, e := range entriesFrom(obj.Data, time.Local) {
					e.Calendar = cal.Name
					if e.Kind == k && overlaps(e, from, to) {
						out = append(out, e)
					}
				}
			}
		}
	}
	sortEntries(out)
	return out, nil
}

// Create writes the entry to the first calendar supporting its kind.
func (c *CalDAV) Create(ctx context.Context, e Entry) (Entry, error) {
	if err := Validate(e); err != nil {
		return Entry{}, err
	}
	cals, err := c.discover(ctx)
	if err != nil {
		return Entry{}, err
	}
	comp := compFor(e.Kind)
	for _, cal := range cals {
		if !supports(cal, comp) {
			continue
		}
		if e.UID == "" {
			e.UID = uuid.NewString()
		}
		p := path.Join(cal.Path, e.UID+".ics")
		if _, err := c.client.PutCalendarObject(ctx, p, toCalendar(e)); err != nil {
			return Entry{}, fmt.Errorf("put %s: %w", p, err)
		}
		e.Calendar = cal.Name
		c.logger.Info("calendar entry created", "kind", e.Kind, "calendar", cal.Name, "uid", e.UID)
		return e, nil
	}
	return Entry{}, fmt.Errorf("no calendar supports %s", comp)
}

// toCalendar renders an entry as a single-component iCalendar object.
func toCalendar(e Entry) *ical.Calendar {
	cal := ical.NewCalendar()
	cal.Props.SetText(ical.PropVersion, "2.0")
	cal.Props.SetText(ical.PropProductID, "-//Lumen//"+buildinfo.Version+"//EN")

	var comp *ical.Component
	if e.Kind == KindReminder {
		comp = ical.NewComponent(ical.CompToDo)
		comp.Props.SetDateTime(ical.PropDue, e.Start)
	} else {
		comp = ical.NewEvent().Component
		if e.AllDay {
			comp.Props.SetDate(ical.PropDateTimeStart, e.Start)
			end := e.End
			if end.IsZero() {
				end = e.Start.AddDate(0, 0, 1)
			}
			comp.Props.SetDate(ical.PropDateTimeEnd, end)
		} else {
			comp.Props.SetDateTime(ical.PropDateTimeStart, e.Start)
			end := e.End
			if end.IsZero() {
				end = e.Start.Add(time.Hour)
			}
			comp.Props.SetDateTime(ical.PropDateTimeEnd, end)
		}
	}
	comp.Props.SetText(ical.PropUID, e.UID)
	comp.Props.SetDateTime(ical.PropDateTimeStamp, time.Now().UTC())
	comp.Props.SetText(ical.PropSummary, e.Title)
	if e.Notes != "" {
		comp.Props.SetText(ical.PropDescription, e.Notes)
	}
	if e.Location != "" {
		comp.Props.SetText(ical.PropLocation, e.Location)
	}
	cal.Children = append(cal.Children, comp)
	return cal
}

// entriesFrom extracts events and to-dos from an iCalendar object.
// Components with unparseable dates are skipped.
func entriesFrom(cal *ical.Calendar, loc *time.Location) []Entry {
	if cal == nil {
		return nil
	}
	var out []Entry
	for _, comp := range cal.Children {
		e := Entry{
			UID:      propText(comp, ical.PropUID),
			Title:    propText(comp, ical.PropSummary),
			Notes:    propText(comp, ical.PropDescription),
			Location: propText(comp, ical.PropLocation),
		}
		switch comp.Name {
		case ical.CompEvent:
			e.Kind = KindEvent
			start, err := propTime(comp, ical.PropDateTimeStart, loc)
			if err != nil {
				continue
			}
			e.Start = start
			e.End, _ = propTime(comp, ical.PropDateTimeEnd, loc)
			if p := comp.Props.Get(ical.PropDateTimeStart); p != nil && p.ValueType() == ical.ValueDate {
				e.AllDay = true
			}
		case ical.CompToDo:
			e.Kind = KindReminder
			due, err := propTime(comp, ical.PropDue, loc)
			if err != nil {
				continue
			}
			e.Start = due
		default:
			continue
		}
		out = append(out, e)
	}
	return out
}

func propText(comp *ical.Component, name string) string {
	s, _ := comp.Props.Text(name)
	return s
}

func propTime(comp *ical.Component, name string, loc *time.Location) (time.Time, error) {
	p := comp.Props.Get(name)
	if p == nil {
		return time.Time{}, fmt.Errorf("missing %s", name)
	}
	return p.DateTime(loc)
}
