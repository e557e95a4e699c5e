package tools

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/nugget/lumen/internal/calendar"
)

// SetCalendar backs the calendar and reminder tools.
func (r *Registry) SetCalendar(s calendar.Service) {
	r.calendar = s
}

func (r *Registry) registerCalendarTools() {
	r.Register(&Tool{
		Name:        "search_calendar_and_reminders",
		Description: "List calendar events and reminders in a date range. Dates use YYYY-MM-DD or YYYY-MM-DD HH:MM.",
		Parameters: schema(map[string]any{
			"start": prop("string", "Range start"),
			"end":   prop("string", "Range end (inclusive when a date only)"),
			"type":  map[string]any{"type": "string", "enum": []string{"event", "reminder", "all"}},
		}, "start", "end"),
		Status:  [2]string{"Checking Calendar", "正在查看日历"},
		Handler: r.handleSearchCalendar,
	})

	r.Register(&Tool{
		Name:        "write_system_event",
		Description: "Create a calendar event or a reminder. Dates use YYYY-MM-DD or YYYY-MM-DD HH:MM.",
		Parameters: schema(map[string]any{
			"type":     map[string]any{"type": "string", "enum": []string{"event", "reminder"}},
			"title":    prop("string", "Title"),
			"start":    prop("string", "Start time for events, due time for reminders"),
			"end":      prop("string", "End time for events (optional)"),
			"notes":    prop("string", "Notes"),
			"location": prop("string", "Location for events"),
		}, "type", "title", "start"),
		Status:  [2]string{"Writing to Calendar", "正在写入日历"},
		Handler: r.handleWriteEvent,
	})
}

func (r *Registry) handleSearchCalendar(ctx context.Context, args Args, env *Env) (Result, error) {
	if r.calendar == nil {
		return Result{}, unavailable("search_calendar_and_reminders", "calendar")
	}
	loc := env.loc()
	from, _, err := calendar.ParseTime(args.String("start"), loc)
	if err != nil {
		return Result{}, err
	}
	to, dateOnly, err := calendar.ParseTime(args.String("end"), loc)
	if err != nil {
		return Result{}, err
	}
	if dateOnly {
		to = to.AddDate(0, 0, 1)
	}
	if to.Before(from) {
		return Text(env.Lang.Pick("The end date is before the start date.", "结束日期早于开始日期。")), nil
	}

	var kinds []calendar.Kind
	switch args.String("type") {
	case "event":
		kinds = []calendar.Kind{calendar.KindEvent}
	case "reminder":
		kinds = []calendar.Kind{calendar.KindReminder}
	}

	entries, err := r.calendar.Search(ctx, from, to, kinds...)
	if err != nil {
		return Result{}, fmt.Errorf("calendar search: %w", err)
	}
	if len(entries) == 0 {
		return Text(env.Lang.Pick("Nothing scheduled in that range.", "该时间段内没有安排。")), nil
	}
	env.Payloads.Events = append(env.Payloads.Events, entries...)

	lines := make([]string, len(entries))
	for i, e := range entries {
		lines[i] = formatEntry(e, loc)
	}
	return Result{
		Text:  strings.Join(lines, "\n"),
		Front: env.Lang.Pick(fmt.Sprintf("Found %d items", len(entries)), fmt.Sprintf("找到 %d 项", len(entries))),
	}, nil
}

func (r *Registry) handleWriteEvent(ctx context.Context, args Args, env *Env) (Result, error) {
	if r.calendar == nil {
		return Result{}, unavailable("write_system_event", "calendar")
	}
	loc := env.loc()
	start, dateOnly, err := calendar.ParseTime(args.String("start"), loc)
	if err != nil {
		return Result{}, err
	}

	e := calendar.Entry{
		Kind:     calendar.KindEvent,
		Title:    args.String("title"),
		Notes:    args.String("notes"),
		Location: args.String("location"),
		Start:    start,
	}
	if args.String("type") == "reminder" {
		e.Kind = calendar.KindReminder
	} else {
		e.AllDay = dateOnly
		if end := args.String("end"); end != "" {
			if e.End, _, err = calendar.ParseTime(end, loc); err != nil {
				return Result{}, err
			}
		}
	}
	if err := calendar.Validate(e); err != nil {
		return Result{}, err
	}

	created, err := r.calendar.Create(ctx, e)
	if err != nil {
		return Result{}, fmt.Errorf("calendar create: %w", err)
	}
	env.Payloads.Events = append(env.Payloads.Events, created)
	return Result{
		Text:  env.Lang.Pick("Created: ", "已创建：") + formatEntry(created, loc),
		Front: env.Lang.Pick("Added ", "已添加 ") + created.Title,
	}, nil
}

func formatEntry(e calendar.Entry, loc *time.Location) string {
	layout := "2006-01-02 15:04"
	if e.AllDay {
		layout = "2006-01-02"
	}
	s := fmt.Sprintf("[%s] %s: %s", e.Kind, e.Start.In(loc).Format(layout), e.Title)
	if !e.End.IsZero() && !e.AllDay {
		s += " (until " + e.End.In(loc).Format(layout) + ")"
	}
	if e.Location != "" {
		s += " @ " + e.Location
	}
	if e.Notes != "" {
		s += " - " + e.Notes
	}
	return s
}
