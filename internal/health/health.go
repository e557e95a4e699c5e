// Package health stores personal health samples (steps, energy,
// nutrition) and aggregates them into hourly or meal-time buckets for
// the assistant's health tools.
package health

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/google/uuid"
	_ "github.com/mattn/go-sqlite3"
)

// Kind identifies a sample type.
type Kind string

const (
	KindSteps         Kind = "steps"
	KindActiveEnergy  Kind = "active_energy"
	KindBasalEnergy   Kind = "basal_energy"
	KindDietaryEnergy Kind = "dietary_energy"
	KindProtein       Kind = "protein"
	KindCarbohydrates Kind = "carbohydrates"
	KindFat           Kind = "fat"
)

// Unit returns the unit a kind is stored in.
func (k Kind) Unit() string {
	switch k {
	case KindSteps:
		return "count"
	case KindActiveEnergy, KindBasalEnergy, KindDietaryEnergy:
		return "kcal"
	default:
		return "g"
	}
}

// Range errors.
var (
	ErrFutureRange   = errors.New("range ends in the future")
	ErrInvertedRange = errors.New("range start is after its end")
)

// Sample is one measured or logged quantity over an interval.
type Sample struct {
	ID     uuid.UUID `json:"id"`
	Kind   Kind      `json:"kind"`
	Value  float64   `json:"value"`
	Start  time.Time `json:"start"`
	End    time.Time `json:"end"`
	Label  string    `json:"label,omitempty"` // food name for nutrition samples
	Source string    `json:"source,omitempty"`
}

// Store persists samples in SQLite.
type Store struct {
	db  *sql.DB
	now func() time.Time
}

// NewStore opens (or creates) a health database at dbPath.
func NewStore(dbPath string) (*Store, error) {
	db, err := sql.Open("sqlite3", dbPath)
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}
	s, err := NewStoreWithDB(db)
	if err != nil {
		db.Close()
		return nil, err
	}
	return s, nil
}

// NewStoreWithDB creates a store on an existing connection.
func NewStoreWithDB(db *sql.DB) (*Store, error) {
	s := &Store{db: db, now: time.Now}
	if err := s.migrate(); err != nil {
		return nil, fmt.Errorf("migrate: %w", err)
	}
	return s, nil
}

func (s *Store) migrate() error {
	_, err := s.db.Exec(`
		CREATE TABLE IF NOT EXISTS samples (
			id TEXT PRIMARY KEY,
			kind TEXT NOT NULL,
			value REAL NOT NULL,
			start_at TEXT NOT NULL,
			end_at TEXT NOT NULL,
			label TEXT NOT NULL DEFAULT '',
			source TEXT NOT NULL DEFAULT ''
		);
		CREATE INDEX IF NOT EXISTS idx_samples_kind_start ON samples(kind, start_at);
	`)
	return err
}

// Close closes the database.
func (s *Store) Close() error {
	return s.db.Close()
}

// CheckRange rejects ranges that end after now or start after they end.
func CheckRange(start, end, now time.Time) error {
	if end.After(now) {
		return ErrFutureRange
	}
	if start.After(end) {
		return ErrInvertedRange
	}
	return nil
}

// Record stores a sample. A zero End means an instantaneous sample.
func (s *Store) Record(ctx context.Context, smp Sample) (Sample, error) {
	if smp.Kind == "" {
		return smp, fmt.Errorf("sample kind is required")
	}
	if smp.Value < 0 {
		return smp, fmt.Errorf("sample value must not be negative")
	}
	if smp.Start.IsZero() {
		smp.Start = s.now()
	}
	if smp.End.IsZero() {
		smp.End = smp.Start
	}
	if smp.End.Before(smp.Start) {
		return smp, ErrInvertedRange
	}
	if smp.ID == uuid.Nil {
		id, err := uuid.NewV7()
		if err != nil {
			return smp, fmt.Errorf("generate id: %w", err)
		}
		smp.ID = id
	}
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO samples (id, kind, value, start_at, end_at, label, source)
		VALUES (?, ?, ?, ?, ?, ?, ?)
	`, smp.ID.String(), string(smp.Kind), smp.Value,
		smp.Start.UTC().Format(time.RFC3339), smp.End.UTC().Format(time.RFC3339),
		smp.Label, smp.Source)
	if err != nil {
		return smp, fmt.Errorf("insert sample: %w", err)
	}
	return smp, nil
}

// Samples returns samples of the given kinds whose start lies in
// [start, end], ordered by start.
func (s *Store) Samples(ctx context.Context, start, end time.Time, kinds ...Kind) ([]Sample, error) {
	if len(kinds) == 0 {
		return nil, nil
	}
	args := []any{start.UTC().Format(time.RFC3339), end.UTC().Format(time.RFC3339)}
	marks := make([]string, len(kinds))
	for i, k := range kinds {
		marks[i] = "?"
		args = append(args, string(k))
	}
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, kind, value, start_at, end_at, label, source FROM samples
		WHERE start_at >= ? AND start_at <= ? AND kind IN (`+strings.Join(marks, ",")+`)
		ORDER BY start_at
	`, args...)
	if err != nil {
		return nil, fmt.Errorf("query samples: %w", err)
	}
	defer rows.Close()

	var out []Sample
	for rows.Next() {
		var smp Sample
		var id, kind, st, en string
		if err := rows.Scan(&id, &kind, &smp.Value, &st, &en, &smp.Label, &smp.Source); err != nil {
			return nil, err
		}
		smp.ID, _ = uuid.Parse(id)
		smp.Kind = Kind(kind)
		smp.Start, _ = time.Parse(time.RFC3339, st)
		smp.End, _ = time.Parse(time.RFC3339, en)
		out = append(out, smp)
	}
	return out, rows.Err()
}

// Bucket is an aggregated slice of a range.
type Bucket struct {
	Start  time.Time        `json:"start"`
	Label  string           `json:"label"`
	Totals map[Kind]float64 `json:"totals"`
}

// Card is the structured result handed to the client for display.
type Card struct {
	Title   string           `json:"title"`
	Start   time.Time        `json:"start"`
	End     time.Time        `json:"end"`
	Totals  map[Kind]float64 `json:"totals"`
	Buckets []Bucket         `json:"buckets"`
}

// Hourly aggregates kinds into one bucket per hour in loc. Hours
// without samples are omitted.
func (s *Store) Hourly(ctx context.Context, start, end time.Time, loc *time.Location, kinds ...Kind) (*Card, error) {
	if err := CheckRange(start, end, s.now()); err != nil {
		return nil, err
	}
	if loc == nil {
		loc = time.Local
	}
	samples, err := s.Samples(ctx, start, end, kinds...)
	if err != nil {
		return nil, err
	}
	return aggregate(start, end, samples, func(t time.Time) (time.Time, string) {
		t = t.In(loc)
		h := time.Date(t.Year(), t.Month(), t.Day(), t.Hour(), 0, 0, 0, loc)
		return h, h.Format("Jan 2 15:00")
	}), nil
}

// ByMeal aggregates kinds into meal segments per day in loc.
func (s *Store) ByMeal(ctx context.Context, start, end time.Time, loc *time.Location, kinds ...Kind) (*Card, error) {
	if err := CheckRange(start, end, s.now()); err != nil {
		return nil, err
	}
	if loc == nil {
		loc = time.Local
	}
	samples, err := s.Samples(ctx, start, end, kinds...)
	if err != nil {
		return nil, err
	}
	return aggregate(start, end, samples, func(t time.Time) (time.Time, string) {
		t = t.In(loc)
		meal, hour := MealSegment(t)
		key := time.Date(t.Year(), t.Month(), t.Day(), hour, 0, 0, 0, loc)
		return key, key.Format("Jan 2") + " " + meal
	}), nil
}

func aggregate(start, end time.Time, samples []Sample, key func(time.Time) (time.Time, string)) *Card {
	card := &Card{Start: start, End: end, Totals: map[Kind]float64{}}
	idx := map[time.Time]int{}
	for _, smp := range samples {
		k, label := key(smp.Start)
		i, ok := idx[k]
		if !ok {
			i = len(card.Buckets)
			idx[k] = i
			card.Buckets = append(card.Buckets, Bucket{Start: k, Label: label, Totals: map[Kind]float64{}})
		}
		card.Buckets[i].Totals[smp.Kind] += smp.Value
		card.Totals[smp.Kind] += smp.Value
	}
	sort.Slice(card.Buckets, func(i, j int) bool { return card.Buckets[i].Start.Before(card.Buckets[j].Start) })
	return card
}

// Meal segments.
const (
	MealBreakfast = "breakfast"
	MealLunch     = "lunch"
	MealDinner    = "dinner"
	MealSnack     = "snack"
)

// MealSegment names the meal a time of day falls in and the hour the
// segment starts. Breakfast is 05-10, lunch 10-15, dinner 17-21; the
// rest of the day counts as snacks.
func MealSegment(t time.Time) (string, int) {
	h := t.Hour()
	switch {
	case h >= 5 && h < 10:
		return MealBreakfast, 5
	case h >= 10 && h < 15:
		return MealLunch, 10
	case h >= 17 && h < 21:
		return MealDinner, 17
	case h >= 15 && h < 17:
		return MealSnack, 15
	case h >= 21:
		return MealSnack, 21
	default:
		return MealSnack, 0
	}
}

// Food is one logged food item.
type Food struct {
	Name          string    `json:"name"`
	Time          time.Time `json:"time"`
	Energy        float64   `json:"energy"` // kcal
	Protein       float64   `json:"protein"`
	Carbohydrates float64   `json:"carbohydrates"`
	Fat           float64   `json:"fat"`
}

// RecordFood stores the nutrients of a food item as individual samples.
// Zero-valued nutrients are skipped.
func (s *Store) RecordFood(ctx context.Context, f Food) ([]Sample, error) {
	if strings.TrimSpace(f.Name) == "" {
		return nil, fmt.Errorf("food name is required")
	}
	if f.Time.IsZero() {
		f.Time = s.now()
	}
	if f.Time.After(s.now()) {
		return nil, ErrFutureRange
	}
	var out []Sample
	for _, n := range []struct {
		kind  Kind
		value float64
	}{
		{KindDietaryEnergy, f.Energy},
		{KindProtein, f.Protein},
		{KindCarbohydrates, f.Carbohydrates},
		{KindFat, f.Fat},
	} {
		if n.value == 0 {
			continue
		}
		smp, err := s.Record(ctx, Sample{Kind: n.kind, Value: n.value, Start: f.Time, Label: f.Name, Source: "lumen"})
		if err != nil {
			return out, err
		}
		out = append(out, smp)
	}
	if len(out) == 0 {
		return nil, fmt.Errorf("no nutrient values for %q", f.Name)
	}
	return out, nil
}
