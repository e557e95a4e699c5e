// Package memory stores short personal facts the user asks the
// assistant to remember, and retrieves them with a hybrid lexical
// score that tolerates synonyms, typos and partial wording.
package memory

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	_ "github.com/mattn/go-sqlite3"

	"github.com/nugget/lumen/internal/lexical"
)

var (
	// ErrNotFound is returned when a memory ID does not exist.
	ErrNotFound = errors.New("memory not found")

	// ErrDuplicate is returned by Update when another memory already
	// holds the same text.
	ErrDuplicate = errors.New("another memory has the same content")
)

// Memory is one remembered item.
type Memory struct {
	ID        uuid.UUID `json:"id"`
	Content   string    `json:"content"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// Store keeps memories in a SQLite table. Each row also carries a
// normalized copy of its content, unique across the table, so saving
// the same fact twice is a lookup.
type Store struct {
	db       *sql.DB
	synonyms lexical.Synonyms
}

// NewStore opens the memory database at dbPath, creating it if needed.
func NewStore(dbPath string) (*Store, error) {
	db, err := sql.Open("sqlite3", dbPath)
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}
	s, err := NewStoreWithDB(db)
	if err != nil {
		_ = db.Close()
		return nil, err
	}
	return s, nil
}

// NewStoreWithDB uses an already open database.
func NewStoreWithDB(db *sql.DB) (*Store, error) {
	const schema = `
		CREATE TABLE IF NOT EXISTS memories (
			id         TEXT PRIMARY KEY,
			content    TEXT NOT NULL,
			norm       TEXT NOT NULL UNIQUE,
			created_ms INTEGER NOT NULL,
			updated_ms INTEGER NOT NULL
		);
		CREATE INDEX IF NOT EXISTS memories_by_update ON memories(updated_ms DESC);`
	if _, err := db.Exec(schema); err != nil {
		return nil, fmt.Errorf("create schema: %w", err)
	}
	return &Store{db: db, synonyms: lexical.DefaultSynonyms()}, nil
}

// SetSynonyms replaces the synonym table used for retrieval.
func (s *Store) SetSynonyms(syn lexical.Synonyms) { s.synonyms = syn }

// Close closes the database.
func (s *Store) Close() error { return s.db.Close() }

// normalize folds case and inner whitespace.
func normalize(content string) string {
	return strings.ToLower(strings.Join(strings.Fields(content), " "))
}

const selectMemory = `SELECT id, content, created_ms, updated_ms FROM memories`

// Save stores content as a new memory. If a memory with the same
// normalized text exists it is returned unchanged.
func (s *Store) Save(ctx context.Context, content string) (*Memory, error) {
	content = strings.TrimSpace(content)
	if content == "" {
		return nil, errors.New("content is required")
	}
	norm := normalize(content)

	existing, err := scanMemory(s.db.QueryRowContext(ctx, selectMemory+` WHERE norm = ?`, norm))
	switch {
	case err == nil:
		return existing, nil
	case !errors.Is(err, sql.ErrNoRows):
		return nil, fmt.Errorf("lookup: %w", err)
	}

	id, err := uuid.NewV7()
	if err != nil {
		return nil, fmt.Errorf("generate id: %w", err)
	}
	now := time.Now().UTC().Truncate(time.Millisecond)
	if _, err := s.db.ExecContext(ctx,
		`INSERT INTO memories (id, content, norm, created_ms, updated_ms) VALUES (?, ?, ?, ?, ?)`,
		id.String(), content, norm, now.UnixMilli(), now.UnixMilli()); err != nil {
		return nil, fmt.Errorf("insert: %w", err)
	}
	return &Memory{ID: id, Content: content, CreatedAt: now, UpdatedAt: now}, nil
}

// Update replaces a memory's content.
func (s *Store) Update(ctx context.Context, id uuid.UUID, content string) (*Memory, error) {
	content = strings.TrimSpace(content)
	if content == "" {
		return nil, errors.New("content is required")
	}
	norm := normalize(content)

	var other string
	err := s.db.QueryRowContext(ctx, `SELECT id FROM memories WHERE norm = ? AND id <> ?`, norm, id.String()).Scan(&other)
	if err == nil {
		return nil, ErrDuplicate
	}
	if !errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("lookup: %w", err)
	}

	res, err := s.db.ExecContext(ctx,
		`UPDATE memories SET content = ?, norm = ?, updated_ms = ? WHERE id = ?`,
		content, norm, time.Now().UnixMilli(), id.String())
	if err != nil {
		return nil, fmt.Errorf("update: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return nil, ErrNotFound
	}
	return s.Get(ctx, id)
}

// Delete removes a memory.
func (s *Store) Delete(ctx context.Context, id uuid.UUID) error {
	res, err := s.db.ExecContext(ctx, `DELETE FROM memories WHERE id = ?`, id.String())
	if err != nil {
		return fmt.Errorf("delete: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrNotFound
	}
	return nil
}

// Get returns one memory.
func (s *Store) Get(ctx context.Context, id uuid.UUID) (*Memory, error) {
	m, err := scanMemory(s.db.QueryRowContext(ctx, selectMemory+` WHERE id = ?`, id.String()))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	return m, err
}

// All returns every memory, most recently updated first.
func (s *Store) All(ctx context.Context) ([]*Memory, error) {
	rows, err := s.db.QueryContext(ctx, selectMemory+` ORDER BY updated_ms DESC`)
	if err != nil {
		return nil, fmt.Errorf("query: %w", err)
	}
	defer rows.Close()

	var out []*Memory
	for rows.Next() {
		m, err := scanMemory(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, m)
	}
	return out, rows.Err()
}

// Count returns the number of stored memories.
func (s *Store) Count(ctx context.Context) (int, error) {
	var n int
	err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM memories`).Scan(&n)
	return n, err
}

func scanMemory(row interface{ Scan(...any) error }) (*Memory, error) {
	var (
		m                Memory
		id               string
		created, updated int64
	)
	if err := row.Scan(&id, &m.Content, &created, &updated); err != nil {
		return nil, err
	}
	parsed, err := uuid.Parse(id)
	if err != nil {
		return nil, fmt.Errorf("parse id %q: %w", id, err)
	}
	m.ID = parsed
	m.CreatedAt = time.UnixMilli(created).UTC()
	m.UpdatedAt = time.UnixMilli(updated).UTC()
	return &m, nil
}
