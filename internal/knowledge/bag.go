// Package knowledge is the local knowledge bag: user documents split
// into chunks, embedded, and searched with a blend of vector and
// lexical similarity.
package knowledge

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"strings"
	"time"

	"github.com/google/uuid"
	_ "github.com/mattn/go-sqlite3"

	"github.com/nugget/lumen/internal/embeddings"
	"github.com/nugget/lumen/internal/lexical"
)

// ChunkSize is the target chunk length in characters.
const ChunkSize = 800

// ErrNotFound is returned when a document does not exist.
var ErrNotFound = errors.New("document not found")

// Document is one ingested source.
type Document struct {
	ID        uuid.UUID `json:"id"`
	Title     string    `json:"title"`
	Chunks    int       `json:"chunks"`
	CreatedAt time.Time `json:"created_at"`
}

// Hit is a chunk matching a query.
type Hit struct {
	DocID uuid.UUID `json:"doc_id"`
	Title string    `json:"title"`
	Text  string    `json:"text"`
	Score float64   `json:"score"`
}

// Bag stores documents and their chunk embeddings in SQLite.
type Bag struct {
	db       *sql.DB
	embedder embeddings.Embedder
	synonyms lexical.Synonyms
	logger   *slog.Logger
}

// NewBag opens (or creates) a knowledge database at dbPath.
func NewBag(dbPath string, embedder embeddings.Embedder, logger *slog.Logger) (*Bag, error) {
	db, err := sql.Open("sqlite3", dbPath)
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}
	b, err := NewBagWithDB(db, embedder, logger)
	if err != nil {
		db.Close()
		return nil, err
	}
	return b, nil
}

// NewBagWithDB creates a bag on an existing connection.
func NewBagWithDB(db *sql.DB, embedder embeddings.Embedder, logger *slog.Logger) (*Bag, error) {
	if embedder == nil {
		return nil, fmt.Errorf("embedder is required")
	}
	if logger == nil {
		logger = slog.Default()
	}
	b := &Bag{
		db:       db,
		embedder: embedder,
		synonyms: lexical.DefaultSynonyms(),
		logger:   logger.With("component", "knowledge"),
	}
	if err := b.migrate(); err != nil {
		return nil, fmt.Errorf("migrate: %w", err)
	}
	return b, nil
}

func (b *Bag) migrate() error {
	_, err := b.db.Exec(`
		CREATE TABLE IF NOT EXISTS documents (
			id TEXT PRIMARY KEY,
			title TEXT NOT NULL,
			created_at TEXT NOT NULL
		);
		CREATE TABLE IF NOT EXISTS chunks (
			doc_id TEXT NOT NULL REFERENCES documents(id) ON DELETE CASCADE,
			seq INTEGER NOT NULL,
			text TEXT NOT NULL,
			embedding TEXT NOT NULL,
			PRIMARY KEY (doc_id, seq)
		);
	`)
	return err
}

// Close closes the database.
func (b *Bag) Close() error {
	return b.db.Close()
}

// batchEmbedder is implemented by embedders that take many inputs per
// call, such as [embeddings.Client].
type batchEmbedder interface {
	EmbedBatch(ctx context.Context, texts []string) ([][]float32, error)
}

// embedChunks embeds each chunk prefixed with the document title and
// returns the encoded vectors.
func (b *Bag) embedChunks(ctx context.Context, title string, chunks []string) ([]string, error) {
	inputs := make([]string, len(chunks))
	for i, c := range chunks {
		inputs[i] = title + "\n" + c
	}

	var vecs [][]float32
	if be, ok := b.embedder.(batchEmbedder); ok {
		var err error
		if vecs, err = be.EmbedBatch(ctx, inputs); err != nil {
			return nil, fmt.Errorf("embed chunks: %w", err)
		}
	} else {
		for i, in := range inputs {
			v, err := b.embedder.Embed(ctx, in)
			if err != nil {
				return nil, fmt.Errorf("embed chunk %d: %w", i, err)
			}
			vecs = append(vecs, v)
		}
	}

	out := make([]string, len(vecs))
	for i, v := range vecs {
		out[i] = embeddings.Encode(v)
	}
	return out, nil
}

// Add chunks text, embeds every chunk and stores the document.
func (b *Bag) Add(ctx context.Context, title, text string) (*Document, error) {
	title = strings.TrimSpace(title)
	if title == "" {
		return nil, fmt.Errorf("title is required")
	}
	chunks := Chunk(text, ChunkSize)
	if len(chunks) == 0 {
		return nil, fmt.Errorf("document %q is empty", title)
	}

	vectors, err := b.embedChunks(ctx, title, chunks)
	if err != nil {
		return nil, err
	}

	id, err := uuid.NewV7()
	if err != nil {
		return nil, fmt.Errorf("generate id: %w", err)
	}
	now := time.Now().UTC()

	tx, err := b.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("begin: %w", err)
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx, `INSERT INTO documents (id, title, created_at) VALUES (?, ?, ?)`,
		id.String(), title, now.Format(time.RFC3339)); err != nil {
		return nil, fmt.Errorf("insert document: %w", err)
	}
	for i, c := range chunks {
		if _, err := tx.ExecContext(ctx, `INSERT INTO chunks (doc_id, seq, text, embedding) VALUES (?, ?, ?, ?)`,
			id.String(), i, c, vectors[i]); err != nil {
			return nil, fmt.Errorf("insert chunk %d: %w", i, err)
		}
	}
	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("commit: %w", err)
	}

	b.logger.Info("document added", "title", title, "chunks", len(chunks))
	return &Document{ID: id, Title: title, Chunks: len(chunks), CreatedAt: now}, nil
}

// Delete removes a document and its chunks.
func (b *Bag) Delete(ctx context.Context, id uuid.UUID) error {
	if _, err := b.db.ExecContext(ctx, `DELETE FROM chunks WHERE doc_id = ?`, id.String()); err != nil {
		return fmt.Errorf("delete chunks: %w", err)
	}
	res, err := b.db.ExecContext(ctx, `DELETE FROM documents WHERE id = ?`, id.String())
	if err != nil {
		return fmt.Errorf("delete document: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrNotFound
	}
	return nil
}

// Documents lists stored documents, newest first.
func (b *Bag) Documents(ctx context.Context) ([]Document, error) {
	rows, err := b.db.QueryContext(ctx, `
		SELECT d.id, d.title, d.created_at, COUNT(c.seq)
		FROM documents d LEFT JOIN chunks c ON c.doc_id = d.id
		GROUP BY d.id ORDER BY d.created_at DESC, d.id DESC
	`)
	if err != nil {
		return nil, fmt.Errorf("query: %w", err)
	}
	defer rows.Close()

	var out []Document
	for rows.Next() {
		var d Document
		var id, created string
		if err := rows.Scan(&id, &d.Title, &created, &d.Chunks); err != nil {
			return nil, err
		}
		d.ID, _ = uuid.Parse(id)
		d.CreatedAt, _ = time.Parse(time.RFC3339, created)
		out = append(out, d)
	}
	return out, rows.Err()
}

// Score blends embedding similarity with lexical overlap. Lexical
// overlap only contributes once it reaches 0.1; below that the
// embedding score stands alone.
func Score(emb, lex float64) float64 {
	if lex >= 0.1 {
		return 0.8*emb + 0.2*lex
	}
	return emb
}

// Search returns up to topK chunks scoring at least threshold, keeping
// only the best chunk per document title.
func (b *Bag) Search(ctx context.Context, query string, topK int, threshold float64) ([]Hit, error) {
	if topK <= 0 {
		topK = 5
	}
	qv, err := b.embedder.Embed(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("embed query: %w", err)
	}
	qset := b.synonyms.Set(query)

	rows, err := b.db.QueryContext(ctx, `
		SELECT c.doc_id, d.title, c.text, c.embedding
		FROM chunks c JOIN documents d ON d.id = c.doc_id
	`)
	if err != nil {
		return nil, fmt.Errorf("query chunks: %w", err)
	}
	defer rows.Close()

	best := make(map[string]Hit)
	for rows.Next() {
		var docID, title, text, enc string
		if err := rows.Scan(&docID, &title, &text, &enc); err != nil {
			return nil, err
		}
		emb := float64(embeddings.CosineSimilarity(qv, embeddings.Decode(enc)))
		lex := lexical.Jaccard(qset, b.synonyms.Set(title+" "+text))
		score := Score(emb, lex)
		if score < threshold {
			continue
		}
		if prev, ok := best[title]; ok && prev.Score >= score {
			continue
		}
		id, _ := uuid.Parse(docID)
		best[title] = Hit{DocID: id, Title: title, Text: text, Score: score}
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	hits := make([]Hit, 0, len(best))
	for _, h := range best {
		hits = append(hits, h)
	}
	sort.Slice(hits, func(i, j int) bool {
		if hits[i].Score != hits[j].Score {
			return hits[i].Score > hits[j].Score
		}
		return hits[i].Title < hits[j].Title
	})
	if len(hits) > topK {
		hits = hits[:topK]
	}
	b.logger.Debug("knowledge search", "query", query, "hits", len(hits))
	return hits, nil
}

// Chunk splits text on blank lines and packs paragraphs into chunks of
// at most size characters. Paragraphs longer than size are cut on rune
// boundaries.
func Chunk(text string, size int) []string {
	var chunks []string
	var cur strings.Builder
	curLen := 0

	flush := func() {
		if s := strings.TrimSpace(cur.String()); s != "" {
			chunks = append(chunks, s)
		}
		cur.Reset()
		curLen = 0
	}

	for _, para := range strings.Split(strings.ReplaceAll(text, "\r\n", "\n"), "\n\n") {
		para = strings.TrimSpace(para)
		if para == "" {
			continue
		}
		runes := []rune(para)
		if len(runes) > size {
			flush()
			for len(runes) > 0 {
				n := min(size, len(runes))
				chunks = append(chunks, string(runes[:n]))
				runes = runes[n:]
			}
			continue
		}
		if curLen > 0 && curLen+2+len(runes) > size {
			flush()
		}
		if curLen > 0 {
			cur.WriteString("\n\n")
			curLen += 2
		}
		cur.WriteString(para)
		curLen += len(runes)
	}
	flush()
	return chunks
}
