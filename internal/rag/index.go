package rag

import (
	"context"
	"database/sql"
	"fmt"
	"log"
	"strings"

	vec "github.com/asg017/sqlite-vec-go-bindings/cgo"
	_ "github.com/mattn/go-sqlite3"

	"github.com/pnguyenfetchai/study-assistant/internal/llm"
)

// Chunk is one indexed piece of course material.
type Chunk struct {
	ID      int64
	Content string
	Source  string
}

// Index is the persistent retrieval structure. One logical index per
// deployment; re-initialization appends rather than deduplicating.
type Index struct {
	db           *sql.DB
	embedder     llm.Client
	vecAvailable bool
}

// NewIndex opens (or creates) the index database. If the file already holds
// chunks they are reused as-is, which is how a restarted deployment reloads
// its index.
func NewIndex(dsn string, embedder llm.Client) (*Index, error) {
	db, err := sql.Open("sqlite3", dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open index database: %w", err)
	}
	if dsn == ":memory:" || strings.Contains(dsn, "mode=memory") {
		db.SetMaxOpenConns(1)
		db.SetMaxIdleConns(1)
	}

	idx := &Index{db: db, embedder: embedder}
	if err := idx.migrate(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to migrate index database: %w", err)
	}
	return idx, nil
}

func (i *Index) migrate() error {
	if _, err := i.db.Exec(`CREATE TABLE IF NOT EXISTS chunks (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		content TEXT NOT NULL,
		source TEXT NOT NULL DEFAULT '',
		created_at DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP
	)`); err != nil {
		return fmt.Errorf("chunks table: %w", err)
	}

	i.vecAvailable = i.detectVecExtension()
	if !i.vecAvailable {
		log.Printf("WARN: sqlite-vec unavailable, falling back to keyword retrieval")
		return nil
	}

	query := fmt.Sprintf(`CREATE VIRTUAL TABLE IF NOT EXISTS vec_chunks USING vec0(
		embedding float[%d],
		chunk_id INTEGER
	)`, i.embedder.Dimensions())
	if _, err := i.db.Exec(query); err != nil {
		log.Printf("WARN: failed to create vec_chunks table: %v", err)
		i.vecAvailable = false
	}
	return nil
}

// detectVecExtension attempts to create a vec0 virtual table to see if
// sqlite-vec is available.
func (i *Index) detectVecExtension() bool {
	if _, err := i.db.Exec("CREATE VIRTUAL TABLE IF NOT EXISTS vec_probe USING vec0(embedding float[4])"); err != nil {
		return false
	}
	i.db.Exec("DROP TABLE IF EXISTS vec_probe")
	return true
}

// Count returns how many chunks are indexed.
func (i *Index) Count(ctx context.Context) (int, error) {
	var n int
	if err := i.db.QueryRowContext(ctx, "SELECT COUNT(*) FROM chunks").Scan(&n); err != nil {
		return 0, fmt.Errorf("failed to count chunks: %w", err)
	}
	return n, nil
}

// Add embeds and inserts a batch of chunks. An embedding failure keeps the
// text rows so keyword retrieval still works.
func (i *Index) Add(ctx context.Context, chunks []Chunk) error {
	if len(chunks) == 0 {
		return nil
	}

	ids := make([]int64, len(chunks))
	for n, c := range chunks {
		res, err := i.db.ExecContext(ctx, "INSERT INTO chunks (content, source) VALUES (?, ?)", c.Content, c.Source)
		if err != nil {
			return fmt.Errorf("failed to insert chunk: %w", err)
		}
		ids[n], _ = res.LastInsertId()
	}

	if !i.vecAvailable {
		return nil
	}

	texts := make([]string, len(chunks))
	for n, c := range chunks {
		texts[n] = c.Content
	}
	embeddings, err := i.embedder.Embed(ctx, texts)
	if err != nil {
		log.Printf("ERROR: failed to embed %d chunks, keyword retrieval only for this batch: %v", len(chunks), err)
		return nil
	}

	for n, emb := range embeddings {
		blob, err := vec.SerializeFloat32(emb)
		if err != nil {
			log.Printf("WARN: failed to serialize embedding: %v", err)
			continue
		}
		if _, err := i.db.ExecContext(ctx,
			"INSERT INTO vec_chunks (embedding, chunk_id) VALUES (?, ?)", blob, ids[n]); err != nil {
			log.Printf("WARN: failed to insert embedding: %v", err)
		}
	}
	return nil
}

// Search returns the top-k chunks for the query, by vector distance when
// the extension and embedder are usable, by keyword match otherwise.
func (i *Index) Search(ctx context.Context, query string, k int) ([]Chunk, error) {
	if k <= 0 {
		k = 4
	}

	if i.vecAvailable {
		chunks, err := i.vectorSearch(ctx, query, k)
		if err == nil && len(chunks) > 0 {
			return chunks, nil
		}
		if err != nil {
			log.Printf("WARN: vector search failed, falling back to keywords: %v", err)
		}
	}
	return i.keywordSearch(ctx, query, k)
}

func (i *Index) vectorSearch(ctx context.Context, query string, k int) ([]Chunk, error) {
	embeddings, err := i.embedder.Embed(ctx, []string{query})
	if err != nil {
		return nil, fmt.Errorf("failed to embed query: %w", err)
	}
	blob, err := vec.SerializeFloat32(embeddings[0])
	if err != nil {
		return nil, fmt.Errorf("failed to serialize query embedding: %w", err)
	}

	rows, err := i.db.QueryContext(ctx, `
		SELECT c.id, c.content, c.source
		FROM vec_chunks v
		JOIN chunks c ON c.id = v.chunk_id
		WHERE v.embedding MATCH ? AND v.k = ?
		ORDER BY v.distance`, blob, k)
	if err != nil {
		return nil, fmt.Errorf("knn query failed: %w", err)
	}
	defer rows.Close()

	return scanChunks(rows)
}

func (i *Index) keywordSearch(ctx context.Context, query string, k int) ([]Chunk, error) {
	keywords := strings.Fields(strings.ToLower(query))
	if len(keywords) == 0 {
		return nil, nil
	}

	var conditions []string
	var args []interface{}
	for _, kw := range keywords {
		conditions = append(conditions, "LOWER(content) LIKE ?")
		args = append(args, "%"+kw+"%")
	}
	args = append(args, k)

	rows, err := i.db.QueryContext(ctx, fmt.Sprintf(
		"SELECT id, content, source FROM chunks WHERE %s ORDER BY created_at DESC LIMIT ?",
		strings.Join(conditions, " OR ")), args...)
	if err != nil {
		return nil, fmt.Errorf("keyword query failed: %w", err)
	}
	defer rows.Close()

	return scanChunks(rows)
}

func scanChunks(rows *sql.Rows) ([]Chunk, error) {
	var chunks []Chunk
	for rows.Next() {
		var c Chunk
		if err := rows.Scan(&c.ID, &c.Content, &c.Source); err != nil {
			return nil, fmt.Errorf("failed to scan chunk: %w", err)
		}
		chunks = append(chunks, c)
	}
	return chunks, rows.Err()
}

// ContextText joins retrieved chunks into the context blob appended to
// outgoing answers.
func ContextText(chunks []Chunk) string {
	parts := make([]string, len(chunks))
	for i, c := range chunks {
		parts[i] = c.Content
	}
	return strings.Join(parts, "\n")
}

// Close closes the index database.
func (i *Index) Close() error {
	return i.db.Close()
}
