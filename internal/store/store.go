// Package store implements an embedded, file-backed vector index over SQLite.
//
// The store persists chunks keyed by id and supports brute-force cosine
// similarity search plus full-scan enumeration. It deliberately applies no
// filtering over the metadata column: metadata is an opaque serialized blob,
// so callers over-fetch similarity results and post-filter in memory.
package store

import (
	"context"
	"database/sql"
	"encoding/binary"
	"fmt"
	"math"
	"os"
	"path/filepath"
	"sort"
	"strings"

	_ "modernc.org/sqlite" // SQLite driver
)

// dbFileName is the SQLite database file inside the data directory.
const dbFileName = "knowledge.db"

// Store is an explicit handle to the embedded vector store. The hosting
// application owns its lifecycle via Open and Close; only one process should
// own the backing file for writes at a time (SQLite's own file locking is the
// sole protection).
type Store struct {
	db   *sql.DB
	path string
}

// Open opens the vector store in dataDir, creating the directory and the
// database file as needed. The chunk table itself is created lazily on first
// ingestion, so an Open against an empty directory is a valid steady state.
func Open(dataDir string) (*Store, error) {
	if err := os.MkdirAll(dataDir, 0o700); err != nil {
		return nil, fmt.Errorf("%w: creating data directory: %v", ErrUnavailable, err)
	}

	dbPath := filepath.Join(dataDir, dbFileName)

	// WAL mode for concurrent readers during writes
	db, err := sql.Open("sqlite", dbPath+"?_pragma=journal_mode(WAL)&_pragma=busy_timeout(5000)")
	if err != nil {
		return nil, fmt.Errorf("%w: opening database: %v", ErrUnavailable, err)
	}
	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("%w: %v", ErrUnavailable, err)
	}

	return &Store{db: db, path: dbPath}, nil
}

// Close closes the database connection.
func (s *Store) Close() error {
	return s.db.Close()
}

// Path returns the database file path.
func (s *Store) Path() string {
	return s.path
}

// EnsureTable creates the chunk table with the given vector dimension if it
// does not exist, and is a no-op if it does. There is no schema-migration
// path: if the table already holds vectors of a different dimension the call
// fails with ErrDimensionMismatch, and changing dimensions requires a full
// rebuild of the store.
func (s *Store) EnsureTable(ctx context.Context, dimension int) error {
	if dimension <= 0 {
		return fmt.Errorf("%w: dimension must be positive, got %d", ErrDimensionMismatch, dimension)
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("beginning transaction: %w", err)
	}
	defer tx.Rollback() //nolint:errcheck

	if _, err := tx.ExecContext(ctx, fmt.Sprintf(`
		CREATE TABLE IF NOT EXISTS %s (
			id          TEXT PRIMARY KEY,
			document_id TEXT NOT NULL,
			content     TEXT NOT NULL,
			vector      BLOB NOT NULL,
			metadata    TEXT NOT NULL
		)
	`, TableName)); err != nil {
		return fmt.Errorf("creating %s: %w", TableName, err)
	}

	if _, err := tx.ExecContext(ctx, `
		CREATE TABLE IF NOT EXISTS knowledge_meta (
			key   TEXT PRIMARY KEY,
			value INTEGER NOT NULL
		)
	`); err != nil {
		return fmt.Errorf("creating knowledge_meta: %w", err)
	}

	if _, err := tx.ExecContext(ctx, `
		INSERT INTO knowledge_meta (key, value) VALUES ('dimension', ?)
		ON CONFLICT(key) DO NOTHING
	`, dimension); err != nil {
		return fmt.Errorf("recording dimension: %w", err)
	}

	var existing int
	if err := tx.QueryRowContext(ctx,
		`SELECT value FROM knowledge_meta WHERE key = 'dimension'`).Scan(&existing); err != nil {
		return fmt.Errorf("reading dimension: %w", err)
	}
	if existing != dimension {
		return fmt.Errorf("%w: table created with %d dimensions, got %d",
			ErrDimensionMismatch, existing, dimension)
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("committing transaction: %w", err)
	}
	return nil
}

// Dimension returns the vector dimension the table was created with, or 0 if
// the table has never been created.
func (s *Store) Dimension(ctx context.Context) (int, error) {
	exists, err := s.tableExists(ctx)
	if err != nil || !exists {
		return 0, err
	}
	var dim int
	err = s.db.QueryRowContext(ctx,
		`SELECT value FROM knowledge_meta WHERE key = 'dimension'`).Scan(&dim)
	if err == sql.ErrNoRows {
		return 0, nil
	}
	if err != nil {
		return 0, fmt.Errorf("reading dimension: %w", err)
	}
	return dim, nil
}

// InsertMany appends chunk records in one transaction. There is no dedup or
// upsert: callers guarantee id uniqueness through the deterministic chunk
// key. If the table does not exist yet it is created using the first chunk's
// vector to establish the dimension.
func (s *Store) InsertMany(ctx context.Context, chunks []Chunk) error {
	if len(chunks) == 0 {
		return nil
	}

	if err := s.EnsureTable(ctx, len(chunks[0].Vector)); err != nil {
		return err
	}

	dim, err := s.Dimension(ctx)
	if err != nil {
		return err
	}
	for i, chunk := range chunks {
		if len(chunk.Vector) != dim {
			return fmt.Errorf("%w: chunk %d has %d dimensions, expected %d",
				ErrDimensionMismatch, i, len(chunk.Vector), dim)
		}
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("beginning transaction: %w", err)
	}
	defer tx.Rollback() //nolint:errcheck

	stmt, err := tx.PrepareContext(ctx, fmt.Sprintf(`
		INSERT INTO %s (id, document_id, content, vector, metadata)
		VALUES (?, ?, ?, ?, ?)
	`, TableName))
	if err != nil {
		return fmt.Errorf("preparing insert: %w", err)
	}
	defer stmt.Close()

	for _, chunk := range chunks {
		if _, err := stmt.ExecContext(ctx, chunk.ID, chunk.DocumentID, chunk.Content,
			float32SliceToBytes(chunk.Vector), chunk.Metadata); err != nil {
			return fmt.Errorf("inserting chunk %s: %w", chunk.ID, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("committing transaction: %w", err)
	}
	return nil
}

// SimilaritySearch returns up to k records nearest to query by cosine
// similarity, best first. No tenant or agent filtering happens here; callers
// must over-fetch and post-filter on their parsed metadata. Returns empty
// results when the table has never been created.
func (s *Store) SimilaritySearch(ctx context.Context, query []float32, k int) ([]ScoredChunk, error) {
	exists, err := s.tableExists(ctx)
	if err != nil || !exists {
		return nil, err
	}
	if k <= 0 {
		return nil, nil
	}

	dim, err := s.Dimension(ctx)
	if err != nil {
		return nil, err
	}
	if dim != 0 && len(query) != dim {
		return nil, fmt.Errorf("%w: query has %d dimensions, expected %d",
			ErrDimensionMismatch, len(query), dim)
	}

	chunks, err := s.ScanAll(ctx)
	if err != nil {
		return nil, err
	}

	scored := make([]ScoredChunk, 0, len(chunks))
	for _, chunk := range chunks {
		scored = append(scored, ScoredChunk{
			Chunk: chunk,
			Score: cosineSimilarity(query, chunk.Vector),
		})
	}
	sort.SliceStable(scored, func(i, j int) bool { return scored[i].Score > scored[j].Score })

	if k > len(scored) {
		k = len(scored)
	}
	return scored[:k], nil
}

// ScanAll returns every record in the table across all tenants, in no
// particular order. Used for listing, content reassembly and deletion; cost
// grows with the total chunk count of the whole store.
func (s *Store) ScanAll(ctx context.Context) ([]Chunk, error) {
	exists, err := s.tableExists(ctx)
	if err != nil || !exists {
		return nil, err
	}

	rows, err := s.db.QueryContext(ctx, fmt.Sprintf(`
		SELECT id, document_id, content, vector, metadata FROM %s
	`, TableName))
	if err != nil {
		return nil, fmt.Errorf("scanning %s: %w", TableName, err)
	}
	defer rows.Close()

	var chunks []Chunk
	for rows.Next() {
		var chunk Chunk
		var blob []byte
		if err := rows.Scan(&chunk.ID, &chunk.DocumentID, &chunk.Content,
			&blob, &chunk.Metadata); err != nil {
			return nil, fmt.Errorf("scanning chunk row: %w", err)
		}
		chunk.Vector = bytesToFloat32Slice(blob)
		chunks = append(chunks, chunk)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating chunks: %w", err)
	}
	return chunks, nil
}

// DeleteByIDs removes records by primary key. Unknown ids and a table that
// has never been created are both no-ops, so deletion is idempotent.
func (s *Store) DeleteByIDs(ctx context.Context, ids []string) error {
	if len(ids) == 0 {
		return nil
	}
	exists, err := s.tableExists(ctx)
	if err != nil || !exists {
		return err
	}

	placeholders := strings.TrimSuffix(strings.Repeat("?,", len(ids)), ",")
	args := make([]any, len(ids))
	for i, id := range ids {
		args[i] = id
	}

	if _, err := s.db.ExecContext(ctx, fmt.Sprintf(
		`DELETE FROM %s WHERE id IN (%s)`, TableName, placeholders), args...); err != nil {
		return fmt.Errorf("deleting chunks: %w", err)
	}
	return nil
}

// Count returns the total number of records across all tenants, 0 when the
// table has never been created.
func (s *Store) Count(ctx context.Context) (int, error) {
	exists, err := s.tableExists(ctx)
	if err != nil || !exists {
		return 0, err
	}
	var n int
	if err := s.db.QueryRowContext(ctx,
		fmt.Sprintf(`SELECT COUNT(*) FROM %s`, TableName)).Scan(&n); err != nil {
		return 0, fmt.Errorf("counting chunks: %w", err)
	}
	return n, nil
}

// tableExists reports whether the chunk table has been created.
func (s *Store) tableExists(ctx context.Context) (bool, error) {
	var n int
	err := s.db.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM sqlite_master WHERE type = 'table' AND name = ?`,
		TableName).Scan(&n)
	if err != nil {
		return false, fmt.Errorf("checking table existence: %w", err)
	}
	return n > 0, nil
}

// cosineSimilarity returns the cosine of the angle between a and b, in
// [-1, 1]. Zero vectors score 0.
func cosineSimilarity(a, b []float32) float64 {
	if len(a) != len(b) || len(a) == 0 {
		return 0
	}
	var dot, normA, normB float64
	for i := range a {
		dot += float64(a[i]) * float64(b[i])
		normA += float64(a[i]) * float64(a[i])
		normB += float64(b[i]) * float64(b[i])
	}
	if normA == 0 || normB == 0 {
		return 0
	}
	return dot / (math.Sqrt(normA) * math.Sqrt(normB))
}

// float32SliceToBytes converts a vector to its little-endian blob encoding.
func float32SliceToBytes(floats []float32) []byte {
	buf := make([]byte, len(floats)*4)
	for i, f := range floats {
		binary.LittleEndian.PutUint32(buf[i*4:], math.Float32bits(f))
	}
	return buf
}

// bytesToFloat32Slice converts a blob back to a vector.
func bytesToFloat32Slice(data []byte) []float32 {
	floats := make([]float32, len(data)/4)
	for i := range floats {
		floats[i] = math.Float32frombits(binary.LittleEndian.Uint32(data[i*4:]))
	}
	return floats
}
