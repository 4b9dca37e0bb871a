// Package sqlite keeps chunk vectors in a local SQLite file and ranks them
// by brute-force cosine similarity.
package sqlite

import (
	"context"
	"database/sql"
	"embed"
	"encoding/binary"
	"errors"
	"fmt"
	"io/fs"
	"math"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"

	_ "modernc.org/sqlite" // SQLite driver

	"minirag/internal/domain"
	"minirag/internal/vectorstore/sqlite/migrations"
)

const metaDimension = "dimension"

type Storage struct {
	db   *sql.DB
	path string
}

// Open opens (or creates) the database at path and applies pending
// migrations. ":memory:" gives a private in-memory database.
func Open(path string) (*Storage, error) {
	dsn := path
	if path != ":memory:" {
		if dir := filepath.Dir(path); dir != "." {
			if err := os.MkdirAll(dir, 0o700); err != nil {
				return nil, fmt.Errorf("creating data directory: %w", err)
			}
		}
		dsn = path + "?_pragma=journal_mode(WAL)&_pragma=busy_timeout(5000)"
	}
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("%w: opening database: %w", domain.ErrStoreUnavailable, err)
	}
	if path == ":memory:" {
		// every connection would otherwise get its own empty database
		db.SetMaxOpenConns(1)
	}
	s := &Storage{db: db, path: path}
	if err := s.migrate(migrations.FS); err != nil {
		db.Close()
		return nil, fmt.Errorf("%w: running migrations: %w", domain.ErrStoreUnavailable, err)
	}
	return s, nil
}

func (s *Storage) Close() error { return s.db.Close() }

// migrate runs all pending migrations and records each applied version.
func (s *Storage) migrate(fsys embed.FS) error {
	_, err := s.db.Exec(`
		CREATE TABLE IF NOT EXISTS schema_migrations (
			version INTEGER PRIMARY KEY,
			applied_at DATETIME DEFAULT CURRENT_TIMESTAMP
		)
	`)
	if err != nil {
		return fmt.Errorf("creating schema_migrations table: %w", err)
	}

	var currentVersion int
	row := s.db.QueryRow("SELECT COALESCE(MAX(version), 0) FROM schema_migrations")
	if err := row.Scan(&currentVersion); err != nil {
		return fmt.Errorf("getting current version: %w", err)
	}

	entries, err := fs.ReadDir(fsys, ".")
	if err != nil {
		return fmt.Errorf("reading migrations directory: %w", err)
	}
	var upFiles []string
	for _, entry := range entries {
		if name := entry.Name(); strings.HasSuffix(name, ".up.sql") {
			upFiles = append(upFiles, name)
		}
	}
	sort.Strings(upFiles)

	for _, name := range upFiles {
		var version int
		if _, err := fmt.Sscanf(name, "%d_", &version); err != nil {
			continue
		}
		if version <= currentVersion {
			continue
		}
		content, err := fs.ReadFile(fsys, name)
		if err != nil {
			return fmt.Errorf("reading migration %s: %w", name, err)
		}
		if _, err := s.db.Exec(string(content)); err != nil {
			return fmt.Errorf("executing migration %s: %w", name, err)
		}
		if _, err := s.db.Exec(`INSERT INTO schema_migrations (version) VALUES (?)`, version); err != nil {
			return fmt.Errorf("recording migration %s: %w", name, err)
		}
	}
	return nil
}

// Init records the dimension on first use and rejects a different one while
// vectors are stored.
func (s *Storage) Init(ctx context.Context, dimension int) error {
	if dimension <= 0 {
		return domain.Invalid("invalid dimension %d", dimension)
	}
	var stored string
	err := s.db.QueryRowContext(ctx, `SELECT value FROM store_meta WHERE key = ?`, metaDimension).Scan(&stored)
	if err != nil && !errors.Is(err, sql.ErrNoRows) {
		return wrap("read dimension", err)
	}
	if err == nil && stored != strconv.Itoa(dimension) {
		var n int
		if err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM chunks`).Scan(&n); err != nil {
			return wrap("count chunks", err)
		}
		if n > 0 {
			return fmt.Errorf("%w: store holds %s-dimensional vectors, got %d", domain.ErrStoreUnavailable, stored, dimension)
		}
	}
	_, err = s.db.ExecContext(ctx, `
		INSERT INTO store_meta (key, value) VALUES (?, ?)
		ON CONFLICT(key) DO UPDATE SET value = excluded.value
	`, metaDimension, strconv.Itoa(dimension))
	return wrap("write dimension", err)
}

func (s *Storage) Upsert(ctx context.Context, chunks []domain.Chunk, vectors [][]float64) (err error) {
	if len(chunks) != len(vectors) {
		return domain.Invalid("chunks and vectors length mismatch")
	}
	if len(chunks) == 0 {
		return nil
	}
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return wrap("begin", err)
	}
	defer func() {
		if err != nil {
			_ = tx.Rollback()
		} else {
			err = wrap("commit", tx.Commit())
		}
	}()

	stmt, err := tx.PrepareContext(ctx, `
		INSERT INTO chunks (chunk_id, document_id, position, text, token_count, source, title, embedding)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(chunk_id) DO UPDATE SET
			document_id = excluded.document_id,
			position = excluded.position,
			text = excluded.text,
			token_count = excluded.token_count,
			source = excluded.source,
			title = excluded.title,
			embedding = excluded.embedding
	`)
	if err != nil {
		return wrap("prepare upsert", err)
	}
	defer stmt.Close()
	for i, c := range chunks {
		if _, err := stmt.ExecContext(ctx, c.ChunkID, c.DocumentID, c.Position, c.Text, c.TokenCount, c.Source, c.Title, float64sToBytes(vectors[i])); err != nil {
			return wrap("upsert "+c.ChunkID, err)
		}
	}
	return nil
}

// Search scores every stored chunk. Equal scores keep insertion order.
func (s *Storage) Search(ctx context.Context, vector []float64, topN int) ([]domain.CandidateHit, error) {
	if topN <= 0 {
		topN = 5
	}
	rows, err := s.db.QueryContext(ctx, `
		SELECT chunk_id, document_id, position, text, token_count, source, title, embedding
		FROM chunks ORDER BY rowid
	`)
	if err != nil {
		return nil, wrap("search", err)
	}
	defer rows.Close()

	var hits []domain.CandidateHit
	for rows.Next() {
		var (
			h    domain.CandidateHit
			blob []byte
		)
		c := &h.Chunk
		if err := rows.Scan(&c.ChunkID, &c.DocumentID, &c.Position, &c.Text, &c.TokenCount, &c.Source, &c.Title, &blob); err != nil {
			return nil, wrap("scan", err)
		}
		h.Vector = bytesToFloat64s(blob)
		h.Score = domain.Cosine(h.Vector, vector)
		hits = append(hits, h)
	}
	if err := rows.Err(); err != nil {
		return nil, wrap("search", err)
	}
	sort.SliceStable(hits, func(i, j int) bool { return hits[i].Score > hits[j].Score })
	if len(hits) > topN {
		hits = hits[:topN]
	}
	return hits, nil
}

func (s *Storage) Clear(ctx context.Context) error {
	if _, err := s.db.ExecContext(ctx, `DELETE FROM chunks`); err != nil {
		return wrap("clear", err)
	}
	_, err := s.db.ExecContext(ctx, `DELETE FROM store_meta WHERE key = ?`, metaDimension)
	return wrap("clear", err)
}

// wrap returns nil for a nil err.
func wrap(op string, err error) error {
	if err == nil {
		return nil
	}
	return fmt.Errorf("%w: sqlite %s: %w", domain.ErrStoreUnavailable, op, err)
}

func float64sToBytes(vec []float64) []byte {
	buf := make([]byte, len(vec)*8)
	for i, f := range vec {
		binary.LittleEndian.PutUint64(buf[i*8:], math.Float64bits(f))
	}
	return buf
}

func bytesToFloat64s(data []byte) []float64 {
	if len(data) == 0 {
		return nil
	}
	vec := make([]float64, len(data)/8)
	for i := range vec {
		vec[i] = math.Float64frombits(binary.LittleEndian.Uint64(data[i*8:]))
	}
	return vec
}
