// Package postgres stores chunk vectors in a pgvector column and searches
// them by cosine distance.
package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strconv"
	"strings"

	"github.com/lib/pq"

	"minirag/internal/domain"
)

// undefined_table
const codeUndefinedTable = "42P01"

type Storage struct {
	DB *sql.DB
}

// NewWithDSN opens and pings the database.
func NewWithDSN(ctx context.Context, dsn string) (*Storage, error) {
	db, err := sql.Open("postgres", dsn)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", domain.ErrStoreUnavailable, err)
	}
	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("%w: %w", domain.ErrStoreUnavailable, err)
	}
	return &Storage{DB: db}, nil
}

// Init checks that vectors already stored have the requested dimension. The
// schema itself is owned by the migrations.
func (s *Storage) Init(ctx context.Context, dimension int) error {
	if dimension <= 0 {
		return domain.Invalid("invalid dimension %d", dimension)
	}
	var existing int
	err := s.DB.QueryRowContext(ctx, `SELECT vector_dims(embedding) FROM chunks LIMIT 1`).Scan(&existing)
	switch {
	case errors.Is(err, sql.ErrNoRows):
		return nil
	case err != nil:
		return wrap("check dimension", err)
	case existing != dimension:
		return fmt.Errorf("%w: chunks table holds %d-dimensional vectors, got %d", domain.ErrStoreUnavailable, existing, dimension)
	}
	return nil
}

const upsertSQL = `
INSERT INTO chunks (chunk_id, document_id, position, text, token_count, source, title, embedding, updated_at)
VALUES ($1,$2,$3,$4,$5,$6,$7,$8::vector,NOW())
ON CONFLICT (chunk_id) DO UPDATE SET
  document_id = EXCLUDED.document_id,
  position = EXCLUDED.position,
  text = EXCLUDED.text,
  token_count = EXCLUDED.token_count,
  source = EXCLUDED.source,
  title = EXCLUDED.title,
  embedding = EXCLUDED.embedding,
  updated_at = NOW();
`

// Upsert writes all chunks in one transaction.
func (s *Storage) Upsert(ctx context.Context, chunks []domain.Chunk, vectors [][]float64) (err error) {
	if len(chunks) != len(vectors) {
		return domain.Invalid("chunks and vectors length mismatch")
	}
	if len(chunks) == 0 {
		return nil
	}
	tx, err := s.DB.BeginTx(ctx, nil)
	if err != nil {
		return wrap("begin", err)
	}
	defer func() {
		if err != nil {
			_ = tx.Rollback()
		} else if cerr := tx.Commit(); cerr != nil {
			err = wrap("commit", cerr)
		}
	}()

	stmt, err := tx.PrepareContext(ctx, upsertSQL)
	if err != nil {
		return wrap("prepare upsert", err)
	}
	defer stmt.Close()
	for i, c := range chunks {
		lit, err := encodeVectorLiteral(vectors[i])
		if err != nil {
			return domain.Invalid("chunk %s: %v", c.ChunkID, err)
		}
		if _, err := stmt.ExecContext(ctx, c.ChunkID, c.DocumentID, c.Position, c.Text, c.TokenCount, c.Source, c.Title, lit); err != nil {
			return wrap("upsert "+c.ChunkID, err)
		}
	}
	return nil
}

const searchSQL = `
SELECT chunk_id, document_id, position, text, token_count, source, title, embedding::text, 1 - (embedding <=> $1::vector) AS score
FROM chunks
ORDER BY embedding <=> $1::vector, chunk_id
LIMIT $2
`

func (s *Storage) Search(ctx context.Context, vector []float64, topN int) ([]domain.CandidateHit, error) {
	if topN <= 0 {
		topN = 5
	}
	lit, err := encodeVectorLiteral(vector)
	if err != nil {
		return nil, domain.Invalid("%v", err)
	}
	rows, err := s.DB.QueryContext(ctx, searchSQL, lit, topN)
	if err != nil {
		var pqErr *pq.Error
		if errors.As(err, &pqErr) && pqErr.Code == codeUndefinedTable {
			return nil, nil
		}
		return nil, wrap("search", err)
	}
	defer rows.Close()

	var hits []domain.CandidateHit
	for rows.Next() {
		var (
			h      domain.CandidateHit
			vecLit string
		)
		c := &h.Chunk
		if err := rows.Scan(&c.ChunkID, &c.DocumentID, &c.Position, &c.Text, &c.TokenCount, &c.Source, &c.Title, &vecLit, &h.Score); err != nil {
			return nil, wrap("scan", err)
		}
		if h.Vector, err = decodeVectorLiteral(vecLit); err != nil {
			return nil, wrap("decode vector", err)
		}
		hits = append(hits, h)
	}
	if err := rows.Err(); err != nil {
		return nil, wrap("search", err)
	}
	return hits, nil
}

func (s *Storage) Clear(ctx context.Context) error {
	if _, err := s.DB.ExecContext(ctx, `DELETE FROM chunks`); err != nil {
		return wrap("clear", err)
	}
	return nil
}

func (s *Storage) Close() error { return s.DB.Close() }

func wrap(op string, err error) error {
	return fmt.Errorf("%w: postgres %s: %w", domain.ErrStoreUnavailable, op, err)
}

func encodeVectorLiteral(vec []float64) (string, error) {
	if len(vec) == 0 {
		return "", fmt.Errorf("vector must not be empty")
	}
	var builder strings.Builder
	builder.WriteByte('[')
	for i, f := range vec {
		if i > 0 {
			builder.WriteByte(',')
		}
		builder.WriteString(strconv.FormatFloat(f, 'f', -1, 32))
	}
	builder.WriteByte(']')
	return builder.String(), nil
}

func decodeVectorLiteral(lit string) ([]float64, error) {
	lit = strings.TrimSpace(lit)
	if lit == "" {
		return nil, fmt.Errorf("empty vector literal")
	}
	lit = strings.TrimPrefix(lit, "[")
	lit = strings.TrimSuffix(lit, "]")
	parts := strings.Split(lit, ",")
	vec := make([]float64, 0, len(parts))
	for _, part := range parts {
		value := strings.TrimSpace(part)
		if value == "" {
			continue
		}
		f, err := strconv.ParseFloat(value, 32)
		if err != nil {
			return nil, fmt.Errorf("parse vector value %q: %w", value, err)
		}
		vec = append(vec, f)
	}
	return vec, nil
}
