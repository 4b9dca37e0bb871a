// Package redis stores chunks as Redis hashes indexed by a RediSearch HNSW
// vector index.
package redis

import (
	"context"
	"encoding/binary"
	"fmt"
	"math"
	"strconv"
	"strings"

	goredis "github.com/redis/go-redis/v9"

	"minirag/internal/domain"
)

const (
	defaultEFConstruction = 200
	defaultM              = 16

	// Field names in Redis hash
	fieldChunkID    = "chunk_id"
	fieldDocumentID = "document_id"
	fieldPosition   = "position"
	fieldText       = "text"
	fieldTokenCount = "token_count"
	fieldSource     = "source"
	fieldTitle      = "title"
	fieldVector     = "vector"
	fieldScore      = "score"
)

// Client is the part of the go-redis client the store uses.
type Client interface {
	Do(ctx context.Context, args ...interface{}) *goredis.Cmd
}

// Config holds Redis connection and index configuration.
type Config struct {
	Addr           string
	Password       string
	DB             int
	IndexName      string
	KeyPrefix      string
	EFConstruction int
	M              int
}

type Storage struct {
	client         Client
	index          string
	prefix         string
	efConstruction int
	m              int
}

// NewStorage connects to Redis. FT.SEARCH replies are parsed in their RESP2
// shape, so the connection is pinned to protocol 2.
func NewStorage(ctx context.Context, cfg Config) (*Storage, *goredis.Client, error) {
	client := goredis.NewClient(&goredis.Options{
		Addr:     cfg.Addr,
		Password: cfg.Password,
		DB:       cfg.DB,
		Protocol: 2,
	})
	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return nil, nil, fmt.Errorf("%w: failed to connect to Redis: %w", domain.ErrStoreUnavailable, err)
	}
	return New(client, cfg), client, nil
}

// New builds a store over an existing client.
func New(client Client, cfg Config) *Storage {
	s := &Storage{
		client:         client,
		index:          cfg.IndexName,
		prefix:         cfg.KeyPrefix,
		efConstruction: cfg.EFConstruction,
		m:              cfg.M,
	}
	if s.index == "" {
		s.index = "minirag-chunks"
	}
	if s.prefix == "" {
		s.prefix = "chunk:"
	}
	if s.efConstruction <= 0 {
		s.efConstruction = defaultEFConstruction
	}
	if s.m <= 0 {
		s.m = defaultM
	}
	return s
}

// Init creates the HNSW index if it doesn't exist.
func (s *Storage) Init(ctx context.Context, dimension int) error {
	if dimension <= 0 {
		return domain.Invalid("invalid dimension %d", dimension)
	}
	if err := s.client.Do(ctx, "FT.INFO", s.index).Err(); err == nil {
		return nil
	} else if !isUnknownIndex(err) {
		return fmt.Errorf("%w: redis FT.INFO: %w", domain.ErrStoreUnavailable, err)
	}

	err := s.client.Do(ctx, "FT.CREATE", s.index,
		"ON", "HASH",
		"PREFIX", "1", s.prefix,
		"SCHEMA",
		fieldVector, "VECTOR", "HNSW", "10",
		"TYPE", "FLOAT32",
		"DIM", strconv.Itoa(dimension),
		"DISTANCE_METRIC", "COSINE",
		"EF_CONSTRUCTION", strconv.Itoa(s.efConstruction),
		"M", strconv.Itoa(s.m),
		fieldText, "TEXT",
		fieldTitle, "TEXT",
		fieldDocumentID, "TAG",
		fieldSource, "TAG",
		fieldPosition, "NUMERIC",
	).Err()
	if err != nil {
		return fmt.Errorf("%w: failed to create index: %w", domain.ErrStoreUnavailable, err)
	}
	return nil
}

// Upsert writes one hash per chunk; HSET overwrites an existing chunk in place.
func (s *Storage) Upsert(ctx context.Context, chunks []domain.Chunk, vectors [][]float64) error {
	if len(chunks) != len(vectors) {
		return domain.Invalid("chunks and vectors length mismatch")
	}
	for i, c := range chunks {
		err := s.client.Do(ctx, "HSET", s.prefix+c.ChunkID,
			fieldChunkID, c.ChunkID,
			fieldDocumentID, c.DocumentID,
			fieldPosition, c.Position,
			fieldText, c.Text,
			fieldTokenCount, c.TokenCount,
			fieldSource, c.Source,
			fieldTitle, c.Title,
			fieldVector, encodeVector(vectors[i]),
		).Err()
		if err != nil {
			return fmt.Errorf("%w: redis HSET %s: %w", domain.ErrStoreUnavailable, c.ChunkID, err)
		}
	}
	return nil
}

func (s *Storage) Search(ctx context.Context, vector []float64, topN int) ([]domain.CandidateHit, error) {
	if topN <= 0 {
		topN = 5
	}
	query := fmt.Sprintf("*=>[KNN %d @%s $query_vector AS %s]", topN, fieldVector, fieldScore)
	result, err := s.client.Do(ctx, "FT.SEARCH", s.index, query,
		"PARAMS", "2", "query_vector", encodeVector(vector),
		"RETURN", "9", fieldChunkID, fieldDocumentID, fieldPosition, fieldText, fieldTokenCount, fieldSource, fieldTitle, fieldVector, fieldScore,
		"SORTBY", fieldScore,
		"LIMIT", "0", strconv.Itoa(topN),
		"DIALECT", "2",
	).Result()
	if err != nil {
		if isUnknownIndex(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("%w: vector search failed: %w", domain.ErrStoreUnavailable, err)
	}
	hits, err := parseSearchResults(result)
	if err != nil {
		return nil, fmt.Errorf("%w: failed to parse search results: %w", domain.ErrStoreUnavailable, err)
	}
	return hits, nil
}

// Clear drops the index together with its hashes.
func (s *Storage) Clear(ctx context.Context) error {
	err := s.client.Do(ctx, "FT.DROPINDEX", s.index, "DD").Err()
	if err != nil && !isUnknownIndex(err) {
		return fmt.Errorf("%w: redis FT.DROPINDEX: %w", domain.ErrStoreUnavailable, err)
	}
	return nil
}

func isUnknownIndex(err error) bool {
	msg := strings.ToLower(err.Error())
	return strings.Contains(msg, "unknown index") || strings.Contains(msg, "no such index")
}

// parseSearchResults reads the RESP2 reply: a count followed by pairs of
// (key, [field, value, ...]).
func parseSearchResults(result interface{}) ([]domain.CandidateHit, error) {
	values, ok := result.([]interface{})
	if !ok {
		return nil, fmt.Errorf("unexpected result format %T", result)
	}
	var hits []domain.CandidateHit
	for i := 1; i+1 < len(values); i += 2 {
		fields, ok := values[i+1].([]interface{})
		if !ok {
			continue
		}
		hit, err := parseHit(fields)
		if err != nil {
			return nil, err
		}
		hits = append(hits, hit)
	}
	return hits, nil
}

func parseHit(fields []interface{}) (domain.CandidateHit, error) {
	var h domain.CandidateHit
	for i := 0; i+1 < len(fields); i += 2 {
		name, ok := fields[i].(string)
		if !ok {
			continue
		}
		val, _ := fields[i+1].(string)
		var err error
		switch name {
		case fieldChunkID:
			h.Chunk.ChunkID = val
		case fieldDocumentID:
			h.Chunk.DocumentID = val
		case fieldText:
			h.Chunk.Text = val
		case fieldSource:
			h.Chunk.Source = val
		case fieldTitle:
			h.Chunk.Title = val
		case fieldPosition:
			h.Chunk.Position, err = strconv.Atoi(val)
		case fieldTokenCount:
			h.Chunk.TokenCount, err = strconv.Atoi(val)
		case fieldVector:
			h.Vector, err = decodeVector([]byte(val))
		case fieldScore:
			var dist float64
			dist, err = strconv.ParseFloat(val, 64)
			h.Score = 1 - dist
		}
		if err != nil {
			return h, fmt.Errorf("field %s: %w", name, err)
		}
	}
	return h, nil
}

// encodeVector packs a vector as little-endian FLOAT32, the layout the index expects.
func encodeVector(vec []float64) []byte {
	buf := make([]byte, 4*len(vec))
	for i, x := range vec {
		binary.LittleEndian.PutUint32(buf[i*4:], math.Float32bits(float32(x)))
	}
	return buf
}

func decodeVector(data []byte) ([]float64, error) {
	if len(data)%4 != 0 {
		return nil, fmt.Errorf("vector blob length %d is not a multiple of 4", len(data))
	}
	vec := make([]float64, len(data)/4)
	for i := range vec {
		vec[i] = float64(math.Float32frombits(binary.LittleEndian.Uint32(data[i*4:])))
	}
	return vec, nil
}
