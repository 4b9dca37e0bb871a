// Package cache memoises embeddings in Redis, keyed by embedder and text.
package cache

import (
	"context"
	"crypto/sha1"
	"encoding/binary"
	"encoding/hex"
	"errors"
	"fmt"
	"log"
	"math"
	"time"

	"github.com/redis/go-redis/v9"

	"minirag/internal/domain"
)

// Client is the subset of the go-redis client the cache needs.
type Client interface {
	Get(ctx context.Context, key string) *redis.StringCmd
	Set(ctx context.Context, key string, value interface{}, expiration time.Duration) *redis.StatusCmd
}

// Embedder serves vectors from Redis when present and stores fresh ones.
// Redis failures never fail a call; the inner embedder answers instead.
type Embedder struct {
	inner  domain.Embedder
	client Client
	prefix string
	ttl    time.Duration
	logger *log.Logger
}

// New wraps inner with a Redis cache.
func New(inner domain.Embedder, client Client, prefix string, ttl time.Duration, logger *log.Logger) *Embedder {
	if logger == nil {
		logger = log.New(log.Writer(), "[CACHE] ", log.LstdFlags)
	}
	return &Embedder{inner: inner, client: client, prefix: prefix, ttl: ttl, logger: logger}
}

func (e *Embedder) Name() string   { return e.inner.Name() }
func (e *Embedder) Dimension() int { return e.inner.Dimension() }

// Embed returns the cached vector for text or computes and stores it.
func (e *Embedder) Embed(ctx context.Context, text string) ([]float64, error) {
	if vec, ok := e.lookup(ctx, text); ok {
		return vec, nil
	}
	vec, err := e.inner.Embed(ctx, text)
	if err != nil {
		return nil, err
	}
	e.store(ctx, text, vec)
	return vec, nil
}

// EmbedBatch resolves cache hits and sends only the misses to the inner embedder.
func (e *Embedder) EmbedBatch(ctx context.Context, texts []string) ([][]float64, error) {
	out := make([][]float64, len(texts))
	var missing []string
	var idx []int
	for i, t := range texts {
		if vec, ok := e.lookup(ctx, t); ok {
			out[i] = vec
			continue
		}
		missing = append(missing, t)
		idx = append(idx, i)
	}
	if len(missing) == 0 {
		return out, nil
	}

	var fresh [][]float64
	if b, ok := e.inner.(domain.BatchEmbedder); ok {
		vecs, err := b.EmbedBatch(ctx, missing)
		if err != nil {
			return nil, err
		}
		fresh = vecs
	} else {
		fresh = make([][]float64, 0, len(missing))
		for _, t := range missing {
			vec, err := e.inner.Embed(ctx, t)
			if err != nil {
				return nil, err
			}
			fresh = append(fresh, vec)
		}
	}
	if len(fresh) != len(missing) {
		return nil, fmt.Errorf("%w: got %d vectors for %d texts", domain.ErrEmbeddingUnavailable, len(fresh), len(missing))
	}
	for j, vec := range fresh {
		out[idx[j]] = vec
		e.store(ctx, missing[j], vec)
	}
	return out, nil
}

func (e *Embedder) key(text string) string {
	sum := sha1.Sum([]byte(text))
	return e.prefix + e.inner.Name() + ":" + hex.EncodeToString(sum[:])
}

func (e *Embedder) lookup(ctx context.Context, text string) ([]float64, bool) {
	raw, err := e.client.Get(ctx, e.key(text)).Bytes()
	if err != nil {
		if !errors.Is(err, redis.Nil) {
			e.logger.Printf("get failed: %v", err)
		}
		return nil, false
	}
	vec, err := decode(raw)
	if err != nil {
		e.logger.Printf("discarding entry: %v", err)
		return nil, false
	}
	return vec, true
}

func (e *Embedder) store(ctx context.Context, text string, vec []float64) {
	if err := e.client.Set(ctx, e.key(text), encode(vec), e.ttl).Err(); err != nil {
		e.logger.Printf("set failed: %v", err)
	}
}

func encode(vec []float64) []byte {
	buf := make([]byte, 8*len(vec))
	for i, x := range vec {
		binary.LittleEndian.PutUint64(buf[i*8:], math.Float64bits(x))
	}
	return buf
}

func decode(raw []byte) ([]float64, error) {
	if len(raw) == 0 || len(raw)%8 != 0 {
		return nil, fmt.Errorf("bad vector length %d", len(raw))
	}
	vec := make([]float64, len(raw)/8)
	for i := range vec {
		vec[i] = math.Float64frombits(binary.LittleEndian.Uint64(raw[i*8:]))
	}
	return vec, nil
}
