// Package rediscache memoizes embeddings in Redis, keyed by model and text.
package rediscache

import (
	"context"
	"crypto/sha1"
	"encoding/binary"
	"encoding/hex"
	"fmt"
	"math"
	"time"

	"github.com/redis/go-redis/v9"

	"handbook/internal/domain"
	"handbook/internal/logger"
)

// Store is the subset of the Redis client the cache needs.
type Store interface {
	MGet(ctx context.Context, keys ...string) *redis.SliceCmd
	Set(ctx context.Context, key string, value interface{}, expiration time.Duration) *redis.StatusCmd
}

// Embedder wraps another embedder. Cache failures are logged and bypassed.
type Embedder struct {
	inner domain.Embedder
	store Store
	ttl   time.Duration
	log   *logger.Logger
}

func New(inner domain.Embedder, store Store, ttl time.Duration, log *logger.Logger) *Embedder {
	return &Embedder{
		inner: inner,
		store: store,
		ttl:   ttl,
		log:   log.With("component", "EmbeddingCache"),
	}
}

// Dial connects to Redis and verifies it answers.
func Dial(ctx context.Context, addr, password string, db int) (*redis.Client, error) {
	rdb := redis.NewClient(&redis.Options{
		Addr:        addr,
		Password:    password,
		DB:          db,
		DialTimeout: 5 * time.Second,
	})
	if err := rdb.Ping(ctx).Err(); err != nil {
		_ = rdb.Close()
		return nil, fmt.Errorf("redis ping: %w", err)
	}
	return rdb, nil
}

func (e *Embedder) Name() string   { return e.inner.Name() }
func (e *Embedder) Dimension() int { return e.inner.Dimension() }

func (e *Embedder) Unwrap() domain.Embedder { return e.inner }

func (e *Embedder) Prepare(corpus []string) error {
	if p, ok := e.inner.(domain.Preparer); ok {
		return p.Prepare(corpus)
	}
	return nil
}

func (e *Embedder) Healthy(ctx context.Context) bool {
	if hc, ok := e.inner.(domain.HealthChecker); ok {
		return hc.Healthy(ctx)
	}
	return true
}

// Embed serves cached vectors and embeds only the misses.
func (e *Embedder) Embed(ctx context.Context, texts []string) ([][]float32, error) {
	if len(texts) == 0 {
		return nil, nil
	}
	keys := make([]string, len(texts))
	for i, t := range texts {
		keys[i] = e.key(t)
	}
	out := make([][]float32, len(texts))
	vals, err := e.store.MGet(ctx, keys...).Result()
	if err != nil {
		e.log.Warn("embedding cache read failed", "error", err)
		vals = nil
	}
	var missIdx []int
	var missTexts []string
	for i := range texts {
		if i < len(vals) {
			if s, ok := vals[i].(string); ok {
				if v, ok := decode(s); ok {
					out[i] = v
					continue
				}
			}
		}
		missIdx = append(missIdx, i)
		missTexts = append(missTexts, texts[i])
	}
	if len(missTexts) == 0 {
		return out, nil
	}
	fresh, err := e.inner.Embed(ctx, missTexts)
	if err != nil {
		return nil, err
	}
	if len(fresh) != len(missTexts) {
		return nil, fmt.Errorf("expected %d vectors, got %d", len(missTexts), len(fresh))
	}
	for j, i := range missIdx {
		out[i] = fresh[j]
		if err := e.store.Set(ctx, keys[i], encode(fresh[j]), e.ttl).Err(); err != nil {
			e.log.Warn("embedding cache write failed", "error", err)
		}
	}
	return out, nil
}

func (e *Embedder) key(text string) string {
	sum := sha1.Sum([]byte(text))
	return "emb:" + e.inner.Name() + ":" + hex.EncodeToString(sum[:])
}

func encode(v []float32) string {
	buf := make([]byte, 4*len(v))
	for i, f := range v {
		binary.LittleEndian.PutUint32(buf[4*i:], math.Float32bits(f))
	}
	return string(buf)
}

func decode(s string) ([]float32, bool) {
	if len(s) == 0 || len(s)%4 != 0 {
		return nil, false
	}
	b := []byte(s)
	v := make([]float32, len(b)/4)
	for i := range v {
		v[i] = math.Float32frombits(binary.LittleEndian.Uint32(b[4*i:]))
	}
	return v, true
}
