package rediscache

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"handbook/internal/logger"
)

type fakeStore struct {
	data    map[string]string
	readErr error
}

func (f *fakeStore) MGet(_ context.Context, keys ...string) *redis.SliceCmd {
	if f.readErr != nil {
		return redis.NewSliceResult(nil, f.readErr)
	}
	vals := make([]interface{}, len(keys))
	for i, k := range keys {
		if v, ok := f.data[k]; ok {
			vals[i] = v
		}
	}
	return redis.NewSliceResult(vals, nil)
}

func (f *fakeStore) Set(_ context.Context, key string, value interface{}, _ time.Duration) *redis.StatusCmd {
	f.data[key] = value.(string)
	return redis.NewStatusResult("OK", nil)
}

type countingEmbedder struct {
	calls int
	seen  []string
}

func (c *countingEmbedder) Name() string   { return "fake" }
func (c *countingEmbedder) Dimension() int { return 2 }
func (c *countingEmbedder) Embed(_ context.Context, texts []string) ([][]float32, error) {
	c.calls++
	c.seen = append(c.seen, texts...)
	out := make([][]float32, len(texts))
	for i, t := range texts {
		out[i] = []float32{float32(len(t)), 0.5}
	}
	return out, nil
}

func TestCacheServesHits(t *testing.T) {
	inner := &countingEmbedder{}
	store := &fakeStore{data: map[string]string{}}
	c := New(inner, store, time.Hour, logger.Nop())

	first, err := c.Embed(context.Background(), []string{"abc", "de"})
	require.NoError(t, err)
	assert.Equal(t, 1, inner.calls)
	assert.Len(t, store.data, 2)

	second, err := c.Embed(context.Background(), []string{"de", "fghi", "abc"})
	require.NoError(t, err)
	assert.Equal(t, 2, inner.calls)
	assert.Equal(t, []string{"abc", "de", "fghi"}, inner.seen)
	assert.Equal(t, first[1], second[0])
	assert.Equal(t, first[0], second[2])
	assert.Equal(t, []float32{4, 0.5}, second[1])
}

func TestCacheBypassedOnReadError(t *testing.T) {
	inner := &countingEmbedder{}
	store := &fakeStore{data: map[string]string{}, readErr: errors.New("connection refused")}
	c := New(inner, store, time.Hour, logger.Nop())

	out, err := c.Embed(context.Background(), []string{"abc"})
	require.NoError(t, err)
	assert.Equal(t, []float32{3, 0.5}, out[0])
}

func TestEncodeDecode(t *testing.T) {
	v := []float32{0.25, -1.5, 3}
	got, ok := decode(encode(v))
	require.True(t, ok)
	assert.Equal(t, v, got)
	_, ok = decode("abc")
	assert.False(t, ok)
}
