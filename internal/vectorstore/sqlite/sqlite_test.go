package sqlite

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"handbook/internal/domain"
)

func openTemp(t *testing.T) *Storage {
	t.Helper()
	s, err := Open(filepath.Join(t.TempDir(), "index", "vectors.db"))
	require.NoError(t, err)
	t.Cleanup(func() { _ = s.Close() })
	return s
}

func pt(id, code string, v ...float32) domain.IndexedPoint {
	return domain.IndexedPoint{ID: id, Vector: v, Chunk: domain.Chunk{
		ID: id, CourseCode: code, CourseName: "Name " + code, Type: "overview", Label: "Overview", Text: "Overview:\n" + id,
	}}
}

func TestStorageRoundTrip(t *testing.T) {
	ctx := context.Background()
	s := openTemp(t)
	require.NoError(t, s.Init(ctx, 2))
	require.NoError(t, s.Upsert(ctx, []domain.IndexedPoint{
		pt("a", "C00001", 1, 0),
		pt("b", "C00002", 0, 1),
		pt("c", "C00002", 0.6, 0.8),
	}))
	require.NoError(t, s.Upsert(ctx, []domain.IndexedPoint{pt("a", "C00001", 1, 0)}))

	hits, err := s.Search(ctx, []float32{0, 1}, 10, domain.Filter{})
	require.NoError(t, err)
	require.Len(t, hits, 3)
	assert.Equal(t, "b", hits[0].Chunk.ID)
	assert.InDelta(t, 1.0, hits[0].Score, 1e-6)
	assert.Equal(t, "Overview:\nb", hits[0].Chunk.Text)

	hits, err = s.Search(ctx, []float32{1, 0}, 10, domain.Filter{CourseCode: "C00002"})
	require.NoError(t, err)
	require.Len(t, hits, 2)
	assert.Equal(t, "c", hits[0].Chunk.ID)

	refs, err := s.Courses(ctx)
	require.NoError(t, err)
	assert.Equal(t, []domain.CourseRef{{Code: "C00001", Name: "Name C00001"}, {Code: "C00002", Name: "Name C00002"}}, refs)

	require.NoError(t, s.Delete(ctx, domain.Filter{CourseCode: "C00002"}))
	hits, err = s.Search(ctx, []float32{1, 0}, 10, domain.Filter{})
	require.NoError(t, err)
	assert.Len(t, hits, 1)
	assert.True(t, s.Healthy(ctx))
}

func TestStorageDimensionChecks(t *testing.T) {
	ctx := context.Background()
	s := openTemp(t)
	require.NoError(t, s.Init(ctx, 2))
	assert.Error(t, s.Init(ctx, 3))
	assert.Error(t, s.Upsert(ctx, []domain.IndexedPoint{pt("a", "C00001", 1, 0, 0)}))
	assert.Error(t, s.Delete(ctx, domain.Filter{}))

	require.NoError(t, s.Clear(ctx))
	require.NoError(t, s.Init(ctx, 3))
}

func TestSearchRejectsQueryDimensionAfterReopen(t *testing.T) {
	ctx := context.Background()
	path := filepath.Join(t.TempDir(), "vectors.db")
	s, err := Open(path)
	require.NoError(t, err)
	require.NoError(t, s.Init(ctx, 3))
	require.NoError(t, s.Upsert(ctx, []domain.IndexedPoint{pt("a", "C00001", 1, 0, 0)}))
	require.NoError(t, s.Close())

	s, err = Open(path)
	require.NoError(t, err)
	t.Cleanup(func() { _ = s.Close() })

	hits, err := s.Search(ctx, []float32{1, 0}, 5, domain.Filter{})
	assert.Nil(t, hits)
	require.ErrorIs(t, err, domain.ErrDimensionMismatch)

	assert.Error(t, s.Upsert(ctx, []domain.IndexedPoint{pt("b", "C00001", 1, 0)}))

	hits, err = s.Search(ctx, []float32{1, 0, 0}, 5, domain.Filter{})
	require.NoError(t, err)
	require.Len(t, hits, 1)
	assert.InDelta(t, 1.0, hits[0].Score, 1e-6)
}
