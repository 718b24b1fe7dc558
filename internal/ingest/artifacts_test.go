package ingest

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"handbook/internal/domain"
)

func sampleChunks() []domain.Chunk {
	return []domain.Chunk{
		{ID: "a", CourseCode: "C04379", CourseName: "Analytics", Type: domain.ChunkOverview, Label: "Overview", Text: "Overview:\nStudy."},
		{ID: "b", CourseCode: "C04379", CourseName: "Analytics", Type: domain.ChunkCareer, Label: "Career Options", Text: "Career Options:\nAnalyst", Ordinal: 1},
	}
}

func TestArtifactsRoundTrip(t *testing.T) {
	dir := t.TempDir()
	vectors := [][]float32{{1, 0, 0.5}, {0, -1, 0.25}}
	m, err := WriteArtifacts(dir, sampleChunks(), vectors, "tfidf")
	require.NoError(t, err)
	assert.Equal(t, 2, m.NPoints)
	assert.Equal(t, 3, m.Dim)
	assert.Equal(t, 1, m.Courses)

	got, points, err := ReadArtifacts(dir)
	require.NoError(t, err)
	assert.Equal(t, "tfidf", got.EmbedModel)
	require.Len(t, points, 2)
	assert.Equal(t, "b", points[1].ID)
	assert.Equal(t, vectors[1], points[1].Vector)
	assert.Equal(t, sampleChunks()[1], points[1].Chunk)
}

func TestWriteArtifactsRejectsBadInput(t *testing.T) {
	dir := t.TempDir()
	_, err := WriteArtifacts(dir, sampleChunks(), [][]float32{{1}}, "m")
	assert.True(t, domain.IsKind(err, domain.KindIngestionIntegrity))

	dup := sampleChunks()
	dup[1].ID = "a"
	_, err = WriteArtifacts(dir, dup, [][]float32{{1}, {2}}, "m")
	assert.True(t, domain.IsKind(err, domain.KindIngestionIntegrity))

	_, err = WriteArtifacts(dir, sampleChunks(), [][]float32{{1, 2}, {2}}, "m")
	assert.True(t, domain.IsKind(err, domain.KindIngestionIntegrity))
}

func TestReadArtifactsDetectsCorruption(t *testing.T) {
	t.Run("missing vectors", func(t *testing.T) {
		dir := t.TempDir()
		_, err := WriteArtifacts(dir, sampleChunks(), [][]float32{{1}, {2}}, "m")
		require.NoError(t, err)
		require.NoError(t, os.Remove(filepath.Join(dir, VectorsFile)))

		_, _, err = ReadArtifacts(dir)
		assert.True(t, domain.IsKind(err, domain.KindIngestionIntegrity))
	})

	t.Run("row mismatch", func(t *testing.T) {
		dir := t.TempDir()
		_, err := WriteArtifacts(dir, sampleChunks(), [][]float32{{1}, {2}}, "m")
		require.NoError(t, err)
		f, err := os.OpenFile(filepath.Join(dir, ChunksFile), os.O_APPEND|os.O_WRONLY, 0)
		require.NoError(t, err)
		_, err = f.WriteString(`{"id":"c","course_code":"C04379","chunk_type":"notes","text":"x"}` + "\n")
		require.NoError(t, err)
		require.NoError(t, f.Close())

		_, _, err = ReadArtifacts(dir)
		assert.True(t, domain.IsKind(err, domain.KindIngestionIntegrity))
		assert.ErrorContains(t, err, "row mismatch")
	})

	t.Run("missing dir", func(t *testing.T) {
		_, _, err := ReadArtifacts(filepath.Join(t.TempDir(), "nope"))
		assert.True(t, domain.IsKind(err, domain.KindIngestionIntegrity))
	})
}

func TestArtifactsExist(t *testing.T) {
	dir := t.TempDir()
	ok, err := ArtifactsExist(dir)
	require.NoError(t, err)
	assert.False(t, ok)

	ok, err = ArtifactsExist(filepath.Join(dir, "missing"))
	require.NoError(t, err)
	assert.False(t, ok)

	_, err = WriteArtifacts(dir, sampleChunks(), [][]float32{{1, 0}, {0, 1}}, "tfidf")
	require.NoError(t, err)
	ok, err = ArtifactsExist(dir)
	require.NoError(t, err)
	assert.True(t, ok)

	for _, name := range []string{VectorsFile, ChunksFile} {
		require.NoError(t, os.Remove(filepath.Join(dir, name)))
		ok, err = ArtifactsExist(dir)
		assert.False(t, ok)
		require.Error(t, err, "after removing %s", name)
		assert.True(t, domain.IsKind(err, domain.KindIngestionIntegrity))
		assert.Contains(t, err.Error(), name)
	}
}
