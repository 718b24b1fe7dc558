package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadMissingFileReturnsDefaults(t *testing.T) {
	cfg, err := Load(filepath.Join(t.TempDir(), "absent.yaml"))
	require.NoError(t, err)

	assert.Equal(t, 8000, cfg.Server.Port)
	assert.Equal(t, 30, cfg.Retrieval.K)
	assert.Equal(t, 8, cfg.Retrieval.TopN)
	assert.Equal(t, 4000, cfg.Retrieval.MaxContextChars)
	assert.Equal(t, 10, cfg.Retrieval.HistoryTurns)
	assert.Equal(t, "tfidf", cfg.Embedder.Type)
	assert.Equal(t, 32, cfg.Embedder.BatchSize)
	assert.Equal(t, "memory", cfg.VectorStore.Type)
	assert.Equal(t, 64, cfg.Ingest.UpsertBatch)
}

func TestLoadFillsNestedDefaults(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	data := []byte(`
vector_store:
  type: qdrant
generator:
  type: ollama
retrieval:
  k: 40
`)
	require.NoError(t, os.WriteFile(path, data, 0o644))

	cfg, err := Load(path)
	require.NoError(t, err)
	require.NotNil(t, cfg.VectorStore.Qdrant)
	assert.Equal(t, "courses", cfg.VectorStore.Qdrant.Collection)
	assert.Equal(t, "http://localhost:6333", cfg.VectorStore.Qdrant.URL)
	require.NotNil(t, cfg.Generator.Ollama)
	assert.Equal(t, "qwen2.5:7b", cfg.Generator.Ollama.Model)
	assert.Equal(t, 40, cfg.Retrieval.K)
	assert.Equal(t, 8, cfg.Retrieval.TopN)
}

func TestEnvOverrides(t *testing.T) {
	t.Setenv("HANDBOOK_K", "50")
	t.Setenv("HANDBOOK_TOPN", "5")
	t.Setenv("HANDBOOK_MODEL", "llama3")
	t.Setenv("OLLAMA_HOST", "gpu-box:11434")
	t.Setenv("QDRANT_URL", "http://qdrant:6333")
	t.Setenv("HANDBOOK_DEFAULT_COLLECTION", "handbook")
	t.Setenv("PORT", "9000")

	cfg, err := Load(filepath.Join(t.TempDir(), "absent.yaml"))
	require.NoError(t, err)
	assert.Equal(t, 50, cfg.Retrieval.K)
	assert.Equal(t, 5, cfg.Retrieval.TopN)
	assert.Equal(t, 9000, cfg.Server.Port)
	require.NotNil(t, cfg.Generator.Ollama)
	assert.Equal(t, "llama3", cfg.Generator.Ollama.Model)
	assert.Equal(t, "http://gpu-box:11434", cfg.Generator.Ollama.Host)
	require.NotNil(t, cfg.VectorStore.Qdrant)
	assert.Equal(t, "http://qdrant:6333", cfg.VectorStore.Qdrant.URL)
	assert.Equal(t, "handbook", cfg.VectorStore.Qdrant.Collection)
}

func TestEnvOverrideRejectsGarbage(t *testing.T) {
	t.Setenv("HANDBOOK_K", "many")
	_, err := Load(filepath.Join(t.TempDir(), "absent.yaml"))
	assert.ErrorContains(t, err, "HANDBOOK_K")
}

func TestValidateTopNAboveK(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte("retrieval:\n  k: 4\n  top_n: 6\n"), 0o644))
	_, err := Load(path)
	assert.ErrorContains(t, err, "top_n")
}

func TestSaveRoundTrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nested", "config.yaml")
	cfg := defaultConfig()
	cfg.Ingest.DataDir = "/srv/courses"
	require.NoError(t, Save(path, cfg))

	loaded, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, "/srv/courses", loaded.Ingest.DataDir)
}
