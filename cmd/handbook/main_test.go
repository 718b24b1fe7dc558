package main

import (
	"bytes"
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"handbook/internal/domain"
	"handbook/internal/ingest"
	"handbook/internal/vectorstore/memory"
)

func writeFixture(t *testing.T) string {
	t.Helper()
	root := t.TempDir()
	data := filepath.Join(root, "courses")
	require.NoError(t, os.MkdirAll(data, 0o755))
	require.NoError(t, os.WriteFile(filepath.Join(data, "analytics.json"), []byte(`{
  "course_code": "C04379",
  "course_name": "Master of Business Analytics",
  "overview": "Study business analytics.",
  "admission_requirements": "Bachelor's degree required."
}`), 0o644))
	require.NoError(t, os.WriteFile(filepath.Join(data, "sport.json"), []byte(`{
  "course_code": "C10302",
  "course_name": "Bachelor of Sport",
  "overview": "Learn exercise science and sport coaching."
}`), 0o644))

	conf := `
log:
  mode: dev
  level: error
embedder:
  type: tfidf
vector_store:
  type: memory
generator:
  type: extractive
ingest:
  data_dir: ` + data + `
  artifacts_dir: ` + filepath.Join(root, "kb") + `
`
	path := filepath.Join(root, "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(conf), 0o644))
	return path
}

func run(t *testing.T, args ...string) string {
	t.Helper()
	var out bytes.Buffer
	rootCmd.SetOut(&out)
	rootCmd.SetErr(&out)
	rootCmd.SetArgs(args)
	require.NoError(t, rootCmd.Execute(), out.String())
	return out.String()
}

func TestIngestThenAsk(t *testing.T) {
	conf := writeFixture(t)

	out := run(t, "--config", conf, "ingest", "--no-progress")
	assert.Contains(t, out, "Ingested 2 courses")

	out = run(t, "--config", conf, "courses")
	assert.Contains(t, out, "C04379  Master of Business Analytics")
	assert.Contains(t, out, "C10302  Bachelor of Sport")

	out = run(t, "--config", conf, "ask", "what are the admission requirements for c04379")
	assert.Contains(t, out, "Bachelor's degree required.")
	assert.Contains(t, out, "Filter: C04379 (message)")
	assert.NotContains(t, out, "C10302")

	out = run(t, "--config", conf, "ask", "admission", "for", "C99999")
	assert.Contains(t, out, "no information found for course C99999")
}

func TestUpsertRejectsMemoryStore(t *testing.T) {
	conf := writeFixture(t)
	rootCmd.SetArgs([]string{"--config", conf, "upsert"})
	rootCmd.SetOut(&bytes.Buffer{})
	rootCmd.SetErr(&bytes.Buffer{})
	assert.Error(t, rootCmd.Execute())
}

func TestLoadArtifactsRejectsPartialSet(t *testing.T) {
	conf := writeFixture(t)
	run(t, "--config", conf, "ingest", "--no-progress")
	ctx := context.Background()

	st := memory.NewStorage()
	require.NoError(t, loadArtifacts(ctx, st))
	assert.Positive(t, st.Len())

	require.NoError(t, os.Remove(filepath.Join(cfg.Ingest.ArtifactsDir, ingest.VectorsFile)))
	err := loadArtifacts(ctx, memory.NewStorage())
	require.Error(t, err)
	assert.True(t, domain.IsKind(err, domain.KindIngestionIntegrity))

	rootCmd.SetArgs([]string{"--config", conf, "ask", "admission for C04379"})
	rootCmd.SetOut(&bytes.Buffer{})
	rootCmd.SetErr(&bytes.Buffer{})
	assert.Error(t, rootCmd.Execute())
}

func TestLoadArtifactsToleratesEmptyDir(t *testing.T) {
	conf := writeFixture(t)
	run(t, "--config", conf, "courses")

	st := memory.NewStorage()
	require.NoError(t, loadArtifacts(context.Background(), st))
	assert.Zero(t, st.Len())
}
