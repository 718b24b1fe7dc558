package ingest

import (
	"bufio"
	"encoding/binary"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"math"
	"os"
	"path/filepath"
	"strings"
	"time"

	"handbook/internal/domain"
)

// Artifact file names inside an artifacts directory.
const (
	ChunksFile   = "chunks.jsonl"
	VectorsFile  = "vectors.f32"
	ManifestFile = "manifest.json"
)

// Manifest describes a set of row-aligned artifacts.
type Manifest struct {
	CreatedAt  time.Time `json:"created_at"`
	NPoints    int       `json:"n_points"`
	Dim        int       `json:"dim"`
	EmbedModel string    `json:"embed_model"`
	Courses    int       `json:"courses"`
}

// WriteArtifacts stores chunks and their vectors under dir. vectors[i] belongs
// to chunks[i].
func WriteArtifacts(dir string, chunks []domain.Chunk, vectors [][]float32, model string) (Manifest, error) {
	const op = "ingest.write_artifacts"
	if len(chunks) != len(vectors) {
		return Manifest{}, domain.Integrity(op, "%d chunks but %d vectors", len(chunks), len(vectors))
	}
	if len(chunks) == 0 {
		return Manifest{}, domain.Integrity(op, "nothing to write")
	}
	if err := checkUniqueIDs(op, chunks); err != nil {
		return Manifest{}, err
	}
	dim := len(vectors[0])
	for i, v := range vectors {
		if len(v) != dim || dim == 0 {
			return Manifest{}, domain.Integrity(op, "vector %d has dimension %d, expected %d", i, len(v), dim)
		}
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return Manifest{}, err
	}

	if err := writeFile(filepath.Join(dir, ChunksFile), func(w io.Writer) error {
		enc := json.NewEncoder(w)
		enc.SetEscapeHTML(false)
		for _, ch := range chunks {
			if err := enc.Encode(ch); err != nil {
				return err
			}
		}
		return nil
	}); err != nil {
		return Manifest{}, fmt.Errorf("write chunks: %w", err)
	}

	if err := writeFile(filepath.Join(dir, VectorsFile), func(w io.Writer) error {
		buf := make([]byte, 4*dim)
		for _, v := range vectors {
			for j, x := range v {
				binary.LittleEndian.PutUint32(buf[4*j:], math.Float32bits(x))
			}
			if _, err := w.Write(buf); err != nil {
				return err
			}
		}
		return nil
	}); err != nil {
		return Manifest{}, fmt.Errorf("write vectors: %w", err)
	}

	courses := make(map[string]struct{})
	for _, ch := range chunks {
		courses[ch.CourseCode] = struct{}{}
	}
	m := Manifest{
		CreatedAt:  time.Now().UTC().Truncate(time.Second),
		NPoints:    len(chunks),
		Dim:        dim,
		EmbedModel: model,
		Courses:    len(courses),
	}
	if err := writeFile(filepath.Join(dir, ManifestFile), func(w io.Writer) error {
		enc := json.NewEncoder(w)
		enc.SetIndent("", "  ")
		return enc.Encode(m)
	}); err != nil {
		return Manifest{}, fmt.Errorf("write manifest: %w", err)
	}
	return m, nil
}

// ArtifactsExist reports whether dir holds a complete artifact set. No files
// at all is (false, nil); a partial set is an ingestion integrity error.
func ArtifactsExist(dir string) (bool, error) {
	const op = "ingest.artifacts_exist"
	var present, absent []string
	for _, name := range []string{ManifestFile, ChunksFile, VectorsFile} {
		_, err := os.Stat(filepath.Join(dir, name))
		switch {
		case err == nil:
			present = append(present, name)
		case errors.Is(err, os.ErrNotExist):
			absent = append(absent, name)
		default:
			return false, err
		}
	}
	switch {
	case len(present) == 0:
		return false, nil
	case len(absent) > 0:
		return false, domain.Integrity(op, "incomplete artifacts in %s: missing %s", dir, strings.Join(absent, ", "))
	}
	return true, nil
}

// ReadArtifacts loads artifacts written by WriteArtifacts. A missing file or a
// row count mismatch is an ingestion integrity error.
func ReadArtifacts(dir string) (Manifest, []domain.IndexedPoint, error) {
	const op = "ingest.read_artifacts"
	var m Manifest
	data, err := os.ReadFile(filepath.Join(dir, ManifestFile))
	if err != nil {
		return m, nil, missing(op, err)
	}
	if err := json.Unmarshal(data, &m); err != nil {
		return m, nil, domain.Errorf(domain.KindIngestionIntegrity, op, err, "decode manifest")
	}
	if m.Dim <= 0 {
		return m, nil, domain.Integrity(op, "manifest has invalid dimension %d", m.Dim)
	}

	chunks, err := readChunks(filepath.Join(dir, ChunksFile))
	if err != nil {
		return m, nil, err
	}
	if err := checkUniqueIDs(op, chunks); err != nil {
		return m, nil, err
	}

	raw, err := os.ReadFile(filepath.Join(dir, VectorsFile))
	if err != nil {
		return m, nil, missing(op, err)
	}
	rowBytes := 4 * m.Dim
	if len(raw)%rowBytes != 0 {
		return m, nil, domain.Integrity(op, "vectors file size %d is not a multiple of row size %d", len(raw), rowBytes)
	}
	rows := len(raw) / rowBytes
	if rows != len(chunks) || rows != m.NPoints {
		return m, nil, domain.Integrity(op, "row mismatch: %d vectors, %d chunks, manifest says %d", rows, len(chunks), m.NPoints)
	}

	points := make([]domain.IndexedPoint, rows)
	for i := range points {
		vec := make([]float32, m.Dim)
		row := raw[i*rowBytes : (i+1)*rowBytes]
		for j := range vec {
			vec[j] = math.Float32frombits(binary.LittleEndian.Uint32(row[4*j:]))
		}
		points[i] = domain.IndexedPoint{ID: chunks[i].ID, Vector: vec, Chunk: chunks[i]}
	}
	return m, points, nil
}

func readChunks(path string) ([]domain.Chunk, error) {
	const op = "ingest.read_artifacts"
	f, err := os.Open(path)
	if err != nil {
		return nil, missing(op, err)
	}
	defer f.Close()

	var chunks []domain.Chunk
	sc := bufio.NewScanner(f)
	sc.Buffer(make([]byte, 0, 64*1024), 16*1024*1024)
	line := 0
	for sc.Scan() {
		line++
		if len(sc.Bytes()) == 0 {
			continue
		}
		var ch domain.Chunk
		if err := json.Unmarshal(sc.Bytes(), &ch); err != nil {
			return nil, domain.Errorf(domain.KindIngestionIntegrity, op, err, "%s line %d", ChunksFile, line)
		}
		if ch.ID == "" || ch.Text == "" || ch.CourseCode == "" {
			return nil, domain.Integrity(op, "%s line %d: missing id, text or course code", ChunksFile, line)
		}
		chunks = append(chunks, ch)
	}
	if err := sc.Err(); err != nil {
		return nil, err
	}
	return chunks, nil
}

func checkUniqueIDs(op string, chunks []domain.Chunk) error {
	seen := make(map[string]struct{}, len(chunks))
	for _, ch := range chunks {
		if _, dup := seen[ch.ID]; dup {
			return domain.Integrity(op, "duplicate chunk id %s (%s %s)", ch.ID, ch.CourseCode, ch.Type)
		}
		seen[ch.ID] = struct{}{}
	}
	return nil
}

func missing(op string, err error) error {
	if errors.Is(err, os.ErrNotExist) {
		return domain.Errorf(domain.KindIngestionIntegrity, op, err, "artifact missing")
	}
	return err
}

func writeFile(path string, fill func(io.Writer) error) error {
	tmp := path + ".tmp"
	f, err := os.Create(tmp)
	if err != nil {
		return err
	}
	w := bufio.NewWriter(f)
	if err := fill(w); err != nil {
		f.Close()
		os.Remove(tmp)
		return err
	}
	if err := w.Flush(); err != nil {
		f.Close()
		os.Remove(tmp)
		return err
	}
	if err := f.Close(); err != nil {
		os.Remove(tmp)
		return err
	}
	return os.Rename(tmp, path)
}
