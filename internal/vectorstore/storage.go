// Package vectorstore holds helpers shared by the vector index backends.
package vectorstore

import (
	"math"
	"sort"

	"handbook/internal/domain"
)

// Payload keys stored alongside every point.
const (
	KeyCourseCode = "course_code"
	KeyCourseName = "course_name"
	KeyChunkType  = "chunk_type"
	KeyLabel      = "label"
	KeyText       = "text"
	KeyOrdinal    = "ordinal"
	KeyChunkID    = "chunk_id"
)

// Payload flattens chunk metadata for storage.
func Payload(c domain.Chunk) map[string]any {
	return map[string]any{
		KeyChunkID:    c.ID,
		KeyCourseCode: c.CourseCode,
		KeyCourseName: c.CourseName,
		KeyChunkType:  c.Type,
		KeyLabel:      c.Label,
		KeyText:       c.Text,
		KeyOrdinal:    c.Ordinal,
	}
}

// ChunkFromPayload rebuilds a chunk from a decoded JSON payload.
func ChunkFromPayload(id string, p map[string]any) domain.Chunk {
	c := domain.Chunk{ID: id}
	if v, ok := p[KeyChunkID].(string); ok && v != "" {
		c.ID = v
	}
	c.CourseCode, _ = p[KeyCourseCode].(string)
	c.CourseName, _ = p[KeyCourseName].(string)
	c.Type, _ = p[KeyChunkType].(string)
	c.Label, _ = p[KeyLabel].(string)
	c.Text, _ = p[KeyText].(string)
	switch v := p[KeyOrdinal].(type) {
	case float64:
		c.Ordinal = int(v)
	case int:
		c.Ordinal = v
	case int64:
		c.Ordinal = int(v)
	}
	return c
}

// Cosine returns the cosine similarity of a and b, or 0 when either is zero.
func Cosine(a, b []float32) float64 {
	n := min(len(a), len(b))
	var dot, na, nb float64
	for i := 0; i < n; i++ {
		x, y := float64(a[i]), float64(b[i])
		dot += x * y
		na += x * x
		nb += y * y
	}
	if na == 0 || nb == 0 {
		return 0
	}
	return dot / (math.Sqrt(na) * math.Sqrt(nb))
}

// SortResults orders hits by score descending, ties by chunk id, and keeps at most limit.
func SortResults(hits []domain.SearchResult, limit int) []domain.SearchResult {
	sort.SliceStable(hits, func(i, j int) bool {
		if hits[i].Score != hits[j].Score {
			return hits[i].Score > hits[j].Score
		}
		return hits[i].Chunk.ID < hits[j].Chunk.ID
	})
	if limit > 0 && len(hits) > limit {
		hits = hits[:limit]
	}
	return hits
}

// SortCourses orders course refs by code.
func SortCourses(refs []domain.CourseRef) []domain.CourseRef {
	sort.Slice(refs, func(i, j int) bool { return refs[i].Code < refs[j].Code })
	return refs
}

// CheckPoints validates a batch against the expected dimension. A zero
// dimension adopts the first vector's length.
func CheckPoints(op string, dimension int, points []domain.IndexedPoint) (int, error) {
	for i, p := range points {
		if p.ID == "" {
			return dimension, domain.Validation(op, "point id is required")
		}
		if dimension == 0 {
			dimension = len(p.Vector)
		}
		if len(p.Vector) == 0 || len(p.Vector) != dimension {
			return dimension, domain.Errorf(domain.KindValidation, op, nil,
				"point %d (%s) has dimension %d, index expects %d", i, p.ID, len(p.Vector), dimension)
		}
	}
	return dimension, nil
}
