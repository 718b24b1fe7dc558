package domain

import (
	"context"
	"strings"
)

// Well-known chunk types. Any other section name is a valid chunk type too.
const (
	ChunkOverview   = "overview"
	ChunkAdmission  = "admission_requirements"
	ChunkCareer     = "career_options"
	ChunkCourseInfo = "course_info"
	ChunkOutcome    = "learning_outcomes"
)

// Fact is a scalar course attribute such as credit points or faculty.
type Fact struct {
	Label string
	Value string
}

// Section is one named part of a course record. A section carries either
// free text or a list of items.
type Section struct {
	Label string
	Text  string
	Items []string
}

// Empty reports whether the section would produce no chunk.
func (s Section) Empty() bool {
	if strings.TrimSpace(s.Text) != "" {
		return false
	}
	for _, it := range s.Items {
		if strings.TrimSpace(it) != "" {
			return false
		}
	}
	return true
}

// CourseRecord is the source unit of ingestion.
type CourseRecord struct {
	Code     string
	Name     string
	Facts    []Fact
	Sections map[string]Section
}

// Chunk is a semantically meaningful part of a course record used for indexing.
type Chunk struct {
	ID         string `json:"id"`
	CourseCode string `json:"course_code"`
	CourseName string `json:"course_name"`
	Type       string `json:"chunk_type"`
	Label      string `json:"label,omitempty"`
	Text       string `json:"text"`
	Ordinal    int    `json:"ordinal,omitempty"`
}

// IndexedPoint is what the vector index stores: one vector plus its chunk payload.
type IndexedPoint struct {
	ID     string
	Vector []float32
	Chunk  Chunk
}

// Filter restricts a search to a payload subset. The zero value matches everything.
type Filter struct {
	CourseCode string
}

// IsZero reports whether the filter places no constraint.
func (f Filter) IsZero() bool { return f.CourseCode == "" }

// SearchResult represents a matching chunk with a relevance score.
type SearchResult struct {
	Chunk Chunk
	Score float64
}

// RetrievedChunk is a post-processed search hit with its final rank (1-based).
type RetrievedChunk struct {
	Chunk Chunk
	Score float64
	Rank  int
}

// CourseRef identifies one distinct course present in the index.
type CourseRef struct {
	Code string `json:"code"`
	Name string `json:"name"`
}

// Turn is a prior conversation message supplied by the caller.
type Turn struct {
	Text string `json:"text"`
	Type string `json:"type"`
}

// Turn types.
const (
	TurnUser = "user"
	TurnBot  = "bot"
)

// QueryContext carries everything known about one chat request.
type QueryContext struct {
	Message          string
	CourseCode       string
	CourseName       string
	History          []Turn
	Concise          bool
	UsePreprocessing bool
}

// Embedder converts texts into fixed-length vectors. The output has the same
// length and order as the input.
type Embedder interface {
	Name() string
	Dimension() int
	Embed(ctx context.Context, texts []string) ([][]float32, error)
}

// Preparer is implemented by embedders that learn from the corpus before use.
type Preparer interface {
	Prepare(corpus []string) error
}

// FitsCorpus reports whether e learns from the corpus, looking through
// decorators that expose Unwrap.
func FitsCorpus(e Embedder) bool {
	for e != nil {
		if u, ok := e.(interface{ Unwrap() Embedder }); ok {
			e = u.Unwrap()
			continue
		}
		_, ok := e.(Preparer)
		return ok
	}
	return false
}

// HealthChecker reports reachability of an external dependency.
type HealthChecker interface {
	Healthy(ctx context.Context) bool
}

// Chunker splits course records into chunks suitable for retrieval indexing.
type Chunker interface {
	Chunk(record CourseRecord) ([]Chunk, error)
}

// VectorIndex persists points and supports filtered similarity search.
type VectorIndex interface {
	Init(ctx context.Context, dimension int) error
	Upsert(ctx context.Context, points []IndexedPoint) error
	Search(ctx context.Context, vector []float32, limit int, filter Filter) ([]SearchResult, error)
	Delete(ctx context.Context, filter Filter) error
	Courses(ctx context.Context) ([]CourseRef, error)
	Healthy(ctx context.Context) bool
	Clear(ctx context.Context) error
}

// Prompt is the fully assembled input to a generative model.
type Prompt struct {
	System string
	User   string
}

// Generator turns a prompt into answer text.
type Generator interface {
	Name() string
	Generate(ctx context.Context, prompt Prompt) (string, error)
}

// Summarizer produces a brief summary of the provided text.
type Summarizer interface {
	Summarize(text string, maxSentences int) (string, error)
}

// TypePriority orders chunk types for tie-breaking: lower comes first.
func TypePriority(chunkType string) int {
	switch chunkType {
	case ChunkOverview:
		return 0
	case ChunkAdmission:
		return 1
	case ChunkCareer:
		return 2
	}
	return 3
}
