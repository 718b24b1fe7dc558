package retrieval

import (
	"strings"
	"testing"
	"unicode/utf8"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"handbook/internal/domain"
)

func hit(id, code, chunkType string, ordinal int, score float64) domain.SearchResult {
	return domain.SearchResult{
		Chunk: domain.Chunk{ID: id, CourseCode: code, CourseName: "Name", Type: chunkType, Label: chunkType, Text: chunkType + " text " + id, Ordinal: ordinal},
		Score: score,
	}
}

func ids(chunks []domain.RetrievedChunk) []string {
	out := make([]string, len(chunks))
	for i, c := range chunks {
		out[i] = c.Chunk.ID
	}
	return out
}

func TestRankOrdersByScoreThenTypeThenOrder(t *testing.T) {
	hits := []domain.SearchResult{
		hit("x", "C00001", "fees", 0, 0.5),
		hit("c", "C00001", domain.ChunkCareer, 1, 0.5),
		hit("o", "C00001", domain.ChunkOverview, 0, 0.5),
		hit("top", "C00001", "fees", 1, 0.9),
		hit("a", "C00001", domain.ChunkAdmission, 0, 0.5),
		hit("y", "C00001", "structure", 0, 0.5),
	}
	ranked := Rank(hits)
	assert.Equal(t, []string{"top", "o", "a", "c", "x", "y"}, ids(ranked))
	for i, r := range ranked {
		assert.Equal(t, i+1, r.Rank)
	}
}

func TestRankDeduplicates(t *testing.T) {
	hits := []domain.SearchResult{
		hit("a", "C00001", domain.ChunkOverview, 0, 0.9),
		hit("a2", "C00001", domain.ChunkOverview, 0, 0.8),
		hit("b", "C00002", domain.ChunkOverview, 0, 0.7),
		hit("c1", "C00001", domain.ChunkCareer, 1, 0.6),
		hit("c2", "C00001", domain.ChunkCareer, 2, 0.6),
	}
	assert.Equal(t, []string{"a", "b", "c1", "c2"}, ids(Rank(hits)))
}

func TestRankIsDeterministic(t *testing.T) {
	hits := []domain.SearchResult{
		hit("a", "C00001", "x", 0, 0.5),
		hit("b", "C00001", "y", 0, 0.5),
		hit("c", "C00001", "z", 0, 0.5),
	}
	first := Rank(hits)
	for i := 0; i < 10; i++ {
		assert.Equal(t, first, Rank(hits))
	}
}

func TestAssembleRespectsBudget(t *testing.T) {
	ranked := Rank([]domain.SearchResult{
		hit("a", "C00001", domain.ChunkOverview, 0, 0.9),
		hit("b", "C00001", domain.ChunkAdmission, 0, 0.8),
		hit("c", "C00001", domain.ChunkCareer, 1, 0.7),
	})
	full, all := Assemble(ranked, 100000)
	require.Len(t, full, 3)

	for budget := 0; budget <= utf8.RuneCountInString(all)+5; budget++ {
		kept, ctx := Assemble(ranked, budget)
		assert.LessOrEqual(t, utf8.RuneCountInString(ctx), budget)
		// whole-chunk prefix of the ranking
		assert.Equal(t, ids(ranked[:len(kept)]), ids(kept))
		for _, k := range kept {
			assert.Contains(t, ctx, k.Chunk.Text)
		}
	}
}

func TestFormatChunk(t *testing.T) {
	c := domain.Chunk{CourseCode: "C04379", CourseName: "Master of Business Analytics", Label: "Admission Requirements", Text: "Admission Requirements:\nBachelor's degree required."}
	assert.Equal(t, "[Course Code: C04379 | (Master of Business Analytics) | - Admission Requirements]\nAdmission Requirements:\nBachelor's degree required.", FormatChunk(c))
	assert.True(t, strings.HasPrefix(FormatChunk(domain.Chunk{Type: "overview", Text: "t"}), "[- overview]"))
}
