package retrieval

import (
	"fmt"
	"sort"
	"strings"
	"unicode/utf8"

	"handbook/internal/domain"
)

const contextSeparator = "\n\n"

// Rank deduplicates hits and orders them by score descending, then chunk type
// priority, then original retrieval order. Ranks are 1-based.
func Rank(hits []domain.SearchResult) []domain.RetrievedChunk {
	type entry struct {
		hit   domain.SearchResult
		order int
	}
	seen := make(map[string]struct{}, len(hits))
	entries := make([]entry, 0, len(hits))
	for i, h := range hits {
		key := dedupKey(h.Chunk)
		if _, ok := seen[key]; ok {
			continue
		}
		seen[key] = struct{}{}
		entries = append(entries, entry{hit: h, order: i})
	}
	sort.SliceStable(entries, func(i, j int) bool {
		a, b := entries[i], entries[j]
		if a.hit.Score != b.hit.Score {
			return a.hit.Score > b.hit.Score
		}
		pa, pb := domain.TypePriority(a.hit.Chunk.Type), domain.TypePriority(b.hit.Chunk.Type)
		if pa != pb {
			return pa < pb
		}
		return a.order < b.order
	})
	out := make([]domain.RetrievedChunk, len(entries))
	for i, e := range entries {
		out[i] = domain.RetrievedChunk{Chunk: e.hit.Chunk, Score: e.hit.Score, Rank: i + 1}
	}
	return out
}

// Two hits for the same course section position carry the same content.
func dedupKey(c domain.Chunk) string {
	return fmt.Sprintf("%s|%s|%d", c.CourseCode, c.Type, c.Ordinal)
}

// Assemble renders the longest ranked prefix whose full context fits in
// maxChars characters. Chunks are never cut.
func Assemble(ranked []domain.RetrievedChunk, maxChars int) ([]domain.RetrievedChunk, string) {
	var b strings.Builder
	size := 0
	kept := 0
	for _, rc := range ranked {
		block := FormatChunk(rc.Chunk)
		add := utf8.RuneCountInString(block)
		if kept > 0 {
			add += len(contextSeparator)
		}
		if size+add > maxChars {
			break
		}
		if kept > 0 {
			b.WriteString(contextSeparator)
		}
		b.WriteString(block)
		size += add
		kept++
	}
	return ranked[:kept], b.String()
}

// FormatChunk tags chunk text with its course citation.
func FormatChunk(c domain.Chunk) string {
	var cite []string
	if c.CourseCode != "" {
		cite = append(cite, "Course Code: "+c.CourseCode)
	}
	if c.CourseName != "" {
		cite = append(cite, "("+c.CourseName+")")
	}
	label := c.Label
	if label == "" {
		label = c.Type
	}
	if label != "" {
		cite = append(cite, "- "+label)
	}
	return "[" + strings.Join(cite, " | ") + "]\n" + c.Text
}
