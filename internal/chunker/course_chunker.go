package chunker

import (
	"fmt"
	"sort"
	"strings"
	"unicode"
	"unicode/utf8"

	"github.com/google/uuid"

	"handbook/internal/coursecode"
	"handbook/internal/domain"
)

// CourseChunker turns one course record into typed chunks. Short sections
// become one chunk, list sections one chunk per item, and long sections are
// split on sentence boundaries into numbered parts.
type CourseChunker struct {
	splitter *SentenceSplitter
}

func NewCourseChunker(maxChunkChars, overlapSentences int) *CourseChunker {
	return &CourseChunker{splitter: NewSentenceSplitter(maxChunkChars, overlapSentences)}
}

// Chunk implements domain.Chunker.
func (c *CourseChunker) Chunk(record domain.CourseRecord) ([]domain.Chunk, error) {
	code := coursecode.Normalize(record.Code)
	if !coursecode.Valid(code) {
		return nil, domain.Integrity("chunker.chunk", "invalid course code %q", record.Code)
	}
	name := strings.TrimSpace(record.Name)

	var chunks []domain.Chunk
	if info := courseInfoText(code, name, record.Facts); info != "" {
		chunks = append(chunks, newChunk(code, name, domain.ChunkCourseInfo, "Course Information", info, 0))
	}
	for _, key := range sectionOrder(record.Sections) {
		section := record.Sections[key]
		if section.Empty() {
			continue
		}
		label := section.Label
		if label == "" {
			label = humanize(key)
		}
		if len(section.Items) > 0 {
			ordinal := 0
			for _, item := range section.Items {
				item = strings.TrimSpace(item)
				if item == "" {
					continue
				}
				ordinal++
				chunks = append(chunks, newChunk(code, name, key, label, item, ordinal))
			}
			continue
		}
		parts := c.splitter.Split(section.Text)
		if len(parts) == 1 {
			chunks = append(chunks, newChunk(code, name, key, label, parts[0], 0))
			continue
		}
		for i, part := range parts {
			chunks = append(chunks, newChunk(code, name, key, label, part, i+1))
		}
	}
	return chunks, nil
}

// ChunkID derives the point identifier for a course section position.
func ChunkID(code, chunkType string, ordinal int) string {
	key := fmt.Sprintf("course|%s|type:%s|ordinal:%d", code, chunkType, ordinal)
	return uuid.NewSHA1(uuid.NameSpaceURL, []byte(key)).String()
}

func newChunk(code, name, chunkType, label, body string, ordinal int) domain.Chunk {
	return domain.Chunk{
		ID:         ChunkID(code, chunkType, ordinal),
		CourseCode: code,
		CourseName: name,
		Type:       chunkType,
		Label:      label,
		Text:       label + ":\n" + body,
		Ordinal:    ordinal,
	}
}

func courseInfoText(code, name string, facts []domain.Fact) string {
	var lines []string
	for _, f := range facts {
		v := strings.TrimSpace(f.Value)
		if v == "" {
			continue
		}
		lines = append(lines, fmt.Sprintf("%s: %s", f.Label, v))
	}
	if len(lines) == 0 {
		return ""
	}
	header := fmt.Sprintf("Course Code: %s", code)
	if name != "" {
		header = fmt.Sprintf("Course: %s (%s)", name, code)
	}
	return header + "\n" + strings.Join(lines, "\n")
}

// sectionOrder sorts well-known sections first, the rest alphabetically.
func sectionOrder(sections map[string]domain.Section) []string {
	keys := make([]string, 0, len(sections))
	for k := range sections {
		keys = append(keys, k)
	}
	sort.Slice(keys, func(i, j int) bool {
		pi, pj := domain.TypePriority(keys[i]), domain.TypePriority(keys[j])
		if pi != pj {
			return pi < pj
		}
		return keys[i] < keys[j]
	})
	return keys
}

func humanize(key string) string {
	words := strings.Fields(strings.ReplaceAll(key, "_", " "))
	for i, w := range words {
		r, size := utf8.DecodeRuneInString(w)
		words[i] = string(unicode.ToUpper(r)) + w[size:]
	}
	return strings.Join(words, " ")
}
