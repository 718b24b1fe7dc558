package chunker

import (
	"regexp"
	"strings"
)

// SentenceSplitter packs sentences into parts no longer than maxChars,
// repeating overlapSentences trailing sentences at the start of the next part.
// A single sentence longer than maxChars becomes its own part.
type SentenceSplitter struct {
	maxChars         int
	overlapSentences int
	splitter         *regexp.Regexp
}

func NewSentenceSplitter(maxChars, overlapSentences int) *SentenceSplitter {
	if maxChars <= 0 {
		maxChars = 1200
	}
	if overlapSentences < 0 {
		overlapSentences = 0
	}
	return &SentenceSplitter{
		maxChars:         maxChars,
		overlapSentences: overlapSentences,
		splitter:         regexp.MustCompile(`(?m)(?U)([^.!?]+[.!?])`),
	}
}

// Split returns text unchanged when it fits, otherwise the packed parts.
func (s *SentenceSplitter) Split(text string) []string {
	text = strings.TrimSpace(text)
	if text == "" {
		return nil
	}
	if len(text) <= s.maxChars {
		return []string{text}
	}
	sentences := s.sentences(text)
	pack := func(start int) int {
		end := start + 1
		size := len(sentences[start])
		for end < len(sentences) && size+1+len(sentences[end]) <= s.maxChars {
			size += 1 + len(sentences[end])
			end++
		}
		return end
	}
	var parts []string
	i, prevEnd := 0, 0
	for i < len(sentences) {
		end := pack(i)
		if end <= prevEnd {
			// overlap left no room for a new sentence
			i = prevEnd
			end = pack(i)
		}
		parts = append(parts, strings.Join(sentences[i:end], " "))
		if end == len(sentences) {
			break
		}
		prevEnd = end
		i = max(end-s.overlapSentences, i+1)
	}
	return parts
}

func (s *SentenceSplitter) sentences(text string) []string {
	found := s.splitter.FindAllStringIndex(text, -1)
	var out []string
	last := 0
	for _, loc := range found {
		if sent := strings.TrimSpace(text[loc[0]:loc[1]]); sent != "" {
			out = append(out, sent)
		}
		last = loc[1]
	}
	// Trailing text without terminal punctuation.
	if tail := strings.TrimSpace(text[last:]); tail != "" {
		out = append(out, tail)
	}
	if len(out) == 0 {
		out = []string{text}
	}
	return out
}
