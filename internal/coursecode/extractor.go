// Package coursecode detects explicit course codes in free text and chat history.
package coursecode

import (
	"regexp"
	"strings"

	"handbook/internal/domain"
)

// A course code is the letter C followed by exactly five digits.
var (
	codePattern  = regexp.MustCompile(`(?i)\bc\d{5}\b`)
	exactPattern = regexp.MustCompile(`^C\d{5}$`)
)

// Source tells where an extracted code came from.
type Source string

const (
	SourceNone     Source = ""
	SourceExplicit Source = "explicit"
	SourceMessage  Source = "message"
	SourceHistory  Source = "history"
)

// Match is the outcome of an extraction.
type Match struct {
	Code   string
	Source Source
}

// Filter converts the match into a search filter. No match yields the zero filter.
func (m Match) Filter() domain.Filter {
	return domain.Filter{CourseCode: m.Code}
}

// Found reports whether a code was extracted.
func (m Match) Found() bool { return m.Code != "" }

// Extractor resolves the course filter for a query.
type Extractor struct {
	historyTurns int
}

// NewExtractor creates an extractor that looks at most historyTurns prior turns.
// A non-positive value disables history scanning.
func NewExtractor(historyTurns int) *Extractor {
	return &Extractor{historyTurns: historyTurns}
}

// Extract applies, in order: the explicit request code, the current message,
// then the user's own history turns from the most recent backwards. The first
// hit wins. Bot turns are skipped since answers cite many courses.
// An explicit code is used as given, even when it is not canonical; an
// unknown code then yields an empty filtered search.
func (e *Extractor) Extract(q domain.QueryContext) Match {
	if explicit := strings.TrimSpace(q.CourseCode); explicit != "" {
		return Match{Code: Normalize(explicit), Source: SourceExplicit}
	}
	if code := Find(q.Message); code != "" {
		return Match{Code: code, Source: SourceMessage}
	}
	for _, turn := range e.recent(q.History) {
		if turn.Type == domain.TurnBot {
			continue
		}
		if code := Find(turn.Text); code != "" {
			return Match{Code: code, Source: SourceHistory}
		}
	}
	return Match{}
}

// recent returns the bounded history, most recent first.
func (e *Extractor) recent(history []domain.Turn) []domain.Turn {
	if e.historyTurns <= 0 || len(history) == 0 {
		return nil
	}
	start := len(history) - e.historyTurns
	if start < 0 {
		start = 0
	}
	window := history[start:]
	out := make([]domain.Turn, 0, len(window))
	for i := len(window) - 1; i >= 0; i-- {
		out = append(out, window[i])
	}
	return out
}

// Find returns the leftmost course code in text, uppercased, or "".
func Find(text string) string {
	m := codePattern.FindString(text)
	if m == "" {
		return ""
	}
	return strings.ToUpper(m)
}

// Normalize trims and uppercases a code without validating it.
func Normalize(code string) string {
	return strings.ToUpper(strings.TrimSpace(code))
}

// Valid reports whether code is in canonical form.
func Valid(code string) bool {
	return exactPattern.MatchString(code)
}
