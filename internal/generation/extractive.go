package generation

import (
	"context"
	"regexp"
	"strings"

	"handbook/internal/domain"
)

var citationHeader = regexp.MustCompile(`^\[Course Code: (C\d{5})[^\]]*\]$`)

// Extractive answers without a model by summarizing the retrieved context.
// Each cited course contributes its most representative sentences.
type Extractive struct {
	summarizer   domain.Summarizer
	maxSentences int
}

func NewExtractive(s domain.Summarizer, maxSentences int) *Extractive {
	if maxSentences <= 0 {
		maxSentences = 3
	}
	return &Extractive{summarizer: s, maxSentences: maxSentences}
}

func (e *Extractive) Name() string { return "extractive" }

func (e *Extractive) Healthy(context.Context) bool { return true }

func (e *Extractive) Generate(ctx context.Context, prompt domain.Prompt) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}
	var order []string
	bodies := map[string]*strings.Builder{}
	current := ""
	for _, line := range strings.Split(contextSection(prompt.User), "\n") {
		if m := citationHeader.FindStringSubmatch(strings.TrimSpace(line)); m != nil {
			current = m[1]
			if _, ok := bodies[current]; !ok {
				bodies[current] = &strings.Builder{}
				order = append(order, current)
			}
			continue
		}
		if current == "" || strings.HasSuffix(strings.TrimSpace(line), ":") {
			continue
		}
		b := bodies[current]
		b.WriteString(line)
		b.WriteString(" ")
	}
	var parts []string
	for _, code := range order {
		text := strings.TrimSpace(bodies[code].String())
		if text == "" {
			continue
		}
		summary, err := e.summarizer.Summarize(text, e.maxSentences)
		if err != nil {
			return "", err
		}
		parts = append(parts, strings.TrimSpace(summary)+" [Course Code: "+code+"]")
	}
	return strings.Join(parts, "\n\n"), nil
}

// contextSection returns the text between "Context:" and the answer cue.
func contextSection(user string) string {
	start := strings.Index(user, "Context:\n")
	if start < 0 {
		return ""
	}
	rest := user[start+len("Context:\n"):]
	if end := strings.LastIndex(rest, "\n\nAnswer"); end >= 0 {
		rest = rest[:end]
	}
	return rest
}
