// Package generation assembles prompts from retrieved context and calls a
// generative model.
package generation

import (
	"context"
	"fmt"
	"strings"

	"handbook/internal/domain"
	"handbook/internal/logger"
	"handbook/internal/retrieval"
)

// FallbackAnswer is returned when the model produces no text.
const FallbackAnswer = "I couldn't generate a response. Please try rephrasing your question."

const (
	systemConcise = "You are a helpful assistant for university course information. " +
		"Answer questions about courses using only the provided context. Be brief and direct. " +
		"Cite sources as [Course Code: XXX]. If the information is not in the context, say you don't know."
	systemComprehensive = "You are a helpful assistant for university course information. " +
		"Answer questions about courses using only the provided context. Provide comprehensive answers. " +
		"Cite sources as [Course Code: XXX]. If the information is not in the context, say you don't know."
)

// Composer builds prompts and produces answers.
type Composer struct {
	gen          domain.Generator
	historyTurns int
	log          *logger.Logger
}

func NewComposer(gen domain.Generator, historyTurns int, log *logger.Logger) *Composer {
	return &Composer{gen: gen, historyTurns: historyTurns, log: log.With("component", "Composer")}
}

// Generator exposes the underlying model for health checks.
func (c *Composer) Generator() domain.Generator { return c.gen }

// BuildPrompt renders the system and user messages for one request.
func (c *Composer) BuildPrompt(q domain.QueryContext, res *retrieval.Result) domain.Prompt {
	system := systemComprehensive
	if q.Concise {
		system = systemConcise
	}
	var b strings.Builder
	if turns := c.recent(q.History); len(turns) > 0 {
		b.WriteString("Conversation so far:\n")
		for _, t := range turns {
			role := "User"
			if t.Type == domain.TurnBot {
				role = "Assistant"
			}
			fmt.Fprintf(&b, "%s: %s\n", role, strings.TrimSpace(t.Text))
		}
		b.WriteString("\n")
	}
	fmt.Fprintf(&b, "Question: %s\n\n", strings.TrimSpace(q.Message))
	if name := strings.TrimSpace(q.CourseName); name != "" {
		fmt.Fprintf(&b, "The question is about the course: %s\n\n", name)
	}
	contextText := ""
	if res != nil {
		contextText = res.Context
	}
	fmt.Fprintf(&b, "Context:\n%s\n\n", contextText)
	if q.Concise {
		b.WriteString("Answer directly and briefly:")
	} else {
		b.WriteString("Answer:")
	}
	return domain.Prompt{System: system, User: b.String()}
}

// Answer generates the reply text. An empty generation yields FallbackAnswer.
func (c *Composer) Answer(ctx context.Context, q domain.QueryContext, res *retrieval.Result) (string, error) {
	const op = "generation.answer"
	prompt := c.BuildPrompt(q, res)
	out, err := c.gen.Generate(ctx, prompt)
	if err != nil {
		return "", domain.Classify(domain.KindGenerationFailure, op, err)
	}
	out = strings.TrimSpace(out)
	if out == "" {
		c.log.Warn("empty generation", "generator", c.gen.Name())
		return FallbackAnswer, nil
	}
	return out, nil
}

func (c *Composer) recent(history []domain.Turn) []domain.Turn {
	if c.historyTurns <= 0 {
		return nil
	}
	if len(history) <= c.historyTurns {
		return history
	}
	return history[len(history)-c.historyTurns:]
}
