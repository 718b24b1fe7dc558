package generation

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"handbook/internal/domain"
	"handbook/internal/logger"
	"handbook/internal/retrieval"
	"handbook/internal/summarizer"
)

type scriptedGenerator struct {
	out    string
	err    error
	prompt domain.Prompt
}

func (s *scriptedGenerator) Name() string { return "scripted" }
func (s *scriptedGenerator) Generate(_ context.Context, p domain.Prompt) (string, error) {
	s.prompt = p
	return s.out, s.err
}

func sampleResult() *retrieval.Result {
	chunks := retrieval.Rank([]domain.SearchResult{
		{Chunk: domain.Chunk{ID: "a", CourseCode: "C04379", CourseName: "Master of Business Analytics", Type: domain.ChunkAdmission, Label: "Admission Requirements", Text: "Admission Requirements:\nBachelor's degree required."}, Score: 0.8},
		{Chunk: domain.Chunk{ID: "o", CourseCode: "C04379", CourseName: "Master of Business Analytics", Type: domain.ChunkOverview, Label: "Overview", Text: "Overview:\nStudy business analytics."}, Score: 0.2},
	})
	kept, ctx := retrieval.Assemble(chunks, 4000)
	return &retrieval.Result{Chunks: kept, Context: ctx}
}

func TestBuildPromptStyles(t *testing.T) {
	c := NewComposer(&scriptedGenerator{}, 2, logger.Nop())
	q := domain.QueryContext{
		Message:    "what are the admission requirements for C04379",
		CourseName: "Master of Business Analytics",
		Concise:    true,
		History: []domain.Turn{
			{Text: "old question", Type: domain.TurnUser},
			{Text: "hello", Type: domain.TurnUser},
			{Text: "hi there", Type: domain.TurnBot},
		},
	}
	p := c.BuildPrompt(q, sampleResult())
	assert.Contains(t, p.System, "Be brief and direct")
	assert.Contains(t, p.User, "Question: what are the admission requirements for C04379")
	assert.Contains(t, p.User, "The question is about the course: Master of Business Analytics")
	assert.Contains(t, p.User, "Bachelor's degree required.")
	assert.Contains(t, p.User, "User: hello\nAssistant: hi there")
	assert.NotContains(t, p.User, "old question")
	assert.True(t, strings.HasSuffix(p.User, "Answer directly and briefly:"))

	q.Concise = false
	p = c.BuildPrompt(q, sampleResult())
	assert.Contains(t, p.System, "Provide comprehensive answers")
	assert.True(t, strings.HasSuffix(p.User, "Answer:"))
}

func TestAnswerFallbackAndErrors(t *testing.T) {
	gen := &scriptedGenerator{out: "  "}
	out, err := NewComposer(gen, 0, logger.Nop()).Answer(context.Background(), domain.QueryContext{Message: "q"}, sampleResult())
	require.NoError(t, err)
	assert.Equal(t, FallbackAnswer, out)

	gen = &scriptedGenerator{err: errors.New("model not found")}
	_, err = NewComposer(gen, 0, logger.Nop()).Answer(context.Background(), domain.QueryContext{Message: "q"}, sampleResult())
	assert.True(t, domain.IsKind(err, domain.KindGenerationFailure))

	gen = &scriptedGenerator{err: context.DeadlineExceeded}
	_, err = NewComposer(gen, 0, logger.Nop()).Answer(context.Background(), domain.QueryContext{Message: "q"}, sampleResult())
	assert.True(t, domain.IsKind(err, domain.KindTimeout))
}

func TestOllamaGenerate(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == "/api/tags" {
			return
		}
		assert.Equal(t, "/api/chat", r.URL.Path)
		var req struct {
			Model    string        `json:"model"`
			Stream   bool          `json:"stream"`
			Messages []chatMessage `json:"messages"`
		}
		assert.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		assert.Equal(t, "qwen2.5:7b", req.Model)
		assert.False(t, req.Stream)
		if assert.Len(t, req.Messages, 2) {
			assert.Equal(t, "system", req.Messages[0].Role)
		}
		_ = json.NewEncoder(w).Encode(map[string]any{"message": map[string]string{"role": "assistant", "content": "A bachelor's degree. [Course Code: C04379]"}})
	}))
	defer srv.Close()

	g := NewOllama(srv.URL, "qwen2.5:7b", time.Second)
	out, err := g.Generate(context.Background(), domain.Prompt{System: "sys", User: "user"})
	require.NoError(t, err)
	assert.Contains(t, out, "C04379")
	assert.True(t, g.Healthy(context.Background()))
}

func TestExtractiveCitesCourses(t *testing.T) {
	c := NewComposer(NewExtractive(summarizer.NewFrequencySummarizer(), 2), 0, logger.Nop())
	out, err := c.Answer(context.Background(), domain.QueryContext{Message: "admission?", Concise: true}, sampleResult())
	require.NoError(t, err)
	assert.Contains(t, out, "Bachelor's degree required.")
	assert.Contains(t, out, "[Course Code: C04379]")
	assert.NotContains(t, out, "Admission Requirements:")
}
