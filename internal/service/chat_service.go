// Package service ties extraction, retrieval and answer composition into the
// operations exposed by the HTTP server and the CLI.
package service

import (
	"context"
	"strings"

	"golang.org/x/sync/errgroup"

	"handbook/internal/coursecode"
	"handbook/internal/domain"
	"handbook/internal/generation"
	"handbook/internal/logger"
	"handbook/internal/retrieval"
)

// Reply is the outcome of one chat turn.
type Reply struct {
	Answer  string
	Match   coursecode.Match
	Sources []domain.RetrievedChunk
	Quality retrieval.Quality
}

// Health reports reachability of each dependency.
type Health struct {
	Embedder  bool
	Index     bool
	Generator bool
}

// OK reports whether every dependency is reachable.
func (h Health) OK() bool { return h.Embedder && h.Index && h.Generator }

// Status is "healthy" or "degraded".
func (h Health) Status() string {
	if h.OK() {
		return "healthy"
	}
	return "degraded"
}

// ChatService answers course questions. It holds no per-request state.
type ChatService struct {
	extractor *coursecode.Extractor
	retriever *retrieval.Retriever
	composer  *generation.Composer
	embedder  domain.Embedder
	index     domain.VectorIndex
	log       *logger.Logger
}

func NewChatService(
	extractor *coursecode.Extractor,
	retriever *retrieval.Retriever,
	composer *generation.Composer,
	embedder domain.Embedder,
	index domain.VectorIndex,
	log *logger.Logger,
) *ChatService {
	return &ChatService{
		extractor: extractor,
		retriever: retriever,
		composer:  composer,
		embedder:  embedder,
		index:     index,
		log:       log.With("component", "ChatService"),
	}
}

// Chat answers q. Failures carry a domain.Kind.
func (s *ChatService) Chat(ctx context.Context, q domain.QueryContext) (*Reply, error) {
	const op = "service.chat"
	q.Message = strings.TrimSpace(q.Message)
	if q.Message == "" {
		return nil, domain.Validation(op, "message is required")
	}

	match := s.extractor.Extract(q)
	if match.Found() {
		q.CourseCode = match.Code
	}

	res, err := s.retriever.Retrieve(ctx, q.Message, match.Filter())
	if err != nil {
		s.logFailure(op, err, match)
		return nil, err
	}
	if q.UsePreprocessing {
		s.log.Info("retrieval quality",
			"course_code", match.Code,
			"code_source", string(match.Source),
			"top_score", res.Quality.TopScore,
			"relevant", res.Quality.Relevant,
			"multi_course", res.Quality.MultiCourse,
			"chunks", len(res.Chunks),
		)
	}

	answer, err := s.composer.Answer(ctx, q, res)
	if err != nil {
		s.logFailure(op, err, match)
		return nil, err
	}
	return &Reply{Answer: answer, Match: match, Sources: res.Chunks, Quality: res.Quality}, nil
}

// Courses lists every distinct course in the index.
func (s *ChatService) Courses(ctx context.Context) ([]domain.CourseRef, error) {
	refs, err := s.index.Courses(ctx)
	if err != nil {
		err = domain.Classify(domain.KindIndexUnreachable, "service.courses", err)
		s.log.Error("list courses failed", "kind", domain.KindOf(err), "error", err)
		return nil, err
	}
	return refs, nil
}

// Health probes the embedder, index and generator concurrently.
func (s *ChatService) Health(ctx context.Context) Health {
	var h Health
	var g errgroup.Group
	g.Go(func() error {
		h.Embedder = probe(ctx, s.embedder)
		return nil
	})
	g.Go(func() error {
		h.Index = s.index.Healthy(ctx)
		return nil
	})
	g.Go(func() error {
		h.Generator = probe(ctx, s.composer.Generator())
		return nil
	})
	_ = g.Wait()
	return h
}

// probe treats components without a health check as always reachable.
func probe(ctx context.Context, v any) bool {
	if hc, ok := v.(domain.HealthChecker); ok {
		return hc.Healthy(ctx)
	}
	return true
}

func (s *ChatService) logFailure(op string, err error, match coursecode.Match) {
	switch domain.KindOf(err) {
	case domain.KindValidation, domain.KindEmptyResult:
		s.log.Info("request not answered", "op", op, "kind", domain.KindOf(err), "course_code", match.Code, "reason", err)
	default:
		s.log.Error("request failed", "op", op, "kind", domain.KindOf(err), "course_code", match.Code, "error", err)
	}
}
