// Package retrieval turns a query into a ranked, budgeted set of course chunks.
package retrieval

import (
	"context"
	"errors"
	"strings"

	"handbook/internal/domain"
	"handbook/internal/logger"
)

// Options control candidate and display counts and the context budget.
type Options struct {
	K               int
	N               int
	MaxContextChars int
}

func (o Options) withDefaults() Options {
	if o.K <= 0 {
		o.K = 30
	}
	if o.N <= 0 {
		o.N = 8
	}
	if o.N > o.K {
		o.K = o.N
	}
	if o.MaxContextChars <= 0 {
		o.MaxContextChars = 4000
	}
	return o
}

// Quality summarizes how well the hits match the query.
type Quality struct {
	TopScore    float64
	Relevant    bool
	MultiCourse bool
}

// relevanceThreshold is the top score above which results count as relevant.
const relevanceThreshold = 0.3

// Result is the outcome of one retrieval.
type Result struct {
	Filter  domain.Filter
	Chunks  []domain.RetrievedChunk
	Context string
	Quality Quality
}

// Retriever runs embed, search, rank, truncate and assemble. It holds no
// mutable state and is safe for concurrent use.
type Retriever struct {
	embedder domain.Embedder
	index    domain.VectorIndex
	opts     Options
	log      *logger.Logger
}

func NewRetriever(embedder domain.Embedder, index domain.VectorIndex, opts Options, log *logger.Logger) *Retriever {
	return &Retriever{
		embedder: embedder,
		index:    index,
		opts:     opts.withDefaults(),
		log:      log.With("component", "Retriever"),
	}
}

// Options returns the effective options.
func (r *Retriever) Options() Options { return r.opts }

// Retrieve finds the chunks for query. A non-zero filter constrains the search
// to one course; zero hits under a filter never fall back to an unfiltered search.
func (r *Retriever) Retrieve(ctx context.Context, query string, filter domain.Filter) (*Result, error) {
	const op = "retrieval.retrieve"
	query = strings.TrimSpace(query)
	if query == "" {
		return nil, domain.Validation(op, "query is empty")
	}

	vecs, err := r.embedder.Embed(ctx, []string{query})
	if err != nil {
		return nil, domain.Classify(domain.KindEmbeddingFailure, op, err)
	}
	if len(vecs) != 1 || len(vecs[0]) == 0 {
		return nil, domain.Errorf(domain.KindEmbeddingFailure, op, nil, "embedder returned %d vectors for one query", len(vecs))
	}

	hits, err := r.index.Search(ctx, vecs[0], r.opts.K, filter)
	if errors.Is(err, domain.ErrDimensionMismatch) {
		return nil, domain.Classify(domain.KindEmbeddingFailure, op, err)
	}
	if err != nil {
		return nil, domain.Classify(domain.KindIndexUnreachable, op, err)
	}
	if len(hits) == 0 {
		return nil, domain.EmptyResult(op, filter.CourseCode)
	}

	ranked := Rank(hits)
	if len(ranked) > r.opts.N {
		ranked = ranked[:r.opts.N]
	}
	chunks, assembled := Assemble(ranked, r.opts.MaxContextChars)

	res := &Result{
		Filter:  filter,
		Chunks:  chunks,
		Context: assembled,
		Quality: assess(ranked),
	}
	r.log.Debug("retrieved",
		"filter", filter.CourseCode,
		"hits", len(hits),
		"kept", len(chunks),
		"context_chars", len(assembled),
		"top_score", res.Quality.TopScore,
		"relevant", res.Quality.Relevant,
		"multi_course", res.Quality.MultiCourse,
	)
	return res, nil
}

func assess(ranked []domain.RetrievedChunk) Quality {
	if len(ranked) == 0 {
		return Quality{}
	}
	q := Quality{TopScore: ranked[0].Score}
	q.Relevant = q.TopScore > relevanceThreshold
	codes := make(map[string]struct{})
	for i := 0; i < len(ranked) && i < 3; i++ {
		codes[ranked[i].Chunk.CourseCode] = struct{}{}
	}
	q.MultiCourse = len(codes) > 1
	return q
}
