// Package embedding adapts embedding backends to the retrieval core.
package embedding

import (
	"context"
	"fmt"
	"strings"

	"golang.org/x/sync/errgroup"

	"handbook/internal/domain"
)

// Batcher splits large inputs into fixed-size batches, embeds them with
// bounded concurrency and enforces a single dimensionality.
type Batcher struct {
	inner       domain.Embedder
	batchSize   int
	concurrency int
}

func NewBatcher(inner domain.Embedder, batchSize, concurrency int) *Batcher {
	if batchSize <= 0 {
		batchSize = 32
	}
	if concurrency <= 0 {
		concurrency = 1
	}
	return &Batcher{inner: inner, batchSize: batchSize, concurrency: concurrency}
}

func (b *Batcher) Name() string { return b.inner.Name() }

func (b *Batcher) Dimension() int { return b.inner.Dimension() }

// Unwrap returns the wrapped embedder.
func (b *Batcher) Unwrap() domain.Embedder { return b.inner }

// Prepare forwards corpus preparation to embedders that need it.
func (b *Batcher) Prepare(corpus []string) error {
	if p, ok := b.inner.(domain.Preparer); ok {
		return p.Prepare(corpus)
	}
	return nil
}

// Healthy forwards to the wrapped embedder when it can report health.
func (b *Batcher) Healthy(ctx context.Context) bool {
	if hc, ok := b.inner.(domain.HealthChecker); ok {
		return hc.Healthy(ctx)
	}
	return true
}

// Embed returns one vector per text in input order.
func (b *Batcher) Embed(ctx context.Context, texts []string) ([][]float32, error) {
	if len(texts) == 0 {
		return nil, nil
	}
	for i, t := range texts {
		if strings.TrimSpace(t) == "" {
			return nil, domain.Validation("embedding.embed", fmt.Sprintf("text %d is empty", i))
		}
	}

	out := make([][]float32, len(texts))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(b.concurrency)
	for start := 0; start < len(texts); start += b.batchSize {
		start := start
		end := min(start+b.batchSize, len(texts))
		g.Go(func() error {
			vecs, err := b.inner.Embed(gctx, texts[start:end])
			if err != nil {
				return fmt.Errorf("embed batch %d-%d: %w", start, end, err)
			}
			if len(vecs) != end-start {
				return fmt.Errorf("embed batch %d-%d: expected %d vectors, got %d", start, end, end-start, len(vecs))
			}
			copy(out[start:end], vecs)
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, domain.Classify(domain.KindEmbeddingFailure, "embedding.embed", err)
	}

	dim := len(out[0])
	for i, v := range out {
		if len(v) == 0 || len(v) != dim {
			return nil, domain.Errorf(domain.KindEmbeddingFailure, "embedding.embed", nil,
				"vector %d has dimension %d, expected %d", i, len(v), dim)
		}
	}
	return out, nil
}
