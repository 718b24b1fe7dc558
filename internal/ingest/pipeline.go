package ingest

import (
	"context"
	"fmt"
	"sort"

	"handbook/internal/domain"
	"handbook/internal/logger"
)

// Pipeline turns course records into indexed points.
type Pipeline struct {
	chunker     domain.Chunker
	embedder    domain.Embedder
	index       domain.VectorIndex
	upsertBatch int
	embedBatch  int
	progress    Progress
	log         *logger.Logger
}

// Option customizes a Pipeline.
type Option func(*Pipeline)

// WithProgress attaches a progress reporter.
func WithProgress(p Progress) Option { return func(pl *Pipeline) { pl.progress = p } }

// WithUpsertBatch sets how many points go into one upsert call.
func WithUpsertBatch(n int) Option {
	return func(pl *Pipeline) {
		if n > 0 {
			pl.upsertBatch = n
		}
	}
}

// NewPipeline wires a pipeline. index may be nil when only artifacts are built.
func NewPipeline(chunker domain.Chunker, embedder domain.Embedder, index domain.VectorIndex, log *logger.Logger, opts ...Option) *Pipeline {
	if log == nil {
		log = logger.Nop()
	}
	p := &Pipeline{
		chunker:     chunker,
		embedder:    embedder,
		index:       index,
		upsertBatch: 64,
		embedBatch:  256,
		log:         log,
	}
	for _, o := range opts {
		o(p)
	}
	return p
}

// ChunkAll chunks every record. A chunk id produced twice with different
// content aborts; an identical repeat is dropped.
func (p *Pipeline) ChunkAll(records []domain.CourseRecord) ([]domain.Chunk, error) {
	const op = "ingest.chunk"
	var out []domain.Chunk
	seen := make(map[string]domain.Chunk)
	for _, rec := range records {
		chunks, err := p.chunker.Chunk(rec)
		if err != nil {
			return nil, err
		}
		for _, ch := range chunks {
			if prev, ok := seen[ch.ID]; ok {
				if prev != ch {
					return nil, domain.Integrity(op, "chunk id %s produced twice with different content (%s %s)", ch.ID, ch.CourseCode, ch.Type)
				}
				p.log.Warn("duplicate chunk dropped", "id", ch.ID, "course_code", ch.CourseCode)
				continue
			}
			seen[ch.ID] = ch
			out = append(out, ch)
		}
	}
	if len(out) == 0 {
		return nil, domain.Integrity(op, "no chunks produced from %d records", len(records))
	}
	return out, nil
}

// Embed computes vectors for chunks, fitting the embedder to the corpus first
// when it needs that.
func (p *Pipeline) Embed(ctx context.Context, chunks []domain.Chunk) ([][]float32, error) {
	texts := make([]string, len(chunks))
	for i, ch := range chunks {
		texts[i] = ch.Text
	}
	if prep, ok := p.embedder.(domain.Preparer); ok {
		if err := prep.Prepare(texts); err != nil {
			return nil, fmt.Errorf("prepare embedder: %w", err)
		}
	}
	p.stage("embedding", len(texts))
	defer p.done()

	vectors := make([][]float32, 0, len(texts))
	for start := 0; start < len(texts); start += p.embedBatch {
		end := min(start+p.embedBatch, len(texts))
		vecs, err := p.embedder.Embed(ctx, texts[start:end])
		if err != nil {
			return nil, domain.Classify(domain.KindEmbeddingFailure, "ingest.embed", err)
		}
		if len(vecs) != end-start {
			return nil, domain.Integrity("ingest.embed", "embedder returned %d vectors for %d texts", len(vecs), end-start)
		}
		vectors = append(vectors, vecs...)
		p.add(end - start)
	}
	return vectors, nil
}

// IndexOptions controls how points are written.
type IndexOptions struct {
	// Recreate drops the whole index before writing.
	Recreate bool
	// ReplaceCourses deletes each course's existing points before its upsert.
	ReplaceCourses bool
}

// Index writes points to the vector index in batches.
func (p *Pipeline) Index(ctx context.Context, points []domain.IndexedPoint, opts IndexOptions) error {
	const op = "ingest.index"
	if p.index == nil {
		return fmt.Errorf("%s: no vector index configured", op)
	}
	if len(points) == 0 {
		return domain.Integrity(op, "no points to index")
	}
	if opts.Recreate {
		if err := p.index.Clear(ctx); err != nil {
			return domain.Classify(domain.KindIndexUnreachable, op, err)
		}
	}
	if err := p.index.Init(ctx, len(points[0].Vector)); err != nil {
		return domain.Classify(domain.KindIndexUnreachable, op, err)
	}

	groups := groupByCourse(points)
	p.stage("upserting", len(points))
	defer p.done()
	for _, g := range groups {
		if opts.ReplaceCourses && !opts.Recreate {
			if err := p.index.Delete(ctx, domain.Filter{CourseCode: g.code}); err != nil {
				return domain.Classify(domain.KindIndexUnreachable, op, err)
			}
		}
		for start := 0; start < len(g.points); start += p.upsertBatch {
			end := min(start+p.upsertBatch, len(g.points))
			if err := p.index.Upsert(ctx, g.points[start:end]); err != nil {
				return domain.Classify(domain.KindIndexUnreachable, op, err)
			}
			p.add(end - start)
		}
		p.log.Debug("course indexed", "course_code", g.code, "points", len(g.points))
	}
	return nil
}

// Summary reports one ingestion run.
type Summary struct {
	Courses  int
	Skipped  map[string]error
	Chunks   int
	Manifest Manifest
}

// Run loads course files from dataDir, writes artifacts to artifactsDir and,
// when an index is configured, replaces each course in it. An embedder fitted
// to the corpus produces a new vector space on every run, so indexing with one
// requires recreate.
func (p *Pipeline) Run(ctx context.Context, dataDir, artifactsDir string, recreate bool) (Summary, error) {
	if p.index != nil && !recreate && domain.FitsCorpus(p.embedder) {
		return Summary{}, domain.Validation("ingest.run", fmt.Sprintf(
			"embedder %s is refitted on every ingestion; recreate the index (--recreate) instead of replacing courses", p.embedder.Name()))
	}
	records, skipped, err := LoadDir(dataDir)
	if err != nil {
		return Summary{}, err
	}
	for name, e := range skipped {
		p.log.Warn("course file skipped", "file", name, "error", e)
	}
	sum := Summary{Courses: len(records), Skipped: skipped}

	chunks, err := p.ChunkAll(records)
	if err != nil {
		return sum, err
	}
	sum.Chunks = len(chunks)
	vectors, err := p.Embed(ctx, chunks)
	if err != nil {
		return sum, err
	}
	if sum.Manifest, err = WriteArtifacts(artifactsDir, chunks, vectors, p.embedder.Name()); err != nil {
		return sum, err
	}
	p.log.Info("artifacts written", "dir", artifactsDir, "points", sum.Manifest.NPoints, "dim", sum.Manifest.Dim)

	if p.index == nil {
		return sum, nil
	}
	points := make([]domain.IndexedPoint, len(chunks))
	for i, ch := range chunks {
		points[i] = domain.IndexedPoint{ID: ch.ID, Vector: vectors[i], Chunk: ch}
	}
	return sum, p.Index(ctx, points, IndexOptions{Recreate: recreate, ReplaceCourses: true})
}

type courseGroup struct {
	code   string
	points []domain.IndexedPoint
}

// groupByCourse keeps input order within a course and sorts courses by code.
func groupByCourse(points []domain.IndexedPoint) []courseGroup {
	idx := make(map[string]int)
	var groups []courseGroup
	for _, pt := range points {
		i, ok := idx[pt.Chunk.CourseCode]
		if !ok {
			i = len(groups)
			idx[pt.Chunk.CourseCode] = i
			groups = append(groups, courseGroup{code: pt.Chunk.CourseCode})
		}
		groups[i].points = append(groups[i].points, pt)
	}
	sort.Slice(groups, func(a, b int) bool { return groups[a].code < groups[b].code })
	return groups
}

func (p *Pipeline) stage(desc string, total int) {
	if p.progress != nil {
		p.progress.Stage(desc, total)
	}
}

func (p *Pipeline) add(n int) {
	if p.progress != nil {
		p.progress.Add(n)
	}
}

func (p *Pipeline) done() {
	if p.progress != nil {
		p.progress.Done()
	}
}
