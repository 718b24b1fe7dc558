package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"time"

	"handbook/internal/chunker"
	"handbook/internal/coursecode"
	"handbook/internal/domain"
	"handbook/internal/embedding"
	"handbook/internal/embedding/ollama"
	"handbook/internal/embedding/openai"
	"handbook/internal/embedding/rediscache"
	"handbook/internal/embedding/tfidf"
	"handbook/internal/generation"
	"handbook/internal/ingest"
	"handbook/internal/retrieval"
	"handbook/internal/service"
	"handbook/internal/summarizer"
	"handbook/internal/vectorstore/memory"
	"handbook/internal/vectorstore/qdrant"
	"handbook/internal/vectorstore/sqlite"
)

// components holds the adapters assembled from config.
type components struct {
	embedder domain.Embedder
	tfidf    *tfidf.Embedder
	index    domain.VectorIndex
	closers  []func() error
}

func (c *components) Close() {
	for i := len(c.closers) - 1; i >= 0; i-- {
		if err := c.closers[i](); err != nil {
			log.Warn("close failed", "error", err)
		}
	}
}

func secs(n int) time.Duration { return time.Duration(n) * time.Second }

// assemble builds the embedder and vector index. forQuery loads the state a
// query-serving process needs: the tfidf vocabulary and, for the memory
// index, the ingestion artifacts.
func assemble(ctx context.Context, forQuery bool) (*components, error) {
	c := &components{}

	var emb domain.Embedder
	switch cfg.Embedder.Type {
	case "tfidf", "":
		c.tfidf = tfidf.NewEmbedder()
		if forQuery {
			if err := c.tfidf.Load(cfg.Embedder.TFIDFState); err != nil {
				if !errors.Is(err, os.ErrNotExist) {
					return nil, fmt.Errorf("load tfidf state: %w", err)
				}
				log.Warn("tfidf state missing, run `handbook ingest` first", "path", cfg.Embedder.TFIDFState)
			}
		}
		emb = c.tfidf
	case "openai":
		if cfg.Embedder.OpenAI == nil {
			return nil, errors.New("openai embedder config missing")
		}
		client, err := openai.NewClient(openai.Config{
			BaseURL:   cfg.Embedder.OpenAI.BaseURL,
			APIKeyEnv: cfg.Embedder.OpenAI.APIKeyEnv,
			Model:     cfg.Embedder.OpenAI.Model,
			Dimension: cfg.Embedder.OpenAI.Dimension,
			Timeout:   secs(cfg.Embedder.OpenAI.TimeoutSecs),
		})
		if err != nil {
			return nil, fmt.Errorf("openai embedder init failed: %w", err)
		}
		emb = client
	case "ollama":
		if cfg.Embedder.Ollama == nil {
			return nil, errors.New("ollama embedder config missing")
		}
		emb = ollama.NewClient(cfg.Embedder.Ollama.Host, cfg.Embedder.Ollama.Model, secs(cfg.Embedder.Ollama.TimeoutSecs))
	default:
		return nil, fmt.Errorf("unknown embedder: %s", cfg.Embedder.Type)
	}

	if cc := cfg.Embedder.Cache; cc.Enabled {
		switch {
		case c.tfidf != nil:
			// tfidf vectors change with every ingestion
			log.Warn("embedding cache ignored for tfidf embedder")
		default:
			rdb, err := rediscache.Dial(ctx, cc.Addr, cc.Password, cc.DB)
			if err != nil {
				log.Warn("embedding cache unavailable", "addr", cc.Addr, "error", err)
				break
			}
			c.closers = append(c.closers, rdb.Close)
			emb = rediscache.New(emb, rdb, secs(cc.TTLHours*3600), log)
		}
	}
	c.embedder = embedding.NewBatcher(emb, cfg.Embedder.BatchSize, cfg.Embedder.Concurrency)

	switch cfg.VectorStore.Type {
	case "memory", "":
		st := memory.NewStorage()
		if forQuery {
			if err := loadArtifacts(ctx, st); err != nil {
				return nil, err
			}
		}
		c.index = st
	case "qdrant":
		if cfg.VectorStore.Qdrant == nil {
			return nil, errors.New("qdrant config missing")
		}
		c.index = qdrant.NewStorage(qdrant.Config{
			URL:        cfg.VectorStore.Qdrant.URL,
			APIKey:     cfg.VectorStore.Qdrant.APIKey,
			Collection: cfg.VectorStore.Qdrant.Collection,
			Timeout:    secs(cfg.VectorStore.Qdrant.TimeoutSecs),
		})
	case "sqlite":
		if cfg.VectorStore.SQLite == nil {
			return nil, errors.New("sqlite config missing")
		}
		st, err := sqlite.Open(cfg.VectorStore.SQLite.Path)
		if err != nil {
			return nil, fmt.Errorf("open sqlite index: %w", err)
		}
		c.closers = append(c.closers, st.Close)
		c.index = st
	default:
		return nil, fmt.Errorf("unknown vector store: %s", cfg.VectorStore.Type)
	}
	return c, nil
}

// loadArtifacts fills an in-memory index from the ingestion artifacts.
func loadArtifacts(ctx context.Context, st *memory.Storage) error {
	ok, err := ingest.ArtifactsExist(cfg.Ingest.ArtifactsDir)
	if err != nil {
		return err
	}
	if !ok {
		log.Warn("no artifacts found, starting with an empty index", "dir", cfg.Ingest.ArtifactsDir)
		return nil
	}
	m, points, err := ingest.ReadArtifacts(cfg.Ingest.ArtifactsDir)
	if err != nil {
		return err
	}
	if err := st.Init(ctx, m.Dim); err != nil {
		return err
	}
	if err := st.Upsert(ctx, points); err != nil {
		return err
	}
	log.Info("index loaded from artifacts", "points", len(points), "dim", m.Dim, "embed_model", m.EmbedModel)
	return nil
}

func newGenerator() (domain.Generator, error) {
	switch cfg.Generator.Type {
	case "ollama", "":
		if cfg.Generator.Ollama == nil {
			return nil, errors.New("ollama generator config missing")
		}
		o := cfg.Generator.Ollama
		return generation.NewOllama(o.Host, o.Model, secs(o.TimeoutSecs)), nil
	case "openai":
		if cfg.Generator.OpenAI == nil {
			return nil, errors.New("openai generator config missing")
		}
		o := cfg.Generator.OpenAI
		gen, err := generation.NewOpenAI(generation.OpenAIConfig{
			BaseURL:   o.BaseURL,
			APIKeyEnv: o.APIKeyEnv,
			Model:     o.Model,
			Timeout:   secs(o.TimeoutSecs),
		})
		if err != nil {
			return nil, fmt.Errorf("openai generator init failed: %w", err)
		}
		return gen, nil
	case "extractive":
		return generation.NewExtractive(summarizer.NewFrequencySummarizer(), cfg.Generator.MaxSentences), nil
	default:
		return nil, fmt.Errorf("unknown generator: %s", cfg.Generator.Type)
	}
}

// newChatService assembles the query path.
func newChatService(ctx context.Context) (*service.ChatService, *components, error) {
	c, err := assemble(ctx, true)
	if err != nil {
		return nil, nil, err
	}
	gen, err := newGenerator()
	if err != nil {
		c.Close()
		return nil, nil, err
	}
	svc := service.NewChatService(
		coursecode.NewExtractor(cfg.Retrieval.HistoryTurns),
		retrieval.NewRetriever(c.embedder, c.index, retrieval.Options{
			K:               cfg.Retrieval.K,
			N:               cfg.Retrieval.TopN,
			MaxContextChars: cfg.Retrieval.MaxContextChars,
		}, log),
		generation.NewComposer(gen, cfg.Retrieval.HistoryTurns, log),
		c.embedder,
		c.index,
		log,
	)
	return svc, c, nil
}

func newChunker() domain.Chunker {
	return chunker.NewCourseChunker(cfg.Chunker.MaxChunkChars, cfg.Chunker.OverlapSentences)
}
