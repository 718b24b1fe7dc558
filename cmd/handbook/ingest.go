package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"handbook/internal/domain"
	"handbook/internal/ingest"
)

var (
	ingestDataDir    string
	ingestOut        string
	ingestRecreate   bool
	ingestNoIndex    bool
	ingestNoProgress bool
)

var ingestCmd = &cobra.Command{
	Use:   "ingest",
	Short: "Chunk and embed course JSON files, write artifacts and update the index",
	Long: `Reads every *.json course file in the data directory, chunks and embeds it,
writes chunks.jsonl, vectors.f32 and manifest.json, then replaces each course
in the configured vector index. Any integrity error aborts the run.

The tfidf embedder is refitted on every run, so indexing into a persistent
store with it requires --recreate.`,
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, _ []string) error {
		dataDir, out := ingestDataDir, ingestOut
		if dataDir == "" {
			dataDir = cfg.Ingest.DataDir
		}
		if out == "" {
			out = cfg.Ingest.ArtifactsDir
		}
		ctx := cmd.Context()
		c, err := assemble(ctx, false)
		if err != nil {
			return err
		}
		defer c.Close()

		var index domain.VectorIndex
		switch {
		case ingestNoIndex:
		case cfg.VectorStore.Type == "memory":
			log.Info("memory index is loaded from artifacts at query time, skipping upsert")
		default:
			index = c.index
		}

		p := ingest.NewPipeline(newChunker(), c.embedder, index, log,
			ingest.WithUpsertBatch(cfg.Ingest.UpsertBatch),
			ingest.WithProgress(ingest.NewProgress(!ingestNoProgress)),
		)
		sum, err := p.Run(ctx, dataDir, out, ingestRecreate)
		if err != nil {
			return err
		}
		if c.tfidf != nil {
			if err := c.tfidf.Save(cfg.Embedder.TFIDFState); err != nil {
				return fmt.Errorf("save tfidf state: %w", err)
			}
		}
		for name, e := range sum.Skipped {
			cmd.PrintErrf("skipped %s: %v\n", name, e)
		}
		cmd.Printf("Ingested %d courses into %d chunks (dim %d) -> %s\n",
			sum.Courses, sum.Chunks, sum.Manifest.Dim, out)
		return nil
	},
}

func init() {
	ingestCmd.Flags().StringVar(&ingestDataDir, "data-dir", "", "directory of course JSON files (default from config)")
	ingestCmd.Flags().StringVarP(&ingestOut, "out", "o", "", "artifacts directory (default from config)")
	ingestCmd.Flags().BoolVar(&ingestRecreate, "recreate", false, "drop the whole index before upserting")
	ingestCmd.Flags().BoolVar(&ingestNoIndex, "no-index", false, "only write artifacts")
	ingestCmd.Flags().BoolVar(&ingestNoProgress, "no-progress", false, "disable the progress bar")
	rootCmd.AddCommand(ingestCmd)
}
