package main

import (
	"errors"

	"github.com/spf13/cobra"

	"handbook/internal/ingest"
)

var (
	upsertDir      string
	upsertRecreate bool
	upsertBatch    int
	upsertReplace  bool
)

var upsertCmd = &cobra.Command{
	Use:   "upsert",
	Short: "Load previously written artifacts into the vector index",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, _ []string) error {
		if cfg.VectorStore.Type == "memory" {
			return errors.New("the memory index is loaded from artifacts by serve, ask and chat; nothing to upsert")
		}
		ctx := cmd.Context()
		dir := upsertDir
		if dir == "" {
			dir = cfg.Ingest.ArtifactsDir
		}
		m, points, err := ingest.ReadArtifacts(dir)
		if err != nil {
			return err
		}
		c, err := assemble(ctx, false)
		if err != nil {
			return err
		}
		defer c.Close()

		batch := cfg.Ingest.UpsertBatch
		if upsertBatch > 0 {
			batch = upsertBatch
		}
		p := ingest.NewPipeline(nil, nil, c.index, log,
			ingest.WithUpsertBatch(batch),
			ingest.WithProgress(ingest.NewProgress(true)),
		)
		if err := p.Index(ctx, points, ingest.IndexOptions{Recreate: upsertRecreate, ReplaceCourses: upsertReplace}); err != nil {
			return err
		}
		cmd.Printf("Upserted %d points (dim %d, model %s)\n", len(points), m.Dim, m.EmbedModel)
		return nil
	},
}

func init() {
	upsertCmd.Flags().StringVar(&upsertDir, "dir", "", "artifacts directory (default from config)")
	upsertCmd.Flags().BoolVar(&upsertRecreate, "recreate", false, "drop and recreate the index first")
	upsertCmd.Flags().IntVar(&upsertBatch, "batch", 0, "points per upsert call (default from config)")
	upsertCmd.Flags().BoolVar(&upsertReplace, "replace-courses", false, "delete each course's existing points before upserting it")
	rootCmd.AddCommand(upsertCmd)
}
