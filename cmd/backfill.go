package cmd

import (
	"fmt"

	"github.com/spf13/cobra"

	"resale-pipeline/embedding"
	"resale-pipeline/scraper"
	"resale-pipeline/storage"
)

func newBackfillCommand() *cobra.Command {
	var limit int

	cmd := &cobra.Command{
		Use:   "backfill-embeddings",
		Short: "Generate vectors for stored images that were saved without one",
		RunE: func(cmd *cobra.Command, args []string) error {
			if !cfg.EmbeddingEnabled() {
				return fmt.Errorf("backfill: %w (set EMBEDDING_URL and EMBEDDING_API_TOKEN)", embedding.ErrDisabled)
			}

			store, err := storage.NewPostgresStore(cmd.Context(), cfg.DSN(), logger)
			if err != nil {
				return err
			}
			defer store.Close()

			blobs, err := storage.NewFileStore(cfg.ImageDir)
			if err != nil {
				return err
			}

			gen := embedding.NewRetrying(
				embedding.NewClient(cfg.EmbeddingURL, cfg.EmbeddingToken, cfg.RequestTimeout()),
				cfg.RateLimitBackoff(), logger)

			res, err := scraper.BackfillEmbeddings(cmd.Context(), store, blobs, gen, limit, logger)
			if err != nil {
				return err
			}
			fmt.Printf("Backfill: %d scanned, %d embedded, %d failed\n", res.Scanned, res.Embedded, res.Failed)
			return nil
		},
	}
	cmd.Flags().IntVar(&limit, "limit", 500, "maximum images to process")
	return cmd
}
