package cmd

import (
	"context"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"resale-pipeline/config"
	"resale-pipeline/embedding"
	"resale-pipeline/marketplace"
	"resale-pipeline/scraper"
	"resale-pipeline/services"
	"resale-pipeline/storage"
)

func newIngestCommand() *cobra.Command {
	var (
		families []string
		dryRun   bool
		seed     int64
	)

	cmd := &cobra.Command{
		Use:   "ingest",
		Short: "Crawl the marketplace and fill each family's reference-image quota",
		Long: `Runs every catalog family in order, downloading, validating and storing
unique listing images until each family reaches its quota. Families that stay
below quota are reported, not treated as failures.

--dry-run uses an in-memory store and an offline mock marketplace.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runIngest(cmd.Context(), families, dryRun, seed)
		},
	}
	cmd.Flags().StringSliceVar(&families, "family", nil, "only crawl these families (brand/family), repeatable")
	cmd.Flags().BoolVar(&dryRun, "dry-run", false, "use the mock marketplace and in-memory storage")
	cmd.Flags().Int64Var(&seed, "seed", 1, "mock marketplace seed for --dry-run")
	return cmd
}

func runIngest(ctx context.Context, keys []string, dryRun bool, seed int64) error {
	if !dryRun {
		if err := cfg.Validate(); err != nil {
			return fmt.Errorf("ingest: %w (set MARKETPLACE_BASE_URL and MARKETPLACE_API_TOKEN)", err)
		}
	}

	catalog, err := config.LoadFamilies(cfg.FamiliesFile, cfg.DefaultQuota, cfg.DefaultMinRequired)
	if err != nil {
		return err
	}
	selected, err := config.SelectFamilies(catalog, keys)
	if err != nil {
		return err
	}

	opts := scraper.OptionsFromConfig(cfg)
	var (
		store    storage.Store
		imageDir = cfg.ImageDir
		search   scraper.Searcher
		download scraper.Downloader
	)

	if dryRun {
		logger.Info("[ingest] Dry run: mock marketplace (seed %d), in-memory store", seed)
		store = storage.NewMemoryStore()
		imageDir, err = os.MkdirTemp("", "resale-dry-run-*")
		if err != nil {
			return err
		}
		defer os.RemoveAll(imageDir)

		mock := marketplace.NewMockAdapter(marketplace.MockAdapterOptions{Seed: seed})
		search, download = mock, mock
		opts.RequestDelay, opts.ImageDelay, opts.FamilyPause = 0, 0, 0
	} else {
		pg, err := storage.NewPostgresStore(ctx, cfg.DSN(), logger)
		if err != nil {
			logger.Error("Failed to connect to PostgreSQL: %v", err)
			return err
		}
		store = pg

		client, err := marketplace.NewClient(marketplace.ClientOptions{
			BaseURL:       cfg.MarketplaceBaseURL,
			Token:         cfg.MarketplaceToken,
			Timeout:       cfg.RequestTimeout(),
			MaxImageBytes: cfg.MaxImageBytes,
		})
		if err != nil {
			_ = store.Close()
			return err
		}
		search, download = client, client
	}
	defer store.Close()

	blobs, err := storage.NewFileStore(imageDir)
	if err != nil {
		return err
	}

	crawler := scraper.New(store, blobs, search, download, opts, logger)

	if cfg.EmbeddingEnabled() && !dryRun {
		client := embedding.NewClient(cfg.EmbeddingURL, cfg.EmbeddingToken, cfg.RequestTimeout())
		crawler.WithEmbedder(embedding.NewRetrying(client, cfg.RateLimitBackoff(), logger))
	} else {
		logger.Warn("[ingest] Embedding service not configured; images are stored without vectors")
	}

	if cfg.BrowserFallback && !dryRun {
		resolver := marketplace.NewBrowserResolver(cfg.ChromeBin, 0, logger)
		defer resolver.Close()
		crawler.WithResolver(resolver)
	}

	summary, err := crawler.RunBatch(ctx, selected)
	if summary != nil {
		services.PrintRunSummary(os.Stdout, summary)
	}
	if err != nil {
		// Shortfalls and interruptions are reported, not turned into a failing exit.
		logger.Error("[ingest] Run ended early: %v", err)
	}
	return nil
}
