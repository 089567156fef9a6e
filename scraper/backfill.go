package scraper

import (
	"context"
	"errors"

	"resale-pipeline/embedding"
	"resale-pipeline/storage"
	"resale-pipeline/utils"
)

// BackfillResult counts the outcome of an embedding backfill.
type BackfillResult struct {
	Scanned  int
	Embedded int
	Failed   int
}

// BackfillEmbeddings generates vectors for stored images that have none,
// processing at most limit images (0 means a single default-sized batch).
func BackfillEmbeddings(ctx context.Context, images storage.ImageStore, blobs BlobStore, gen embedding.Generator, limit int, logger *utils.Logger) (BackfillResult, error) {
	var res BackfillResult

	pending, err := images.ImagesMissingEmbedding(ctx, limit)
	if err != nil {
		return res, err
	}
	for _, img := range pending {
		if err := ctx.Err(); err != nil {
			return res, err
		}
		res.Scanned++

		data, err := blobs.Read(img.StoragePath)
		if err != nil {
			res.Failed++
			logger.Warn("[backfill] Cannot read %s: %v", img.StoragePath, err)
			continue
		}
		emb, err := gen.Generate(ctx, data)
		if errors.Is(err, embedding.ErrDisabled) {
			return res, err
		}
		if err == nil {
			err = images.SetEmbedding(ctx, img.ID, emb.Vector)
		}
		if err != nil {
			if ctx.Err() != nil {
				return res, ctx.Err()
			}
			res.Failed++
			logger.Warn("[backfill] Image %d: %v", img.ID, err)
			continue
		}
		res.Embedded++
	}
	logger.Info("[backfill] %d scanned, %d embedded, %d failed", res.Scanned, res.Embedded, res.Failed)
	return res, nil
}
