package storage

import (
	"context"
	"errors"

	"resale-pipeline/models"
)

var (
	// ErrDuplicateHash is returned when an image with the same content hash already exists.
	ErrDuplicateHash = errors.New("storage: duplicate content hash")
	// ErrNotFound is returned when a requested record does not exist.
	ErrNotFound = errors.New("storage: not found")
)

// FamilyStore persists product families and their ingestion progress.
type FamilyStore interface {
	// UpsertFamily creates the family or refreshes its catalog fields. On return
	// f carries the stored ID, status and image count.
	UpsertFamily(ctx context.Context, f *models.Family) error
	ListFamilies(ctx context.Context) ([]*models.Family, error)
	UpdateFamilyProgress(ctx context.Context, familyID int64, status models.FamilyStatus, imageCount int) error
}

// ImageStore persists reference image records.
type ImageStore interface {
	CountImages(ctx context.Context, familyID int64) (int, error)
	HashExists(ctx context.Context, hash string) (bool, error)
	// InsertImage stores img and sets its ID. Returns ErrDuplicateHash when the
	// content hash is already present anywhere in the library.
	InsertImage(ctx context.Context, img *models.ReferenceImage) error
	SetEmbedding(ctx context.Context, imageID int64, vector []float32) error
	ImagesMissingEmbedding(ctx context.Context, limit int) ([]*models.ReferenceImage, error)
}

// ListingLedger is the append-only record of listings already scanned.
type ListingLedger interface {
	IsListingProcessed(ctx context.Context, listingID string) (bool, error)
	MarkListingProcessed(ctx context.Context, l *models.ProcessedListing) error
}

// RunStore records batch crawl summaries.
type RunStore interface {
	RecordRun(ctx context.Context, run *models.CrawlRun) error
	LatestRun(ctx context.Context) (*models.CrawlRun, error)
}

// Store is the full persistence surface used by the pipeline.
type Store interface {
	FamilyStore
	ImageStore
	ListingLedger
	RunStore
	Close() error
}
