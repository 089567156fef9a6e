package models

import "time"

// FamilyStatus is the ingestion lifecycle of a family. Transitions only move forward.
type FamilyStatus string

const (
	StatusBuilding FamilyStatus = "building"
	StatusReady    FamilyStatus = "ready"
	StatusLocked   FamilyStatus = "locked"
)

// Rank orders statuses so that promotion can be checked with a comparison.
func (s FamilyStatus) Rank() int {
	switch s {
	case StatusReady:
		return 1
	case StatusLocked:
		return 2
	default:
		return 0
	}
}

// Family is a product line (brand + model line) that owns reference images.
type Family struct {
	ID          int64        `db:"id"`
	Brand       string       `db:"brand"`
	Family      string       `db:"family"`
	DisplayName string       `db:"display_name"`
	Quota       int          `db:"quota"`
	MinRequired int          `db:"min_required"`
	Status      FamilyStatus `db:"status"`
	ImageCount  int          `db:"image_count"`
	CreatedAt   time.Time    `db:"created_at"`
	UpdatedAt   time.Time    `db:"updated_at"`

	// Queries are the search hints from the catalog. Not persisted.
	Queries []string `db:"-"`
}

// Key returns the natural brand/family key.
func (f *Family) Key() string {
	return f.Brand + "/" + f.Family
}

// ReferenceImage is one stored, deduplicated image. ContentHash is unique across the library.
type ReferenceImage struct {
	ID          int64     `db:"id"`
	FamilyID    int64     `db:"family_id"`
	ContentHash string    `db:"content_hash"`
	StoragePath string    `db:"storage_path"`
	OriginURL   string    `db:"origin_url"`
	ListingID   string    `db:"listing_id"`
	Width       int       `db:"width"`
	Height      int       `db:"height"`
	Format      string    `db:"format"`
	ByteSize    int64     `db:"byte_size"`
	Source      string    `db:"source"`
	Embedding   []float32 `db:"-"`
	CreatedAt   time.Time `db:"created_at"`
}

// ProcessedListing records an external listing that has already been scanned.
type ProcessedListing struct {
	ListingID    string    `db:"listing_id"`
	FamilyID     int64     `db:"family_id"`
	ImagesStored int       `db:"images_stored"`
	ProcessedAt  time.Time `db:"processed_at"`
}
