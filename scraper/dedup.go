package scraper

import (
	"context"

	"resale-pipeline/storage"
	"resale-pipeline/utils"
)

// DedupContext answers "seen before?" for listings and image hashes during a
// single family pass. It caches positives in memory and falls back to the
// store, whose unique constraints remain authoritative.
type DedupContext struct {
	ledger   storage.ListingLedger
	images   storage.ImageStore
	listings *utils.KeySet
	hashes   *utils.KeySet
}

// NewDedupContext creates an empty context backed by the given store.
func NewDedupContext(ledger storage.ListingLedger, images storage.ImageStore) *DedupContext {
	return &DedupContext{
		ledger:   ledger,
		images:   images,
		listings: utils.NewKeySet(),
		hashes:   utils.NewKeySet(),
	}
}

// SeenListing reports whether the listing was already processed.
func (d *DedupContext) SeenListing(ctx context.Context, listingID string) (bool, error) {
	if d.listings.Has(listingID) {
		return true, nil
	}
	ok, err := d.ledger.IsListingProcessed(ctx, listingID)
	if err != nil {
		return false, err
	}
	if ok {
		d.listings.Mark(listingID)
	}
	return ok, nil
}

// SeenHash reports whether an image with this content hash is already stored.
func (d *DedupContext) SeenHash(ctx context.Context, hash string) (bool, error) {
	if d.hashes.Has(hash) {
		return true, nil
	}
	ok, err := d.images.HashExists(ctx, hash)
	if err != nil {
		return false, err
	}
	if ok {
		d.hashes.Mark(hash)
	}
	return ok, nil
}

func (d *DedupContext) RememberListing(listingID string) { d.listings.Mark(listingID) }

func (d *DedupContext) RememberHash(hash string) { d.hashes.Mark(hash) }
