package scraper

import (
	"context"
	"fmt"

	"resale-pipeline/models"
	"resale-pipeline/storage"
)

// QuotaTracker follows one family's stored-image count and promotes its
// status as thresholds are crossed. Status never moves backwards.
type QuotaTracker struct {
	store  storage.FamilyStore
	family *models.Family
	count  int
	status models.FamilyStatus
}

// NewQuotaTracker reads the current image count from storage so an
// interrupted family resumes where it stopped.
func NewQuotaTracker(ctx context.Context, families storage.FamilyStore, images storage.ImageStore, f *models.Family) (*QuotaTracker, error) {
	n, err := images.CountImages(ctx, f.ID)
	if err != nil {
		return nil, fmt.Errorf("quota: count images for %s: %w", f.Key(), err)
	}
	t := &QuotaTracker{store: families, family: f, count: n, status: f.Status}
	if t.status == "" {
		t.status = models.StatusBuilding
	}
	t.promote()
	return t, nil
}

// StatusFor computes the status implied by count alone.
func StatusFor(count, quota, minRequired int) models.FamilyStatus {
	switch {
	case count >= quota:
		return models.StatusLocked
	case count >= minRequired:
		return models.StatusReady
	default:
		return models.StatusBuilding
	}
}

func (t *QuotaTracker) promote() bool {
	next := StatusFor(t.count, t.family.Quota, t.family.MinRequired)
	if next.Rank() > t.status.Rank() {
		t.status = next
		return true
	}
	return false
}

// Met reports whether the family needs no more images.
func (t *QuotaTracker) Met() bool {
	return t.status == models.StatusLocked || t.count >= t.family.Quota
}

func (t *QuotaTracker) Count() int                  { return t.count }
func (t *QuotaTracker) Status() models.FamilyStatus { return t.status }

// Remaining is the number of images still wanted.
func (t *QuotaTracker) Remaining() int {
	if t.Met() {
		return 0
	}
	return t.family.Quota - t.count
}

// Record counts one stored image. When a threshold is crossed the new status
// and count are persisted immediately and crossed is true.
func (t *QuotaTracker) Record(ctx context.Context) (crossed bool, err error) {
	t.count++
	if !t.promote() {
		return false, nil
	}
	return true, t.Flush(ctx)
}

// Flush persists the current status and count.
func (t *QuotaTracker) Flush(ctx context.Context) error {
	if err := t.store.UpdateFamilyProgress(ctx, t.family.ID, t.status, t.count); err != nil {
		return fmt.Errorf("quota: persist %s: %w", t.family.Key(), err)
	}
	t.family.Status = t.status
	t.family.ImageCount = t.count
	return nil
}
