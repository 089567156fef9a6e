package storage

import (
	"context"
	"sort"
	"sync"
	"time"

	"resale-pipeline/models"
)

// MemoryStore is an in-process Store used for dry runs and tests. It enforces
// the same global content-hash uniqueness as the Postgres schema.
type MemoryStore struct {
	mu       sync.RWMutex
	nextID   int64
	families map[int64]*models.Family
	byKey    map[string]int64
	images   map[int64]*models.ReferenceImage
	hashes   map[string]int64
	ledger   map[string]models.ProcessedListing
	runs     []models.CrawlRun
}

// NewMemoryStore returns an empty MemoryStore.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		families: make(map[int64]*models.Family),
		byKey:    make(map[string]int64),
		images:   make(map[int64]*models.ReferenceImage),
		hashes:   make(map[string]int64),
		ledger:   make(map[string]models.ProcessedListing),
	}
}

func (m *MemoryStore) id() int64 {
	m.nextID++
	return m.nextID
}

func (m *MemoryStore) UpsertFamily(_ context.Context, f *models.Family) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	now := time.Now()
	if id, ok := m.byKey[f.Key()]; ok {
		stored := m.families[id]
		stored.DisplayName = f.DisplayName
		stored.Quota = f.Quota
		stored.MinRequired = f.MinRequired
		stored.UpdatedAt = now
		f.ID, f.Status, f.ImageCount = stored.ID, stored.Status, stored.ImageCount
		f.CreatedAt, f.UpdatedAt = stored.CreatedAt, stored.UpdatedAt
		return nil
	}

	f.ID = m.id()
	f.Status = models.StatusBuilding
	f.ImageCount = 0
	f.CreatedAt, f.UpdatedAt = now, now
	cp := *f
	cp.Queries = nil
	m.families[f.ID] = &cp
	m.byKey[f.Key()] = f.ID
	return nil
}

func (m *MemoryStore) ListFamilies(_ context.Context) ([]*models.Family, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	out := make([]*models.Family, 0, len(m.families))
	for _, f := range m.families {
		cp := *f
		out = append(out, &cp)
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Brand != out[j].Brand {
			return out[i].Brand < out[j].Brand
		}
		return out[i].Family < out[j].Family
	})
	return out, nil
}

func (m *MemoryStore) UpdateFamilyProgress(_ context.Context, familyID int64, status models.FamilyStatus, imageCount int) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	f, ok := m.families[familyID]
	if !ok {
		return ErrNotFound
	}
	f.Status = status
	f.ImageCount = imageCount
	f.UpdatedAt = time.Now()
	return nil
}

func (m *MemoryStore) CountImages(_ context.Context, familyID int64) (int, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	n := 0
	for _, img := range m.images {
		if img.FamilyID == familyID {
			n++
		}
	}
	return n, nil
}

func (m *MemoryStore) HashExists(_ context.Context, hash string) (bool, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	_, ok := m.hashes[hash]
	return ok, nil
}

func (m *MemoryStore) InsertImage(_ context.Context, img *models.ReferenceImage) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if _, dup := m.hashes[img.ContentHash]; dup {
		return ErrDuplicateHash
	}
	img.ID = m.id()
	img.CreatedAt = time.Now()
	cp := *img
	cp.Embedding = append([]float32(nil), img.Embedding...)
	m.images[img.ID] = &cp
	m.hashes[img.ContentHash] = img.ID
	return nil
}

func (m *MemoryStore) SetEmbedding(_ context.Context, imageID int64, vector []float32) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	img, ok := m.images[imageID]
	if !ok {
		return ErrNotFound
	}
	img.Embedding = append([]float32(nil), vector...)
	return nil
}

func (m *MemoryStore) ImagesMissingEmbedding(_ context.Context, limit int) ([]*models.ReferenceImage, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	var out []*models.ReferenceImage
	for _, img := range m.images {
		if len(img.Embedding) == 0 {
			cp := *img
			out = append(out, &cp)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (m *MemoryStore) IsListingProcessed(_ context.Context, listingID string) (bool, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	_, ok := m.ledger[listingID]
	return ok, nil
}

func (m *MemoryStore) MarkListingProcessed(_ context.Context, l *models.ProcessedListing) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if _, ok := m.ledger[l.ListingID]; ok {
		return nil
	}
	rec := *l
	if rec.ProcessedAt.IsZero() {
		rec.ProcessedAt = time.Now()
	}
	m.ledger[l.ListingID] = rec
	return nil
}

func (m *MemoryStore) RecordRun(_ context.Context, run *models.CrawlRun) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.runs = append(m.runs, *run)
	return nil
}

func (m *MemoryStore) LatestRun(_ context.Context) (*models.CrawlRun, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	if len(m.runs) == 0 {
		return nil, ErrNotFound
	}
	latest := m.runs[0]
	for _, r := range m.runs[1:] {
		if !r.StartedAt.Before(latest.StartedAt) {
			latest = r
		}
	}
	return &latest, nil
}

// Image returns a stored image by ID. Used by tests and the dry-run report.
func (m *MemoryStore) Image(id int64) (*models.ReferenceImage, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	img, ok := m.images[id]
	if !ok {
		return nil, false
	}
	cp := *img
	return &cp, true
}

func (m *MemoryStore) Close() error { return nil }
