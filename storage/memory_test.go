package storage

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"resale-pipeline/models"
)

func TestMemoryStoreFamilies(t *testing.T) {
	ctx := context.Background()
	m := NewMemoryStore()

	f := &models.Family{Brand: "seiko", Family: "prospex", Quota: 40, MinRequired: 15}
	require.NoError(t, m.UpsertFamily(ctx, f))
	assert.NotZero(t, f.ID)
	assert.Equal(t, models.StatusBuilding, f.Status)

	require.NoError(t, m.UpdateFamilyProgress(ctx, f.ID, models.StatusReady, 16))

	again := &models.Family{Brand: "seiko", Family: "prospex", Quota: 50, MinRequired: 15}
	require.NoError(t, m.UpsertFamily(ctx, again))
	assert.Equal(t, f.ID, again.ID)
	assert.Equal(t, models.StatusReady, again.Status, "upsert keeps stored progress")
	assert.Equal(t, 16, again.ImageCount)

	require.NoError(t, m.UpsertFamily(ctx, &models.Family{Brand: "casio", Family: "g-shock", Quota: 10}))
	all, err := m.ListFamilies(ctx)
	require.NoError(t, err)
	require.Len(t, all, 2)
	assert.Equal(t, "casio", all[0].Brand)
	assert.Equal(t, 50, all[1].Quota)

	assert.ErrorIs(t, m.UpdateFamilyProgress(ctx, 999, models.StatusReady, 1), ErrNotFound)
}

func TestMemoryStoreHashUniquenessIsGlobal(t *testing.T) {
	ctx := context.Background()
	m := NewMemoryStore()

	require.NoError(t, m.InsertImage(ctx, &models.ReferenceImage{FamilyID: 1, ContentHash: "h1"}))
	err := m.InsertImage(ctx, &models.ReferenceImage{FamilyID: 2, ContentHash: "h1"})
	assert.ErrorIs(t, err, ErrDuplicateHash)

	ok, err := m.HashExists(ctx, "h1")
	require.NoError(t, err)
	assert.True(t, ok)

	n, err := m.CountImages(ctx, 1)
	require.NoError(t, err)
	assert.Equal(t, 1, n)
	n, err = m.CountImages(ctx, 2)
	require.NoError(t, err)
	assert.Zero(t, n)
}

func TestMemoryStoreEmbeddings(t *testing.T) {
	ctx := context.Background()
	m := NewMemoryStore()

	a := &models.ReferenceImage{FamilyID: 1, ContentHash: "a"}
	b := &models.ReferenceImage{FamilyID: 1, ContentHash: "b", Embedding: []float32{1}}
	require.NoError(t, m.InsertImage(ctx, a))
	require.NoError(t, m.InsertImage(ctx, b))

	missing, err := m.ImagesMissingEmbedding(ctx, 10)
	require.NoError(t, err)
	require.Len(t, missing, 1)
	assert.Equal(t, "a", missing[0].ContentHash)

	require.NoError(t, m.SetEmbedding(ctx, a.ID, []float32{0.1, 0.2}))
	missing, err = m.ImagesMissingEmbedding(ctx, 10)
	require.NoError(t, err)
	assert.Empty(t, missing)

	stored, ok := m.Image(a.ID)
	require.True(t, ok)
	assert.Equal(t, []float32{0.1, 0.2}, stored.Embedding)
}

func TestMemoryStoreLedgerAndRuns(t *testing.T) {
	ctx := context.Background()
	m := NewMemoryStore()

	ok, err := m.IsListingProcessed(ctx, "x")
	require.NoError(t, err)
	assert.False(t, ok)

	require.NoError(t, m.MarkListingProcessed(ctx, &models.ProcessedListing{ListingID: "x", FamilyID: 1}))
	require.NoError(t, m.MarkListingProcessed(ctx, &models.ProcessedListing{ListingID: "x", FamilyID: 2}))
	ok, err = m.IsListingProcessed(ctx, "x")
	require.NoError(t, err)
	assert.True(t, ok)

	_, err = m.LatestRun(ctx)
	assert.ErrorIs(t, err, ErrNotFound)

	t0 := time.Now()
	require.NoError(t, m.RecordRun(ctx, &models.CrawlRun{ID: "old", StartedAt: t0.Add(-time.Hour)}))
	require.NoError(t, m.RecordRun(ctx, &models.CrawlRun{ID: "new", StartedAt: t0}))
	run, err := m.LatestRun(ctx)
	require.NoError(t, err)
	assert.Equal(t, "new", run.ID)
}
