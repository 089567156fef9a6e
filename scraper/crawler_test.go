package scraper

import (
	"context"
	"errors"
	"net/http"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"resale-pipeline/embedding"
	"resale-pipeline/marketplace"
	"resale-pipeline/models"
)

const prospexQuery = "seiko prospex"

func TestCrawlFamilyAtQuotaMakesNoSearchCalls(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()

	f := prospex(2, 1)
	require.NoError(t, h.store.UpsertFamily(ctx, f))
	for _, hash := range []string{"h1", "h2"} {
		require.NoError(t, h.store.InsertImage(ctx, &models.ReferenceImage{FamilyID: f.ID, ContentHash: hash}))
	}

	res, err := h.crawler.CrawlFamily(ctx, prospex(2, 1))
	require.NoError(t, err)
	assert.Equal(t, models.OutcomeSkipped, res.Outcome)
	assert.Equal(t, models.StatusLocked, res.Status)
	assert.Zero(t, h.search.callCount())

	fams, err := h.store.ListFamilies(ctx)
	require.NoError(t, err)
	assert.Equal(t, models.StatusLocked, fams[0].Status)
}

func TestCrawlFamilyLockedStatusNeverDowngrades(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()

	f := prospex(5, 2)
	require.NoError(t, h.store.UpsertFamily(ctx, f))
	require.NoError(t, h.store.UpdateFamilyProgress(ctx, f.ID, models.StatusLocked, 5))

	res, err := h.crawler.CrawlFamily(ctx, prospex(5, 2))
	require.NoError(t, err)
	assert.Equal(t, models.OutcomeSkipped, res.Outcome)
	assert.Equal(t, models.StatusLocked, res.Status)
	assert.Zero(t, h.search.callCount())
}

func TestCrawlFamilyStoresIdenticalBytesOnce(t *testing.T) {
	h := newHarness(t)
	a := h.item(t, "a", "Seiko Prospex SRPE93 Diver", 10)
	b := h.item(t, "b", "Seiko Prospex Turtle", 10)
	c := h.item(t, "c", "Seiko Prospex Alpinist", 99)
	h.search.pages[prospexQuery] = []*marketplace.SearchPage{page(true, a, b), page(false, c)}

	res, err := h.crawler.CrawlFamily(context.Background(), prospex(10, 2))
	require.NoError(t, err)

	assert.Equal(t, 2, res.Stats.ImagesStored)
	assert.Equal(t, 1, res.Stats.ImagesDuplicate)
	assert.Equal(t, 2, res.ImageCount)
	assert.Equal(t, models.StatusReady, res.Status)
	assert.Equal(t, models.OutcomeIncomplete, res.Outcome)

	// The duplicate listing is still ledgered.
	for _, id := range []string{"a", "b", "c"} {
		ok, err := h.store.IsListingProcessed(context.Background(), id)
		require.NoError(t, err)
		assert.True(t, ok, id)
	}
}

func TestHashUniquenessIsGlobalAcrossFamilies(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()

	shared := pngBytes(t, 32, 32, 7)
	h.download.files["https://img.example/p.png"] = shared
	h.download.files["https://img.example/q.png"] = shared
	h.search.pages[prospexQuery] = []*marketplace.SearchPage{page(false,
		models.SearchItem{ItemID: "p", Title: "Seiko Prospex", ImageURL: "https://img.example/p.png"})}
	h.search.pages["seiko presage"] = []*marketplace.SearchPage{page(false,
		models.SearchItem{ItemID: "q", Title: "Seiko Presage Cocktail Time", ImageURL: "https://img.example/q.png"})}

	_, err := h.crawler.CrawlFamily(ctx, prospex(5, 1))
	require.NoError(t, err)
	res, err := h.crawler.CrawlFamily(ctx, &models.Family{
		Brand: "seiko", Family: "presage", Quota: 5, MinRequired: 1, Queries: []string{"Seiko Presage"},
	})
	require.NoError(t, err)

	assert.Zero(t, res.Stats.ImagesStored)
	assert.Equal(t, 1, res.Stats.ImagesDuplicate)
}

func TestCrawlStopsAfterTwoEmptyPages(t *testing.T) {
	h := newHarness(t)
	h.search.pages[prospexQuery] = []*marketplace.SearchPage{page(true), page(true), page(true), page(true)}

	res, err := h.crawler.CrawlFamily(context.Background(), prospex(5, 1))
	require.NoError(t, err)
	assert.Equal(t, 2, h.search.callCount())
	assert.Equal(t, models.OutcomeIncomplete, res.Outcome)
}

func TestCrawlStopsWhenNoMoreResults(t *testing.T) {
	h := newHarness(t)
	h.search.pages[prospexQuery] = []*marketplace.SearchPage{page(false, h.item(t, "a", "Seiko Prospex", 1))}

	_, err := h.crawler.CrawlFamily(context.Background(), prospex(5, 1))
	require.NoError(t, err)
	assert.Equal(t, 1, h.search.callCount())
}

func TestCrawlRespectsPageCap(t *testing.T) {
	h := newHarness(t)
	h.crawler.opts.MaxPagesPerQuery = 3
	var pages []*marketplace.SearchPage
	for i := 0; i < 6; i++ {
		pages = append(pages, page(true, h.item(t, string(rune('a'+i)), "Seiko Prospex", uint8(i*20))))
	}
	h.search.pages[prospexQuery] = pages

	res, err := h.crawler.CrawlFamily(context.Background(), prospex(50, 1))
	require.NoError(t, err)
	assert.Equal(t, 3, h.search.callCount())
	assert.Equal(t, 3, res.Stats.ImagesStored)
}

func TestCrawlBacksOffOnRateLimitThenContinues(t *testing.T) {
	h := newHarness(t)
	h.search.errs = []error{&marketplace.StatusError{StatusCode: http.StatusTooManyRequests}}
	h.search.pages[prospexQuery] = []*marketplace.SearchPage{page(false, h.item(t, "a", "Seiko Prospex", 1))}

	res, err := h.crawler.CrawlFamily(context.Background(), prospex(5, 1))
	require.NoError(t, err)

	assert.Equal(t, 2, res.Stats.SearchCalls)
	assert.Equal(t, 1, res.Stats.TransientErrors)
	assert.Equal(t, 1, res.Stats.ImagesStored)
	assert.Equal(t, []time.Duration{30 * time.Second}, h.sleeper.sleeps)
}

func TestCrawlAbandonsVariantAfterRetriesExhausted(t *testing.T) {
	h := newHarness(t)
	rl := &marketplace.StatusError{StatusCode: http.StatusServiceUnavailable}
	h.search.errs = []error{rl, rl, rl}
	h.search.pages["seiko prospex automatic"] = []*marketplace.SearchPage{
		page(false, h.item(t, "a", "Seiko Prospex Automatic", 1)),
	}

	f := prospex(5, 1)
	f.Queries = []string{"Seiko Prospex", "Seiko Prospex Automatic"}
	res, err := h.crawler.CrawlFamily(context.Background(), f)
	require.NoError(t, err)

	assert.Equal(t, 4, res.Stats.SearchCalls, "three attempts on the first variant, one on the second")
	assert.Equal(t, 3, res.Stats.TransientErrors)
	assert.Equal(t, 1, res.Stats.ImagesStored)
}

func TestCrawlPermanentSearchErrorIsNotRetried(t *testing.T) {
	h := newHarness(t)
	h.search.errs = []error{&marketplace.StatusError{StatusCode: http.StatusNotFound}}

	res, err := h.crawler.CrawlFamily(context.Background(), prospex(5, 1))
	require.NoError(t, err)
	assert.Equal(t, 1, res.Stats.SearchCalls)
	assert.Zero(t, res.Stats.TransientErrors)
	assert.Empty(t, h.sleeper.sleeps)
}

func TestCrawlSkipsMismatchedTitlesWithoutLedgering(t *testing.T) {
	h := newHarness(t)
	h.search.pages[prospexQuery] = []*marketplace.SearchPage{page(false,
		h.item(t, "x", "Casio G-Shock GA2100", 1),
		h.item(t, "y", "Seiko Prospex", 2),
	)}

	res, err := h.crawler.CrawlFamily(context.Background(), prospex(5, 1))
	require.NoError(t, err)
	assert.Equal(t, 1, res.Stats.ListingsMismatched)
	assert.Equal(t, 1, res.Stats.ImagesStored)

	ok, err := h.store.IsListingProcessed(context.Background(), "x")
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestCrawlStopsAtQuotaAndLocks(t *testing.T) {
	h := newHarness(t)
	var items []models.SearchItem
	for i := 0; i < 6; i++ {
		items = append(items, h.item(t, string(rune('a'+i)), "Seiko Prospex", uint8(i*30)))
	}
	h.search.pages[prospexQuery] = []*marketplace.SearchPage{page(true, items[0:2]...), page(true, items[2:4]...), page(false, items[4:]...)}

	res, err := h.crawler.CrawlFamily(context.Background(), prospex(3, 2))
	require.NoError(t, err)
	assert.Equal(t, models.OutcomeComplete, res.Outcome)
	assert.Equal(t, models.StatusLocked, res.Status)
	assert.Equal(t, 3, res.ImageCount)
	assert.Equal(t, 2, h.search.callCount())

	fams, err := h.store.ListFamilies(context.Background())
	require.NoError(t, err)
	assert.Equal(t, models.StatusLocked, fams[0].Status)
	assert.Equal(t, 3, fams[0].ImageCount)
}

func TestCrawlResumesFromLedger(t *testing.T) {
	h := newHarness(t)
	a := h.item(t, "a", "Seiko Prospex", 1)
	b := h.item(t, "b", "Seiko Prospex", 2)
	h.search.pages[prospexQuery] = []*marketplace.SearchPage{page(false, a, b)}

	_, err := h.crawler.CrawlFamily(context.Background(), prospex(5, 1))
	require.NoError(t, err)
	downloads := h.download.calls

	res, err := h.crawler.CrawlFamily(context.Background(), prospex(5, 1))
	require.NoError(t, err)
	assert.Equal(t, 2, res.Stats.ListingsDuplicate)
	assert.Zero(t, res.Stats.ImagesStored)
	assert.Equal(t, 2, res.ImageCount)
	assert.Equal(t, downloads, h.download.calls, "processed listings are not downloaded again")
}

func TestCrawlEmbeddingFailureStillStoresImage(t *testing.T) {
	h := newHarness(t)
	emb := &fakeEmbedder{err: embedding.ErrRateLimited}
	h.crawler.WithEmbedder(emb)
	h.search.pages[prospexQuery] = []*marketplace.SearchPage{page(false, h.item(t, "a", "Seiko Prospex", 1))}

	res, err := h.crawler.CrawlFamily(context.Background(), prospex(5, 1))
	require.NoError(t, err)
	assert.Equal(t, 1, res.Stats.ImagesStored)
	assert.Equal(t, 1, res.Stats.EmbeddingFailures)

	missing, err := h.store.ImagesMissingEmbedding(context.Background(), 10)
	require.NoError(t, err)
	assert.Len(t, missing, 1)
}

func TestCrawlAttachesEmbedding(t *testing.T) {
	h := newHarness(t)
	h.crawler.WithEmbedder(&fakeEmbedder{})
	h.search.pages[prospexQuery] = []*marketplace.SearchPage{page(false, h.item(t, "a", "Seiko Prospex", 1))}

	_, err := h.crawler.CrawlFamily(context.Background(), prospex(5, 1))
	require.NoError(t, err)

	missing, err := h.store.ImagesMissingEmbedding(context.Background(), 10)
	require.NoError(t, err)
	assert.Empty(t, missing)
}

func TestCrawlRejectsInvalidImages(t *testing.T) {
	h := newHarness(t)
	h.download.files["https://img.example/tiny.png"] = pngBytes(t, 4, 4, 1)
	h.download.files["https://img.example/junk.jpg"] = []byte("not an image")
	h.search.pages[prospexQuery] = []*marketplace.SearchPage{page(false, models.SearchItem{
		ItemID: "a", Title: "Seiko Prospex",
		ImageURL:            "https://img.example/tiny.png",
		AdditionalImageURLs: []string{"https://img.example/junk.jpg", "https://img.example/missing.jpg"},
	})}

	res, err := h.crawler.CrawlFamily(context.Background(), prospex(5, 1))
	require.NoError(t, err)
	assert.Equal(t, 3, res.Stats.ImagesFailed)
	assert.Zero(t, res.Stats.ImagesStored)

	ok, err := h.store.IsListingProcessed(context.Background(), "a")
	require.NoError(t, err)
	assert.True(t, ok, "listing is ledgered regardless of image yield")
}

func TestCrawlBrowserFallback(t *testing.T) {
	h := newHarness(t)
	h.download.files["https://cdn.example/r1.png"] = pngBytes(t, 32, 32, 5)
	h.crawler.WithResolver(&fakeResolver{urls: []string{"https://cdn.example/r1.png"}})
	h.search.pages[prospexQuery] = []*marketplace.SearchPage{page(false, models.SearchItem{
		ItemID: "a", Title: "Seiko Prospex", WebURL: "https://market.example/itm/a",
	})}

	res, err := h.crawler.CrawlFamily(context.Background(), prospex(5, 1))
	require.NoError(t, err)
	require.Equal(t, 1, res.Stats.ImagesStored)

	missing, err := h.store.ImagesMissingEmbedding(context.Background(), 10)
	require.NoError(t, err)
	require.Len(t, missing, 1)
	assert.Equal(t, "browser", missing[0].Source)
}

func TestRunBatchRecordsRun(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	h.search.pages[prospexQuery] = []*marketplace.SearchPage{page(false, h.item(t, "a", "Seiko Prospex", 1))}
	h.search.pages["seiko presage"] = []*marketplace.SearchPage{page(false, h.item(t, "b", "Seiko Presage", 2))}

	locked := &models.Family{Brand: "casio", Family: "g-shock", Quota: 1, MinRequired: 1, Queries: []string{"Casio G-Shock"}}
	require.NoError(t, h.store.UpsertFamily(ctx, locked))
	require.NoError(t, h.store.InsertImage(ctx, &models.ReferenceImage{FamilyID: locked.ID, ContentHash: "x"}))

	summary, err := h.crawler.RunBatch(ctx, []*models.Family{
		prospex(1, 1),
		{Brand: "seiko", Family: "presage", Quota: 3, MinRequired: 1, Queries: []string{"Seiko Presage"}},
		{Brand: "casio", Family: "g-shock", Quota: 1, MinRequired: 1, Queries: []string{"Casio G-Shock"}},
	})
	require.NoError(t, err)

	assert.NotEmpty(t, summary.RunID)
	assert.Equal(t, 1, summary.FamiliesComplete)
	assert.Equal(t, 1, summary.FamiliesIncomplete)
	assert.Equal(t, 1, summary.FamiliesSkipped)
	assert.Equal(t, 2, summary.ImagesStored)
	assert.Equal(t, 2, summary.APICalls)
	assert.Len(t, summary.Families, 3)
	assert.Equal(t, []time.Duration{3 * time.Second, 3 * time.Second}, h.sleeper.sleeps)

	run, err := h.store.LatestRun(ctx)
	require.NoError(t, err)
	assert.Equal(t, summary.RunID, run.ID)
	assert.Equal(t, 2, run.ImagesStored)
}

func TestRunBatchStopsOnCancel(t *testing.T) {
	h := newHarness(t)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	summary, err := h.crawler.RunBatch(ctx, []*models.Family{prospex(5, 1)})
	assert.True(t, errors.Is(err, context.Canceled))
	require.NotNil(t, summary)

	_, err = h.store.LatestRun(context.Background())
	assert.NoError(t, err, "partial runs are still recorded")
}

func TestCrawlRetriesTransientDownloadThenStores(t *testing.T) {
	for name, transient := range map[string]error{
		"rate limited": &marketplace.StatusError{StatusCode: http.StatusTooManyRequests},
		"unavailable":  &marketplace.StatusError{StatusCode: http.StatusServiceUnavailable},
		"timeout":      context.DeadlineExceeded,
	} {
		t.Run(name, func(t *testing.T) {
			h := newHarness(t)
			a := h.item(t, "a", "Seiko Prospex", 1)
			h.download.errs[a.ImageURL] = []error{transient}
			h.search.pages[prospexQuery] = []*marketplace.SearchPage{page(false, a)}

			res, err := h.crawler.CrawlFamily(context.Background(), prospex(5, 1))
			require.NoError(t, err)

			assert.Equal(t, 1, res.Stats.ImagesStored)
			assert.Zero(t, res.Stats.ImagesFailed)
			assert.Equal(t, 1, res.Stats.TransientErrors)
			assert.Equal(t, 2, h.download.calls)
			assert.Equal(t, []time.Duration{30 * time.Second}, h.sleeper.sleeps)
		})
	}
}

func TestCrawlLeavesListingUnledgeredWhenDownloadsKeepFailing(t *testing.T) {
	h := newHarness(t)
	a := h.item(t, "a", "Seiko Prospex", 1)
	busy := &marketplace.StatusError{StatusCode: http.StatusServiceUnavailable}
	h.download.errs[a.ImageURL] = []error{busy, busy, busy}
	h.search.pages[prospexQuery] = []*marketplace.SearchPage{page(false, a)}

	res, err := h.crawler.CrawlFamily(context.Background(), prospex(5, 1))
	require.NoError(t, err)

	assert.Zero(t, res.Stats.ImagesStored)
	assert.Equal(t, 1, res.Stats.ImagesFailed)
	assert.Equal(t, 1, res.Stats.ListingsFailed)
	assert.Equal(t, 3, res.Stats.TransientErrors)
	assert.Equal(t, 3, h.download.calls)
	assert.Equal(t, []time.Duration{30 * time.Second, 30 * time.Second}, h.sleeper.sleeps)

	ok, err := h.store.IsListingProcessed(context.Background(), "a")
	require.NoError(t, err)
	assert.False(t, ok, "a later run must be able to fetch the images")

	// The host recovers: the next run picks the listing up again.
	res, err = h.crawler.CrawlFamily(context.Background(), prospex(5, 1))
	require.NoError(t, err)
	assert.Equal(t, 1, res.Stats.ImagesStored)
}

func TestCrawlFamilyRunsDistinctVariantQueries(t *testing.T) {
	h := newHarness(t)
	f := &models.Family{
		Brand: "rolex", Family: "submariner", DisplayName: "Rolex Submariner",
		Quota: 5, MinRequired: 1,
		Queries: []string{"Rolex Submariner Date", "Rolex Submariner No Date", "Rolex Submariner"},
	}

	_, err := h.crawler.CrawlFamily(context.Background(), f)
	require.NoError(t, err)

	var queries []string
	for _, req := range h.search.calls {
		queries = append(queries, req.Query)
	}
	assert.Equal(t, []string{"rolex submariner", "rolex submariner no date"}, queries,
		"variants that reduce to an earlier query are widened, and exact repeats are skipped")
}
