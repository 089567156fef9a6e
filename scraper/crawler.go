// Package scraper builds the reference-image library: it walks product
// families one at a time, pages the marketplace search, downloads and
// validates listing images, and stores each unique image once.
package scraper

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"resale-pipeline/config"
	"resale-pipeline/embedding"
	"resale-pipeline/identify"
	"resale-pipeline/marketplace"
	"resale-pipeline/models"
	"resale-pipeline/storage"
	"resale-pipeline/utils"
)

const maxImagesPerListing = 3

// Searcher pages the marketplace search.
type Searcher interface {
	Search(ctx context.Context, req marketplace.SearchRequest) (*marketplace.SearchPage, error)
}

// Downloader fetches raw image bytes.
type Downloader interface {
	Download(ctx context.Context, url string) ([]byte, error)
}

// ImageResolver finds image URLs on a listing page when search returned none.
type ImageResolver interface {
	Resolve(ctx context.Context, pageURL string, limit int) ([]string, error)
}

// BlobStore keeps image bytes addressed by content hash.
type BlobStore interface {
	Put(hash, ext string, data []byte) (string, error)
	Read(path string) ([]byte, error)
}

// Options tunes paging, pacing and retry behaviour.
type Options struct {
	Category          string
	PageSize          int
	MaxPagesPerQuery  int
	MaxSearchAttempts int
	RateLimitBackoff  time.Duration
	RequestDelay      time.Duration
	ImageDelay        time.Duration
	FamilyPause       time.Duration
	MinImageDimension int
	StrictLabels      bool
	// Sleep is used for backoff and family pauses. Nil means utils.SleepContext.
	Sleep func(ctx context.Context, d time.Duration) error
}

// OptionsFromConfig maps application config onto crawler options.
func OptionsFromConfig(cfg *config.Config) Options {
	return Options{
		Category:          cfg.MarketplaceCategory,
		PageSize:          cfg.SearchPageSize,
		MaxPagesPerQuery:  cfg.MaxPagesPerQuery,
		MaxSearchAttempts: cfg.MaxRetries,
		RateLimitBackoff:  cfg.RateLimitBackoff(),
		RequestDelay:      cfg.RequestDelay(),
		ImageDelay:        cfg.ImageDelay(),
		FamilyPause:       cfg.FamilyPause(),
		MinImageDimension: cfg.MinImageDimension,
		StrictLabels:      cfg.StrictLabels,
	}
}

// Crawler runs families strictly one after another.
type Crawler struct {
	opts     Options
	store    storage.Store
	blobs    BlobStore
	search   Searcher
	download Downloader
	resolver ImageResolver
	embedder embedding.Generator
	logger   *utils.Logger

	searchPacer   *utils.Pacer
	imagePacer    *utils.Pacer
	searchRetry   *utils.RetryConfig
	downloadRetry *utils.RetryConfig
}

// New creates a Crawler. Embedding and browser resolution are off until
// WithEmbedder / WithResolver are called.
func New(store storage.Store, blobs BlobStore, search Searcher, download Downloader, opts Options, logger *utils.Logger) *Crawler {
	if opts.PageSize <= 0 {
		opts.PageSize = 50
	}
	if opts.MaxPagesPerQuery <= 0 {
		opts.MaxPagesPerQuery = 20
	}
	if opts.MaxSearchAttempts <= 0 {
		opts.MaxSearchAttempts = 3
	}
	if opts.Sleep == nil {
		opts.Sleep = utils.SleepContext
	}

	retry := utils.FixedRetry(opts.MaxSearchAttempts, opts.RateLimitBackoff, marketplace.IsTransient, logger)
	retry.Sleep = opts.Sleep
	downloadRetry := utils.FixedRetry(opts.MaxSearchAttempts, opts.RateLimitBackoff, marketplace.IsTransient, logger)
	downloadRetry.Sleep = opts.Sleep

	return &Crawler{
		opts:          opts,
		store:         store,
		blobs:         blobs,
		search:        search,
		download:      download,
		logger:        logger,
		searchPacer:   utils.NewPacer(opts.RequestDelay),
		imagePacer:    utils.NewPacer(opts.ImageDelay),
		searchRetry:   retry,
		downloadRetry: downloadRetry,
	}
}

func (c *Crawler) WithEmbedder(g embedding.Generator) *Crawler {
	c.embedder = g
	return c
}

func (c *Crawler) WithResolver(r ImageResolver) *Crawler {
	c.resolver = r
	return c
}

// RunBatch crawls every family in order and records the run. Families that
// end below quota are reported as incomplete, not as errors. Only
// cancellation or a failure to record the run is returned as an error.
func (c *Crawler) RunBatch(ctx context.Context, families []*models.Family) (*models.RunSummary, error) {
	summary := &models.RunSummary{RunID: uuid.NewString(), StartedAt: time.Now()}
	log := c.logger.With("run_id", summary.RunID)
	log.Info("[crawler] Starting run %s over %d families", summary.RunID, len(families))

	var runErr error
	prevCalls := 0
	for _, f := range families {
		if prevCalls > 0 && c.opts.FamilyPause > 0 {
			if err := c.opts.Sleep(ctx, c.opts.FamilyPause); err != nil {
				runErr = err
				break
			}
		}

		res, err := c.CrawlFamily(ctx, f)
		prevCalls = res.Stats.SearchCalls
		if err != nil {
			if ctx.Err() != nil {
				runErr = ctx.Err()
				summary.Add(res)
				break
			}
			log.Error("[crawler] Family %s aborted: %v", f.Key(), err)
			res.Outcome = models.OutcomeIncomplete
		}
		summary.Add(res)
	}
	summary.FinishedAt = time.Now()

	run := summary.Record()
	// The run is recorded even when cancelled so partial progress is visible.
	if err := c.store.RecordRun(context.WithoutCancel(ctx), &run); err != nil {
		return summary, errors.Join(runErr, fmt.Errorf("record run: %w", err))
	}
	log.Info("[crawler] Run finished: %d complete, %d incomplete, %d skipped, %d images stored, %d API calls",
		summary.FamiliesComplete, summary.FamiliesIncomplete, summary.FamiliesSkipped,
		summary.ImagesStored, summary.APICalls)
	return summary, runErr
}

// CrawlFamily fills one family up to its quota or until its query variants
// are exhausted.
func (c *Crawler) CrawlFamily(ctx context.Context, f *models.Family) (models.FamilyResult, error) {
	res := models.FamilyResult{Family: f.Key(), Quota: f.Quota}
	log := c.logger.With("family", f.Key())

	if err := c.store.UpsertFamily(ctx, f); err != nil {
		return res, err
	}
	tracker, err := NewQuotaTracker(ctx, c.store, c.store, f)
	if err != nil {
		return res, err
	}

	if tracker.Met() {
		if tracker.Status() != f.Status || tracker.Count() != f.ImageCount {
			if err := tracker.Flush(ctx); err != nil {
				return res, err
			}
		}
		log.Info("[crawler] %s already at quota (%d/%d), skipping", f.Key(), tracker.Count(), f.Quota)
		res.Outcome = models.OutcomeSkipped
		res.Status, res.ImageCount = tracker.Status(), tracker.Count()
		return res, nil
	}

	log.Info("[crawler] %s: %d/%d images, status %s", f.Key(), tracker.Count(), f.Quota, tracker.Status())
	dedup := NewDedupContext(c.store, c.store)
	fc := &familyCrawl{Crawler: c, family: f, tracker: tracker, dedup: dedup, log: log, stats: &res.Stats}

	var crawlErr error
	searched := make(map[string]struct{})
	for _, variant := range queryVariants(f) {
		if tracker.Met() {
			break
		}
		_, q := identify.QueryForTitle(variant)
		if _, dup := searched[q.Text]; dup {
			q = identify.ExpandQuery(q, variant)
		}
		if _, dup := searched[q.Text]; dup {
			log.Debug("[crawler] Variant %q repeats query %q, skipping", variant, q.Text)
			continue
		}
		searched[q.Text] = struct{}{}
		if err := fc.crawlQuery(ctx, q.Text); err != nil {
			crawlErr = err
			break
		}
	}

	flushCtx := ctx
	if crawlErr != nil {
		flushCtx = context.WithoutCancel(ctx)
	}
	if err := tracker.Flush(flushCtx); err != nil && crawlErr == nil {
		crawlErr = err
	}

	res.Status, res.ImageCount = tracker.Status(), tracker.Count()
	if tracker.Met() {
		res.Outcome = models.OutcomeComplete
	} else {
		res.Outcome = models.OutcomeIncomplete
	}
	log.Info("[crawler] %s finished %s: %d/%d images (%d new, %d duplicate, %d failed), %d search calls",
		f.Key(), res.Outcome, res.ImageCount, f.Quota, res.Stats.ImagesStored,
		res.Stats.ImagesDuplicate, res.Stats.ImagesFailed, res.Stats.SearchCalls)
	return res, crawlErr
}

func queryVariants(f *models.Family) []string {
	if len(f.Queries) > 0 {
		return f.Queries
	}
	if f.DisplayName != "" {
		return []string{f.DisplayName}
	}
	return []string{f.Brand + " " + f.Family}
}

// familyCrawl is the per-family working state.
type familyCrawl struct {
	*Crawler
	family  *models.Family
	tracker *QuotaTracker
	dedup   *DedupContext
	log     *utils.Logger
	stats   *models.FamilyStats
}

// crawlQuery pages one query variant. It only returns an error for
// cancellation or storage failures; search failures abandon the variant.
func (fc *familyCrawl) crawlQuery(ctx context.Context, query string) error {
	emptyPages := 0
	for page := 0; page < fc.opts.MaxPagesPerQuery; page++ {
		if fc.tracker.Met() {
			return nil
		}

		result, err := fc.searchPage(ctx, query, page*fc.opts.PageSize)
		if err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			fc.log.Warn("[crawler] Abandoning query %q at page %d: %v", query, page+1, err)
			return nil
		}

		if len(result.Items) == 0 {
			emptyPages++
			if emptyPages >= 2 || !result.HasMore {
				return nil
			}
			continue
		}
		emptyPages = 0

		for i := range result.Items {
			if fc.tracker.Met() {
				return nil
			}
			if err := fc.processItem(ctx, &result.Items[i]); err != nil {
				return err
			}
		}

		if !result.HasMore {
			return nil
		}
	}
	fc.log.Debug("[crawler] Page cap reached for %q", query)
	return nil
}

func (fc *familyCrawl) searchPage(ctx context.Context, query string, offset int) (*marketplace.SearchPage, error) {
	var result *marketplace.SearchPage
	err := fc.searchRetry.Do(ctx, "search "+query, func(ctx context.Context) error {
		if err := fc.searchPacer.Wait(ctx); err != nil {
			return err
		}
		fc.stats.SearchCalls++
		page, err := fc.search.Search(ctx, marketplace.SearchRequest{
			Query:    query,
			Category: fc.opts.Category,
			Offset:   offset,
			Limit:    fc.opts.PageSize,
		})
		if err != nil {
			if marketplace.IsTransient(err) {
				fc.stats.TransientErrors++
			}
			return err
		}
		result = page
		return nil
	})
	return result, err
}

// processItem handles one listing. Listings are ledgered whatever their
// image yield, with two exceptions: label mismatches, which another family
// may still want, and listings whose only failures were transient.
func (fc *familyCrawl) processItem(ctx context.Context, item *models.SearchItem) error {
	fc.stats.ListingsSeen++

	seen, err := fc.dedup.SeenListing(ctx, item.ItemID)
	if err != nil {
		return err
	}
	if seen {
		fc.stats.ListingsDuplicate++
		return nil
	}

	if fc.opts.StrictLabels && !identify.Matches(identify.Extract(item.Title), fc.family.Brand, fc.family.Family) {
		fc.stats.ListingsMismatched++
		fc.log.Debug("[crawler] Skipping %s: title %q does not match %s", item.ItemID, item.Title, fc.family.Key())
		return nil
	}

	urls := item.ImageURLs()
	source := "api"
	if len(urls) == 0 && fc.resolver != nil && item.WebURL != "" {
		resolved, err := fc.resolver.Resolve(ctx, item.WebURL, maxImagesPerListing)
		if err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			fc.log.Warn("[crawler] Browser fallback failed for %s: %v", item.ItemID, err)
		}
		urls, source = resolved, "browser"
	}
	if len(urls) == 0 {
		fc.stats.ListingsFailed++
	}

	stored, deferred := 0, 0
	for _, u := range urls {
		if fc.tracker.Met() {
			break
		}
		outcome, err := fc.storeImage(ctx, item, u, source)
		if err != nil {
			return err
		}
		switch outcome {
		case imageStored:
			stored++
		case imageDeferred:
			deferred++
		}
	}
	if stored == 0 && deferred > 0 {
		fc.stats.ListingsFailed++
		fc.log.Info("[crawler] Leaving %s unledgered: image host kept failing", item.ItemID)
		return nil
	}

	if err := fc.store.MarkListingProcessed(ctx, &models.ProcessedListing{
		ListingID:    item.ItemID,
		FamilyID:     fc.family.ID,
		ImagesStored: stored,
	}); err != nil {
		return err
	}
	fc.dedup.RememberListing(item.ItemID)
	return nil
}

type imageOutcome int

const (
	imageSkipped imageOutcome = iota
	imageStored
	// imageDeferred means the download kept failing transiently.
	imageDeferred
)

// storeImage downloads, validates and persists one image. Per-image failures
// and duplicates are outcomes, not errors.
func (fc *familyCrawl) storeImage(ctx context.Context, item *models.SearchItem, url, source string) (imageOutcome, error) {
	data, err := fc.fetchImage(ctx, url)
	if err != nil {
		if ctx.Err() != nil {
			return imageSkipped, ctx.Err()
		}
		fc.stats.ImagesFailed++
		fc.log.Debug("[crawler] Download failed %s: %v", url, err)
		if marketplace.IsTransient(err) {
			return imageDeferred, nil
		}
		return imageSkipped, nil
	}

	img, err := ValidateImage(data, fc.opts.MinImageDimension)
	if err != nil {
		fc.stats.ImagesFailed++
		fc.log.Debug("[crawler] Rejected %s: %v", url, err)
		return imageSkipped, nil
	}

	dup, err := fc.dedup.SeenHash(ctx, img.Hash)
	if err != nil {
		return imageSkipped, err
	}
	if dup {
		fc.stats.ImagesDuplicate++
		return imageSkipped, nil
	}

	path, err := fc.blobs.Put(img.Hash, img.Format, img.Data)
	if err != nil {
		return imageSkipped, fmt.Errorf("store image file: %w", err)
	}

	rec := &models.ReferenceImage{
		FamilyID:    fc.family.ID,
		ContentHash: img.Hash,
		StoragePath: path,
		OriginURL:   url,
		ListingID:   item.ItemID,
		Width:       img.Width,
		Height:      img.Height,
		Format:      img.Format,
		ByteSize:    int64(len(img.Data)),
		Source:      source,
	}
	if err := fc.store.InsertImage(ctx, rec); err != nil {
		if errors.Is(err, storage.ErrDuplicateHash) {
			fc.dedup.RememberHash(img.Hash)
			fc.stats.ImagesDuplicate++
			return imageSkipped, nil
		}
		return imageSkipped, err
	}
	fc.dedup.RememberHash(img.Hash)
	fc.stats.ImagesStored++

	fc.embed(ctx, rec, img.Data)

	crossed, err := fc.tracker.Record(ctx)
	if err != nil {
		return imageStored, err
	}
	if crossed {
		fc.log.Info("[crawler] %s is now %s (%d/%d)", fc.family.Key(), fc.tracker.Status(), fc.tracker.Count(), fc.family.Quota)
	}
	return imageStored, nil
}

// fetchImage downloads url, retrying transient failures with the fixed backoff.
func (fc *familyCrawl) fetchImage(ctx context.Context, url string) ([]byte, error) {
	var data []byte
	err := fc.downloadRetry.Do(ctx, "download "+url, func(ctx context.Context) error {
		if err := fc.imagePacer.Wait(ctx); err != nil {
			return err
		}
		b, err := fc.download.Download(ctx, url)
		if err != nil {
			if marketplace.IsTransient(err) {
				fc.stats.TransientErrors++
			}
			return err
		}
		data = b
		return nil
	})
	return data, err
}

// embed attaches a vector to a freshly stored image. Failures leave the image
// without a vector for a later backfill.
func (fc *familyCrawl) embed(ctx context.Context, rec *models.ReferenceImage, data []byte) {
	if fc.embedder == nil {
		return
	}
	emb, err := fc.embedder.Generate(ctx, data)
	if err == nil {
		err = fc.store.SetEmbedding(ctx, rec.ID, emb.Vector)
	}
	if err != nil {
		fc.stats.EmbeddingFailures++
		fc.log.Warn("[crawler] Embedding failed for %s: %v", shortHash(rec.ContentHash), err)
		return
	}
	rec.Embedding = emb.Vector
}

func shortHash(h string) string {
	if len(h) > 12 {
		return h[:12]
	}
	return h
}
