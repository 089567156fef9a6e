package scraper

import (
	"bytes"
	"context"
	"image"
	"image/color"
	"image/png"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"resale-pipeline/embedding"
	"resale-pipeline/marketplace"
	"resale-pipeline/models"
	"resale-pipeline/storage"
	"resale-pipeline/utils"
)

type fakeSearcher struct {
	mu    sync.Mutex
	pages map[string][]*marketplace.SearchPage
	errs  []error
	calls []marketplace.SearchRequest
}

func newFakeSearcher() *fakeSearcher {
	return &fakeSearcher{pages: make(map[string][]*marketplace.SearchPage)}
}

func (f *fakeSearcher) Search(_ context.Context, req marketplace.SearchRequest) (*marketplace.SearchPage, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	f.calls = append(f.calls, req)
	if len(f.errs) > 0 {
		err := f.errs[0]
		f.errs = f.errs[1:]
		if err != nil {
			return nil, err
		}
	}
	pages := f.pages[req.Query]
	idx := req.Offset / req.Limit
	if idx >= len(pages) {
		return &marketplace.SearchPage{}, nil
	}
	return pages[idx], nil
}

func (f *fakeSearcher) callCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.calls)
}

type fakeDownloader struct {
	files map[string][]byte
	// errs are returned, in order, before the file for a URL is served.
	errs  map[string][]error
	calls int
}

func (d *fakeDownloader) Download(_ context.Context, url string) ([]byte, error) {
	d.calls++
	if queued := d.errs[url]; len(queued) > 0 {
		d.errs[url] = queued[1:]
		return nil, queued[0]
	}
	b, ok := d.files[url]
	if !ok {
		return nil, &marketplace.StatusError{StatusCode: 404, URL: url}
	}
	return b, nil
}

type fakeEmbedder struct {
	err   error
	calls int
}

func (e *fakeEmbedder) Generate(_ context.Context, _ []byte) (*embedding.Embedding, error) {
	e.calls++
	if e.err != nil {
		return nil, e.err
	}
	return &embedding.Embedding{Vector: []float32{0.1, 0.2, 0.3}}, nil
}

type fakeResolver struct {
	urls []string
}

func (r *fakeResolver) Resolve(_ context.Context, _ string, limit int) ([]string, error) {
	if len(r.urls) > limit {
		return r.urls[:limit], nil
	}
	return r.urls, nil
}

type sleepRecorder struct {
	mu     sync.Mutex
	sleeps []time.Duration
}

func (s *sleepRecorder) sleep(ctx context.Context, d time.Duration) error {
	s.mu.Lock()
	s.sleeps = append(s.sleeps, d)
	s.mu.Unlock()
	return ctx.Err()
}

// pngBytes renders a w x h image. Different shades give different hashes.
func pngBytes(t *testing.T, w, h int, shade uint8) []byte {
	t.Helper()
	img := image.NewRGBA(image.Rect(0, 0, w, h))
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			img.Set(x, y, color.RGBA{R: shade, G: 255 - shade, B: 128, A: 255})
		}
	}
	var buf bytes.Buffer
	require.NoError(t, png.Encode(&buf, img))
	return buf.Bytes()
}

type harness struct {
	store    *storage.MemoryStore
	blobs    *storage.FileStore
	search   *fakeSearcher
	download *fakeDownloader
	sleeper  *sleepRecorder
	crawler  *Crawler
}

func newHarness(t *testing.T) *harness {
	t.Helper()
	blobs, err := storage.NewFileStore(t.TempDir())
	require.NoError(t, err)

	h := &harness{
		store:    storage.NewMemoryStore(),
		blobs:    blobs,
		search:   newFakeSearcher(),
		download: &fakeDownloader{files: make(map[string][]byte), errs: make(map[string][]error)},
		sleeper:  &sleepRecorder{},
	}
	h.crawler = New(h.store, h.blobs, h.search, h.download, Options{
		PageSize:          2,
		MaxPagesPerQuery:  10,
		MaxSearchAttempts: 3,
		RateLimitBackoff:  30 * time.Second,
		FamilyPause:       3 * time.Second,
		MinImageDimension: 10,
		StrictLabels:      true,
		Sleep:             h.sleeper.sleep,
	}, utils.NewNopLogger())
	return h
}

func prospex(quota, minRequired int) *models.Family {
	return &models.Family{
		Brand: "seiko", Family: "prospex", DisplayName: "Seiko Prospex",
		Quota: quota, MinRequired: minRequired, Queries: []string{"Seiko Prospex"},
	}
}

// item builds a listing whose primary image is served by the fake downloader.
func (h *harness) item(t *testing.T, id, title string, shade uint8) models.SearchItem {
	t.Helper()
	url := "https://img.example/" + id + ".png"
	h.download.files[url] = pngBytes(t, 32, 32, shade)
	return models.SearchItem{ItemID: id, Title: title, ImageURL: url}
}

func page(hasMore bool, items ...models.SearchItem) *marketplace.SearchPage {
	return &marketplace.SearchPage{Items: items, HasMore: hasMore}
}
