package marketplace

import (
	"bytes"
	"context"
	"fmt"
	"hash/fnv"
	"image"
	"image/color"
	"image/png"
	"strings"
	"time"

	"resale-pipeline/models"
)

const mockScheme = "mock://"

// MockAdapter produces synthetic listings and images for dry runs.
// It is deterministic for a given seed and makes no network calls.
type MockAdapter struct {
	seed        uint64
	pagesPerQry int
	imageSize   int
}

// MockAdapterOptions configures MockAdapter.
type MockAdapterOptions struct {
	Seed          int64
	PagesPerQuery int
	ImageSize     int
}

// NewMockAdapter creates a MockAdapter with sensible defaults.
func NewMockAdapter(opts MockAdapterOptions) *MockAdapter {
	m := &MockAdapter{seed: uint64(opts.Seed), pagesPerQry: opts.PagesPerQuery, imageSize: opts.ImageSize}
	if m.seed == 0 {
		m.seed = uint64(time.Now().UnixNano())
	}
	if m.pagesPerQry <= 0 {
		m.pagesPerQry = 3
	}
	if m.imageSize <= 0 {
		m.imageSize = 256
	}
	return m
}

// Search returns synthetic items whose titles echo the query so they pass label checks.
// Every fourth listing reuses the previous listing's primary image to exercise hash dedup.
func (m *MockAdapter) Search(ctx context.Context, req SearchRequest) (*SearchPage, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	limit := req.Limit
	if limit <= 0 {
		limit = 20
	}
	total := limit * m.pagesPerQry
	if req.Offset >= total {
		return &SearchPage{Total: total}, nil
	}

	title := mockTitle(req.Query)
	items := make([]models.SearchItem, 0, limit)
	for i := req.Offset; i < req.Offset+limit && i < total; i++ {
		id := fmt.Sprintf("%x-%d", m.hash(req.Query), i)
		primary := mockScheme + id + "/0"
		if i%4 == 3 {
			primary = mockScheme + fmt.Sprintf("%x-%d", m.hash(req.Query), i-1) + "/0"
		}
		items = append(items, models.SearchItem{
			ItemID:              id,
			Title:               fmt.Sprintf("%s #%d", title, i+1),
			Condition:           "Pre-owned",
			ImageURL:            primary,
			AdditionalImageURLs: []string{mockScheme + id + "/1"},
			Price:               float64(100 + int(m.hash(id)%400)),
			Currency:            "USD",
		})
	}
	return &SearchPage{
		Items:   items,
		Total:   total,
		HasMore: req.Offset+len(items) < total,
	}, nil
}

// Download renders a small solid-colour PNG derived from the URL.
func (m *MockAdapter) Download(ctx context.Context, imageURL string) ([]byte, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if !strings.HasPrefix(imageURL, mockScheme) {
		return nil, &StatusError{StatusCode: 404, URL: imageURL}
	}

	h := m.hash(imageURL)
	fill := color.RGBA{R: uint8(h), G: uint8(h >> 8), B: uint8(h >> 16), A: 255}
	img := image.NewRGBA(image.Rect(0, 0, m.imageSize, m.imageSize))
	for y := 0; y < m.imageSize; y++ {
		for x := 0; x < m.imageSize; x++ {
			img.Set(x, y, fill)
		}
	}
	// Stamp a seed-specific pixel so different seeds never collide.
	img.Set(0, 0, color.RGBA{R: uint8(h >> 24), G: uint8(h >> 32), B: uint8(h >> 40), A: 255})

	var buf bytes.Buffer
	if err := png.Encode(&buf, img); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

func (m *MockAdapter) hash(s string) uint64 {
	h := fnv.New64a()
	_, _ = h.Write([]byte(s))
	return h.Sum64() ^ m.seed
}

func mockTitle(query string) string {
	words := make([]string, 0, 6)
	for _, w := range strings.Fields(query) {
		if strings.HasPrefix(w, "-") {
			continue
		}
		words = append(words, strings.ToUpper(w[:1])+w[1:])
	}
	if len(words) == 0 {
		return "Listing"
	}
	return strings.Join(words, " ")
}
