package marketplace

import (
	"context"
	"fmt"
	"net/url"
	"os"
	"os/exec"
	"path"
	"strings"
	"sync"
	"time"

	"github.com/PuerkitoBio/goquery"
	"github.com/chromedp/chromedp"

	"resale-pipeline/utils"
)

// BrowserResolver renders a listing page in headless Chrome and extracts image
// URLs from it. Used only when the search API returned an item without images.
type BrowserResolver struct {
	chromeBin string
	timeout   time.Duration
	settle    time.Duration
	logger    *utils.Logger

	mu          sync.Mutex
	allocCtx    context.Context
	cancelAlloc context.CancelFunc
}

// NewBrowserResolver creates a resolver. The browser starts lazily on first use.
func NewBrowserResolver(chromeBin string, timeout time.Duration, logger *utils.Logger) *BrowserResolver {
	if chromeBin == "" {
		chromeBin = findChromeBinary()
	}
	if timeout <= 0 {
		timeout = 60 * time.Second
	}
	return &BrowserResolver{
		chromeBin: chromeBin,
		timeout:   timeout,
		settle:    3 * time.Second,
		logger:    logger,
	}
}

// Resolve loads pageURL and returns up to limit image URLs.
func (b *BrowserResolver) Resolve(ctx context.Context, pageURL string, limit int) ([]string, error) {
	allocCtx := b.allocator()

	tabCtx, cancelTab := chromedp.NewContext(allocCtx, chromedp.WithLogf(func(string, ...interface{}) {}))
	defer cancelTab()

	tabCtx, cancelTimeout := context.WithTimeout(tabCtx, b.timeout)
	defer cancelTimeout()

	// Propagate the caller's cancellation into the browser tab.
	stop := context.AfterFunc(ctx, cancelTab)
	defer stop()

	var html string
	err := chromedp.Run(tabCtx,
		chromedp.Navigate(pageURL),
		chromedp.Sleep(b.settle),
		chromedp.OuterHTML("html", &html, chromedp.ByQuery),
	)
	if err != nil {
		return nil, fmt.Errorf("chromedp render %s: %w", pageURL, err)
	}

	urls, err := ExtractImageURLs(html, pageURL, limit)
	if err != nil {
		return nil, err
	}
	b.logger.Debug("[browser] %s yielded %d image URLs", pageURL, len(urls))
	return urls, nil
}

// Close shuts the browser down if it was started.
func (b *BrowserResolver) Close() {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.cancelAlloc != nil {
		b.cancelAlloc()
		b.cancelAlloc = nil
		b.allocCtx = nil
	}
}

func (b *BrowserResolver) allocator() context.Context {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.allocCtx != nil {
		return b.allocCtx
	}

	opts := append(chromedp.DefaultExecAllocatorOptions[:],
		chromedp.Flag("headless", true),
		chromedp.Flag("disable-gpu", true),
		chromedp.Flag("no-sandbox", true),
		chromedp.Flag("disable-dev-shm-usage", true),
		chromedp.UserAgent("Mozilla/5.0 (X11; Linux x86_64) AppleWebKit/537.36 "+
			"(KHTML, like Gecko) Chrome/120.0.0.0 Safari/537.36"),
	)
	if b.chromeBin != "" {
		opts = append(opts, chromedp.ExecPath(b.chromeBin))
	}
	b.logger.Info("[browser] Using browser binary: %s", b.chromeBin)

	b.allocCtx, b.cancelAlloc = chromedp.NewExecAllocator(context.Background(), opts...)
	return b.allocCtx
}

// ExtractImageURLs pulls og:image and <img> sources out of a rendered page,
// resolving relative URLs and skipping icons, sprites and inline data.
func ExtractImageURLs(html, pageURL string, limit int) ([]string, error) {
	base, err := url.Parse(pageURL)
	if err != nil {
		return nil, fmt.Errorf("browser: invalid page URL: %w", err)
	}
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(html))
	if err != nil {
		return nil, fmt.Errorf("browser: parse html: %w", err)
	}

	var out []string
	seen := make(map[string]struct{})
	add := func(raw string) {
		if limit > 0 && len(out) >= limit {
			return
		}
		raw = strings.TrimSpace(raw)
		if raw == "" || strings.HasPrefix(raw, "data:") {
			return
		}
		ref, err := url.Parse(raw)
		if err != nil {
			return
		}
		abs := base.ResolveReference(ref)
		if abs.Scheme != "http" && abs.Scheme != "https" {
			return
		}
		if skipImage(abs) {
			return
		}
		s := abs.String()
		if _, dup := seen[s]; dup {
			return
		}
		seen[s] = struct{}{}
		out = append(out, s)
	}

	doc.Find(`meta[property="og:image"]`).Each(func(_ int, sel *goquery.Selection) {
		add(sel.AttrOr("content", ""))
	})
	doc.Find("img").Each(func(_ int, sel *goquery.Selection) {
		src := sel.AttrOr("data-src", "")
		if src == "" {
			src = sel.AttrOr("src", "")
		}
		add(src)
	})
	return out, nil
}

func skipImage(u *url.URL) bool {
	p := strings.ToLower(u.Path)
	if path.Ext(p) == ".svg" || path.Ext(p) == ".ico" {
		return true
	}
	for _, marker := range []string{"sprite", "icon", "logo", "avatar", "pixel"} {
		if strings.Contains(p, marker) {
			return true
		}
	}
	return false
}

// findChromeBinary locates Chrome/Chromium binary.
func findChromeBinary() string {
	if bin := os.Getenv("CHROME_BIN"); bin != "" {
		return bin
	}

	names := []string{"google-chrome-stable", "google-chrome", "chromium", "chromium-browser"}
	for _, name := range names {
		if p, err := exec.LookPath(name); err == nil {
			return p
		}
	}

	paths := []string{
		"/usr/bin/google-chrome-stable",
		"/usr/bin/google-chrome",
		"/usr/bin/chromium-browser",
		"/usr/bin/chromium",
		"/snap/bin/chromium",
	}
	for _, p := range paths {
		if _, err := os.Stat(p); err == nil {
			return p
		}
	}

	return ""
}
