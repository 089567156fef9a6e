// Package marketplace contains the consumer side of the external listing API:
// the HTTP search client, image downloads, an offline mock adapter and a
// headless-browser fallback for listings that come back without image URLs.
package marketplace

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"resale-pipeline/models"
)

// SearchRequest describes one page of a marketplace search.
type SearchRequest struct {
	Query    string
	Category string
	Offset   int
	Limit    int
}

// SearchPage is one page of search results.
type SearchPage struct {
	Items   []models.SearchItem
	Total   int
	HasMore bool
}

// ClientOptions configures Client.
type ClientOptions struct {
	BaseURL       string
	Token         string
	UserAgent     string
	Timeout       time.Duration
	MaxImageBytes int64
}

// Client talks to the marketplace search API and downloads listing images.
type Client struct {
	baseURL       string
	token         string
	userAgent     string
	http          *http.Client
	maxImageBytes int64
}

// NewClient validates options and returns a ready Client.
func NewClient(opts ClientOptions) (*Client, error) {
	base := strings.TrimSpace(opts.BaseURL)
	if base == "" {
		return nil, errors.New("marketplace: base URL is required")
	}
	if _, err := url.Parse(base); err != nil {
		return nil, fmt.Errorf("marketplace: invalid base URL: %w", err)
	}
	if strings.TrimSpace(opts.Token) == "" {
		return nil, errors.New("marketplace: API token is required")
	}

	timeout := opts.Timeout
	if timeout <= 0 {
		timeout = 20 * time.Second
	}
	ua := strings.TrimSpace(opts.UserAgent)
	if ua == "" {
		ua = "resale-pipeline/1.0"
	}
	maxBytes := opts.MaxImageBytes
	if maxBytes <= 0 {
		maxBytes = 15 << 20
	}

	return &Client{
		baseURL:       strings.TrimRight(base, "/"),
		token:         opts.Token,
		userAgent:     ua,
		http:          &http.Client{Timeout: timeout},
		maxImageBytes: maxBytes,
	}, nil
}

type searchResponse struct {
	Items   []models.SearchItem `json:"items"`
	Total   int                 `json:"total"`
	HasMore *bool               `json:"has_more"`
}

// Search fetches one page of results. 429/503 responses come back as *StatusError
// so callers can back off instead of skipping.
func (c *Client) Search(ctx context.Context, req SearchRequest) (*SearchPage, error) {
	u, err := url.Parse(c.baseURL + "/search")
	if err != nil {
		return nil, err
	}
	q := u.Query()
	q.Set("q", strings.TrimSpace(req.Query))
	if req.Category != "" {
		q.Set("category_ids", req.Category)
	}
	q.Set("offset", strconv.Itoa(req.Offset))
	if req.Limit > 0 {
		q.Set("limit", strconv.Itoa(req.Limit))
	}
	u.RawQuery = q.Encode()

	body, err := c.get(ctx, u.String(), "application/json", 0)
	if err != nil {
		return nil, err
	}

	var resp searchResponse
	if err := json.Unmarshal(body, &resp); err != nil {
		return nil, fmt.Errorf("marketplace: search payload parse: %w", err)
	}

	page := &SearchPage{Items: normaliseItems(resp.Items), Total: resp.Total}
	if resp.HasMore != nil {
		page.HasMore = *resp.HasMore
	} else {
		page.HasMore = req.Offset+len(resp.Items) < resp.Total
	}
	return page, nil
}

// Download fetches raw image bytes, refusing bodies above the size cap.
func (c *Client) Download(ctx context.Context, imageURL string) ([]byte, error) {
	return c.get(ctx, imageURL, "image/*", c.maxImageBytes)
}

func (c *Client) get(ctx context.Context, u, accept string, limit int64) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u, nil)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Accept", accept)
	req.Header.Set("User-Agent", c.userAgent)
	if strings.HasPrefix(u, c.baseURL) {
		req.Header.Set("Authorization", "Bearer "+c.token)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, 64<<10))
		return nil, &StatusError{StatusCode: resp.StatusCode, URL: u}
	}

	var r io.Reader = resp.Body
	if limit > 0 {
		r = io.LimitReader(resp.Body, limit+1)
	}
	b, err := io.ReadAll(r)
	if err != nil {
		return nil, err
	}
	if limit > 0 && int64(len(b)) > limit {
		return nil, ErrTooLarge
	}
	return b, nil
}

func normaliseItems(in []models.SearchItem) []models.SearchItem {
	out := make([]models.SearchItem, 0, len(in))
	seen := make(map[string]struct{}, len(in))
	for _, it := range in {
		id := strings.TrimSpace(it.ItemID)
		if id == "" {
			continue
		}
		if _, ok := seen[id]; ok {
			continue
		}
		seen[id] = struct{}{}
		it.ItemID = id
		it.Title = strings.TrimSpace(it.Title)
		it.ImageURL = strings.TrimSpace(it.ImageURL)
		if len(it.AdditionalImageURLs) > 2 {
			it.AdditionalImageURLs = it.AdditionalImageURLs[:2]
		}
		out = append(out, it)
	}
	return out
}
