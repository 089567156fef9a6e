// Package embedding produces fixed-length vectors for stored reference images
// by calling an external embedding service.
package embedding

import (
	"bytes"
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"
)

var (
	// ErrRateLimited is returned when the service answers 429.
	ErrRateLimited = errors.New("embedding: rate limited")
	// ErrDisabled is returned by a generator built without credentials.
	ErrDisabled = errors.New("embedding: generator disabled")
)

// Embedding is the vector produced for one image.
type Embedding struct {
	Vector      []float32
	ContentHash string
}

// Generator turns image bytes into an Embedding.
type Generator interface {
	Generate(ctx context.Context, data []byte) (*Embedding, error)
}

// Client calls the embedding service over HTTP.
type Client struct {
	endpoint string
	token    string
	http     *http.Client
}

// NewClient returns a Client. An empty endpoint or token yields a client whose
// Generate always fails with ErrDisabled.
func NewClient(endpoint, token string, timeout time.Duration) *Client {
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	return &Client{
		endpoint: strings.TrimSpace(endpoint),
		token:    strings.TrimSpace(token),
		http:     &http.Client{Timeout: timeout},
	}
}

// Enabled reports whether the client has credentials.
func (c *Client) Enabled() bool {
	return c.endpoint != "" && c.token != ""
}

type embedResponse struct {
	Embedding []float32 `json:"embedding"`
}

// Generate posts the raw image and decodes the returned vector.
func (c *Client) Generate(ctx context.Context, data []byte) (*Embedding, error) {
	if !c.Enabled() {
		return nil, ErrDisabled
	}
	if len(data) == 0 {
		return nil, errors.New("embedding: empty image")
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.endpoint, bytes.NewReader(data))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", "application/octet-stream")
	req.Header.Set("Accept", "application/json")
	req.Header.Set("Authorization", "Bearer "+c.token)

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, fmt.Errorf("embedding: request: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, 8<<20))
	if err != nil {
		return nil, fmt.Errorf("embedding: read body: %w", err)
	}
	if resp.StatusCode == http.StatusTooManyRequests {
		return nil, ErrRateLimited
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, fmt.Errorf("embedding: status %d", resp.StatusCode)
	}

	var out embedResponse
	if err := json.Unmarshal(body, &out); err != nil {
		return nil, fmt.Errorf("embedding: decode: %w", err)
	}
	if len(out.Embedding) == 0 {
		return nil, errors.New("embedding: empty vector")
	}

	sum := sha256.Sum256(data)
	return &Embedding{Vector: out.Embedding, ContentHash: hex.EncodeToString(sum[:])}, nil
}
