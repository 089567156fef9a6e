package utils

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"golang.org/x/time/rate"
)

// Pacer enforces a fixed minimum interval between successive calls to Wait.
type Pacer struct {
	limiter *rate.Limiter
}

// NewPacer creates a Pacer. A non-positive interval disables pacing.
func NewPacer(interval time.Duration) *Pacer {
	if interval <= 0 {
		return &Pacer{limiter: rate.NewLimiter(rate.Inf, 1)}
	}
	return &Pacer{limiter: rate.NewLimiter(rate.Every(interval), 1)}
}

// Wait blocks until the next call is allowed or ctx is done.
func (p *Pacer) Wait(ctx context.Context) error {
	return p.limiter.Wait(ctx)
}

// KeySet remembers which listing IDs or content hashes a crawl pass has
// already handled. The zero value is ready to use.
type KeySet struct {
	keys sync.Map
	n    atomic.Int64
}

func NewKeySet() *KeySet {
	return &KeySet{}
}

// Mark records key and reports whether this call was the first to do so.
func (s *KeySet) Mark(key string) bool {
	if _, loaded := s.keys.LoadOrStore(key, struct{}{}); loaded {
		return false
	}
	s.n.Add(1)
	return true
}

// Has reports whether key was marked.
func (s *KeySet) Has(key string) bool {
	_, ok := s.keys.Load(key)
	return ok
}

func (s *KeySet) Len() int {
	return int(s.n.Load())
}
