package testutil

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"sync"

	"photo-ingest/internal/hashing"
	"photo-ingest/internal/ingest"
)

// SHA256Hex returns the SHA-256 checksum of data as a lowercase hex string.
func SHA256Hex(data []byte) string {
	h := sha256.Sum256(data)
	return hex.EncodeToString(h[:])
}

// CountingHasher wraps a real hasher and records every call per path.
// Safe for concurrent use.
type CountingHasher struct {
	inner ingest.Hasher

	mu         sync.Mutex
	exact      map[string]int
	perceptual map[string]int
	// FailExact makes ExactHash fail for the listed paths.
	FailExact map[string]error
}

func NewCountingHasher() *CountingHasher {
	return &CountingHasher{
		inner:      hashing.NewCalculator(),
		exact:      make(map[string]int),
		perceptual: make(map[string]int),
		FailExact:  make(map[string]error),
	}
}

func (h *CountingHasher) ExactHash(ctx context.Context, path string) (string, error) {
	h.mu.Lock()
	h.exact[path]++
	failure := h.FailExact[path]
	h.mu.Unlock()
	if failure != nil {
		return "", &ingest.HashComputationError{Path: path, Err: failure}
	}
	return h.inner.ExactHash(ctx, path)
}

func (h *CountingHasher) PerceptualHash(ctx context.Context, path string) (string, bool, error) {
	h.mu.Lock()
	h.perceptual[path]++
	h.mu.Unlock()
	return h.inner.PerceptualHash(ctx, path)
}

func (h *CountingHasher) Distance(a, b string) (int, error) {
	return h.inner.Distance(a, b)
}

// ExactCalls returns how often ExactHash was called for path.
func (h *CountingHasher) ExactCalls(path string) int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.exact[path]
}

// TotalExactCalls returns the number of ExactHash calls across all paths.
func (h *CountingHasher) TotalExactCalls() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	total := 0
	for _, n := range h.exact {
		total += n
	}
	return total
}

// PerceptualCalls returns how often PerceptualHash was called for path.
func (h *CountingHasher) PerceptualCalls(path string) int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.perceptual[path]
}
