package metadata

import (
	"context"
	"fmt"
	"strings"

	"photo-ingest/internal/ingest"
)

// Chain tries providers in rank order and returns the first success.
type Chain struct {
	providers []ingest.MetadataProvider
}

// NewChain keeps only the providers that are available now, so the
// fallback order is fixed for the lifetime of the chain.
func NewChain(providers ...ingest.MetadataProvider) *Chain {
	c := &Chain{}
	for _, p := range providers {
		if p != nil && p.Available() {
			c.providers = append(c.providers, p)
		}
	}
	return c
}

func (c *Chain) Name() string {
	names := make([]string, len(c.providers))
	for i, p := range c.providers {
		names[i] = p.Name()
	}
	return strings.Join(names, ",")
}

func (c *Chain) Available() bool { return len(c.providers) > 0 }

func (c *Chain) Extract(ctx context.Context, path string) (ingest.Metadata, error) {
	if len(c.providers) == 0 {
		return nil, &ingest.ExtractionError{Path: path, Provider: "chain", Err: fmt.Errorf("no metadata provider available")}
	}
	var lastErr error
	for _, p := range c.providers {
		md, err := p.Extract(ctx, path)
		if err == nil {
			return md, nil
		}
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		lastErr = err
	}
	return nil, lastErr
}
