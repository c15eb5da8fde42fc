package ingest

import (
	"context"
	"fmt"
	"sort"

	"golang.org/x/sync/errgroup"
)

// DedupOptions configures the DeduplicationEngine.
type DedupOptions struct {
	// SimilarityThreshold is the maximum perceptual distance reported as
	// Similar. A negative value disables perceptual matching.
	SimilarityThreshold int
	Workers             int
}

// ClassifyResult pairs a classification with a per-file error.
type ClassifyResult struct {
	File           ScannedFile
	Classification *Classification
	Err            error
}

// DeduplicationEngine decides New / Duplicate / Similar for candidate files.
type DeduplicationEngine struct {
	store   Store
	hasher  Hasher
	opts    DedupOptions
	logger  Logger
	metrics Metrics
}

func NewDeduplicationEngine(store Store, hasher Hasher, opts DedupOptions, logger Logger, metrics Metrics) *DeduplicationEngine {
	if opts.Workers < 1 {
		opts.Workers = 1
	}
	if metrics == nil {
		metrics = NopMetrics{}
	}
	return &DeduplicationEngine{store: store, hasher: hasher, opts: opts, logger: logger, metrics: metrics}
}

// Classify checks f against the store in order: unchanged source, size
// pre-filter, exact hash, perceptual neighbours.
func (d *DeduplicationEngine) Classify(ctx context.Context, f ScannedFile) (*Classification, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	rec, err := d.store.FindUnchanged(ctx, f.Path, f.MTime(), f.Size)
	if err != nil {
		return nil, err
	}
	if rec != nil {
		return &Classification{
			Status:         StatusDuplicate,
			ExactHash:      rec.ExactHash,
			PerceptualHash: rec.PerceptualHash,
			DuplicateOf:    rec.SourcePath,
			Reason:         ReasonUnchanged,
		}, nil
	}

	sameSize, err := d.store.LookupBySize(ctx, f.Size)
	if err != nil {
		return nil, err
	}
	if len(sameSize) == 0 {
		return &Classification{Status: StatusNew, Reason: ReasonUniqueSize}, nil
	}

	hash, err := d.hasher.ExactHash(ctx, f.Path)
	if err != nil {
		return nil, err
	}
	d.metrics.HashComputed("exact")

	existing, err := d.store.LookupByExactHash(ctx, hash)
	if err != nil {
		return nil, err
	}
	if existing != nil {
		return &Classification{
			Status:         StatusDuplicate,
			ExactHash:      hash,
			PerceptualHash: existing.PerceptualHash,
			DuplicateOf:    existing.SourcePath,
			Reason:         ReasonExact,
		}, nil
	}

	c := &Classification{Status: StatusNew, ExactHash: hash, Reason: ReasonNoMatch}
	d.matchPerceptual(ctx, f, c)
	return c, nil
}

// matchPerceptual upgrades c to Similar when a neighbour exists. Failures
// leave c as New.
func (d *DeduplicationEngine) matchPerceptual(ctx context.Context, f ScannedFile, c *Classification) {
	if d.opts.SimilarityThreshold < 0 {
		return
	}
	phash, ok, err := d.hasher.PerceptualHash(ctx, f.Path)
	if err != nil || !ok {
		if err != nil {
			d.logger.Debug("perceptual hash unavailable", "path", f.Path, "error", err)
		}
		return
	}
	d.metrics.HashComputed("perceptual")
	c.PerceptualHash = phash

	neighbours, err := d.store.LookupByPerceptualNeighbors(ctx, phash, d.opts.SimilarityThreshold)
	if err != nil {
		d.logger.Warn("perceptual lookup failed", "path", f.Path, "error", err)
		return
	}
	if len(neighbours) == 0 {
		return
	}
	best := neighbours[0]
	dist, err := d.hasher.Distance(phash, best.PerceptualHash)
	if err != nil {
		d.logger.Warn("perceptual distance failed", "path", f.Path, "error", err)
		return
	}
	c.Status = StatusSimilar
	c.DuplicateOf = best.SourcePath
	c.Distance = dist
	c.Reason = ReasonPerceptual
}

// ClassifyAll classifies files concurrently and then resolves duplicates
// inside the batch: among New and Similar files with identical content the
// lexicographically smallest path wins. Results are in input order.
func (d *DeduplicationEngine) ClassifyAll(ctx context.Context, files []ScannedFile) ([]*ClassifyResult, error) {
	results := make([]*ClassifyResult, len(files))

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(d.opts.Workers)
	for i, f := range files {
		i, f := i, f
		g.Go(func() error {
			c, err := d.Classify(gctx, f)
			if err != nil && ctx.Err() == nil {
				d.logger.Error("classification failed", "path", f.Path, "error", err)
				d.metrics.FileFailed("classify")
			}
			results[i] = &ClassifyResult{File: f, Classification: c, Err: err}
			return nil
		})
	}
	_ = g.Wait()
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	if err := d.resolveInRun(ctx, results); err != nil {
		return nil, err
	}

	for _, r := range results {
		if r.Err == nil {
			d.metrics.FileClassified(r.Classification.Status)
		}
	}
	return results, nil
}

func (d *DeduplicationEngine) resolveInRun(ctx context.Context, results []*ClassifyResult) error {
	bySize := make(map[int64][]*ClassifyResult)
	for _, r := range results {
		if r.Err != nil || r.Classification.Status == StatusDuplicate {
			continue
		}
		bySize[r.File.Size] = append(bySize[r.File.Size], r)
	}

	sizes := make([]int64, 0, len(bySize))
	for size, group := range bySize {
		if len(group) > 1 {
			sizes = append(sizes, size)
		}
	}
	sort.Slice(sizes, func(i, j int) bool { return sizes[i] < sizes[j] })

	for _, size := range sizes {
		byHash := make(map[string][]*ClassifyResult)
		for _, r := range bySize[size] {
			if r.Classification.ExactHash == "" {
				hash, err := d.hasher.ExactHash(ctx, r.File.Path)
				if err != nil {
					if ctx.Err() != nil {
						return fmt.Errorf("resolving in-run duplicates: %w", ctx.Err())
					}
					d.logger.Error("hashing for in-run duplicate check failed", "path", r.File.Path, "error", err)
					d.metrics.FileFailed("classify")
					r.Classification, r.Err = nil, err
					continue
				}
				d.metrics.HashComputed("exact")
				r.Classification.ExactHash = hash
			}
			byHash[r.Classification.ExactHash] = append(byHash[r.Classification.ExactHash], r)
		}

		for _, group := range byHash {
			if len(group) < 2 {
				continue
			}
			sort.Slice(group, func(i, j int) bool { return group[i].File.Path < group[j].File.Path })
			winner := group[0]
			for _, r := range group[1:] {
				r.Classification = &Classification{
					Status:         StatusDuplicate,
					ExactHash:      r.Classification.ExactHash,
					PerceptualHash: r.Classification.PerceptualHash,
					DuplicateOf:    winner.File.Path,
					Reason:         ReasonInRun,
				}
			}
		}
	}
	return nil
}
