package ingest

import (
	"context"
	"errors"
	"fmt"
	"os"
	"time"

	"golang.org/x/sync/errgroup"
)

// DefaultBatchSize is the number of records committed per transaction.
const DefaultBatchSize = 100

// ExecutorOptions configures placement concurrency and commit batching.
type ExecutorOptions struct {
	Workers   int
	BatchSize int
}

// Executor places planned files and commits their records.
type Executor struct {
	store   Store
	hasher  Hasher
	opts    ExecutorOptions
	logger  Logger
	clock   Clock
	metrics Metrics
}

func NewExecutor(store Store, hasher Hasher, opts ExecutorOptions, logger Logger, clock Clock, metrics Metrics) *Executor {
	if opts.Workers < 1 {
		opts.Workers = 1
	}
	if opts.BatchSize < 1 {
		opts.BatchSize = DefaultBatchSize
	}
	if metrics == nil {
		metrics = NopMetrics{}
	}
	return &Executor{store: store, hasher: hasher, opts: opts, logger: logger, clock: clock, metrics: metrics}
}

// Apply executes plan. With dryRun set nothing is written and every
// outcome stays Planned. Per-file failures are reported in the results;
// the returned error is non-nil only when ctx was cancelled.
func (e *Executor) Apply(ctx context.Context, plan *Plan, mode TransferMode, dryRun bool) (*OperationResults, error) {
	results := &OperationResults{Plan: plan, DryRun: dryRun, Mode: mode}
	results.Outcomes = make([]*FileOutcome, len(plan.Operations))
	for i, op := range plan.Operations {
		results.Outcomes[i] = &FileOutcome{
			Op:             op,
			State:          StatePlanned,
			Status:         op.Status,
			DuplicateOf:    op.DuplicateOf,
			DestPath:       op.DestPath,
			RawBackupPath:  op.RawBackupPath,
			ExactHash:      op.ExactHash,
			PerceptualHash: op.PerceptualHash,
		}
	}

	if dryRun {
		for _, out := range results.Outcomes {
			if !out.Op.HasPlacement() {
				out.State = StateSkipped
			}
		}
		e.tally(results)
		return results, nil
	}

	res := newReservations(plan.Operations)
	placedCh := make(chan *FileOutcome)

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(e.opts.Workers)
	go func() {
		defer close(placedCh)
		for i, out := range results.Outcomes {
			i, out := i, out
			if !out.Op.HasPlacement() {
				out.State = StateSkipped
				continue
			}
			if gctx.Err() != nil {
				break
			}
			g.Go(func() error {
				e.place(gctx, out, mode, res, i)
				placedCh <- out
				return nil
			})
		}
		_ = g.Wait()
	}()

	var batch []*FileOutcome
	for out := range placedCh {
		if out.State == StateFailed {
			continue
		}
		if out.Status == StatusDuplicate {
			// raw-only runs back duplicates up without recording them
			out.State = StateSkipped
			continue
		}
		batch = append(batch, out)
		if len(batch) >= e.opts.BatchSize && ctx.Err() == nil {
			e.commit(ctx, batch, mode)
			batch = nil
		}
	}

	if err := ctx.Err(); err != nil {
		for _, out := range results.Outcomes {
			if out.State != StateCommitted && out.State != StateSkipped && out.State != StateFailed {
				e.rollback(out)
				e.fail(out, fmt.Errorf("run cancelled before commit: %w", err), "cancel")
			}
		}
		e.tally(results)
		return results, err
	}
	if len(batch) > 0 {
		e.commit(ctx, batch, mode)
	}

	e.tally(results)
	return results, nil
}

func (e *Executor) place(ctx context.Context, out *FileOutcome, mode TransferMode, res *reservations, idx int) {
	op := out.Op
	if mode == ModeMove {
		out.State = StateMoving
	} else {
		out.State = StateCopying
	}

	expected := op.ExactHash
	if op.DestPath != "" {
		p, err := e.placeFile(ctx, op.Source, op.DestPath, expected, res, idx)
		if err != nil {
			e.fail(out, err, "place")
			return
		}
		out.DestPath, expected = p.path, p.hash
		e.track(out, p)
	}
	if op.RawBackupPath != "" {
		p, err := e.placeFile(ctx, op.Source, op.RawBackupPath, expected, res, idx)
		if err != nil {
			e.rollback(out)
			e.fail(out, err, "place")
			return
		}
		out.RawBackupPath, expected = p.path, p.hash
		e.track(out, p)
	}

	out.State = StateVerifying
	for _, path := range out.created {
		actual, err := e.hasher.ExactHash(ctx, path)
		if err == nil {
			e.metrics.HashComputed("exact")
			if actual != expected {
				err = &IntegrityVerificationError{Path: path, Expected: expected, Actual: actual}
			}
		}
		if err != nil {
			e.rollback(out)
			e.fail(out, err, "verify")
			return
		}
	}
	out.ExactHash = expected
	if out.PerceptualHash == "" && out.Status != StatusDuplicate {
		out.PerceptualHash = e.perceptualHash(ctx, op.Source.Path)
	}
	e.logger.Debug("file placed", "source", op.Source.Path, "dest", out.DestPath, "backup", out.RawBackupPath)
}

// perceptualHash fingerprints files that skipped the perceptual step during
// classification, typically because no record shared their size. Failures
// only cost future similarity matches.
func (e *Executor) perceptualHash(ctx context.Context, path string) string {
	phash, ok, err := e.hasher.PerceptualHash(ctx, path)
	if err != nil {
		e.logger.Debug("perceptual hash unavailable", "path", path, "error", err)
		return ""
	}
	if !ok {
		return ""
	}
	e.metrics.HashComputed("perceptual")
	return phash
}

func (e *Executor) track(out *FileOutcome, p *placed) {
	if p.created {
		out.created = append(out.created, p.path)
		e.metrics.BytesPlaced(p.size)
	}
}

// commit writes one batch. A store failure fails the whole batch; records
// whose hash already exists turn into duplicates and their copies are removed.
func (e *Executor) commit(ctx context.Context, batch []*FileOutcome, mode TransferMode) {
	now := e.clock.Now().UTC()
	recs := make([]*FileRecord, 0, len(batch))
	for _, out := range batch {
		recs = append(recs, e.record(out, now))
	}

	existing, err := e.store.CommitBatch(ctx, recs)
	if err != nil {
		var storeErr *StoreError
		if !errors.As(err, &storeErr) {
			err = &StoreError{Op: "commit batch", Err: err}
		}
		e.logger.Error("batch commit failed", "files", len(batch), "error", err)
		for _, out := range batch {
			e.rollback(out)
			e.fail(out, err, "commit")
		}
		return
	}

	skipped := make(map[*FileRecord]bool, len(existing))
	for _, rec := range existing {
		skipped[rec] = true
	}

	committed := 0
	for i, out := range batch {
		if skipped[recs[i]] {
			e.logger.Info("content already recorded, treating as duplicate", "source", out.Op.Source.Path, "hash", out.ExactHash)
			e.rollback(out)
			out.Status = StatusDuplicate
			out.DestPath, out.RawBackupPath = "", ""
			out.State = StateSkipped
			continue
		}
		out.State = StateCommitted
		committed++
		if mode == ModeMove {
			if err := os.Remove(out.Op.Source.Path); err != nil {
				e.logger.Warn("could not remove source after move", "source", out.Op.Source.Path, "error", err)
			}
		}
	}
	e.metrics.RecordsCommitted(committed)
}

func (e *Executor) record(out *FileOutcome, processed time.Time) *FileRecord {
	op := out.Op
	kind := KindOrganized
	switch {
	case out.DestPath != "" && out.RawBackupPath != "":
		kind = KindBoth
	case out.DestPath == "":
		kind = KindRawBackup
	}
	created := op.CaptureDate
	if created.IsZero() {
		created = op.Source.ModTime
	}
	return &FileRecord{
		SourcePath:     op.Source.Path,
		DestPath:       out.DestPath,
		RawBackupPath:  out.RawBackupPath,
		ExactHash:      out.ExactHash,
		PerceptualHash: out.PerceptualHash,
		Size:           op.Source.Size,
		ModTime:        op.Source.MTime(),
		CreatedAt:      created,
		ProcessedAt:    processed,
		CameraModel:    op.Metadata.CameraModel(),
		LensModel:      op.Metadata.LensModel(),
		DeviceCode:     op.DeviceCode,
		Operation:      kind,
		Status:         ProcessingCompleted,
	}
}

// rollback removes placements created for out. Adopted files are kept.
func (e *Executor) rollback(out *FileOutcome) {
	for _, path := range out.created {
		if err := os.Remove(path); err != nil && !os.IsNotExist(err) {
			e.logger.Warn("could not remove placed copy", "path", path, "error", err)
		}
	}
	out.created = nil
}

func (e *Executor) fail(out *FileOutcome, err error, stage string) {
	out.State = StateFailed
	out.Err = err
	e.metrics.FileFailed(stage)
	e.logger.Error("file failed", "source", out.Op.Source.Path, "stage", stage, "error", err)
}

func (e *Executor) tally(results *OperationResults) {
	for _, out := range results.Outcomes {
		switch {
		case out.State == StateFailed:
			results.Failed++
		case out.State == StateCommitted:
			results.Committed++
		case out.Status == StatusDuplicate:
			results.Duplicates++
		case out.State == StateSkipped:
			results.Skipped++
		}
		if out.State == StateCommitted || (results.DryRun && out.Op.HasPlacement()) {
			if out.DestPath != "" {
				results.BytesPlaced += out.Op.Source.Size
			}
			if out.RawBackupPath != "" {
				results.BytesPlaced += out.Op.Source.Size
			}
		}
	}
}
