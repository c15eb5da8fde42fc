package ingest

import (
	"context"
	"errors"
	"fmt"

	"golang.org/x/sync/errgroup"
)

// ServiceConfig carries the validated settings the pipeline needs.
type ServiceConfig struct {
	ArchiveRoot           string
	BackupRoot            string
	BackupTimestampLayout string
	Workers               int
	BatchSize             int
	SimilarityThreshold   int
	SimilarPolicy         SimilarPolicy
	Devices               DeviceRules
}

// RunOptions selects what one ingest run does.
type RunOptions struct {
	Source    string
	Event     string
	Mode      TransferMode
	DryRun    bool
	Organized bool
	RawBackup bool
}

// RunReport is everything a run produced.
type RunReport struct {
	Run      *IngestRun
	Scan     *ScanResult
	Plan     *Plan
	Results  *OperationResults
	Failed   []*ClassifyResult
	Manifest []ManifestRow
}

// Service orchestrates scan, metadata, classification, planning and
// execution for one source at a time.
type Service struct {
	store    Store
	fsmgr    FilesystemManager
	provider MetadataProvider
	cfg      ServiceConfig
	dedup    *DeduplicationEngine
	planner  *OrganizationPlanner
	backup   *RawBackupPlanner
	executor *Executor
	logger   Logger
	clock    Clock
	idgen    IDGenerator
	metrics  Metrics
}

func NewService(store Store, fsmgr FilesystemManager, provider MetadataProvider, hasher Hasher, cfg ServiceConfig, logger Logger, clock Clock, idgen IDGenerator, metrics Metrics) *Service {
	if cfg.Workers < 1 {
		cfg.Workers = 1
	}
	if metrics == nil {
		metrics = NopMetrics{}
	}
	return &Service{
		store:    store,
		fsmgr:    fsmgr,
		provider: provider,
		cfg:      cfg,
		dedup: NewDeduplicationEngine(store, hasher, DedupOptions{
			SimilarityThreshold: cfg.SimilarityThreshold,
			Workers:             cfg.Workers,
		}, logger, metrics),
		planner: NewOrganizationPlanner(NewDeviceResolver(cfg.Devices), cfg.SimilarPolicy),
		backup:  NewRawBackupPlanner(fsmgr, cfg.BackupTimestampLayout),
		executor: NewExecutor(store, hasher, ExecutorOptions{
			Workers:   cfg.Workers,
			BatchSize: cfg.BatchSize,
		}, logger, clock, metrics),
		logger:  logger,
		clock:   clock,
		idgen:   idgen,
		metrics: metrics,
	}
}

// Ingest runs the whole pipeline for opts.Source. Per-file failures are
// reported in the manifest; an error is returned only when the run as a
// whole could not proceed.
func (s *Service) Ingest(ctx context.Context, opts RunOptions) (*RunReport, error) {
	if err := s.validate(opts); err != nil {
		return nil, err
	}

	run := &IngestRun{
		RunID:     s.idgen.New(),
		StartedAt: s.clock.Now().UTC(),
		Source:    opts.Source,
		Event:     opts.Event,
		Mode:      runMode(opts),
		Status:    "running",
	}
	report := &RunReport{Run: run}
	if !opts.DryRun {
		if err := s.store.CreateRun(ctx, run); err != nil {
			return nil, fmt.Errorf("recording run: %w", err)
		}
	}
	s.logger.Info("ingest started", "run", run.RunID, "source", opts.Source, "event", opts.Event, "mode", run.Mode, "dry_run", opts.DryRun)

	err := s.ingest(ctx, opts, report)
	run.FinishedAt = s.clock.Now().UTC()
	switch {
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		run.Status = "cancelled"
	case err != nil:
		run.Status = "failed"
	default:
		run.Status = "completed"
	}
	s.countRun(report)

	if !opts.DryRun {
		// the run row is written even when ctx is done
		if ferr := s.store.FinishRun(context.WithoutCancel(ctx), run); ferr != nil {
			s.logger.Error("recording run result failed", "run", run.RunID, "error", ferr)
		}
	}
	s.logger.Info("ingest finished", "run", run.RunID, "status", run.Status,
		"seen", run.FilesSeen, "committed", run.FilesCommitted, "duplicates", run.FilesDuplicate, "failed", run.FilesFailed)
	return report, err
}

func (s *Service) ingest(ctx context.Context, opts RunOptions, report *RunReport) error {
	scan, err := s.fsmgr.Scan(ctx, opts.Source)
	if err != nil {
		return fmt.Errorf("scanning %s: %w", opts.Source, err)
	}
	report.Scan = scan
	s.metrics.FileScanned(len(scan.Files))
	s.logger.Info("scan complete", "files", len(scan.Files), "dirs", len(scan.Dirs), "unchanged_dirs", scan.Unchanged)

	metadata, err := s.extractAll(ctx, scan.Files)
	if err != nil {
		return err
	}

	classified, err := s.dedup.ClassifyAll(ctx, scan.Files)
	if err != nil {
		return fmt.Errorf("classifying: %w", err)
	}

	inputs := make([]PlanInput, 0, len(classified))
	for i, r := range classified {
		if r.Err != nil {
			report.Failed = append(report.Failed, r)
			continue
		}
		inputs = append(inputs, PlanInput{File: r.File, Classification: r.Classification, Metadata: metadata[i]})
	}

	plan, err := s.plan(inputs, opts)
	if err != nil {
		return err
	}
	report.Plan = plan

	results, err := s.executor.Apply(ctx, plan, opts.Mode, opts.DryRun)
	report.Results = results
	report.Manifest = ManifestRows(results, report.Failed)
	if err != nil {
		return err
	}

	if !opts.DryRun {
		for _, d := range scan.Dirs {
			if err := s.store.PutDirScan(ctx, d); err != nil {
				s.logger.Warn("updating directory cache failed", "dir", d.Path, "error", err)
			}
		}
	}
	return nil
}

// Plan computes the plan for a run without executing it.
func (s *Service) plan(inputs []PlanInput, opts RunOptions) (*Plan, error) {
	archiveRoot := ""
	if opts.Organized {
		archiveRoot = s.cfg.ArchiveRoot
	}
	ops, err := s.planner.Plan(inputs, opts.Event, archiveRoot)
	if err != nil {
		return nil, err
	}
	plan := &Plan{Event: opts.Event, Source: opts.Source, Operations: ops}
	if !opts.RawBackup {
		return plan, nil
	}

	rawOnly := !opts.Organized
	var toBackup []ScannedFile
	for _, op := range ops {
		if rawOnly || op.DestPath != "" {
			toBackup = append(toBackup, op.Source)
		}
	}
	if len(toBackup) == 0 {
		return plan, nil
	}

	planFn := s.backup.Plan
	if opts.DryRun {
		planFn = s.backup.Preview
	}
	backup, err := planFn(toBackup, opts.Source, s.cfg.BackupRoot, s.clock.Now())
	if err != nil {
		return nil, err
	}
	plan.BackupDir = backup.Dir
	for _, op := range ops {
		target, ok := backup.Target(op.Source.Path)
		if !ok {
			continue
		}
		op.RawBackupPath = target
		if op.DestPath != "" {
			op.Kind = KindBoth
		} else {
			op.Kind = KindRawBackup
		}
	}
	return plan, nil
}

// extractAll returns metadata aligned with files. Files from unchanged
// directories are served from the metadata cache when possible. Extraction
// failures yield empty metadata.
func (s *Service) extractAll(ctx context.Context, files []ScannedFile) ([]Metadata, error) {
	out := make([]Metadata, len(files))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(s.cfg.Workers)
	for i, f := range files {
		i, f := i, f
		g.Go(func() error {
			if f.Cached {
				md, err := s.store.GetMetadata(gctx, f.Path, f.MTime())
				if err == nil && md != nil {
					out[i] = md
					return nil
				}
			}
			md, err := s.provider.Extract(gctx, f.Path)
			if err != nil {
				if gctx.Err() != nil {
					return gctx.Err()
				}
				s.logger.Warn("metadata extraction failed, using file dates", "path", f.Path, "error", err)
				s.metrics.FileFailed("metadata")
				md = Metadata{}
			}
			out[i] = md
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, fmt.Errorf("extracting metadata: %w", err)
	}
	return out, nil
}

func (s *Service) validate(opts RunOptions) error {
	if opts.Source == "" {
		return fmt.Errorf("no source directory given")
	}
	if !opts.Organized && !opts.RawBackup {
		return fmt.Errorf("nothing to do: organized output and raw backup are both disabled")
	}
	if opts.Organized && s.cfg.ArchiveRoot == "" {
		return fmt.Errorf("organized output requested but no archive root is configured")
	}
	if opts.RawBackup && s.cfg.BackupRoot == "" {
		return fmt.Errorf("raw backup requested but no backup root is configured")
	}
	return nil
}

func (s *Service) countRun(report *RunReport) {
	run := report.Run
	if report.Scan != nil {
		run.FilesSeen = len(report.Scan.Files)
	}
	run.FilesFailed = len(report.Failed)
	if r := report.Results; r != nil {
		run.FilesCommitted = r.Committed
		run.FilesDuplicate = r.Duplicates
		run.FilesFailed += r.Failed
	}
}

func runMode(opts RunOptions) string {
	switch {
	case opts.Organized && opts.RawBackup:
		return string(KindBoth) + "/" + opts.Mode.String()
	case opts.RawBackup:
		return string(KindRawBackup) + "/" + opts.Mode.String()
	}
	return string(KindOrganized) + "/" + opts.Mode.String()
}

// Stats returns a summary of the store.
func (s *Service) Stats(ctx context.Context) (*StoreStats, error) {
	stats, err := s.store.Stats(ctx)
	if err != nil {
		return nil, fmt.Errorf("reading store statistics: %w", err)
	}
	return stats, nil
}

// History returns the most recent runs, newest first.
func (s *Service) History(ctx context.Context, limit int) ([]*IngestRun, error) {
	runs, err := s.store.ListRuns(ctx, limit)
	if err != nil {
		return nil, fmt.Errorf("listing runs: %w", err)
	}
	return runs, nil
}

// PruneCache removes superseded metadata cache entries older than days.
func (s *Service) PruneCache(ctx context.Context, days int) (int64, error) {
	if days < 0 {
		return 0, fmt.Errorf("days must not be negative, got %d", days)
	}
	cutoff := s.clock.Now().UTC().AddDate(0, 0, -days)
	n, err := s.store.PruneMetadataCache(ctx, cutoff)
	if err != nil {
		return 0, fmt.Errorf("pruning metadata cache: %w", err)
	}
	s.logger.Info("metadata cache pruned", "removed", n, "cutoff", cutoff)
	return n, nil
}
