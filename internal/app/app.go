package app

import (
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"photo-ingest/internal/config"
	"photo-ingest/internal/database"
	"photo-ingest/internal/fs"
	"photo-ingest/internal/hashing"
	"photo-ingest/internal/ingest"
	"photo-ingest/internal/metadata"
	"photo-ingest/internal/metrics"
)

// ManifestDirName is created under the archive (or backup) root to hold
// saved run manifests.
const ManifestDirName = "_manifests"

// IngestApp is the application layer between the CLI and ingest.Service.
// It constructs all dependencies from config, exposes high-level operations
// that accept raw string paths, and owns the store and log file until Close.
type IngestApp struct {
	cfg       *config.Config
	store     *database.SQLiteStore
	scanner   *fs.Scanner
	hasher    *hashing.Calculator
	metrics   *metrics.Prometheus
	logger    ingest.Logger
	logCloser io.Closer
	clock     ingest.Clock
	idgen     ingest.IDGenerator
	sessionID string
}

// RunRequest is one `ingest run` invocation.
type RunRequest struct {
	Source        string
	Event         string
	Move          bool
	DryRun        bool
	RawOnly       bool
	OrganizedOnly bool
}

// NewIngestApp creates a fully wired IngestApp from the given config.
// Log lines are mirrored to console when it is non-nil.
// The caller must call Close when done.
func NewIngestApp(cfg *config.Config, console io.Writer) (*IngestApp, error) {
	store, err := database.NewStoreFromConfig(cfg.Database)
	if err != nil {
		return nil, fmt.Errorf("opening store: %w", err)
	}
	if err := store.CheckMigrations(); err != nil {
		store.Close()
		return nil, fmt.Errorf("database schema out of date: %w", err)
	}

	idgen := ingest.UUIDGenerator{}
	sessionID := idgen.New()
	logger, logCloser, err := newLogger(cfg.LogDir, sessionID, cfg.Logging, console)
	if err != nil {
		store.Close()
		return nil, fmt.Errorf("creating logger: %w", err)
	}
	adapter := &slogAdapter{l: logger}
	clock := ingest.RealClock{}

	scanner := fs.NewScanner(store, fs.ScannerOptions{
		Raw:    cfg.FileTypes.Raw,
		JPEG:   cfg.FileTypes.JPEG,
		Video:  cfg.FileTypes.Video,
		Ignore: cfg.Filesystem.Ignore,
	}, adapter, clock)

	return &IngestApp{
		cfg:       cfg,
		store:     store,
		scanner:   scanner,
		hasher:    hashing.NewCalculator(),
		metrics:   metrics.NewPrometheus(),
		logger:    adapter,
		logCloser: logCloser,
		clock:     clock,
		idgen:     idgen,
		sessionID: sessionID,
	}, nil
}

// SessionID tags every log line written by this process. Each run
// additionally gets its own id in the run history.
func (a *IngestApp) SessionID() string { return a.sessionID }

func (a *IngestApp) newService(provider ingest.MetadataProvider) *ingest.Service {
	return ingest.NewService(a.store, a.scanner, provider, a.hasher, serviceConfig(a.cfg),
		a.logger, a.clock, a.idgen, a.metrics)
}

func serviceConfig(cfg *config.Config) ingest.ServiceConfig {
	rules := ingest.DeviceRules{Mappings: cfg.Devices.Mappings}
	for _, id := range cfg.Devices.Identifiers {
		rules.Identifiers = append(rules.Identifiers, ingest.DeviceIdentifier{Code: id.Code, Fields: id.Fields})
	}
	return ingest.ServiceConfig{
		ArchiveRoot:           cfg.ArchiveRoot,
		BackupRoot:            cfg.RawBackup.BackupRoot,
		BackupTimestampLayout: cfg.RawBackup.TimestampFormat,
		Workers:               cfg.Performance.ParallelWorkers,
		BatchSize:             cfg.Performance.BatchSize,
		SimilarityThreshold:   cfg.Duplicates.SimilarityThreshold,
		SimilarPolicy:         ingest.SimilarPolicy(cfg.Duplicates.SimilarPolicy),
		Devices:               rules,
	}
}

// runOptions turns CLI flags into pipeline options. Raw backup runs when
// enabled in config or requested with --raw-only.
func (a *IngestApp) runOptions(req RunRequest) (ingest.RunOptions, error) {
	if req.RawOnly && req.OrganizedOnly {
		return ingest.RunOptions{}, fmt.Errorf("--raw-only and --organized-only are mutually exclusive")
	}
	source, err := filepath.Abs(req.Source)
	if err != nil {
		return ingest.RunOptions{}, fmt.Errorf("resolving source: %w", err)
	}
	mode := ingest.ModeCopy
	if req.Move {
		mode = ingest.ModeMove
	}
	return ingest.RunOptions{
		Source:    source,
		Event:     req.Event,
		Mode:      mode,
		DryRun:    req.DryRun,
		Organized: !req.RawOnly,
		RawBackup: req.RawOnly || (a.cfg.RawBackup.Enabled && !req.OrganizedOnly),
	}, nil
}

// Run ingests one source directory. The report is returned even when the
// run fails part way so the caller can still write a manifest.
func (a *IngestApp) Run(ctx context.Context, req RunRequest) (*ingest.RunReport, error) {
	opts, err := a.runOptions(req)
	if err != nil {
		return nil, err
	}

	chain := metadata.NewChain(metadata.NewExifProvider(), metadata.NewFilesystemProvider())
	provider, err := metadata.NewCachingProvider(chain, a.store, a.cfg.Performance.MetadataCacheSize, opts.DryRun, a.logger)
	if err != nil {
		return nil, fmt.Errorf("creating metadata cache: %w", err)
	}

	report, err := a.newService(provider).Ingest(ctx, opts)
	if report != nil {
		a.metrics.RunFinished(report.Run.Status, report.Run.StartedAt, report.Run.FinishedAt)
	}
	a.writeMetrics()
	return report, err
}

func (a *IngestApp) writeMetrics() {
	path := a.cfg.Metrics.TextfilePath
	if path == "" {
		return
	}
	if err := a.metrics.WriteTextfile(path); err != nil {
		a.logger.Warn("metrics not written", "path", path, "error", err)
	}
}

// WriteManifest writes the report's manifest as CSV to w.
func (a *IngestApp) WriteManifest(w io.Writer, report *ingest.RunReport) error {
	return ingest.NewManifestWriter(w).Write(report.Manifest)
}

// SaveManifest writes the manifest next to the archive and returns its path.
func (a *IngestApp) SaveManifest(report *ingest.RunReport) (string, error) {
	root := a.cfg.ArchiveRoot
	if root == "" {
		root = a.cfg.RawBackup.BackupRoot
	}
	if root == "" {
		return "", fmt.Errorf("no archive or backup root to save the manifest under")
	}
	dir := filepath.Join(root, ManifestDirName)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return "", fmt.Errorf("creating manifest directory: %w", err)
	}

	name := report.Run.StartedAt.UTC().Format("20060102T150405Z")
	if short, _, _ := strings.Cut(report.Run.RunID, "-"); short != "" {
		name += "_" + short
	}
	path := filepath.Join(dir, name+".csv")

	f, err := os.Create(path)
	if err != nil {
		return "", fmt.Errorf("creating manifest: %w", err)
	}
	if err := a.WriteManifest(f, report); err != nil {
		f.Close()
		return "", err
	}
	if err := f.Close(); err != nil {
		return "", fmt.Errorf("closing manifest: %w", err)
	}
	return path, nil
}

// Stats returns a summary of the fingerprint store.
func (a *IngestApp) Stats(ctx context.Context) (*ingest.StoreStats, error) {
	return a.newService(metadata.NewFilesystemProvider()).Stats(ctx)
}

// History returns the most recent runs.
func (a *IngestApp) History(ctx context.Context, limit int) ([]*ingest.IngestRun, error) {
	return a.newService(metadata.NewFilesystemProvider()).History(ctx, limit)
}

// PruneCache removes superseded metadata cache entries older than days.
func (a *IngestApp) PruneCache(ctx context.Context, days int) (int64, error) {
	return a.newService(metadata.NewFilesystemProvider()).PruneCache(ctx, days)
}

// Close closes the store and the log file.
func (a *IngestApp) Close() error {
	var firstErr error
	if err := a.store.Close(); err != nil {
		firstErr = fmt.Errorf("closing store: %w", err)
	}
	if a.logCloser != nil {
		if err := a.logCloser.Close(); err != nil && firstErr == nil {
			firstErr = fmt.Errorf("closing log file: %w", err)
		}
	}
	return firstErr
}
