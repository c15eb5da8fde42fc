package ingest

import (
	"context"
	"time"
)

// MetadataCache persists extracted metadata keyed by (path, mtime).
type MetadataCache interface {
	// GetMetadata returns nil, nil on a miss.
	GetMetadata(ctx context.Context, path string, mtime int64) (Metadata, error)
	PutMetadata(ctx context.Context, path string, mtime int64, md Metadata) error
}

// DirScanCache persists the last observed state of scanned directories.
type DirScanCache interface {
	// GetDirScan returns nil, nil when the directory has never been scanned.
	GetDirScan(ctx context.Context, path string) (*DirScan, error)
	PutDirScan(ctx context.Context, scan DirScan) error
}

// Store is the persistent fingerprint index.
// All methods are safe for concurrent use.
type Store interface {
	MetadataCache
	DirScanCache

	// LookupByExactHash returns nil, nil when no record has the hash.
	LookupByExactHash(ctx context.Context, hash string) (*FileRecord, error)

	// LookupBySize returns every record with exactly the given size.
	LookupBySize(ctx context.Context, size int64) ([]*FileRecord, error)

	// LookupByPerceptualNeighbors returns records whose perceptual hash is
	// within maxDistance bits of hash, closest first.
	LookupByPerceptualNeighbors(ctx context.Context, hash string, maxDistance int) ([]*FileRecord, error)

	// FindUnchanged returns the record for a source path whose mtime and
	// size still match, or nil, nil.
	FindUnchanged(ctx context.Context, path string, mtime, size int64) (*FileRecord, error)

	// CommitRecord inserts a record unless its exact hash already exists.
	// It reports whether a row was written.
	CommitRecord(ctx context.Context, rec *FileRecord) (bool, error)

	// CommitBatch inserts all records in one transaction. Records whose
	// hash already exists, in the store or earlier in the batch, are
	// skipped and returned.
	CommitBatch(ctx context.Context, recs []*FileRecord) ([]*FileRecord, error)

	UpdateProcessingStatus(ctx context.Context, hash string, status ProcessingStatus) error

	Stats(ctx context.Context) (*StoreStats, error)

	// PruneMetadataCache removes cache entries created before the cutoff
	// that a newer entry for the same path supersedes.
	PruneMetadataCache(ctx context.Context, before time.Time) (int64, error)

	CreateRun(ctx context.Context, run *IngestRun) error
	FinishRun(ctx context.Context, run *IngestRun) error
	ListRuns(ctx context.Context, limit int) ([]*IngestRun, error)

	Close() error
}
