package database

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/mattn/go-sqlite3"

	"photo-ingest/internal/database/migrations"
	"photo-ingest/internal/database/sqlc"
	"photo-ingest/internal/hashing"
	"photo-ingest/internal/ingest"
)

// DriverName is the sqlite3 driver with the hamming() SQL function registered.
const DriverName = "sqlite3_ingest"

// timeLayout is how timestamps are stored. It sorts lexicographically.
const timeLayout = "2006-01-02T15:04:05Z"

func init() {
	sql.Register(DriverName, &sqlite3.SQLiteDriver{
		ConnectHook: func(conn *sqlite3.SQLiteConn) error {
			return conn.RegisterFunc("hamming", hamming, true)
		},
	})
}

// hamming returns the bit distance between two perceptual hashes, or -1
// when either value is NULL or malformed.
func hamming(a, b any) int64 {
	as, ok1 := a.(string)
	bs, ok2 := b.(string)
	if !ok1 || !ok2 {
		return -1
	}
	d, err := hashing.Distance(as, bs)
	if err != nil {
		return -1
	}
	return int64(d)
}

// SQLiteStore implements ingest.Store on SQLite.
type SQLiteStore struct {
	db      *sql.DB
	queries *sqlc.Queries
	path    string
}

// NewSQLiteStore opens the database at path and applies pending migrations.
// path can be a file path or ":memory:".
func NewSQLiteStore(path string) (*SQLiteStore, error) {
	db, err := OpenConnection(path)
	if err != nil {
		return nil, err
	}
	if err := migrations.MigrateUp(db); err != nil {
		db.Close()
		return nil, &ingest.StoreError{Op: "migrate", Err: err}
	}
	return &SQLiteStore{db: db, queries: sqlc.New(db), path: path}, nil
}

// NewSQLiteStoreFromDB wraps an existing, already migrated connection.
func NewSQLiteStoreFromDB(db *sql.DB) *SQLiteStore {
	return &SQLiteStore{db: db, queries: sqlc.New(db)}
}

// OpenConnection opens a configured SQLite connection. File databases use
// WAL with a busy timeout; ":memory:" is pinned to one connection so every
// query sees the same database.
func OpenConnection(path string) (*sql.DB, error) {
	dsn := path
	if path != ":memory:" {
		dsn = "file:" + path + "?_busy_timeout=5000&_journal_mode=WAL&_foreign_keys=on&_synchronous=NORMAL"
	}
	db, err := sql.Open(DriverName, dsn)
	if err != nil {
		return nil, &ingest.StoreError{Op: "open " + path, Err: err}
	}
	if path == ":memory:" {
		db.SetMaxOpenConns(1)
	}
	if err := db.Ping(); err != nil {
		db.Close()
		return nil, &ingest.StoreError{Op: "open " + path, Err: err}
	}
	return db, nil
}

// CheckMigrations reports whether the schema is at the latest version.
func (s *SQLiteStore) CheckMigrations() error {
	return migrations.CheckDBMigrationStatus(s.db)
}

func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

// File records

func (s *SQLiteStore) LookupByExactHash(ctx context.Context, hash string) (*ingest.FileRecord, error) {
	row, err := s.queries.GetFileRecordByHash(ctx, hash)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, &ingest.StoreError{Op: "lookup by exact hash", Err: err}
	}
	return toRecord(row), nil
}

func (s *SQLiteStore) LookupBySize(ctx context.Context, size int64) ([]*ingest.FileRecord, error) {
	rows, err := s.queries.ListFileRecordsBySize(ctx, size)
	if err != nil {
		return nil, &ingest.StoreError{Op: "lookup by size", Err: err}
	}
	return toRecords(rows), nil
}

func (s *SQLiteStore) LookupByPerceptualNeighbors(ctx context.Context, hash string, maxDistance int) ([]*ingest.FileRecord, error) {
	if maxDistance < 0 {
		return nil, nil
	}
	rows, err := s.queries.ListPerceptualNeighbors(ctx, sqlc.ListPerceptualNeighborsParams{
		Hash:        hash,
		MaxDistance: int64(maxDistance),
	})
	if err != nil {
		return nil, &ingest.StoreError{Op: "lookup perceptual neighbours", Err: err}
	}
	return toRecords(rows), nil
}

func (s *SQLiteStore) FindUnchanged(ctx context.Context, path string, mtime, size int64) (*ingest.FileRecord, error) {
	row, err := s.queries.GetUnchangedFileRecord(ctx, sqlc.GetUnchangedFileRecordParams{
		SourcePath: path,
		FileMtime:  mtime,
		FileSize:   size,
	})
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, &ingest.StoreError{Op: "find unchanged source", Err: err}
	}
	return toRecord(row), nil
}

func (s *SQLiteStore) CommitRecord(ctx context.Context, rec *ingest.FileRecord) (bool, error) {
	skipped, err := s.CommitBatch(ctx, []*ingest.FileRecord{rec})
	if err != nil {
		return false, err
	}
	return len(skipped) == 0, nil
}

func (s *SQLiteStore) CommitBatch(ctx context.Context, recs []*ingest.FileRecord) ([]*ingest.FileRecord, error) {
	for _, rec := range recs {
		if err := rec.Validate(); err != nil {
			return nil, &ingest.StoreError{Op: "validate record", Err: err}
		}
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, &ingest.StoreError{Op: "begin transaction", Err: err}
	}
	defer tx.Rollback()

	qtx := s.queries.WithTx(tx)
	var skipped []*ingest.FileRecord
	for _, rec := range recs {
		n, err := qtx.InsertFileRecord(ctx, fromRecord(rec))
		if err != nil {
			return nil, &ingest.StoreError{Op: "insert record for " + rec.SourcePath, Err: err}
		}
		if n == 0 {
			skipped = append(skipped, rec)
		}
	}

	if err := tx.Commit(); err != nil {
		return nil, &ingest.StoreError{Op: "commit transaction", Err: err}
	}
	return skipped, nil
}

func (s *SQLiteStore) UpdateProcessingStatus(ctx context.Context, hash string, status ingest.ProcessingStatus) error {
	n, err := s.queries.UpdateProcessingStatus(ctx, sqlc.UpdateProcessingStatusParams{
		ProcessingStatus: string(status),
		Sha256Hash:       hash,
	})
	if err != nil {
		return &ingest.StoreError{Op: "update processing status", Err: err}
	}
	if n == 0 {
		return &ingest.StoreError{Op: "update processing status", Err: fmt.Errorf("no record with hash %s", hash)}
	}
	return nil
}

// Metadata cache

func (s *SQLiteStore) GetMetadata(ctx context.Context, path string, mtime int64) (ingest.Metadata, error) {
	row, err := s.queries.GetExifCache(ctx, sqlc.GetExifCacheParams{FilePath: path, FileMtime: mtime})
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, &ingest.StoreError{Op: "read metadata cache", Err: err}
	}
	md := ingest.Metadata{}
	if err := json.Unmarshal([]byte(row.ExifData), &md); err != nil {
		return nil, &ingest.StoreError{Op: "decode metadata cache entry for " + path, Err: err}
	}
	return md, nil
}

func (s *SQLiteStore) PutMetadata(ctx context.Context, path string, mtime int64, md ingest.Metadata) error {
	data, err := json.Marshal(md)
	if err != nil {
		return fmt.Errorf("encoding metadata for %s: %w", path, err)
	}
	err = s.queries.UpsertExifCache(ctx, sqlc.UpsertExifCacheParams{
		FilePath:    path,
		FileMtime:   mtime,
		ExifData:    string(data),
		CreatedDate: formatTime(time.Now()),
	})
	if err != nil {
		return &ingest.StoreError{Op: "write metadata cache", Err: err}
	}
	return nil
}

func (s *SQLiteStore) PruneMetadataCache(ctx context.Context, before time.Time) (int64, error) {
	n, err := s.queries.DeleteSupersededExifCache(ctx, formatTime(before))
	if err != nil {
		return 0, &ingest.StoreError{Op: "prune metadata cache", Err: err}
	}
	return n, nil
}

// Directory cache

func (s *SQLiteStore) GetDirScan(ctx context.Context, path string) (*ingest.DirScan, error) {
	row, err := s.queries.GetDirectoryCache(ctx, path)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, &ingest.StoreError{Op: "read directory cache", Err: err}
	}
	return &ingest.DirScan{
		Path:         row.DirectoryPath,
		ScannedAt:    parseTime(row.ScanTimestamp),
		FileCount:    int(row.FileCount),
		LastModified: row.LastModified,
	}, nil
}

func (s *SQLiteStore) PutDirScan(ctx context.Context, scan ingest.DirScan) error {
	err := s.queries.UpsertDirectoryCache(ctx, sqlc.UpsertDirectoryCacheParams{
		DirectoryPath: scan.Path,
		ScanTimestamp: formatTime(scan.ScannedAt),
		FileCount:     int64(scan.FileCount),
		LastModified:  scan.LastModified,
	})
	if err != nil {
		return &ingest.StoreError{Op: "write directory cache", Err: err}
	}
	return nil
}

// Statistics and runs

func (s *SQLiteStore) Stats(ctx context.Context) (*ingest.StoreStats, error) {
	row, err := s.queries.GetStoreStats(ctx)
	if err != nil {
		return nil, &ingest.StoreError{Op: "read statistics", Err: err}
	}
	return &ingest.StoreStats{
		FileRecords:      row.FileRecords,
		PerceptualHashes: row.PerceptualHashes,
		Devices:          row.Devices,
		TotalBytes:       row.TotalBytes,
		MetadataEntries:  row.ExifEntries,
		DirectoryEntries: row.DirectoryEntries,
	}, nil
}

func (s *SQLiteStore) CreateRun(ctx context.Context, run *ingest.IngestRun) error {
	id, err := s.queries.InsertIngestRun(ctx, sqlc.InsertIngestRunParams{
		RunID:      run.RunID,
		StartedAt:  formatTime(run.StartedAt),
		SourcePath: run.Source,
		EventName:  run.Event,
		Mode:       run.Mode,
		Status:     run.Status,
	})
	if err != nil {
		return &ingest.StoreError{Op: "create run", Err: err}
	}
	run.ID = id
	return nil
}

func (s *SQLiteStore) FinishRun(ctx context.Context, run *ingest.IngestRun) error {
	err := s.queries.FinishIngestRun(ctx, sqlc.FinishIngestRunParams{
		FinishedAt:     sql.NullString{String: formatTime(run.FinishedAt), Valid: !run.FinishedAt.IsZero()},
		Status:         run.Status,
		FilesSeen:      int64(run.FilesSeen),
		FilesCommitted: int64(run.FilesCommitted),
		FilesDuplicate: int64(run.FilesDuplicate),
		FilesFailed:    int64(run.FilesFailed),
		RunID:          run.RunID,
	})
	if err != nil {
		return &ingest.StoreError{Op: "finish run", Err: err}
	}
	return nil
}

func (s *SQLiteStore) ListRuns(ctx context.Context, limit int) ([]*ingest.IngestRun, error) {
	if limit <= 0 {
		limit = 20
	}
	rows, err := s.queries.ListIngestRuns(ctx, int64(limit))
	if err != nil {
		return nil, &ingest.StoreError{Op: "list runs", Err: err}
	}
	runs := make([]*ingest.IngestRun, len(rows))
	for i, r := range rows {
		runs[i] = &ingest.IngestRun{
			ID:             r.ID,
			RunID:          r.RunID,
			StartedAt:      parseTime(r.StartedAt),
			Source:         r.SourcePath,
			Event:          r.EventName,
			Mode:           r.Mode,
			Status:         r.Status,
			FilesSeen:      int(r.FilesSeen),
			FilesCommitted: int(r.FilesCommitted),
			FilesDuplicate: int(r.FilesDuplicate),
			FilesFailed:    int(r.FilesFailed),
		}
		if r.FinishedAt.Valid {
			runs[i].FinishedAt = parseTime(r.FinishedAt.String)
		}
	}
	return runs, nil
}

// Conversions

func toRecord(r sqlc.FileRecord) *ingest.FileRecord {
	return &ingest.FileRecord{
		ID:             r.ID,
		SourcePath:     r.SourcePath,
		DestPath:       r.DestPath.String,
		RawBackupPath:  r.RawBackupPath.String,
		ExactHash:      r.Sha256Hash,
		PerceptualHash: r.PerceptualHash.String,
		Size:           r.FileSize,
		ModTime:        r.FileMtime,
		CreatedAt:      parseTime(r.CreatedDate),
		ProcessedAt:    parseTime(r.ProcessedDate),
		CameraModel:    r.CameraModel.String,
		LensModel:      r.LensModel.String,
		DeviceCode:     r.DeviceCode.String,
		Operation:      ingest.OperationKind(r.OperationType),
		Status:         ingest.ProcessingStatus(r.ProcessingStatus),
	}
}

func toRecords(rows []sqlc.FileRecord) []*ingest.FileRecord {
	recs := make([]*ingest.FileRecord, len(rows))
	for i, r := range rows {
		recs[i] = toRecord(r)
	}
	return recs
}

func fromRecord(r *ingest.FileRecord) sqlc.InsertFileRecordParams {
	status := r.Status
	if status == "" {
		status = ingest.ProcessingCompleted
	}
	return sqlc.InsertFileRecordParams{
		SourcePath:       r.SourcePath,
		DestPath:         nullString(r.DestPath),
		RawBackupPath:    nullString(r.RawBackupPath),
		Sha256Hash:       r.ExactHash,
		PerceptualHash:   nullString(r.PerceptualHash),
		FileSize:         r.Size,
		FileMtime:        r.ModTime,
		CreatedDate:      formatTime(r.CreatedAt),
		ProcessedDate:    formatTime(r.ProcessedAt),
		CameraModel:      nullString(r.CameraModel),
		LensModel:        nullString(r.LensModel),
		DeviceCode:       nullString(r.DeviceCode),
		OperationType:    string(r.Operation),
		ProcessingStatus: string(status),
	}
}

func nullString(s string) sql.NullString {
	return sql.NullString{String: s, Valid: s != ""}
}

func formatTime(t time.Time) string {
	return t.UTC().Format(timeLayout)
}

func parseTime(s string) time.Time {
	t, err := time.Parse(timeLayout, s)
	if err != nil {
		return time.Time{}
	}
	return t
}
