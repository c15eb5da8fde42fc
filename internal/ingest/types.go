package ingest

import (
	"encoding/hex"
	"fmt"
	"time"
)

// DuplicateStatus is the outcome of classifying a candidate file against the store.
type DuplicateStatus string

const (
	StatusNew       DuplicateStatus = "New"
	StatusDuplicate DuplicateStatus = "Duplicate"
	StatusSimilar   DuplicateStatus = "Similar"
)

// OperationKind records which placements a committed file received.
type OperationKind string

const (
	KindOrganized OperationKind = "organized"
	KindRawBackup OperationKind = "raw_backup"
	KindBoth      OperationKind = "both"
)

// Valid reports whether k is one of the known operation kinds.
func (k OperationKind) Valid() bool {
	switch k {
	case KindOrganized, KindRawBackup, KindBoth:
		return true
	}
	return false
}

// ProcessingStatus is the only mutable column of a FileRecord.
type ProcessingStatus string

const (
	ProcessingCompleted ProcessingStatus = "completed"
	ProcessingFailed    ProcessingStatus = "failed"
	ProcessingSkipped   ProcessingStatus = "skipped"
)

// TransferMode selects whether sources are copied or moved into place.
type TransferMode int

const (
	ModeCopy TransferMode = iota
	ModeMove
)

func (m TransferMode) String() string {
	if m == ModeMove {
		return "move"
	}
	return "copy"
}

// SimilarPolicy decides how the planner treats perceptually similar files.
type SimilarPolicy string

const (
	SimilarTreatAsNew SimilarPolicy = "treat_as_new"
	SimilarSkip       SimilarPolicy = "skip"
)

// ExactHashLen is the length of a hex-encoded SHA-256 digest.
const ExactHashLen = 64

// FileRecord is one successfully ingested unique file.
// Empty strings stand for NULL columns.
type FileRecord struct {
	ID             int64
	SourcePath     string
	DestPath       string
	RawBackupPath  string
	ExactHash      string
	PerceptualHash string
	Size           int64
	ModTime        int64 // epoch seconds
	CreatedAt      time.Time
	ProcessedAt    time.Time
	CameraModel    string
	LensModel      string
	DeviceCode     string
	Operation      OperationKind
	Status         ProcessingStatus
}

// Validate checks that a record is complete enough to be persisted.
func (r *FileRecord) Validate() error {
	if r.SourcePath == "" {
		return fmt.Errorf("record has no source path")
	}
	if len(r.ExactHash) != ExactHashLen {
		return fmt.Errorf("record %s: exact hash must be %d hex characters, got %d", r.SourcePath, ExactHashLen, len(r.ExactHash))
	}
	if _, err := hex.DecodeString(r.ExactHash); err != nil {
		return fmt.Errorf("record %s: exact hash is not hex: %w", r.SourcePath, err)
	}
	if r.Size < 0 {
		return fmt.Errorf("record %s: negative size %d", r.SourcePath, r.Size)
	}
	if !r.Operation.Valid() {
		return fmt.Errorf("record %s: unknown operation kind %q", r.SourcePath, r.Operation)
	}
	switch r.Operation {
	case KindOrganized:
		if r.DestPath == "" {
			return fmt.Errorf("record %s: organized record without destination path", r.SourcePath)
		}
	case KindRawBackup:
		if r.RawBackupPath == "" {
			return fmt.Errorf("record %s: raw backup record without backup path", r.SourcePath)
		}
	case KindBoth:
		if r.DestPath == "" || r.RawBackupPath == "" {
			return fmt.Errorf("record %s: both-kind record needs destination and backup paths", r.SourcePath)
		}
	}
	if r.CreatedAt.IsZero() || r.ProcessedAt.IsZero() {
		return fmt.Errorf("record %s: missing timestamps", r.SourcePath)
	}
	return nil
}

// DirScan is the cached state of one scanned directory.
type DirScan struct {
	Path         string
	ScannedAt    time.Time
	FileCount    int
	LastModified int64 // watermark, epoch seconds
}

// FileType is the coarse media category of a scanned file.
type FileType string

const (
	TypeRaw   FileType = "raw"
	TypeJPEG  FileType = "jpeg"
	TypeVideo FileType = "video"
)

// ScannedFile is a candidate file discovered under a source root.
type ScannedFile struct {
	Path    string
	RelPath string // relative to the scanned root
	Size    int64
	ModTime time.Time
	Type    FileType
	// Cached is set when the containing directory has not changed since
	// the last recorded scan.
	Cached bool
}

// MTime returns the modification time at the store's resolution.
func (f ScannedFile) MTime() int64 {
	return f.ModTime.Unix()
}

// ScanResult is the output of scanning a source root.
type ScanResult struct {
	Root  string
	Files []ScannedFile
	// Dirs holds the observed state of every visited directory, written
	// back to the directory cache after a successful run.
	Dirs      []DirScan
	Unchanged int // directories served from the cache
}

// Classification is the DeduplicationEngine's verdict on one file.
type Classification struct {
	Status         DuplicateStatus
	ExactHash      string // empty when hashing was skipped
	PerceptualHash string
	// DuplicateOf is the source path of the matching record or in-run winner.
	DuplicateOf string
	Distance    int
	Reason      string
}

// Classification reasons.
const (
	ReasonUnchanged  = "unchanged"
	ReasonUniqueSize = "unique-size"
	ReasonExact      = "exact-hash"
	ReasonPerceptual = "perceptual"
	ReasonInRun      = "in-run"
	ReasonNoMatch    = "no-match"
)

// FileOperation is a planned, not yet executed, placement of one file.
type FileOperation struct {
	Source         ScannedFile
	DestPath       string
	RawBackupPath  string
	DeviceCode     string
	Status         DuplicateStatus
	DuplicateOf    string
	Kind           OperationKind
	CaptureDate    time.Time
	DateEstimated  bool
	ExactHash      string
	PerceptualHash string
	Metadata       Metadata
}

// HasPlacement reports whether the operation writes anything to disk.
func (op *FileOperation) HasPlacement() bool {
	return op.DestPath != "" || op.RawBackupPath != ""
}

// Plan is the complete, side-effect free description of a run.
type Plan struct {
	Event      string
	Source     string
	BackupDir  string
	Operations []*FileOperation
}

// FileState tracks a file through execution.
type FileState string

const (
	StatePlanned   FileState = "Planned"
	StateCopying   FileState = "Copying"
	StateMoving    FileState = "Moving"
	StateVerifying FileState = "Verifying"
	StateCommitted FileState = "Committed"
	StateFailed    FileState = "Failed"
	StateSkipped   FileState = "Skipped"
)

// FileOutcome is the per-file result of executing a plan.
type FileOutcome struct {
	Op             *FileOperation
	State          FileState
	Status         DuplicateStatus
	DuplicateOf    string
	DestPath       string // actual path, may differ from the plan on collision
	RawBackupPath  string
	ExactHash      string
	PerceptualHash string // from classification, or computed after placement
	Err            error

	created []string // placements written by this run
}

// ManifestStatus is the status shown in the manifest.
func (o *FileOutcome) ManifestStatus() string {
	if o.State == StateFailed {
		return "Failed"
	}
	return string(o.Status)
}

// OperationResults summarises an executed (or simulated) plan.
type OperationResults struct {
	Plan        *Plan
	DryRun      bool
	Mode        TransferMode
	Outcomes    []*FileOutcome
	Committed   int
	Duplicates  int
	Skipped     int
	Failed      int
	BytesPlaced int64
}

// IngestRun is the persisted log entry for one invocation.
type IngestRun struct {
	ID             int64
	RunID          string
	StartedAt      time.Time
	FinishedAt     time.Time
	Source         string
	Event          string
	Mode           string
	Status         string
	FilesSeen      int
	FilesCommitted int
	FilesDuplicate int
	FilesFailed    int
}

// StoreStats summarises the persisted state.
type StoreStats struct {
	FileRecords      int64
	PerceptualHashes int64
	Devices          int64
	TotalBytes       int64
	MetadataEntries  int64
	DirectoryEntries int64
}
