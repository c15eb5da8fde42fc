package ingest

import (
	"errors"
	"fmt"
)

// ErrBackupDirExhausted is returned when no free backup directory suffix remains.
var ErrBackupDirExhausted = errors.New("no free backup directory name")

// StoreError is a persistence failure. It is fatal for the current batch
// but not for the run.
type StoreError struct {
	Op  string
	Err error
}

func (e *StoreError) Error() string {
	return fmt.Sprintf("fingerprint store: %s failed: %v (check that the database file is writable and not locked by another process)", e.Op, e.Err)
}

func (e *StoreError) Unwrap() error { return e.Err }

// HashComputationError means a file could not be read for hashing.
type HashComputationError struct {
	Path string
	Err  error
}

func (e *HashComputationError) Error() string {
	return fmt.Sprintf("cannot hash %s: %v (file may be unreadable or was removed during the run)", e.Path, e.Err)
}

func (e *HashComputationError) Unwrap() error { return e.Err }

// IntegrityVerificationError is a post-copy hash mismatch.
type IntegrityVerificationError struct {
	Path     string
	Expected string
	Actual   string
}

func (e *IntegrityVerificationError) Error() string {
	return fmt.Sprintf("integrity check failed for %s: expected %s, got %s (source left untouched; re-run to retry)", e.Path, short(e.Expected), short(e.Actual))
}

// PlanningError is an invalid planner input.
type PlanningError struct {
	Path   string
	Reason string
}

func (e *PlanningError) Error() string {
	return fmt.Sprintf("cannot plan %s: %s", e.Path, e.Reason)
}

// ExecutionError is a filesystem failure while placing a file.
type ExecutionError struct {
	Path string
	Op   string
	Err  error
}

func (e *ExecutionError) Error() string {
	return fmt.Sprintf("%s %s: %v (check free space and permissions on the destination)", e.Op, e.Path, e.Err)
}

func (e *ExecutionError) Unwrap() error { return e.Err }

// ExtractionError is returned by metadata providers that cannot read a file.
type ExtractionError struct {
	Path     string
	Provider string
	Err      error
}

func (e *ExtractionError) Error() string {
	return fmt.Sprintf("%s: cannot extract metadata from %s: %v", e.Provider, e.Path, e.Err)
}

func (e *ExtractionError) Unwrap() error { return e.Err }

func short(hash string) string {
	if len(hash) > 12 {
		return hash[:12]
	}
	if hash == "" {
		return "<none>"
	}
	return hash
}
