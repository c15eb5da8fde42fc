package ingest

import "context"

// FilesystemManager discovers candidate files.
type FilesystemManager interface {
	// Scan walks root and returns supported files sorted by path.
	Scan(ctx context.Context, root string) (*ScanResult, error)
	// Exists reports whether anything is present at path.
	Exists(path string) bool
}
