package metadata

import (
	"context"
	"os"
	"path/filepath"
	"strconv"
	"time"

	"photo-ingest/internal/ingest"
)

// FilesystemProvider reports what the filesystem knows: name, size and
// modification time. It is the last resort in a chain.
type FilesystemProvider struct{}

func NewFilesystemProvider() *FilesystemProvider { return &FilesystemProvider{} }

func (*FilesystemProvider) Name() string    { return "filesystem" }
func (*FilesystemProvider) Available() bool { return true }

func (p *FilesystemProvider) Extract(ctx context.Context, path string) (ingest.Metadata, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	info, err := os.Stat(path)
	if err != nil {
		return nil, &ingest.ExtractionError{Path: path, Provider: p.Name(), Err: err}
	}
	return ingest.Metadata{
		ingest.FieldFileName:       filepath.Base(path),
		ingest.FieldFileSize:       strconv.FormatInt(info.Size(), 10),
		ingest.FieldFileModifyDate: info.ModTime().Format(time.RFC3339),
	}, nil
}
