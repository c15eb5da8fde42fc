package testutil

import (
	"context"
	"fmt"
	"image"
	"image/color"
	"image/png"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"photo-ingest/internal/ingest"
)

// WriteFile creates path (and its parents) with content and sets its mtime.
func WriteFile(t *testing.T, path string, content []byte, mtime time.Time) string {
	t.Helper()
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		t.Fatalf("creating %s: %v", filepath.Dir(path), err)
	}
	if err := os.WriteFile(path, content, 0o644); err != nil {
		t.Fatalf("writing %s: %v", path, err)
	}
	if !mtime.IsZero() {
		if err := os.Chtimes(path, mtime, mtime); err != nil {
			t.Fatalf("setting mtime on %s: %v", path, err)
		}
	}
	return path
}

// WriteGradientPNG writes a size x size grayscale gradient. Images with the
// same direction but different sizes have near-identical perceptual hashes.
func WriteGradientPNG(t *testing.T, path string, size int, inverted bool, mtime time.Time) string {
	t.Helper()
	img := image.NewGray(image.Rect(0, 0, size, size))
	for y := 0; y < size; y++ {
		for x := 0; x < size; x++ {
			v := uint8(x * 255 / (size - 1))
			if inverted {
				v = 255 - v
			}
			img.SetGray(x, y, color.Gray{Y: v})
		}
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		t.Fatalf("creating %s: %v", filepath.Dir(path), err)
	}
	f, err := os.Create(path)
	if err != nil {
		t.Fatalf("creating %s: %v", path, err)
	}
	if err := png.Encode(f, img); err != nil {
		f.Close()
		t.Fatalf("encoding %s: %v", path, err)
	}
	f.Close()
	if !mtime.IsZero() {
		if err := os.Chtimes(path, mtime, mtime); err != nil {
			t.Fatalf("setting mtime on %s: %v", path, err)
		}
	}
	return path
}

// ReadFile returns the content at path or fails the test.
func ReadFile(t *testing.T, path string) []byte {
	t.Helper()
	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("reading %s: %v", path, err)
	}
	return data
}

// StaticProvider is an ingest.MetadataProvider backed by a map keyed by
// file name. Unknown files yield empty metadata.
type StaticProvider struct {
	mu     sync.Mutex
	byName map[string]ingest.Metadata
	calls  int
}

func NewStaticProvider() *StaticProvider {
	return &StaticProvider{byName: make(map[string]ingest.Metadata)}
}

// Set registers metadata for files named name.
func (p *StaticProvider) Set(name string, md ingest.Metadata) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.byName[name] = md
}

// Calls returns how many extractions were requested.
func (p *StaticProvider) Calls() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.calls
}

func (p *StaticProvider) Name() string    { return "static" }
func (p *StaticProvider) Available() bool { return true }

func (p *StaticProvider) Extract(ctx context.Context, path string) (ingest.Metadata, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	p.calls++
	md, ok := p.byName[filepath.Base(path)]
	if !ok {
		return ingest.Metadata{}, nil
	}
	out := make(ingest.Metadata, len(md))
	for k, v := range md {
		out[k] = v
	}
	return out, nil
}

// CameraMetadata builds the metadata a camera would report.
func CameraMetadata(model string, taken time.Time) ingest.Metadata {
	return ingest.Metadata{
		ingest.FieldModel:            model,
		ingest.FieldDateTimeOriginal: taken.Format(ingest.ExifTimeLayout),
	}
}

// FailingProvider always fails extraction.
type FailingProvider struct{ Unavailable bool }

func (p FailingProvider) Name() string    { return "failing" }
func (p FailingProvider) Available() bool { return !p.Unavailable }

func (p FailingProvider) Extract(_ context.Context, path string) (ingest.Metadata, error) {
	return nil, &ingest.ExtractionError{Path: path, Provider: p.Name(), Err: fmt.Errorf("no metadata")}
}
