package metadata

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"strconv"
	"testing"
	"time"

	"photo-ingest/internal/ingest"
	"photo-ingest/internal/testutil"
)

var taken = time.Date(2024, 3, 9, 14, 2, 11, 0, time.UTC)

func TestChain(t *testing.T) {
	dir := t.TempDir()
	path := testutil.WriteFile(t, filepath.Join(dir, "a.nef"), []byte("raw"), taken)

	t.Run("falls back past failing providers", func(t *testing.T) {
		static := testutil.NewStaticProvider()
		static.Set("a.nef", testutil.CameraMetadata("NIKON Z 6_2", taken))

		c := NewChain(testutil.FailingProvider{}, static)
		md, err := c.Extract(context.Background(), path)
		if err != nil {
			t.Fatalf("Extract() error = %v", err)
		}
		if md.CameraModel() != "NIKON Z 6_2" {
			t.Errorf("CameraModel() = %q", md.CameraModel())
		}
	})

	t.Run("drops unavailable providers", func(t *testing.T) {
		c := NewChain(testutil.FailingProvider{Unavailable: true}, NewFilesystemProvider())
		if c.Name() != "filesystem" {
			t.Errorf("Name() = %q, want filesystem", c.Name())
		}
	})

	t.Run("returns last error when all fail", func(t *testing.T) {
		c := NewChain(testutil.FailingProvider{})
		_, err := c.Extract(context.Background(), path)
		var extractErr *ingest.ExtractionError
		if !errors.As(err, &extractErr) {
			t.Fatalf("Extract() error = %v, want ExtractionError", err)
		}
	})

	t.Run("empty chain", func(t *testing.T) {
		c := NewChain()
		if c.Available() {
			t.Error("Available() = true for empty chain")
		}
		if _, err := c.Extract(context.Background(), path); err == nil {
			t.Error("Extract() expected error")
		}
	})
}

func TestFilesystemProvider(t *testing.T) {
	dir := t.TempDir()
	path := testutil.WriteFile(t, filepath.Join(dir, "IMG_0001.JPG"), []byte("12345"), taken)

	md, err := NewFilesystemProvider().Extract(context.Background(), path)
	if err != nil {
		t.Fatalf("Extract() error = %v", err)
	}
	if md[ingest.FieldFileName] != "IMG_0001.JPG" {
		t.Errorf("FileName = %q", md[ingest.FieldFileName])
	}
	if md[ingest.FieldFileSize] != strconv.Itoa(5) {
		t.Errorf("FileSize = %q", md[ingest.FieldFileSize])
	}
	got, estimated := md.CaptureTime(time.Time{})
	if !estimated {
		t.Error("filesystem dates should be estimated")
	}
	if !got.IsZero() {
		t.Errorf("CaptureTime() = %v, want fallback", got)
	}

	if _, err := NewFilesystemProvider().Extract(context.Background(), filepath.Join(dir, "missing")); err == nil {
		t.Error("Extract() expected error for missing file")
	}
}

func TestExifProvider_NoExif(t *testing.T) {
	dir := t.TempDir()
	path := testutil.WriteGradientPNG(t, filepath.Join(dir, "plain.png"), 16, false, taken)

	_, err := NewExifProvider().Extract(context.Background(), path)
	var extractErr *ingest.ExtractionError
	if !errors.As(err, &extractErr) {
		t.Fatalf("Extract() error = %v, want ExtractionError", err)
	}
	if extractErr.Provider != "exif" {
		t.Errorf("Provider = %q, want exif", extractErr.Provider)
	}
}

func TestCachingProvider(t *testing.T) {
	ctx := context.Background()

	newFixture := func(t *testing.T) (string, *testutil.StaticProvider) {
		dir := t.TempDir()
		path := testutil.WriteFile(t, filepath.Join(dir, "a.nef"), []byte("raw"), taken)
		static := testutil.NewStaticProvider()
		static.Set("a.nef", testutil.CameraMetadata("ILCE-7M3", taken))
		return path, static
	}

	t.Run("memory hit skips extraction", func(t *testing.T) {
		path, static := newFixture(t)
		store := testutil.NewTestStore(t)
		c, err := NewCachingProvider(static, store, 8, false, ingest.NewNopLogger())
		if err != nil {
			t.Fatal(err)
		}
		for i := 0; i < 3; i++ {
			if _, err := c.Extract(ctx, path); err != nil {
				t.Fatalf("Extract() error = %v", err)
			}
		}
		if static.Calls() != 1 {
			t.Errorf("provider called %d times, want 1", static.Calls())
		}
	})

	t.Run("persistent hit survives a new provider", func(t *testing.T) {
		path, static := newFixture(t)
		store := testutil.NewTestStore(t)
		first, _ := NewCachingProvider(static, store, 8, false, ingest.NewNopLogger())
		if _, err := first.Extract(ctx, path); err != nil {
			t.Fatal(err)
		}

		second, _ := NewCachingProvider(static, store, 8, false, ingest.NewNopLogger())
		md, err := second.Extract(ctx, path)
		if err != nil {
			t.Fatal(err)
		}
		if md.CameraModel() != "ILCE-7M3" {
			t.Errorf("CameraModel() = %q", md.CameraModel())
		}
		if static.Calls() != 1 {
			t.Errorf("provider called %d times, want 1", static.Calls())
		}
	})

	t.Run("changed mtime misses", func(t *testing.T) {
		path, static := newFixture(t)
		store := testutil.NewTestStore(t)
		c, _ := NewCachingProvider(static, store, 8, false, ingest.NewNopLogger())
		if _, err := c.Extract(ctx, path); err != nil {
			t.Fatal(err)
		}
		later := taken.Add(time.Hour)
		if err := os.Chtimes(path, later, later); err != nil {
			t.Fatal(err)
		}
		if _, err := c.Extract(ctx, path); err != nil {
			t.Fatal(err)
		}
		if static.Calls() != 2 {
			t.Errorf("provider called %d times, want 2", static.Calls())
		}
	})

	t.Run("read-only does not persist", func(t *testing.T) {
		path, static := newFixture(t)
		store := testutil.NewTestStore(t)
		c, _ := NewCachingProvider(static, store, 8, true, ingest.NewNopLogger())
		if _, err := c.Extract(ctx, path); err != nil {
			t.Fatal(err)
		}
		md, err := store.GetMetadata(ctx, path, taken.Unix())
		if err != nil {
			t.Fatal(err)
		}
		if md != nil {
			t.Errorf("read-only provider persisted %v", md)
		}
	})
}
