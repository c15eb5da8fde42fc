package ingest_test

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"photo-ingest/internal/hashing"
	"photo-ingest/internal/ingest"
	"photo-ingest/internal/testutil"
)

var fileTime = time.Date(2024, 6, 1, 8, 30, 0, 0, time.UTC)

func scanned(t *testing.T, path string) ingest.ScannedFile {
	t.Helper()
	info, err := os.Stat(path)
	if err != nil {
		t.Fatal(err)
	}
	return ingest.ScannedFile{Path: path, RelPath: filepath.Base(path), Size: info.Size(), ModTime: info.ModTime(), Type: ingest.TypeJPEG}
}

func seedRecord(t *testing.T, store ingest.Store, rec *ingest.FileRecord) {
	t.Helper()
	if rec.Operation == "" {
		rec.Operation = ingest.KindOrganized
	}
	if rec.DestPath == "" {
		rec.DestPath = "/archive/" + filepath.Base(rec.SourcePath)
	}
	if rec.CreatedAt.IsZero() {
		rec.CreatedAt = fileTime
	}
	if rec.ProcessedAt.IsZero() {
		rec.ProcessedAt = fileTime
	}
	if rec.Status == "" {
		rec.Status = ingest.ProcessingCompleted
	}
	ok, err := store.CommitRecord(context.Background(), rec)
	if err != nil || !ok {
		t.Fatalf("seeding %s: ok=%v err=%v", rec.SourcePath, ok, err)
	}
}

func newEngine(store ingest.Store, hasher ingest.Hasher, threshold int) *ingest.DeduplicationEngine {
	return ingest.NewDeduplicationEngine(store, hasher, ingest.DedupOptions{SimilarityThreshold: threshold, Workers: 4}, ingest.NewNopLogger(), nil)
}

func TestDeduplicationEngine_Classify(t *testing.T) {
	ctx := context.Background()
	dir := t.TempDir()

	t.Run("unique size skips hashing", func(t *testing.T) {
		store := testutil.NewTestStore(t)
		seedRecord(t, store, &ingest.FileRecord{SourcePath: "/old/x.jpg", ExactHash: testutil.SHA256Hex([]byte("x")), Size: 5})
		hasher := testutil.NewCountingHasher()
		f := scanned(t, testutil.WriteFile(t, filepath.Join(dir, "unique.jpg"), []byte("seven!!"), fileTime))

		c, err := newEngine(store, hasher, 5).Classify(ctx, f)
		if err != nil {
			t.Fatal(err)
		}
		if c.Status != ingest.StatusNew || c.Reason != ingest.ReasonUniqueSize {
			t.Errorf("classification = %+v", c)
		}
		if hasher.TotalExactCalls() != 0 {
			t.Errorf("ExactHash called %d times", hasher.TotalExactCalls())
		}
	})

	t.Run("exact duplicate", func(t *testing.T) {
		store := testutil.NewTestStore(t)
		content := []byte("same bytes")
		seedRecord(t, store, &ingest.FileRecord{SourcePath: "/old/orig.jpg", ExactHash: testutil.SHA256Hex(content), Size: int64(len(content))})
		f := scanned(t, testutil.WriteFile(t, filepath.Join(dir, "copy.jpg"), content, fileTime))

		c, err := newEngine(store, testutil.NewCountingHasher(), 5).Classify(ctx, f)
		if err != nil {
			t.Fatal(err)
		}
		if c.Status != ingest.StatusDuplicate || c.DuplicateOf != "/old/orig.jpg" || c.ExactHash != testutil.SHA256Hex(content) {
			t.Errorf("classification = %+v", c)
		}
	})

	t.Run("same size different content", func(t *testing.T) {
		store := testutil.NewTestStore(t)
		seedRecord(t, store, &ingest.FileRecord{SourcePath: "/old/a.jpg", ExactHash: testutil.SHA256Hex([]byte("aaaa")), Size: 4})
		hasher := testutil.NewCountingHasher()
		f := scanned(t, testutil.WriteFile(t, filepath.Join(dir, "b.jpg"), []byte("bbbb"), fileTime))

		c, err := newEngine(store, hasher, 5).Classify(ctx, f)
		if err != nil {
			t.Fatal(err)
		}
		if c.Status != ingest.StatusNew || c.ExactHash != testutil.SHA256Hex([]byte("bbbb")) {
			t.Errorf("classification = %+v", c)
		}
		if hasher.ExactCalls(f.Path) != 1 {
			t.Errorf("ExactHash called %d times, want 1", hasher.ExactCalls(f.Path))
		}
	})

	t.Run("unchanged source", func(t *testing.T) {
		store := testutil.NewTestStore(t)
		path := testutil.WriteFile(t, filepath.Join(dir, "kept.jpg"), []byte("kept"), fileTime)
		f := scanned(t, path)
		hash := testutil.SHA256Hex([]byte("kept"))
		seedRecord(t, store, &ingest.FileRecord{SourcePath: path, ExactHash: hash, Size: f.Size, ModTime: f.MTime()})
		hasher := testutil.NewCountingHasher()

		c, err := newEngine(store, hasher, 5).Classify(ctx, f)
		if err != nil {
			t.Fatal(err)
		}
		if c.Status != ingest.StatusDuplicate || c.Reason != ingest.ReasonUnchanged || c.ExactHash != hash {
			t.Errorf("classification = %+v", c)
		}
		if hasher.TotalExactCalls() != 0 {
			t.Errorf("ExactHash called %d times", hasher.TotalExactCalls())
		}
	})

	t.Run("hash failure", func(t *testing.T) {
		store := testutil.NewTestStore(t)
		seedRecord(t, store, &ingest.FileRecord{SourcePath: "/old/a.jpg", ExactHash: testutil.SHA256Hex([]byte("aaaa")), Size: 4})
		hasher := testutil.NewCountingHasher()
		path := testutil.WriteFile(t, filepath.Join(dir, "bad.jpg"), []byte("cccc"), fileTime)
		hasher.FailExact[path] = errors.New("i/o error")

		_, err := newEngine(store, hasher, 5).Classify(ctx, scanned(t, path))
		var hashErr *ingest.HashComputationError
		if !errors.As(err, &hashErr) {
			t.Fatalf("Classify() error = %v, want HashComputationError", err)
		}
	})
}

func TestDeduplicationEngine_Perceptual(t *testing.T) {
	ctx := context.Background()
	dir := t.TempDir()
	calc := hashing.NewCalculator()

	reference := testutil.WriteGradientPNG(t, filepath.Join(dir, "ref.png"), 64, false, fileTime)
	refHash, ok, err := calc.PerceptualHash(ctx, reference)
	if err != nil || !ok {
		t.Fatalf("reference hash: ok=%v err=%v", ok, err)
	}

	similar := scanned(t, testutil.WriteGradientPNG(t, filepath.Join(dir, "small.png"), 32, false, fileTime))
	different := scanned(t, testutil.WriteGradientPNG(t, filepath.Join(dir, "inverted.png"), 32, true, fileTime))

	// The stored record shares the candidates' size so classification
	// reaches the perceptual stage.
	newStore := func(t *testing.T, size int64) ingest.Store {
		store := testutil.NewTestStore(t)
		seedRecord(t, store, &ingest.FileRecord{
			SourcePath:     reference,
			ExactHash:      testutil.SHA256Hex([]byte("reference")),
			PerceptualHash: refHash,
			Size:           size,
		})
		return store
	}

	t.Run("near image is similar", func(t *testing.T) {
		c, err := newEngine(newStore(t, similar.Size), testutil.NewCountingHasher(), 5).Classify(ctx, similar)
		if err != nil {
			t.Fatal(err)
		}
		if c.Status != ingest.StatusSimilar || c.DuplicateOf != reference || c.PerceptualHash == "" {
			t.Errorf("classification = %+v", c)
		}
	})

	t.Run("far image is new", func(t *testing.T) {
		c, err := newEngine(newStore(t, different.Size), testutil.NewCountingHasher(), 5).Classify(ctx, different)
		if err != nil {
			t.Fatal(err)
		}
		if c.Status != ingest.StatusNew {
			t.Errorf("classification = %+v", c)
		}
	})

	t.Run("negative threshold disables matching", func(t *testing.T) {
		hasher := testutil.NewCountingHasher()
		c, err := newEngine(newStore(t, similar.Size), hasher, -1).Classify(ctx, similar)
		if err != nil {
			t.Fatal(err)
		}
		if c.Status != ingest.StatusNew {
			t.Errorf("classification = %+v", c)
		}
		if hasher.PerceptualCalls(similar.Path) != 0 {
			t.Error("perceptual hash computed although matching is disabled")
		}
	})

	t.Run("raising the threshold never loses a match", func(t *testing.T) {
		for _, f := range []ingest.ScannedFile{similar, different} {
			store := newStore(t, f.Size)
			wasSimilar := false
			for threshold := 0; threshold <= 64; threshold += 4 {
				c, err := newEngine(store, testutil.NewCountingHasher(), threshold).Classify(ctx, f)
				if err != nil {
					t.Fatal(err)
				}
				isSimilar := c.Status == ingest.StatusSimilar
				if wasSimilar && !isSimilar {
					t.Errorf("%s: similar below threshold %d but not at it", f.RelPath, threshold)
				}
				if isSimilar && c.Distance > threshold {
					t.Errorf("%s: distance %d above threshold %d", f.RelPath, c.Distance, threshold)
				}
				wasSimilar = isSimilar
			}
			if !wasSimilar {
				t.Errorf("%s: not similar at threshold 64", f.RelPath)
			}
		}
	})
}

func TestDeduplicationEngine_ClassifyAll_InRun(t *testing.T) {
	ctx := context.Background()
	dir := t.TempDir()
	same := []byte("identical content")
	files := []ingest.ScannedFile{
		scanned(t, testutil.WriteFile(t, filepath.Join(dir, "c.jpg"), same, fileTime)),
		scanned(t, testutil.WriteFile(t, filepath.Join(dir, "a.jpg"), same, fileTime)),
		scanned(t, testutil.WriteFile(t, filepath.Join(dir, "other.jpg"), []byte("different content"), fileTime)),
		scanned(t, testutil.WriteFile(t, filepath.Join(dir, "b.jpg"), same, fileTime)),
		scanned(t, testutil.WriteFile(t, filepath.Join(dir, "lonely.jpg"), []byte("x"), fileTime)),
	}
	winner := filepath.Join(dir, "a.jpg")

	for attempt := 0; attempt < 5; attempt++ {
		store := testutil.NewTestStore(t)
		hasher := testutil.NewCountingHasher()
		results, err := newEngine(store, hasher, 5).ClassifyAll(ctx, files)
		if err != nil {
			t.Fatal(err)
		}
		if len(results) != len(files) {
			t.Fatalf("len(results) = %d", len(results))
		}
		for i, r := range results {
			if r.File.Path != files[i].Path {
				t.Fatalf("results out of input order at %d", i)
			}
			if r.Err != nil {
				t.Fatalf("%s: %v", r.File.Path, r.Err)
			}
			c := r.Classification
			switch filepath.Base(r.File.Path) {
			case "a.jpg", "other.jpg", "lonely.jpg":
				if c.Status != ingest.StatusNew {
					t.Errorf("%s = %s, want New", r.File.RelPath, c.Status)
				}
			default:
				if c.Status != ingest.StatusDuplicate || c.DuplicateOf != winner || c.Reason != ingest.ReasonInRun {
					t.Errorf("%s = %+v, want duplicate of a.jpg", r.File.RelPath, c)
				}
			}
		}
		if n := hasher.ExactCalls(filepath.Join(dir, "lonely.jpg")); n != 0 {
			t.Errorf("lonely.jpg hashed %d times", n)
		}
	}
}

func TestDeduplicationEngine_ClassifyAll_Cancelled(t *testing.T) {
	dir := t.TempDir()
	files := []ingest.ScannedFile{scanned(t, testutil.WriteFile(t, filepath.Join(dir, "a.jpg"), []byte("a"), fileTime))}
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if _, err := newEngine(testutil.NewTestStore(t), testutil.NewCountingHasher(), 5).ClassifyAll(ctx, files); !errors.Is(err, context.Canceled) {
		t.Errorf("ClassifyAll() error = %v, want context.Canceled", err)
	}
}
