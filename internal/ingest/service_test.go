package ingest_test

import (
	"bytes"
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"photo-ingest/internal/fs"
	"photo-ingest/internal/ingest"
	"photo-ingest/internal/testutil"
)

type serviceFixture struct {
	source, archive, backup string
	store                   ingest.Store
	provider                *testutil.StaticProvider
	hasher                  *testutil.CountingHasher
	svc                     *ingest.Service
}

func newServiceFixture(t *testing.T, source string) *serviceFixture {
	t.Helper()
	root := t.TempDir()
	f := &serviceFixture{
		source:   source,
		archive:  filepath.Join(root, "archive"),
		backup:   filepath.Join(root, "backup"),
		store:    testutil.NewTestStore(t),
		provider: testutil.NewStaticProvider(),
		hasher:   testutil.NewCountingHasher(),
	}
	f.provider.Set("A.jpg", testutil.CameraMetadata("ILCE-7M3", fileTime))
	f.provider.Set("C.jpg", testutil.CameraMetadata("NIKON Z 6_2", fileTime))

	logger := ingest.NewNopLogger()
	clock := testutil.FixedClock()
	scanner := fs.NewScanner(f.store, fs.ScannerOptions{JPEG: []string{"jpg", "png"}}, logger, clock)
	f.svc = ingest.NewService(f.store, scanner, f.provider, f.hasher, ingest.ServiceConfig{
		ArchiveRoot:         f.archive,
		BackupRoot:          f.backup,
		Workers:             4,
		BatchSize:           2,
		SimilarityThreshold: 5,
		SimilarPolicy:       ingest.SimilarTreatAsNew,
		Devices:             ingest.DeviceRules{Mappings: map[string]string{"ILCE-7M3": "A7III"}},
	}, logger, clock, testutil.NewStubIDGenerator(), nil)
	return f
}

// writeScenario creates A.jpg and B.jpg with identical 1,000,000 byte
// contents and C.jpg with 2,000,000 different bytes.
func writeScenario(t *testing.T) string {
	t.Helper()
	src := filepath.Join(t.TempDir(), "card")
	ab := bytes.Repeat([]byte{0xA1}, 1_000_000)
	testutil.WriteFile(t, filepath.Join(src, "A.jpg"), ab, fileTime)
	testutil.WriteFile(t, filepath.Join(src, "B.jpg"), ab, fileTime)
	testutil.WriteFile(t, filepath.Join(src, "C.jpg"), bytes.Repeat([]byte{0xC3}, 2_000_000), fileTime)
	return src
}

func (f *serviceFixture) run(t *testing.T, opts ingest.RunOptions) *ingest.RunReport {
	t.Helper()
	opts.Source = f.source
	report, err := f.svc.Ingest(context.Background(), opts)
	if err != nil {
		t.Fatalf("Ingest() error = %v", err)
	}
	return report
}

func rowsBySource(report *ingest.RunReport) map[string]ingest.ManifestRow {
	rows := make(map[string]ingest.ManifestRow)
	for _, r := range report.Manifest {
		rows[filepath.Base(r.SourcePath)] = r
	}
	return rows
}

func recordCount(t *testing.T, store ingest.Store) int64 {
	t.Helper()
	stats, err := store.Stats(context.Background())
	if err != nil {
		t.Fatal(err)
	}
	return stats.FileRecords
}

func TestService_Ingest_Scenario(t *testing.T) {
	f := newServiceFixture(t, writeScenario(t))
	organized := ingest.RunOptions{Event: "Beach", Mode: ingest.ModeCopy, Organized: true}

	first := f.run(t, organized)
	rows := rowsBySource(first)
	if len(first.Manifest) != 3 {
		t.Fatalf("manifest has %d rows, want 3", len(first.Manifest))
	}
	if rows["A.jpg"].Status != "New" || rows["C.jpg"].Status != "New" {
		t.Errorf("A = %s, C = %s; want New", rows["A.jpg"].Status, rows["C.jpg"].Status)
	}
	if rows["B.jpg"].Status != "Duplicate" || filepath.Base(rows["B.jpg"].DuplicateOf) != "A.jpg" {
		t.Errorf("B = %+v, want duplicate of A", rows["B.jpg"])
	}
	if n := recordCount(t, f.store); n != 2 {
		t.Errorf("FileRecords = %d, want 2", n)
	}
	wantA := filepath.Join(f.archive, "2024", "2024-06-01_Beach", "A7III", "A.jpg")
	if rows["A.jpg"].DestPath != wantA {
		t.Errorf("A dest = %q, want %q", rows["A.jpg"].DestPath, wantA)
	}
	if got := rows["C.jpg"].DeviceCode; got != "Z_6_2" {
		t.Errorf("C device = %q, want Z_6_2", got)
	}
	if rows["B.jpg"].DestPath != "" {
		t.Errorf("duplicate has destination %q", rows["B.jpg"].DestPath)
	}
	if first.Run.FilesCommitted != 2 || first.Run.FilesDuplicate != 1 || first.Run.Status != "completed" {
		t.Errorf("run = %+v", first.Run)
	}

	destsBefore := countFiles(t, f.archive)

	second := f.run(t, organized)
	rows = rowsBySource(second)
	if n := recordCount(t, f.store); n != 2 {
		t.Errorf("FileRecords = %d after rerun, want 2", n)
	}
	for name, row := range rows {
		if row.Status != "Duplicate" {
			t.Errorf("rerun %s = %s, want Duplicate", name, row.Status)
		}
	}
	if filepath.Base(rows["B.jpg"].DuplicateOf) != "A.jpg" {
		t.Errorf("rerun B duplicate of %q", rows["B.jpg"].DuplicateOf)
	}
	if rows["A.jpg"].ExactHash == "" {
		t.Error("rerun lost the recorded hash of A")
	}
	if got := countFiles(t, f.archive); got != destsBefore {
		t.Errorf("archive has %d files after rerun, want %d", got, destsBefore)
	}
	if second.Scan.Unchanged == 0 {
		t.Error("rerun did not use the directory cache")
	}

	runs, err := f.svc.History(context.Background(), 10)
	if err != nil {
		t.Fatal(err)
	}
	if len(runs) != 2 || runs[0].RunID != "run-2" {
		t.Errorf("history = %+v", runs)
	}
}

// writeGradientCard writes one gradient PNG under a fresh card directory with
// trailer appended after the image data. Decoders stop at the PNG end chunk,
// so cards with different trailers of equal length hold pixel-identical
// images of the same size but different content.
func writeGradientCard(t *testing.T, name string, trailer string) string {
	t.Helper()
	dir := t.TempDir()
	img := testutil.ReadFile(t, testutil.WriteGradientPNG(t, filepath.Join(dir, "tmp.png"), 64, false, fileTime))
	card := filepath.Join(dir, "card")
	testutil.WriteFile(t, filepath.Join(card, name), append(img, trailer...), fileTime)
	return card
}

func TestService_Ingest_SimilarAcrossRuns(t *testing.T) {
	card1 := writeGradientCard(t, "IMG_1.png", "XX")
	card2 := writeGradientCard(t, "IMG_2.png", "YY")
	f := newServiceFixture(t, card1)
	organized := ingest.RunOptions{Event: "Garden", Mode: ingest.ModeCopy, Organized: true}

	first := rowsBySource(f.run(t, organized))
	if first["IMG_1.png"].Status != "New" {
		t.Fatalf("first run IMG_1 = %+v, want New", first["IMG_1.png"])
	}
	stats, err := f.svc.Stats(context.Background())
	if err != nil {
		t.Fatal(err)
	}
	if stats.PerceptualHashes != 1 {
		t.Errorf("PerceptualHashes = %d after first run, want 1", stats.PerceptualHashes)
	}

	f.source = card2
	second := rowsBySource(f.run(t, organized))
	row := second["IMG_2.png"]
	if row.Status != "Similar" {
		t.Fatalf("second run IMG_2 = %+v, want Similar", row)
	}
	if row.DuplicateOf != filepath.Join(card1, "IMG_1.png") {
		t.Errorf("IMG_2 similar to %q, want %q", row.DuplicateOf, filepath.Join(card1, "IMG_1.png"))
	}
	if n := recordCount(t, f.store); n != 2 {
		t.Errorf("FileRecords = %d, want 2", n)
	}
}

func TestService_Ingest_DryRunMatchesRealRun(t *testing.T) {
	src := writeScenario(t)
	opts := ingest.RunOptions{Mode: ingest.ModeMove, Organized: true, RawBackup: true}

	dry := newServiceFixture(t, src)
	preview := dry.run(t, withDryRun(opts))
	if n := recordCount(t, dry.store); n != 0 {
		t.Errorf("dry run wrote %d records", n)
	}
	runs, _ := dry.svc.History(context.Background(), 10)
	if len(runs) != 0 {
		t.Errorf("dry run recorded %d runs", len(runs))
	}
	assertMissing(t, dry.archive)
	assertMissing(t, dry.backup)

	applied := dry.run(t, opts)

	planned, done := rowsBySource(preview), rowsBySource(applied)
	for name, p := range planned {
		d := done[name]
		if p.Status != d.Status || p.DestPath != d.DestPath || p.RawBackupPath != d.RawBackupPath {
			t.Errorf("%s: dry run %+v, real run %+v", name, p, d)
		}
	}
	assertMissing(t, filepath.Join(src, "A.jpg"))
	if _, err := os.Stat(filepath.Join(src, "B.jpg")); err != nil {
		t.Errorf("duplicate source moved: %v", err)
	}
}

func withDryRun(opts ingest.RunOptions) ingest.RunOptions {
	opts.DryRun = true
	return opts
}

func TestService_Ingest_RawOnly(t *testing.T) {
	f := newServiceFixture(t, writeScenario(t))
	report := f.run(t, ingest.RunOptions{Mode: ingest.ModeCopy, RawBackup: true})

	wantDir := filepath.Join(f.backup, "2024-06-15_184530")
	if report.Plan.BackupDir != wantDir {
		t.Errorf("BackupDir = %q, want %q", report.Plan.BackupDir, wantDir)
	}
	for _, name := range []string{"A.jpg", "B.jpg", "C.jpg"} {
		if _, err := os.Stat(filepath.Join(wantDir, name)); err != nil {
			t.Errorf("%s not backed up: %v", name, err)
		}
	}
	assertMissing(t, f.archive)
	if n := recordCount(t, f.store); n != 2 {
		t.Errorf("FileRecords = %d, want 2", n)
	}
	rows := rowsBySource(report)
	if rows["B.jpg"].Status != "Duplicate" {
		t.Errorf("B = %s", rows["B.jpg"].Status)
	}

	second := f.run(t, ingest.RunOptions{Mode: ingest.ModeCopy, RawBackup: true})
	if second.Plan.BackupDir != wantDir+"_01" {
		t.Errorf("second BackupDir = %q, want %q", second.Plan.BackupDir, wantDir+"_01")
	}
}

func TestService_Ingest_Both(t *testing.T) {
	f := newServiceFixture(t, writeScenario(t))
	report := f.run(t, ingest.RunOptions{Mode: ingest.ModeCopy, Organized: true, RawBackup: true})

	rows := rowsBySource(report)
	a := rows["A.jpg"]
	if a.DestPath == "" || a.RawBackupPath == "" {
		t.Fatalf("A = %+v", a)
	}
	rec, err := f.store.LookupByExactHash(context.Background(), a.ExactHash)
	if err != nil || rec == nil {
		t.Fatalf("record for A: %v, %v", rec, err)
	}
	if rec.Operation != ingest.KindBoth {
		t.Errorf("Operation = %s, want both", rec.Operation)
	}
	if rows["B.jpg"].RawBackupPath != "" {
		t.Errorf("duplicate backed up in organized mode: %q", rows["B.jpg"].RawBackupPath)
	}
}

func TestService_Ingest_Validation(t *testing.T) {
	f := newServiceFixture(t, t.TempDir())
	tests := []struct {
		name string
		opts ingest.RunOptions
		want string
	}{
		{"no source", ingest.RunOptions{Organized: true}, "no source"},
		{"nothing to do", ingest.RunOptions{Source: f.source}, "nothing to do"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := f.svc.Ingest(context.Background(), tt.opts)
			if err == nil || !strings.Contains(err.Error(), tt.want) {
				t.Errorf("Ingest() error = %v, want %q", err, tt.want)
			}
		})
	}

	t.Run("missing source fails the run", func(t *testing.T) {
		report, err := f.svc.Ingest(context.Background(), ingest.RunOptions{Source: filepath.Join(f.source, "gone"), Organized: true})
		if err == nil {
			t.Fatal("Ingest() expected error")
		}
		if report == nil || report.Run.Status != "failed" {
			t.Errorf("report = %+v", report)
		}
	})
}

func TestService_PruneCache(t *testing.T) {
	f := newServiceFixture(t, t.TempDir())
	if _, err := f.svc.PruneCache(context.Background(), -1); err == nil {
		t.Error("PruneCache(-1) expected error")
	}
	if n, err := f.svc.PruneCache(context.Background(), 30); err != nil || n != 0 {
		t.Errorf("PruneCache(30) = %d, %v", n, err)
	}
}

func countFiles(t *testing.T, root string) int {
	t.Helper()
	n := 0
	err := filepath.WalkDir(root, func(_ string, d os.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if !d.IsDir() {
			n++
		}
		return nil
	})
	if err != nil {
		t.Fatal(err)
	}
	return n
}
