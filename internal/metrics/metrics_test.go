package metrics

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"

	"photo-ingest/internal/ingest"
)

func TestPrometheus_Counters(t *testing.T) {
	p := NewPrometheus()
	p.FileScanned(3)
	p.FileClassified(ingest.StatusNew)
	p.FileClassified(ingest.StatusNew)
	p.FileClassified(ingest.StatusDuplicate)
	p.HashComputed("exact")
	p.FileFailed("place")
	p.RecordsCommitted(2)
	p.BytesPlaced(1024)

	tests := []struct {
		name string
		got  float64
		want float64
	}{
		{"scanned", testutil.ToFloat64(p.filesScanned), 3},
		{"new", testutil.ToFloat64(p.filesClassified.WithLabelValues(string(ingest.StatusNew))), 2},
		{"duplicate", testutil.ToFloat64(p.filesClassified.WithLabelValues(string(ingest.StatusDuplicate))), 1},
		{"exact hashes", testutil.ToFloat64(p.hashesComputed.WithLabelValues("exact")), 1},
		{"failed", testutil.ToFloat64(p.filesFailed.WithLabelValues("place")), 1},
		{"committed", testutil.ToFloat64(p.recordsCommitted), 2},
		{"bytes", testutil.ToFloat64(p.bytesPlaced), 1024},
	}
	for _, tt := range tests {
		if tt.got != tt.want {
			t.Errorf("%s = %v, want %v", tt.name, tt.got, tt.want)
		}
	}
}

func TestPrometheus_WriteTextfile(t *testing.T) {
	p := NewPrometheus()
	p.RecordsCommitted(5)
	start := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	p.RunFinished("completed", start, start.Add(90*time.Second))

	path := filepath.Join(t.TempDir(), "ingest.prom")
	if err := p.WriteTextfile(path); err != nil {
		t.Fatalf("WriteTextfile() error = %v", err)
	}
	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatal(err)
	}
	for _, want := range []string{
		"ingest_records_committed_total 5",
		`ingest_last_run_duration_seconds{status="completed"} 90`,
	} {
		if !strings.Contains(string(data), want) {
			t.Errorf("textfile missing %q:\n%s", want, data)
		}
	}
}

func TestPrometheus_WriteTextfile_BadPath(t *testing.T) {
	p := NewPrometheus()
	if err := p.WriteTextfile(filepath.Join(t.TempDir(), "missing", "x.prom")); err == nil {
		t.Error("WriteTextfile() expected error")
	}
}
