package ingest

import (
	"encoding/csv"
	"fmt"
	"io"
	"sort"
	"strconv"
	"time"
)

// ManifestHeader lists the manifest columns in order.
var ManifestHeader = []string{
	"source_path", "dest_path", "raw_backup_path", "exact_hash", "device_code",
	"capture_date", "date_estimated", "camera_model", "lens_model", "status",
	"duplicate_of", "error",
}

// ManifestRow is one attempted file.
type ManifestRow struct {
	SourcePath    string
	DestPath      string
	RawBackupPath string
	ExactHash     string
	DeviceCode    string
	CaptureDate   time.Time
	DateEstimated bool
	CameraModel   string
	LensModel     string
	Status        string
	DuplicateOf   string
	Error         string
}

func (r ManifestRow) fields() []string {
	date := ""
	if !r.CaptureDate.IsZero() {
		date = r.CaptureDate.Format(time.RFC3339)
	}
	return []string{
		r.SourcePath, r.DestPath, r.RawBackupPath, r.ExactHash, r.DeviceCode,
		date, strconv.FormatBool(r.DateEstimated), r.CameraModel, r.LensModel, r.Status,
		r.DuplicateOf, r.Error,
	}
}

// ManifestRows builds rows from executed outcomes plus files that failed
// before planning. Rows are sorted by source path.
func ManifestRows(results *OperationResults, failed []*ClassifyResult) []ManifestRow {
	var rows []ManifestRow
	if results != nil {
		for _, out := range results.Outcomes {
			op := out.Op
			row := ManifestRow{
				SourcePath:    op.Source.Path,
				DestPath:      out.DestPath,
				RawBackupPath: out.RawBackupPath,
				ExactHash:     out.ExactHash,
				DeviceCode:    op.DeviceCode,
				CaptureDate:   op.CaptureDate,
				DateEstimated: op.DateEstimated,
				CameraModel:   op.Metadata.CameraModel(),
				LensModel:     op.Metadata.LensModel(),
				Status:        out.ManifestStatus(),
				DuplicateOf:   out.DuplicateOf,
			}
			if out.Err != nil {
				row.Error = out.Err.Error()
			}
			rows = append(rows, row)
		}
	}
	for _, r := range failed {
		row := ManifestRow{SourcePath: r.File.Path, Status: "Failed"}
		if r.Err != nil {
			row.Error = r.Err.Error()
		}
		rows = append(rows, row)
	}
	sort.SliceStable(rows, func(i, j int) bool { return rows[i].SourcePath < rows[j].SourcePath })
	return rows
}

// ManifestWriter writes manifest rows as CSV.
type ManifestWriter struct {
	w *csv.Writer
}

func NewManifestWriter(w io.Writer) *ManifestWriter {
	return &ManifestWriter{w: csv.NewWriter(w)}
}

// Write emits the header followed by rows and flushes.
func (m *ManifestWriter) Write(rows []ManifestRow) error {
	if err := m.w.Write(ManifestHeader); err != nil {
		return fmt.Errorf("writing manifest header: %w", err)
	}
	for _, r := range rows {
		if err := m.w.Write(r.fields()); err != nil {
			return fmt.Errorf("writing manifest row for %s: %w", r.SourcePath, err)
		}
	}
	m.w.Flush()
	if err := m.w.Error(); err != nil {
		return fmt.Errorf("flushing manifest: %w", err)
	}
	return nil
}
