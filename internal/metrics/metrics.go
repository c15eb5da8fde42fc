// Package metrics records ingest counters with Prometheus. A one-shot CLI
// has nothing to scrape, so the registry is written out in the text
// exposition format for node_exporter's textfile collector.
package metrics

import (
	"fmt"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"photo-ingest/internal/ingest"
)

// Prometheus implements ingest.Metrics on its own registry.
type Prometheus struct {
	registry *prometheus.Registry

	filesScanned     prometheus.Counter
	filesClassified  *prometheus.CounterVec
	hashesComputed   *prometheus.CounterVec
	filesFailed      *prometheus.CounterVec
	recordsCommitted prometheus.Counter
	bytesPlaced      prometheus.Counter
	runDuration      *prometheus.GaugeVec
	lastRun          prometheus.Gauge
}

func NewPrometheus() *Prometheus {
	reg := prometheus.NewRegistry()
	f := promauto.With(reg)
	return &Prometheus{
		registry: reg,
		filesScanned: f.NewCounter(prometheus.CounterOpts{
			Name: "ingest_files_scanned_total",
			Help: "Candidate files found while scanning sources.",
		}),
		filesClassified: f.NewCounterVec(prometheus.CounterOpts{
			Name: "ingest_files_classified_total",
			Help: "Files classified, by duplicate status.",
		}, []string{"status"}),
		hashesComputed: f.NewCounterVec(prometheus.CounterOpts{
			Name: "ingest_hashes_computed_total",
			Help: "Hashes computed, by kind (exact, perceptual, verify).",
		}, []string{"kind"}),
		filesFailed: f.NewCounterVec(prometheus.CounterOpts{
			Name: "ingest_files_failed_total",
			Help: "Per-file failures, by pipeline stage.",
		}, []string{"stage"}),
		recordsCommitted: f.NewCounter(prometheus.CounterOpts{
			Name: "ingest_records_committed_total",
			Help: "Fingerprint records written to the store.",
		}),
		bytesPlaced: f.NewCounter(prometheus.CounterOpts{
			Name: "ingest_bytes_placed_total",
			Help: "Bytes written to archive and backup destinations.",
		}),
		runDuration: f.NewGaugeVec(prometheus.GaugeOpts{
			Name: "ingest_last_run_duration_seconds",
			Help: "Wall time of the last run, by final status.",
		}, []string{"status"}),
		lastRun: f.NewGauge(prometheus.GaugeOpts{
			Name: "ingest_last_run_timestamp_seconds",
			Help: "Unix time the last run finished.",
		}),
	}
}

func (p *Prometheus) FileScanned(n int) { p.filesScanned.Add(float64(n)) }

func (p *Prometheus) FileClassified(status ingest.DuplicateStatus) {
	p.filesClassified.WithLabelValues(string(status)).Inc()
}

func (p *Prometheus) HashComputed(kind string) { p.hashesComputed.WithLabelValues(kind).Inc() }
func (p *Prometheus) FileFailed(stage string)  { p.filesFailed.WithLabelValues(stage).Inc() }
func (p *Prometheus) RecordsCommitted(n int)   { p.recordsCommitted.Add(float64(n)) }
func (p *Prometheus) BytesPlaced(n int64)      { p.bytesPlaced.Add(float64(n)) }

// RunFinished records the duration and completion time of a run.
func (p *Prometheus) RunFinished(status string, started, finished time.Time) {
	p.runDuration.WithLabelValues(status).Set(finished.Sub(started).Seconds())
	p.lastRun.Set(float64(finished.Unix()))
}

// Registry exposes the underlying registry, mostly for tests.
func (p *Prometheus) Registry() *prometheus.Registry { return p.registry }

// WriteTextfile atomically writes all metrics to path.
func (p *Prometheus) WriteTextfile(path string) error {
	if err := prometheus.WriteToTextfile(path, p.registry); err != nil {
		return fmt.Errorf("writing metrics textfile: %w", err)
	}
	return nil
}

var _ ingest.Metrics = (*Prometheus)(nil)
