package ingest

// Metrics receives pipeline counters.
type Metrics interface {
	FileScanned(n int)
	FileClassified(status DuplicateStatus)
	HashComputed(kind string)
	FileFailed(stage string)
	RecordsCommitted(n int)
	BytesPlaced(n int64)
}

// NopMetrics discards all observations.
type NopMetrics struct{}

func (NopMetrics) FileScanned(int)                {}
func (NopMetrics) FileClassified(DuplicateStatus) {}
func (NopMetrics) HashComputed(string)            {}
func (NopMetrics) FileFailed(string)              {}
func (NopMetrics) RecordsCommitted(int)           {}
func (NopMetrics) BytesPlaced(int64)              {}
