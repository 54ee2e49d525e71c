// Package metrics records run metrics for songlake behind a small pluggable
// Backend. The global backend is a no-op until SetBackend installs a real
// one, so every Record* call is safe without configuration.
//
// Metric names:
//
//	etl_step_total{job,step,status}          one per stage or table write
//	etl_step_duration_seconds{job,step,status}
//	etl_records_total{job,kind}              read, filtered, schema_rejected, join_dropped, written, loaded
//	etl_table_rows_total{job,table}
//	etl_table_bytes{job,table}
//	etl_batches_total{job}                   warehouse batches flushed
//
// Concrete systems live in subpackages (prompush, datadog).
package metrics

import (
	"sync"
	"time"
)

// Labels are string key/value pairs attached to a metric.
type Labels map[string]string

// Backend receives counter increments and histogram observations.
type Backend interface {
	IncCounter(name string, delta float64, labels Labels)
	ObserveHistogram(name string, value float64, labels Labels)
	// Flush pushes or flushes buffered metrics. Called once at exit.
	Flush() error
}

// Metric names.
const (
	StepTotal    = "etl_step_total"
	StepDuration = "etl_step_duration_seconds"
	RecordsTotal = "etl_records_total"
	TableRows    = "etl_table_rows_total"
	TableBytes   = "etl_table_bytes"
	BatchesTotal = "etl_batches_total"
)

type nopBackend struct{}

func (nopBackend) IncCounter(string, float64, Labels)       {}
func (nopBackend) ObserveHistogram(string, float64, Labels) {}
func (nopBackend) Flush() error                             { return nil }

var (
	mu      sync.RWMutex
	backend Backend = nopBackend{}
)

func current() Backend {
	mu.RLock()
	defer mu.RUnlock()
	return backend
}

// SetBackend installs b as the global backend. nil restores the no-op.
func SetBackend(b Backend) {
	mu.Lock()
	defer mu.Unlock()
	if b == nil {
		b = nopBackend{}
	}
	backend = b
}

// Flush delegates to the current backend.
func Flush() error { return current().Flush() }

// RecordStep counts one stage run and observes its duration, labelled with
// status success or failure.
func RecordStep(job, step string, err error, d time.Duration) {
	status := "success"
	if err != nil {
		status = "failure"
	}
	lbls := Labels{"job": job, "step": step, "status": status}
	b := current()
	b.IncCounter(StepTotal, 1, lbls)
	b.ObserveHistogram(StepDuration, d.Seconds(), lbls)
}

// RecordRow adds delta records of kind. Non-positive deltas are ignored so
// callers can pass differences unconditionally.
func RecordRow(job, kind string, delta int64) {
	if delta <= 0 {
		return
	}
	current().IncCounter(RecordsTotal, float64(delta), Labels{"job": job, "kind": kind})
}

// RecordTable counts the rows and observes the bytes written for one table.
func RecordTable(job, table string, rows int, bytes int64) {
	lbls := Labels{"job": job, "table": table}
	b := current()
	if rows > 0 {
		b.IncCounter(TableRows, float64(rows), lbls)
	}
	b.ObserveHistogram(TableBytes, float64(bytes), lbls)
}

// RecordBatches adds delta flushed warehouse batches.
func RecordBatches(job string, delta int64) {
	if delta <= 0 {
		return
	}
	current().IncCounter(BatchesTotal, float64(delta), Labels{"job": job})
}
