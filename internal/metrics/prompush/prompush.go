// Package prompush is a metrics.Backend that collects into a private
// Prometheus registry and pushes it to a Pushgateway on Flush.
//
// A songlake run is a batch job with no scrape window, so the registry is
// pushed once at exit under the job grouping key. The job label of incoming
// metrics is dropped; the grouping key carries it.
package prompush

import (
	"fmt"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/push"

	"songlake/internal/metrics"
)

// stepBuckets spans sub-second table writes to multi-minute S3 reads.
var stepBuckets = []float64{0.05, 0.25, 1, 5, 15, 60, 180, 600}

// Backend is a Prometheus Pushgateway metrics backend.
type Backend struct {
	gatewayURL string
	jobName    string
	reg        *prometheus.Registry
	pusher     *push.Pusher

	steps       *prometheus.CounterVec   // step, status
	stepSeconds *prometheus.HistogramVec // step, status
	records     *prometheus.CounterVec   // kind
	batches     prometheus.Counter
	tableRows   *prometheus.CounterVec // table
	tableBytes  *prometheus.GaugeVec   // table
}

// NewBackend builds a backend pushing to gatewayURL under jobName. An empty
// jobName becomes "songlake".
func NewBackend(jobName, gatewayURL string) (*Backend, error) {
	if gatewayURL == "" {
		return nil, fmt.Errorf("prompush: gateway URL is required")
	}
	if jobName == "" {
		jobName = "songlake"
	}

	b := &Backend{
		gatewayURL: gatewayURL,
		jobName:    jobName,
		reg:        prometheus.NewRegistry(),
		steps: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: metrics.StepTotal,
			Help: "Stage and table-write executions by step and status.",
		}, []string{"step", "status"}),
		stepSeconds: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    metrics.StepDuration,
			Help:    "Stage and table-write duration in seconds.",
			Buckets: stepBuckets,
		}, []string{"step", "status"}),
		records: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: metrics.RecordsTotal,
			Help: "Records by kind: read, filtered, schema_rejected, join_dropped, written, loaded.",
		}, []string{"kind"}),
		batches: prometheus.NewCounter(prometheus.CounterOpts{
			Name: metrics.BatchesTotal,
			Help: "Warehouse batches flushed.",
		}),
		tableRows: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: metrics.TableRows,
			Help: "Rows written per output table.",
		}, []string{"table"}),
		tableBytes: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Name: metrics.TableBytes,
			Help: "Parquet bytes written by the last write of each output table.",
		}, []string{"table"}),
	}
	for _, c := range []prometheus.Collector{b.steps, b.stepSeconds, b.records, b.batches, b.tableRows, b.tableBytes} {
		if err := b.reg.Register(c); err != nil {
			return nil, fmt.Errorf("prompush: register collector: %w", err)
		}
	}
	b.pusher = push.New(gatewayURL, jobName).Gatherer(b.reg)
	return b, nil
}

// IncCounter implements metrics.Backend. Unknown names are ignored.
func (b *Backend) IncCounter(name string, delta float64, labels metrics.Labels) {
	switch name {
	case metrics.StepTotal:
		b.steps.WithLabelValues(labels["step"], labels["status"]).Add(delta)
	case metrics.RecordsTotal:
		b.records.WithLabelValues(labels["kind"]).Add(delta)
	case metrics.BatchesTotal:
		b.batches.Add(delta)
	case metrics.TableRows:
		b.tableRows.WithLabelValues(labels["table"]).Add(delta)
	}
}

// ObserveHistogram implements metrics.Backend. Table bytes are kept as a
// gauge of the latest write.
func (b *Backend) ObserveHistogram(name string, value float64, labels metrics.Labels) {
	switch name {
	case metrics.StepDuration:
		b.stepSeconds.WithLabelValues(labels["step"], labels["status"]).Observe(value)
	case metrics.TableBytes:
		b.tableBytes.WithLabelValues(labels["table"]).Set(value)
	}
}

// Flush replaces the job's metric group on the Pushgateway.
func (b *Backend) Flush() error {
	if err := b.pusher.Push(); err != nil {
		return fmt.Errorf("prompush: push to %s: %w", b.gatewayURL, err)
	}
	return nil
}
