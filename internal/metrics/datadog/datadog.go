// Package datadog is a metrics.Backend that forwards to a DogStatsD agent.
// Labels become "key:value" tags, sorted so identical label sets always
// produce the same tag list.
package datadog

import (
	"fmt"
	"math"
	"sort"

	"github.com/DataDog/datadog-go/v5/statsd"

	"songlake/internal/metrics"
)

// Config holds Datadog backend configuration.
type Config struct {
	// Addr is the DogStatsD address, e.g. "127.0.0.1:8125" or "unix:///path/to/socket".
	Addr string

	// Namespace prefixes every metric name, e.g. "songlake.".
	Namespace string

	// GlobalTags are added to every metric, e.g. "env:prod".
	GlobalTags []string
}

// client is the subset of statsd.ClientInterface the backend uses.
type client interface {
	Count(name string, value int64, tags []string, rate float64) error
	Histogram(name string, value float64, tags []string, rate float64) error
	Gauge(name string, value float64, tags []string, rate float64) error
	Close() error
}

// Backend is a Datadog implementation of metrics.Backend.
type Backend struct {
	client client
}

// NewBackend connects a statsd client for cfg. Addr is required.
func NewBackend(cfg Config) (*Backend, error) {
	if cfg.Addr == "" {
		return nil, fmt.Errorf("datadog: Addr is required")
	}
	opts := []statsd.Option{statsd.WithoutTelemetry()}
	if cfg.Namespace != "" {
		opts = append(opts, statsd.WithNamespace(cfg.Namespace))
	}
	if len(cfg.GlobalTags) > 0 {
		opts = append(opts, statsd.WithTags(cfg.GlobalTags))
	}
	c, err := statsd.New(cfg.Addr, opts...)
	if err != nil {
		return nil, fmt.Errorf("datadog: create client for %s: %w", cfg.Addr, err)
	}
	return &Backend{client: c}, nil
}

// IncCounter sends a Count. DogStatsD counts are integers, so delta is rounded.
func (b *Backend) IncCounter(name string, delta float64, labels metrics.Labels) {
	_ = b.client.Count(name, int64(math.Round(delta)), labelsToTags(labels), 1)
}

// ObserveHistogram sends a Histogram, except table bytes which are a Gauge
// of the latest write.
func (b *Backend) ObserveHistogram(name string, value float64, labels metrics.Labels) {
	if name == metrics.TableBytes {
		_ = b.client.Gauge(name, value, labelsToTags(labels), 1)
		return
	}
	_ = b.client.Histogram(name, value, labelsToTags(labels), 1)
}

// Flush drains buffered metrics and closes the client. The backend is
// unusable afterwards; Flush is called once at exit.
func (b *Backend) Flush() error {
	return b.client.Close()
}

func labelsToTags(lbls metrics.Labels) []string {
	if len(lbls) == 0 {
		return nil
	}
	out := make([]string, 0, len(lbls))
	for k, v := range lbls {
		out = append(out, k+":"+v)
	}
	sort.Strings(out)
	return out
}
