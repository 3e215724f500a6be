package types

import (
	"time"
)

// MetricsManager hands out instruments keyed by name and label set. Asking
// twice for the same name and labels returns the same underlying series.
type MetricsManager interface {
	LifecycleManager
	Counter(name string, labels map[string]string) Counter
	Gauge(name string, labels map[string]string) Gauge
	Histogram(name string, buckets []float64, labels map[string]string) Histogram
	GetMetrics() ([]byte, error)
}

type MetricsManagerCreator func(config *MetricsConfig) (MetricsManager, error)

type Counter interface {
	Inc()
	Add(delta float64)
	Value() float64
}

type Gauge interface {
	Set(value float64)
	Add(delta float64)
	Value() float64
}

type Histogram interface {
	Observe(value float64)
	ObserveDuration(start time.Time)
	Count() uint64
	Sum() float64
}

// MetricValue is one sample in the GetMetrics JSON document.
type MetricValue struct {
	Name      string            `json:"name"`
	Type      string            `json:"type"`
	Help      string            `json:"help,omitempty"`
	Labels    map[string]string `json:"labels,omitempty"`
	Value     float64           `json:"value"`
	Timestamp time.Time         `json:"timestamp"`
}
