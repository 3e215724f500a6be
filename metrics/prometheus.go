package metrics

import (
	"sort"
	"sync"
	"sync/atomic"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	dto "github.com/prometheus/client_model/go"
	"go.uber.org/zap"

	"github.com/saiset-co/sai-directory/types"
	"github.com/saiset-co/sai-directory/utils"
)

type PrometheusConfig struct {
	Namespace       string            `yaml:"namespace" json:"namespace"`
	Subsystem       string            `yaml:"subsystem" json:"subsystem"`
	Labels          map[string]string `yaml:"labels" json:"labels"`
	EnableGoMetrics bool              `yaml:"enable_go_metrics" json:"enable_go_metrics"`
}

// PrometheusMetrics keeps one vector per metric name in a private registry.
// The label names of a vector are fixed by the first request for it.
type PrometheusMetrics struct {
	logger   types.Logger
	config   *PrometheusConfig
	registry *prometheus.Registry
	running  atomic.Bool

	mu         sync.Mutex
	counters   map[string]*prometheus.CounterVec
	gauges     map[string]*prometheus.GaugeVec
	histograms map[string]*prometheus.HistogramVec
}

func NewPrometheusMetrics(logger types.Logger, config *types.MetricsConfig) (*PrometheusMetrics, error) {
	promConfig := &PrometheusConfig{Namespace: "sai_directory"}

	if config.Config != nil {
		if err := utils.UnmarshalConfig(config.Config, promConfig); err != nil {
			return nil, types.WrapError(err, "failed to unmarshal prometheus config")
		}
	}

	constLabels := make(map[string]string, len(promConfig.Labels)+len(config.Labels))
	for _, source := range []map[string]string{promConfig.Labels, config.Labels} {
		for name, value := range source {
			constLabels[name] = value
		}
	}
	promConfig.Labels = constLabels

	p := &PrometheusMetrics{
		logger:     logger,
		config:     promConfig,
		registry:   prometheus.NewRegistry(),
		counters:   make(map[string]*prometheus.CounterVec),
		gauges:     make(map[string]*prometheus.GaugeVec),
		histograms: make(map[string]*prometheus.HistogramVec),
	}

	if promConfig.EnableGoMetrics {
		p.registry.MustRegister(
			collectors.NewGoCollector(),
			collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
		)
	}

	logger.Debug("Prometheus metrics initialized",
		zap.String("namespace", promConfig.Namespace),
		zap.String("subsystem", promConfig.Subsystem),
		zap.Bool("go_metrics", promConfig.EnableGoMetrics))

	return p, nil
}

func (p *PrometheusMetrics) Start() error {
	if !p.running.CompareAndSwap(false, true) {
		return types.ErrServerAlreadyRunning
	}
	return nil
}

func (p *PrometheusMetrics) Stop() error {
	if !p.running.CompareAndSwap(true, false) {
		return types.ErrServerNotRunning
	}
	return nil
}

func (p *PrometheusMetrics) IsRunning() bool {
	return p.running.Load()
}

// Registry exposes the underlying registry, e.g. for promhttp.
func (p *PrometheusMetrics) Registry() *prometheus.Registry {
	return p.registry
}

func (p *PrometheusMetrics) Counter(name string, labels map[string]string) types.Counter {
	vec := vector(p, p.counters, name, func() *prometheus.CounterVec {
		return prometheus.NewCounterVec(prometheus.CounterOpts(p.opts(name, "counter")), labelNames(labels))
	})

	child, err := vec.GetMetricWith(labels)
	if err != nil {
		p.logger.Error("Counter labels do not match", zap.String("name", name), zap.Error(err))
		return &emptyCounter{}
	}
	return &promCounter{counter: child}
}

func (p *PrometheusMetrics) Gauge(name string, labels map[string]string) types.Gauge {
	vec := vector(p, p.gauges, name, func() *prometheus.GaugeVec {
		return prometheus.NewGaugeVec(prometheus.GaugeOpts(p.opts(name, "gauge")), labelNames(labels))
	})

	child, err := vec.GetMetricWith(labels)
	if err != nil {
		p.logger.Error("Gauge labels do not match", zap.String("name", name), zap.Error(err))
		return &emptyGauge{}
	}
	return &promGauge{gauge: child}
}

func (p *PrometheusMetrics) Histogram(name string, buckets []float64, labels map[string]string) types.Histogram {
	if len(buckets) == 0 {
		buckets = prometheus.DefBuckets
	}

	vec := vector(p, p.histograms, name, func() *prometheus.HistogramVec {
		opts := p.opts(name, "histogram")
		return prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace:   opts.Namespace,
			Subsystem:   opts.Subsystem,
			Name:        opts.Name,
			Help:        opts.Help,
			ConstLabels: opts.ConstLabels,
			Buckets:     buckets,
		}, labelNames(labels))
	})

	child, err := vec.GetMetricWith(labels)
	if err != nil {
		p.logger.Error("Histogram labels do not match", zap.String("name", name), zap.Error(err))
		return &emptyHistogram{}
	}
	return &promHistogram{observer: child}
}

// vector returns the registered vector for name, building and registering it
// on first use.
func vector[V prometheus.Collector](p *PrometheusMetrics, vecs map[string]V, name string, build func() V) V {
	p.mu.Lock()
	defer p.mu.Unlock()

	if vec, ok := vecs[name]; ok {
		return vec
	}

	vec := build()
	p.registry.MustRegister(vec)
	vecs[name] = vec

	p.logger.Debug("Prometheus collector registered", zap.String("name", name))
	return vec
}

func (p *PrometheusMetrics) opts(name, kind string) prometheus.Opts {
	return prometheus.Opts{
		Namespace:   p.config.Namespace,
		Subsystem:   p.config.Subsystem,
		Name:        name,
		Help:        name + " " + kind,
		ConstLabels: p.config.Labels,
	}
}

// GetMetrics flattens the registry into a JSON array of MetricValue.
// Histograms report their sample sum.
func (p *PrometheusMetrics) GetMetrics() ([]byte, error) {
	families, err := p.registry.Gather()
	if err != nil {
		p.logger.Error("Failed to gather prometheus metrics", zap.Error(err))
		return nil, err
	}

	now := time.Now()
	values := make([]types.MetricValue, 0, len(families))
	for _, family := range families {
		for _, m := range family.GetMetric() {
			values = append(values, types.MetricValue{
				Name:      family.GetName(),
				Type:      family.GetType().String(),
				Help:      family.GetHelp(),
				Labels:    labelMap(m.GetLabel()),
				Value:     sampleValue(m),
				Timestamp: now,
			})
		}
	}

	return utils.Marshal(values)
}

func sampleValue(m *dto.Metric) float64 {
	switch {
	case m.Counter != nil:
		return m.GetCounter().GetValue()
	case m.Gauge != nil:
		return m.GetGauge().GetValue()
	case m.Histogram != nil:
		return m.GetHistogram().GetSampleSum()
	default:
		return m.GetUntyped().GetValue()
	}
}

func labelMap(pairs []*dto.LabelPair) map[string]string {
	if len(pairs) == 0 {
		return nil
	}
	labels := make(map[string]string, len(pairs))
	for _, pair := range pairs {
		labels[pair.GetName()] = pair.GetValue()
	}
	return labels
}

func labelNames(labels map[string]string) []string {
	names := make([]string, 0, len(labels))
	for name := range labels {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// read writes the current state of a single series into a dto.Metric.
func read(metric prometheus.Metric) *dto.Metric {
	out := &dto.Metric{}
	if err := metric.Write(out); err != nil {
		return &dto.Metric{}
	}
	return out
}

type promCounter struct {
	counter prometheus.Counter
}

func (c *promCounter) Inc()              { c.counter.Inc() }
func (c *promCounter) Add(delta float64) { c.counter.Add(delta) }
func (c *promCounter) Value() float64    { return read(c.counter).GetCounter().GetValue() }

type promGauge struct {
	gauge prometheus.Gauge
}

func (g *promGauge) Set(value float64) { g.gauge.Set(value) }
func (g *promGauge) Add(delta float64) { g.gauge.Add(delta) }
func (g *promGauge) Value() float64    { return read(g.gauge).GetGauge().GetValue() }

type promHistogram struct {
	observer prometheus.Observer
}

func (h *promHistogram) Observe(value float64) {
	h.observer.Observe(value)
}

func (h *promHistogram) ObserveDuration(start time.Time) {
	h.observer.Observe(time.Since(start).Seconds())
}

func (h *promHistogram) Count() uint64 {
	return h.snapshot().GetSampleCount()
}

func (h *promHistogram) Sum() float64 {
	return h.snapshot().GetSampleSum()
}

func (h *promHistogram) snapshot() *dto.Histogram {
	metric, ok := h.observer.(prometheus.Metric)
	if !ok {
		return nil
	}
	return read(metric).GetHistogram()
}

var _ types.MetricsManager = (*PrometheusMetrics)(nil)
