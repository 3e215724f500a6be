package metrics

import (
	"sync"
	"sync/atomic"
	"time"

	"go.uber.org/zap"

	"github.com/saiset-co/sai-directory/types"
)

// Manager fronts the configured metrics backend. While stopped, or when
// metrics are disabled, it hands out no-op instruments so callers never
// need a nil check.
type Manager struct {
	logger  types.Logger
	backend types.MetricsManager
	running atomic.Bool
}

var (
	creatorsMu sync.RWMutex
	creators   = make(map[string]types.MetricsManagerCreator)
)

// RegisterMetricsManager makes a backend selectable through metrics.type.
func RegisterMetricsManager(name string, creator types.MetricsManagerCreator) {
	creatorsMu.Lock()
	creators[name] = creator
	creatorsMu.Unlock()
}

func NewManager(config *types.MetricsConfig, logger types.Logger) (*Manager, error) {
	m := &Manager{logger: logger}

	if config == nil || !config.Enabled || config.Type == "none" {
		logger.Debug("Metrics disabled, using no-op instruments")
		return m, nil
	}

	backend, err := newBackend(config, logger)
	if err != nil {
		return nil, types.WrapError(err, "failed to initialize metrics manager")
	}

	m.backend = backend
	logger.Info("Metrics manager initialized", zap.String("type", config.Type))
	return m, nil
}

func newBackend(config *types.MetricsConfig, logger types.Logger) (types.MetricsManager, error) {
	if config.Type == "prometheus" {
		return NewPrometheusMetrics(logger, config)
	}

	creatorsMu.RLock()
	creator, ok := creators[config.Type]
	creatorsMu.RUnlock()

	if !ok {
		return nil, types.Errorf(types.ErrMetricsTypeUnknown, "type: %s", config.Type)
	}
	return creator(config)
}

func (m *Manager) Start() error {
	if !m.running.CompareAndSwap(false, true) {
		return types.ErrServerAlreadyRunning
	}

	if m.backend != nil {
		if err := m.backend.Start(); err != nil {
			m.running.Store(false)
			return types.WrapError(err, "failed to start metrics manager")
		}
	}

	m.logger.Debug("Metrics manager started", zap.Bool("enabled", m.Enabled()))
	return nil
}

func (m *Manager) Stop() error {
	if !m.running.CompareAndSwap(true, false) {
		return types.ErrServerNotRunning
	}

	if m.backend != nil {
		if err := m.backend.Stop(); err != nil {
			m.logger.Error("Error during metrics manager shutdown", zap.Error(err))
			return err
		}
	}

	m.logger.Debug("Metrics manager stopped")
	return nil
}

func (m *Manager) IsRunning() bool {
	return m.running.Load()
}

// Enabled reports whether a real backend is configured.
func (m *Manager) Enabled() bool {
	return m.backend != nil
}

func (m *Manager) active() bool {
	return m.backend != nil && m.running.Load()
}

func (m *Manager) Counter(name string, labels map[string]string) types.Counter {
	if !m.active() {
		return &emptyCounter{}
	}
	return m.backend.Counter(name, labels)
}

func (m *Manager) Gauge(name string, labels map[string]string) types.Gauge {
	if !m.active() {
		return &emptyGauge{}
	}
	return m.backend.Gauge(name, labels)
}

func (m *Manager) Histogram(name string, buckets []float64, labels map[string]string) types.Histogram {
	if !m.active() {
		return &emptyHistogram{}
	}
	return m.backend.Histogram(name, buckets, labels)
}

func (m *Manager) GetMetrics() ([]byte, error) {
	if !m.active() {
		return nil, types.ErrMetricsNotRunning
	}
	return m.backend.GetMetrics()
}

type emptyCounter struct{}

func (*emptyCounter) Inc()           {}
func (*emptyCounter) Add(float64)    {}
func (*emptyCounter) Value() float64 { return 0 }

type emptyGauge struct{}

func (*emptyGauge) Set(float64)    {}
func (*emptyGauge) Add(float64)    {}
func (*emptyGauge) Value() float64 { return 0 }

type emptyHistogram struct{}

func (*emptyHistogram) Observe(float64)           {}
func (*emptyHistogram) ObserveDuration(time.Time) {}
func (*emptyHistogram) Count() uint64             { return 0 }
func (*emptyHistogram) Sum() float64              { return 0 }

var _ types.MetricsManager = (*Manager)(nil)
