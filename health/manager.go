package health

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/saiset-co/sai-directory/types"
)

const defaultCheckTimeout = 5 * time.Second

// Manager runs the registered checkers concurrently, each bounded by the
// configured timeout, and aggregates them into a report.
type Manager struct {
	ctx     context.Context
	cancel  context.CancelFunc
	logger  types.Logger
	service types.ServiceInfo
	timeout time.Duration
	running atomic.Bool
	started atomic.Int64

	mu       sync.RWMutex
	checkers map[string]types.HealthChecker
	last     map[string]types.HealthCheck
}

func NewManager(ctx context.Context, config *types.HealthConfig, service types.ServiceInfo, logger types.Logger) *Manager {
	if service.Build == "" {
		service.Build = getBuildInfo()
	}

	m := &Manager{
		logger:   logger,
		service:  service,
		timeout:  defaultCheckTimeout,
		checkers: make(map[string]types.HealthChecker),
	}
	m.ctx, m.cancel = context.WithCancel(ctx)
	m.started.Store(time.Now().UnixNano())

	if config != nil && config.Timeout > 0 {
		m.timeout = config.Timeout
	}

	return m
}

func (m *Manager) RegisterChecker(name string, checker types.HealthChecker) {
	m.mu.Lock()
	m.checkers[name] = checker
	m.mu.Unlock()
}

func (m *Manager) Check(ctx context.Context) types.HealthReport {
	m.mu.RLock()
	checkers := make(map[string]types.HealthChecker, len(m.checkers))
	for name, checker := range m.checkers {
		checkers[name] = checker
	}
	m.mu.RUnlock()

	ctx, cancel := context.WithTimeout(ctx, m.timeout)
	defer cancel()

	var (
		g       errgroup.Group
		mu      sync.Mutex
		results = make(map[string]types.HealthCheck, len(checkers))
	)
	for name, checker := range checkers {
		g.Go(func() error {
			result := m.run(ctx, name, checker)
			mu.Lock()
			results[name] = result
			mu.Unlock()
			return nil
		})
	}
	_ = g.Wait()

	m.mu.Lock()
	m.last = results
	m.mu.Unlock()

	report := types.HealthReport{
		Service:   m.service,
		Checks:    results,
		Timestamp: time.Now(),
		Uptime:    time.Since(time.Unix(0, m.started.Load())),
	}
	report.Status, report.Summary = summarize(results)

	if !report.Healthy() {
		m.logger.Warn("Health check degraded",
			zap.String("status", string(report.Status)),
			zap.Int("unhealthy", report.Summary.Unhealthy),
			zap.Int("unknown", report.Summary.Unknown))
	}

	return report
}

// run executes one checker. A panicking or overrunning checker is reported
// unhealthy instead of failing the whole report.
func (m *Manager) run(ctx context.Context, name string, checker types.HealthChecker) types.HealthCheck {
	start := time.Now()
	done := make(chan types.HealthCheck, 1)

	go func() {
		defer func() {
			if r := recover(); r != nil {
				done <- types.HealthCheck{
					Status:  types.StatusUnhealthy,
					Message: fmt.Sprintf("Health check panicked: %v", r),
				}
			}
		}()
		done <- checker(ctx)
	}()

	var result types.HealthCheck
	select {
	case result = <-done:
		if result.Status == "" {
			result.Status = types.StatusUnknown
		}
	case <-m.ctx.Done():
		result = types.HealthCheck{Status: types.StatusUnhealthy, Message: "Health manager shutting down"}
	case <-ctx.Done():
		result = types.HealthCheck{Status: types.StatusUnhealthy, Message: "Health check timeout"}
	}

	result.Name = name
	result.LastCheck = time.Now()
	result.Duration = time.Since(start)
	return result
}

// summarize derives the overall status: any unhealthy check wins, then any
// unknown one.
func summarize(results map[string]types.HealthCheck) (types.HealthStatus, types.HealthSummary) {
	summary := types.HealthSummary{Total: len(results)}
	for _, result := range results {
		switch result.Status {
		case types.StatusHealthy:
			summary.Healthy++
		case types.StatusUnhealthy:
			summary.Unhealthy++
		default:
			summary.Unknown++
		}
	}

	switch {
	case summary.Unhealthy > 0:
		return types.StatusUnhealthy, summary
	case summary.Unknown > 0:
		return types.StatusUnknown, summary
	default:
		return types.StatusHealthy, summary
	}
}

// LastResults returns the results of the most recent Check.
func (m *Manager) LastResults() map[string]types.HealthCheck {
	m.mu.RLock()
	defer m.mu.RUnlock()

	results := make(map[string]types.HealthCheck, len(m.last))
	for name, result := range m.last {
		results[name] = result
	}
	return results
}

func (m *Manager) Start() error {
	if !m.running.CompareAndSwap(false, true) {
		return types.ErrServerAlreadyRunning
	}

	m.started.Store(time.Now().UnixNano())

	m.mu.RLock()
	count := len(m.checkers)
	m.mu.RUnlock()

	m.logger.Debug("Health manager started", zap.Int("checks", count))
	return nil
}

func (m *Manager) Stop() error {
	if !m.running.CompareAndSwap(true, false) {
		return types.ErrServerNotRunning
	}

	m.cancel()
	m.logger.Debug("Health manager stopped")
	return nil
}

func (m *Manager) IsRunning() bool {
	return m.running.Load()
}

var _ types.HealthManager = (*Manager)(nil)
