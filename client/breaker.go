package client

import (
	"context"
	"errors"
	"net"
	"sync"
	"syscall"
	"time"

	"github.com/valyala/fasthttp"
	"go.uber.org/zap"

	"github.com/saiset-co/sai-directory/types"
	"github.com/saiset-co/sai-directory/utils"
)

const (
	defaultFailureThreshold = 5
	defaultRecoveryTimeout  = 30 * time.Second
)

type CircuitBreakerState int32

const (
	StateBreakerClosed CircuitBreakerState = iota
	StateBreakerOpen
	StateBreakerHalfOpen
	StateBreakerDisabled
)

func (s CircuitBreakerState) String() string {
	switch s {
	case StateBreakerClosed:
		return "closed"
	case StateBreakerOpen:
		return "open"
	case StateBreakerHalfOpen:
		return "half-open"
	case StateBreakerDisabled:
		return "disabled"
	default:
		return "unknown"
	}
}

// CircuitBreaker stops outbound calls after FailureThreshold consecutive
// failures, then lets traffic probe again once RecoveryTimeout has passed.
type CircuitBreaker struct {
	config      types.CircuitBreakerConfig
	logger      types.Logger
	clock       types.Clock
	serviceName string

	mu        sync.Mutex
	state     CircuitBreakerState
	failures  int
	successes int
	lastFail  time.Time
}

func NewCircuitBreaker(config *types.CircuitBreakerConfig, logger types.Logger, serviceName string, clock types.Clock) *CircuitBreaker {
	if clock == nil {
		clock = utils.RealClock()
	}

	cb := &CircuitBreaker{
		logger:      logger,
		clock:       clock,
		serviceName: serviceName,
		state:       StateBreakerDisabled,
	}

	if config == nil || !config.Enabled {
		return cb
	}

	cb.config = *config
	if cb.config.FailureThreshold <= 0 {
		cb.config.FailureThreshold = defaultFailureThreshold
	}
	if cb.config.RecoveryTimeout <= 0 {
		cb.config.RecoveryTimeout = defaultRecoveryTimeout
	}
	if cb.config.HalfOpenRequests <= 0 {
		cb.config.HalfOpenRequests = 1
	}
	cb.state = StateBreakerClosed

	return cb
}

func (cb *CircuitBreaker) CanExecute() bool {
	cb.mu.Lock()
	defer cb.mu.Unlock()

	switch cb.state {
	case StateBreakerOpen:
		if cb.clock.Now().Sub(cb.lastFail) >= cb.config.RecoveryTimeout {
			cb.transitionToHalfOpenUnsafe()
			return true
		}
		return false
	default:
		return true
	}
}

func (cb *CircuitBreaker) RecordSuccess() {
	cb.mu.Lock()
	defer cb.mu.Unlock()

	switch cb.state {
	case StateBreakerClosed:
		cb.failures = 0
	case StateBreakerHalfOpen:
		cb.successes++
		cb.logger.Debug("Success recorded in half-open state",
			zap.String("service", cb.serviceName),
			zap.Int("successes", cb.successes),
			zap.Int("required", cb.config.HalfOpenRequests))

		if cb.successes >= cb.config.HalfOpenRequests {
			cb.transitionToClosedUnsafe()
		}
	}
}

func (cb *CircuitBreaker) RecordFailure() {
	cb.mu.Lock()
	defer cb.mu.Unlock()

	if cb.state == StateBreakerDisabled {
		return
	}

	cb.lastFail = cb.clock.Now()

	switch cb.state {
	case StateBreakerClosed:
		cb.failures++
		cb.logger.Debug("Failure recorded in closed state",
			zap.String("service", cb.serviceName),
			zap.Int("failures", cb.failures),
			zap.Int("threshold", cb.config.FailureThreshold))

		if cb.failures >= cb.config.FailureThreshold {
			cb.transitionToOpenUnsafe()
		}
	case StateBreakerHalfOpen:
		cb.transitionToOpenUnsafe()
	}
}

func (cb *CircuitBreaker) State() CircuitBreakerState {
	cb.mu.Lock()
	defer cb.mu.Unlock()
	return cb.state
}

func (cb *CircuitBreaker) Failures() int {
	cb.mu.Lock()
	defer cb.mu.Unlock()
	return cb.failures
}

func (cb *CircuitBreaker) Reset() {
	cb.mu.Lock()
	defer cb.mu.Unlock()

	if cb.state == StateBreakerDisabled {
		return
	}

	oldState := cb.state
	cb.transitionToClosedUnsafe()

	cb.logger.Info("Circuit breaker manually reset",
		zap.String("service", cb.serviceName),
		zap.String("old_state", oldState.String()))
}

func (cb *CircuitBreaker) transitionToClosedUnsafe() {
	cb.state = StateBreakerClosed
	cb.failures = 0
	cb.successes = 0
	cb.lastFail = time.Time{}
	cb.logger.Info("Circuit breaker closed", zap.String("service", cb.serviceName))
}

func (cb *CircuitBreaker) transitionToOpenUnsafe() {
	cb.state = StateBreakerOpen
	cb.successes = 0
	cb.logger.Warn("Circuit breaker opened",
		zap.String("service", cb.serviceName),
		zap.Int("failures", cb.failures),
		zap.Int("threshold", cb.config.FailureThreshold))
}

func (cb *CircuitBreaker) transitionToHalfOpenUnsafe() {
	cb.state = StateBreakerHalfOpen
	cb.successes = 0
	cb.logger.Info("Circuit breaker transitioned to half-open", zap.String("service", cb.serviceName))
}

func IsCircuitBreakerFailure(statusCode int, err error) bool {
	if err != nil {
		return !isContextError(err)
	}

	switch {
	case statusCode == fasthttp.StatusTooManyRequests:
		return true
	case statusCode == fasthttp.StatusRequestTimeout:
		return true
	case statusCode >= 500:
		return true
	default:
		return false
	}
}

func IsRetryableError(statusCode int, err error) bool {
	if err != nil {
		if isContextError(err) {
			return false
		}
		return isNetworkError(err) || isTemporaryError(err)
	}

	switch {
	case statusCode == fasthttp.StatusTooManyRequests:
		return true
	case statusCode == fasthttp.StatusRequestTimeout:
		return true
	case statusCode >= 500:
		return true
	default:
		return false
	}
}

// IsSuccessfulResponse reports whether the remote side answered in a way that
// counts as healthy for the breaker. Plain 4xx answers are the caller's fault.
func IsSuccessfulResponse(statusCode int, err error) bool {
	if err != nil {
		return false
	}

	switch {
	case statusCode >= 200 && statusCode < 300:
		return true
	case statusCode >= 400 && statusCode < 500:
		return statusCode != fasthttp.StatusTooManyRequests && statusCode != fasthttp.StatusRequestTimeout
	default:
		return false
	}
}

func isContextError(err error) bool {
	return errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded)
}

func isNetworkError(err error) bool {
	if err == nil {
		return false
	}

	if errors.Is(err, fasthttp.ErrTimeout) ||
		errors.Is(err, fasthttp.ErrConnectionClosed) ||
		errors.Is(err, fasthttp.ErrDialTimeout) ||
		errors.Is(err, fasthttp.ErrNoFreeConns) {
		return true
	}

	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return true
	}

	var dnsErr *net.DNSError
	if errors.As(err, &dnsErr) {
		return dnsErr.Timeout() || dnsErr.IsTemporary
	}

	var opErr *net.OpError
	if errors.As(err, &opErr) {
		return true
	}

	var syscallErr syscall.Errno
	if errors.As(err, &syscallErr) {
		switch syscallErr {
		case syscall.ECONNREFUSED, syscall.ECONNRESET, syscall.ECONNABORTED,
			syscall.EHOSTUNREACH, syscall.ENETUNREACH, syscall.ETIMEDOUT:
			return true
		}
	}

	return false
}

func isTemporaryError(err error) bool {
	type timeout interface {
		Timeout() bool
	}

	var to timeout
	if errors.As(err, &to) {
		return to.Timeout()
	}

	return false
}
