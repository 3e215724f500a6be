package client

import (
	"errors"
	"strconv"
	"time"

	"github.com/saiset-co/sai-directory/types"
)

var durationBuckets = []float64{0.01, 0.05, 0.1, 0.25, 0.5, 1.0, 2.5, 5.0, 10.0}

func (c *HTTPClient) recordMetrics(method string, resp *types.Response, err error, duration time.Duration) {
	if c.metrics == nil {
		return
	}

	status := "error"
	switch {
	case errors.Is(err, types.ErrCircuitBreakerOpen):
		status = "circuit_open"
	case errors.Is(err, types.ErrClientTimeout):
		status = "timeout"
	case errors.Is(err, types.ErrContextCancelled):
		status = "canceled"
	case err == nil && resp != nil:
		status = strconv.Itoa(resp.StatusCode)
	}

	c.metrics.Counter("http_client_requests_total", map[string]string{
		"service": c.name,
		"method":  method,
		"status":  status,
	}).Inc()

	c.metrics.Histogram("http_client_request_duration_seconds", durationBuckets, map[string]string{
		"service": c.name,
		"method":  method,
	}).Observe(duration.Seconds())

	c.updateCircuitBreakerMetrics()
}

func (c *HTTPClient) updateCircuitBreakerMetrics() {
	current := c.circuitBreaker.State()
	if current == StateBreakerDisabled {
		return
	}

	for _, state := range []CircuitBreakerState{StateBreakerClosed, StateBreakerOpen, StateBreakerHalfOpen} {
		value := 0.0
		if state == current {
			value = 1
		}
		c.metrics.Gauge("http_client_circuit_breaker_status", map[string]string{
			"service": c.name,
			"state":   state.String(),
		}).Set(value)
	}
}
