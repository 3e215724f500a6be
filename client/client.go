package client

import (
	"context"
	"errors"
	"strings"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/valyala/fasthttp"
	"go.uber.org/zap"

	"github.com/saiset-co/sai-directory/types"
)

const (
	DefaultTimeout      = 10 * time.Second
	DefaultRetryBackoff = time.Second
	RequestIDHeader     = "X-Request-ID"
)

type State int32

const (
	StateRunning State = iota
	StateStopping
	StateStopped
)

type Option func(*HTTPClient)

// WithDialer replaces the network dialer, e.g. with an in-memory listener.
func WithDialer(dial fasthttp.DialFunc) Option {
	return func(c *HTTPClient) {
		c.client.Dial = dial
	}
}

func WithClock(clock types.Clock) Option {
	return func(c *HTTPClient) {
		c.clock = clock
	}
}

// HTTPClient is the outbound transport. Every request, including retries and
// cancellation, is bracketed by the tracker's Start and Stop.
type HTTPClient struct {
	ctx            context.Context
	cancel         context.CancelFunc
	logger         types.Logger
	metrics        types.MetricsManager
	tracker        types.RequestTracker
	clock          types.Clock
	name           string
	client         *fasthttp.Client
	baseURL        string
	timeout        time.Duration
	retries        int
	backoff        time.Duration
	circuitBreaker *CircuitBreaker
	state          atomic.Value
}

func NewHTTPClient(ctx context.Context, logger types.Logger, serviceName, baseURL string, config *types.ClientConfig, tracker types.RequestTracker, metrics types.MetricsManager, opts ...Option) *HTTPClient {
	if config == nil {
		config = &types.ClientConfig{}
	}

	clientCtx, cancel := context.WithCancel(ctx)

	c := &HTTPClient{
		ctx:     clientCtx,
		cancel:  cancel,
		logger:  logger,
		metrics: metrics,
		tracker: tracker,
		name:    serviceName,
		client: &fasthttp.Client{
			Name: serviceName,
		},
		baseURL: strings.TrimRight(baseURL, "/"),
		timeout: config.DefaultTimeout,
		retries: config.DefaultRetries,
		backoff: config.RetryBackoff,
	}

	if c.timeout <= 0 {
		c.timeout = DefaultTimeout
	}
	if c.backoff <= 0 {
		c.backoff = DefaultRetryBackoff
	}

	for _, opt := range opts {
		opt(c)
	}

	c.circuitBreaker = NewCircuitBreaker(config.CircuitBreaker, logger, serviceName, c.clock)
	c.state.Store(StateRunning)

	return c
}

func (c *HTTPClient) PerformRequest(ctx context.Context, method, path string, headers map[string]string) (*types.Response, error) {
	return c.Call(ctx, method, path, &types.CallOptions{Headers: headers})
}

// Call performs one logical request. Non-2xx answers are returned as a
// Response; only transport failures, timeouts and an open breaker are errors.
func (c *HTTPClient) Call(ctx context.Context, method, path string, opts *types.CallOptions) (*types.Response, error) {
	if !c.IsRunning() {
		return nil, types.ErrClientNotInitialized
	}

	if c.tracker != nil {
		c.tracker.Start()
		defer c.tracker.Stop()
	}

	start := time.Now()

	timeout := c.timeout
	retries := c.retries
	var headers map[string]string

	if opts != nil {
		headers = opts.Headers
		if opts.Timeout > 0 {
			timeout = opts.Timeout
		}
		if opts.Retry > 0 {
			retries = opts.Retry
		}
	}

	callCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	stop := context.AfterFunc(c.ctx, cancel)
	defer stop()

	requestID := uuid.New().String()
	url := c.baseURL + path

	type result struct {
		resp *types.Response
		err  error
	}

	done := make(chan result, 1)
	go func() {
		resp, err := c.executeWithRetries(callCtx, method, url, requestID, headers, retries)
		done <- result{resp: resp, err: err}
	}()

	var res result
	select {
	case res = <-done:
		if res.err != nil && callCtx.Err() != nil {
			res.err = c.contextError(ctx, callCtx)
		}
	case <-callCtx.Done():
		res.err = c.contextError(ctx, callCtx)
	}

	c.recordMetrics(method, res.resp, res.err, time.Since(start))

	if res.err != nil {
		c.logger.Debug("Outbound request failed",
			zap.String("service", c.name),
			zap.String("method", method),
			zap.String("path", path),
			zap.String("request_id", requestID),
			zap.Error(res.err))
		return nil, res.err
	}

	c.logger.Debug("Outbound request completed",
		zap.String("service", c.name),
		zap.String("method", method),
		zap.String("path", path),
		zap.String("request_id", requestID),
		zap.Int("status_code", res.resp.StatusCode),
		zap.Duration("duration", time.Since(start)))

	return res.resp, nil
}

func (c *HTTPClient) contextError(parent, callCtx context.Context) error {
	switch {
	case c.ctx.Err() != nil:
		return types.Errorf(types.ErrClientNotInitialized, "client %s shutting down", c.name)
	case errors.Is(parent.Err(), context.Canceled):
		return types.Errorf(types.ErrContextCancelled, "call to %s", c.name)
	case errors.Is(callCtx.Err(), context.DeadlineExceeded):
		return types.Errorf(types.ErrClientTimeout, "call to %s", c.name)
	default:
		return types.Errorf(types.ErrContextCancelled, "call to %s: %v", c.name, callCtx.Err())
	}
}

func (c *HTTPClient) executeWithRetries(ctx context.Context, method, url, requestID string, headers map[string]string, maxRetries int) (*types.Response, error) {
	req := fasthttp.AcquireRequest()
	resp := fasthttp.AcquireResponse()
	defer fasthttp.ReleaseRequest(req)
	defer fasthttp.ReleaseResponse(resp)

	req.SetRequestURI(url)
	req.Header.SetMethod(method)
	req.Header.Set(RequestIDHeader, requestID)
	req.Header.Set(fasthttp.HeaderAccept, "application/json")
	for key, value := range headers {
		req.Header.Set(key, value)
	}

	var lastErr error
	var lastResp *types.Response

	for attempt := 0; attempt <= maxRetries; attempt++ {
		if !c.circuitBreaker.CanExecute() {
			return nil, types.Errorf(types.ErrCircuitBreakerOpen, "service %s", c.name)
		}

		resp.Reset()
		err := c.doAttempt(ctx, req, resp)
		statusCode := resp.StatusCode()
		if err != nil {
			statusCode = 0
		}

		if IsSuccessfulResponse(statusCode, err) {
			c.circuitBreaker.RecordSuccess()
		} else if IsCircuitBreakerFailure(statusCode, err) {
			c.circuitBreaker.RecordFailure()
		}

		if err == nil {
			lastResp = copyResponse(resp)
			lastErr = nil
		} else {
			lastResp = nil
			lastErr = err
		}

		if !IsRetryableError(statusCode, err) || attempt == maxRetries {
			break
		}

		backoff := time.Duration(attempt+1) * c.backoff
		c.logger.Debug("Retrying request",
			zap.String("service", c.name),
			zap.Int("attempt", attempt+1),
			zap.Int("status_code", statusCode),
			zap.Duration("backoff", backoff),
			zap.Error(err))

		timer := time.NewTimer(backoff)
		select {
		case <-timer.C:
		case <-ctx.Done():
			timer.Stop()
			return nil, ctx.Err()
		}
	}

	if lastErr != nil {
		return nil, types.Errorf(types.ErrClientRequestFailed, "all %d attempts failed for service %s: %v", maxRetries+1, c.name, lastErr)
	}

	return lastResp, nil
}

func (c *HTTPClient) doAttempt(ctx context.Context, req *fasthttp.Request, resp *fasthttp.Response) error {
	deadline, ok := ctx.Deadline()
	if !ok {
		return c.client.Do(req, resp)
	}

	if err := ctx.Err(); err != nil {
		return err
	}

	return c.client.DoDeadline(req, resp, deadline)
}

func copyResponse(resp *fasthttp.Response) *types.Response {
	body := make([]byte, len(resp.Body()))
	copy(body, resp.Body())

	headers := make(map[string]string)
	resp.Header.VisitAll(func(key, value []byte) {
		headers[string(key)] = string(value)
	})

	return &types.Response{
		StatusCode: resp.StatusCode(),
		Headers:    headers,
		Body:       body,
	}
}

func (c *HTTPClient) BaseURL() string {
	return c.baseURL
}

func (c *HTTPClient) CircuitBreaker() *CircuitBreaker {
	return c.circuitBreaker
}

func (c *HTTPClient) Close() {
	if !c.transitionClientState(StateRunning, StateStopping) {
		return
	}

	c.cancel()
	c.client.CloseIdleConnections()
	c.setClientState(StateStopped)

	c.logger.Debug("HTTP client closed", zap.String("service", c.name))
}

func (c *HTTPClient) IsRunning() bool {
	return c.getClientState() == StateRunning
}

func (c *HTTPClient) getClientState() State {
	return c.state.Load().(State)
}

func (c *HTTPClient) setClientState(newState State) {
	c.state.Store(newState)
}

func (c *HTTPClient) transitionClientState(from, to State) bool {
	return c.state.CompareAndSwap(from, to)
}

var _ types.Transport = (*HTTPClient)(nil)
