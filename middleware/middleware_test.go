package middleware

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/valyala/fasthttp"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"

	"github.com/saiset-co/sai-directory/logger"
	"github.com/saiset-co/sai-directory/metrics"
	"github.com/saiset-co/sai-directory/types"
	"github.com/saiset-co/sai-directory/utils"
)

func newTestMetrics(t *testing.T) *metrics.Manager {
	t.Helper()

	m, err := metrics.NewManager(&types.MetricsConfig{Enabled: true, Type: "prometheus"}, logger.NewNop())
	require.NoError(t, err)
	require.NoError(t, m.Start())
	t.Cleanup(func() { _ = m.Stop() })
	return m
}

func newRequestCtx(method, uri string) *fasthttp.RequestCtx {
	var req fasthttp.Request
	req.Header.SetMethod(method)
	req.SetRequestURI(uri)

	ctx := &fasthttp.RequestCtx{}
	ctx.Init(&req, nil, nil)
	return ctx
}

type recordingMiddleware struct {
	name  string
	calls *[]string
}

func (r recordingMiddleware) Name() string { return r.name }

func (r recordingMiddleware) Handle(ctx *fasthttp.RequestCtx, next fasthttp.RequestHandler) {
	*r.calls = append(*r.calls, r.name+":before")
	next(ctx)
	*r.calls = append(*r.calls, r.name+":after")
}

func TestChain_Order(t *testing.T) {
	var calls []string
	handler := Chain(func(*fasthttp.RequestCtx) { calls = append(calls, "handler") },
		recordingMiddleware{"first", &calls},
		recordingMiddleware{"second", &calls},
	)

	handler(newRequestCtx(fasthttp.MethodGet, "/"))

	assert.Equal(t, []string{"first:before", "second:before", "handler", "second:after", "first:after"}, calls)
}

func TestChain_Empty(t *testing.T) {
	called := false
	Chain(func(*fasthttp.RequestCtx) { called = true })(newRequestCtx(fasthttp.MethodGet, "/"))
	assert.True(t, called)
}

func TestRecovery_Panic(t *testing.T) {
	m := newTestMetrics(t)
	recovery := NewRecoveryMiddleware(&types.MiddlewareConfig{
		Enabled: true,
		Params:  map[string]interface{}{"stack_trace": false},
	}, logger.NewNop(), m)

	ctx := newRequestCtx(fasthttp.MethodGet, "/users/1")
	ctx.SetUserValue(RouteKey, "/users/{id}")

	recovery.Handle(ctx, func(ctx *fasthttp.RequestCtx) {
		ctx.SetBodyString("partial")
		panic("boom")
	})

	assert.Equal(t, fasthttp.StatusInternalServerError, ctx.Response.StatusCode())

	var body map[string]string
	require.NoError(t, utils.Unmarshal(ctx.Response.Body(), &body))
	assert.Equal(t, "Internal server error", body["error"])
	assert.False(t, recovery.stackTrace)
	assert.Equal(t, float64(1), m.Counter("http_server_panics_total", map[string]string{"route": "/users/{id}"}).Value())
}

func TestRecovery_NoPanic(t *testing.T) {
	recovery := NewRecoveryMiddleware(nil, logger.NewNop(), nil)

	ctx := newRequestCtx(fasthttp.MethodGet, "/")
	recovery.Handle(ctx, func(ctx *fasthttp.RequestCtx) {
		ctx.SetStatusCode(fasthttp.StatusAccepted)
	})

	assert.Equal(t, fasthttp.StatusAccepted, ctx.Response.StatusCode())
	assert.True(t, recovery.stackTrace)
}

func TestLogging_RecordsRequests(t *testing.T) {
	m := newTestMetrics(t)
	logging := NewLoggingMiddleware(&types.MiddlewareConfig{
		Enabled: true,
		Params:  map[string]interface{}{"log_level": "debug", "log_headers": true},
	}, logger.NewNop(), m)

	assert.Equal(t, zapcore.DebugLevel, logging.level)
	assert.True(t, logging.logHeaders)

	for _, status := range []int{fasthttp.StatusOK, fasthttp.StatusOK, fasthttp.StatusNotFound} {
		ctx := newRequestCtx(fasthttp.MethodGet, "/users/1")
		logging.Handle(ctx, func(ctx *fasthttp.RequestCtx) {
			ctx.SetUserValue(RouteKey, "/users/{id}")
			ctx.SetStatusCode(status)
		})
	}

	ok := m.Counter("http_server_requests_total", map[string]string{"method": "GET", "route": "/users/{id}", "status": "200"})
	notFound := m.Counter("http_server_requests_total", map[string]string{"method": "GET", "route": "/users/{id}", "status": "404"})
	assert.Equal(t, float64(2), ok.Value())
	assert.Equal(t, float64(1), notFound.Value())

	duration := m.Histogram("http_server_request_duration_seconds", nil, map[string]string{"method": "GET", "route": "/users/{id}"})
	assert.Equal(t, uint64(3), duration.Count())
}

func TestLogging_UnmatchedRoute(t *testing.T) {
	m := newTestMetrics(t)
	logging := NewLoggingMiddleware(nil, logger.NewNop(), m)

	ctx := newRequestCtx(fasthttp.MethodGet, "/nowhere")
	logging.Handle(ctx, func(ctx *fasthttp.RequestCtx) {
		ctx.SetStatusCode(fasthttp.StatusNotFound)
	})

	assert.Equal(t, float64(1), m.Counter("http_server_requests_total",
		map[string]string{"method": "GET", "route": "unmatched", "status": "404"}).Value())
}

func TestSanitizeHeaders(t *testing.T) {
	ctx := newRequestCtx(fasthttp.MethodGet, "/")
	ctx.Request.Header.Set("X-Api-Key", "secret")
	ctx.Request.Header.Set("Accept", "application/json")

	headers := sanitizeHeaders(ctx)
	assert.Equal(t, "[REDACTED]", headers["X-Api-Key"])
	assert.Equal(t, "application/json", headers["Accept"])
}

func TestGetRemoteAddr(t *testing.T) {
	ctx := newRequestCtx(fasthttp.MethodGet, "/")
	ctx.Request.Header.Set("X-Forwarded-For", "10.0.0.1, 10.0.0.2")
	assert.Equal(t, "10.0.0.1", getRemoteAddr(ctx))

	ctx = newRequestCtx(fasthttp.MethodGet, "/")
	ctx.Request.Header.Set("X-Real-IP", "10.0.0.3")
	assert.Equal(t, "10.0.0.3", getRemoteAddr(ctx))
}

func TestLoggingMiddleware_LevelByStatus(t *testing.T) {
	core, logs := observer.New(zapcore.DebugLevel)
	logging := NewLoggingMiddleware(&types.MiddlewareConfig{
		Enabled: true,
		Params:  map[string]interface{}{"log_level": "debug"},
	}, logger.NewZapWrapper(zap.New(core)), nil)

	for _, status := range []int{fasthttp.StatusOK, fasthttp.StatusNotFound, fasthttp.StatusBadGateway} {
		ctx := newRequestCtx(fasthttp.MethodGet, "/users?page=2")
		ctx.Request.Header.Set("X-Request-ID", "req-1")
		logging.Handle(ctx, func(ctx *fasthttp.RequestCtx) { ctx.SetStatusCode(status) })
	}

	entries := logs.AllUntimed()
	require.Len(t, entries, 3)
	assert.Equal(t, zapcore.DebugLevel, entries[0].Level)
	assert.Equal(t, zapcore.WarnLevel, entries[1].Level)
	assert.Equal(t, zapcore.ErrorLevel, entries[2].Level)
	assert.Equal(t, "page=2", entries[0].ContextMap()["query"])
	assert.Equal(t, "req-1", entries[0].ContextMap()["request_id"])
}

func TestLoggingMiddleware_UnknownLevel(t *testing.T) {
	logging := NewLoggingMiddleware(&types.MiddlewareConfig{
		Params: map[string]interface{}{"log_level": "chatty"},
	}, logger.NewNop(), nil)

	assert.Equal(t, zapcore.InfoLevel, logging.level)
}
