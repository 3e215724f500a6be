package middleware

import (
	"strconv"
	"strings"
	"time"

	"github.com/valyala/fasthttp"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"github.com/saiset-co/sai-directory/types"
	"github.com/saiset-co/sai-directory/utils"
)

// Header values never written to the access log.
var sensitiveHeaders = map[string]bool{
	"authorization": true,
	"x-api-key":     true,
	"cookie":        true,
	"set-cookie":    true,
}

type LoggingConfig struct {
	LogLevel   string `yaml:"log_level" json:"log_level"`
	LogHeaders bool   `yaml:"log_headers" json:"log_headers"`
}

// LoggingMiddleware writes one access-log entry per request and records the
// request counter and latency histogram. 4xx responses log at warn and 5xx at
// error regardless of the configured level.
type LoggingMiddleware struct {
	logger     types.Logger
	metrics    types.MetricsManager
	level      zapcore.Level
	logHeaders bool
}

func NewLoggingMiddleware(config *types.MiddlewareConfig, logger types.Logger, metrics types.MetricsManager) *LoggingMiddleware {
	options := LoggingConfig{LogLevel: "info"}
	if config != nil && config.Params != nil {
		if err := utils.UnmarshalConfig(config.Params, &options); err != nil {
			logger.Error("Failed to unmarshal logging middleware params", zap.Error(err))
		}
	}

	level, err := zapcore.ParseLevel(options.LogLevel)
	if err != nil {
		logger.Warn("Unknown access log level, using info", zap.String("level", options.LogLevel))
		level = zapcore.InfoLevel
	}

	return &LoggingMiddleware{
		logger:     logger,
		metrics:    metrics,
		level:      level,
		logHeaders: options.LogHeaders,
	}
}

func (l *LoggingMiddleware) Name() string { return "logging" }

func (l *LoggingMiddleware) Handle(ctx *fasthttp.RequestCtx, next fasthttp.RequestHandler) {
	start := time.Now()
	next(ctx)
	elapsed := time.Since(start)

	status := ctx.Response.StatusCode()
	method := string(ctx.Method())
	route := routeOf(ctx)

	l.logger.Log(l.levelFor(status), "Request completed", l.fields(ctx, status, elapsed)...)

	if l.metrics != nil {
		l.metrics.Counter("http_server_requests_total", map[string]string{
			"method": method,
			"route":  route,
			"status": strconv.Itoa(status),
		}).Inc()
		l.metrics.Histogram("http_server_request_duration_seconds", nil, map[string]string{
			"method": method,
			"route":  route,
		}).Observe(elapsed.Seconds())
	}
}

func (l *LoggingMiddleware) levelFor(status int) zapcore.Level {
	switch {
	case status >= fasthttp.StatusInternalServerError:
		return zapcore.ErrorLevel
	case status >= fasthttp.StatusBadRequest:
		return zapcore.WarnLevel
	default:
		return l.level
	}
}

func (l *LoggingMiddleware) fields(ctx *fasthttp.RequestCtx, status int, elapsed time.Duration) []zap.Field {
	fields := []zap.Field{
		zap.ByteString("method", ctx.Method()),
		zap.ByteString("path", ctx.Path()),
		zap.Int("status", status),
		zap.Duration("duration", elapsed),
		zap.String("remote_addr", getRemoteAddr(ctx)),
	}

	if query := ctx.QueryArgs().QueryString(); len(query) > 0 {
		fields = append(fields, zap.ByteString("query", query))
	}
	if requestID := ctx.Request.Header.Peek("X-Request-ID"); len(requestID) > 0 {
		fields = append(fields, zap.ByteString("request_id", requestID))
	}
	if l.logHeaders {
		fields = append(fields, zap.Any("headers", sanitizeHeaders(ctx)))
	}

	return fields
}

func sanitizeHeaders(ctx *fasthttp.RequestCtx) map[string]string {
	headers := make(map[string]string)
	ctx.Request.Header.VisitAll(func(key, value []byte) {
		name := string(key)
		if sensitiveHeaders[strings.ToLower(name)] {
			headers[name] = "[REDACTED]"
			return
		}
		headers[name] = string(value)
	})
	return headers
}

// getRemoteAddr prefers the first X-Forwarded-For hop, then X-Real-IP.
func getRemoteAddr(ctx *fasthttp.RequestCtx) string {
	if forwarded := string(ctx.Request.Header.Peek("X-Forwarded-For")); forwarded != "" {
		first, _, _ := strings.Cut(forwarded, ",")
		return strings.TrimSpace(first)
	}
	if realIP := string(ctx.Request.Header.Peek("X-Real-IP")); realIP != "" {
		return realIP
	}
	return ctx.RemoteIP().String()
}
