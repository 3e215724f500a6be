package middleware

import (
	"runtime/debug"

	"github.com/valyala/fasthttp"
	"go.uber.org/zap"

	"github.com/saiset-co/sai-directory/types"
	"github.com/saiset-co/sai-directory/utils"
)

type RecoveryConfig struct {
	StackTrace bool `yaml:"stack_trace" json:"stack_trace"`
}

// RecoveryMiddleware turns a handler panic into a logged 500 JSON response
// and counts it per route.
type RecoveryMiddleware struct {
	logger     types.Logger
	metrics    types.MetricsManager
	stackTrace bool
}

func NewRecoveryMiddleware(config *types.MiddlewareConfig, logger types.Logger, metrics types.MetricsManager) *RecoveryMiddleware {
	options := RecoveryConfig{StackTrace: true}
	if config != nil && config.Params != nil {
		if err := utils.UnmarshalConfig(config.Params, &options); err != nil {
			logger.Error("Failed to unmarshal recovery middleware params", zap.Error(err))
		}
	}

	return &RecoveryMiddleware{
		logger:     logger,
		metrics:    metrics,
		stackTrace: options.StackTrace,
	}
}

func (r *RecoveryMiddleware) Name() string { return "recovery" }

func (r *RecoveryMiddleware) Handle(ctx *fasthttp.RequestCtx, next fasthttp.RequestHandler) {
	defer func() {
		rec := recover()
		if rec == nil {
			return
		}

		fields := []zap.Field{
			zap.Any("panic", rec),
			zap.ByteString("method", ctx.Method()),
			zap.ByteString("path", ctx.Path()),
			zap.String("remote_addr", getRemoteAddr(ctx)),
		}
		if requestID := ctx.Request.Header.Peek("X-Request-ID"); len(requestID) > 0 {
			fields = append(fields, zap.ByteString("request_id", requestID))
		}
		if r.stackTrace {
			fields = append(fields, zap.ByteString("stack", debug.Stack()))
		}
		r.logger.Error("Recovered from panic", fields...)

		if r.metrics != nil {
			r.metrics.Counter("http_server_panics_total", map[string]string{"route": routeOf(ctx)}).Inc()
		}

		ctx.Response.Reset()
		writeError(ctx, fasthttp.StatusInternalServerError, "Internal server error")
	}()

	next(ctx)
}

func writeError(ctx *fasthttp.RequestCtx, status int, message string) {
	body, err := utils.Marshal(map[string]string{"error": message})
	if err != nil {
		ctx.Error(message, status)
		return
	}
	ctx.SetStatusCode(status)
	ctx.SetContentType("application/json")
	ctx.SetBody(body)
}
