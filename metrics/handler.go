package metrics

import (
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/valyala/fasthttp"
	"github.com/valyala/fasthttp/fasthttpadaptor"
)

// Handler serves the text exposition format for the Prometheus backend and
// the GetMetrics JSON document for any other backend. It answers 503 while
// metrics are disabled or stopped.
func (m *Manager) Handler() fasthttp.RequestHandler {
	if prom, ok := m.backend.(*PrometheusMetrics); ok {
		exposition := fasthttpadaptor.NewFastHTTPHandler(promhttp.HandlerFor(prom.Registry(), promhttp.HandlerOpts{}))
		return func(ctx *fasthttp.RequestCtx) {
			if !m.IsRunning() {
				ctx.Error("metrics not running", fasthttp.StatusServiceUnavailable)
				return
			}
			exposition(ctx)
		}
	}

	return func(ctx *fasthttp.RequestCtx) {
		data, err := m.GetMetrics()
		if err != nil {
			ctx.Error(err.Error(), fasthttp.StatusServiceUnavailable)
			return
		}
		ctx.SetContentType("application/json")
		ctx.SetBody(data)
	}
}
