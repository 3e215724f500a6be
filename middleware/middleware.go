package middleware

import (
	"github.com/valyala/fasthttp"
)

type Middleware interface {
	Name() string
	Handle(ctx *fasthttp.RequestCtx, next fasthttp.RequestHandler)
}

// Chain wraps handler so that the first middleware runs outermost.
func Chain(handler fasthttp.RequestHandler, middlewares ...Middleware) fasthttp.RequestHandler {
	for i := len(middlewares) - 1; i >= 0; i-- {
		mw, next := middlewares[i], handler
		handler = func(ctx *fasthttp.RequestCtx) {
			mw.Handle(ctx, next)
		}
	}
	return handler
}

// RouteKey is the user value under which the router stores the matched
// route pattern.
const RouteKey = "route"

func routeOf(ctx *fasthttp.RequestCtx) string {
	if route, ok := ctx.UserValue(RouteKey).(string); ok && route != "" {
		return route
	}
	return "unmatched"
}
