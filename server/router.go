package server

import (
	"sort"
	"strings"
	"sync"

	"github.com/valyala/fasthttp"

	"github.com/saiset-co/sai-directory/middleware"
)

type route struct {
	method     string
	pattern    string
	segments   []string
	paramNames []string
	handler    fasthttp.RequestHandler
}

// Router matches static paths by exact lookup and patterns with "{name}" or
// ":name" segments in registration order. Matched parameters are stored as
// user values on the request.
type Router struct {
	mu      sync.RWMutex
	static  map[string]*route
	dynamic []*route
}

func NewRouter() *Router {
	return &Router{
		static: make(map[string]*route),
	}
}

func (r *Router) GET(pattern string, handler fasthttp.RequestHandler) {
	r.Handle(fasthttp.MethodGet, pattern, handler)
}

func (r *Router) Handle(method, pattern string, handler fasthttp.RequestHandler) {
	pattern = normalizePath(pattern)

	rt := &route{
		method:     method,
		pattern:    pattern,
		segments:   parsePathSegments(pattern),
		paramNames: extractParamNames(pattern),
		handler:    handler,
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if len(rt.paramNames) == 0 {
		r.static[method+":"+pattern] = rt
		return
	}
	r.dynamic = append(r.dynamic, rt)
}

func (r *Router) Routes() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()

	routes := make([]string, 0, len(r.static)+len(r.dynamic))
	for _, rt := range r.static {
		routes = append(routes, rt.method+" "+rt.pattern)
	}
	for _, rt := range r.dynamic {
		routes = append(routes, rt.method+" "+rt.pattern)
	}
	sort.Strings(routes)
	return routes
}

func (r *Router) Handler() fasthttp.RequestHandler {
	return func(ctx *fasthttp.RequestCtx) {
		method := string(ctx.Method())
		path := normalizePath(string(ctx.Path()))

		rt, params, methodMismatch := r.find(method, path)
		if rt == nil {
			if methodMismatch {
				WriteError(ctx, fasthttp.StatusMethodNotAllowed, "Method not allowed")
				return
			}
			WriteError(ctx, fasthttp.StatusNotFound, "Not found")
			return
		}

		ctx.SetUserValue(middleware.RouteKey, rt.pattern)
		for name, value := range params {
			ctx.SetUserValue(name, value)
		}

		rt.handler(ctx)
	}
}

func (r *Router) find(method, path string) (*route, map[string]string, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	if rt, ok := r.static[method+":"+path]; ok {
		return rt, nil, false
	}

	methodMismatch := false
	for _, rt := range r.static {
		if rt.pattern == path {
			methodMismatch = true
		}
	}

	pathSegments := parsePathSegments(path)
	for _, rt := range r.dynamic {
		params := matchRoute(pathSegments, rt)
		if params == nil {
			continue
		}
		if rt.method == method {
			return rt, params, false
		}
		methodMismatch = true
	}

	return nil, nil, methodMismatch
}

func normalizePath(path string) string {
	if path == "" {
		return "/"
	}
	if len(path) > 1 {
		path = strings.TrimRight(path, "/")
	}
	if path == "" {
		return "/"
	}
	return path
}

func parsePathSegments(path string) []string {
	path = strings.Trim(path, "/")
	if path == "" {
		return []string{}
	}
	return strings.Split(path, "/")
}

func isParam(segment string) bool {
	return strings.HasPrefix(segment, ":") ||
		(strings.HasPrefix(segment, "{") && strings.HasSuffix(segment, "}"))
}

func extractParamNames(pattern string) []string {
	var params []string

	for _, seg := range parsePathSegments(pattern) {
		if strings.HasPrefix(seg, "{") && strings.HasSuffix(seg, "}") {
			params = append(params, seg[1:len(seg)-1])
		} else if strings.HasPrefix(seg, ":") {
			params = append(params, seg[1:])
		}
	}

	return params
}

func matchRoute(pathSegments []string, rt *route) map[string]string {
	if len(pathSegments) != len(rt.segments) {
		return nil
	}

	params := make(map[string]string, len(rt.paramNames))
	paramIdx := 0

	for i, routeSegment := range rt.segments {
		if isParam(routeSegment) {
			params[rt.paramNames[paramIdx]] = pathSegments[i]
			paramIdx++
		} else if routeSegment != pathSegments[i] {
			return nil
		}
	}

	return params
}
