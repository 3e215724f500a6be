package server

import (
	"context"
	"fmt"
	"net"
	"sync"
	"sync/atomic"
	"time"

	"github.com/valyala/fasthttp"
	"go.uber.org/zap"

	"github.com/saiset-co/sai-directory/middleware"
	"github.com/saiset-co/sai-directory/types"
)

type State int32

const (
	StateStopped State = iota
	StateStarting
	StateRunning
	StateStopping
)

type HTTPServer struct {
	logger          types.Logger
	config          *types.ServerConfig
	router          *Router
	middlewares     []middleware.Middleware
	server          *fasthttp.Server
	listener        net.Listener
	listenerMu      sync.Mutex
	done            chan struct{}
	state           atomic.Value
	shutdownTimeout time.Duration
}

func NewHTTPServer(config *types.ServerConfig, logger types.Logger, router *Router, middlewares ...middleware.Middleware) (*HTTPServer, error) {
	if config == nil {
		return nil, types.Errorf(types.ErrInvalidParameter, "server config is nil")
	}
	if router == nil {
		return nil, types.Errorf(types.ErrInvalidParameter, "router is nil")
	}

	server := &HTTPServer{
		logger:          logger,
		config:          config,
		router:          router,
		middlewares:     middlewares,
		shutdownTimeout: 5 * time.Second,
	}

	server.state.Store(StateStopped)

	return server, nil
}

// Start listens on the configured address and serves in the background.
func (h *HTTPServer) Start() error {
	addr := fmt.Sprintf("%s:%d", h.config.Host, h.config.Port)

	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return types.WrapError(err, "HTTP listener failed")
	}

	if err := h.Serve(ln); err != nil {
		_ = ln.Close()
		return err
	}

	return nil
}

// Serve takes ownership of ln and serves on it in the background.
func (h *HTTPServer) Serve(ln net.Listener) error {
	if !h.transitionState(StateStopped, StateStarting) {
		return types.ErrServerAlreadyRunning
	}

	h.server = &fasthttp.Server{
		Handler:         middleware.Chain(h.router.Handler(), h.middlewares...),
		Name:            "sai-directory",
		ReadTimeout:     h.config.ReadTimeout,
		WriteTimeout:    h.config.WriteTimeout,
		IdleTimeout:     h.config.IdleTimeout,
		CloseOnShutdown: true,
	}

	h.listenerMu.Lock()
	h.listener = ln
	h.done = make(chan struct{})
	h.listenerMu.Unlock()

	done := h.done
	server := h.server

	go func() {
		defer close(done)
		if err := server.Serve(ln); err != nil {
			h.logger.Error("HTTP server failed", zap.Error(err))
		}
	}()

	h.setState(StateRunning)
	h.logger.Info("HTTP server started",
		zap.String("address", ln.Addr().String()),
		zap.Strings("routes", h.router.Routes()))

	return nil
}

func (h *HTTPServer) Stop() error {
	if !h.transitionState(StateRunning, StateStopping) {
		return types.ErrServerNotRunning
	}

	defer h.setState(StateStopped)

	ctx, cancel := context.WithTimeout(context.Background(), h.shutdownTimeout)
	defer cancel()

	if err := h.server.ShutdownWithContext(ctx); err != nil {
		h.logger.Warn("HTTP server stop timeout, some connections may not have closed gracefully", zap.Error(err))
	}

	h.listenerMu.Lock()
	done := h.done
	h.listenerMu.Unlock()

	select {
	case <-done:
	case <-ctx.Done():
	}

	h.logger.Info("HTTP server stopped gracefully")
	return nil
}

func (h *HTTPServer) IsRunning() bool {
	return h.getState() == StateRunning
}

// Addr returns the bound address, or "" before Start.
func (h *HTTPServer) Addr() string {
	h.listenerMu.Lock()
	defer h.listenerMu.Unlock()

	if h.listener == nil {
		return ""
	}
	return h.listener.Addr().String()
}

func (h *HTTPServer) getState() State {
	return h.state.Load().(State)
}

func (h *HTTPServer) setState(newState State) {
	h.state.Store(newState)
}

func (h *HTTPServer) transitionState(from, to State) bool {
	return h.state.CompareAndSwap(from, to)
}

var _ types.LifecycleManager = (*HTTPServer)(nil)
