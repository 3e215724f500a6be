package service

import (
	"context"
	"fmt"
	"sync/atomic"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/saiset-co/sai-directory/cache"
	"github.com/saiset-co/sai-directory/client"
	"github.com/saiset-co/sai-directory/config"
	"github.com/saiset-co/sai-directory/directory"
	"github.com/saiset-co/sai-directory/health"
	"github.com/saiset-co/sai-directory/logger"
	"github.com/saiset-co/sai-directory/metrics"
	"github.com/saiset-co/sai-directory/middleware"
	"github.com/saiset-co/sai-directory/search"
	"github.com/saiset-co/sai-directory/server"
	"github.com/saiset-co/sai-directory/tracker"
	"github.com/saiset-co/sai-directory/types"
)

type State int32

const (
	StateStopped State = iota
	StateStarting
	StateRunning
	StateStopping
)

type component struct {
	name    string
	manager types.LifecycleManager
}

type Service struct {
	ctx             context.Context
	cancel          context.CancelFunc
	container       *Container
	state           atomic.Value
	shutdownTimeout time.Duration
}

func NewService(ctx context.Context, configPath string, opts ...Option) (*Service, error) {
	configManager, err := config.NewConfigurationManager(ctx, configPath)
	if err != nil {
		return nil, err
	}

	return NewServiceFromConfig(ctx, configManager.GetConfig(), opts...)
}

// NewServiceFromConfig validates serviceConfig and wires every component:
// logger, metrics, cache, tracker, transport, directory and health, then the
// routes and, when enabled, the HTTP server.
func NewServiceFromConfig(ctx context.Context, serviceConfig *types.ServiceConfig, opts ...Option) (*Service, error) {
	if err := config.NewLoader().Validate(serviceConfig); err != nil {
		return nil, err
	}

	o := &options{}
	for _, opt := range opts {
		opt(o)
	}

	serviceCtx, cancel := context.WithCancel(ctx)

	container, err := buildContainer(serviceCtx, serviceConfig, o)
	if err != nil {
		cancel()
		return nil, err
	}

	s := &Service{
		ctx:             serviceCtx,
		cancel:          cancel,
		container:       container,
		shutdownTimeout: 10 * time.Second,
	}

	s.state.Store(StateStopped)

	container.Router = server.NewRouter()
	s.registerRoutes(container.Router)

	if serviceConfig.Server != nil && serviceConfig.Server.Enabled {
		container.Server, err = server.NewHTTPServer(serviceConfig.Server, container.Logger,
			container.Router, buildMiddlewares(serviceConfig.Server, container)...)
		if err != nil {
			cancel()
			return nil, types.WrapError(err, "failed to create HTTP server")
		}
	}

	return s, nil
}

func buildMiddlewares(serverConfig *types.ServerConfig, c *Container) []middleware.Middleware {
	var middlewares []middleware.Middleware

	if serverConfig.Recovery != nil && serverConfig.Recovery.Enabled {
		middlewares = append(middlewares, middleware.NewRecoveryMiddleware(serverConfig.Recovery, c.Logger, c.Metrics))
	}
	if serverConfig.Logging != nil && serverConfig.Logging.Enabled {
		middlewares = append(middlewares, middleware.NewLoggingMiddleware(serverConfig.Logging, c.Logger, c.Metrics))
	}

	return middlewares
}

func buildContainer(ctx context.Context, serviceConfig *types.ServiceConfig, o *options) (*Container, error) {
	c := &Container{Config: serviceConfig}

	loggerManager, err := logger.NewManager(serviceConfig.Logger)
	if err != nil {
		return nil, types.WrapError(err, "failed to create logger")
	}
	c.Logger = loggerManager

	metricsManager, err := metrics.NewManager(serviceConfig.Metrics, loggerManager)
	if err != nil {
		return nil, types.WrapError(err, "failed to create metrics manager")
	}
	c.Metrics = metricsManager

	cacheManager, err := cache.NewCacheManager(serviceConfig.Cache, scoped(loggerManager, "cache"), metricsManager, o.cacheOptions...)
	if err != nil {
		return nil, types.WrapError(err, "failed to create cache")
	}
	c.Cache = cacheManager

	c.Tracker = tracker.NewTracker(scoped(loggerManager, "tracker"), metricsManager)

	c.Client = client.NewHTTPClient(ctx, scoped(loggerManager, "client"), serviceConfig.Name, serviceConfig.Directory.BaseURL,
		serviceConfig.Client, c.Tracker, metricsManager, o.clientOptions...)

	directoryService, err := directory.NewService(scoped(loggerManager, "directory"), c.Client, cacheManager, serviceConfig.Directory)
	if err != nil {
		return nil, types.WrapError(err, "failed to create directory service")
	}
	c.Directory = directoryService

	c.Health = health.NewManager(ctx, serviceConfig.Health, types.ServiceInfo{
		Name:    serviceConfig.Name,
		Version: serviceConfig.Version,
	}, scoped(loggerManager, "health"))
	c.Health.RegisterChecker("directory", health.DirectoryCheck(directoryService))
	c.Health.RegisterChecker("cache", health.CacheCheck(cacheManager))
	c.Health.RegisterChecker("tracker", health.TrackerCheck(c.Tracker))

	return c, nil
}

func scoped(l types.Logger, name string) types.Logger {
	return l.With(zap.String("component", name))
}

// Start brings up the lifecycle managers in dependency order. A stopped
// service has released its transport and cannot be started again.
func (s *Service) Start() error {
	if s.ctx.Err() != nil {
		return types.Errorf(types.ErrInvalidState, "service context is done")
	}

	if !s.transitionState(StateStopped, StateStarting) {
		return types.ErrServiceIsRunning
	}

	managers := []component{
		{"logger", s.container.Logger},
		{"metrics", s.container.Metrics},
		{"health", s.container.Health},
	}
	if s.container.Server != nil {
		managers = append(managers, component{"server", s.container.Server})
	}

	for i, m := range managers {
		if err := m.manager.Start(); err != nil {
			for j := i - 1; j >= 0; j-- {
				_ = managers[j].manager.Stop()
			}
			s.setState(StateStopped)
			return types.Errorf(types.ErrComponentStartFailed, "%s: %v", m.name, err)
		}
	}

	s.setState(StateRunning)
	s.container.Logger.Info("Service started",
		zap.String("name", s.container.Config.Name),
		zap.String("version", s.container.Config.Version),
		zap.String("directory", s.container.Client.BaseURL()))

	return nil
}

func (s *Service) Stop() error {
	if !s.transitionState(StateRunning, StateStopping) {
		return types.ErrServiceIsNotRunning
	}

	defer s.setState(StateStopped)

	log := s.container.Logger

	if s.container.Server != nil {
		if err := s.container.Server.Stop(); err != nil {
			log.Error("Failed to stop component", zap.String("component", "server"), zap.Error(err))
		}
	}

	s.cancel()
	s.container.Client.Close()
	s.container.Tracker.Close()

	ctx, cancel := context.WithTimeout(context.Background(), s.shutdownTimeout)
	defer cancel()

	g, gCtx := errgroup.WithContext(ctx)

	for name, manager := range map[string]types.LifecycleManager{
		"metrics": s.container.Metrics,
		"health":  s.container.Health,
	} {
		g.Go(func() error {
			select {
			case <-gCtx.Done():
				return gCtx.Err()
			default:
				if err := manager.Stop(); err != nil {
					log.Error("Failed to stop component", zap.String("component", name), zap.Error(err))
					return fmt.Errorf("%s: %w", name, err)
				}
				return nil
			}
		})
	}

	err := g.Wait()
	if err != nil {
		err = types.Errorf(types.ErrComponentStopFailed, "%v", err)
	}

	log.Info("Service stopped")
	if stopErr := log.Stop(); stopErr != nil && err == nil {
		err = types.Errorf(types.ErrComponentStopFailed, "logger: %v", stopErr)
	}

	return err
}

func (s *Service) IsRunning() bool {
	return s.getState() == StateRunning
}

func (s *Service) Context() context.Context {
	return s.ctx
}

func (s *Service) Container() *Container {
	return s.container
}

func (s *Service) Config() *types.ServiceConfig {
	return s.container.Config
}

func (s *Service) Logger() types.Logger {
	return s.container.Logger
}

func (s *Service) Metrics() types.MetricsManager {
	return s.container.Metrics
}

func (s *Service) Cache() types.CacheManager {
	return s.container.Cache
}

func (s *Service) Tracker() *tracker.Tracker {
	return s.container.Tracker
}

func (s *Service) Directory() *directory.Service {
	return s.container.Directory
}

func (s *Service) Health() types.HealthManager {
	return s.container.Health
}

func (s *Service) Router() *server.Router {
	return s.container.Router
}

// NewSearch returns a controller for one search field, resolving ids through
// the directory.
func (s *Service) NewSearch(opts ...search.Option) *search.Controller {
	opts = append([]search.Option{search.WithMetrics(s.container.Metrics)}, opts...)
	return search.NewController(s.container.Directory.Lookup(), s.container.Config.Search, scoped(s.container.Logger, "search"), opts...)
}

func (s *Service) getState() State {
	return s.state.Load().(State)
}

func (s *Service) setState(newState State) {
	s.state.Store(newState)
}

func (s *Service) transitionState(from, to State) bool {
	return s.state.CompareAndSwap(from, to)
}
