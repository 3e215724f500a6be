package service

import (
	"github.com/saiset-co/sai-directory/cache"
	"github.com/saiset-co/sai-directory/client"
	"github.com/saiset-co/sai-directory/directory"
	"github.com/saiset-co/sai-directory/health"
	"github.com/saiset-co/sai-directory/logger"
	"github.com/saiset-co/sai-directory/metrics"
	"github.com/saiset-co/sai-directory/server"
	"github.com/saiset-co/sai-directory/tracker"
	"github.com/saiset-co/sai-directory/types"
)

// Container holds the one instance of every component. Nothing in it is
// global; consumers receive what they need from here.
type Container struct {
	Config    *types.ServiceConfig
	Logger    *logger.Manager
	Metrics   *metrics.Manager
	Cache     types.CacheManager
	Tracker   *tracker.Tracker
	Client    *client.HTTPClient
	Directory *directory.Service
	Health    *health.Manager
	Router    *server.Router
	// Server is nil unless server.enabled is set.
	Server *server.HTTPServer
}

type options struct {
	clientOptions []client.Option
	cacheOptions  []cache.Option
}

type Option func(*options)

func WithClientOptions(opts ...client.Option) Option {
	return func(o *options) {
		o.clientOptions = append(o.clientOptions, opts...)
	}
}

func WithCacheOptions(opts ...cache.Option) Option {
	return func(o *options) {
		o.cacheOptions = append(o.cacheOptions, opts...)
	}
}
