package cache

import (
	"time"

	"go.uber.org/zap"

	"github.com/saiset-co/sai-directory/types"
)

var operationBuckets = []float64{0.0001, 0.001, 0.01, 0.1, 1.0}

var creators = make(map[string]types.CacheManagerCreator)

// RegisterCacheManager makes a backend selectable through cache.type.
func RegisterCacheManager(name string, creator types.CacheManagerCreator) {
	creators[name] = creator
}

// NewCacheManager builds the configured backend, "memory" when the type is
// empty, and wraps it with per-operation metrics.
func NewCacheManager(config *types.CacheConfig, logger types.Logger, metrics types.MetricsManager, opts ...Option) (types.CacheManager, error) {
	if config == nil {
		return nil, types.ErrCacheIsDisabled
	}

	name := config.Type
	if name == "" {
		name = "memory"
	}

	backend, err := newBackend(name, config, logger, opts)
	if err != nil {
		return nil, err
	}

	logger.Info("Cache manager initialized",
		zap.String("type", name),
		zap.Duration("default_ttl", config.DefaultTTL))

	if metrics == nil {
		return backend, nil
	}
	return &instrumentedCache{backend: backend, metrics: metrics}, nil
}

func newBackend(name string, config *types.CacheConfig, logger types.Logger, opts []Option) (types.CacheManager, error) {
	if name == "memory" {
		return NewMemoryCache(logger, config, opts...)
	}

	creator, ok := creators[name]
	if !ok {
		return nil, types.Errorf(types.ErrCacheTypeUnknown, "type: %s", name)
	}
	return creator(config)
}

// instrumentedCache records cache_operations_total{operation,result} and
// cache_operation_duration_seconds{operation} around every call.
type instrumentedCache struct {
	backend types.CacheManager
	metrics types.MetricsManager
}

func (c *instrumentedCache) Get(key string) (interface{}, bool) {
	start := time.Now()
	value, ok := c.backend.Get(key)
	c.observe("get", lookupResult(ok), start)
	return value, ok
}

func (c *instrumentedCache) Has(key string) bool {
	start := time.Now()
	ok := c.backend.Has(key)
	c.observe("has", lookupResult(ok), start)
	return ok
}

func (c *instrumentedCache) Set(key string, value interface{}, ttl time.Duration) {
	defer c.observe("set", "success", time.Now())
	c.backend.Set(key, value, ttl)
}

func (c *instrumentedCache) Delete(key string) {
	defer c.observe("delete", "success", time.Now())
	c.backend.Delete(key)
}

func (c *instrumentedCache) Clear() {
	defer c.observe("clear", "success", time.Now())
	c.backend.Clear()
}

func (c *instrumentedCache) Stats() types.CacheStats {
	return c.backend.Stats()
}

func (c *instrumentedCache) observe(operation, result string, start time.Time) {
	c.metrics.Counter("cache_operations_total", map[string]string{
		"operation": operation,
		"result":    result,
	}).Inc()

	c.metrics.Histogram("cache_operation_duration_seconds", operationBuckets, map[string]string{
		"operation": operation,
	}).ObserveDuration(start)
}

func lookupResult(found bool) string {
	if found {
		return "hit"
	}
	return "miss"
}
