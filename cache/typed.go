package cache

import (
	"time"

	"github.com/saiset-co/sai-directory/types"
)

// TypedCache narrows a CacheManager to a single value type. A key holding a
// value of another type reads as absent.
type TypedCache[V any] struct {
	c types.CacheManager
}

func NewTyped[V any](c types.CacheManager) *TypedCache[V] {
	return &TypedCache[V]{c: c}
}

func (t *TypedCache[V]) Get(key string) (V, bool) {
	return GetAs[V](t.c, key)
}

func (t *TypedCache[V]) Set(key string, value V, ttl time.Duration) {
	t.c.Set(key, value, ttl)
}

func (t *TypedCache[V]) Has(key string) bool {
	_, ok := t.Get(key)
	return ok
}

func (t *TypedCache[V]) Delete(key string) {
	t.c.Delete(key)
}

func GetAs[V any](c types.CacheManager, key string) (out V, ok bool) {
	value, exists := c.Get(key)
	if !exists {
		return out, false
	}

	out, ok = value.(V)
	return out, ok
}
