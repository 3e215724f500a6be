package types

import (
	"time"
)

// CacheManager is a key/value store with per-entry expiration. Misses and
// expired entries are reported as absent; no operation fails.
type CacheManager interface {
	Get(key string) (interface{}, bool)
	Set(key string, value interface{}, ttl time.Duration)
	Has(key string) bool
	Delete(key string)
	Clear()
	Stats() CacheStats
}

type CacheManagerCreator func(config *CacheConfig) (CacheManager, error)

type CacheEntry struct {
	Key       string        `json:"key"`
	Value     interface{}   `json:"value"`
	TTL       time.Duration `json:"ttl"`
	CreatedAt time.Time     `json:"created_at"`
	ExpiresAt time.Time     `json:"expires_at"`
}

type CacheStats struct {
	Entries   int    `json:"entries"`
	Hits      uint64 `json:"hits"`
	Misses    uint64 `json:"misses"`
	Evictions uint64 `json:"evictions"`
}
