package cache

import (
	"container/list"
	"sync"
	"sync/atomic"
	"time"

	"go.uber.org/zap"

	"github.com/saiset-co/sai-directory/types"
	"github.com/saiset-co/sai-directory/utils"
)

const DefaultTTL = 5 * time.Minute

type MemoryConfig struct {
	MaxEntries int `json:"max_entries"`
}

type memoryEntry struct {
	key       string
	value     interface{}
	createdAt time.Time
	expiresAt time.Time
	order     *list.Element
}

// MemoryCache keeps entries in process memory. Expiration is checked only when
// a key is read; there is no sweeper, so keys written and never read again
// stay resident until Delete or Clear.
type MemoryCache struct {
	logger     types.Logger
	clock      types.Clock
	config     *MemoryConfig
	defaultTTL time.Duration
	data       map[string]*memoryEntry
	setOrder   *list.List
	hits       uint64
	misses     uint64
	evictions  uint64
	mu         sync.RWMutex
}

type Option func(*MemoryCache)

func WithClock(clock types.Clock) Option {
	return func(m *MemoryCache) {
		m.clock = clock
	}
}

func NewMemoryCache(logger types.Logger, config *types.CacheConfig, opts ...Option) (*MemoryCache, error) {
	var memConfig = &MemoryConfig{
		MaxEntries: 0,
	}

	defaultTTL := DefaultTTL

	if config != nil {
		if config.Config != nil {
			err := utils.UnmarshalConfig(config.Config, memConfig)
			if err != nil {
				return nil, types.WrapError(err, "failed to unmarshal memory cache config")
			}
		}

		if config.DefaultTTL > 0 {
			defaultTTL = config.DefaultTTL
		}
	}

	if memConfig.MaxEntries < 0 {
		return nil, types.Errorf(types.ErrInvalidParameter, "max_entries must not be negative: %d", memConfig.MaxEntries)
	}

	cache := &MemoryCache{
		logger:     logger,
		clock:      utils.RealClock(),
		config:     memConfig,
		defaultTTL: defaultTTL,
		data:       make(map[string]*memoryEntry),
		setOrder:   list.New(),
	}

	for _, opt := range opts {
		opt(cache)
	}

	return cache, nil
}

func (m *MemoryCache) Get(key string) (interface{}, bool) {
	entry, ok := m.lookup(key)
	if !ok {
		return nil, false
	}
	return entry.value, true
}

func (m *MemoryCache) Has(key string) bool {
	_, ok := m.lookup(key)
	return ok
}

func (m *MemoryCache) Set(key string, value interface{}, ttl time.Duration) {
	if ttl <= 0 {
		ttl = m.defaultTTL
	}

	now := m.clock.Now()

	m.mu.Lock()
	defer m.mu.Unlock()

	if old, exists := m.data[key]; exists {
		m.removeEntryUnsafe(old)
	} else if m.config.MaxEntries > 0 && len(m.data) >= m.config.MaxEntries {
		m.evictOneUnsafe()
	}

	entry := &memoryEntry{
		key:       key,
		value:     value,
		createdAt: now,
		expiresAt: now.Add(ttl),
	}
	entry.order = m.setOrder.PushBack(entry)
	m.data[key] = entry
}

func (m *MemoryCache) Delete(key string) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if entry, exists := m.data[key]; exists {
		m.removeEntryUnsafe(entry)
	}
}

func (m *MemoryCache) Clear() {
	m.mu.Lock()
	defer m.mu.Unlock()

	cleared := len(m.data)
	if cleared == 0 {
		return
	}

	m.data = make(map[string]*memoryEntry)
	m.setOrder.Init()

	m.logger.Debug("Memory cache cleared", zap.Int("cleared_entries", cleared))
}

func (m *MemoryCache) Stats() types.CacheStats {
	m.mu.RLock()
	entries := len(m.data)
	m.mu.RUnlock()

	return types.CacheStats{
		Entries:   entries,
		Hits:      atomic.LoadUint64(&m.hits),
		Misses:    atomic.LoadUint64(&m.misses),
		Evictions: atomic.LoadUint64(&m.evictions),
	}
}

func (m *MemoryCache) lookup(key string) (*memoryEntry, bool) {
	now := m.clock.Now()

	m.mu.RLock()
	entry, exists := m.data[key]
	if !exists {
		m.mu.RUnlock()
		atomic.AddUint64(&m.misses, 1)
		return nil, false
	}

	if !now.Before(entry.expiresAt) {
		m.mu.RUnlock()
		m.mu.Lock()
		if current, exists := m.data[key]; exists && !now.Before(current.expiresAt) {
			m.removeEntryUnsafe(current)
		}
		m.mu.Unlock()

		atomic.AddUint64(&m.misses, 1)
		return nil, false
	}
	m.mu.RUnlock()

	atomic.AddUint64(&m.hits, 1)
	return entry, true
}

func (m *MemoryCache) evictOneUnsafe() {
	front := m.setOrder.Front()
	if front == nil {
		return
	}

	victim := front.Value.(*memoryEntry)
	m.removeEntryUnsafe(victim)
	atomic.AddUint64(&m.evictions, 1)

	m.logger.Debug("Cache entry evicted", zap.String("key", victim.key), zap.Int("max_entries", m.config.MaxEntries))
}

func (m *MemoryCache) removeEntryUnsafe(entry *memoryEntry) {
	if entry.order != nil {
		m.setOrder.Remove(entry.order)
		entry.order = nil
	}
	delete(m.data, entry.key)
}

var _ types.CacheManager = (*MemoryCache)(nil)
