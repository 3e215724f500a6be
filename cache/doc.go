// Package cache provides the TTL cache that sits between directory fetches
// and the network.
//
// Entries carry their own expiry and are evicted lazily: [MemoryCache.Get]
// and [MemoryCache.Has] drop an expired entry when they find it. Nothing runs
// in the background. A positive max_entries bounds the cache by evicting the
// least recently set key.
//
//	c, _ := cache.NewCacheManager(cfg.Cache, logger, metrics)
//	c.Set("users_page_1", page, 0) // 0 selects the default TTL
//
//	users := cache.NewTyped[*types.UsersPage](c)
//	if page, ok := users.Get("users_page_1"); ok {
//	    // fresh hit
//	}
package cache
