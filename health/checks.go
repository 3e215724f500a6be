package health

import (
	"context"

	"github.com/saiset-co/sai-directory/types"
)

type Pinger interface {
	Ping(ctx context.Context) error
}

type StatsProvider interface {
	Stats() types.CacheStats
}

type StateProvider interface {
	State() types.TrackerState
}

// DirectoryCheck reports the remote API unhealthy when an uncached request
// fails.
func DirectoryCheck(pinger Pinger) types.HealthChecker {
	return func(ctx context.Context) types.HealthCheck {
		if err := pinger.Ping(ctx); err != nil {
			return types.HealthCheck{
				Status:  types.StatusUnhealthy,
				Message: err.Error(),
			}
		}
		return types.HealthCheck{Status: types.StatusHealthy}
	}
}

func CacheCheck(cache StatsProvider) types.HealthChecker {
	return func(context.Context) types.HealthCheck {
		stats := cache.Stats()
		return types.HealthCheck{
			Status: types.StatusHealthy,
			Details: map[string]interface{}{
				"entries":   stats.Entries,
				"hits":      stats.Hits,
				"misses":    stats.Misses,
				"evictions": stats.Evictions,
			},
		}
	}
}

func TrackerCheck(tracker StateProvider) types.HealthChecker {
	return func(context.Context) types.HealthCheck {
		state := tracker.State()
		return types.HealthCheck{
			Status: types.StatusHealthy,
			Details: map[string]interface{}{
				"active": state.Active,
				"busy":   state.Busy,
			},
		}
	}
}
