package monitoring

import (
	"context"
	"fmt"
	"time"

	"streamhub/internal/core/ports"
	"streamhub/pkg/circuitbreaker"

	"github.com/redis/go-redis/v9"
)

func (h *HealthChecker) AddRedisCheck(client *redis.Client, timeout time.Duration) {
	h.AddCheck("redis", func(ctx context.Context) error {
		return client.Ping(ctx).Err()
	}, timeout)
}

// AddStoreCheck registers the storage backend's own liveness probe.
func (h *HealthChecker) AddStoreCheck(name string, store ports.HealthChecker, timeout time.Duration) {
	h.AddCheck(name, store.HealthCheck, timeout)
}

// AddBreakerCheck reports a store as unhealthy while its breaker is open.
func (h *HealthChecker) AddBreakerCheck(stats func() circuitbreaker.Stats) {
	name := stats().Name
	h.AddCheck("breaker_"+name, func(ctx context.Context) error {
		if s := stats(); s.State == circuitbreaker.StateOpen {
			return fmt.Errorf("circuit %s open since %s", s.Name, s.StateChangeTime.Format(time.RFC3339))
		}
		return nil
	}, time.Second)
}

// IsReady checks if the service is ready to accept traffic
func (h *HealthChecker) IsReady(ctx context.Context) bool {
	return h.CheckAll(ctx).Status == "healthy"
}
