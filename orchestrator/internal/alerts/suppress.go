package alerts

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/warehousepulse/warehousepulse/orchestrator/internal/config"
)

// Suppressor decides whether an alert for key may be sent now. An error
// means the decision could not be made; the caller sends the alert.
type Suppressor interface {
	Allow(ctx context.Context, key string) (bool, error)
}

// NewSuppressor builds the configured suppressor, or nil when disabled.
func NewSuppressor(cfg config.SuppressionConfig) Suppressor {
	switch cfg.Backend {
	case "memory":
		return NewMemoryCooldown(cfg.Cooldown)
	case "redis":
		return NewRedisCooldown(cfg.RedisAddr, cfg.RedisPassword(), cfg.RedisDB, cfg.KeyPrefix, cfg.Cooldown)
	}
	return nil
}

// MemoryCooldown allows one alert per key per cooldown window. State is
// lost on restart.
type MemoryCooldown struct {
	cooldown time.Duration
	now      func() time.Time

	mu       sync.Mutex
	lastFire map[string]time.Time
}

// NewMemoryCooldown returns an in-process cooldown.
func NewMemoryCooldown(cooldown time.Duration) *MemoryCooldown {
	return &MemoryCooldown{
		cooldown: cooldown,
		now:      time.Now,
		lastFire: make(map[string]time.Time),
	}
}

func (m *MemoryCooldown) Allow(_ context.Context, key string) (bool, error) {
	now := m.now()
	m.mu.Lock()
	defer m.mu.Unlock()

	if last, ok := m.lastFire[key]; ok && now.Sub(last) < m.cooldown {
		return false, nil
	}
	for k, t := range m.lastFire {
		if now.Sub(t) >= m.cooldown {
			delete(m.lastFire, k)
		}
	}
	m.lastFire[key] = now
	return true, nil
}

// RedisCooldown shares the cooldown across restarts through Redis keys that
// expire after the window.
type RedisCooldown struct {
	client   *redis.Client
	prefix   string
	cooldown time.Duration
}

// NewRedisCooldown connects lazily to the Redis server at addr.
func NewRedisCooldown(addr, password string, db int, prefix string, cooldown time.Duration) *RedisCooldown {
	rdb := redis.NewClient(&redis.Options{
		Addr:     addr,
		Password: password,
		DB:       db,
	})
	return NewRedisCooldownWithClient(rdb, prefix, cooldown)
}

// NewRedisCooldownWithClient wraps an existing client.
func NewRedisCooldownWithClient(client *redis.Client, prefix string, cooldown time.Duration) *RedisCooldown {
	if prefix == "" {
		prefix = "warehousepulse:alert:"
	}
	return &RedisCooldown{client: client, prefix: prefix, cooldown: cooldown}
}

// Allow sets the key only if absent, so the first caller in a window wins.
func (r *RedisCooldown) Allow(ctx context.Context, key string) (bool, error) {
	ok, err := r.client.SetNX(ctx, r.prefix+key, time.Now().Unix(), r.cooldown).Result()
	if err != nil {
		return false, fmt.Errorf("redis cooldown: %w", err)
	}
	return ok, nil
}

func (r *RedisCooldown) Close() error {
	return r.client.Close()
}
