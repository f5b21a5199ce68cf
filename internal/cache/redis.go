package cache

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/Domenick1991/teleconsult/config"
	"github.com/Domenick1991/teleconsult/internal/domain"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

// releaseLockScript deletes a lock only if it is still held by the caller.
var releaseLockScript = redis.NewScript(`
if redis.call("GET", KEYS[1]) == ARGV[1] then
	return redis.call("DEL", KEYS[1])
end
return 0
`)

type RedisCache struct {
	client  *redis.Client
	gridTTL time.Duration
	log     *zap.Logger
}

func NewRedisCache(cfg config.RedisConfig, gridTTL time.Duration, log *zap.Logger) *RedisCache {
	return &RedisCache{
		client:  redis.NewClient(&redis.Options{Addr: cfg.Addr, Password: cfg.Password, DB: cfg.DB}),
		gridTTL: gridTTL,
		log:     log,
	}
}

// GetGrids fetches cached grids by key. Missing or undecodable entries are
// simply absent from the result.
func (c *RedisCache) GetGrids(ctx context.Context, keys []string) (map[string][]domain.TimeSlot, error) {
	out := make(map[string][]domain.TimeSlot, len(keys))
	if len(keys) == 0 {
		return out, nil
	}

	values, err := c.client.MGet(ctx, keys...).Result()
	if err != nil {
		return nil, err
	}
	for i, v := range values {
		raw, ok := v.(string)
		if !ok {
			continue
		}
		var slots []domain.TimeSlot
		if err := json.Unmarshal([]byte(raw), &slots); err != nil {
			c.log.Warn("drop undecodable grid", zap.String("key", keys[i]), zap.Error(err))
			continue
		}
		out[keys[i]] = slots
	}
	return out, nil
}

func (c *RedisCache) SetGrids(ctx context.Context, grids map[string][]domain.TimeSlot) error {
	if len(grids) == 0 {
		return nil
	}
	pipe := c.client.Pipeline()
	for key, slots := range grids {
		payload, err := json.Marshal(slots)
		if err != nil {
			return err
		}
		pipe.Set(ctx, key, payload, c.gridTTL)
	}
	_, err := pipe.Exec(ctx)
	return err
}

// AcquireSlotLock takes the exclusive reserve-time lock for one provider and
// instant. owner is stored so only the holder can release it.
func (c *RedisCache) AcquireSlotLock(ctx context.Context, providerID string, start time.Time, owner string, ttl time.Duration) (bool, error) {
	return c.client.SetNX(ctx, SlotLockKey(providerID, start), owner, ttl).Result()
}

func (c *RedisCache) ReleaseSlotLock(ctx context.Context, providerID string, start time.Time, owner string) error {
	err := releaseLockScript.Run(ctx, c.client, []string{SlotLockKey(providerID, start)}, owner).Err()
	if errors.Is(err, redis.Nil) {
		return nil
	}
	return err
}

func (c *RedisCache) Ping(ctx context.Context) error {
	return c.client.Ping(ctx).Err()
}

func (c *RedisCache) Close() error {
	return c.client.Close()
}

// GridKey identifies the grid one block produces on one date. The block's
// version is part of the key, so editing or deactivating a block orphans its
// cached grids instead of serving them stale.
func GridKey(block domain.AvailabilityBlock, date domain.Date, step time.Duration) string {
	return fmt.Sprintf("cache:grid:%s:%d:%s:%d", block.ID, block.Version(), date, int(step/time.Minute))
}

func SlotLockKey(providerID string, start time.Time) string {
	return fmt.Sprintf("lock:slot:%s:%d", providerID, start.UTC().Unix())
}
