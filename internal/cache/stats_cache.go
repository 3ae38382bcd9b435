package cache

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/spec-kit/helpdesk/internal/domain"
)

const (
	statsKeyPrefix = "helpdesk:stats:"
	genKeyPrefix   = "helpdesk:stats-gen:"
)

// setIfCurrent writes the entry only while the generation still matches the one the caller read.
var setIfCurrent = redis.NewScript(`
local current = redis.call('GET', KEYS[2]) or '0'
if current ~= ARGV[1] then
    return 0
end
redis.call('SET', KEYS[1], ARGV[2], 'PX', ARGV[3])
return 1
`)

// RedisStatsCache keeps per-creator ticket stats in Redis.
type RedisStatsCache struct {
	client redis.Cmdable
	ttl    time.Duration
}

// NewRedisStatsCache builds a cache over any go-redis client.
func NewRedisStatsCache(client redis.Cmdable, ttl time.Duration) *RedisStatsCache {
	if ttl <= 0 {
		ttl = time.Minute
	}
	return &RedisStatsCache{client: client, ttl: ttl}
}

func statsKey(userID int64) string {
	return fmt.Sprintf("%s%d", statsKeyPrefix, userID)
}

func genKey(userID int64) string {
	return fmt.Sprintf("%s%d", genKeyPrefix, userID)
}

// Get returns the cached stats and whether they were present.
func (c *RedisStatsCache) Get(ctx context.Context, userID int64) (domain.TicketStats, bool, error) {
	var stats domain.TicketStats
	raw, err := c.client.Get(ctx, statsKey(userID)).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return stats, false, nil
		}
		return stats, false, err
	}
	if err := json.Unmarshal(raw, &stats); err != nil {
		return stats, false, fmt.Errorf("decode cached stats: %w", err)
	}
	return stats, true, nil
}

// Generation returns the invalidation counter of userID. Read it before loading stats from the store.
func (c *RedisStatsCache) Generation(ctx context.Context, userID int64) (int64, error) {
	gen, err := c.client.Get(ctx, genKey(userID)).Int64()
	if errors.Is(err, redis.Nil) {
		return 0, nil
	}
	return gen, err
}

// Set stores stats with the configured TTL unless userID was invalidated after gen was read.
// It reports whether the entry was written.
func (c *RedisStatsCache) Set(ctx context.Context, userID, gen int64, stats domain.TicketStats) (bool, error) {
	raw, err := json.Marshal(stats)
	if err != nil {
		return false, err
	}
	written, err := setIfCurrent.Run(ctx, c.client,
		[]string{statsKey(userID), genKey(userID)},
		strconv.FormatInt(gen, 10), raw, c.ttl.Milliseconds()).Int()
	if err != nil {
		return false, err
	}
	return written == 1, nil
}

// Invalidate drops the entry for userID and bumps its generation.
func (c *RedisStatsCache) Invalidate(ctx context.Context, userID int64) error {
	_, err := c.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.Incr(ctx, genKey(userID))
		pipe.Del(ctx, statsKey(userID))
		return nil
	})
	return err
}
