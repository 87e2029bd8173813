package bucket

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"

	"shiptrack/internal/tracking/models"
)

// slidingWindowScript keeps one sorted set per key scored by grant time in
// milliseconds. Trim, count and insert run atomically inside Redis so every
// instance sharing the key sees one window.
//
// Returns {allowed, remaining, reset_at_ms}.
var slidingWindowScript = redis.NewScript(`
local key = KEYS[1]
local now = tonumber(ARGV[1])
local window = tonumber(ARGV[2])
local limit = tonumber(ARGV[3])
local member = ARGV[4]

redis.call('ZREMRANGEBYSCORE', key, '-inf', now - window)
local count = redis.call('ZCARD', key)

if count < limit then
  redis.call('ZADD', key, now, member)
  redis.call('PEXPIRE', key, window)
  local oldest = redis.call('ZRANGE', key, 0, 0, 'WITHSCORES')
  return {1, limit - count - 1, tonumber(oldest[2]) + window}
end

local reset = now + window
local idx = count - limit
if limit > 0 then
  local blocker = redis.call('ZRANGE', key, idx, idx, 'WITHSCORES')
  if blocker[2] then
    reset = tonumber(blocker[2]) + window
  end
end
return {0, 0, reset}
`)

// RedisBucketStore implements ports.BucketStore on Redis sorted sets.
type RedisBucketStore struct {
	client *redis.Client
	prefix string
	now    func() time.Time
}

type RedisOption func(*RedisBucketStore)

// WithKeyPrefix namespaces all keys written by the store.
func WithKeyPrefix(prefix string) RedisOption {
	return func(s *RedisBucketStore) {
		s.prefix = prefix
	}
}

func NewRedisBucketStore(client *redis.Client, opts ...RedisOption) *RedisBucketStore {
	s := &RedisBucketStore{
		client: client,
		prefix: "shiptrack:ratelimit:",
		now:    time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Allow records a grant for key if the shared window has room for one more.
func (s *RedisBucketStore) Allow(ctx context.Context, key string, limit int, window time.Duration) (*models.RateLimitResult, error) {
	nowMs := s.now().UnixMilli()
	vals, err := slidingWindowScript.Run(ctx, s.client, []string{s.prefix + key},
		nowMs, window.Milliseconds(), limit, uuid.NewString()).Int64Slice()
	if err != nil {
		return nil, fmt.Errorf("sliding window check for %s: %w", key, err)
	}
	if len(vals) != 3 {
		return nil, fmt.Errorf("sliding window check for %s: unexpected reply %v", key, vals)
	}
	return &models.RateLimitResult{
		Allowed:   vals[0] == 1,
		Limit:     limit,
		Remaining: int(vals[1]),
		ResetAt:   time.UnixMilli(vals[2]),
	}, nil
}
