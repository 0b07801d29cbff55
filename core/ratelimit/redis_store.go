package ratelimit

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

// keyPrefix namespaces rate limit hashes in a shared Redis database.
const keyPrefix = "channelkit:ratelimit:"

// acquireScript runs the full window/backoff decision server-side so
// concurrent instances never observe torn state. Returns
// {throttled, count, reset_at_ms, backoff_until_ms}.
var acquireScript = redis.NewScript(`
local key = KEYS[1]
local now = tonumber(ARGV[1])
local window = tonumber(ARGV[2])
local ceiling = tonumber(ARGV[3])
local base = tonumber(ARGV[4])
local cap = tonumber(ARGV[5])

local state = redis.call('HMGET', key, 'count', 'reset_at', 'backoff_until')
local count = tonumber(state[1]) or 0
local reset_at = tonumber(state[2]) or (now + window)
local backoff_until = tonumber(state[3]) or 0

if backoff_until > now then
	return {1, count, reset_at, backoff_until}
end

if now > reset_at then
	backoff_until = 0
	count = 0
	reset_at = now + window
end

count = count + 1
local throttled = 0
if count > ceiling then
	local backoff = base
	for i = 1, count - ceiling do
		if backoff >= cap then break end
		backoff = backoff * 2
	end
	if backoff > cap then backoff = cap end
	backoff_until = now + backoff
	throttled = 1
end

redis.call('HMSET', key, 'count', count, 'reset_at', reset_at, 'backoff_until', backoff_until)
local ttl = window * 2
if backoff_until > now and (backoff_until - now) * 2 > ttl then
	ttl = (backoff_until - now) * 2
end
redis.call('PEXPIRE', key, ttl)
return {throttled, count, reset_at, backoff_until}
`)

// RedisStore implements Store on top of Redis, sharing per-channel windows
// across application instances.
type RedisStore struct {
	client redis.UniversalClient
}

// NewRedisStore creates a store backed by the given Redis client.
// The client's lifecycle belongs to the caller.
func NewRedisStore(client redis.UniversalClient) (*RedisStore, error) {
	if client == nil {
		return nil, ErrStoreNil
	}
	return &RedisStore{client: client}, nil
}

// Acquire records one acquisition attempt atomically via a Lua script.
func (rs *RedisStore) Acquire(ctx context.Context, channel string, config Config) (State, error) {
	res, err := acquireScript.Run(ctx, rs.client, []string{keyPrefix + channel},
		time.Now().UnixMilli(),
		config.Window.Milliseconds(),
		config.Ceiling,
		config.BackoffBase.Milliseconds(),
		config.BackoffCap.Milliseconds(),
	).Int64Slice()
	if err != nil {
		return State{}, fmt.Errorf("%w: %v", ErrStoreUnavailable, err)
	}
	if len(res) != 4 {
		return State{}, fmt.Errorf("%w: unexpected script reply", ErrStoreUnavailable)
	}

	return stateFromMillis(res[0] == 1, res[1], res[2], res[3]), nil
}

// State returns the channel's current accounting without consuming a slot.
func (rs *RedisStore) State(ctx context.Context, channel string) (State, error) {
	vals, err := rs.client.HMGet(ctx, keyPrefix+channel, "count", "reset_at", "backoff_until").Result()
	if err != nil {
		return State{}, fmt.Errorf("%w: %v", ErrStoreUnavailable, err)
	}

	var count, resetAt, backoffUntil int64
	if len(vals) == 3 {
		count = parseRedisInt(vals[0])
		resetAt = parseRedisInt(vals[1])
		backoffUntil = parseRedisInt(vals[2])
	}

	throttled := backoffUntil > time.Now().UnixMilli()
	return stateFromMillis(throttled, count, resetAt, backoffUntil), nil
}

// Reset clears all state for the channel.
func (rs *RedisStore) Reset(ctx context.Context, channel string) error {
	if err := rs.client.Del(ctx, keyPrefix+channel).Err(); err != nil {
		return fmt.Errorf("%w: %v", ErrStoreUnavailable, err)
	}
	return nil
}

// Healthcheck verifies Redis connectivity with a ping.
func (rs *RedisStore) Healthcheck(ctx context.Context) error {
	if err := rs.client.Ping(ctx).Err(); err != nil {
		return fmt.Errorf("%w: %v", ErrStoreUnavailable, err)
	}
	return nil
}

func stateFromMillis(throttled bool, count, resetAt, backoffUntil int64) State {
	s := State{
		Count:         int(count),
		WindowResetAt: time.UnixMilli(resetAt),
		Throttled:     throttled,
	}
	if backoffUntil > 0 {
		s.BackoffUntil = time.UnixMilli(backoffUntil)
	}
	return s
}

// parseRedisInt converts an HMGET reply value, which is either nil or a
// string, into an int64.
func parseRedisInt(v any) int64 {
	s, ok := v.(string)
	if !ok {
		return 0
	}
	var n int64
	_, _ = fmt.Sscan(s, &n)
	return n
}
