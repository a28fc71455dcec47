package ratelimit

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"
)

const keyPrefix = "ratelimit:"

// 服务端一步完成窗口重置或加一，ARGV: now_ms, window_ms
var incrementScript = redis.NewScript(`
local now = tonumber(ARGV[1])
local win = tonumber(ARGV[2])
local cur = redis.call('HMGET', KEYS[1], 'count', 'start')
local count = tonumber(cur[1])
local start = tonumber(cur[2])
if (not count) or (not start) or (now - start >= win) then
  count = 1
  start = now
  redis.call('HSET', KEYS[1], 'count', 1, 'start', ARGV[1])
else
  count = redis.call('HINCRBY', KEYS[1], 'count', 1)
end
redis.call('PEXPIRE', KEYS[1], win)
return {count, start}
`)

// RedisStore 计数存于 Redis hash
type RedisStore struct {
	client redis.Scripter
}

func NewRedisStore(client redis.Scripter) *RedisStore { return &RedisStore{client: client} }

func redisKey(k Key) string {
	return fmt.Sprintf("%s%s:%s:%s", keyPrefix, k.Identifier, k.Endpoint, k.RequestType)
}

func (s *RedisStore) Increment(ctx context.Context, key Key, now time.Time, window time.Duration) (int, time.Time, error) {
	res, err := incrementScript.Run(ctx, s.client, []string{redisKey(key)},
		strconv.FormatInt(now.UnixMilli(), 10),
		strconv.FormatInt(window.Milliseconds(), 10),
	).Int64Slice()
	if err != nil {
		return 0, time.Time{}, err
	}
	if len(res) != 2 {
		return 0, time.Time{}, errors.New("ratelimit: unexpected script reply")
	}
	return int(res[0]), time.UnixMilli(res[1]).UTC(), nil
}
