package cache

import (
	"context"
	"encoding/json"
	"errors"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/d60-Lab/village/internal/model"
	"github.com/d60-Lab/village/pkg/logger"
)

// SuggestionCache 按 (用户, 页大小) 缓存推荐结果
//
// 写入前先取 Generation，Set 时代数已变化（期间发生过 Invalidate）则放弃写入
type SuggestionCache interface {
	Get(ctx context.Context, userID string, limit int) ([]model.SuggestionCandidate, bool)
	Generation(ctx context.Context, userID string) int64
	Set(ctx context.Context, userID string, limit int, gen int64, items []model.SuggestionCandidate)
	Invalidate(ctx context.Context, userIDs ...string) error
}

// RedisSuggestionCache 每个用户一个 hash（field 为页大小），一次 DEL 清掉所有页
type RedisSuggestionCache struct {
	client *redis.Client
	ttl    time.Duration
}

func NewRedisSuggestionCache(client *redis.Client, ttl time.Duration) *RedisSuggestionCache {
	return &RedisSuggestionCache{client: client, ttl: ttl}
}

func suggestionKey(userID string) string { return "suggestions:" + userID }
func generationKey(userID string) string { return "suggestions:gen:" + userID }

func (c *RedisSuggestionCache) Get(ctx context.Context, userID string, limit int) ([]model.SuggestionCandidate, bool) {
	data, err := c.client.HGet(ctx, suggestionKey(userID), strconv.Itoa(limit)).Bytes()
	if err != nil {
		if !errors.Is(err, redis.Nil) {
			logger.Warn("suggestion cache read failed", zap.String("user", userID), zap.Error(err))
		}
		return nil, false
	}
	var out []model.SuggestionCandidate
	if err := json.Unmarshal(data, &out); err != nil {
		return nil, false
	}
	return out, true
}

// Generation 读失败返回 -1，对应的 Set 不会写入
func (c *RedisSuggestionCache) Generation(ctx context.Context, userID string) int64 {
	gen, err := c.client.Get(ctx, generationKey(userID)).Int64()
	switch {
	case err == nil:
		return gen
	case errors.Is(err, redis.Nil):
		return 0
	default:
		logger.Warn("suggestion cache generation read failed", zap.String("user", userID), zap.Error(err))
		return -1
	}
}

func (c *RedisSuggestionCache) Set(ctx context.Context, userID string, limit int, gen int64, items []model.SuggestionCandidate) {
	if gen < 0 {
		return
	}
	payload, err := json.Marshal(items)
	if err != nil {
		return
	}
	key, genKey := suggestionKey(userID), generationKey(userID)

	err = c.client.Watch(ctx, func(tx *redis.Tx) error {
		cur, err := tx.Get(ctx, genKey).Int64()
		if err != nil && !errors.Is(err, redis.Nil) {
			return err
		}
		if cur != gen {
			return errStaleGeneration
		}
		_, err = tx.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
			pipe.HSet(ctx, key, strconv.Itoa(limit), payload)
			pipe.Expire(ctx, key, c.ttl)
			return nil
		})
		return err
	}, genKey)

	switch {
	case err == nil:
	case errors.Is(err, errStaleGeneration), errors.Is(err, redis.TxFailedErr):
		logger.Debug("suggestion cache write skipped, invalidated meanwhile", zap.String("user", userID))
	default:
		logger.Warn("suggestion cache write failed", zap.String("user", userID), zap.Error(err))
	}
}

var errStaleGeneration = errors.New("suggestion cache: stale generation")

// Invalidate 删除缓存页并递增代数，进行中的计算结果不会再写回
func (c *RedisSuggestionCache) Invalidate(ctx context.Context, userIDs ...string) error {
	if len(userIDs) == 0 {
		return nil
	}
	_, err := c.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		for _, id := range userIDs {
			pipe.Del(ctx, suggestionKey(id))
			pipe.Incr(ctx, generationKey(id))
			pipe.Expire(ctx, generationKey(id), c.genTTL())
		}
		return nil
	})
	return err
}

// 代数键需比任何进行中的计算活得久，比页 TTL 长即可
func (c *RedisSuggestionCache) genTTL() time.Duration {
	if c.ttl < time.Hour {
		return time.Hour
	}
	return 2 * c.ttl
}

// Noop 未配置 Redis 时使用
type Noop struct{}

func (Noop) Get(context.Context, string, int) ([]model.SuggestionCandidate, bool) { return nil, false }
func (Noop) Generation(context.Context, string) int64                             { return 0 }
func (Noop) Set(context.Context, string, int, int64, []model.SuggestionCandidate)  {}
func (Noop) Invalidate(context.Context, ...string) error                          { return nil }
