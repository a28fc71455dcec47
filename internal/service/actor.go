package service

import (
	"context"

	"github.com/d60-Lab/village/internal/apperr"
	"github.com/d60-Lab/village/internal/ratelimit"
)

// Actor 调用方身份：显式传入每个操作，不依赖全局会话
type Actor struct {
	UserID string
	// Origin 网络来源（如 X-Forwarded-For 首段），仅在未登录时用于限流
	Origin string
}

// RateKey 限流标识：优先用户 ID，其次来源地址
func (a Actor) RateKey() string { return ratelimit.Identifier(a.UserID, a.Origin) }

func (a Actor) authenticated() error {
	if a.UserID == "" {
		return apperr.ErrUnauthenticated
	}
	return nil
}

// Gate 限流闸门，*ratelimit.Limiter 实现该接口
type Gate interface {
	Gate(ctx context.Context, identifier, endpoint, requestType string) error
}

// SuggestionInvalidator 关系变更后使推荐缓存失效
type SuggestionInvalidator interface {
	Invalidate(ctx context.Context, userIDs ...string) error
}

type openGate struct{}

func (openGate) Gate(context.Context, string, string, string) error { return nil }

// OpenGate 不做限制的闸门，供基准工具使用
func OpenGate() Gate { return openGate{} }

func pageBounds(page, pageSize int) (offset, limit int) {
	if page < 1 {
		page = 1
	}
	if pageSize < 1 {
		pageSize = 10
	}
	if pageSize > 100 {
		pageSize = 100
	}
	return (page - 1) * pageSize, pageSize
}
