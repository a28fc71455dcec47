package ratelimit

import (
	"context"
	"time"

	"go.uber.org/zap"

	"github.com/d60-Lab/village/internal/apperr"
	"github.com/d60-Lab/village/pkg/logger"
)

// 受限的请求类型
const (
	TypeFollowRequest = "follow_request"
	TypeContactMatch  = "contact_match"
	TypeSuggestions   = "suggestions"
)

// 计数所属端点
const (
	EndpointConnections = "connections"
	EndpointContacts    = "contacts"
	EndpointSuggestions = "suggestions"
)

// Key 唯一确定一个计数器
type Key struct {
	Identifier  string
	Endpoint    string
	RequestType string
}

// Policy 单个请求类型的上限
type Policy struct {
	MaxRequests int
	Window      time.Duration
}

type Decision struct {
	Allowed     bool
	Count       int
	WindowStart time.Time
	RetryAfter  time.Duration
}

// Store 计数持久化。Increment 必须在一次原子操作内完成：窗口过期或不存在则重置，
// 然后加一，返回加一后的计数与窗口起点
type Store interface {
	Increment(ctx context.Context, key Key, now time.Time, window time.Duration) (count int, windowStart time.Time, err error)
}

// Limiter 在 Store 之上应用限流策略
type Limiter struct {
	store    Store
	policies map[string]Policy
	now      func() time.Time
}

type Option func(*Limiter)

// WithClock 测试用时钟
func WithClock(now func() time.Time) Option {
	return func(l *Limiter) { l.now = now }
}

func NewLimiter(store Store, policies map[string]Policy, opts ...Option) *Limiter {
	l := &Limiter{store: store, policies: policies, now: time.Now}
	for _, o := range opts {
		o(l)
	}
	return l
}

// CheckAndIncrement 计一次请求。被拒绝的请求同样计数，调用方不要重试检查
func (l *Limiter) CheckAndIncrement(ctx context.Context, identifier, endpoint, requestType string, maxRequests int, window time.Duration) (Decision, error) {
	if identifier == "" || endpoint == "" || requestType == "" || maxRequests <= 0 || window <= 0 {
		return Decision{}, apperr.ErrInvalidArgument.Withf("invalid rate limit key or policy")
	}
	now := l.now().UTC()
	key := Key{Identifier: identifier, Endpoint: endpoint, RequestType: requestType}
	count, start, err := l.store.Increment(ctx, key, now, window)
	if err != nil {
		return Decision{}, apperr.FromStore(err)
	}
	d := Decision{Allowed: count <= maxRequests, Count: count, WindowStart: start}
	if !d.Allowed {
		d.RetryAfter = start.Add(window).Sub(now)
		if d.RetryAfter < time.Second {
			d.RetryAfter = time.Second
		}
	}
	return d, nil
}

// Gate 按配置策略检查，超限返回携带 RetryAfter 的 RateLimitExceeded。
// 未配置策略的类型直接拒绝
func (l *Limiter) Gate(ctx context.Context, identifier, endpoint, requestType string) error {
	p, ok := l.policies[requestType]
	if !ok {
		logger.Error("no rate limit policy configured", zap.String("request_type", requestType))
		return apperr.ErrInternal.Withf("no rate limit policy for %q", requestType)
	}
	d, err := l.CheckAndIncrement(ctx, identifier, endpoint, requestType, p.MaxRequests, p.Window)
	if err != nil {
		return err
	}
	if !d.Allowed {
		logger.Info("rate limited",
			zap.String("identifier", identifier),
			zap.String("endpoint", endpoint),
			zap.String("request_type", requestType),
			zap.Int("count", d.Count),
			zap.Duration("retry_after", d.RetryAfter))
		return apperr.RateLimited(d.RetryAfter)
	}
	return nil
}

func (l *Limiter) Policy(requestType string) (Policy, bool) {
	p, ok := l.policies[requestType]
	return p, ok
}
