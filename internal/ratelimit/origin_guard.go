package ratelimit

import (
	"sync"
	"time"

	"golang.org/x/time/rate"
)

// OriginGuard 按来源在内存中削峰，挡在持久化计数之前，不替代 Limiter
type OriginGuard struct {
	mu       sync.Mutex
	limit    rate.Limit
	burst    int
	idleTTL  time.Duration
	visitors map[string]*visitor
	now      func() time.Time
}

type visitor struct {
	limiter  *rate.Limiter
	lastSeen time.Time
}

func NewOriginGuard(rps float64, burst int) *OriginGuard {
	if burst <= 0 {
		burst = 1
	}
	return &OriginGuard{
		limit:    rate.Limit(rps),
		burst:    burst,
		idleTTL:  10 * time.Minute,
		visitors: make(map[string]*visitor),
		now:      time.Now,
	}
}

func (g *OriginGuard) Allow(key string) bool {
	g.mu.Lock()
	defer g.mu.Unlock()
	now := g.now()
	v, ok := g.visitors[key]
	if !ok {
		v = &visitor{limiter: rate.NewLimiter(g.limit, g.burst)}
		g.visitors[key] = v
	}
	v.lastSeen = now
	return v.limiter.AllowN(now, 1)
}

// Sweep 清理空闲超过 idleTTL 的来源
func (g *OriginGuard) Sweep() int {
	g.mu.Lock()
	defer g.mu.Unlock()
	cutoff := g.now().Add(-g.idleTTL)
	n := 0
	for k, v := range g.visitors {
		if v.lastSeen.Before(cutoff) {
			delete(g.visitors, k)
			n++
		}
	}
	return n
}
