package middleware

import (
	"github.com/gin-gonic/gin"

	"github.com/d60-Lab/village/internal/apperr"
	"github.com/d60-Lab/village/internal/ratelimit"
	"github.com/d60-Lab/village/pkg/response"
)

// Origin 按来源地址做内存限流，在认证之前执行
//
// 来源取 ClientIP：只有来自受信代理的 X-Forwarded-For 才会被采信
func Origin(guard *ratelimit.OriginGuard) gin.HandlerFunc {
	return func(c *gin.Context) {
		origin := c.ClientIP()
		c.Set(ContextOrigin, origin)
		if guard != nil && !guard.Allow(ratelimit.Identifier("", origin)) {
			response.Error(c, apperr.RateLimited(0))
			return
		}
		c.Next()
	}
}
