package api

import (
	"net/http"
	"sync"

	"github.com/gin-contrib/gzip"
	"github.com/gin-gonic/gin"
	"github.com/gin-gonic/gin/binding"
	"github.com/go-playground/validator/v10"
	swaggerFiles "github.com/swaggo/files"
	ginSwagger "github.com/swaggo/gin-swagger"
	"go.opentelemetry.io/contrib/instrumentation/github.com/gin-gonic/gin/otelgin"
	"go.uber.org/zap"

	_ "github.com/d60-Lab/village/docs"
	"github.com/d60-Lab/village/internal/api/handler"
	"github.com/d60-Lab/village/internal/api/middleware"
	"github.com/d60-Lab/village/internal/identity"
	"github.com/d60-Lab/village/internal/ratelimit"
	"github.com/d60-Lab/village/pkg/logger"
)

// Options 路由依赖
type Options struct {
	JWTSecret   string
	ServiceName string
	Tracing     bool
	Guard       *ratelimit.OriginGuard
	// TrustedProxies 允许设置 X-Forwarded-For 的代理地址或网段，空则不信任任何代理
	TrustedProxies []string
	// Ready 健康检查探测存储可用性，nil 时总是就绪
	Ready func() error
}

var registerOnce sync.Once

// registerValidators 请求体严格解析：拒绝未知字段，注册摘要格式校验
func registerValidators() {
	registerOnce.Do(func() {
		binding.EnableDecoderDisallowUnknownFields = true
		if v, ok := binding.Validator.Engine().(*validator.Validate); ok {
			_ = v.RegisterValidation("sha256hex", func(fl validator.FieldLevel) bool {
				return identity.IsDigest(fl.Field().String())
			})
		}
	})
}

// SetupRouter 构建 gin 引擎
func SetupRouter(h *handler.Handler, opts Options) *gin.Engine {
	registerValidators()

	r := gin.New()
	if err := r.SetTrustedProxies(opts.TrustedProxies); err != nil {
		logger.Error("invalid trusted proxies, trusting none", zap.Strings("proxies", opts.TrustedProxies), zap.Error(err))
		_ = r.SetTrustedProxies(nil)
	}
	r.Use(middleware.Recovery(), middleware.Logger())
	if opts.Tracing {
		r.Use(otelgin.Middleware(opts.ServiceName))
	}
	r.Use(gzip.Gzip(gzip.DefaultCompression))

	r.GET("/healthz", func(c *gin.Context) {
		if opts.Ready != nil {
			if err := opts.Ready(); err != nil {
				c.JSON(http.StatusServiceUnavailable, gin.H{"status": "unavailable"})
				return
			}
		}
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})
	r.GET("/swagger/*any", ginSwagger.WrapHandler(swaggerFiles.Handler))

	v1 := r.Group("/api/v1")
	v1.Use(middleware.Origin(opts.Guard), middleware.Auth(opts.JWTSecret))
	{
		conn := v1.Group("/connections")
		conn.POST("/requests", h.RequestFollow)
		conn.POST("/follow-back", h.FollowBack)
		conn.GET("/requests/incoming", h.ListIncoming)
		conn.POST("/requests/:id/respond", h.RespondToRequest)
		conn.DELETE("/requests/:target_id", h.CancelRequest)
		conn.DELETE("/following/:target_id", h.Unfollow)
		conn.GET("/status/:target_id", h.Status)

		rel := v1.Group("/relations")
		rel.GET("/:user_id/following", h.ListFollowing)
		rel.GET("/:user_id/followers", h.ListFollowers)

		v1.POST("/contacts/match", h.MatchContacts)
		v1.GET("/suggestions", h.Suggestions)
	}
	return r
}
