package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/getsentry/sentry-go"
	"github.com/gin-gonic/gin"
	"github.com/redis/go-redis/v9"
	"github.com/rs/cors"
	"go.uber.org/zap"
	"gorm.io/gorm"

	"github.com/d60-Lab/village/config"
	"github.com/d60-Lab/village/internal/api"
	"github.com/d60-Lab/village/internal/api/handler"
	"github.com/d60-Lab/village/internal/cache"
	"github.com/d60-Lab/village/internal/ratelimit"
	"github.com/d60-Lab/village/internal/repository"
	"github.com/d60-Lab/village/internal/service"
	"github.com/d60-Lab/village/pkg/database"
	"github.com/d60-Lab/village/pkg/logger"
	"github.com/d60-Lab/village/pkg/tracing"
)

// @title Village Social API
// @version 1.0
// @BasePath /
// @securityDefinitions.apikey BearerAuth
// @in header
// @name Authorization
func main() {
	cfg, err := config.Load()
	if err != nil {
		panic(fmt.Sprintf("load config: %v", err))
	}
	if err := logger.Init(cfg.Log.Level, cfg.Log.Format); err != nil {
		panic(fmt.Sprintf("init logger: %v", err))
	}
	defer func() { _ = logger.Sync() }()

	if cfg.Sentry.DSN != "" {
		if err := sentry.Init(sentry.ClientOptions{Dsn: cfg.Sentry.DSN, Environment: cfg.Sentry.Environment}); err != nil {
			logger.Warn("sentry init failed", zap.Error(err))
		}
		defer sentry.Flush(2 * time.Second)
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	shutdownTracing, err := tracing.Init(ctx, cfg.Tracing)
	if err != nil {
		logger.Fatal("init tracing", zap.Error(err))
	}

	db, err := database.InitDB(cfg)
	if err != nil {
		logger.Fatal("init database", zap.Error(err))
	}

	var rdb *redis.Client
	if cfg.Redis.Enabled {
		rdb = redis.NewClient(&redis.Options{Addr: cfg.Redis.Addr, Password: cfg.Redis.Password, DB: cfg.Redis.DB})
		if err := rdb.Ping(ctx).Err(); err != nil {
			logger.Fatal("connect redis", zap.Error(err))
		}
		defer func() { _ = rdb.Close() }()
	}

	// rate limiter
	gormStore := ratelimit.NewGormStore(db)
	var store ratelimit.Store = gormStore
	if cfg.RateLimit.Backend == "redis" {
		store = ratelimit.NewRedisStore(rdb)
	}
	limiter := ratelimit.NewLimiter(store, policies(cfg.RateLimit))
	guard := ratelimit.NewOriginGuard(cfg.RateLimit.OriginRPS, cfg.RateLimit.OriginBurst)

	var suggestCache cache.SuggestionCache = cache.Noop{}
	if rdb != nil {
		suggestCache = cache.NewRedisSuggestionCache(rdb, cfg.Suggestions.CacheTTL)
	}

	// repositories & services
	followRepo := repository.NewFollowRepository(db)
	requestRepo := repository.NewFollowRequestRepository(db)
	profileRepo := repository.NewProfileRepository(db)
	contactRepo := repository.NewContactRepository(db)
	suggestRepo := repository.NewSuggestionRepository(db)

	purger := service.NewContactPurger(contactRepo, cfg.Contacts.QueueSize, cfg.Contacts.Retention, cfg.Contacts.SweepInterval)
	stopPurger := purger.Start(cfg.Contacts.PurgeWorkers)

	connSvc := service.NewConnectionService(db, followRepo, requestRepo, profileRepo, limiter, suggestCache)
	contactSvc := service.NewContactService(db, contactRepo, profileRepo, limiter, purger, cfg.Contacts.MaxBatch)
	suggestSvc := service.NewSuggestionService(suggestRepo, profileRepo, suggestCache, limiter, cfg.Suggestions.MaxLimit)

	gin.SetMode(cfg.Server.Mode)
	router := api.SetupRouter(handler.NewHandler(connSvc, contactSvc, suggestSvc), api.Options{
		JWTSecret:      cfg.JWT.Secret,
		ServiceName:    cfg.Tracing.ServiceName,
		Tracing:        cfg.Tracing.Enabled,
		Guard:          guard,
		TrustedProxies: cfg.Server.TrustedProxies,
		Ready:          func() error { return ping(db) },
	})

	srv := &http.Server{
		Addr: fmt.Sprintf(":%d", cfg.Server.Port),
		Handler: cors.New(cors.Options{
			AllowedOrigins: cfg.Server.AllowedOrigins,
			AllowedMethods: []string{http.MethodGet, http.MethodPost, http.MethodDelete, http.MethodOptions},
			AllowedHeaders: []string{"Authorization", "Content-Type"},
			ExposedHeaders: []string{"Retry-After"},
		}).Handler(router),
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
	}

	go janitor(ctx, guard, gormStore, maxWindow(cfg.RateLimit))

	go func() {
		logger.Info("server listening", zap.String("addr", srv.Addr))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Fatal("listen", zap.Error(err))
		}
	}()

	<-ctx.Done()
	logger.Info("shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error("http shutdown", zap.Error(err))
	}
	if err := stopPurger(shutdownCtx); err != nil {
		logger.Warn("contact purger drain", zap.Error(err))
	}
	if err := shutdownTracing(shutdownCtx); err != nil {
		logger.Warn("tracing shutdown", zap.Error(err))
	}
}

func policies(cfg config.RateLimitConfig) map[string]ratelimit.Policy {
	out := make(map[string]ratelimit.Policy, len(cfg.Policies))
	for name, p := range cfg.Policies {
		out[name] = ratelimit.Policy{MaxRequests: p.MaxRequests, Window: time.Duration(p.WindowMinutes) * time.Minute}
	}
	return out
}

func maxWindow(cfg config.RateLimitConfig) time.Duration {
	var w time.Duration
	for _, p := range cfg.Policies {
		if d := time.Duration(p.WindowMinutes) * time.Minute; d > w {
			w = d
		}
	}
	return w
}

// janitor 定期清理空闲的来源桶与过期的限流窗口
func janitor(ctx context.Context, guard *ratelimit.OriginGuard, store *ratelimit.GormStore, window time.Duration) {
	ticker := time.NewTicker(5 * time.Minute)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			guard.Sweep()
			if n, err := store.PurgeExpired(ctx, time.Now().Add(-window)); err != nil {
				logger.Warn("purge rate windows", zap.Error(err))
			} else if n > 0 {
				logger.Debug("purged rate windows", zap.Int64("rows", n))
			}
		}
	}
}

func ping(db *gorm.DB) error {
	sqlDB, err := db.DB()
	if err != nil {
		return err
	}
	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	return sqlDB.PingContext(ctx)
}
