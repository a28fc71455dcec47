package config

import (
	"errors"
	"fmt"
	"net"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Config 应用配置
type Config struct {
	Server      ServerConfig      `mapstructure:"server"`
	Database    DatabaseConfig    `mapstructure:"database"`
	Redis       RedisConfig       `mapstructure:"redis"`
	JWT         JWTConfig         `mapstructure:"jwt"`
	RateLimit   RateLimitConfig   `mapstructure:"ratelimit"`
	Contacts    ContactsConfig    `mapstructure:"contacts"`
	Suggestions SuggestionsConfig `mapstructure:"suggestions"`
	Log         LogConfig         `mapstructure:"log"`
	Sentry      SentryConfig      `mapstructure:"sentry"`
	Tracing     TracingConfig     `mapstructure:"tracing"`
}

type ServerConfig struct {
	Port            int           `mapstructure:"port"`
	Mode            string        `mapstructure:"mode"`
	ReadTimeout     time.Duration `mapstructure:"read_timeout"`
	WriteTimeout    time.Duration `mapstructure:"write_timeout"`
	ShutdownTimeout time.Duration `mapstructure:"shutdown_timeout"`
	AllowedOrigins  []string      `mapstructure:"allowed_origins"`
	// TrustedProxies 只信任这些代理转发的 X-Forwarded-For
	TrustedProxies []string `mapstructure:"trusted_proxies"`
}

// DatabaseConfig driver 取值 postgres | sqlite
type DatabaseConfig struct {
	Driver          string        `mapstructure:"driver"`
	DSN             string        `mapstructure:"dsn"`
	MaxOpenConns    int           `mapstructure:"max_open_conns"`
	MaxIdleConns    int           `mapstructure:"max_idle_conns"`
	ConnMaxLifetime time.Duration `mapstructure:"conn_max_lifetime"`
	AutoMigrate     bool          `mapstructure:"auto_migrate"`
}

type RedisConfig struct {
	Enabled  bool   `mapstructure:"enabled"`
	Addr     string `mapstructure:"addr"`
	Password string `mapstructure:"password"`
	DB       int    `mapstructure:"db"`
}

type JWTConfig struct {
	Secret string `mapstructure:"secret"`
}

// PolicyConfig 固定窗口限流策略
type PolicyConfig struct {
	MaxRequests   int `mapstructure:"max_requests"`
	WindowMinutes int `mapstructure:"window_minutes"`
}

// RateLimitConfig backend 取值 db | redis
type RateLimitConfig struct {
	Backend     string                  `mapstructure:"backend"`
	Policies    map[string]PolicyConfig `mapstructure:"policies"`
	OriginRPS   float64                 `mapstructure:"origin_rps"`
	OriginBurst int                     `mapstructure:"origin_burst"`
}

type ContactsConfig struct {
	MaxBatch      int           `mapstructure:"max_batch"`
	Retention     time.Duration `mapstructure:"retention"`
	PurgeWorkers  int           `mapstructure:"purge_workers"`
	QueueSize     int           `mapstructure:"queue_size"`
	SweepInterval time.Duration `mapstructure:"sweep_interval"`
}

type SuggestionsConfig struct {
	MaxLimit int           `mapstructure:"max_limit"`
	CacheTTL time.Duration `mapstructure:"cache_ttl"`
}

type LogConfig struct {
	Level  string `mapstructure:"level"`
	Format string `mapstructure:"format"`
}

type SentryConfig struct {
	DSN         string `mapstructure:"dsn"`
	Environment string `mapstructure:"environment"`
}

type TracingConfig struct {
	Enabled      bool   `mapstructure:"enabled"`
	OTLPEndpoint string `mapstructure:"otlp_endpoint"`
	ServiceName  string `mapstructure:"service_name"`
}

// Load 加载配置：config.yaml（可选）+ VILLAGE_ 前缀环境变量
func Load() (*Config, error) {
	v := viper.New()
	v.SetConfigName("config")
	v.SetConfigType("yaml")
	v.AddConfigPath(".")
	v.AddConfigPath("./config")
	v.SetEnvPrefix("VILLAGE")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
	setDefaults(v)

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return nil, fmt.Errorf("read config: %w", err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("unmarshal config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("server.port", 8080)
	v.SetDefault("server.mode", "release")
	v.SetDefault("server.read_timeout", 10*time.Second)
	v.SetDefault("server.write_timeout", 10*time.Second)
	v.SetDefault("server.shutdown_timeout", 15*time.Second)
	v.SetDefault("server.allowed_origins", []string{"*"})
	v.SetDefault("server.trusted_proxies", []string{})

	v.SetDefault("database.driver", "postgres")
	v.SetDefault("database.dsn", "host=localhost user=postgres password=postgres dbname=village port=5432 sslmode=disable")
	v.SetDefault("database.max_open_conns", 50)
	v.SetDefault("database.max_idle_conns", 10)
	v.SetDefault("database.conn_max_lifetime", time.Hour)
	v.SetDefault("database.auto_migrate", true)

	v.SetDefault("redis.enabled", false)
	v.SetDefault("redis.addr", "localhost:6379")
	v.SetDefault("redis.password", "")
	v.SetDefault("redis.db", 0)

	// 无默认值，必须由配置文件或 VILLAGE_JWT_SECRET 提供
	v.SetDefault("jwt.secret", "")

	v.SetDefault("ratelimit.backend", "db")
	v.SetDefault("ratelimit.policies", map[string]any{
		"follow_request": map[string]any{"max_requests": 30, "window_minutes": 60},
		"contact_match":  map[string]any{"max_requests": 5, "window_minutes": 60},
		"suggestions":    map[string]any{"max_requests": 60, "window_minutes": 10},
	})
	v.SetDefault("ratelimit.origin_rps", 20.0)
	v.SetDefault("ratelimit.origin_burst", 40)

	v.SetDefault("contacts.max_batch", 2000)
	v.SetDefault("contacts.retention", 10*time.Minute)
	v.SetDefault("contacts.purge_workers", 2)
	v.SetDefault("contacts.queue_size", 1024)
	v.SetDefault("contacts.sweep_interval", time.Minute)

	v.SetDefault("suggestions.max_limit", 20)
	v.SetDefault("suggestions.cache_ttl", 2*time.Minute)

	v.SetDefault("log.level", "info")
	v.SetDefault("log.format", "json")

	v.SetDefault("sentry.dsn", "")
	v.SetDefault("sentry.environment", "production")

	v.SetDefault("tracing.enabled", false)
	v.SetDefault("tracing.otlp_endpoint", "localhost:4318")
	v.SetDefault("tracing.service_name", "village")
}

// 每个受限操作都必须有策略
var requiredPolicies = []string{"follow_request", "contact_match", "suggestions"}

// Validate 校验关键配置
func (c *Config) Validate() error {
	switch c.Database.Driver {
	case "postgres", "sqlite":
	default:
		return fmt.Errorf("unsupported database driver %q", c.Database.Driver)
	}
	switch c.RateLimit.Backend {
	case "db":
	case "redis":
		if !c.Redis.Enabled {
			return errors.New("ratelimit.backend=redis requires redis.enabled")
		}
	default:
		return fmt.Errorf("unsupported ratelimit backend %q", c.RateLimit.Backend)
	}
	for _, p := range c.Server.TrustedProxies {
		if net.ParseIP(p) == nil {
			if _, _, err := net.ParseCIDR(p); err != nil {
				return fmt.Errorf("server.trusted_proxies: invalid address %q", p)
			}
		}
	}
	if c.JWT.Secret == "" {
		return errors.New("jwt.secret is required")
	}
	for _, name := range requiredPolicies {
		if _, ok := c.RateLimit.Policies[name]; !ok {
			return fmt.Errorf("ratelimit policy %q is required", name)
		}
	}
	for name, p := range c.RateLimit.Policies {
		if p.MaxRequests <= 0 || p.WindowMinutes <= 0 {
			return fmt.Errorf("ratelimit policy %q: max_requests and window_minutes must be positive", name)
		}
	}
	return nil
}
