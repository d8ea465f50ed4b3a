package config

import (
	"fmt"
	"time"

	"github.com/mitchellh/mapstructure"
	"github.com/spf13/viper"
)

type AppConfig struct {
	Environment      string
	PublicURL        string
	HTTP             HTTPConfig
	Postgres         PostgresConfig
	Redis            RedisConfig
	Identity         IdentityConfig
	Cookies          CookieConfig
	Backend          BackendConfig
	Watcher          WatcherConfig
	Cache            CacheConfig
	RateLimit        RateLimitConfig
	Jobs             JobsConfig
	AllowCORSOrigins []string
}

type HTTPConfig struct {
	Host         string
	Port         int
	ReadTimeout  time.Duration
	WriteTimeout time.Duration
	IdleTimeout  time.Duration
	// MetricsAddr is the private listener for /metrics. Empty disables it.
	MetricsAddr string
}

type PostgresConfig struct {
	DSN             string
	MaxOpen         int
	MaxIdle         int
	ConnMaxLifetime time.Duration
}

type RedisConfig struct {
	Addr        string
	Password    string
	DB          int
	ClientName  string
	PoolSize    int
	DialTimeout time.Duration
	ReadTimeout time.Duration
}

// IdentityConfig describes the OAuth2 identity provider the dashboard
// delegates sign-in to.
type IdentityConfig struct {
	AuthorizeURL     string
	TokenURL         string
	ClientID         string
	ClientSecret     string
	RedirectURL      string
	Scopes           []string
	JWTSecret        string
	Audience         string
	RefreshLeeway    time.Duration
	RefreshTTL       time.Duration
	FragmentRecovery bool
}

type CookieConfig struct {
	Prefix string
	Domain string
	Secure bool
}

type BackendConfig struct {
	BaseURL string
	Timeout time.Duration
}

type WatcherConfig struct {
	Stream string
	Block  time.Duration
	MaxLen int64
}

type CacheConfig struct {
	ProfileTTL time.Duration
}

type RateLimitConfig struct {
	ExchangePerMinute int
	Burst             int
}

type JobsConfig struct {
	BackendProbe string
}

// IsProduction reports whether secure cookie and logging defaults apply.
func (c *AppConfig) IsProduction() bool {
	return c.Environment == "production"
}

func Load() (*AppConfig, error) {
	v := viper.New()
	v.SetConfigName("config")
	v.SetConfigType("yaml")
	v.AddConfigPath(".")
	v.AddConfigPath("./config")
	v.AddConfigPath("../config")

	v.SetEnvPrefix("TUBEINSIGHT")
	v.AutomaticEnv()

	setDefaults(v)

	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, fmt.Errorf("load config file: %w", err)
		}
	}

	var cfg AppConfig
	if err := v.Unmarshal(&cfg, func(dc *mapstructure.DecoderConfig) {
		dc.TagName = "mapstructure"
		dc.DecodeHook = mapstructure.ComposeDecodeHookFunc(
			mapstructure.StringToTimeDurationHookFunc(),
			mapstructure.StringToSliceHookFunc(","),
		)
	}); err != nil {
		return nil, fmt.Errorf("unmarshal config: %w", err)
	}

	if cfg.IsProduction() {
		cfg.Cookies.Secure = true
	}

	return &cfg, nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("environment", "development")
	v.SetDefault("publicurl", "")

	v.SetDefault("http.host", "0.0.0.0")
	v.SetDefault("http.port", 3000)
	v.SetDefault("http.readtimeout", "10s")
	v.SetDefault("http.writetimeout", "0s") // SSE streams stay open
	v.SetDefault("http.idletimeout", "60s")
	v.SetDefault("http.metricsaddr", "127.0.0.1:9090")

	v.SetDefault("postgres.maxopen", 20)
	v.SetDefault("postgres.maxidle", 5)
	v.SetDefault("postgres.connmaxlifetime", "30m")

	v.SetDefault("redis.addr", "127.0.0.1:6379")
	v.SetDefault("redis.db", 0)
	v.SetDefault("redis.clientname", "tubeinsight-dashboard")
	v.SetDefault("redis.poolsize", 10)
	v.SetDefault("redis.dialtimeout", "5s")
	v.SetDefault("redis.readtimeout", "3s")

	v.SetDefault("identity.scopes", []string{"openid", "email"})
	v.SetDefault("identity.audience", "authenticated")
	v.SetDefault("identity.refreshleeway", "30s")
	v.SetDefault("identity.refreshttl", "720h")
	v.SetDefault("identity.fragmentrecovery", false)

	v.SetDefault("cookies.prefix", "sb")
	v.SetDefault("cookies.secure", false)

	v.SetDefault("backend.baseurl", "http://127.0.0.1:5000")
	v.SetDefault("backend.timeout", "15s")

	v.SetDefault("watcher.stream", "auth:events")
	v.SetDefault("watcher.block", "5s")
	v.SetDefault("watcher.maxlen", 1000)

	v.SetDefault("cache.profilettl", "60s")

	v.SetDefault("ratelimit.exchangeperminute", 30)
	v.SetDefault("ratelimit.burst", 10)

	v.SetDefault("jobs.backendprobe", "*/30 * * * * *")
}
