// Package config は環境変数から設定を読み込む。
package config

import (
	"errors"
	"strings"
	"time"

	"github.com/caarlos0/env/v10"

	"github.com/hitoshi/barberadmin/internal/model"
)

// Config はサーバー全体の設定を保持する。
// 環境変数から起動時に1回読み込み、イミュータブルとして扱う。
type Config struct {
	// Store
	DatabaseURL    string `env:"DATABASE_URL,required,notEmpty"`
	StorePublicKey string `env:"STORE_PUBLIC_KEY,required,notEmpty"`

	// Session
	SessionMaxAge          int           `env:"SESSION_MAX_AGE" envDefault:"86400"`
	SessionCleanupInterval time.Duration `env:"SESSION_CLEANUP_INTERVAL" envDefault:"1h"`

	// Routes
	LandingRoute string `env:"LANDING_ROUTE" envDefault:"/app/barbershops"`
	LoginRoute   string `env:"LOGIN_ROUTE" envDefault:"/login"`

	// Server
	ServerPort string `env:"SERVER_PORT" envDefault:"8080"`
	BaseURL    string `env:"BASE_URL" envDefault:"http://localhost:8080"`

	// Cookie
	CookieDomain string `env:"COOKIE_DOMAIN"`
	CookieSecure bool

	// CORS
	CORSAllowedOrigin string `env:"CORS_ALLOWED_ORIGIN" envDefault:"http://localhost:3000"`

	// Rate Limit（1分あたりのリクエスト数）
	RateLimitGeneral int `env:"RATE_LIMIT_GENERAL" envDefault:"120"`
	RateLimitSignIn  int `env:"RATE_LIMIT_SIGN_IN" envDefault:"10"`

	// Redis（未設定の場合はプロセス内実装を使用）
	RedisAddr     string `env:"REDIS_ADDR"`
	RedisPassword string `env:"REDIS_PASSWORD"`
	RedisDB       int    `env:"REDIS_DB" envDefault:"0"`

	// View cache
	ViewCacheTTL time.Duration `env:"VIEW_CACHE_TTL" envDefault:"5m"`

	// ロゴURLの到達確認を行うか
	LogoURLProbe bool `env:"LOGO_URL_PROBE" envDefault:"false"`

	// Logging
	LogLevel string `env:"LOG_LEVEL" envDefault:"info"`
}

// ClientConfig はセッションストアに接続するクライアントの設定。
type ClientConfig struct {
	StoreURL       string `env:"STORE_URL,required,notEmpty"`
	StorePublicKey string `env:"STORE_PUBLIC_KEY,required,notEmpty"`
}

// Load は環境変数からConfigを読み込む。
// 必須環境変数が未設定の場合は*model.ConfigurationErrorを返す。
func Load() (*Config, error) {
	cfg := &Config{}
	if err := env.Parse(cfg); err != nil {
		return nil, configurationError(err)
	}

	cfg.CookieSecure = strings.HasPrefix(cfg.BaseURL, "https://")
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// LoadClient は環境変数からClientConfigを読み込む。
// 必須環境変数が未設定の場合は*model.ConfigurationErrorを返す。
func LoadClient() (*ClientConfig, error) {
	cfg := &ClientConfig{}
	if err := env.Parse(cfg); err != nil {
		return nil, configurationError(err)
	}
	return cfg, nil
}

// configurationError は読み込みエラーを未設定の変数名一覧に変換する。
// 値の解析失敗などはReasonに元のメッセージを入れる。
func configurationError(err error) *model.ConfigurationError {
	var agg env.AggregateError
	if !errors.As(err, &agg) {
		return &model.ConfigurationError{Reason: err.Error()}
	}

	var missing, other []string
	for _, e := range agg.Errors {
		var notSet env.EnvVarIsNotSetError
		var empty env.EmptyEnvVarError
		switch {
		case errors.As(e, &notSet):
			missing = append(missing, notSet.Key)
		case errors.As(e, &empty):
			missing = append(missing, empty.Key)
		default:
			other = append(other, e.Error())
		}
	}

	cfgErr := &model.ConfigurationError{Missing: missing}
	if len(other) > 0 {
		cfgErr.Reason = strings.Join(other, "; ")
	}
	return cfgErr
}

// Validate は値の組み合わせを検証する。
func (c *Config) Validate() error {
	var problems []string
	if c.SessionMaxAge <= 0 {
		problems = append(problems, "SESSION_MAX_AGE must be positive")
	}
	if !strings.HasPrefix(c.LandingRoute, "/") || !strings.HasPrefix(c.LoginRoute, "/") {
		problems = append(problems, "LANDING_ROUTE and LOGIN_ROUTE must be absolute paths")
	}
	if c.RateLimitGeneral <= 0 || c.RateLimitSignIn <= 0 {
		problems = append(problems, "rate limits must be positive")
	}
	if len(problems) > 0 {
		return &model.ConfigurationError{Reason: strings.Join(problems, "; ")}
	}
	return nil
}
