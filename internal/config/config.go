package config

import (
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/caarlos0/env/v11"
)

// Config is the process configuration, read from the environment.
type Config struct {
	Port    string `env:"PORT" envDefault:"8080"`
	BaseURL string `env:"BASE_URL" envDefault:"http://localhost:8080"`

	DatabaseURL   string `env:"DATABASE_URL"`
	SessionSecret string `env:"SESSION_SECRET"`

	GoogleClientID     string `env:"GOOGLE_CLIENT_ID"`
	GoogleClientSecret string `env:"GOOGLE_CLIENT_SECRET"`

	TMDBAPIKey    string  `env:"TMDB_API_KEY"`
	TMDBBaseURL   string  `env:"TMDB_BASE_URL" envDefault:"https://api.themoviedb.org/3"`
	TMDBRateLimit float64 `env:"TMDB_RATE_LIMIT" envDefault:"40"`

	RetryMaxAttempts int           `env:"RETRY_MAX_ATTEMPTS" envDefault:"3"`
	RetryBaseDelay   time.Duration `env:"RETRY_BASE_DELAY" envDefault:"1s"`
	RetryDeadline    time.Duration `env:"RETRY_DEADLINE" envDefault:"30s"`

	RedisAddr     string `env:"REDIS_ADDR"`
	RedisPassword string `env:"REDIS_PASSWORD"`
	RedisDB       int    `env:"REDIS_DB" envDefault:"0"`

	RecentStore string        `env:"RECENT_STORE" envDefault:"memory"`
	RecentDir   string        `env:"RECENT_DIR" envDefault:"data/recent"`
	RecentTTL   time.Duration `env:"RECENT_TTL" envDefault:"0s"`

	S3Endpoint  string `env:"S3_ENDPOINT" envDefault:"http://localhost:3900"`
	S3Bucket    string `env:"S3_BUCKET" envDefault:"streamie"`
	S3AccessKey string `env:"S3_ACCESS_KEY"`
	S3SecretKey string `env:"S3_SECRET_KEY"`
	S3Region    string `env:"S3_REGION" envDefault:"eu-central-1"`

	GeoIPDBPath       string `env:"GEOIP_DB_PATH"`
	PlayerURLTemplate string `env:"PLAYER_URL_TEMPLATE" envDefault:"https://vidsrc.xyz/embed/{kind}/{id}"`
	StaticDir         string `env:"STATIC_DIR"`
	MetricsEnabled    bool   `env:"METRICS_ENABLED" envDefault:"true"`

	LogLevel  string `env:"LOG_LEVEL" envDefault:"info"`
	LogFormat string `env:"LOG_FORMAT" envDefault:"text"`
}

var validRecentStores = map[string]bool{"memory": true, "file": true, "redis": true, "s3": true}

// Load parses the environment and validates the combination of settings.
func Load() (Config, error) {
	var cfg Config
	if err := env.Parse(&cfg); err != nil {
		return Config{}, fmt.Errorf("parse environment: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

func (c Config) Validate() error {
	if c.DatabaseURL != "" && c.SessionSecret == "" {
		return errors.New("SESSION_SECRET is required when DATABASE_URL is set")
	}
	if !validRecentStores[c.RecentStore] {
		return fmt.Errorf("RECENT_STORE must be one of memory, file, redis, s3; got %q", c.RecentStore)
	}
	if c.RecentStore == "redis" && c.RedisAddr == "" {
		return errors.New("REDIS_ADDR is required when RECENT_STORE=redis")
	}
	if c.RetryMaxAttempts < 1 {
		return errors.New("RETRY_MAX_ATTEMPTS must be at least 1")
	}
	if !strings.Contains(c.PlayerURLTemplate, "{id}") {
		return errors.New("PLAYER_URL_TEMPLATE must contain {id}")
	}
	return nil
}

// SecureCookies reports whether cookies should carry the Secure flag.
func (c Config) SecureCookies() bool {
	return strings.HasPrefix(c.BaseURL, "https://")
}

// GoogleRedirectURL is the OAuth callback registered with Google.
func (c Config) GoogleRedirectURL() string {
	return strings.TrimRight(c.BaseURL, "/") + "/auth/google/callback"
}

func (c Config) LogLevelValue() slog.Level {
	switch strings.ToLower(c.LogLevel) {
	case "debug":
		return slog.LevelDebug
	case "warn", "warning":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}
