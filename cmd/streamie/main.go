package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/redis/go-redis/v9"
	"golang.org/x/oauth2"

	"github.com/streamie/streamie/internal/auth"
	"github.com/streamie/streamie/internal/catalog"
	"github.com/streamie/streamie/internal/config"
	"github.com/streamie/streamie/internal/database"
	"github.com/streamie/streamie/internal/geoip"
	"github.com/streamie/streamie/internal/recent"
	"github.com/streamie/streamie/internal/retry"
	"github.com/streamie/streamie/internal/server"
	"github.com/streamie/streamie/internal/storage"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		slog.Error("invalid configuration", "error", err)
		os.Exit(1)
	}
	slog.SetDefault(newLogger(cfg, os.Stderr))

	if err := run(cfg); err != nil {
		slog.Error("streamie exited", "error", err)
		os.Exit(1)
	}
}

func newLogger(cfg config.Config, w io.Writer) *slog.Logger {
	opts := &slog.HandlerOptions{Level: cfg.LogLevelValue()}
	if strings.EqualFold(cfg.LogFormat, "json") {
		return slog.New(slog.NewJSONHandler(w, opts))
	}
	return slog.New(slog.NewTextHandler(w, opts))
}

func run(cfg config.Config) error {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	srvCfg := server.Config{
		SessionSecret:     cfg.SessionSecret,
		BaseURL:           cfg.BaseURL,
		SecureCookies:     cfg.SecureCookies(),
		PlayerURLTemplate: cfg.PlayerURLTemplate,
		Metrics:           cfg.MetricsEnabled,
	}

	if cfg.DatabaseURL != "" {
		db, err := database.Connect(ctx, cfg.DatabaseURL)
		if err != nil {
			return fmt.Errorf("database connection failed: %w", err)
		}
		defer db.Close()

		if err := db.Migrate(cfg.DatabaseURL); err != nil {
			return fmt.Errorf("database migration failed: %w", err)
		}
		slog.Info("database migrations applied")
		srvCfg.DB = db.Pool
		srvCfg.Pinger = db
		srvCfg.OAuth = googleConfig(cfg)
	} else {
		slog.Warn("DATABASE_URL not set, sign-in and saved movies are disabled")
	}

	var rdb *redis.Client
	if cfg.RedisAddr != "" {
		rdb = redis.NewClient(&redis.Options{Addr: cfg.RedisAddr, Password: cfg.RedisPassword, DB: cfg.RedisDB})
		defer func() { _ = rdb.Close() }()
		if err := rdb.Ping(ctx).Err(); err != nil {
			return fmt.Errorf("redis ping failed: %w", err)
		}
		slog.Info("redis connected", "addr", cfg.RedisAddr)
	}

	store, err := newRecentStore(ctx, cfg, rdb)
	if err != nil {
		return err
	}
	srvCfg.Recent = recent.NewCache(store)
	slog.Info("recently watched store ready", "backend", cfg.RecentStore)

	srvCfg.Catalog = newCatalogClient(cfg, rdb)

	geo, err := geoip.New(cfg.GeoIPDBPath)
	if err != nil {
		return fmt.Errorf("geoip: %w", err)
	}
	defer func() { _ = geo.Close() }()
	srvCfg.Geo = geo

	if webFS, ok := staticFS(cfg.StaticDir); ok {
		srvCfg.WebFS = webFS
		slog.Info("serving frontend", "dir", cfg.StaticDir)
	} else {
		slog.Info("no frontend directory, SPA serving disabled")
	}

	srv := server.New(srvCfg)

	janitorCtx, stopJanitors := context.WithCancel(context.Background())
	defer stopJanitors()
	go srv.RunJanitors(janitorCtx)

	httpServer := &http.Server{
		Addr:              fmt.Sprintf(":%s", cfg.Port),
		Handler:           srv,
		ReadHeaderTimeout: 10 * time.Second,
		ReadTimeout:       30 * time.Second,
		WriteTimeout:      60 * time.Second,
		IdleTimeout:       120 * time.Second,
	}

	serveErr := make(chan error, 1)
	go func() {
		slog.Info("streamie listening", "port", cfg.Port)
		if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serveErr <- err
		}
		close(serveErr)
	}()

	shutdownCh := make(chan os.Signal, 1)
	signal.Notify(shutdownCh, syscall.SIGINT, syscall.SIGTERM)

	select {
	case err := <-serveErr:
		return err
	case <-shutdownCh:
	}
	slog.Info("shutting down...")

	shutdownCtx, cancelShutdown := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancelShutdown()
	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("shutdown failed: %w", err)
	}
	slog.Info("shutdown complete")
	return nil
}

func googleConfig(cfg config.Config) *oauth2.Config {
	if cfg.GoogleClientID == "" || cfg.GoogleClientSecret == "" {
		slog.Warn("google oauth credentials not set, sign-in is unavailable")
		return nil
	}
	return auth.GoogleConfig(cfg.GoogleClientID, cfg.GoogleClientSecret, cfg.GoogleRedirectURL())
}

func newRecentStore(ctx context.Context, cfg config.Config, rdb *redis.Client) (recent.Store, error) {
	switch cfg.RecentStore {
	case "file":
		store, err := recent.NewFileStore(cfg.RecentDir)
		if err != nil {
			return nil, fmt.Errorf("recent file store: %w", err)
		}
		return store, nil
	case "redis":
		if rdb == nil {
			return nil, errors.New("recent redis store requires REDIS_ADDR")
		}
		return recent.NewRedisStore(rdb, "streamie:", cfg.RecentTTL), nil
	case "s3":
		objects, err := storage.New(ctx, storage.Config{
			Endpoint:  cfg.S3Endpoint,
			Bucket:    cfg.S3Bucket,
			AccessKey: cfg.S3AccessKey,
			SecretKey: cfg.S3SecretKey,
			Region:    cfg.S3Region,
		})
		if err != nil {
			return nil, fmt.Errorf("storage initialization failed: %w", err)
		}
		if err := objects.EnsureBucket(ctx); err != nil {
			return nil, fmt.Errorf("storage bucket check failed: %w", err)
		}
		return recent.NewS3Store(objects, "recent/"), nil
	default:
		return recent.NewMemoryStore(), nil
	}
}

func newCatalogClient(cfg config.Config, rdb *redis.Client) *catalog.Client {
	if cfg.TMDBAPIKey == "" {
		slog.Warn("TMDB_API_KEY not set, catalog requests will fail")
	}

	var cache catalog.ResponseCache = catalog.NewMemoryCache()
	if rdb != nil {
		cache = catalog.NewRedisCache(rdb, "streamie:catalog:")
	}

	return catalog.NewClient(catalog.Options{
		BaseURL:   cfg.TMDBBaseURL,
		APIKey:    cfg.TMDBAPIKey,
		RateLimit: cfg.TMDBRateLimit,
		Retry: retry.Policy{
			MaxAttempts: cfg.RetryMaxAttempts,
			BaseDelay:   cfg.RetryBaseDelay,
			Deadline:    cfg.RetryDeadline,
			Notifier: retry.NotifierFunc(func(_ context.Context, message string) {
				slog.Warn("catalog unavailable", "notice", message)
			}),
		},
		Cache: cache,
	})
}

// staticFS returns the frontend directory when it exists and holds an index.html.
func staticFS(dir string) (fs.FS, bool) {
	if dir == "" {
		return nil, false
	}
	fsys := os.DirFS(dir)
	if _, err := fs.Stat(fsys, "index.html"); err != nil {
		return nil, false
	}
	return fsys, true
}
