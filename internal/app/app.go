package app

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/sirupsen/logrus"

	"github.com/dalfonso89/currency-converter/internal/api"
	"github.com/dalfonso89/currency-converter/internal/cache"
	"github.com/dalfonso89/currency-converter/internal/config"
	"github.com/dalfonso89/currency-converter/internal/history"
	"github.com/dalfonso89/currency-converter/internal/installer"
	"github.com/dalfonso89/currency-converter/internal/models"
	"github.com/dalfonso89/currency-converter/internal/platform"
	"github.com/dalfonso89/currency-converter/internal/preferences"
	"github.com/dalfonso89/currency-converter/internal/ratelimit"
	"github.com/dalfonso89/currency-converter/internal/scheduler"
	"github.com/dalfonso89/currency-converter/internal/service"
	"github.com/dalfonso89/currency-converter/internal/storage"
	"github.com/dalfonso89/currency-converter/internal/update"
)

const redisConnectTimeout = 5 * time.Second

// App is the wired component graph shared by the server and the CLI
type App struct {
	Config *config.Config
	Logger *logrus.Logger

	Store     *storage.Store
	Rates     cache.RateCache
	History   *history.SQLHistory
	Engine    *service.ConversionEngine
	Updates   *update.Manager
	Host      *platform.FileHost
	Installer *installer.Installer
	Theme     *preferences.ThemeManager
	Watcher   *scheduler.UpdateWatcher
	Janitor   *scheduler.Janitor

	redisClient *redis.Client
}

// Build opens storage and wires every component from cfg.
// An error wrapping storage.ErrSchemaCorrupt means the local database is unusable.
func Build(ctx context.Context, cfg *config.Config, logger *logrus.Logger) (*App, error) {
	store, err := storage.Open(cfg, logger)
	if err != nil {
		return nil, err
	}

	application := &App{Config: cfg, Logger: logger, Store: store}

	application.Rates, err = application.rateCache(ctx)
	if err != nil {
		_ = store.Close()
		return nil, err
	}

	application.History = history.NewSQLHistory(store, logger)
	fetcher := service.NewHTTPRateFetcher(cfg.ExchangeRateProvider, logger)
	application.Engine = service.NewConversionEngine(cfg, logger, application.Rates, fetcher, application.History)

	application.Host = platform.NewFileHost(cfg.Installer.InstallDir, cfg.Installer.AllowUnknownSources, logger)
	application.Installer = installer.NewInstaller(cfg.Installer, application.Host, logger)

	currentVersion := func(ctx context.Context) int {
		return application.Installer.InstalledVersionCode(ctx, cfg.Update.CurrentVersionCode)
	}
	application.Updates = update.NewManager(update.NewChecker(cfg.Update, logger), update.NewThrottle(store, cfg.Update), currentVersion, logger)

	application.Theme = preferences.NewThemeManager(store, logger)
	application.Watcher = scheduler.NewUpdateWatcher(application.Updates, update.NewBackoff(), logger)
	application.Janitor = scheduler.NewJanitor(cfg, application.Rates, application.History, logger)

	// user activity brings the next background check forward
	application.Engine.OnConversion(func(models.ConversionRecord) { application.Watcher.Touch() })
	application.Theme.OnChange(func(bool) { application.Watcher.Touch() })

	logger.WithFields(logrus.Fields{
		"cache_backend":   cfg.CacheBackend,
		"database_driver": cfg.DatabaseDriver,
	}).Info("Application wired")
	return application, nil
}

func (application *App) rateCache(ctx context.Context) (cache.RateCache, error) {
	switch application.Config.CacheBackend {
	case "", "sql":
		return cache.NewSQLCache(application.Store), nil
	case "memory":
		return cache.NewMemoryCache(), nil
	case "redis":
		connectCtx, cancel := context.WithTimeout(ctx, redisConnectTimeout)
		defer cancel()
		client, err := cache.NewRedisClient(connectCtx, application.Config.RedisAddress)
		if err != nil {
			return nil, err
		}
		application.redisClient = client
		return cache.NewRedisCache(client, application.Config.RatesRetention), nil
	default:
		return nil, fmt.Errorf("unsupported cache backend %q", application.Config.CacheBackend)
	}
}

// HandlerConfig returns the API configuration for this graph; limiter may be nil
func (application *App) HandlerConfig(limiter *ratelimit.Limiter) api.HandlerConfig {
	return api.HandlerConfig{
		Logger:       application.Logger,
		Version:      application.Config.Update.CurrentVersionName,
		RecentLimit:  application.Config.HistoryRecentLimit,
		Engine:       application.Engine,
		History:      application.History,
		Updates:      application.Updates,
		Watcher:      application.Watcher,
		Installer:    application.Installer,
		Theme:        application.Theme,
		RateLimiter:  limiter,
		AllowOrigins: application.Config.CORSAllowOrigins,
	}
}

// Close stops the janitor and releases storage and the redis connection
func (application *App) Close() error {
	application.Janitor.Stop()
	if application.redisClient != nil {
		if err := application.redisClient.Close(); err != nil {
			application.Logger.WithError(err).Warn("Failed to close redis client")
		}
	}
	return application.Store.Close()
}
