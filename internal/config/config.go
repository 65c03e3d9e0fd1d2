package config

import (
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

// ExchangeRateProvider describes the remote exchange rate endpoint
type ExchangeRateProvider struct {
	Name      string
	BaseURL   string
	APIKey    string
	KeyHeader string
	Timeout   time.Duration
}

// UpdateFeed describes the release feed and the throttling applied to it
type UpdateFeed struct {
	URL                string
	UserAgent          string
	Timeout            time.Duration
	AssetExtension     string
	CheckInterval      time.Duration
	MinCheckGap        time.Duration
	StrictThrottle     bool
	ForceThreshold     int
	CurrentVersionCode int
	CurrentVersionName string
	WatchEnabled       bool
}

// Installer holds download and install settings
type Installer struct {
	DownloadDir         string
	DownloadTimeout     time.Duration
	ProgressInterval    time.Duration
	MinArtifactBytes    int64
	MaxArtifactBytes    int64
	PackageName         string
	InstallDir          string
	AllowUnknownSources bool
}

// Config holds all configuration for the application
type Config struct {
	Port     string
	LogLevel string
	LogFile  string

	ExchangeRateProvider ExchangeRateProvider
	RatesCacheTTL        time.Duration
	RatesRetention       time.Duration
	HistoryRetention     time.Duration
	HistoryRecentLimit   int

	CacheBackend   string
	RedisAddress   string
	DatabaseDriver string
	DatabaseDSN    string
	PurgeSchedule  string

	Update    UpdateFeed
	Installer Installer

	CORSAllowOrigins []string

	// Rate limiting
	RateLimitEnabled  bool
	RateLimitRequests int
	RateLimitWindow   time.Duration
	RateLimitBurst    int
}

// Load loads configuration from environment variables
func Load() (*Config, error) {
	// Load .env file if it exists
	_ = godotenv.Load()

	return &Config{
		Port:     getEnv("PORT", "8081"),
		LogLevel: getEnv("LOG_LEVEL", "info"),
		LogFile:  getEnv("LOG_FILE", ""),

		ExchangeRateProvider: ExchangeRateProvider{
			Name:      getEnv("EXCHANGE_RATE_API_NAME", "exchangerate.host"),
			BaseURL:   getEnv("EXCHANGE_RATE_API_BASE_URL", "https://api.exchangerate.host/latest"),
			APIKey:    getEnv("EXCHANGE_RATE_API_KEY", ""),
			KeyHeader: getEnv("EXCHANGE_RATE_API_KEY_HEADER", "apikey"),
			Timeout:   getSeconds("EXCHANGE_RATE_API_TIMEOUT_SECONDS", 30),
		},
		RatesCacheTTL:      getSeconds("RATES_CACHE_TTL_SECONDS", 3600),
		RatesRetention:     time.Duration(getInt("RATES_RETENTION_HOURS", 24)) * time.Hour,
		HistoryRetention:   time.Duration(getInt("HISTORY_RETENTION_HOURS", 720)) * time.Hour,
		HistoryRecentLimit: getInt("HISTORY_RECENT_LIMIT", 5),

		CacheBackend:   strings.ToLower(getEnv("CACHE_BACKEND", "sql")),
		RedisAddress:   getEnv("REDIS_ADDRESS", "localhost:6379"),
		DatabaseDriver: strings.ToLower(getEnv("DATABASE_DRIVER", "sqlite")),
		DatabaseDSN:    getEnv("DATABASE_DSN", "converter.db"),
		PurgeSchedule:  getEnv("PURGE_SCHEDULE", "@every 1h"),

		Update: UpdateFeed{
			URL:                getEnv("UPDATE_FEED_URL", "https://api.github.com/repos/harry-kuria/kharrency/releases/latest"),
			UserAgent:          getEnv("UPDATE_USER_AGENT", "Kharrency-App"),
			Timeout:            getSeconds("UPDATE_FEED_TIMEOUT_SECONDS", 10),
			AssetExtension:     getEnv("UPDATE_ASSET_EXTENSION", ".apk"),
			CheckInterval:      time.Duration(getInt("UPDATE_CHECK_INTERVAL_HOURS", 24)) * time.Hour,
			MinCheckGap:        time.Duration(getInt("UPDATE_MIN_GAP_MINUTES", 60)) * time.Minute,
			StrictThrottle:     getBool("UPDATE_STRICT_THROTTLE", true),
			ForceThreshold:     getInt("UPDATE_FORCE_THRESHOLD", 3),
			CurrentVersionCode: getInt("CURRENT_VERSION_CODE", 1),
			CurrentVersionName: getEnv("CURRENT_VERSION_NAME", "1.0"),
			WatchEnabled:       getBool("UPDATE_WATCH_ENABLED", true),
		},

		Installer: Installer{
			DownloadDir:         getEnv("DOWNLOAD_DIR", "updates"),
			DownloadTimeout:     getSeconds("DOWNLOAD_TIMEOUT_SECONDS", 30),
			ProgressInterval:    time.Duration(getInt("DOWNLOAD_PROGRESS_INTERVAL_MS", 500)) * time.Millisecond,
			MinArtifactBytes:    getInt64("ARTIFACT_MIN_BYTES", 1<<20),
			MaxArtifactBytes:    getInt64("ARTIFACT_MAX_BYTES", 500<<20),
			PackageName:         getEnv("PACKAGE_NAME", "com.harry.kharrency"),
			InstallDir:          getEnv("INSTALL_DIR", "installed"),
			AllowUnknownSources: getBool("ALLOW_UNKNOWN_SOURCES", false),
		},

		CORSAllowOrigins: getList("CORS_ALLOW_ORIGINS"),

		RateLimitEnabled:  getBool("RATE_LIMIT_ENABLED", true),
		RateLimitRequests: getInt("RATE_LIMIT_REQUESTS", 100),
		RateLimitWindow:   getSeconds("RATE_LIMIT_WINDOW_SECONDS", 60),
		RateLimitBurst:    getInt("RATE_LIMIT_BURST", 10),
	}, nil
}

// getEnv gets an environment variable with a fallback value
func getEnv(key, fallback string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return fallback
}

func getInt(key string, fallback int) int {
	value, err := strconv.Atoi(getEnv(key, ""))
	if err != nil {
		return fallback
	}
	return value
}

func getInt64(key string, fallback int64) int64 {
	value, err := strconv.ParseInt(getEnv(key, ""), 10, 64)
	if err != nil {
		return fallback
	}
	return value
}

func getBool(key string, fallback bool) bool {
	value, err := strconv.ParseBool(getEnv(key, ""))
	if err != nil {
		return fallback
	}
	return value
}

// getList splits a comma separated variable, nil when unset
func getList(key string) []string {
	var values []string
	for _, value := range strings.Split(getEnv(key, ""), ",") {
		if value = strings.TrimSpace(value); value != "" {
			values = append(values, value)
		}
	}
	return values
}

func getSeconds(key string, fallback int) time.Duration {
	return time.Duration(getInt(key, fallback)) * time.Second
}
