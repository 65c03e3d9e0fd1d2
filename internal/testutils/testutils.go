package testutils

import (
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/glebarez/sqlite"
	"github.com/klauspost/compress/zip"
	"github.com/sirupsen/logrus"

	"github.com/dalfonso89/currency-converter/internal/config"
	"github.com/dalfonso89/currency-converter/internal/logger"
	"github.com/dalfonso89/currency-converter/internal/models"
	"github.com/dalfonso89/currency-converter/internal/storage"
)

// MockLogger creates a mock logger for testing
func MockLogger() *logrus.Logger {
	return logger.Discard()
}

// MockConfig creates a mock configuration for testing
func MockConfig() *config.Config {
	return &config.Config{
		Port:     "8081",
		LogLevel: "debug",

		ExchangeRateProvider: config.ExchangeRateProvider{
			Name:      "test-provider",
			BaseURL:   "https://api.test.com/latest",
			APIKey:    "test-api-key",
			KeyHeader: "apikey",
			Timeout:   30 * time.Second,
		},
		RatesCacheTTL:      time.Hour,
		RatesRetention:     24 * time.Hour,
		HistoryRetention:   30 * 24 * time.Hour,
		HistoryRecentLimit: 5,

		CacheBackend:   "sql",
		DatabaseDriver: "sqlite",
		DatabaseDSN:    "file::memory:",
		PurgeSchedule:  "@every 1h",

		Update: config.UpdateFeed{
			URL:                "https://api.test.com/releases/latest",
			UserAgent:          "Converter-Test",
			Timeout:            5 * time.Second,
			AssetExtension:     ".apk",
			CheckInterval:      24 * time.Hour,
			MinCheckGap:        time.Hour,
			StrictThrottle:     true,
			ForceThreshold:     3,
			CurrentVersionCode: 10,
			CurrentVersionName: "1.0.0",
		},

		Installer: config.Installer{
			DownloadTimeout:     5 * time.Second,
			ProgressInterval:    500 * time.Millisecond,
			MinArtifactBytes:    64,
			MaxArtifactBytes:    10 << 20,
			PackageName:         "com.harry.kharrency",
			AllowUnknownSources: true,
		},

		RateLimitEnabled:  true,
		RateLimitRequests: 100,
		RateLimitWindow:   60 * time.Second,
		RateLimitBurst:    10,
	}
}

// MockRates returns the rate map served by MockRateServer for USD
func MockRates() map[string]float64 {
	return map[string]float64{
		"EUR": 0.85,
		"GBP": 0.73,
		"JPY": 110.0,
		"CAD": 1.25,
		"AUD": 1.35,
	}
}

// OpenTestStore opens an in-memory sqlite store closed with the test
func OpenTestStore(t testing.TB) *storage.Store {
	t.Helper()
	store, err := storage.OpenWithDialector(sqlite.Open("file::memory:"), MockLogger())
	if err != nil {
		t.Fatalf("OpenTestStore() error = %v", err)
	}
	t.Cleanup(func() { _ = store.Close() })
	return store
}

// BuildPackage writes a package artifact holding manifest.json and padding bytes
func BuildPackage(t testing.TB, directory, name string, manifest models.PackageManifest, padding int) string {
	t.Helper()
	if err := os.MkdirAll(directory, 0o755); err != nil {
		t.Fatalf("BuildPackage() mkdir error = %v", err)
	}

	path := filepath.Join(directory, name)
	file, err := os.Create(path)
	if err != nil {
		t.Fatalf("BuildPackage() create error = %v", err)
	}
	defer file.Close()

	archive := zip.NewWriter(file)
	entry, err := archive.Create("manifest.json")
	if err != nil {
		t.Fatalf("BuildPackage() manifest entry error = %v", err)
	}
	if err := json.NewEncoder(entry).Encode(manifest); err != nil {
		t.Fatalf("BuildPackage() manifest encode error = %v", err)
	}

	if padding > 0 {
		// stored, not deflated, so the artifact size follows padding
		payload, err := archive.CreateHeader(&zip.FileHeader{Name: "payload.bin", Method: zip.Store})
		if err != nil {
			t.Fatalf("BuildPackage() payload entry error = %v", err)
		}
		if _, err := payload.Write(make([]byte, padding)); err != nil {
			t.Fatalf("BuildPackage() payload write error = %v", err)
		}
	}

	if err := archive.Close(); err != nil {
		t.Fatalf("BuildPackage() close error = %v", err)
	}
	return path
}

// MockContextWithTimeout creates a mock context with timeout for testing
func MockContextWithTimeout(timeout time.Duration) (context.Context, context.CancelFunc) {
	return context.WithTimeout(context.Background(), timeout)
}
