package benchmark

import (
	"context"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/glebarez/sqlite"

	"github.com/dalfonso89/currency-converter/internal/api"
	"github.com/dalfonso89/currency-converter/internal/cache"
	"github.com/dalfonso89/currency-converter/internal/history"
	"github.com/dalfonso89/currency-converter/internal/logger"
	"github.com/dalfonso89/currency-converter/internal/service"
	"github.com/dalfonso89/currency-converter/internal/storage"
	"github.com/dalfonso89/currency-converter/internal/testutils"
)

// BenchmarkTestSuite provides shared setup for benchmark tests
type BenchmarkTestSuite struct {
	server     *httptest.Server
	rateServer *testutils.MockRateServer
	engine     *service.ConversionEngine
}

// NewBenchmarkTestSuite creates a new benchmark test suite
func NewBenchmarkTestSuite() *BenchmarkTestSuite {
	rateServer := testutils.NewMockRateServer()

	cfg := testutils.MockConfig()
	cfg.ExchangeRateProvider.BaseURL = rateServer.URL()
	cfg.RateLimitEnabled = false

	log := logger.New("error")

	store, err := storage.OpenWithDialector(sqlite.Open("file::memory:"), log)
	if err != nil {
		panic(err)
	}
	conversions := history.NewSQLHistory(store, log)
	engine := service.NewConversionEngine(cfg, log, cache.NewMemoryCache(), service.NewHTTPRateFetcher(cfg.ExchangeRateProvider, log), conversions)

	handlers := api.NewHandlers(api.HandlerConfig{
		Logger:      log,
		Version:     "bench",
		RecentLimit: cfg.HistoryRecentLimit,
		Engine:      engine,
		History:     conversions,
	})

	gin.SetMode(gin.TestMode)
	server := httptest.NewServer(handlers.SetupRoutes())

	return &BenchmarkTestSuite{
		server:     server,
		rateServer: rateServer,
		engine:     engine,
	}
}

// Close cleans up the benchmark test suite
func (suite *BenchmarkTestSuite) Close() {
	if suite.server != nil {
		suite.server.Close()
	}
	if suite.rateServer != nil {
		suite.rateServer.Close()
	}
}

// Global benchmark suite to avoid port conflicts
var (
	globalBenchmarkSuite *BenchmarkTestSuite
	once                 sync.Once
)

func getBenchmarkSuite() *BenchmarkTestSuite {
	once.Do(func() {
		globalBenchmarkSuite = NewBenchmarkTestSuite()
	})
	return globalBenchmarkSuite
}

// BenchmarkConcurrentConvert benchmarks the convert endpoint under concurrent load
func BenchmarkConcurrentConvert(b *testing.B) {
	suite := getBenchmarkSuite()
	b.ResetTimer()
	b.RunParallel(func(pb *testing.PB) {
		for pb.Next() {
			resp, err := http.Get(suite.server.URL + "/api/v1/convert?from=USD&to=EUR&amount=100")
			if err != nil {
				b.Fatalf("Request error: %v", err)
			}
			resp.Body.Close()
		}
	})
}

// BenchmarkRatesByBase benchmarks requests with specific base currency
func BenchmarkRatesByBase(b *testing.B) {
	suite := getBenchmarkSuite()
	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		resp, err := http.Get(suite.server.URL + "/api/v1/rates/USD")
		if err != nil {
			b.Fatalf("Request error: %v", err)
		}
		resp.Body.Close()
	}
}

// BenchmarkHealthCheck benchmarks the health check endpoint
func BenchmarkHealthCheck(b *testing.B) {
	suite := getBenchmarkSuite()
	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		resp, err := http.Get(suite.server.URL + "/health")
		if err != nil {
			b.Fatalf("Request error: %v", err)
		}
		resp.Body.Close()
	}
}

// BenchmarkEngineConvert benchmarks the engine directly against a warm cache
func BenchmarkEngineConvert(b *testing.B) {
	suite := getBenchmarkSuite()
	ctx := context.Background()
	if _, err := suite.engine.Convert(ctx, 1, "USD", "EUR"); err != nil {
		b.Fatalf("warm-up conversion failed: %v", err)
	}

	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		if _, err := suite.engine.Convert(ctx, 100, "USD", "GBP"); err != nil {
			b.Fatalf("Convert() error = %v", err)
		}
	}
}
