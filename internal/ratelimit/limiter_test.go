package ratelimit

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/dalfonso89/currency-converter/internal/testutils"
)

func TestNewLimiter(t *testing.T) {
	cfg := testutils.MockConfig()
	logger := testutils.MockLogger()

	limiter := NewLimiter(cfg, logger)
	defer limiter.Stop()

	if limiter == nil {
		t.Fatal("NewLimiter() returned nil")
	}
	if limiter.Configuration != cfg {
		t.Errorf("NewLimiter() configuration = %v, want %v", limiter.Configuration, cfg)
	}
	if limiter.clients == nil {
		t.Errorf("NewLimiter() clients is nil")
	}
	if limiter.cleanupTicker == nil {
		t.Errorf("NewLimiter() cleanupTicker is nil")
	}
}

func TestLimiter_Allow(t *testing.T) {
	tests := []struct {
		name             string
		rateLimitEnabled bool
		clientIP         string
		requests         int
		expected         []bool
	}{
		{
			name:             "rate limiting disabled",
			rateLimitEnabled: false,
			clientIP:         "192.168.1.1",
			requests:         5,
			expected:         []bool{true, true, true, true, true},
		},
		{
			name:             "rate limiting enabled - within limit",
			rateLimitEnabled: true,
			clientIP:         "192.168.1.1",
			requests:         3,
			expected:         []bool{true, true, true},
		},
		{
			name:             "rate limiting enabled - exceed limit",
			rateLimitEnabled: true,
			clientIP:         "192.168.1.1",
			requests:         12, // More than burst limit (10)
			expected:         []bool{true, true, true, true, true, true, true, true, true, true, false, false},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := testutils.MockConfig()
			cfg.RateLimitEnabled = tt.rateLimitEnabled
			cfg.RateLimitBurst = 10
			cfg.RateLimitRequests = 1
			cfg.RateLimitWindow = time.Hour

			limiter := NewLimiter(cfg, testutils.MockLogger())
			defer limiter.Stop()

			for i := 0; i < tt.requests; i++ {
				result := limiter.Allow(tt.clientIP)
				expected := tt.expected[i]
				if result != expected {
					t.Errorf("Allow() request %d = %v, want %v", i, result, expected)
				}
			}
		})
	}
}

func TestLimiter_Allow_DifferentIPs(t *testing.T) {
	cfg := testutils.MockConfig()
	cfg.RateLimitEnabled = true
	cfg.RateLimitBurst = 5
	cfg.RateLimitRequests = 1
	cfg.RateLimitWindow = time.Hour

	limiter := NewLimiter(cfg, testutils.MockLogger())
	defer limiter.Stop()

	ip1 := "192.168.1.1"
	ip2 := "192.168.1.2"

	for i := 0; i < 5; i++ {
		if !limiter.Allow(ip1) {
			t.Errorf("Allow() IP1 request %d = false, want true", i)
		}
		if !limiter.Allow(ip2) {
			t.Errorf("Allow() IP2 request %d = false, want true", i)
		}
	}

	if limiter.Allow(ip1) {
		t.Errorf("Allow() IP1 after burst = true, want false")
	}
	if limiter.Allow(ip2) {
		t.Errorf("Allow() IP2 after burst = true, want false")
	}
	if limiter.Clients() != 2 {
		t.Errorf("Clients() = %d, want 2", limiter.Clients())
	}
}

func TestLimiter_EvictIdle(t *testing.T) {
	limiter := NewLimiter(testutils.MockConfig(), testutils.MockLogger())
	defer limiter.Stop()

	limiter.Allow("192.168.1.1")
	limiter.evictIdle(time.Now().Add(time.Hour))
	if limiter.Clients() != 1 {
		t.Fatalf("Clients() after short idle = %d, want 1", limiter.Clients())
	}

	limiter.evictIdle(time.Now().Add(25 * time.Hour))
	if limiter.Clients() != 0 {
		t.Errorf("Clients() after long idle = %d, want 0", limiter.Clients())
	}
}

func TestLimiter_GetClientIP(t *testing.T) {
	limiter := NewLimiter(testutils.MockConfig(), testutils.MockLogger())
	defer limiter.Stop()

	tests := []struct {
		name       string
		headers    map[string]string
		remoteAddr string
		expected   string
	}{
		{
			name:       "X-Forwarded-For header",
			headers:    map[string]string{"X-Forwarded-For": "203.0.113.195"},
			remoteAddr: "192.168.1.1:12345",
			expected:   "203.0.113.195",
		},
		{
			name:       "X-Forwarded-For chain takes the first hop",
			headers:    map[string]string{"X-Forwarded-For": "203.0.113.195, 70.41.3.18, 150.172.238.178"},
			remoteAddr: "192.168.1.1:12345",
			expected:   "203.0.113.195",
		},
		{
			name:       "X-Real-IP header",
			headers:    map[string]string{"X-Real-IP": "203.0.113.195"},
			remoteAddr: "192.168.1.1:12345",
			expected:   "203.0.113.195",
		},
		{
			name:       "RemoteAddr fallback",
			headers:    map[string]string{},
			remoteAddr: "192.168.1.1:12345",
			expected:   "192.168.1.1",
		},
		{
			name:       "X-Forwarded-For with port",
			headers:    map[string]string{"X-Forwarded-For": "203.0.113.195:8080"},
			remoteAddr: "192.168.1.1:12345",
			expected:   "203.0.113.195",
		},
		{
			name:       "Invalid X-Forwarded-For falls back to RemoteAddr",
			headers:    map[string]string{"X-Forwarded-For": "invalid-ip"},
			remoteAddr: "192.168.1.1:12345",
			expected:   "192.168.1.1",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest("GET", "/test", nil)
			req.RemoteAddr = tt.remoteAddr

			for header, value := range tt.headers {
				req.Header.Set(header, value)
			}

			result := limiter.GetClientIP(req)
			if result != tt.expected {
				t.Errorf("GetClientIP() = %v, want %v", result, tt.expected)
			}
		})
	}
}

func TestLimiter_Middleware(t *testing.T) {
	gin.SetMode(gin.TestMode)

	cfg := testutils.MockConfig()
	cfg.RateLimitEnabled = true
	cfg.RateLimitBurst = 2
	cfg.RateLimitRequests = 1
	cfg.RateLimitWindow = time.Hour

	limiter := NewLimiter(cfg, testutils.MockLogger())
	defer limiter.Stop()

	router := gin.New()
	router.Use(limiter.Middleware())
	router.GET("/test", func(c *gin.Context) { c.String(http.StatusOK, "OK") })

	var statuses []int
	for i := 0; i < 4; i++ {
		req := httptest.NewRequest("GET", "/test", nil)
		req.RemoteAddr = "192.168.1.1:12345"
		w := httptest.NewRecorder()
		router.ServeHTTP(w, req)
		statuses = append(statuses, w.Code)

		if w.Code == http.StatusTooManyRequests && w.Header().Get("X-RateLimit-Remaining") != "0" {
			t.Errorf("Middleware() X-RateLimit-Remaining = %q, want 0", w.Header().Get("X-RateLimit-Remaining"))
		}
	}

	expected := []int{http.StatusOK, http.StatusOK, http.StatusTooManyRequests, http.StatusTooManyRequests}
	for i := range expected {
		if statuses[i] != expected[i] {
			t.Errorf("Middleware() request %d status = %d, want %d", i, statuses[i], expected[i])
		}
	}
}

func TestLimiter_Stop(t *testing.T) {
	limiter := NewLimiter(testutils.MockConfig(), testutils.MockLogger())

	limiter.Stop()
	limiter.Stop()
}
