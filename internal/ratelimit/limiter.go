package ratelimit

import (
	"net"
	"net/http"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"
	"golang.org/x/time/rate"

	"github.com/dalfonso89/currency-converter/internal/config"
)

const (
	cleanupInterval = 5 * time.Minute
	idleClientLimit = 24 * time.Hour
)

// Limiter keeps one token bucket per client IP
type Limiter struct {
	Configuration *config.Config
	logger        *logrus.Logger

	clientsMutex sync.Mutex
	clients      map[string]*client

	cleanupTicker *time.Ticker
	stopCleanup   chan struct{}
	stopOnce      sync.Once
}

type client struct {
	limiter  *rate.Limiter
	lastSeen time.Time
}

// NewLimiter creates a limiter refilling RateLimitRequests tokens per RateLimitWindow
func NewLimiter(configuration *config.Config, logger *logrus.Logger) *Limiter {
	rateLimiter := &Limiter{
		Configuration: configuration,
		logger:        logger,
		clients:       make(map[string]*client),
		cleanupTicker: time.NewTicker(cleanupInterval),
		stopCleanup:   make(chan struct{}),
	}

	go rateLimiter.cleanup()

	return rateLimiter
}

// Allow reports whether a request from clientIP may proceed
func (rateLimiter *Limiter) Allow(clientIP string) bool {
	if !rateLimiter.Configuration.RateLimitEnabled {
		return true
	}

	rateLimiter.clientsMutex.Lock()
	entry, found := rateLimiter.clients[clientIP]
	if !found {
		entry = &client{limiter: rate.NewLimiter(rateLimiter.refillRate(), rateLimiter.Configuration.RateLimitBurst)}
		rateLimiter.clients[clientIP] = entry
	}
	entry.lastSeen = time.Now()
	rateLimiter.clientsMutex.Unlock()

	return entry.limiter.Allow()
}

// Clients returns the number of tracked clients
func (rateLimiter *Limiter) Clients() int {
	rateLimiter.clientsMutex.Lock()
	defer rateLimiter.clientsMutex.Unlock()
	return len(rateLimiter.clients)
}

func (rateLimiter *Limiter) refillRate() rate.Limit {
	window := rateLimiter.Configuration.RateLimitWindow
	if window <= 0 || rateLimiter.Configuration.RateLimitRequests <= 0 {
		return rate.Inf
	}
	return rate.Limit(float64(rateLimiter.Configuration.RateLimitRequests) / window.Seconds())
}

// Middleware rejects requests over the client's budget with 429
func (rateLimiter *Limiter) Middleware() gin.HandlerFunc {
	return func(context *gin.Context) {
		clientIP := rateLimiter.GetClientIP(context.Request)

		if !rateLimiter.Allow(clientIP) {
			rateLimiter.logger.WithField("client_ip", clientIP).Warn("Rate limit exceeded")
			context.Header("X-RateLimit-Limit", strconv.Itoa(rateLimiter.Configuration.RateLimitRequests))
			context.Header("X-RateLimit-Remaining", "0")
			context.Header("X-RateLimit-Reset", strconv.FormatInt(time.Now().Add(rateLimiter.Configuration.RateLimitWindow).Unix(), 10))
			context.AbortWithStatusJSON(http.StatusTooManyRequests, gin.H{"error": "Rate limit exceeded"})
			return
		}

		context.Next()
	}
}

// GetClientIP extracts the real client IP from the request
func (rateLimiter *Limiter) GetClientIP(request *http.Request) string {
	if xForwardedFor := request.Header.Get("X-Forwarded-For"); xForwardedFor != "" {
		// the first entry is the originating client
		first, _, _ := strings.Cut(xForwardedFor, ",")
		if clientIP := parseAddress(strings.TrimSpace(first)); clientIP != "" {
			return clientIP
		}
	}

	if xRealIP := request.Header.Get("X-Real-IP"); xRealIP != "" {
		if clientIP := parseAddress(strings.TrimSpace(xRealIP)); clientIP != "" {
			return clientIP
		}
	}

	clientIP, _, parseError := net.SplitHostPort(request.RemoteAddr)
	if parseError != nil {
		return request.RemoteAddr
	}
	return clientIP
}

func parseAddress(value string) string {
	if clientIP := net.ParseIP(value); clientIP != nil {
		return clientIP.String()
	}
	if host, _, err := net.SplitHostPort(value); err == nil {
		if clientIP := net.ParseIP(host); clientIP != nil {
			return clientIP.String()
		}
	}
	return ""
}

// cleanup forgets clients idle for a day
func (rateLimiter *Limiter) cleanup() {
	for {
		select {
		case <-rateLimiter.cleanupTicker.C:
			rateLimiter.evictIdle(time.Now())
		case <-rateLimiter.stopCleanup:
			rateLimiter.cleanupTicker.Stop()
			return
		}
	}
}

func (rateLimiter *Limiter) evictIdle(now time.Time) {
	rateLimiter.clientsMutex.Lock()
	defer rateLimiter.clientsMutex.Unlock()
	for clientIP, entry := range rateLimiter.clients {
		if now.Sub(entry.lastSeen) > idleClientLimit {
			delete(rateLimiter.clients, clientIP)
		}
	}
}

// Stop stops the cleanup goroutine
func (rateLimiter *Limiter) Stop() {
	rateLimiter.stopOnce.Do(func() { close(rateLimiter.stopCleanup) })
}
