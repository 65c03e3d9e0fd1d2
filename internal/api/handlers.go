package api

import (
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"github.com/shopspring/decimal"
	"github.com/sirupsen/logrus"

	"github.com/dalfonso89/currency-converter/internal/history"
	"github.com/dalfonso89/currency-converter/internal/middleware"
	"github.com/dalfonso89/currency-converter/internal/models"
	"github.com/dalfonso89/currency-converter/internal/ratelimit"
	"github.com/dalfonso89/currency-converter/internal/service"
)

// HandlerConfig contains all dependencies for the Handlers
type HandlerConfig struct {
	Logger       *logrus.Logger
	Version      string
	RecentLimit  int
	Engine       Converter
	History      history.Store
	Updates      UpdateService
	Watcher      LatestUpdate
	Installer    PackageInstaller
	Theme        ThemeService
	RateLimiter  *ratelimit.Limiter
	AllowOrigins []string
}

// Handlers contains all HTTP handlers
type Handlers struct {
	logger       *logrus.Logger
	startTime    time.Time
	version      string
	recentLimit  int
	engine       Converter
	history      history.Store
	updates      UpdateService
	watcher      LatestUpdate
	installer    PackageInstaller
	theme        ThemeService
	rateLimiter  *ratelimit.Limiter
	allowOrigins []string
}

// NewHandlers creates a new handlers instance
func NewHandlers(config HandlerConfig) *Handlers {
	recentLimit := config.RecentLimit
	if recentLimit <= 0 {
		recentLimit = history.DefaultRecentLimit
	}
	return &Handlers{
		logger:       config.Logger,
		startTime:    time.Now(),
		version:      config.Version,
		recentLimit:  recentLimit,
		engine:       config.Engine,
		history:      config.History,
		updates:      config.Updates,
		watcher:      config.Watcher,
		installer:    config.Installer,
		theme:        config.Theme,
		rateLimiter:  config.RateLimiter,
		allowOrigins: config.AllowOrigins,
	}
}

// SetupRoutes configures all the routes using Gin
func (handlers *Handlers) SetupRoutes() *gin.Engine {
	router := gin.New()

	router.Use(middleware.RequestID())
	router.Use(middleware.RequestLogger(handlers.logger))
	router.Use(gin.Recovery())
	router.Use(middleware.SecurityHeaders())
	router.Use(cors.New(handlers.corsConfig()))

	if handlers.rateLimiter != nil {
		router.Use(handlers.rateLimiter.Middleware())
	}

	router.GET("/health", handlers.HealthCheck)

	apiV1 := router.Group("/api/v1")
	{
		apiV1.GET("/rates/:base", handlers.GetRatesByBase)
		apiV1.GET("/convert", handlers.ConvertQuery)
		apiV1.POST("/convert", handlers.ConvertBody)

		apiV1.GET("/history", handlers.GetHistory)
		apiV1.DELETE("/history", handlers.ClearHistory)
		apiV1.GET("/history/ws", handlers.StreamHistory)

		updates := apiV1.Group("/updates")
		updates.GET("/check", handlers.CheckForUpdates)
		updates.GET("/latest", handlers.LatestUpdate)
		updates.POST("/download", handlers.DownloadUpdate)
		updates.POST("/install", handlers.InstallUpdate)
		updates.POST("/uninstall", handlers.UninstallCurrent)
		updates.GET("/state", handlers.InstallerState)

		theme := apiV1.Group("/preferences/theme")
		theme.GET("", handlers.GetTheme)
		theme.PUT("", handlers.SetTheme)
		theme.POST("/toggle", handlers.ToggleTheme)
	}

	return router
}

func (handlers *Handlers) corsConfig() cors.Config {
	corsConfig := cors.Config{
		AllowMethods:  []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"},
		AllowHeaders:  []string{"Origin", "Content-Type", "Authorization", "X-Request-ID"},
		ExposeHeaders: []string{"X-Request-ID"},
		MaxAge:        12 * time.Hour,
	}
	if len(handlers.allowOrigins) == 0 {
		corsConfig.AllowAllOrigins = true
	} else {
		corsConfig.AllowOrigins = handlers.allowOrigins
	}
	return corsConfig
}

// HealthCheck handles health check requests
func (handlers *Handlers) HealthCheck(context *gin.Context) {
	healthCheckResponse := models.HealthCheck{
		Status:    "healthy",
		Timestamp: time.Now(),
		Version:   handlers.version,
		Uptime:    time.Since(handlers.startTime).String(),
	}

	context.JSON(http.StatusOK, healthCheckResponse)
}

// GetRatesByBase returns the rate snapshot for a base currency
func (handlers *Handlers) GetRatesByBase(context *gin.Context) {
	baseCurrency := strings.ToUpper(context.Param("base"))

	snapshot, fromCache, err := handlers.engine.Rates(context.Request.Context(), baseCurrency)
	if err != nil {
		handlers.writeConversionError(context, err)
		return
	}

	context.JSON(http.StatusOK, models.RatesResponse{
		Base:      snapshot.BaseCurrency,
		Timestamp: snapshot.FetchedAt.Unix(),
		Rates:     snapshot.Rates,
		FromCache: fromCache,
	})
}

// ConvertQuery handles GET /convert?from=&to=&amount=
func (handlers *Handlers) ConvertQuery(context *gin.Context) {
	var query models.ConvertQuery
	if err := context.ShouldBindQuery(&query); err != nil {
		handlers.writeErrorResponse(context, http.StatusBadRequest, "invalid conversion request", err.Error())
		return
	}
	handlers.convert(context, query)
}

// ConvertBody handles POST /convert with a JSON body
func (handlers *Handlers) ConvertBody(context *gin.Context) {
	var query models.ConvertQuery
	if err := context.ShouldBindJSON(&query); err != nil {
		handlers.writeErrorResponse(context, http.StatusBadRequest, "invalid conversion request", err.Error())
		return
	}
	handlers.convert(context, query)
}

func (handlers *Handlers) convert(context *gin.Context, query models.ConvertQuery) {
	result, err := handlers.engine.Convert(context.Request.Context(), query.Amount, query.From, query.To)
	if err != nil {
		handlers.writeConversionError(context, err)
		return
	}

	context.JSON(http.StatusOK, models.ConvertResponse{
		From:      result.From,
		To:        result.To,
		Amount:    result.Amount,
		Rate:      result.Rate,
		Converted: result.Converted,
		Formatted: FormatAmount(result.Converted, result.To),
		FromCache: result.FromCache,
	})
}

// FormatAmount renders an amount rounded to two decimals followed by its currency
func FormatAmount(amount float64, currency string) string {
	return decimal.NewFromFloat(amount).StringFixed(2) + " " + currency
}

// writeConversionError maps a ConversionError kind onto an HTTP status
func (handlers *Handlers) writeConversionError(context *gin.Context, err error) {
	var conversionError *service.ConversionError
	if !errors.As(err, &conversionError) {
		handlers.logger.WithError(err).Error("Unexpected conversion failure")
		handlers.writeErrorResponse(context, http.StatusInternalServerError, "conversion failed", err.Error())
		return
	}

	switch conversionError.Kind {
	case service.ConversionErrorInvalidAmount:
		handlers.writeErrorResponse(context, http.StatusBadRequest, "invalid amount", conversionError.Error())
	case service.ConversionErrorUnsupportedCurrency:
		handlers.writeErrorResponse(context, http.StatusUnprocessableEntity, "unsupported currency", conversionError.Error())
	case service.ConversionErrorUpstream:
		handlers.writeErrorResponse(context, http.StatusBadGateway, "failed to fetch rates", conversionError.Error())
	default:
		handlers.writeErrorResponse(context, http.StatusInternalServerError, "failed to record conversion", conversionError.Error())
	}
}

// writeErrorResponse writes an error response using Gin context
func (handlers *Handlers) writeErrorResponse(context *gin.Context, statusCode int, errorMessage, errorDetails string) {
	errorResponse := models.ErrorResponse{
		Error:   errorMessage,
		Message: errorDetails,
		Code:    statusCode,
	}

	context.JSON(statusCode, errorResponse)
}
