package service

import (
	"context"
	"errors"
	"math"
	"strings"
	"sync"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/sirupsen/logrus"
	"golang.org/x/sync/singleflight"

	"github.com/dalfonso89/currency-converter/internal/cache"
	"github.com/dalfonso89/currency-converter/internal/config"
	"github.com/dalfonso89/currency-converter/internal/models"
)

// HistoryRecorder persists successful conversions
type HistoryRecorder interface {
	Append(ctx context.Context, record models.ConversionRecord) (models.ConversionRecord, error)
}

// ConversionEngine answers conversions from cached or freshly fetched rates.
// A snapshot younger than RatesCacheTTL is trusted; anything older is refetched
// and a failed refetch is never answered from the stale snapshot.
type ConversionEngine struct {
	configuration *config.Config
	logger        *logrus.Logger
	rateCache     cache.RateCache
	fetcher       RateFetcher
	history       HistoryRecorder
	validate      *validator.Validate
	now           func() time.Time

	singleFlightGroup singleflight.Group

	hooksMutex      sync.RWMutex
	conversionHooks []func(models.ConversionRecord)
}

// NewConversionEngine wires the engine to its collaborators
func NewConversionEngine(configuration *config.Config, logger *logrus.Logger, rateCache cache.RateCache, fetcher RateFetcher, history HistoryRecorder) *ConversionEngine {
	return &ConversionEngine{
		configuration: configuration,
		logger:        logger,
		rateCache:     rateCache,
		fetcher:       fetcher,
		history:       history,
		validate:      validator.New(),
		now:           time.Now,
	}
}

// WithClock replaces the time source
func (engine *ConversionEngine) WithClock(now func() time.Time) *ConversionEngine {
	engine.now = now
	return engine
}

// OnConversion registers a hook called after every recorded conversion
func (engine *ConversionEngine) OnConversion(hook func(models.ConversionRecord)) {
	engine.hooksMutex.Lock()
	engine.conversionHooks = append(engine.conversionHooks, hook)
	engine.hooksMutex.Unlock()
}

// Convert converts amount from one currency to another and records it.
// The history write completes before the result is returned.
func (engine *ConversionEngine) Convert(requestContext context.Context, amount float64, fromCurrency, toCurrency string) (models.ConversionResult, error) {
	if math.IsNaN(amount) || math.IsInf(amount, 0) || amount <= 0 {
		return models.ConversionResult{}, &ConversionError{
			Kind:    ConversionErrorInvalidAmount,
			Message: "amount must be a positive number",
		}
	}

	fromCurrency = normalizeCurrency(fromCurrency)
	toCurrency = normalizeCurrency(toCurrency)
	for _, code := range []string{fromCurrency, toCurrency} {
		if err := engine.validate.Var(code, "required,len=3,alpha"); err != nil {
			return models.ConversionResult{}, unsupportedCurrency(code)
		}
	}

	rate := 1.0
	fromCache := true
	if fromCurrency != toCurrency {
		snapshot, cacheHit, err := engine.ratesFor(requestContext, fromCurrency)
		if err != nil {
			return models.ConversionResult{}, &ConversionError{
				Kind:    ConversionErrorUpstream,
				Message: "failed to fetch exchange rate",
				Cause:   err,
			}
		}

		var found bool
		rate, found = snapshot.Rates[toCurrency]
		if !found || rate <= 0 {
			return models.ConversionResult{}, unsupportedCurrency(toCurrency)
		}
		fromCache = cacheHit
	}

	converted := amount * rate
	if math.IsInf(converted, 0) || math.IsNaN(converted) {
		return models.ConversionResult{}, &ConversionError{
			Kind:    ConversionErrorInvalidAmount,
			Message: "converted amount is out of range",
		}
	}

	record := models.ConversionRecord{
		FromCurrency:    fromCurrency,
		ToCurrency:      toCurrency,
		Amount:          amount,
		ConvertedAmount: converted,
		Rate:            rate,
		Timestamp:       engine.now().UTC(),
	}

	saved, err := engine.history.Append(requestContext, record)
	if err != nil {
		engine.logger.WithError(err).Error("Failed to record conversion")
		return models.ConversionResult{}, &ConversionError{
			Kind:    ConversionErrorStorage,
			Message: "failed to record conversion",
			Cause:   err,
		}
	}

	engine.notify(saved)

	return models.ConversionResult{
		From:      fromCurrency,
		To:        toCurrency,
		Amount:    amount,
		Rate:      rate,
		Converted: record.ConvertedAmount,
		FromCache: fromCache,
		Timestamp: record.Timestamp,
	}, nil
}

// Rates returns the snapshot for base under the same freshness policy as Convert
func (engine *ConversionEngine) Rates(requestContext context.Context, baseCurrency string) (models.ExchangeRateSnapshot, bool, error) {
	baseCurrency = normalizeCurrency(baseCurrency)
	if err := engine.validate.Var(baseCurrency, "required,len=3,alpha"); err != nil {
		return models.ExchangeRateSnapshot{}, false, unsupportedCurrency(baseCurrency)
	}

	snapshot, cacheHit, err := engine.ratesFor(requestContext, baseCurrency)
	if err != nil {
		return models.ExchangeRateSnapshot{}, false, &ConversionError{
			Kind:    ConversionErrorUpstream,
			Message: "failed to fetch exchange rate",
			Cause:   err,
		}
	}
	return snapshot, cacheHit, nil
}

// ratesFor serves fresh cached rates or refetches; concurrent refetches share one call
func (engine *ConversionEngine) ratesFor(requestContext context.Context, baseCurrency string) (models.ExchangeRateSnapshot, bool, error) {
	logEntry := engine.logger.WithField("base", baseCurrency)

	snapshot, found, err := engine.rateCache.Get(requestContext, baseCurrency)
	if err != nil {
		logEntry.WithError(err).Warn("Rate cache lookup failed, refetching")
	} else if found && snapshot.Age(engine.now()) < engine.configuration.RatesCacheTTL {
		logEntry.Debug("Serving rates from cache")
		return snapshot, true, nil
	}

	// the shared fetch outlives any single caller; the client timeout still bounds it
	flightContext := context.WithoutCancel(requestContext)
	cacheKey := "rates:" + baseCurrency
	flight := engine.singleFlightGroup.DoChan(cacheKey, func() (interface{}, error) {
		// a flight that finished just before this one may have refreshed the cache
		if cached, found, cacheErr := engine.rateCache.Get(flightContext, baseCurrency); cacheErr == nil && found && cached.Age(engine.now()) < engine.configuration.RatesCacheTTL {
			return ratesLookup{snapshot: cached, fromCache: true}, nil
		}

		rates, fetchErr := engine.fetcher.FetchLatest(flightContext, baseCurrency)
		if fetchErr != nil {
			return nil, fetchErr
		}

		fresh := models.ExchangeRateSnapshot{
			BaseCurrency: baseCurrency,
			Rates:        rates,
			FetchedAt:    engine.now().UTC(),
		}
		if putErr := engine.rateCache.Put(flightContext, fresh); putErr != nil {
			logEntry.WithError(putErr).Warn("Failed to cache fetched rates")
		}
		return ratesLookup{snapshot: fresh}, nil
	})

	var result singleflight.Result
	select {
	case result = <-flight:
	case <-requestContext.Done():
		return models.ExchangeRateSnapshot{}, false, &FetchError{
			Kind:    FetchErrorNetworkUnavailable,
			Message: "exchange rate request cancelled",
			Cause:   requestContext.Err(),
		}
	}
	err = result.Err
	if err != nil {
		var fetchError *FetchError
		if !errors.As(err, &fetchError) {
			err = &FetchError{Kind: FetchErrorNetworkUnavailable, Message: "exchange rate fetch failed", Cause: err}
		}
		return models.ExchangeRateSnapshot{}, false, err
	}
	lookup := result.Val.(ratesLookup)
	return lookup.snapshot, lookup.fromCache, nil
}

type ratesLookup struct {
	snapshot  models.ExchangeRateSnapshot
	fromCache bool
}

func (engine *ConversionEngine) notify(record models.ConversionRecord) {
	engine.hooksMutex.RLock()
	hooks := append([]func(models.ConversionRecord){}, engine.conversionHooks...)
	engine.hooksMutex.RUnlock()

	for _, hook := range hooks {
		hook(record)
	}
}

func normalizeCurrency(code string) string {
	return strings.ToUpper(strings.TrimSpace(code))
}
