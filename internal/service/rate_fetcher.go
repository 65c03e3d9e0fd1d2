package service

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/dalfonso89/currency-converter/internal/config"
)

const maxRatesPayloadBytes = 1 << 20

// RateFetcher fetches the latest rate map for a base currency.
// Every returned error is a *FetchError and no retries happen inside.
type RateFetcher interface {
	FetchLatest(ctx context.Context, baseCurrency string) (map[string]float64, error)
}

// HTTPRateFetcher implements RateFetcher against a JSON exchange rate API
type HTTPRateFetcher struct {
	configuration config.ExchangeRateProvider
	logger        *logrus.Logger
	httpClient    *http.Client
}

// NewHTTPRateFetcher creates a fetcher with bounded connect and read time
func NewHTTPRateFetcher(configuration config.ExchangeRateProvider, logger *logrus.Logger) *HTTPRateFetcher {
	timeout := configuration.Timeout
	if timeout <= 0 {
		timeout = 30 * time.Second
	}

	httpTransport := &http.Transport{
		Proxy:                 http.ProxyFromEnvironment,
		DialContext:           (&net.Dialer{Timeout: timeout, KeepAlive: 30 * time.Second}).DialContext,
		TLSHandshakeTimeout:   10 * time.Second,
		ResponseHeaderTimeout: timeout,
		MaxIdleConns:          100,
		MaxIdleConnsPerHost:   100,
		IdleConnTimeout:       90 * time.Second,
	}

	return &HTTPRateFetcher{
		configuration: configuration,
		logger:        logger,
		// connect and read each get the full timeout
		httpClient: &http.Client{Timeout: 2 * timeout, Transport: httpTransport},
	}
}

// GetName returns the provider name
func (fetcher *HTTPRateFetcher) GetName() string {
	return fetcher.configuration.Name
}

// FetchLatest issues a single GET for the base currency
func (fetcher *HTTPRateFetcher) FetchLatest(ctx context.Context, baseCurrency string) (map[string]float64, error) {
	requestURL, err := fetcher.buildURL(baseCurrency)
	if err != nil {
		return nil, &FetchError{Kind: FetchErrorInvalidResponse, Message: "invalid exchange rate endpoint", Cause: err}
	}

	request, err := http.NewRequestWithContext(ctx, http.MethodGet, requestURL, nil)
	if err != nil {
		return nil, &FetchError{Kind: FetchErrorNetworkUnavailable, Message: "failed to create request", Cause: err}
	}
	request.Header.Set("Accept", "application/json")
	if fetcher.configuration.APIKey != "" {
		request.Header.Set(fetcher.configuration.KeyHeader, fetcher.configuration.APIKey)
	}

	logEntry := fetcher.logger.WithFields(logrus.Fields{"provider": fetcher.configuration.Name, "base": baseCurrency})
	logEntry.Debug("Fetching exchange rates")

	response, err := fetcher.httpClient.Do(request)
	if err != nil {
		fetchError := classifyTransportError(err)
		logEntry.WithError(err).Warn("Exchange rate request failed")
		return nil, fetchError
	}
	defer response.Body.Close()

	body, err := io.ReadAll(io.LimitReader(response.Body, maxRatesPayloadBytes))
	if err != nil {
		fetchError := classifyTransportError(err)
		logEntry.WithError(err).Warn("Failed to read exchange rate response")
		return nil, fetchError
	}

	rates, fetchError := parseRatesPayload(response.StatusCode, body)
	if fetchError != nil {
		logEntry.WithField("kind", fetchError.Kind.String()).Warn(fetchError.Error())
		return nil, fetchError
	}

	logEntry.WithField("currencies", len(rates)).Info("Fetched exchange rates")
	return rates, nil
}

// buildURL appends the base currency as a query parameter
func (fetcher *HTTPRateFetcher) buildURL(baseCurrency string) (string, error) {
	endpoint, err := url.Parse(fetcher.configuration.BaseURL)
	if err != nil {
		return "", err
	}
	query := endpoint.Query()
	query.Set("base", baseCurrency)
	endpoint.RawQuery = query.Encode()
	return endpoint.String(), nil
}

type ratesPayload struct {
	Base    string             `json:"base"`
	Rates   map[string]float64 `json:"rates"`
	Success *bool              `json:"success"`
	Error   json.RawMessage    `json:"error"`
}

// parseRatesPayload treats success=false or a non-empty error as failure regardless of status
func parseRatesPayload(statusCode int, body []byte) (map[string]float64, *FetchError) {
	var payload ratesPayload
	decodeError := json.Unmarshal(body, &payload)

	if statusCode < 200 || statusCode > 299 {
		message := fmt.Sprintf("exchange rate API returned HTTP %d", statusCode)
		if decodeError == nil {
			if apiMessage, ok := apiErrorMessage(payload.Error); ok {
				message += ": " + apiMessage
			}
		}
		return nil, &FetchError{Kind: FetchErrorHTTPStatus, StatusCode: statusCode, Message: message}
	}

	if decodeError != nil {
		return nil, &FetchError{Kind: FetchErrorInvalidResponse, Message: "failed to parse exchange rate response", Cause: decodeError}
	}

	if apiMessage, ok := apiErrorMessage(payload.Error); ok {
		return nil, &FetchError{Kind: FetchErrorAPIReportedFailure, StatusCode: statusCode, Message: "exchange rate API error: " + apiMessage}
	}
	if payload.Success != nil && !*payload.Success {
		return nil, &FetchError{Kind: FetchErrorAPIReportedFailure, StatusCode: statusCode, Message: "exchange rate API reported failure"}
	}

	rates := make(map[string]float64, len(payload.Rates))
	for code, rate := range payload.Rates {
		if rate > 0 {
			rates[strings.ToUpper(code)] = rate
		}
	}
	if len(rates) == 0 {
		return nil, &FetchError{Kind: FetchErrorEmptyPayload, StatusCode: statusCode, Message: "exchange rate API returned no rates"}
	}
	return rates, nil
}

// apiErrorMessage extracts a readable message from a string or object error field
func apiErrorMessage(raw json.RawMessage) (string, bool) {
	trimmed := bytes.TrimSpace(raw)
	if len(trimmed) == 0 || bytes.Equal(trimmed, []byte("null")) || bytes.Equal(trimmed, []byte("false")) {
		return "", false
	}

	var text string
	if err := json.Unmarshal(trimmed, &text); err == nil {
		text = strings.TrimSpace(text)
		return text, text != ""
	}

	var object map[string]interface{}
	if err := json.Unmarshal(trimmed, &object); err == nil {
		if len(object) == 0 {
			return "", false
		}
		for _, key := range []string{"info", "message", "type"} {
			if value, ok := object[key].(string); ok && value != "" {
				return value, true
			}
		}
		return string(trimmed), true
	}

	return string(trimmed), true
}

var _ RateFetcher = (*HTTPRateFetcher)(nil)
