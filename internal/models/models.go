package models

import "time"

// ExchangeRateSnapshot is the latest rate map fetched for one base currency
type ExchangeRateSnapshot struct {
	BaseCurrency string             `json:"base"`
	Rates        map[string]float64 `json:"rates"`
	FetchedAt    time.Time          `json:"fetched_at"`
}

// Age reports how old the snapshot is relative to now
func (snapshot ExchangeRateSnapshot) Age(now time.Time) time.Duration {
	return now.Sub(snapshot.FetchedAt)
}

// ConversionRecord is one entry of the conversion history log
type ConversionRecord struct {
	ID              uint      `json:"id"`
	FromCurrency    string    `json:"from"`
	ToCurrency      string    `json:"to"`
	Amount          float64   `json:"amount"`
	ConvertedAmount float64   `json:"converted_amount"`
	Rate            float64   `json:"rate"`
	Timestamp       time.Time `json:"timestamp"`
}

// ConversionResult is returned to callers of a successful conversion
type ConversionResult struct {
	From      string    `json:"from"`
	To        string    `json:"to"`
	Amount    float64   `json:"amount"`
	Rate      float64   `json:"rate"`
	Converted float64   `json:"converted"`
	FromCache bool      `json:"from_cache"`
	Timestamp time.Time `json:"timestamp"`
}

// RatesResponse is the API view of a rate snapshot
type RatesResponse struct {
	Base      string             `json:"base"`
	Timestamp int64              `json:"timestamp"`
	Rates     map[string]float64 `json:"rates"`
	FromCache bool               `json:"from_cache"`
}

// ConvertQuery is a conversion request from the API
type ConvertQuery struct {
	From   string  `json:"from" form:"from" binding:"required"`
	To     string  `json:"to" form:"to" binding:"required"`
	Amount float64 `json:"amount" form:"amount" binding:"required"`
}

type ConvertResponse struct {
	From      string  `json:"from"`
	To        string  `json:"to"`
	Amount    float64 `json:"amount"`
	Rate      float64 `json:"rate"`
	Converted float64 `json:"converted"`
	Formatted string  `json:"formatted"`
	FromCache bool    `json:"from_cache"`
}

type HealthCheck struct {
	Status    string    `json:"status"`
	Timestamp time.Time `json:"timestamp"`
	Version   string    `json:"version"`
	Uptime    string    `json:"uptime"`
}

type ErrorResponse struct {
	Error   string `json:"error"`
	Message string `json:"message"`
	Code    int    `json:"code"`
}
