package service

import (
	"context"
	"errors"
	"fmt"
	"net"
)

// FetchErrorKind classifies a failed rate fetch
type FetchErrorKind int

const (
	FetchErrorTimeout FetchErrorKind = iota
	FetchErrorNetworkUnavailable
	FetchErrorHTTPStatus
	FetchErrorAPIReportedFailure
	FetchErrorEmptyPayload
	FetchErrorInvalidResponse
)

func (kind FetchErrorKind) String() string {
	switch kind {
	case FetchErrorTimeout:
		return "timeout"
	case FetchErrorNetworkUnavailable:
		return "network_unavailable"
	case FetchErrorHTTPStatus:
		return "http_status"
	case FetchErrorAPIReportedFailure:
		return "api_reported_failure"
	case FetchErrorEmptyPayload:
		return "empty_payload"
	case FetchErrorInvalidResponse:
		return "invalid_response"
	default:
		return "unknown"
	}
}

// FetchError is the only error type returned by a RateFetcher
type FetchError struct {
	Kind       FetchErrorKind
	StatusCode int
	Message    string
	Cause      error
}

func (e *FetchError) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("%s: %v", e.Message, e.Cause)
	}
	return e.Message
}

func (e *FetchError) Unwrap() error {
	return e.Cause
}

// classifyTransportError maps client errors to timeout or connectivity failures
func classifyTransportError(err error) *FetchError {
	var networkError net.Error
	if errors.Is(err, context.DeadlineExceeded) || (errors.As(err, &networkError) && networkError.Timeout()) {
		return &FetchError{Kind: FetchErrorTimeout, Message: "exchange rate request timed out", Cause: err}
	}
	if errors.Is(err, context.Canceled) {
		return &FetchError{Kind: FetchErrorNetworkUnavailable, Message: "exchange rate request cancelled", Cause: err}
	}
	return &FetchError{Kind: FetchErrorNetworkUnavailable, Message: "network unavailable", Cause: err}
}

// ConversionErrorKind classifies a failed conversion
type ConversionErrorKind int

const (
	ConversionErrorInvalidAmount ConversionErrorKind = iota
	ConversionErrorUnsupportedCurrency
	ConversionErrorUpstream
	ConversionErrorStorage
)

func (kind ConversionErrorKind) String() string {
	switch kind {
	case ConversionErrorInvalidAmount:
		return "invalid_amount"
	case ConversionErrorUnsupportedCurrency:
		return "unsupported_currency"
	case ConversionErrorUpstream:
		return "upstream"
	case ConversionErrorStorage:
		return "storage"
	default:
		return "unknown"
	}
}

// ConversionError is the only error type returned by ConversionEngine.Convert
type ConversionError struct {
	Kind     ConversionErrorKind
	Currency string
	Message  string
	Cause    error
}

func (e *ConversionError) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("%s: %v", e.Message, e.Cause)
	}
	return e.Message
}

func (e *ConversionError) Unwrap() error {
	return e.Cause
}

// FetchError returns the upstream failure for ConversionErrorUpstream
func (e *ConversionError) FetchError() (*FetchError, bool) {
	var fetchError *FetchError
	ok := errors.As(e.Cause, &fetchError)
	return fetchError, ok
}

func unsupportedCurrency(code string) *ConversionError {
	return &ConversionError{
		Kind:     ConversionErrorUnsupportedCurrency,
		Currency: code,
		Message:  fmt.Sprintf("currency not supported: %s", code),
	}
}
