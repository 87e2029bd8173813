package carriers

import (
	"context"
	"errors"
	"fmt"
	"net"
)

var (
	// ErrCarrierUnavailable covers network failures, timeouts, 5xx and
	// anything else that means the carrier could not answer right now.
	ErrCarrierUnavailable = errors.New("carrier unavailable")

	// ErrTrackingNotFound means the carrier does not know the tracking
	// number or has no events for it yet.
	ErrTrackingNotFound = errors.New("tracking number not found")
)

// ErrorCategory is the normalized failure taxonomy for carrier calls.
type ErrorCategory string

const (
	ErrorTimeout        ErrorCategory = "timeout"
	ErrorOutage         ErrorCategory = "carrier_outage"
	ErrorAuthentication ErrorCategory = "authentication"
	ErrorRateLimited    ErrorCategory = "rate_limited"
	ErrorBadData        ErrorCategory = "bad_data"
	ErrorNotFound       ErrorCategory = "not_found"
	ErrorCircuitOpen    ErrorCategory = "circuit_open"
)

// FetchError wraps a carrier failure with its category. errors.Is matches it
// against ErrTrackingNotFound or ErrCarrierUnavailable.
type FetchError struct {
	Category   ErrorCategory
	Carrier    string
	Message    string
	Underlying error
}

func (e *FetchError) Error() string {
	if e.Underlying != nil {
		return fmt.Sprintf("carrier %s [%s]: %s: %v", e.Carrier, e.Category, e.Message, e.Underlying)
	}
	return fmt.Sprintf("carrier %s [%s]: %s", e.Carrier, e.Category, e.Message)
}

func (e *FetchError) Unwrap() error {
	return e.Underlying
}

func (e *FetchError) Is(target error) bool {
	switch target {
	case ErrTrackingNotFound:
		return e.Category == ErrorNotFound
	case ErrCarrierUnavailable:
		return e.Category != ErrorNotFound
	}
	return false
}

// Transient reports whether the failure says something about the carrier's
// health, as opposed to the particular tracking number or payload.
func (e *FetchError) Transient() bool {
	switch e.Category {
	case ErrorTimeout, ErrorOutage, ErrorRateLimited, ErrorAuthentication:
		return true
	}
	return false
}

func newFetchError(category ErrorCategory, carrier, message string, underlying error) *FetchError {
	return &FetchError{Category: category, Carrier: carrier, Message: message, Underlying: underlying}
}

// Category extracts the category from err, or "" when err is not a FetchError.
func Category(err error) ErrorCategory {
	var fe *FetchError
	if errors.As(err, &fe) {
		return fe.Category
	}
	return ""
}

// IsTransient reports whether err is a FetchError that should count against
// the carrier's circuit breaker.
func IsTransient(err error) bool {
	var fe *FetchError
	if errors.As(err, &fe) {
		return fe.Transient()
	}
	return false
}

// classifyTransportError maps an http.Client error to a FetchError.
func classifyTransportError(carrier string, err error) *FetchError {
	if errors.Is(err, context.DeadlineExceeded) {
		return newFetchError(ErrorTimeout, carrier, "request timed out", err)
	}
	var nerr net.Error
	if errors.As(err, &nerr) && nerr.Timeout() {
		return newFetchError(ErrorTimeout, carrier, "request timed out", err)
	}
	return newFetchError(ErrorOutage, carrier, "request failed", err)
}

// classifyStatus maps a non-200 HTTP status to a FetchError.
func classifyStatus(carrier string, status int) *FetchError {
	switch {
	case status == 404:
		return newFetchError(ErrorNotFound, carrier, "tracking number not found", nil)
	case status == 401 || status == 403:
		return newFetchError(ErrorAuthentication, carrier, fmt.Sprintf("credentials rejected (HTTP %d)", status), nil)
	case status == 429:
		return newFetchError(ErrorRateLimited, carrier, "carrier throttled the request", nil)
	case status >= 500:
		return newFetchError(ErrorOutage, carrier, fmt.Sprintf("carrier returned HTTP %d", status), nil)
	default:
		return newFetchError(ErrorBadData, carrier, fmt.Sprintf("unexpected HTTP %d", status), nil)
	}
}
