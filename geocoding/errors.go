// Copyright 2025 The ChapaUY Authors
// SPDX-License-Identifier: Apache-2.0

package geocoding

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"strings"
)

// GeocodingError represents a failure talking to a geocoding provider.
type GeocodingError struct {
	Type    ErrorType
	Message string
	Err     error
}

// ErrorType classifies geocoding failures.
type ErrorType int

const (
	// ErrorTypeUnknown is an unclassified failure.
	ErrorTypeUnknown ErrorType = iota
	// ErrorTypeRateLimit means the provider asked us to slow down.
	ErrorTypeRateLimit
	// ErrorTypeQuotaExceeded means the key ran out of quota or was denied.
	ErrorTypeQuotaExceeded
	// ErrorTypeTimeout means the call did not finish in time.
	ErrorTypeTimeout
	// ErrorTypeNotFound means the provider reported no such place.
	ErrorTypeNotFound
	// ErrorTypeInvalidRequest means the provider rejected the request.
	ErrorTypeInvalidRequest
	// ErrorTypeNetworkError is a connection or upstream availability failure.
	ErrorTypeNetworkError
)

func (t ErrorType) String() string {
	switch t {
	case ErrorTypeRateLimit:
		return "rate-limit"
	case ErrorTypeQuotaExceeded:
		return "quota-exceeded"
	case ErrorTypeTimeout:
		return "timeout"
	case ErrorTypeNotFound:
		return "not-found"
	case ErrorTypeInvalidRequest:
		return "invalid-request"
	case ErrorTypeNetworkError:
		return "network"
	default:
		return "unknown"
	}
}

func (e *GeocodingError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %v", e.Message, e.Err)
	}

	return e.Message
}

func (e *GeocodingError) Unwrap() error {
	return e.Err
}

// IsRateLimitError reports whether err is a rate limit signal.
func IsRateLimitError(err error) bool {
	var geoErr *GeocodingError
	if errors.As(err, &geoErr) {
		return geoErr.Type == ErrorTypeRateLimit
	}

	errStr := strings.ToLower(err.Error())

	return strings.Contains(errStr, "rate limit") ||
		strings.Contains(errStr, "too many requests") ||
		strings.Contains(errStr, "429")
}

// IsTimeoutError reports whether err is a timeout.
func IsTimeoutError(err error) bool {
	var geoErr *GeocodingError
	if errors.As(err, &geoErr) {
		return geoErr.Type == ErrorTypeTimeout
	}

	if errors.Is(err, context.DeadlineExceeded) {
		return true
	}

	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return true
	}

	errStr := strings.ToLower(err.Error())

	return strings.Contains(errStr, "timeout") ||
		strings.Contains(errStr, "deadline exceeded")
}

// IsTransient reports whether retrying the same request may succeed:
// timeouts, rate limits and network or 5xx failures.
func IsTransient(err error) bool {
	if err == nil {
		return false
	}

	var geoErr *GeocodingError
	if errors.As(err, &geoErr) {
		switch geoErr.Type {
		case ErrorTypeRateLimit, ErrorTypeTimeout, ErrorTypeNetworkError:
			return true
		case ErrorTypeUnknown:
			// a wrapped transport error may still be transient
			return geoErr.Err != nil && IsTransient(geoErr.Err)
		default:
			return false
		}
	}

	if IsTimeoutError(err) {
		return true
	}

	var netErr net.Error

	return errors.As(err, &netErr)
}

// ClassifyHTTPError maps an HTTP status to a geocoding error.
func ClassifyHTTPError(statusCode int, body string) *GeocodingError {
	msg := func(s string) string {
		if body = strings.TrimSpace(body); body != "" {
			if len(body) > 200 {
				body = body[:200] + "…"
			}

			return fmt.Sprintf("%s: %s", s, body)
		}

		return s
	}

	switch {
	case statusCode == http.StatusTooManyRequests:
		return &GeocodingError{Type: ErrorTypeRateLimit, Message: msg("rate limit reached")}
	case statusCode == http.StatusForbidden || statusCode == http.StatusUnauthorized:
		return &GeocodingError{Type: ErrorTypeQuotaExceeded, Message: msg("quota exceeded or access denied")}
	case statusCode == http.StatusBadRequest:
		return &GeocodingError{Type: ErrorTypeInvalidRequest, Message: msg("invalid request")}
	case statusCode == http.StatusNotFound:
		return &GeocodingError{Type: ErrorTypeNotFound, Message: msg("location not found")}
	case statusCode == http.StatusRequestTimeout || statusCode == http.StatusGatewayTimeout:
		return &GeocodingError{Type: ErrorTypeTimeout, Message: fmt.Sprintf("upstream timeout (status %d)", statusCode)}
	case statusCode >= 500:
		return &GeocodingError{Type: ErrorTypeNetworkError, Message: fmt.Sprintf("service unavailable (status %d)", statusCode)}
	default:
		return &GeocodingError{Type: ErrorTypeUnknown, Message: msg(fmt.Sprintf("HTTP error %d", statusCode))}
	}
}
