// Copyright 2025 The ChapaUY Authors
// SPDX-License-Identifier: Apache-2.0

package geocoding

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"testing"
)

type errorCheckTestCase struct {
	name string
	err  error
	want bool
}

func runErrorCheckTest(t *testing.T, tests []errorCheckTestCase, checkFunc func(error) bool) {
	t.Helper()

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := checkFunc(tt.err); got != tt.want {
				t.Errorf("checkFunc() = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestIsRateLimitError(t *testing.T) {
	runErrorCheckTest(t, []errorCheckTestCase{
		{"rate limit error type", &GeocodingError{Type: ErrorTypeRateLimit, Message: "rate limit exceeded"}, true},
		{"error message contains rate limit", errors.New("rate limit exceeded"), true},
		{"error message contains too many requests", errors.New("too many requests"), true},
		{"error message contains 429", errors.New("nominatim returned status 429"), true},
		{"other error type", &GeocodingError{Type: ErrorTypeNotFound, Message: "not found"}, false},
		{"unrelated error", errors.New("some other error"), false},
	}, IsRateLimitError)
}

func TestIsTimeoutError(t *testing.T) {
	runErrorCheckTest(t, []errorCheckTestCase{
		{"timeout error type", &GeocodingError{Type: ErrorTypeTimeout, Message: "timeout"}, true},
		{"deadline exceeded", fmt.Errorf("calling provider: %w", context.DeadlineExceeded), true},
		{"net timeout", &net.DNSError{Err: "i/o timeout", IsTimeout: true}, true},
		{"message contains timeout", errors.New("connection timeout"), true},
		{"other error type", &GeocodingError{Type: ErrorTypeRateLimit, Message: "slow down"}, false},
		{"unrelated error", errors.New("boom"), false},
	}, IsTimeoutError)
}

func TestIsTransient(t *testing.T) {
	runErrorCheckTest(t, []errorCheckTestCase{
		{"nil", nil, false},
		{"rate limit", ClassifyHTTPError(http.StatusTooManyRequests, ""), true},
		{"server error", ClassifyHTTPError(http.StatusInternalServerError, ""), true},
		{"gateway timeout", ClassifyHTTPError(http.StatusGatewayTimeout, ""), true},
		{"forbidden", ClassifyHTTPError(http.StatusForbidden, ""), false},
		{"bad request", ClassifyHTTPError(http.StatusBadRequest, ""), false},
		{"unknown wrapping a network error", &GeocodingError{Type: ErrorTypeUnknown, Message: "x", Err: &net.OpError{Op: "dial", Err: errors.New("refused")}}, true},
		{"unknown decode failure", &GeocodingError{Type: ErrorTypeUnknown, Message: "decoding", Err: errors.New("unexpected EOF")}, false},
		{"bare deadline", context.DeadlineExceeded, true},
		{"plain error", errors.New("invalid character"), false},
	}, IsTransient)
}

func TestClassifyHTTPError(t *testing.T) {
	tests := []struct {
		status int
		want   ErrorType
	}{
		{http.StatusTooManyRequests, ErrorTypeRateLimit},
		{http.StatusForbidden, ErrorTypeQuotaExceeded},
		{http.StatusUnauthorized, ErrorTypeQuotaExceeded},
		{http.StatusBadRequest, ErrorTypeInvalidRequest},
		{http.StatusNotFound, ErrorTypeNotFound},
		{http.StatusRequestTimeout, ErrorTypeTimeout},
		{http.StatusBadGateway, ErrorTypeNetworkError},
		{http.StatusServiceUnavailable, ErrorTypeNetworkError},
		{http.StatusTeapot, ErrorTypeUnknown},
	}

	for _, tt := range tests {
		t.Run(http.StatusText(tt.status), func(t *testing.T) {
			if got := ClassifyHTTPError(tt.status, "").Type; got != tt.want {
				t.Errorf("ClassifyHTTPError(%d) = %v, want %v", tt.status, got, tt.want)
			}
		})
	}
}

func TestGeocodingErrorUnwrap(t *testing.T) {
	inner := errors.New("connection reset")
	err := fmt.Errorf("resolving: %w", &GeocodingError{Type: ErrorTypeNetworkError, Message: "request failed", Err: inner})

	if !errors.Is(err, inner) {
		t.Errorf("errors.Is() did not find the wrapped error")
	}

	if want := "resolving: request failed: connection reset"; err.Error() != want {
		t.Errorf("Error() = %q, want %q", err.Error(), want)
	}
}
