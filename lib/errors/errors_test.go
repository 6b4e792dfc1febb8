package errors

import (
	"errors"
	"fmt"
	"net/http"
	"testing"
)

// TestSentinelErrors verifies all sentinel errors are properly defined.
func TestSentinelErrors(t *testing.T) {
	sentinels := []struct {
		name string
		err  error
	}{
		{"ErrNotFound", ErrNotFound},
		{"ErrInvalidInput", ErrInvalidInput},
		{"ErrTimeout", ErrTimeout},
		{"ErrUnavailable", ErrUnavailable},
		{"ErrRateLimited", ErrRateLimited},
		{"ErrDestroyed", ErrDestroyed},
		{"ErrCapacity", ErrCapacity},
		{"ErrNoCapacity", ErrNoCapacity},
		{"ErrInvalidState", ErrInvalidState},
		{"ErrInternal", ErrInternal},
		{"ErrConfiguration", ErrConfiguration},
		{"ErrCircuitOpen", ErrCircuitOpen},
	}

	for _, tc := range sentinels {
		t.Run(tc.name, func(t *testing.T) {
			if tc.err == nil {
				t.Fatalf("%s should not be nil", tc.name)
			}
			if tc.err.Error() == "" {
				t.Errorf("%s should have a non-empty message", tc.name)
			}
		})
	}
}

func TestDomainErrors(t *testing.T) {
	tests := []struct {
		name    string
		err     error
		wraps   error
		message string
	}{
		{"ErrPoolDestroyed", ErrPoolDestroyed, ErrDestroyed, "pool: destroyed"},
		{"ErrPoolCapacity", ErrPoolCapacity, ErrCapacity, "pool: connection limit reached: at capacity"},
		{"ErrAcquireTimeout", ErrAcquireTimeout, ErrTimeout, "pool: acquire operation timed out"},
		{"ErrPoolConfig", ErrPoolConfig, ErrConfiguration, "pool: configuration error"},
		{"ErrInvalidTier", ErrInvalidTier, ErrInvalidInput, "pool: tier invalid input"},
		{"ErrManagerShutdown", ErrManagerShutdown, ErrDestroyed, "manager: destroyed"},
		{"ErrNoHealthyRegion", ErrNoHealthyRegion, ErrNoCapacity, "manager: no healthy region: no capacity"},
		{"ErrUnknownRegion", ErrUnknownRegion, ErrNotFound, "manager: region not found"},
		{"ErrRequesterRateLimited", ErrRequesterRateLimited, ErrRateLimited, "manager: rate limit exceeded"},
		{"ErrGatewayNotRunning", ErrGatewayNotRunning, ErrInvalidState, "gateway: not running: invalid state"},
		{"ErrLeaseNotFound", ErrLeaseNotFound, ErrNotFound, "lease not found"},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			if tc.err.Error() != tc.message {
				t.Errorf("expected message %q, got %q", tc.message, tc.err.Error())
			}
			if !errors.Is(tc.err, tc.wraps) {
				t.Errorf("%s should wrap %v", tc.name, tc.wraps)
			}
		})
	}
}

// Destroyed and timeout must stay distinguishable after wrapping.
func TestDomainErrorsDistinct(t *testing.T) {
	if errors.Is(ErrPoolDestroyed, ErrTimeout) {
		t.Error("destroyed should not match timeout")
	}
	if errors.Is(ErrAcquireTimeout, ErrDestroyed) {
		t.Error("timeout should not match destroyed")
	}
	if errors.Is(ErrPoolCapacity, ErrNoCapacity) {
		t.Error("pool capacity should not match no-capacity")
	}
}

func TestNew(t *testing.T) {
	err := New(CodeNotFound, "resource not found")

	if err.Code != CodeNotFound {
		t.Errorf("expected code %d, got %d", CodeNotFound, err.Code)
	}
	if err.Err != nil {
		t.Error("Err should be nil")
	}
	if err.Error() != "resource not found" {
		t.Errorf("expected error string %q, got %q", "resource not found", err.Error())
	}
	if err.SafeMessage() != "resource not found" {
		t.Errorf("expected safe message %q, got %q", "resource not found", err.SafeMessage())
	}
}

func TestWrap(t *testing.T) {
	underlying := errors.New("dial tcp 10.0.0.7:5432: connection refused")
	err := Wrap(CodeUnavailable, "region unavailable", underlying)

	if err.Err != underlying {
		t.Error("Err should be the underlying error")
	}
	if err.SafeMessage() != "region unavailable" {
		t.Errorf("SafeMessage should not include internal detail, got %q", err.SafeMessage())
	}
	if errors.Unwrap(err) != underlying {
		t.Error("Unwrap should return the underlying error")
	}
}

func TestWrapInternal(t *testing.T) {
	sensitive := errors.New("factory failed for resource at 10.1.2.3")
	err := WrapInternal(sensitive)

	if err.Code != CodeInternal {
		t.Errorf("expected code %d, got %d", CodeInternal, err.Code)
	}
	if err.SafeMessage() != "internal error" {
		t.Errorf("SafeMessage should hide internal detail, got %q", err.SafeMessage())
	}
	if !errors.Is(err, sensitive) {
		t.Error("should wrap underlying error for debugging")
	}
}

func TestFromSentinel(t *testing.T) {
	tests := []struct {
		sentinel     error
		expectedCode int
		status       int
	}{
		{ErrNotFound, CodeNotFound, http.StatusNotFound},
		{ErrRateLimited, CodeRateLimited, http.StatusTooManyRequests},
		{ErrAcquireTimeout, CodeTimeout, http.StatusGatewayTimeout},
		{ErrPoolDestroyed, CodeDestroyed, http.StatusServiceUnavailable},
		{ErrManagerShutdown, CodeDestroyed, http.StatusServiceUnavailable},
		{ErrNoHealthyRegion, CodeNoCapacity, http.StatusServiceUnavailable},
		{ErrPoolCapacity, CodeCapacity, http.StatusServiceUnavailable},
		{ErrCircuitOpen, CodeCircuitOpen, http.StatusServiceUnavailable},
		{ErrInvalidTier, CodeInvalidParams, http.StatusBadRequest},
		{ErrPoolConfig, CodeConfiguration, http.StatusInternalServerError},
		{ErrGatewayNotRunning, CodeState, http.StatusConflict},
		{ErrInternal, CodeInternal, http.StatusInternalServerError},
	}

	for _, tc := range tests {
		t.Run(tc.sentinel.Error(), func(t *testing.T) {
			err := FromSentinel(fmt.Errorf("context: %w", tc.sentinel))
			if err.Code != tc.expectedCode {
				t.Errorf("expected code %d, got %d", tc.expectedCode, err.Code)
			}
			if err.HTTPStatus() != tc.status {
				t.Errorf("expected status %d, got %d", tc.status, err.HTTPStatus())
			}
			if !errors.Is(err, tc.sentinel) {
				t.Error("should wrap sentinel error")
			}
		})
	}
}

func TestFromSentinelNil(t *testing.T) {
	if FromSentinel(nil) != nil {
		t.Error("FromSentinel(nil) should return nil")
	}
}

func TestFromSentinelKeepsStructured(t *testing.T) {
	orig := New(CodeValidation, "bad region")
	got := FromSentinel(fmt.Errorf("outer: %w", orig))
	if got != orig {
		t.Error("FromSentinel should return an existing *Error unchanged")
	}
}

func TestIsHelpers(t *testing.T) {
	tests := []struct {
		name   string
		fn     func(error) bool
		err    error
		expect bool
	}{
		{"IsNotFound-true", IsNotFound, ErrUnknownRegion, true},
		{"IsNotFound-false", IsNotFound, ErrInternal, false},
		{"IsTimeout-true", IsTimeout, ErrAcquireTimeout, true},
		{"IsTimeout-false", IsTimeout, ErrPoolDestroyed, false},
		{"IsDestroyed-pool", IsDestroyed, ErrPoolDestroyed, true},
		{"IsDestroyed-manager", IsDestroyed, ErrManagerShutdown, true},
		{"IsDestroyed-false", IsDestroyed, ErrAcquireTimeout, false},
		{"IsNoCapacity-true", IsNoCapacity, ErrNoHealthyRegion, true},
		{"IsNoCapacity-false", IsNoCapacity, ErrPoolCapacity, false},
		{"IsCapacity-true", IsCapacity, ErrPoolCapacity, true},
		{"IsRateLimited-true", IsRateLimited, ErrRequesterRateLimited, true},
		{"IsInvalidInput-true", IsInvalidInput, ErrInvalidTier, true},
		{"IsInvalidState-true", IsInvalidState, ErrGatewayAlreadyRunning, true},
		{"IsInvalidState-false", IsInvalidState, ErrInternal, false},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			if got := tc.fn(tc.err); got != tc.expect {
				t.Errorf("expected %v, got %v", tc.expect, got)
			}
		})
	}
}

func TestJoin(t *testing.T) {
	joined := Join(ErrAcquireTimeout, ErrPoolDestroyed)
	if joined == nil {
		t.Fatal("Join should return a non-nil error")
	}
	if !Is(joined, ErrTimeout) || !Is(joined, ErrDestroyed) {
		t.Error("joined error should contain both sentinels")
	}
	if Join(nil, nil) != nil {
		t.Error("Join of nils should be nil")
	}
}

func TestAs(t *testing.T) {
	var target *Error
	if !As(fmt.Errorf("wrap: %w", New(CodeTimeout, "slow")), &target) {
		t.Fatal("As should find *Error")
	}
	if target.Code != CodeTimeout {
		t.Errorf("expected code %d, got %d", CodeTimeout, target.Code)
	}
}
