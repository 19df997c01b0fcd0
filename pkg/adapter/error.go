package adapter

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"

	"github.com/zen-systems/nexus/pkg/registry"
)

// ErrorKind classifies an upstream failure.
type ErrorKind string

const (
	KindAuth           ErrorKind = "AUTH"
	KindRateLimit      ErrorKind = "RATE_LIMIT"
	KindTimeout        ErrorKind = "TIMEOUT"
	KindInvalidRequest ErrorKind = "INVALID_REQUEST"
	KindUpstream5xx    ErrorKind = "UPSTREAM_5XX"
	KindUnknown        ErrorKind = "UNKNOWN"
)

// Retryable reports whether failures of this kind may be retried.
func (k ErrorKind) Retryable() bool {
	switch k {
	case KindTimeout, KindRateLimit, KindUpstream5xx:
		return true
	}
	return false
}

// ProviderError is a classified upstream failure.
type ProviderError struct {
	Kind      ErrorKind
	Provider  registry.ProviderKind
	Status    int
	Retryable bool
	Err       error
}

func (e *ProviderError) Error() string {
	if e == nil {
		return "provider error"
	}
	msg := fmt.Sprintf("%s error from %s", e.Kind, e.Provider)
	if e.Status != 0 {
		msg += fmt.Sprintf(" (status=%d)", e.Status)
	}
	if e.Err != nil {
		msg += ": " + e.Err.Error()
	}
	return msg
}

func (e *ProviderError) Unwrap() error {
	if e == nil {
		return nil
	}
	return e.Err
}

func newProviderError(kind ErrorKind, provider registry.ProviderKind, status int, err error) *ProviderError {
	return &ProviderError{
		Kind:      kind,
		Provider:  provider,
		Status:    status,
		Retryable: kind.Retryable(),
		Err:       err,
	}
}

func invalidRequest(provider registry.ProviderKind, err error) *ProviderError {
	return newProviderError(KindInvalidRequest, provider, 0, fmt.Errorf("%w: %v", ErrInvalidRequest, err))
}

func invalidRequestf(provider registry.ProviderKind, format string, args ...any) *ProviderError {
	return invalidRequest(provider, fmt.Errorf(format, args...))
}

// KindForStatus maps an HTTP status code to an error kind.
func KindForStatus(status int) ErrorKind {
	switch {
	case status == http.StatusUnauthorized || status == http.StatusForbidden:
		return KindAuth
	case status == http.StatusTooManyRequests:
		return KindRateLimit
	case status == http.StatusRequestTimeout || status == http.StatusGatewayTimeout:
		return KindTimeout
	case status >= 500 && status <= 599:
		return KindUpstream5xx
	case status >= 400 && status <= 499:
		return KindInvalidRequest
	}
	return KindUnknown
}

// FromStatus builds a classified error for an HTTP status returned by provider.
func FromStatus(provider registry.ProviderKind, status int, err error) *ProviderError {
	return newProviderError(KindForStatus(status), provider, status, err)
}

// classify turns a transport-level failure into a ProviderError. status is
// the HTTP status extracted from a provider SDK error, or 0 if none.
// Caller cancellation is passed through untouched.
func classify(provider registry.ProviderKind, status int, err error) error {
	if err == nil {
		return nil
	}
	var perr *ProviderError
	if errors.As(err, &perr) {
		return perr
	}
	if errors.Is(err, context.Canceled) {
		return err
	}
	if status != 0 {
		return FromStatus(provider, status, err)
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return newProviderError(KindTimeout, provider, 0, err)
	}
	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return newProviderError(KindTimeout, provider, 0, err)
	}
	return newProviderError(KindUnknown, provider, 0, err)
}

// Classify normalizes an arbitrary upstream error for provider.
func Classify(provider registry.ProviderKind, err error) error {
	return classify(provider, 0, err)
}

// IsTransient reports whether an error is safe to retry.
func IsTransient(err error) bool {
	if err == nil {
		return false
	}
	var perr *ProviderError
	if errors.As(err, &perr) {
		return perr.Retryable
	}
	return false
}
