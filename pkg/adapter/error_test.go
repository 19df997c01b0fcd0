package adapter

import (
	"context"
	"errors"
	"fmt"
	"testing"

	"github.com/zen-systems/nexus/pkg/registry"
)

func TestKindForStatus(t *testing.T) {
	cases := map[int]ErrorKind{
		401: KindAuth,
		403: KindAuth,
		429: KindRateLimit,
		408: KindTimeout,
		504: KindTimeout,
		400: KindInvalidRequest,
		404: KindInvalidRequest,
		422: KindInvalidRequest,
		500: KindUpstream5xx,
		502: KindUpstream5xx,
		503: KindUpstream5xx,
		200: KindUnknown,
		0:   KindUnknown,
	}
	for status, want := range cases {
		if got := KindForStatus(status); got != want {
			t.Fatalf("status %d: got %s want %s", status, got, want)
		}
	}
}

func TestRetryableKinds(t *testing.T) {
	retryable := map[ErrorKind]bool{
		KindTimeout:        true,
		KindRateLimit:      true,
		KindUpstream5xx:    true,
		KindAuth:           false,
		KindInvalidRequest: false,
		KindUnknown:        false,
	}
	for kind, want := range retryable {
		if kind.Retryable() != want {
			t.Fatalf("%s: expected retryable=%v", kind, want)
		}
		err := FromStatus(registry.ProviderOpenAI, statusFor(kind), errors.New("x"))
		if kind != KindUnknown && IsTransient(err) != want {
			t.Fatalf("%s: IsTransient mismatch", kind)
		}
	}
}

func statusFor(kind ErrorKind) int {
	switch kind {
	case KindAuth:
		return 401
	case KindRateLimit:
		return 429
	case KindTimeout:
		return 408
	case KindUpstream5xx:
		return 500
	case KindInvalidRequest:
		return 400
	}
	return 0
}

func TestClassifyContextErrors(t *testing.T) {
	err := Classify(registry.ProviderGoogle, fmt.Errorf("call: %w", context.Canceled))
	var perr *ProviderError
	if errors.As(err, &perr) {
		t.Fatalf("cancellation must not be classified, got %v", perr)
	}
	if !errors.Is(err, context.Canceled) {
		t.Fatalf("expected context.Canceled to pass through")
	}

	err = Classify(registry.ProviderGoogle, fmt.Errorf("call: %w", context.DeadlineExceeded))
	if !errors.As(err, &perr) || perr.Kind != KindTimeout || !perr.Retryable {
		t.Fatalf("expected retryable TIMEOUT, got %v", err)
	}
	if perr.Provider != registry.ProviderGoogle {
		t.Fatalf("expected provider to be recorded")
	}

	err = Classify(registry.ProviderGoogle, errors.New("boom"))
	if !errors.As(err, &perr) || perr.Kind != KindUnknown || perr.Retryable {
		t.Fatalf("expected non-retryable UNKNOWN, got %v", err)
	}

	if Classify(registry.ProviderGoogle, nil) != nil {
		t.Fatalf("nil must stay nil")
	}
}

func TestClassifyKeepsExistingProviderError(t *testing.T) {
	orig := FromStatus(registry.ProviderAnthropic, 401, errors.New("bad key"))
	err := Classify(registry.ProviderOpenAI, fmt.Errorf("wrapped: %w", orig))
	var perr *ProviderError
	if !errors.As(err, &perr) || perr != orig {
		t.Fatalf("expected original provider error")
	}
}

func TestProviderErrorMessage(t *testing.T) {
	err := FromStatus(registry.ProviderOpenAI, 503, errors.New("overloaded"))
	want := "UPSTREAM_5XX error from OPENAI (status=503): overloaded"
	if err.Error() != want {
		t.Fatalf("got %q want %q", err.Error(), want)
	}
	var nilErr *ProviderError
	if nilErr.Error() != "provider error" || nilErr.Unwrap() != nil {
		t.Fatalf("nil receiver must be safe")
	}
}
