package orchestrator

import (
	"context"
	"errors"
	"fmt"

	"github.com/zen-systems/nexus/pkg/adapter"
)

// State is a step of the per-request state machine.
type State string

const (
	StateResolving        State = "RESOLVING"
	StateDispatching      State = "DISPATCHING"
	StateAwaitingUpstream State = "AWAITING_UPSTREAM"
	StateMetering         State = "METERING"
	StateDone             State = "DONE"
	StateFailed           State = "FAILED"
)

// Kind is the normalized failure category surfaced to callers.
type Kind string

const (
	KindUnknownModel        Kind = "UnknownModel"
	KindInvalidRequest      Kind = "InvalidRequest"
	KindAuth                Kind = "Auth"
	KindRateLimit           Kind = "RateLimit"
	KindTimeout             Kind = "Timeout"
	KindUpstreamServerError Kind = "UpstreamServerError"
	KindCancelled           Kind = "Cancelled"
	KindUnknown             Kind = "Unknown"
)

// Sentinel errors matched by errors.Is against a *Failure.
var (
	ErrUnknownModel        = errors.New("unknown model")
	ErrInvalidRequest      = errors.New("invalid request")
	ErrAuth                = errors.New("upstream rejected credentials")
	ErrRateLimit           = errors.New("upstream rate limit")
	ErrTimeout             = errors.New("upstream timeout")
	ErrUpstreamServerError = errors.New("upstream server error")
	ErrCancelled           = errors.New("request cancelled")
	ErrUnknown             = errors.New("upstream failure")
)

var sentinels = map[Kind]error{
	KindUnknownModel:        ErrUnknownModel,
	KindInvalidRequest:      ErrInvalidRequest,
	KindAuth:                ErrAuth,
	KindRateLimit:           ErrRateLimit,
	KindTimeout:             ErrTimeout,
	KindUpstreamServerError: ErrUpstreamServerError,
	KindCancelled:           ErrCancelled,
	KindUnknown:             ErrUnknown,
}

// Failure is the terminal FAILED outcome of a request.
type Failure struct {
	// State is the state the request was in when it failed.
	State    State
	Kind     Kind
	Model    string
	Attempts int
	Err      error
}

func (f *Failure) Error() string {
	msg := fmt.Sprintf("FAILED(%s) in %s", f.Kind, f.State)
	if f.Model != "" {
		msg += fmt.Sprintf(" model=%s", f.Model)
	}
	if f.Attempts > 0 {
		msg += fmt.Sprintf(" attempts=%d", f.Attempts)
	}
	if f.Err != nil {
		msg += ": " + f.Err.Error()
	}
	return msg
}

func (f *Failure) Unwrap() error {
	return f.Err
}

// Is matches the sentinel error of the failure's kind.
func (f *Failure) Is(target error) bool {
	s, ok := sentinels[f.Kind]
	return ok && s == target
}

// KindOf returns the failure kind of err, or "" when err is not a Failure.
func KindOf(err error) Kind {
	var f *Failure
	if errors.As(err, &f) {
		return f.Kind
	}
	return ""
}

// kindFromError maps an adapter error to a failure kind.
func kindFromError(err error) Kind {
	if errors.Is(err, context.Canceled) {
		return KindCancelled
	}
	var perr *adapter.ProviderError
	if !errors.As(err, &perr) {
		if errors.Is(err, adapter.ErrInvalidRequest) {
			return KindInvalidRequest
		}
		return KindUnknown
	}
	switch perr.Kind {
	case adapter.KindAuth:
		return KindAuth
	case adapter.KindRateLimit:
		return KindRateLimit
	case adapter.KindTimeout:
		return KindTimeout
	case adapter.KindInvalidRequest:
		return KindInvalidRequest
	case adapter.KindUpstream5xx:
		return KindUpstreamServerError
	}
	return KindUnknown
}
