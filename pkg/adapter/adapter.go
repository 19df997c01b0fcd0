package adapter

import (
	"context"

	"github.com/zen-systems/nexus/pkg/registry"
)

// Adapter translates canonical requests to one provider's wire format,
// performs the upstream call and translates the reply back.
type Adapter interface {
	// Kind returns the provider family this adapter serves.
	Kind() registry.ProviderKind

	// Name returns the adapter's identifier.
	Name() string

	// TranslateRequest builds the provider request for a resolved model.
	// It fails with an INVALID_REQUEST ProviderError when the model does not
	// support the requested mode.
	TranslateRequest(req Request, model registry.ModelDescriptor) (*WireRequest, error)

	// Invoke performs the upstream call. Errors are *ProviderError, except for
	// caller cancellation which is returned as the context error.
	Invoke(ctx context.Context, wire *WireRequest) (*RawResult, error)

	// ParseResponse extracts text, finish reason and token counts. It never
	// fails: missing usage is estimated.
	ParseResponse(raw *RawResult, wire *WireRequest) Response
}

// WireRequest is a provider request ready to be sent.
type WireRequest struct {
	Model registry.ModelDescriptor
	Mode  registry.Mode

	// PromptText is the concatenated turn content, used for usage estimation.
	PromptText string

	payload any
}

// Payload returns the provider-specific request body.
func (w *WireRequest) Payload() any {
	return w.payload
}

// RawResult is an unparsed upstream reply.
type RawResult struct {
	body any
}

// Body returns the provider-specific reply.
func (r *RawResult) Body() any {
	return r.body
}

// checkMode rejects a mode the model does not support.
func checkMode(kind registry.ProviderKind, req Request, model registry.ModelDescriptor) (registry.Mode, error) {
	mode, err := registry.ParseMode(string(req.Mode))
	if err != nil {
		return "", invalidRequest(kind, err)
	}
	if !model.Supports(mode) {
		return "", invalidRequestf(kind, "model %s does not support mode %s", model.ID, mode)
	}
	return mode, nil
}
