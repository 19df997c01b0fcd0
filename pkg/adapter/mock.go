package adapter

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/zen-systems/nexus/pkg/pricing"
	"github.com/zen-systems/nexus/pkg/registry"
)

// MockAdapter returns deterministic responses for local runs and tests.
// It stands in for any provider kind.
type MockAdapter struct {
	kind            registry.ProviderKind
	responses       map[string]string
	defaultResponse string

	// Usage is reported as provider usage when set; otherwise the reply
	// carries no counts and is estimated.
	Usage *pricing.UsageRecord
}

type mockBody struct {
	text string
}

// NewMockAdapter creates a mock adapter for kind with a default response.
func NewMockAdapter(kind registry.ProviderKind) *MockAdapter {
	return &MockAdapter{
		kind:            kind,
		responses:       make(map[string]string),
		defaultResponse: "mock response:",
	}
}

// NewMockAdapterWithResponses creates a mock adapter with predefined
// responses keyed by the current user turn.
func NewMockAdapterWithResponses(kind registry.ProviderKind, responses map[string]string, defaultResponse string) *MockAdapter {
	if defaultResponse == "" {
		defaultResponse = "mock response:"
	}
	return &MockAdapter{kind: kind, responses: responses, defaultResponse: defaultResponse}
}

// Kind returns the provider family the mock impersonates.
func (a *MockAdapter) Kind() registry.ProviderKind {
	return a.kind
}

// Name returns the adapter identifier.
func (a *MockAdapter) Name() string {
	return "mock"
}

// TranslateRequest checks the mode and keeps the current user turn.
func (a *MockAdapter) TranslateRequest(req Request, model registry.ModelDescriptor) (*WireRequest, error) {
	mode, err := checkMode(a.kind, req, model)
	if err != nil {
		return nil, err
	}
	turn, _ := req.CurrentUserTurn()
	return &WireRequest{
		Model:      model,
		Mode:       mode,
		PromptText: joinTurns(req.Messages),
		payload:    turn.Content,
	}, nil
}

// Invoke returns a deterministic reply for the prompt.
func (a *MockAdapter) Invoke(ctx context.Context, wire *WireRequest) (*RawResult, error) {
	if err := ctx.Err(); err != nil {
		return nil, classify(a.kind, 0, err)
	}
	prompt, _ := wire.Payload().(string)
	if response, ok := a.responses[prompt]; ok {
		return &RawResult{body: mockBody{text: response}}, nil
	}
	return &RawResult{body: mockBody{text: fmt.Sprintf("%s\n%s", a.defaultResponse, prompt)}}, nil
}

// ParseResponse wraps the mock reply.
func (a *MockAdapter) ParseResponse(raw *RawResult, wire *WireRequest) Response {
	body, _ := raw.Body().(mockBody)
	out := Response{
		ID:           "mock-" + uuid.NewString(),
		Model:        wire.Model.ID,
		Text:         body.text,
		FinishReason: FinishStop,
		Created:      time.Now().UTC(),
	}
	var prompt, completion int
	if a.Usage != nil {
		prompt, completion = a.Usage.PromptTokens, a.Usage.CompletionTokens
	}
	out.Usage = meter(prompt, completion, wire.PromptText, out.Text, out.FinishReason)
	return out
}
