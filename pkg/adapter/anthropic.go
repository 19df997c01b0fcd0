package adapter

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/anthropics/anthropic-sdk-go"
	aoption "github.com/anthropics/anthropic-sdk-go/option"
	"github.com/google/uuid"
	"github.com/zen-systems/nexus/pkg/registry"
)

// AnthropicAdapter implements the Adapter interface for Claude models.
type AnthropicAdapter struct {
	client anthropic.Client
}

type anthropicModeParams struct {
	Temperature    float64
	MaxTokens      int64
	ThinkingBudget int64 // 0 disables extended thinking
}

var anthropicModes = map[registry.Mode]anthropicModeParams{
	registry.ModeLow:    {Temperature: 0.3, MaxTokens: 512},
	registry.ModeMedium: {Temperature: 0.7, MaxTokens: 2048},
	registry.ModeHigh:   {Temperature: 1.0, MaxTokens: 4096, ThinkingBudget: 2000},
}

// NewAnthropicAdapter creates a new Anthropic adapter.
func NewAnthropicAdapter(apiKey string, opts ...aoption.RequestOption) (*AnthropicAdapter, error) {
	if apiKey == "" {
		return nil, fmt.Errorf("anthropic API key is required")
	}

	reqOpts := append([]aoption.RequestOption{
		aoption.WithAPIKey(apiKey),
		aoption.WithMaxRetries(0),
	}, opts...)
	client := anthropic.NewClient(reqOpts...)
	return &AnthropicAdapter{client: client}, nil
}

// Kind returns the provider family.
func (a *AnthropicAdapter) Kind() registry.ProviderKind {
	return registry.ProviderAnthropic
}

// Name returns the adapter identifier.
func (a *AnthropicAdapter) Name() string {
	return "anthropic"
}

// TranslateRequest builds a Messages API request. System turns are lifted
// into the system parameter.
func (a *AnthropicAdapter) TranslateRequest(req Request, model registry.ModelDescriptor) (*WireRequest, error) {
	mode, err := checkMode(a.Kind(), req, model)
	if err != nil {
		return nil, err
	}
	mp := anthropicModes[mode]

	var system []string
	messages := make([]anthropic.MessageParam, 0, len(req.Messages))
	for _, m := range req.Messages {
		switch m.Role {
		case RoleSystem:
			system = append(system, m.Content)
		case RoleUser:
			messages = append(messages, anthropic.NewUserMessage(anthropic.NewTextBlock(m.Content)))
		case RoleAssistant:
			messages = append(messages, anthropic.NewAssistantMessage(anthropic.NewTextBlock(m.Content)))
		default:
			return nil, invalidRequestf(a.Kind(), "unsupported role %q", m.Role)
		}
	}

	maxTokens := mp.MaxTokens
	if req.MaxOutputTokens > 0 {
		maxTokens = int64(req.MaxOutputTokens)
	}

	params := anthropic.MessageNewParams{
		Model:       anthropic.Model(model.UpstreamModel),
		MaxTokens:   maxTokens,
		Messages:    messages,
		Temperature: anthropic.Float(mp.Temperature),
	}
	if len(system) > 0 {
		params.System = []anthropic.TextBlockParam{{Text: strings.Join(system, "\n\n")}}
	}
	// the thinking budget must fit below max_tokens
	if mp.ThinkingBudget > 0 && maxTokens > mp.ThinkingBudget {
		params.Thinking = anthropic.ThinkingConfigParamOfEnabled(mp.ThinkingBudget)
	}

	return &WireRequest{
		Model:      model,
		Mode:       mode,
		PromptText: joinTurns(req.Messages),
		payload:    &params,
	}, nil
}

// Invoke sends the request to Anthropic.
func (a *AnthropicAdapter) Invoke(ctx context.Context, wire *WireRequest) (*RawResult, error) {
	params, ok := wire.Payload().(*anthropic.MessageNewParams)
	if !ok {
		return nil, invalidRequestf(a.Kind(), "wire request was not built by the anthropic adapter")
	}

	resp, err := a.client.Messages.New(ctx, *params)
	if err != nil {
		return nil, classifyAnthropic(err)
	}
	return &RawResult{body: resp}, nil
}

// ParseResponse converts a Claude message into the canonical response.
func (a *AnthropicAdapter) ParseResponse(raw *RawResult, wire *WireRequest) Response {
	resp, _ := raw.Body().(*anthropic.Message)
	out := Response{
		Model:        wire.Model.ID,
		FinishReason: FinishError,
		Created:      time.Now().UTC(),
	}
	if resp == nil {
		out.ID = uuid.NewString()
		out.Usage = meter(0, 0, wire.PromptText, "", out.FinishReason)
		return out
	}
	out.ID = resp.ID
	if out.ID == "" {
		out.ID = uuid.NewString()
	}

	var content strings.Builder
	for _, block := range resp.Content {
		if block.Type == "text" {
			content.WriteString(block.Text)
		}
	}
	out.Text = content.String()
	out.FinishReason = anthropicFinishReason(string(resp.StopReason))
	out.Usage = meter(
		int(resp.Usage.InputTokens),
		int(resp.Usage.OutputTokens),
		wire.PromptText,
		out.Text,
		out.FinishReason,
	)
	return out
}

func anthropicFinishReason(reason string) FinishReason {
	switch reason {
	case "end_turn", "stop_sequence", "tool_use", "pause_turn", "":
		return FinishStop
	case "max_tokens", "model_context_window_exceeded":
		return FinishLength
	case "refusal":
		return FinishContentFilter
	}
	return FinishError
}

func classifyAnthropic(err error) error {
	var apiErr *anthropic.Error
	if errors.As(err, &apiErr) {
		return classify(registry.ProviderAnthropic, apiErr.StatusCode, err)
	}
	return classify(registry.ProviderAnthropic, 0, err)
}
