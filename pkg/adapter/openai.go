package adapter

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/openai/openai-go"
	"github.com/openai/openai-go/option"
	"github.com/openai/openai-go/shared"
	"github.com/zen-systems/nexus/pkg/registry"
)

// OpenAIAdapter implements the Adapter interface for GPT models.
type OpenAIAdapter struct {
	client openai.Client
}

// openAIModeParams is the reasoning knob set for one mode.
type openAIModeParams struct {
	Effort    shared.ReasoningEffort
	Verbosity string
}

var openAIModes = map[registry.Mode]openAIModeParams{
	registry.ModeLow:    {Effort: shared.ReasoningEffort("minimal"), Verbosity: "low"},
	registry.ModeMedium: {Effort: shared.ReasoningEffortMedium, Verbosity: "medium"},
	registry.ModeHigh:   {Effort: shared.ReasoningEffortHigh, Verbosity: "high"},
}

type openAIWire struct {
	params openai.ChatCompletionNewParams
	opts   []option.RequestOption
}

// NewOpenAIAdapter creates a new OpenAI adapter. Retries are disabled in the
// SDK; the orchestrator owns the retry policy.
func NewOpenAIAdapter(apiKey string, opts ...option.RequestOption) (*OpenAIAdapter, error) {
	if apiKey == "" {
		return nil, fmt.Errorf("openai API key is required")
	}

	reqOpts := append([]option.RequestOption{
		option.WithAPIKey(apiKey),
		option.WithMaxRetries(0),
	}, opts...)
	client := openai.NewClient(reqOpts...)
	return &OpenAIAdapter{client: client}, nil
}

// Kind returns the provider family.
func (a *OpenAIAdapter) Kind() registry.ProviderKind {
	return registry.ProviderOpenAI
}

// Name returns the adapter identifier.
func (a *OpenAIAdapter) Name() string {
	return "openai"
}

// TranslateRequest builds a Chat Completions request.
func (a *OpenAIAdapter) TranslateRequest(req Request, model registry.ModelDescriptor) (*WireRequest, error) {
	mode, err := checkMode(a.Kind(), req, model)
	if err != nil {
		return nil, err
	}
	mp := openAIModes[mode]

	messages := make([]openai.ChatCompletionMessageParamUnion, 0, len(req.Messages))
	for _, m := range req.Messages {
		switch m.Role {
		case RoleSystem:
			messages = append(messages, openai.SystemMessage(m.Content))
		case RoleUser:
			messages = append(messages, openai.UserMessage(m.Content))
		case RoleAssistant:
			messages = append(messages, openai.AssistantMessage(m.Content))
		default:
			return nil, invalidRequestf(a.Kind(), "unsupported role %q", m.Role)
		}
	}

	params := openai.ChatCompletionNewParams{
		Model:           openai.ChatModel(model.UpstreamModel),
		Messages:        messages,
		ReasoningEffort: mp.Effort,
	}
	if req.MaxOutputTokens > 0 {
		params.MaxCompletionTokens = openai.Int(int64(req.MaxOutputTokens))
	}

	return &WireRequest{
		Model:      model,
		Mode:       mode,
		PromptText: joinTurns(req.Messages),
		payload: &openAIWire{
			params: params,
			opts:   []option.RequestOption{option.WithJSONSet("verbosity", mp.Verbosity)},
		},
	}, nil
}

// Invoke sends the request to OpenAI.
func (a *OpenAIAdapter) Invoke(ctx context.Context, wire *WireRequest) (*RawResult, error) {
	w, ok := wire.Payload().(*openAIWire)
	if !ok {
		return nil, invalidRequestf(a.Kind(), "wire request was not built by the openai adapter")
	}

	resp, err := a.client.Chat.Completions.New(ctx, w.params, w.opts...)
	if err != nil {
		return nil, ClassifyOpenAI(err)
	}
	return &RawResult{body: resp}, nil
}

// ParseResponse converts a chat completion into the canonical response.
func (a *OpenAIAdapter) ParseResponse(raw *RawResult, wire *WireRequest) Response {
	resp, _ := raw.Body().(*openai.ChatCompletion)
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
	if len(resp.Choices) > 0 {
		out.Text = resp.Choices[0].Message.Content
		out.FinishReason = openAIFinishReason(string(resp.Choices[0].FinishReason))
	}
	out.Usage = meter(
		int(resp.Usage.PromptTokens),
		int(resp.Usage.CompletionTokens),
		wire.PromptText,
		out.Text,
		out.FinishReason,
	)
	return out
}

func openAIFinishReason(reason string) FinishReason {
	switch reason {
	case "stop", "tool_calls", "function_call":
		return FinishStop
	case "length":
		return FinishLength
	case "content_filter":
		return FinishContentFilter
	}
	return FinishError
}

// ClassifyOpenAI normalizes an error returned by the openai-go client.
func ClassifyOpenAI(err error) error {
	var apiErr *openai.Error
	if errors.As(err, &apiErr) {
		return classify(registry.ProviderOpenAI, apiErr.StatusCode, err)
	}
	return classify(registry.ProviderOpenAI, 0, err)
}
