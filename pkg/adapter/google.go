package adapter

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/zen-systems/nexus/pkg/registry"
	"google.golang.org/genai"
)

// GoogleAdapter implements the Adapter interface for Gemini models.
type GoogleAdapter struct {
	client *genai.Client
}

type googleModeParams struct {
	ThinkingBudget  int32 // -1 lets the model decide
	Temperature     float32
	MaxOutputTokens int32
}

var googleModes = map[registry.Mode]googleModeParams{
	registry.ModeLow:    {ThinkingBudget: 0, Temperature: 0.3, MaxOutputTokens: 512},
	registry.ModeMedium: {ThinkingBudget: 2048, Temperature: 0.7, MaxOutputTokens: 2048},
	registry.ModeHigh:   {ThinkingBudget: -1, Temperature: 0.9, MaxOutputTokens: 4096},
}

type googleWire struct {
	model    string
	contents []*genai.Content
	config   *genai.GenerateContentConfig
}

// NewGoogleAdapter creates a new Google Gemini adapter. baseURL overrides the
// API endpoint when non-empty.
func NewGoogleAdapter(ctx context.Context, apiKey, baseURL string) (*GoogleAdapter, error) {
	if apiKey == "" {
		return nil, fmt.Errorf("google API key is required")
	}

	cfg := &genai.ClientConfig{
		APIKey:  apiKey,
		Backend: genai.BackendGeminiAPI,
	}
	if baseURL != "" {
		cfg.HTTPOptions = genai.HTTPOptions{BaseURL: baseURL}
	}
	client, err := genai.NewClient(ctx, cfg)
	if err != nil {
		return nil, fmt.Errorf("failed to create google client: %w", err)
	}

	return &GoogleAdapter{
		client: client,
	}, nil
}

// Kind returns the provider family.
func (a *GoogleAdapter) Kind() registry.ProviderKind {
	return registry.ProviderGoogle
}

// Name returns the adapter identifier.
func (a *GoogleAdapter) Name() string {
	return "google"
}

// TranslateRequest builds a GenerateContent request. System turns become the
// system instruction and assistant turns use the "model" role.
func (a *GoogleAdapter) TranslateRequest(req Request, model registry.ModelDescriptor) (*WireRequest, error) {
	mode, err := checkMode(a.Kind(), req, model)
	if err != nil {
		return nil, err
	}
	mp := googleModes[mode]

	var system []string
	contents := make([]*genai.Content, 0, len(req.Messages))
	for _, m := range req.Messages {
		switch m.Role {
		case RoleSystem:
			system = append(system, m.Content)
		case RoleUser:
			contents = append(contents, genai.NewContentFromText(m.Content, genai.RoleUser))
		case RoleAssistant:
			contents = append(contents, genai.NewContentFromText(m.Content, genai.RoleModel))
		default:
			return nil, invalidRequestf(a.Kind(), "unsupported role %q", m.Role)
		}
	}

	maxTokens := mp.MaxOutputTokens
	if req.MaxOutputTokens > 0 {
		maxTokens = int32(req.MaxOutputTokens)
	}

	config := &genai.GenerateContentConfig{
		Temperature:     genai.Ptr(mp.Temperature),
		MaxOutputTokens: maxTokens,
		ThinkingConfig: &genai.ThinkingConfig{
			ThinkingBudget: genai.Ptr(mp.ThinkingBudget),
		},
	}
	if len(system) > 0 {
		config.SystemInstruction = genai.NewContentFromText(strings.Join(system, "\n\n"), genai.RoleUser)
	}

	return &WireRequest{
		Model:      model,
		Mode:       mode,
		PromptText: joinTurns(req.Messages),
		payload: &googleWire{
			model:    model.UpstreamModel,
			contents: contents,
			config:   config,
		},
	}, nil
}

// Invoke sends the request to Gemini.
func (a *GoogleAdapter) Invoke(ctx context.Context, wire *WireRequest) (*RawResult, error) {
	w, ok := wire.Payload().(*googleWire)
	if !ok {
		return nil, invalidRequestf(a.Kind(), "wire request was not built by the google adapter")
	}

	resp, err := a.client.Models.GenerateContent(ctx, w.model, w.contents, w.config)
	if err != nil {
		return nil, classifyGoogle(err)
	}
	return &RawResult{body: resp}, nil
}

// ParseResponse converts a Gemini reply into the canonical response. Thought
// parts are not returned as text but their tokens are billed as output.
func (a *GoogleAdapter) ParseResponse(raw *RawResult, wire *WireRequest) Response {
	resp, _ := raw.Body().(*genai.GenerateContentResponse)
	out := Response{
		ID:           "gemini-" + uuid.NewString(),
		Model:        wire.Model.ID,
		FinishReason: FinishError,
		Created:      time.Now().UTC(),
	}
	if resp == nil {
		out.Usage = meter(0, 0, wire.PromptText, "", out.FinishReason)
		return out
	}
	if len(resp.Candidates) > 0 && resp.Candidates[0] != nil {
		cand := resp.Candidates[0]
		var content strings.Builder
		if cand.Content != nil {
			for _, part := range cand.Content.Parts {
				if part == nil || part.Thought {
					continue
				}
				content.WriteString(part.Text)
			}
		}
		out.Text = content.String()
		out.FinishReason = googleFinishReason(string(cand.FinishReason))
	} else if resp.PromptFeedback != nil && resp.PromptFeedback.BlockReason != "" {
		out.FinishReason = FinishContentFilter
	}

	var prompt, completion int
	if md := resp.UsageMetadata; md != nil {
		prompt = int(md.PromptTokenCount)
		completion = int(md.CandidatesTokenCount) + int(md.ThoughtsTokenCount)
	}
	out.Usage = meter(prompt, completion, wire.PromptText, out.Text, out.FinishReason)
	return out
}

func googleFinishReason(reason string) FinishReason {
	switch reason {
	case "STOP", "":
		return FinishStop
	case "MAX_TOKENS":
		return FinishLength
	case "SAFETY", "PROHIBITED_CONTENT", "BLOCKLIST", "SPII", "RECITATION", "IMAGE_SAFETY":
		return FinishContentFilter
	}
	return FinishError
}

func classifyGoogle(err error) error {
	var apiErr genai.APIError
	if errors.As(err, &apiErr) {
		return classify(registry.ProviderGoogle, apiErr.Code, err)
	}
	var apiErrPtr *genai.APIError
	if errors.As(err, &apiErrPtr) && apiErrPtr != nil {
		return classify(registry.ProviderGoogle, apiErrPtr.Code, err)
	}
	return classify(registry.ProviderGoogle, 0, err)
}
