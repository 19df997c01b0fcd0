package adapter

import (
	"context"
	"errors"
	"net/http"
	"testing"

	"github.com/anthropics/anthropic-sdk-go"
	aoption "github.com/anthropics/anthropic-sdk-go/option"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/zen-systems/nexus/pkg/registry"
)

func TestAnthropicTranslateModeMapping(t *testing.T) {
	a, err := NewAnthropicAdapter("test-key")
	require.NoError(t, err)

	cases := []struct {
		mode        registry.Mode
		temperature float64
		maxTokens   float64
		thinking    bool
	}{
		{registry.ModeLow, 0.3, 512, false},
		{registry.ModeMedium, 0.7, 2048, false},
		{registry.ModeHigh, 1.0, 4096, true},
	}
	for _, tc := range cases {
		wire, err := a.TranslateRequest(userRequest("claude-opus-4-1", tc.mode, "hi"), mustResolve(t, "claude-opus-4-1"))
		require.NoError(t, err)

		body := toMap(t, wire.Payload().(*anthropic.MessageNewParams))
		assert.Equal(t, "claude-opus-4-1", body["model"])
		assert.InDelta(t, tc.temperature, body["temperature"], 1e-9, tc.mode)
		assert.Equal(t, tc.maxTokens, body["max_tokens"], tc.mode)

		thinking, ok := body["thinking"].(map[string]any)
		assert.Equal(t, tc.thinking, ok, tc.mode)
		if tc.thinking {
			assert.Equal(t, "enabled", thinking["type"])
			assert.EqualValues(t, 2000, thinking["budget_tokens"])
		}
	}
}

func TestAnthropicTranslateLiftsSystemTurns(t *testing.T) {
	a, err := NewAnthropicAdapter("test-key")
	require.NoError(t, err)

	req := Request{
		Model: "claude-sonnet-4-5",
		Messages: []Message{
			{Role: RoleSystem, Content: "rule one"},
			{Role: RoleUser, Content: "q1"},
			{Role: RoleAssistant, Content: "a1"},
			{Role: RoleSystem, Content: "rule two"},
			{Role: RoleUser, Content: "q2"},
		},
	}
	wire, err := a.TranslateRequest(req, mustResolve(t, "claude-sonnet-4-5"))
	require.NoError(t, err)

	params := wire.Payload().(*anthropic.MessageNewParams)
	require.Len(t, params.System, 1)
	assert.Equal(t, "rule one\n\nrule two", params.System[0].Text)

	body := toMap(t, params)
	msgs := body["messages"].([]any)
	require.Len(t, msgs, 3)
	roles := []string{"user", "assistant", "user"}
	for i, m := range msgs {
		assert.Equal(t, roles[i], m.(map[string]any)["role"])
	}
}

func TestAnthropicThinkingDroppedWhenCeilingTooLow(t *testing.T) {
	a, err := NewAnthropicAdapter("test-key")
	require.NoError(t, err)

	req := userRequest("claude-opus-4-1", registry.ModeHigh, "hi")
	req.MaxOutputTokens = 1000
	wire, err := a.TranslateRequest(req, mustResolve(t, "claude-opus-4-1"))
	require.NoError(t, err)

	body := toMap(t, wire.Payload().(*anthropic.MessageNewParams))
	assert.EqualValues(t, 1000, body["max_tokens"])
	_, ok := body["thinking"]
	assert.False(t, ok)
}

func TestAnthropicTranslateRejectsUnsupportedMode(t *testing.T) {
	a, err := NewAnthropicAdapter("test-key")
	require.NoError(t, err)

	_, err = a.TranslateRequest(userRequest("claude-haiku-4-5", registry.ModeHigh, "hi"), mustResolve(t, "claude-haiku-4-5"))
	var perr *ProviderError
	require.True(t, errors.As(err, &perr))
	assert.Equal(t, KindInvalidRequest, perr.Kind)
}

const anthropicMessage = `{
  "id": "msg_1",
  "type": "message",
  "role": "assistant",
  "model": "claude-haiku-4-5",
  "content": [{"type": "text", "text": "Hel"}, {"type": "text", "text": "lo"}],
  "stop_reason": "end_turn",
  "stop_sequence": null,
  "usage": {"input_tokens": 12, "output_tokens": 3}
}`

func TestAnthropicInvokeAndParse(t *testing.T) {
	srv, _ := stubServer(t, http.StatusOK, anthropicMessage)
	a, err := NewAnthropicAdapter("test-key", aoption.WithBaseURL(srv.URL))
	require.NoError(t, err)

	wire, err := a.TranslateRequest(userRequest("claude-haiku-4-5", registry.ModeLow, "hi"), mustResolve(t, "claude-haiku-4-5"))
	require.NoError(t, err)

	raw, err := a.Invoke(context.Background(), wire)
	require.NoError(t, err)

	resp := a.ParseResponse(raw, wire)
	assert.Equal(t, "msg_1", resp.ID)
	assert.Equal(t, "Hello", resp.Text)
	assert.Equal(t, FinishStop, resp.FinishReason)
	assert.Equal(t, 12, resp.Usage.PromptTokens)
	assert.Equal(t, 3, resp.Usage.CompletionTokens)
}

func TestAnthropicInvokeAuthFailure(t *testing.T) {
	srv, _ := stubServer(t, http.StatusUnauthorized, `{"type":"error","error":{"type":"authentication_error","message":"invalid x-api-key"}}`)
	a, err := NewAnthropicAdapter("test-key", aoption.WithBaseURL(srv.URL))
	require.NoError(t, err)

	wire, err := a.TranslateRequest(userRequest("claude-haiku-4-5", registry.ModeLow, "hi"), mustResolve(t, "claude-haiku-4-5"))
	require.NoError(t, err)

	_, err = a.Invoke(context.Background(), wire)
	var perr *ProviderError
	require.True(t, errors.As(err, &perr))
	assert.Equal(t, KindAuth, perr.Kind)
	assert.False(t, perr.Retryable)
}

func TestAnthropicRefusalBillsPromptOnly(t *testing.T) {
	a := &AnthropicAdapter{}
	wire := &WireRequest{Model: mustResolve(t, "claude-sonnet-4-5"), PromptText: "x"}
	raw := &RawResult{body: &anthropic.Message{
		ID:         "msg_2",
		StopReason: anthropic.StopReason("refusal"),
		Usage:      anthropic.Usage{InputTokens: 30, OutputTokens: 8},
	}}

	resp := a.ParseResponse(raw, wire)
	assert.Equal(t, FinishContentFilter, resp.FinishReason)
	assert.Equal(t, 30, resp.Usage.PromptTokens)
	assert.Equal(t, 0, resp.Usage.CompletionTokens)
	assert.Equal(t, "", resp.Text)
}

func TestAnthropicFinishReasons(t *testing.T) {
	assert.Equal(t, FinishStop, anthropicFinishReason("end_turn"))
	assert.Equal(t, FinishStop, anthropicFinishReason("stop_sequence"))
	assert.Equal(t, FinishLength, anthropicFinishReason("max_tokens"))
	assert.Equal(t, FinishContentFilter, anthropicFinishReason("refusal"))
}
