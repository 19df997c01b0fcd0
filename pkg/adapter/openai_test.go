package adapter

import (
	"context"
	"errors"
	"net/http"
	"sync/atomic"
	"testing"

	"github.com/openai/openai-go"
	"github.com/openai/openai-go/option"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/zen-systems/nexus/pkg/registry"
)

func TestOpenAITranslateModeMapping(t *testing.T) {
	a, err := NewOpenAIAdapter("test-key")
	require.NoError(t, err)

	want := map[registry.Mode]string{
		registry.ModeLow:    "minimal",
		registry.ModeMedium: "medium",
		registry.ModeHigh:   "high",
	}
	for mode, effort := range want {
		wire, err := a.TranslateRequest(userRequest("gpt-5", mode, "hi"), mustResolve(t, "gpt-5"))
		require.NoError(t, err)
		assert.Equal(t, mode, wire.Mode)

		w := wire.Payload().(*openAIWire)
		body := toMap(t, w.params)
		assert.Equal(t, effort, body["reasoning_effort"], mode)
		assert.Equal(t, "gpt-5", body["model"])
		_, hasMax := body["max_completion_tokens"]
		assert.False(t, hasMax)
	}
}

func TestOpenAITranslateKeepsTurnOrder(t *testing.T) {
	a, err := NewOpenAIAdapter("test-key")
	require.NoError(t, err)

	req := Request{
		Model: "gpt-5-mini",
		Messages: []Message{
			{Role: RoleSystem, Content: "be brief"},
			{Role: RoleUser, Content: "2+2?"},
			{Role: RoleAssistant, Content: "4"},
			{Role: RoleUser, Content: "and 3+3?"},
		},
		MaxOutputTokens: 256,
	}
	wire, err := a.TranslateRequest(req, mustResolve(t, "gpt-5-mini"))
	require.NoError(t, err)
	assert.Equal(t, registry.ModeMedium, wire.Mode)

	body := toMap(t, wire.Payload().(*openAIWire).params)
	msgs := body["messages"].([]any)
	require.Len(t, msgs, 4)
	roles := []string{"system", "user", "assistant", "user"}
	for i, m := range msgs {
		assert.Equal(t, roles[i], m.(map[string]any)["role"])
	}
	assert.EqualValues(t, 256, body["max_completion_tokens"])
}

func TestOpenAITranslateRejectsUnsupportedMode(t *testing.T) {
	a, err := NewOpenAIAdapter("test-key")
	require.NoError(t, err)

	_, err = a.TranslateRequest(userRequest("gpt-5-pro", registry.ModeLow, "hi"), mustResolve(t, "gpt-5-pro"))
	var perr *ProviderError
	require.True(t, errors.As(err, &perr))
	assert.Equal(t, KindInvalidRequest, perr.Kind)
	assert.False(t, perr.Retryable)
	assert.ErrorIs(t, err, ErrInvalidRequest)
}

func TestNewOpenAIAdapterRequiresKey(t *testing.T) {
	_, err := NewOpenAIAdapter("")
	assert.Error(t, err)
}

const openAICompletion = `{
  "id": "chatcmpl-1",
  "object": "chat.completion",
  "created": 1,
  "model": "gpt-5-mini",
  "choices": [{"index": 0, "message": {"role": "assistant", "content": "4"}, "finish_reason": "stop"}],
  "usage": {"prompt_tokens": 10, "completion_tokens": 5, "total_tokens": 15}
}`

func TestOpenAIInvokeAndParse(t *testing.T) {
	srv, hits := stubServer(t, http.StatusOK, openAICompletion)
	a, err := NewOpenAIAdapter("test-key", option.WithBaseURL(srv.URL))
	require.NoError(t, err)

	wire, err := a.TranslateRequest(userRequest("gpt-5-mini", registry.ModeMedium, "2+2?"), mustResolve(t, "gpt-5-mini"))
	require.NoError(t, err)

	raw, err := a.Invoke(context.Background(), wire)
	require.NoError(t, err)
	assert.EqualValues(t, 1, atomic.LoadInt32(hits))

	resp := a.ParseResponse(raw, wire)
	assert.Equal(t, "chatcmpl-1", resp.ID)
	assert.Equal(t, "gpt-5-mini", resp.Model)
	assert.Equal(t, "4", resp.Text)
	assert.Equal(t, FinishStop, resp.FinishReason)
	assert.Equal(t, 10, resp.Usage.PromptTokens)
	assert.Equal(t, 5, resp.Usage.CompletionTokens)
	assert.False(t, resp.Usage.Estimated)
}

func TestOpenAIInvokeClassifiesStatus(t *testing.T) {
	cases := []struct {
		status    int
		kind      ErrorKind
		retryable bool
	}{
		{http.StatusUnauthorized, KindAuth, false},
		{http.StatusTooManyRequests, KindRateLimit, true},
		{http.StatusBadRequest, KindInvalidRequest, false},
		{http.StatusServiceUnavailable, KindUpstream5xx, true},
	}
	for _, tc := range cases {
		srv, hits := stubServer(t, tc.status, `{"error":{"message":"nope","type":"error"}}`)
		a, err := NewOpenAIAdapter("test-key", option.WithBaseURL(srv.URL))
		require.NoError(t, err)

		wire, err := a.TranslateRequest(userRequest("gpt-5", registry.ModeLow, "hi"), mustResolve(t, "gpt-5"))
		require.NoError(t, err)

		_, err = a.Invoke(context.Background(), wire)
		var perr *ProviderError
		require.True(t, errors.As(err, &perr), "status %d: %v", tc.status, err)
		assert.Equal(t, tc.kind, perr.Kind)
		assert.Equal(t, tc.retryable, perr.Retryable)
		assert.Equal(t, tc.status, perr.Status)
		assert.Equal(t, registry.ProviderOpenAI, perr.Provider)
		assert.EqualValues(t, 1, atomic.LoadInt32(hits), "sdk retries must be disabled")
	}
}

func TestOpenAIParseEstimatesMissingUsage(t *testing.T) {
	a := &OpenAIAdapter{}
	wire := &WireRequest{Model: mustResolve(t, "gpt-5"), PromptText: "12345678"}
	raw := &RawResult{body: &openai.ChatCompletion{
		ID: "x",
		Choices: []openai.ChatCompletionChoice{{
			Message:      openai.ChatCompletionMessage{Content: "abcd"},
			FinishReason: "length",
		}},
	}}

	resp := a.ParseResponse(raw, wire)
	assert.Equal(t, FinishLength, resp.FinishReason)
	assert.True(t, resp.Usage.Estimated)
	assert.Equal(t, 2, resp.Usage.PromptTokens)
	assert.Equal(t, 1, resp.Usage.CompletionTokens)
}

func TestOpenAIFinishReasons(t *testing.T) {
	assert.Equal(t, FinishStop, openAIFinishReason("stop"))
	assert.Equal(t, FinishLength, openAIFinishReason("length"))
	assert.Equal(t, FinishContentFilter, openAIFinishReason("content_filter"))
	assert.Equal(t, FinishError, openAIFinishReason("weird"))
}
