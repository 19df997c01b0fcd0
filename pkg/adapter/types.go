package adapter

import (
	"time"

	"github.com/zen-systems/nexus/pkg/pricing"
	"github.com/zen-systems/nexus/pkg/registry"
)

// Role is the author of a conversation turn.
type Role string

const (
	RoleSystem    Role = "system"
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
)

// Message is a single conversation turn.
type Message struct {
	Role    Role   `json:"role" yaml:"role" validate:"required,oneof=system user assistant"`
	Content string `json:"content" yaml:"content"`
}

// Request is the provider-agnostic chat request.
type Request struct {
	Model           string        `json:"model" validate:"required"`
	Mode            registry.Mode `json:"mode,omitempty" validate:"omitempty,oneof=low medium high"`
	Messages        []Message     `json:"messages" validate:"required,min=1,dive"`
	MaxOutputTokens int           `json:"max_output_tokens,omitempty" validate:"gte=0"`

	// ConversationID and OwnerID select where the exchange is recorded.
	// Both must be set for recording to happen.
	ConversationID string `json:"conversation_id,omitempty"`
	OwnerID        string `json:"-"`
}

// FinishReason is the normalized reason generation stopped.
type FinishReason string

const (
	FinishStop          FinishReason = "STOP"
	FinishLength        FinishReason = "LENGTH"
	FinishContentFilter FinishReason = "CONTENT_FILTER"
	FinishError         FinishReason = "ERROR"
)

// Response is the provider-agnostic chat response.
type Response struct {
	ID           string              `json:"id"`
	Model        string              `json:"model"`
	Text         string              `json:"text"`
	FinishReason FinishReason        `json:"finish_reason"`
	Usage        pricing.UsageRecord `json:"usage"`
	Created      time.Time           `json:"created"`
}
