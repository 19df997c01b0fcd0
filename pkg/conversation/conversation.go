// Package conversation stores chat transcripts scoped by owner.
package conversation

import (
	"context"
	"errors"
	"time"

	"github.com/zen-systems/nexus/pkg/adapter"
	"github.com/zen-systems/nexus/pkg/pricing"
	"github.com/zen-systems/nexus/pkg/registry"
)

var (
	// ErrNotFound is returned when a conversation does not exist for the owner.
	ErrNotFound = errors.New("conversation not found")
	// ErrAlreadyExists is returned by Create for a duplicate id.
	ErrAlreadyExists = errors.New("conversation already exists")
)

// DefaultListLimit caps List when no limit is given.
const DefaultListLimit = 50

// Conversation is a persisted chat transcript.
type Conversation struct {
	ID        string          `json:"conversation_id"`
	OwnerID   string          `json:"user_id"`
	Title     string          `json:"title,omitempty"`
	Model     string          `json:"model"`
	Mode      registry.Mode   `json:"mode"`
	Favorite  bool            `json:"is_favorite"`
	Messages  []StoredMessage `json:"messages"`
	CreatedAt time.Time       `json:"created_at"`
	UpdatedAt time.Time       `json:"updated_at"`
}

// StoredMessage is one persisted turn. Assistant turns carry the usage they
// were billed for.
type StoredMessage struct {
	Role      adapter.Role         `json:"role"`
	Content   string               `json:"content"`
	Model     string               `json:"model,omitempty"`
	Usage     *pricing.UsageRecord `json:"usage,omitempty"`
	CreatedAt time.Time            `json:"timestamp"`
}

// ListOptions pages and filters List results.
type ListOptions struct {
	Limit         int
	Offset        int
	FavoritesOnly bool
}

// Normalized applies the default limit and clamps the offset.
func (o ListOptions) Normalized() ListOptions {
	if o.Limit <= 0 {
		o.Limit = DefaultListLimit
	}
	if o.Offset < 0 {
		o.Offset = 0
	}
	return o
}

// Repository persists conversations. Every operation is scoped by owner:
// a conversation owned by someone else behaves as absent.
type Repository interface {
	// Get returns the conversation with its messages.
	Get(ctx context.Context, ownerID, id string) (*Conversation, error)
	// List returns the owner's conversations, most recently updated first,
	// without messages.
	List(ctx context.Context, ownerID string, opts ListOptions) ([]Conversation, error)
	Create(ctx context.Context, c *Conversation) error
	AppendMessage(ctx context.Context, ownerID, id string, msg StoredMessage) error
	UpdateTitle(ctx context.Context, ownerID, id, title string) error
	SetFavorite(ctx context.Context, ownerID, id string, favorite bool) error
	Delete(ctx context.Context, ownerID, id string) error
	// Count returns how many conversations the owner has.
	Count(ctx context.Context, ownerID string) (int, error)
}

// New returns a conversation ready to be created. The title defaults to the
// conversation id.
func New(id, ownerID, model string, mode registry.Mode) *Conversation {
	now := time.Now().UTC()
	return &Conversation{
		ID:        id,
		OwnerID:   ownerID,
		Title:     id,
		Model:     model,
		Mode:      mode,
		Messages:  []StoredMessage{},
		CreatedAt: now,
		UpdatedAt: now,
	}
}

func validateKey(ownerID, id string) error {
	if ownerID == "" || id == "" {
		return ErrNotFound
	}
	return nil
}
