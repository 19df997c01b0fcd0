package conversation

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"
)

type memoryKey struct {
	owner string
	id    string
}

// MemoryRepository keeps conversations in process memory.
type MemoryRepository struct {
	mu    sync.RWMutex
	items map[memoryKey]*Conversation
	now   func() time.Time
}

// NewMemoryRepository creates an empty in-memory repository.
func NewMemoryRepository() *MemoryRepository {
	return &MemoryRepository{
		items: make(map[memoryKey]*Conversation),
		now:   func() time.Time { return time.Now().UTC() },
	}
}

func (r *MemoryRepository) Get(ctx context.Context, ownerID, id string) (*Conversation, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	r.mu.RLock()
	defer r.mu.RUnlock()

	c, ok := r.items[memoryKey{ownerID, id}]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrNotFound, id)
	}
	return clone(c, true), nil
}

func (r *MemoryRepository) List(ctx context.Context, ownerID string, opts ListOptions) ([]Conversation, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	opts = opts.Normalized()

	r.mu.RLock()
	var out []Conversation
	for key, c := range r.items {
		if key.owner != ownerID || (opts.FavoritesOnly && !c.Favorite) {
			continue
		}
		out = append(out, *clone(c, false))
	}
	r.mu.RUnlock()

	sort.Slice(out, func(i, j int) bool {
		if out[i].UpdatedAt.Equal(out[j].UpdatedAt) {
			return out[i].ID < out[j].ID
		}
		return out[i].UpdatedAt.After(out[j].UpdatedAt)
	})
	if opts.Offset >= len(out) {
		return []Conversation{}, nil
	}
	out = out[opts.Offset:]
	if len(out) > opts.Limit {
		out = out[:opts.Limit]
	}
	return out, nil
}

func (r *MemoryRepository) Create(ctx context.Context, c *Conversation) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if c == nil {
		return fmt.Errorf("create conversation: nil conversation")
	}
	if err := validateKey(c.OwnerID, c.ID); err != nil {
		return fmt.Errorf("create conversation: owner and id are required")
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	key := memoryKey{c.OwnerID, c.ID}
	if _, ok := r.items[key]; ok {
		return fmt.Errorf("%w: %s", ErrAlreadyExists, c.ID)
	}
	stored := clone(c, true)
	now := r.now()
	if stored.CreatedAt.IsZero() {
		stored.CreatedAt = now
	}
	if stored.UpdatedAt.IsZero() {
		stored.UpdatedAt = stored.CreatedAt
	}
	if stored.Title == "" {
		stored.Title = stored.ID
	}
	r.items[key] = stored
	return nil
}

func (r *MemoryRepository) AppendMessage(ctx context.Context, ownerID, id string, msg StoredMessage) error {
	return r.update(ctx, ownerID, id, func(c *Conversation, now time.Time) {
		if msg.CreatedAt.IsZero() {
			msg.CreatedAt = now
		}
		if msg.Usage != nil {
			u := *msg.Usage
			msg.Usage = &u
		}
		c.Messages = append(c.Messages, msg)
	})
}

func (r *MemoryRepository) UpdateTitle(ctx context.Context, ownerID, id, title string) error {
	return r.update(ctx, ownerID, id, func(c *Conversation, _ time.Time) {
		c.Title = title
	})
}

func (r *MemoryRepository) SetFavorite(ctx context.Context, ownerID, id string, favorite bool) error {
	return r.update(ctx, ownerID, id, func(c *Conversation, _ time.Time) {
		c.Favorite = favorite
	})
}

func (r *MemoryRepository) Delete(ctx context.Context, ownerID, id string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	r.mu.Lock()
	defer r.mu.Unlock()

	key := memoryKey{ownerID, id}
	if _, ok := r.items[key]; !ok {
		return fmt.Errorf("%w: %s", ErrNotFound, id)
	}
	delete(r.items, key)
	return nil
}

// Count returns how many conversations the owner has.
func (r *MemoryRepository) Count(ctx context.Context, ownerID string) (int, error) {
	if err := ctx.Err(); err != nil {
		return 0, err
	}
	r.mu.RLock()
	defer r.mu.RUnlock()

	n := 0
	for key := range r.items {
		if key.owner == ownerID {
			n++
		}
	}
	return n, nil
}

func (r *MemoryRepository) update(ctx context.Context, ownerID, id string, fn func(*Conversation, time.Time)) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	r.mu.Lock()
	defer r.mu.Unlock()

	c, ok := r.items[memoryKey{ownerID, id}]
	if !ok {
		return fmt.Errorf("%w: %s", ErrNotFound, id)
	}
	now := r.now()
	fn(c, now)
	c.UpdatedAt = now
	return nil
}

func clone(c *Conversation, withMessages bool) *Conversation {
	out := *c
	out.Messages = nil
	if withMessages {
		out.Messages = make([]StoredMessage, len(c.Messages))
		copy(out.Messages, c.Messages)
	}
	return &out
}
