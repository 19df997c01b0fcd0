package conversation

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/zen-systems/nexus/pkg/adapter"
	"github.com/zen-systems/nexus/pkg/pricing"
	"github.com/zen-systems/nexus/pkg/registry"
)

// steppingClock advances one second per call.
func steppingClock() func() time.Time {
	t := time.Date(2025, 10, 20, 10, 0, 0, 0, time.UTC)
	return func() time.Time {
		t = t.Add(time.Second)
		return t
	}
}

func newTestRepo() *MemoryRepository {
	r := NewMemoryRepository()
	r.now = steppingClock()
	return r
}

func TestMemoryCreateAndGet(t *testing.T) {
	ctx := context.Background()
	r := newTestRepo()

	c := New("conv-1", "user-1", "gpt-5", registry.ModeMedium)
	require.NoError(t, r.Create(ctx, c))

	got, err := r.Get(ctx, "user-1", "conv-1")
	require.NoError(t, err)
	assert.Equal(t, "conv-1", got.Title)
	assert.Equal(t, "gpt-5", got.Model)
	assert.Empty(t, got.Messages)

	err = r.Create(ctx, New("conv-1", "user-1", "gpt-5", registry.ModeLow))
	assert.ErrorIs(t, err, ErrAlreadyExists)

	err = r.Create(ctx, &Conversation{ID: "x"})
	assert.Error(t, err)
}

func TestMemoryIsScopedByOwner(t *testing.T) {
	ctx := context.Background()
	r := newTestRepo()
	require.NoError(t, r.Create(ctx, New("conv-1", "alice", "gpt-5", registry.ModeMedium)))

	_, err := r.Get(ctx, "bob", "conv-1")
	assert.ErrorIs(t, err, ErrNotFound)
	assert.ErrorIs(t, r.UpdateTitle(ctx, "bob", "conv-1", "stolen"), ErrNotFound)
	assert.ErrorIs(t, r.SetFavorite(ctx, "bob", "conv-1", true), ErrNotFound)
	assert.ErrorIs(t, r.Delete(ctx, "bob", "conv-1"), ErrNotFound)
	assert.ErrorIs(t, r.AppendMessage(ctx, "bob", "conv-1", StoredMessage{Role: adapter.RoleUser}), ErrNotFound)

	list, err := r.List(ctx, "bob", ListOptions{})
	require.NoError(t, err)
	assert.Empty(t, list)
}

func TestMemoryAppendMessageKeepsOrderAndUsage(t *testing.T) {
	ctx := context.Background()
	r := newTestRepo()
	c := New("conv-1", "user-1", "gpt-5-mini", registry.ModeLow)
	c.CreatedAt, c.UpdatedAt = time.Time{}, time.Time{}
	require.NoError(t, r.Create(ctx, c))

	usage := pricing.UsageRecord{PromptTokens: 10, CompletionTokens: 5, TotalTokens: 15, CostCredits: 1}
	require.NoError(t, r.AppendMessage(ctx, "user-1", "conv-1", StoredMessage{Role: adapter.RoleUser, Content: "hello"}))
	require.NoError(t, r.AppendMessage(ctx, "user-1", "conv-1", StoredMessage{
		Role:    adapter.RoleAssistant,
		Content: "hi there",
		Model:   "gpt-5-mini",
		Usage:   &usage,
	}))
	usage.CostCredits = 99

	got, err := r.Get(ctx, "user-1", "conv-1")
	require.NoError(t, err)
	require.Len(t, got.Messages, 2)
	assert.Equal(t, adapter.RoleUser, got.Messages[0].Role)
	assert.Nil(t, got.Messages[0].Usage)
	assert.Equal(t, "hi there", got.Messages[1].Content)
	require.NotNil(t, got.Messages[1].Usage)
	assert.Equal(t, int64(1), got.Messages[1].Usage.CostCredits)
	assert.False(t, got.Messages[0].CreatedAt.IsZero())
	assert.True(t, got.UpdatedAt.After(got.CreatedAt))
}

func TestMemoryListOrdersAndFilters(t *testing.T) {
	ctx := context.Background()
	r := newTestRepo()
	for _, id := range []string{"a", "b", "c"} {
		c := New(id, "user-1", "gpt-5", registry.ModeMedium)
		c.CreatedAt, c.UpdatedAt = time.Time{}, time.Time{}
		require.NoError(t, r.Create(ctx, c))
	}
	require.NoError(t, r.UpdateTitle(ctx, "user-1", "a", "renamed"))
	require.NoError(t, r.SetFavorite(ctx, "user-1", "b", true))

	list, err := r.List(ctx, "user-1", ListOptions{})
	require.NoError(t, err)
	require.Len(t, list, 3)
	assert.Equal(t, "b", list[0].ID)
	assert.Equal(t, "a", list[1].ID)
	assert.Equal(t, "renamed", list[1].Title)
	assert.Nil(t, list[0].Messages)

	favs, err := r.List(ctx, "user-1", ListOptions{FavoritesOnly: true})
	require.NoError(t, err)
	require.Len(t, favs, 1)
	assert.True(t, favs[0].Favorite)

	page, err := r.List(ctx, "user-1", ListOptions{Limit: 1, Offset: 1})
	require.NoError(t, err)
	require.Len(t, page, 1)
	assert.Equal(t, "a", page[0].ID)

	empty, err := r.List(ctx, "user-1", ListOptions{Offset: 10})
	require.NoError(t, err)
	assert.Empty(t, empty)
}

func TestMemoryDeleteAndCount(t *testing.T) {
	ctx := context.Background()
	r := newTestRepo()
	require.NoError(t, r.Create(ctx, New("a", "user-1", "gpt-5", registry.ModeMedium)))
	require.NoError(t, r.Create(ctx, New("b", "user-1", "gpt-5", registry.ModeMedium)))
	require.NoError(t, r.Create(ctx, New("a", "user-2", "gpt-5", registry.ModeMedium)))

	n, err := r.Count(ctx, "user-1")
	require.NoError(t, err)
	assert.Equal(t, 2, n)

	require.NoError(t, r.Delete(ctx, "user-1", "a"))
	_, err = r.Get(ctx, "user-1", "a")
	assert.ErrorIs(t, err, ErrNotFound)

	_, err = r.Get(ctx, "user-2", "a")
	assert.NoError(t, err)
}

func TestMemoryHonorsCancelledContext(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	r := newTestRepo()
	_, err := r.Get(ctx, "user-1", "a")
	assert.ErrorIs(t, err, context.Canceled)
}

func TestListOptionsNormalized(t *testing.T) {
	o := ListOptions{Limit: 0, Offset: -3}.Normalized()
	assert.Equal(t, DefaultListLimit, o.Limit)
	assert.Equal(t, 0, o.Offset)
}
