package credits

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestClient(t *testing.T, handler http.HandlerFunc) *Client {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)

	c, err := New(Config{BaseURL: srv.URL + "/", ServiceToken: "secret"})
	require.NoError(t, err)
	return c
}

func TestBalance(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodGet, r.Method)
		assert.Equal(t, "/internal/users/user-1/credits", r.URL.Path)
		assert.Equal(t, "secret", r.Header.Get("x-service-token"))
		w.Write([]byte(`{"credits": 42}`))
	})

	b, err := c.Balance(context.Background(), "user-1")
	require.NoError(t, err)
	assert.Equal(t, int64(42), b.Credits)
	assert.False(t, b.Simulated)
}

func TestBalanceErrors(t *testing.T) {
	tests := []struct {
		name   string
		status int
		body   string
		want   error
	}{
		{"not found", http.StatusNotFound, `{}`, ErrUserNotFound},
		{"server error", http.StatusInternalServerError, `{}`, ErrUpstream},
		{"forbidden", http.StatusForbidden, `{}`, ErrUpstream},
		{"bad json", http.StatusOK, `not json`, ErrUpstream},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
				w.WriteHeader(tt.status)
				w.Write([]byte(tt.body))
			})
			_, err := c.Balance(context.Background(), "user-1")
			assert.ErrorIs(t, err, tt.want)
		})
	}
}

func TestEnsureMinimumBalance(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"credits": 5}`))
	})

	_, err := c.EnsureMinimumBalance(context.Background(), "user-1", 5)
	require.NoError(t, err)

	b, err := c.EnsureMinimumBalance(context.Background(), "user-1", 6)
	assert.ErrorIs(t, err, ErrInsufficientCredits)
	require.NotNil(t, b)
	assert.Equal(t, int64(5), b.Credits)
}

func TestDebit(t *testing.T) {
	var got debitRequest
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPost, r.Method)
		assert.Equal(t, "application/json", r.Header.Get("Content-Type"))
		assert.NoError(t, json.NewDecoder(r.Body).Decode(&got))
		w.Write([]byte(`{"credits": 40}`))
	})

	require.NoError(t, c.Debit(context.Background(), "user-1", 2, "search"))
	assert.Equal(t, int64(2), got.Amount)
	assert.Equal(t, "debit", got.Operation)
	assert.Equal(t, "search", got.Reason)
	assert.NotEmpty(t, got.Reference)
}

func TestDebitErrors(t *testing.T) {
	tests := []struct {
		name   string
		status int
		want   error
	}{
		{"not found", http.StatusNotFound, ErrUserNotFound},
		{"insufficient", http.StatusUnprocessableEntity, ErrInsufficientCredits},
		{"upstream", http.StatusBadGateway, ErrUpstream},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
				w.WriteHeader(tt.status)
			})
			err := c.Debit(context.Background(), "user-1", 3, "chat")
			assert.ErrorIs(t, err, tt.want)
		})
	}
}

func TestDebitSkipsNonPositiveAmounts(t *testing.T) {
	hits := 0
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		hits++
	})
	require.NoError(t, c.Debit(context.Background(), "user-1", 0, "free"))
	assert.Equal(t, 0, hits)
}

func TestSimulationSkipsNetwork(t *testing.T) {
	c, err := New(Config{Simulate: true})
	require.NoError(t, err)
	assert.True(t, c.Simulated())

	b, err := c.Balance(context.Background(), "anyone")
	require.NoError(t, err)
	assert.True(t, b.Simulated)
	assert.Equal(t, SimulatedBalance, b.Credits)

	b, err = c.EnsureMinimumBalance(context.Background(), "anyone", 5000)
	require.NoError(t, err)
	assert.Equal(t, int64(5000), b.Credits)

	assert.NoError(t, c.Debit(context.Background(), "anyone", 10, "chat"))
}

func TestNewRequiresBaseURL(t *testing.T) {
	_, err := New(Config{})
	assert.Error(t, err)
}
