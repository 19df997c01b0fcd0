// Package credits talks to the auth backend that owns user credit balances.
package credits

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

var (
	ErrUserNotFound        = errors.New("credits: user not found")
	ErrInsufficientCredits = errors.New("credits: insufficient balance")
	ErrUpstream            = errors.New("credits: backend rejected the request")
)

const (
	DefaultTimeout = 10 * time.Second
	// SimulatedBalance is reported for every user in simulation mode.
	SimulatedBalance int64 = 1000
)

// Config selects the backend and credentials.
type Config struct {
	BaseURL      string
	ServiceToken string
	Timeout      time.Duration
	// Simulate skips every network call: balances are generous and debits
	// are accepted.
	Simulate bool
}

// Balance is a user's credit summary.
type Balance struct {
	Credits   int64 `json:"credits"`
	Simulated bool  `json:"simulated,omitempty"`
}

type debitRequest struct {
	Amount    int64          `json:"amount"`
	Operation string         `json:"operation"`
	Reference string         `json:"reference"`
	Reason    string         `json:"reason"`
	Metadata  map[string]any `json:"metadata"`
}

// Client calls the internal credits endpoints.
type Client struct {
	baseURL    string
	token      string
	simulate   bool
	httpClient *http.Client
	logger     *zap.Logger
}

// Option configures a Client.
type Option func(*Client)

// WithHTTPClient replaces the HTTP client.
func WithHTTPClient(c *http.Client) Option {
	return func(cl *Client) {
		if c != nil {
			cl.httpClient = c
		}
	}
}

// WithLogger sets the logger.
func WithLogger(l *zap.Logger) Option {
	return func(cl *Client) {
		if l != nil {
			cl.logger = l
		}
	}
}

// New creates a credits client. BaseURL is required unless simulating.
func New(cfg Config, opts ...Option) (*Client, error) {
	if cfg.BaseURL == "" && !cfg.Simulate {
		return nil, fmt.Errorf("credits backend base URL is required")
	}
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	c := &Client{
		baseURL:    strings.TrimRight(cfg.BaseURL, "/"),
		token:      cfg.ServiceToken,
		simulate:   cfg.Simulate,
		httpClient: &http.Client{Timeout: timeout},
		logger:     zap.NewNop(),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c, nil
}

// Simulated reports whether the client skips the network.
func (c *Client) Simulated() bool {
	return c.simulate
}

// Balance returns the user's available credits.
func (c *Client) Balance(ctx context.Context, userID string) (*Balance, error) {
	if c.simulate {
		return &Balance{Credits: SimulatedBalance, Simulated: true}, nil
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.endpoint(userID), nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	body, status, err := c.do(req)
	if err != nil {
		return nil, err
	}
	switch {
	case status == http.StatusNotFound:
		return nil, fmt.Errorf("%w: %s", ErrUserNotFound, userID)
	case status >= 400:
		return nil, fmt.Errorf("%w: balance returned status %d", ErrUpstream, status)
	}

	var b Balance
	if err := json.Unmarshal(body, &b); err != nil {
		return nil, fmt.Errorf("%w: invalid balance response: %v", ErrUpstream, err)
	}
	return &b, nil
}

// EnsureMinimumBalance fails with ErrInsufficientCredits when the user has
// fewer than minCredits credits.
func (c *Client) EnsureMinimumBalance(ctx context.Context, userID string, minCredits int64) (*Balance, error) {
	if minCredits < 1 {
		minCredits = 1
	}
	if c.simulate {
		return &Balance{Credits: max(minCredits, SimulatedBalance), Simulated: true}, nil
	}
	b, err := c.Balance(ctx, userID)
	if err != nil {
		return nil, err
	}
	if b.Credits < minCredits {
		return b, fmt.Errorf("%w: have %d, need %d", ErrInsufficientCredits, b.Credits, minCredits)
	}
	return b, nil
}

// Debit charges amount credits to the user. Non-positive amounts are a no-op.
func (c *Client) Debit(ctx context.Context, userID string, amount int64, reason string) error {
	if amount <= 0 || c.simulate {
		return nil
	}

	payload, err := json.Marshal(debitRequest{
		Amount:    amount,
		Operation: "debit",
		Reference: uuid.NewString(),
		Reason:    reason,
		Metadata:  map[string]any{},
	})
	if err != nil {
		return fmt.Errorf("failed to marshal request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.endpoint(userID), bytes.NewReader(payload))
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	_, status, err := c.do(req)
	if err != nil {
		return err
	}
	switch {
	case status == http.StatusNotFound:
		return fmt.Errorf("%w: %s", ErrUserNotFound, userID)
	case status == http.StatusUnprocessableEntity:
		return fmt.Errorf("%w: debit of %d", ErrInsufficientCredits, amount)
	case status >= 400:
		return fmt.Errorf("%w: debit returned status %d", ErrUpstream, status)
	}

	c.logger.Debug("credits debited",
		zap.String("user_id", userID),
		zap.Int64("amount", amount),
		zap.String("reason", reason))
	return nil
}

func (c *Client) endpoint(userID string) string {
	return c.baseURL + "/internal/users/" + url.PathEscape(userID) + "/credits"
}

func (c *Client) do(req *http.Request) ([]byte, int, error) {
	req.Header.Set("x-service-token", c.token)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, 0, fmt.Errorf("%w: %v", ErrUpstream, err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, resp.StatusCode, fmt.Errorf("failed to read response body: %w", err)
	}
	return body, resp.StatusCode, nil
}
