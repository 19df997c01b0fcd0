package media

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"

	"go.uber.org/zap"

	"github.com/zen-systems/nexus/pkg/adapter"
	"github.com/zen-systems/nexus/pkg/pricing"
	"github.com/zen-systems/nexus/pkg/registry"
)

const (
	serpAPIBaseURL = "https://serpapi.com/search"

	// MaxSearchResults bounds the results requested per query.
	MaxSearchResults = 10

	searchLanguage = "pt-br"
	searchCountry  = "br"
)

// searchProvider tags classified SerpAPI failures.
const searchProvider registry.ProviderKind = "SERPAPI"

// SearchHit is one organic result.
type SearchHit struct {
	Title    string `json:"title"`
	Link     string `json:"link"`
	Snippet  string `json:"snippet"`
	Position int    `json:"position"`
}

// SearchResult is the outcome of Search.
type SearchResult struct {
	Query   string              `json:"query"`
	Results []SearchHit         `json:"results"`
	Total   int                 `json:"total_results"`
	Usage   pricing.UsageRecord `json:"usage"`
}

type serpAPIResponse struct {
	OrganicResults []struct {
		Title    string `json:"title"`
		Link     string `json:"link"`
		Snippet  string `json:"snippet"`
		Position int    `json:"position"`
	} `json:"organic_results"`
	Error string `json:"error,omitempty"`
}

// SearchService queries Google through SerpAPI.
type SearchService struct {
	apiKey     string
	baseURL    string
	httpClient *http.Client
	registry   *registry.Registry
	logger     *zap.Logger
}

// SearchOption configures a SearchService.
type SearchOption func(*SearchService)

// WithSearchBaseURL points the service at another endpoint.
func WithSearchBaseURL(u string) SearchOption {
	return func(s *SearchService) {
		s.baseURL = u
	}
}

// WithSearchHTTPClient replaces the HTTP client.
func WithSearchHTTPClient(c *http.Client) SearchOption {
	return func(s *SearchService) {
		if c != nil {
			s.httpClient = c
		}
	}
}

// NewSearchService creates a search service billed against reg.
func NewSearchService(apiKey string, reg *registry.Registry, logger *zap.Logger, opts ...SearchOption) (*SearchService, error) {
	if apiKey == "" {
		return nil, fmt.Errorf("serpapi API key is required")
	}
	if reg == nil {
		reg = registry.Default()
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	s := &SearchService{
		apiKey:     apiKey,
		baseURL:    serpAPIBaseURL,
		httpClient: &http.Client{},
		registry:   reg,
		logger:     logger,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s, nil
}

// Cost returns the flat usage of one search.
func (s *SearchService) Cost() (pricing.UsageRecord, error) {
	credits, err := pricing.ComputeFlat(s.registry, registry.UnitSearch, "")
	if err != nil {
		return pricing.UsageRecord{}, err
	}
	return pricing.FlatUsage(credits), nil
}

// Search returns up to n organic results for query. n is clamped to
// 1..MaxSearchResults; zero asks for the maximum.
func (s *SearchService) Search(ctx context.Context, query string, n int) (*SearchResult, error) {
	query = strings.TrimSpace(query)
	if query == "" {
		return nil, fmt.Errorf("%w: empty search query", adapter.ErrInvalidRequest)
	}
	if n <= 0 || n > MaxSearchResults {
		n = MaxSearchResults
	}
	usage, err := s.Cost()
	if err != nil {
		return nil, err
	}

	params := url.Values{}
	params.Set("q", query)
	params.Set("api_key", s.apiKey)
	params.Set("num", strconv.Itoa(n))
	params.Set("hl", searchLanguage)
	params.Set("gl", searchCountry)

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, s.baseURL+"?"+params.Encode(), nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}

	resp, err := s.httpClient.Do(req)
	if err != nil {
		return nil, adapter.Classify(searchProvider, err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, adapter.Classify(searchProvider, fmt.Errorf("failed to read response body: %w", err))
	}
	if resp.StatusCode != http.StatusOK {
		return nil, adapter.FromStatus(searchProvider, resp.StatusCode,
			fmt.Errorf("serpapi returned status %d: %s", resp.StatusCode, truncate(string(body), 200)))
	}

	var parsed serpAPIResponse
	if err := json.Unmarshal(body, &parsed); err != nil {
		return nil, adapter.Classify(searchProvider, fmt.Errorf("failed to parse response: %w", err))
	}
	if parsed.Error != "" {
		return nil, adapter.Classify(searchProvider, fmt.Errorf("serpapi error: %s", parsed.Error))
	}

	organic := parsed.OrganicResults
	if len(organic) > n {
		organic = organic[:n]
	}
	out := &SearchResult{Query: query, Results: make([]SearchHit, 0, len(organic)), Usage: usage}
	for i, r := range organic {
		pos := r.Position
		if pos == 0 {
			pos = i + 1
		}
		out.Results = append(out.Results, SearchHit{Title: r.Title, Link: r.Link, Snippet: r.Snippet, Position: pos})
	}
	out.Total = len(out.Results)

	s.logger.Info("web search completed",
		zap.Int("results", out.Total),
		zap.Int64("cost_credits", usage.CostCredits))
	return out, nil
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n] + "..."
}
