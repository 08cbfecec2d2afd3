// Package processor is the external research collaborator: given a job, it
// queries an external knowledge API and returns a result body or an error,
// never inspecting queue state itself.
package processor

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"time"

	"golang.org/x/time/rate"

	"github.com/bobmcallan/aviary/internal/common"
	"github.com/bobmcallan/aviary/internal/models"
)

const (
	// DefaultBaseURL is the reference deployment's extract endpoint.
	DefaultBaseURL = "https://en.wikipedia.org/w/api.php"
	// DefaultTimeout bounds a single research request.
	DefaultTimeout = 15 * time.Second
	// DefaultRateLimit caps outbound requests per second.
	DefaultRateLimit = 5
)

// WikipediaClient implements interfaces.Processor against the Wikipedia
// extracts API.
type WikipediaClient struct {
	baseURL    string
	httpClient *http.Client
	logger     *common.Logger
	limiter    *rate.Limiter
}

// ClientOption configures a WikipediaClient.
type ClientOption func(*WikipediaClient)

// WithBaseURL overrides the query endpoint, for pointing at a test server.
func WithBaseURL(baseURL string) ClientOption {
	return func(c *WikipediaClient) { c.baseURL = baseURL }
}

// WithLogger sets the client's logger.
func WithLogger(logger *common.Logger) ClientOption {
	return func(c *WikipediaClient) { c.logger = logger }
}

// WithTimeout sets the HTTP client timeout.
func WithTimeout(timeout time.Duration) ClientOption {
	return func(c *WikipediaClient) { c.httpClient.Timeout = timeout }
}

// WithRateLimit sets the outbound requests-per-second cap.
func WithRateLimit(requestsPerSecond int) ClientOption {
	return func(c *WikipediaClient) {
		c.limiter = rate.NewLimiter(rate.Limit(requestsPerSecond), requestsPerSecond)
	}
}

// NewWikipediaClient constructs a client with sensible defaults, applying
// opts over them.
func NewWikipediaClient(opts ...ClientOption) *WikipediaClient {
	c := &WikipediaClient{
		baseURL:    DefaultBaseURL,
		httpClient: &http.Client{Timeout: DefaultTimeout},
		limiter:    rate.NewLimiter(rate.Limit(DefaultRateLimit), DefaultRateLimit),
		logger:     common.NewSilentLogger(),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// ResearchError reports an upstream response the client rejects (a non-200
// status, no pages, a missing page, or an empty extract), as distinct from
// transport and decode failures. The worker retries it like any other error.
type ResearchError struct {
	Name   string
	Reason string
}

func (e *ResearchError) Error() string {
	return fmt.Sprintf("research failed for %q: %s", e.Name, e.Reason)
}

type extractsResponse struct {
	Query struct {
		Pages []struct {
			Missing bool   `json:"missing"`
			Extract string `json:"extract"`
		} `json:"pages"`
	} `json:"query"`
}

// Process fetches the plain-text introduction extract for job.Name and
// returns {"research": extract}. Wikipedia's "missing" page flag, an absent
// extract, or any transport/decode failure is reported as an error; the
// worker decides retry-or-fail from there.
func (c *WikipediaClient) Process(ctx context.Context, job *models.Job) (map[string]any, error) {
	if err := c.limiter.Wait(ctx); err != nil {
		return nil, fmt.Errorf("rate limit wait: %w", err)
	}

	params := url.Values{}
	params.Set("action", "query")
	params.Set("prop", "extracts")
	params.Set("exintro", "1")
	params.Set("explaintext", "1")
	params.Set("redirects", "1")
	params.Set("titles", job.Name)
	params.Set("format", "json")
	params.Set("formatversion", "2")

	reqURL := fmt.Sprintf("%s?%s", c.baseURL, params.Encode())
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, reqURL, nil)
	if err != nil {
		return nil, fmt.Errorf("build request: %w", err)
	}

	c.logger.Debug().Str("name", job.Name).Msg("wikipedia research request")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("execute request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, &ResearchError{Name: job.Name, Reason: fmt.Sprintf("upstream status %d", resp.StatusCode)}
	}

	var decoded extractsResponse
	if err := json.NewDecoder(resp.Body).Decode(&decoded); err != nil {
		return nil, fmt.Errorf("decode response: %w", err)
	}

	if len(decoded.Query.Pages) == 0 {
		return nil, &ResearchError{Name: job.Name, Reason: "no pages in response"}
	}
	page := decoded.Query.Pages[0]
	if page.Missing {
		return nil, &ResearchError{Name: job.Name, Reason: "page missing"}
	}
	if page.Extract == "" {
		return nil, &ResearchError{Name: job.Name, Reason: "empty extract"}
	}

	return map[string]any{"research": page.Extract}, nil
}
