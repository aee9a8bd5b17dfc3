// Package identity is the client for the hosted auth/profile service, the
// read-only source of user tier for this core.
package identity

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"time"

	"github.com/flintapp/flint-core/internal/domain/conversation/entity"
)

const (
	defaultBaseURL = "https://id.flint.app"
	defaultTimeout = 10 * time.Second
)

// Client is an identity service client
type Client struct {
	baseURL    string
	httpClient *http.Client
}

// ClientOption is a function that configures the Client
type ClientOption func(*Client)

// WithBaseURL sets a custom base URL
func WithBaseURL(url string) ClientOption {
	return func(c *Client) {
		c.baseURL = url
	}
}

// WithHTTPClient sets a custom HTTP client
func WithHTTPClient(httpClient *http.Client) ClientOption {
	return func(c *Client) {
		c.httpClient = httpClient
	}
}

// New creates a new identity client
func New(opts ...ClientOption) *Client {
	c := &Client{
		baseURL: defaultBaseURL,
		httpClient: &http.Client{
			Timeout: defaultTimeout,
		},
	}

	for _, opt := range opts {
		opt(c)
	}

	return c
}

// APIError represents an error from the identity service
type APIError struct {
	StatusCode int
	Message    string `json:"message"`
}

func (e *APIError) Error() string {
	return fmt.Sprintf("identity API error: %s (status: %d)", e.Message, e.StatusCode)
}

// profileResponse is the wire shape of a user profile lookup
type profileResponse struct {
	UserID string `json:"user_id"`
	Tier   string `json:"tier"`
}

// Tier returns the subscription tier for a user. Anything the service does
// not explicitly call prime is treated as free.
func (c *Client) Tier(ctx context.Context, userID string) (entity.Tier, error) {
	endpoint := fmt.Sprintf("%s/v1/users/%s/profile", c.baseURL, url.PathEscape(userID))

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return "", fmt.Errorf("creating request: %w", err)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return "", fmt.Errorf("fetching profile: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		apiErr := &APIError{StatusCode: resp.StatusCode}
		_ = json.NewDecoder(resp.Body).Decode(apiErr)
		return "", apiErr
	}

	var profile profileResponse
	if err := json.NewDecoder(resp.Body).Decode(&profile); err != nil {
		return "", fmt.Errorf("decoding profile: %w", err)
	}

	if profile.Tier == string(entity.TierPrime) {
		return entity.TierPrime, nil
	}
	return entity.TierFree, nil
}
