package admin

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"
)

// APIClient handles communication with the admin API.
type APIClient struct {
	baseURL    string
	token      string
	httpClient *http.Client
}

// NewAPIClient creates a new admin API client.
func NewAPIClient(baseURL, token string) *APIClient {
	return &APIClient{
		baseURL: strings.TrimRight(baseURL, "/"),
		token:   token,
		httpClient: &http.Client{
			Timeout: 30 * time.Second,
		},
	}
}

// ListRateLimits returns the live ledger entries whose key starts with
// prefix. An empty prefix lists everything.
func (c *APIClient) ListRateLimits(ctx context.Context, prefix string) (*RateLimitList, error) {
	path := "/ratelimits"
	if prefix != "" {
		path += "?prefix=" + url.QueryEscape(prefix)
	}
	req, err := c.newRequest(ctx, http.MethodGet, path)
	if err != nil {
		return nil, err
	}
	var out RateLimitList
	if err := c.doRequest(req, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// ResetRateLimit deletes the ledger entry for key.
func (c *APIClient) ResetRateLimit(ctx context.Context, key string) error {
	req, err := c.newRequest(ctx, http.MethodDelete, "/ratelimits?key="+url.QueryEscape(key))
	if err != nil {
		return err
	}
	return c.doRequest(req, nil)
}

// GetPolicies returns the rate-limit policy of every endpoint.
func (c *APIClient) GetPolicies(ctx context.Context) (map[string]PolicyView, error) {
	req, err := c.newRequest(ctx, http.MethodGet, "/policies")
	if err != nil {
		return nil, err
	}
	var out map[string]PolicyView
	if err := c.doRequest(req, &out); err != nil {
		return nil, err
	}
	return out, nil
}

// newRequest creates a new HTTP request with authentication
func (c *APIClient) newRequest(ctx context.Context, method, path string) (*http.Request, error) {
	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+c.token)
	return req, nil
}

// doRequest executes an HTTP request and handles the response
func (c *APIClient) doRequest(req *http.Request, result any) error {
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("request failed: %w", err)
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode >= 400 {
		var errorResp struct {
			Error string `json:"error"`
		}
		if err := json.NewDecoder(resp.Body).Decode(&errorResp); err == nil && errorResp.Error != "" {
			return fmt.Errorf("API error (%d): %s", resp.StatusCode, errorResp.Error)
		}
		return fmt.Errorf("API error: %s", resp.Status)
	}

	if result != nil && resp.StatusCode != http.StatusNoContent {
		if err := json.NewDecoder(resp.Body).Decode(result); err != nil {
			return fmt.Errorf("failed to decode response: %w", err)
		}
	}
	return nil
}
