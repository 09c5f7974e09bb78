// Package client provides HTTP client functionality for calling the edge
// proxies from the command line.
package client

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/sofatutor/campaign-edge/internal/api"
)

// APIError is a non-2xx answer from one of the proxies.
type APIError struct {
	StatusCode int
	Message    string
	RetryAfter int // seconds, set on 429
}

func (e *APIError) Error() string {
	if e.RetryAfter > 0 {
		return fmt.Sprintf("API error %d: %s (retry after %ds)", e.StatusCode, e.Message, e.RetryAfter)
	}
	return fmt.Sprintf("API error %d: %s", e.StatusCode, e.Message)
}

// ChatOptions configures chat request parameters
type ChatOptions struct {
	SystemPrompt string
	Verbose      io.Writer // receives raw request and response bodies when set
}

// ChatClient handles communication with the chat proxy.
type ChatClient struct {
	BaseURL    string
	Token      string // optional user access token
	HTTPClient *http.Client
}

// NewChatClient creates a new chat client
func NewChatClient(baseURL, token string) *ChatClient {
	return &ChatClient{
		BaseURL: strings.TrimRight(baseURL, "/"),
		Token:   token,
		HTTPClient: &http.Client{
			Timeout: 60 * time.Second,
		},
	}
}

// Send posts one message and returns the assistant's reply.
func (c *ChatClient) Send(ctx context.Context, message string, options ChatOptions) (*api.ChatResponse, error) {
	if strings.TrimSpace(message) == "" {
		return nil, fmt.Errorf("message is required")
	}
	body, err := json.Marshal(api.ChatRequest{Message: message, SystemPrompt: options.SystemPrompt})
	if err != nil {
		return nil, fmt.Errorf("failed to marshal request: %w", err)
	}

	raw, err := post(ctx, c.HTTPClient, c.BaseURL, "/functions/v1/chat", c.Token, body, options.Verbose)
	if err != nil {
		return nil, err
	}
	var resp api.ChatResponse
	if err := json.Unmarshal(raw, &resp); err != nil {
		return nil, fmt.Errorf("failed to parse response: %w", err)
	}
	return &resp, nil
}

// post sends body to baseURL+path and returns the response body of a 2xx
// answer. Other statuses become *APIError.
func post(ctx context.Context, hc *http.Client, baseURL, path, token string, body []byte, verbose io.Writer) ([]byte, error) {
	if _, err := url.ParseRequestURI(baseURL); err != nil {
		return nil, fmt.Errorf("invalid proxy URL: %w", err)
	}
	if verbose != nil {
		_, _ = fmt.Fprintf(verbose, "Request: %s\n", body)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, baseURL+path, bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}

	resp, err := hc.Do(req)
	if err != nil {
		return nil, fmt.Errorf("request failed: %w", err)
	}
	defer func() { _ = resp.Body.Close() }()

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("failed to read response body: %w", err)
	}
	if verbose != nil {
		_, _ = fmt.Fprintf(verbose, "Response (%d): %s\n", resp.StatusCode, raw)
	}

	if resp.StatusCode >= 400 {
		apiErr := &APIError{StatusCode: resp.StatusCode, Message: strings.TrimSpace(string(raw))}
		var decoded struct {
			Error string `json:"error"`
		}
		if json.Unmarshal(raw, &decoded) == nil && decoded.Error != "" {
			apiErr.Message = decoded.Error
		}
		if s, err := strconv.Atoi(resp.Header.Get("Retry-After")); err == nil {
			apiErr.RetryAfter = s
		}
		return nil, apiErr
	}
	return raw, nil
}
