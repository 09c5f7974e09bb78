package upstream

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"time"
)

// ChatMessage represents a message in a chat completion exchange.
type ChatMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

// ChatCompletionRequest is the body sent to the chat completion endpoint.
type ChatCompletionRequest struct {
	Model               string        `json:"model"`
	Messages            []ChatMessage `json:"messages"`
	MaxCompletionTokens int           `json:"max_completion_tokens"`
}

// ChatCompletionResponse is the subset of the completion payload the proxy reads.
type ChatCompletionResponse struct {
	ID      string `json:"id"`
	Model   string `json:"model"`
	Choices []struct {
		Index   int `json:"index"`
		Message *struct {
			Role    string  `json:"role"`
			Content *string `json:"content"`
		} `json:"message"`
		FinishReason string `json:"finish_reason"`
	} `json:"choices"`
	Usage struct {
		PromptTokens     int `json:"prompt_tokens"`
		CompletionTokens int `json:"completion_tokens"`
		TotalTokens      int `json:"total_tokens"`
	} `json:"usage"`
}

// OpenAIClient calls an OpenAI-compatible chat completion API.
type OpenAIClient struct {
	BaseURL             string
	APIKey              string
	Model               string
	MaxCompletionTokens int
	HTTPClient          *http.Client
}

// NewOpenAIClient creates a client with a bounded HTTP timeout.
func NewOpenAIClient(baseURL, apiKey, model string, maxCompletionTokens int, timeout time.Duration) *OpenAIClient {
	return &OpenAIClient{
		BaseURL:             strings.TrimRight(baseURL, "/"),
		APIKey:              apiKey,
		Model:               model,
		MaxCompletionTokens: maxCompletionTokens,
		HTTPClient:          &http.Client{Timeout: timeout},
	}
}

// Configured reports whether the client has a credential.
func (c *OpenAIClient) Configured() bool {
	return c != nil && c.APIKey != ""
}

// Complete sends the system prompt and user message and returns the
// assistant reply. A non-2xx status yields *StatusError; a 2xx payload
// without choices[0].message.content yields ErrMalformedResponse.
func (c *OpenAIClient) Complete(ctx context.Context, systemPrompt, userMessage string) (string, error) {
	if !c.Configured() {
		return "", ErrMissingAPIKey
	}

	payload := ChatCompletionRequest{
		Model: c.Model,
		Messages: []ChatMessage{
			{Role: "system", Content: systemPrompt},
			{Role: "user", Content: userMessage},
		},
		MaxCompletionTokens: c.MaxCompletionTokens,
	}
	body, err := json.Marshal(payload)
	if err != nil {
		return "", fmt.Errorf("failed to marshal completion request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.BaseURL+"/v1/chat/completions", bytes.NewReader(body))
	if err != nil {
		return "", fmt.Errorf("failed to create completion request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+c.APIKey)
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept-Encoding", "gzip, br")

	res, err := c.httpClient().Do(req)
	if err != nil {
		return "", fmt.Errorf("completion request failed: %w", err)
	}
	defer func() { _ = res.Body.Close() }()

	data, err := readBody(res)
	if err != nil {
		return "", err
	}
	if res.StatusCode < 200 || res.StatusCode > 299 {
		return "", &StatusError{Provider: "OpenAI", StatusCode: res.StatusCode, Body: string(data)}
	}

	var parsed ChatCompletionResponse
	if err := json.Unmarshal(data, &parsed); err != nil {
		return "", fmt.Errorf("%w: %v", ErrMalformedResponse, err)
	}
	if len(parsed.Choices) == 0 || parsed.Choices[0].Message == nil ||
		parsed.Choices[0].Message.Content == nil || *parsed.Choices[0].Message.Content == "" {
		return "", ErrMalformedResponse
	}
	return *parsed.Choices[0].Message.Content, nil
}

func (c *OpenAIClient) httpClient() *http.Client {
	if c.HTTPClient != nil {
		return c.HTTPClient
	}
	return http.DefaultClient
}
