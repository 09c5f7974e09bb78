package client

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/sofatutor/campaign-edge/internal/api"
)

// SchedulingClient invokes actions on the scheduling proxy.
type SchedulingClient struct {
	BaseURL    string
	Token      string
	HTTPClient *http.Client
	Verbose    io.Writer
}

// NewSchedulingClient creates a new scheduling client.
func NewSchedulingClient(baseURL, token string) *SchedulingClient {
	return &SchedulingClient{
		BaseURL:    strings.TrimRight(baseURL, "/"),
		Token:      token,
		HTTPClient: &http.Client{Timeout: 30 * time.Second},
	}
}

// Invoke sends {"action": action, ...params} and returns the envelope's data.
// A failed envelope is returned as *APIError carrying its error message.
func (c *SchedulingClient) Invoke(ctx context.Context, action string, params map[string]string) (json.RawMessage, error) {
	if action == "" {
		return nil, fmt.Errorf("action is required")
	}
	payload := make(map[string]string, len(params)+1)
	for k, v := range params {
		payload[k] = v
	}
	payload["action"] = action

	body, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal request: %w", err)
	}
	raw, err := post(ctx, c.HTTPClient, c.BaseURL, "/functions/v1/calendly", c.Token, body, c.Verbose)
	if err != nil {
		return nil, err
	}

	var env api.Envelope
	if err := json.Unmarshal(raw, &env); err != nil {
		return nil, fmt.Errorf("failed to parse response: %w", err)
	}
	if !env.Success {
		return nil, &APIError{StatusCode: http.StatusOK, Message: env.Error}
	}
	return env.Data, nil
}
