package upstream

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"
)

// CalendlyUser is the part of GET /users/me the proxy depends on.
type CalendlyUser struct {
	Resource struct {
		URI  string `json:"uri"`
		Name string `json:"name"`
	} `json:"resource"`
}

// Invitee identifies the person booking a scheduled event.
type Invitee struct {
	Email string `json:"email"`
	Name  string `json:"name"`
}

// ScheduledEventRequest is the body of POST /scheduled_events.
type ScheduledEventRequest struct {
	EventType string  `json:"event_type"`
	StartTime string  `json:"start_time"`
	Invitee   Invitee `json:"invitee"`
}

// CalendlyClient calls the Calendly v2 API with a bearer token.
type CalendlyClient struct {
	BaseURL    string
	APIKey     string
	HTTPClient *http.Client
}

// NewCalendlyClient creates a client with a bounded HTTP timeout.
func NewCalendlyClient(baseURL, apiKey string, timeout time.Duration) *CalendlyClient {
	return &CalendlyClient{
		BaseURL:    strings.TrimRight(baseURL, "/"),
		APIKey:     apiKey,
		HTTPClient: &http.Client{Timeout: timeout},
	}
}

// Configured reports whether the client has a credential.
func (c *CalendlyClient) Configured() bool {
	return c != nil && c.APIKey != ""
}

// GetCurrentUser calls GET /users/me.
func (c *CalendlyClient) GetCurrentUser(ctx context.Context) (json.RawMessage, error) {
	return c.do(ctx, http.MethodGet, "/users/me", nil, nil)
}

// CurrentUserURI calls GET /users/me and extracts resource.uri.
func (c *CalendlyClient) CurrentUserURI(ctx context.Context) (string, error) {
	raw, err := c.GetCurrentUser(ctx)
	if err != nil {
		return "", err
	}
	var user CalendlyUser
	if err := json.Unmarshal(raw, &user); err != nil {
		return "", fmt.Errorf("%w: %v", ErrMalformedResponse, err)
	}
	if user.Resource.URI == "" {
		return "", fmt.Errorf("%w: user resource has no uri", ErrMalformedResponse)
	}
	return user.Resource.URI, nil
}

// ListEventTypes calls GET /event_types scoped to userURI.
func (c *CalendlyClient) ListEventTypes(ctx context.Context, userURI string) (json.RawMessage, error) {
	return c.do(ctx, http.MethodGet, "/event_types", url.Values{"user": {userURI}}, nil)
}

// GetAvailableTimes calls GET /event_type_available_times.
func (c *CalendlyClient) GetAvailableTimes(ctx context.Context, eventType, startTime, endTime string) (json.RawMessage, error) {
	q := url.Values{
		"event_type": {eventType},
		"start_time": {startTime},
		"end_time":   {endTime},
	}
	return c.do(ctx, http.MethodGet, "/event_type_available_times", q, nil)
}

// CreateScheduledEvent calls POST /scheduled_events.
func (c *CalendlyClient) CreateScheduledEvent(ctx context.Context, event ScheduledEventRequest) (json.RawMessage, error) {
	return c.do(ctx, http.MethodPost, "/scheduled_events", nil, event)
}

func (c *CalendlyClient) do(ctx context.Context, method, path string, query url.Values, payload any) (json.RawMessage, error) {
	if !c.Configured() {
		return nil, ErrMissingAPIKey
	}

	target := c.BaseURL + path
	if len(query) > 0 {
		target += "?" + query.Encode()
	}

	var body io.Reader
	if payload != nil {
		b, err := json.Marshal(payload)
		if err != nil {
			return nil, fmt.Errorf("failed to marshal Calendly request: %w", err)
		}
		body = bytes.NewReader(b)
	}

	req, err := http.NewRequestWithContext(ctx, method, target, body)
	if err != nil {
		return nil, fmt.Errorf("failed to create Calendly request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+c.APIKey)
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept-Encoding", "gzip, br")

	client := c.HTTPClient
	if client == nil {
		client = http.DefaultClient
	}
	res, err := client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("calendly request failed: %w", err)
	}
	defer func() { _ = res.Body.Close() }()

	data, err := readBody(res)
	if err != nil {
		return nil, err
	}
	if res.StatusCode < 200 || res.StatusCode > 299 {
		return nil, &StatusError{Provider: "Calendly", StatusCode: res.StatusCode, Body: string(data)}
	}
	if !json.Valid(data) {
		return nil, fmt.Errorf("%w: body is not JSON", ErrMalformedResponse)
	}
	return json.RawMessage(data), nil
}
