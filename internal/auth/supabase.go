package auth

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"
)

// SupabaseResolver asks the Supabase auth service who owns a token.
type SupabaseResolver struct {
	BaseURL    string
	AnonKey    string
	HTTPClient *http.Client
}

// NewSupabaseResolver creates a resolver against {baseURL}/auth/v1/user.
func NewSupabaseResolver(baseURL, anonKey string, timeout time.Duration) *SupabaseResolver {
	return &SupabaseResolver{
		BaseURL:    strings.TrimRight(baseURL, "/"),
		AnonKey:    anonKey,
		HTTPClient: &http.Client{Timeout: timeout},
	}
}

type supabaseUser struct {
	ID string `json:"id"`
}

func (s *SupabaseResolver) Resolve(ctx context.Context, token string) (string, error) {
	if s == nil || s.BaseURL == "" {
		return "", ErrNotConfigured
	}
	if token == "" {
		return "", ErrNoToken
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, s.BaseURL+"/auth/v1/user", nil)
	if err != nil {
		return "", fmt.Errorf("failed to create auth request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+token)
	if s.AnonKey != "" {
		req.Header.Set("apikey", s.AnonKey)
	}

	client := s.HTTPClient
	if client == nil {
		client = http.DefaultClient
	}
	res, err := client.Do(req)
	if err != nil {
		return "", fmt.Errorf("auth request failed: %w", err)
	}
	defer func() { _ = res.Body.Close() }()

	if res.StatusCode < 200 || res.StatusCode > 299 {
		_, _ = io.Copy(io.Discard, io.LimitReader(res.Body, 64<<10))
		return "", fmt.Errorf("%w: auth service returned %d", ErrInvalidToken, res.StatusCode)
	}

	var user supabaseUser
	if err := json.NewDecoder(io.LimitReader(res.Body, 1<<20)).Decode(&user); err != nil {
		return "", fmt.Errorf("failed to decode auth user: %w", err)
	}
	if user.ID == "" {
		return "", fmt.Errorf("%w: user has no id", ErrInvalidToken)
	}
	return user.ID, nil
}
