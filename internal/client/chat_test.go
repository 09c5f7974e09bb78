package client

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewChatClient(t *testing.T) {
	c := NewChatClient("http://localhost:8080/", "user-token")
	assert.Equal(t, "http://localhost:8080", c.BaseURL)
	assert.Equal(t, "user-token", c.Token)
	require.NotNil(t, c.HTTPClient)
	assert.Equal(t, 60*time.Second, c.HTTPClient.Timeout)
}

func TestChatClient_Send(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPost, r.Method)
		assert.Equal(t, "/functions/v1/chat", r.URL.Path)
		assert.Equal(t, "Bearer user-token", r.Header.Get("Authorization"))
		var body map[string]string
		require.NoError(t, json.NewDecoder(r.Body).Decode(&body))
		assert.Equal(t, map[string]string{"message": "Bonjour", "systemPrompt": "Sois bref"}, body)
		_, _ = w.Write([]byte(`{"response":"Salut !","provider":"openai"}`))
	}))
	defer server.Close()

	var verbose bytes.Buffer
	resp, err := NewChatClient(server.URL, "user-token").Send(context.Background(), "Bonjour",
		ChatOptions{SystemPrompt: "Sois bref", Verbose: &verbose})
	require.NoError(t, err)
	assert.Equal(t, "Salut !", resp.Response)
	assert.Equal(t, "openai", resp.Provider)
	assert.Contains(t, verbose.String(), "Request: ")
	assert.Contains(t, verbose.String(), "Response (200): ")
}

func TestChatClient_AnonymousSendsNoAuthorization(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Empty(t, r.Header.Get("Authorization"))
		_, _ = w.Write([]byte(`{"response":"ok","provider":"openai"}`))
	}))
	defer server.Close()

	_, err := NewChatClient(server.URL, "").Send(context.Background(), "Bonjour", ChatOptions{})
	assert.NoError(t, err)
}

func TestChatClient_RateLimited(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Retry-After", "42")
		w.WriteHeader(http.StatusTooManyRequests)
		_, _ = w.Write([]byte(`{"error":"Trop de requêtes. Veuillez patienter avant de réessayer."}`))
	}))
	defer server.Close()

	_, err := NewChatClient(server.URL, "").Send(context.Background(), "Bonjour", ChatOptions{})
	var apiErr *APIError
	require.True(t, errors.As(err, &apiErr))
	assert.Equal(t, http.StatusTooManyRequests, apiErr.StatusCode)
	assert.Equal(t, 42, apiErr.RetryAfter)
	assert.Equal(t, "API error 429: Trop de requêtes. Veuillez patienter avant de réessayer. (retry after 42s)", apiErr.Error())
}

func TestChatClient_NonJSONError(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
		_, _ = w.Write([]byte("Internal Server Error"))
	}))
	defer server.Close()

	_, err := NewChatClient(server.URL, "").Send(context.Background(), "Bonjour", ChatOptions{})
	assert.EqualError(t, err, "API error 500: Internal Server Error")
}

func TestChatClient_InputErrors(t *testing.T) {
	_, err := NewChatClient("http://localhost:8080", "").Send(context.Background(), "  ", ChatOptions{})
	assert.EqualError(t, err, "message is required")

	_, err = NewChatClient(":invalid-url", "").Send(context.Background(), "Bonjour", ChatOptions{})
	assert.ErrorContains(t, err, "invalid proxy URL")
}

func TestChatClient_BadResponseBody(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`not json`))
	}))
	defer server.Close()

	_, err := NewChatClient(server.URL, "").Send(context.Background(), "Bonjour", ChatOptions{})
	assert.ErrorContains(t, err, "failed to parse response")
}

func TestSchedulingClient_Invoke(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/functions/v1/calendly", r.URL.Path)
		var body map[string]string
		require.NoError(t, json.NewDecoder(r.Body).Decode(&body))
		switch body["action"] {
		case "getAvailableTimes":
			assert.Equal(t, "E1", body["event_type"])
			_, _ = w.Write([]byte(`{"success":true,"data":{"collection":[]}}`))
		default:
			w.WriteHeader(http.StatusBadRequest)
			_, _ = w.Write([]byte(`{"success":false,"error":"Action non supportée: ` + body["action"] + `"}`))
		}
	}))
	defer server.Close()

	c := NewSchedulingClient(server.URL, "")
	data, err := c.Invoke(context.Background(), "getAvailableTimes", map[string]string{"event_type": "E1", "action": "ignored"})
	require.NoError(t, err)
	assert.JSONEq(t, `{"collection":[]}`, string(data))

	_, err = c.Invoke(context.Background(), "deleteEverything", nil)
	var apiErr *APIError
	require.True(t, errors.As(err, &apiErr))
	assert.Equal(t, http.StatusBadRequest, apiErr.StatusCode)
	assert.Equal(t, "Action non supportée: deleteEverything", apiErr.Message)

	_, err = c.Invoke(context.Background(), "", nil)
	assert.EqualError(t, err, "action is required")
}

func TestSchedulingClient_FailedEnvelopeWithOK(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{"success":false,"error":"oops"}`))
	}))
	defer server.Close()

	_, err := NewSchedulingClient(server.URL, "").Invoke(context.Background(), "getUser", nil)
	assert.EqualError(t, err, "API error 200: oops")
}
