// Package api provides the request and response envelopes shared by the edge
// handlers and the CLI clients.
package api

import "encoding/json"

// ChatRequest is the body accepted by the chat proxy.
type ChatRequest struct {
	Message      string `json:"message" validate:"required,max=4000"`
	SystemPrompt string `json:"systemPrompt"`
}

// ChatResponse is the success body returned by the chat proxy.
type ChatResponse struct {
	Response string `json:"response"`
	Provider string `json:"provider"`
}

// ErrorResponse is the failure body returned by the chat proxy.
type ErrorResponse struct {
	Error string `json:"error"`
}

// Envelope is the uniform body returned by the scheduling proxy.
type Envelope struct {
	Success bool            `json:"success"`
	Data    json.RawMessage `json:"data,omitempty"`
	Error   string          `json:"error,omitempty"`
}

// HealthResponse is returned by the health endpoints of both servers.
type HealthResponse struct {
	Status  string `json:"status"`
	Version string `json:"version"`
}
