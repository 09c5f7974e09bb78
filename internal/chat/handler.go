// Package chat implements the conversational-assistant proxy: it guards an
// LLM chat-completion API with caller quotas, input validation and script
// stripping on both directions.
package chat

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"github.com/go-playground/validator/v10"
	"go.uber.org/zap"

	"github.com/sofatutor/campaign-edge/internal/api"
	"github.com/sofatutor/campaign-edge/internal/auth"
	"github.com/sofatutor/campaign-edge/internal/logging"
	"github.com/sofatutor/campaign-edge/internal/ratelimit"
	"github.com/sofatutor/campaign-edge/internal/sanitize"
	"github.com/sofatutor/campaign-edge/internal/upstream"
)

// Endpoint names the chat proxy in logs and rate-limit keys.
const Endpoint = "chat"

// Caller-facing messages.
const (
	msgMissingKey     = "Clé API OpenAI non configurée"
	msgInvalidJSON    = "Corps de requête JSON invalide"
	msgMessage        = "Message requis et doit être une chaîne de caractères"
	msgMessageTooLong = "Message trop long (maximum 4000 caractères)"
	msgSystemPrompt   = "System prompt doit être une chaîne de caractères"
	msgUpstream       = "Le service de conversation est momentanément indisponible"
	msgMalformed      = "Réponse API invalide"
)

// Provider is the chat-completion API the handler forwards to.
type Provider interface {
	Configured() bool
	Complete(ctx context.Context, systemPrompt, userMessage string) (string, error)
}

// Options carries the handler's collaborators. Nil fields disable the
// corresponding step.
type Options struct {
	ProviderName string
	Resolver     auth.Resolver
	Limiter      *ratelimit.Limiter
	Tokens       TokenCounter
	Logger       *zap.Logger
	Events       *logging.EventLogger
}

// Handler serves POST /functions/v1/chat.
type Handler struct {
	provider     Provider
	providerName string
	resolver     auth.Resolver
	limiter      *ratelimit.Limiter
	tokens       TokenCounter
	logger       *zap.Logger
	events       *logging.EventLogger
	validate     *validator.Validate
}

// NewHandler creates a chat handler in front of provider.
func NewHandler(provider Provider, opts Options) *Handler {
	if opts.Logger == nil {
		opts.Logger = zap.NewNop()
	}
	if opts.Events == nil {
		opts.Events = logging.NewEventLogger(opts.Logger)
	}
	if opts.ProviderName == "" {
		opts.ProviderName = "openai"
	}
	return &Handler{
		provider:     provider,
		providerName: opts.ProviderName,
		resolver:     opts.Resolver,
		limiter:      opts.Limiter,
		tokens:       opts.Tokens,
		logger:       opts.Logger,
		events:       opts.Events,
		validate:     validator.New(),
	}
}

func (h *Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	if r.Method == http.MethodOptions {
		w.WriteHeader(http.StatusOK)
		return
	}

	start := time.Now()
	ctx := r.Context()
	caller, err := h.serve(ctx, w, r)
	if err != nil {
		h.fail(ctx, w, caller, err, time.Since(start))
	}
}

func (h *Handler) serve(ctx context.Context, w http.ResponseWriter, r *http.Request) (ratelimit.Caller, error) {
	var caller ratelimit.Caller
	if r.Method != http.MethodPost {
		return caller, api.MethodNotAllowed(r.Method)
	}
	if h.provider == nil || !h.provider.Configured() {
		return caller, api.ConfigurationError(msgMissingKey)
	}

	identity := auth.Identify(ctx, r, h.resolver, h.logger, h.events)
	caller = ratelimit.CallerFor(identity.UserID(), r)

	if h.limiter.Enabled() {
		d := h.limiter.Allow(ctx, caller)
		d.SetHeaders(w.Header(), h.limiter.Now())
		if !d.Allowed {
			return caller, api.RateLimited()
		}
	}

	req, err := h.decode(r)
	if err != nil {
		return caller, err
	}

	start := time.Now()
	message := sanitize.StripScripts(req.Message)
	reply, err := h.provider.Complete(ctx, req.SystemPrompt, message)
	if err != nil {
		return caller, classifyUpstream(err)
	}
	replyHadScript := sanitize.ContainsScript(reply)
	reply = sanitize.StripScripts(reply)

	details := map[string]any{
		"authenticated":      identity.IsAuthenticated(),
		"message_chars":      len([]rune(message)),
		"response_chars":     len([]rune(reply)),
		"sanitized":          sanitize.ContainsScript(req.Message),
		"response_sanitized": replyHadScript,
	}
	if h.tokens != nil {
		if n, err := h.tokens.Count(req.SystemPrompt + "\n" + message); err == nil {
			details["prompt_tokens_estimate"] = n
		} else {
			logging.FromContext(ctx, h.logger).Debug("Token counting unavailable", zap.Error(err))
		}
	}
	h.events.Log(ctx, logging.Event{
		Type:       logging.EventChatRequest,
		Endpoint:   Endpoint,
		Caller:     caller.Key,
		Outcome:    logging.OutcomeSuccess,
		StatusCode: http.StatusOK,
		Duration:   time.Since(start),
		Details:    details,
	})

	if err := api.WriteJSON(w, http.StatusOK, api.ChatResponse{Response: reply, Provider: h.providerName}); err != nil {
		logging.FromContext(ctx, h.logger).Error("Failed to write chat response", zap.Error(err))
	}
	return caller, nil
}

// decode reads and validates the request body.
func (h *Handler) decode(r *http.Request) (api.ChatRequest, error) {
	var req api.ChatRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		var typeErr *json.UnmarshalTypeError
		if errors.As(err, &typeErr) {
			if typeErr.Field == "systemPrompt" {
				return req, api.InvalidInput(msgSystemPrompt)
			}
			return req, api.InvalidInput(msgMessage)
		}
		return req, api.NewError(api.KindInvalidInput, msgInvalidJSON, err)
	}

	if err := h.validate.Struct(req); err != nil {
		var verrs validator.ValidationErrors
		if errors.As(err, &verrs) && len(verrs) > 0 && verrs[0].Tag() == "max" {
			return req, api.InvalidInput(msgMessageTooLong)
		}
		return req, api.InvalidInput(msgMessage)
	}
	return req, nil
}

func classifyUpstream(err error) *api.Error {
	if errors.Is(err, upstream.ErrMissingAPIKey) {
		return api.NewError(api.KindConfiguration, msgMissingKey, err)
	}
	if errors.Is(err, upstream.ErrMalformedResponse) {
		return api.NewError(api.KindMalformedUpstreamResponse, msgMalformed, err)
	}
	return api.NewError(api.KindUpstream, msgUpstream, err)
}

func (h *Handler) fail(ctx context.Context, w http.ResponseWriter, caller ratelimit.Caller, err error, d time.Duration) {
	apiErr := api.AsError(err, msgUpstream)
	status := apiErr.StatusCode()
	log := logging.FromContext(ctx, h.logger)

	event := logging.Event{
		Endpoint:   Endpoint,
		Caller:     caller.Key,
		Reason:     apiErr.Message,
		StatusCode: status,
		Duration:   d,
	}
	switch {
	case apiErr.Kind == api.KindRateLimited:
		event.Type, event.Outcome = logging.EventRateLimited, logging.OutcomeDenied
		h.events.Log(ctx, event)
	case apiErr.IsUpstream():
		var statusErr *upstream.StatusError
		if errors.As(err, &statusErr) {
			log.Error("Chat provider returned an error",
				zap.Int("upstream_status", statusErr.StatusCode),
				zap.String("upstream_body", statusErr.Body))
		} else {
			log.Error("Chat provider call failed", zap.Error(err))
		}
		event.Type, event.Outcome = logging.EventUpstreamError, logging.OutcomeFailure
		h.events.Log(ctx, event)
	case apiErr.Kind == api.KindConfiguration:
		event.Type, event.Outcome = logging.EventConfigError, logging.OutcomeFailure
		h.events.Log(ctx, event)
	default:
		log.Debug("Rejected chat request", zap.String("kind", string(apiErr.Kind)), zap.Error(err))
	}

	if apiErr.Kind == api.KindMethodNotAllowed {
		w.Header().Set("Allow", "POST, OPTIONS")
	}
	if writeErr := api.WriteJSON(w, status, api.ErrorResponse{Error: apiErr.Message}); writeErr != nil {
		log.Error("Failed to write chat error", zap.Error(writeErr))
	}
}
