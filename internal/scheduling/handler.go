package scheduling

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/go-playground/validator/v10"
	"go.uber.org/zap"

	"github.com/sofatutor/campaign-edge/internal/api"
	"github.com/sofatutor/campaign-edge/internal/auth"
	"github.com/sofatutor/campaign-edge/internal/logging"
	"github.com/sofatutor/campaign-edge/internal/ratelimit"
	"github.com/sofatutor/campaign-edge/internal/upstream"
)

// Endpoint names the scheduling proxy in logs and rate-limit keys.
const Endpoint = "calendly"

const (
	msgMissingKey = "CALENDLY_API_KEY non configurée"
	msgInternal   = "Erreur interne du serveur"
	msgMalformed  = "Réponse API invalide"
)

// Options carries the handler's optional collaborators.
type Options struct {
	Resolver auth.Resolver
	Limiter  *ratelimit.Limiter
	Logger   *zap.Logger
	Events   *logging.EventLogger
}

// Handler serves POST /functions/v1/calendly.
type Handler struct {
	client   Calendly
	resolver auth.Resolver
	limiter  *ratelimit.Limiter
	logger   *zap.Logger
	events   *logging.EventLogger
	validate *validator.Validate
}

// NewHandler creates a scheduling handler in front of client.
func NewHandler(client Calendly, opts Options) *Handler {
	if opts.Logger == nil {
		opts.Logger = zap.NewNop()
	}
	if opts.Events == nil {
		opts.Events = logging.NewEventLogger(opts.Logger)
	}
	return &Handler{
		client:   client,
		resolver: opts.Resolver,
		limiter:  opts.Limiter,
		logger:   opts.Logger,
		events:   opts.Events,
		validate: newValidator(),
	}
}

func (h *Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	if r.Method == http.MethodOptions {
		w.WriteHeader(http.StatusOK)
		return
	}

	start := time.Now()
	ctx := r.Context()
	action, caller, data, err := h.serve(ctx, w, r)

	event := logging.Event{
		Type:     logging.EventSchedulingAction,
		Endpoint: Endpoint,
		Caller:   caller.Key,
		Duration: time.Since(start),
	}
	if action != nil {
		event.Details = map[string]any{"action": action.Name()}
	}

	if err != nil {
		h.fail(ctx, w, event, err)
		return
	}

	event.Outcome = logging.OutcomeSuccess
	event.StatusCode = http.StatusOK
	h.events.Log(ctx, event)
	if err := api.WriteJSON(w, http.StatusOK, api.Envelope{Success: true, Data: data}); err != nil {
		logging.FromContext(ctx, h.logger).Error("Failed to write scheduling response", zap.Error(err))
	}
}

func (h *Handler) serve(ctx context.Context, w http.ResponseWriter, r *http.Request) (Action, ratelimit.Caller, []byte, error) {
	var caller ratelimit.Caller
	if r.Method != http.MethodPost {
		return nil, caller, nil, api.MethodNotAllowed(r.Method)
	}
	if h.client == nil || !h.client.Configured() {
		return nil, caller, nil, api.ConfigurationError(msgMissingKey)
	}

	if h.limiter.Enabled() {
		identity := auth.Identify(ctx, r, h.resolver, h.logger, h.events)
		caller = ratelimit.CallerFor(identity.UserID(), r)
		d := h.limiter.Allow(ctx, caller)
		d.SetHeaders(w.Header(), h.limiter.Now())
		if !d.Allowed {
			return nil, caller, nil, api.RateLimited()
		}
	} else {
		caller = ratelimit.CallerFor("", r)
	}

	body, err := io.ReadAll(r.Body)
	if err != nil {
		return nil, caller, nil, api.NewError(api.KindInvalidInput, "Corps de requête illisible", err)
	}
	action, err := ParseAction(body, h.validate)
	if err != nil {
		return nil, caller, nil, err
	}

	logging.FromContext(ctx, h.logger).Debug("Calendly API request", zap.String("action", action.Name()))
	data, err := action.execute(ctx, h.client)
	if err != nil {
		return action, caller, nil, classifyUpstream(err)
	}
	return action, caller, data, nil
}

// classifyUpstream maps client errors to the envelope message. Non-2xx
// responses are surfaced as "<status> - <body>".
func classifyUpstream(err error) *api.Error {
	var statusErr *upstream.StatusError
	switch {
	case errors.As(err, &statusErr):
		return api.NewError(api.KindUpstream, fmt.Sprintf("%d - %s", statusErr.StatusCode, statusErr.Body), err)
	case errors.Is(err, upstream.ErrMissingAPIKey):
		return api.NewError(api.KindConfiguration, msgMissingKey, err)
	case errors.Is(err, upstream.ErrMalformedResponse):
		return api.NewError(api.KindMalformedUpstreamResponse, msgMalformed, err)
	default:
		return api.NewError(api.KindUpstream, msgInternal, err)
	}
}

func (h *Handler) fail(ctx context.Context, w http.ResponseWriter, event logging.Event, err error) {
	apiErr := api.AsError(err, msgInternal)
	status := apiErr.StatusCode()
	log := logging.FromContext(ctx, h.logger)

	event.StatusCode = status
	event.Reason = apiErr.Message
	event.Outcome = logging.OutcomeFailure
	switch {
	case apiErr.Kind == api.KindRateLimited:
		event.Type = logging.EventRateLimited
		event.Outcome = logging.OutcomeDenied
	case apiErr.IsUpstream():
		log.Error("Calendly API error", zap.Error(err))
		event.Type = logging.EventUpstreamError
	case apiErr.Kind == api.KindConfiguration:
		event.Type = logging.EventConfigError
	default:
		event.Outcome = logging.OutcomeDenied
	}
	h.events.Log(ctx, event)

	if apiErr.Kind == api.KindMethodNotAllowed {
		w.Header().Set("Allow", "POST, OPTIONS")
	}
	if writeErr := api.WriteJSON(w, status, api.Envelope{Success: false, Error: apiErr.Message}); writeErr != nil {
		log.Error("Failed to write scheduling error", zap.Error(writeErr))
	}
}
