package logging

import (
	"context"
	"time"

	"go.uber.org/zap"
)

// EventType names a request-accounting event.
type EventType string

const (
	EventChatRequest      EventType = "chat_request"
	EventSchedulingAction EventType = "scheduling_action"
	EventRateLimited      EventType = "rate_limited"
	EventUpstreamError    EventType = "upstream_error"
	EventAuthFallback     EventType = "auth_fallback"
	EventConfigError      EventType = "config_error"
)

// Outcome is the result recorded with an event.
type Outcome string

const (
	OutcomeSuccess Outcome = "success"
	OutcomeDenied  Outcome = "denied"
	OutcomeFailure Outcome = "failure"
)

// Event is one structured accounting record.
type Event struct {
	Type       EventType
	Endpoint   string
	Caller     string // rate-limit key of the caller
	Outcome    Outcome
	Reason     string
	StatusCode int
	Duration   time.Duration
	Details    map[string]any
}

// EventLogger writes accounting events as structured log lines.
type EventLogger struct {
	logger *zap.Logger
}

// NewEventLogger creates an EventLogger on top of baseLogger.
func NewEventLogger(baseLogger *zap.Logger) *EventLogger {
	if baseLogger == nil {
		baseLogger = zap.NewNop()
	}
	return &EventLogger{logger: baseLogger.With(zap.String("log_type", "accounting"))}
}

// Log records event, picking up request identifiers from ctx.
func (l *EventLogger) Log(ctx context.Context, event Event) {
	fields := []zap.Field{
		zap.String(FieldEventType, string(event.Type)),
		zap.String(FieldOutcome, string(event.Outcome)),
	}
	if id, ok := GetRequestID(ctx); ok {
		fields = append(fields, zap.String(FieldRequestID, id))
	}
	if id, ok := GetCorrelationID(ctx); ok {
		fields = append(fields, zap.String(FieldCorrelationID, id))
	}
	if event.Endpoint != "" {
		fields = append(fields, zap.String(FieldEndpoint, event.Endpoint))
	}
	if event.Caller != "" {
		fields = append(fields, zap.String(FieldCaller, event.Caller))
	}
	if event.Reason != "" {
		fields = append(fields, zap.String(FieldReason, event.Reason))
	}
	if event.StatusCode != 0 {
		fields = append(fields, zap.Int("status_code", event.StatusCode))
	}
	if event.Duration > 0 {
		fields = append(fields, zap.Duration("duration", event.Duration))
	}
	if len(event.Details) > 0 {
		fields = append(fields, zap.Any("details", event.Details))
	}

	switch event.Outcome {
	case OutcomeFailure:
		l.logger.Error("Request event", fields...)
	case OutcomeDenied:
		l.logger.Warn("Request event", fields...)
	default:
		l.logger.Info("Request event", fields...)
	}
}
