package logging

import (
	"context"

	"go.uber.org/zap"
)

type ctxKey string

const (
	ctxKeyRequestID     ctxKey = "request_id"
	ctxKeyCorrelationID ctxKey = "correlation_id"
)

// Canonical field names shared by all log lines.
const (
	FieldRequestID     = "request_id"
	FieldCorrelationID = "correlation_id"
	FieldEventType     = "event_type"
	FieldOutcome       = "outcome"
	FieldEndpoint      = "endpoint"
	FieldCaller        = "caller_key"
	FieldReason        = "reason"
)

// WithRequestID stores the request ID in ctx.
func WithRequestID(ctx context.Context, requestID string) context.Context {
	return context.WithValue(ctx, ctxKeyRequestID, requestID)
}

// GetRequestID returns the request ID stored in ctx.
func GetRequestID(ctx context.Context) (string, bool) {
	v, ok := ctx.Value(ctxKeyRequestID).(string)
	return v, ok && v != ""
}

// WithCorrelationID stores the correlation ID in ctx.
func WithCorrelationID(ctx context.Context, correlationID string) context.Context {
	return context.WithValue(ctx, ctxKeyCorrelationID, correlationID)
}

// GetCorrelationID returns the correlation ID stored in ctx.
func GetCorrelationID(ctx context.Context) (string, bool) {
	v, ok := ctx.Value(ctxKeyCorrelationID).(string)
	return v, ok && v != ""
}

// FromContext returns logger annotated with the request and correlation IDs
// found in ctx.
func FromContext(ctx context.Context, logger *zap.Logger) *zap.Logger {
	if logger == nil {
		logger = zap.NewNop()
	}
	var fields []zap.Field
	if id, ok := GetRequestID(ctx); ok {
		fields = append(fields, zap.String(FieldRequestID, id))
	}
	if id, ok := GetCorrelationID(ctx); ok {
		fields = append(fields, zap.String(FieldCorrelationID, id))
	}
	if len(fields) == 0 {
		return logger
	}
	return logger.With(fields...)
}
