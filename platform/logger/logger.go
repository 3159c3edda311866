// Package logger provides structured logging infrastructure for the application.
// This is part of the platform layer and contains no business logic.
package logger

import (
	"context"
	"log/slog"
	"os"
	"strings"
)

// Context key types for storing values in context
type contextKey string

const (
	// RequestIDKey is the context key for request ID
	RequestIDKey contextKey = "request_id"
	// TraceIDKey is the context key for trace ID
	TraceIDKey contextKey = "trace_id"
)

// Logger wraps slog.Logger for structured logging
type Logger struct {
	*slog.Logger
}

// New creates a new logger based on environment
func New(env string) *Logger {
	var handler slog.Handler

	opts := &slog.HandlerOptions{
		Level: slog.LevelInfo,
	}

	if strings.EqualFold(env, "development") {
		opts.Level = slog.LevelDebug
		handler = slog.NewTextHandler(os.Stdout, opts)
	} else {
		handler = slog.NewJSONHandler(os.Stdout, opts)
	}

	return &Logger{
		Logger: slog.New(handler),
	}
}

// WithContext returns a logger with context values extracted.
// Supports request_id and trace_id from context.
func (l *Logger) WithContext(ctx context.Context) *Logger {
	if ctx == nil {
		return l
	}

	newLogger := l

	if requestID, ok := ctx.Value(RequestIDKey).(string); ok && requestID != "" {
		newLogger = newLogger.WithRequestID(requestID)
	}

	if traceID, ok := ctx.Value(TraceIDKey).(string); ok && traceID != "" {
		newLogger = &Logger{
			Logger: newLogger.With(slog.String("trace_id", traceID)),
		}
	}

	return newLogger
}

// WithRequestID returns a logger with request ID
func (l *Logger) WithRequestID(requestID string) *Logger {
	return &Logger{
		Logger: l.With(slog.String("request_id", requestID)),
	}
}

// HTTPRequest logs an HTTP request
func (l *Logger) HTTPRequest(method, path string, status int, latencyMs float64, clientIP string) {
	l.Info("http_request",
		slog.String("method", method),
		slog.String("path", path),
		slog.Int("status", status),
		slog.Float64("latency_ms", latencyMs),
		slog.String("client_ip", clientIP),
	)
}

// HTTPError logs an HTTP error
func (l *Logger) HTTPError(method, path string, status int, err error, clientIP string) {
	l.Error("http_error",
		slog.String("method", method),
		slog.String("path", path),
		slog.Int("status", status),
		slog.String("error", err.Error()),
		slog.String("client_ip", clientIP),
	)
}

// DatabaseError logs database errors
func (l *Logger) DatabaseError(operation string, err error) {
	l.Error("database_error",
		slog.String("operation", operation),
		slog.String("error", err.Error()),
	)
}

// RateLimitExceeded logs rate limit events
func (l *Logger) RateLimitExceeded(client, path string) {
	l.Warn("rate_limit_exceeded",
		slog.String("client", client),
		slog.String("path", path),
	)
}

// LeadAdmitted logs a lead admission result.
func (l *Logger) LeadAdmitted(leadID, sourceID int64, createdNew bool) {
	l.Info("lead_admitted",
		slog.Int64("lead_id", leadID),
		slog.Int64("source_id", sourceID),
		slog.Bool("created_new", createdNew),
	)
}

// LeadRejected logs a terminal lead rejection with its reason code.
func (l *Logger) LeadRejected(leadID int64, reason string) {
	l.Info("lead_rejected",
		slog.Int64("lead_id", leadID),
		slog.String("reason", reason),
	)
}

// LeadRouted logs a buyer assignment.
func (l *Logger) LeadRouted(leadID, buyerID int64, strategy string) {
	l.Info("lead_routed",
		slog.Int64("lead_id", leadID),
		slog.Int64("buyer_id", buyerID),
		slog.String("strategy", strategy),
	)
}

// RouteSkipped logs a no-route outcome; the lead stays validated for a later sweep.
func (l *Logger) RouteSkipped(leadID int64, reason string) {
	l.Info("route_skipped",
		slog.Int64("lead_id", leadID),
		slog.String("reason", reason),
	)
}

// DeliveryAttempted logs one delivery attempt over one channel.
func (l *Logger) DeliveryAttempted(leadID int64, channel string, attempt int, success bool, errMsg string) {
	if success {
		l.Info("delivery_attempt",
			slog.Int64("lead_id", leadID),
			slog.String("channel", channel),
			slog.Int("attempt", attempt),
			slog.Bool("success", true),
		)
		return
	}
	l.Warn("delivery_attempt",
		slog.Int64("lead_id", leadID),
		slog.String("channel", channel),
		slog.Int("attempt", attempt),
		slog.Bool("success", false),
		slog.String("error", errMsg),
	)
}

// DeliveryRetryScheduled logs a rescheduled delivery job.
func (l *Logger) DeliveryRetryScheduled(jobID string, leadID int64, attempt int, delaySeconds float64) {
	l.Info("delivery_retry_scheduled",
		slog.String("job_id", jobID),
		slog.Int64("lead_id", leadID),
		slog.Int("attempt", attempt),
		slog.Float64("delay_seconds", delaySeconds),
	)
}

// DeadLettered logs a job whose retry budget is exhausted.
func (l *Logger) DeadLettered(jobID string, leadID int64, attempts int) {
	l.Error("delivery_dead_lettered",
		slog.String("job_id", jobID),
		slog.Int64("lead_id", leadID),
		slog.Int("attempts", attempts),
	)
}

// BillingApplied logs a successful billing transition.
func (l *Logger) BillingApplied(leadID, buyerID, priceCents int64) {
	l.Info("billing_applied",
		slog.Int64("lead_id", leadID),
		slog.Int64("buyer_id", buyerID),
		slog.Int64("price_cents", priceCents),
	)
}

// BillingSkipped logs a billing no-op or deferred failure.
func (l *Logger) BillingSkipped(leadID int64, reason string) {
	l.Warn("billing_skipped",
		slog.Int64("lead_id", leadID),
		slog.String("reason", reason),
	)
}

// PostbackRecorded logs a buyer disposition that changed lead state.
func (l *Logger) PostbackRecorded(leadID, buyerID int64, disposition, reason string) {
	if reason == "" {
		l.Info("postback_recorded",
			slog.Int64("lead_id", leadID),
			slog.Int64("buyer_id", buyerID),
			slog.String("disposition", disposition),
		)
		return
	}
	l.Info("postback_recorded",
		slog.Int64("lead_id", leadID),
		slog.Int64("buyer_id", buyerID),
		slog.String("disposition", disposition),
		slog.String("reason", reason),
	)
}
