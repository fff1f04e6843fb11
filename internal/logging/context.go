package logging

import (
	"context"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/rs/zerolog"
)

type contextKey string

const traceIDKey contextKey = "trace_id"

// GenerateTraceID generates a new trace ID
func GenerateTraceID() string {
	return uuid.NewString()
}

// NewContext returns a context carrying l
func NewContext(ctx context.Context, l zerolog.Logger) context.Context {
	return l.WithContext(ctx)
}

// FromContext retrieves the logger from ctx, or the default logger
func FromContext(ctx context.Context) zerolog.Logger {
	return FromContextOr(ctx, Default())
}

// FromContextOr retrieves the logger from ctx, or fallback
func FromContextOr(ctx context.Context, fallback zerolog.Logger) zerolog.Logger {
	if l := zerolog.Ctx(ctx); l != nil && l.GetLevel() != zerolog.Disabled {
		return *l
	}
	return fallback
}

// TraceID returns the trace ID stored in ctx, if any
func TraceID(ctx context.Context) string {
	id, _ := ctx.Value(traceIDKey).(string)
	return id
}

// WithTraceContext adds a trace ID to ctx and a logger that carries it
func WithTraceContext(ctx context.Context, base zerolog.Logger) (context.Context, zerolog.Logger) {
	traceID := GenerateTraceID()
	l := base.With().Str("trace_id", traceID).Logger()
	ctx = context.WithValue(ctx, traceIDKey, traceID)
	return NewContext(ctx, l), l
}

// SymbolContext creates a logger for one symbol's analysis cycle
func SymbolContext(l zerolog.Logger, symbol string, tf string) zerolog.Logger {
	return l.With().Str("symbol", symbol).Str("timeframe", tf).Logger()
}

// SignalContext creates a logger for signal operations
func SignalContext(l zerolog.Logger, symbol, direction string, confidence float64) zerolog.Logger {
	return l.With().
		Str("symbol", symbol).
		Str("direction", direction).
		Float64("confidence", confidence).
		Str("component", "signal").
		Logger()
}

// RiskContext creates a logger for gate operations
func RiskContext(l zerolog.Logger, symbol string, openTotal int, balance float64) zerolog.Logger {
	return l.With().
		Str("symbol", symbol).
		Int("open_total", openTotal).
		Float64("balance", balance).
		Str("component", "risk").
		Logger()
}

// DatabaseContext creates a logger for database operations
func DatabaseContext(l zerolog.Logger, operation, table string) zerolog.Logger {
	return l.With().
		Str("operation", operation).
		Str("table", table).
		Str("component", "database").
		Logger()
}

// GinMiddleware logs each request with a trace ID and stores the request
// logger in the request context
func GinMiddleware(base zerolog.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		ctx, l := WithTraceContext(c.Request.Context(), base)
		c.Request = c.Request.WithContext(ctx)
		c.Header("X-Trace-ID", TraceID(ctx))

		c.Next()

		evt := l.Info()
		if c.Writer.Status() >= 500 {
			evt = l.Error()
		}
		evt.
			Str("method", c.Request.Method).
			Str("path", c.FullPath()).
			Int("status", c.Writer.Status()).
			Dur("duration", time.Since(start)).
			Str("component", "api").
			Msg("HTTP request")
	}
}
