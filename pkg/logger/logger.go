package logger

import (
	"context"
	"log/slog"
	"os"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
)

// Logger wraps slog.Logger with additional functionality
type Logger struct {
	*slog.Logger
}

// New creates a new logger instance
func New() *Logger {
	level := getLogLevel(os.Getenv("LOG_LEVEL"))

	opts := &slog.HandlerOptions{
		Level:     level,
		AddSource: level == slog.LevelDebug,
	}

	// Text handler for development, JSON for production
	var handler slog.Handler
	if gin.Mode() == gin.DebugMode {
		handler = slog.NewTextHandler(os.Stdout, opts)
	} else {
		handler = slog.NewJSONHandler(os.Stdout, opts)
	}

	return &Logger{
		Logger: slog.New(handler),
	}
}

// getLogLevel converts string to slog.Level
func getLogLevel(levelStr string) slog.Level {
	switch strings.ToLower(levelStr) {
	case "debug":
		return slog.LevelDebug
	case "info":
		return slog.LevelInfo
	case "warn", "warning":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

// WithSessionID adds reservation session ID to logger context
func (l *Logger) WithSessionID(sessionID string) *Logger {
	return &Logger{
		Logger: l.Logger.With(slog.String("session_id", sessionID)),
	}
}

// WithAgentID adds counter agent ID to logger context
func (l *Logger) WithAgentID(agentID string) *Logger {
	return &Logger{
		Logger: l.Logger.With(slog.String("agent_id", agentID)),
	}
}

// WithError adds error to logger context
func (l *Logger) WithError(err error) *Logger {
	return &Logger{
		Logger: l.Logger.With(slog.String("error", err.Error())),
	}
}

// HTTP logging methods

// LogHTTPRequest logs an HTTP request
func (l *Logger) LogHTTPRequest(c *gin.Context, duration time.Duration) {
	l.Logger.InfoContext(c.Request.Context(),
		"HTTP Request",
		slog.String("method", c.Request.Method),
		slog.String("path", c.Request.URL.Path),
		slog.Int("status", c.Writer.Status()),
		slog.Duration("duration", duration),
		slog.String("ip", c.ClientIP()),
	)
}

// Business logic logging methods

// LogSessionStarted logs when a reservation session is opened
func (l *Logger) LogSessionStarted(ctx context.Context, sessionID, ticketID, agentID string, holdSeconds int) {
	l.Logger.InfoContext(ctx,
		"Reservation Session Started",
		slog.String("session_id", sessionID),
		slog.String("ticket_id", ticketID),
		slog.String("agent_id", agentID),
		slog.Int("hold_seconds", holdSeconds),
	)
}

// LogSessionExpired logs when a reservation hold runs out
func (l *Logger) LogSessionExpired(ctx context.Context, sessionID string, clearedSeats int) {
	l.Logger.WarnContext(ctx,
		"Reservation Session Expired",
		slog.String("session_id", sessionID),
		slog.Int("cleared_seats", clearedSeats),
	)
}

// LogOrderCreated logs when an order is created with the carrier
func (l *Logger) LogOrderCreated(ctx context.Context, sessionID, orderRef string) {
	l.Logger.InfoContext(ctx,
		"Order Created",
		slog.String("session_id", sessionID),
		slog.String("order_ref", orderRef),
	)
}

// LogCompensation logs a compensating artifact delete
func (l *Logger) LogCompensation(ctx context.Context, sessionID, artifactRef, reason string) {
	l.Logger.InfoContext(ctx,
		"Order Artifact Compensated",
		slog.String("session_id", sessionID),
		slog.String("artifact_ref", artifactRef),
		slog.String("reason", reason),
	)
}

// LogAuthFailure logs failed agent authentication
func (l *Logger) LogAuthFailure(ctx context.Context, reason, ip string) {
	l.Logger.WarnContext(ctx,
		"Authentication Failure",
		slog.String("reason", reason),
		slog.String("ip", ip),
	)
}

// Helper methods for common patterns

// InfoWithContext logs an info message with context
func (l *Logger) InfoWithContext(ctx context.Context, msg string, fields map[string]interface{}) {
	args := make([]interface{}, 0, len(fields)*2)
	for k, v := range fields {
		args = append(args, slog.Any(k, v))
	}
	l.Logger.InfoContext(ctx, msg, args...)
}

// ErrorWithContext logs an error message with context
func (l *Logger) ErrorWithContext(ctx context.Context, msg string, err error, fields map[string]interface{}) {
	args := make([]interface{}, 0, len(fields)*2+2)
	args = append(args, slog.String("error", err.Error()))
	for k, v := range fields {
		args = append(args, slog.Any(k, v))
	}
	l.Logger.ErrorContext(ctx, msg, args...)
}

// Global logger instance (can be replaced with dependency injection)
var defaultLogger = New()

// GetDefault returns the default logger instance
func GetDefault() *Logger {
	return defaultLogger
}

// SetDefault sets the default logger instance
func SetDefault(logger *Logger) {
	defaultLogger = logger
}
