// Package log provides structured logging utilities for payd services.
// It wraps the standard library's slog package with additional convenience methods.
package log

import (
	"context"
	"log/slog"
	"os"
	"strings"
)

// Logger wraps slog.Logger with additional context and convenience methods
type Logger struct {
	*slog.Logger
	service string
	version string
}

// New creates a new logger with the specified configuration
func New(service, version, level, format string) *Logger {
	var handler slog.Handler

	// Parse log level
	var logLevel slog.Level
	switch strings.ToLower(level) {
	case "debug":
		logLevel = slog.LevelDebug
	case "info":
		logLevel = slog.LevelInfo
	case "warn", "warning":
		logLevel = slog.LevelWarn
	case "error":
		logLevel = slog.LevelError
	default:
		logLevel = slog.LevelInfo
	}

	// Create handler based on format
	opts := &slog.HandlerOptions{
		Level:     logLevel,
		AddSource: logLevel == slog.LevelDebug,
	}

	switch strings.ToLower(format) {
	case "json":
		handler = slog.NewJSONHandler(os.Stdout, opts)
	case "text":
		handler = slog.NewTextHandler(os.Stdout, opts)
	default:
		handler = slog.NewJSONHandler(os.Stdout, opts)
	}

	// Create base logger with service context
	baseLogger := slog.New(handler).With(
		"service", service,
		"version", version,
	)

	return &Logger{
		Logger:  baseLogger,
		service: service,
		version: version,
	}
}

// WithContext returns a logger with additional context fields
func (l *Logger) WithContext(ctx context.Context) *Logger {
	logger := l.Logger

	// Add request ID if available
	if reqID := ctx.Value("request_id"); reqID != nil {
		logger = logger.With("request_id", reqID)
	}

	// Add trace ID if available
	if traceID := ctx.Value("trace_id"); traceID != nil {
		logger = logger.With("trace_id", traceID)
	}

	return &Logger{
		Logger:  logger,
		service: l.service,
		version: l.version,
	}
}

// WithFields returns a logger with additional fields
func (l *Logger) WithFields(fields ...any) *Logger {
	return &Logger{
		Logger:  l.With(fields...),
		service: l.service,
		version: l.version,
	}
}

// WithComponent returns a logger with a component field
func (l *Logger) WithComponent(component string) *Logger {
	return l.WithFields("component", component)
}

// WithChain returns a logger scoped to one pool/chain pair
func (l *Logger) WithChain(pool, chain string) *Logger {
	return l.WithFields("pool", pool, "chain", chain)
}

// WithWorker returns a logger with worker-specific fields
func (l *Logger) WithWorker(worker string) *Logger {
	return l.WithFields("worker", worker)
}

// WithError returns a logger with error context
func (l *Logger) WithError(err error) *Logger {
	if err == nil {
		return l
	}
	return l.WithFields("error", err.Error())
}

// Accounting-specific logging helpers

// LogShareRecorded logs a recorded share event
func (l *Logger) LogShareRecorded(worker, kind string, work float64, solo bool) {
	l.Debug("share recorded",
		"worker", worker,
		"kind", kind,
		"work", work,
		"solo", solo,
	)
}

// LogBlockPromoted logs the promotion of a round to a candidate block
func (l *Logger) LogBlockPromoted(height int64, hash, worker string, luck float64) {
	l.Info("round promoted to candidate block",
		"height", height,
		"block_hash", hash,
		"worker", worker,
		"luck_pct", luck,
	)
}

// LogRoundResolved logs the resolution of a pending block
func (l *Logger) LogRoundResolved(height int64, hash, category string, confirmations int64) {
	l.Info("round resolved",
		"height", height,
		"block_hash", hash,
		"category", category,
		"confirmations", confirmations,
	)
}

// LogPayout logs a successful payout transaction
func (l *Logger) LogPayout(txid string, miners int, totalPaid float64) {
	l.Info("payout sent",
		"txid", txid,
		"miners", miners,
		"total_paid", totalPaid,
	)
}

// LogPipelineRun logs the completion of a pipeline run
func (l *Logger) LogPipelineRun(mode string, rounds int, durationMs float64) {
	l.Info("pipeline run completed",
		"mode", mode,
		"rounds", rounds,
		"duration_ms", durationMs,
	)
}
