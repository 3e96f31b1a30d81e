package vecgo

import (
	"context"
	"log/slog"
	"os"
)

// Logger wraps slog.Logger with vecgo-specific context.
// This provides structured logging with consistent field names.
type Logger struct {
	*slog.Logger
}

// NewLogger creates a new Logger with the given handler.
// If handler is nil, uses default text handler to stderr.
func NewLogger(handler slog.Handler) *Logger {
	if handler == nil {
		handler = slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{
			Level: slog.LevelInfo,
		})
	}
	return &Logger{
		Logger: slog.New(handler),
	}
}

// NewJSONLogger creates a Logger that outputs JSON-formatted logs.
// level sets the minimum log level (e.g., slog.LevelDebug, slog.LevelInfo).
func NewJSONLogger(level slog.Level) *Logger {
	handler := slog.NewJSONHandler(os.Stderr, &slog.HandlerOptions{
		Level: level,
	})
	return &Logger{
		Logger: slog.New(handler),
	}
}

// NewTextLogger creates a Logger that outputs human-readable text logs.
func NewTextLogger(level slog.Level) *Logger {
	handler := slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{
		Level: level,
	})
	return &Logger{
		Logger: slog.New(handler),
	}
}

// NoopLogger creates a Logger that discards all log output.
// Use this to disable logging entirely.
func NoopLogger() *Logger {
	handler := slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{
		Level: slog.Level(1000), // Unreachable level
	})
	return &Logger{
		Logger: slog.New(handler),
	}
}

// WithContext returns a copy of the logger; ctx is not read and no
// fields are added.
func (l *Logger) WithContext(ctx context.Context) *Logger {
	return &Logger{
		Logger: l.Logger.With(),
	}
}

// WithQuery adds a query dimension field to the logger.
func (l *Logger) WithQuery(dim int) *Logger {
	return &Logger{
		Logger: l.Logger.With("dimension", dim),
	}
}

// WithK adds a k (result count) field to the logger.
func (l *Logger) WithK(k int) *Logger {
	return &Logger{
		Logger: l.Logger.With("k", k),
	}
}

// LogOpen logs a handle-open attempt.
func (l *Logger) LogOpen(ctx context.Context, indexPrefix string, n uint64, err error) {
	if err != nil {
		l.ErrorContext(ctx, "open failed",
			"index_prefix", indexPrefix,
			"error", err,
		)
	} else {
		l.InfoContext(ctx, "open completed",
			"index_prefix", indexPrefix,
			"n", n,
		)
	}
}

// LogSearch logs a search operation with its per-query stats.
func (l *Logger) LogSearch(ctx context.Context, k int, stats Stats, err error) {
	if err != nil {
		l.ErrorContext(ctx, "search failed",
			"k", k,
			"error", err,
		)
	} else {
		l.DebugContext(ctx, "search completed",
			"k", k,
			"hops", stats.Hops,
			"ios", stats.IOs,
			"cache_hits", stats.CacheHits,
			"cmp_count", stats.CmpCount,
			"out_of_budget", stats.OutOfBudget,
		)
	}
}

// LogBatchSearch logs a batch search operation.
func (l *Logger) LogBatchSearch(ctx context.Context, numQueries, numThreads int, err error) {
	if err != nil {
		l.ErrorContext(ctx, "batch search failed",
			"queries", numQueries,
			"threads", numThreads,
			"error", err,
		)
	} else {
		l.DebugContext(ctx, "batch search completed",
			"queries", numQueries,
			"threads", numThreads,
		)
	}
}

// LogRangeSearch logs a range search operation.
func (l *Logger) LogRangeSearch(ctx context.Context, rng float32, resultsFound int, err error) {
	if err != nil {
		l.ErrorContext(ctx, "range search failed",
			"range", rng,
			"error", err,
		)
	} else {
		l.DebugContext(ctx, "range search completed",
			"range", rng,
			"results", resultsFound,
		)
	}
}

// LogClose logs a handle close.
func (l *Logger) LogClose(ctx context.Context, err error) {
	if err != nil {
		l.ErrorContext(ctx, "close failed", "error", err)
	} else {
		l.InfoContext(ctx, "close completed")
	}
}
