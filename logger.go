package melodex

import (
	"context"
	"log/slog"
	"os"

	"github.com/hupe1980/melodex/model"
)

// Logger wraps slog.Logger with melodex-specific context.
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

// WithSongID adds a song_id field to the logger.
func (l *Logger) WithSongID(id model.SongID) *Logger {
	return &Logger{
		Logger: l.Logger.With("song_id", string(id)),
	}
}

// WithMode adds a mode field to the logger.
func (l *Logger) WithMode(mode model.Mode) *Logger {
	return &Logger{
		Logger: l.Logger.With("mode", mode.String()),
	}
}

// WithK adds a k (neighbor count) field to the logger.
func (l *Logger) WithK(k int) *Logger {
	return &Logger{
		Logger: l.Logger.With("k", k),
	}
}

// LogRegister logs a batch registration.
func (l *Logger) LogRegister(ctx context.Context, total, failed int) {
	if failed > 0 {
		l.WarnContext(ctx, "registration completed with failures",
			"total", total,
			"failed", failed,
			"success", total-failed,
		)
	} else {
		l.InfoContext(ctx, "registration completed",
			"count", total,
		)
	}
}

// LogSimilar logs a similarity query.
func (l *Logger) LogSimilar(ctx context.Context, songID model.SongID, k, resultsFound int, err error) {
	if err != nil {
		l.ErrorContext(ctx, "similarity query failed",
			"song_id", string(songID),
			"k", k,
			"error", err,
		)
	} else {
		l.DebugContext(ctx, "similarity query completed",
			"song_id", string(songID),
			"k", k,
			"results", resultsFound,
		)
	}
}

// LogSegmentScore logs a segment scoring run.
func (l *Logger) LogSegmentScore(ctx context.Context, songID model.SongID, candidates int, err error) {
	if err != nil {
		l.ErrorContext(ctx, "segment scoring failed",
			"song_id", string(songID),
			"error", err,
		)
	} else {
		l.DebugContext(ctx, "segment scoring completed",
			"song_id", string(songID),
			"candidates", candidates,
		)
	}
}

// LogChain logs a chain walk.
func (l *Logger) LogChain(ctx context.Context, seed model.SongID, requested, produced int, err error) {
	if err != nil {
		l.ErrorContext(ctx, "chain walk failed",
			"seed", string(seed),
			"requested", requested,
			"error", err,
		)
	} else {
		l.DebugContext(ctx, "chain walk completed",
			"seed", string(seed),
			"requested", requested,
			"produced", produced,
		)
	}
}

// LogSnapshot logs a snapshot operation.
func (l *Logger) LogSnapshot(ctx context.Context, name string, err error) {
	if err != nil {
		l.ErrorContext(ctx, "snapshot failed",
			"name", name,
			"error", err,
		)
	} else {
		l.InfoContext(ctx, "snapshot completed",
			"name", name,
		)
	}
}
