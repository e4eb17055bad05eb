package logging

import (
	"io"
	"log/slog"
	"os"
	"time"
)

// Logger defines the minimal logging interface used throughout the module.
// This allows users to provide their own logger implementation or use the
// built-in adapters.
type Logger interface {
	Debug(msg string, args ...any)
	Info(msg string, args ...any)
	Warn(msg string, args ...any)
	Error(msg string, args ...any)
}

// SlogAdapter wraps *slog.Logger to implement the Logger interface.
type SlogAdapter struct {
	*slog.Logger
}

// Debug logs a debug message.
func (s *SlogAdapter) Debug(msg string, args ...any) { s.Logger.Debug(msg, args...) }

// Info logs an informational message.
func (s *SlogAdapter) Info(msg string, args ...any) { s.Logger.Info(msg, args...) }

// Warn logs a warning message.
func (s *SlogAdapter) Warn(msg string, args ...any) { s.Logger.Warn(msg, args...) }

// Error logs an error message.
func (s *SlogAdapter) Error(msg string, args ...any) { s.Logger.Error(msg, args...) }

// NewSlogAdapter creates a Logger from *slog.Logger.
func NewSlogAdapter(logger *slog.Logger) Logger {
	return &SlogAdapter{Logger: logger}
}

// NewJSONLogger creates a Logger writing JSON records to w at the given level.
func NewJSONLogger(w io.Writer, level slog.Level) Logger {
	if w == nil {
		w = os.Stdout
	}
	return NewSlogAdapter(slog.New(slog.NewJSONHandler(w, &slog.HandlerOptions{Level: level})))
}

// NoOpLogger discards all log messages. Useful for testing or when logging is disabled.
type NoOpLogger struct{}

// Debug logs a debug message.
func (NoOpLogger) Debug(string, ...any) {}

// Info logs an informational message.
func (NoOpLogger) Info(string, ...any) {}

// Warn logs a warning message.
func (NoOpLogger) Warn(string, ...any) {}

// Error logs an error message.
func (NoOpLogger) Error(string, ...any) {}

// SessionLogger attaches session context to every record and adds domain
// helpers. Cheap to copy via WithTurn.
type SessionLogger struct {
	logger    Logger
	sessionID string
	userID    string
	turnIndex int
	hasTurn   bool
}

// NewSessionLogger wraps a Logger with session identifiers. A nil logger is
// substituted with NoOpLogger.
func NewSessionLogger(logger Logger, sessionID, userID string) *SessionLogger {
	if logger == nil {
		logger = NoOpLogger{}
	}
	return &SessionLogger{logger: logger, sessionID: sessionID, userID: userID}
}

// WithTurn returns a copy that also tags records with a turn index.
func (l *SessionLogger) WithTurn(index int) *SessionLogger {
	nl := *l
	nl.turnIndex = index
	nl.hasTurn = true
	return &nl
}

func (l *SessionLogger) attrs(args []any) []any {
	out := append([]any{"session_id", l.sessionID, "user_id", l.userID}, args...)
	if l.hasTurn {
		out = append(out, "turn_index", l.turnIndex)
	}
	return out
}

// Debug logs at debug level with session context.
func (l *SessionLogger) Debug(msg string, args ...any) { l.logger.Debug(msg, l.attrs(args)...) }

// Info logs at info level with session context.
func (l *SessionLogger) Info(msg string, args ...any) { l.logger.Info(msg, l.attrs(args)...) }

// Warn logs at warn level with session context.
func (l *SessionLogger) Warn(msg string, args ...any) { l.logger.Warn(msg, l.attrs(args)...) }

// Error logs at error level with session context.
func (l *SessionLogger) Error(msg string, args ...any) { l.logger.Error(msg, l.attrs(args)...) }

// LogModelCall records latency and outcome of one partner generation.
func (l *SessionLogger) LogModelCall(modelName string, dur time.Duration, err error) {
	args := []any{"model", modelName, "duration", dur, "success", err == nil}
	if err != nil {
		args = append(args, "error", err.Error())
		l.Error("Model call failed", args...)
		return
	}
	l.Info("Model call completed", args...)
}
