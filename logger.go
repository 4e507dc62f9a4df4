package zmailbox

import (
	"context"
	"log/slog"
	"os"
	"sync/atomic"

	"github.com/davecgh/go-spew/spew"
)

// Logger is the logging interface used by Mailbox and HTTPTransport.
// Implementations must be safe for concurrent use.
type Logger interface {
	Debug(msg string, args ...any)
	Info(msg string, args ...any)
	Warn(msg string, args ...any)
	Error(msg string, args ...any)
	WithAttrs(args ...any) Logger
}

type loggerRef struct{ l Logger }

var current atomic.Pointer[loggerRef]

// verboseLevel lets the built-in handler follow Verbose without rebuilding
// the logger.
type verboseLevel struct{}

func (verboseLevel) Level() slog.Level {
	if Verbose {
		return slog.LevelDebug
	}
	return slog.LevelInfo
}

func builtinLogger() Logger {
	h := slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: verboseLevel{}})
	return slogAdapter{logger: slog.New(h)}
}

// SetLogger replaces the package logger. Mailboxes created afterwards use
// it; nil restores the built-in stderr logger.
func SetLogger(logger Logger) {
	if logger == nil {
		logger = builtinLogger()
	}
	current.Store(&loggerRef{l: logger.WithAttrs("component", "zmailbox")})
}

// SetSlogLogger is SetLogger for a *slog.Logger.
func SetSlogLogger(logger *slog.Logger) {
	if logger == nil {
		SetLogger(nil)
		return
	}
	SetLogger(SlogLogger(logger))
}

// SlogLogger adapts a *slog.Logger to the Logger interface.
func SlogLogger(logger *slog.Logger) Logger {
	if logger == nil {
		return nil
	}
	return slogAdapter{logger: logger}
}

type slogAdapter struct {
	logger *slog.Logger
}

func (s slogAdapter) Debug(msg string, args ...any) { s.logger.Debug(msg, args...) }
func (s slogAdapter) Info(msg string, args ...any)  { s.logger.Info(msg, args...) }
func (s slogAdapter) Warn(msg string, args ...any)  { s.logger.Warn(msg, args...) }
func (s slogAdapter) Error(msg string, args ...any) { s.logger.Error(msg, args...) }

func (s slogAdapter) WithAttrs(args ...any) Logger {
	return slogAdapter{logger: s.logger.With(args...)}
}

// enabled avoids building spew dumps nobody will see.
func (s slogAdapter) enabled(level slog.Level) bool {
	return s.logger.Enabled(context.Background(), level)
}

func getLogger() Logger {
	if ref := current.Load(); ref != nil {
		return ref.l
	}
	SetLogger(nil)
	return current.Load().l
}

// sessionLogger tags entries with the server session and account. The
// session attribute is omitted until the server has assigned one.
func sessionLogger(sessionID string, account string) Logger {
	var args []any
	if sessionID != "" {
		args = append(args, "session", sessionID)
	}
	if account != "" {
		args = append(args, "account", account)
	}
	if len(args) == 0 {
		return getLogger()
	}
	return getLogger().WithAttrs(args...)
}

func debugLog(l Logger, msg string, args ...any) {
	if !Verbose {
		return
	}
	l.Debug(msg, args...)
}

// dumpLog logs a spew dump of v at debug level. SkipResponses suppresses
// it for large payloads.
func dumpLog(l Logger, msg string, v any) {
	if !Verbose || SkipResponses {
		return
	}
	if s, ok := l.(slogAdapter); ok && !s.enabled(slog.LevelDebug) {
		return
	}
	l.Debug(msg, "dump", spew.Sdump(v))
}
