// Package logging wraps log/slog with the five numeric levels the original
// dPF tool exposes on the command line (--log 1..5) and the four call-style
// methods its collaborator contract names: Verbose, Info, Warn, Error.
package logging

import (
	"log/slog"
	"os"
	"sync/atomic"
)

// Level mirrors the CLI's --log argument: 1 is quietest, 5 is debug/verbose.
type Level int

const (
	LevelError Level = 1 + iota
	LevelWarn
	LevelInfo
	LevelDebug
	LevelVerbose
)

// Logger is a level-gated, concurrency-safe sink. The zero value is not
// usable; construct with New.
type Logger struct {
	level atomic.Int64
	sl    *slog.Logger
}

// New returns a Logger at the given level, writing to os.Stderr via
// log/slog's text handler (matches the teacher's use of slog in main.go).
func New(level Level) *Logger {
	l := &Logger{sl: slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelDebug}))}
	l.SetLevel(level)
	return l
}

// SetLevel changes the active level at runtime; safe for concurrent use.
func (l *Logger) SetLevel(level Level) { l.level.Store(int64(level)) }

func (l *Logger) enabled(level Level) bool { return Level(l.level.Load()) >= level }

// Verbose logs at LevelVerbose (5), the most chatty tier: per-tick decisions.
func (l *Logger) Verbose(tag, msg string, args ...any) {
	if l.enabled(LevelVerbose) {
		l.sl.Debug(msg, append([]any{"tag", tag}, args...)...)
	}
}

// Info logs at LevelInfo (3) and above.
func (l *Logger) Info(tag, msg string, args ...any) {
	if l.enabled(LevelInfo) {
		l.sl.Info(msg, append([]any{"tag", tag}, args...)...)
	}
}

// Warn logs at LevelWarn (2) and above; used for rate-limited diagnostics.
func (l *Logger) Warn(tag, msg string, args ...any) {
	if l.enabled(LevelWarn) {
		l.sl.Warn(msg, append([]any{"tag", tag}, args...)...)
	}
}

// Error logs at LevelError (1) and above, i.e. at every level.
func (l *Logger) Error(tag, msg string, args ...any) {
	if l.enabled(LevelError) {
		l.sl.Error(msg, append([]any{"tag", tag}, args...)...)
	}
}
