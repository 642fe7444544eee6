// Package logging provides the structured logger used across the MCP
// gateway. It keeps the small Debug/Info/Warn/Error interface the rest of
// the tree depends on, backed by charmbracelet/log instead of the bare
// standard-library logger, with optional rotation to a file via lumberjack.
package logging

import (
	"io"
	"os"
	"strings"

	charmlog "github.com/charmbracelet/log"
	"gopkg.in/natefinch/lumberjack.v2"
)

// Logger is the narrow interface handlers, sessions, and the transport
// depend on. Keeping it an interface (rather than depending on
// *charmlog.Logger directly) lets tests substitute a no-op or recording
// implementation without pulling in the real sink.
type Logger interface {
	Debug(msg string, kv ...interface{})
	Info(msg string, kv ...interface{})
	Warn(msg string, kv ...interface{})
	Error(msg string, kv ...interface{})
	With(kv ...interface{}) Logger
}

// Options configures New.
type Options struct {
	// Level is one of "debug", "info", "warn", "error" (case-insensitive).
	// Defaults to "info".
	Level string
	// FilePath, when set, routes output through a rotating lumberjack
	// writer instead of stderr.
	FilePath   string
	MaxSizeMB  int
	MaxBackups int
	MaxAgeDays int
}

type charmLogger struct {
	l *charmlog.Logger
}

// New builds a Logger per opts.
func New(opts Options) Logger {
	var w io.Writer = os.Stderr
	if opts.FilePath != "" {
		w = &lumberjack.Logger{
			Filename:   opts.FilePath,
			MaxSize:    nonZero(opts.MaxSizeMB, 50),
			MaxBackups: nonZero(opts.MaxBackups, 5),
			MaxAge:     nonZero(opts.MaxAgeDays, 30),
			Compress:   true,
		}
	}

	l := charmlog.NewWithOptions(w, charmlog.Options{
		ReportTimestamp: true,
		Level:           parseLevel(opts.Level),
	})
	return &charmLogger{l: l}
}

func nonZero(v, def int) int {
	if v <= 0 {
		return def
	}
	return v
}

func parseLevel(level string) charmlog.Level {
	switch strings.ToLower(level) {
	case "debug":
		return charmlog.DebugLevel
	case "warn":
		return charmlog.WarnLevel
	case "error":
		return charmlog.ErrorLevel
	default:
		return charmlog.InfoLevel
	}
}

func (c *charmLogger) Debug(msg string, kv ...interface{}) { c.l.Debug(msg, kv...) }
func (c *charmLogger) Info(msg string, kv ...interface{})  { c.l.Info(msg, kv...) }
func (c *charmLogger) Warn(msg string, kv ...interface{})  { c.l.Warn(msg, kv...) }
func (c *charmLogger) Error(msg string, kv ...interface{}) { c.l.Error(msg, kv...) }

func (c *charmLogger) With(kv ...interface{}) Logger {
	return &charmLogger{l: c.l.With(kv...)}
}

// Nop returns a Logger that discards everything; useful for tests.
func Nop() Logger { return nopLogger{} }

type nopLogger struct{}

func (nopLogger) Debug(string, ...interface{}) {}
func (nopLogger) Info(string, ...interface{})  {}
func (nopLogger) Warn(string, ...interface{})  {}
func (nopLogger) Error(string, ...interface{}) {}
func (nopLogger) With(...interface{}) Logger   { return nopLogger{} }
