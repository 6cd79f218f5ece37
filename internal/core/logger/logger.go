package logger

import (
	"io"
	"log/slog"
	"os"
	"time"

	"github.com/lmittmann/tint"
	"github.com/mattn/go-isatty"
)

type Level slog.Level

var (
	LevelDebug = Level(slog.LevelDebug)
	LevelInfo  = Level(slog.LevelInfo)
	LevelWarn  = Level(slog.LevelWarn)
	LevelError = Level(slog.LevelError)
)

var defaultLevel = LevelInfo

// SetDefaultLevel changes the level used by loggers created afterwards.
func SetDefaultLevel(level Level) {
	defaultLevel = level
}

// SetDebug is a shortcut for the --debug flag.
func SetDebug(debug bool) {
	if debug {
		SetDefaultLevel(LevelDebug)
		return
	}
	SetDefaultLevel(LevelInfo)
}

type HandlerOption func(*tint.Options)

// NewHandlerOptions builds tint options for stderr. Colour and the short
// timestamp are only used on an interactive terminal; redirected output gets
// RFC3339 timestamps so batch logs can be correlated with the CSV reports.
func NewHandlerOptions(opts ...HandlerOption) *tint.Options {
	isTerminal := isatty.IsTerminal(os.Stderr.Fd())
	timeFormat := time.DateTime
	if !isTerminal {
		timeFormat = time.RFC3339
	}
	tintOpts := &tint.Options{
		Level:      slog.Level(defaultLevel),
		NoColor:    !isTerminal,
		TimeFormat: timeFormat,
	}
	for _, opt := range opts {
		opt(tintOpts)
	}
	return tintOpts
}

func NewHandler(w io.Writer, opts ...HandlerOption) slog.Handler {
	return tint.NewHandler(w, NewHandlerOptions(opts...))
}

type LoggerOption func(*Logger)

func WithName(name string) LoggerOption {
	return func(l *Logger) {
		l.name = name
	}
}

// WithOutput sends log lines to w instead of stderr. Used by tests.
func WithOutput(w io.Writer) LoggerOption {
	return func(l *Logger) {
		l.output = w
	}
}

// Logger is a named slog logger. Every component of a run gets its own
// name so interleaved stage output stays attributable.
type Logger struct {
	*slog.Logger
	level   Level
	handler slog.Handler
	output  io.Writer
	name    string
}

// NewLogger creates a new logger instance
func NewLogger(opts ...LoggerOption) *Logger {
	l := &Logger{
		name:   "cmipsync",
		level:  defaultLevel,
		output: os.Stderr,
	}
	for _, opt := range opts {
		opt(l)
	}
	if l.handler == nil {
		level := l.level
		l.handler = NewHandler(l.output, func(tintOpts *tint.Options) {
			tintOpts.Level = slog.Level(level)
		})
	}
	l.Logger = slog.New(l.handler).With("component", l.name)
	return l
}

// Discard returns a logger that drops everything.
func Discard() *Logger {
	return NewLogger(WithOutput(io.Discard))
}

// Named returns a child logger that reports under a different component name.
func (l *Logger) Named(name string) *Logger {
	return &Logger{
		Logger:  slog.New(l.handler).With("component", name),
		level:   l.level,
		handler: l.handler,
		output:  l.output,
		name:    name,
	}
}

func (l *Logger) Name() string {
	return l.name
}
