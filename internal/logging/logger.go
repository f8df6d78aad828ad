package logging

import (
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
)

type Logger struct {
	*slog.Logger
	verbose bool
}

// BuildInfo is attached to every record.
type BuildInfo struct {
	Version   string
	Commit    string
	BuildDate string
}

// NewLogger creates a new logger based on the configuration
func NewLogger(format string, verbose bool, output io.Writer, build BuildInfo) *Logger {
	if output == nil {
		output = os.Stderr
	}

	var level slog.Level
	if verbose {
		level = slog.LevelDebug
	} else {
		level = slog.LevelInfo
	}

	opts := &slog.HandlerOptions{
		Level: level,
		ReplaceAttr: func(groups []string, a slog.Attr) slog.Attr {
			if a.Key == slog.TimeKey && len(groups) == 0 {
				return slog.Attr{}
			}
			return a
		},
	}

	var handler slog.Handler
	switch format {
	case "json":
		handler = slog.NewJSONHandler(output, opts)
	default:
		handler = slog.NewTextHandler(output, opts)
	}

	var application string
	if len(os.Args) > 0 {
		application = filepath.Base(os.Args[0])
	}

	logger := slog.New(handler).With(
		slog.String("service", application),
		slog.String("version", build.Version),
		slog.String("commit", build.Commit),
		slog.String("build_date", build.BuildDate),
	)

	return &Logger{
		Logger:  logger,
		verbose: verbose,
	}
}

// Discard returns a logger that drops every record. Components fall back to
// it when no logger is configured.
func Discard() *Logger {
	return &Logger{Logger: slog.New(slog.NewTextHandler(io.Discard, nil))}
}

// SetAsDefault sets this logger as the default slog logger
func (l *Logger) SetAsDefault() {
	slog.SetDefault(l.Logger)
	if l.verbose {
		slog.SetLogLoggerLevel(slog.LevelDebug)
	} else {
		slog.SetLogLoggerLevel(slog.LevelInfo)
	}
}

// Verbose logs a message only if verbose logging is enabled
func (l *Logger) Verbose(msg string, args ...any) {
	if l.verbose {
		l.Debug(msg, args...)
	}
}

// LogStats logs a set of counters under a single event, keys sorted.
func (l *Logger) LogStats(event string, stats map[string]any) {
	keys := make([]string, 0, len(stats))
	for k := range stats {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	attrs := make([]any, 0, len(stats)*2)
	for _, k := range keys {
		attrs = append(attrs, k, stats[k])
	}
	l.Info(event, attrs...)
}

// LogError logs an error with context
func (l *Logger) LogError(msg string, err error, args ...any) {
	allArgs := append([]any{slog.String("error", err.Error())}, args...)
	l.Error(msg, allArgs...)
}
