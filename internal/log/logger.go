package log

import (
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"github.com/charmbracelet/lipgloss"
	"github.com/charmbracelet/log"
	"github.com/google/uuid"
	"golang.org/x/term"
)

// Level represents the logging level.
type Level = log.Level

// Log levels matching charmbracelet/log.
const (
	DebugLevel = log.DebugLevel
	InfoLevel  = log.InfoLevel
	WarnLevel  = log.WarnLevel
	ErrorLevel = log.ErrorLevel
)

// Config holds the logger configuration.
type Config struct {
	// Level is the minimum log level to output.
	Level Level

	// Pretty enables colored output. Ignored when JSON is set.
	Pretty bool

	// JSON enables JSON output for machine consumption.
	JSON bool

	// File is the optional file path to write logs to, in addition to Output.
	File string

	// Output is where logs go. Defaults to stdout.
	Output io.Writer

	// Caller enables including caller information (file:line).
	Caller bool

	// Timestamp enables including timestamps.
	Timestamp bool

	// Prefix adds a prefix to all log messages.
	Prefix string
}

// DefaultConfig returns the configuration used when none is given. Pretty
// output is only enabled when stdout is a terminal.
func DefaultConfig() Config {
	return Config{
		Level:     InfoLevel,
		Pretty:    term.IsTerminal(int(os.Stdout.Fd())),
		Caller:    false,
		Timestamp: true,
		Prefix:    "nsm",
	}
}

// ParseLevel converts a level name such as "debug" into a Level.
func ParseLevel(name string) (Level, error) {
	if name == "" {
		return InfoLevel, nil
	}
	lvl, err := log.ParseLevel(strings.ToLower(name))
	if err != nil {
		return InfoLevel, fmt.Errorf("invalid log level %q: %w", name, err)
	}
	return lvl, nil
}

type contextKey string

const traceIDKey contextKey = "trace_id"

// Logger is a structured logger wrapping charmbracelet/log.Logger.
type Logger struct {
	*log.Logger
	cfg      Config
	handlers []io.WriteCloser
}

var (
	global   *Logger
	globalMu sync.Mutex
)

// Init replaces the global logger with one built from cfg.
func Init(cfg Config) error {
	l, err := NewLogger(cfg)
	if err != nil {
		return err
	}
	globalMu.Lock()
	old := global
	global = l
	globalMu.Unlock()
	if old != nil {
		old.close()
	}
	return nil
}

// NewLogger creates a new Logger with the given configuration.
func NewLogger(cfg Config) (*Logger, error) {
	out := cfg.Output
	if out == nil {
		out = os.Stdout
	}
	writers := []io.Writer{out}
	var handlers []io.WriteCloser

	if cfg.File != "" {
		if err := os.MkdirAll(filepath.Dir(cfg.File), 0755); err != nil {
			return nil, fmt.Errorf("failed to create log directory: %w", err)
		}
		file, err := os.OpenFile(cfg.File, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0644)
		if err != nil {
			return nil, fmt.Errorf("failed to open log file: %w", err)
		}
		handlers = append(handlers, file)
		writers = append(writers, file)
	}

	opts := log.Options{
		Level:           cfg.Level,
		Prefix:          cfg.Prefix,
		ReportCaller:    cfg.Caller,
		ReportTimestamp: cfg.Timestamp,
		TimeFormat:      "2006-01-02 15:04:05",
	}
	if cfg.JSON {
		opts.Formatter = log.JSONFormatter
	}

	logger := log.NewWithOptions(io.MultiWriter(writers...), opts)

	if cfg.Pretty && !cfg.JSON {
		styles := log.DefaultStyles()
		styles.Timestamp = lipgloss.NewStyle().Foreground(lipgloss.Color("245"))
		styles.Key = lipgloss.NewStyle().Foreground(lipgloss.Color("117"))
		styles.Value = lipgloss.NewStyle().Foreground(lipgloss.Color("228"))
		styles.Prefix = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("15"))
		logger.SetStyles(styles)
	}

	return &Logger{
		Logger:   logger,
		cfg:      cfg,
		handlers: handlers,
	}, nil
}

// Get returns the global logger, creating it with default config if needed.
func Get() *Logger {
	globalMu.Lock()
	defer globalMu.Unlock()
	if global == nil {
		l, err := NewLogger(DefaultConfig())
		if err != nil {
			l = &Logger{Logger: log.New(os.Stdout), cfg: DefaultConfig()}
		}
		global = l
	}
	return global
}

// SubPackage creates a logger with an additional prefix for the given package.
// A package named like the global prefix keeps the prefix unchanged.
func SubPackage(pkg string) *Logger {
	g := Get()
	prefix := pkg
	if g.cfg.Prefix != "" && g.cfg.Prefix != pkg {
		prefix = g.cfg.Prefix + "/" + pkg
	}
	return &Logger{
		Logger: g.Logger.WithPrefix(prefix),
		cfg:    g.cfg,
	}
}

// NewTraceID returns a fresh trace identifier.
func NewTraceID() string {
	return uuid.NewString()
}

// ContextWithTraceID adds a trace ID to the context, generating one when
// traceID is empty.
func ContextWithTraceID(ctx context.Context, traceID string) context.Context {
	if traceID == "" {
		traceID = NewTraceID()
	}
	return context.WithValue(ctx, traceIDKey, traceID)
}

// TraceIDFromContext extracts the trace ID from the context.
func TraceIDFromContext(ctx context.Context) string {
	if ctx == nil {
		return ""
	}
	if traceID, ok := ctx.Value(traceIDKey).(string); ok {
		return traceID
	}
	return ""
}

// ContextLogger returns the global logger annotated with the context's trace ID.
func ContextLogger(ctx context.Context, keyValues ...any) *Logger {
	if id := TraceIDFromContext(ctx); id != "" {
		keyValues = append([]any{"trace_id", id}, keyValues...)
	}
	return Get().With(keyValues...)
}

func (l *Logger) close() {
	for _, h := range l.handlers {
		_ = h.Close()
	}
}

// Close closes any file handlers. Should be called on shutdown.
func Close() error {
	globalMu.Lock()
	defer globalMu.Unlock()
	if global == nil {
		return nil
	}
	for _, h := range global.handlers {
		if err := h.Close(); err != nil {
			return err
		}
	}
	global.handlers = nil
	return nil
}

// SetLevel sets the global log level.
func SetLevel(level Level) {
	Get().Logger.SetLevel(level)
}

// Debug logs a message at debug level on the global logger.
func Debug(args ...any) { Get().Debug(args...) }

// Info logs a message at info level on the global logger.
func Info(args ...any) { Get().Info(args...) }

// Warn logs a message at warn level on the global logger.
func Warn(args ...any) { Get().Warn(args...) }

// Error logs a message at error level on the global logger.
func Error(args ...any) { Get().Error(args...) }

// ---- Logger instance methods ----

// Debug logs a message at debug level.
// If the first argument is a string, it's used as the message.
// Additional arguments are treated as key-value pairs.
func (l *Logger) Debug(args ...any) {
	if len(args) == 0 {
		l.Logger.Debug("")
		return
	}
	l.Logger.Debug(args[0], args[1:]...)
}

// Info logs a message at info level.
func (l *Logger) Info(args ...any) {
	if len(args) == 0 {
		l.Logger.Info("")
		return
	}
	l.Logger.Info(args[0], args[1:]...)
}

// Warn logs a message at warn level.
func (l *Logger) Warn(args ...any) {
	if len(args) == 0 {
		l.Logger.Warn("")
		return
	}
	l.Logger.Warn(args[0], args[1:]...)
}

// Error logs a message at error level.
func (l *Logger) Error(args ...any) {
	if len(args) == 0 {
		l.Logger.Error("")
		return
	}
	l.Logger.Error(args[0], args[1:]...)
}

// With creates a child logger with the given key-value pairs.
func (l *Logger) With(keyValues ...any) *Logger {
	return &Logger{
		Logger: l.Logger.With(keyValues...),
		cfg:    l.cfg,
	}
}
