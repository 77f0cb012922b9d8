package logger

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"slices"
	"sync"
	"time"

	_ "time/tzdata"
)

// traceLevelValue sits one step below slog.LevelDebug
const traceLevelValue = slog.Level(-8)

var (
	globalLogger   *CentralLogger
	globalLoggerMu sync.Mutex
)

// SetGlobal installs cl as the process-wide logger.
func SetGlobal(cl *CentralLogger) {
	globalLoggerMu.Lock()
	defer globalLoggerMu.Unlock()
	globalLogger = cl
}

// Global returns the process-wide logger. Before SetGlobal it is an
// info-level console logger on stderr.
func Global() *CentralLogger {
	globalLoggerMu.Lock()
	defer globalLoggerMu.Unlock()

	if globalLogger == nil {
		globalLogger = &CentralLogger{
			config: &LoggingConfig{
				DefaultLevel: DefaultLogLevel,
				Timezone:     "Local",
				Console:      &ConsoleOutput{Enabled: true, Level: DefaultLogLevel},
			},
			timezone:    time.Local,
			overrides:   map[string]slog.Level{},
			baseHandler: newTextHandler(os.Stderr, slog.LevelInfo, time.Local),
		}
	}
	return globalLogger
}

type loggerContextKey struct{ name string }

// TraceIDKey is the context key read by WithContext.
var TraceIDKey = loggerContextKey{"trace_id"}

// WithTraceID tags ctx with a trace id. Commands pass their run id.
func WithTraceID(ctx context.Context, traceID string) context.Context {
	return context.WithValue(ctx, TraceIDKey, traceID)
}

// CentralLogger owns the output handlers of a command run and hands out
// module loggers that share them.
type CentralLogger struct {
	config      *LoggingConfig
	timezone    *time.Location
	console     io.Writer
	baseHandler slog.Handler
	logFile     *os.File
	overrides   map[string]slog.Level
	mu          sync.RWMutex
}

// Option customizes a CentralLogger.
type Option func(*CentralLogger)

// WithConsoleWriter sends console output to w instead of stderr.
func WithConsoleWriter(w io.Writer) Option {
	return func(cl *CentralLogger) {
		if w != nil {
			cl.console = w
		}
	}
}

// NewCentralLogger builds the console and file handlers described by cfg.
func NewCentralLogger(cfg *LoggingConfig, opts ...Option) (*CentralLogger, error) {
	if cfg == nil {
		return nil, fmt.Errorf("logging config cannot be nil")
	}
	applyConfigDefaults(cfg)

	tz, err := loadTimezone(cfg.Timezone)
	if err != nil {
		return nil, err
	}

	cl := &CentralLogger{
		config:    cfg,
		timezone:  tz,
		console:   os.Stderr,
		overrides: make(map[string]slog.Level, len(cfg.ModuleLevels)),
	}
	for _, opt := range opts {
		opt(cl)
	}
	for module, level := range cfg.ModuleLevels {
		cl.overrides[module] = parseSlogLevel(LogLevel(level))
	}

	if err := cl.buildHandler(); err != nil {
		return nil, fmt.Errorf("failed to create base handler: %w", err)
	}
	return cl, nil
}

func loadTimezone(name string) (*time.Location, error) {
	if name == "" || name == "Local" {
		return time.Local, nil
	}
	tz, err := time.LoadLocation(name)
	if err != nil {
		return nil, fmt.Errorf("invalid timezone %s: %w", name, err)
	}
	return tz, nil
}

// buildHandler picks the console text handler, the JSON file handler, or a
// fanout of both. With neither enabled it falls back to console text.
func (cl *CentralLogger) buildHandler() error {
	var handlers []slog.Handler

	if c := cl.config.Console; c != nil && c.Enabled {
		handlers = append(handlers, newTextHandler(cl.console, parseSlogLevel(LogLevel(c.Level)), cl.timezone))
	}

	if f := cl.config.FileOutput; f != nil && f.Enabled {
		file, err := openLogFile(f.Path)
		if err != nil {
			return err
		}
		cl.logFile = file
		handlers = append(handlers, slog.NewJSONHandler(file, &slog.HandlerOptions{
			Level: parseSlogLevel(LogLevel(f.Level)),
		}))
	}

	switch len(handlers) {
	case 0:
		cl.baseHandler = newTextHandler(cl.console, parseSlogLevel(LogLevel(cl.config.DefaultLevel)), cl.timezone)
	case 1:
		cl.baseHandler = handlers[0]
	default:
		cl.baseHandler = newFanoutHandler(handlers...)
	}
	return nil
}

// openLogFile opens path for appending, creating its directory owner-only.
func openLogFile(path string) (*os.File, error) {
	if dir := filepath.Dir(path); dir != "." && dir != path {
		if err := os.MkdirAll(dir, 0o700); err != nil {
			return nil, fmt.Errorf("failed to create log directory %s: %w", dir, err)
		}
	}
	file, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o600)
	if err != nil {
		return nil, fmt.Errorf("failed to open log file: %w", err)
	}
	return file, nil
}

// Module returns the logger of a top-level module.
func (cl *CentralLogger) Module(name string) Logger {
	if cl == nil {
		return nil
	}

	cl.mu.RLock()
	defer cl.mu.RUnlock()

	level, ok := cl.overrides[name]
	if !ok {
		level = parseSlogLevel(LogLevel(cl.config.DefaultLevel))
	}
	return &moduleLogger{
		module:    name,
		logger:    slog.New(cl.baseHandler),
		level:     level,
		overrides: cl.overrides,
	}
}

// Close flushes and closes the log file, if one is open.
func (cl *CentralLogger) Close() error {
	if cl == nil {
		return nil
	}

	cl.mu.Lock()
	defer cl.mu.Unlock()

	if cl.logFile == nil {
		return nil
	}
	err := errors.Join(cl.logFile.Sync(), cl.logFile.Close())
	cl.logFile = nil
	if err != nil {
		return fmt.Errorf("failed to close log file: %w", err)
	}
	return nil
}

// Flush syncs the log file.
func (cl *CentralLogger) Flush() error {
	if cl == nil {
		return nil
	}

	cl.mu.RLock()
	defer cl.mu.RUnlock()

	if cl.logFile == nil {
		return nil
	}
	return cl.logFile.Sync()
}

type moduleLogger struct {
	module    string
	logger    *slog.Logger
	level     slog.Level
	fields    []Field
	overrides map[string]slog.Level // shared, never written after construction
}

// Module derives "parent.name". An override for the dotted name beats the
// parent's level.
func (m *moduleLogger) Module(name string) Logger {
	if m == nil {
		return nil
	}

	child := &moduleLogger{
		module:    name,
		logger:    m.logger,
		level:     m.level,
		fields:    slices.Clone(m.fields),
		overrides: m.overrides,
	}
	if m.module != "" {
		child.module = m.module + "." + name
	}
	if level, ok := m.overrides[child.module]; ok {
		child.level = level
	}
	return child
}

// enabled reports whether level passes the module filter. Errors always do.
func (m *moduleLogger) enabled(level slog.Level) bool {
	return m != nil && (level >= slog.LevelError || level >= m.level)
}

func (m *moduleLogger) Trace(msg string, fields ...Field) {
	m.emit(traceLevelValue, msg, fields)
}

func (m *moduleLogger) Debug(msg string, fields ...Field) {
	m.emit(slog.LevelDebug, msg, fields)
}

func (m *moduleLogger) Info(msg string, fields ...Field) {
	m.emit(slog.LevelInfo, msg, fields)
}

func (m *moduleLogger) Warn(msg string, fields ...Field) {
	m.emit(slog.LevelWarn, msg, fields)
}

func (m *moduleLogger) Error(msg string, fields ...Field) {
	m.emit(slog.LevelError, msg, fields)
}

func (m *moduleLogger) Log(level LogLevel, msg string, fields ...Field) {
	m.emit(parseSlogLevel(level), msg, fields)
}

func (m *moduleLogger) With(fields ...Field) Logger {
	if m == nil {
		return nil
	}
	clone := *m
	clone.fields = slices.Concat(m.fields, fields)
	return &clone
}

// WithContext attaches the trace id carried by ctx, if any.
func (m *moduleLogger) WithContext(ctx context.Context) Logger {
	if m == nil {
		return nil
	}
	traceID := traceIDFrom(ctx)
	if traceID == "" {
		return m
	}
	return m.With(String(traceIDKey, traceID))
}

// Flush does nothing; files belong to the CentralLogger.
func (m *moduleLogger) Flush() error {
	return nil
}

func (m *moduleLogger) emit(level slog.Level, msg string, fields []Field) {
	if !m.enabled(level) {
		return
	}

	attrs := make([]slog.Attr, 0, len(m.fields)+len(fields)+1)
	if m.module != "" {
		attrs = append(attrs, slog.String(moduleKey, m.module))
	}
	for _, f := range m.fields {
		attrs = append(attrs, fieldToAttr(f))
	}
	for _, f := range fields {
		attrs = append(attrs, fieldToAttr(f))
	}
	m.logger.LogAttrs(context.Background(), level, msg, attrs...)
}

func fieldToAttr(f Field) slog.Attr {
	switch v := f.Value.(type) {
	case string:
		return slog.String(f.Key, v)
	case int:
		return slog.Int(f.Key, v)
	case int64:
		return slog.Int64(f.Key, v)
	case float64:
		return slog.Float64(f.Key, v)
	case bool:
		return slog.Bool(f.Key, v)
	case time.Time:
		return slog.Time(f.Key, v)
	case time.Duration:
		return slog.String(f.Key, v.Round(time.Millisecond).String())
	default:
		return slog.Any(f.Key, v)
	}
}

func traceIDFrom(ctx context.Context) string {
	if ctx == nil {
		return ""
	}
	traceID, _ := ctx.Value(TraceIDKey).(string)
	return traceID
}
