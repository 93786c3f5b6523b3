package logging

import (
	"io"
	"log/slog"
	"os"
	"strings"
	"time"
)

// Indirections so tests can capture console output.
var (
	osStdout = os.Stdout
	osPipe   = os.Pipe
)

// SlogManager manages slog-based logging with an optional GELF sink.
type SlogManager struct {
	logger *slog.Logger
	level  slog.LevelVar

	// closed on Close
	gelf io.Writer
}

// NewSlogManager creates a new slog-based logging manager.
func NewSlogManager() *SlogManager {
	return &SlogManager{}
}

// parseLevel converts a string log level to slog.Level.
func parseLevel(level string) slog.Level {
	switch strings.ToUpper(level) {
	case "DEBUG":
		return slog.LevelDebug
	case "INFO":
		return slog.LevelInfo
	case "WARN":
		return slog.LevelWarn
	case "ERROR":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

// Setup initializes the logging system. Records go to file when given,
// otherwise to stdout, and additionally to gelf when it is not nil.
// provider adds dynamic attributes to every record and may be nil.
func (m *SlogManager) Setup(file io.Writer, level string, gelf io.Writer, provider ContextProvider) {
	m.level.Set(parseLevel(level))
	m.gelf = gelf

	// Common handler options with RFC3339 time formatting
	handlerOpts := &slog.HandlerOptions{
		Level: &m.level,
		ReplaceAttr: func(groups []string, a slog.Attr) slog.Attr {
			if a.Key == slog.TimeKey {
				if t, ok := a.Value.Any().(time.Time); ok {
					a.Value = slog.StringValue(t.UTC().Format(time.RFC3339))
				}
			}
			return a
		},
	}

	var handlers []slog.Handler
	if file != nil {
		handlers = append(handlers, slog.NewTextHandler(file, handlerOpts))
	} else {
		handlers = append(handlers, slog.NewTextHandler(osStdout, handlerOpts))
	}
	if gelf != nil {
		// go-gelf turns each write into one message
		handlers = append(handlers, slog.NewJSONHandler(gelf, handlerOpts))
	}

	var h slog.Handler = NewMultiHandler(handlers...)
	if provider != nil {
		h = NewContextHandler(h, provider)
	}

	m.logger = slog.New(h)
	m.logger.Info("Logging initialized", "level", level)
}

// SetLevel changes the level of an already configured logger.
func (m *SlogManager) SetLevel(level string) {
	m.level.Set(parseLevel(level))
}

// Level returns the active level.
func (m *SlogManager) Level() slog.Level {
	return m.level.Level()
}

// Logger returns the configured slog.Logger.
func (m *SlogManager) Logger() *slog.Logger {
	if m.logger == nil {
		// Return a default logger if Setup hasn't been called
		return slog.Default()
	}
	return m.logger
}

// Close releases the GELF sink if it holds a connection.
func (m *SlogManager) Close() error {
	if c, ok := m.gelf.(io.Closer); ok {
		return c.Close()
	}
	return nil
}

// WriteLog writes a log entry with the specified function name, data, and level.
func (m *SlogManager) WriteLog(functionName, data, level string) {
	if m.logger == nil {
		return
	}

	switch parseLevel(level) {
	case slog.LevelDebug:
		m.logger.Debug(data, "function", functionName)
	case slog.LevelWarn:
		m.logger.Warn(data, "function", functionName)
	case slog.LevelError:
		m.logger.Error(data, "function", functionName)
	default:
		m.logger.Info(data, "function", functionName)
	}
}
