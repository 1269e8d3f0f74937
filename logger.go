package mqttv5client

import (
	"io"
	"os"
	"time"

	"github.com/rs/zerolog"
)

// LogLevel represents the logging level.
type LogLevel int

const (
	LogLevelDebug LogLevel = iota
	LogLevelInfo
	LogLevelWarn
	LogLevelError
	// LogLevelNone disables all logging.
	LogLevelNone
)

// String returns the string representation of the log level.
func (l LogLevel) String() string {
	switch l {
	case LogLevelDebug:
		return "DEBUG"
	case LogLevelInfo:
		return "INFO"
	case LogLevelWarn:
		return "WARN"
	case LogLevelError:
		return "ERROR"
	case LogLevelNone:
		return "NONE"
	default:
		return "UNKNOWN"
	}
}

var logLevelNames = map[LogLevel]string{
	LogLevelDebug: "debug",
	LogLevelInfo:  "info",
	LogLevelWarn:  "warn",
	LogLevelError: "error",
	LogLevelNone:  "none",
}

// UnmarshalText parses a lower-case level name such as "info".
func (l *LogLevel) UnmarshalText(text []byte) error {
	return unmarshalEnum(logLevelNames, text, "log level", l)
}

func (l LogLevel) MarshalText() ([]byte, error) {
	return []byte(logLevelNames[l]), nil
}

// LogFields represents key-value pairs for structured logging.
type LogFields map[string]any

// Logger defines the interface for logging.
type Logger interface {
	Debug(msg string, fields LogFields)
	Info(msg string, fields LogFields)
	Warn(msg string, fields LogFields)
	Error(msg string, fields LogFields)

	// WithFields returns a new logger with the given fields added.
	WithFields(fields LogFields) Logger
}

// NoOpLogger is a logger that does nothing.
type NoOpLogger struct{}

// NewNoOpLogger creates a new no-op logger.
func NewNoOpLogger() *NoOpLogger {
	return &NoOpLogger{}
}

func (n *NoOpLogger) Debug(_ string, _ LogFields)   {}
func (n *NoOpLogger) Info(_ string, _ LogFields)    {}
func (n *NoOpLogger) Warn(_ string, _ LogFields)    {}
func (n *NoOpLogger) Error(_ string, _ LogFields)   {}
func (n *NoOpLogger) WithFields(_ LogFields) Logger { return n }

// ZerologLogger implements Logger using rs/zerolog.
type ZerologLogger struct {
	log zerolog.Logger
}

// NewZerologLogger writes JSON lines to w (stderr when nil) at or above level.
// Every line carries the component field.
func NewZerologLogger(w io.Writer, level LogLevel, component string) *ZerologLogger {
	if w == nil {
		w = os.Stderr
	}
	z := zerolog.New(w).Level(zerologLevel(level)).With().Timestamp().Str("component", component).Logger()
	return &ZerologLogger{log: z}
}

// NewConsoleLogger is NewZerologLogger with human readable output.
func NewConsoleLogger(w io.Writer, level LogLevel, component string) *ZerologLogger {
	if w == nil {
		w = os.Stderr
	}
	return NewZerologLogger(zerolog.ConsoleWriter{Out: w, TimeFormat: time.RFC3339}, level, component)
}

func zerologLevel(l LogLevel) zerolog.Level {
	switch l {
	case LogLevelDebug:
		return zerolog.DebugLevel
	case LogLevelInfo:
		return zerolog.InfoLevel
	case LogLevelWarn:
		return zerolog.WarnLevel
	case LogLevelError:
		return zerolog.ErrorLevel
	default:
		return zerolog.Disabled
	}
}

func (l *ZerologLogger) Debug(msg string, fields LogFields) { logEvent(l.log.Debug(), msg, fields) }
func (l *ZerologLogger) Info(msg string, fields LogFields)  { logEvent(l.log.Info(), msg, fields) }
func (l *ZerologLogger) Warn(msg string, fields LogFields)  { logEvent(l.log.Warn(), msg, fields) }
func (l *ZerologLogger) Error(msg string, fields LogFields) { logEvent(l.log.Error(), msg, fields) }

// WithFields returns a child logger carrying fields on every line.
func (l *ZerologLogger) WithFields(fields LogFields) Logger {
	return &ZerologLogger{log: l.log.With().Fields(map[string]any(fields)).Logger()}
}

func logEvent(ev *zerolog.Event, msg string, fields LogFields) {
	for k, v := range fields {
		if err, ok := v.(error); ok {
			ev = ev.AnErr(k, err)
			continue
		}
		ev = ev.Interface(k, v)
	}
	ev.Msg(msg)
}

// Standard field names for client logging.
const (
	LogFieldClientID   = "client_id"
	LogFieldTopic      = "topic"
	LogFieldPacketID   = "packet_id"
	LogFieldPacketType = "packet_type"
	LogFieldQoS        = "qos"
	LogFieldReasonCode = "reason_code"
	LogFieldError      = "error"
	LogFieldState      = "state"
	LogFieldDelay      = "delay"
	LogFieldAddress    = "address"
)
