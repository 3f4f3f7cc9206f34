package logger

import (
	"io"
	"os"
	"strings"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	config "gitlab.com/maplesense1/att.attendance_agent/src/production/ATT.Config"
)

// Logger wraps zerolog.Logger with additional functionality
type Logger struct {
	*zerolog.Logger
}

// NewLogger creates a new logger based on configuration
func NewLogger(cfg *config.LoggingConfig) *Logger {
	level, err := zerolog.ParseLevel(strings.ToLower(cfg.Level))
	if err != nil {
		level = zerolog.InfoLevel
	}
	zerolog.SetGlobalLevel(level)

	out := openOutput(cfg.Output)

	if cfg.Format == "json" {
		log.Logger = zerolog.New(out).With().Timestamp().Logger()
		if cfg.EnableCaller {
			log.Logger = log.Logger.With().Caller().Logger()
		}
	} else {
		console := zerolog.ConsoleWriter{
			Out:        out,
			TimeFormat: time.RFC3339,
		}
		log.Logger = zerolog.New(console).With().Timestamp().Logger()
	}

	return &Logger{&log.Logger}
}

// NewNopLogger returns a logger that discards everything
func NewNopLogger() *Logger {
	l := zerolog.Nop()
	return &Logger{&l}
}

// openOutput resolves stdout, stderr or a file path. Falls back to stdout when the file cannot be opened.
func openOutput(output string) io.Writer {
	switch output {
	case "", "stdout":
		return os.Stdout
	case "stderr":
		return os.Stderr
	}
	f, err := os.OpenFile(output, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0o644)
	if err != nil {
		return os.Stdout
	}
	return f
}

// WithField adds a field to the logger
func (l *Logger) WithField(key string, value interface{}) *Logger {
	logger := l.Logger.With().Interface(key, value).Logger()
	return &Logger{&logger}
}

// WithError adds an error to the logger
func (l *Logger) WithError(err error) *Logger {
	logger := l.Logger.With().Err(err).Logger()
	return &Logger{&logger}
}

// WithRequestID adds a request ID to the logger
func (l *Logger) WithRequestID(requestID string) *Logger {
	logger := l.Logger.With().Str("request_id", requestID).Logger()
	return &Logger{&logger}
}

// WithComponent adds a component name to the logger
func (l *Logger) WithComponent(component string) *Logger {
	logger := l.Logger.With().Str("component", component).Logger()
	return &Logger{&logger}
}

// WithDevice tags entries with the device identifier
func (l *Logger) WithDevice(deviceID string) *Logger {
	logger := l.Logger.With().Str("telefono_id", deviceID).Logger()
	return &Logger{&logger}
}

// FatalWithError logs a fatal message with error and exits
func (l *Logger) FatalWithError(err error, msg string) {
	l.Logger.Fatal().Err(err).Msg(msg)
}

// ErrorWithError logs an error message with error
func (l *Logger) ErrorWithError(err error, msg string) {
	l.Logger.Error().Err(err).Msg(msg)
}

// Warn logs a warning message
func (l *Logger) Warn(msg string) {
	l.Logger.Warn().Msg(msg)
}

// Info logs an info message
func (l *Logger) Info(msg string) {
	l.Logger.Info().Msg(msg)
}

// Debug logs a debug message
func (l *Logger) Debug(msg string) {
	l.Logger.Debug().Msg(msg)
}
