// Package logger provides JSON structured logging using zerolog.
//
// The dashboard owns the terminal, so by default logs go to a size-rotated
// file rather than stdout.
package logger

import (
	"io"
	"os"
	"path/filepath"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"gopkg.in/natefinch/lumberjack.v2"
)

var globalLogger zerolog.Logger

// Config selects level and destination.
type Config struct {
	Level  string
	Debug  bool
	Output string // file, stdout or stderr
	File   string
}

func init() {
	globalLogger = zerolog.New(io.Discard).With().Timestamp().Logger()
	zerolog.TimeFieldFormat = time.RFC3339
}

// Init configures the global logger. The returned closer flushes and closes
// the rotating file, if one was opened.
func Init(config Config) (io.Closer, error) {
	level := zerolog.InfoLevel
	if config.Debug {
		level = zerolog.DebugLevel
	} else if config.Level != "" {
		var err error
		level, err = zerolog.ParseLevel(config.Level)
		if err != nil {
			return nil, err
		}
	}

	var (
		output io.Writer = os.Stdout
		closer io.Closer = nopCloser{}
	)
	switch config.Output {
	case "stderr":
		output = os.Stderr
	case "file", "":
		if err := os.MkdirAll(filepath.Dir(config.File), 0o755); err != nil {
			return nil, err
		}
		rotating := &lumberjack.Logger{
			Filename:   config.File,
			MaxSize:    10, // megabytes
			MaxBackups: 5,
			MaxAge:     30, // days
			Compress:   true,
		}
		output = rotating
		closer = rotating
	}

	globalLogger = zerolog.New(output).
		Level(level).
		With().
		Timestamp().
		Logger()
	log.Logger = globalLogger

	return closer, nil
}

// GetLogger returns the global logger.
func GetLogger() zerolog.Logger {
	return globalLogger
}

// WithComponent returns a child logger tagged with the component name.
func WithComponent(component string) zerolog.Logger {
	return globalLogger.With().Str("component", component).Logger()
}

// NewTestLogger returns a logger that discards everything.
func NewTestLogger() zerolog.Logger {
	return zerolog.Nop()
}

type nopCloser struct{}

func (nopCloser) Close() error { return nil }
