// Package logger provides the process-wide structured logger used by
// every component of the ingestion and retrieval pipeline.
package logger

import (
	"os"
	"sync"

	"github.com/rs/zerolog"
)

var (
	defaultLogger zerolog.Logger
	once          sync.Once
	initialized   bool
)

// Init initializes the default logger with a JSON writer to os.Stdout at
// the given level ("debug", "info", "warn", "error"). It is safe to call
// more than once; only the first call takes effect.
func Init(level string) {
	once.Do(func() {
		lvl, err := zerolog.ParseLevel(level)
		if err != nil {
			lvl = zerolog.InfoLevel
		}
		zerolog.SetGlobalLevel(lvl)
		defaultLogger = zerolog.New(os.Stdout).With().Timestamp().Logger()
		initialized = true
		defaultLogger.Info().Msg("logger initialized")
	})
}

// Get returns the initialized default logger, initializing it at info
// level if Init has not yet been called.
func Get() *zerolog.Logger {
	if !initialized {
		Init("info")
	}
	return &defaultLogger
}

// With returns a child logger with the given content id attached,
// mirroring how ingestion stages tag every log line with the item they
// are working on.
func With(contentID string) zerolog.Logger {
	return Get().With().Str("content_id", contentID).Logger()
}

// Info logs an informational message using the default logger.
func Info(msg string) {
	Get().Info().Msg(msg)
}

// Warn logs a warning message using the default logger.
func Warn(msg string) {
	Get().Warn().Msg(msg)
}

// Error logs an error message using the default logger.
func Error(msg string, err error) {
	Get().Error().Err(err).Msg(msg)
}

// Debug logs a debug message using the default logger.
func Debug(msg string) {
	Get().Debug().Msg(msg)
}
