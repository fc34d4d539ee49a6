// Package logger provides the structured logging used across estransport.
package logger

import (
	"fmt"
	"io"
	"os"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

// Config holds logger configuration.
type Config struct {
	Level      string
	JSONFormat bool
}

// Initialize sets up the global logger with the given configuration.
func Initialize(cfg Config) error {
	zerolog.TimeFieldFormat = time.RFC3339

	level, err := zerolog.ParseLevel(cfg.Level)
	if err != nil {
		level = zerolog.InfoLevel
	}
	zerolog.SetGlobalLevel(level)

	var output io.Writer = os.Stdout
	if !cfg.JSONFormat {
		output = zerolog.ConsoleWriter{
			Out:        os.Stdout,
			TimeFormat: time.RFC3339,
			NoColor:    true,
		}
	}

	log.Logger = zerolog.New(output).With().Timestamp().Logger()

	return nil
}

// Component returns a logger instance scoped to the given component name.
func Component(component string) zerolog.Logger {
	return log.With().Str("component", component).Logger()
}

// RequestLine logs one request at DEBUG level in the wire format:
//
//	METHOD URL [status:<code> request:<seconds.mmm>s]
//	> <request-body-or-None>
//	< <response-body>
func RequestLine(l zerolog.Logger, method, url string, status int, duration time.Duration, reqBody, respBody []byte) {
	reqRepr := "None"
	if reqBody != nil {
		reqRepr = string(reqBody)
	}
	line := fmt.Sprintf("%s %s [status:%d request:%.3fs]\n> %s\n< %s",
		method, url, status, duration.Seconds(), reqRepr, string(respBody))
	l.Debug().Msg(line)
}

// Debug logs a debug message against the global logger.
func Debug(msg string, fields ...interface{}) {
	log.Debug().Fields(fieldsToMap(fields...)).Msg(msg)
}

// Info logs an info message against the global logger.
func Info(msg string, fields ...interface{}) {
	log.Info().Fields(fieldsToMap(fields...)).Msg(msg)
}

// Warn logs a warning message against the global logger.
func Warn(msg string, fields ...interface{}) {
	log.Warn().Fields(fieldsToMap(fields...)).Msg(msg)
}

// Error logs an error message against the global logger.
func Error(msg string, err error, fields ...interface{}) {
	logEvent := log.Error().Fields(fieldsToMap(fields...))
	if err != nil {
		logEvent = logEvent.Err(err)
	}
	logEvent.Msg(msg)
}

// Fatal logs a fatal message and exits.
func Fatal(msg string, err error, fields ...interface{}) {
	logEvent := log.Fatal().Fields(fieldsToMap(fields...))
	if err != nil {
		logEvent = logEvent.Err(err)
	}
	logEvent.Msg(msg)
}

func fieldsToMap(fields ...interface{}) map[string]interface{} {
	if len(fields)%2 != 0 {
		log.Warn().Msg("fields must be provided in pairs")
		return nil
	}

	result := make(map[string]interface{}, len(fields)/2)
	for i := 0; i < len(fields); i += 2 {
		key, ok := fields[i].(string)
		if !ok {
			log.Warn().Msgf("field key must be string, got %T", fields[i])
			continue
		}
		result[key] = fields[i+1]
	}
	return result
}
