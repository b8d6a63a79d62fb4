package logging

import (
	"os"
	"strings"

	"github.com/rs/zerolog"
)

// New builds the process-wide logger. Level comes from LOG_LEVEL
// (debug/info/warn/error, default info); output is JSON on stdout.
func New(service string) zerolog.Logger {
	level := parseLevel(os.Getenv("LOG_LEVEL"))
	return zerolog.New(os.Stdout).
		Level(level).
		With().
		Timestamp().
		Str("service", service).
		Logger()
}

func parseLevel(raw string) zerolog.Level {
	switch strings.ToLower(strings.TrimSpace(raw)) {
	case "debug":
		return zerolog.DebugLevel
	case "warn":
		return zerolog.WarnLevel
	case "error":
		return zerolog.ErrorLevel
	default:
		return zerolog.InfoLevel
	}
}
