// Package logging configures the process-wide zerolog logger.
package logging

import (
	"os"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

const levelEnv = "SKUBUNDLER_LOG_LEVEL"

// Init routes console output to stderr and applies the level from
// SKUBUNDLER_LOG_LEVEL. Call once before any pipeline work starts.
func Init() {
	zerolog.SetGlobalLevel(levelFromEnv())
	log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stderr})
}

// levelFromEnv maps the env var to a zerolog level. Unset or unrecognized
// values mean info, so a typo never silences the run.
func levelFromEnv() zerolog.Level {
	switch os.Getenv(levelEnv) {
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
