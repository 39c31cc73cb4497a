package utils

import (
	"os"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

// InitLogger configures the global zerolog logger. Debug mode enables
// per-segment transfer logging, which is noisy but useful when a
// download misbehaves.
func InitLogger(debug bool) {
	zerolog.SetGlobalLevel(zerolog.InfoLevel)
	if debug {
		zerolog.SetGlobalLevel(zerolog.DebugLevel)
	}
	output := zerolog.ConsoleWriter{
		Out:        os.Stderr,
		TimeFormat: time.DateTime,
	}
	log.Logger = zerolog.New(output).With().Timestamp().Logger()
}

// GetLogger returns a child logger tagged with a component name.
func GetLogger(component string) zerolog.Logger {
	return log.With().Str("component", component).Logger()
}
