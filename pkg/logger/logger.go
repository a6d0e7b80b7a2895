package logger

import (
	"io"
	"os"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

// Config holds logger configuration
type Config struct {
	Level       string
	Environment string
	TimeFormat  string
	Output      io.Writer
}

// Setup builds the process logger and installs it as the zerolog global.
// Development gets the console writer, everything else JSON.
func Setup(cfg Config) zerolog.Logger {
	if cfg.Output == nil {
		cfg.Output = os.Stdout
	}
	if cfg.TimeFormat == "" {
		cfg.TimeFormat = time.RFC3339
	}

	level, err := zerolog.ParseLevel(cfg.Level)
	if err != nil || cfg.Level == "" {
		level = zerolog.InfoLevel
	}
	zerolog.TimeFieldFormat = cfg.TimeFormat

	out := cfg.Output
	if cfg.Environment != "production" {
		out = zerolog.ConsoleWriter{Out: cfg.Output, TimeFormat: cfg.TimeFormat}
	}

	l := zerolog.New(out).
		Level(level).
		With().
		Timestamp().
		Str("env", cfg.Environment).
		Logger()

	log.Logger = l
	zerolog.DefaultContextLogger = &l
	return l
}
