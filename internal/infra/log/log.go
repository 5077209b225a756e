package log

import (
	"io"
	"os"

	"bybitbook/internal/config"

	"github.com/rs/zerolog"
)

type Logger = zerolog.Logger

// NewLogger builds the process logger from the logging config. Output goes
// to stderr so it does not interleave with the book display on stdout.
func NewLogger(cfg config.LoggingConfig) Logger {
	return newLogger(cfg, os.Stderr)
}

func newLogger(cfg config.LoggingConfig, out io.Writer) Logger {
	zerolog.TimeFieldFormat = zerolog.TimeFormatUnixMs

	w := out
	if cfg.Pretty {
		w = zerolog.ConsoleWriter{Out: out, TimeFormat: "15:04:05.000"}
	}

	level, err := zerolog.ParseLevel(cfg.Level)
	if err != nil || cfg.Level == "" {
		level = zerolog.InfoLevel
	}

	return zerolog.New(w).Level(level).With().Timestamp().Logger()
}
