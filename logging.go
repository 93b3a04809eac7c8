package main

import (
	"fmt"
	"io"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

const (
	logFormatJSON    = "json"
	logFormatConsole = "console"
)

// configureLogging replaces the global zerolog logger. Request handlers pick it up through log.Ctx.
func configureLogging(levelName string, format string, output io.Writer) error {
	level, parseError := zerolog.ParseLevel(levelName)
	if parseError != nil {
		return fmt.Errorf("invalid log level %q: %w", levelName, parseError)
	}
	if level == zerolog.NoLevel {
		level = zerolog.InfoLevel
	}
	zerolog.SetGlobalLevel(level)
	zerolog.TimeFieldFormat = time.RFC3339Nano

	logWriter := output
	if format == logFormatConsole {
		logWriter = zerolog.ConsoleWriter{Out: output, TimeFormat: time.RFC3339}
	}
	log.Logger = zerolog.New(logWriter).With().Timestamp().Str("service", "relay").Logger()
	zerolog.DefaultContextLogger = &log.Logger
	return nil
}
