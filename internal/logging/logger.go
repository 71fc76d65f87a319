package logging

import (
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	"github.com/rs/zerolog"
)

const serviceName = "newsdesk"

// New builds the process logger. Local environments get human-readable console output on stderr.
func New(environment, level string) (zerolog.Logger, error) {
	parsedLevel, err := zerolog.ParseLevel(strings.ToLower(strings.TrimSpace(level)))
	if err != nil {
		return zerolog.Logger{}, fmt.Errorf("parse LOG_LEVEL=%q: %w", level, err)
	}

	var writer io.Writer = os.Stderr
	if strings.EqualFold(strings.TrimSpace(environment), "local") {
		writer = zerolog.ConsoleWriter{
			Out:        os.Stderr,
			TimeFormat: time.RFC3339,
		}
	}

	return zerolog.New(writer).
		Level(parsedLevel).
		With().
		Timestamp().
		Str("service", serviceName).
		Logger(), nil
}

// Component derives a child logger tagged with the pipeline stage name.
func Component(logger zerolog.Logger, name string) zerolog.Logger {
	return logger.With().Str("component", name).Logger()
}
