package logging

import (
	"io"
	"os"

	"github.com/jrsteele09/go-clinic-session/internal/config"
	"github.com/rs/zerolog"
)

// New returns the process logger: JSON lines in deployed environments, a
// human readable console writer in DEV.
func New(cfg config.EnvConfig) zerolog.Logger {
	return NewWithWriter(cfg, os.Stderr)
}

func NewWithWriter(cfg config.EnvConfig, out io.Writer) zerolog.Logger {
	if cfg.IsDev() {
		out = zerolog.ConsoleWriter{Out: out}
	}
	return zerolog.New(out).
		Level(ParseLevel(cfg.GetLogLevel())).
		With().
		Timestamp().
		Str("app", cfg.GetAppName()).
		Logger()
}

// ParseLevel maps a configured level name to a zerolog level, defaulting to info.
func ParseLevel(level string) zerolog.Level {
	l, err := zerolog.ParseLevel(level)
	if err != nil || level == "" {
		return zerolog.InfoLevel
	}
	return l
}
