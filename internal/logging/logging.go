// Package logging builds the zerolog loggers injected into each component.
// Components never log through a global; they receive a zerolog.Logger at
// construction time, so tests can pass zerolog.Nop().
package logging

import (
	"io"
	"strings"
	"time"

	"github.com/rs/zerolog"
)

// New constructs a root logger writing to w at the given level. Unknown or
// empty levels fall back to info. When pretty is true the output is the
// human-readable console format, otherwise JSON lines.
func New(w io.Writer, level string, pretty bool) zerolog.Logger {
	lvl, err := zerolog.ParseLevel(strings.ToLower(strings.TrimSpace(level)))
	if err != nil || lvl == zerolog.NoLevel {
		lvl = zerolog.InfoLevel
	}

	if pretty {
		w = zerolog.ConsoleWriter{Out: w, TimeFormat: time.TimeOnly}
	}

	return zerolog.New(w).Level(lvl).With().Timestamp().Logger()
}

// Component returns a child of base tagged with a component name, so every
// event carries which part of the pipeline emitted it.
func Component(base zerolog.Logger, name string) zerolog.Logger {
	return base.With().Str("component", name).Logger()
}
