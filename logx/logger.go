// Package logx builds the process logger.
package logx

import (
	"io"
	"os"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

// Config selects the log level and output format. It is loaded from the
// environment under the LOG prefix (LOG_DEBUG, LOG_PRETTY_FORMAT).
type Config struct {
	Debug        bool `split_words:"true" default:"false"`
	PrettyFormat bool `split_words:"true" default:"false"`
}

// DefaultConfig is used when Init is called without a Config: Info level,
// JSON output.
var DefaultConfig = &Config{
	Debug:        false,
	PrettyFormat: false,
}

func safe(opts ...Config) *Config {
	if len(opts) == 0 {
		return DefaultConfig
	}
	return &opts[0]
}

// New returns a timestamped logger writing to w at Info level, or Debug when
// conf.Debug is set.
func New(conf Config, w io.Writer) zerolog.Logger {
	if conf.PrettyFormat {
		w = zerolog.ConsoleWriter{Out: w, TimeFormat: "15:04:05"}
	}

	level := zerolog.InfoLevel
	if conf.Debug {
		level = zerolog.DebugLevel
	}

	return zerolog.New(w).Level(level).With().Timestamp().Caller().Logger()
}

// Init installs a stderr logger as the package-level default and returns it.
// Stdout stays free for the stdio transport.
func Init(opts ...Config) zerolog.Logger {
	log.Logger = New(*safe(opts...), os.Stderr)
	return log.Logger
}
